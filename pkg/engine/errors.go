package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass represents the classification of an error for recovery decisions.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure that may succeed on a later run.
	// Examples: RPC endpoint unavailable, storage busy.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates rate limiting by the RPC provider.
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassConflict indicates contention on a ledger key or an ambiguous
	// chain outcome that needs operator inspection.
	ErrorClassConflict ErrorClass = "conflict"

	// ErrorClassPermanent indicates a non-recoverable error.
	// Examples: invalid registry, constructor revert, missing artifact.
	ErrorClassPermanent ErrorClass = "permanent"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code identifies the taxonomy member for programmatic handling.
	Code string `json:"code,omitempty"`

	// Unit is the deployable unit the error is scoped to, if any.
	Unit string `json:"unit,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", e.Class, e.Message)
	if e.Unit != "" && e.Operation != "" {
		fmt.Fprintf(&sb, " (unit=%s, operation=%s)", e.Unit, e.Operation)
	} else if e.Unit != "" {
		fmt.Fprintf(&sb, " (unit=%s)", e.Unit)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
// Two engine errors match when both class and code agree.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewThrottledError creates a new throttled error.
func NewThrottledError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassThrottled, Message: message, Err: err}
}

// NewConflictError creates a new conflict error.
func NewConflictError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassConflict, Message: message, Err: err}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassPermanent, Message: message, Err: err}
}

// WithUnit scopes the error to a deployable unit.
func (e *EngineError) WithUnit(unit string) *EngineError {
	e.Unit = unit
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Error codes, one per member of the deployment error taxonomy.
const (
	ErrCodeConfig               = "CONFIG_ERROR"
	ErrCodeCyclicDependency     = "CYCLIC_DEPENDENCY"
	ErrCodeUnknownDependency    = "UNKNOWN_DEPENDENCY"
	ErrCodeLedgerIO             = "LEDGER_IO"
	ErrCodeDuplicateEntry       = "DUPLICATE_ENTRY"
	ErrCodeUnresolvedDependency = "UNRESOLVED_DEPENDENCY"
	ErrCodeSubmission           = "SUBMISSION_FAILED"
	ErrCodeTimeout              = "TIMEOUT"
	ErrCodeReverted             = "REVERTED"
	ErrCodeCancelled            = "CANCELLED"
	ErrCodePolicyDenied         = "POLICY_DENIED"
	ErrCodeLockHeld             = "LOCK_HELD"
	ErrCodeUnresolvedSubmission = "UNRESOLVED_SUBMISSION"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewConfigError reports an invalid registry or workspace configuration.
func NewConfigError(message string, err error) *EngineError {
	return NewPermanentError(message, err).WithCode(ErrCodeConfig)
}

// NewCyclicDependencyError reports a dependency cycle. members lists every
// unit participating in the cycle.
func NewCyclicDependencyError(members []string) *EngineError {
	return NewPermanentError(
		fmt.Sprintf("circular dependency detected: %s", strings.Join(members, " -> ")), nil).
		WithCode(ErrCodeCyclicDependency).
		WithDetail("members", members)
}

// NewUnknownDependencyError reports a reference to a unit outside the registry.
func NewUnknownDependencyError(unit, missing string) *EngineError {
	return NewPermanentError(
		fmt.Sprintf("unit %s depends on unknown unit %s", unit, missing), nil).
		WithCode(ErrCodeUnknownDependency).
		WithUnit(unit).
		WithDetail("dependency", missing)
}

// NewLedgerIOError wraps a storage failure of the deployment ledger.
func NewLedgerIOError(operation string, err error) *EngineError {
	return NewTransientError("ledger storage failure", err).
		WithCode(ErrCodeLedgerIO).
		WithOperation(operation)
}

// NewDuplicateEntryError reports an attempt to overwrite a ledger entry without
// the overwrite flag.
func NewDuplicateEntryError(unit, network string) *EngineError {
	return NewConflictError(
		fmt.Sprintf("ledger entry already exists for %s on %s", unit, network), nil).
		WithCode(ErrCodeDuplicateEntry).
		WithUnit(unit).
		WithDetail("network", network)
}

// NewUnresolvedDependencyError reports a referenced unit with no ledger entry.
func NewUnresolvedDependencyError(unit, dependency, network string) *EngineError {
	return NewPermanentError(
		fmt.Sprintf("dependency %s has no ledger entry on %s", dependency, network), nil).
		WithCode(ErrCodeUnresolvedDependency).
		WithUnit(unit).
		WithDetail("dependency", dependency)
}

// NewSubmissionError reports a deployment transaction rejected by the network.
func NewSubmissionError(unit string, err error) *EngineError {
	return NewPermanentError("deployment submission rejected", err).
		WithCode(ErrCodeSubmission).
		WithUnit(unit).
		WithOperation("submit")
}

// NewTimeoutError reports a confirmation wait that exceeded its bound. The
// transaction may still land, so the outcome is ambiguous.
func NewTimeoutError(unit, txHash string, err error) *EngineError {
	return NewConflictError("confirmation timed out; transaction outcome unknown", err).
		WithCode(ErrCodeTimeout).
		WithUnit(unit).
		WithOperation("confirm").
		WithDetail("tx_hash", txHash)
}

// NewUnresolvedSubmissionError reports a unit held back because an earlier
// deployment transaction may still have landed.
func NewUnresolvedSubmissionError(unit, txHash string) *EngineError {
	return NewConflictError(
		fmt.Sprintf("previous deployment transaction %s has no known outcome; "+
			"record it with 'ledger record', discard it with 'ledger forget' or use --force-redeploy", txHash), nil).
		WithCode(ErrCodeUnresolvedSubmission).
		WithUnit(unit).
		WithOperation("submit").
		WithDetail("tx_hash", txHash)
}

// NewRevertedError reports a deployment transaction mined with failure status.
func NewRevertedError(unit, txHash string) *EngineError {
	return NewPermanentError("deployment transaction reverted", nil).
		WithCode(ErrCodeReverted).
		WithUnit(unit).
		WithOperation("confirm").
		WithDetail("tx_hash", txHash)
}

// NewCancelledError reports an interrupted unit.
func NewCancelledError(unit string, err error) *EngineError {
	return NewTransientError("deployment cancelled", err).
		WithCode(ErrCodeCancelled).
		WithUnit(unit)
}

// NewPolicyDeniedError reports a plan rejected by policy evaluation.
func NewPolicyDeniedError(violations []string) *EngineError {
	return NewPermanentError(
		fmt.Sprintf("plan denied by policy: %s", strings.Join(violations, "; ")), nil).
		WithCode(ErrCodePolicyDenied).
		WithDetail("violations", violations)
}

// NewLockHeldError reports a ledger key currently claimed by another process.
func NewLockHeldError(unit, network, owner string) *EngineError {
	return NewConflictError(
		fmt.Sprintf("ledger key %s/%s is locked by %s", unit, network, owner), nil).
		WithCode(ErrCodeLockHeld).
		WithUnit(unit).
		WithDetail("owner", owner)
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	return hasClass(err, ErrorClassTransient)
}

// IsThrottled returns true if the error is classified as throttled.
func IsThrottled(err error) bool {
	return hasClass(err, ErrorClassThrottled)
}

// IsConflict returns true if the error is classified as a conflict.
func IsConflict(err error) bool {
	return hasClass(err, ErrorClassConflict)
}

// IsPermanent returns true if the error is classified as permanent.
func IsPermanent(err error) bool {
	return hasClass(err, ErrorClassPermanent)
}

func hasClass(err error, class ErrorClass) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// HasCode reports whether err carries the given taxonomy code.
func HasCode(err error, code string) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsConfigError reports configuration-class errors which abort before any
// submission.
func IsConfigError(err error) bool {
	return HasCode(err, ErrCodeConfig) ||
		HasCode(err, ErrCodeCyclicDependency) ||
		HasCode(err, ErrCodeUnknownDependency) ||
		HasCode(err, ErrCodePolicyDenied)
}

// IsTimeout reports a confirmation timeout.
func IsTimeout(err error) bool { return HasCode(err, ErrCodeTimeout) }

// IsCancelled reports a cancellation.
func IsCancelled(err error) bool { return HasCode(err, ErrCodeCancelled) }

// IsUnresolvedSubmission reports a unit held back by a pending submission.
func IsUnresolvedSubmission(err error) bool { return HasCode(err, ErrCodeUnresolvedSubmission) }

// IsDuplicateEntry reports a rejected ledger write.
func IsDuplicateEntry(err error) bool { return HasCode(err, ErrCodeDuplicateEntry) }

// IsLedgerIO reports a ledger storage failure.
func IsLedgerIO(err error) bool { return HasCode(err, ErrCodeLedgerIO) }

// CycleMembers returns the units named by a cyclic dependency error.
func CycleMembers(err error) []string {
	var e *EngineError
	if !errors.As(err, &e) || e.Code != ErrCodeCyclicDependency {
		return nil
	}
	members, _ := e.Details["members"].([]string)
	return members
}

// AsEngineError converts err to an *EngineError, wrapping foreign errors as
// permanent internal errors scoped to unit.
func AsEngineError(err error, unit string) *EngineError {
	if err == nil {
		return nil
	}
	var e *EngineError
	if errors.As(err, &e) {
		return e
	}
	return NewPermanentError("unexpected failure", err).
		WithCode(ErrCodeInternal).
		WithUnit(unit)
}
