package engine

import (
	"encoding/json"
	"fmt"
)

// RunStatus represents the overall status of a deployment run.
type RunStatus string

const (
	// RunStatusRunning indicates the run is currently executing.
	RunStatusRunning RunStatus = "running"

	// RunStatusSucceeded indicates no unit failed.
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed indicates at least one unit failed and none deployed.
	RunStatusFailed RunStatus = "failed"

	// RunStatusPartial indicates some units deployed and some failed.
	RunStatusPartial RunStatus = "partial"

	// RunStatusCancelled indicates the run was interrupted.
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal returns true if the run status represents a final state.
func (s RunStatus) IsTerminal() bool {
	return s != RunStatusRunning
}

// Validate checks if the run status is valid.
func (s RunStatus) Validate() error {
	switch s {
	case RunStatusRunning, RunStatusSucceeded, RunStatusFailed,
		RunStatusPartial, RunStatusCancelled:
		return nil
	default:
		return fmt.Errorf("invalid run status: %s", s)
	}
}

// MarshalJSON implements custom JSON marshaling for type-safe enum serialization.
func (s RunStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(s))
}

// UnmarshalJSON implements custom JSON unmarshaling with validation.
func (s *RunStatus) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = RunStatus(str)
	return s.Validate()
}

// UnitState is a state of the per-unit execution state machine.
type UnitState string

const (
	UnitStatePending    UnitState = "pending"
	UnitStateResolving  UnitState = "resolving"
	UnitStateSubmitting UnitState = "submitting"
	UnitStateConfirming UnitState = "confirming"
	UnitStateDeployed   UnitState = "deployed"
	UnitStateSkipped    UnitState = "skipped"
	UnitStateFailed     UnitState = "failed"
)

// IsTerminal returns true for Deployed, Skipped and Failed.
func (s UnitState) IsTerminal() bool {
	return s == UnitStateDeployed || s == UnitStateSkipped || s == UnitStateFailed
}

// CanTransition reports whether the state machine permits from -> to.
func (s UnitState) CanTransition(to UnitState) bool {
	switch s {
	case UnitStatePending:
		return to == UnitStateResolving || to == UnitStateSkipped || to == UnitStateFailed
	case UnitStateResolving:
		return to == UnitStateSubmitting || to == UnitStateFailed
	case UnitStateSubmitting:
		return to == UnitStateConfirming || to == UnitStateFailed
	case UnitStateConfirming:
		return to == UnitStateDeployed || to == UnitStateFailed
	default:
		return false
	}
}

// Outcome is the terminal outcome of a unit.
type Outcome string

const (
	OutcomeDeployed Outcome = "deployed"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// Validate checks if the outcome is valid.
func (o Outcome) Validate() error {
	switch o {
	case OutcomeDeployed, OutcomeSkipped, OutcomeFailed:
		return nil
	default:
		return fmt.Errorf("invalid outcome: %s", o)
	}
}

// SkipReason explains a Skipped outcome.
type SkipReason string

const (
	// SkipAlreadyDeployed: the ledger already holds an entry for the unit.
	SkipAlreadyDeployed SkipReason = "already_deployed"

	// SkipUpstreamFailure: a unit this one depends on failed or was skipped
	// because of a failure.
	SkipUpstreamFailure SkipReason = "upstream_failure"

	// SkipHalted: the run halted on an unrelated failure before reaching the unit.
	SkipHalted SkipReason = "halted"

	// SkipCancelled: the run was interrupted before reaching the unit.
	SkipCancelled SkipReason = "cancelled"
)
