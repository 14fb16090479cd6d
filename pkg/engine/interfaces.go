package engine

import (
	"context"
	"time"

	"github.com/openfroyo/chaindeploy/pkg/telemetry"
)

// Registry is the read-only source of unit specifications.
type Registry interface {
	// ListUnits returns all units in declaration order.
	ListUnits() ([]UnitSpec, error)
}

// Ledger is the durable, per-network record of deployed units.
//
// Implementations must make Put on a given (unit, network) key mutually
// exclusive: a write without overwrite on an existing key fails with a
// DuplicateEntryError, and a write with overwrite replaces the prior entry
// atomically. Storage failures surface as LedgerIOError.
type Ledger interface {
	// Get returns the entry for unit on network, or nil when absent.
	Get(ctx context.Context, unit, network string) (*LedgerEntry, error)

	// Put records entry. With overwrite the prior entry is replaced.
	Put(ctx context.Context, entry *LedgerEntry, overwrite bool) error

	// Delete removes the entry for unit on network. Deleting an absent
	// entry is not an error.
	Delete(ctx context.Context, unit, network string) error

	// List returns all entries recorded for network, ordered by unit name.
	List(ctx context.Context, network string) ([]*LedgerEntry, error)
}

// KeyLocker is implemented by ledgers that can lease a (unit, network) key to
// one orchestrator at a time. A lease older than ttl may be taken over.
type KeyLocker interface {
	Acquire(ctx context.Context, unit, network, owner string, ttl time.Duration) (release func(), err error)
}

// SubmissionJournal is implemented by ledgers that remember sent deployment
// transactions until their outcome is known. A unit with a pending
// submission and no ledger entry is never submitted again implicitly.
type SubmissionJournal interface {
	// MarkSubmitted records sub, replacing any prior submission of the key.
	MarkSubmitted(ctx context.Context, sub *PendingSubmission) error

	// PendingSubmission returns the unresolved submission for unit on
	// network, or nil when there is none.
	PendingSubmission(ctx context.Context, unit, network string) (*PendingSubmission, error)

	// ClearSubmission discards the submission for unit on network. Clearing
	// an absent submission is not an error.
	ClearSubmission(ctx context.Context, unit, network string) error

	// ListPending returns the unresolved submissions on network ordered by
	// unit name. An empty network lists all networks.
	ListPending(ctx context.Context, network string) ([]*PendingSubmission, error)
}

// Network submits deployments and observes their confirmation.
type Network interface {
	// ID returns the network identifier the ledger is keyed by.
	ID() string

	// Deploy submits a deployment transaction. A rejection by the network
	// is returned as an error and nothing is pending.
	Deploy(ctx context.Context, req DeployRequest) (*PendingTx, error)

	// WaitForReceipt blocks until the transaction is mined, the timeout
	// elapses (TimeoutError) or ctx is cancelled (CancelledError). A mined
	// but reverted deployment returns a Receipt with Success false.
	WaitForReceipt(ctx context.Context, tx *PendingTx, timeout time.Duration) (*Receipt, error)
}

// EventSink receives run timeline events.
type EventSink interface {
	Publish(event telemetry.Event) error
}

// RunRecorder persists run history. It is optional; the ledger alone is
// sufficient for idempotence.
type RunRecorder interface {
	RecordRunStarted(ctx context.Context, report *RunReport) error
	RecordResult(ctx context.Context, runID string, result *DeploymentResult) error
	RecordRunFinished(ctx context.Context, report *RunReport) error
}
