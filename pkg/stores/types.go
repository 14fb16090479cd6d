package stores

import (
	"context"
	"time"

	"github.com/openfroyo/chaindeploy/pkg/engine"
	"github.com/openfroyo/chaindeploy/pkg/telemetry"
)

// RunRecord is the persisted summary of a deployment run.
type RunRecord struct {
	ID          string           `json:"id"`
	PlanID      string           `json:"plan_id"`
	NetworkID   string           `json:"network_id"`
	Status      engine.RunStatus `json:"status"`
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Total       int              `json:"total"`
	Deployed    int              `json:"deployed"`
	Skipped     int              `json:"skipped"`
	Failed      int              `json:"failed"`
}

// ResultRecord is the persisted outcome of one unit within a run.
type ResultRecord struct {
	RunID        string            `json:"run_id"`
	Unit         string            `json:"unit"`
	Outcome      engine.Outcome    `json:"outcome"`
	SkipReason   engine.SkipReason `json:"skip_reason,omitempty"`
	Address      string            `json:"address,omitempty"`
	TxHash       string            `json:"tx_hash,omitempty"`
	BlockNumber  *uint64           `json:"block_number,omitempty"`
	ErrorCode    string            `json:"error_code,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	Duration     time.Duration     `json:"duration"`
}

// EventRecord is a persisted timeline event.
type EventRecord struct {
	ID        int64                  `json:"id"`
	EventID   string                 `json:"event_id"`
	RunID     string                 `json:"run_id,omitempty"`
	NetworkID string                 `json:"network_id,omitempty"`
	Unit      string                 `json:"unit,omitempty"`
	Type      string                 `json:"type"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	NetworkID string
	Limit     int
	Offset    int
}

// Store is the full persistence surface used by the CLI: the deployment
// ledger with key leases, run history and the event timeline.
type Store interface {
	engine.Ledger
	engine.KeyLocker
	engine.SubmissionJournal
	engine.RunRecorder

	// GetRun returns a run by ID.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns runs, most recent first.
	ListRuns(ctx context.Context, filter RunFilter) ([]*RunRecord, error)

	// ListResults returns the unit results of a run in execution order.
	ListResults(ctx context.Context, runID string) ([]*ResultRecord, error)

	// AppendEvent persists a timeline event.
	AppendEvent(ctx context.Context, event telemetry.Event) error

	// ListEvents returns the events of a run in publication order.
	ListEvents(ctx context.Context, runID string, limit int) ([]*EventRecord, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases the store.
	Close() error
}

func resultRecord(runID string, r *engine.DeploymentResult) *ResultRecord {
	rec := &ResultRecord{
		RunID:       runID,
		Unit:        r.Unit,
		Outcome:     r.Outcome,
		SkipReason:  r.SkipReason,
		Address:     r.Address,
		TxHash:      r.TxHash,
		BlockNumber: r.BlockNumber,
		StartedAt:   r.StartedAt,
		Duration:    r.Duration,
	}
	if r.Error != nil {
		rec.ErrorCode = r.Error.Code
		rec.ErrorMessage = r.Error.Error()
	}
	return rec
}

func runRecord(report *engine.RunReport) *RunRecord {
	rec := &RunRecord{
		ID:        report.RunID,
		PlanID:    report.PlanID,
		NetworkID: report.NetworkID,
		Status:    report.Status,
		StartedAt: report.StartedAt,
		Total:     report.Summary.Total,
		Deployed:  report.Summary.Deployed,
		Skipped:   report.Summary.Skipped,
		Failed:    report.Summary.Failed,
	}
	if !report.CompletedAt.IsZero() {
		completed := report.CompletedAt
		rec.CompletedAt = &completed
	}
	return rec
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
