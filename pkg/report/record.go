package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/openfroyo/chaindeploy/pkg/engine"
)

// Record is the per-unit structure emitted for automation.
type Record struct {
	Unit            string         `json:"unit"`
	Outcome         engine.Outcome `json:"outcome"`
	SkipReason      string         `json:"skipReason,omitempty"`
	Address         string         `json:"address,omitempty"`
	TransactionHash string         `json:"transactionHash,omitempty"`
	BlockNumber     *uint64        `json:"blockNumber,omitempty"`
	Error           string         `json:"error,omitempty"`
	ErrorCode       string         `json:"errorCode,omitempty"`
	NonCritical     bool           `json:"nonCritical,omitempty"`
	DurationMS      int64          `json:"durationMs"`
}

// Document is the full JSON rendering of a run.
type Document struct {
	RunID       string            `json:"runId"`
	PlanID      string            `json:"planId"`
	NetworkID   string            `json:"networkId"`
	Status      engine.RunStatus  `json:"status"`
	StartedAt   time.Time         `json:"startedAt"`
	CompletedAt time.Time         `json:"completedAt"`
	Summary     engine.RunSummary `json:"summary"`
	Units       []Record          `json:"units"`
}

// NewRecord converts a deployment result.
func NewRecord(result engine.DeploymentResult) Record {
	rec := Record{
		Unit:            result.Unit,
		Outcome:         result.Outcome,
		SkipReason:      string(result.SkipReason),
		Address:         result.Address,
		TransactionHash: result.TxHash,
		BlockNumber:     result.BlockNumber,
		NonCritical:     result.NonCritical,
		DurationMS:      result.Duration.Milliseconds(),
	}
	if result.Error != nil {
		rec.Error = result.Error.Error()
		rec.ErrorCode = result.Error.Code
	}
	return rec
}

// NewDocument converts a run report.
func NewDocument(report *engine.RunReport) Document {
	doc := Document{
		RunID:       report.RunID,
		PlanID:      report.PlanID,
		NetworkID:   report.NetworkID,
		Status:      report.Status,
		StartedAt:   report.StartedAt,
		CompletedAt: report.CompletedAt,
		Summary:     report.Summary,
		Units:       make([]Record, 0, len(report.Results)),
	}
	for _, result := range report.Results {
		doc.Units = append(doc.Units, NewRecord(result))
	}
	return doc
}

// WriteFile writes the JSON document for report to path, creating parent
// directories as needed.
func WriteFile(path string, report *engine.RunReport) error {
	data, err := json.MarshalIndent(NewDocument(report), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// ExitCode maps a run to a process exit status. Any failed unit yields 1,
// except that with continueOnFailure failures of non-critical units are
// tolerated. A critical unit left undeployed because something else failed
// also yields 1, as does a cancelled run.
func ExitCode(report *engine.RunReport, continueOnFailure bool) int {
	if report == nil {
		return 1
	}
	if report.Status == engine.RunStatusCancelled {
		return 1
	}
	for _, result := range report.Results {
		switch result.Outcome {
		case engine.OutcomeFailed:
			if !continueOnFailure || !result.NonCritical {
				return 1
			}
		case engine.OutcomeSkipped:
			if result.SkipReason != engine.SkipAlreadyDeployed && !result.NonCritical {
				return 1
			}
		}
	}
	return 0
}
