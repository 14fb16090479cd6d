package report

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/openfroyo/chaindeploy/pkg/engine"
	"github.com/openfroyo/chaindeploy/pkg/telemetry"
)

func sampleReport() *engine.RunReport {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	block := uint64(4242)
	return &engine.RunReport{
		RunID:       "run-1",
		PlanID:      "plan-1",
		NetworkID:   "sepolia",
		Status:      engine.RunStatusPartial,
		StartedAt:   start,
		CompletedAt: start.Add(3 * time.Second),
		Results: []engine.DeploymentResult{
			{
				Unit:       "WebAuthn256r1",
				Outcome:    engine.OutcomeSkipped,
				SkipReason: engine.SkipAlreadyDeployed,
				Address:    "0x1111111111111111111111111111111111111111",
			},
			{
				Unit:        "Secp256r1Factory",
				Outcome:     engine.OutcomeDeployed,
				Address:     "0x2222222222222222222222222222222222222222",
				TxHash:      "0xaaaa",
				BlockNumber: &block,
				Duration:    1500 * time.Millisecond,
			},
			{
				Unit:        "SimpleAccountFactory",
				Outcome:     engine.OutcomeFailed,
				TxHash:      "0xbbbb",
				Error:       engine.NewRevertedError("SimpleAccountFactory", "0xbbbb"),
				NonCritical: true,
			},
		},
		Summary: engine.RunSummary{Total: 3, Deployed: 1, Skipped: 1, Failed: 1},
	}
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	NewReporter(&buf, FormatTable, nil, WithColor(false)).Render(sampleReport())
	out := buf.String()

	for _, want := range []string{
		"UNIT", "OUTCOME",
		"WebAuthn256r1", "already_deployed",
		"0x2222222222222222222222222222222222222222", "0xaaaa",
		"SimpleAccountFactory", "failed", "(non-critical)",
		"Run run-1 on sepolia: partial (1 deployed, 1 skipped, 1 failed)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("Expected output to contain %q, got:\n%s", want, out)
		}
	}

	lines := 0
	for _, line := range strings.Split(out, "\n") {
		for _, unit := range []string{"WebAuthn256r1", "Secp256r1Factory", "SimpleAccountFactory"} {
			if strings.Contains(line, unit) {
				lines++
			}
		}
	}
	if lines != 3 {
		t.Fatalf("Expected one line per unit, got: %d", lines)
	}
}

func TestRenderTableColor(t *testing.T) {
	var buf bytes.Buffer
	NewReporter(&buf, FormatTable, nil, WithColor(true)).Render(sampleReport())
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Fatalf("Expected ANSI colour codes, got:\n%s", buf.String())
	}
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	NewReporter(&buf, FormatJSON, nil).Render(sampleReport())

	var doc struct {
		RunID  string                   `json:"runId"`
		Status string                   `json:"status"`
		Units  []map[string]interface{} `json:"units"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("Expected valid JSON, got: %v\n%s", err, buf.String())
	}
	if doc.RunID != "run-1" || doc.Status != "partial" {
		t.Fatalf("Expected run-1/partial, got: %s/%s", doc.RunID, doc.Status)
	}
	if len(doc.Units) != 3 {
		t.Fatalf("Expected 3 units, got: %d", len(doc.Units))
	}

	deployed := doc.Units[1]
	if deployed["unit"] != "Secp256r1Factory" || deployed["outcome"] != "deployed" ||
		deployed["address"] != "0x2222222222222222222222222222222222222222" ||
		deployed["transactionHash"] != "0xaaaa" {
		t.Fatalf("Unexpected deployed record: %v", deployed)
	}
	if deployed["blockNumber"].(float64) != 4242 {
		t.Fatalf("Expected block 4242, got: %v", deployed["blockNumber"])
	}

	failed := doc.Units[2]
	if failed["errorCode"] != engine.ErrCodeReverted {
		t.Fatalf("Expected error code %s, got: %v", engine.ErrCodeReverted, failed["errorCode"])
	}
	if msg, _ := failed["error"].(string); !strings.Contains(msg, "reverted") {
		t.Fatalf("Expected revert message, got: %v", failed["error"])
	}
}

func TestRenderNDJSON(t *testing.T) {
	var buf bytes.Buffer
	NewReporter(&buf, FormatNDJSON, nil).Render(sampleReport())

	scanner := bufio.NewScanner(&buf)
	var units []string
	for scanner.Scan() {
		var rec Record
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("Expected JSON line, got: %v", err)
		}
		units = append(units, rec.Unit)
	}
	if strings.Join(units, ",") != "WebAuthn256r1,Secp256r1Factory,SimpleAccountFactory" {
		t.Fatalf("Expected units in plan order, got: %v", units)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRenderErrorsAreLogged(t *testing.T) {
	var logs bytes.Buffer
	logger := telemetry.NewLoggerWithWriter(telemetry.LoggingConfig{Level: "debug", Format: "json"}, &logs)

	for _, format := range []Format{FormatTable, FormatJSON, FormatNDJSON} {
		logs.Reset()
		NewReporter(failingWriter{}, format, logger).Render(sampleReport())
		if !strings.Contains(logs.String(), "disk full") {
			t.Fatalf("Expected %s write failure to be logged, got: %s", format, logs.String())
		}
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "sepolia.json")
	if err := WriteFile(path, sampleReport()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read report: %v", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("Expected valid JSON, got: %v", err)
	}
	if doc.Summary.Deployed != 1 || len(doc.Units) != 3 {
		t.Fatalf("Unexpected document: %+v", doc)
	}
}

func TestExitCode(t *testing.T) {
	failedCritical := sampleReport()
	failedCritical.Results[2].NonCritical = false

	succeeded := sampleReport()
	succeeded.Results = succeeded.Results[:2]
	succeeded.Status = engine.RunStatusSucceeded

	cancelled := sampleReport()
	cancelled.Results = cancelled.Results[:2]
	cancelled.Status = engine.RunStatusCancelled

	// A critical unit depending on the failed non-critical one never ran.
	criticalDependent := sampleReport()
	criticalDependent.Results = append(criticalDependent.Results, engine.DeploymentResult{
		Unit:       "AccountRegistry",
		Outcome:    engine.OutcomeSkipped,
		SkipReason: engine.SkipUpstreamFailure,
	})
	criticalDependent.Status = engine.RunStatusFailed

	nonCriticalDependent := sampleReport()
	nonCriticalDependent.Results = append(nonCriticalDependent.Results, engine.DeploymentResult{
		Unit:        "AccountRegistry",
		Outcome:     engine.OutcomeSkipped,
		SkipReason:  engine.SkipUpstreamFailure,
		NonCritical: true,
	})

	tests := []struct {
		name              string
		report            *engine.RunReport
		continueOnFailure bool
		want              int
	}{
		{"critical unit skipped behind non-critical failure", criticalDependent, true, 1},
		{"non-critical unit skipped behind non-critical failure", nonCriticalDependent, true, 0},
		{"success", succeeded, false, 0},
		{"non-critical failure halts by default", sampleReport(), false, 1},
		{"non-critical failure tolerated", sampleReport(), true, 0},
		{"critical failure", failedCritical, true, 1},
		{"cancelled", cancelled, true, 1},
		{"nil report", nil, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.report, tt.continueOnFailure); got != tt.want {
				t.Fatalf("Expected exit code %d, got: %d", tt.want, got)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("JSON"); err != nil || f != FormatJSON {
		t.Fatalf("Expected json, got: %v, %v", f, err)
	}
	if f, err := ParseFormat(""); err != nil || f != FormatTable {
		t.Fatalf("Expected table default, got: %v, %v", f, err)
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatal("Expected error for unknown format, got nil")
	}
}

func TestRenderPlan(t *testing.T) {
	plan := &engine.DeploymentPlan{
		ID:        "plan-1",
		NetworkID: "sepolia",
		Steps: []engine.PlanStep{
			{Position: 0, Unit: engine.UnitSpec{Name: "WebAuthn256r1"}, Action: engine.ActionSkip, Reason: "already deployed"},
			{Position: 1, Unit: engine.UnitSpec{Name: "Secp256r1Factory", Args: []engine.ArgSpec{
				engine.Literal("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789"), engine.Ref("WebAuthn256r1"),
			}}, Action: engine.ActionDeploy},
		},
		Summary: engine.PlanSummary{Total: 2, ToDeploy: 1, ToSkip: 1},
	}

	var buf bytes.Buffer
	NewReporter(&buf, FormatTable, nil, WithColor(false)).RenderPlan(plan)
	out := buf.String()
	if !strings.Contains(out, "@WebAuthn256r1") {
		t.Fatalf("Expected reference argument in output, got:\n%s", out)
	}
	if !strings.Contains(out, "1 to deploy, 0 to redeploy, 1 unchanged") {
		t.Fatalf("Expected plan summary, got:\n%s", out)
	}
}
