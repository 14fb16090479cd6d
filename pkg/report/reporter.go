package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/openfroyo/chaindeploy/pkg/engine"
	"github.com/openfroyo/chaindeploy/pkg/telemetry"
)

// Format selects the rendering.
type Format string

const (
	FormatTable  Format = "table"
	FormatJSON   Format = "json"
	FormatNDJSON Format = "ndjson"
)

// ParseFormat validates an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatNDJSON:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown output format %q (expected table, json or ndjson)", s)
	}
}

// Reporter renders run reports, plans and ledger listings.
type Reporter struct {
	out    io.Writer
	format Format
	logger *telemetry.Logger
	color  bool
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithColor forces coloured outcomes on or off. By default colour follows
// terminal detection.
func WithColor(enabled bool) Option {
	return func(r *Reporter) { r.color = enabled }
}

// NewReporter creates a reporter writing to out.
func NewReporter(out io.Writer, format Format, logger *telemetry.Logger, opts ...Option) *Reporter {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	r := &Reporter{
		out:    out,
		format: format,
		logger: logger.NewComponentLogger("reporter"),
		color:  !color.NoColor,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Format returns the configured output format.
func (r *Reporter) Format() Format {
	return r.format
}

// Render prints report. Failures are logged and never returned.
func (r *Reporter) Render(report *engine.RunReport) {
	if report == nil {
		return
	}
	w := &errWriter{w: r.out}
	switch r.format {
	case FormatJSON:
		r.encodeJSON(w, NewDocument(report))
	case FormatNDJSON:
		enc := json.NewEncoder(w)
		for _, result := range report.Results {
			if err := enc.Encode(NewRecord(result)); err != nil {
				w.record(err)
				break
			}
		}
	default:
		r.renderRunTable(w, report)
	}
	r.logFailure(w.err, "run report")
}

func (r *Reporter) renderRunTable(w *errWriter, report *engine.RunReport) {
	table := NewTable(w, "Unit", "Outcome", "Address / Reason", "Transaction")
	for _, result := range report.Results {
		table.Append([]string{
			result.Unit,
			r.outcome(result.Outcome),
			detail(result),
			result.TxHash,
		})
	}
	table.Render()

	s := report.Summary
	fmt.Fprintf(w, "\nRun %s on %s: %s (%d deployed, %d skipped, %d failed) in %s\n",
		report.RunID, report.NetworkID, r.status(report.Status),
		s.Deployed, s.Skipped, s.Failed,
		report.CompletedAt.Sub(report.StartedAt).Round(time.Millisecond))
}

// detail is the third column: address for deployed and skipped units, the
// error for failed ones.
func detail(result engine.DeploymentResult) string {
	switch result.Outcome {
	case engine.OutcomeFailed:
		if result.Error == nil {
			return "unknown error"
		}
		msg := result.Error.Message
		if result.Error.Err != nil {
			msg += ": " + result.Error.Err.Error()
		}
		if result.NonCritical {
			msg += " (non-critical)"
		}
		return msg
	case engine.OutcomeSkipped:
		if result.Address != "" {
			return result.Address + " (" + string(result.SkipReason) + ")"
		}
		return string(result.SkipReason)
	default:
		return result.Address
	}
}

// RenderPlan prints a plan as a table or JSON.
func (r *Reporter) RenderPlan(plan *engine.DeploymentPlan) {
	if plan == nil {
		return
	}
	w := &errWriter{w: r.out}
	if r.format != FormatTable {
		r.encodeJSON(w, plan)
		r.logFailure(w.err, "plan")
		return
	}

	table := NewTable(w, "#", "Unit", "Action", "Args", "Reason")
	for _, step := range plan.Steps {
		args := make([]string, 0, len(step.Unit.Args))
		for _, arg := range step.Unit.Args {
			args = append(args, arg.String())
		}
		table.Append([]string{
			strconv.Itoa(step.Position + 1),
			step.Unit.Name,
			r.action(step.Action),
			strings.Join(args, ", "),
			step.Reason,
		})
	}
	table.Render()
	fmt.Fprintf(w, "\nPlan for %s: %d to deploy, %d to redeploy, %d unchanged\n",
		plan.NetworkID, plan.Summary.ToDeploy, plan.Summary.ToRedeploy, plan.Summary.ToSkip)
	if plan.Summary.Blocked > 0 {
		fmt.Fprintf(w, "%d blocked by unresolved transactions; see 'chaindeploy ledger pending'\n", plan.Summary.Blocked)
	}
	r.logFailure(w.err, "plan")
}

// RenderEntries prints ledger entries.
func (r *Reporter) RenderEntries(entries []*engine.LedgerEntry) {
	w := &errWriter{w: r.out}
	if r.format != FormatTable {
		if entries == nil {
			entries = []*engine.LedgerEntry{}
		}
		r.encodeJSON(w, entries)
		r.logFailure(w.err, "ledger entries")
		return
	}

	table := NewTable(w, "Network", "Unit", "Address", "Transaction", "Block", "Deployed At")
	for _, e := range entries {
		block := ""
		if e.BlockNumber != nil {
			block = strconv.FormatUint(*e.BlockNumber, 10)
		}
		table.Append([]string{
			e.NetworkID,
			e.UnitName,
			e.Address,
			e.TxHash,
			block,
			e.DeployedAt.Format("2006-01-02 15:04:05"),
		})
	}
	table.Render()
	r.logFailure(w.err, "ledger entries")
}

// RenderJSON encodes any value as indented JSON.
func (r *Reporter) RenderJSON(v interface{}) {
	w := &errWriter{w: r.out}
	r.encodeJSON(w, v)
	r.logFailure(w.err, "json")
}

func (r *Reporter) encodeJSON(w *errWriter, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		w.record(err)
	}
}

func (r *Reporter) logFailure(err error, what string) {
	if err != nil {
		r.logger.WithError(err).Warnf("Failed to render %s", what)
	}
}

func (r *Reporter) paint(attr color.Attribute, s string) string {
	c := color.New(attr)
	if r.color {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c.Sprint(s)
}

func (r *Reporter) outcome(o engine.Outcome) string {
	switch o {
	case engine.OutcomeDeployed:
		return r.paint(color.FgGreen, string(o))
	case engine.OutcomeFailed:
		return r.paint(color.FgRed, string(o))
	default:
		return r.paint(color.FgYellow, string(o))
	}
}

func (r *Reporter) status(s engine.RunStatus) string {
	switch s {
	case engine.RunStatusSucceeded:
		return r.paint(color.FgGreen, string(s))
	case engine.RunStatusPartial:
		return r.paint(color.FgYellow, string(s))
	default:
		return r.paint(color.FgRed, string(s))
	}
}

func (r *Reporter) action(a engine.PlanAction) string {
	switch a {
	case engine.ActionDeploy:
		return r.paint(color.FgGreen, string(a))
	case engine.ActionRedeploy:
		return r.paint(color.FgYellow, string(a))
	case engine.ActionBlocked:
		return r.paint(color.FgRed, string(a))
	default:
		return string(a)
	}
}

// NewTable returns a borderless left-aligned table with the given header.
func NewTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetColumnSeparator("")
	table.SetCenterSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	return table
}

// errWriter remembers the first write error; tablewriter drops them.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}

func (e *errWriter) record(err error) {
	if e.err == nil {
		e.err = err
	}
}
