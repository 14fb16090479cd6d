package commands

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/chaindeploy/pkg/report"
	"github.com/openfroyo/chaindeploy/pkg/stores"
	"github.com/openfroyo/chaindeploy/pkg/telemetry"
)

const timeLayout = "2006-01-02 15:04:05"

func newRunsCommand() *cobra.Command {
	var (
		network string
		limit   int
		events  bool
	)

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "Show deployment run history",
		Long: `Show past deployment runs, most recent first.

With a run ID, the unit results of that run are shown, and with --events
its timeline as well.`,
		Example: `  # The last 10 runs
  chaindeploy runs

  # One run with its timeline
  chaindeploy runs 6f1c2d0e-... --events`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ws, err := loadWorkspace(ctx)
			if err != nil {
				return err
			}
			store, err := openStore(ctx, ws)
			if err != nil {
				return err
			}
			defer store.Close()

			reporter, err := newReporter("", telemetry.FromZerolog(log.Logger))
			if err != nil {
				return err
			}

			if len(args) == 0 {
				runs, err := store.ListRuns(ctx, stores.RunFilter{NetworkID: network, Limit: limit})
				if err != nil {
					return err
				}
				if reporter.Format() != report.FormatTable {
					reporter.RenderJSON(runs)
					return nil
				}
				renderRuns(runs)
				return nil
			}

			run, err := store.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			results, err := store.ListResults(ctx, run.ID)
			if err != nil {
				return err
			}
			var timeline []*stores.EventRecord
			if events {
				timeline, err = store.ListEvents(ctx, run.ID, 0)
				if err != nil {
					return err
				}
			}

			if reporter.Format() != report.FormatTable {
				reporter.RenderJSON(struct {
					Run     *stores.RunRecord      `json:"run"`
					Results []*stores.ResultRecord `json:"results"`
					Events  []*stores.EventRecord  `json:"events,omitempty"`
				}{run, results, timeline})
				return nil
			}
			renderRun(run, results, timeline)
			return nil
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "only runs against this network")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of runs to show")
	cmd.Flags().BoolVar(&events, "events", false, "include the event timeline of the run")

	return cmd
}

func renderRuns(runs []*stores.RunRecord) {
	table := report.NewTable(os.Stdout, "Run", "Network", "Status", "Started", "Deployed", "Skipped", "Failed")
	for _, r := range runs {
		table.Append([]string{
			r.ID,
			r.NetworkID,
			string(r.Status),
			r.StartedAt.Local().Format(timeLayout),
			strconv.Itoa(r.Deployed),
			strconv.Itoa(r.Skipped),
			strconv.Itoa(r.Failed),
		})
	}
	table.Render()
}

func renderRun(run *stores.RunRecord, results []*stores.ResultRecord, events []*stores.EventRecord) {
	fmt.Printf("Run %s on %s: %s\n", run.ID, run.NetworkID, run.Status)
	fmt.Printf("Started %s", run.StartedAt.Local().Format(timeLayout))
	if run.CompletedAt != nil {
		fmt.Printf(", took %s", run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond))
	}
	fmt.Print("\n\n")

	table := report.NewTable(os.Stdout, "Unit", "Outcome", "Address", "Transaction", "Error")
	for _, r := range results {
		detail := r.ErrorMessage
		if detail == "" && r.SkipReason != "" {
			detail = string(r.SkipReason)
		}
		table.Append([]string{r.Unit, string(r.Outcome), r.Address, r.TxHash, detail})
	}
	table.Render()

	if len(events) == 0 {
		return
	}
	fmt.Println()
	timeline := report.NewTable(os.Stdout, "Time", "Type", "Unit", "Message")
	for _, e := range events {
		timeline.Append([]string{e.Timestamp.Local().Format(timeLayout), e.Type, e.Unit, e.Message})
	}
	timeline.Render()
}
