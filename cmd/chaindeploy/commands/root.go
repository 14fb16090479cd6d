package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/chaindeploy/pkg/config"
	"github.com/openfroyo/chaindeploy/pkg/report"
	"github.com/openfroyo/chaindeploy/pkg/stores"
	"github.com/openfroyo/chaindeploy/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool

	buildVersion = "dev"
)

// ExitError carries a process exit status without an error message, for
// commands whose outcome was already reported.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	buildVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "chaindeploy",
		Short: "chaindeploy - dependency-ordered contract deployment",
		Long: `chaindeploy deploys a registry of interdependent smart contracts to an
EVM network in dependency order, wiring constructor arguments from the
addresses of earlier deployments.

Features:
  - Registry in CUE, YAML or JSON, validated against a CUE schema
  - Deterministic topological ordering with cycle detection
  - Per-network SQLite ledger: re-runs skip what is already deployed
  - Resume after partial failure, forced redeploys of a subtree
  - OPA/Rego policy gate evaluated before anything is submitted`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultWorkspaceFile, "workspace file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newDeployCommand())
	rootCmd.AddCommand(newLedgerCommand())
	rootCmd.AddCommand(newRunsCommand())
	rootCmd.AddCommand(newCallCommand())

	return rootCmd
}

// loadWorkspace reads the workspace named by --config.
func loadWorkspace(ctx context.Context) (*config.WorkspaceConfig, error) {
	log.Debug().Str("config", configPath).Msg("Loading workspace")
	return config.LoadWorkspace(ctx, configPath)
}

// newTelemetry builds logging, tracing, metrics and events for a command
// from the workspace telemetry section.
func newTelemetry(ws *config.WorkspaceConfig, metricsTextfile string) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = buildVersion
	if os.Getenv("CI") != "" {
		cfg = telemetry.CIConfig()
		cfg.ServiceVersion = buildVersion
	}

	cfg.Logging.Level = ws.Telemetry.LogLevel
	if verbose {
		cfg.Logging.Level = "debug"
	}
	cfg.Logging.Format = ws.Telemetry.LogFormat

	if ws.Telemetry.Tracing != "none" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Exporter = ws.Telemetry.Tracing
		cfg.Tracing.Endpoint = ws.Telemetry.OTLPEndpoint
	}

	cfg.Metrics.Textfile = ws.Telemetry.MetricsTextfile
	if metricsTextfile != "" {
		cfg.Metrics.Textfile = metricsTextfile
	}

	return telemetry.NewTelemetry(cfg)
}

// shutdownTelemetry flushes telemetry even when the command context was
// cancelled.
func shutdownTelemetry(ctx context.Context, tel *telemetry.Telemetry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		tel.Logger.WithError(err).Warn("Failed to shut down telemetry")
	}
}

// openStore opens the workspace ledger database and applies migrations.
func openStore(ctx context.Context, ws *config.WorkspaceConfig) (*stores.SQLiteStore, error) {
	store, err := stores.OpenSQLite(ctx, stores.Config{
		Path:        ws.Ledger.Path,
		BusyTimeout: ws.Ledger.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger %s: %w", ws.Ledger.Path, err)
	}
	return store, nil
}

// newReporter picks the output format from --output, falling back to --json.
func newReporter(output string, logger *telemetry.Logger) (*report.Reporter, error) {
	if output == "" && jsonOutput {
		output = string(report.FormatJSON)
	}
	format, err := report.ParseFormat(output)
	if err != nil {
		return nil, err
	}
	return report.NewReporter(os.Stdout, format, logger), nil
}

func requireNetwork(network string) error {
	if network == "" {
		return fmt.Errorf("--network is required")
	}
	return nil
}
