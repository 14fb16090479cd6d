package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/chaindeploy/pkg/chain"
	"github.com/openfroyo/chaindeploy/pkg/config"
	"github.com/openfroyo/chaindeploy/pkg/engine"
	"github.com/openfroyo/chaindeploy/pkg/telemetry"
)

func newValidateCommand() *cobra.Command {
	var (
		network       string
		watch         bool
		skipArtifacts bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the workspace, registry and policies",
		Long: `Validate the workspace without touching any network.

This command checks:
  - Workspace and registry syntax and schema conformance
  - Variables and environment references for each network
  - Dependency references and cycles
  - Artifacts: existence and constructor arity and types
  - Policy files compile

With --watch the checks are repeated whenever a workspace, registry or
policy file changes.`,
		Example: `  # Validate for every configured network
  chaindeploy validate

  # Validate one network and keep watching
  chaindeploy validate --network sepolia --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := telemetry.FromZerolog(log.Logger)

			ws, err := loadWorkspace(ctx)
			if err != nil {
				return err
			}

			runOnce := func() error {
				// Reload so that edits to the workspace itself are picked up.
				current, err := loadWorkspace(ctx)
				if err != nil {
					return err
				}
				return validateWorkspace(ctx, current, network, skipArtifacts, logger)
			}

			err = runOnce()
			reportValidation(err)
			if !watch {
				if err != nil {
					return &ExitError{Code: 1}
				}
				return nil
			}

			log.Info().Strs("paths", ws.WatchPaths()).Msg("Watching for changes (Ctrl+C to stop)")
			return config.Watch(ctx, ws.WatchPaths(), config.DefaultDebounce, logger, func() {
				reportValidation(runOnce())
			})
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "validate for this network only")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "revalidate on file changes")
	cmd.Flags().BoolVar(&skipArtifacts, "skip-artifacts", false, "do not check compiled artifacts")

	return cmd
}

func validateWorkspace(ctx context.Context, ws *config.WorkspaceConfig, network string, skipArtifacts bool, logger *telemetry.Logger) error {
	networks := ws.NetworkIDs()
	if network != "" {
		if _, ok := ws.Networks[network]; !ok {
			return engine.NewConfigError(fmt.Sprintf("unknown network %q (configured: %v)", network, networks), nil)
		}
		networks = []string{network}
	}

	parsed, err := config.NewParser().Parse(ctx, ws.Registry)
	if err != nil {
		return engine.NewConfigError("failed to read registry", err)
	}
	if err := parsed.Err(); err != nil {
		return err
	}

	var artifacts *chain.ArtifactStore
	if !skipArtifacts {
		artifacts = chain.NewArtifactStore(ws.ArtifactsDir)
	}

	for _, id := range networks {
		registry, err := parsed.Build(id)
		if err != nil {
			return err
		}
		units, err := registry.ListUnits()
		if err != nil {
			return err
		}
		ordered, err := engine.Resolve(units)
		if err != nil {
			return err
		}
		if artifacts != nil {
			if err := chain.Verify(artifacts, ordered); err != nil {
				return err
			}
		}
		log.Debug().Str("network", id).Int("units", len(ordered)).Msg("Registry valid")
	}

	pe, err := newPolicyEngine(ctx, ws, nil, logger)
	if err != nil {
		return err
	}

	log.Info().
		Strs("networks", networks).
		Int("units", len(parsed.Document.Units)).
		Int("policies", len(pe.ListPolicies())).
		Msg("Workspace is valid")
	return nil
}

func reportValidation(err error) {
	if err == nil {
		fmt.Println("✓ Configuration is valid")
		return
	}
	fmt.Printf("✗ %v\n", err)
}
