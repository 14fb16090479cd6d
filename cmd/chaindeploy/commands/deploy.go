package commands

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/chaindeploy/pkg/chain"
	"github.com/openfroyo/chaindeploy/pkg/config"
	"github.com/openfroyo/chaindeploy/pkg/engine"
	"github.com/openfroyo/chaindeploy/pkg/report"
	"github.com/openfroyo/chaindeploy/pkg/stores"
	"github.com/openfroyo/chaindeploy/pkg/telemetry"
)

func newDeployCommand() *cobra.Command {
	var (
		network           string
		forceRedeploy     []string
		continueOnFailure bool
		confirmTimeout    time.Duration
		output            string
		reportFile        string
		policyPaths       []string
		metricsTextfile   string
	)

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the registry to a network",
		Long: `Deploy every unit of the registry that the ledger does not record yet, in
dependency order, one at a time.

Each deployed address is written to the ledger before the next unit starts,
so an interrupted or failed run can be resumed by running deploy again.
By default the run halts at the first failure; with --continue-on-failure
units that do not depend on a failed unit are still deployed.

A confirmation timeout is never retried automatically: the transaction may
still be mined. Check the transaction and record its address with
'chaindeploy ledger record' before running again.`,
		Example: `  # Deploy to Sepolia
  chaindeploy deploy --network sepolia

  # Redeploy WebAuthn256r1 and everything that depends on it
  chaindeploy deploy -n sepolia --force-redeploy WebAuthn256r1

  # CI: JSON report, keep going past non-critical failures
  chaindeploy deploy -n sepolia --continue-on-failure -o json --report-file out/deploy.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := requireNetwork(network); err != nil {
				return err
			}

			ws, err := loadWorkspace(ctx)
			if err != nil {
				return err
			}
			netCfg, err := ws.Network(network)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("continue-on-failure") {
				continueOnFailure = ws.Deploy.ContinueOnFailure
			}
			if confirmTimeout <= 0 {
				confirmTimeout = ws.Deploy.ConfirmTimeout
			}

			tel, err := newTelemetry(ws, metricsTextfile)
			if err != nil {
				return err
			}
			defer shutdownTelemetry(ctx, tel)
			ctx = tel.WithContext(ctx)
			logger := tel.Logger.WithNetwork(network)

			registry, _, err := config.LoadRegistry(ctx, ws.Registry, network)
			if err != nil {
				return err
			}
			units, err := registry.ListUnits()
			if err != nil {
				return err
			}
			artifacts := chain.NewArtifactStore(ws.ArtifactsDir)
			if err := chain.Verify(artifacts, units); err != nil {
				return err
			}

			store, err := openStore(ctx, ws)
			if err != nil {
				return err
			}
			defer store.Close()
			tel.Events.Subscribe(stores.EventRecorder(store, tel.Logger), nil)

			plan, err := engine.NewPlanner(store).BuildPlan(ctx, registry, network,
				engine.PlanOptions{ForceRedeploy: forceRedeploy})
			if err != nil {
				return err
			}

			reporter, err := newReporter(output, tel.Logger)
			if err != nil {
				return err
			}

			if err := enforcePolicies(ctx, ws, policyPaths, plan, tel); err != nil {
				return err
			}

			if plan.Summary.Blocked > 0 {
				logger.WithField("blocked", plan.Summary.Blocked).
					Warn("Units with unresolved transactions will not be submitted; see 'chaindeploy ledger pending'")
			} else if !plan.HasChanges() {
				logger.Info("Nothing to deploy; every unit is recorded in the ledger")
			}

			net, err := dialNetwork(ctx, ws, network, netCfg, artifacts, logger)
			if err != nil {
				return err
			}

			executor := engine.NewExecutor(store, net,
				engine.WithLogger(tel.Logger),
				engine.WithMetrics(tel.Metrics),
				engine.WithTracer(tel.Tracer),
				engine.WithEvents(tel.Events),
				engine.WithRunRecorder(store),
				engine.WithLockTTL(ws.Deploy.LockTTL),
			)

			rep, err := executor.Execute(ctx, plan, engine.ExecuteOptions{
				ContinueOnFailure: continueOnFailure,
				ConfirmTimeout:    confirmTimeout,
			})
			if err != nil {
				return err
			}

			reporter.Render(rep)
			if reportFile != "" {
				if err := report.WriteFile(reportFile, rep); err != nil {
					logger.WithError(err).Error("Failed to write report file")
				}
			}

			if code := report.ExitCode(rep, continueOnFailure); code != 0 {
				return &ExitError{Code: code}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "target network (required)")
	cmd.Flags().StringSliceVar(&forceRedeploy, "force-redeploy", nil, "redeploy a unit and its dependents (repeatable)")
	cmd.Flags().BoolVar(&continueOnFailure, "continue-on-failure", false, "keep deploying units independent of a failure")
	cmd.Flags().DurationVar(&confirmTimeout, "confirm-timeout", 0, "confirmation timeout per unit (default from workspace)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output format: table, json or ndjson")
	cmd.Flags().StringVar(&reportFile, "report-file", "", "also write the JSON report to this file")
	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "additional policy file or directory (repeatable)")
	cmd.Flags().StringVar(&metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file after the run")

	return cmd
}

// enforcePolicies denies the plan before any transaction is signed.
func enforcePolicies(ctx context.Context, ws *config.WorkspaceConfig, extra []string, plan *engine.DeploymentPlan, tel *telemetry.Telemetry) error {
	pe, err := newPolicyEngine(ctx, ws, extra, tel.Logger)
	if err != nil {
		return err
	}
	result, err := pe.Enforce(ctx, plan)
	if err == nil {
		return nil
	}
	if result != nil {
		printPolicyResult(result)
		tel.Metrics.RecordError(string(engine.ErrorClassPermanent), engine.ErrCodePolicyDenied)
		_ = tel.Events.Publish(telemetry.Event{
			Type:      telemetry.EventTypePolicyDenied,
			Source:    "policy",
			NetworkID: plan.NetworkID,
			Message:   err.Error(),
			Level:     telemetry.EventLevelError,
			Data:      map[string]interface{}{"plan_id": plan.ID},
		})
	}
	return err
}

// dialNetwork connects to the network with the configured signer.
func dialNetwork(ctx context.Context, ws *config.WorkspaceConfig, id string, netCfg config.NetworkConfig, artifacts chain.ArtifactSource, logger *telemetry.Logger) (*chain.EthNetwork, error) {
	signer, err := chain.LocalSignerFromEnv(ws.Signer.PrivateKeyEnv, big.NewInt(netCfg.ChainID))
	if err != nil {
		return nil, engine.NewConfigError("failed to load signer", err)
	}
	net, err := chain.Dial(ctx, chain.NetworkConfig{
		ID:            id,
		ChainID:       netCfg.ChainID,
		RPCURL:        netCfg.RPCURL,
		Confirmations: netCfg.Confirmations,
		PollInterval:  netCfg.PollInterval,
	}, signer, artifacts, chain.WithNetworkLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	logger.WithField("deployer", signer.Address().Hex()).
		WithField("chain_id", netCfg.ChainID).
		Info("Connected to network")
	return net, nil
}
