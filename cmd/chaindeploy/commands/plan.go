package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/openfroyo/chaindeploy/pkg/config"
	"github.com/openfroyo/chaindeploy/pkg/engine"
	"github.com/openfroyo/chaindeploy/pkg/policy"
	"github.com/openfroyo/chaindeploy/pkg/report"
	"github.com/openfroyo/chaindeploy/pkg/telemetry"
)

func newPlanCommand() *cobra.Command {
	var (
		network       string
		forceRedeploy []string
		dotFile       string
		policyPaths   []string
		output        string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what a deployment would do",
		Long: `Build the deployment plan for a network without submitting anything.

The plan lists every unit in execution order with its action: deploy
(no ledger entry), skip (already deployed) or redeploy (forced). Policies
are evaluated against the plan; a denied plan exits with status 1.`,
		Example: `  # Plan a deployment to Sepolia
  chaindeploy plan --network sepolia

  # Plan a forced redeploy of a unit and its dependents, with a graph
  chaindeploy plan -n sepolia --force-redeploy WebAuthn256r1 --dot plan.dot`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := requireNetwork(network); err != nil {
				return err
			}

			ws, err := loadWorkspace(ctx)
			if err != nil {
				return err
			}
			tel, err := newTelemetry(ws, "")
			if err != nil {
				return err
			}
			defer shutdownTelemetry(ctx, tel)
			ctx = tel.WithContext(ctx)

			registry, _, err := config.LoadRegistry(ctx, ws.Registry, network)
			if err != nil {
				return err
			}

			store, err := openStore(ctx, ws)
			if err != nil {
				return err
			}
			defer store.Close()

			planner := engine.NewPlanner(store)
			plan, err := planner.BuildPlan(ctx, registry, network, engine.PlanOptions{ForceRedeploy: forceRedeploy})
			if err != nil {
				return err
			}

			pe, err := newPolicyEngine(ctx, ws, policyPaths, tel.Logger)
			if err != nil {
				return err
			}
			result, err := pe.EvaluatePlan(ctx, plan)
			if err != nil {
				return err
			}

			if dotFile != "" {
				if err := writeDOT(planner, registry, plan, dotFile); err != nil {
					return err
				}
				tel.Logger.WithField("file", dotFile).Info("Wrote dependency graph")
			}

			reporter, err := newReporter(output, tel.Logger)
			if err != nil {
				return err
			}
			if reporter.Format() == report.FormatTable {
				reporter.RenderPlan(plan)
				printPolicyResult(result)
			} else {
				reporter.RenderJSON(struct {
					Plan   *engine.DeploymentPlan `json:"plan"`
					Policy *policy.Result         `json:"policy"`
				}{plan, result})
			}

			if !result.Allowed {
				return &ExitError{Code: 1}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&network, "network", "n", "", "target network (required)")
	cmd.Flags().StringSliceVar(&forceRedeploy, "force-redeploy", nil, "redeploy a unit and its dependents (repeatable)")
	cmd.Flags().StringVar(&dotFile, "dot", "", "write the dependency graph in DOT format to this file")
	cmd.Flags().StringSliceVar(&policyPaths, "policy", nil, "additional policy file or directory (repeatable)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output format: table, json or ndjson")

	return cmd
}

// newPolicyEngine loads the built-in policies (unless disabled) and every
// policy path of the workspace plus extra.
func newPolicyEngine(ctx context.Context, ws *config.WorkspaceConfig, extra []string, logger *telemetry.Logger) (*policy.Engine, error) {
	var opts []policy.Option
	if ws.Policy.DisableBuiltins {
		opts = append(opts, policy.WithoutBuiltins())
	}
	pe, err := policy.NewEngine(logger.Zerolog(), opts...)
	if err != nil {
		return nil, err
	}
	paths := append(append([]string{}, ws.Policy.Paths...), extra...)
	if len(paths) > 0 {
		if err := pe.LoadPolicies(ctx, paths); err != nil {
			return nil, err
		}
	}
	return pe, nil
}

func writeDOT(planner *engine.Planner, registry engine.Registry, plan *engine.DeploymentPlan, path string) error {
	graph, err := planner.Graph(registry)
	if err != nil {
		return err
	}
	actions := make(map[string]engine.PlanAction, len(plan.Steps))
	for _, step := range plan.Steps {
		actions[step.Unit.Name] = step.Action
	}
	if err := os.WriteFile(path, []byte(graph.ToDOT(actions)), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func printPolicyResult(result *policy.Result) {
	if result == nil {
		return
	}
	for _, v := range result.Violations {
		fmt.Printf("✗ [%s] %s\n", v.Severity, v)
	}
	for _, e := range result.Errors {
		fmt.Printf("✗ %s\n", e)
	}
	for _, w := range result.Warnings {
		fmt.Printf("! [%s] %s\n", w.Severity, w)
	}
	if result.Allowed {
		fmt.Printf("Policies passed (%d evaluated)\n", len(result.EvaluatedPolicies))
	} else {
		fmt.Println("Plan denied by policy")
	}
}
