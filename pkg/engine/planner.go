package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PlanOptions controls plan construction.
type PlanOptions struct {
	// ForceRedeploy lists units to redeploy even when the ledger already
	// records them. Their transitive dependents are redeployed as well, so
	// they are re-evaluated against the new addresses.
	ForceRedeploy []string
}

// Planner builds deployment plans from a registry and the ledger.
type Planner struct {
	ledger Ledger
}

// NewPlanner creates a planner reading existing entries from ledger.
func NewPlanner(ledger Ledger) *Planner {
	return &Planner{ledger: ledger}
}

// BuildPlan resolves the registry into topological order and decides, for
// every unit, whether it is deployed, redeployed or skipped on network.
// Units already recorded in the ledger remain in the plan marked skip.
// When the ledger journals submissions, an unrecorded unit with a pending
// submission is marked blocked unless it is forced.
func (p *Planner) BuildPlan(ctx context.Context, registry Registry, network string, opts PlanOptions) (*DeploymentPlan, error) {
	if network == "" {
		return nil, NewConfigError("network id is required", nil)
	}

	units, err := registry.ListUnits()
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}

	graph, err := NewDAGBuilder().Build(units)
	if err != nil {
		return nil, err
	}

	forced, err := p.forcedUnits(graph, opts.ForceRedeploy)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]UnitSpec, len(units))
	for _, u := range units {
		byName[u.Name] = u
	}

	journal, _ := p.ledger.(SubmissionJournal)

	plan := &DeploymentPlan{
		ID:        uuid.New().String(),
		NetworkID: network,
		CreatedAt: time.Now().UTC(),
		Steps:     make([]PlanStep, 0, len(graph.Order)),
	}

	for i, name := range graph.Order {
		existing, err := p.ledger.Get(ctx, name, network)
		if err != nil {
			return nil, fmt.Errorf("failed to read ledger for %s: %w", name, err)
		}

		var pending *PendingSubmission
		if existing == nil && journal != nil {
			pending, err = journal.PendingSubmission(ctx, name, network)
			if err != nil {
				return nil, fmt.Errorf("failed to read pending submission for %s: %w", name, err)
			}
		}

		step := PlanStep{
			Position: i,
			Level:    graph.Levels[name],
			Unit:     byName[name],
			Existing: existing,
			Forced:   forced[name],
		}

		switch {
		case existing != nil && forced[name]:
			step.Action = ActionRedeploy
			step.Reason = p.forceReason(name, opts.ForceRedeploy)
			plan.Summary.ToRedeploy++
		case existing != nil:
			step.Action = ActionSkip
			step.Reason = fmt.Sprintf("already deployed at %s", existing.Address)
			plan.Summary.ToSkip++
		case pending != nil && !forced[name]:
			step.Action = ActionBlocked
			step.Reason = fmt.Sprintf("transaction %s has no known outcome", pending.TxHash)
			plan.Summary.Blocked++
		case pending != nil:
			step.Action = ActionDeploy
			step.Reason = fmt.Sprintf("forced despite unresolved transaction %s", pending.TxHash)
			plan.Summary.ToDeploy++
		default:
			step.Action = ActionDeploy
			step.Reason = "no ledger entry"
			plan.Summary.ToDeploy++
		}

		plan.Steps = append(plan.Steps, step)
	}

	plan.Summary.Total = len(plan.Steps)
	return plan, nil
}

// Graph returns the dependency graph of the registry, for visualisation.
func (p *Planner) Graph(registry Registry) (*Graph, error) {
	units, err := registry.ListUnits()
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	return NewDAGBuilder().Build(units)
}

// forcedUnits expands the force list to its transitive dependents.
func (p *Planner) forcedUnits(graph *Graph, names []string) (map[string]bool, error) {
	if len(names) == 0 {
		return map[string]bool{}, nil
	}

	for _, name := range names {
		if _, ok := graph.Levels[name]; !ok {
			return nil, NewConfigError(fmt.Sprintf("cannot force redeploy of unknown unit %s", name), nil).
				WithUnit(name)
		}
	}

	return graph.TransitiveDependents(names...), nil
}

func (p *Planner) forceReason(name string, requested []string) string {
	for _, r := range requested {
		if r == name {
			return "forced redeploy"
		}
	}
	return fmt.Sprintf("dependent of forced unit (%s)", strings.Join(requested, ", "))
}
