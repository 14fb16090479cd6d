package engine

import (
	"fmt"
	"time"
)

// UnitSpec is the declarative description of one deployable unit.
type UnitSpec struct {
	// Name is the unique identifier of the unit within a registry.
	Name string `json:"name"`

	// Artifact is the opaque reference handed to the Network collaborator
	// (for EVM networks, the compiled contract name). Defaults to Name.
	Artifact string `json:"artifact,omitempty"`

	// Args are the ordered constructor arguments.
	Args []ArgSpec `json:"args,omitempty"`

	// NonCritical units do not affect the exit status of a run executed with
	// continue-on-failure.
	NonCritical bool `json:"non_critical,omitempty"`

	// Description is free-form documentation.
	Description string `json:"description,omitempty"`
}

// ArtifactRef returns the artifact reference, falling back to the unit name.
func (u UnitSpec) ArtifactRef() string {
	if u.Artifact != "" {
		return u.Artifact
	}
	return u.Name
}

// Dependencies returns the names of the units referenced by the arguments, in
// argument order and without duplicates.
func (u UnitSpec) Dependencies() []string {
	deps := make([]string, 0)
	seen := make(map[string]bool)
	for _, arg := range u.Args {
		if arg.IsRef() && !seen[arg.DependsOn] {
			seen[arg.DependsOn] = true
			deps = append(deps, arg.DependsOn)
		}
	}
	return deps
}

// ArgSpec is a single constructor argument: either a literal value or a
// reference to another unit's deployed address.
type ArgSpec struct {
	// Value holds a literal (string, number, bool, or address string).
	Value interface{} `json:"value,omitempty"`

	// DependsOn names the unit whose address substitutes this argument.
	DependsOn string `json:"dependsOn,omitempty"`
}

// Literal returns a literal argument.
func Literal(v interface{}) ArgSpec {
	return ArgSpec{Value: v}
}

// Ref returns an argument referencing the deployed address of unit.
func Ref(unit string) ArgSpec {
	return ArgSpec{DependsOn: unit}
}

// IsRef reports whether the argument references another unit.
func (a ArgSpec) IsRef() bool {
	return a.DependsOn != ""
}

// String renders the argument for plans and logs.
func (a ArgSpec) String() string {
	if a.IsRef() {
		return "@" + a.DependsOn
	}
	return fmt.Sprintf("%v", a.Value)
}

// LedgerEntry is the durable record that a unit was deployed on a network.
type LedgerEntry struct {
	// UnitName is the deployed unit.
	UnitName string `json:"unit_name"`

	// NetworkID is the chain the unit was deployed on.
	NetworkID string `json:"network_id"`

	// Address is the chain-assigned address of the deployed unit.
	Address string `json:"address"`

	// TxHash is the hash of the deployment transaction.
	TxHash string `json:"tx_hash"`

	// BlockNumber is the block the deployment was included in, when known.
	BlockNumber *uint64 `json:"block_number,omitempty"`

	// DeployedAt is when the entry was recorded.
	DeployedAt time.Time `json:"deployed_at"`

	// RunID is the run that produced the entry; empty for manual records.
	RunID string `json:"run_id,omitempty"`
}

// PlanAction is what the executor intends to do with a unit.
type PlanAction string

const (
	// ActionDeploy submits a new deployment.
	ActionDeploy PlanAction = "deploy"

	// ActionRedeploy submits a deployment replacing an existing ledger entry.
	ActionRedeploy PlanAction = "redeploy"

	// ActionSkip leaves an already deployed unit untouched.
	ActionSkip PlanAction = "skip"

	// ActionBlocked holds back a unit whose previous deployment transaction
	// has no known outcome. It is not submitted again until the operator
	// records or discards that transaction, or forces a redeploy.
	ActionBlocked PlanAction = "blocked"
)

// PlanStep is one unit of a deployment plan, in execution order.
type PlanStep struct {
	// Position is the zero-based index of the step in topological order.
	Position int `json:"position"`

	// Level is the dependency depth of the unit (roots are level 0).
	Level int `json:"level"`

	// Unit is the unit specification.
	Unit UnitSpec `json:"unit"`

	// Action is the planned action.
	Action PlanAction `json:"action"`

	// Reason explains the action.
	Reason string `json:"reason,omitempty"`

	// Existing is the ledger entry observed at planning time, if any.
	Existing *LedgerEntry `json:"existing,omitempty"`

	// Forced marks units selected for redeployment by the operator or as
	// dependents of such a unit.
	Forced bool `json:"forced,omitempty"`
}

// DeploymentPlan is an ordered sequence of units for one network.
type DeploymentPlan struct {
	// ID is the unique identifier for this plan.
	ID string `json:"id"`

	// NetworkID is the target network.
	NetworkID string `json:"network_id"`

	// CreatedAt is when the plan was built.
	CreatedAt time.Time `json:"created_at"`

	// Steps are the units in topological order.
	Steps []PlanStep `json:"steps"`

	// Summary provides counts per action.
	Summary PlanSummary `json:"summary"`
}

// PlanSummary provides statistics about a plan.
type PlanSummary struct {
	Total      int `json:"total"`
	ToDeploy   int `json:"to_deploy"`
	ToRedeploy int `json:"to_redeploy"`
	ToSkip     int `json:"to_skip"`
	Blocked    int `json:"blocked"`
}

// HasChanges reports whether executing the plan would submit anything.
func (p *DeploymentPlan) HasChanges() bool {
	return p.Summary.ToDeploy+p.Summary.ToRedeploy > 0
}

// Step returns the step for the named unit.
func (p *DeploymentPlan) Step(name string) (*PlanStep, bool) {
	for i := range p.Steps {
		if p.Steps[i].Unit.Name == name {
			return &p.Steps[i], true
		}
	}
	return nil, false
}

// DeploymentResult is the terminal outcome of one unit in a run.
type DeploymentResult struct {
	// Unit is the unit name.
	Unit string `json:"unit"`

	// Outcome is the terminal outcome.
	Outcome Outcome `json:"outcome"`

	// SkipReason is set when Outcome is OutcomeSkipped.
	SkipReason SkipReason `json:"skip_reason,omitempty"`

	// Address is the deployed (or previously recorded) address.
	Address string `json:"address,omitempty"`

	// TxHash is the deployment transaction hash, if one was submitted.
	TxHash string `json:"transaction_hash,omitempty"`

	// BlockNumber is the inclusion block, if known.
	BlockNumber *uint64 `json:"block_number,omitempty"`

	// Error is set when Outcome is OutcomeFailed.
	Error *EngineError `json:"error,omitempty"`

	// NonCritical mirrors the unit flag for exit status decisions.
	NonCritical bool `json:"non_critical,omitempty"`

	// StartedAt is when the unit left Pending.
	StartedAt time.Time `json:"started_at"`

	// Duration is the time spent on the unit.
	Duration time.Duration `json:"duration"`
}

// RunReport is the outcome of executing a plan.
type RunReport struct {
	// RunID is the unique identifier for this run.
	RunID string `json:"run_id"`

	// PlanID is the executed plan.
	PlanID string `json:"plan_id"`

	// NetworkID is the target network.
	NetworkID string `json:"network_id"`

	// Status is the overall run status.
	Status RunStatus `json:"status"`

	// StartedAt is when execution began.
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when execution ended.
	CompletedAt time.Time `json:"completed_at"`

	// Results holds one result per plan step, in plan order.
	Results []DeploymentResult `json:"results"`

	// Summary provides counts per outcome.
	Summary RunSummary `json:"summary"`
}

// RunSummary provides outcome counts for a run.
type RunSummary struct {
	Total    int `json:"total"`
	Deployed int `json:"deployed"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// Result returns the result for the named unit.
func (r *RunReport) Result(unit string) (*DeploymentResult, bool) {
	for i := range r.Results {
		if r.Results[i].Unit == unit {
			return &r.Results[i], true
		}
	}
	return nil, false
}

// Submitted returns the number of units for which a transaction was sent.
func (r *RunReport) Submitted() int {
	n := 0
	for _, res := range r.Results {
		if res.TxHash != "" && res.Outcome != OutcomeSkipped {
			n++
		}
	}
	return n
}

// DeployRequest is handed to the Network collaborator to submit a deployment.
type DeployRequest struct {
	// Unit is the unit name, used for logs and errors.
	Unit string

	// Artifact is the opaque deployable reference.
	Artifact string

	// Args are the resolved constructor arguments.
	Args []interface{}
}

// PendingTx is a submitted, not yet confirmed, deployment transaction.
type PendingTx struct {
	// Unit is the unit being deployed.
	Unit string `json:"unit"`

	// TxHash is the transaction hash.
	TxHash string `json:"tx_hash"`

	// Nonce is the sender nonce used.
	Nonce uint64 `json:"nonce"`

	// ExpectedAddress is the address the deployment will occupy if it succeeds.
	ExpectedAddress string `json:"expected_address,omitempty"`

	// SubmittedAt is when the transaction was accepted by the network.
	SubmittedAt time.Time `json:"submitted_at"`
}

// PendingSubmission is a deployment transaction that was sent but whose
// outcome has not been observed. It outlives the run that sent it.
type PendingSubmission struct {
	UnitName        string    `json:"unit_name"`
	NetworkID       string    `json:"network_id"`
	TxHash          string    `json:"tx_hash"`
	Nonce           uint64    `json:"nonce"`
	ExpectedAddress string    `json:"expected_address,omitempty"`
	RunID           string    `json:"run_id,omitempty"`
	SubmittedAt     time.Time `json:"submitted_at"`
}

// Receipt is the terminal status of a deployment transaction.
type Receipt struct {
	// Success is false when the transaction was mined but reverted.
	Success bool `json:"success"`

	// Address is the deployed address.
	Address string `json:"address,omitempty"`

	// TxHash is the transaction hash.
	TxHash string `json:"tx_hash"`

	// BlockNumber is the inclusion block.
	BlockNumber uint64 `json:"block_number"`

	// GasUsed is the gas consumed by the deployment.
	GasUsed uint64 `json:"gas_used"`
}
