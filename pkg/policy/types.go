package policy

import (
	"time"

	"github.com/openfroyo/chaindeploy/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that block the deployment.
	SeverityError Severity = "error"

	// SeverityCritical is for critical violations that block the deployment.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether violations of this severity deny a plan.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code. The module must define
// a `deny` set in its package.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Builtin marks policies shipped with the binary.
	Builtin bool `json:"builtin,omitempty"`

	// Source is the file the policy was loaded from.
	Source string `json:"source,omitempty"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`
}

// Violation represents a single `deny` result.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Unit is the unit the violation is about, when the policy names one.
	Unit string `json:"unit,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`
}

// String renders the violation as "policy: unit: message".
func (v Violation) String() string {
	if v.Unit == "" {
		return v.Policy + ": " + v.Message
	}
	return v.Policy + ": " + v.Unit + ": " + v.Message
}

// Result represents the result of evaluating a plan.
type Result struct {
	// Allowed is false when any blocking violation was found.
	Allowed bool `json:"allowed"`

	// Violations lists the blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists info and warning level violations.
	Warnings []Violation `json:"warnings,omitempty"`

	// Errors lists policies that failed to evaluate.
	Errors []string `json:"errors,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document policies see as `input`.
type Input struct {
	Network string    `json:"network"`
	Plan    InputPlan `json:"plan"`
}

// InputPlan is the policy view of a deployment plan.
type InputPlan struct {
	ID      string             `json:"id"`
	Steps   []InputStep        `json:"steps"`
	Summary engine.PlanSummary `json:"summary"`
}

// InputStep is the policy view of one plan step.
type InputStep struct {
	Position        int        `json:"position"`
	Level           int        `json:"level"`
	Unit            string     `json:"unit"`
	Artifact        string     `json:"artifact"`
	Action          string     `json:"action"`
	Reason          string     `json:"reason,omitempty"`
	Forced          bool       `json:"forced"`
	NonCritical     bool       `json:"non_critical"`
	ExistingAddress string     `json:"existing_address,omitempty"`
	Args            []InputArg `json:"args"`
}

// InputArg is one constructor argument. Exactly one of Value and DependsOn is
// set.
type InputArg struct {
	Value     interface{} `json:"value,omitempty"`
	DependsOn string      `json:"depends_on,omitempty"`
}

// NewInput builds the policy input for plan.
func NewInput(plan *engine.DeploymentPlan) *Input {
	input := &Input{
		Network: plan.NetworkID,
		Plan: InputPlan{
			ID:      plan.ID,
			Steps:   make([]InputStep, 0, len(plan.Steps)),
			Summary: plan.Summary,
		},
	}
	for _, step := range plan.Steps {
		s := InputStep{
			Position:    step.Position,
			Level:       step.Level,
			Unit:        step.Unit.Name,
			Artifact:    step.Unit.ArtifactRef(),
			Action:      string(step.Action),
			Reason:      step.Reason,
			Forced:      step.Forced,
			NonCritical: step.Unit.NonCritical,
			Args:        make([]InputArg, 0, len(step.Unit.Args)),
		}
		if step.Existing != nil {
			s.ExistingAddress = step.Existing.Address
		}
		for _, arg := range step.Unit.Args {
			s.Args = append(s.Args, InputArg{Value: arg.Value, DependsOn: arg.DependsOn})
		}
		input.Plan.Steps = append(input.Plan.Steps, s)
	}
	return input
}
