package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/chaindeploy/pkg/telemetry"
)

const (
	// DefaultConfirmTimeout bounds the wait for a deployment receipt.
	DefaultConfirmTimeout = 5 * time.Minute

	// DefaultLockTTL is the lease duration of a ledger key claim.
	DefaultLockTTL = 30 * time.Minute
)

// ExecuteOptions controls a single run.
type ExecuteOptions struct {
	// ContinueOnFailure keeps deploying units that do not depend on a
	// failed unit. By default the run halts at the first failure.
	ContinueOnFailure bool

	// ConfirmTimeout bounds the confirmation wait of each unit.
	ConfirmTimeout time.Duration
}

// Executor drives a deployment plan through the per-unit state machine
// Pending -> Resolving -> Submitting -> Confirming -> Deployed|Failed, or
// Pending -> Skipped. Units are processed strictly one at a time and the
// ledger entry of a deployed unit is written before the next unit starts.
type Executor struct {
	ledger   Ledger
	network  Network
	logger   *telemetry.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
	events   EventSink
	recorder RunRecorder
	lockTTL  time.Duration
	now      func() time.Time
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(l *telemetry.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithMetrics records run and unit metrics.
func WithMetrics(m *telemetry.Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// WithTracer emits a span per run and per unit.
func WithTracer(t *telemetry.Tracer) ExecutorOption {
	return func(e *Executor) { e.tracer = t }
}

// WithEvents publishes timeline events to sink.
func WithEvents(sink EventSink) ExecutorOption {
	return func(e *Executor) { e.events = sink }
}

// WithRunRecorder persists run history.
func WithRunRecorder(r RunRecorder) ExecutorOption {
	return func(e *Executor) { e.recorder = r }
}

// WithLockTTL sets the lease duration used when the ledger supports key locks.
func WithLockTTL(ttl time.Duration) ExecutorOption {
	return func(e *Executor) { e.lockTTL = ttl }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// NewExecutor creates an executor writing to ledger and deploying through network.
func NewExecutor(ledger Ledger, network Network, opts ...ExecutorOption) *Executor {
	e := &Executor{
		ledger:  ledger,
		network: network,
		lockTTL: DefaultLockTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = telemetry.NewNopLogger()
	}
	e.logger = e.logger.NewComponentLogger("executor")
	return e
}

// runState is the mutable bookkeeping of one Execute call.
type runState struct {
	report    *RunReport
	plan      *DeploymentPlan
	opts      ExecuteOptions
	tainted   map[string]bool
	halted    bool
	cancelled bool
	logger    *telemetry.Logger
}

// Execute runs plan against the executor's network. The returned error is
// non-nil only when the plan cannot be started at all; unit failures are
// reported in the RunReport.
func (e *Executor) Execute(ctx context.Context, plan *DeploymentPlan, opts ExecuteOptions) (*RunReport, error) {
	if plan == nil {
		return nil, NewConfigError("plan is nil", nil)
	}
	if e.network != nil && plan.NetworkID != e.network.ID() {
		return nil, NewConfigError(
			fmt.Sprintf("plan targets network %s but executor is bound to %s", plan.NetworkID, e.network.ID()), nil)
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}

	report := &RunReport{
		RunID:     uuid.New().String(),
		PlanID:    plan.ID,
		NetworkID: plan.NetworkID,
		Status:    RunStatusRunning,
		StartedAt: e.now(),
		Results:   make([]DeploymentResult, 0, len(plan.Steps)),
	}

	st := &runState{
		report:  report,
		plan:    plan,
		opts:    opts,
		tainted: make(map[string]bool),
		logger:  e.logger.WithRunID(report.RunID).WithNetwork(plan.NetworkID),
	}

	ctx, span := e.startRunSpan(ctx, report)
	defer span.End()

	if e.recorder != nil {
		if err := e.recorder.RecordRunStarted(ctx, report); err != nil {
			st.logger.WithError(err).Warn("Failed to record run start")
		}
	}
	if e.metrics != nil {
		e.metrics.RecordRunStarted(plan.NetworkID)
	}
	e.publish(report, "", telemetry.EventTypeRunStarted,
		fmt.Sprintf("Run started with %d units", len(plan.Steps)), nil)
	st.logger.WithField("units", len(plan.Steps)).
		WithField("continue_on_failure", opts.ContinueOnFailure).
		Info("Deployment run started")

	for i := range plan.Steps {
		result := e.executeStep(ctx, st, &plan.Steps[i])
		report.Results = append(report.Results, result)

		if e.recorder != nil {
			if err := e.recorder.RecordResult(context.WithoutCancel(ctx), report.RunID, &result); err != nil {
				st.logger.WithError(err).Warn("Failed to record unit result")
			}
		}
	}

	e.finish(ctx, st, span)
	return report, nil
}

// executeStep drives one plan step to a terminal outcome.
func (e *Executor) executeStep(ctx context.Context, st *runState, step *PlanStep) DeploymentResult {
	unit := step.Unit
	result := DeploymentResult{
		Unit:        unit.Name,
		NonCritical: unit.NonCritical,
		StartedAt:   e.now(),
	}
	log := st.logger.WithUnit(unit.Name)

	// Blocked units never leave Pending.
	if reason, blocked := st.blockedReason(ctx, unit); blocked {
		st.tainted[unit.Name] = true
		return e.skip(st, result, reason, log)
	}

	ctx, span := e.startUnitSpan(ctx, unit.Name, step.Action)
	defer span.End()

	// The key is claimed before the ledger is read so that a concurrent
	// orchestrator cannot observe the same absent entry.
	if locker, ok := e.ledger.(KeyLocker); ok {
		release, err := locker.Acquire(ctx, unit.Name, st.plan.NetworkID, st.report.RunID, e.lockTTL)
		if err != nil {
			return e.fail(st, result, AsEngineError(err, unit.Name), span, log)
		}
		defer release()
	}

	existing, err := e.ledger.Get(ctx, unit.Name, st.plan.NetworkID)
	if err != nil {
		return e.fail(st, result, AsEngineError(err, unit.Name), span, log)
	}
	if existing != nil && step.Action != ActionRedeploy {
		result.Address = existing.Address
		result.TxHash = existing.TxHash
		result.BlockNumber = existing.BlockNumber
		telemetry.RecordSuccess(span)
		return e.skip(st, result, SkipAlreadyDeployed, log)
	}

	journal, _ := e.ledger.(SubmissionJournal)
	if journal != nil && !step.Forced {
		pending, err := journal.PendingSubmission(ctx, unit.Name, st.plan.NetworkID)
		if err != nil {
			return e.fail(st, result, AsEngineError(err, unit.Name), span, log)
		}
		if pending != nil {
			result.TxHash = pending.TxHash
			return e.fail(st, result, NewUnresolvedSubmissionError(unit.Name, pending.TxHash), span, log)
		}
	}

	e.publish(st.report, unit.Name, telemetry.EventTypeUnitStarted,
		fmt.Sprintf("Deploying %s", unit.Name), map[string]interface{}{"action": string(step.Action)})

	// Resolving
	args, err := ResolveArgs(ctx, e.ledger, unit, st.plan.NetworkID)
	if err != nil {
		return e.fail(st, result, AsEngineError(err, unit.Name), span, log)
	}
	log.WithField("args", len(args)).Debug("Constructor arguments resolved")

	// Submitting
	pending, err := e.network.Deploy(ctx, DeployRequest{
		Unit:     unit.Name,
		Artifact: unit.ArtifactRef(),
		Args:     args,
	})
	if err != nil {
		if ctx.Err() != nil {
			return e.fail(st, result, NewCancelledError(unit.Name, err), span, log)
		}
		return e.fail(st, result, NewSubmissionError(unit.Name, err), span, log)
	}
	result.TxHash = pending.TxHash
	if e.metrics != nil {
		e.metrics.RecordSubmission(st.plan.NetworkID)
	}
	// The journal entry is what stops a later run from sending the unit
	// again while this transaction may still land.
	if journal != nil {
		if err := journal.MarkSubmitted(context.WithoutCancel(ctx), &PendingSubmission{
			UnitName:        unit.Name,
			NetworkID:       st.plan.NetworkID,
			TxHash:          pending.TxHash,
			Nonce:           pending.Nonce,
			ExpectedAddress: pending.ExpectedAddress,
			RunID:           st.report.RunID,
			SubmittedAt:     pending.SubmittedAt,
		}); err != nil {
			log.WithError(err).WithField("tx_hash", pending.TxHash).Error("Failed to journal submission")
		}
	}
	e.publish(st.report, unit.Name, telemetry.EventTypeUnitSubmitted,
		fmt.Sprintf("Submitted %s", pending.TxHash),
		map[string]interface{}{"tx_hash": pending.TxHash, "nonce": pending.Nonce})
	log.WithField("tx_hash", pending.TxHash).Info("Deployment submitted")

	// Confirming
	waitStart := e.now()
	receipt, err := e.network.WaitForReceipt(ctx, pending, st.opts.ConfirmTimeout)
	if e.metrics != nil {
		e.metrics.ObserveConfirmation(st.plan.NetworkID, e.now().Sub(waitStart))
	}
	if err != nil {
		return e.fail(st, result, e.classifyWaitError(ctx, unit.Name, pending, err), span, log)
	}
	if !receipt.Success {
		e.clearSubmission(ctx, journal, unit.Name, st.plan.NetworkID, log)
		return e.fail(st, result, NewRevertedError(unit.Name, receipt.TxHash).
			WithDetail("block_number", receipt.BlockNumber), span, log)
	}

	address := receipt.Address
	if address == "" {
		address = pending.ExpectedAddress
	}
	if address == "" {
		// Mined, but with no address to record; the journal keeps the
		// transaction so the operator can record it.
		return e.fail(st, result, NewPermanentError("confirmed deployment reported no contract address", nil).
			WithCode(ErrCodeInternal).
			WithUnit(unit.Name).
			WithOperation("confirm").
			WithDetail("tx_hash", receipt.TxHash), span, log)
	}

	block := receipt.BlockNumber
	entry := &LedgerEntry{
		UnitName:    unit.Name,
		NetworkID:   st.plan.NetworkID,
		Address:     address,
		TxHash:      receipt.TxHash,
		BlockNumber: &block,
		DeployedAt:  e.now().UTC(),
		RunID:       st.report.RunID,
	}
	// A confirmed contract is recorded even when the run is being cancelled.
	if err := e.ledger.Put(context.WithoutCancel(ctx), entry, existing != nil); err != nil {
		// The contract exists on chain but is unrecorded; surface the address
		// so the operator can record it manually.
		ee := AsEngineError(err, unit.Name).
			WithDetail("address", address).
			WithDetail("tx_hash", receipt.TxHash)
		result.Address = address
		return e.fail(st, result, ee, span, log)
	}
	e.clearSubmission(ctx, journal, unit.Name, st.plan.NetworkID, log)
	e.publish(st.report, unit.Name, telemetry.EventTypeLedgerWritten,
		fmt.Sprintf("Recorded %s at %s", unit.Name, entry.Address), nil)

	result.Outcome = OutcomeDeployed
	result.Address = address
	result.TxHash = receipt.TxHash
	result.BlockNumber = &block
	result.Duration = e.now().Sub(result.StartedAt)

	if e.metrics != nil {
		e.metrics.RecordUnitOutcome(st.plan.NetworkID, string(OutcomeDeployed), "", result.Duration)
	}
	span.SetAttributes(attribute.String("unit.address", address))
	telemetry.RecordSuccess(span)
	e.publish(st.report, unit.Name, telemetry.EventTypeUnitDeployed,
		fmt.Sprintf("Deployed %s at %s", unit.Name, address),
		map[string]interface{}{"address": address, "block_number": block})
	log.WithField("address", address).
		WithField("block_number", block).
		Info("Unit deployed")

	return result
}

// clearSubmission drops the journal entry of a transaction whose outcome is
// now known. A failure is logged; the stale entry keeps the unit blocked
// until the operator discards it.
func (e *Executor) clearSubmission(ctx context.Context, journal SubmissionJournal, unit, network string, log *telemetry.Logger) {
	if journal == nil {
		return
	}
	if err := journal.ClearSubmission(context.WithoutCancel(ctx), unit, network); err != nil {
		log.WithError(err).Warn("Failed to clear journaled submission")
	}
}

// blockedReason reports whether a unit must be skipped without being attempted.
func (st *runState) blockedReason(ctx context.Context, unit UnitSpec) (SkipReason, bool) {
	for _, dep := range unit.Dependencies() {
		if st.tainted[dep] {
			return SkipUpstreamFailure, true
		}
	}
	if st.cancelled || ctx.Err() != nil {
		st.cancelled = true
		return SkipCancelled, true
	}
	if st.halted {
		return SkipHalted, true
	}
	return "", false
}

// classifyWaitError maps a confirmation failure onto the error taxonomy.
// Any failure to observe the receipt leaves the outcome ambiguous, so
// everything other than cancellation is a timeout.
func (e *Executor) classifyWaitError(ctx context.Context, unit string, tx *PendingTx, err error) *EngineError {
	if ctx.Err() != nil || IsCancelled(err) {
		return NewCancelledError(unit, err).WithDetail("tx_hash", tx.TxHash)
	}
	var ee *EngineError
	if errors.As(err, &ee) && ee.Code == ErrCodeTimeout {
		return ee
	}
	return NewTimeoutError(unit, tx.TxHash, err)
}

func (e *Executor) skip(st *runState, result DeploymentResult, reason SkipReason, log *telemetry.Logger) DeploymentResult {
	result.Outcome = OutcomeSkipped
	result.SkipReason = reason
	result.Duration = e.now().Sub(result.StartedAt)

	if e.metrics != nil {
		e.metrics.RecordUnitOutcome(st.plan.NetworkID, string(OutcomeSkipped), string(reason), result.Duration)
	}
	e.publish(st.report, result.Unit, telemetry.EventTypeUnitSkipped,
		fmt.Sprintf("Skipped %s: %s", result.Unit, reason),
		map[string]interface{}{"reason": string(reason)})
	log.WithField("reason", string(reason)).Info("Unit skipped")
	return result
}

func (e *Executor) fail(st *runState, result DeploymentResult, err *EngineError, span trace.Span, log *telemetry.Logger) DeploymentResult {
	result.Outcome = OutcomeFailed
	result.Error = err
	result.Duration = e.now().Sub(result.StartedAt)

	st.tainted[result.Unit] = true
	if IsCancelled(err) {
		st.cancelled = true
	} else if !st.opts.ContinueOnFailure {
		st.halted = true
	}

	if e.metrics != nil {
		e.metrics.RecordUnitOutcome(st.plan.NetworkID, string(OutcomeFailed), err.Code, result.Duration)
		e.metrics.RecordError(string(err.Class), err.Code)
	}
	telemetry.RecordError(span, err)
	e.publish(st.report, result.Unit, telemetry.EventTypeUnitFailed,
		fmt.Sprintf("Failed %s: %v", result.Unit, err),
		map[string]interface{}{"code": err.Code, "class": string(err.Class)})
	log.WithError(err).WithField("code", err.Code).Error("Unit failed")
	return result
}

// finish computes the summary and final status and emits completion signals.
func (e *Executor) finish(ctx context.Context, st *runState, span trace.Span) {
	report := st.report
	report.CompletedAt = e.now()
	report.Summary = summarize(report.Results)

	switch {
	case st.cancelled:
		report.Status = RunStatusCancelled
	case report.Summary.Failed > 0 && report.Summary.Deployed > 0:
		report.Status = RunStatusPartial
	case report.Summary.Failed > 0:
		report.Status = RunStatusFailed
	default:
		report.Status = RunStatusSucceeded
	}

	duration := report.CompletedAt.Sub(report.StartedAt)
	if e.metrics != nil {
		e.metrics.RecordRunCompleted(report.NetworkID, string(report.Status), duration)
	}
	if e.recorder != nil {
		// The caller's context may already be cancelled; history is still written.
		if err := e.recorder.RecordRunFinished(context.WithoutCancel(ctx), report); err != nil {
			st.logger.WithError(err).Warn("Failed to record run completion")
		}
	}

	eventType := telemetry.EventTypeRunCompleted
	if report.Status != RunStatusSucceeded {
		eventType = telemetry.EventTypeRunFailed
	}
	e.publish(report, "", eventType,
		fmt.Sprintf("Run finished with status %s", report.Status),
		map[string]interface{}{
			"deployed": report.Summary.Deployed,
			"skipped":  report.Summary.Skipped,
			"failed":   report.Summary.Failed,
		})

	span.SetAttributes(attribute.String("run.status", string(report.Status)))
	if report.Status == RunStatusSucceeded {
		telemetry.RecordSuccess(span)
	}

	st.logger.WithField("status", string(report.Status)).
		WithField("deployed", report.Summary.Deployed).
		WithField("skipped", report.Summary.Skipped).
		WithField("failed", report.Summary.Failed).
		WithField("duration", duration.String()).
		Info("Deployment run finished")
}

func summarize(results []DeploymentResult) RunSummary {
	summary := RunSummary{Total: len(results)}
	for _, r := range results {
		switch r.Outcome {
		case OutcomeDeployed:
			summary.Deployed++
		case OutcomeSkipped:
			summary.Skipped++
		case OutcomeFailed:
			summary.Failed++
		}
	}
	return summary
}

func (e *Executor) publish(report *RunReport, unit, eventType, message string, data map[string]interface{}) {
	if e.events == nil {
		return
	}
	level := telemetry.EventLevelInfo
	switch eventType {
	case telemetry.EventTypeUnitFailed, telemetry.EventTypeRunFailed:
		level = telemetry.EventLevelError
	}
	if err := e.events.Publish(telemetry.Event{
		Type:      eventType,
		Source:    "executor",
		RunID:     report.RunID,
		NetworkID: report.NetworkID,
		Unit:      unit,
		Message:   message,
		Level:     level,
		Data:      data,
	}); err != nil {
		e.logger.WithError(err).Debug("Event dropped")
	}
}

func (e *Executor) startRunSpan(ctx context.Context, report *RunReport) (context.Context, trace.Span) {
	if e.tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return e.tracer.StartRunSpan(ctx, report.RunID, report.NetworkID)
}

func (e *Executor) startUnitSpan(ctx context.Context, unit string, action PlanAction) (context.Context, trace.Span) {
	if e.tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return e.tracer.StartUnitSpan(ctx, unit, string(action))
}
