package telemetry_test

import (
	"context"
	"fmt"
	"time"

	"github.com/openfroyo/chaindeploy/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	logger := telemetry.FromContext(ctx)
	logger.Info("Application started")
}

// Example_runInstrumentation demonstrates the spans and metrics of a run.
func Example_runInstrumentation() {
	tel, _ := telemetry.NewTelemetry(telemetry.DefaultConfig())
	defer tel.Shutdown(context.Background())

	ctx, runSpan := tel.Tracer.StartRunSpan(context.Background(), "run-123", "sepolia")
	defer runSpan.End()

	_, unitSpan := tel.Tracer.StartUnitSpan(ctx, "WebAuthn256r1", "deploy")
	tel.Metrics.RecordSubmission("sepolia")
	tel.Metrics.ObserveConfirmation("sepolia", 12*time.Second)
	tel.Metrics.RecordUnitOutcome("sepolia", "deployed", "", 13*time.Second)
	telemetry.RecordSuccess(unitSpan)
	unitSpan.End()

	tel.Metrics.RecordRunCompleted("sepolia", "succeeded", 14*time.Second)
}

// Example_eventFiltering demonstrates subscribing to failures only.
func Example_eventFiltering() {
	ep := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true})

	ep.Subscribe(func(e telemetry.Event) {
		fmt.Printf("%s %s\n", e.Type, e.Unit)
	}, telemetry.FilterByLevel(telemetry.EventLevelError))

	_ = ep.Publish(telemetry.Event{Type: telemetry.EventTypeUnitDeployed, Unit: "WebAuthn256r1"})
	_ = ep.Publish(telemetry.Event{
		Type:  telemetry.EventTypeUnitFailed,
		Unit:  "Paymaster",
		Level: telemetry.EventLevelError,
	})

	_ = ep.Shutdown(context.Background())
	// Output:
	// unit.failed Paymaster
}
