// Package telemetry provides observability for deployment runs.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry),
// metrics (Prometheus) and an in-process event publisher:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	logger := tel.Logger.NewComponentLogger("executor").WithNetwork("sepolia")
//	logger.WithUnit("Paymaster").Info("Unit deployed")
//
// Deployments are batch jobs, so metrics are not served over HTTP. Set
// Metrics.Textfile to have the registry written in the text exposition
// format on Shutdown, where node_exporter's textfile collector can pick it up.
//
// Events are delivered synchronously by default so persistent subscribers
// (the run history store) observe them in emission order.
package telemetry
