package stores

import (
	"context"
	"time"

	"github.com/openfroyo/chaindeploy/pkg/telemetry"
)

// EventRecorder returns a subscriber that persists every published event to
// store. Persistence failures are logged and never interrupt the run.
func EventRecorder(store Store, logger *telemetry.Logger) telemetry.EventSubscriber {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	log := logger.NewComponentLogger("event-recorder")
	return func(event telemetry.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.AppendEvent(ctx, event); err != nil {
			log.WithError(err).WithField("type", event.Type).Warn("Failed to persist event")
		}
	}
}
