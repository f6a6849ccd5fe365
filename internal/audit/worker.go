package audit

import (
	"context"
	"log/slog"

	"tessera/internal/audit/metrics"
)

// Worker drains the publisher's buffer and fans each event out to every
// sink. A failing sink is logged and skipped so one broken destination
// cannot silence the others.
type Worker struct {
	inbox   <-chan Event
	sinks   []Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewWorker(inbox <-chan Event, logger *slog.Logger, m *metrics.Metrics, sinks ...Sink) *Worker {
	return &Worker{
		inbox:   inbox,
		sinks:   sinks,
		logger:  logger,
		metrics: m,
	}
}

// Run consumes events until the context is cancelled, then delivers what was
// already buffered before returning. The drain uses a detached context so
// shutdown does not discard events the pipeline already paid to emit.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain(context.WithoutCancel(ctx))
			return ctx.Err()
		case event := <-w.inbox:
			w.deliver(ctx, event)
		}
	}
}

func (w *Worker) deliver(ctx context.Context, event Event) {
	for _, sink := range w.sinks {
		if err := sink.Deliver(ctx, event); err != nil {
			w.metrics.IncrementDeliveryFailure(sink.Name())
			w.logger.WarnContext(ctx, "audit sink delivery failed",
				slog.String("sink", sink.Name()),
				slog.String("action", string(event.Action)),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (w *Worker) drain(ctx context.Context) {
	for {
		select {
		case event := <-w.inbox:
			w.deliver(ctx, event)
		default:
			return
		}
	}
}
