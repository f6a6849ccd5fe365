package audit

import (
	"context"
	"log/slog"

	"tessera/internal/audit/metrics"
	"tessera/pkg/requestcontext"
)

const defaultBufferSize = 256

// Publisher hands events to the background worker over a bounded buffer.
// Emit never blocks and never fails: when the buffer is full the event is
// dropped and the drop is logged and counted, because validation must not
// stall on its own audit trail.
type Publisher struct {
	inbox   chan Event
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewPublisher(bufferSize int, logger *slog.Logger, m *metrics.Metrics) *Publisher {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Publisher{
		inbox:   make(chan Event, bufferSize),
		logger:  logger,
		metrics: m,
	}
}

// Emit queues an event for delivery. Timestamp and RequestID default from
// the request context so events line up with the run records written in the
// same request. A nil publisher discards everything, which lets tests and
// degraded deployments run without an audit trail wired.
func (p *Publisher) Emit(ctx context.Context, event Event) {
	if p == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx).UTC()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}

	select {
	case p.inbox <- event:
		p.metrics.IncrementEmitted(string(event.Action))
	default:
		p.metrics.IncrementDropped()
		p.logger.WarnContext(ctx, "audit buffer full, event dropped",
			slog.String("action", string(event.Action)),
			slog.String("run_id", event.RunID.String()),
		)
	}
}

// Events exposes the buffer for the worker to consume.
func (p *Publisher) Events() <-chan Event {
	return p.inbox
}
