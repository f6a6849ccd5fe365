package audit

import (
	"context"
	"log/slog"
)

// Sink delivers audit events to one destination. Implementations must be
// safe for reuse across events but are only called from the worker
// goroutine, so they need no internal locking.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

// StoreSink persists events through an audit Store.
type StoreSink struct {
	store Store
}

func NewStoreSink(store Store) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Name() string { return "store" }

func (s *StoreSink) Deliver(ctx context.Context, event Event) error {
	return s.store.Append(ctx, event)
}

// LogSink mirrors the audit trail into the structured log, which keeps the
// trail visible in deployments that run without Postgres or Kafka.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(ctx context.Context, event Event) error {
	attrs := []slog.Attr{
		slog.String("action", string(event.Action)),
		slog.Time("timestamp", event.Timestamp),
	}
	if !event.RunID.IsNil() {
		attrs = append(attrs, slog.String("run_id", event.RunID.String()))
	}
	if !event.LayerID.IsNil() {
		attrs = append(attrs, slog.String("layer_id", event.LayerID.String()))
	}
	if event.Jurisdiction != "" {
		attrs = append(attrs, slog.String("jurisdiction", string(event.Jurisdiction)))
	}
	if event.Verdict != "" {
		attrs = append(attrs, slog.String("verdict", string(event.Verdict)))
	}
	if event.Category != "" {
		attrs = append(attrs, slog.String("category", string(event.Category)))
	}
	if !event.Reviewer.IsNil() {
		attrs = append(attrs, slog.String("reviewer", event.Reviewer.String()))
	}
	if event.Detail != "" {
		attrs = append(attrs, slog.String("detail", event.Detail))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "audit event", attrs...)
	return nil
}
