// Package diag provides the sinks fetch-policy decision records are emitted
// to: a debug log line, a Prometheus counter and a Kafka topic.
package diag

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mohammed-shakir/dogquery/internal/core/observability"
	"github.com/mohammed-shakir/dogquery/pkg/fetchpolicy"
)

// LogSink writes each record at debug level.
type LogSink struct {
	Log *slog.Logger
}

func (s LogSink) Emit(rec fetchpolicy.Record) error {
	if s.Log == nil {
		return nil
	}
	s.Log.LogAttrs(context.Background(), slog.LevelDebug, "next fetch policy",
		slog.String("reason", string(rec.Reason)),
		slog.String("current", rec.Current.String()),
		slog.String("next", rec.Next.String()),
		slog.String("strategy", rec.Strategy),
		slog.String("query_id", rec.QueryID),
		slog.Bool("changed", rec.Changed()))
	return nil
}

// MetricsSink counts records by reason, transition and strategy.
type MetricsSink struct{}

func (MetricsSink) Emit(rec fetchpolicy.Record) error {
	observability.IncDecision(string(rec.Reason), rec.Current.String(), rec.Next.String(), rec.Strategy)
	return nil
}

// Multi emits to every sink in order, including after one of them fails,
// and joins the errors.
type Multi []fetchpolicy.Sink

func (m Multi) Emit(rec fetchpolicy.Record) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := emitOne(s, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func emitOne(s fetchpolicy.Sink, rec fetchpolicy.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("diag: sink panicked")
		}
	}()
	return s.Emit(rec)
}
