package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-ingest/internal/progress"
)

// LogSink writes every event as a structured log line.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("source", evt.Source),
			zap.String("stage", string(evt.Stage)),
		}
		if evt.Item != "" {
			fields = append(fields, zap.String("item", evt.Item))
		}
		if evt.URL != "" {
			fields = append(fields, zap.String("url", evt.URL))
		}
		switch evt.Type {
		case progress.TypeError:
			s.logger.Warn(evt.Message, append(fields, zap.String("kind", evt.Kind))...)
		case progress.TypeDone:
			r := evt.Report
			s.logger.Info(evt.Message, append(fields,
				zap.String("state", string(r.State)),
				zap.Int("processed", r.ItemsProcessed),
				zap.Int("skipped", r.ItemsSkipped),
				zap.Int("saved", r.RecordsSaved),
				zap.Int("duplicates", r.Duplicates),
				zap.Int("errors", r.Errors),
				zap.String("fatal_error", r.FatalError),
			)...)
		default:
			s.logger.Info(evt.Message, fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
