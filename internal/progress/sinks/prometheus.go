package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/creator-ingest/internal/progress"
)

// PrometheusSink turns progress events into run-level Prometheus series.
type PrometheusSink struct {
	events      *prometheus.CounterVec
	itemErrors  *prometheus.CounterVec
	runsDone    *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	recordsSeen *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against reg, or the default registerer when nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_progress_events_total",
			Help: "Progress events partitioned by stage and type.",
		}, []string{"stage", "type"}),
		itemErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_item_errors_total",
			Help: "Item failures partitioned by stage and error kind.",
		}, []string{"stage", "kind"}),
		runsDone: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_runs_finished_total",
			Help: "Finished runs partitioned by stage and final state.",
		}, []string{"stage", "state"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ingest_run_duration_seconds",
			Help:    "Wall time per finished run.",
			Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600},
		}, []string{"stage"}),
		recordsSeen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_run_records_total",
			Help: "Records reported by finished runs partitioned by stage and result.",
		}, []string{"stage", "result"}),
	}
	for _, c := range []prometheus.Collector{s.events, s.itemErrors, s.runsDone, s.runDuration, s.recordsSeen} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		stage := string(evt.Stage)
		if stage == "" {
			stage = "unknown"
		}
		s.events.WithLabelValues(stage, string(evt.Type)).Inc()
		switch evt.Type {
		case progress.TypeError:
			kind := evt.Kind
			if kind == "" {
				kind = "unknown"
			}
			s.itemErrors.WithLabelValues(stage, kind).Inc()
		case progress.TypeDone:
			s.observeReport(stage, evt)
		}
	}
	return nil
}

func (s *PrometheusSink) observeReport(stage string, evt progress.Event) {
	r := evt.Report
	if r == nil {
		return
	}
	s.runsDone.WithLabelValues(stage, string(r.State)).Inc()
	if d := r.FinishedAt.Sub(r.StartedAt); d > 0 {
		s.runDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
	s.recordsSeen.WithLabelValues(stage, "saved").Add(float64(r.RecordsSaved))
	s.recordsSeen.WithLabelValues(stage, "duplicate").Add(float64(r.Duplicates))
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
