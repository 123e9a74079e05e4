package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/creator-ingest/internal/ingest"
	"github.com/JakeFAU/creator-ingest/internal/progress"
	"github.com/JakeFAU/creator-ingest/internal/progress/sinks"
)

const (
	ndjsonContentType = "application/x-ndjson"
	hubCloseTimeout   = 10 * time.Second
	streamBatchWait   = 50 * time.Millisecond
)

type runRequestBody struct {
	RunID     string `json:"run_id"`
	Source    string `json:"source"`
	Stage     string `json:"stage"`
	PageStart int    `json:"page_start"`
	PageEnd   int    `json:"page_end"`
	Force     bool   `json:"force"`
	PacingMS  *int64 `json:"pacing_ms"`
	TargetID  int64  `json:"target_id"`
}

func (b runRequestBody) toRequest() ingest.RunRequest {
	req := ingest.RunRequest{
		RunID:     b.RunID,
		SourceID:  b.Source,
		Stage:     ingest.Stage(b.Stage),
		PageStart: b.PageStart,
		PageEnd:   b.PageEnd,
		Force:     b.Force,
		TargetID:  b.TargetID,
	}
	if b.PacingMS != nil {
		req.Pacing = time.Duration(*b.PacingMS) * time.Millisecond
		if *b.PacingMS == 0 {
			req.Pacing = -1
		}
	}
	return req
}

type runOutcome struct {
	report ingest.RunReport
	err    error
}

// startRun handles POST /v1/runs. The response is one JSON progress event per line and always
// ends with a done line carrying the run report, or an error line when the run could not
// start. A client disconnect cancels the run between items.
func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var body runRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req, err := s.runner.Prepare(body.toRequest())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	stream := sinks.NewChannelSink(s.cfg.StreamBuffer)
	hub := progress.NewHub(progress.Config{
		MaxBatchWait: streamBatchWait,
		BaseContext:  context.WithoutCancel(ctx),
		Logger:       s.logger,
	}, stream)
	if err := s.registry.Register(req, cancel, hub); err != nil {
		_ = hub.Close(context.Background())
		status := http.StatusInternalServerError
		if errors.Is(err, ErrRunExists) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}
	logger := s.logger.With(zap.String("run_id", req.RunID), zap.String("request_id", RequestID(r.Context())))

	w.Header().Set("Content-Type", ndjsonContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Run-ID", req.RunID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	done := make(chan runOutcome, 1)
	go func() {
		report, err := s.runner.Run(ctx, req)
		s.registry.Remove(req.RunID)
		closeCtx, closeCancel := context.WithTimeout(context.WithoutCancel(ctx), hubCloseTimeout)
		if cerr := hub.Close(closeCtx); cerr != nil {
			logger.Warn("progress stream close failed", zap.Error(cerr))
		}
		closeCancel()
		done <- runOutcome{report: report, err: err}
	}()

	enc := json.NewEncoder(w)
	writable := true
	for evt := range stream.Events() {
		if !writable {
			continue
		}
		if err := enc.Encode(evt); err != nil {
			logger.Info("client went away, canceling run", zap.Error(err))
			writable = false
			cancel()
			continue
		}
		flusher.Flush()
	}

	out := <-done
	if !writable {
		return
	}
	final := progress.Event{
		RunID:  req.RunID,
		TS:     s.clock.Now(),
		Source: req.SourceID,
		Stage:  req.Stage,
	}
	if out.err != nil {
		final.Type = progress.TypeError
		final.Message = out.err.Error()
	} else {
		report := out.report
		final.Type = progress.TypeDone
		final.Message = report.Summary()
		final.Report = &report
		final.Dur = report.FinishedAt.Sub(report.StartedAt)
	}
	if err := enc.Encode(final); err != nil {
		logger.Info("write final progress line failed", zap.Error(err))
		return
	}
	flusher.Flush()
}

// cancelRun handles POST /v1/runs/{run_id}/cancel.
func (s *Server) cancelRun(w http.ResponseWriter, r *http.Request) {
	runID := runIDParam(r)
	if !s.registry.Cancel(runID) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	s.logger.Info("run cancel requested", zap.String("run_id", runID))
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": "cancel_requested"})
}
