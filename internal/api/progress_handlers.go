package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

func runIDParam(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "run_id"))
}

// listRuns handles GET /v1/runs and returns {"runs": [...]} for the runs in flight.
func (s *Server) listRuns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runs": s.registry.Active()})
}

// getRun handles GET /v1/runs/{run_id}. Finished runs are forgotten and return 404.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	info, ok := s.registry.Get(runIDParam(r))
	if !ok {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": info})
}

// listSources handles GET /v1/sources.
func (s *Server) listSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"sources": s.runner.Sources()})
}
