package server

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/volcast/internal/report"
)

func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}

// handleHealth reports process and database health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := map[string]interface{}{
		"status":     "ok",
		"uptime_sec": int(time.Since(s.started).Seconds()),
		"goroutines": runtime.NumGoroutine(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		health["memory_used_pct"] = vm.UsedPercent
	}
	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pcts) > 0 {
		health["cpu_pct"] = pcts[0]
	}

	if err := s.db.HealthCheck(ctx); err != nil {
		health["status"] = "degraded"
		health["database"] = err.Error()
		s.respondJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	health["database"] = "ok"

	s.respondJSON(w, http.StatusOK, health)
}

func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	runs, err := s.store.ListRuns()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	meta, err := s.store.GetRun(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, meta)
}

func (s *Server) handleGetSteps(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.store.GetRun(id); err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	steps, err := s.store.StepsForRun(id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"steps": steps})
}

func (s *Server) handleGetSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	meta, err := s.store.GetRun(id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return
	}
	steps, err := s.store.StepsForRun(id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report.Summarize(meta.Assets, steps))
}

// handleListBackups lists run-artifact backups in object storage.
func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	if s.backups == nil {
		s.respondError(w, http.StatusNotImplemented, "backups not configured")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	backups, err := s.backups.ListBackups(ctx)
	if err != nil {
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"backups": backups})
}

// handleTriggerRun starts a new walk-forward run in the background.
func (s *Server) handleTriggerRun(w http.ResponseWriter, _ *http.Request) {
	if s.trigger == nil {
		s.respondError(w, http.StatusNotImplemented, "run trigger not configured")
		return
	}

	id, err := s.trigger(context.Background())
	if err != nil {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]string{"run_id": id})
}
