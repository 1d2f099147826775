// Package handlers implements the admin introspection HTTP surface: a
// read-only view onto the run currently in progress (if any) plus a
// small set of JWT/API-key-gated control endpoints. It never drives
// scheduling itself.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/corewright/taskrunner/internal/archive"
	"github.com/corewright/taskrunner/internal/logger"
	"github.com/corewright/taskrunner/internal/runner"
)

// AdminHandler serves the admin introspection and control routes. Both
// fields are read-only references owned elsewhere: live reflects the
// in-progress run, archive reflects completed ones. Either may be nil
// (archive when disabled by config; live is always set by the caller,
// but Current() may return nil between runs).
type AdminHandler struct {
	live    *runner.LiveRegistry
	archive *archive.Archive
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(live *runner.LiveRegistry, ar *archive.Archive) *AdminHandler {
	return &AdminHandler{live: live, archive: ar}
}

// HealthCheck handles GET /admin/health
func (h *AdminHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"archive_enabled": h.archive.Enabled(),
	})
}

// GetRun handles GET /admin/runs/current — a live snapshot of queue
// depths, result stats, and outcome-in-progress for the run this
// process is currently executing, if any.
func (h *AdminHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	live := h.live.Current()
	if live == nil {
		h.respondError(w, http.StatusNotFound, "no run in progress")
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":       live.RunID,
		"total":        live.Machine.Total(),
		"complete":     live.Machine.Complete(),
		"paused":       live.Machine.Paused(),
		"queue_depths": live.Machine.Depths(),
		"result_stats": live.Repo.ResultStats(),
	})
}

// GetTask handles GET /admin/tasks/{taskID} — the repository's status
// log and latest record for one task of the in-progress run.
func (h *AdminHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		h.respondError(w, http.StatusBadRequest, "task ID is required")
		return
	}

	live := h.live.Current()
	if live == nil {
		h.respondError(w, http.StatusNotFound, "no run in progress")
		return
	}

	records := live.Repo.GetTaskData(taskID)
	if records == nil {
		h.respondError(w, http.StatusNotFound, "task not found")
		return
	}

	latest, _ := live.Repo.GetLatestTaskData(taskID)
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"task_id": taskID,
		"status":  live.Repo.GetTaskStatus(taskID),
		"latest":  latest,
		"records": records,
	})
}

// ListRuns handles GET /admin/runs — the most recently archived run
// IDs. Returns an empty list, not an error, when archiving is disabled.
func (h *AdminHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ids, err := h.archive.RecentRunIDs(r.Context(), 100)
	if err != nil {
		logger.Error().Err(err).Msg("failed to list archived runs")
		h.respondError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if ids == nil {
		ids = []string{}
	}

	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"run_ids": ids,
	})
}

// GetArchivedRun handles GET /admin/runs/{runID} — a completed run's
// archived summary.
func (h *AdminHandler) GetArchivedRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if runID == "" {
		h.respondError(w, http.StatusBadRequest, "run ID is required")
		return
	}

	var summary runner.Summary
	if err := h.archive.Get(r.Context(), runID, &summary); err != nil {
		h.respondError(w, http.StatusNotFound, "run not found")
		return
	}

	h.respondJSON(w, http.StatusOK, summary)
}

// PauseIntake handles POST /admin/pause — stops the bootstrap phase
// from admitting new tasks out of requested. Already-triaging, ready,
// and started tasks are unaffected.
func (h *AdminHandler) PauseIntake(w http.ResponseWriter, r *http.Request) {
	live := h.live.Current()
	if live == nil {
		h.respondError(w, http.StatusNotFound, "no run in progress")
		return
	}
	live.Machine.SetPaused(true)
	logger.Info().Str("run_id", live.RunID).Msg("admin: paused intake")
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"paused": true})
}

// ResumeIntake handles POST /admin/resume.
func (h *AdminHandler) ResumeIntake(w http.ResponseWriter, r *http.Request) {
	live := h.live.Current()
	if live == nil {
		h.respondError(w, http.StatusNotFound, "no run in progress")
		return
	}
	live.Machine.SetPaused(false)
	logger.Info().Str("run_id", live.RunID).Msg("admin: resumed intake")
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"paused": false})
}

// ExpireTask handles POST /admin/tasks/{taskID}/expire — forces a
// started task's deadline, letting an operator cut a hung task short
// without waiting out its full per-task timeout.
func (h *AdminHandler) ExpireTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if taskID == "" {
		h.respondError(w, http.StatusBadRequest, "task ID is required")
		return
	}

	live := h.live.Current()
	if live == nil {
		h.respondError(w, http.StatusNotFound, "no run in progress")
		return
	}

	if !live.Machine.ForceExpire(taskID) {
		h.respondError(w, http.StatusNotFound, "task not in started queue")
		return
	}

	logger.Info().Str("run_id", live.RunID).Str("task_id", taskID).Msg("admin: forced task expiry")
	h.respondJSON(w, http.StatusOK, map[string]interface{}{"task_id": taskID, "expired": true})
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (h *AdminHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (h *AdminHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}
