package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewright/taskrunner/internal/config"
	"github.com/corewright/taskrunner/internal/runnable"
	"github.com/corewright/taskrunner/internal/runner"
	"github.com/corewright/taskrunner/internal/spawner"
	"github.com/corewright/taskrunner/internal/status"
)

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestAdminHandler_respondJSON(t *testing.T) {
	h := &AdminHandler{}

	w := httptest.NewRecorder()
	data := map[string]string{"status": "ok"}
	h.respondJSON(w, http.StatusOK, data)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var response map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
}

func TestAdminHandler_respondError(t *testing.T) {
	h := &AdminHandler{}

	w := httptest.NewRecorder()
	h.respondError(w, http.StatusNotFound, "task not found")

	assert.Equal(t, http.StatusNotFound, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "Not Found", response["error"])
	assert.Equal(t, "task not found", response["message"])
}

func TestAdminHandler_HealthCheck(t *testing.T) {
	h := NewAdminHandler(nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/health", nil)
	w := httptest.NewRecorder()
	h.HealthCheck(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminHandler_GetRun_NoneInProgress(t *testing.T) {
	h := NewAdminHandler(runner.NewLiveRegistry(), nil)

	req := httptest.NewRequest(http.MethodGet, "/admin/runs/current", nil)
	w := httptest.NewRecorder()
	h.GetRun(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminHandler_ExpireTask_MissingID(t *testing.T) {
	h := NewAdminHandler(nil, nil)

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/admin/tasks//expire", nil), "taskID", "")
	w := httptest.NewRecorder()
	h.ExpireTask(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminHandler_GetRunAndPause_WithLiveRun(t *testing.T) {
	cfg := &config.Config{
		Runner: config.RunnerConfig{
			MaxParallelTasks: 1,
			MaxTriaging:      8,
			PerTaskTimeout:   5 * time.Second,
			CollationDelay:   10 * time.Millisecond,
		},
		Status: config.StatusConfig{ServerURI: "127.0.0.1:0"},
	}

	release := make(chan struct{})
	callables := map[string]spawner.Autorun{
		"slow": func(ctx context.Context) error {
			<-release
			return nil
		},
	}
	reg := spawner.NewRegistry(spawner.NewInProcessSpawner(callables, "in-process"))

	live := runner.NewLiveRegistry()
	r := runner.New(cfg, reg, status.NoopObserver{}).WithLive(live)

	done := make(chan struct{})
	go func() {
		defer close(done)
		suite := runner.Suite{Name: "s", Runnables: []*runnable.Runnable{runnable.New("in-process", "slow")}}
		_, _ = r.RunSuite(context.Background(), "run-admin-1", suite)
	}()

	require.Eventually(t, func() bool { return live.Current() != nil }, time.Second, time.Millisecond)

	h := NewAdminHandler(live, nil)

	w := httptest.NewRecorder()
	h.GetRun(w, httptest.NewRequest(http.MethodGet, "/admin/runs/current", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "run-admin-1", body["run_id"])

	w = httptest.NewRecorder()
	h.PauseIntake(w, httptest.NewRequest(http.MethodPost, "/admin/pause", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, live.Current().Machine.Paused())

	close(release)
	<-done
}

func TestAdminHandler_ExpireTask_NotInProgress(t *testing.T) {
	h := NewAdminHandler(runner.NewLiveRegistry(), nil)

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/admin/tasks/x/expire", nil), "taskID", "x")
	w := httptest.NewRecorder()
	h.ExpireTask(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
