package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	commonroutes "kairos/commons/routes"
	"kairos/internal/clock"
	"kairos/internal/handler"
	"kairos/internal/logger"
	"kairos/internal/queue/logqueue"
	"kairos/internal/repository/memory"
	"kairos/internal/service"
	"kairos/internal/slack"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

type envelope struct {
	Status    string          `json:"status"`
	ErrorCode int             `json:"errorCode"`
	Message   string          `json:"message"`
	Data      json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	log := logger.NewNopLogger()
	clk := clock.NewFake(t0)
	schedules := memory.NewScheduleRepository()
	runs := memory.NewRunRepository()
	alerter := service.NewAlerter(slack.NewLogClient(log), "#alerts", log)

	dispatcher := service.NewDispatcher(runs, schedules, logqueue.NewClient(log), alerter, clk,
		service.DispatcherConfig{Timeout: time.Second, MaxConcurrent: 2}, log)
	manager := service.NewScheduleManager(schedules, runs, dispatcher, clk, log)
	outcomes := service.NewOutcomeHandler(runs, schedules, alerter, clk, 3, log)

	router := commonroutes.NewRouter(commonroutes.RouterConfig{ServiceName: "kairos"},
		commonroutes.RouteDependencies{Logger: log})
	InitHealthRoutes(router, handler.NewHealthHandler(log, "kairos", "memory", clk), log)
	InitScheduleRoutes(router, handler.NewScheduleHandler(manager, log), log)
	InitRunRoutes(router, handler.NewRunHandler(log, manager, outcomes), log)
	return router
}

func do(t *testing.T, router *gin.Engine, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func createSchedule(t *testing.T, router *gin.Engine, expr string) map[string]interface{} {
	t.Helper()
	code, env := do(t, router, http.MethodPost, "/api/v1/schedules", map[string]interface{}{
		"name":               "nightly-report",
		"trigger_kind":       "cron",
		"trigger_expression": expr,
		"job_type":           "report",
		"payload":            map[string]interface{}{"tenant": "acme"},
	})
	require.Equal(t, http.StatusOK, code, env.Message)
	return decode[map[string]interface{}](t, env)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)

	code, env := do(t, router, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, code)

	data := decode[map[string]interface{}](t, env)
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, "memory", data["store"])
	assert.EqualValues(t, t0.UnixMilli(), data["time"])
}

func TestCreateAndGetSchedule(t *testing.T) {
	router := newTestRouter(t)
	created := createSchedule(t, router, "0 2 * * *")

	assert.Equal(t, "skip", created["concurrency_policy"])
	assert.Equal(t, "UTC", created["timezone"])
	assert.Equal(t, true, created["enabled"])
	assert.NotContains(t, created, "next_run")

	code, env := do(t, router, http.MethodGet, fmt.Sprintf("/api/v1/schedules/%s", created["id"]), nil)
	require.Equal(t, http.StatusOK, code)
	got := decode[map[string]interface{}](t, env)
	assert.Equal(t, created["id"], got["id"])
	assert.Equal(t, "0 2 * * *", got["trigger_expression"])

	code, env = do(t, router, http.MethodGet, "/api/v1/schedules?limit=10", nil)
	require.Equal(t, http.StatusOK, code)
	list := decode[map[string]interface{}](t, env)
	assert.EqualValues(t, 1, list["count"])

	code, _ = do(t, router, http.MethodGet, "/api/v1/schedules?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCreateScheduleErrors(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{
			name: "missing job type",
			body: map[string]interface{}{"name": "a", "trigger_kind": "cron", "trigger_expression": "* * * * *"},
		},
		{
			name: "bad cron",
			body: map[string]interface{}{"name": "a", "trigger_kind": "cron", "trigger_expression": "61 * * * *", "job_type": "x"},
		},
		{
			name: "bad interval",
			body: map[string]interface{}{"name": "a", "trigger_kind": "interval", "trigger_expression": "soon", "job_type": "x"},
		},
		{
			name: "unknown policy",
			body: map[string]interface{}{"name": "a", "trigger_kind": "interval", "trigger_expression": "5m", "job_type": "x", "concurrency_policy": "parallel"},
		},
		{
			name: "unknown timezone",
			body: map[string]interface{}{"name": "a", "trigger_kind": "cron", "trigger_expression": "0 9 * * *", "job_type": "x", "timezone": "Mars/Olympus"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := do(t, router, http.MethodPost, "/api/v1/schedules", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, "FAILED", env.Status)
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	code, env := do(t, router, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "FAILED", env.Status)
}

func TestMethodNotAllowed(t *testing.T) {
	router := newTestRouter(t)

	code, env := do(t, router, http.MethodDelete, "/api/v1/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)
	assert.Equal(t, 400, env.ErrorCode)
}

func TestGetUnknownSchedule(t *testing.T) {
	router := newTestRouter(t)

	code, env := do(t, router, http.MethodGet, "/api/v1/schedules/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, 404, env.ErrorCode)
}

func TestUpdateScheduleVersionConflict(t *testing.T) {
	router := newTestRouter(t)
	created := createSchedule(t, router, "0 2 * * *")
	path := fmt.Sprintf("/api/v1/schedules/%s", created["id"])

	code, env := do(t, router, http.MethodPatch, path, map[string]interface{}{
		"trigger_expression": "30 2 * * *",
		"expected_version":   1,
	})
	require.Equal(t, http.StatusOK, code, env.Message)
	updated := decode[map[string]interface{}](t, env)
	assert.Equal(t, "30 2 * * *", updated["trigger_expression"])
	assert.EqualValues(t, 2, updated["version"])

	code, _ = do(t, router, http.MethodPatch, path, map[string]interface{}{
		"name":             "renamed",
		"expected_version": 1,
	})
	assert.Equal(t, http.StatusConflict, code)
}

func TestDisableAndEnable(t *testing.T) {
	router := newTestRouter(t)
	created := createSchedule(t, router, "*/5 * * * *")
	base := fmt.Sprintf("/api/v1/schedules/%s", created["id"])

	code, env := do(t, router, http.MethodPost, base+"/disable", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, decode[map[string]interface{}](t, env)["enabled"])

	code, env = do(t, router, http.MethodPost, base+"/enable", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, decode[map[string]interface{}](t, env)["enabled"])
}

func TestTriggerNowAndReportOutcome(t *testing.T) {
	router := newTestRouter(t)
	created := createSchedule(t, router, "0 2 * * *")
	base := fmt.Sprintf("/api/v1/schedules/%s", created["id"])

	code, env := do(t, router, http.MethodPost, base+"/trigger", nil)
	require.Equal(t, http.StatusOK, code, env.Message)
	run := decode[map[string]interface{}](t, env)
	assert.Equal(t, "dispatched", run["status"])
	assert.Equal(t, "manual", run["trigger"])
	assert.Equal(t, "log", run["queue_name"])
	assert.Equal(t, map[string]interface{}{"tenant": "acme"}, run["payload_snapshot"])

	code, env = do(t, router, http.MethodPost, "/api/v1/runs/outcome", map[string]interface{}{
		"queue_job_id": run["queue_job_id"],
		"status":       "succeeded",
	})
	require.Equal(t, http.StatusOK, code, env.Message)
	assert.Equal(t, "succeeded", decode[map[string]interface{}](t, env)["status"])

	code, env = do(t, router, http.MethodGet, fmt.Sprintf("/api/v1/runs/%s", run["id"]), nil)
	require.Equal(t, http.StatusOK, code)
	got := decode[map[string]interface{}](t, env)
	assert.Equal(t, "succeeded", got["status"])
	assert.EqualValues(t, 0, got["duration_ms"])

	code, env = do(t, router, http.MethodGet, base+"/runs", nil)
	require.Equal(t, http.StatusOK, code)
	list := decode[map[string]interface{}](t, env)
	assert.EqualValues(t, 1, list["count"])

	// manual runs never move the schedule
	code, env = do(t, router, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, code)
	assert.NotContains(t, decode[map[string]interface{}](t, env), "next_run")
}

func TestReportOutcomeErrors(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name string
		body map[string]interface{}
		code int
	}{
		{name: "missing status", body: map[string]interface{}{"run_id": "r1"}, code: http.StatusBadRequest},
		{name: "non terminal status", body: map[string]interface{}{"run_id": "r1", "status": "pending"}, code: http.StatusBadRequest},
		{name: "no identifier", body: map[string]interface{}{"status": "failed"}, code: http.StatusBadRequest},
		{name: "unknown run", body: map[string]interface{}{"run_id": "missing", "status": "failed"}, code: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := do(t, router, http.MethodPost, "/api/v1/runs/outcome", tt.body)
			assert.Equal(t, tt.code, code)
		})
	}
}

func TestListRunsUnknownSchedule(t *testing.T) {
	router := newTestRouter(t)

	code, _ := do(t, router, http.MethodGet, "/api/v1/schedules/missing/runs", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestValidateTrigger(t *testing.T) {
	router := newTestRouter(t)

	code, env := do(t, router, http.MethodPost, "/api/v1/triggers/validate", map[string]interface{}{
		"trigger_kind":       "cron",
		"trigger_expression": "0 9 * * 1-5",
		"count":              3,
	})
	require.Equal(t, http.StatusOK, code, env.Message)
	preview := decode[map[string]interface{}](t, env)
	assert.Equal(t, true, preview["valid"])
	assert.Equal(t, []interface{}{
		"2026-01-06T09:00:00Z",
		"2026-01-07T09:00:00Z",
		"2026-01-08T09:00:00Z",
	}, preview["next_runs_iso"])

	code, env = do(t, router, http.MethodPost, "/api/v1/triggers/validate", map[string]interface{}{
		"trigger_kind":       "interval",
		"trigger_expression": "0s",
	})
	require.Equal(t, http.StatusOK, code)
	preview = decode[map[string]interface{}](t, env)
	assert.Equal(t, false, preview["valid"])
	assert.NotEmpty(t, preview["error"])
}
