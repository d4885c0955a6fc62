package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iddaa-lens/jobscheduler/pkg/coordination"
	"github.com/iddaa-lens/jobscheduler/pkg/jobs"
	"github.com/iddaa-lens/jobscheduler/pkg/logger"
	"github.com/iddaa-lens/jobscheduler/pkg/models/api"
	"github.com/iddaa-lens/jobscheduler/pkg/scheduler"
)

const yearly = "0 0 0 1 1 ?"

type signalJob struct {
	fired chan struct{}
}

func (j *signalJob) Execute(context.Context) error { j.fired <- struct{}{}; return nil }
func (j *signalJob) Name() string                  { return "reports" }
func (j *signalJob) Schedule() string              { return yearly }

type fixture struct {
	mux       *http.ServeMux
	store     *coordination.MemoryStore
	job       *signalJob
	scheduler *scheduler.JobScheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := coordination.NewMemoryStore(nil)
	job := &signalJob{fired: make(chan struct{}, 4)}

	facade, err := coordination.NewFacade(store, coordination.FacadeConfig{
		JobName:    "reports",
		Cron:       yearly,
		InstanceID: "host-a",
	}, nil)
	require.NoError(t, err)

	cfg, err := jobs.NewConfiguration(job, true)
	require.NoError(t, err)
	registry := jobs.NewRegistry()
	s, err := scheduler.New(cfg, facade, registry)
	require.NoError(t, err)
	require.NoError(t, s.Init(ctx))
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	h := NewHandler(registry, coordination.NewOperator(store, nil), "host-a", logger.Nop())
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/jobs", h.List)
	mux.HandleFunc("GET /api/jobs/{name}", h.Get)
	mux.HandleFunc("POST /api/jobs/{name}/trigger", h.Trigger)
	mux.HandleFunc("POST /api/jobs/{name}/stop", h.Stop)
	mux.HandleFunc("POST /api/jobs/{name}/resume", h.Resume)
	mux.HandleFunc("POST /api/jobs/{name}/reschedule", h.Reschedule)

	return &fixture{mux: mux, store: store, job: job, scheduler: s}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, api.Response) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)

	var resp api.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec, resp
}

func TestList(t *testing.T) {
	f := newFixture(t)

	rec, resp := f.do(t, http.MethodGet, "/api/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)

	data, ok := resp.Data.([]any)
	require.True(t, ok)
	require.Len(t, data, 1)
	job := data[0].(map[string]any)
	assert.Equal(t, "reports", job["name"])
	assert.Equal(t, yearly, job["cron"])
}

func TestGet(t *testing.T) {
	f := newFixture(t)

	rec, resp := f.do(t, http.MethodGet, "/api/jobs/reports", "")
	require.Equal(t, http.StatusOK, rec.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "reports", data["name"])
	cluster := data["cluster"].(map[string]any)
	assert.Equal(t, yearly, cluster["cron"])

	rec, resp = f.do(t, http.MethodGet, "/api/jobs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
}

func TestTrigger(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodPost, "/api/jobs/reports/trigger", "")
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-f.job.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not fire")
	}
}

func TestStopAndResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec, resp := f.do(t, http.MethodPost, "/api/jobs/reports/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"host-a"}, resp.Data.(map[string]any)["instances"])
	assert.True(t, f.scheduler.Status().Stopped)

	flagged, err := f.store.Exists(ctx, "/reports/servers/host-a/stopped")
	require.NoError(t, err)
	assert.True(t, flagged)

	rec, _ = f.do(t, http.MethodPost, "/api/jobs/reports/resume", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.scheduler.Status().Stopped)

	flagged, err = f.store.Exists(ctx, "/reports/servers/host-a/stopped")
	require.NoError(t, err)
	assert.False(t, flagged)
}

func TestReschedule(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodPost, "/api/jobs/reports/reschedule", `{"cron":"0 0 12 * * ?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0 0 12 * * ?", f.scheduler.Status().CronExpr)

	stored, err := f.store.Get(context.Background(), "/reports/config/cron")
	require.NoError(t, err)
	assert.Equal(t, "0 0 12 * * ?", stored)

	rec, _ = f.do(t, http.MethodPost, "/api/jobs/reports/reschedule", `{"cron":"whenever"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.do(t, http.MethodPost, "/api/jobs/reports/reschedule", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAfterShutdown(t *testing.T) {
	f := newFixture(t)
	handle := f.scheduler

	// Keep the handle reachable after Shutdown drops it from the registry
	registry := jobs.NewRegistry()
	registry.AddJobScheduler("reports", handle)
	h := NewHandler(registry, nil, "host-a", logger.Nop())
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/jobs/{name}/trigger", h.Trigger)

	require.NoError(t, handle.Shutdown(context.Background()))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/jobs/reports/trigger", nil))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
