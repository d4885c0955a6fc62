package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/iddaa-lens/jobscheduler/pkg/coordination"
	"github.com/iddaa-lens/jobscheduler/pkg/engine"
	"github.com/iddaa-lens/jobscheduler/pkg/jobs"
	"github.com/iddaa-lens/jobscheduler/pkg/logger"
	"github.com/iddaa-lens/jobscheduler/pkg/models/api"
	"github.com/iddaa-lens/jobscheduler/pkg/scheduler"
)

// Operator writes administrative changes to the coordination store
type Operator interface {
	Stop(ctx context.Context, job, instance string) ([]string, error)
	Resume(ctx context.Context, job, instance string) ([]string, error)
	Reschedule(ctx context.Context, job, cronExpr string) error
	Status(ctx context.Context, job string) (coordination.JobStatus, error)
}

// Handler serves the job lifecycle API. Stop, resume and reschedule are
// written to the coordination store first so every server sees them, and
// this one still does after a restart. The local scheduler is then driven
// directly instead of waiting for the next watcher poll.
type Handler struct {
	registry   *jobs.Registry
	operator   Operator
	instanceID string
	logger     *logger.Logger
}

func NewHandler(registry *jobs.Registry, operator Operator, instanceID string, log *logger.Logger) *Handler {
	return &Handler{
		registry:   registry,
		operator:   operator,
		instanceID: instanceID,
		logger:     log,
	}
}

// List handles GET /api/jobs
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	names := h.registry.Names()
	statuses := make([]jobs.Status, 0, len(names))
	for _, name := range names {
		handle, err := h.registry.JobScheduler(name)
		if err != nil {
			// removed between Names and lookup
			continue
		}
		statuses = append(statuses, handle.Status())
	}

	h.writeJSON(w, r, http.StatusOK, api.Response{
		Success: true,
		Data:    statuses,
		Meta: map[string]any{
			"total":       len(statuses),
			"instance_id": h.instanceID,
		},
	})
}

// Get handles GET /api/jobs/{name}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.handle(w, r)
	if !ok {
		return
	}

	resp := api.JobResponse{Status: handle.Status()}
	if h.operator != nil {
		cluster, err := h.operator.Status(r.Context(), handle.Name())
		if err != nil {
			h.log(r).Warn().
				Err(err).
				Str("action", "job_cluster_status_failed").
				Str("job_name", handle.Name()).
				Msg("Failed to read cluster state of job")
		} else {
			resp.Cluster = &cluster
		}
	}

	h.writeJSON(w, r, http.StatusOK, api.Response{Success: true, Data: resp})
}

// Trigger handles POST /api/jobs/{name}/trigger
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.handle(w, r)
	if !ok {
		return
	}
	if err := handle.TriggerJob(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeResult(w, r, api.LifecycleResult{Job: handle.Name(), Operation: scheduler.OpTrigger})
}

// Stop handles POST /api/jobs/{name}/stop. With ?scope=all every server
// of the job is flagged; the local scheduler is always stopped.
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.handle(w, r)
	if !ok {
		return
	}

	var instances []string
	if h.operator != nil {
		var err error
		if instances, err = h.operator.Stop(r.Context(), handle.Name(), h.scope(r)); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	if err := handle.StopJob(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeResult(w, r, api.LifecycleResult{Job: handle.Name(), Operation: scheduler.OpStop, Instances: instances})
}

// Resume handles POST /api/jobs/{name}/resume
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.handle(w, r)
	if !ok {
		return
	}

	var instances []string
	if h.operator != nil {
		var err error
		if instances, err = h.operator.Resume(r.Context(), handle.Name(), h.scope(r)); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	if err := handle.ResumeManualStoppedJob(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeResult(w, r, api.LifecycleResult{Job: handle.Name(), Operation: scheduler.OpResumeManualStopped, Instances: instances})
}

// Reschedule handles POST /api/jobs/{name}/reschedule
func (h *Handler) Reschedule(w http.ResponseWriter, r *http.Request) {
	handle, ok := h.handle(w, r)
	if !ok {
		return
	}

	var req api.RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Cron == "" {
		h.writeJSON(w, r, http.StatusBadRequest, api.Response{Success: false, Message: "Invalid request body"})
		return
	}

	if h.operator != nil {
		if err := h.operator.Reschedule(r.Context(), handle.Name(), req.Cron); err != nil {
			h.writeError(w, r, err)
			return
		}
	}
	if err := handle.RescheduleJob(r.Context(), req.Cron); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeResult(w, r, api.LifecycleResult{Job: handle.Name(), Operation: scheduler.OpReschedule})
}

func (h *Handler) handle(w http.ResponseWriter, r *http.Request) (jobs.Handle, bool) {
	handle, err := h.registry.JobScheduler(r.PathValue("name"))
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return handle, true
}

// scope returns the instance a flag change targets, "" meaning all servers
func (h *Handler) scope(r *http.Request) string {
	if r.URL.Query().Get("scope") == "all" {
		return ""
	}
	return h.instanceID
}

func (h *Handler) log(r *http.Request) *logger.Logger {
	if l, ok := r.Context().Value(logger.LoggerKey).(*logger.Logger); ok {
		return l
	}
	return h.logger
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, jobs.ErrJobNotRegistered), errors.Is(err, coordination.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidCron):
		return http.StatusBadRequest
	case errors.Is(err, scheduler.ErrNotInitialized), errors.Is(err, engine.ErrShutdown):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		h.log(r).Error().
			Err(err).
			Str("action", "job_request_failed").
			Str("path", r.URL.Path).
			Msg("Job request failed")
	}
	h.writeJSON(w, r, code, api.Response{Success: false, Message: err.Error()})
}

func (h *Handler) writeResult(w http.ResponseWriter, r *http.Request, result api.LifecycleResult) {
	h.log(r).Info().
		Str("action", "job_request_applied").
		Str("job_name", result.Job).
		Str("op", result.Operation).
		Msg("Job lifecycle request applied")
	h.writeJSON(w, r, http.StatusOK, api.Response{Success: true, Data: result})
}

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, code int, body api.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log(r).Error().Err(err).Msg("Failed to encode jobs response")
	}
}
