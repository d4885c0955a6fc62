package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/iddaa-lens/jobscheduler/pkg/logger"
	"github.com/iddaa-lens/jobscheduler/pkg/models/api"
)

const pingTimeout = 2 * time.Second

// Pinger reports whether the coordination store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler handles health check requests
type Handler struct {
	store      Pinger
	instanceID string
	jobCount   func() int
	logger     *logger.Logger
}

// NewHandler creates a new health handler
func NewHandler(store Pinger, instanceID string, jobCount func() int, log *logger.Logger) *Handler {
	return &Handler{
		store:      store,
		instanceID: instanceID,
		jobCount:   jobCount,
		logger:     log,
	}
}

// HealthCheck handles the /health endpoint. It answers 503 while the
// coordination store is unreachable.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	response := api.HealthResponse{
		Status:     "ok",
		Timestamp:  time.Now(),
		InstanceID: h.instanceID,
		Store:      "ok",
	}
	if h.jobCount != nil {
		response.Jobs = h.jobCount()
	}

	code := http.StatusOK
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		err := h.store.Ping(ctx)
		cancel()
		if err != nil {
			h.logger.Warn().
				Err(err).
				Str("action", "health_store_unreachable").
				Msg("Coordination store ping failed")
			response.Status = "degraded"
			response.Store = "unreachable"
			code = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error().
			Err(err).
			Str("action", "health_check_failed").
			Str("endpoint", "/health").
			Msg("Failed to encode health response")
		return
	}

	h.logger.Debug().
		Str("action", "health_check").
		Str("endpoint", "/health").
		Str("method", r.Method).
		Str("remote_addr", r.RemoteAddr).
		Int("status_code", code).
		Dur("duration", time.Since(start)).
		Msg("Health check completed")
}
