package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iddaa-lens/jobscheduler/pkg/logger"
	"github.com/iddaa-lens/jobscheduler/pkg/models/api"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantCode   int
		wantStatus string
		wantStore  string
	}{
		{"store reachable", nil, http.StatusOK, "ok", "ok"},
		{"store unreachable", errors.New("dial tcp: connection refused"), http.StatusServiceUnavailable, "degraded", "unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := pingFunc(func(context.Context) error { return tt.pingErr })
			h := NewHandler(store, "worker-1", func() int { return 3 }, logger.Nop())

			rec := httptest.NewRecorder()
			h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp api.HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantStore, resp.Store)
			assert.Equal(t, "worker-1", resp.InstanceID)
			assert.Equal(t, 3, resp.Jobs)
		})
	}
}
