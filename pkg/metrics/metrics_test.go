package metrics

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iddaa-lens/jobscheduler/pkg/engine"
)

func TestListener(t *testing.T) {
	m := New()
	l := m.Listener("reports")
	ctx := context.Background()

	l.OnFire(ctx, engine.Fire{JobKey: "reports"})
	l.OnFire(ctx, engine.Fire{JobKey: "reports", Manual: true})
	l.OnFire(ctx, engine.Fire{JobKey: "reports", Misfired: true})
	l.OnComplete(ctx, engine.Fire{JobKey: "reports", FiredAt: time.Now()}, nil)
	l.OnComplete(ctx, engine.Fire{JobKey: "reports", FiredAt: time.Now()}, errors.New("boom"))
	l.OnMisfire(ctx, engine.Misfire{JobKey: "reports"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.fires.WithLabelValues("reports", KindScheduled)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fires.WithLabelValues("reports", KindManual)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fires.WithLabelValues("reports", KindMisfired)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("reports")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.misfires.WithLabelValues("reports")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.duration))
}

func TestObserveLifecycle(t *testing.T) {
	m := New()

	m.ObserveLifecycle("reports", "stop", nil)
	m.ObserveLifecycle("reports", "stop", nil)
	m.ObserveLifecycle("reports", "stop", errors.New("engine down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.lifecycle.WithLabelValues("reports", "stop", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.lifecycle.WithLabelValues("reports", "stop", "error")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveLifecycle("reports", "init", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `jobscheduler_lifecycle_operations_total{job="reports",op="init",result="success"} 1`))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
