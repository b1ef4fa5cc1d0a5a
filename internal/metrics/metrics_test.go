package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.Received()
	m.Received()
	m.Closed("expired")
	m.Closed("dismissed")
	m.Closed("expired")
	m.FrameSubmitted()
	m.FrameSkipped()
	m.FrameSkipped()
	m.SurfaceLost()
	m.IconLoaded(nil)
	m.IconLoaded(errors.New("boom"))
	m.SetCounts(7, 5, 2, 1)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.received))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.closed.WithLabelValues("expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.closed.WithLabelValues("dismissed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.frames.WithLabelValues("submitted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.frames.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.surfaceLost))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.icons.WithLabelValues("error")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.active))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.hidden))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Received()
		m.Closed("expired")
		m.FrameSubmitted()
		m.FrameSkipped()
		m.SurfaceLost()
		m.IconLoaded(nil)
		m.SetCounts(1, 1, 0, 0)
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Received()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "glint_notifications_received_total 1"))
}
