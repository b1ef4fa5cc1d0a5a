// Package metrics exposes daemon counters and gauges in Prometheus format.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "glint"

// Metrics holds the daemon's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	received    prometheus.Counter
	closed      *prometheus.CounterVec
	frames      *prometheus.CounterVec
	surfaceLost prometheus.Counter
	icons       *prometheus.CounterVec

	active  prometheus.Gauge
	visible prometheus.Gauge
	hidden  prometheus.Gauge
	waiting prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_received_total",
			Help:      "Notify requests received.",
		}),
		closed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_closed_total",
			Help:      "Notifications closed, by reason.",
		}, []string{"reason"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Frame submissions, by result.",
		}, []string{"result"}),
		surfaceLost: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "surface_lost_total",
			Help:      "Render surfaces lost while presenting.",
		}),
		icons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "icons_loaded_total",
			Help:      "Icon decode results.",
		}, []string{"result"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notifications_active",
			Help:      "Live notifications.",
		}),
		visible: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notifications_visible",
			Help:      "Notifications currently on screen.",
		}),
		hidden: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notifications_hidden",
			Help:      "Notifications behind the overflow counter.",
		}),
		waiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notifications_waiting",
			Help:      "Notifications held back while inhibited.",
		}),
	}

	m.registry.MustRegister(
		m.received, m.closed, m.frames, m.surfaceLost, m.icons,
		m.active, m.visible, m.hidden, m.waiting,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing the endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Received counts one Notify request.
func (m *Metrics) Received() {
	if m == nil {
		return
	}
	m.received.Inc()
}

// Closed counts one closed notification.
func (m *Metrics) Closed(reason string) {
	if m == nil {
		return
	}
	m.closed.WithLabelValues(reason).Inc()
}

// FrameSubmitted counts one presented frame.
func (m *Metrics) FrameSubmitted() {
	if m == nil {
		return
	}
	m.frames.WithLabelValues("submitted").Inc()
}

// FrameSkipped counts one render call that had nothing to draw.
func (m *Metrics) FrameSkipped() {
	if m == nil {
		return
	}
	m.frames.WithLabelValues("skipped").Inc()
}

// SurfaceLost counts one lost surface.
func (m *Metrics) SurfaceLost() {
	if m == nil {
		return
	}
	m.surfaceLost.Inc()
}

// IconLoaded counts one icon decode result.
func (m *Metrics) IconLoaded(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.icons.WithLabelValues("error").Inc()
		return
	}
	m.icons.WithLabelValues("ok").Inc()
}

// SetCounts updates the population gauges.
func (m *Metrics) SetCounts(active, visible, hidden, waiting int) {
	if m == nil {
		return
	}
	m.active.Set(float64(active))
	m.visible.Set(float64(visible))
	m.hidden.Set(float64(hidden))
	m.waiting.Set(float64(waiting))
}

// Handler returns the scrape handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs the scrape endpoint on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	logger.Info("metrics endpoint listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down metrics endpoint: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics endpoint failed: %w", err)
	}
}
