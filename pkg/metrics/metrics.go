// Package metrics exposes Prometheus counters for filtering decisions.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the urlfilter collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	EventsTotal      *prometheus.CounterVec
	RedirectsTotal   *prometheus.CounterVec
	ConfigUpdates    *prometheus.CounterVec
	DetectionEntries prometheus.Gauge
}

// New creates the collectors and registers them with reg when it is not nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "urlfilter_events_total",
				Help: "Events processed by outcome and reason",
			},
			[]string{"outcome", "reason"},
		),
		RedirectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "urlfilter_redirects_total",
				Help: "Redirects issued by browser app and whether the untargeted fallback was used",
			},
			[]string{"app", "fallback"},
		),
		ConfigUpdates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "urlfilter_config_updates_total",
				Help: "Remote configuration refreshes by status",
			},
			[]string{"status"},
		),
		DetectionEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "urlfilter_detection_entries",
				Help: "Number of (app, url) pairs held in detection memory",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.EventsTotal, m.RedirectsTotal, m.ConfigUpdates, m.DetectionEntries)
	}
	return m
}

// ObserveDecision counts one processed event.
func (m *Metrics) ObserveDecision(outcome, reason string) {
	if m == nil {
		return
	}
	m.EventsTotal.WithLabelValues(outcome, reason).Inc()
}

// ObserveRedirect counts one issued redirect.
func (m *Metrics) ObserveRedirect(app string, fallback bool) {
	if m == nil {
		return
	}
	m.RedirectsTotal.WithLabelValues(app, strconv.FormatBool(fallback)).Inc()
}

// ObserveConfigUpdate counts one configuration refresh.
func (m *Metrics) ObserveConfigUpdate(status string) {
	if m == nil {
		return
	}
	m.ConfigUpdates.WithLabelValues(status).Inc()
}

// SetDetectionEntries reports the detection memory size.
func (m *Metrics) SetDetectionEntries(n int) {
	if m == nil {
		return
	}
	m.DetectionEntries.Set(float64(n))
}

// Serve exposes gatherer on addr under /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("serving metrics", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
