package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics holds the switch and conflict instrumentation.
type Metrics struct {
	registry  *prometheus.Registry
	switches  *prometheus.CounterVec
	conflicts *prometheus.GaugeVec
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Default returns the process-wide Metrics instance.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// New returns Metrics registered on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		switches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ccswitch",
				Name:      "switch_total",
				Help:      "Profile switch requests by tool, result and failing stage",
			},
			[]string{"tool", "result", "stage"},
		),
		conflicts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "ccswitch",
				Name:      "env_conflicts",
				Help:      "Environment conflicts found by the most recent scan",
			},
			[]string{"tool"},
		),
	}
	m.registry.MustRegister(m.switches, m.conflicts)
	return m
}

// ObserveSwitch records the outcome of one switch request. stage is empty on
// success.
func (m *Metrics) ObserveSwitch(tool, result, stage string) {
	if m == nil {
		return
	}
	if stage == "" {
		stage = "none"
	}
	m.switches.WithLabelValues(tool, result, stage).Inc()
}

// SetConflicts records the conflict count of the latest scan of tool.
func (m *Metrics) SetConflicts(tool string, n int) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(tool).Set(float64(n))
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics server did not shut down cleanly")
		}
	}()

	log.Info().Str("addr", addr).Msg("metrics endpoint listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
