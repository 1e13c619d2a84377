package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wesleyorama2/surge/internal/ramp"
)

// Collector exports the outcome stream and controller gauges as Prometheus
// metrics. Each Collector owns its registry so several runs can coexist in
// one process.
type Collector struct {
	registry *prometheus.Registry

	iterations *prometheus.CounterVec
	duration   prometheus.Histogram
	checks     *prometheus.CounterVec
}

// NewCollector creates a collector. Worker gauges are read from source on
// every scrape.
func NewCollector(source StatsSource) *Collector {
	if source == nil {
		source = func() *ramp.Stats { return nil }
	}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		iterations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surge_iterations_total",
				Help: "Total number of scenario iterations by outcome",
			},
			[]string{"status"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "surge_iteration_duration_seconds",
				Help:    "Duration of scenario iterations",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
			},
		),
		checks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "surge_checks_total",
				Help: "Total number of check evaluations by name and result",
			},
			[]string{"check", "result"},
		),
	}

	read := func(value func(*ramp.Stats) float64) func() float64 {
		return func() float64 {
			stats := source()
			if stats == nil {
				return 0
			}
			return value(stats)
		}
	}
	gauge := func(name, help string, value func(*ramp.Stats) float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, read(value))
	}

	c.registry.MustRegister(
		c.iterations,
		c.duration,
		c.checks,
		gauge("surge_active_workers", "Workers currently running, including draining ones",
			func(s *ramp.Stats) float64 { return float64(s.ActiveWorkers) }),
		gauge("surge_target_workers", "Worker count the timeline currently asks for",
			func(s *ramp.Stats) float64 { return float64(s.TargetWorkers) }),
		prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Name: "surge_spawn_failures_total",
				Help: "Total number of workers that could not be started",
			},
			read(func(s *ramp.Stats) float64 { return float64(s.SpawnFailures) }),
		),
		gauge("surge_progress_ratio", "Fraction of the timeline elapsed",
			func(s *ramp.Stats) float64 { return s.Progress }),
	)

	return c
}

// Record implements ramp.OutcomeSink.
func (c *Collector) Record(o ramp.Outcome) {
	c.iterations.WithLabelValues(string(o.Status)).Inc()
	c.duration.Observe(o.Duration.Seconds())
	for _, check := range o.Checks {
		result := "pass"
		if !check.Passed {
			result = "fail"
		}
		c.checks.WithLabelValues(check.Name, result).Inc()
	}
}

// Registry returns the registry the collector's metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler exposing the collector's metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

var _ ramp.OutcomeSink = (*Collector)(nil)
