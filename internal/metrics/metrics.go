// Package metrics exposes Prometheus counters for a projection run.
//
// Each Collector owns a private registry, so several runs (or tests) in one
// process never collide on metric names. All methods are safe on a nil
// *Collector, which lets the engine run with metrics disabled without
// branching at every call site.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "loopmerge"

// Collector groups the run metrics.
type Collector struct {
	registry *prometheus.Registry

	merged    *prometheus.CounterVec
	filtered  *prometheus.CounterVec
	accepted  *prometheus.CounterVec
	deltas    *prometheus.CounterVec
	anomalies *prometheus.CounterVec
	liveUnits prometheus.Gauge
	lastLoop  prometheus.Gauge
}

// New creates a collector with its own registry.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		merged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_merged_total",
			Help:      "Events produced by the merge scheduler, by stream.",
		}, []string{"stream"}),
		filtered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_filtered_total",
			Help:      "Events rejected by the filter pipeline, by stream.",
		}, []string{"stream"}),
		accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_accepted_total",
			Help:      "Events applied to replay state, by stream.",
		}, []string{"stream"}),
		deltas: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deltas_emitted_total",
			Help:      "Deltas handed to the sink, by kind.",
		}, []string{"kind"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Benign inconsistencies logged and skipped, by code.",
		}, []string{"code"}),
		liveUnits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_units",
			Help:      "Units currently held by the registry.",
		}),
		lastLoop: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_loop",
			Help:      "Adjusted loop of the most recently applied event.",
		}),
	}
	c.registry.MustRegister(
		c.merged,
		c.filtered,
		c.accepted,
		c.deltas,
		c.anomalies,
		c.liveUnits,
		c.lastLoop,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) EventMerged(stream string) {
	if c == nil {
		return
	}
	c.merged.WithLabelValues(stream).Inc()
}

func (c *Collector) EventFiltered(stream string) {
	if c == nil {
		return
	}
	c.filtered.WithLabelValues(stream).Inc()
}

// EventAccepted also records loop as the run's progress.
func (c *Collector) EventAccepted(stream string, loop int64) {
	if c == nil {
		return
	}
	c.accepted.WithLabelValues(stream).Inc()
	c.lastLoop.Set(float64(loop))
}

func (c *Collector) DeltaEmitted(kind string) {
	if c == nil {
		return
	}
	c.deltas.WithLabelValues(kind).Inc()
}

func (c *Collector) Anomaly(code string) {
	if c == nil {
		return
	}
	c.anomalies.WithLabelValues(code).Inc()
}

func (c *Collector) SetLiveUnits(n int) {
	if c == nil {
		return
	}
	c.liveUnits.Set(float64(n))
}

// WriteTextfile dumps every metric in the text exposition format, for the
// node_exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
