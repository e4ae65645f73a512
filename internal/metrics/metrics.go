// Package metrics exposes scheduler activity as Prometheus metrics.
//
// Collector implements engine.Observer, so it attaches to a scheduler with
// engine.WithObserver alongside the trace store. Each collector owns its
// registry; Handler serves it for `qsched run --metrics-addr`.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/qsched/internal/engine"
	"github.com/roach88/qsched/internal/ir"
)

const namespace = "qsched"

// Collector counts scheduler events.
type Collector struct {
	registry *prometheus.Registry

	info       *prometheus.GaugeVec
	tags       prometheus.Counter
	tagTime    prometheus.Gauge
	microstep  prometheus.Gauge
	schedule   prometheus.Gauge
	dispatched *prometheus.CounterVec
	failures   *prometheus.CounterVec
	skipped    *prometheus.CounterVec
	idle       *prometheus.CounterVec
	finished   prometheus.Counter
}

var _ engine.Observer = (*Collector)(nil)

// NewCollector creates a collector for one program and registers it on a
// fresh registry together with the Go runtime collectors.
func NewCollector(p *ir.Program) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		info: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Scheduler build and program information.",
		}, []string{"version", "ir_version", "program", "workers"}),
		tags: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tags_advanced_total",
			Help:      "Tags bound by the scheduler, including the start tag.",
		}),
		tagTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_tag_time_nanoseconds",
			Help:      "Logical time of the current tag.",
		}),
		microstep: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_tag_microstep",
			Help:      "Microstep of the current tag.",
		}),
		schedule: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_schedule",
			Help:      "Index of the schedule bound to the current tag.",
		}),
		dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reactions_dispatched_total",
			Help:      "Reactions handed to a worker.",
		}, []string{"worker"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaction_failures_total",
			Help:      "Reaction bodies that returned an error or panicked.",
		}, []string{"reaction"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executes_skipped_total",
			Help:      "Execute instructions for reactions that were not queued.",
		}, []string{"worker"}),
		idle: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_idle_total",
			Help:      "Times a worker reached the end of its stream.",
		}, []string{"worker"}),
		finished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reactions_finished_total",
			Help:      "Reaction bodies that returned.",
		}),
	}

	c.registry.MustRegister(
		c.info, c.tags, c.tagTime, c.microstep, c.schedule,
		c.dispatched, c.failures, c.skipped, c.idle, c.finished,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if p != nil {
		c.info.WithLabelValues(ir.EngineVersion, ir.IRVersion, p.Name, strconv.Itoa(p.Workers)).Set(1)
	}
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

func (c *Collector) TagAdvanced(info engine.TagInfo) {
	c.tags.Inc()
	c.tagTime.Set(float64(info.Tag.Time))
	c.microstep.Set(float64(info.Tag.Microstep))
	c.schedule.Set(float64(info.Schedule))
}

func (c *Collector) ReactionStarted(worker int, _ engine.TagInfo, _ *engine.Reaction) {
	c.dispatched.WithLabelValues(strconv.Itoa(worker)).Inc()
}

func (c *Collector) ReactionFinished(_ int, _ engine.TagInfo, r *engine.Reaction, err error) {
	c.finished.Inc()
	if err != nil {
		c.failures.WithLabelValues(r.Name).Inc()
	}
}

func (c *Collector) ReactionSkipped(worker int, _ engine.TagInfo, _ int) {
	c.skipped.WithLabelValues(strconv.Itoa(worker)).Inc()
}

func (c *Collector) WorkerIdle(worker int, _ engine.TagInfo) {
	c.idle.WithLabelValues(strconv.Itoa(worker)).Inc()
}
