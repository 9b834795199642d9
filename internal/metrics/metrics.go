// Package metrics holds the Prometheus instrumentation for a pool and
// the sessions it drives: slot counts by control state, acquire-wait
// latency, command throughput, and ping/reset outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds all Prometheus metrics for this core.
type Collector struct {
	Registry *prometheus.Registry

	nodesIdle    prometheus.Gauge
	nodesInUse   prometheus.Gauge
	nodesPending prometheus.Gauge
	nodesTotal   prometheus.Gauge
	waiting      prometheus.Gauge

	acquireDuration prometheus.Histogram
	poolExhausted   prometheus.Counter

	commandDuration *prometheus.HistogramVec
	commandErrors   *prometheus.CounterVec

	pingResults  *prometheus.CounterVec
	resetResults *prometheus.CounterVec
	dirtyReturns prometheus.Counter
}

// New creates and registers all Prometheus metrics using a fresh
// registry. Safe to call multiple times (e.g. in tests or on config
// reload) — each call is independent of any other.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		nodesIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mysqlcore_pool_nodes_idle",
			Help: "Number of pool slots currently idle",
		}),
		nodesInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mysqlcore_pool_nodes_in_use",
			Help: "Number of pool slots currently handed out",
		}),
		nodesPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mysqlcore_pool_nodes_pending",
			Help: "Number of pool slots in a pending-ping/reset/connect transition",
		}),
		nodesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mysqlcore_pool_nodes_total",
			Help: "Total number of pool slots created so far",
		}),
		waiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mysqlcore_pool_waiters",
			Help: "Number of callers currently waiting for a slot",
		}),
		acquireDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mysqlcore_pool_acquire_duration_seconds",
			Help:    "Time spent in GetConnection before a slot was handed out",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		poolExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mysqlcore_pool_exhausted_total",
			Help: "Total number of GetConnection calls that had to wait for a slot",
		}),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mysqlcore_command_duration_seconds",
				Help:    "Duration of a session command from write to terminal response",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
			},
			[]string{"command"},
		),
		commandErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mysqlcore_command_errors_total",
				Help: "Session command failures by command and error category",
			},
			[]string{"command", "category"},
		),
		pingResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mysqlcore_pool_ping_results_total",
				Help: "Pool slot ping outcomes",
			},
			[]string{"result"},
		),
		resetResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mysqlcore_pool_reset_results_total",
				Help: "Pool slot COM_RESET_CONNECTION outcomes",
			},
			[]string{"result"},
		),
		dirtyReturns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mysqlcore_pool_dirty_returns_total",
			Help: "Connections returned to the pool flagged as needing a reset",
		}),
	}

	reg.MustRegister(
		c.nodesIdle,
		c.nodesInUse,
		c.nodesPending,
		c.nodesTotal,
		c.waiting,
		c.acquireDuration,
		c.poolExhausted,
		c.commandDuration,
		c.commandErrors,
		c.pingResults,
		c.resetResults,
		c.dirtyReturns,
	)

	return c
}

// UpdatePoolStats sets the slot-count gauges from a pool.Stats snapshot.
// Callers pass the fields directly rather than importing internal/pool
// here, keeping metrics free of a dependency on the package it observes.
func (c *Collector) UpdatePoolStats(idle, inUse, pending, total, waiting int) {
	c.nodesIdle.Set(float64(idle))
	c.nodesInUse.Set(float64(inUse))
	c.nodesPending.Set(float64(pending))
	c.nodesTotal.Set(float64(total))
	c.waiting.Set(float64(waiting))
}

// AcquireDuration observes the time GetConnection spent waiting.
func (c *Collector) AcquireDuration(d time.Duration) {
	c.acquireDuration.Observe(d.Seconds())
}

// PoolExhausted increments the pool-exhausted counter (a GetConnection
// call found no idle slot and had to enqueue as a waiter).
func (c *Collector) PoolExhausted() {
	c.poolExhausted.Inc()
}

// CommandCompleted records a session command's duration.
func (c *Collector) CommandCompleted(command string, d time.Duration) {
	c.commandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// CommandFailed records a session command failure by category (e.g.
// "server", "transport", "client").
func (c *Collector) CommandFailed(command, category string) {
	c.commandErrors.WithLabelValues(command, category).Inc()
}

// PingCompleted records a pool slot ping outcome.
func (c *Collector) PingCompleted(success bool) {
	c.pingResults.WithLabelValues(resultLabel(success)).Inc()
}

// ResetCompleted records a pool slot reset outcome.
func (c *Collector) ResetCompleted(success bool) {
	c.resetResults.WithLabelValues(resultLabel(success)).Inc()
}

// DirtyReturn increments the dirty-return counter.
func (c *Collector) DirtyReturn() {
	c.dirtyReturns.Inc()
}

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
