// Package metrics exposes Prometheus instrumentation for the orchestrator's
// concurrency accounting and rate-limiter windows.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder tracks orchestrator-level gauges and counters. All fields are
// safe for concurrent use; the underlying prometheus types handle their own
// synchronization.
type Recorder struct {
	activeAgents    prometheus.Gauge
	pendingTasks    prometheus.Gauge
	completedAgents prometheus.Counter
	failedAgents    prometheus.Counter
	rateLimitWindow *prometheus.GaugeVec
	agentDuration   prometheus.Histogram
}

// NewRecorder registers every metric against reg and returns a Recorder.
// Pass prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests, so repeated construction never panics
// on duplicate registration.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		activeAgents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "conclave_active_agents",
			Help: "Number of agents currently running.",
		}),
		pendingTasks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "conclave_pending_tasks",
			Help: "Number of tasks currently in pending status.",
		}),
		completedAgents: factory.NewCounter(prometheus.CounterOpts{
			Name: "conclave_completed_agents_total",
			Help: "Total number of agents that reached the completed state.",
		}),
		failedAgents: factory.NewCounter(prometheus.CounterOpts{
			Name: "conclave_failed_agents_total",
			Help: "Total number of agents that reached the failed state.",
		}),
		rateLimitWindow: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "conclave_rate_limit_window_count",
			Help: "Registered request count in the current rate-limiter window.",
		}, []string{"window"}),
		agentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "conclave_agent_duration_seconds",
			Help:    "Wall-clock duration of a single agent run.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (r *Recorder) SetActiveAgents(n int)             { r.activeAgents.Set(float64(n)) }
func (r *Recorder) SetPendingTasks(n int)             { r.pendingTasks.Set(float64(n)) }
func (r *Recorder) IncCompletedAgents()               { r.completedAgents.Inc() }
func (r *Recorder) IncFailedAgents()                  { r.failedAgents.Inc() }
func (r *Recorder) ObserveAgentDuration(secs float64) { r.agentDuration.Observe(secs) }

// SetRateLimitWindow records the current registered count for a named
// window ("minute" or "day").
func (r *Recorder) SetRateLimitWindow(window string, count int) {
	r.rateLimitWindow.WithLabelValues(window).Set(float64(count))
}
