package scheduler

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the scheduler's Prometheus instrumentation, grounded on
// the CounterVec/GaugeVec construction shape of the teacher's
// internal/httpapi/metrics.go (httpRequestsTotal/httpInflight), renamed
// from the HTTP-request namespace to the task-lifecycle one this package
// actually emits. Unlike the teacher's package-level vars registered once
// via init()+MustRegister on the default registerer, Metrics is
// constructed per Scheduler and registered against a caller-supplied
// Registerer — tests build more than one Scheduler per process, which
// would panic on duplicate registration against the global default.
type Metrics struct {
	tasksSubmitted  *prometheus.CounterVec
	tasksDispatched *prometheus.CounterVec
	tasksCompleted  *prometheus.CounterVec
	sessions        prometheus.Counter
	pendingTasks    prometheus.Gauge
}

// NewMetrics constructs scheduler instrumentation under the
// "sessioncore_scheduler_*" namespace. reg may be nil (no registration,
// used by tests that don't care about exposition).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		tasksSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessioncore",
			Subsystem: "scheduler",
			Name:      "tasks_submitted_total",
			Help:      "Total tasks submitted, by kind.",
		}, []string{"kind"}),
		tasksDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessioncore",
			Subsystem: "scheduler",
			Name:      "tasks_dispatched_total",
			Help:      "Total tasks that reached the worker and ran, by kind.",
		}, []string{"kind"}),
		tasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sessioncore",
			Subsystem: "scheduler",
			Name:      "tasks_completed_total",
			Help:      "Total tasks that reached a terminal state, by kind and state.",
		}, []string{"kind", "state"}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sessioncore",
			Subsystem: "scheduler",
			Name:      "sessions_registered_total",
			Help:      "Total sessions registered.",
		}),
		pendingTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sessioncore",
			Subsystem: "scheduler",
			Name:      "pending_tasks",
			Help:      "Tasks currently waiting on predecessors or queued to run.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.tasksSubmitted, m.tasksDispatched, m.tasksCompleted, m.sessions, m.pendingTasks)
	}
	return m
}

func (m *Metrics) submitted(kind string) {
	if m == nil {
		return
	}
	m.tasksSubmitted.WithLabelValues(kind).Inc()
}

func (m *Metrics) dispatched(kind string) {
	if m == nil {
		return
	}
	m.tasksDispatched.WithLabelValues(kind).Inc()
}

func (m *Metrics) completed(kind, state string) {
	if m == nil {
		return
	}
	m.tasksCompleted.WithLabelValues(kind, state).Inc()
}

func (m *Metrics) sessionRegistered() {
	if m == nil {
		return
	}
	m.sessions.Inc()
}

func (m *Metrics) pendingDelta(delta float64) {
	if m == nil {
		return
	}
	m.pendingTasks.Add(delta)
}
