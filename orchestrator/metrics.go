package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agentcore",
		Subsystem: "orchestrator",
		Name:      "tasks_created_total",
		Help:      "Tasks created.",
	})
	tasksAssignedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agentcore",
		Subsystem: "orchestrator",
		Name:      "tasks_assigned_total",
		Help:      "Tasks assigned to an agent.",
	})
	tasksCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agentcore",
		Subsystem: "orchestrator",
		Name:      "tasks_completed_total",
		Help:      "Tasks completed successfully.",
	})
	tasksFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agentcore",
		Subsystem: "orchestrator",
		Name:      "tasks_failed_total",
		Help:      "Tasks that finished with an error.",
	})
	tasksCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agentcore",
		Subsystem: "orchestrator",
		Name:      "tasks_cancelled_total",
		Help:      "Tasks cancelled before finishing.",
	})
	tasksBlocked = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentcore",
		Subsystem: "orchestrator",
		Name:      "tasks_blocked",
		Help:      "Tasks currently gated on incomplete dependencies.",
	})
	agentsRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "agentcore",
		Subsystem: "orchestrator",
		Name:      "agents_registered",
		Help:      "Agents currently registered.",
	})
	messagesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "agentcore",
		Subsystem: "orchestrator",
		Name:      "messages_sent_total",
		Help:      "Inter-agent messages appended to the log.",
	})
)
