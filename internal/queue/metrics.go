package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue collectors live on the default registry; the API and the worker
// both expose them, each from its own side of the queue.
var (
	// QueueDepth is sampled by the admin stats endpoint.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pricing",
		Subsystem: "queue",
		Name:      "ready_tasks",
		Help:      "Tasks waiting to be claimed, per kind.",
	}, []string{"kind"})
	// QueueProcessedTotal counts handler outcomes: success, retry or dead.
	QueueProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pricing",
		Subsystem: "queue",
		Name:      "processed_total",
		Help:      "Task outcomes per kind.",
	}, []string{"kind", "status"})
	QueueDLQSize = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pricing",
		Subsystem: "queue",
		Name:      "dead_tasks",
		Help:      "Tasks parked in the dead letter list, per kind.",
	}, []string{"kind"})
)
