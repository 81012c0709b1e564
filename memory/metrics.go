package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var workingEvictionsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "agentcore",
	Subsystem: "working_memory",
	Name:      "evictions_total",
	Help:      "Entries evicted from working memory due to capacity pressure.",
})
