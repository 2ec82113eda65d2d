package history

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricAnalysesAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_history_analyses_added_total",
		Help: "Total number of analysis records added to the store",
	})

	metricAnalysesRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_history_analyses_removed_total",
		Help: "Total number of analysis records removed from the store",
	})

	metricLogsAdded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentinel_history_activity_logs_added_total",
		Help: "Total number of activity log entries added to the store",
	})

	metricAnalysesSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sentinel_history_analyses_size",
		Help: "Current number of analysis records in the store",
	})

	metricPersistenceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_history_persistence_failures_total",
		Help: "Persistence calls that failed and were swallowed, by operation",
	}, []string{"operation"})

	metricHydrations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentinel_history_hydrations_total",
		Help: "Hydration attempts by outcome",
	}, []string{"outcome"})
)
