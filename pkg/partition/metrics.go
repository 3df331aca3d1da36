package partition

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	scopesTotal     *prometheus.CounterVec
	scopeDuration   *prometheus.HistogramVec
	ddlTotal        *prometheus.CounterVec
	existenceChecks *prometheus.CounterVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		scopesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "partition",
			Name:      "scopes_total",
			Help:      "Total number of partition scopes entered.",
		}, []string{"nested", "result"}),
		scopeDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "partition",
			Name:      "scope_duration_seconds",
			Help:      "Time spent inside a partition scope.",
			Buckets: []float64{
				0.001, 0.005, 0.01, 0.05,
				0.1, 0.5, 1, 5,
			},
		}, []string{"result"}),
		ddlTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "partition",
			Name:      "ddl_total",
			Help:      "Total number of partition create/drop/migrate operations.",
		}, []string{"op", "result"}),
		existenceChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "partition",
			Name:      "existence_checks_total",
			Help:      "Partition existence lookups by source.",
		}, []string{"source"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
