package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	provisioning  *prometheus.CounterVec
	provisionTime prometheus.Histogram
	lifecycle     *prometheus.CounterVec
	resolutions   *prometheus.CounterVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		provisioning: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenancy",
			Name:      "provisioning_total",
			Help:      "Tenant provisioning attempts by outcome (success, invalid, rolled_back, rollback_failed).",
		}, []string{"outcome"}),
		provisionTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tenancy",
			Name:      "provisioning_duration_seconds",
			Help:      "Duration of tenant provisioning, including rollback.",
			Buckets:   prometheus.DefBuckets,
		}),
		lifecycle: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenancy",
			Name:      "lifecycle_transitions_total",
			Help:      "Tenant lifecycle transitions by action.",
		}, []string{"action"}),
		resolutions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tenancy",
			Name:      "resolutions_total",
			Help:      "Tenant resolution outcomes by method.",
		}, []string{"method"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
