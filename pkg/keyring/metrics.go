package keyring

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	cacheLookups *prometheus.CounterVec
	derivations  prometheus.Counter
	rotations    prometheus.Counter
	decryptFails prometheus.Counter
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		cacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyring",
			Name:      "cache_lookups_total",
			Help:      "Tenant key cache lookups by result.",
		}, []string{"result"}),
		derivations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "keyring",
			Name:      "derivations_total",
			Help:      "Total number of tenant key derivations.",
		}),
		rotations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "keyring",
			Name:      "rotations_total",
			Help:      "Total number of tenant key rotations.",
		}),
		decryptFails: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "keyring",
			Name:      "decrypt_failures_total",
			Help:      "Total number of failed decryptions.",
		}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
