package services

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	events  *prometheus.CounterVec
	purged  *prometheus.CounterVec
	flushes *prometheus.CounterVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		events: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "audit",
			Name:      "events_total",
			Help:      "Audit events by outcome (recorded, dropped, failed).",
		}, []string{"result"}),
		purged: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "audit",
			Name:      "purged_events_total",
			Help:      "Audit events removed by retention, by reason.",
		}, []string{"reason"}),
		flushes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "audit",
			Name:      "buffer_flushes_total",
			Help:      "Buffered sink flushes by trigger.",
		}, []string{"trigger"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}
