package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitepulse_events_received_total",
		Help: "Total number of normalized events, labelled by target table.",
	}, []string{"table"})

	EventsPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitepulse_events_persisted_total",
		Help: "Total number of events upserted, labelled by target table.",
	}, []string{"table"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitepulse_events_dropped_total",
		Help: "Total number of events not persisted, labelled by reason.",
	}, []string{"reason"})

	SitesAutoRegistered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sitepulse_sites_auto_registered_total",
		Help: "Total number of sites created by ingestion, labelled by whether the owner reference was dropped.",
	}, []string{"orphan"})

	MirrorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sitepulse_mirror_failures_total",
		Help: "Total number of failed analytics mirror writes.",
	})

	IngestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sitepulse_ingest_duration_seconds",
		Help:    "Ingest request latency, labelled by HTTP status code.",
		Buckets: prometheus.DefBuckets,
	}, []string{"code"})
)
