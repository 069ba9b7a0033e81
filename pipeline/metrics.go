package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stabilizationPasses = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "worldmesh_stabilization_passes",
		Help:    "Fixpoint passes needed per frame before convergence",
		Buckets: prometheus.LinearBuckets(0, 1, 16),
	})

	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worldmesh_events_dropped_total",
		Help: "Events dropped by a phase-0 pre-filter",
	}, []string{"filter"})

	handlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worldmesh_handler_failures_total",
		Help: "Recovered reaction/maintenance handler failures",
	}, []string{"phase"})
)
