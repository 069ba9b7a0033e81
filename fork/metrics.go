package fork

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rollbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worldmesh_rollbacks_total",
		Help: "Rollback attempts by outcome",
	}, []string{"outcome"})

	framesDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "worldmesh_frames_discarded_total",
		Help: "Frames discarded by rollbacks",
	})
)
