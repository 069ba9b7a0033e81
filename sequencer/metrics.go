package sequencer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hupe1980/worldmesh/core"
)

var (
	framesCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "worldmesh_frames_committed_total",
		Help: "Total number of frames committed, by direction",
	}, []string{"direction"})

	currentSequence = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "worldmesh_current_sequence",
		Help: "Sequence number of the most recently committed frame",
	})

	frameDeltas = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "worldmesh_frame_deltas",
		Help:    "Number of deltas per committed frame",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8),
	})

	commitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "worldmesh_frame_commit_duration_seconds",
		Help:    "Wall time spent committing a frame",
		Buckets: prometheus.DefBuckets,
	})
)

func observeCommit(frame core.Frame, dur time.Duration) {
	framesCommitted.WithLabelValues(string(frame.Direction)).Inc()
	currentSequence.Set(float64(frame.Sequence))
	frameDeltas.Observe(float64(len(frame.Operations)))
	commitDuration.Observe(dur.Seconds())
}
