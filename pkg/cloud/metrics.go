package cloud

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricPush = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "extbridge",
		Subsystem: "cloud",
		Name:      "push_total",
		Help:      "Cloud pushes, by result.",
	}, []string{"result"})
	metricPull = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "extbridge",
		Subsystem: "cloud",
		Name:      "pull_total",
		Help:      "Cloud pulls, by result.",
	}, []string{"result"})
	metricChunksWritten = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "extbridge",
		Subsystem: "cloud",
		Name:      "chunks_written",
		Help:      "Data chunks written per successful push.",
		Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
	})
)
