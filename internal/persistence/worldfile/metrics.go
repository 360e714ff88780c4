package worldfile

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are optional; a nil *Metrics disables them.
type Metrics struct {
	Saves         *prometheus.CounterVec
	Loads         *prometheus.CounterVec
	AppendedBytes prometheus.Counter
	OrphanedBytes prometheus.Gauge
	FsyncLatency  prometheus.Histogram
}

// NewMetrics builds the store collectors and registers them with reg when it
// is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Saves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxelstore",
			Subsystem: "worldfile",
			Name:      "saves_total",
			Help:      "Chunk saves by placement (inplace or append).",
		}, []string{"mode"}),
		Loads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voxelstore",
			Subsystem: "worldfile",
			Name:      "loads_total",
			Help:      "Chunk loads by result (hit, miss, corrupt).",
		}, []string{"result"}),
		AppendedBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "voxelstore",
			Subsystem: "worldfile",
			Name:      "appended_bytes_total",
			Help:      "Bytes appended to the world file.",
		}),
		OrphanedBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "voxelstore",
			Subsystem: "worldfile",
			Name:      "orphaned_bytes",
			Help:      "Bytes held by superseded records.",
		}),
		FsyncLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voxelstore",
			Subsystem: "worldfile",
			Name:      "fsync_seconds",
			Help:      "Latency of fsync after a save.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
	}
}

func (m *Metrics) save(mode SaveMode, appended int) {
	if m == nil {
		return
	}
	m.Saves.WithLabelValues(string(mode)).Inc()
	if appended > 0 {
		m.AppendedBytes.Add(float64(appended))
	}
}

func (m *Metrics) load(result string) {
	if m == nil {
		return
	}
	m.Loads.WithLabelValues(result).Inc()
}

func (m *Metrics) orphaned(n int64) {
	if m == nil {
		return
	}
	m.OrphanedBytes.Set(float64(n))
}
