package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// registerNodeMetrics exposes the manager, journal and mirror counters, read
// at scrape time.
func registerNodeMetrics(reg prometheus.Registerer, n *node) {
	chunks, journal, mirror := n.chunks, n.journal, n.mirror
	const ns = "voxelstore"
	counter := func(sub, name, help string, f func() float64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{Namespace: ns, Subsystem: sub, Name: name, Help: help}, f)
	}
	gauge := func(sub, name, help string, f func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Namespace: ns, Subsystem: sub, Name: name, Help: help}, f)
	}

	reg.MustRegister(
		gauge("chunks", "loaded", "Chunks resident in memory.", func() float64 { return float64(chunks.Stats().Loaded) }),
		counter("chunks", "loads_total", "Chunks read back from the world file.", func() float64 { return float64(chunks.Stats().Loads) }),
		counter("chunks", "generations_total", "Chunks produced by the generator.", func() float64 { return float64(chunks.Stats().Generations) }),
		counter("chunks", "saves_total", "Successful chunk saves.", func() float64 { return float64(chunks.Stats().Saves) }),
		counter("chunks", "save_errors_total", "Failed chunk saves.", func() float64 { return float64(chunks.Stats().SaveErrors) }),
		counter("chunks", "evictions_total", "Chunks dropped from memory.", func() float64 { return float64(chunks.Stats().Evictions) }),
	)
	if journal != nil {
		reg.MustRegister(
			counter("journal", "written_total", "Save rows committed to sqlite.", func() float64 { return float64(journal.Stats().Written) }),
			counter("journal", "dropped_total", "Save rows dropped.", func() float64 { return float64(journal.Stats().Dropped) }),
			gauge("journal", "queue_depth", "Save rows waiting for the writer.", func() float64 { return float64(journal.Stats().QueueDepth) }),
		)
	}
	if mirror != nil {
		reg.MustRegister(
			counter("mirror", "uploads_total", "Backups uploaded to object storage.", func() float64 { return float64(mirror.Stats().UploadSuccessTotal) }),
			counter("mirror", "upload_failures_total", "Backups that failed to upload.", func() float64 { return float64(mirror.Stats().UploadFailTotal) }),
			counter("mirror", "dropped_total", "Backups dropped on a full upload queue.", func() float64 { return float64(mirror.Stats().DroppedTotal) }),
			gauge("mirror", "last_success_unix", "Time of the last successful upload.", func() float64 { return float64(mirror.Stats().LastSuccessUnix) }),
		)
	}
}
