// Package metrics exposes Prometheus instrumentation for Harmonium.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the server.
type Metrics struct {
	// Upload path
	UploadsTotal     *prometheus.CounterVec // label: result = new|dedup
	UploadBytesTotal prometheus.Counter
	UploadDuration   prometheus.Histogram

	// Deletion cascades
	CascadesTotal       *prometheus.CounterVec // label: result = ok|partial|failed
	CascadeSongsDeleted prometheus.Counter
	CascadeFilesDeleted prometheus.Counter
	CascadeDuration     prometheus.Histogram

	// Orphan file sweep
	GCRunsTotal    prometheus.Counter
	GCFilesDeleted prometheus.Counter
	GCBytesFreed   prometheus.Counter
	GCDuration     prometheus.Histogram
	GCLastRunTime  prometheus.Gauge
	GCOrphanFiles  prometheus.Gauge
}

// New creates and registers all metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		UploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harmonium",
			Name:      "uploads_total",
			Help:      "Total number of upload operations by result.",
		}, []string{"result"}),
		UploadBytesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "harmonium",
			Name:      "upload_bytes_total",
			Help:      "Total bytes accepted through uploads, including deduplicated content.",
		}),
		UploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "harmonium",
			Name:      "upload_duration_seconds",
			Help:      "Upload operation duration.",
			Buckets:   prometheus.DefBuckets,
		}),

		CascadesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "harmonium",
			Name:      "cascades_total",
			Help:      "Total number of library deletion cascades by result.",
		}, []string{"result"}),
		CascadeSongsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "harmonium",
			Name:      "cascade_songs_deleted_total",
			Help:      "Total songs removed by deletion cascades.",
		}),
		CascadeFilesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "harmonium",
			Name:      "cascade_files_deleted_total",
			Help:      "Total file records purged by deletion cascades.",
		}),
		CascadeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "harmonium",
			Name:      "cascade_duration_seconds",
			Help:      "Library deletion cascade duration.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		}),

		GCRunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "harmonium",
			Name:      "gc_runs_total",
			Help:      "Total number of orphan sweep runs.",
		}),
		GCFilesDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "harmonium",
			Name:      "gc_files_deleted_total",
			Help:      "Total orphan files purged by the sweep.",
		}),
		GCBytesFreed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "harmonium",
			Name:      "gc_bytes_freed_total",
			Help:      "Total bytes reclaimed by the sweep.",
		}),
		GCDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "harmonium",
			Name:      "gc_duration_seconds",
			Help:      "Orphan sweep duration.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60},
		}),
		GCLastRunTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "harmonium",
			Name:      "gc_last_run_timestamp_seconds",
			Help:      "Unix timestamp of the last completed sweep.",
		}),
		GCOrphanFiles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "harmonium",
			Name:      "gc_orphan_files",
			Help:      "Orphan files observed by the most recent sweep.",
		}),
	}
}

// NewDefault creates metrics registered with the default registry.
func NewDefault() *Metrics {
	return New(prometheus.DefaultRegisterer)
}

// RecordUpload records one upload operation.
func (m *Metrics) RecordUpload(isNew bool, bytes int64, seconds float64) {
	result := "dedup"
	if isNew {
		result = "new"
	}
	m.UploadsTotal.WithLabelValues(result).Inc()
	m.UploadBytesTotal.Add(float64(bytes))
	m.UploadDuration.Observe(seconds)
}

// RecordCascade records one completed deletion cascade.
func (m *Metrics) RecordCascade(result string, songs, files int, seconds float64) {
	m.CascadesTotal.WithLabelValues(result).Inc()
	m.CascadeSongsDeleted.Add(float64(songs))
	m.CascadeFilesDeleted.Add(float64(files))
	m.CascadeDuration.Observe(seconds)
}

// RecordGCRun records one completed orphan sweep.
func (m *Metrics) RecordGCRun(seconds float64, filesDeleted int, bytesFreed int64) {
	m.GCRunsTotal.Inc()
	m.GCFilesDeleted.Add(float64(filesDeleted))
	m.GCBytesFreed.Add(float64(bytesFreed))
	m.GCDuration.Observe(seconds)
}
