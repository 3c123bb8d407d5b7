package archive

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "objarchiver"
	metricsSubsystem = "archive"
	opLabel          = "op"
)

// Metrics records pipeline progress. A nil *Metrics records nothing.
type Metrics struct {
	objectsArchived prometheus.Counter
	objectsSkipped  prometheus.Counter
	objectsFiltered prometheus.Counter
	sourceBytes     prometheus.Counter
	archiveBytes    prometheus.Counter
	partsUploaded   prometheus.Counter
	retries         *prometheus.CounterVec
	aborted         prometheus.Counter
	partDuration    prometheus.Histogram
	runDuration     prometheus.Gauge
	lastSuccess     prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      name,
			Help:      help,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      name,
			Help:      help,
		})
	}

	m := &Metrics{
		objectsArchived: counter("objects_archived_total", "Objects written into the archive."),
		objectsSkipped:  counter("objects_skipped_total", "Objects that disappeared between listing and reading."),
		objectsFiltered: counter("objects_filtered_total", "Objects excluded by the cutoff."),
		sourceBytes:     counter("source_bytes_total", "Object content bytes read from the source."),
		archiveBytes:    counter("archive_bytes_total", "Bytes uploaded to the destination, after compression."),
		partsUploaded:   counter("parts_uploaded_total", "Multipart upload parts committed."),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "store_retries_total",
			Help:      "Store calls retried after a transient failure.",
		}, []string{opLabel}),
		aborted: counter("uploads_aborted_total", "Multipart uploads aborted after a failure."),
		partDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "part_upload_duration_seconds",
			Help:      "Time spent uploading one part, retries included.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		runDuration: gauge("run_duration_seconds", "Duration of the last run."),
		lastSuccess: gauge("last_success_timestamp_seconds", "Unix time of the last successful run."),
	}

	if reg != nil {
		reg.MustRegister(
			m.objectsArchived, m.objectsSkipped, m.objectsFiltered, m.sourceBytes, m.archiveBytes,
			m.partsUploaded, m.retries, m.aborted, m.partDuration, m.runDuration, m.lastSuccess,
		)
	}
	return m
}

// RetryHook counts retries per store operation. Pass it to
// objstore.WithRetryHook.
func (m *Metrics) RetryHook(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

func (m *Metrics) objectArchived(size int64) {
	if m == nil {
		return
	}
	m.objectsArchived.Inc()
	m.sourceBytes.Add(float64(size))
}

func (m *Metrics) objectSkipped() {
	if m == nil {
		return
	}
	m.objectsSkipped.Inc()
}

func (m *Metrics) objectsExcluded(n int64) {
	if m == nil {
		return
	}
	m.objectsFiltered.Add(float64(n))
}

func (m *Metrics) partUploaded(size int64, took time.Duration) {
	if m == nil {
		return
	}
	m.partsUploaded.Inc()
	m.archiveBytes.Add(float64(size))
	m.partDuration.Observe(took.Seconds())
}

func (m *Metrics) uploadAborted() {
	if m == nil {
		return
	}
	m.aborted.Inc()
}

func (m *Metrics) runFinished(took time.Duration, ok bool) {
	if m == nil {
		return
	}
	m.runDuration.Set(took.Seconds())
	if ok {
		m.lastSuccess.SetToCurrentTime()
	}
}
