package pkgmetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline instruments backed by a private registry.
type Metrics struct {
	registry *prometheus.Registry

	uploadsTotal   *prometheus.CounterVec
	uploadBytes    prometheus.Counter
	downloadsTotal *prometheus.CounterVec
	parseSeconds   *prometheus.HistogramVec
	waitTimeouts   prometheus.Counter
}

// New builds a Metrics with all instruments registered.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		uploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tabpipe",
			Name:      "uploads_total",
			Help:      "Uploads received, labeled by outcome.",
		}, []string{"outcome"}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tabpipe",
			Name:      "upload_bytes_total",
			Help:      "Bytes spooled from accepted uploads.",
		}),
		downloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tabpipe",
			Name:      "downloads_total",
			Help:      "Download artifacts served, labeled by encoding.",
		}, []string{"encoding"}),
		parseSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tabpipe",
			Name:      "parse_duration_seconds",
			Help:      "Time spent parsing spooled uploads into tables.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		waitTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tabpipe",
			Name:      "stage_wait_timeouts_total",
			Help:      "Preview or download requests that timed out waiting for a ready artifact.",
		}),
	}

	reg.MustRegister(m.uploadsTotal, m.uploadBytes, m.downloadsTotal, m.parseSeconds, m.waitTimeouts)

	return m
}

// UploadReceived records an accepted upload of the given spooled size.
func (m *Metrics) UploadReceived(bytes int64) {
	m.uploadsTotal.WithLabelValues("accepted").Inc()
	m.uploadBytes.Add(float64(bytes))
}

// UploadRejected records an upload refused at the ingress boundary.
func (m *Metrics) UploadRejected() {
	m.uploadsTotal.WithLabelValues("rejected").Inc()
}

// ParseFinished records one parse attempt and its duration.
func (m *Metrics) ParseFinished(outcome string, d time.Duration) {
	m.parseSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}

// DownloadServed records one completed download stream.
func (m *Metrics) DownloadServed(encoding string) {
	m.downloadsTotal.WithLabelValues(encoding).Inc()
}

// WaitTimedOut records an expired wait for the first ready artifact.
func (m *Metrics) WaitTimedOut() {
	m.waitTimeouts.Inc()
}

// Handler returns the HTTP handler serving the registry in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
