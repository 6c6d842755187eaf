package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the GRIB service.
type Metrics struct {
	HTTPRequests *prometheus.CounterVec // labels: route, method, status

	// Decode metrics.
	DecodeDuration prometheus.Histogram
	DecodeErrors   prometheus.Counter
	DecodeCache    *prometheus.CounterVec // labels: result={hit,miss}

	// File lifecycle metrics.
	StoredFiles     prometheus.Gauge
	UploadBytes     prometheus.Histogram
	DownloadBytes   prometheus.Histogram
	Downloads       *prometheus.CounterVec // labels: outcome={success,rejected,error}
	EventsPublished prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()

	prometheus.MustRegister(
		m.HTTPRequests,
		m.DecodeDuration,
		m.DecodeErrors,
		m.DecodeCache,
		m.StoredFiles,
		m.UploadBytes,
		m.DownloadBytes,
		m.Downloads,
		m.EventsPublished,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grib_viewer",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method, and status code.",
		}, []string{"route", "method", "status"}),
		DecodeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "grib_viewer",
			Name:      "decode_duration_seconds",
			Help:      "Time spent decoding a GRIB file into fields.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		DecodeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grib_viewer",
			Name:      "decode_errors_total",
			Help:      "Total GRIB decode failures.",
		}),
		DecodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grib_viewer",
			Name:      "decode_cache_total",
			Help:      "Decode cache lookups by result.",
		}, []string{"result"}),
		StoredFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "grib_viewer",
			Name:      "stored_files",
			Help:      "Number of GRIB files currently in the catalog.",
		}),
		UploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "grib_viewer",
			Name:      "upload_bytes",
			Help:      "Size of uploaded GRIB files in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1<<10, 8, 8),
		}),
		DownloadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "grib_viewer",
			Name:      "download_bytes",
			Help:      "Size of URL-fetched GRIB files in bytes.",
			Buckets:   prometheus.ExponentialBuckets(1<<10, 8, 8),
		}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grib_viewer",
			Name:      "downloads_total",
			Help:      "URL downloads by outcome.",
		}, []string{"outcome"}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grib_viewer",
			Name:      "events_published_total",
			Help:      "File lifecycle events published to Kafka.",
		}),
	}
}
