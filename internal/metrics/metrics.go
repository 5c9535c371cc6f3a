// Package metrics exposes Prometheus collectors for dataset preparation and
// the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "borsa_aslani"

// Recorder holds the pipeline and HTTP collectors. Recording on a nil
// *Recorder is a no-op.
type Recorder struct {
	gatherer prometheus.Gatherer

	rowsRemoved       *prometheus.CounterVec
	windowsBuilt      prometheus.Counter
	degenerateColumns *prometheus.CounterVec
	numericWarnings   *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	stageErrors       *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// New registers the collectors on the default registry.
func New() *Recorder {
	return NewWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry registers the collectors on reg and serves them from
// gatherer. Tests pass a fresh prometheus.NewRegistry() for both.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		gatherer: gatherer,
		rowsRemoved: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "rows_removed_total",
				Help:      "Rows removed by the cleaner and by indicator warm-up",
			},
			[]string{"stage"},
		),
		windowsBuilt: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "windows_built_total",
				Help:      "Sliding windows produced for the sequence model",
			},
		),
		degenerateColumns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "degenerate_columns_total",
				Help:      "Constant columns seen while fitting a scaler",
			},
			[]string{"column"},
		),
		numericWarnings: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "numeric_degeneracy_total",
				Help:      "Indicator values that hit a degenerate case such as RSI with zero losses",
			},
			[]string{"column"},
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Duration of each preparation stage",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"stage"},
		),
		stageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "errors_total",
				Help:      "Preparation failures by stage and error kind",
			},
			[]string{"stage", "kind"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route", "method", "class"},
		),
	}
}

// RecordRowsRemoved counts rows dropped by stage ("clean" or "warmup").
func (r *Recorder) RecordRowsRemoved(stage string, rows int) {
	if r == nil {
		return
	}
	if rows > 0 {
		r.rowsRemoved.WithLabelValues(stage).Add(float64(rows))
	}
}

// RecordWindows counts windows produced by the sequence builder.
func (r *Recorder) RecordWindows(count int) {
	if r == nil {
		return
	}
	r.windowsBuilt.Add(float64(count))
}

// RecordDegenerateColumn counts a constant column at scaler fit time.
func (r *Recorder) RecordDegenerateColumn(column string) {
	if r == nil {
		return
	}
	r.degenerateColumns.WithLabelValues(column).Inc()
}

// RecordNumericDegeneracy counts clamped or undefined indicator values.
func (r *Recorder) RecordNumericDegeneracy(column string, count int) {
	if r == nil {
		return
	}
	r.numericWarnings.WithLabelValues(column).Add(float64(count))
}

// ObserveStage records how long a stage took.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordStageError counts a failed stage by error kind.
func (r *Recorder) RecordStageError(stage, kind string) {
	if r == nil {
		return
	}
	r.stageErrors.WithLabelValues(stage, kind).Inc()
}

// ObserveHTTPRequest records one served request. route should be the
// templated route path to keep label cardinality low.
func (r *Recorder) ObserveHTTPRequest(route, method string, status int, d time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(route, method, StatusClass(status)).Observe(d.Seconds())
}

// Handler serves the collected metrics in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// StatusClass maps a status code to "2xx", "4xx" and so on.
func StatusClass(code int) string {
	switch {
	case code >= 100 && code < 200:
		return "1xx"
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
