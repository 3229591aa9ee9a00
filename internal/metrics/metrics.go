// Package metrics exposes Prometheus collectors for imports, exports and HTTP
// traffic.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "schoolbulk"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"method", "route"},
	)

	importRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "rows_total",
			Help:      "Rows processed by committed imports, by result.",
		},
		[]string{"module", "result"},
	)

	importAccounts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "import",
			Name:      "accounts_total",
			Help:      "Account provisioning attempts, by result.",
		},
		[]string{"module", "result"},
	)

	previewRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "preview",
			Name:      "rows_total",
			Help:      "Rows classified by previews, by status.",
		},
		[]string{"module", "status"},
	)

	exportRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "export",
			Name:      "records_total",
			Help:      "Records written to export workbooks.",
		},
		[]string{"module"},
	)
)

func init() {
	Registry.MustRegister(
		httpRequests,
		httpDuration,
		importRows,
		importAccounts,
		previewRows,
		exportRecords,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler records request counts and latency labelled by the chi
// route pattern, so path parameters do not explode label cardinality.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordImport counts the rows and accounts of one committed import.
func RecordImport(module string, success, failed, skipped, accountsCreated, accountsFailed int) {
	importRows.WithLabelValues(module, "success").Add(float64(success))
	importRows.WithLabelValues(module, "failed").Add(float64(failed))
	importRows.WithLabelValues(module, "skipped").Add(float64(skipped))
	importAccounts.WithLabelValues(module, "created").Add(float64(accountsCreated))
	importAccounts.WithLabelValues(module, "failed").Add(float64(accountsFailed))
}

// RecordRetry counts the accounts of one retry request.
func RecordRetry(module string, created, failed int) {
	importAccounts.WithLabelValues(module, "created").Add(float64(created))
	importAccounts.WithLabelValues(module, "failed").Add(float64(failed))
}

// RecordPreview counts the rows a preview classified.
func RecordPreview(module string, valid, invalid, duplicate int) {
	previewRows.WithLabelValues(module, "valid").Add(float64(valid))
	previewRows.WithLabelValues(module, "invalid").Add(float64(invalid))
	previewRows.WithLabelValues(module, "duplicate").Add(float64(duplicate))
}

// RecordExport counts the records written for one module.
func RecordExport(module string, records int) {
	exportRecords.WithLabelValues(module).Add(float64(records))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
