// Package metrics provides Prometheus metrics for the StoreIt server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeit_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storeit_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// File transfer metrics
	fileBytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storeit_file_bytes_uploaded_total",
			Help: "Total bytes uploaded to the blob store",
		},
	)

	fileBytesDownloaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storeit_file_bytes_downloaded_total",
			Help: "Total bytes downloaded from the blob store",
		},
	)

	fileUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeit_file_uploads_total",
			Help: "Total number of file uploads",
		},
		[]string{"status"},
	)

	fileDownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeit_file_downloads_total",
			Help: "Total number of file downloads",
		},
		[]string{"status"},
	)

	uploadRollbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storeit_upload_rollbacks_total",
			Help: "Total blob deletions compensating a failed record write",
		},
	)

	orphanBlobsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storeit_orphan_blobs_total",
			Help: "Total blobs left behind after a failed delete",
		},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeit_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)

	otpIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storeit_otp_issued_total",
			Help: "Total email OTP codes issued",
		},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storeit_active_sessions",
			Help: "Number of active (non-revoked) sessions",
		},
	)

	// Quota metrics
	quotaExceededTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storeit_quota_exceeded_total",
			Help: "Total uploads rejected by the storage quota",
		},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storeit_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)

	dbConnectionsOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "storeit_db_connections_open",
			Help: "Number of open database connections",
		},
	)

	// Blob store metrics
	blobOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storeit_blob_operation_duration_seconds",
			Help:    "Blob store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	blobOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeit_blob_operations_total",
			Help: "Total blob store operations",
		},
		[]string{"operation", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordFileUpload records a file upload.
func RecordFileUpload(bytes int64, success bool) {
	fileBytesUploaded.Add(float64(bytes))
	status := "success"
	if !success {
		status = "error"
	}
	fileUploadsTotal.WithLabelValues(status).Inc()
}

// RecordFileDownload records a file download.
func RecordFileDownload(bytes int64, success bool) {
	fileBytesDownloaded.Add(float64(bytes))
	status := "success"
	if !success {
		status = "error"
	}
	fileDownloadsTotal.WithLabelValues(status).Inc()
}

// RecordUploadRollback records a compensating blob deletion.
func RecordUploadRollback() {
	uploadRollbacksTotal.Inc()
}

// RecordOrphanBlob records a blob left behind by a failed delete.
func RecordOrphanBlob() {
	orphanBlobsTotal.Inc()
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordOTPIssued records an issued email OTP.
func RecordOTPIssued() {
	otpIssuedTotal.Inc()
}

// SetActiveSessions sets the number of active sessions.
func SetActiveSessions(count int64) {
	activeSessions.Set(float64(count))
}

// RecordQuotaExceeded records a storage quota rejection.
func RecordQuotaExceeded() {
	quotaExceededTotal.Inc()
}

// RecordDBQuery records a database query duration.
func RecordDBQuery(query string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(query).Observe(duration.Seconds())
}

// SetDBConnectionsOpen sets the number of open database connections.
func SetDBConnectionsOpen(count int) {
	dbConnectionsOpen.Set(float64(count))
}

// RecordBlobOperation records a blob store operation.
func RecordBlobOperation(operation string, duration time.Duration, success bool) {
	blobOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	blobOperationsTotal.WithLabelValues(operation, status).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
