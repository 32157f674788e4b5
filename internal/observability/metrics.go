package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Remote API metrics
	apiRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcribe_client_api_requests_total",
		Help: "Total number of requests sent to the transcription service",
	}, []string{"operation", "status"})

	apiLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "transcribe_client_api_latency_seconds",
		Help:    "Transcription service request latency in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 15.0, 60.0},
	}, []string{"operation"})

	// Upload metrics
	uploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcribe_client_upload_bytes_total",
		Help: "Total audio bytes sent in multipart submissions",
	})

	uploadProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "transcribe_client_upload_progress_percent",
		Help: "Progress of the current upload (0-100)",
	})

	// Recording metrics
	recordingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transcribe_client_recording_duration_seconds",
		Help:    "Length of finalized recordings in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	silentRecordings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transcribe_client_silent_recordings_total",
		Help: "Recordings whose energy stayed below the silence threshold",
	})

	// Job store metrics
	jobStoreSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "transcribe_client_jobs",
		Help: "Number of transcription jobs held by the job store",
	})

	staleResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcribe_client_stale_responses_total",
		Help: "Responses discarded because a newer request of the same kind was issued",
	}, []string{"kind"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcribe_client_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "transcribe_client_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"name"})

	// Event feed metrics
	eventSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "transcribe_client_event_subscribers",
		Help: "Number of connected event feed subscribers",
	})
)

// RequestTimer tracks a single remote API call
type RequestTimer struct {
	operation string
	startTime time.Time
}

// StartRequest records the start of a remote API call
func StartRequest(operation string) *RequestTimer {
	return &RequestTimer{
		operation: operation,
		startTime: time.Now(),
	}
}

// End records the outcome of the call
func (r *RequestTimer) End(success bool) {
	apiLatency.WithLabelValues(r.operation).Observe(time.Since(r.startTime).Seconds())

	status := "success"
	if !success {
		status = "error"
	}
	apiRequests.WithLabelValues(r.operation, status).Inc()
}

// RecordError records an error
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordUploadBytes records bytes written to the wire
func RecordUploadBytes(bytes int64) {
	uploadBytes.Add(float64(bytes))
}

// SetUploadProgress publishes the current upload percentage
func SetUploadProgress(percent int) {
	uploadProgress.Set(float64(percent))
}

// RecordRecording records a finalized recording
func RecordRecording(seconds int, silent bool) {
	recordingDuration.Observe(float64(seconds))
	if silent {
		silentRecordings.Inc()
	}
}

// SetJobCount publishes the job store size
func SetJobCount(n int) {
	jobStoreSize.Set(float64(n))
}

// RecordStaleResponse records a discarded out-of-order response
func RecordStaleResponse(kind string) {
	staleResponses.WithLabelValues(kind).Inc()
}

// SubscriberConnected tracks event feed connections
func SubscriberConnected() {
	eventSubscribers.Inc()
}

// SubscriberDisconnected tracks event feed disconnections
func SubscriberDisconnected() {
	eventSubscribers.Dec()
}

// SetBreakerState records the state of a named circuit breaker.
func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}
