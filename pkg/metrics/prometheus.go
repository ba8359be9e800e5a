package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the detective engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Narrative analysis metrics
	AnalysisRequests *prometheus.CounterVec
	AnalysisDuration prometheus.Histogram

	// Interrogation chat metrics
	InterrogationRequests *prometheus.CounterVec

	// Realtime bridge metrics
	LiveSessionsActive prometheus.Gauge
	LiveSessions       *prometheus.CounterVec
	LiveFramesSent     prometheus.Counter
	LiveFramesReceived prometheus.Counter
	LiveSendErrors     prometheus.Counter
	LiveDecodeErrors   prometheus.Counter
	LiveInterruptions  prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		AnalysisRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "detective_analysis_requests_total",
			Help: "Total number of narrative analysis requests by result",
		}, []string{"result"}),
		AnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "detective_analysis_duration_seconds",
			Help:    "Time spent waiting for the analysis model",
			Buckets: []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
		}),

		InterrogationRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "detective_interrogation_requests_total",
			Help: "Total number of suspect interrogation turns by result",
		}, []string{"result"}),

		LiveSessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "detective_live_sessions_active",
			Help: "Current number of realtime voice sessions",
		}),
		LiveSessions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "detective_live_sessions_total",
			Help: "Total number of realtime voice sessions by outcome",
		}, []string{"outcome"}),
		LiveFramesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "detective_live_frames_sent_total",
			Help: "Total number of capture frames sent to the provider",
		}),
		LiveFramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "detective_live_frames_received_total",
			Help: "Total number of audio frames scheduled for playback",
		}),
		LiveSendErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "detective_live_send_errors_total",
			Help: "Total number of capture frames that failed to send",
		}),
		LiveDecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "detective_live_decode_errors_total",
			Help: "Total number of inbound audio payloads that failed to decode",
		}),
		LiveInterruptions: factory.NewCounter(prometheus.CounterOpts{
			Name: "detective_live_interruptions_total",
			Help: "Total number of barge-in interruptions",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "detective_http_requests_total",
			Help: "Total number of HTTP API requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "detective_http_request_duration_seconds",
			Help:    "HTTP API request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "detective_http_errors_total",
			Help: "Total number of HTTP API errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordAnalysis records one analysis call. result is "ok" or an error kind.
func (m *Metrics) RecordAnalysis(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.AnalysisRequests.WithLabelValues(result).Inc()
	m.AnalysisDuration.Observe(duration.Seconds())
}

// RecordInterrogation records one chat turn.
func (m *Metrics) RecordInterrogation(result string) {
	if m == nil {
		return
	}
	m.InterrogationRequests.WithLabelValues(result).Inc()
}

// RecordLiveSessionStart increments the active session gauge.
func (m *Metrics) RecordLiveSessionStart() {
	if m == nil {
		return
	}
	m.LiveSessionsActive.Inc()
}

// RecordLiveSessionEnd decrements the active session gauge and counts the outcome.
func (m *Metrics) RecordLiveSessionEnd(outcome string) {
	if m == nil {
		return
	}
	m.LiveSessionsActive.Dec()
	m.LiveSessions.WithLabelValues(outcome).Inc()
}

// RecordLiveSessionFailed counts a session that never reached the provider.
func (m *Metrics) RecordLiveSessionFailed(kind string) {
	if m == nil {
		return
	}
	m.LiveSessions.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordFrameSent() {
	if m == nil {
		return
	}
	m.LiveFramesSent.Inc()
}

func (m *Metrics) RecordSendError() {
	if m == nil {
		return
	}
	m.LiveSendErrors.Inc()
}

func (m *Metrics) RecordFrameReceived() {
	if m == nil {
		return
	}
	m.LiveFramesReceived.Inc()
}

func (m *Metrics) RecordDecodeError() {
	if m == nil {
		return
	}
	m.LiveDecodeErrors.Inc()
}

func (m *Metrics) RecordInterruption() {
	if m == nil {
		return
	}
	m.LiveInterruptions.Inc()
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordHTTPError records HTTP error metrics
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
