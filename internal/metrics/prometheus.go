package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sjawhar/call-insights/internal/audio"
	"github.com/sjawhar/call-insights/internal/sentiment"
	"github.com/sjawhar/call-insights/internal/session"
)

// Metrics contains all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	ActiveSessions prometheus.Gauge
	SessionsOpened prometheus.Counter
	SessionsClosed *prometheus.CounterVec

	// Audio metrics
	FragmentsReceived prometheus.Counter
	FragmentBytes     prometheus.Counter
	Flushes           *prometheus.CounterVec
	NormalizeResults  *prometheus.CounterVec
	FlushDuration     prometheus.Histogram
	DeliveryFailures  prometheus.Counter

	// Transcription metrics
	Transcriptions        *prometheus.CounterVec
	TranscriptionDuration *prometheus.HistogramVec

	// Sentiment metrics
	SentimentLabels *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates all metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "call_insights_active_sessions",
			Help: "Current number of streaming sessions",
		}),
		SessionsOpened: f.NewCounter(prometheus.CounterOpts{
			Name: "call_insights_sessions_opened_total",
			Help: "Total number of streaming sessions started",
		}),
		SessionsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "call_insights_sessions_closed_total",
			Help: "Total number of streaming sessions ended, by final status",
		}, []string{"status"}),

		FragmentsReceived: f.NewCounter(prometheus.CounterOpts{
			Name: "call_insights_fragments_total",
			Help: "Total number of audio fragments consumed",
		}),
		FragmentBytes: f.NewCounter(prometheus.CounterOpts{
			Name: "call_insights_fragment_bytes_total",
			Help: "Total bytes of audio fragments consumed",
		}),
		Flushes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "call_insights_flushes_total",
			Help: "Total number of buffer flushes, by trigger",
		}, []string{"reason"}),
		NormalizeResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "call_insights_normalize_results_total",
			Help: "Outcome of audio normalization per flush",
		}, []string{"result"}),
		FlushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "call_insights_flush_duration_seconds",
			Help:    "Time from flush start to delivery",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "call_insights_delivery_failures_total",
			Help: "Total number of flush results the peer did not receive",
		}),

		Transcriptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "call_insights_transcriptions_total",
			Help: "Speech-to-text calls, by provider and outcome",
		}, []string{"provider", "outcome"}),
		TranscriptionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "call_insights_transcription_duration_seconds",
			Help:    "Duration of speech-to-text calls",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}, []string{"provider"}),

		SentimentLabels: f.NewCounterVec(prometheus.CounterOpts{
			Name: "call_insights_sentiment_labels_total",
			Help: "Sentiment labels assigned, by label and classifier path",
		}, []string{"label", "source"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "call_insights_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "call_insights_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

func (m *Metrics) SessionOpened() {
	m.SessionsOpened.Inc()
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed(status string) {
	m.SessionsClosed.WithLabelValues(status).Inc()
	m.ActiveSessions.Dec()
}

func (m *Metrics) FragmentReceived(bytes int) {
	m.FragmentsReceived.Inc()
	m.FragmentBytes.Add(float64(bytes))
}

func (m *Metrics) FlushCompleted(reason session.FlushReason, normalize audio.Reason, elapsed time.Duration) {
	m.Flushes.WithLabelValues(string(reason)).Inc()
	m.NormalizeResults.WithLabelValues(string(normalize)).Inc()
	m.FlushDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) DeliveryFailed() {
	m.DeliveryFailures.Inc()
}

// ObserveTranscription records one provider call.
func (m *Metrics) ObserveTranscription(provider string, elapsed time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.Transcriptions.WithLabelValues(provider, outcome).Inc()
	m.TranscriptionDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveSentiment(label sentiment.Label, source string) {
	m.SentimentLabels.WithLabelValues(string(label), source).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, elapsed time.Duration) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(elapsed.Seconds())
}
