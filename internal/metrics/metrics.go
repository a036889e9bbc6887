package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	WebhookEvents    *prometheus.CounterVec
	InboundMessages  *prometheus.CounterVec
	OutboundMessages *prometheus.CounterVec
	GraphRequests    *prometheus.CounterVec
	GraphLatency     *prometheus.HistogramVec
	OpenAIRequests   *prometheus.CounterVec
	OpenAILatency    *prometheus.HistogramVec
	CredentialExpiry *prometheus.CounterVec
	Errors           *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_events_total",
				Help:      "Total inbound webhook events by outcome.",
			}, []string{"outcome"}),
			InboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "inbound_messages_total",
				Help:      "Total inbound WhatsApp messages processed by modality.",
			}, []string{"type"}),
			OutboundMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbound_messages_total",
				Help:      "Total outbound WhatsApp messages by send status.",
			}, []string{"status"}),
			GraphRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graph_requests_total",
				Help:      "Total WhatsApp Graph API requests by endpoint and status.",
			}, []string{"endpoint", "status"}),
			GraphLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "graph_request_duration_seconds",
				Help:      "Latency distribution for WhatsApp Graph API requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"endpoint", "status"}),
			OpenAIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "openai_requests_total",
				Help:      "Total OpenAI API requests by operation and outcome.",
			}, []string{"operation", "status"}),
			OpenAILatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "openai_request_duration_seconds",
				Help:      "Latency distribution for OpenAI API calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation", "status"}),
			CredentialExpiry: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credential_expiry_total",
				Help:      "Provider credential expiries detected per channel.",
			}, []string{"phone_number_id"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.WebhookEvents,
			metricsInstance.InboundMessages,
			metricsInstance.OutboundMessages,
			metricsInstance.GraphRequests,
			metricsInstance.GraphLatency,
			metricsInstance.OpenAIRequests,
			metricsInstance.OpenAILatency,
			metricsInstance.CredentialExpiry,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
