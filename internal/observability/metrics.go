package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the prometheus collectors of the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	HTTPRequests          *prometheus.CounterVec
	HTTPErrors            *prometheus.CounterVec
	HTTPDuration          *prometheus.HistogramVec
	ProviderCalls         *prometheus.CounterVec
	ProviderDuration      *prometheus.HistogramVec
	Classifications       *prometheus.CounterVec
	IntakeTransitions     *prometheus.CounterVec
	TicketsCreated        *prometheus.CounterVec
	BusEnqueued           *prometheus.CounterVec
	BusEvicted            *prometheus.CounterVec
	BusSubscriberFailures *prometheus.CounterVec
	AgentMessages         *prometheus.CounterVec
	AgentDuration         *prometheus.HistogramVec
}

// NewMetrics registers collectors on reg. Pass prometheus.NewRegistry() in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by route, method and status",
		}, []string{"path", "method", "status"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total HTTP errors by route, method and error code",
		}, []string{"path", "method", "code"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		ProviderCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ai_provider_calls_total",
			Help: "Completion calls by provider and outcome",
		}, []string{"provider", "outcome"}),
		ProviderDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ai_provider_call_duration_seconds",
			Help:    "Completion call latency by provider",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		Classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "classifications_total",
			Help: "Classification decisions by method and whether a category was chosen",
		}, []string{"method", "classified"}),
		IntakeTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "intake_transitions_total",
			Help: "Intake state machine transitions",
		}, []string{"from", "to"}),
		TicketsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tickets_created_total",
			Help: "Tickets created by category and source",
		}, []string{"category", "source"}),
		BusEnqueued: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bus_messages_enqueued_total",
			Help: "Messages enqueued by recipient and event",
		}, []string{"recipient", "event"}),
		BusEvicted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bus_messages_evicted_total",
			Help: "Messages dropped because a recipient queue was full",
		}, []string{"recipient"}),
		BusSubscriberFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bus_subscriber_failures_total",
			Help: "Subscriber callbacks that returned an error or panicked",
		}, []string{"event"}),
		AgentMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agent_messages_total",
			Help: "Bus messages handled by agent and outcome",
		}, []string{"agent", "outcome"}),
		AgentDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agent_message_duration_seconds",
			Help:    "Time an agent spent on one bus message",
			Buckets: prometheus.DefBuckets,
		}, []string{"agent"}),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(path, method, code).Inc()
}

// RecordProviderCall tracks one completion call.
func (m *Metrics) RecordProviderCall(provider, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ProviderCalls.WithLabelValues(provider, outcome).Inc()
	m.ProviderDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordClassification tracks a classification decision.
func (m *Metrics) RecordClassification(method string, classified bool) {
	if m == nil {
		return
	}
	m.Classifications.WithLabelValues(method, strconv.FormatBool(classified)).Inc()
}

// RecordTransition tracks an intake step change.
func (m *Metrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.IntakeTransitions.WithLabelValues(from, to).Inc()
}

// RecordTicketCreated tracks issued tickets.
func (m *Metrics) RecordTicketCreated(category, source string) {
	if m == nil {
		return
	}
	if category == "" {
		category = "unclassified"
	}
	m.TicketsCreated.WithLabelValues(category, source).Inc()
}

// RecordEnqueue tracks a bus publish and whether it evicted an older message.
func (m *Metrics) RecordEnqueue(recipient, event string, evicted bool) {
	if m == nil {
		return
	}
	m.BusEnqueued.WithLabelValues(recipient, event).Inc()
	if evicted {
		m.BusEvicted.WithLabelValues(recipient).Inc()
	}
}

// RecordSubscriberFailure tracks a failing bus subscriber.
func (m *Metrics) RecordSubscriberFailure(event string) {
	if m == nil {
		return
	}
	m.BusSubscriberFailures.WithLabelValues(event).Inc()
}

// RecordAgentMessage tracks one message handled by a bus agent.
func (m *Metrics) RecordAgentMessage(agent string, ok bool, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.AgentMessages.WithLabelValues(agent, outcome).Inc()
	m.AgentDuration.WithLabelValues(agent).Observe(duration.Seconds())
}
