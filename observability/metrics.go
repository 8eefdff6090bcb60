package observability

import (
	"batepapo/domain"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "batepapo"

// Metrics holds the engine counters. Every method accepts a nil receiver so
// components can run without metrics in tests.
type Metrics struct {
	registry       *prometheus.Registry
	joins          prometheus.Counter
	evictions      prometheus.Counter
	evictionErrors prometheus.Counter
	messages       *prometheus.CounterVec
	deletions      prometheus.Counter
	censoredWords  prometheus.Counter
	requests       *prometheus.CounterVec
}

// NewMetrics registers the collectors on a private registry. activeParticipants
// is sampled at scrape time.
func NewMetrics(activeParticipants func() float64) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		joins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "participants_joined_total",
			Help:      "Participants that joined the chat.",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "participants_evicted_total",
			Help:      "Participants removed after inactivity.",
		}),
		evictionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweeper_errors_total",
			Help:      "Evictions or leave notices that failed and were deferred to the next sweep.",
		}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_posted_total",
			Help:      "Messages appended to the log, by type.",
		}, []string{"type"}),
		deletions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_deleted_total",
			Help:      "Messages deleted by their sender.",
		}),
		censoredWords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "censored_words_total",
			Help:      "Forbidden words masked in message texts.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),
	}
	m.registry.MustRegister(
		m.joins, m.evictions, m.evictionErrors, m.messages,
		m.deletions, m.censoredWords, m.requests,
		collectors.NewGoCollector(),
	)
	if activeParticipants != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "participants_active",
			Help:      "Participants currently registered.",
		}, activeParticipants))
	}
	return m
}

func (m *Metrics) ParticipantJoined() {
	if m != nil {
		m.joins.Inc()
	}
}

func (m *Metrics) ParticipantEvicted() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *Metrics) SweepFailed() {
	if m != nil {
		m.evictionErrors.Inc()
	}
}

func (m *Metrics) MessagePosted(t domain.MessageType) {
	if m != nil {
		m.messages.WithLabelValues(string(t)).Inc()
	}
}

func (m *Metrics) MessageDeleted() {
	if m != nil {
		m.deletions.Inc()
	}
}

func (m *Metrics) WordsCensored(count int) {
	if m != nil && count > 0 {
		m.censoredWords.Add(float64(count))
	}
}

func (m *Metrics) RequestServed(route string, status int) {
	if m != nil {
		m.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	}
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests that need to gather values directly.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
