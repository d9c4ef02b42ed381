package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

// Metrics holds the webmail counters. Each instance owns its registry so tests
// can create as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	emailsComposed *prometheus.CounterVec
	copiesCreated  prometheus.Counter
	transitions    *prometheus.CounterVec
	copiesPurged   prometheus.Counter
	accounts       prometheus.Counter
}

// New creates and registers the webmail metrics
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		emailsComposed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webmail_emails_composed_total",
			Help: "Compose requests by result.",
		}, []string{"result"}),
		copiesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webmail_copies_created_total",
			Help: "Per-participant copies created by compose.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webmail_trash_transitions_total",
			Help: "Flag updates by trash transition.",
		}, []string{"transition"}),
		copiesPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webmail_copies_purged_total",
			Help: "Copies permanently deleted from the trash.",
		}),
		accounts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webmail_accounts_registered_total",
			Help: "Accounts registered since start.",
		}),
	}

	m.registry.MustRegister(
		m.emailsComposed,
		m.copiesCreated,
		m.transitions,
		m.copiesPurged,
		m.accounts,
		collectors.NewGoCollector(),
	)
	return m
}

// Composed records a compose request; copies is 0 for failed requests
func (m *Metrics) Composed(copies int, err error) {
	if err != nil {
		m.emailsComposed.WithLabelValues("error").Inc()
		return
	}
	m.emailsComposed.WithLabelValues("ok").Inc()
	m.copiesCreated.Add(float64(copies))
}

// Transition records the outcome of a flag update
func (m *Metrics) Transition(name string) {
	m.transitions.WithLabelValues(name).Inc()
}

// Purged records a permanent deletion
func (m *Metrics) Purged() {
	m.copiesPurged.Inc()
}

// Registered records a new account
func (m *Metrics) Registered() {
	m.accounts.Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
