// Package metrics holds the Prometheus collectors for the API process.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors registered for one process. All methods are
// safe to call on a nil receiver, which records nothing.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	accountsProvisioned *prometheus.CounterVec
	profilesPublished   *prometheus.CounterVec
	messagesSent        prometheus.Counter
	messagesDeleted     prometheus.Counter
	rateLimited         *prometheus.CounterVec
}

// New registers the collectors with reg. Tests pass prometheus.NewRegistry()
// so repeated construction does not collide with the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "localworks_http_requests_total",
			Help: "Total HTTP requests by method, route, and response status.",
		}, []string{"method", "route", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "localworks_http_request_duration_seconds",
			Help:    "Request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		accountsProvisioned: f.NewCounterVec(prometheus.CounterOpts{
			Name: "localworks_accounts_provisioned_total",
			Help: "Accounts created, by path (login or register).",
		}, []string{"via"}),
		profilesPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "localworks_profile_publication_changes_total",
			Help: "Profile publication transitions, by resulting state.",
		}, []string{"state"}),
		messagesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "localworks_contact_messages_sent_total",
			Help: "Contact messages accepted.",
		}),
		messagesDeleted: f.NewCounter(prometheus.CounterOpts{
			Name: "localworks_contact_messages_deleted_total",
			Help: "Contact messages deleted by their recipient.",
		}),
		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "localworks_rate_limited_total",
			Help: "Requests rejected by the per-client rate limiter, by route.",
		}, []string{"route"}),
	}
}

func (m *Metrics) AccountProvisioned(via string) {
	if m == nil {
		return
	}
	m.accountsProvisioned.WithLabelValues(via).Inc()
}

// PublicationChanged records a draft/published transition.
func (m *Metrics) PublicationChanged(published bool) {
	if m == nil {
		return
	}
	state := "draft"
	if published {
		state = "published"
	}
	m.profilesPublished.WithLabelValues(state).Inc()
}

func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
}

func (m *Metrics) MessageDeleted() {
	if m == nil {
		return
	}
	m.messagesDeleted.Inc()
}

func (m *Metrics) RateLimited(route string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(route).Inc()
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, status).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(seconds)
}
