// Package metrics exposes the service's Prometheus counters.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Redemption and login outcomes.
const (
	OutcomeSuccess            = "success"
	OutcomeNotFound           = "not_found"
	OutcomeExpired            = "expired"
	OutcomeAlreadyUsed        = "already_used"
	OutcomeRaceLost           = "race_lost"
	OutcomeError              = "error"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeEmailNotConfirmed  = "email_not_confirmed"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	InvitesIssuedTotal     *prometheus.CounterVec
	InviteRedemptionsTotal *prometheus.CounterVec
	LoginsTotal            *prometheus.CounterVec
	HTTPRequestsTotal      *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		InvitesIssuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sanctus_invites_issued_total",
				Help: "Total number of invite tokens issued",
			},
			[]string{"role"},
		),
		InviteRedemptionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sanctus_invite_redemptions_total",
				Help: "Invite consumption attempts by outcome",
			},
			[]string{"outcome"},
		),
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sanctus_logins_total",
				Help: "Login attempts by outcome",
			},
			[]string{"outcome"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sanctus_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sanctus_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
	}

	registry.MustRegister(
		m.InvitesIssuedTotal,
		m.InviteRedemptionsTotal,
		m.LoginsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

func (m *Metrics) InviteIssued(role string) {
	if m == nil {
		return
	}
	m.InvitesIssuedTotal.WithLabelValues(role).Inc()
}

func (m *Metrics) InviteRedemption(outcome string) {
	if m == nil {
		return
	}
	m.InviteRedemptionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Login(outcome string) {
	if m == nil {
		return
	}
	m.LoginsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) HTTPRequest(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
