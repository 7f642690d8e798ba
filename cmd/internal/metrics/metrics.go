// Package metrics exposes the service's Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values for attempt counters.
const (
	ResultOK        = "ok"
	ResultDenied    = "denied"
	ResultThrottled = "throttled"
	ResultInvalid   = "invalid"
	ResultExpired   = "expired"
	ResultReused    = "reused"
	ResultError     = "error"
)

// Metrics holds the service counters on a private registry so tests can
// construct isolated instances.
type Metrics struct {
	reg *prometheus.Registry

	LoginAttempts *prometheus.CounterVec
	Refreshes     *prometheus.CounterVec
	Lockouts      prometheus.Counter
	ReuseDetected prometheus.Counter
}

// New constructs and registers the warden metric set.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_login_attempts_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "warden_refresh_total",
			Help: "Refresh-token redemptions by result.",
		}, []string{"result"}),
		Lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_login_lockouts_total",
			Help: "Lockout blocks applied by the login throttle.",
		}),
		ReuseDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "warden_refresh_reuse_detected_total",
			Help: "Refresh-token reuse events that triggered mass revocation.",
		}),
	}

	reg.MustRegister(
		m.LoginAttempts,
		m.Refreshes,
		m.Lockouts,
		m.ReuseDetected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
