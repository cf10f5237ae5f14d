package auth

import (
	"github.com/frahmantamala/hospital-auth/internal/lockout"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is optional; a nil *Metrics records nothing.
type Metrics struct {
	loginAttempts *prometheus.CounterVec
	lockouts      prometheus.Counter
	accessDenied  *prometheus.CounterVec
	registrations prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_account_lockouts_total",
			Help: "Accounts locked after repeated failed logins.",
		}),
		accessDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_access_denied_total",
			Help: "Authenticated requests refused for missing roles.",
		}, []string{"mode"}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_registrations_total",
			Help: "Patient self-registrations.",
		}),
	}

	for _, c := range []prometheus.Collector{m.loginAttempts, m.lockouts, m.accessDenied, m.registrations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) loginOutcome(o lockout.Outcome) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(o.String()).Inc()
}

func (m *Metrics) lockedOut() {
	if m == nil {
		return
	}
	m.lockouts.Inc()
}

func (m *Metrics) denied(mode DenyMode) {
	if m == nil {
		return
	}
	m.accessDenied.WithLabelValues(mode.String()).Inc()
}

func (m *Metrics) registered() {
	if m == nil {
		return
	}
	m.registrations.Inc()
}
