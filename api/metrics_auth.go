package api

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// authMetrics are the auth-specific collectors. Login outcomes are labelled
// by result so dashboards can separate failures from lockouts.
type authMetrics struct {
	loginOutcomes *prometheus.CounterVec
	lockouts      prometheus.Counter
	rateLimited   prometheus.Counter
}

func newAuthMetrics() *authMetrics {
	return &authMetrics{
		loginOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "washpos_login_attempts_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "washpos_account_lockouts_total",
			Help: "Accounts locked out after repeated failures.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "washpos_login_rate_limited_total",
			Help: "Login requests rejected by the per-address rate limit.",
		}),
	}
}

func (m *authMetrics) register(reg *prometheus.Registry) {
	reg.MustRegister(m.loginOutcomes, m.lockouts, m.rateLimited)
}

// newActiveSessionsGauge reports the live active-session count straight from
// the database at scrape time.
func newActiveSessionsGauge(db *sql.DB) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "washpos_active_sessions",
		Help: "Sessions currently marked active.",
	}, func() float64 {
		if db == nil {
			return 0
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		var n int
		if err := db.QueryRowContext(ctx, `SELECT COUNT(1) FROM sessions WHERE active=1`).Scan(&n); err != nil {
			return 0
		}
		return float64(n)
	})
}
