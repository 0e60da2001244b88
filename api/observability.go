package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"washpos/core/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var processStartedAt = time.Now().UTC()

func (s *Server) registerObservabilityRoutes() {
	s.router.MethodFunc("GET", "/healthz", s.healthz)
	s.router.MethodFunc("GET", "/readyz", s.readyz)

	if s.cfg != nil && s.cfg.Observability.MetricsEnabled {
		reg := prometheus.NewRegistry()
		_ = reg.Register(collectors.NewGoCollector())
		_ = reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "washpos_uptime_seconds",
			Help: "Process uptime in seconds.",
		}, func() float64 {
			return time.Since(processStartedAt).Seconds()
		}))
		s.metrics.register(reg)
		reg.MustRegister(newActiveSessionsGauge(s.db))

		handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		s.router.Method("GET", "/metrics", s.requireMetricsAuth(handler))
	}
}

func (s *Server) requireMetricsAuth(next http.Handler) http.Handler {
	token := strings.TrimSpace(s.cfg.Observability.MetricsToken)
	if token == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
	expected := []byte("Bearer " + token)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !utils.ConstantTimeEquals([]byte(r.Header.Get("Authorization")), expected) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"now":        time.Now().UTC().Format(time.RFC3339Nano),
		"uptime_sec": int64(time.Since(processStartedAt).Seconds()),
		"app_env":    s.cfg.AppEnv,
	})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	if s.db == nil || s.db.PingContext(ctx) != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
