package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"washpos/api/handlers"
	"washpos/config"
	"washpos/core/auth"
	"washpos/core/rbac"
	"washpos/core/retention"
	"washpos/core/store"
	"washpos/core/utils"

	"github.com/go-chi/chi/v5"
)

type Server struct {
	cfg        *config.AppConfig
	router     *chi.Mux
	httpServer *http.Server
	logger     *utils.Logger
	db         *sql.DB

	accounts store.AccountsStore
	sessions store.SessionsStore
	devices  store.DevicesStore
	audits   store.AuditStore

	recorder *auth.Recorder
	authSvc  *auth.Service
	policy   *rbac.Policy
	sweeper  *retention.Sweeper

	loginLimiter *requestLimiter
	metrics      *authMetrics
}

func NewServer(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) (*Server, error) {
	accounts := store.NewAccountsStore(db)
	sessions := store.NewSessionsStore(db)
	devices := store.NewDevicesStore(db)
	audits := store.NewAuditStore(db)

	recorder := auth.NewRecorder(audits, logger)
	tokens, err := auth.NewTokenManager([]byte(cfg.TokenKey), cfg.EffectiveTokenTTL())
	if err != nil {
		return nil, err
	}
	authSvc := auth.NewService(accounts, sessions, devices, audits, recorder, tokens, logger, cfg.Pepper, cfg.EffectiveSessionTTL())

	s := &Server{
		cfg:          cfg,
		router:       chi.NewRouter(),
		logger:       logger,
		db:           db,
		accounts:     accounts,
		sessions:     sessions,
		devices:      devices,
		audits:       audits,
		recorder:     recorder,
		authSvc:      authSvc,
		policy:       rbac.NewPolicy(rbac.DefaultRoles()),
		sweeper:      retention.NewSweeper(cfg, sessions, audits, logger),
		loginLimiter: newLimiter(cfg.Security.LoginRateLimit, cfg.Security.LoginRateWindow),
		metrics:      newAuthMetrics(),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) Start() error {
	if err := s.sweeper.Start(); err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	if s.cfg.TLSEnabled {
		return s.httpServer.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.sweeper.Stop()
	err := s.httpServer.Shutdown(ctx)
	s.recorder.Close()
	return err
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.securityHeadersMiddleware)

	s.registerObservabilityRoutes()

	authHandler := handlers.NewAuthHandler(
		s.authSvc,
		s.logger,
		s.requestMeta,
		func(outcome string) { s.metrics.loginOutcomes.WithLabelValues(outcome).Inc() },
		func() { s.metrics.lockouts.Inc() },
	)
	accHandler := handlers.NewAccountsHandler(s.authSvc, s.policy, s.logger)

	s.router.Route("/auth", func(r chi.Router) {
		r.Get("/setup-required", authHandler.SetupRequired)
		r.Post("/setup", authHandler.Setup)
		r.Post("/login", s.rateLimitMiddleware(authHandler.Login))
		r.Post("/logout", authHandler.Logout)
		r.Get("/verify", s.withAuth(authHandler.Verify))
		r.Post("/change-password", s.withAuth(s.requirePermission("auth.password.change")(authHandler.ChangePassword)))
		r.Get("/profile", s.withAuth(s.requirePermission("auth.profile")(authHandler.Profile)))
		r.Get("/sessions", s.withAuth(s.requirePermission("auth.sessions.view")(authHandler.Sessions)))
		r.Post("/sessions/{id}/revoke", s.withAuth(s.requirePermission("auth.sessions.revoke")(authHandler.RevokeSession)))
		r.Get("/devices", s.withAuth(s.requirePermission("auth.devices.view")(authHandler.Devices)))
		r.Get("/audit", s.withAuth(s.requirePermission("auth.audit.view")(authHandler.Audit)))
	})

	s.router.Route("/accounts", func(r chi.Router) {
		r.Get("/", s.withAuth(s.requirePermission("accounts.view")(accHandler.List)))
		r.Get("/roles", s.withAuth(s.requirePermission("accounts.view")(accHandler.Roles)))
		r.Post("/", s.withAuth(s.requirePermission("accounts.manage")(accHandler.Create)))
		r.Post("/{id}/activate", s.withAuth(s.requirePermission("accounts.manage")(accHandler.Activate)))
		r.Post("/{id}/deactivate", s.withAuth(s.requirePermission("accounts.manage")(accHandler.Deactivate)))
	})
}
