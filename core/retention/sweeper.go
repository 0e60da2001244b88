package retention

import (
	"context"
	"time"

	"washpos/config"
	"washpos/core/store"
	"washpos/core/utils"

	"github.com/robfig/cron/v3"
)

// Sweeper is storage hygiene, not correctness: the inline caps and the
// validate-time expiry remain the source of truth. It revokes sessions idle
// past the session TTL that nobody validated since, and hard-deletes session
// and audit rows past the retention window.
type Sweeper struct {
	cfg      *config.AppConfig
	sessions store.SessionsStore
	audit    store.AuditStore
	logger   *utils.Logger
	cron     *cron.Cron
}

func NewSweeper(cfg *config.AppConfig, sessions store.SessionsStore, audit store.AuditStore, logger *utils.Logger) *Sweeper {
	return &Sweeper{
		cfg:      cfg,
		sessions: sessions,
		audit:    audit,
		logger:   logger,
	}
}

func (s *Sweeper) Start() error {
	if s == nil || !s.cfg.Retention.Enabled {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Retention.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.Sweep(ctx)
	}); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	if s.logger != nil {
		s.logger.Printf("retention sweeper scheduled (%s)", s.cfg.Retention.Schedule)
	}
	return nil
}

func (s *Sweeper) Stop() {
	if s == nil || s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}

// Sweep runs one pass. Exposed for tests and the Start callback.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	revoked, err := s.sessions.PurgeStale(ctx, now.Add(-s.cfg.EffectiveSessionTTL()))
	if err != nil {
		if s.logger != nil {
			s.logger.Errorf("retention: purge stale sessions: %v", err)
		}
	} else if revoked > 0 && s.logger != nil {
		s.logger.Printf("retention: revoked %d idle sessions", revoked)
	}

	cutoff := now.Add(-s.cfg.Retention.SessionMaxAge)
	deleted, err := s.sessions.DeleteRevokedBefore(ctx, cutoff)
	if err != nil {
		if s.logger != nil {
			s.logger.Errorf("retention: delete dead sessions: %v", err)
		}
	} else if deleted > 0 && s.logger != nil {
		s.logger.Printf("retention: deleted %d dead session rows", deleted)
	}

	trimmed, err := s.audit.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		if s.logger != nil {
			s.logger.Errorf("retention: trim audit: %v", err)
		}
	} else if trimmed > 0 && s.logger != nil {
		s.logger.Printf("retention: deleted %d old audit rows", trimmed)
	}
}
