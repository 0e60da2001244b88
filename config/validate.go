package config

import (
	"errors"
	"fmt"
	"os"
)

// Validate rejects configurations that would silently weaken the auth core.
func Validate(cfg *AppConfig) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	dev := cfg.AppEnv == "dev" || cfg.AppEnv == "test"
	if !dev {
		if cfg.TokenKey == "" {
			return errors.New("token_key is required (WASHPOS_TOKEN_KEY)")
		}
		if len(cfg.TokenKey) < 32 {
			return errors.New("token_key must be at least 32 bytes")
		}
		if cfg.Pepper == "" {
			return errors.New("pepper is required (WASHPOS_PEPPER)")
		}
	}
	if cfg.TLSEnabled {
		if cfg.TLSCert == "" || cfg.TLSKey == "" {
			return errors.New("tls_cert and tls_key are required when tls_enabled")
		}
		for _, p := range []string{cfg.TLSCert, cfg.TLSKey} {
			if _, err := os.Stat(p); err != nil {
				return fmt.Errorf("tls file %q: %w", p, err)
			}
		}
	}
	if cfg.Security.LoginRateLimit < 1 {
		return errors.New("login_rate_limit must be positive")
	}
	return nil
}
