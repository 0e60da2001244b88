package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *AppConfig {
	return &AppConfig{
		AppEnv:   "prod",
		TokenKey: strings.Repeat("k", 32),
		Pepper:   "pepper",
		Security: SecurityConfig{LoginRateLimit: 5, LoginRateWindow: 15 * time.Minute},
	}
}

func TestValidateRequiresTokenKey(t *testing.T) {
	cfg := validConfig()
	cfg.TokenKey = ""
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for missing token key")
	}
	cfg.TokenKey = "short"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for short token key")
	}
}

func TestValidateRequiresPepper(t *testing.T) {
	cfg := validConfig()
	cfg.Pepper = ""
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for missing pepper")
	}
}

func TestValidateDevRelaxesSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.AppEnv = "dev"
	cfg.TokenKey = ""
	cfg.Pepper = ""
	if err := Validate(cfg); err != nil {
		t.Fatalf("dev config should validate: %v", err)
	}
}

func TestValidateTLSNeedsFiles(t *testing.T) {
	cfg := validConfig()
	cfg.TLSEnabled = true
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for missing tls cert/key")
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := &AppConfig{}
	normalizeConfig(cfg)
	if cfg.Security.LoginRateLimit != 5 {
		t.Fatalf("default rate limit = %d, want 5", cfg.Security.LoginRateLimit)
	}
	if cfg.Security.LoginRateWindow != 15*time.Minute {
		t.Fatalf("default rate window = %v", cfg.Security.LoginRateWindow)
	}
	if cfg.ListenAddr != "0.0.0.0:8080" {
		t.Fatalf("default listen addr = %q", cfg.ListenAddr)
	}
	if cfg.EffectiveTokenTTL() != 24*time.Hour || cfg.EffectiveSessionTTL() != 24*time.Hour {
		t.Fatalf("ttl defaults wrong: %v %v", cfg.EffectiveTokenTTL(), cfg.EffectiveSessionTTL())
	}
}
