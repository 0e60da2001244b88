package config

import "time"

type AppConfig struct {
	DBDriver   string        `yaml:"db_driver" env:"WASHPOS_DB_DRIVER"`
	DBURL      string        `yaml:"db_url" env:"WASHPOS_DB_URL"`
	DBPath     string        `yaml:"db_path" env:"WASHPOS_DB_PATH"`
	ListenAddr string        `yaml:"listen_addr" env:"WASHPOS_LISTEN_ADDR" env-default:"0.0.0.0:8080"`
	AppEnv     string        `yaml:"app_env" env:"WASHPOS_APP_ENV"`
	TokenKey   string        `yaml:"token_key" env:"WASHPOS_TOKEN_KEY"`
	TokenTTL   time.Duration `yaml:"token_ttl" env:"WASHPOS_TOKEN_TTL"`
	SessionTTL time.Duration `yaml:"session_ttl" env:"WASHPOS_SESSION_TTL"`
	Pepper     string        `yaml:"pepper" env:"WASHPOS_PEPPER"`
	TLSEnabled bool          `yaml:"tls_enabled" env:"WASHPOS_TLS_ENABLED"`
	TLSCert    string        `yaml:"tls_cert" env:"WASHPOS_TLS_CERT"`
	TLSKey     string        `yaml:"tls_key" env:"WASHPOS_TLS_KEY"`

	Security      SecurityConfig      `yaml:"security"`
	Retention     RetentionConfig     `yaml:"retention"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type SecurityConfig struct {
	// Login rate limit per client address, before any account logic runs.
	LoginRateLimit  int           `yaml:"login_rate_limit" env:"WASHPOS_LOGIN_RATE_LIMIT"`
	LoginRateWindow time.Duration `yaml:"login_rate_window" env:"WASHPOS_LOGIN_RATE_WINDOW"`
	TrustedProxies  []string      `yaml:"trusted_proxies" env:"WASHPOS_TRUSTED_PROXIES"`
}

type RetentionConfig struct {
	Enabled bool `yaml:"enabled" env:"WASHPOS_RETENTION_ENABLED" env-default:"true"`
	// Cron expression for the storage hygiene sweep.
	Schedule string `yaml:"schedule" env:"WASHPOS_RETENTION_SCHEDULE"`
	// Revoked/expired session rows older than this are deleted outright.
	SessionMaxAge time.Duration `yaml:"session_max_age" env:"WASHPOS_RETENTION_SESSION_MAX_AGE"`
}

type ObservabilityConfig struct {
	MetricsEnabled bool   `yaml:"metrics_enabled" env:"WASHPOS_METRICS_ENABLED"`
	MetricsToken   string `yaml:"metrics_token" env:"WASHPOS_METRICS_TOKEN"`
}

// EffectiveTokenTTL is the bearer token lifetime; sessions expire on the same
// 24h horizon measured from last activity rather than issue time.
func (c *AppConfig) EffectiveTokenTTL() time.Duration {
	if c == nil || c.TokenTTL <= 0 {
		return 24 * time.Hour
	}
	return c.TokenTTL
}

func (c *AppConfig) EffectiveSessionTTL() time.Duration {
	if c == nil || c.SessionTTL <= 0 {
		return 24 * time.Hour
	}
	return c.SessionTTL
}
