package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	defaultConfigPath = "config/app.yaml"
	envPrefix         = "WASHPOS_"
)

func Load() (*AppConfig, error) {
	cfg := &AppConfig{}
	cfgPath := resolveConfigPath()
	if st, err := os.Stat(cfgPath); err == nil && !st.IsDir() {
		if err := cleanenv.ReadConfig(cfgPath, cfg); err != nil {
			return nil, err
		}
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, err
	}
	applyEnvAliases(cfg)
	normalizeConfig(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvAliases(cfg *AppConfig) {
	if cfg == nil {
		return
	}
	if v := getEnv("PEPPER"); v != "" {
		cfg.Pepper = strings.TrimSpace(v)
	}
	if v := getEnv("TOKEN_KEY", "JWT_SECRET"); v != "" {
		cfg.TokenKey = strings.TrimSpace(v)
	}
	if v := getEnv("ENV", "APP_ENV"); v != "" {
		cfg.AppEnv = strings.TrimSpace(v)
	}
	if v := getEnv("PORT", envPrefix+"PORT"); v != "" {
		cfg.ListenAddr = listenAddrWithPort(cfg.ListenAddr, v)
	}
	if v := getEnv("DATABASE_URL"); v != "" {
		cfg.DBURL = strings.TrimSpace(v)
	}
}

func normalizeConfig(cfg *AppConfig) {
	if cfg == nil {
		return
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	cfg.DBURL = strings.TrimSpace(cfg.DBURL)
	cfg.DBPath = strings.TrimSpace(cfg.DBPath)
	cfg.ListenAddr = strings.TrimSpace(cfg.ListenAddr)
	cfg.AppEnv = strings.ToLower(strings.TrimSpace(cfg.AppEnv))
	cfg.TokenKey = strings.TrimSpace(cfg.TokenKey)
	cfg.Pepper = strings.TrimSpace(cfg.Pepper)
	cfg.Observability.MetricsToken = strings.TrimSpace(cfg.Observability.MetricsToken)
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "0.0.0.0:8080"
	}
	if cfg.Security.LoginRateLimit <= 0 {
		cfg.Security.LoginRateLimit = 5
	}
	if cfg.Security.LoginRateWindow <= 0 {
		cfg.Security.LoginRateWindow = 15 * time.Minute
	}
	if cfg.Retention.Schedule == "" {
		cfg.Retention.Schedule = "@hourly"
	}
	if cfg.Retention.SessionMaxAge <= 0 {
		cfg.Retention.SessionMaxAge = 7 * 24 * time.Hour
	}
}

func getEnv(keys ...string) string {
	for _, key := range keys {
		if key == "" {
			continue
		}
		if val := os.Getenv(key); val != "" {
			return val
		}
	}
	return ""
}

func resolveConfigPath() string {
	if v := getEnv("APP_CONFIG", envPrefix+"APP_CONFIG"); v != "" {
		return strings.TrimSpace(v)
	}
	return defaultConfigPath
}

func listenAddrWithPort(currentAddr, portRaw string) string {
	port := strings.TrimSpace(portRaw)
	if port == "" {
		return currentAddr
	}
	if _, err := strconv.Atoi(port); err != nil {
		return currentAddr
	}
	host := "0.0.0.0"
	parts := strings.Split(strings.TrimSpace(currentAddr), ":")
	if len(parts) > 1 {
		host = strings.Join(parts[:len(parts)-1], ":")
	}
	if host == "" {
		host = "0.0.0.0"
	}
	return host + ":" + port
}
