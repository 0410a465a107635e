package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/varoOP/unityscrape/internal/domain"
)

// EnvPrefix is the prefix of every environment variable read, e.g.
// UNITYSCRAPE_DRIVER_PORT for driver.port.
const EnvPrefix = "UNITYSCRAPE"

// Setup registers defaults and environment lookups on v.
func Setup(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("site", "animeunity")
	v.SetDefault("base_url", "https://www.animeunity.so")
	v.SetDefault("search_endpoint", "/archivio/get-animes")
	v.SetDefault("user_agent", "")
	v.SetDefault("request_timeout", 30*time.Second)
	v.SetDefault("wait_timeout", 30*time.Second)
	v.SetDefault("poll_interval", 250*time.Millisecond)
	v.SetDefault("log_level", "info")
	v.SetDefault("discord_webhook_url", "")

	v.SetDefault("driver.binary_path", "")
	v.SetDefault("driver.host", "127.0.0.1")
	v.SetDefault("driver.port", 9222)
	v.SetDefault("driver.headless", true)
	v.SetDefault("driver.args", []string{})
	v.SetDefault("driver.start_timeout", 20*time.Second)
	v.SetDefault("driver.stop_timeout", 5*time.Second)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_interval", 500*time.Millisecond)
	v.SetDefault("retry.max_interval", 10*time.Second)

	// Empty selectors fall back to the site variant's defaults; registered
	// here so they can be overridden from the environment.
	for _, key := range []string{"title", "total_episodes", "available_episodes", "image", "download_link", "canonical_link", "player_ready"} {
		v.SetDefault("selectors."+key, "")
	}
}

// Load loads configuration from the global viper instance:
// 1. Config file (config.yaml or .unityscrape.yaml, optional)
// 2. Environment variables (UNITYSCRAPE_*)
func Load() (*domain.Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom decodes and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*domain.Config, error) {
	cfg := &domain.Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func invalid(format string, args ...any) error {
	return domain.NewError(domain.CodeInvalidConfig, fmt.Sprintf(format, args...), nil)
}

// Validate checks the values the scraper cannot run without
func Validate(cfg *domain.Config) error {
	if cfg.Site == "" {
		return invalid("site is required")
	}

	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("base_url must be an absolute http(s) url, got %q", cfg.BaseURL)
	}

	if !strings.HasPrefix(cfg.SearchEndpoint, "/") {
		return invalid("search_endpoint must start with /, got %q", cfg.SearchEndpoint)
	}

	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		return invalid("invalid log_level: %s", cfg.LogLevel)
	}

	if cfg.RequestTimeout <= 0 || cfg.WaitTimeout <= 0 || cfg.PollInterval <= 0 {
		return invalid("request_timeout, wait_timeout and poll_interval must be positive")
	}

	if cfg.Driver.Port <= 0 || cfg.Driver.Port > 65535 {
		return invalid("driver.port %d out of range", cfg.Driver.Port)
	}

	if cfg.Retry.MaxAttempts < 1 {
		return invalid("retry.max_attempts must be at least 1, got %d", cfg.Retry.MaxAttempts)
	}

	return nil
}
