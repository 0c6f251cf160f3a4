package config

import "fmt"

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Catalog.URI == "" {
		return fmt.Errorf("catalog.uri must be set")
	}
	if cfg.Catalog.Database == "" {
		return fmt.Errorf("catalog.database must be set")
	}
	if cfg.Cache.Addr == "" {
		return fmt.Errorf("cache.addr must be set")
	}
	if cfg.Fetcher.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher.request_timeout must be > 0")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Scheduler.DefaultLockExpirationSeconds <= 0 {
		return fmt.Errorf("scheduler.default_lock_expiration_seconds must be > 0")
	}
	if cfg.Scheduler.DefaultAvgLinksPerPage <= 0 {
		return fmt.Errorf("scheduler.default_avg_links_per_page must be > 0")
	}
	if cfg.Ingest.DefaultConcurrentConnections < 0 {
		return fmt.Errorf("ingest.default_concurrent_connections must be >= 0")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.API.Port < 1 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port must be 1-65535, got %d", cfg.API.Port)
	}

	return nil
}
