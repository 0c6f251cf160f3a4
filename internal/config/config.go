// Package config defines and loads dispatchd's configuration, adapted
// from the teacher's viper-based internal/config package.
package config

import "time"

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for dispatchd.
type Config struct {
	Catalog   CatalogConfig   `mapstructure:"catalog"   yaml:"catalog"`
	Cache     CacheConfig     `mapstructure:"cache"     yaml:"cache"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"   yaml:"fetcher"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Ingest    IngestConfig    `mapstructure:"ingest"    yaml:"ingest"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   yaml:"metrics"`
	API       APIConfig       `mapstructure:"api"       yaml:"api"`
}

// CatalogConfig controls the Mongo-backed catalog store (C1).
type CatalogConfig struct {
	URI      string `mapstructure:"uri"      yaml:"uri"`
	Database string `mapstructure:"database" yaml:"database"`
}

// CacheConfig controls the Redis-backed distributed cache (C2).
type CacheConfig struct {
	Addr          string `mapstructure:"addr"           yaml:"addr"`
	Password      string `mapstructure:"password"       yaml:"password"`
	DB            int    `mapstructure:"db"              yaml:"db"`
	EventsChannel string `mapstructure:"events_channel" yaml:"events_channel"`
	PublishEvents bool   `mapstructure:"publish_events" yaml:"publish_events"`
}

// FetcherConfig controls the ingester's fetch probe.
type FetcherConfig struct {
	HTTPProxyHost   string        `mapstructure:"http_proxy_host"  yaml:"http_proxy_host"`
	HTTPProxyPort   string        `mapstructure:"http_proxy_port"  yaml:"http_proxy_port"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"  yaml:"request_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"    yaml:"max_body_size"`
	MaxRedirects    int           `mapstructure:"max_redirects"    yaml:"max_redirects"`
	FollowRedirects bool          `mapstructure:"follow_redirects" yaml:"follow_redirects"`
	UserAgent       string        `mapstructure:"user_agent"       yaml:"user_agent"`
}

// SchedulerConfig controls NextJob defaults. lock_expiration and
// avg_links_per_page remain per-call parameters per spec.md §6; these are
// only the defaults the HTTP layer falls back to when a caller omits them.
type SchedulerConfig struct {
	DefaultLockExpirationSeconds int64 `mapstructure:"default_lock_expiration_seconds" yaml:"default_lock_expiration_seconds"`
	DefaultAvgLinksPerPage       int   `mapstructure:"default_avg_links_per_page"      yaml:"default_avg_links_per_page"`
}

// IngestConfig controls the ingester.
type IngestConfig struct {
	DefaultConcurrentConnections int `mapstructure:"default_concurrent_connections" yaml:"default_concurrent_connections"`
	ReviewExpirationSeconds      int `mapstructure:"review_expiration_seconds"      yaml:"review_expiration_seconds"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// APIConfig controls the dispatch HTTP server.
type APIConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			URI:      "mongodb://localhost:27017",
			Database: "dispatch",
		},
		Cache: CacheConfig{
			Addr:          "localhost:6379",
			DB:            0,
			EventsChannel: "dispatch.events",
			PublishEvents: false,
		},
		Fetcher: FetcherConfig{
			RequestTimeout:  15 * time.Second,
			MaxBodySize:     10 * 1024 * 1024,
			MaxRedirects:    10,
			FollowRedirects: true,
			UserAgent:       "dispatchd/" + Version,
		},
		Scheduler: SchedulerConfig{
			DefaultLockExpirationSeconds: 300,
			DefaultAvgLinksPerPage:       10,
		},
		Ingest: IngestConfig{
			DefaultConcurrentConnections: 10,
			ReviewExpirationSeconds:      86400,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		API: APIConfig{
			Port: 8080,
		},
	}
}
