package config

import (
	"encoding/json"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DaemonConfig holds daemon-specific settings.
type DaemonConfig struct {
	ProjectRoot   string        `json:"project_root" yaml:"project_root"`
	SocketPath    string        `json:"socket_path" yaml:"socket_path"`
	PidFile       string        `json:"pid_file" yaml:"pid_file"`
	AgentSocket   string        `json:"agent_socket" yaml:"agent_socket"`
	Watch         bool          `json:"watch" yaml:"watch"`
	WatchDebounce time.Duration `json:"watch_debounce" yaml:"watch_debounce"`
	Include       []string      `json:"include" yaml:"include"`
	Exclude       []string      `json:"exclude" yaml:"exclude"`
	Jobs          int           `json:"jobs" yaml:"jobs"`
	LogLevel      string        `json:"log_level" yaml:"log_level"`
	Verbose       bool          `json:"verbose" yaml:"verbose"`
}

// TierConfig holds the tiered compilation controller's settings.
type TierConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Tier1   uint64 `json:"tier1" yaml:"tier1"`
	Tier2   uint64 `json:"tier2" yaml:"tier2"`
	Tier3   uint64 `json:"tier3" yaml:"tier3"`
}

// RecheckConfig holds the periodic full-recheck scheduler's settings.
type RecheckConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	CronSpec string `json:"cron_spec" yaml:"cron_spec"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Exporter    string  `json:"exporter" yaml:"exporter"`         // otlp-http, otlp-grpc, stdout
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // localhost:4318
	ServiceName string  `json:"service_name" yaml:"service_name"` // dxd
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace"`
	Addr      string `json:"addr" yaml:"addr"` // :9464
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level          string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format         string `json:"format" yaml:"format"` // text, json
	IncludeTraceID bool   `json:"include_trace_id" yaml:"include_trace_id"`
}

// ObservabilityConfig groups the daemon's tracing/metrics/logging
// settings.
type ObservabilityConfig struct {
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// AuthConfig holds optional IPC peer API-key authentication settings.
type AuthConfig struct {
	Enabled    bool           `json:"enabled" yaml:"enabled"`
	StaticKeys []StaticAPIKey `json:"static_keys" yaml:"static_keys"`
}

// StaticAPIKey is an API key defined directly in config.
type StaticAPIKey struct {
	Name string `json:"name" yaml:"name"`
	Key  string `json:"key" yaml:"key"`
}

// RateLimitConfig holds optional per-peer rate limiting settings for the
// registry's execute path.
type RateLimitConfig struct {
	Enabled           bool    `json:"enabled" yaml:"enabled"`
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	BurstSize         int     `json:"burst_size" yaml:"burst_size"`
	RedisAddr         string  `json:"redis_addr" yaml:"redis_addr"`
}

// CacheConfig holds optional check-result cache settings.
type CacheConfig struct {
	Enabled   bool          `json:"enabled" yaml:"enabled"`
	RedisAddr string        `json:"redis_addr" yaml:"redis_addr"`
	TTL       time.Duration `json:"ttl" yaml:"ttl"`
}

// StoreConfig holds optional audit-log persistence settings.
type StoreConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

// NotifyConfig holds optional webhook notification settings.
type NotifyConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	URL           string        `json:"url" yaml:"url"`
	SigningSecret string        `json:"signing_secret" yaml:"signing_secret"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout"`
}

// Config is the central configuration struct embedding every component's
// config.
type Config struct {
	Daemon        DaemonConfig        `json:"daemon" yaml:"daemon"`
	Tier          TierConfig          `json:"tier" yaml:"tier"`
	Recheck       RecheckConfig       `json:"recheck" yaml:"recheck"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
	Auth          AuthConfig          `json:"auth" yaml:"auth"`
	RateLimit     RateLimitConfig     `json:"rate_limit" yaml:"rate_limit"`
	Cache         CacheConfig         `json:"cache" yaml:"cache"`
	Store         StoreConfig         `json:"store" yaml:"store"`
	Notify        NotifyConfig        `json:"notify" yaml:"notify"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Daemon: DaemonConfig{
			AgentSocket:   "/tmp/dx-agent.sock",
			Watch:         true,
			WatchDebounce: 100 * time.Millisecond,
			Jobs:          runtime.NumCPU(),
			LogLevel:      "info",
		},
		Tier: TierConfig{
			Enabled: true,
			Tier1:   100,
			Tier2:   1000,
			Tier3:   10000,
		},
		Recheck: RecheckConfig{
			Enabled:  false,
			CronSpec: "@every 10m",
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{
				Enabled:     false,
				Exporter:    "otlp-http",
				Endpoint:    "localhost:4318",
				ServiceName: "dxd",
				SampleRate:  1.0,
			},
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "dx",
				Addr:      ":9464",
			},
			Logging: LoggingConfig{
				Level:          "info",
				Format:         "text",
				IncludeTraceID: true,
			},
		},
		Auth: AuthConfig{
			Enabled: false,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			RequestsPerSecond: 50,
			BurstSize:         100,
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     5 * time.Minute,
		},
		Store: StoreConfig{
			Enabled: false,
		},
		Notify: NotifyConfig{
			Enabled: false,
			Timeout: 5 * time.Second,
		},
	}
}

// LoadFromFile loads configuration from a JSON or YAML file, chosen by
// file extension (.yaml/.yml selects YAML; anything else is parsed as
// JSON).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to cfg.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("DX_PROJECT_ROOT"); v != "" {
		cfg.Daemon.ProjectRoot = v
	}
	if v := os.Getenv("DX_SOCKET_PATH"); v != "" {
		cfg.Daemon.SocketPath = v
	}
	if v := os.Getenv("DX_PID_FILE"); v != "" {
		cfg.Daemon.PidFile = v
	}
	if v := os.Getenv("DX_AGENT_SOCKET"); v != "" {
		cfg.Daemon.AgentSocket = v
	}
	if v := os.Getenv("DX_WATCH"); v != "" {
		cfg.Daemon.Watch = parseBool(v)
	}
	if v := os.Getenv("DX_WATCH_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Daemon.WatchDebounce = d
		}
	}
	if v := os.Getenv("DX_JOBS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Daemon.Jobs = n
		}
	}
	if v := os.Getenv("DX_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
	}

	if v := os.Getenv("DX_TIER_ENABLED"); v != "" {
		cfg.Tier.Enabled = parseBool(v)
	}
	if v := os.Getenv("DX_TIER1_THRESHOLD"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Tier.Tier1 = n
		}
	}
	if v := os.Getenv("DX_TIER2_THRESHOLD"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Tier.Tier2 = n
		}
	}
	if v := os.Getenv("DX_TIER3_THRESHOLD"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Tier.Tier3 = n
		}
	}

	if v := os.Getenv("DX_RECHECK_ENABLED"); v != "" {
		cfg.Recheck.Enabled = parseBool(v)
	}
	if v := os.Getenv("DX_RECHECK_CRON"); v != "" {
		cfg.Recheck.CronSpec = v
	}

	if v := os.Getenv("DX_TRACING_ENABLED"); v != "" {
		cfg.Observability.Tracing.Enabled = parseBool(v)
	}
	if v := os.Getenv("DX_TRACING_ENDPOINT"); v != "" {
		cfg.Observability.Tracing.Endpoint = v
	}
	if v := os.Getenv("DX_TRACING_EXPORTER"); v != "" {
		cfg.Observability.Tracing.Exporter = v
	}
	if v := os.Getenv("DX_TRACING_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Observability.Tracing.SampleRate = f
		}
	}
	if v := os.Getenv("DX_METRICS_ENABLED"); v != "" {
		cfg.Observability.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("DX_METRICS_ADDR"); v != "" {
		cfg.Observability.Metrics.Addr = v
	}
	if v := os.Getenv("DX_LOG_FORMAT"); v != "" {
		cfg.Observability.Logging.Format = v
	}
	if v := os.Getenv("DX_LOG_INCLUDE_TRACE_ID"); v != "" {
		cfg.Observability.Logging.IncludeTraceID = parseBool(v)
	}

	if v := os.Getenv("DX_AUTH_ENABLED"); v != "" {
		cfg.Auth.Enabled = parseBool(v)
	}

	if v := os.Getenv("DX_RATELIMIT_ENABLED"); v != "" {
		cfg.RateLimit.Enabled = parseBool(v)
	}
	if v := os.Getenv("DX_RATELIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimit.RequestsPerSecond = f
		}
	}
	if v := os.Getenv("DX_RATELIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.BurstSize = n
		}
	}
	if v := os.Getenv("DX_RATELIMIT_REDIS_ADDR"); v != "" {
		cfg.RateLimit.RedisAddr = v
	}

	if v := os.Getenv("DX_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = parseBool(v)
	}
	if v := os.Getenv("DX_CACHE_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("DX_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = d
		}
	}

	if v := os.Getenv("DX_STORE_ENABLED"); v != "" {
		cfg.Store.Enabled = parseBool(v)
	}
	if v := os.Getenv("DX_STORE_DSN"); v != "" {
		cfg.Store.DSN = v
		cfg.Store.Enabled = true
	}

	if v := os.Getenv("DX_NOTIFY_ENABLED"); v != "" {
		cfg.Notify.Enabled = parseBool(v)
	}
	if v := os.Getenv("DX_NOTIFY_URL"); v != "" {
		cfg.Notify.URL = v
		cfg.Notify.Enabled = true
	}
	if v := os.Getenv("DX_NOTIFY_SIGNING_SECRET"); v != "" {
		cfg.Notify.SigningSecret = v
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes"
}
