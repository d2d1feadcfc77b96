package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pulsewatch/pulsewatch/internal/metric"
)

// Default values for the daemon configuration.
const (
	DefaultHTTPPort       = 8080
	DefaultSampleInterval = 5 * time.Second
	DefaultStreamInterval = 5 * time.Second

	DefaultWebhookRetries = 3
	DefaultWebhookBackoff = time.Second
	DefaultSMTPPort       = 587
)

// Environment variable names for the sink configuration surface. Absence of
// a sink's variables disables that sink.
const (
	EnvWebhookURL     = "ALERT_WEBHOOK_URL"
	EnvWebhookRetries = "ALERT_WEBHOOK_RETRIES"
	EnvWebhookBackoff = "ALERT_WEBHOOK_BACKOFF"
	EnvSMTPHost       = "ALERT_SMTP_HOST"
	EnvSMTPPort       = "ALERT_SMTP_PORT"
	EnvSMTPUser       = "ALERT_SMTP_USER"
	EnvSMTPPass       = "ALERT_SMTP_PASS"
	EnvAlertFrom      = "ALERT_FROM"
	EnvAlertTo        = "ALERT_TO"
	EnvDatabaseURL    = "DATABASE_URL"
)

// Config holds all daemon settings parsed from the YAML file.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Sampler    SamplerConfig    `yaml:"sampler"`
	Storage    StorageConfig    `yaml:"storage"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
}

// ServerConfig holds the HTTP surface settings.
type ServerConfig struct {
	// HTTPPort is the port the REST API and WebSocket stream listen on.
	HTTPPort int `yaml:"http_port"`

	// StreamInterval is how often the WebSocket hub broadcasts state.
	StreamInterval time.Duration `yaml:"stream_interval"`
}

// SamplerConfig controls the metric collection loop.
type SamplerConfig struct {
	// Interval between collector ticks.
	Interval time.Duration `yaml:"interval"`

	// Subject is the optional identity the pipeline evaluates thresholds
	// for. Empty means only global thresholds apply.
	Subject string `yaml:"subject"`

	// Source is one of: host | exposition.
	Source string `yaml:"source"`

	// Exposition configures the Prometheus-text source, used when
	// Source == "exposition".
	Exposition ExpositionConfig `yaml:"exposition"`
}

// ExpositionConfig points the sampler at a Prometheus-format metrics
// endpoint instead of reading the host directly.
type ExpositionConfig struct {
	// Endpoint is the URL of the exposition page, e.g. a node exporter.
	Endpoint string `yaml:"endpoint"`

	// Families maps each metric kind to the metric family whose summed
	// value supplies it.
	Families map[string]string `yaml:"families"`
}

// StorageConfig bounds the in-memory store's retention. It is ignored when
// DATABASE_URL selects the Postgres store.
type StorageConfig struct {
	// MaxSamples is how many samples the in-memory store retains.
	// Zero means the built-in default.
	MaxSamples int `yaml:"max_samples"`

	// MaxAlerts is how many alert records the in-memory store retains.
	// Zero means the built-in default.
	MaxAlerts int `yaml:"max_alerts"`
}

// ThresholdsConfig seeds the global thresholds at startup and on hot-reload.
type ThresholdsConfig struct {
	// Defaults maps metric kind to its global limit.
	Defaults map[string]float64 `yaml:"defaults"`
}

// WebhookURL returns the webhook target, or "" when the sink is disabled.
func WebhookURL() string { return os.Getenv(EnvWebhookURL) }

// WebhookRetries returns the maximum retry attempt count for the webhook
// sink. Unparseable values fall back to the default, matching the
// best-effort nature of sink configuration.
func WebhookRetries() int {
	if v := os.Getenv(EnvWebhookRetries); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return DefaultWebhookRetries
}

// WebhookBackoff returns the base backoff between webhook retries. The
// variable holds seconds as a decimal, e.g. "0.5".
func WebhookBackoff() time.Duration {
	if v := os.Getenv(EnvWebhookBackoff); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return DefaultWebhookBackoff
}

// SMTP describes the email sink resolved from the environment.
type SMTP struct {
	Host string
	Port int
	User string
	Pass string
	From string
	To   string
}

// SMTPConfig resolves the email sink settings. ok is false when the sink is
// disabled (host, from, or to missing).
func SMTPConfig() (SMTP, bool) {
	s := SMTP{
		Host: os.Getenv(EnvSMTPHost),
		Port: DefaultSMTPPort,
		User: os.Getenv(EnvSMTPUser),
		Pass: os.Getenv(EnvSMTPPass),
		From: os.Getenv(EnvAlertFrom),
		To:   os.Getenv(EnvAlertTo),
	}
	if s.Host == "" || s.From == "" || s.To == "" {
		return SMTP{}, false
	}
	if v := os.Getenv(EnvSMTPPort); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			s.Port = p
		}
	}
	return s, true
}

// DatabaseURL returns the Postgres DSN, or "" to use the in-memory store.
func DatabaseURL() string { return os.Getenv(EnvDatabaseURL) }

// Default returns a Config pre-populated with default values, used when no
// config file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:       DefaultHTTPPort,
			StreamInterval: DefaultStreamInterval,
		},
		Sampler: SamplerConfig{
			Interval: DefaultSampleInterval,
			Source:   "host",
		},
		Thresholds: ThresholdsConfig{
			Defaults: map[string]float64{
				string(metric.CPU):    80,
				string(metric.Memory): 75,
			},
		},
	}
}

// Load reads and parses the config file at path. Missing fields are filled
// with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Server.HTTPPort < 1 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("http_port %d out of range", cfg.Server.HTTPPort)
	}
	if cfg.Server.StreamInterval <= 0 {
		return fmt.Errorf("stream_interval must be positive")
	}
	if cfg.Sampler.Interval <= 0 {
		return fmt.Errorf("sampler interval must be positive")
	}

	switch cfg.Sampler.Source {
	case "host":
	case "exposition":
		if cfg.Sampler.Exposition.Endpoint == "" {
			return fmt.Errorf("exposition source requires an endpoint")
		}
		for kind := range cfg.Sampler.Exposition.Families {
			if _, err := metric.ParseKind(kind); err != nil {
				return fmt.Errorf("exposition families: %w", err)
			}
		}
	default:
		return fmt.Errorf("unsupported sampler source %q", cfg.Sampler.Source)
	}

	if cfg.Storage.MaxSamples < 0 || cfg.Storage.MaxAlerts < 0 {
		return fmt.Errorf("storage retention bounds must not be negative")
	}

	for kind, limit := range cfg.Thresholds.Defaults {
		if _, err := metric.ParseKind(kind); err != nil {
			return fmt.Errorf("threshold defaults: %w", err)
		}
		if limit <= 0 {
			return fmt.Errorf("threshold default for %s must be positive", kind)
		}
	}
	return nil
}
