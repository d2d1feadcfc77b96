package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.HTTPPort != DefaultHTTPPort {
		t.Errorf("HTTPPort: got %d, want %d", cfg.Server.HTTPPort, DefaultHTTPPort)
	}
	if cfg.Sampler.Interval != DefaultSampleInterval {
		t.Errorf("Interval: got %v, want %v", cfg.Sampler.Interval, DefaultSampleInterval)
	}
	if cfg.Sampler.Source != "host" {
		t.Errorf("Source: got %q, want host", cfg.Sampler.Source)
	}
	if cfg.Thresholds.Defaults["cpu"] != 80 || cfg.Thresholds.Defaults["memory"] != 75 {
		t.Errorf("threshold defaults: got %+v", cfg.Thresholds.Defaults)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeFile(t, `
server:
  http_port: 9000
sampler:
  interval: 2s
  subject: node-7
thresholds:
  defaults:
    cpu: 50
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.HTTPPort != 9000 {
		t.Errorf("HTTPPort: got %d, want 9000", cfg.Server.HTTPPort)
	}
	if cfg.Sampler.Interval != 2*time.Second {
		t.Errorf("Interval: got %v, want 2s", cfg.Sampler.Interval)
	}
	if cfg.Sampler.Subject != "node-7" {
		t.Errorf("Subject: got %q", cfg.Sampler.Subject)
	}
	if cfg.Thresholds.Defaults["cpu"] != 50 {
		t.Errorf("cpu default: got %v, want 50", cfg.Thresholds.Defaults["cpu"])
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeFile(t, "server: [not a map")
	if _, err := Load(path); err == nil {
		t.Fatal("Load: expected parse error")
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"bad port":        "server:\n  http_port: -1\n",
		"bad interval":    "sampler:\n  interval: 0s\n",
		"unknown source":  "sampler:\n  source: carrier-pigeon\n",
		"unknown kind":    "thresholds:\n  defaults:\n    disk: 90\n",
		"missing exp url": "sampler:\n  source: exposition\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, body)); err == nil {
				t.Errorf("Load: expected validation error")
			}
		})
	}
}

func TestWebhookEnv(t *testing.T) {
	t.Setenv(EnvWebhookURL, "http://example/webhook")
	t.Setenv(EnvWebhookRetries, "5")
	t.Setenv(EnvWebhookBackoff, "0.5")

	if got := WebhookURL(); got != "http://example/webhook" {
		t.Errorf("WebhookURL: got %q", got)
	}
	if got := WebhookRetries(); got != 5 {
		t.Errorf("WebhookRetries: got %d, want 5", got)
	}
	if got := WebhookBackoff(); got != 500*time.Millisecond {
		t.Errorf("WebhookBackoff: got %v, want 500ms", got)
	}
}

func TestWebhookEnv_FallbackOnGarbage(t *testing.T) {
	t.Setenv(EnvWebhookRetries, "lots")
	t.Setenv(EnvWebhookBackoff, "soon")

	if got := WebhookRetries(); got != DefaultWebhookRetries {
		t.Errorf("WebhookRetries: got %d, want default %d", got, DefaultWebhookRetries)
	}
	if got := WebhookBackoff(); got != DefaultWebhookBackoff {
		t.Errorf("WebhookBackoff: got %v, want default %v", got, DefaultWebhookBackoff)
	}
}

func TestSMTPConfig(t *testing.T) {
	t.Setenv(EnvSMTPHost, "smtp.example")
	t.Setenv(EnvSMTPPort, "2525")
	t.Setenv(EnvAlertFrom, "from@example.com")
	t.Setenv(EnvAlertTo, "to@example.com")

	s, ok := SMTPConfig()
	if !ok {
		t.Fatal("SMTPConfig: expected enabled")
	}
	if s.Host != "smtp.example" || s.Port != 2525 {
		t.Errorf("SMTP: got %+v", s)
	}
}

func TestSMTPConfig_DisabledWithoutHost(t *testing.T) {
	t.Setenv(EnvSMTPHost, "")
	t.Setenv(EnvAlertFrom, "from@example.com")
	t.Setenv(EnvAlertTo, "to@example.com")

	if _, ok := SMTPConfig(); ok {
		t.Fatal("SMTPConfig: expected disabled without a host")
	}
}
