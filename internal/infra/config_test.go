package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Records.BaseURL != "http://compass-wpt.herokuapp.com" || cfg.Records.Path != "/charts" {
		t.Fatalf("unexpected records endpoint %+v", cfg.Records)
	}
	if cfg.Records.RetryAttempts != 1 || cfg.Records.Timeout != 0 {
		t.Fatalf("expected no retries and no timeout by default, got %+v", cfg.Records)
	}
	if cfg.Chart.Window() != 30*24*time.Hour {
		t.Fatalf("unexpected window %v", cfg.Chart.Window())
	}
	if cfg.Chart.MaxCharts != 256 || cfg.Server.SettleTimeout != 20*time.Second {
		t.Fatalf("unexpected chart limits %d, settle %v", cfg.Chart.MaxCharts, cfg.Server.SettleTimeout)
	}
	if cfg.Chart.Palette["ttfb"] == "" {
		t.Fatalf("expected default palette, got %v", cfg.Chart.Palette)
	}
	if cfg.Redis.Enabled() {
		t.Fatalf("redis must be disabled by default")
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "perfdash.yaml")
	content := []byte(`
server:
  port: 9000
records:
  base_url: http://records.internal
  retry_attempts: 3
chart:
  window_days: 7
  title: Nightly
logger:
  level: debug
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Server.Addr() != ":9000" {
		t.Fatalf("unexpected addr %q", cfg.Server.Addr())
	}
	if cfg.Records.BaseURL != "http://records.internal" || cfg.Records.RetryAttempts != 3 {
		t.Fatalf("unexpected records config %+v", cfg.Records)
	}
	if cfg.Chart.WindowDays != 7 || cfg.Chart.Title != "Nightly" {
		t.Fatalf("unexpected chart config %+v", cfg.Chart)
	}
	if !cfg.Redis.Enabled() || cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("expected redis from env, got %+v", cfg.Redis)
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Config{
		Server:  ServerConfig{Port: 8080},
		Records: RecordsConfig{BaseURL: "http://x"},
		Chart:   ChartConfig{WindowDays: 30},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Records.RetryAttempts != 1 {
		t.Fatalf("expected retry attempts normalised to 1, got %d", cfg.Records.RetryAttempts)
	}

	cfg.Chart.MaxCharts = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for negative chart limit")
	}

	cfg.Chart.MaxCharts = 0
	cfg.Chart.WindowDays = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error for zero window")
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger(LoggerConfig{Level: "debug", Format: "console"}); err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if _, err := NewLogger(LoggerConfig{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
	if _, err := NewLogger(LoggerConfig{Level: "info", Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestNavigationChannel(t *testing.T) {
	if NavigationChannel("") != "perfdash:charts:navigation" {
		t.Fatalf("unexpected channel %q", NavigationChannel(""))
	}
	if NavigationChannel("staging") != "perfdash:charts:navigation:staging" {
		t.Fatalf("unexpected channel %q", NavigationChannel("staging"))
	}
}
