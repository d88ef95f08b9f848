package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	pkgconfig "github.com/starford/nutriboard/pkg/config"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
	if cfg.API.Timeout() != 15*time.Second {
		t.Errorf("default timeout = %v", cfg.API.Timeout())
	}
	if cfg.Search.Debounce() != 300*time.Millisecond {
		t.Errorf("default debounce = %v", cfg.Search.Debounce())
	}
}

func TestLoadConfigWithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_NUTRI_TOKEN", "tok-from-env")

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
app:
  log_level: DEBUG
api:
  base_url: http://example.test:9090
  timeout_seconds: 30
auth:
  user_id: 6ba7b810-9dad-11d1-80b4-00c04fd430c8
  token: ${TEST_NUTRI_TOKEN}
history:
  path: /tmp/test.db
search:
  debounce_ms: 150
  page_size: 50
import:
  dir: /tmp/drop
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.App.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v", cfg.App.LogLevel)
	}
	if cfg.API.BaseURL != "http://example.test:9090" {
		t.Errorf("base url = %q", cfg.API.BaseURL)
	}
	if cfg.Auth.Token != "tok-from-env" {
		t.Errorf("token = %q, env expansion failed", cfg.Auth.Token)
	}
	if !cfg.Auth.Configured() {
		t.Error("auth should be configured")
	}
	if cfg.Search.Debounce() != 150*time.Millisecond {
		t.Errorf("debounce = %v", cfg.Search.Debounce())
	}
	if cfg.Import.Dir != "/tmp/drop" {
		t.Errorf("import dir = %q", cfg.Import.Dir)
	}
}

func TestLoadIfPresentKeepsDefaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.LoadIfPresent(filepath.Join(t.TempDir(), "missing.yaml"), cfg); err != nil {
		t.Fatalf("LoadIfPresent failed: %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:8080" {
		t.Errorf("defaults were disturbed: %q", cfg.API.BaseURL)
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.API.BaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing base_url")
	}

	cfg = NewDefaultConfig()
	cfg.API.TimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for zero timeout")
	}

	cfg = NewDefaultConfig()
	cfg.History.Path = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for missing history path")
	}

	cfg = NewDefaultConfig()
	cfg.Search.PageSize = 200
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for oversized page_size")
	}
}
