package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope", "config.yaml"))
	if err == nil {
		// An explicit missing file is an error; defaults only apply to the
		// search-path case.
		t.Fatalf("expected error for explicit missing config file, got %+v", cfg)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
project:
  path: /tmp/demo/roadmap.json
server:
  port: 9000
watch:
  debounce_ms: 250
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Project.Path != "/tmp/demo/roadmap.json" {
		t.Fatalf("project path not read: %q", cfg.Project.Path)
	}
	if cfg.Server.Port != 9000 {
		t.Fatalf("server port not read: %d", cfg.Server.Port)
	}
	if cfg.Watch.DebounceMs != 250 {
		t.Fatalf("debounce not read: %d", cfg.Watch.DebounceMs)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log level not read: %q", cfg.Log.Level)
	}
	// Unset values fall back to defaults.
	if cfg.Server.Host != "localhost" {
		t.Fatalf("default host missing: %q", cfg.Server.Host)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Fatalf("default read timeout missing: %v", cfg.Server.ReadTimeout)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".roadclaw", "config.yaml")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load defaults failed: %v", err)
	}
	cfg.Server.Port = 8123

	if err := Save(cfg, path); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.Server.Port != 8123 {
		t.Fatalf("saved port not preserved: %d", loaded.Server.Port)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("load defaults failed: %v", err)
		}
		return cfg
	}

	cfg := base()
	if err := Validate(cfg); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg = base()
	cfg.Server.Port = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for port 0")
	}

	cfg = base()
	cfg.Watch.DebounceMs = -1
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for negative debounce")
	}

	cfg = base()
	cfg.Log.Level = "loud"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for unknown log level")
	}

	cfg = base()
	cfg.Server.PongTimeout = cfg.Server.PingInterval
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected error for pong_timeout <= ping_interval")
	}
}
