package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.MaxUploadBytes != 10<<20 {
		t.Errorf("Server.MaxUploadBytes = %d", cfg.Server.MaxUploadBytes)
	}
	if cfg.Validation.DNS.Timeout != 3*time.Second {
		t.Errorf("DNS.Timeout = %s, want 3s", cfg.Validation.DNS.Timeout)
	}
	want := []string{"sentry.io", "example.com", "test.com"}
	if !reflect.DeepEqual(cfg.Validation.Blacklist, want) {
		t.Errorf("Blacklist = %v, want %v", cfg.Validation.Blacklist, want)
	}
	if cfg.Fetch.Enabled || cfg.Input.SkipHeader || cfg.Validation.Cache.Enabled {
		t.Error("optional features should default to off")
	}
	if cfg.Output.Dir != "uploads" {
		t.Errorf("Output.Dir = %q", cfg.Output.Dir)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
logging:
  level: debug
  format: console
validation:
  blacklist: [spam.test]
  dns:
    timeout: 500ms
output:
  dir: /tmp/out
  file_prefix: contacts
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Logging.Level != "debug" {
		t.Errorf("server/logging not applied: %+v %+v", cfg.Server, cfg.Logging)
	}
	if !reflect.DeepEqual(cfg.Validation.Blacklist, []string{"spam.test"}) {
		t.Errorf("Blacklist = %v", cfg.Validation.Blacklist)
	}
	if cfg.Validation.DNS.Timeout != 500*time.Millisecond {
		t.Errorf("DNS.Timeout = %s", cfg.Validation.DNS.Timeout)
	}
	if cfg.Validation.DNS.Concurrency != 8 {
		t.Errorf("unset key lost its default: Concurrency = %d", cfg.Validation.DNS.Concurrency)
	}
	if cfg.Output.FilePrefix != "contacts" {
		t.Errorf("Output.FilePrefix = %q", cfg.Output.FilePrefix)
	}
	if ConfigFileUsed() != path {
		t.Errorf("ConfigFileUsed() = %q, want %q", ConfigFileUsed(), path)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MAILSCRAPED_SERVER_PORT", "7070")
	t.Setenv("MAILSCRAPED_FETCH_ENABLED", "true")

	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if !cfg.Fetch.Enabled {
		t.Error("Fetch.Enabled not overridden")
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"port", "server:\n  port: 70000\n", "invalid server port"},
		{"level", "logging:\n  level: loud\n", "invalid log level"},
		{"format", "logging:\n  format: xml\n", "invalid log format"},
		{"input format", "input:\n  allowed_formats: [csv, pdf]\n", "invalid input format"},
		{"dns timeout", "validation:\n  dns:\n    timeout: 0s\n", "invalid dns timeout"},
		{"cache url", "validation:\n  cache:\n    enabled: true\n    redis_url: \"\"\n", "redis_url is required"},
		{"output dir", "output:\n  dir: \"\"\n", "output.dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}
