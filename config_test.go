package junksite

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Addr != ":3000" || cfg.URL != "http://localhost:3000" {
		t.Errorf("Addr/URL = %q/%q", cfg.Addr, cfg.URL)
	}
	if cfg.MaxImportSize != 5<<20 {
		t.Errorf("MaxImportSize = %d, want %d", cfg.MaxImportSize, 5<<20)
	}
	if cfg.PostCacheTTL != 5*time.Minute {
		t.Errorf("PostCacheTTL = %v", cfg.PostCacheTTL)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"*"}) {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should require an admin token")
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junksite.yaml")
	yaml := `name: Acme Junk
url: https://acme.example/
admin_token: secret
allowed_origins:
  - https://acme.example
  - https://admin.acme.example
max_import_size: 1048576
post_cache_ttl: 30s
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Name != "Acme Junk" {
		t.Errorf("Name = %q", cfg.Name)
	}
	if cfg.URL != "https://acme.example" {
		t.Errorf("URL = %q, want trailing slash trimmed", cfg.URL)
	}
	if cfg.AdminToken != "secret" {
		t.Errorf("AdminToken = %q", cfg.AdminToken)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"https://acme.example", "https://admin.acme.example"}) {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.MaxImportSize != 1<<20 {
		t.Errorf("MaxImportSize = %d", cfg.MaxImportSize)
	}
	if cfg.PostCacheTTL != 30*time.Second {
		t.Errorf("PostCacheTTL = %v", cfg.PostCacheTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junksite.yaml")
	if err := os.WriteFile(path, []byte("admin_token: from-file\naddr: \":8080\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JUNKSITE_ADMIN_TOKEN", "from-env")
	t.Setenv("JUNKSITE_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("JUNKSITE_NATS_URL", "nats://localhost:4222")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.AdminToken != "from-env" {
		t.Errorf("AdminToken = %q, want env value", cfg.AdminToken)
	}
	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q, want file value", cfg.Addr)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins, []string{"https://a.example", "https://b.example"}) {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.NatsURL != "nats://localhost:4222" {
		t.Errorf("NatsURL = %q", cfg.NatsURL)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
