package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TENANTS_FILE", "")
	t.Setenv("DB_NAME", "cms_test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Tenants) != 1 || cfg.Tenants[0].Name != "default" {
		t.Fatalf("Expected single default tenant, got %+v", cfg.Tenants)
	}
	if cfg.Tenants[0].Database.Name != "cms_test" {
		t.Errorf("Expected tenant database cms_test, got %s", cfg.Tenants[0].Database.Name)
	}
	if cfg.Scheduler.Spec != "@every 10m" {
		t.Errorf("Expected default scheduler spec, got %s", cfg.Scheduler.Spec)
	}
	if cfg.Save.MaxAttempts != 3 {
		t.Errorf("Expected 3 save attempts, got %d", cfg.Save.MaxAttempts)
	}
}

func TestLoad_TenantsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tenants.yaml")
	content := `
tenants:
  - name: acme
    database:
      host: db-acme
      user: acme
      name: acme_cms
  - name: globex
    database:
      host: db-globex
      port: "6432"
      name: globex_cms
      max_open_conns: 50
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TENANTS_FILE", path)
	t.Setenv("DB_MAX_LIFETIME", "7m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(cfg.Tenants) != 2 {
		t.Fatalf("Expected 2 tenants, got %d", len(cfg.Tenants))
	}
	acme := cfg.Tenants[0].Database
	if acme.Port != "5432" || acme.SSLMode != "disable" || acme.MaxOpenConns != 25 {
		t.Errorf("Expected defaults to be inherited, got %+v", acme)
	}
	if acme.MaxLifetime != 7*time.Minute {
		t.Errorf("Expected inherited lifetime 7m, got %s", acme.MaxLifetime)
	}
	globex := cfg.Tenants[1].Database
	if globex.Port != "6432" || globex.MaxOpenConns != 50 {
		t.Errorf("Expected explicit settings to win, got %+v", globex)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Tenants:   []TenantConfig{{Name: "a", Database: DatabaseConfig{Host: "h", Name: "n"}}},
			Save:      SaveConfig{MaxAttempts: 3},
			Scheduler: SchedulerConfig{Enabled: true, Spec: "@every 1m"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"no tenants", func(c *Config) { c.Tenants = nil }, true},
		{"duplicate tenant", func(c *Config) { c.Tenants = append(c.Tenants, c.Tenants[0]) }, true},
		{"missing host", func(c *Config) { c.Tenants[0].Database.Host = "" }, true},
		{"zero attempts", func(c *Config) { c.Save.MaxAttempts = 0 }, true},
		{"scheduler without spec", func(c *Config) { c.Scheduler.Spec = "" }, true},
		{"disabled scheduler without spec", func(c *Config) { c.Scheduler.Enabled = false; c.Scheduler.Spec = "" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetListEnv(t *testing.T) {
	t.Setenv("CDN_PURGE_ENDPOINTS", " edge=https://a.example/purge , ,origin=https://b.example ")

	got := getListEnv("CDN_PURGE_ENDPOINTS")
	if len(got) != 2 || got[0] != "edge=https://a.example/purge" || got[1] != "origin=https://b.example" {
		t.Errorf("Unexpected list: %v", got)
	}
}
