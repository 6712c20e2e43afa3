package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.History.Driver != "sqlite" || cfg.History.ListLimit != 100 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.Catalog.Labels) != 8 {
		t.Errorf("default catalog has %d labels", len(cfg.Catalog.Labels))
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, `
server:
  addr: ":9000"
  read_timeout: 5s
history:
  driver: memory
  list_limit: 20
catalog:
  labels: [Healthy, Powdery Mildew, Rust, Scab]
log:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":9000" || cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.History.Driver != "memory" || cfg.History.ListLimit != 20 {
		t.Errorf("history = %+v", cfg.History)
	}
	if len(cfg.Catalog.Labels) != 4 || cfg.Catalog.Labels[3] != "Scab" {
		t.Errorf("catalog = %v", cfg.Catalog.Labels)
	}
	if cfg.Server.MaxUploadMB != 10 {
		t.Errorf("unset field lost its default: %d", cfg.Server.MaxUploadMB)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("LEAF_DB_DRIVER", "postgres")
	t.Setenv("LEAF_DB_DSN", "postgres://leaf@localhost/leaf?sslmode=disable")
	t.Setenv("LEAF_LOG_LEVEL", "warn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.History.Driver != "postgres" || cfg.History.DSN == "" {
		t.Errorf("history = %+v", cfg.History)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"driver":   "history:\n  driver: mongo\n",
		"limit":    "history:\n  list_limit: 500\n",
		"upload":   "server:\n  max_upload_mb: 0\n",
		"catalog":  "catalog:\n  labels: [a, a]\n",
		"bad yaml": "server: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeFile(t, body)); err == nil {
				t.Error("expected error")
			}
		})
	}

	t.Setenv("PORT", "eighty")
	if _, err := Load(""); err == nil {
		t.Error("non-numeric PORT accepted")
	}
}
