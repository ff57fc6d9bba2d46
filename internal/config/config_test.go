package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/marlecce/emme/internal/config"
)

const sampleYAML = `
server:
  port: 8443
  max_connections: 64
  log_level: info

ssl:
  certificate: /tmp/cert.pem
  private_key: /tmp/key.pem

logging:
  level: info
  format: plain
  appender_flags: [console]

routes:
  - path: /static/
    technology: static
    document_root: /var/www
  - path: /api/
    technology: reverse_proxy
    backend: 127.0.0.1:9000
`

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Port != 8443 || cfg.MaxConnections != 64 {
		t.Fatalf("unexpected server section: %+v", cfg)
	}
	if cfg.SSL.Certificate != "/tmp/cert.pem" {
		t.Fatalf("unexpected ssl section: %+v", cfg.SSL)
	}
	if len(cfg.Routes) != 2 {
		t.Fatalf("expected 2 routes, got %d", len(cfg.Routes))
	}
}

func TestFirstMatchPrefersDeclarationOrder(t *testing.T) {
	cfg := &config.ServerConfig{
		Routes: []config.Route{
			{Path: "/a", Technology: config.TechStatic, DocumentRoot: "/root/a"},
			{Path: "/a/b", Technology: config.TechStatic, DocumentRoot: "/root/ab"},
		},
	}

	route, ok := cfg.FirstMatch("/a/b/file.txt", config.TechStatic)
	if !ok {
		t.Fatal("expected a match")
	}
	if route.DocumentRoot != "/root/a" {
		t.Fatalf("expected first declared prefix to win, got %+v", route)
	}
}

func TestFirstMatchRespectsTechnology(t *testing.T) {
	cfg := &config.ServerConfig{
		Routes: []config.Route{
			{Path: "/api", Technology: config.TechReverseProxy, Backend: "127.0.0.1:9000"},
		},
	}

	if _, ok := cfg.FirstMatch("/api/users", config.TechStatic); ok {
		t.Fatal("expected no static match for a reverse_proxy route")
	}
	if _, ok := cfg.FirstMatch("/api/users", config.TechReverseProxy); !ok {
		t.Fatal("expected reverse_proxy match")
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: 99999
  max_connections: 64
ssl:
  certificate: /tmp/cert.pem
  private_key: /tmp/key.pem
`)

	if _, err := config.Load(path); err == nil {
		t.Fatal("expected validation error for out-of-range port")
	}
}

func TestCloneIsIndependentOfOriginal(t *testing.T) {
	cfg := &config.ServerConfig{Routes: []config.Route{{Path: "/a", Technology: config.TechStatic}}}
	clone := cfg.Clone()
	clone.Routes[0].Path = "/changed"

	if cfg.Routes[0].Path != "/a" {
		t.Fatal("mutating the clone's routes must not affect the original")
	}
}
