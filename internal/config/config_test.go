package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func validConfig() Config {
	return Config{
		Clusters: []ClusterConfig{
			{Name: "dev", URL: "https://grafana.dev.example.com", Token: "tok"},
		},
		Access: AccessConfig{WriteTags: []string{"MCP"}},
	}
}

func TestSetDefaults(t *testing.T) {
	t.Parallel()

	var cfg Config
	cfg.SetDefaults()

	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Access.Folder != "/" {
		t.Errorf("Access.Folder = %q, want /", cfg.Access.Folder)
	}
	if cfg.Upstream.HTTPTimeout != "30s" {
		t.Errorf("HTTPTimeout = %q, want 30s", cfg.Upstream.HTTPTimeout)
	}
}

func TestSetDefaults_PreservesExistingValues(t *testing.T) {
	t.Parallel()

	cfg := Config{
		Server:   ServerConfig{LogLevel: "debug"},
		Access:   AccessConfig{Folder: "/mcp"},
		Upstream: UpstreamConfig{HTTPTimeout: "5s"},
	}
	cfg.SetDefaults()

	if cfg.Server.LogLevel != "debug" || cfg.Access.Folder != "/mcp" || cfg.Upstream.HTTPTimeout != "5s" {
		t.Errorf("SetDefaults overwrote explicit values: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no clusters", func(c *Config) { c.Clusters = nil }, "Clusters"},
		{"duplicate cluster names", func(c *Config) {
			c.Clusters = append(c.Clusters, c.Clusters[0])
		}, "duplicate cluster name"},
		{"bad cluster url", func(c *Config) { c.Clusters[0].URL = "not a url" }, "valid URL"},
		{"empty token allowed", func(c *Config) { c.Clusters[0].Token = "" }, ""},
		{"empty write tags", func(c *Config) { c.Access.WriteTags = nil }, "WriteTags"},
		{"read tags exceed write tags", func(c *Config) {
			c.Access.ReadTags = []string{"MCP", "extra"}
		}, "subset"},
		{"bad log level", func(c *Config) { c.Server.LogLevel = "verbose" }, "one of"},
		{"bad metrics addr", func(c *Config) { c.Server.MetricsAddr = "no-port" }, "host:port"},
		{"bad timeout", func(c *Config) { c.Upstream.HTTPTimeout = "soon" }, "http_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestYAMLMapping(t *testing.T) {
	t.Parallel()

	raw := `
server:
  log_level: debug
  metrics_addr: "127.0.0.1:9090"
clusters:
  - name: dev
    url: https://grafana.dev.example.com
    token: dev-token
  - name: prod
    url: https://grafana.example.com
    token: ${GRAFANA_PROD_TOKEN}
access:
  read_tags: [MCP]
  write_tags: [MCP]
  folder: /mcp-managed
  guard: 'resource.cluster != "prod"'
audit:
  path: /var/lib/dashgate/audit.db
telemetry:
  enabled: true
upstream:
  http_timeout: 15s
`
	var cfg Config
	if err := yaml.Unmarshal([]byte(raw), &cfg); err != nil {
		t.Fatalf("yaml.Unmarshal() = %v", err)
	}
	if len(cfg.Clusters) != 2 || cfg.Clusters[1].Name != "prod" {
		t.Fatalf("Clusters = %+v", cfg.Clusters)
	}
	if cfg.Access.Folder != "/mcp-managed" || cfg.Access.Guard == "" {
		t.Errorf("Access = %+v", cfg.Access)
	}
	if cfg.Audit.Path != "/var/lib/dashgate/audit.db" || !cfg.Telemetry.Enabled {
		t.Errorf("Audit/Telemetry = %+v / %+v", cfg.Audit, cfg.Telemetry)
	}
	if cfg.Server.MetricsAddr != "127.0.0.1:9090" {
		t.Errorf("MetricsAddr = %q", cfg.Server.MetricsAddr)
	}
}

func TestLoad_ExpandsTokenEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dashgate.yaml")
	raw := `
clusters:
  - name: dev
    url: https://grafana.dev.example.com
    token: ${TEST_GRAFANA_TOKEN}
access:
  write_tags: [MCP]
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TEST_GRAFANA_TOKEN", "expanded-secret")

	viper.Reset()
	InitViper(path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Clusters[0].Token != "expanded-secret" {
		t.Errorf("Token = %q, want expanded env value", cfg.Clusters[0].Token)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("LogLevel = %q, defaults not applied", cfg.Server.LogLevel)
	}
	if FileUsed() != path {
		t.Errorf("FileUsed() = %q, want %q", FileUsed(), path)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dashgate.yaml")
	raw := `
server:
  log_level: info
clusters:
  - name: dev
    url: https://grafana.dev.example.com
    token: tok
access:
  write_tags: [MCP]
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DASHGATE_SERVER_LOG_LEVEL", "debug")

	viper.Reset()
	InitViper(path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Server.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want env override debug", cfg.Server.LogLevel)
	}
}

func TestHTTPTimeout(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	cfg.Upstream.HTTPTimeout = "15s"
	if got := cfg.HTTPTimeout().Seconds(); got != 15 {
		t.Errorf("HTTPTimeout() = %vs, want 15s", got)
	}
	cfg.Upstream.HTTPTimeout = ""
	if got := cfg.HTTPTimeout().Seconds(); got != 30 {
		t.Errorf("HTTPTimeout() fallback = %vs, want 30s", got)
	}
}
