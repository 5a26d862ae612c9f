// Package config provides configuration types and loading for DashGate.
package config

import "time"

// Config is the top-level DashGate configuration.
type Config struct {
	// Server configures logging and the optional metrics listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Clusters are the Grafana endpoints this server mediates access to.
	// At least one is required.
	Clusters []ClusterConfig `yaml:"clusters" mapstructure:"clusters" validate:"required,min=1,dive"`

	// Access configures the tag policy, folder boundary and optional guard.
	Access AccessConfig `yaml:"access" mapstructure:"access"`

	// Audit configures the local decision audit trail.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Telemetry configures trace and metric export.
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`

	// Upstream configures the HTTP client used against the clusters.
	Upstream UpstreamConfig `yaml:"upstream" mapstructure:"upstream"`
}

// ServerConfig configures the server process itself. The MCP transport is
// stdio; the only listener is the optional metrics endpoint.
type ServerConfig struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// MetricsAddr, when set, exposes Prometheus metrics on this address
	// (e.g. "127.0.0.1:9090"). Empty disables the listener.
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr" validate:"omitempty,hostname_port"`
}

// ClusterConfig is one named Grafana endpoint.
type ClusterConfig struct {
	// Name is the identifier tools use to address this cluster.
	Name string `yaml:"name" mapstructure:"name" validate:"required"`
	// URL is the Grafana base URL.
	URL string `yaml:"url" mapstructure:"url" validate:"required,url"`
	// Token is the service account token, empty for anonymous access.
	// Supports ${ENV_VAR} expansion.
	Token string `yaml:"token" mapstructure:"token"`
}

// AccessConfig configures what the agent may see and touch.
type AccessConfig struct {
	// ReadTags a dashboard must carry to be visible. Empty = everything
	// inside the boundary is visible.
	ReadTags []string `yaml:"read_tags" mapstructure:"read_tags"`
	// WriteTags a dashboard must carry to be writable. Required.
	WriteTags []string `yaml:"write_tags" mapstructure:"write_tags" validate:"required,min=1"`
	// Folder is the boundary root path; "/" (the default) means no
	// folder restriction.
	Folder string `yaml:"folder" mapstructure:"folder"`
	// Guard is an optional CEL expression evaluated per resource as an
	// extra allow condition.
	Guard string `yaml:"guard" mapstructure:"guard"`
}

// AuditConfig configures the SQLite audit trail.
type AuditConfig struct {
	// Path is the audit database file. Empty disables auditing.
	Path string `yaml:"path" mapstructure:"path"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	// Enabled turns on stdout trace and metric export.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// UpstreamConfig configures the shared Grafana HTTP client.
type UpstreamConfig struct {
	// HTTPTimeout is the per-request timeout, e.g. "30s".
	HTTPTimeout string `yaml:"http_timeout" mapstructure:"http_timeout"`
}

// SetDefaults fills optional fields.
func (c *Config) SetDefaults() {
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Access.Folder == "" {
		c.Access.Folder = "/"
	}
	if c.Upstream.HTTPTimeout == "" {
		c.Upstream.HTTPTimeout = "30s"
	}
}

// HTTPTimeout parses the upstream timeout, falling back to 30s on a
// malformed value (Validate rejects those first).
func (c *Config) HTTPTimeout() time.Duration {
	d, err := time.ParseDuration(c.Upstream.HTTPTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
