package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, dashgate.yaml/.yml is searched in
// standard locations. The search requires an explicit YAML extension so
// the binary itself (same base name, no extension) never matches.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("dashgate")
		viper.SetConfigType("yaml")
	}

	// Environment variable support: DASHGATE_SERVER_LOG_LEVEL
	viper.SetEnvPrefix("DASHGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for dashgate.yaml or .yml.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".dashgate"),
		"/etc/dashgate",
	}
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "dashgate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds the scalar config keys for env var overrides.
// Clusters and tag lists are arrays; those come from the config file.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.metrics_addr")

	_ = viper.BindEnv("access.folder")
	_ = viper.BindEnv("access.guard")

	_ = viper.BindEnv("audit.path")
	_ = viper.BindEnv("telemetry.enabled")
	_ = viper.BindEnv("upstream.http_timeout")
}

// Load reads the configuration, applies env overrides and defaults,
// expands ${VAR} references in cluster tokens, and validates.
func Load() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		// No config file; env vars alone cannot express clusters, so
		// validation below will say what is missing.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	for i := range cfg.Clusters {
		cfg.Clusters[i].Token = os.ExpandEnv(cfg.Clusters[i].Token)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// FileUsed returns the path of the loaded config file, empty when running
// from environment variables only.
func FileUsed() string {
	return viper.ConfigFileUsed()
}
