// Package config loads the workspace configuration.
// Values are resolved from (highest to lowest priority):
// 1. Environment variables (STAGEGATE_*)
// 2. Workspace config (.stagegate/config.yaml)
// 3. Defaults
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FileName is the config file inside the workspace directory.
const FileName = "config.yaml"

// CurrentVersion is written by init.
const CurrentVersion = 1

// Config holds all StageGate configuration.
type Config struct {
	Version int `yaml:"version" json:"version"`

	// SessionFile holds the persisted session state, relative to the
	// workspace directory.
	SessionFile string `yaml:"session_file" json:"session_file"`

	Export ExportConfig `yaml:"export" json:"export"`
	Serve  ServeConfig  `yaml:"serve" json:"serve"`
	Audit  AuditConfig  `yaml:"audit" json:"audit"`
}

// ExportConfig controls snapshot exports.
type ExportConfig struct {
	// Compress selects .json.gz over plain .json.
	Compress bool `yaml:"compress" json:"compress"`
	// Dir is where exports are written. Empty means the current directory.
	Dir string `yaml:"dir" json:"dir"`
}

// ServeConfig controls the HTTP server.
type ServeConfig struct {
	Port           int      `yaml:"port" json:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	// APIToken enables bearer auth when set. Prefer STAGEGATE_API_TOKEN.
	APIToken string `yaml:"api_token,omitempty" json:"-"`
}

// AuditConfig controls the audit trail.
type AuditConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version:     CurrentVersion,
		SessionFile: "session.json",
		Export: ExportConfig{
			Compress: false,
		},
		Serve: ServeConfig{
			Port: 8080,
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://localhost:5173",
			},
		},
		Audit: AuditConfig{Enabled: true},
	}
}

// Load reads dir/config.yaml over the defaults and applies environment
// overrides. A missing file is not an error.
func Load(dir string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(filepath.Join(dir, FileName))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", FileName, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", FileName, err)
	}
	return applyEnv(cfg)
}

// Save writes cfg to dir/config.yaml.
func Save(dir string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, FileName), data, 0o644)
}

// applyEnv applies environment variable overrides.
func applyEnv(cfg *Config) (*Config, error) {
	if v := strings.TrimSpace(os.Getenv("STAGEGATE_PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid STAGEGATE_PORT %q", v)
		}
		cfg.Serve.Port = port
	}
	if v := os.Getenv("STAGEGATE_API_TOKEN"); v != "" {
		cfg.Serve.APIToken = v
	}
	switch strings.ToLower(os.Getenv("STAGEGATE_COMPRESS")) {
	case "1", "true", "yes":
		cfg.Export.Compress = true
	case "0", "false", "no":
		cfg.Export.Compress = false
	}
	return cfg, nil
}

// SessionPath returns the absolute session file path for workspace dir.
func (c *Config) SessionPath(dir string) string {
	if filepath.IsAbs(c.SessionFile) {
		return c.SessionFile
	}
	return filepath.Join(dir, c.SessionFile)
}
