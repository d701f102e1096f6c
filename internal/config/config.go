// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jeremyhahn/go-passkey/pkg/logging"
	"github.com/jeremyhahn/go-passkey/pkg/passkey"
	"gopkg.in/yaml.v3"
)

// Config represents the complete server configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Passkey   passkey.Config  `yaml:"passkey"`
	Logging   logging.Config  `yaml:"logging"`
	Token     TokenConfig     `yaml:"token"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Storage   StorageConfig   `yaml:"storage"`
}

// ServerConfig contains server-level settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// ReadTimeout and WriteTimeout bound request processing.
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ChallengeCleanupInterval controls the expired-challenge sweep.
	ChallengeCleanupInterval time.Duration `yaml:"challenge_cleanup_interval"`
}

// TokenConfig controls post-authentication JWT issuance
type TokenConfig struct {
	// Enabled turns JWT issuance on. When disabled, login responses carry
	// the base64-encoded user ID instead of a signed token.
	Enabled bool `yaml:"enabled"`

	// Secret is the HMAC signing secret. Required when enabled.
	Secret string `yaml:"secret"`

	Issuer    string        `yaml:"issuer"`
	Audience  []string      `yaml:"audience"`
	ExpiresIn time.Duration `yaml:"expires_in"`
}

// RateLimitConfig controls rate limiting
type RateLimitConfig struct {
	Enabled        bool `yaml:"enabled"`
	RequestsPerMin int  `yaml:"requests_per_min"`
	Burst          int  `yaml:"burst"`
}

// MetricsConfig controls the metrics endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// StorageConfig controls credential and challenge persistence
type StorageConfig struct {
	// Backend is "sqlite" or "memory".
	Backend string `yaml:"backend"`

	// Path is the SQLite database file. Required for the sqlite backend.
	Path string `yaml:"path"`
}

// Default returns a configuration with development defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                     "localhost",
			Port:                     8080,
			ReadTimeout:              10 * time.Second,
			WriteTimeout:             10 * time.Second,
			ChallengeCleanupInterval: time.Minute,
		},
		Passkey: passkey.Config{
			RPID:          "localhost",
			RPDisplayName: "go-passkey",
			RPOrigins:     []string{"http://localhost:8080"},
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Storage: StorageConfig{
			Backend: "memory",
		},
	}
}

// Load reads configuration from a YAML file and applies environment variable overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - Config file path is provided by admin/user
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration
func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("PASSKEY_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if portStr := os.Getenv("PASSKEY_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			log.Printf("Warning: invalid PASSKEY_PORT value %q, using default %d: %v",
				portStr, cfg.Server.Port, err)
		} else if port < 1 || port > 65535 {
			log.Printf("Warning: invalid PASSKEY_PORT value %q (out of range 1-65535), using default %d",
				portStr, cfg.Server.Port)
		} else {
			cfg.Server.Port = port
		}
	}

	if rpID := os.Getenv("PASSKEY_RP_ID"); rpID != "" {
		cfg.Passkey.RPID = rpID
	}
	if displayName := os.Getenv("PASSKEY_RP_DISPLAY_NAME"); displayName != "" {
		cfg.Passkey.RPDisplayName = displayName
	}
	if origins := os.Getenv("PASSKEY_RP_ORIGINS"); origins != "" {
		parts := strings.Split(origins, ",")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}
		cfg.Passkey.RPOrigins = parts
	}

	if level := os.Getenv("PASSKEY_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if format := os.Getenv("PASSKEY_LOG_FORMAT"); format != "" {
		cfg.Logging.Format = format
	}

	if secret := os.Getenv("PASSKEY_TOKEN_SECRET"); secret != "" {
		cfg.Token.Secret = secret
		cfg.Token.Enabled = true
	}

	if backend := os.Getenv("PASSKEY_STORAGE_BACKEND"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if dataPath := os.Getenv("PASSKEY_STORAGE_PATH"); dataPath != "" {
		cfg.Storage.Path = dataPath
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json": true, "text": true,
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Logging.Format)
	}

	switch c.Storage.Backend {
	case "memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage path is required for sqlite backend")
		}
	default:
		return fmt.Errorf("invalid storage backend: %s (must be memory or sqlite)", c.Storage.Backend)
	}

	if c.Token.Enabled && c.Token.Secret == "" {
		return fmt.Errorf("token secret is required when token issuance is enabled")
	}

	// The passkey section carries its own validation.
	c.Passkey.SetDefaults()
	if err := c.Passkey.Validate(); err != nil {
		return fmt.Errorf("passkey: %w", err)
	}

	return nil
}
