// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package config loads and stores CLI configuration.
//
// Settings are layered: built-in defaults, then config.json in the XDG config dir,
// then a .env file in the working directory, then TILLBOOK_* environment variables.
// Secrets (the profile DSN, the keyring password) are never written to config.json.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"tillbook/cli/internal/xdg"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TILLBOOK_"

// Artifact store backends.
const (
	BackendKeyring = "keyring"
	BackendFile    = "file"
	BackendRedis   = "redis"
)

// Default values applied before config.json is read and again by Sanitize.
const (
	DefaultBaseURL        = "https://id.tillbook.app"
	DefaultClientID       = "tillbook-cli"
	DefaultManifestPath   = "/.well-known/tillbook-cli.json"
	DefaultProfileTimeout = 12 * time.Second
	DefaultSafetyTimeout  = 10 * time.Second
	DefaultCheckTimeout   = 5 * time.Second
	DefaultSignOutTimeout = 5 * time.Second
)

// Config holds CLI settings.
type Config struct {
	LogLevel  string          `json:"log_level" env:"LOG_LEVEL"`
	Identity  IdentityConfig  `json:"identity" envPrefix:"IDENTITY_"`
	Profile   ProfileConfig   `json:"profile" envPrefix:"PROFILE_"`
	Session   SessionConfig   `json:"session" envPrefix:"SESSION_"`
	Artifacts ArtifactsConfig `json:"artifacts" envPrefix:"ARTIFACTS_"`
}

// IdentityConfig locates the identity backend.
type IdentityConfig struct {
	BaseURL      string `json:"base_url" env:"BASE_URL"`
	ClientID     string `json:"client_id" env:"CLIENT_ID"`
	ManifestPath string `json:"manifest_path" env:"MANIFEST_PATH"`
	// EventsAddr is the remote session event stream, e.g. "grpcs://events.tillbook.app". Empty disables it.
	EventsAddr  string `json:"events_addr,omitempty" env:"EVENTS_ADDR"`
	AutoRefresh bool   `json:"auto_refresh" env:"AUTO_REFRESH"`
}

// ProfileConfig locates the profile database.
type ProfileConfig struct {
	DSN string `json:"-" env:"DSN"`
}

// SessionConfig tunes the session controller.
type SessionConfig struct {
	ProfileTimeout Duration `json:"profile_timeout" env:"PROFILE_TIMEOUT"`
	SafetyTimeout  Duration `json:"safety_timeout" env:"SAFETY_TIMEOUT"`
	CheckTimeout   Duration `json:"check_timeout" env:"CHECK_TIMEOUT"`
	SignOutTimeout Duration `json:"signout_timeout" env:"SIGNOUT_TIMEOUT"`
	// Policy is "strict" or "lenient".
	Policy string `json:"policy" env:"POLICY"`
}

// ArtifactsConfig selects where session artifacts are persisted.
type ArtifactsConfig struct {
	Backend         string `json:"backend" env:"BACKEND"`
	RedisURL        string `json:"redis_url,omitempty" env:"REDIS_URL"`
	FileDir         string `json:"file_dir,omitempty" env:"FILE_DIR"`
	KeyringPassword string `json:"-" env:"KEYRING_PASSWORD"`
}

// Duration is a time.Duration written as "12s" in JSON and env.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		Identity: IdentityConfig{
			BaseURL:      DefaultBaseURL,
			ClientID:     DefaultClientID,
			ManifestPath: DefaultManifestPath,
		},
		Session: SessionConfig{
			ProfileTimeout: Duration(DefaultProfileTimeout),
			SafetyTimeout:  Duration(DefaultSafetyTimeout),
			CheckTimeout:   Duration(DefaultCheckTimeout),
			SignOutTimeout: Duration(DefaultSignOutTimeout),
			Policy:         "strict",
		},
		Artifacts: ArtifactsConfig{Backend: BackendKeyring},
	}
}

// Sanitize normalizes values and restores defaults for anything unusable.
func (c *Config) Sanitize() {
	d := Default()

	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}

	c.Identity.BaseURL = strings.TrimRight(strings.TrimSpace(c.Identity.BaseURL), "/")
	if c.Identity.BaseURL == "" {
		c.Identity.BaseURL = d.Identity.BaseURL
	}
	if strings.TrimSpace(c.Identity.ClientID) == "" {
		c.Identity.ClientID = d.Identity.ClientID
	}
	if c.Identity.ManifestPath == "" {
		c.Identity.ManifestPath = d.Identity.ManifestPath
	}
	if !strings.HasPrefix(c.Identity.ManifestPath, "/") {
		c.Identity.ManifestPath = "/" + c.Identity.ManifestPath
	}
	c.Identity.EventsAddr = strings.TrimSpace(c.Identity.EventsAddr)

	positive(&c.Session.ProfileTimeout, d.Session.ProfileTimeout)
	positive(&c.Session.SafetyTimeout, d.Session.SafetyTimeout)
	positive(&c.Session.CheckTimeout, d.Session.CheckTimeout)
	positive(&c.Session.SignOutTimeout, d.Session.SignOutTimeout)
	c.Session.Policy = strings.ToLower(strings.TrimSpace(c.Session.Policy))
	if c.Session.Policy == "" {
		c.Session.Policy = d.Session.Policy
	}

	c.Artifacts.Backend = strings.ToLower(strings.TrimSpace(c.Artifacts.Backend))
	if c.Artifacts.Backend == "" {
		c.Artifacts.Backend = d.Artifacts.Backend
	}
}

func positive(v *Duration, def Duration) {
	if *v <= 0 {
		*v = def
	}
}

// Validate reports settings that Sanitize cannot repair.
func (c Config) Validate() error {
	switch c.Artifacts.Backend {
	case BackendKeyring:
	case BackendFile:
		if c.Artifacts.KeyringPassword == "" {
			return errors.New("artifacts backend file requires TILLBOOK_ARTIFACTS_KEYRING_PASSWORD")
		}
	case BackendRedis:
		if c.Artifacts.RedisURL == "" {
			return errors.New("artifacts backend redis requires TILLBOOK_ARTIFACTS_REDIS_URL")
		}
	default:
		return fmt.Errorf("unknown artifacts backend %q (want keyring, file or redis)", c.Artifacts.Backend)
	}
	switch c.Session.Policy {
	case "strict", "lenient":
	default:
		return fmt.Errorf("unknown session policy %q (want strict or lenient)", c.Session.Policy)
	}
	return nil
}

// path returns the path to the config file.
func path() (string, error) {
	dir, err := xdg.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads configuration from the XDG config dir, .env and the environment.
func Load() (Config, error) {
	p, err := path()
	if err != nil {
		return Config{}, err
	}
	return LoadFrom(p)
}

// LoadFrom is Load with an explicit config.json path; a missing file means defaults.
func LoadFrom(p string) (Config, error) {
	c := Default()

	data, err := os.ReadFile(p)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("parse %s: %w", p, err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return c, err
	}

	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return c, fmt.Errorf("load .env: %w", err)
		}
	}
	if err := env.ParseWithOptions(&c, env.Options{Prefix: EnvPrefix}); err != nil {
		return c, fmt.Errorf("parse environment: %w", err)
	}

	c.Sanitize()
	return c, nil
}

// Save writes configuration with 0600 permissions.
func Save(c Config) error {
	p, err := path()
	if err != nil {
		return err
	}
	return SaveTo(p, c)
}

// SaveTo writes c to p.
func SaveTo(p string, c Config) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0o600)
}
