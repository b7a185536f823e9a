// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package xdg resolves XDG Base Directory paths for tillbook.
//
// Directories are created on first use with private permissions, since the config dir
// holds the identity endpoints and the state dir may hold the file-backed keyring.
package xdg

import (
	"os"
	"path/filepath"
)

const app = "tillbook"

// ConfigDir returns $XDG_CONFIG_HOME/tillbook, falling back to ~/.config/tillbook.
func ConfigDir() (string, error) {
	return ensure("XDG_CONFIG_HOME", ".config")
}

// StateDir returns $XDG_STATE_HOME/tillbook, falling back to ~/.local/state/tillbook.
func StateDir() (string, error) {
	return ensure("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

// ensure resolves base from env (or home/fallback) and creates base/tillbook with 0700.
func ensure(env, fallback string) (string, error) {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, fallback)
	}
	dir := filepath.Join(base, app)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
