// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain provides centralized, thread-safe keychain operations for tillbook.
// This module manages all interactions with the OS keychain/credential store,
// providing a unified key-value scope for session tokens, the persisted auth state
// and the selected outlet.
//
// Every session-scoped key starts with SessionPrefix so that a forced logout can
// enumerate and purge them without knowing each individual name.
package keychain

import (
	"errors"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "tillbook"

// SessionPrefix is shared by every key that belongs to the current session.
const SessionPrefix = "tillbook.auth."

// Keys used for storing secrets in the OS keychain.
const (
	KeyAccessToken    = SessionPrefix + "access_token"
	KeyRefreshToken   = SessionPrefix + "refresh_token"
	KeyAuthState      = SessionPrefix + "state"
	KeySelectedOutlet = SessionPrefix + "selected_outlet"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("keychain: item not found")

// Scope is a flat key-value namespace for locally persisted artifacts.
type Scope interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
	Keys() ([]string, error)
}

// Manager provides centralized, thread-safe operations for the OS keychain.
type Manager struct {
	mu   sync.RWMutex
	ring keyring.Keyring
}

var _ Scope = (*Manager)(nil)

// Options tune how the OS keyring is opened.
type Options struct {
	// Backend forces a single keyring backend ("file" is the only one needing FilePassword).
	Backend string
	// FileDir is where the encrypted file backend stores items.
	FileDir string
	// FilePassword unlocks the file backend without prompting.
	FilePassword string
}

// NewManager creates a new keychain manager with the OS keyring initialized.
func NewManager(opts Options) (*Manager, error) {
	ring, err := openRing(opts)
	if err != nil {
		return nil, err
	}
	return &Manager{ring: ring}, nil
}

// NewManagerWithRing wraps an already opened keyring, e.g. keyring.NewArrayKeyring in tests.
func NewManagerWithRing(ring keyring.Keyring) *Manager {
	return &Manager{ring: ring}
}

// openRing opens the OS keyring, preferring native platform backends.
func openRing(opts Options) (keyring.Keyring, error) {
	var allowed []keyring.BackendType
	switch {
	case opts.Backend == "file":
		allowed = []keyring.BackendType{keyring.FileBackend}
	case runtime.GOOS == "darwin":
		allowed = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case runtime.GOOS == "windows":
		allowed = []keyring.BackendType{keyring.WinCredBackend}
	default:
		allowed = []keyring.BackendType{keyring.SecretServiceBackend, keyring.KWalletBackend, keyring.PassBackend}
		if opts.FilePassword != "" {
			allowed = append(allowed, keyring.FileBackend)
		}
	}

	cfg := keyring.Config{
		ServiceName:      ServiceName,
		AllowedBackends:  allowed,
		PassPrefix:       ServiceName,
		WinCredPrefix:    ServiceName,
		FileDir:          opts.FileDir,
		FilePasswordFunc: keyring.FixedStringPrompt(opts.FilePassword),
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		if runtime.GOOS == "darwin" {
			return nil, errors.New("macOS Keychain unavailable. On macOS 26.0+, install 'pass': brew install pass gnupg && gpg --generate-key && pass init <gpg-key-id>")
		}
		return nil, err
	}
	return ring, nil
}

// Get returns the value stored under key, or ErrNotFound.
func (m *Manager) Get(key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, err := m.ring.Get(key)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return string(it.Data), nil
}

// Set stores value under key.
func (m *Manager) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ring.Set(keyring.Item{Key: key, Data: []byte(value), Label: ServiceName + " " + key})
}

// Remove deletes key. A missing key is not an error.
func (m *Manager) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ring.Remove(key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return err
	}
	return nil
}

// Keys lists every key in the tillbook namespace, sorted.
func (m *Manager) Keys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys, err := m.ring.Keys()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// PurgePrefix removes every key of scope that starts with prefix and returns the removed keys.
// It keeps going after a failed removal and reports the first error.
func PurgePrefix(scope Scope, prefix string) ([]string, error) {
	keys, err := scope.Keys()
	if err != nil {
		return nil, err
	}

	var removed []string
	var firstErr error
	for _, k := range keys {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if err := scope.Remove(k); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		removed = append(removed, k)
	}
	return removed, firstErr
}
