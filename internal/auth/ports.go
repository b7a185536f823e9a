// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package auth owns session truth for the CLI. A Controller reconciles the startup session
// check, the identity backend's push events and explicit login/logout calls into a single
// AuthState that every command reads. Loading always resolves, and transient backend failures
// degrade the profile instead of destroying the session.
package auth

import (
	"context"

	"tillbook/cli/internal/identity"
	"tillbook/cli/internal/profile"
)

// Backend is the identity backend capability.
type Backend interface {
	// GetSession returns the current session, nil when there is none.
	GetSession(ctx context.Context) (*identity.Session, error)
	// OnSessionChange subscribes fn to session events and returns the unsubscribe handle.
	OnSessionChange(fn identity.Listener) func()
	SignOut(ctx context.Context) error
	Authenticate(ctx context.Context, creds identity.Credentials) (*identity.Session, error)
}

// ProfileSource resolves a session to a profile and its outlets.
// A nil bundle or a bundle without profile means the profile is empty.
type ProfileSource interface {
	CurrentProfile(ctx context.Context, sess identity.Session) (*profile.Bundle, error)
}

// ArtifactScope is the local key-value store holding session-scoped artifacts.
type ArtifactScope interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Remove(key string) error
	Keys() ([]string, error)
}

// Destination is a navigation target.
type Destination string

const (
	DestHome  Destination = "home"
	DestLogin Destination = "login"
)

// Navigator receives navigation signals.
type Navigator interface {
	Navigate(dest Destination, reason string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(dest Destination, reason string)

func (f NavigatorFunc) Navigate(dest Destination, reason string) { f(dest, reason) }
