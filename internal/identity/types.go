// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package identity talks to the tillbook identity backend. It issues sessions with the
// OAuth2 password grant, refreshes them before they expire, persists the tokens in the
// keychain scope and fans session change events out to subscribers, whether those events
// originate locally (login, refresh, logout) or are pushed by the server over gRPC.
package identity

import "time"

// EventKind enumerates session change notifications.
type EventKind string

const (
	// InitialSession is delivered once to every new subscriber with the stored session.
	InitialSession EventKind = "INITIAL_SESSION"
	SignedIn       EventKind = "SIGNED_IN"
	SignedOut      EventKind = "SIGNED_OUT"
	TokenRefreshed EventKind = "TOKEN_REFRESHED"
	UserUpdated    EventKind = "USER_UPDATED"
)

// Listener receives session change events. sess may be nil.
type Listener func(kind EventKind, sess *Session)

// Credentials are what a user types into the login prompt.
type Credentials struct {
	Email    string
	Password string
}

// User is the subject of a session as asserted by the access token.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is a backend-issued proof of authentication.
type Session struct {
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
	ID           string    `json:"session_id,omitempty"`
	User         User      `json:"user"`
}

// ExpiresWithin reports whether the session expires before now+d.
// A session without an expiry never expires.
func (s *Session) ExpiresWithin(now time.Time, d time.Duration) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(d).Before(s.ExpiresAt)
}
