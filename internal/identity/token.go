// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"tillbook/cli/internal/keychain"
)

// accessClaims is the subset of the access token the client reads.
// Signatures are verified by the backend, never here.
type accessClaims struct {
	Email     string `json:"email"`
	SessionID string `json:"session_id,omitempty"`
	jwt.RegisteredClaims
}

var unverified = jwt.NewParser(jwt.WithoutClaimsValidation())

// SessionFromTokens decodes the access token into a Session.
func SessionFromTokens(access, refresh string) (*Session, error) {
	access = strings.TrimSpace(access)
	if access == "" {
		return nil, ErrMalformedToken
	}

	var c accessClaims
	if _, _, err := unverified.ParseUnverified(access, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformedToken)
	}

	s := &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ID:           c.SessionID,
		User:         User{ID: c.Subject, Email: c.Email},
	}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s, nil
}

// tokenStore persists session tokens in a keychain scope.
type tokenStore struct {
	scope keychain.Scope
}

// load returns the stored tokens; both are empty when nobody is logged in.
func (t tokenStore) load() (access, refresh string, err error) {
	access, err = t.scope.Get(keychain.KeyAccessToken)
	if err != nil {
		if errors.Is(err, keychain.ErrNotFound) {
			return "", "", nil
		}
		return "", "", fmt.Errorf("read access token: %w", err)
	}
	refresh, err = t.scope.Get(keychain.KeyRefreshToken)
	if err != nil && !errors.Is(err, keychain.ErrNotFound) {
		return "", "", fmt.Errorf("read refresh token: %w", err)
	}
	return access, refresh, nil
}

// save stores tok, keeping previousRefresh when the backend did not rotate it.
func (t tokenStore) save(tok *oauth2.Token, previousRefresh string) (*Session, error) {
	refresh := tok.RefreshToken
	if refresh == "" {
		refresh = previousRefresh
	}

	sess, err := SessionFromTokens(tok.AccessToken, refresh)
	if err != nil {
		return nil, err
	}
	if sess.ExpiresAt.IsZero() && !tok.Expiry.IsZero() {
		sess.ExpiresAt = tok.Expiry
	}
	if tok.TokenType != "" {
		sess.TokenType = strings.ToLower(tok.TokenType)
	}

	if err := t.scope.Set(keychain.KeyAccessToken, tok.AccessToken); err != nil {
		return nil, fmt.Errorf("save access token: %w", err)
	}
	if refresh != "" {
		if err := t.scope.Set(keychain.KeyRefreshToken, refresh); err != nil {
			return nil, fmt.Errorf("save refresh token: %w", err)
		}
	}
	return sess, nil
}

// clear removes both tokens, reporting the first failure.
func (t tokenStore) clear() error {
	errA := t.scope.Remove(keychain.KeyAccessToken)
	errR := t.scope.Remove(keychain.KeyRefreshToken)
	return errors.Join(errA, errR)
}
