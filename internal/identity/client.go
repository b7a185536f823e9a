// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package identity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"tillbook/cli/internal/keychain"
)

// Endpoints locates the identity backend.
type Endpoints struct {
	// BaseURL is the scheme and host, e.g. "https://id.tillbook.app".
	BaseURL string
	// Token is the OAuth2 token endpoint path, e.g. "/oauth/token".
	Token string
	// Logout revokes the current session server-side, e.g. "/auth/logout".
	Logout string
}

// Client implements the identity backend capability over REST.
// Tokens live in the keychain scope; nothing is kept in memory between calls.
type Client struct {
	endpoints Endpoints
	oauth     *oauth2.Config
	http      *http.Client
	tokens    tokenStore
	hub       *Hub
	log       *slog.Logger
	now       func() time.Time
	leeway    time.Duration
	refresh   singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default 10-second-timeout HTTP client.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// WithRefreshLeeway sets how long before expiry a session is refreshed.
func WithRefreshLeeway(d time.Duration) Option { return func(c *Client) { c.leeway = d } }

// WithHub shares an event hub between clients.
func WithHub(h *Hub) Option { return func(c *Client) { c.hub = h } }

// NewClient creates an identity client for clientID against ep, persisting tokens in scope.
func NewClient(ep Endpoints, clientID string, scope keychain.Scope, opts ...Option) *Client {
	ep.BaseURL = strings.TrimRight(ep.BaseURL, "/")
	c := &Client{
		endpoints: ep,
		oauth: &oauth2.Config{
			ClientID: clientID,
			Endpoint: oauth2.Endpoint{
				TokenURL:  ep.BaseURL + ep.Token,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			Scopes: []string{"openid", "profile", "email", "offline_access"},
		},
		http:   &http.Client{Timeout: 10 * time.Second},
		tokens: tokenStore{scope: scope},
		log:    slog.Default(),
		now:    time.Now,
		leeway: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.hub == nil {
		c.hub = NewHub(0)
	}
	return c
}

// Hub exposes the event hub, e.g. for the remote event stream.
func (c *Client) Hub() *Hub { return c.hub }

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

// Authenticate exchanges credentials for a session and emits SIGNED_IN.
func (c *Client) Authenticate(ctx context.Context, creds Credentials) (*Session, error) {
	email := strings.TrimSpace(creds.Email)
	if email == "" || creds.Password == "" {
		return nil, &StatusError{Status: http.StatusBadRequest, Message: "email and password are required", Err: ErrInvalidCredentials}
	}

	tok, err := c.oauth.PasswordCredentialsToken(c.oauthContext(ctx), email, creds.Password)
	if err != nil {
		return nil, tokenError(err)
	}
	sess, err := c.tokens.save(tok, "")
	if err != nil {
		return nil, err
	}

	c.log.Debug("signed in", "user", sess.User.ID)
	c.hub.Publish(Local, SignedIn, sess)
	return sess, nil
}

// GetSession returns the stored session, refreshing it when it is about to expire.
// It returns (nil, nil) when nobody is logged in or the refresh grant was rejected, and
// an error only when the answer is unknown (keychain or network failure).
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	access, refresh, err := c.tokens.load()
	if err != nil {
		return nil, err
	}
	if access == "" {
		return nil, nil
	}

	sess, err := SessionFromTokens(access, refresh)
	if err != nil {
		c.log.Warn("discarding unreadable session token", "error", err)
		_ = c.tokens.clear()
		return nil, nil
	}
	if !sess.ExpiresWithin(c.now(), c.leeway) {
		return sess, nil
	}
	if refresh == "" {
		_ = c.tokens.clear()
		return nil, nil
	}

	fresh, err := c.Refresh(ctx)
	if err != nil {
		if isRejected(err) {
			return nil, nil
		}
		return nil, err
	}
	return fresh, nil
}

// Peek returns the stored session without refreshing it or calling the network.
func (c *Client) Peek() *Session {
	access, refresh, err := c.tokens.load()
	if err != nil || access == "" {
		return nil
	}
	sess, err := SessionFromTokens(access, refresh)
	if err != nil {
		return nil
	}
	return sess
}

// Refresh exchanges the stored refresh token for a new session and emits TOKEN_REFRESHED.
// Concurrent calls share one request. A rejected grant clears the tokens and emits SIGNED_OUT.
func (c *Client) Refresh(ctx context.Context) (*Session, error) {
	v, err, _ := c.refresh.Do("refresh", func() (any, error) {
		_, rt, err := c.tokens.load()
		if err != nil {
			return nil, err
		}
		if rt == "" {
			return nil, ErrNoRefreshToken
		}

		src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: rt})
		tok, err := src.Token()
		if err != nil {
			mapped := tokenError(err)
			if isRejected(mapped) {
				c.log.Info("refresh token rejected, clearing session")
				_ = c.tokens.clear()
				c.hub.Publish(Local, SignedOut, nil)
			}
			return nil, mapped
		}

		sess, err := c.tokens.save(tok, rt)
		if err != nil {
			return nil, err
		}
		c.hub.Publish(Local, TokenRefreshed, sess)
		return sess, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// SignOut revokes the session server-side (best effort), clears local tokens and emits SIGNED_OUT.
// The returned error only reports the remote revocation; local state is always cleared.
func (c *Client) SignOut(ctx context.Context) error {
	access, _, _ := c.tokens.load()

	var remoteErr error
	if access != "" && c.endpoints.Logout != "" {
		remoteErr = c.revoke(ctx, access)
	}
	if err := c.tokens.clear(); err != nil {
		c.log.Warn("clearing tokens", "error", err)
	}
	c.hub.Publish(Local, SignedOut, nil)
	return remoteErr
}

// OnSessionChange subscribes fn and immediately delivers INITIAL_SESSION with the stored session.
func (c *Client) OnSessionChange(fn Listener) func() {
	unsubscribe := c.hub.Subscribe(fn)
	fn(InitialSession, c.Peek())
	return unsubscribe
}

// AutoRefresh refreshes the stored session shortly before it expires until ctx is done.
func (c *Client) AutoRefresh(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 30 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sess := c.Peek()
			if sess == nil || !sess.ExpiresWithin(c.now(), c.leeway) {
				continue
			}
			if _, err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrNoRefreshToken) {
				c.log.Warn("automatic token refresh failed", "error", err)
			}
		}
	}
}

// revoke calls POST {logout} with the bearer token.
func (c *Client) revoke(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.BaseURL+c.endpoints.Logout, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusUnauthorized:
		// Already invalid server-side.
		return nil
	}
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	return fmt.Errorf("logout failed: %d %s", resp.StatusCode, strings.TrimSpace(string(b)))
}
