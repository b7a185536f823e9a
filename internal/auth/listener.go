// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package auth

import (
	"context"

	"tillbook/cli/internal/identity"
)

// onSessionEvent reacts to identity backend events. It runs on the publisher's goroutine,
// so it only inspects guards and hands slow work to tracked goroutines.
func (c *Controller) onSessionEvent(kind identity.EventKind, sess *identity.Session) {
	switch kind {
	case identity.InitialSession:
		return
	case identity.SignedOut:
		c.onSignedOut()
		return
	case identity.SignedIn, identity.TokenRefreshed, identity.UserUpdated:
	default:
		c.log.Debug("ignoring session event", "event", kind)
		return
	}

	if sess == nil {
		t := c.ticket()
		c.spawn(func(ctx context.Context) { c.reverify(ctx, t) })
		return
	}
	if c.loginInProgress.Load() {
		c.log.Debug("login in progress, skipping event", "event", kind)
		return
	}

	t := c.ticket()
	s := *sess
	c.log.Debug("reloading profile", "event", kind, "user", s.User.ID)
	c.spawn(func(ctx context.Context) { c.loadProfile(ctx, t, s, false) })
}

// onSignedOut publishes the logged-out state at once. Navigation is left to a forced
// logout when one is running.
func (c *Controller) onSignedOut() {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	navigate := c.state.IsAuthenticated && !c.loggingOut
	c.issued++
	c.committed = c.issued
	c.publishLocked(LoggedOut())
	c.mu.Unlock()

	if navigate {
		c.nav.Navigate(DestLogin, "Signed out")
	}
}

// reverify handles an event that arrived without a session. Only a confirmed
// absence of session logs out.
func (c *Controller) reverify(ctx context.Context, t uint64) {
	cctx, cancel := context.WithTimeout(ctx, c.opts.CheckTimeout)
	sess, err := c.backend.GetSession(cctx)
	cancel()
	if ctx.Err() != nil {
		return
	}
	if err != nil {
		c.log.Debug("session re-check failed, keeping state", "error", err)
		return
	}
	if sess == nil {
		c.forceLogoutFor(ctx, t, "Session expired")
	}
}
