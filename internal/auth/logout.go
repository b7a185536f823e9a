// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package auth

import (
	"context"

	"tillbook/cli/internal/keychain"
)

// Logout signs the user out.
func (c *Controller) Logout(ctx context.Context) {
	c.forceLogout(ctx, "user-initiated")
}

// forceLogoutFor runs a forced logout decided by the path holding ticket t. It does nothing
// once a newer ticket has committed.
func (c *Controller) forceLogoutFor(ctx context.Context, t uint64, reason string) {
	c.mu.Lock()
	stale := !c.mounted || t < c.committed
	c.mu.Unlock()
	if stale {
		c.log.Debug("superseded session check, not logging out", "reason", reason)
		return
	}
	c.forceLogout(ctx, reason)
}

// forceLogout signs out of the backend, purges session artifacts, publishes LoggedOut and
// navigates to login. Concurrent calls share one run. Navigation is skipped when the state
// had already settled as logged out.
func (c *Controller) forceLogout(ctx context.Context, reason string) {
	_, _, _ = c.logout.Do("logout", func() (any, error) {
		c.mu.Lock()
		wasOut := c.state.settledOut()
		c.loggingOut = true
		c.mu.Unlock()
		defer func() {
			c.mu.Lock()
			c.loggingOut = false
			c.mu.Unlock()
		}()

		c.log.Info("logging out", "reason", reason)

		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.SignOutTimeout)
		if err := c.backend.SignOut(sctx); err != nil {
			c.log.Warn("backend sign-out failed, continuing", "error", err)
		}
		cancel()

		c.persistMu.Lock()
		removed, err := keychain.PurgePrefix(c.artifacts, keychain.SessionPrefix)
		c.persistMu.Unlock()
		if err != nil {
			c.log.Warn("could not purge all session artifacts", "error", err)
		}
		c.log.Debug("purged session artifacts", "keys", len(removed))

		c.mu.Lock()
		if !c.mounted {
			c.mu.Unlock()
			return nil, nil
		}
		c.issued++
		c.committed = c.issued
		c.publishLocked(LoggedOut())
		c.mu.Unlock()

		if !wasOut {
			c.nav.Navigate(DestLogin, reason)
		}
		return nil, nil
	})
}
