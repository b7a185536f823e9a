// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package auth

import (
	"context"
	"errors"

	apperrors "tillbook/cli/internal/errors"
	"tillbook/cli/internal/identity"
)

// bootstrap is the startup check: session, then profile.
func (c *Controller) bootstrap(ctx context.Context, t uint64) {
	sess, err := c.backend.GetSession(ctx)
	switch {
	case ctx.Err() != nil:
		return
	case err != nil:
		c.log.Warn("session check failed, starting logged out", "error", err)
		c.commit(t, func(AuthState) AuthState { return LoggedOut() })
		return
	case sess == nil:
		c.log.Debug("no stored session")
		c.commit(t, func(AuthState) AuthState { return LoggedOut() })
		return
	}

	c.loadProfile(ctx, t, *sess, true)
}

// loadProfile fetches and validates the profile for sess and commits the outcome under t.
// startup marks the bootstrap path, whose timeout handling defers to the safety timer.
func (c *Controller) loadProfile(ctx context.Context, t uint64, sess identity.Session, startup bool) {
	b, err := fetchProfile(ctx, c.profiles, sess, c.opts.ProfileTimeout)
	if ctx.Err() != nil {
		return
	}

	switch {
	case err == nil && (b == nil || b.Profile == nil):
		c.log.Warn("session has no profile, logging out", "user", sess.User.ID)
		c.forceLogoutFor(ctx, t, "Profile not found")

	case err == nil:
		if verr := validateProfile(b.Profile); verr != nil {
			if c.opts.Policy == PolicyStrict {
				c.forceLogoutFor(ctx, t, reasonOf(verr))
				return
			}
			c.log.Warn("profile rejected, continuing without it", "reason", reasonOf(verr))
			c.commitDegraded(t, sess.User)
			return
		}
		persisted := c.persistedOutlet()
		c.commit(t, func(prev AuthState) AuthState {
			sel := pickOutlet(b.Tenants, b.SelectedTenant, prev.SelectedTenant, persisted, b.DefaultTenant)
			return Build(sess.User, b.Profile, b.Tenants, sel)
		})

	case errors.Is(err, ErrProfileTimeout):
		c.log.Warn("profile fetch timed out", "error", err)
		c.onProfileTimeout(ctx, t, sess, startup)

	case Classify(err) == apperrors.KindAuth:
		c.log.Warn("profile fetch rejected the session, logging out", "error", err)
		c.forceLogoutFor(ctx, t, reasonOf(err))

	default:
		if isNotFound(err) {
			c.log.Info("profile not created yet", "user", sess.User.ID)
		} else {
			c.log.Warn("profile unavailable, continuing without it", "error", err)
		}
		c.commitDegraded(t, sess.User)
	}
}

// onProfileTimeout re-verifies the session once. A timeout alone never logs out.
func (c *Controller) onProfileTimeout(ctx context.Context, t uint64, sess identity.Session, startup bool) {
	cctx, cancel := context.WithTimeout(ctx, c.opts.CheckTimeout)
	live, err := c.backend.GetSession(cctx)
	cancel()
	if ctx.Err() != nil {
		return
	}

	if startup {
		c.mu.Lock()
		fired := c.safetyFired
		c.mu.Unlock()
		if fired {
			c.log.Debug("safety timer already resolved startup")
			return
		}
	}

	if err == nil && live == nil {
		c.forceLogoutFor(ctx, t, "Session expired")
		return
	}
	if err != nil {
		c.log.Debug("session re-check failed, keeping session", "error", err)
	}
	c.commitDegraded(t, sess.User)
}

// commitDegraded publishes the session without profile, keeping the selected outlet.
func (c *Controller) commitDegraded(t uint64, user identity.User) {
	persisted := c.persistedOutlet()
	c.commit(t, func(prev AuthState) AuthState {
		sel := prev.SelectedTenant
		if sel == "" {
			sel = persisted
		}
		return Degraded(user, sel)
	})
}

// onSafetyTimer resolves loading when startup has not. It runs at most once.
func (c *Controller) onSafetyTimer(t uint64) {
	c.mu.Lock()
	if !c.mounted || !c.state.IsLoading {
		c.mu.Unlock()
		return
	}
	c.safetyFired = true
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	c.log.Warn("startup is taking too long, re-checking session")
	ctx, cancel := context.WithTimeout(c.ctx, c.opts.CheckTimeout)
	sess, err := c.backend.GetSession(ctx)
	cancel()

	next := LoggedOut()
	if err == nil && sess != nil {
		next = Degraded(sess.User, c.persistedOutlet())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted || t < c.committed || !c.state.IsLoading {
		return
	}
	c.committed = t
	c.publishLocked(next)
}
