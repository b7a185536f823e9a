// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package auth

import (
	"context"
	"errors"

	apperrors "tillbook/cli/internal/errors"
	"tillbook/cli/internal/identity"
	"tillbook/cli/internal/profile"
)

// Login authenticates, loads the profile, publishes the result and navigates home.
// While it runs, SIGNED_IN and refresh events are not reloaded by the listener.
//
// Authentication failures, a missing profile, an auth-class profile error and, under the
// strict policy, a rejected profile force a logout and are returned. Data errors and
// timeouts while loading the profile keep the new session without profile. Cancelling ctx
// while the profile loads abandons the new session and returns the context error.
func (c *Controller) Login(ctx context.Context, creds identity.Credentials) error {
	if !c.loginInProgress.CompareAndSwap(false, true) {
		return ErrLoginInProgress
	}
	defer c.loginInProgress.Store(false)

	t := c.ticket()
	sess, err := c.backend.Authenticate(ctx, creds)
	if err == nil && sess == nil {
		err = apperrors.New(apperrors.KindAuth, "Login returned no session")
	}
	if err != nil {
		c.forceLogout(ctx, reasonOf(err))
		return err
	}

	b, err := fetchProfile(ctx, c.profiles, *sess, c.opts.ProfileTimeout)
	if cerr := ctx.Err(); cerr != nil {
		c.forceLogout(ctx, "Login cancelled")
		return cerr
	}
	if err == nil && (b == nil || b.Profile == nil) {
		err = apperrors.Wrap(apperrors.KindAuth, "Profile not found", profile.ErrNotFound)
	}
	if err == nil {
		if verr := validateProfile(b.Profile); verr != nil {
			if c.opts.Policy == PolicyStrict {
				err = verr
			} else {
				c.log.Warn("profile rejected, continuing without it", "reason", reasonOf(verr))
				b = nil
			}
		}
	}
	if err != nil {
		if !degradable(err) {
			c.forceLogout(ctx, reasonOf(err))
			return err
		}
		c.log.Warn("signed in, profile unavailable", "error", err)
		b = nil
	}

	persisted := c.persistedOutlet()
	applied := c.commit(t, func(AuthState) AuthState {
		if b == nil {
			return Degraded(sess.User, persisted)
		}
		sel := pickOutlet(b.Tenants, b.SelectedTenant, persisted, b.DefaultTenant)
		return Build(sess.User, b.Profile, b.Tenants, sel)
	})
	if !applied {
		return errLoginSuperseded
	}

	c.nav.Navigate(DestHome, "")
	return nil
}

var errLoginSuperseded = errors.New("login superseded by a newer session change")

// degradable reports whether a profile failure after a successful sign-in keeps the session.
func degradable(err error) bool {
	if errors.Is(err, ErrProfileTimeout) {
		return true
	}
	switch apperrors.KindOf(err) {
	case apperrors.KindAuth, apperrors.KindValidation:
		return false
	}
	return Classify(err) == apperrors.KindData
}

// RefreshProfile reloads the profile for the current session. It never logs out:
// any failure publishes the session without profile.
func (c *Controller) RefreshProfile(ctx context.Context) {
	c.mu.Lock()
	cur := c.state
	c.mu.Unlock()
	if !cur.IsAuthenticated {
		return
	}

	t := c.ticket()
	user := cur.user()

	sess, err := c.backend.GetSession(ctx)
	if err == nil && sess == nil {
		err = ErrNotAuthenticated
	}
	var b *profile.Bundle
	if err == nil {
		user = sess.User
		b, err = fetchProfile(ctx, c.profiles, *sess, c.opts.ProfileTimeout)
	}
	if err == nil && (b == nil || b.Profile == nil) {
		err = profile.ErrNotFound
	}
	if err == nil {
		err = validateProfile(b.Profile)
	}

	if err != nil {
		c.log.Warn("profile refresh failed", "error", err)
		c.commit(t, func(prev AuthState) AuthState {
			return Degraded(user, prev.SelectedTenant)
		})
		return
	}

	c.commit(t, func(prev AuthState) AuthState {
		sel := pickOutlet(b.Tenants, b.SelectedTenant, prev.SelectedTenant, b.DefaultTenant)
		return Build(user, b.Profile, b.Tenants, sel)
	})
}
