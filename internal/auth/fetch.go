// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tillbook/cli/internal/identity"
	"tillbook/cli/internal/profile"
)

// ErrProfileTimeout matches every *TimeoutError.
var ErrProfileTimeout = errors.New("profile fetch timed out")

// TimeoutError is returned when the profile store did not answer in time.
type TimeoutError struct {
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("profile fetch timed out after %s", e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrProfileTimeout }

// fetchProfile races src against timeout. On timeout the store call sees a cancelled
// context and whatever it returns later is discarded.
func fetchProfile(ctx context.Context, src ProfileSource, sess identity.Session, timeout time.Duration) (*profile.Bundle, error) {
	fctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		b   *profile.Bundle
		err error
	}
	done := make(chan result, 1)
	go func() {
		b, err := src.CurrentProfile(fctx, sess)
		done <- result{b, err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.b, r.err
	case <-timer.C:
		return nil, &TimeoutError{After: timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
