// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"tillbook/cli/internal/keychain"
	"tillbook/cli/internal/profile"
)

var (
	// ErrNotAuthenticated is returned by operations that need a session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrUnknownOutlet means the outlet is not among the accessible tenants.
	ErrUnknownOutlet = errors.New("outlet is not accessible to this account")
	// ErrLoginInProgress is returned when Login is called while another login runs.
	ErrLoginInProgress = errors.New("login already in progress")
)

// Options tune a Controller. Zero values take the defaults noted per field.
type Options struct {
	// ProfileTimeout bounds one profile fetch. Default 12s.
	ProfileTimeout time.Duration
	// SafetyTimeout resolves loading if startup has not finished. Default 10s.
	SafetyTimeout time.Duration
	// CheckTimeout bounds session re-verification. Default 5s.
	CheckTimeout time.Duration
	// SignOutTimeout bounds the backend sign-out during a forced logout. Default 5s.
	SignOutTimeout time.Duration
	// Policy decides what a profile failing validation does. Default strict.
	Policy Policy
	Logger *slog.Logger
}

func (o *Options) setDefaults() {
	if o.ProfileTimeout <= 0 {
		o.ProfileTimeout = 12 * time.Second
	}
	if o.SafetyTimeout <= 0 {
		o.SafetyTimeout = 10 * time.Second
	}
	if o.CheckTimeout <= 0 {
		o.CheckTimeout = 5 * time.Second
	}
	if o.SignOutTimeout <= 0 {
		o.SignOutTimeout = 5 * time.Second
	}
	if o.Policy == "" {
		o.Policy = PolicyStrict
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Controller owns the published AuthState.
//
// Every asynchronous path takes a ticket when it starts and commits through commit, which
// drops the write when the controller was closed or a newer ticket already committed.
// The startup check and the safety timer share one ticket. mu is never held across I/O.
type Controller struct {
	backend   Backend
	profiles  ProfileSource
	artifacts ArtifactScope
	nav       Navigator
	opts      Options
	log       *slog.Logger

	mu          sync.Mutex
	state       AuthState
	mounted     bool
	safetyFired bool
	loggingOut  bool
	issued      uint64
	committed   uint64
	subs        map[string]chan AuthState
	ready       chan struct{}
	safety      *time.Timer
	unsubscribe func()

	// persistMu orders selected-outlet writes against the logout purge.
	persistMu sync.Mutex

	started         sync.Once
	loginInProgress atomic.Bool
	logout          singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a controller in the Initial state. Call Start to run the startup check.
func New(backend Backend, profiles ProfileSource, artifacts ArtifactScope, nav Navigator, opts Options) *Controller {
	opts.setDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		backend:   backend,
		profiles:  profiles,
		artifacts: artifacts,
		nav:       nav,
		opts:      opts,
		log:       opts.Logger,
		state:     Initial(),
		mounted:   true,
		subs:      make(map[string]chan AuthState),
		ready:     make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start runs the startup check once, attaches the session listener and arms the safety timer.
// Later calls do nothing. Cancelling ctx has the same effect on background work as Close.
func (c *Controller) Start(ctx context.Context) {
	c.started.Do(func() {
		context.AfterFunc(ctx, c.cancel)

		t := c.ticket()
		c.mu.Lock()
		if !c.mounted {
			c.mu.Unlock()
			return
		}
		c.safety = time.AfterFunc(c.opts.SafetyTimeout, func() { c.onSafetyTimer(t) })
		c.mu.Unlock()

		unsubscribe := c.backend.OnSessionChange(c.onSessionEvent)
		c.mu.Lock()
		if !c.mounted {
			c.mu.Unlock()
			unsubscribe()
			return
		}
		c.unsubscribe = unsubscribe
		c.mu.Unlock()

		c.spawn(func(ctx context.Context) { c.bootstrap(ctx, t) })
	})
}

// Close unmounts the controller: background work is cancelled, no further state is applied
// and subscriber channels are closed. Close waits for background goroutines to return.
func (c *Controller) Close() {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	c.mounted = false
	subs := c.subs
	c.subs = nil
	safety := c.safety
	unsubscribe := c.unsubscribe
	c.mu.Unlock()

	c.cancel()
	if safety != nil {
		safety.Stop()
	}
	if unsubscribe != nil {
		unsubscribe()
	}
	for _, ch := range subs {
		close(ch)
	}
	c.wg.Wait()
}

// State returns the current snapshot.
func (c *Controller) State() AuthState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Subscribe returns a channel that receives the current state and then every published state.
// A slow reader only misses intermediate states, never the latest one.
func (c *Controller) Subscribe() (<-chan AuthState, func()) {
	ch := make(chan AuthState, 1)
	id := uuid.NewString()

	c.mu.Lock()
	if c.subs == nil {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subs[id] = ch
	ch <- c.state.clone()
	c.mu.Unlock()

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// WaitReady blocks until loading has resolved or ctx is done.
func (c *Controller) WaitReady(ctx context.Context) (AuthState, error) {
	select {
	case <-c.ready:
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// SetSelectedOutlet patches only the selected outlet. "" clears the selection.
// The choice is persisted so it survives restarts until the next logout. It is refused
// while a logout runs.
func (c *Controller) SetSelectedOutlet(id string) error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	if !c.mounted || !c.state.IsAuthenticated || c.loggingOut {
		c.mu.Unlock()
		return ErrNotAuthenticated
	}
	if id != "" && !profile.HasOutlet(c.state.Tenants, id) {
		c.mu.Unlock()
		return ErrUnknownOutlet
	}
	next := c.state
	next.SelectedTenant = id
	c.publishLocked(next)
	c.mu.Unlock()

	var err error
	if id == "" {
		err = c.artifacts.Remove(keychain.KeySelectedOutlet)
	} else {
		err = c.artifacts.Set(keychain.KeySelectedOutlet, id)
	}
	if err != nil {
		c.log.Warn("could not persist selected outlet", "error", err)
	}
	return nil
}

// ticket issues the next commit ticket.
func (c *Controller) ticket() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued++
	return c.issued
}

// commit replaces the state with next(current) unless the controller is closed or a newer
// ticket already committed. It reports whether the state was replaced.
func (c *Controller) commit(t uint64, next func(prev AuthState) AuthState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.mounted || t < c.committed {
		return false
	}
	c.committed = t
	c.publishLocked(next(c.state))
	return true
}

// publishLocked installs s and notifies subscribers. Callers hold mu.
func (c *Controller) publishLocked(s AuthState) {
	c.state = s
	if !s.IsLoading {
		select {
		case <-c.ready:
		default:
			close(c.ready)
		}
	}
	for _, ch := range c.subs {
		snap := s.clone()
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// spawn runs fn in a tracked goroutine unless the controller is closed.
func (c *Controller) spawn(fn func(ctx context.Context)) {
	c.mu.Lock()
	if !c.mounted {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
}

// persistedOutlet reads the outlet chosen in an earlier run.
func (c *Controller) persistedOutlet() string {
	id, err := c.artifacts.Get(keychain.KeySelectedOutlet)
	if err != nil {
		if !errors.Is(err, keychain.ErrNotFound) {
			c.log.Debug("could not read selected outlet", "error", err)
		}
		return ""
	}
	return id
}

// pickOutlet returns the first candidate that names one of tenants.
func pickOutlet(tenants []profile.Outlet, candidates ...string) string {
	for _, id := range candidates {
		if id != "" && profile.HasOutlet(tenants, id) {
			return id
		}
	}
	return ""
}
