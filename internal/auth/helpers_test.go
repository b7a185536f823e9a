package auth_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"tillbook/cli/internal/auth"
	"tillbook/cli/internal/identity"
	"tillbook/cli/internal/keychain"
	"tillbook/cli/internal/mocks"
	"tillbook/cli/internal/profile"
)

// fakeBackend behaves like identity.Client: sign-in and sign-out emit events synchronously.
type fakeBackend struct {
	mu        sync.Mutex
	session   *identity.Session
	listeners map[int]identity.Listener
	nextID    int

	getSession   func(ctx context.Context) (*identity.Session, error)
	authenticate func(ctx context.Context, creds identity.Credentials) (*identity.Session, error)
	signOut      func(ctx context.Context) error

	getSessionCalls atomic.Int32
	signOutCalls    atomic.Int32
}

func newFakeBackend(sess *identity.Session) *fakeBackend {
	return &fakeBackend{session: sess, listeners: make(map[int]identity.Listener)}
}

func (f *fakeBackend) current() *identity.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

func (f *fakeBackend) setSession(s *identity.Session) {
	f.mu.Lock()
	f.session = s
	f.mu.Unlock()
}

func (f *fakeBackend) GetSession(ctx context.Context) (*identity.Session, error) {
	f.getSessionCalls.Add(1)
	if f.getSession != nil {
		return f.getSession(ctx)
	}
	return f.current(), nil
}

func (f *fakeBackend) OnSessionChange(fn identity.Listener) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = fn
	sess := f.session
	f.mu.Unlock()

	fn(identity.InitialSession, sess)
	return func() {
		f.mu.Lock()
		delete(f.listeners, id)
		f.mu.Unlock()
	}
}

func (f *fakeBackend) emit(kind identity.EventKind, sess *identity.Session) {
	f.mu.Lock()
	targets := make([]identity.Listener, 0, len(f.listeners))
	for _, fn := range f.listeners {
		targets = append(targets, fn)
	}
	f.mu.Unlock()
	for _, fn := range targets {
		fn(kind, sess)
	}
}

func (f *fakeBackend) SignOut(ctx context.Context) error {
	f.signOutCalls.Add(1)
	var err error
	if f.signOut != nil {
		err = f.signOut(ctx)
	}
	f.setSession(nil)
	f.emit(identity.SignedOut, nil)
	return err
}

func (f *fakeBackend) Authenticate(ctx context.Context, creds identity.Credentials) (*identity.Session, error) {
	sess, err := f.authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	f.setSession(sess)
	f.emit(identity.SignedIn, sess)
	return sess, nil
}

func testSession(userID string) *identity.Session {
	return &identity.Session{
		AccessToken: "access-" + userID,
		ExpiresAt:   time.Now().Add(time.Hour),
		User:        identity.User{ID: userID, Email: userID + "@shop.test"},
	}
}

func bundle(role profile.Role, active bool, outlets ...profile.Outlet) *profile.Bundle {
	return &profile.Bundle{
		Profile: &profile.Profile{ID: "user-1", Email: "user-1@shop.test", FullName: "Asha Rao", Role: role, IsActive: active},
		Tenants: outlets,
	}
}

var (
	andheri = profile.Outlet{ID: "outlet-1", Name: "Andheri"}
	bandra  = profile.Outlet{ID: "outlet-2", Name: "Bandra"}
)

type harness struct {
	t        *testing.T
	backend  *fakeBackend
	profiles *mocks.MockProfileSource
	nav      *mocks.MockNavigator
	scope    *keychain.Manager
	ctrl     *auth.Controller
}

func newHarness(t *testing.T, sess *identity.Session, opts auth.Options) *harness {
	t.Helper()
	mc := gomock.NewController(t)
	h := &harness{
		t:        t,
		backend:  newFakeBackend(sess),
		profiles: mocks.NewMockProfileSource(mc),
		nav:      mocks.NewMockNavigator(mc),
		scope:    keychain.NewManagerWithRing(keyring.NewArrayKeyring(nil)),
	}
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	h.ctrl = auth.New(h.backend, h.profiles, h.scope, h.nav, opts)
	t.Cleanup(h.ctrl.Close)
	return h
}

// start runs the startup check and waits until loading resolves.
func (h *harness) start() auth.AuthState {
	h.t.Helper()
	h.ctrl.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	st, err := h.ctrl.WaitReady(ctx)
	require.NoError(h.t, err, "loading never resolved")
	return st
}

// assertLoggedOutIsEmpty checks that an unauthenticated state carries nothing.
func assertLoggedOutIsEmpty(t *testing.T, s auth.AuthState) {
	t.Helper()
	if s.IsAuthenticated {
		return
	}
	assert.Nil(t, s.Profile)
	assert.Nil(t, s.Identity)
	assert.Empty(t, s.Tenants)
	assert.Empty(t, s.SelectedTenant)
	assert.False(t, s.IsAdmin || s.IsManager || s.IsAccountant)
}
