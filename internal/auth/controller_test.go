package auth_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"tillbook/cli/internal/auth"
	"tillbook/cli/internal/identity"
	"tillbook/cli/internal/keychain"
	"tillbook/cli/internal/profile"
)

func networkError() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
}

func TestStartWithoutSession(t *testing.T) {
	h := newHarness(t, nil, auth.Options{})

	st := h.start()

	assert.Equal(t, auth.LoggedOut(), st)
	assert.False(t, st.IsLoading)
	assert.False(t, st.IsAuthReady())
	assert.Zero(t, h.backend.signOutCalls.Load(), "no session means nothing to sign out")
}

func TestStartSessionCheckError(t *testing.T) {
	h := newHarness(t, nil, auth.Options{})
	h.backend.getSession = func(context.Context) (*identity.Session, error) { return nil, networkError() }

	st := h.start()
	assert.Equal(t, auth.LoggedOut(), st)
}

func TestStartWithAdminProfile(t *testing.T) {
	h := newHarness(t, testSession("user-1"), auth.Options{})
	b := bundle(profile.RoleAdmin, true, andheri, bandra)
	b.DefaultTenant = bandra.ID
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(b, nil)

	st := h.start()

	assert.True(t, st.IsAuthenticated)
	assert.True(t, st.IsAdmin)
	assert.False(t, st.IsManager)
	assert.False(t, st.IsLoading)
	assert.True(t, st.IsAuthReady())
	require.NotNil(t, st.Identity)
	assert.Equal(t, "user-1", st.Identity.ID)
	assert.Equal(t, "Asha Rao", st.Identity.DisplayName)
	assert.Equal(t, []profile.Outlet{andheri, bandra}, st.Tenants)
	assert.Equal(t, bandra.ID, st.SelectedTenant)
}

func TestStartRestoresPersistedOutlet(t *testing.T) {
	h := newHarness(t, testSession("user-1"), auth.Options{})
	require.NoError(t, h.scope.Set(keychain.KeySelectedOutlet, andheri.ID))
	b := bundle(profile.RoleAccountant, true, andheri, bandra)
	b.DefaultTenant = bandra.ID
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(b, nil)

	st := h.start()
	assert.True(t, st.IsAccountant)
	assert.Equal(t, andheri.ID, st.SelectedTenant)
}

func TestStartInactiveProfileStrict(t *testing.T) {
	h := newHarness(t, testSession("user-1"), auth.Options{Policy: auth.PolicyStrict})
	require.NoError(t, h.scope.Set(keychain.KeySelectedOutlet, andheri.ID))
	require.NoError(t, h.scope.Set("tillbook.prefs.theme", "dark"))

	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(bundle(profile.RoleManager, false, andheri), nil)
	navigated := make(chan struct{})
	h.nav.EXPECT().Navigate(auth.DestLogin, "Account is deactivated").Do(func(auth.Destination, string) { close(navigated) })

	st := h.start()
	assert.Equal(t, auth.LoggedOut(), st)

	select {
	case <-navigated:
	case <-time.After(3 * time.Second):
		t.Fatal("no navigation to login")
	}
	assert.EqualValues(t, 1, h.backend.signOutCalls.Load())

	_, err := h.scope.Get(keychain.KeySelectedOutlet)
	assert.ErrorIs(t, err, keychain.ErrNotFound, "session artifacts are purged")
	theme, err := h.scope.Get("tillbook.prefs.theme")
	require.NoError(t, err)
	assert.Equal(t, "dark", theme)
}

func TestStartUnknownRoleLenient(t *testing.T) {
	h := newHarness(t, testSession("user-1"), auth.Options{Policy: auth.PolicyLenient})
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(bundle("cashier", true, andheri), nil)

	st := h.start()

	assert.True(t, st.IsAuthenticated)
	assert.Nil(t, st.Profile)
	assert.Empty(t, st.Tenants)
	assert.False(t, st.IsAdmin || st.IsManager || st.IsAccountant)
	assert.Zero(t, h.backend.signOutCalls.Load())
}

func TestStartEmptyProfileLogsOut(t *testing.T) {
	h := newHarness(t, testSession("user-1"), auth.Options{})
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(nil, nil)
	h.nav.EXPECT().Navigate(auth.DestLogin, "Profile not found")

	st := h.start()
	assert.Equal(t, auth.LoggedOut(), st)
}

func TestStartProfileNetworkError(t *testing.T) {
	h := newHarness(t, testSession("user-1"), auth.Options{})
	require.NoError(t, h.scope.Set(keychain.KeySelectedOutlet, andheri.ID))
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(nil, networkError())

	st := h.start()

	assert.True(t, st.IsAuthenticated)
	assert.False(t, st.IsLoading)
	assert.Nil(t, st.Profile)
	require.NotNil(t, st.Identity)
	assert.Equal(t, "user-1@shop.test", st.Identity.Email)
	assert.Equal(t, andheri.ID, st.SelectedTenant, "selection survives a degraded start")
	assert.Zero(t, h.backend.signOutCalls.Load())
}

func TestStartProfileAuthError(t *testing.T) {
	h := newHarness(t, testSession("user-1"), auth.Options{})
	rejected := &identity.StatusError{Status: http.StatusUnauthorized, Message: "JWT expired"}
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(nil, rejected)
	h.nav.EXPECT().Navigate(auth.DestLogin, rejected.Error())

	st := h.start()
	assert.Equal(t, auth.LoggedOut(), st)
}

func TestStartProfileTimeoutAfterSafetyTimer(t *testing.T) {
	h := newHarness(t, testSession("user-1"), auth.Options{
		ProfileTimeout: 150 * time.Millisecond,
		SafetyTimeout:  30 * time.Millisecond,
		CheckTimeout:   100 * time.Millisecond,
	})

	cancelled := make(chan struct{})
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ identity.Session) (*profile.Bundle, error) {
			<-ctx.Done()
			close(cancelled)
			return nil, ctx.Err()
		})

	st := h.start()
	assert.True(t, st.IsAuthenticated, "safety timer confirmed the session")
	assert.Nil(t, st.Profile)

	select {
	case <-cancelled:
	case <-time.After(3 * time.Second):
		t.Fatal("profile fetch was not cancelled on timeout")
	}

	// bootstrap, safety timer, timeout re-check
	require.Eventually(t, func() bool { return h.backend.getSessionCalls.Load() == 3 }, 3*time.Second, 5*time.Millisecond)
	h.ctrl.Close()

	final := h.ctrl.State()
	assert.True(t, final.IsAuthenticated)
	assert.False(t, final.IsLoading)
	assert.Nil(t, final.Profile)
	assert.Zero(t, h.backend.signOutCalls.Load())
}

func TestStartProfileTimeoutReverifiesSession(t *testing.T) {
	h := newHarness(t, testSession("user-1"), auth.Options{
		ProfileTimeout: 20 * time.Millisecond,
		SafetyTimeout:  time.Hour,
	})
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ identity.Session) (*profile.Bundle, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	st := h.start()
	assert.True(t, st.IsAuthenticated)
	assert.Nil(t, st.Profile)
	assert.EqualValues(t, 2, h.backend.getSessionCalls.Load())
}

func TestStartProfileTimeoutSessionGone(t *testing.T) {
	h := newHarness(t, testSession("user-1"), auth.Options{
		ProfileTimeout: 20 * time.Millisecond,
		SafetyTimeout:  time.Hour,
	})
	var calls atomic.Int32
	h.backend.getSession = func(context.Context) (*identity.Session, error) {
		if calls.Add(1) == 1 {
			return testSession("user-1"), nil
		}
		return nil, nil
	}
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ identity.Session) (*profile.Bundle, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	h.nav.EXPECT().Navigate(auth.DestLogin, "Session expired")

	st := h.start()
	assert.Equal(t, auth.LoggedOut(), st)
}

func TestLoadingAlwaysResolves(t *testing.T) {
	const (
		safety = 50 * time.Millisecond
		check  = 50 * time.Millisecond
	)
	hang := func(ctx context.Context, _ identity.Session) (*profile.Bundle, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	tests := []struct {
		name       string
		session    *identity.Session
		getSession func(context.Context) (*identity.Session, error)
		fetch      func(context.Context, identity.Session) (*profile.Bundle, error)
	}{
		{name: "no session"},
		{
			name:    "valid profile",
			session: testSession("user-1"),
			fetch: func(context.Context, identity.Session) (*profile.Bundle, error) {
				return bundle(profile.RoleAdmin, true), nil
			},
		},
		{name: "profile hangs", session: testSession("user-1"), fetch: hang},
		{
			name:    "data error",
			session: testSession("user-1"),
			fetch: func(context.Context, identity.Session) (*profile.Bundle, error) {
				return nil, networkError()
			},
		},
		{
			name:    "auth error",
			session: testSession("user-1"),
			fetch: func(context.Context, identity.Session) (*profile.Bundle, error) {
				return nil, errors.New("invalid refresh token")
			},
		},
		{
			name: "session check hangs",
			getSession: func(ctx context.Context) (*identity.Session, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.session, auth.Options{
				ProfileTimeout: time.Hour,
				SafetyTimeout:  safety,
				CheckTimeout:   check,
			})
			h.backend.getSession = tt.getSession
			if tt.fetch != nil {
				h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).DoAndReturn(tt.fetch)
			}
			h.nav.EXPECT().Navigate(gomock.Any(), gomock.Any()).AnyTimes()

			h.ctrl.Start(context.Background())
			ctx, cancel := context.WithTimeout(context.Background(), safety+check+time.Second)
			defer cancel()
			st, err := h.ctrl.WaitReady(ctx)
			require.NoError(t, err)
			assert.False(t, st.IsLoading)
			assertLoggedOutIsEmpty(t, st)
		})
	}
}

func TestConcurrentLogoutNavigatesOnce(t *testing.T) {
	h := newHarness(t, testSession("user-1"), auth.Options{})
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(bundle(profile.RoleManager, true, andheri), nil)
	require.True(t, h.start().IsAuthenticated)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.backend.signOut = func(context.Context) error {
		once.Do(func() { close(entered) })
		<-release
		return errors.New("backend unavailable")
	}
	h.nav.EXPECT().Navigate(auth.DestLogin, "user-initiated").Times(1)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); h.ctrl.Logout(context.Background()) }()
	<-entered
	go func() { defer wg.Done(); h.ctrl.Logout(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, auth.LoggedOut(), h.ctrl.State())
	assertLoggedOutIsEmpty(t, h.ctrl.State())
}

func TestLogoutWhenAlreadyLoggedOutDoesNotNavigate(t *testing.T) {
	h := newHarness(t, nil, auth.Options{})
	h.start()

	h.ctrl.Logout(context.Background())
	assert.Equal(t, auth.LoggedOut(), h.ctrl.State())
	assert.EqualValues(t, 1, h.backend.signOutCalls.Load())
}

func TestLoginSuppressesDuplicateSignedIn(t *testing.T) {
	h := newHarness(t, nil, auth.Options{})
	h.start()

	h.backend.authenticate = func(context.Context, identity.Credentials) (*identity.Session, error) {
		return testSession("user-1"), nil
	}
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(bundle(profile.RoleManager, true, andheri), nil).Times(1)
	h.nav.EXPECT().Navigate(auth.DestHome, "").Times(1)

	require.NoError(t, h.ctrl.Login(context.Background(), identity.Credentials{Email: "user-1@shop.test", Password: "pw"}))

	st := h.ctrl.State()
	assert.True(t, st.IsManager)
	assert.Equal(t, []profile.Outlet{andheri}, st.Tenants)

	// Give a stray listener reload the chance to run before the mock verifies Times(1).
	time.Sleep(50 * time.Millisecond)
}

func TestLoginFailure(t *testing.T) {
	h := newHarness(t, nil, auth.Options{})
	h.start()

	rejected := &identity.StatusError{Status: http.StatusUnauthorized, Message: "Invalid login credentials", Err: identity.ErrInvalidCredentials}
	h.backend.authenticate = func(context.Context, identity.Credentials) (*identity.Session, error) {
		return nil, rejected
	}

	err := h.ctrl.Login(context.Background(), identity.Credentials{Email: "a@b.test", Password: "nope"})
	require.Error(t, err)
	assert.ErrorIs(t, err, identity.ErrInvalidCredentials)
	assert.Equal(t, auth.LoggedOut(), h.ctrl.State())
	assert.EqualValues(t, 1, h.backend.signOutCalls.Load())
}

func TestLoginDeactivatedAccount(t *testing.T) {
	h := newHarness(t, nil, auth.Options{})
	h.start()

	h.backend.authenticate = func(context.Context, identity.Credentials) (*identity.Session, error) {
		return testSession("user-1"), nil
	}
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(bundle(profile.RoleAdmin, false), nil)

	err := h.ctrl.Login(context.Background(), identity.Credentials{Email: "a@b.test", Password: "pw"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Account is deactivated")
	assert.Equal(t, auth.LoggedOut(), h.ctrl.State())
}

func TestLoginProfileUnavailable(t *testing.T) {
	h := newHarness(t, nil, auth.Options{})
	h.start()

	h.backend.authenticate = func(context.Context, identity.Credentials) (*identity.Session, error) {
		return testSession("user-1"), nil
	}
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(nil, networkError())
	h.nav.EXPECT().Navigate(auth.DestHome, "")

	require.NoError(t, h.ctrl.Login(context.Background(), identity.Credentials{Email: "a@b.test", Password: "pw"}))
	st := h.ctrl.State()
	assert.True(t, st.IsAuthenticated)
	assert.Nil(t, st.Profile)
}

func TestLoginRejectsConcurrentLogin(t *testing.T) {
	h := newHarness(t, nil, auth.Options{})
	h.start()

	entered := make(chan struct{})
	release := make(chan struct{})
	h.backend.authenticate = func(context.Context, identity.Credentials) (*identity.Session, error) {
		close(entered)
		<-release
		return testSession("user-1"), nil
	}
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(bundle(profile.RoleAdmin, true), nil)
	h.nav.EXPECT().Navigate(auth.DestHome, "")

	done := make(chan error, 1)
	go func() { done <- h.ctrl.Login(context.Background(), identity.Credentials{Email: "a@b.test", Password: "pw"}) }()
	<-entered

	err := h.ctrl.Login(context.Background(), identity.Credentials{Email: "a@b.test", Password: "pw"})
	assert.ErrorIs(t, err, auth.ErrLoginInProgress)

	close(release)
	require.NoError(t, <-done)
	assert.True(t, h.ctrl.State().IsAdmin)
}

func TestSignedOutEventPublishesLoggedOut(t *testing.T) {
	h := newHarness(t, testSession("user-1"), auth.Options{})
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(bundle(profile.RoleAdmin, true, andheri), nil)
	require.True(t, h.start().IsAuthenticated)

	h.nav.EXPECT().Navigate(auth.DestLogin, "Signed out")
	h.backend.setSession(nil)
	h.backend.emit(identity.SignedOut, nil)

	assert.Equal(t, auth.LoggedOut(), h.ctrl.State())
	assert.Zero(t, h.backend.signOutCalls.Load())
}

func TestTokenRefreshedReloadsProfile(t *testing.T) {
	h := newHarness(t, testSession("user-1"), auth.Options{})
	gomock.InOrder(
		h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(bundle(profile.RoleAccountant, true, andheri), nil),
		h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(bundle(profile.RoleManager, true, andheri, bandra), nil),
	)
	require.True(t, h.start().IsAccountant)

	h.backend.emit(identity.TokenRefreshed, testSession("user-1"))

	require.Eventually(t, func() bool { return h.ctrl.State().IsManager }, 3*time.Second, 5*time.Millisecond)
	assert.Len(t, h.ctrl.State().Tenants, 2)
}

func TestInitialSessionEventIsIgnored(t *testing.T) {
	h := newHarness(t, nil, auth.Options{})
	h.start()

	h.backend.emit(identity.InitialSession, testSession("user-1"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, auth.LoggedOut(), h.ctrl.State())
}

func TestNullSessionEventReverifies(t *testing.T) {
	h := newHarness(t, testSession("user-1"), auth.Options{})
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(bundle(profile.RoleAdmin, true), nil)
	before := h.start()
	require.True(t, before.IsAuthenticated)

	// Session still valid: spurious delivery, nothing changes.
	h.backend.emit(identity.TokenRefreshed, nil)
	require.Eventually(t, func() bool { return h.backend.getSessionCalls.Load() == 2 }, 3*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, h.ctrl.State())

	// Session confirmed gone: forced logout.
	navigated := make(chan struct{})
	h.nav.EXPECT().Navigate(auth.DestLogin, "Session expired").Do(func(auth.Destination, string) { close(navigated) })
	h.backend.setSession(nil)
	h.backend.emit(identity.TokenRefreshed, nil)

	select {
	case <-navigated:
	case <-time.After(3 * time.Second):
		t.Fatal("no forced logout")
	}
	assert.Equal(t, auth.LoggedOut(), h.ctrl.State())
}

func TestSetSelectedOutlet(t *testing.T) {
	h := newHarness(t, testSession("user-1"), auth.Options{})
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(bundle(profile.RoleManager, true, andheri, bandra), nil).Times(2)
	before := h.start()
	require.Empty(t, before.SelectedTenant)

	require.NoError(t, h.ctrl.SetSelectedOutlet(bandra.ID))
	st := h.ctrl.State()
	assert.Equal(t, bandra.ID, st.SelectedTenant)
	assert.Equal(t, before.Profile, st.Profile)
	assert.Equal(t, before.Tenants, st.Tenants)

	stored, err := h.scope.Get(keychain.KeySelectedOutlet)
	require.NoError(t, err)
	assert.Equal(t, bandra.ID, stored)

	assert.ErrorIs(t, h.ctrl.SetSelectedOutlet("outlet-9"), auth.ErrUnknownOutlet)

	h.ctrl.RefreshProfile(context.Background())
	assert.Equal(t, bandra.ID, h.ctrl.State().SelectedTenant, "refresh keeps the selection")

	require.NoError(t, h.ctrl.SetSelectedOutlet(""))
	assert.Empty(t, h.ctrl.State().SelectedTenant)
	_, err = h.scope.Get(keychain.KeySelectedOutlet)
	assert.ErrorIs(t, err, keychain.ErrNotFound)
}

func TestSetSelectedOutletLoggedOut(t *testing.T) {
	h := newHarness(t, nil, auth.Options{})
	h.start()

	assert.ErrorIs(t, h.ctrl.SetSelectedOutlet(andheri.ID), auth.ErrNotAuthenticated)
	assert.Equal(t, auth.LoggedOut(), h.ctrl.State())
}

func TestRefreshProfileFailureDegrades(t *testing.T) {
	h := newHarness(t, testSession("user-1"), auth.Options{})
	gomock.InOrder(
		h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(bundle(profile.RoleAdmin, true, andheri), nil),
		h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(nil, &identity.StatusError{Status: http.StatusUnauthorized}),
	)
	h.start()
	require.NoError(t, h.ctrl.SetSelectedOutlet(andheri.ID))

	h.ctrl.RefreshProfile(context.Background())

	st := h.ctrl.State()
	assert.True(t, st.IsAuthenticated, "refresh failures never log out")
	assert.Nil(t, st.Profile)
	assert.Equal(t, andheri.ID, st.SelectedTenant)
	assert.Zero(t, h.backend.signOutCalls.Load())
}

func TestRefreshProfileLoggedOutIsNoop(t *testing.T) {
	h := newHarness(t, nil, auth.Options{})
	h.start()

	h.ctrl.RefreshProfile(context.Background())
	assert.Equal(t, auth.LoggedOut(), h.ctrl.State())
}

func TestSubscribeReceivesStates(t *testing.T) {
	h := newHarness(t, testSession("user-1"), auth.Options{})
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(bundle(profile.RoleAdmin, true), nil)

	updates, unsubscribe := h.ctrl.Subscribe()
	defer unsubscribe()

	first := <-updates
	assert.True(t, first.IsLoading)

	h.start()
	select {
	case st := <-updates:
		assert.True(t, st.IsAdmin)
	case <-time.After(3 * time.Second):
		t.Fatal("no update after startup")
	}
}

func TestCloseStopsWrites(t *testing.T) {
	h := newHarness(t, testSession("user-1"), auth.Options{})
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(bundle(profile.RoleAdmin, true), nil)
	before := h.start()

	updates, _ := h.ctrl.Subscribe()
	<-updates
	h.ctrl.Close()

	_, open := <-updates
	assert.False(t, open, "subscriber channel closes on Close")

	h.backend.emit(identity.SignedOut, nil)
	assert.Equal(t, before, h.ctrl.State())
	assert.ErrorIs(t, h.ctrl.SetSelectedOutlet(""), auth.ErrNotAuthenticated)
}

func TestLateStartupResultDoesNotOverrideNewerSignIn(t *testing.T) {
	tests := []struct {
		name  string
		stale func() (*profile.Bundle, error)
	}{
		{
			name:  "auth error",
			stale: func() (*profile.Bundle, error) { return nil, identity.ErrUnauthorized },
		},
		{
			name:  "empty profile",
			stale: func() (*profile.Bundle, error) { return nil, nil },
		},
		{
			name:  "inactive profile",
			stale: func() (*profile.Bundle, error) { return bundle(profile.RoleManager, false), nil },
		},
		{
			name:  "valid profile",
			stale: func() (*profile.Bundle, error) { return bundle(profile.RoleAccountant, true, andheri), nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, testSession("old"), auth.Options{SafetyTimeout: time.Hour})

			entered := make(chan struct{})
			release := make(chan struct{})
			returned := make(chan struct{})
			h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).DoAndReturn(
				func(_ context.Context, sess identity.Session) (*profile.Bundle, error) {
					if sess.User.ID == "old" {
						close(entered)
						<-release
						defer close(returned)
						return tt.stale()
					}
					return bundle(profile.RoleAdmin, true, bandra), nil
				}).Times(2)

			h.ctrl.Start(context.Background())
			<-entered

			fresh := testSession("new")
			h.backend.setSession(fresh)
			h.backend.emit(identity.SignedIn, fresh)
			require.Eventually(t, func() bool { return h.ctrl.State().IsAdmin }, 3*time.Second, 5*time.Millisecond)

			close(release)
			<-returned

			assert.Never(t, func() bool {
				st := h.ctrl.State()
				return !st.IsAdmin || h.backend.signOutCalls.Load() > 0
			}, 100*time.Millisecond, 5*time.Millisecond)
			assert.Equal(t, fresh, h.backend.current())
			assert.Equal(t, "new", h.ctrl.State().Identity.ID)
		})
	}
}

// blockingReload makes the first profile fetch after startup wait for release and return
// stale; later fetches return fresh.
func blockingReload(h *harness, stale func() (*profile.Bundle, error), fresh *profile.Bundle) (entered, release chan struct{}) {
	entered = make(chan struct{})
	release = make(chan struct{})
	var calls atomic.Int32
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).DoAndReturn(
		func(context.Context, identity.Session) (*profile.Bundle, error) {
			switch calls.Add(1) {
			case 1:
				return bundle(profile.RoleAccountant, true, andheri), nil
			case 2:
				close(entered)
				<-release
				return stale()
			default:
				return fresh, nil
			}
		}).Times(3)
	return entered, release
}

func TestLateReloadDoesNotOverrideRefresh(t *testing.T) {
	h := newHarness(t, testSession("user-1"), auth.Options{})
	entered, release := blockingReload(h, func() (*profile.Bundle, error) {
		return bundle(profile.RoleAccountant, true, andheri), nil
	}, bundle(profile.RoleManager, true, andheri, bandra))
	require.True(t, h.start().IsAccountant)

	h.backend.emit(identity.TokenRefreshed, testSession("user-1"))
	<-entered

	h.ctrl.RefreshProfile(context.Background())
	require.True(t, h.ctrl.State().IsManager)

	close(release)
	assert.Never(t, func() bool { return !h.ctrl.State().IsManager }, 100*time.Millisecond, 5*time.Millisecond)
	assert.Len(t, h.ctrl.State().Tenants, 2)
}

func TestLateReloadDoesNotLogOutNewerLogin(t *testing.T) {
	h := newHarness(t, testSession("user-1"), auth.Options{})
	entered, release := blockingReload(h, func() (*profile.Bundle, error) {
		return nil, &identity.StatusError{Status: http.StatusUnauthorized, Message: "JWT expired"}
	}, bundle(profile.RoleManager, true, andheri, bandra))
	require.True(t, h.start().IsAccountant)

	h.backend.emit(identity.TokenRefreshed, testSession("user-1"))
	<-entered

	h.backend.authenticate = func(context.Context, identity.Credentials) (*identity.Session, error) {
		return testSession("user-1"), nil
	}
	h.nav.EXPECT().Navigate(auth.DestHome, "")
	require.NoError(t, h.ctrl.Login(context.Background(), identity.Credentials{Email: "user-1@shop.test", Password: "pw"}))
	require.True(t, h.ctrl.State().IsManager)

	close(release)
	assert.Never(t, func() bool {
		return !h.ctrl.State().IsManager || h.backend.signOutCalls.Load() > 0
	}, 100*time.Millisecond, 5*time.Millisecond)
}

func TestSetSelectedOutletRefusedDuringLogout(t *testing.T) {
	h := newHarness(t, testSession("user-1"), auth.Options{})
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).Return(bundle(profile.RoleManager, true, andheri, bandra), nil)
	require.True(t, h.start().IsAuthenticated)

	var selectErr error
	h.backend.signOut = func(context.Context) error {
		selectErr = h.ctrl.SetSelectedOutlet(andheri.ID)
		return nil
	}
	h.nav.EXPECT().Navigate(auth.DestLogin, "user-initiated")

	h.ctrl.Logout(context.Background())

	assert.ErrorIs(t, selectErr, auth.ErrNotAuthenticated)
	_, err := h.scope.Get(keychain.KeySelectedOutlet)
	assert.ErrorIs(t, err, keychain.ErrNotFound)
	assert.Equal(t, auth.LoggedOut(), h.ctrl.State())
}

func TestLoginCancelledWhileLoadingProfile(t *testing.T) {
	h := newHarness(t, nil, auth.Options{})
	h.start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.backend.authenticate = func(context.Context, identity.Credentials) (*identity.Session, error) {
		return testSession("user-1"), nil
	}
	h.profiles.EXPECT().CurrentProfile(gomock.Any(), gomock.Any()).DoAndReturn(
		func(fctx context.Context, _ identity.Session) (*profile.Bundle, error) {
			cancel()
			<-fctx.Done()
			return nil, fctx.Err()
		})

	err := h.ctrl.Login(ctx, identity.Credentials{Email: "user-1@shop.test", Password: "pw"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, auth.LoggedOut(), h.ctrl.State())
	assert.EqualValues(t, 1, h.backend.signOutCalls.Load())
	assert.Nil(t, h.backend.current())
}
