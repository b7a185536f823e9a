// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	redisstore "tillbook/cli/internal/adapters/redis"
	"tillbook/cli/internal/auth"
	"tillbook/cli/internal/config"
	"tillbook/cli/internal/identity"
	"tillbook/cli/internal/keychain"
	"tillbook/cli/internal/logging"
	"tillbook/cli/internal/manifest"
	"tillbook/cli/internal/profile"
	"tillbook/cli/internal/xdg"
)

// app is everything a session command needs, wired from config.
type app struct {
	cfg      config.Config
	log      *slog.Logger
	out      io.Writer
	scope    keychain.Scope
	manifest *manifest.Manifest
	identity *identity.Client
	nav      *terminalNavigator
	ctrl     *auth.Controller
	closers  []func()
}

// openArtifacts opens only the artifact scope, for offline commands.
func openArtifacts(cmd *cobra.Command) (keychain.Scope, func(), error) {
	return openScope(cmd.Context(), config.MustFromContext(cmd.Context()))
}

// openApp wires the controller for cmd. Call close when done.
func openApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()
	cfg := config.MustFromContext(ctx)
	level, _ := logging.ParseLevel(cfg.LogLevel)
	log := logging.New(level, cmd.ErrOrStderr())

	a := &app{cfg: cfg, log: log, out: cmd.OutOrStdout()}

	scope, closeScope, err := openScope(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	a.scope = scope
	a.closers = append(a.closers, closeScope)

	hc := &http.Client{Timeout: 10 * time.Second}
	m, err := manifest.Resolve(ctx, hc, cfg.Identity.BaseURL, cfg.Identity.ManifestPath)
	if err != nil {
		log.Debug("identity manifest unavailable, using built-in endpoints", "error", err)
	}
	a.manifest = m
	a.identity = identity.NewClient(m.Endpoints(cfg.Identity.BaseURL), cfg.Identity.ClientID, scope,
		identity.WithHTTPClient(hc),
		identity.WithLogger(log),
	)

	profiles, closeProfiles := openProfiles(ctx, cfg, log)
	a.closers = append(a.closers, closeProfiles)

	policy, err := auth.ParsePolicy(cfg.Session.Policy)
	if err != nil {
		a.close()
		return nil, err
	}

	a.nav = newTerminalNavigator(a.out)
	a.ctrl = auth.New(a.identity, profiles, scope, a.nav, auth.Options{
		ProfileTimeout: cfg.Session.ProfileTimeout.Std(),
		SafetyTimeout:  cfg.Session.SafetyTimeout.Std(),
		CheckTimeout:   cfg.Session.CheckTimeout.Std(),
		SignOutTimeout: cfg.Session.SignOutTimeout.Std(),
		Policy:         policy,
		Logger:         log,
	})
	return a, nil
}

// start mounts the controller and waits for the startup check to resolve.
func (a *app) start(ctx context.Context) (auth.AuthState, error) {
	a.ctrl.Start(ctx)
	return a.ctrl.WaitReady(ctx)
}

// close saves the offline snapshot, unmounts the controller and releases resources.
func (a *app) close() {
	if a.ctrl != nil {
		if st := a.ctrl.State(); !st.IsLoading {
			if err := auth.SaveSnapshot(a.scope, st); err != nil {
				a.log.Debug("could not save auth snapshot", "error", err)
			}
		}
		a.ctrl.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func openScope(ctx context.Context, cfg config.Config) (keychain.Scope, func(), error) {
	switch cfg.Artifacts.Backend {
	case config.BackendRedis:
		s, closeFn, err := redisstore.Open(ctx, cfg.Artifacts.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = closeFn() }, nil
	case config.BackendFile:
		dir := cfg.Artifacts.FileDir
		if dir == "" {
			state, err := xdg.StateDir()
			if err != nil {
				return nil, nil, err
			}
			dir = filepath.Join(state, "keyring")
		}
		m, err := keychain.NewManager(keychain.Options{
			Backend:      config.BackendFile,
			FileDir:      dir,
			FilePassword: cfg.Artifacts.KeyringPassword,
		})
		if err != nil {
			return nil, nil, err
		}
		return m, func() {}, nil
	default:
		m, err := keychain.NewManager(keychain.Options{
			FileDir:      cfg.Artifacts.FileDir,
			FilePassword: cfg.Artifacts.KeyringPassword,
		})
		if err != nil {
			return nil, nil, err
		}
		return m, func() {}, nil
	}
}

// openProfiles connects the profile store. Without one, every profile load fails as a
// data error and the controller keeps the session without profile.
func openProfiles(ctx context.Context, cfg config.Config, log *slog.Logger) (auth.ProfileSource, func()) {
	if cfg.Profile.DSN == "" {
		return unavailableProfiles{err: errors.New("profile database not configured (set TILLBOOK_PROFILE_DSN)")}, func() {}
	}
	store, err := profile.Open(ctx, cfg.Profile.DSN)
	if err != nil {
		log.Warn("profile database unavailable", "error", err)
		// Not wrapped: database login errors must classify as data errors.
		return unavailableProfiles{err: fmt.Errorf("profile database unavailable: %s", logging.Mask(err.Error()))}, func() {}
	}
	return store, store.Close
}

type unavailableProfiles struct{ err error }

func (u unavailableProfiles) CurrentProfile(context.Context, identity.Session) (*profile.Bundle, error) {
	return nil, u.err
}
