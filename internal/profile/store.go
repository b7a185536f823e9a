// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"tillbook/cli/internal/dsn"
	"tillbook/cli/internal/identity"
)

const profileQuery = `
SELECT id::text, email, coalesce(full_name, ''), role, is_active, coalesce(default_outlet_id::text, '')
FROM profiles
WHERE id = $1`

const outletsQuery = `
SELECT o.id::text, o.name, coalesce(o.code, ''), coalesce(o.gstin, '')
FROM outlets o
JOIN outlet_members m ON m.outlet_id = o.id
WHERE m.profile_id = $1 AND o.archived_at IS NULL
ORDER BY o.name, o.id`

// querier is the subset of *pgxpool.Pool the store uses.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGStore reads profiles and outlet memberships from Postgres.
type PGStore struct {
	// db runs the queries; a *pgxpool.Pool outside tests
	db querier
	// close releases db, nil when the store does not own it
	close func()
}

// Open connects to dsn and verifies the connection within 5 seconds.
func Open(ctx context.Context, connString string) (*PGStore, error) {
	if connString == "" {
		return nil, errors.New("profile store DSN is empty")
	}
	normalized, err := dsn.Normalize(connString)
	if err != nil {
		return nil, err
	}
	cfg, err := pgxpool.ParseConfig(normalized)
	if err != nil {
		return nil, fmt.Errorf("parse profile store DSN: %w", err)
	}
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect profile store: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping profile store: %w", err)
	}
	return &PGStore{db: pool, close: pool.Close}, nil
}

// NewPGStore wraps an existing pool. The caller keeps ownership.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{db: pool}
}

// Close releases the pool when the store opened it.
func (s *PGStore) Close() {
	if s.close != nil {
		s.close()
	}
}

// CurrentProfile loads the profile and accessible outlets of the session user concurrently.
// A missing profile row returns ErrNotFound.
func (s *PGStore) CurrentProfile(ctx context.Context, sess identity.Session) (*Bundle, error) {
	userID := sess.User.ID
	if userID == "" {
		return nil, fmt.Errorf("load profile: session has no user id")
	}

	var (
		p         Profile
		role      string
		defOutlet string
		outlets   []Outlet
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := s.db.QueryRow(gctx, profileQuery, userID).Scan(&p.ID, &p.Email, &p.FullName, &role, &p.IsActive, &defOutlet)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		p.Role = ParseRole(role)
		return nil
	})
	g.Go(func() error {
		rows, err := s.db.Query(gctx, outletsQuery, userID)
		if err != nil {
			return fmt.Errorf("load outlets: %w", err)
		}
		outlets, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (Outlet, error) {
			var o Outlet
			err := row.Scan(&o.ID, &o.Name, &o.Code, &o.GSTIN)
			return o, err
		})
		if err != nil {
			return fmt.Errorf("load outlets: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	b := &Bundle{Profile: &p, Tenants: outlets}
	if HasOutlet(outlets, defOutlet) {
		b.DefaultTenant = defOutlet
	}
	return b, nil
}
