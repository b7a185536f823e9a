// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package auth

import (
	"tillbook/cli/internal/identity"
	"tillbook/cli/internal/profile"
)

// Identity is the authenticated principal as shown to consumers.
type Identity struct {
	ID          string       `json:"id"`
	Email       string       `json:"email"`
	DisplayName string       `json:"display_name"`
	Role        profile.Role `json:"role,omitempty"`
	IsActive    bool         `json:"is_active"`
}

// AuthState is one published snapshot. Snapshots are never mutated after publication.
type AuthState struct {
	Identity        *Identity        `json:"identity"`
	Profile         *profile.Profile `json:"profile"`
	Tenants         []profile.Outlet `json:"tenants"`
	SelectedTenant  string           `json:"selected_tenant,omitempty"`
	IsLoading       bool             `json:"is_loading"`
	IsAuthenticated bool             `json:"is_authenticated"`
	IsAdmin         bool             `json:"is_admin"`
	IsManager       bool             `json:"is_manager"`
	IsAccountant    bool             `json:"is_accountant"`
}

// IsAuthReady reports whether protected views may render.
func (s AuthState) IsAuthReady() bool {
	return !s.IsLoading && s.IsAuthenticated
}

// LoggedOut is the canonical logged-out state.
func LoggedOut() AuthState {
	return AuthState{Tenants: []profile.Outlet{}}
}

// Initial is the state before the startup check resolves.
func Initial() AuthState {
	s := LoggedOut()
	s.IsLoading = true
	return s
}

// Build assembles the authenticated state for a validated profile.
// selected is dropped when it does not name one of tenants.
func Build(user identity.User, p *profile.Profile, tenants []profile.Outlet, selected string) AuthState {
	if p == nil {
		return Degraded(user, selected)
	}

	id := &Identity{
		ID:          user.ID,
		Email:       p.Email,
		DisplayName: p.FullName,
		Role:        p.Role,
		IsActive:    p.IsActive,
	}
	if id.ID == "" {
		id.ID = p.ID
	}
	if id.Email == "" {
		id.Email = user.Email
	}
	if id.DisplayName == "" {
		id.DisplayName = id.Email
	}

	pc := *p
	s := AuthState{
		Identity:        id,
		Profile:         &pc,
		Tenants:         append([]profile.Outlet{}, tenants...),
		IsAuthenticated: true,
		IsAdmin:         p.Role == profile.RoleAdmin,
		IsManager:       p.Role == profile.RoleManager,
		IsAccountant:    p.Role == profile.RoleAccountant,
	}
	if profile.HasOutlet(tenants, selected) {
		s.SelectedTenant = selected
	}
	return s
}

// Degraded is the authenticated state used while the profile is unavailable.
func Degraded(user identity.User, selected string) AuthState {
	return AuthState{
		Identity: &Identity{
			ID:          user.ID,
			Email:       user.Email,
			DisplayName: user.Email,
		},
		Tenants:         []profile.Outlet{},
		SelectedTenant:  selected,
		IsAuthenticated: true,
	}
}

// clone returns a copy that shares nothing mutable with s.
func (s AuthState) clone() AuthState {
	c := s
	if s.Identity != nil {
		id := *s.Identity
		c.Identity = &id
	}
	if s.Profile != nil {
		p := *s.Profile
		c.Profile = &p
	}
	c.Tenants = append([]profile.Outlet{}, s.Tenants...)
	return c
}

// user recovers the session user from a published state.
func (s AuthState) user() identity.User {
	if s.Identity == nil {
		return identity.User{}
	}
	return identity.User{ID: s.Identity.ID, Email: s.Identity.Email}
}

// settledOut reports whether s is the logged-out state after loading resolved.
func (s AuthState) settledOut() bool {
	return !s.IsLoading && !s.IsAuthenticated
}
