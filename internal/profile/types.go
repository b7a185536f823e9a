// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package profile loads the back-office profile and the outlets a user may work in.
package profile

import (
	"errors"
	"strings"
)

// ErrNotFound means no profile row exists for the authenticated user.
var ErrNotFound = errors.New("profile not found")

// Role is the back-office role stored on a profile.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleManager    Role = "manager"
	RoleAccountant Role = "accountant"
)

// ParseRole normalizes a stored role. Unknown values are kept verbatim so validation can name them.
func ParseRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

// Profile is the user's domain record.
type Profile struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name,omitempty"`
	Role     Role   `json:"role"`
	IsActive bool   `json:"is_active"`
}

// Outlet is a tenant context (a store location) the user can act within.
type Outlet struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Code  string `json:"code,omitempty"`
	GSTIN string `json:"gstin,omitempty"`
}

// Bundle is one profile fetch result.
type Bundle struct {
	Profile *Profile
	Tenants []Outlet
	// SelectedTenant overrides the current selection when set.
	SelectedTenant string
	// DefaultTenant is the profile's default outlet, used when nothing else is selected.
	DefaultTenant string
}

// HasOutlet reports whether id is among outlets.
func HasOutlet(outlets []Outlet, id string) bool {
	for _, o := range outlets {
		if o.ID == id {
			return true
		}
	}
	return false
}
