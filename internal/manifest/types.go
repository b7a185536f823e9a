// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package manifest discovers identity endpoint paths from the backend.
package manifest

import (
	"net/url"
	"strings"

	"tillbook/cli/internal/identity"
)

// Manifest represents the endpoint configuration published by the identity host.
type Manifest struct {
	Version  int               `json:"version"`
	Identity IdentityEndpoints `json:"identity"`
	Events   EventsEndpoint    `json:"events"`
}

// IdentityEndpoints contains REST endpoint paths on the identity host.
type IdentityEndpoints struct {
	Token  string `json:"token"`  // e.g. "/oauth/token"
	Logout string `json:"logout"` // e.g. "/auth/logout"
}

// EventsEndpoint locates the session event stream.
type EventsEndpoint struct {
	Origin string `json:"origin"` // full URL with scheme, e.g. "grpcs://events.tillbook.app"
}

// Default is used when the manifest cannot be fetched.
func Default() *Manifest {
	return &Manifest{
		Version:  1,
		Identity: IdentityEndpoints{Token: "/oauth/token", Logout: "/auth/logout"},
	}
}

// Endpoints returns identity endpoints rooted at baseURL.
func (m *Manifest) Endpoints(baseURL string) identity.Endpoints {
	return identity.Endpoints{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   m.Identity.Token,
		Logout:  m.Identity.Logout,
	}
}

// EventsAddress returns the stream target, preferring override when set.
// A relative or empty origin disables the stream.
func (m *Manifest) EventsAddress(override string) string {
	if override != "" {
		return override
	}
	u, err := url.Parse(m.Events.Origin)
	if err != nil || u.Host == "" {
		return ""
	}
	return m.Events.Origin
}
