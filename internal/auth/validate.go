// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package auth

import (
	"fmt"
	"strings"

	apperrors "tillbook/cli/internal/errors"
	"tillbook/cli/internal/profile"
)

// Policy selects what happens when a fetched profile fails validation.
type Policy string

const (
	// PolicyStrict forces a logout.
	PolicyStrict Policy = "strict"
	// PolicyLenient keeps the session and publishes it without a profile.
	PolicyLenient Policy = "lenient"
)

// ParsePolicy accepts "strict" or "lenient"; empty means strict.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyStrict:
		return PolicyStrict, nil
	case PolicyLenient:
		return PolicyLenient, nil
	}
	return "", fmt.Errorf("unknown validation policy %q (want strict or lenient)", s)
}

var allowedRoles = map[profile.Role]bool{
	profile.RoleAdmin:      true,
	profile.RoleManager:    true,
	profile.RoleAccountant: true,
}

// validateProfile rejects inactive accounts and roles outside the back-office whitelist.
func validateProfile(p *profile.Profile) error {
	if !p.IsActive {
		return apperrors.New(apperrors.KindValidation, "Account is deactivated")
	}
	if !allowedRoles[p.Role] {
		return apperrors.New(apperrors.KindValidation, fmt.Sprintf("Unauthorized role: %s", p.Role))
	}
	return nil
}
