// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package auth

import (
	"encoding/json"
	"errors"
	"fmt"

	"tillbook/cli/internal/keychain"
)

// SaveSnapshot stores s in the artifact scope so offline commands can show the last
// known account. Logged-out and loading states remove the snapshot instead.
func SaveSnapshot(scope ArtifactScope, s AuthState) error {
	if s.IsLoading || !s.IsAuthenticated {
		return scope.Remove(keychain.KeyAuthState)
	}
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode auth snapshot: %w", err)
	}
	return scope.Set(keychain.KeyAuthState, string(b))
}

// LoadSnapshot reads the last saved snapshot. ok is false when there is none.
func LoadSnapshot(scope ArtifactScope) (s AuthState, ok bool, err error) {
	raw, err := scope.Get(keychain.KeyAuthState)
	if errors.Is(err, keychain.ErrNotFound) {
		return LoggedOut(), false, nil
	}
	if err != nil {
		return LoggedOut(), false, err
	}
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return LoggedOut(), false, fmt.Errorf("decode auth snapshot: %w", err)
	}
	if !s.IsAuthenticated {
		return LoggedOut(), false, nil
	}
	return s, true, nil
}
