// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package manifest

import (
	"context"
	"net/http"
	"strings"
)

// Resolve returns the manifest published at baseURL+path, using the process cache if available.
// When the manifest cannot be fetched it returns Default() together with the fetch error,
// so callers can log the error and carry on with the built-in paths.
func Resolve(ctx context.Context, hc *http.Client, baseURL, path string) (*Manifest, error) {
	url := strings.TrimRight(baseURL, "/") + path
	if cached := GetCached(url); cached != nil {
		return cached, nil
	}

	m, err := fetchFromServer(ctx, hc, url)
	if err != nil {
		return Default(), err
	}
	SetCached(url, m)
	return m, nil
}
