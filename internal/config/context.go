// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package config

import "context"

type contextKey struct{}

// InjectConfig returns a child context carrying cfg.
func InjectConfig(ctx context.Context, cfg Config) context.Context {
	return context.WithValue(ctx, contextKey{}, cfg)
}

// FromContext returns the Config stored by InjectConfig.
func FromContext(ctx context.Context) (Config, bool) {
	cfg, ok := ctx.Value(contextKey{}).(Config)
	return cfg, ok
}

// MustFromContext is FromContext that panics when no config was injected.
func MustFromContext(ctx context.Context) Config {
	cfg, ok := FromContext(ctx)
	if !ok {
		panic("config: no Config in context")
	}
	return cfg
}
