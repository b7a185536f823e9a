// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package redis provides a Redis-backed artifact scope for hosts where several
// terminals share one session, e.g. a till and its back-office machine.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"tillbook/cli/internal/keychain"
)

// DefaultNamespace prefixes every Redis key written by a Store.
const DefaultNamespace = "tillbook:artifacts:"

// Store implements keychain.Scope over Redis.
// Values have no TTL; the session controller purges them on logout.
type Store struct {
	client    redis.UniversalClient
	namespace string
	timeout   time.Duration
}

var _ keychain.Scope = (*Store)(nil)

// NewStore creates a store using DefaultNamespace.
func NewStore(client redis.UniversalClient) *Store {
	return NewStoreWithNamespace(client, DefaultNamespace)
}

// NewStoreWithNamespace creates a store with a custom key namespace.
func NewStoreWithNamespace(client redis.UniversalClient, namespace string) *Store {
	return &Store{client: client, namespace: namespace, timeout: 3 * time.Second}
}

// Open parses a redis:// URL, pings the server and returns a store on it.
func Open(ctx context.Context, url string) (*Store, func() error, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewStore(client), client.Close, nil
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

// Get returns the value under key, or keychain.ErrNotFound.
func (s *Store) Get(key string) (string, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	v, err := s.client.Get(ctx, s.namespace+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", keychain.ErrNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

// Set stores value under key without expiry.
func (s *Store) Set(key, value string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.Set(ctx, s.namespace+key, value, 0).Err()
}

// Remove deletes key. A missing key is not an error.
func (s *Store) Remove(key string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.Del(ctx, s.namespace+key).Err()
}

// Keys lists the keys in the namespace with the namespace stripped.
func (s *Store) Keys() ([]string, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	var keys []string
	iter := s.client.Scan(ctx, 0, s.namespace+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val()[len(s.namespace):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}
