// Copyright (c) 2025 Tillbook
// Licensed under the MIT License. See LICENSE file in the project root for details.

package identity

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// Origin tells the hub where an event came from.
type Origin int

const (
	// Local events are produced by this process (login, refresh, sign-out) and always delivered.
	Local Origin = iota
	// Remote events are pushed by the server and dropped when an identical event was seen recently.
	Remote
)

// Hub fans session events out to subscribers.
type Hub struct {
	mu        sync.RWMutex
	listeners map[string]Listener
	seen      *cache.Cache
}

// NewHub creates a hub that remembers delivered events for window.
func NewHub(window time.Duration) *Hub {
	if window <= 0 {
		window = 5 * time.Second
	}
	return &Hub{
		listeners: make(map[string]Listener),
		seen:      cache.New(window, 2*window),
	}
}

// Subscribe registers fn and returns its unsubscribe handle. Calling the handle twice is safe.
func (h *Hub) Subscribe(fn Listener) func() {
	id := uuid.NewString()
	h.mu.Lock()
	h.listeners[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.listeners, id)
			h.mu.Unlock()
		})
	}
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Publish delivers the event to every subscriber, synchronously and outside the lock.
// It returns false when a remote event was suppressed as a duplicate.
func (h *Hub) Publish(origin Origin, kind EventKind, sess *Session) bool {
	key := eventKey(kind, sess)
	if origin == Remote {
		if err := h.seen.Add(key, struct{}{}, cache.DefaultExpiration); err != nil {
			return false
		}
	} else {
		h.seen.SetDefault(key, struct{}{})
	}
	if kind == SignedIn {
		// A sign-out seen before this sign-in must not mask one that revokes the new session.
		h.seen.Delete(eventKey(SignedOut, nil))
	}

	h.mu.RLock()
	targets := make([]Listener, 0, len(h.listeners))
	for _, fn := range h.listeners {
		targets = append(targets, fn)
	}
	h.mu.RUnlock()

	for _, fn := range targets {
		fn(kind, sess)
	}
	return true
}

func eventKey(kind EventKind, sess *Session) string {
	if sess == nil {
		return string(kind)
	}
	return string(kind) + ":" + sess.AccessToken
}
