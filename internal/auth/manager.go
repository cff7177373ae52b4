// Copyright (c) 2026 K Glowing
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Manager owns the token lifecycle: it caches the current record in memory,
// refreshes it through the identity provider on every access, and writes it
// back to the store only when the access token actually changed.
//
// The mutex serialises refreshes: concurrent callers wait for the in-flight
// refresh and then reuse its result from the cache.
type Manager struct {
	store    Store
	provider Provider

	mu    sync.Mutex
	cache *TokenRecord
}

// NewManager creates a token manager with explicit collaborators.
func NewManager(store Store, provider Provider) *Manager {
	return &Manager{store: store, provider: provider}
}

// AuthorizeURL returns the identity provider's login URL.
func (m *Manager) AuthorizeURL(state string) string {
	return m.provider.AuthorizeURL(state)
}

// ExchangeCode performs the one-time authorization-code exchange and persists
// the resulting token set.
func (m *Manager) ExchangeCode(ctx context.Context, code string) (*TokenRecord, error) {
	rec, err := m.provider.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = rec
	if err := m.store.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist tokens after code exchange: %w", err)
	}
	slog.Info("authenticated, tokens stored")
	return rec, nil
}

// GetAccessToken returns a fresh access token. It loads the cached record
// (memory first, then the store), performs a refresh-token grant
// unconditionally, and persists the result only if the access token value
// changed. Returns ErrNotAuthenticated when no usable record exists.
func (m *Manager) GetAccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, err := m.loadLocked(ctx)
	if err != nil {
		return "", err
	}
	if prev == nil || prev.RefreshToken == "" {
		return "", ErrNotAuthenticated
	}

	rec, err := m.provider.Refresh(ctx, prev.RefreshToken)
	if err != nil {
		return "", err
	}

	m.cache = rec
	if rec.AccessToken != prev.AccessToken {
		if err := m.store.Save(ctx, rec); err != nil {
			return "", fmt.Errorf("persist refreshed tokens: %w", err)
		}
		slog.Debug("tokens rotated and stored")
	}

	return rec.AccessToken, nil
}

// Authenticated reports whether a token record with a refresh token exists.
func (m *Manager) Authenticated(ctx context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.loadLocked(ctx)
	return err == nil && rec != nil && rec.RefreshToken != ""
}

// loadLocked returns the cached record, falling back to the store.
// Callers must hold m.mu.
func (m *Manager) loadLocked(ctx context.Context) (*TokenRecord, error) {
	if m.cache != nil {
		return m.cache, nil
	}
	rec, err := m.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	m.cache = rec
	return rec, nil
}
