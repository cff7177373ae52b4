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

// Package auth handles the Microsoft identity flow: exchanging an
// authorization code for tokens, silently refreshing them on every use, and
// persisting the token record in a pluggable store.
package auth

import (
	"context"
	"errors"
	"fmt"
)

// TokenRecord is the persisted token set for the single configured mailbox.
// A record is usable for silent refresh only while RefreshToken is present;
// once it is gone the user has to log in again.
type TokenRecord struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Store persists a single token record.
//
// Load returns (nil, nil) when no record exists. Save replaces the record
// wholesale; a Save failure must be surfaced, not swallowed.
type Store interface {
	Load(ctx context.Context) (*TokenRecord, error)
	Save(ctx context.Context, rec *TokenRecord) error
}

// Provider is the identity-provider collaborator.
type Provider interface {
	// AuthorizeURL builds the login URL the user is redirected to.
	AuthorizeURL(state string) string
	// ExchangeCode trades an authorization code for an initial token set.
	ExchangeCode(ctx context.Context, code string) (*TokenRecord, error)
	// Refresh performs a refresh-token grant and returns the new token set.
	Refresh(ctx context.Context, refreshToken string) (*TokenRecord, error)
}

// ErrNotAuthenticated is returned when no stored token record exists (or the
// record has no refresh token) and a silent refresh is therefore impossible.
var ErrNotAuthenticated = errors.New("not authenticated: no stored tokens, log in first")

// ExchangeError reports a failed authorization-code exchange, carrying the
// identity provider's error description.
type ExchangeError struct {
	Description string
	Err         error
}

func (e *ExchangeError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("authentication error: %s", e.Description)
	}
	return fmt.Sprintf("authentication error: %v", e.Err)
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// RefreshError reports a failed refresh-token grant.
type RefreshError struct {
	Description string
	Err         error
}

func (e *RefreshError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("token refresh error: %s", e.Description)
	}
	return fmt.Sprintf("token refresh error: %v", e.Err)
}

func (e *RefreshError) Unwrap() error { return e.Err }
