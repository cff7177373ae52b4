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
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"
)

// OAuthProvider implements Provider against the Microsoft identity platform
// using the standard authorization-code and refresh-token grants.
type OAuthProvider struct {
	cfg oauth2.Config
}

// NewOAuthProvider builds a provider for the given app registration.
// Authority is the tenant endpoint, e.g.
// "https://login.microsoftonline.com/common".
func NewOAuthProvider(clientID, clientSecret, authority, redirectURI string, scopes []string) *OAuthProvider {
	return &OAuthProvider{
		cfg: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  fmt.Sprintf("%s/oauth2/v2.0/authorize", authority),
				TokenURL: fmt.Sprintf("%s/oauth2/v2.0/token", authority),
			},
		},
	}
}

// AuthorizeURL builds the login URL for the user to visit.
func (p *OAuthProvider) AuthorizeURL(state string) string {
	return p.cfg.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for the initial token set.
func (p *OAuthProvider) ExchangeCode(ctx context.Context, code string) (*TokenRecord, error) {
	tok, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, &ExchangeError{Description: providerErrorDescription(err), Err: err}
	}
	return recordFromToken(tok), nil
}

// Refresh performs a refresh-token grant. Validity of the old access token is
// not checked locally; the identity provider decides whether a new token is
// issued or the cached one returned.
func (p *OAuthProvider) Refresh(ctx context.Context, refreshToken string) (*TokenRecord, error) {
	src := p.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, &RefreshError{Description: providerErrorDescription(err), Err: err}
	}
	rec := recordFromToken(tok)
	if rec.RefreshToken == "" {
		// Microsoft rotates refresh tokens but may omit one; keep the old.
		rec.RefreshToken = refreshToken
	}
	return rec, nil
}

// recordFromToken converts an oauth2 token into the persisted record layout.
func recordFromToken(tok *oauth2.Token) *TokenRecord {
	rec := &TokenRecord{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if !tok.Expiry.IsZero() {
		rec.ExpiresIn = int64(time.Until(tok.Expiry).Seconds())
	}
	if id, ok := tok.Extra("id_token").(string); ok {
		rec.IDToken = id
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		rec.Scope = scope
	}
	return rec
}

// providerErrorDescription pulls the human-readable description out of an
// OAuth token endpoint error response, if there is one.
func providerErrorDescription(err error) string {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		if rerr.ErrorDescription != "" {
			return rerr.ErrorDescription
		}
		if len(rerr.Body) > 0 {
			return string(rerr.Body)
		}
	}
	return ""
}
