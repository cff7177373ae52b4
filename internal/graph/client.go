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

// Package graph is a thin Microsoft Graph client for the mail operations the
// reply service needs: fetching messages and conversation threads, creating
// reply drafts, and managing change-notification subscriptions.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the production Graph endpoint.
const DefaultBaseURL = "https://graph.microsoft.com/v1.0"

// requestTimeout bounds every outbound Graph call.
const requestTimeout = 10 * time.Second

// TokenSource supplies bearer tokens for Graph requests. Satisfied by
// *auth.Manager.
type TokenSource interface {
	GetAccessToken(ctx context.Context) (string, error)
}

// APIError is a non-success Graph response with the status code and body
// preserved for the caller.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph API returned HTTP %d: %s", e.Status, e.Body)
}

// Client issues Graph requests on behalf of the signed-in mailbox. It is
// stateless apart from the shared HTTP client; auth comes from the token
// source on every call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
}

// NewClient creates a Graph client. A nil httpClient falls back to a client
// with the default request timeout.
func NewClient(httpClient *http.Client, baseURL string, tokens TokenSource) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{httpClient: httpClient, baseURL: baseURL, tokens: tokens}
}

// GetMessage retrieves a single message by ID.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	var msg Message
	path := fmt.Sprintf("/me/messages/%s?$select=id,conversationId,subject,from,body,receivedDateTime",
		url.PathEscape(messageID))
	if err := c.get(ctx, path, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetLatestMessage returns the newest inbox message, or nil if the inbox is
// empty.
func (c *Client) GetLatestMessage(ctx context.Context) (*Message, error) {
	var resp struct {
		Value []Message `json:"value"`
	}
	path := "/me/mailFolders/inbox/messages?" + url.Values{
		"$top":     {"1"},
		"$orderby": {"receivedDateTime desc"},
	}.Encode()
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	if len(resp.Value) == 0 {
		return nil, nil
	}
	return &resp.Value[0], nil
}

// GetConversationThread returns all messages of a conversation in
// chronological order.
func (c *Client) GetConversationThread(ctx context.Context, conversationID string) ([]Message, error) {
	var resp struct {
		Value []Message `json:"value"`
	}
	// OData string literals escape single quotes by doubling them.
	quoted := strings.ReplaceAll(conversationID, "'", "''")
	path := "/me/messages?" + url.Values{
		"$filter":  {fmt.Sprintf("conversationId eq '%s'", quoted)},
		"$orderby": {"receivedDateTime asc"},
		"$select":  {"id,conversationId,subject,from,body,receivedDateTime"},
	}.Encode()
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// CreateReplyDraft creates a reply draft for a message and fills in its body.
// Two calls: createReply builds the empty shell addressed to the original
// sender, then a PATCH sets the generated HTML content. Never retried — a
// duplicate would create a second draft.
func (c *Client) CreateReplyDraft(ctx context.Context, messageID, htmlContent string) (*Message, error) {
	var shell Message
	path := fmt.Sprintf("/me/messages/%s/createReply", url.PathEscape(messageID))
	if err := c.do(ctx, http.MethodPost, path, nil, &shell); err != nil {
		return nil, fmt.Errorf("create reply shell: %w", err)
	}

	update := map[string]any{
		"body": Body{ContentType: "HTML", Content: htmlContent},
	}
	var draft Message
	patchPath := fmt.Sprintf("/me/messages/%s", url.PathEscape(shell.ID))
	if err := c.do(ctx, http.MethodPatch, patchPath, update, &draft); err != nil {
		return nil, fmt.Errorf("set draft body: %w", err)
	}
	return &draft, nil
}

// ListSubscriptions returns all active subscriptions for this app.
func (c *Client) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	var resp struct {
		Value []Subscription `json:"value"`
	}
	if err := c.get(ctx, "/subscriptions", &resp); err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// CreateSubscription registers a change-notification subscription for new
// inbox messages.
func (c *Client) CreateSubscription(ctx context.Context, notificationURL, resource string, expiresAt time.Time, clientState string) (*Subscription, error) {
	body := Subscription{
		ChangeType:         "created",
		NotificationURL:    notificationURL,
		Resource:           resource,
		ExpirationDateTime: expiresAt.UTC().Format(time.RFC3339),
		ClientState:        clientState,
	}
	var sub Subscription
	if err := c.do(ctx, http.MethodPost, "/subscriptions", body, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// RenewSubscription extends a subscription's expiration; no other field
// changes.
func (c *Client) RenewSubscription(ctx context.Context, subscriptionID string, expiresAt time.Time) (*Subscription, error) {
	body := map[string]string{
		"expirationDateTime": expiresAt.UTC().Format(time.RFC3339),
	}
	var sub Subscription
	path := fmt.Sprintf("/subscriptions/%s", url.PathEscape(subscriptionID))
	if err := c.do(ctx, http.MethodPatch, path, body, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// DeleteSubscription removes a subscription on the provider side.
func (c *Client) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	path := fmt.Sprintf("/subscriptions/%s", url.PathEscape(subscriptionID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// get issues an idempotent GET with a single retry on transport errors and
// 5xx responses.
func (c *Client) get(ctx context.Context, path string, out any) error {
	err := c.do(ctx, http.MethodGet, path, nil, out)
	if err == nil || !retryable(err) {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(500 * time.Millisecond):
	}
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// retryable reports whether an error is transient: a transport failure from
// the HTTP round trip or a server-side 5xx. Client errors (4xx) and anything
// raised before the request goes out, token acquisition included, are final.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 500
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// do performs one Graph request with a bearer token from the token source.
// The token is fetched per request, not per operation, so multi-request
// operations like CreateReplyDraft cost one grant each; the token manager
// serialises refreshes, keeping concurrent requests to one grant in flight.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	token, err := c.tokens.GetAccessToken(ctx)
	if err != nil {
		return fmt.Errorf("acquire access token: %w", err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Body: string(respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
