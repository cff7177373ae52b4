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

// Package subscription keeps the inbox change-notification subscription
// alive: it creates one when none exists and renews the existing one
// otherwise, so repeated invocations never accumulate duplicates.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kglowing/replybot/internal/graph"
)

// InboxResource is the watched mailbox resource.
const InboxResource = "/me/mailFolders/inbox/messages"

// ErrNoNotificationURL is returned by EnsureActive when no webhook URL is
// configured; without one there is nothing valid to register with Graph.
var ErrNoNotificationURL = errors.New("subscription renewal disabled: notification URL not configured")

// API is the slice of the mail client the manager needs.
type API interface {
	ListSubscriptions(ctx context.Context) ([]graph.Subscription, error)
	CreateSubscription(ctx context.Context, notificationURL, resource string, expiresAt time.Time, clientState string) (*graph.Subscription, error)
	RenewSubscription(ctx context.Context, subscriptionID string, expiresAt time.Time) (*graph.Subscription, error)
	DeleteSubscription(ctx context.Context, subscriptionID string) error
}

// Manager handles the lifecycle of the single inbox subscription.
type Manager struct {
	api             API
	notificationURL string
	clientState     string
	horizon         time.Duration
}

// NewManager creates a subscription manager. notificationURL must be the
// externally reachable webhook endpoint; horizon is how far ahead each
// create/renew pushes the expiration (bounded by Graph's ~3 day maximum for
// mailbox resources).
func NewManager(api API, notificationURL, clientState string, horizon time.Duration) *Manager {
	return &Manager{
		api:             api,
		notificationURL: notificationURL,
		clientState:     clientState,
		horizon:         horizon,
	}
}

// EnsureActive lists the provider-side subscriptions and renews the first one
// whose notificationUrl matches exactly, or creates a new one when none
// matches. The returned bool is true when a subscription was created rather
// than renewed.
func (m *Manager) EnsureActive(ctx context.Context) (*graph.Subscription, bool, error) {
	if m.notificationURL == "" {
		return nil, false, ErrNoNotificationURL
	}

	expiresAt := time.Now().UTC().Add(m.horizon)

	subs, err := m.api.ListSubscriptions(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("list subscriptions: %w", err)
	}

	for _, sub := range subs {
		if sub.NotificationURL != m.notificationURL {
			continue
		}

		renewed, err := m.api.RenewSubscription(ctx, sub.ID, expiresAt)
		if err != nil {
			var apiErr *graph.APIError
			if errors.As(err, &apiErr) && apiErr.Status == 404 {
				// Removed on the provider side between list and renew.
				slog.Warn("subscription gone, re-creating", "subscription_id", sub.ID)
				break
			}
			return nil, false, fmt.Errorf("renew subscription %s: %w", sub.ID, err)
		}

		slog.Info("subscription renewed",
			"subscription_id", renewed.ID,
			"expires_at", renewed.ExpirationDateTime,
		)
		return renewed, false, nil
	}

	created, err := m.api.CreateSubscription(ctx, m.notificationURL, InboxResource, expiresAt, m.clientState)
	if err != nil {
		return nil, false, fmt.Errorf("create subscription: %w", err)
	}

	slog.Info("subscription created",
		"subscription_id", created.ID,
		"expires_at", created.ExpirationDateTime,
	)
	return created, true, nil
}

// Delete removes a subscription on the provider side. Best-effort: a 404
// means it is already gone.
func (m *Manager) Delete(ctx context.Context, subscriptionID string) error {
	err := m.api.DeleteSubscription(ctx, subscriptionID)
	if err != nil {
		var apiErr *graph.APIError
		if errors.As(err, &apiErr) && apiErr.Status == 404 {
			return nil
		}
		return fmt.Errorf("delete subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// Purge deletes every subscription registered for this app. Used by operator
// cleanup; failures are logged and counted, not fatal.
func (m *Manager) Purge(ctx context.Context) (int, error) {
	subs, err := m.api.ListSubscriptions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list subscriptions: %w", err)
	}

	deleted := 0
	for _, sub := range subs {
		if err := m.Delete(ctx, sub.ID); err != nil {
			slog.Error("failed to delete subscription",
				"subscription_id", sub.ID,
				"url", sub.NotificationURL,
				"error", err,
			)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// Run renews the subscription on a ticker until the context is cancelled.
// An immediate EnsureActive runs on start so a fresh deployment subscribes
// without waiting a full interval.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if interval < time.Minute {
		interval = time.Minute
	}

	if _, _, err := m.EnsureActive(ctx); err != nil {
		slog.Error("initial subscription setup failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := m.EnsureActive(ctx); err != nil {
				slog.Error("subscription renewal failed", "error", err)
			}
		}
	}
}
