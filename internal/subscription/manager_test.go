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

package subscription

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kglowing/replybot/internal/graph"
)

// fakeAPI is an in-memory stand-in for the provider's subscription store.
type fakeAPI struct {
	subs     []graph.Subscription
	creates  int
	renews   int
	deletes  int
	renewErr error
}

func (f *fakeAPI) ListSubscriptions(ctx context.Context) ([]graph.Subscription, error) {
	out := make([]graph.Subscription, len(f.subs))
	copy(out, f.subs)
	return out, nil
}

func (f *fakeAPI) CreateSubscription(ctx context.Context, notificationURL, resource string, expiresAt time.Time, clientState string) (*graph.Subscription, error) {
	f.creates++
	sub := graph.Subscription{
		ID:                 fmt.Sprintf("sub-%d", f.creates),
		ChangeType:         "created",
		Resource:           resource,
		NotificationURL:    notificationURL,
		ExpirationDateTime: expiresAt.UTC().Format(time.RFC3339),
		ClientState:        clientState,
	}
	f.subs = append(f.subs, sub)
	return &sub, nil
}

func (f *fakeAPI) RenewSubscription(ctx context.Context, subscriptionID string, expiresAt time.Time) (*graph.Subscription, error) {
	f.renews++
	if f.renewErr != nil {
		return nil, f.renewErr
	}
	for i := range f.subs {
		if f.subs[i].ID == subscriptionID {
			f.subs[i].ExpirationDateTime = expiresAt.UTC().Format(time.RFC3339)
			sub := f.subs[i]
			return &sub, nil
		}
	}
	return nil, &graph.APIError{Status: 404, Body: "not found"}
}

func (f *fakeAPI) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	f.deletes++
	for i := range f.subs {
		if f.subs[i].ID == subscriptionID {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			return nil
		}
	}
	return &graph.APIError{Status: 404, Body: "not found"}
}

const testURL = "https://example.com/webhook"

func TestEnsureActive_CreatesWhenNoneExists(t *testing.T) {
	api := &fakeAPI{}
	m := NewManager(api, testURL, "secret", 48*time.Hour)

	sub, created, err := m.EnsureActive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("created = false, want true")
	}
	if sub.NotificationURL != testURL {
		t.Errorf("notificationUrl = %q, want %q", sub.NotificationURL, testURL)
	}
	if sub.ClientState != "secret" {
		t.Errorf("clientState = %q, want %q", sub.ClientState, "secret")
	}
}

func TestEnsureActive_IsIdempotent(t *testing.T) {
	api := &fakeAPI{}
	m := NewManager(api, testURL, "secret", 48*time.Hour)

	if _, _, err := m.EnsureActive(context.Background()); err != nil {
		t.Fatalf("first call: %v", err)
	}
	sub, created, err := m.EnsureActive(context.Background())
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if created {
		t.Error("second call created a subscription, want renewal")
	}
	if len(api.subs) != 1 {
		t.Errorf("subscriptions after two calls = %d, want 1", len(api.subs))
	}
	if api.creates != 1 || api.renews != 1 {
		t.Errorf("creates = %d renews = %d, want 1 and 1", api.creates, api.renews)
	}
	if sub.ID != "sub-1" {
		t.Errorf("renewed id = %q, want sub-1", sub.ID)
	}
}

func TestEnsureActive_IgnoresOtherURLs(t *testing.T) {
	api := &fakeAPI{subs: []graph.Subscription{
		{ID: "other", NotificationURL: "https://elsewhere.example/hook"},
	}}
	m := NewManager(api, testURL, "secret", 48*time.Hour)

	_, created, err := m.EnsureActive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("created = false, want true for unmatched URL")
	}
	if api.renews != 0 {
		t.Errorf("renews = %d, want 0", api.renews)
	}
}

func TestEnsureActive_RecreatesOnRenew404(t *testing.T) {
	api := &fakeAPI{
		subs:     []graph.Subscription{{ID: "gone", NotificationURL: testURL}},
		renewErr: &graph.APIError{Status: 404, Body: "not found"},
	}
	m := NewManager(api, testURL, "secret", 48*time.Hour)

	_, created, err := m.EnsureActive(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("created = false, want re-create after renew 404")
	}
	if api.creates != 1 {
		t.Errorf("creates = %d, want 1", api.creates)
	}
}

func TestEnsureActive_RequiresNotificationURL(t *testing.T) {
	api := &fakeAPI{}
	m := NewManager(api, "", "secret", 48*time.Hour)

	_, _, err := m.EnsureActive(context.Background())
	if !errors.Is(err, ErrNoNotificationURL) {
		t.Fatalf("error = %v, want ErrNoNotificationURL", err)
	}
	if api.creates != 0 || api.renews != 0 {
		t.Errorf("creates = %d renews = %d, want no provider calls without a webhook URL", api.creates, api.renews)
	}
}

func TestEnsureActive_PropagatesRenewFailure(t *testing.T) {
	api := &fakeAPI{
		subs:     []graph.Subscription{{ID: "s1", NotificationURL: testURL}},
		renewErr: &graph.APIError{Status: 500, Body: "server error"},
	}
	m := NewManager(api, testURL, "secret", 48*time.Hour)

	_, _, err := m.EnsureActive(context.Background())
	if err == nil {
		t.Fatal("expected error on renew 500")
	}
	if api.creates != 0 {
		t.Errorf("creates = %d, want 0 on non-404 renew failure", api.creates)
	}
}

func TestPurge_DeletesEverything(t *testing.T) {
	api := &fakeAPI{subs: []graph.Subscription{
		{ID: "s1", NotificationURL: testURL},
		{ID: "s2", NotificationURL: "https://elsewhere.example/hook"},
	}}
	m := NewManager(api, testURL, "secret", 48*time.Hour)

	deleted, err := m.Purge(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if len(api.subs) != 0 {
		t.Errorf("remaining subscriptions = %d, want 0", len(api.subs))
	}
}
