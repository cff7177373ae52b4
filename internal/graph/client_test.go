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

package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// staticTokens always hands out the same bearer token.
type staticTokens struct{}

func (staticTokens) GetAccessToken(ctx context.Context) (string, error) {
	return "test-token", nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL, staticTokens{})
}

func TestGetMessage_SendsBearerToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want bearer token", got)
		}
		json.NewEncoder(w).Encode(Message{ID: "M1", Subject: "hello"})
	})

	msg, err := c.GetMessage(context.Background(), "M1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID != "M1" || msg.Subject != "hello" {
		t.Errorf("message = %+v", msg)
	}
}

func TestGetMessage_PreservesStatusAndBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":"ErrorItemNotFound"}}`)
	})

	_, err := c.GetMessage(context.Background(), "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", apiErr.Status)
	}
	if !strings.Contains(apiErr.Body, "ErrorItemNotFound") {
		t.Errorf("body = %q, want provider body preserved", apiErr.Body)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error string = %q, want it to contain the status code", err.Error())
	}
}

func TestGet_RetriesOnceOn5xx(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(Message{ID: "M1"})
	})

	msg, err := c.GetMessage(context.Background(), "M1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.ID != "M1" {
		t.Errorf("message = %+v", msg)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls)
	}
}

// failingTokens counts how often a token is requested before failing.
type failingTokens struct {
	calls int
}

func (f *failingTokens) GetAccessToken(ctx context.Context) (string, error) {
	f.calls++
	return "", errors.New("not authenticated: no stored tokens, log in first")
}

func TestGet_NoRetryOnTokenFailure(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	t.Cleanup(srv.Close)

	tokens := &failingTokens{}
	c := NewClient(srv.Client(), srv.URL, tokens)

	start := time.Now()
	_, err := c.GetMessage(context.Background(), "M1")
	if err == nil {
		t.Fatal("expected error")
	}
	if tokens.calls != 1 {
		t.Errorf("token requests = %d, want 1 (auth failures are final)", tokens.calls)
	}
	if requests != 0 {
		t.Errorf("http requests = %d, want 0", requests)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("took %v, retry backoff should not apply to auth failures", elapsed)
	}
}

func TestGet_NoRetryOn4xx(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := c.GetMessage(context.Background(), "M1")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (client errors are final)", calls)
	}
}

func TestGetLatestMessage(t *testing.T) {
	t.Run("empty inbox", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"value":[]}`)
		})
		msg, err := c.GetLatestMessage(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msg != nil {
			t.Errorf("message = %+v, want nil", msg)
		}
	})

	t.Run("returns newest", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("$top"); got != "1" {
				t.Errorf("$top = %q, want 1", got)
			}
			if got := r.URL.Query().Get("$orderby"); got != "receivedDateTime desc" {
				t.Errorf("$orderby = %q", got)
			}
			fmt.Fprint(w, `{"value":[{"id":"newest"}]}`)
		})
		msg, err := c.GetLatestMessage(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msg.ID != "newest" {
			t.Errorf("id = %q, want newest", msg.ID)
		}
	})
}

func TestGetConversationThread(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		filter := r.URL.Query().Get("$filter")
		if filter != "conversationId eq 'C1'" {
			t.Errorf("$filter = %q", filter)
		}
		fmt.Fprint(w, `{"value":[{"id":"M0"},{"id":"M1"}]}`)
	})

	thread, err := c.GetConversationThread(context.Background(), "C1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(thread) != 2 || thread[0].ID != "M0" {
		t.Errorf("thread = %+v", thread)
	}
}

func TestCreateReplyDraft_TwoCallProtocol(t *testing.T) {
	var calls []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/createReply"):
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id":"draft-1"}`)
		case r.Method == http.MethodPatch && strings.HasSuffix(r.URL.Path, "/draft-1"):
			var update struct {
				Body Body `json:"body"`
			}
			if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
				t.Errorf("decode patch body: %v", err)
			}
			if update.Body.ContentType != "HTML" || update.Body.Content != "<p>Hi</p>" {
				t.Errorf("patch body = %+v", update.Body)
			}
			fmt.Fprint(w, `{"id":"draft-1","body":{"contentType":"HTML","content":"<p>Hi</p>"}}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	draft, err := c.CreateReplyDraft(context.Background(), "M1", "<p>Hi</p>")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if draft.ID != "draft-1" {
		t.Errorf("draft id = %q, want draft-1", draft.ID)
	}
	if len(calls) != 2 || !strings.HasPrefix(calls[0], "POST ") || !strings.HasPrefix(calls[1], "PATCH ") {
		t.Errorf("calls = %v, want createReply POST then PATCH", calls)
	}
}

func TestCreateReplyDraft_ShellFailureSkipsPatch(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.CreateReplyDraft(context.Background(), "M1", "<p>Hi</p>")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (writes are never retried)", calls)
	}
}

func TestSubscriptionCRUD(t *testing.T) {
	expiry := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("create", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost || r.URL.Path != "/subscriptions" {
				t.Errorf("request = %s %s", r.Method, r.URL.Path)
			}
			var sub Subscription
			json.NewDecoder(r.Body).Decode(&sub)
			if sub.ChangeType != "created" || sub.ClientState != "secret" {
				t.Errorf("subscription body = %+v", sub)
			}
			if sub.ExpirationDateTime != "2026-01-02T03:04:05Z" {
				t.Errorf("expiration = %q", sub.ExpirationDateTime)
			}
			sub.ID = "sub-1"
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(sub)
		})

		sub, err := c.CreateSubscription(context.Background(), "https://example.com/webhook", "/me/mailFolders/inbox/messages", expiry, "secret")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sub.ID != "sub-1" {
			t.Errorf("id = %q", sub.ID)
		}
	})

	t.Run("renew", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPatch || r.URL.Path != "/subscriptions/sub-1" {
				t.Errorf("request = %s %s", r.Method, r.URL.Path)
			}
			fmt.Fprint(w, `{"id":"sub-1","expirationDateTime":"2026-01-02T03:04:05Z"}`)
		})

		sub, err := c.RenewSubscription(context.Background(), "sub-1", expiry)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if sub.ExpirationDateTime != "2026-01-02T03:04:05Z" {
			t.Errorf("expiration = %q", sub.ExpirationDateTime)
		}
	})

	t.Run("delete", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodDelete || r.URL.Path != "/subscriptions/sub-1" {
				t.Errorf("request = %s %s", r.Method, r.URL.Path)
			}
			w.WriteHeader(http.StatusNoContent)
		})

		if err := c.DeleteSubscription(context.Background(), "sub-1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}
