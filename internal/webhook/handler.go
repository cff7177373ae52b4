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

// Package webhook is the HTTP entry point for Graph change notifications.
// It implements the validation handshake, verifies each notification's
// clientState against the configured shared secret, and dispatches matching
// items to the reply pipeline. Batches are always acknowledged with 202 —
// Graph retries aggressively on anything else, so per-item failures are
// absorbed and logged, never propagated.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kglowing/replybot/internal/auth"
	"github.com/kglowing/replybot/internal/graph"
	"github.com/kglowing/replybot/internal/reply"
)

// NotificationEvent is a single Graph change notification.
type NotificationEvent struct {
	SubscriptionID string `json:"subscriptionId"`
	ClientState    string `json:"clientState"`
	ResourceData   struct {
		ID string `json:"id"`
	} `json:"resourceData"`
}

// notificationPayload is the wrapper Graph sends.
type notificationPayload struct {
	Value []NotificationEvent `json:"value"`
}

// Pipeline is the reply orchestration collaborator.
type Pipeline interface {
	Process(ctx context.Context, messageID string) reply.Result
	ProcessLatest(ctx context.Context) reply.Result
}

// Renewer keeps the push subscription alive on the scheduled trigger.
type Renewer interface {
	EnsureActive(ctx context.Context) (*graph.Subscription, bool, error)
}

// Auth exposes the pieces of the token manager the HTTP surface needs.
type Auth interface {
	Authenticated(ctx context.Context) bool
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*auth.TokenRecord, error)
}

// Deduper filters already-seen message IDs. A nil Deduper disables
// filtering.
type Deduper interface {
	IsNew(ctx context.Context, messageID string) (bool, error)
}

// Handler serves the webhook, health, renewal, and operator endpoints.
type Handler struct {
	pipeline    Pipeline
	auth        Auth
	renewer     Renewer
	filter      Deduper
	clientState string
}

// NewHandler creates the HTTP handler. filter may be nil.
func NewHandler(pipeline Pipeline, authSvc Auth, renewer Renewer, filter Deduper, clientState string) *Handler {
	return &Handler{
		pipeline:    pipeline,
		auth:        authSvc,
		renewer:     renewer,
		filter:      filter,
		clientState: clientState,
	}
}

// Register wires all routes onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/webhook", h.ServeWebhook)
	mux.HandleFunc("/health", h.ServeHealth)
	mux.HandleFunc("/renew", h.ServeRenew)
	mux.HandleFunc("/auth/callback", h.ServeAuthCallback)
	mux.HandleFunc("/test/latest", h.ServeTestLatest)
	mux.HandleFunc("/test/process/", h.ServeTestProcess)
	mux.HandleFunc("/", h.ServeHome)
}

// ServeWebhook handles Graph webhook requests.
//
// Validation flow: when the request carries ?validationToken=<t> (any verb),
// respond 200 with the token verbatim as plain text.
//
// Notification flow: a POST whose JSON body holds a "value" array. Items
// with a wrong clientState are silently dropped; the rest are dispatched to
// the pipeline sequentially. The batch is acknowledged with 202 regardless
// of per-item outcomes; only an absent or unparseable body yields 400.
func (h *Handler) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	if token := r.URL.Query().Get("validationToken"); token != "" {
		slog.Info("subscription validation probe received")
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(token))
		return
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Webhook endpoint"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil || len(body) == 0 {
		http.Error(w, "no body", http.StatusBadRequest)
		return
	}

	var payload notificationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		slog.Warn("notification body not valid JSON", "body_len", len(body), "error", err)
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	batchID := uuid.New().String()
	h.processBatch(r.Context(), batchID, payload.Value)

	w.WriteHeader(http.StatusAccepted)
}

// processBatch dispatches notifications strictly sequentially.
func (h *Handler) processBatch(ctx context.Context, batchID string, items []NotificationEvent) {
	for _, n := range items {
		if n.ClientState != h.clientState {
			// Silent drop: don't tip off a forger, don't trigger retries.
			slog.Warn("invalid client state, dropping notification",
				"batch_id", batchID,
				"subscription_id", n.SubscriptionID,
			)
			continue
		}

		messageID := n.ResourceData.ID
		if messageID == "" {
			continue
		}

		if h.filter != nil {
			isNew, err := h.filter.IsNew(ctx, messageID)
			if err != nil {
				slog.Warn("dedup check failed, proceeding", "batch_id", batchID, "error", err)
			} else if !isNew {
				slog.Debug("skipping duplicate notification",
					"batch_id", batchID,
					"message_id", messageID,
				)
				continue
			}
		}

		result := h.pipeline.Process(ctx, messageID)
		if result.Success {
			slog.Info("notification processed",
				"batch_id", batchID,
				"message_id", messageID,
				"draft_id", result.DraftID,
			)
		} else {
			slog.Error("notification processing failed",
				"batch_id", batchID,
				"message_id", messageID,
				"error", result.Error,
			)
		}
	}
}

// ServeHealth reports service liveness and authentication state.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":        "healthy",
		"authenticated": h.auth.Authenticated(r.Context()),
	})
}

// ServeRenew is the scheduled-trigger surface. Unlike the webhook, failures
// here surface as 500 — the caller is an operator-controlled scheduler, not
// the push sender.
func (h *Handler) ServeRenew(w http.ResponseWriter, r *http.Request) {
	sub, created, err := h.renewer.EnsureActive(r.Context())
	if err != nil {
		slog.Error("scheduled renewal failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if created {
		fmt.Fprintf(w, "Created: %s", sub.ID)
	} else {
		fmt.Fprintf(w, "Renewed: %s", sub.ID)
	}
}

// ServeHome is a small status page with a login link when unauthenticated.
func (h *Handler) ServeHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if h.auth.Authenticated(r.Context()) {
		fmt.Fprint(w, `<h1>Outlook Email Automation</h1>
<p>Authenticated and ready. The webhook is listening for incoming emails.</p>
<p><a href="/test/latest">Process latest email</a></p>`)
		return
	}

	loginURL := h.auth.AuthorizeURL(uuid.New().String())
	fmt.Fprintf(w, `<h1>Outlook Email Automation</h1>
<p>Please authenticate to start:</p>
<a href="%s">Login with Microsoft</a>`, loginURL)
}

// ServeAuthCallback completes the OAuth login.
func (h *Handler) ServeAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "no authorization code received", http.StatusBadRequest)
		return
	}

	if _, err := h.auth.ExchangeCode(r.Context(), code); err != nil {
		slog.Error("code exchange failed", "error", err)
		http.Error(w, fmt.Sprintf("authentication error: %v", err), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// ServeTestLatest processes the newest inbox message. Operator-facing.
func (h *Handler) ServeTestLatest(w http.ResponseWriter, r *http.Request) {
	result := h.pipeline.ProcessLatest(r.Context())
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// ServeTestProcess processes a specific message by ID. Operator-facing.
func (h *Handler) ServeTestProcess(w http.ResponseWriter, r *http.Request) {
	messageID := strings.TrimPrefix(r.URL.Path, "/test/process/")
	if messageID == "" {
		http.Error(w, "message id required", http.StatusBadRequest)
		return
	}

	result := h.pipeline.Process(r.Context(), messageID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
