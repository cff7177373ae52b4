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

// Package reply orchestrates draft generation for an incoming message:
// fetch the message and its conversation thread, ask the language model for
// a reply, and store it back as an Outlook draft.
package reply

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kglowing/replybot/internal/graph"
)

// MailAPI is the slice of the mail client the pipeline needs.
type MailAPI interface {
	GetMessage(ctx context.Context, messageID string) (*graph.Message, error)
	GetLatestMessage(ctx context.Context) (*graph.Message, error)
	GetConversationThread(ctx context.Context, conversationID string) ([]graph.Message, error)
	CreateReplyDraft(ctx context.Context, messageID, htmlContent string) (*graph.Message, error)
}

// Generator is the language-model collaborator.
type Generator interface {
	GenerateReply(ctx context.Context, subject, body, sender, threadContext string) (string, error)
}

// Result is the structured outcome of one pipeline run. The pipeline is the
// error boundary for the business logic: it always returns a Result, never
// an error, so the webhook gateway can acknowledge regardless of outcome.
type Result struct {
	Success   bool   `json:"success"`
	MessageID string `json:"message_id"`
	DraftID   string `json:"draft_id,omitempty"`
	Subject   string `json:"subject,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Pipeline turns an incoming message into a stored reply draft.
type Pipeline struct {
	mail MailAPI
	gen  Generator
}

// NewPipeline creates a pipeline with explicit collaborators.
func NewPipeline(mail MailAPI, gen Generator) *Pipeline {
	return &Pipeline{mail: mail, gen: gen}
}

// Process drafts a reply for the given message. Steps: fetch, normalize,
// assemble thread context (best-effort), generate, create the draft via the
// two-call protocol. Any failure short-circuits into a failed Result.
func (p *Pipeline) Process(ctx context.Context, messageID string) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline panic", "message_id", messageID, "panic", r)
			res = Result{Success: false, MessageID: messageID, Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	slog.Info("processing email", "message_id", messageID)

	msg, err := p.mail.GetMessage(ctx, messageID)
	if err != nil {
		slog.Error("failed to fetch message", "message_id", messageID, "error", err)
		return Result{Success: false, MessageID: messageID, Error: err.Error()}
	}

	subject := msg.Subject
	if subject == "" {
		subject = "No Subject"
	}
	sender := msg.From.EmailAddress.Address
	if sender == "" {
		sender = "Unknown"
	}

	plainBody := normalizeBody(msg.Body)

	threadContext := ""
	if msg.ConversationID != "" {
		thread, err := p.mail.GetConversationThread(ctx, msg.ConversationID)
		if err != nil {
			// Best-effort: missing history degrades the reply, it doesn't
			// fail the pipeline.
			slog.Warn("failed to fetch conversation thread, continuing without history",
				"conversation_id", msg.ConversationID,
				"error", err,
			)
		} else {
			threadContext = buildThreadContext(thread, msg.ID)
		}
	}

	slog.Info("generating reply", "message_id", messageID, "from", sender, "subject", subject)

	content, err := p.gen.GenerateReply(ctx, subject, plainBody, sender, threadContext)
	if err != nil {
		slog.Error("reply generation failed", "message_id", messageID, "error", err)
		return Result{Success: false, MessageID: messageID, Error: err.Error()}
	}

	draft, err := p.mail.CreateReplyDraft(ctx, messageID, content)
	if err != nil {
		slog.Error("draft creation failed", "message_id", messageID, "error", err)
		return Result{Success: false, MessageID: messageID, Error: err.Error()}
	}

	slog.Info("draft created",
		"message_id", messageID,
		"draft_id", draft.ID,
	)

	return Result{
		Success:   true,
		MessageID: messageID,
		DraftID:   draft.ID,
		Subject:   subject,
		Sender:    sender,
	}
}

// ProcessLatest drafts a reply to the newest inbox message. Operator-facing
// manual trigger.
func (p *Pipeline) ProcessLatest(ctx context.Context) Result {
	msg, err := p.mail.GetLatestMessage(ctx)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	if msg == nil {
		return Result{Success: false, Error: "no emails found in inbox"}
	}
	return p.Process(ctx, msg.ID)
}
