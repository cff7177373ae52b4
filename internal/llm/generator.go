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

// Package llm generates reply drafts with a hosted language model through an
// OpenAI-compatible chat-completion endpoint.
package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// GenerationError reports a failure from the language-model provider.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("reply generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// replyPrompt is filled with sender, subject, body, and thread history.
const replyPrompt = `You are an AI assistant helping to draft professional email replies for K Glowing company.

Email Details:
- From: %s
- Subject: %s

Current Message Body:
%s

Previous Conversation History (Context):
%s

Please generate a professional, courteous, and helpful reply to this email.
The reply should:
1. Address the sender's concerns or questions
2. Be concise and clear
3. Maintain a professional tone appropriate for K Glowing
4. Include appropriate greetings and closing

Generate ONLY the email body content (no subject line). Format the response in HTML for better presentation.`

// Config holds generator settings.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string // empty means the OpenAI default
	MaxTokens   int
	Temperature float32
}

// Generator produces reply bodies via chat completions.
type Generator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewGenerator creates a generator. BaseURL allows pointing at any
// OpenAI-compatible endpoint, including Gemini's.
func NewGenerator(cfg Config) *Generator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1000
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.7
	}

	return &Generator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// GenerateReply drafts an HTML reply body for the given message.
// threadContext may be empty when the message has no prior conversation.
func (g *Generator) GenerateReply(ctx context.Context, subject, body, sender, threadContext string) (string, error) {
	if threadContext == "" {
		threadContext = "(no previous messages)"
	}
	prompt := fmt.Sprintf(replyPrompt, sender, subject, body, threadContext)

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	})
	if err != nil {
		return "", &GenerationError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &GenerationError{Err: fmt.Errorf("model returned no choices")}
	}

	return resp.Choices[0].Message.Content, nil
}
