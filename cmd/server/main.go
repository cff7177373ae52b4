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

// Outlook reply-drafting service.
//
// Entry point wiring, in order:
//  1. Load configuration (.env, optional config.yaml, environment)
//  2. Select the token store (Postgres when DATABASE_URL is set, else a file)
//  3. Build the token manager, Graph client, generator, and pipeline
//  4. Start the HTTP server (webhook + operator endpoints)
//  5. Start the subscription renewal loop once the endpoint is live
//  6. Shut down gracefully on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kglowing/replybot/internal/auth"
	"github.com/kglowing/replybot/internal/config"
	"github.com/kglowing/replybot/internal/dedup"
	"github.com/kglowing/replybot/internal/graph"
	"github.com/kglowing/replybot/internal/llm"
	"github.com/kglowing/replybot/internal/reply"
	"github.com/kglowing/replybot/internal/subscription"
	"github.com/kglowing/replybot/internal/webhook"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("starting reply service")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Token store ---
	var store auth.Store
	if cfg.DatabaseURL != "" {
		pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		if err := pgPool.Ping(ctx); err != nil {
			slog.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}

		pgStore, err := auth.NewPostgresStore(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise token store", "error", err)
			os.Exit(1)
		}
		store = pgStore
		slog.Info("using Postgres token store")
	} else {
		store = auth.NewFileStore(cfg.TokenFile)
		slog.Info("using file token store", "path", cfg.TokenFile)
	}

	// --- Auth + Graph + pipeline ---
	provider := auth.NewOAuthProvider(cfg.ClientID, cfg.ClientSecret, cfg.Authority, cfg.RedirectURI, config.Scopes)
	tokens := auth.NewManager(store, provider)
	mail := graph.NewClient(nil, graph.DefaultBaseURL, tokens)

	generator := llm.NewGenerator(llm.Config{
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		BaseURL: cfg.LLMBaseURL,
	})
	pipeline := reply.NewPipeline(mail, generator)

	// --- Optional notification dedup ---
	var filter webhook.Deduper
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()
		filter = dedup.NewFilter(rdb)
		slog.Info("notification dedup enabled")
	}

	// --- Subscription manager ---
	notificationURL := ""
	if cfg.WebhookURL != "" {
		notificationURL = cfg.WebhookURL + "/webhook"
	} else {
		slog.Warn("WEBHOOK_URL not set, subscription renewal disabled")
	}
	subMgr := subscription.NewManager(mail, notificationURL, cfg.ClientState, cfg.RenewalHorizon)

	// --- HTTP server first: Graph validates the endpoint as soon as a
	// subscription is created. ---
	handler := webhook.NewHandler(pipeline, tokens, subMgr, filter, cfg.ClientState)
	ready, done, err := webhook.Serve(ctx, cfg.Port, handler)
	if err != nil {
		slog.Error("failed to start http server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Renewal loop, only with a reachable endpoint and stored tokens ---
	if notificationURL != "" && tokens.Authenticated(ctx) {
		go subMgr.Run(ctx, cfg.RenewInterval)
	}

	slog.Info("reply service ready",
		"port", cfg.Port,
		"webhook_url", cfg.WebhookURL,
		"user", cfg.UserEmail,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	slog.Info("received shutdown signal", "signal", sig.String())

	cancel()
	<-done
	slog.Info("reply service stopped")
}
