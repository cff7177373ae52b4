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

// Cleanup utility: deletes every Graph subscription registered for the app.
// Run it before decommissioning an environment so stale subscriptions stop
// pushing to a dead webhook URL.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kglowing/replybot/internal/auth"
	"github.com/kglowing/replybot/internal/config"
	"github.com/kglowing/replybot/internal/graph"
	"github.com/kglowing/replybot/internal/subscription"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var store auth.Store
	if cfg.DatabaseURL != "" {
		pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		pgStore, err := auth.NewPostgresStore(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise token store", "error", err)
			os.Exit(1)
		}
		store = pgStore
	} else {
		store = auth.NewFileStore(cfg.TokenFile)
	}

	provider := auth.NewOAuthProvider(cfg.ClientID, cfg.ClientSecret, cfg.Authority, cfg.RedirectURI, config.Scopes)
	tokens := auth.NewManager(store, provider)
	mail := graph.NewClient(nil, graph.DefaultBaseURL, tokens)
	mgr := subscription.NewManager(mail, "", cfg.ClientState, cfg.RenewalHorizon)

	slog.Info("fetching subscriptions")
	deleted, err := mgr.Purge(ctx)
	if err != nil {
		slog.Error("cleanup failed", "error", err)
		os.Exit(1)
	}

	slog.Info("cleanup complete", "deleted", deleted)
}
