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
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// tokenID keys the single row holding the mailbox's token record.
const tokenID = "default"

// PostgresStore keeps the token record as one row in a keyed table. Used in
// hosted deployments where the local filesystem is ephemeral.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed token store and ensures the
// tokens table exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure token schema: %w", err)
	}
	slog.Info("token store initialised")
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tokens (
			token_id      TEXT PRIMARY KEY,
			access_token  TEXT NOT NULL,
			refresh_token TEXT DEFAULT '',
			expires_in    BIGINT DEFAULT 0,
			id_token      TEXT DEFAULT '',
			scope         TEXT DEFAULT '',
			updated_at    TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

// Load retrieves the token record, or (nil, nil) if none has been stored.
func (s *PostgresStore) Load(ctx context.Context) (*TokenRecord, error) {
	var rec TokenRecord
	err := s.pool.QueryRow(ctx, `
		SELECT access_token, refresh_token, expires_in, id_token, scope
		FROM tokens
		WHERE token_id = $1
	`, tokenID).Scan(&rec.AccessToken, &rec.RefreshToken, &rec.ExpiresIn, &rec.IDToken, &rec.Scope)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	return &rec, nil
}

// Save upserts the token record wholesale.
func (s *PostgresStore) Save(ctx context.Context, rec *TokenRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tokens (token_id, access_token, refresh_token, expires_in, id_token, scope)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (token_id) DO UPDATE SET
			access_token  = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_in    = EXCLUDED.expires_in,
			id_token      = EXCLUDED.id_token,
			scope         = EXCLUDED.scope,
			updated_at    = NOW()
	`, tokenID, rec.AccessToken, rec.RefreshToken, rec.ExpiresIn, rec.IDToken, rec.Scope)
	if err != nil {
		return fmt.Errorf("save tokens: %w", err)
	}
	return nil
}
