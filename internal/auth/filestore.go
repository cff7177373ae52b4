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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// FileStore keeps the token record in a flat JSON file. Suitable for local
// development and single-host deployments.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed token store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads the token record. A missing file means no record; an unreadable
// or corrupt file is logged and treated the same, forcing re-authentication.
func (s *FileStore) Load(ctx context.Context) (*TokenRecord, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		slog.Warn("failed to read token file", "path", s.path, "error", err)
		return nil, nil
	}

	var rec TokenRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		slog.Warn("token file is not valid JSON, ignoring", "path", s.path, "error", err)
		return nil, nil
	}
	return &rec, nil
}

// Save writes the token record, replacing any previous one.
func (s *FileStore) Save(ctx context.Context, rec *TokenRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal tokens: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write token file %s: %w", s.path, err)
	}
	return nil
}
