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

// Package config loads configuration from a .env file, an optional
// config.yaml, and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Scopes is the fixed Microsoft Graph permission set requested on login.
// offline_access is required to receive a refresh token.
var Scopes = []string{"User.Read", "Mail.ReadWrite", "Mail.Send", "offline_access"}

// Config holds all configuration for the reply service.
type Config struct {
	// Azure app registration
	ClientID     string
	ClientSecret string
	TenantID     string
	Authority    string
	RedirectURI  string

	// Webhook
	WebhookURL string
	Port       int

	// Language model
	LLMAPIKey  string
	LLMModel   string
	LLMBaseURL string

	// Token storage. DatabaseURL selects the Postgres store; otherwise
	// tokens are kept in TokenFile.
	TokenFile   string
	DatabaseURL string

	// Optional notification dedup.
	RedisURL string

	// Shared secret echoed back by Graph on every notification.
	ClientState string

	// Subscription renewal
	RenewalHorizon time.Duration
	RenewInterval  time.Duration

	// Informational; shown on the status page.
	UserEmail string
}

// rawConfig mirrors the optional YAML file.
type rawConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	TenantID     string `yaml:"tenant_id"`
	RedirectURI  string `yaml:"redirect_uri"`
	WebhookURL   string `yaml:"webhook_url"`
	LLM          struct {
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"llm"`
	TokenFile   string `yaml:"token_file"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`
	ClientState string `yaml:"client_state"`
}

// Load reads configuration. Precedence: environment variables, then
// config.yaml values (with ${VAR} expansion), then defaults. A .env file in
// the working directory is loaded first if present.
func Load() (*Config, error) {
	// Best-effort: a missing .env is fine in production.
	_ = godotenv.Load()

	var raw rawConfig
	configPath := envOrDefault("CONFIG_PATH", "config.yaml")
	if data, err := os.ReadFile(configPath); err == nil {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML %s: %w", configPath, err)
		}
	}

	cfg := &Config{
		ClientID:       firstNonEmpty(os.Getenv("CLIENT_ID"), raw.ClientID),
		ClientSecret:   firstNonEmpty(os.Getenv("CLIENT_SECRET"), raw.ClientSecret),
		TenantID:       firstNonEmpty(os.Getenv("TENANT_ID"), raw.TenantID, "common"),
		RedirectURI:    firstNonEmpty(os.Getenv("REDIRECT_URI"), raw.RedirectURI, "http://localhost:5000/auth/callback"),
		WebhookURL:     firstNonEmpty(os.Getenv("WEBHOOK_URL"), raw.WebhookURL),
		Port:           envOrDefaultInt("PORT", 5000),
		LLMAPIKey:      firstNonEmpty(os.Getenv("LLM_API_KEY"), os.Getenv("GEMINI_API_KEY"), raw.LLM.APIKey),
		LLMModel:       firstNonEmpty(os.Getenv("LLM_MODEL"), raw.LLM.Model, "gemini-1.5-flash"),
		LLMBaseURL:     firstNonEmpty(os.Getenv("LLM_BASE_URL"), raw.LLM.BaseURL),
		TokenFile:      firstNonEmpty(os.Getenv("TOKEN_FILE"), raw.TokenFile, "tokens.json"),
		DatabaseURL:    firstNonEmpty(os.Getenv("DATABASE_URL"), raw.DatabaseURL),
		RedisURL:       firstNonEmpty(os.Getenv("REDIS_URL"), raw.RedisURL),
		ClientState:    firstNonEmpty(os.Getenv("CLIENT_STATE"), raw.ClientState, "SecretClientState"),
		RenewalHorizon: envOrDefaultDuration("RENEWAL_HORIZON", 48*time.Hour),
		RenewInterval:  envOrDefaultDuration("RENEW_INTERVAL", 12*time.Hour),
		UserEmail:      os.Getenv("USER_EMAIL"),
	}
	cfg.Authority = fmt.Sprintf("https://login.microsoftonline.com/%s", cfg.TenantID)

	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("CLIENT_ID and CLIENT_SECRET are required")
	}
	if cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY is required to generate replies")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
