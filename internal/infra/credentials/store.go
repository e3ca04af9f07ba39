// Package credentials reads and writes third-party API keys kept in the
// integration_tokens table, so keys can be rotated without a redeploy.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tryon/internal/infra"
	"tryon/internal/sqlinline"
)

const (
	ProviderGemini = "gemini"
	ProviderStripe = "stripe"
)

// ErrEmptyToken is returned when asked to persist a blank key.
var ErrEmptyToken = errors.New("credentials: token is required")

type Store struct {
	sql infra.SQLExecutor
}

func NewStore(sql infra.SQLExecutor) *Store {
	return &Store{sql: sql}
}

// Token returns the stored key for provider, or "" when none is stored.
func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("credentials: load %s token: %w", provider, err)
	}
	return strings.TrimSpace(token), nil
}

// Resolve prefers the key supplied through the environment and falls back to
// the stored one. A nil store resolves to the environment value.
func (s *Store) Resolve(ctx context.Context, provider, fromEnv string) (string, error) {
	if key := strings.TrimSpace(fromEnv); key != "" || s == nil {
		return key, nil
	}
	return s.Token(ctx, provider)
}

// SetToken upserts the key for provider.
func (s *Store) SetToken(ctx context.Context, provider, token string, props map[string]any) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrEmptyToken
	}
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw); err != nil {
		return fmt.Errorf("credentials: store %s token: %w", provider, err)
	}
	return nil
}

func (s *Store) GeminiAPIKey(ctx context.Context) (string, error) {
	return s.Token(ctx, ProviderGemini)
}
