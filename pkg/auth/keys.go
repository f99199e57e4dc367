package auth

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/atrium/pkg/apierr"
)

// APIKey represents an issued API key. The plaintext token is returned
// exactly once at creation time; only hash and display prefix are stored.
type APIKey struct {
	ID          int64        `json:"id"`
	WorkspaceID int64        `json:"workspace_id"`
	CreatedBy   int64        `json:"created_by"`
	Name        string       `json:"name"`
	TokenHash   string       `json:"-"`
	TokenPrefix string       `json:"token_prefix"`
	Scopes      []Capability `json:"scopes"`
	LastUsedAt  *time.Time   `json:"last_used_at,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// APIKeyStore persists API keys. All reads and mutations are scoped to a
// workspace so a key can never leak across the tenant boundary.
type APIKeyStore struct {
	db        *sql.DB
	generator *TokenGenerator
	// now is swappable for tests; time clauses are evaluated in Go so the
	// store runs on both postgres and sqlite.
	now func() time.Time
}

// NewAPIKeyStore creates an API key store on the given database
func NewAPIKeyStore(db *sql.DB) *APIKeyStore {
	return &APIKeyStore{
		db:        db,
		generator: NewTokenGenerator(),
		now:       time.Now,
	}
}

// Generator exposes the token generator for format checks in the resolver
func (s *APIKeyStore) Generator() *TokenGenerator {
	return s.generator
}

// Create issues a new key for the workspace and returns the record plus the
// plaintext token. The token is never stored and cannot be recovered.
func (s *APIKeyStore) Create(ctx context.Context, workspaceID, createdBy int64, name string, scopes []Capability, expiresAt *time.Time) (*APIKey, string, error) {
	if name == "" {
		return nil, "", apierr.Invalid("key name is required")
	}
	for _, scope := range scopes {
		if !KnownCapability(scope) {
			return nil, "", apierr.Invalid("unknown scope: %s", scope)
		}
	}

	token, tokenHash, tokenPrefix, err := s.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	key := &APIKey{
		WorkspaceID: workspaceID,
		CreatedBy:   createdBy,
		Name:        name,
		TokenHash:   tokenHash,
		TokenPrefix: tokenPrefix,
		Scopes:      scopes,
		ExpiresAt:   expiresAt,
		CreatedAt:   s.now().UTC(),
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO api_keys (workspace_id, created_by, name, token_hash, token_prefix, scopes, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, key.WorkspaceID, key.CreatedBy, key.Name, key.TokenHash, key.TokenPrefix,
		joinScopes(key.Scopes), key.ExpiresAt, key.CreatedAt).Scan(&key.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to insert api key: %w", err)
	}

	return key, token, nil
}

// List returns all keys for a workspace, newest first
func (s *APIKeyStore) List(ctx context.Context, workspaceID int64) ([]*APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, created_by, name, token_hash, token_prefix, scopes, last_used_at, expires_at, created_at
		FROM api_keys
		WHERE workspace_id = $1
		ORDER BY created_at DESC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// GetByHash looks up a non-expired key by its token hash. Used by the
// session resolver on the bearer path.
func (s *APIKeyStore) GetByHash(ctx context.Context, tokenHash string) (*APIKey, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, created_by, name, token_hash, token_prefix, scopes, last_used_at, expires_at, created_at
		FROM api_keys
		WHERE token_hash = $1 AND (expires_at IS NULL OR expires_at > $2)
	`, tokenHash, s.now().UTC())

	key, err := scanAPIKey(row)
	if err == sql.ErrNoRows {
		return nil, apierr.Unauthorized("invalid or expired API key")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up api key: %w", err)
	}
	return key, nil
}

// Delete removes exactly one key scoped to the workspace. Zero affected
// rows is a not-found outcome, which makes concurrent deletes idempotent:
// one caller wins, the other observes not found.
func (s *APIKeyStore) Delete(ctx context.Context, workspaceID, keyID int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM api_keys WHERE id = $1 AND workspace_id = $2
	`, keyID, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return apierr.NotFound("API key %d not found", keyID)
	}
	return nil
}

// Touch updates last_used_at. Best effort: the resolver logs but does not
// fail the request when the touch cannot be written.
func (s *APIKeyStore) Touch(ctx context.Context, keyID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE api_keys SET last_used_at = $1 WHERE id = $2
	`, s.now().UTC(), keyID)
	return err
}

// scanner abstracts *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAPIKey(row scanner) (*APIKey, error) {
	key := &APIKey{}
	var scopes string
	err := row.Scan(&key.ID, &key.WorkspaceID, &key.CreatedBy, &key.Name,
		&key.TokenHash, &key.TokenPrefix, &scopes, &key.LastUsedAt,
		&key.ExpiresAt, &key.CreatedAt)
	if err != nil {
		return nil, err
	}
	key.Scopes = splitScopes(scopes)
	return key, nil
}

// Scopes are stored as a comma-joined string so the schema stays portable
// between postgres and the sqlite test database.
func joinScopes(scopes []Capability) string {
	parts := make([]string, len(scopes))
	for i, s := range scopes {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}

func splitScopes(raw string) []Capability {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	scopes := make([]Capability, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			scopes = append(scopes, Capability(p))
		}
	}
	return scopes
}
