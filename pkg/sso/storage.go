package sso

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/platinummonkey/atrium/pkg/apierr"
)

// Storage handles SSO provider configuration persistence
type Storage struct {
	db  *sql.DB
	now func() time.Time
}

// NewStorage creates a new SSO provider storage
func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db, now: time.Now}
}

// providerColumns is the scan order shared by all provider reads
const providerColumns = `id, name, provider_type, provider_name, enabled, auto_provision, default_role,
	saml_config, oidc_config, group_mapping, attribute_mapping, created_at, updated_at`

// CreateProvider creates a new SSO provider configuration
func (s *Storage) CreateProvider(ctx context.Context, config *ProviderConfig) error {
	samlJSON, oidcJSON, groupJSON, attrJSON, err := marshalProviderConfigs(config)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	config.CreatedAt = now
	config.UpdatedAt = now

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO sso_providers (
			name, provider_type, provider_name, enabled, auto_provision, default_role,
			saml_config, oidc_config, group_mapping, attribute_mapping,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`, config.Name, config.ProviderType, config.ProviderName, config.Enabled,
		config.AutoProvision, config.DefaultRole, samlJSON, oidcJSON,
		groupJSON, attrJSON, now, now).Scan(&config.ID)

	return err
}

// GetProvider retrieves a provider by name
func (s *Storage) GetProvider(ctx context.Context, name string) (*ProviderConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+providerColumns+`
		FROM sso_providers
		WHERE name = $1
	`, name)

	config, err := scanProvider(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("provider not found: %s", name)
	}
	return config, err
}

// GetProviderByID retrieves a provider by ID
func (s *Storage) GetProviderByID(ctx context.Context, id int64) (*ProviderConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+providerColumns+`
		FROM sso_providers
		WHERE id = $1
	`, id)

	config, err := scanProvider(row)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("provider not found")
	}
	return config, err
}

// ListProviders lists all SSO providers
func (s *Storage) ListProviders(ctx context.Context, enabledOnly bool) ([]*ProviderConfig, error) {
	query := `
		SELECT ` + providerColumns + `
		FROM sso_providers
	`
	if enabledOnly {
		query += " WHERE enabled = true"
	}
	query += " ORDER BY name"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []*ProviderConfig
	for rows.Next() {
		config, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		providers = append(providers, config)
	}

	return providers, rows.Err()
}

// UpdateProvider updates an existing provider
func (s *Storage) UpdateProvider(ctx context.Context, config *ProviderConfig) error {
	samlJSON, oidcJSON, groupJSON, attrJSON, err := marshalProviderConfigs(config)
	if err != nil {
		return err
	}

	config.UpdatedAt = s.now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE sso_providers
		SET provider_type = $1, provider_name = $2, enabled = $3, auto_provision = $4,
			default_role = $5, saml_config = $6, oidc_config = $7,
			group_mapping = $8, attribute_mapping = $9, updated_at = $10
		WHERE id = $11
	`, config.ProviderType, config.ProviderName, config.Enabled, config.AutoProvision,
		config.DefaultRole, samlJSON, oidcJSON, groupJSON, attrJSON,
		config.UpdatedAt, config.ID)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apierr.NotFound("provider not found")
	}
	return nil
}

// DeleteProvider deletes a provider by name
func (s *Storage) DeleteProvider(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sso_providers WHERE name = $1`, name)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return apierr.NotFound("provider not found: %s", name)
	}
	return nil
}

// ProviderExists checks if a provider with the given name exists
func (s *Storage) ProviderExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM sso_providers WHERE name = $1)`, name).Scan(&exists)
	return exists, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanProvider(row rowScanner) (*ProviderConfig, error) {
	var (
		samlJSON  []byte
		oidcJSON  []byte
		groupJSON []byte
		attrJSON  []byte
	)

	config := &ProviderConfig{}
	err := row.Scan(
		&config.ID, &config.Name, &config.ProviderType, &config.ProviderName,
		&config.Enabled, &config.AutoProvision, &config.DefaultRole,
		&samlJSON, &oidcJSON, &groupJSON, &attrJSON,
		&config.CreatedAt, &config.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if len(samlJSON) > 0 {
		var stored storedSAMLConfig
		if err := json.Unmarshal(samlJSON, &stored); err != nil {
			return nil, fmt.Errorf("failed to unmarshal SAML config: %w", err)
		}
		stored.SAMLConfig.PrivateKey = stored.PrivateKey
		config.SAMLConfig = &stored.SAMLConfig
	}

	if len(oidcJSON) > 0 {
		var stored storedOIDCConfig
		if err := json.Unmarshal(oidcJSON, &stored); err != nil {
			return nil, fmt.Errorf("failed to unmarshal OIDC config: %w", err)
		}
		stored.OIDCConfig.ClientSecret = stored.ClientSecret
		config.OIDCConfig = &stored.OIDCConfig
	}

	if len(groupJSON) > 0 {
		if err := json.Unmarshal(groupJSON, &config.GroupMapping); err != nil {
			return nil, fmt.Errorf("failed to unmarshal group mapping: %w", err)
		}
	}

	if len(attrJSON) > 0 {
		if err := json.Unmarshal(attrJSON, &config.AttributeMapping); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attribute mapping: %w", err)
		}
	}

	return config, nil
}

// marshalProviderConfigs serializes the nested config blocks. Secrets are
// stored as written; the handlers sanitize them on the way out.
func marshalProviderConfigs(config *ProviderConfig) (samlJSON, oidcJSON, groupJSON, attrJSON []byte, err error) {
	if config.SAMLConfig != nil {
		if samlJSON, err = json.Marshal(samlWithSecrets(config.SAMLConfig)); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to marshal SAML config: %w", err)
		}
	}

	if config.OIDCConfig != nil {
		if oidcJSON, err = json.Marshal(oidcWithSecrets(config.OIDCConfig)); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to marshal OIDC config: %w", err)
		}
	}

	if len(config.GroupMapping) > 0 {
		if groupJSON, err = json.Marshal(config.GroupMapping); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("failed to marshal group mapping: %w", err)
		}
	}

	if attrJSON, err = json.Marshal(config.AttributeMapping); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal attribute mapping: %w", err)
	}

	return samlJSON, oidcJSON, groupJSON, attrJSON, nil
}

// The JSON tags on SAMLConfig and OIDCConfig hide secrets from API
// responses, so storage uses shadow types that include them.

type storedSAMLConfig struct {
	SAMLConfig
	PrivateKey string `json:"private_key,omitempty"`
}

type storedOIDCConfig struct {
	OIDCConfig
	ClientSecret string `json:"client_secret,omitempty"`
}

func samlWithSecrets(c *SAMLConfig) *storedSAMLConfig {
	return &storedSAMLConfig{SAMLConfig: *c, PrivateKey: c.PrivateKey}
}

func oidcWithSecrets(c *OIDCConfig) *storedOIDCConfig {
	return &storedOIDCConfig{OIDCConfig: *c, ClientSecret: c.ClientSecret}
}
