// Copyright 2025 Basirat
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

package llm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ProviderConfig is the persisted configuration for one provider slot.
// Credentials are stored as references resolved by the deployment
// environment, never as plaintext keys.
type ProviderConfig struct {
	Slot           Slot   `json:"slot"`
	Name           string `json:"name"`
	Endpoint       string `json:"endpoint"`
	CredentialEnv  string `json:"credential_env"` // env var holding the API key
	FastModel      string `json:"fast_model"`
	SmartModel     string `json:"smart_model"`
	QuotaPerMinute int    `json:"quota_per_minute"`
	QuotaPerDay    int    `json:"quota_per_day"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Validate checks the config for required fields.
func (c *ProviderConfig) Validate() error {
	if c.Slot != SlotPrimary && c.Slot != SlotBackup {
		return fmt.Errorf("invalid slot %q", c.Slot)
	}
	if c.Name == "" {
		return errors.New("provider name is required")
	}
	if c.Endpoint == "" {
		return errors.New("provider endpoint is required")
	}
	if c.CredentialEnv == "" {
		return errors.New("credential reference is required")
	}
	if c.FastModel == "" || c.SmartModel == "" {
		return errors.New("both fast and smart models are required")
	}
	return nil
}

// ErrConfigNotFound is returned when a slot has no persisted config.
var ErrConfigNotFound = errors.New("provider config not found")

// Storage persists provider slot configurations so hot-swaps survive
// restarts and sync across replicas.
type Storage interface {
	// SaveConfig upserts a slot configuration.
	SaveConfig(ctx context.Context, config *ProviderConfig) error

	// GetConfig retrieves the configuration for a slot.
	// Returns ErrConfigNotFound when the slot is unconfigured.
	GetConfig(ctx context.Context, slot Slot) (*ProviderConfig, error)

	// ListConfigs returns all persisted slot configurations.
	ListConfigs(ctx context.Context) ([]*ProviderConfig, error)
}

// PostgresStorage implements Storage using PostgreSQL.
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL-backed storage.
func NewPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

// SaveConfig persists a provider slot configuration.
func (s *PostgresStorage) SaveConfig(ctx context.Context, config *ProviderConfig) error {
	if config == nil {
		return errors.New("config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid provider config: %w", err)
	}

	query := `
		INSERT INTO provider_configs (
			slot, name, endpoint, credential_env,
			fast_model, smart_model, quota_per_minute, quota_per_day,
			timeout_seconds, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (slot) DO UPDATE SET
			name = EXCLUDED.name,
			endpoint = EXCLUDED.endpoint,
			credential_env = EXCLUDED.credential_env,
			fast_model = EXCLUDED.fast_model,
			smart_model = EXCLUDED.smart_model,
			quota_per_minute = EXCLUDED.quota_per_minute,
			quota_per_day = EXCLUDED.quota_per_day,
			timeout_seconds = EXCLUDED.timeout_seconds,
			updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		string(config.Slot),
		config.Name,
		config.Endpoint,
		config.CredentialEnv,
		config.FastModel,
		config.SmartModel,
		config.QuotaPerMinute,
		config.QuotaPerDay,
		config.TimeoutSeconds,
	)
	if err != nil {
		return fmt.Errorf("failed to save provider config: %w", err)
	}

	return nil
}

// GetConfig retrieves the configuration for a slot.
func (s *PostgresStorage) GetConfig(ctx context.Context, slot Slot) (*ProviderConfig, error) {
	query := `
		SELECT slot, name, endpoint, credential_env,
			   fast_model, smart_model, quota_per_minute, quota_per_day,
			   timeout_seconds
		FROM provider_configs
		WHERE slot = $1
	`

	config, err := scanConfig(s.db.QueryRowContext(ctx, query, string(slot)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to get provider config: %w", err)
	}
	return config, nil
}

// ListConfigs returns all persisted slot configurations.
func (s *PostgresStorage) ListConfigs(ctx context.Context) ([]*ProviderConfig, error) {
	query := `
		SELECT slot, name, endpoint, credential_env,
			   fast_model, smart_model, quota_per_minute, quota_per_day,
			   timeout_seconds
		FROM provider_configs
		ORDER BY slot
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list provider configs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var configs []*ProviderConfig
	for rows.Next() {
		config, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider config: %w", err)
		}
		configs = append(configs, config)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate provider configs: %w", err)
	}

	return configs, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanConfig(row scanner) (*ProviderConfig, error) {
	var config ProviderConfig
	var slot string
	err := row.Scan(
		&slot,
		&config.Name,
		&config.Endpoint,
		&config.CredentialEnv,
		&config.FastModel,
		&config.SmartModel,
		&config.QuotaPerMinute,
		&config.QuotaPerDay,
		&config.TimeoutSeconds,
	)
	if err != nil {
		return nil, err
	}
	config.Slot = Slot(slot)
	return &config, nil
}

// Timeout returns the configured per-call deadline, or the default.
func (c *ProviderConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}
