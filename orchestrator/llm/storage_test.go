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
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func validConfig() *ProviderConfig {
	return &ProviderConfig{
		Slot:           SlotPrimary,
		Name:           "groq",
		Endpoint:       "https://api.groq.com/openai/v1",
		CredentialEnv:  "GROQ_API_KEY",
		FastModel:      "llama-3.1-8b-instant",
		SmartModel:     "llama-3.3-70b-versatile",
		QuotaPerMinute: 30,
		QuotaPerDay:    14400,
		TimeoutSeconds: 30,
	}
}

func TestProviderConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ProviderConfig)
		wantErr bool
	}{
		{"valid", func(c *ProviderConfig) {}, false},
		{"backup slot valid", func(c *ProviderConfig) { c.Slot = SlotBackup }, false},
		{"bad slot", func(c *ProviderConfig) { c.Slot = "tertiary" }, true},
		{"missing name", func(c *ProviderConfig) { c.Name = "" }, true},
		{"missing endpoint", func(c *ProviderConfig) { c.Endpoint = "" }, true},
		{"missing credential", func(c *ProviderConfig) { c.CredentialEnv = "" }, true},
		{"missing fast model", func(c *ProviderConfig) { c.FastModel = "" }, true},
		{"missing smart model", func(c *ProviderConfig) { c.SmartModel = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestPostgresStorage_SaveConfig(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	storage := NewPostgresStorage(db)
	cfg := validConfig()

	mock.ExpectExec("INSERT INTO provider_configs").
		WithArgs("primary", cfg.Name, cfg.Endpoint, cfg.CredentialEnv,
			cfg.FastModel, cfg.SmartModel, cfg.QuotaPerMinute, cfg.QuotaPerDay,
			cfg.TimeoutSeconds).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := storage.SaveConfig(context.Background(), cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresStorage_SaveConfig_RejectsInvalid(t *testing.T) {
	db, _, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	storage := NewPostgresStorage(db)

	if err := storage.SaveConfig(context.Background(), nil); err == nil {
		t.Error("nil config should be rejected")
	}

	bad := validConfig()
	bad.Endpoint = ""
	if err := storage.SaveConfig(context.Background(), bad); err == nil {
		t.Error("invalid config should be rejected before hitting the database")
	}
}

func TestPostgresStorage_GetConfig(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	storage := NewPostgresStorage(db)

	columns := []string{"slot", "name", "endpoint", "credential_env",
		"fast_model", "smart_model", "quota_per_minute", "quota_per_day",
		"timeout_seconds"}

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM provider_configs").
			WithArgs("primary").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("primary", "groq", "https://api.groq.com/openai/v1", "GROQ_API_KEY",
					"llama-3.1-8b-instant", "llama-3.3-70b-versatile", 30, 14400, 30))

		cfg, err := storage.GetConfig(context.Background(), SlotPrimary)
		if err != nil {
			t.Fatalf("GetConfig failed: %v", err)
		}
		if cfg.Name != "groq" || cfg.Slot != SlotPrimary {
			t.Errorf("unexpected config: %+v", cfg)
		}
		if cfg.QuotaPerDay != 14400 {
			t.Errorf("expected day quota 14400, got %d", cfg.QuotaPerDay)
		}
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM provider_configs").
			WithArgs("backup").
			WillReturnRows(sqlmock.NewRows(columns))

		_, err := storage.GetConfig(context.Background(), SlotBackup)
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})
}

func TestPostgresStorage_ListConfigs(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	defer func() { _ = db.Close() }()

	storage := NewPostgresStorage(db)

	columns := []string{"slot", "name", "endpoint", "credential_env",
		"fast_model", "smart_model", "quota_per_minute", "quota_per_day",
		"timeout_seconds"}

	mock.ExpectQuery("SELECT (.+) FROM provider_configs").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("backup", "cerebras", "https://api.cerebras.ai/v1", "CEREBRAS_API_KEY",
				"llama3.1-8b", "llama-3.3-70b", 30, 14400, 30).
			AddRow("primary", "groq", "https://api.groq.com/openai/v1", "GROQ_API_KEY",
				"llama-3.1-8b-instant", "llama-3.3-70b-versatile", 30, 14400, 30))

	configs, err := storage.ListConfigs(context.Background())
	if err != nil {
		t.Fatalf("ListConfigs failed: %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("expected 2 configs, got %d", len(configs))
	}
	if configs[0].Slot != SlotBackup || configs[1].Slot != SlotPrimary {
		t.Errorf("unexpected slot order: %+v", configs)
	}
}
