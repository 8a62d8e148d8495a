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

package orchestrator

import (
	"fmt"
	"os"
	"strconv"

	"basirat/insight/orchestrator/llm"
)

// ServiceConfig holds everything the insight service reads from the
// environment at startup.
type ServiceConfig struct {
	Port            string
	RedisURL        string
	DatabaseURL     string
	AgentConfigPath string

	Primary llm.Config
	Backup  llm.Config
}

// Free-tier request budgets shared by both default providers.
const (
	defaultQuotaPerMinute = 30
	defaultQuotaPerDay    = 14400
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// LoadConfig reads service configuration from the environment. Groq is
// the default primary and Cerebras the default backup; both expose
// OpenAI-compatible chat completion APIs.
func LoadConfig() (*ServiceConfig, error) {
	cfg := &ServiceConfig{
		Port:            getEnv("PORT", "8090"),
		RedisURL:        getEnv("REDIS_URL", ""),
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		AgentConfigPath: getEnv("AGENT_CONFIG_PATH", ""),
		Primary: llm.Config{
			Name:           getEnv("PRIMARY_PROVIDER_NAME", "groq"),
			BaseURL:        getEnv("PRIMARY_PROVIDER_URL", "https://api.groq.com/openai/v1"),
			APIKey:         os.Getenv("GROQ_API_KEY"),
			FastModel:      getEnv("PRIMARY_FAST_MODEL", "llama-3.1-8b-instant"),
			SmartModel:     getEnv("PRIMARY_SMART_MODEL", "llama-3.3-70b-versatile"),
			QuotaPerMinute: getEnvInt("PRIMARY_QUOTA_PER_MINUTE", defaultQuotaPerMinute),
			QuotaPerDay:    getEnvInt("PRIMARY_QUOTA_PER_DAY", defaultQuotaPerDay),
		},
		Backup: llm.Config{
			Name:           getEnv("BACKUP_PROVIDER_NAME", "cerebras"),
			BaseURL:        getEnv("BACKUP_PROVIDER_URL", "https://api.cerebras.ai/v1"),
			APIKey:         os.Getenv("CEREBRAS_API_KEY"),
			FastModel:      getEnv("BACKUP_FAST_MODEL", "llama3.1-8b"),
			SmartModel:     getEnv("BACKUP_SMART_MODEL", "llama-3.3-70b"),
			QuotaPerMinute: getEnvInt("BACKUP_QUOTA_PER_MINUTE", defaultQuotaPerMinute),
			QuotaPerDay:    getEnvInt("BACKUP_QUOTA_PER_DAY", defaultQuotaPerDay),
		},
	}

	if cfg.Primary.APIKey == "" && cfg.Backup.APIKey == "" {
		return nil, fmt.Errorf("at least one of GROQ_API_KEY or CEREBRAS_API_KEY must be set")
	}

	return cfg, nil
}
