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
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/rs/cors"

	"basirat/insight/orchestrator/llm"
	"basirat/insight/shared/logger"
)

// Run assembles the service from environment configuration and serves
// until SIGINT or SIGTERM.
func Run() error {
	log := logger.New("insightd")

	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	router := llm.NewRouter(nil, nil)
	if cfg.Primary.APIKey != "" {
		client, err := llm.NewHTTPClient(cfg.Primary)
		if err != nil {
			return fmt.Errorf("primary provider: %w", err)
		}
		_ = router.Swap(llm.SlotPrimary, client)
	}
	if cfg.Backup.APIKey != "" {
		client, err := llm.NewHTTPClient(cfg.Backup)
		if err != nil {
			return fmt.Errorf("backup provider: %w", err)
		}
		_ = router.Swap(llm.SlotBackup, client)
	}

	var store Store = NewMemoryStore()
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		redisClient := redis.NewClient(redisOpts)
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis unreachable: %w", err)
		}
		store = NewRedisStore(redisClient)
		log.Info("", "", "Using Redis insight store", nil)
	} else {
		log.Warn("", "", "REDIS_URL not set, insights cached in memory only", nil)
	}

	var storage llm.Storage
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("invalid DATABASE_URL: %w", err)
		}
		defer func() { _ = db.Close() }()
		if err := db.PingContext(context.Background()); err != nil {
			return fmt.Errorf("postgres unreachable: %w", err)
		}
		storage = llm.NewPostgresStorage(db)
		log.Info("", "", "Provider configs persisted to Postgres", nil)

		// Persisted swaps take precedence over env defaults so a
		// restart lands on the same provider chain.
		configs, err := storage.ListConfigs(context.Background())
		if err != nil {
			return fmt.Errorf("failed to load provider configs: %w", err)
		}
		for _, pc := range configs {
			apiKey := os.Getenv(pc.CredentialEnv)
			if apiKey == "" {
				log.Warn("", "", "Skipping persisted provider, credential env unset",
					map[string]interface{}{"slot": string(pc.Slot), "env": pc.CredentialEnv})
				continue
			}
			client, err := llm.NewHTTPClient(llm.Config{
				Name:           pc.Name,
				BaseURL:        pc.Endpoint,
				APIKey:         apiKey,
				FastModel:      pc.FastModel,
				SmartModel:     pc.SmartModel,
				QuotaPerMinute: pc.QuotaPerMinute,
				QuotaPerDay:    pc.QuotaPerDay,
				Timeout:        pc.Timeout(),
			})
			if err != nil {
				return fmt.Errorf("persisted provider %s: %w", pc.Slot, err)
			}
			_ = router.Swap(pc.Slot, client)
		}
	}

	specs := defaultAgentSpecs()
	if cfg.AgentConfigPath != "" {
		if err := LoadAgentOverrides(cfg.AgentConfigPath, specs); err != nil {
			return fmt.Errorf("agent config: %w", err)
		}
		log.Info("", "", "Applied agent instruction overrides",
			map[string]interface{}{"path": cfg.AgentConfigPath})
	}

	orch := New(router,
		WithStore(store),
		WithAgentSpecs(specs),
		WithLogger(logger.New("orchestrator")),
	)

	server := NewServer(orch, router, storage)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "X-User-ID"},
	})

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      corsHandler.Handler(server.Routes()),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("", "", "Insight orchestrator listening",
			map[string]interface{}{"port": cfg.Port})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		log.Info("", "", "Shutting down", map[string]interface{}{"signal": sig.String()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
