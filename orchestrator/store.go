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
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrInsightNotFound is returned when no stored insight matches the key.
var ErrInsightNotFound = errors.New("insight not found")

// Store persists full unfiltered insights. Everything read back passes
// through the privacy partition before leaving the orchestrator, so the
// store itself never filters.
type Store interface {
	// Save persists an insight with the given TTL. Zero TTL means no
	// expiry.
	Save(ctx context.Context, insight *StructuredInsight, ttl time.Duration) error

	// Load retrieves an insight. ownerID must match the insight's
	// scope: empty for match-shared roles, the owning user otherwise.
	Load(ctx context.Context, matchID string, role AgentRole, ownerID string) (*StructuredInsight, error)

	// Invalidate removes an insight if present.
	Invalidate(ctx context.Context, matchID string, role AgentRole, ownerID string) error
}

// insightKey builds the storage key. Owner-scoped roles carry the owner
// in the key so one participant's cached insight can never be served to
// the other.
func insightKey(matchID string, role AgentRole, ownerID string) string {
	if ownerID != "" {
		return fmt.Sprintf("insight:%s:%s:%s", matchID, role, ownerID)
	}
	return fmt.Sprintf("insight:%s:%s", matchID, role)
}

// RedisStore keeps insights in Redis with per-role expiry.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed insight store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, insight *StructuredInsight, ttl time.Duration) error {
	if insight == nil {
		return errors.New("cannot save nil insight")
	}
	data, err := json.Marshal(insight)
	if err != nil {
		return fmt.Errorf("failed to marshal insight: %w", err)
	}
	key := insightKey(insight.MatchID, insight.Role, insight.OwnerID)
	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save insight %s: %w", key, err)
	}
	return nil
}

// Load implements Store.
func (s *RedisStore) Load(ctx context.Context, matchID string, role AgentRole, ownerID string) (*StructuredInsight, error) {
	key := insightKey(matchID, role, ownerID)
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInsightNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load insight %s: %w", key, err)
	}
	var insight StructuredInsight
	if err := json.Unmarshal(data, &insight); err != nil {
		return nil, fmt.Errorf("failed to unmarshal insight %s: %w", key, err)
	}
	return &insight, nil
}

// Invalidate implements Store.
func (s *RedisStore) Invalidate(ctx context.Context, matchID string, role AgentRole, ownerID string) error {
	key := insightKey(matchID, role, ownerID)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate insight %s: %w", key, err)
	}
	return nil
}

// MemoryStore is an in-process Store for tests and for running without
// Redis. Expiry is checked lazily on Load.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry

	// now is injectable for expiry tests.
	now func() time.Time
}

type memoryEntry struct {
	insight   *StructuredInsight
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, insight *StructuredInsight, ttl time.Duration) error {
	if insight == nil {
		return errors.New("cannot save nil insight")
	}
	var expires time.Time
	if ttl > 0 {
		expires = s.now().Add(ttl)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[insightKey(insight.MatchID, insight.Role, insight.OwnerID)] = memoryEntry{
		insight:   insight,
		expiresAt: expires,
	}
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, matchID string, role AgentRole, ownerID string) (*StructuredInsight, error) {
	key := insightKey(matchID, role, ownerID)

	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrInsightNotFound
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, ErrInsightNotFound
	}
	return entry.insight, nil
}

// Invalidate implements Store.
func (s *MemoryStore) Invalidate(_ context.Context, matchID string, role AgentRole, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, insightKey(matchID, role, ownerID))
	return nil
}
