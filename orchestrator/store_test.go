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
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client), mr
}

func storedInsight(role AgentRole, ownerID string) *StructuredInsight {
	score := 75.0
	return &StructuredInsight{
		Role:    role,
		MatchID: "match-1",
		OwnerID: ownerID,
		Zone:    ZoneGreen,
		Score:   &score,
		Fields: map[string]Field{
			"advice": {Value: "take it slow", Label: PrivacyLabel{Visibility: VisibilityShared}},
		},
		ComputedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRedisStore_SaveLoad(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, storedInsight(RoleMatchmaker, ""), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Load(ctx, "match-1", RoleMatchmaker, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Role != RoleMatchmaker || got.Zone != ZoneGreen {
		t.Errorf("unexpected insight: %+v", got)
	}
	if got.Score == nil || *got.Score != 75.0 {
		t.Errorf("score lost in round trip: %v", got.Score)
	}
	if got.Fields["advice"].Label.Visibility != VisibilityShared {
		t.Error("privacy labels must survive the round trip")
	}
}

func TestRedisStore_NotFound(t *testing.T) {
	store, _ := newTestRedisStore(t)

	_, err := store.Load(context.Background(), "match-9", RoleMatchmaker, "")
	if !errors.Is(err, ErrInsightNotFound) {
		t.Errorf("expected ErrInsightNotFound, got %v", err)
	}
}

func TestRedisStore_Expiry(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, storedInsight(RoleSafety, "alice"), 30*time.Minute); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	mr.FastForward(29 * time.Minute)
	if _, err := store.Load(ctx, "match-1", RoleSafety, "alice"); err != nil {
		t.Fatalf("insight should still be live: %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.Load(ctx, "match-1", RoleSafety, "alice"); !errors.Is(err, ErrInsightNotFound) {
		t.Errorf("expected expiry, got %v", err)
	}
}

func TestRedisStore_OwnerKeysIsolated(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, storedInsight(RoleSafety, "alice"), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Same match and role, different owner: a miss, never alice's entry.
	if _, err := store.Load(ctx, "match-1", RoleSafety, "bob"); !errors.Is(err, ErrInsightNotFound) {
		t.Errorf("bob must not read alice's safety insight, got %v", err)
	}
}

func TestRedisStore_Invalidate(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Save(ctx, storedInsight(RoleMatchmaker, ""), 0); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Invalidate(ctx, "match-1", RoleMatchmaker, ""); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, err := store.Load(ctx, "match-1", RoleMatchmaker, ""); !errors.Is(err, ErrInsightNotFound) {
		t.Errorf("expected miss after invalidation, got %v", err)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	store := NewMemoryStore()
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	ctx := context.Background()
	if err := store.Save(ctx, storedInsight(RoleMatchmaker, ""), time.Hour); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	current = current.Add(59 * time.Minute)
	if _, err := store.Load(ctx, "match-1", RoleMatchmaker, ""); err != nil {
		t.Fatalf("insight should still be live: %v", err)
	}

	current = current.Add(2 * time.Minute)
	if _, err := store.Load(ctx, "match-1", RoleMatchmaker, ""); !errors.Is(err, ErrInsightNotFound) {
		t.Errorf("expected expiry, got %v", err)
	}
}

func TestMemoryStore_ZeroTTLNeverExpires(t *testing.T) {
	store := NewMemoryStore()
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	ctx := context.Background()
	if err := store.Save(ctx, storedInsight(RoleMatchmaker, ""), 0); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	current = current.Add(1000 * time.Hour)
	if _, err := store.Load(ctx, "match-1", RoleMatchmaker, ""); err != nil {
		t.Errorf("zero TTL must mean no expiry, got %v", err)
	}
}
