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
	"fmt"
	"log"
	"os"
	"sync"
	"time"
)

// Slot identifies one of the two provider positions in the router.
type Slot string

const (
	// SlotPrimary is always tried first.
	SlotPrimary Slot = "primary"

	// SlotBackup is tried once when the primary fails.
	SlotBackup Slot = "backup"
)

// Router dispatches completion requests across a primary and a backup
// provider. The fallback is a sequential chain, not a retry loop: each
// provider is tried at most once per call, short-circuiting on first
// success. The two providers are assumed to hold independent quota
// pools, so the backup is attempted immediately, without delay.
//
// Slots are hot-swappable. In-flight requests hold the Client value
// they started with, so a swap never drops an outstanding call.
type Router struct {
	mu      sync.RWMutex
	primary Client
	backup  Client
	logger  *log.Logger
}

// RouterOption configures the Router.
type RouterOption func(*Router)

// WithRouterLogger sets the logger for the router.
func WithRouterLogger(l *log.Logger) RouterOption {
	return func(r *Router) {
		r.logger = l
	}
}

// NewRouter creates a Router with the given primary and backup clients.
// Either may be nil and installed later via Swap.
func NewRouter(primary, backup Client, opts ...RouterOption) *Router {
	r := &Router{
		primary: primary,
		backup:  backup,
		logger:  log.New(os.Stdout, "[LLM_ROUTER] ", log.LstdFlags),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// RouteInfo records how a request was served. It exists for
// observability; callers must not branch business logic on it.
type RouteInfo struct {
	Provider   string        `json:"provider"`
	Slot       Slot          `json:"slot"`
	Model      string        `json:"model"`
	Latency    time.Duration `json:"latency"`
	FailedOver bool          `json:"failed_over"`
}

// Dispatch attempts the primary provider, then the backup, each at most
// once. Retrying transient validation failures is the caller's job;
// retrying provider failures is nobody's.
func (r *Router) Dispatch(ctx context.Context, req CompletionRequest) (*CompletionResponse, *RouteInfo, error) {
	primary, backup := r.clients()

	if primary == nil && backup == nil {
		return nil, nil, fmt.Errorf("no providers configured")
	}

	var primaryErr error
	if primary != nil {
		resp, err := primary.Complete(ctx, req)
		if err == nil {
			return resp, &RouteInfo{
				Provider: primary.Name(),
				Slot:     SlotPrimary,
				Model:    resp.Model,
				Latency:  resp.Latency,
			}, nil
		}
		primaryErr = err

		if ctx.Err() != nil {
			// Caller cancelled; the backup would fail the same way.
			return nil, nil, primaryErr
		}
		if !IsFailoverable(err) {
			return nil, nil, primaryErr
		}
	}

	if backup == nil {
		return nil, nil, fmt.Errorf("primary provider failed and no backup configured: %w", primaryErr)
	}

	if primary != nil {
		r.logger.Printf("Failing over from %s to %s: %v", primary.Name(), backup.Name(), primaryErr)
	}

	resp, backupErr := backup.Complete(ctx, req)
	if backupErr == nil {
		return resp, &RouteInfo{
			Provider:   backup.Name(),
			Slot:       SlotBackup,
			Model:      resp.Model,
			Latency:    resp.Latency,
			FailedOver: primary != nil,
		}, nil
	}

	if primary == nil {
		return nil, nil, backupErr
	}

	return nil, nil, &FailoverError{
		PrimaryProvider: primary.Name(),
		PrimaryErr:      primaryErr,
		BackupProvider:  backup.Name(),
		BackupErr:       backupErr,
	}
}

// Swap installs a new client into a slot without dropping in-flight
// requests.
func (r *Router) Swap(slot Slot, client Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch slot {
	case SlotPrimary:
		r.primary = client
	case SlotBackup:
		r.backup = client
	default:
		return fmt.Errorf("unknown provider slot %q", slot)
	}

	name := "<none>"
	if client != nil {
		name = client.Name()
	}
	r.logger.Printf("Installed provider %s into %s slot", name, slot)
	return nil
}

// ClientFor returns the client currently installed in a slot.
func (r *Router) ClientFor(slot Slot) Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if slot == SlotBackup {
		return r.backup
	}
	return r.primary
}

// SlotStatus describes the current occupant of a provider slot.
type SlotStatus struct {
	Slot            Slot   `json:"slot"`
	Provider        string `json:"provider"`
	QuotaMinuteLeft int    `json:"quota_minute_left"`
	QuotaDayLeft    int    `json:"quota_day_left"`
}

// Status returns a snapshot of both slots for the providers API.
func (r *Router) Status() []SlotStatus {
	primary, backup := r.clients()

	status := make([]SlotStatus, 0, 2)
	for _, entry := range []struct {
		slot   Slot
		client Client
	}{
		{SlotPrimary, primary},
		{SlotBackup, backup},
	} {
		s := SlotStatus{Slot: entry.slot}
		if entry.client != nil {
			s.Provider = entry.client.Name()
			s.QuotaMinuteLeft, s.QuotaDayLeft = entry.client.QuotaRemaining()
		}
		status = append(status, s)
	}
	return status
}

// clients reads both slots under one lock acquisition.
func (r *Router) clients() (primary, backup Client) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.primary, r.backup
}
