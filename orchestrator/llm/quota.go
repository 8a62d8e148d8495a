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
	"sync"
	"time"
)

// quotaTracker enforces per-minute and per-day request budgets for one
// provider. It predicts exhaustion and fails fast instead of queuing, so
// quota pressure surfaces as an immediate RateLimited error rather than
// cascading latency.
//
// A single mutex guards both windows: the reserve check and the counter
// increment happen atomically, so concurrent callers cannot both observe
// the last remaining slot.
type quotaTracker struct {
	mu sync.Mutex

	perMinute int
	perDay    int

	minuteCount int64
	minuteStart time.Time
	dayCount    int64
	dayStart    time.Time

	now func() time.Time // injectable clock for tests
}

// newQuotaTracker creates a tracker with the given budgets.
// A budget of 0 means unlimited for that window.
func newQuotaTracker(perMinute, perDay int) *quotaTracker {
	return &quotaTracker{
		perMinute: perMinute,
		perDay:    perDay,
		now:       time.Now,
	}
}

// reserve consumes one request slot. It returns false when either window
// is exhausted, without consuming anything.
func (q *quotaTracker) reserve() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	q.rollWindows(now)

	if q.perMinute > 0 && q.minuteCount >= int64(q.perMinute) {
		return false
	}
	if q.perDay > 0 && q.dayCount >= int64(q.perDay) {
		return false
	}

	q.minuteCount++
	q.dayCount++
	return true
}

// release returns a previously reserved slot. Used when a request fails
// before reaching the provider (the quota pool was never spent upstream).
func (q *quotaTracker) release() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.minuteCount > 0 {
		q.minuteCount--
	}
	if q.dayCount > 0 {
		q.dayCount--
	}
}

// remaining reports the unused budget in each window.
// -1 means unlimited.
func (q *quotaTracker) remaining() (minute, day int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.rollWindows(q.now())

	minute, day = -1, -1
	if q.perMinute > 0 {
		minute = q.perMinute - int(q.minuteCount)
		if minute < 0 {
			minute = 0
		}
	}
	if q.perDay > 0 {
		day = q.perDay - int(q.dayCount)
		if day < 0 {
			day = 0
		}
	}
	return minute, day
}

// rollWindows resets counters whose window has elapsed.
// Caller must hold q.mu.
func (q *quotaTracker) rollWindows(now time.Time) {
	if q.minuteStart.IsZero() || now.Sub(q.minuteStart) >= time.Minute {
		q.minuteStart = now
		q.minuteCount = 0
	}
	if q.dayStart.IsZero() || now.Sub(q.dayStart) >= 24*time.Hour {
		q.dayStart = now
		q.dayCount = 0
	}
}
