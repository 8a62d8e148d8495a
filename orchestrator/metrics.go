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
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	analysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_analysis_total",
			Help: "Total analysis requests by role and outcome",
		},
		[]string{"role", "outcome"},
	)

	analysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insight_analysis_duration_seconds",
			Help:    "End-to-end analysis latency by role",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"role"},
	)

	providerFailovers = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "insight_provider_failovers_total",
			Help: "Dispatches served by the backup provider",
		},
	)

	cacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_cache_hits_total",
			Help: "Insights served from the store without a dispatch",
		},
		[]string{"role"},
	)

	reformatRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insight_reformat_retries_total",
			Help: "Malformed outputs that triggered a reformat retry",
		},
		[]string{"role"},
	)
)

func init() {
	prometheus.MustRegister(analysisTotal)
	prometheus.MustRegister(analysisDuration)
	prometheus.MustRegister(providerFailovers)
	prometheus.MustRegister(cacheHits)
	prometheus.MustRegister(reformatRetries)
}

// MetricsSnapshot is the JSON view served on /metrics for dashboards
// that do not scrape Prometheus.
type MetricsSnapshot struct {
	TotalAnalyses   int64            `json:"total_analyses"`
	ByRole          map[string]int64 `json:"by_role"`
	Failures        int64            `json:"failures"`
	Failovers       int64            `json:"failovers"`
	CacheHits       int64            `json:"cache_hits"`
	ReformatRetries int64            `json:"reformat_retries"`
	UptimeSeconds   float64          `json:"uptime_seconds"`
}

// metricsRegistry accumulates the JSON counters alongside Prometheus.
type metricsRegistry struct {
	mu        sync.RWMutex
	byRole    map[string]int64
	failures  int64
	failovers int64
	hits      int64
	retries   int64
	startedAt time.Time
}

func newMetricsRegistry() *metricsRegistry {
	return &metricsRegistry{
		byRole:    make(map[string]int64),
		startedAt: time.Now(),
	}
}

func (m *metricsRegistry) recordAnalysis(role AgentRole, outcome string, elapsed time.Duration) {
	analysisTotal.WithLabelValues(string(role), outcome).Inc()
	analysisDuration.WithLabelValues(string(role)).Observe(elapsed.Seconds())

	m.mu.Lock()
	defer m.mu.Unlock()
	m.byRole[string(role)]++
	if outcome != "success" {
		m.failures++
	}
}

func (m *metricsRegistry) recordFailover() {
	providerFailovers.Inc()
	m.mu.Lock()
	m.failovers++
	m.mu.Unlock()
}

func (m *metricsRegistry) recordCacheHit(role AgentRole) {
	cacheHits.WithLabelValues(string(role)).Inc()
	m.mu.Lock()
	m.hits++
	m.mu.Unlock()
}

func (m *metricsRegistry) recordReformatRetry(role AgentRole) {
	reformatRetries.WithLabelValues(string(role)).Inc()
	m.mu.Lock()
	m.retries++
	m.mu.Unlock()
}

func (m *metricsRegistry) snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byRole := make(map[string]int64, len(m.byRole))
	var total int64
	for role, n := range m.byRole {
		byRole[role] = n
		total += n
	}
	return MetricsSnapshot{
		TotalAnalyses:   total,
		ByRole:          byRole,
		Failures:        m.failures,
		Failovers:       m.failovers,
		CacheHits:       m.hits,
		ReformatRetries: m.retries,
		UptimeSeconds:   time.Since(m.startedAt).Seconds(),
	}
}
