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
	"math"
)

// The scoring engine is the single authority for numeric scores and
// zones. Model-reported aggregate scores are treated as advisory text
// and never stored; only the values computed here reach clients.

// Zone thresholds on the 0-100 scale. Boundaries are inclusive on the
// lower edge: exactly 70 is green, exactly 40 is yellow.
const (
	ZoneGreenMin  = 70.0
	ZoneYellowMin = 40.0
)

// ZoneForScore buckets a 0-100 score.
func ZoneForScore(score float64) Zone {
	switch {
	case score >= ZoneGreenMin:
		return ZoneGreen
	case score >= ZoneYellowMin:
		return ZoneYellow
	default:
		return ZoneRed
	}
}

// CompatibilityBreakdown holds the five matchmaker sub-scores, each on
// a 0-1 scale.
type CompatibilityBreakdown struct {
	Religious    float64 `json:"religious"`
	LifeGoals    float64 `json:"life_goals"`
	FamilyValues float64 `json:"family_values"`
	Personality  float64 `json:"personality"`
	Practical    float64 `json:"practical"`
}

// Compatibility dimension weights. Religious alignment dominates;
// practical factors matter least.
const (
	weightReligious    = 0.30
	weightLifeGoals    = 0.25
	weightFamilyValues = 0.20
	weightPersonality  = 0.15
	weightPractical    = 0.10
)

// HealthSignals holds the four conversation-health sub-scores, each on
// a 0-1 scale, plus the toxicity flag.
type HealthSignals struct {
	StyleMatch       float64 `json:"language_style_match"`
	SentimentGap     float64 `json:"sentiment_gap"`
	EngagementBal    float64 `json:"engagement_balance"`
	Safety           float64 `json:"safety"`
	ToxicityDetected bool    `json:"toxicity_detected"`
}

// Relationship-health weights. Sentiment gap is inverted before
// weighting: a small gap is healthy.
const (
	weightStyleMatch    = 0.30
	weightSentiment     = 0.25
	weightEngagementBal = 0.25
	weightSafetySignal  = 0.20
)

const weightSumTolerance = 1e-9

func init() {
	// The weight sets are compile-time constants; a drifted edit is a
	// programming error worth failing loudly at startup.
	compat := weightReligious + weightLifeGoals + weightFamilyValues + weightPersonality + weightPractical
	if math.Abs(compat-1.0) > weightSumTolerance {
		panic(fmt.Sprintf("compatibility weights sum to %v, want 1.0", compat))
	}
	health := weightStyleMatch + weightSentiment + weightEngagementBal + weightSafetySignal
	if math.Abs(health-1.0) > weightSumTolerance {
		panic(fmt.Sprintf("relationship health weights sum to %v, want 1.0", health))
	}
}

func validateUnit(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("sub-score %s out of range [0,1]: %v", name, v)
	}
	return nil
}

// ComputeCompatibility derives the weighted 0-100 compatibility score
// and zone from validated sub-scores. Deterministic: equal inputs
// always produce equal outputs.
func ComputeCompatibility(b CompatibilityBreakdown) (float64, Zone, error) {
	checks := []struct {
		name  string
		value float64
	}{
		{"religious", b.Religious},
		{"life_goals", b.LifeGoals},
		{"family_values", b.FamilyValues},
		{"personality", b.Personality},
		{"practical", b.Practical},
	}
	for _, c := range checks {
		if err := validateUnit(c.name, c.value); err != nil {
			return 0, "", err
		}
	}

	score := 100 * (b.Religious*weightReligious +
		b.LifeGoals*weightLifeGoals +
		b.FamilyValues*weightFamilyValues +
		b.Personality*weightPersonality +
		b.Practical*weightPractical)

	return score, ZoneForScore(score), nil
}

// ComputeRelationshipHealth derives the weighted 0-100 health score and
// zone. Detected toxicity forces the red zone regardless of the numeric
// score; the score itself is still reported.
func ComputeRelationshipHealth(s HealthSignals) (float64, Zone, error) {
	checks := []struct {
		name  string
		value float64
	}{
		{"language_style_match", s.StyleMatch},
		{"sentiment_gap", s.SentimentGap},
		{"engagement_balance", s.EngagementBal},
		{"safety", s.Safety},
	}
	for _, c := range checks {
		if err := validateUnit(c.name, c.value); err != nil {
			return 0, "", err
		}
	}

	score := 100 * (s.StyleMatch*weightStyleMatch +
		(1-s.SentimentGap)*weightSentiment +
		s.EngagementBal*weightEngagementBal +
		s.Safety*weightSafetySignal)

	if s.ToxicityDetected {
		return score, ZoneRed, nil
	}
	return score, ZoneForScore(score), nil
}

// safetyZones enumerates the alert levels the Safety agent may emit.
var safetyZones = map[Zone]bool{
	ZoneGreen:  true,
	ZoneYellow: true,
	ZoneRed:    true,
	ZoneBlack:  true,
}

// ComputeSafety validates a categorical safety alert level. The level
// is authoritative as emitted; the numeric safety score is advisory
// context and never overrides it.
func ComputeSafety(level Zone) (Zone, error) {
	if !safetyZones[level] {
		return "", fmt.Errorf("unknown safety alert level %q", level)
	}
	return level, nil
}
