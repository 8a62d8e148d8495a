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
	"math"
	"testing"
)

func TestZoneForScore_Boundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  Zone
	}{
		{100, ZoneGreen},
		{70.0, ZoneGreen},
		{69.999, ZoneYellow},
		{40.0, ZoneYellow},
		{39.999, ZoneRed},
		{0, ZoneRed},
	}

	for _, tt := range tests {
		if got := ZoneForScore(tt.score); got != tt.want {
			t.Errorf("ZoneForScore(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestComputeCompatibility(t *testing.T) {
	b := CompatibilityBreakdown{
		Religious:    0.9,
		LifeGoals:    0.8,
		FamilyValues: 0.7,
		Personality:  0.6,
		Practical:    0.5,
	}

	score, zone, err := ComputeCompatibility(b)
	if err != nil {
		t.Fatalf("ComputeCompatibility failed: %v", err)
	}

	// 0.9*0.30 + 0.8*0.25 + 0.7*0.20 + 0.6*0.15 + 0.5*0.10 = 0.75
	if math.Abs(score-75.0) > 1e-9 {
		t.Errorf("expected score 75.0, got %v", score)
	}
	if zone != ZoneGreen {
		t.Errorf("expected green zone, got %s", zone)
	}
}

func TestComputeCompatibility_Deterministic(t *testing.T) {
	b := CompatibilityBreakdown{Religious: 0.63, LifeGoals: 0.41, FamilyValues: 0.92, Personality: 0.18, Practical: 0.77}

	first, firstZone, err := ComputeCompatibility(b)
	if err != nil {
		t.Fatalf("ComputeCompatibility failed: %v", err)
	}
	for i := 0; i < 100; i++ {
		score, zone, err := ComputeCompatibility(b)
		if err != nil || score != first || zone != firstZone {
			t.Fatalf("run %d diverged: %v/%s vs %v/%s (err %v)", i, score, zone, first, firstZone, err)
		}
	}
}

func TestComputeCompatibility_RejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CompatibilityBreakdown)
	}{
		{"negative", func(b *CompatibilityBreakdown) { b.Religious = -0.1 }},
		{"above one", func(b *CompatibilityBreakdown) { b.Practical = 1.5 }},
		{"NaN", func(b *CompatibilityBreakdown) { b.LifeGoals = math.NaN() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := CompatibilityBreakdown{Religious: 0.5, LifeGoals: 0.5, FamilyValues: 0.5, Personality: 0.5, Practical: 0.5}
			tt.mutate(&b)
			if _, _, err := ComputeCompatibility(b); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestComputeRelationshipHealth(t *testing.T) {
	s := HealthSignals{
		StyleMatch:    0.8,
		SentimentGap:  0.2,
		EngagementBal: 0.9,
		Safety:        1.0,
	}

	score, zone, err := ComputeRelationshipHealth(s)
	if err != nil {
		t.Fatalf("ComputeRelationshipHealth failed: %v", err)
	}

	// 0.8*0.30 + 0.8*0.25 + 0.9*0.25 + 1.0*0.20 = 0.865
	if math.Abs(score-86.5) > 1e-9 {
		t.Errorf("expected score 86.5, got %v", score)
	}
	if zone != ZoneGreen {
		t.Errorf("expected green zone, got %s", zone)
	}
}

func TestComputeRelationshipHealth_ToxicityOverride(t *testing.T) {
	// Perfect numeric signals still land in the red zone when toxicity
	// is flagged. The score itself is preserved.
	s := HealthSignals{
		StyleMatch:       1.0,
		SentimentGap:     0.0,
		EngagementBal:    1.0,
		Safety:           1.0,
		ToxicityDetected: true,
	}

	score, zone, err := ComputeRelationshipHealth(s)
	if err != nil {
		t.Fatalf("ComputeRelationshipHealth failed: %v", err)
	}
	if math.Abs(score-100.0) > 1e-9 {
		t.Errorf("override must not alter the numeric score, got %v", score)
	}
	if zone != ZoneRed {
		t.Errorf("toxicity must force red zone, got %s", zone)
	}
}

func TestComputeRelationshipHealth_RejectsOutOfRange(t *testing.T) {
	s := HealthSignals{StyleMatch: 0.5, SentimentGap: 1.2, EngagementBal: 0.5, Safety: 0.5}
	if _, _, err := ComputeRelationshipHealth(s); err == nil {
		t.Error("expected validation error for sentiment_gap > 1")
	}
}

func TestComputeSafety(t *testing.T) {
	for _, level := range []Zone{ZoneGreen, ZoneYellow, ZoneRed, ZoneBlack} {
		got, err := ComputeSafety(level)
		if err != nil {
			t.Errorf("ComputeSafety(%s) failed: %v", level, err)
		}
		if got != level {
			t.Errorf("alert level must pass through unchanged, got %s", got)
		}
	}

	if _, err := ComputeSafety("purple"); err == nil {
		t.Error("unknown alert level should be rejected")
	}
}
