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
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// stripJSONFence removes a surrounding markdown code fence from model
// output. Models wrap JSON in ```json blocks often enough that this is
// part of parsing, not error handling.
func stripJSONFence(content string) string {
	s := strings.TrimSpace(content)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// decodeStrict unmarshals into dst rejecting unknown fields and
// trailing content. Extra fields mean the model hallucinated schema.
func decodeStrict(content string, dst any) error {
	dec := json.NewDecoder(strings.NewReader(content))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing content after JSON object")
	}
	return nil
}

func checkPercent(name string, v float64) error {
	if math.IsNaN(v) || v < 0 || v > 100 {
		return fmt.Errorf("%s out of range [0,100]: %v", name, v)
	}
	return nil
}

// resolveLabel turns a spec-level visibility into a concrete privacy
// label for this request.
func resolveLabel(vis fieldVisibility, req *AnalysisRequest) (PrivacyLabel, error) {
	switch vis {
	case visShared:
		return PrivacyLabel{Visibility: VisibilityShared}, nil
	case visOwnerA:
		return PrivacyLabel{Visibility: VisibilityOwnerOnly, OwnerID: req.UserAID}, nil
	case visOwnerB:
		return PrivacyLabel{Visibility: VisibilityOwnerOnly, OwnerID: req.UserBID}, nil
	case visRequester:
		return PrivacyLabel{Visibility: VisibilityOwnerOnly, OwnerID: req.RequestingUserID}, nil
	default:
		return PrivacyLabel{}, fmt.Errorf("unknown visibility %q", vis)
	}
}

// labeledField builds one insight field using the spec's visibility
// mapping. A field name missing from the mapping is a defect: we would
// rather fail the analysis than guess who may see it.
func labeledField(spec *AgentSpec, req *AnalysisRequest, name string, value any) (Field, error) {
	vis, ok := spec.FieldVisibility[name]
	if !ok {
		return Field{}, fmt.Errorf("no visibility declared for field %q", name)
	}
	label, err := resolveLabel(vis, req)
	if err != nil {
		return Field{}, err
	}
	return Field{Value: value, Label: label}, nil
}

// Per-role wire payloads, matching the output schemas handed to the
// model verbatim.

type matchmakerOutput struct {
	CompatibilityScore   float64            `json:"compatibility_score"`
	Zone                 string             `json:"zone"`
	Breakdown            map[string]float64 `json:"breakdown"`
	Strengths            []string           `json:"strengths"`
	Concerns             []string           `json:"concerns"`
	ConversationStarters []string           `json:"conversation_starters"`
	Advice               string             `json:"advice"`
}

type interestLevel struct {
	Score      float64  `json:"score"`
	Indicators []string `json:"indicators"`
}

type redFlag struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Evidence string `json:"evidence"`
}

type analyzerOutput struct {
	InterestLevels struct {
		UserA interestLevel `json:"user_a"`
		UserB interestLevel `json:"user_b"`
	} `json:"interest_levels"`
	ConversationMetrics HealthSignals `json:"conversation_metrics"`
	RedFlags            []redFlag     `json:"red_flags"`
	PersonalityInsights struct {
		UserA []string `json:"user_a"`
		UserB []string `json:"user_b"`
	} `json:"personality_insights"`
	PrivateInsights struct {
		ForUserA string `json:"for_user_a"`
		ForUserB string `json:"for_user_b"`
	} `json:"private_insights"`
	SuggestedTopics   []string `json:"suggested_topics"`
	OverallAssessment string   `json:"overall_assessment"`
}

type coachOutput struct {
	Message         string   `json:"message"`
	SuggestedTopics []string `json:"suggested_topics"`
}

type safetyConcern struct {
	Type        string `json:"type"`
	Severity    string `json:"severity"`
	Evidence    string `json:"evidence"`
	Explanation string `json:"explanation"`
}

type safetyOutput struct {
	SafetyScore    float64         `json:"safety_score"`
	AlertLevel     string          `json:"alert_level"`
	Concerns       []safetyConcern `json:"concerns"`
	PositiveSigns  []string        `json:"positive_signs"`
	Recommendation string          `json:"recommendation"`
}

type profilerOutput struct {
	Traits struct {
		Openness          float64 `json:"openness"`
		Conscientiousness float64 `json:"conscientiousness"`
		Extraversion      float64 `json:"extraversion"`
		Agreeableness     float64 `json:"agreeableness"`
		Neuroticism       float64 `json:"neuroticism"`
	} `json:"traits"`
	Summary     string   `json:"summary"`
	Strengths   []string `json:"strengths"`
	GrowthAreas []string `json:"growth_areas"`
}

// zoneGuidance returns the canned next-step guidance attached to
// analyzer insights per zone. Deterministic so cached and fresh
// insights agree.
func zoneGuidance(zone Zone) []string {
	switch zone {
	case ZoneGreen:
		return []string{
			"The conversation is going well - consider involving family or a wali soon.",
			"Suggest a chaperoned meeting or video call to move forward.",
		}
	case ZoneYellow:
		return []string{
			"Engagement is uneven - ask more open questions to balance the conversation.",
			"Give the conversation more time before escalating commitment.",
		}
	default:
		return []string{
			"Serious concerns observed - slow down and re-evaluate this match.",
			"Consider discussing your concerns with a trusted family member.",
		}
	}
}

// parseAgentOutput validates one completion against the role's schema
// and assembles a labeled insight. All numeric aggregates come from the
// scoring engine, not from the model. Any returned error means the
// output was malformed for this role.
func parseAgentOutput(spec *AgentSpec, req *AnalysisRequest, content string, now time.Time) (*StructuredInsight, error) {
	body := stripJSONFence(content)

	insight := &StructuredInsight{
		Role:       spec.Role,
		MatchID:    req.MatchID,
		Fields:     make(map[string]Field),
		ComputedAt: now,
	}
	if spec.OwnerScoped {
		insight.OwnerID = req.RequestingUserID
	}

	addField := func(name string, value any) error {
		f, err := labeledField(spec, req, name, value)
		if err != nil {
			return err
		}
		insight.Fields[name] = f
		return nil
	}

	switch spec.Role {
	case RoleMatchmaker:
		var out matchmakerOutput
		if err := decodeStrict(body, &out); err != nil {
			return nil, fmt.Errorf("matchmaker output: %w", err)
		}
		breakdown := CompatibilityBreakdown{}
		dims := []struct {
			key string
			dst *float64
		}{
			{"religious", &breakdown.Religious},
			{"life_goals", &breakdown.LifeGoals},
			{"family_values", &breakdown.FamilyValues},
			{"personality", &breakdown.Personality},
			{"practical", &breakdown.Practical},
		}
		for _, d := range dims {
			raw, ok := out.Breakdown[d.key]
			if !ok {
				return nil, fmt.Errorf("matchmaker breakdown missing %q", d.key)
			}
			if err := checkPercent("breakdown."+d.key, raw); err != nil {
				return nil, err
			}
			*d.dst = raw / 100
		}
		if len(out.Breakdown) != len(dims) {
			return nil, fmt.Errorf("matchmaker breakdown has %d dimensions, want %d", len(out.Breakdown), len(dims))
		}
		score, zone, err := ComputeCompatibility(breakdown)
		if err != nil {
			return nil, err
		}
		insight.Score = &score
		insight.Zone = zone
		fields := map[string]any{
			"breakdown":             out.Breakdown,
			"strengths":             out.Strengths,
			"concerns":              out.Concerns,
			"conversation_starters": out.ConversationStarters,
			"advice":                out.Advice,
		}
		for name, value := range fields {
			if err := addField(name, value); err != nil {
				return nil, err
			}
		}

	case RoleAnalyzer:
		var out analyzerOutput
		if err := decodeStrict(body, &out); err != nil {
			return nil, fmt.Errorf("analyzer output: %w", err)
		}
		if err := checkPercent("interest_levels.user_a", out.InterestLevels.UserA.Score); err != nil {
			return nil, err
		}
		if err := checkPercent("interest_levels.user_b", out.InterestLevels.UserB.Score); err != nil {
			return nil, err
		}
		score, zone, err := ComputeRelationshipHealth(out.ConversationMetrics)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(out.PrivateInsights.ForUserA) == "" ||
			strings.TrimSpace(out.PrivateInsights.ForUserB) == "" {
			return nil, fmt.Errorf("analyzer output missing private insights")
		}
		insight.Score = &score
		insight.Zone = zone
		fields := map[string]any{
			"interest_levels": map[string]interestLevel{
				"user_a": out.InterestLevels.UserA,
				"user_b": out.InterestLevels.UserB,
			},
			"conversation_metrics": out.ConversationMetrics,
			"red_flags":            out.RedFlags,
			"personality_insights": map[string][]string{
				"user_a": out.PersonalityInsights.UserA,
				"user_b": out.PersonalityInsights.UserB,
			},
			"suggested_topics":   out.SuggestedTopics,
			"overall_assessment": out.OverallAssessment,
			"zone_insights":      zoneGuidance(zone),
			"private_insight_a":  out.PrivateInsights.ForUserA,
			"private_insight_b":  out.PrivateInsights.ForUserB,
		}
		for name, value := range fields {
			if err := addField(name, value); err != nil {
				return nil, err
			}
		}

	case RoleCoach:
		var out coachOutput
		if err := decodeStrict(body, &out); err != nil {
			return nil, fmt.Errorf("coach output: %w", err)
		}
		if strings.TrimSpace(out.Message) == "" {
			return nil, fmt.Errorf("coach output has empty message")
		}
		if err := addField("message", out.Message); err != nil {
			return nil, err
		}
		if err := addField("suggested_topics", out.SuggestedTopics); err != nil {
			return nil, err
		}

	case RoleSafety:
		var out safetyOutput
		if err := decodeStrict(body, &out); err != nil {
			return nil, fmt.Errorf("safety output: %w", err)
		}
		if err := checkPercent("safety_score", out.SafetyScore); err != nil {
			return nil, err
		}
		level, err := ComputeSafety(Zone(out.AlertLevel))
		if err != nil {
			return nil, err
		}
		for _, c := range out.Concerns {
			switch c.Severity {
			case "low", "medium", "high", "critical":
			default:
				return nil, fmt.Errorf("safety concern has unknown severity %q", c.Severity)
			}
		}
		insight.Score = &out.SafetyScore
		insight.Zone = level
		fields := map[string]any{
			"concerns":       out.Concerns,
			"positive_signs": out.PositiveSigns,
			"recommendation": out.Recommendation,
		}
		for name, value := range fields {
			if err := addField(name, value); err != nil {
				return nil, err
			}
		}

	case RoleProfiler:
		var out profilerOutput
		if err := decodeStrict(body, &out); err != nil {
			return nil, fmt.Errorf("profiler output: %w", err)
		}
		traits := map[string]float64{
			"openness":          out.Traits.Openness,
			"conscientiousness": out.Traits.Conscientiousness,
			"extraversion":      out.Traits.Extraversion,
			"agreeableness":     out.Traits.Agreeableness,
			"neuroticism":       out.Traits.Neuroticism,
		}
		for name, v := range traits {
			if err := checkPercent("traits."+name, v); err != nil {
				return nil, err
			}
		}
		fields := map[string]any{
			"traits":       traits,
			"summary":      out.Summary,
			"strengths":    out.Strengths,
			"growth_areas": out.GrowthAreas,
		}
		for name, value := range fields {
			if err := addField(name, value); err != nil {
				return nil, err
			}
		}

	default:
		return nil, fmt.Errorf("no parser for role %q", spec.Role)
	}

	return insight, nil
}
