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
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"basirat/insight/orchestrator/llm"
)

// fieldVisibility declares who may see one output field. Owner-relative
// values are resolved against the request at labeling time.
type fieldVisibility string

const (
	visShared    fieldVisibility = "shared"
	visOwnerA    fieldVisibility = "owner_a"
	visOwnerB    fieldVisibility = "owner_b"
	visRequester fieldVisibility = "requester"
)

// AgentSpec is the declarative definition of one agent role: persona
// instructions, input contract, output schema, and the static
// field-to-visibility mapping. Specs are created at process start and
// read-only thereafter.
type AgentSpec struct {
	Role AgentRole

	// Instructions is the system prompt establishing the agent persona.
	Instructions string

	// PromptTemplate is the user-message template with {{placeholder}}
	// substitution from the request context.
	PromptTemplate string

	// RequiredInputs lists context keys that must be present.
	RequiredInputs []string

	// OutputSchema describes the exact JSON object the agent must emit.
	// It is appended to every built prompt so completions are
	// machine-parseable.
	OutputSchema string

	// Tier selects the model class for this role.
	Tier llm.ModelTier

	// OwnerScoped marks roles whose whole insight belongs to the
	// requesting user (Coach, Safety, Profiler).
	OwnerScoped bool

	// Cacheable marks roles whose insights may be handed to the store.
	Cacheable bool

	// CacheTTL bounds staleness of cached insights for this role.
	CacheTTL time.Duration

	// FieldVisibility maps output field names to their visibility.
	FieldVisibility map[string]fieldVisibility
}

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// BuildPrompt substitutes request context into the spec's template and
// appends the output-schema description. Pure and deterministic: the
// same spec and request always yield the same prompt.
func BuildPrompt(spec *AgentSpec, req *AnalysisRequest) (string, error) {
	values := make(map[string]string, len(req.Context)+1)
	for k, v := range req.Context {
		values[k] = v
	}
	if req.Question != "" {
		values["question"] = req.Question
	}

	var missing []string
	prompt := placeholderPattern.ReplaceAllStringFunc(spec.PromptTemplate, func(m string) string {
		key := placeholderPattern.FindStringSubmatch(m)[1]
		v, ok := values[key]
		if !ok {
			missing = append(missing, key)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("prompt template references unset context fields: %s", strings.Join(missing, ", "))
	}

	if spec.OutputSchema != "" {
		prompt += "\n\nRespond with a single JSON object only, no markdown and no extra text, exactly matching this schema:\n" + spec.OutputSchema
	}

	return prompt, nil
}

// reformatInstruction is appended when the first completion fails schema
// validation and the dispatch is retried once.
const reformatInstruction = "\n\nYour previous output was invalid JSON. Reformat your answer as a single valid JSON object exactly matching the schema above, with no surrounding text."

// defaultAgentSpecs builds the five built-in agent definitions.
//
// Safety and Analyzer run on the smart tier: missing a scam pattern or
// misreading a conversation has higher stakes than a slower answer.
// The remaining roles run on the fast tier.
func defaultAgentSpecs() map[AgentRole]*AgentSpec {
	specs := map[AgentRole]*AgentSpec{
		RoleMatchmaker: {
			Role: RoleMatchmaker,
			Instructions: `You are the Basirat Matchmaker Agent - an intelligent Islamic matrimonial compatibility analyzer.

Analyze two user profiles and assess their compatibility for marriage, considering Islamic values and practical life factors.

Score each criterion 0-100:
1. RELIGIOUS COMPATIBILITY: sect, religiosity level, prayer habits, hijab/beard preferences.
2. LIFE GOALS: children, career ambitions, relocation willingness, financial expectations.
3. FAMILY VALUES: marital status compatibility, family involvement, traditional vs modern outlook.
4. PERSONALITY FIT: communication style, education similarity, age gap appropriateness, shared interests.
5. PRACTICAL FACTORS: location and distance, profession compatibility, income expectations.

Rules: be objective and fair, consider Islamic marriage principles, do not discriminate on appearance, focus on long-term compatibility.`,
			PromptTemplate: `Analyze the compatibility between these two profiles for marriage:

=== PROFILE A ===
{{profile_a}}

=== PROFILE B ===
{{profile_b}}`,
			RequiredInputs: []string{"profile_a", "profile_b"},
			OutputSchema: `{
  "compatibility_score": <number 0-100>,
  "zone": "<green|yellow|red>",
  "breakdown": {
    "religious": <number 0-100>,
    "life_goals": <number 0-100>,
    "family_values": <number 0-100>,
    "personality": <number 0-100>,
    "practical": <number 0-100>
  },
  "strengths": ["<specific strength>", "..."],
  "concerns": ["<specific concern, if any>"],
  "conversation_starters": ["<topic suggestion>", "..."],
  "advice": "<brief advice for this match>"
}`,
			Tier:      llm.TierFast,
			Cacheable: true,
			CacheTTL:  24 * time.Hour,
			FieldVisibility: map[string]fieldVisibility{
				"breakdown":             visShared,
				"strengths":             visShared,
				"concerns":              visShared,
				"conversation_starters": visShared,
				"advice":                visShared,
			},
		},
		RoleAnalyzer: {
			Role: RoleAnalyzer,
			Instructions: `You are the Basirat Conversation Analyzer - an intelligent observer of matrimonial conversations.

CRITICAL RULE: you only read and analyze. You never write messages for users.

Analyze the conversation between two potential matches:
1. Interest levels per user: response patterns, message length, questions asked, personal details shared.
2. Conversation metrics: language style similarity, sentiment balance, engagement balance, safety.
3. Red flags: inconsistent information, pressuring, love bombing, financial hints, controlling language, disrespect.
4. Personality traits per user: values mentioned, emotional expression, humor, decision-making style.
5. Private insights: one confidential, actionable tip for each user. Never reveal one user's private insight to the other.

Be objective and fair to both users. Focus on observable patterns, not assumptions. Consider Islamic cultural context: family involvement and arranged-marriage discussion are normal.`,
			PromptTemplate: `Analyze this conversation between {{user_a_name}} (User A) and {{user_b_name}} (User B):

=== CONVERSATION ===
{{conversation}}
=== END CONVERSATION ===

Remember: private insights for each user must be helpful and different - never reveal one user's analysis to the other.`,
			RequiredInputs: []string{"conversation", "user_a_name", "user_b_name"},
			OutputSchema: `{
  "interest_levels": {
    "user_a": {"score": <number 0-100>, "indicators": ["<indicator>"]},
    "user_b": {"score": <number 0-100>, "indicators": ["<indicator>"]}
  },
  "conversation_metrics": {
    "language_style_match": <number 0-1>,
    "sentiment_gap": <number 0-1, lower is better>,
    "engagement_balance": <number 0-1>,
    "safety": <number 0-1>,
    "toxicity_detected": <true|false>
  },
  "red_flags": [{"type": "<flag type>", "severity": "<low|medium|high>", "evidence": "<observation>"}],
  "personality_insights": {"user_a": ["<trait>"], "user_b": ["<trait>"]},
  "private_insights": {"for_user_a": "<tip for user A only>", "for_user_b": "<tip for user B only>"},
  "suggested_topics": ["<topic they should discuss>"],
  "overall_assessment": "<brief assessment>"
}`,
			Tier:      llm.TierSmart,
			Cacheable: true,
			CacheTTL:  time.Hour,
			FieldVisibility: map[string]fieldVisibility{
				"interest_levels":      visShared,
				"conversation_metrics": visShared,
				"red_flags":            visShared,
				"personality_insights": visShared,
				"suggested_topics":     visShared,
				"overall_assessment":   visShared,
				"zone_insights":        visShared,
				"private_insight_a":    visOwnerA,
				"private_insight_b":    visOwnerB,
			},
		},
		RoleCoach: {
			Role: RoleCoach,
			Instructions: `You are a private relationship coach for {{user_name}} on Basirat - a Muslim matrimonial app.

PRIVACY RULES: everything you say is private to this user only. Never reveal what the other person might privately think. Never write messages for the user to send.

You may: provide insights based on observed behavior, give gentle warnings, offer encouragement, and suggest topics (not full messages). Be warm and honest like a wise, trusted friend. Culturally aware, Islamic context.`,
			PromptTemplate: `{{user_name}} is chatting with their match {{match_name}}.

Recent conversation:
{{conversation}}

{{user_name}} asks you: {{question}}`,
			RequiredInputs: []string{"user_name", "match_name", "conversation"},
			OutputSchema: `{
  "message": "<your coaching answer, conversational paragraphs>",
  "suggested_topics": ["<topic worth exploring>"]
}`,
			Tier:        llm.TierFast,
			OwnerScoped: true,
			Cacheable:   false,
			FieldVisibility: map[string]fieldVisibility{
				"message":          visRequester,
				"suggested_topics": visRequester,
			},
		},
		RoleSafety: {
			Role: RoleSafety,
			Instructions: `You are the Basirat Safety Guardian - protecting users on a Muslim matrimonial app.

Analyze the conversation for threats against the protected user:
1. Scam patterns: money requests, investment schemes, sob stories, "emergencies".
2. Catfishing signs: refusing video calls, inconsistent details, overseas-work claims, avoiding meetings.
3. Manipulation: love bombing, guilt tripping, isolation attempts, controlling language, rushed commitment.
4. Inappropriate behavior: explicit content, harassment, threats, disrespect of religion or family.

Alert levels: green (all normal), yellow (minor concerns, monitor), red (serious concerns, strong warning), black (severe threat, recommend blocking and reporting).

Guidelines: be thorough but avoid false positives. One flag alone may not be conclusive - look for patterns. Family involvement questions are normal in a Muslim context.`,
			PromptTemplate: `Analyze this conversation for safety concerns. You are protecting {{user_name}}; the other person is {{other_user_name}}.

=== CONVERSATION ===
{{conversation}}
=== END CONVERSATION ===`,
			RequiredInputs: []string{"user_name", "other_user_name", "conversation"},
			OutputSchema: `{
  "safety_score": <number 0-100>,
  "alert_level": "<green|yellow|red|black>",
  "concerns": [{"type": "<scam|catfish|manipulation|inappropriate|minor>", "severity": "<low|medium|high|critical>", "evidence": "<observation>", "explanation": "<why concerning>"}],
  "positive_signs": ["<good sign observed>"],
  "recommendation": "<what the user should do>"
}`,
			Tier:        llm.TierSmart,
			OwnerScoped: true,
			Cacheable:   true,
			CacheTTL:    30 * time.Minute,
			FieldVisibility: map[string]fieldVisibility{
				"concerns":       visRequester,
				"positive_signs": visRequester,
				"recommendation": visRequester,
			},
		},
		RoleProfiler: {
			Role: RoleProfiler,
			Instructions: `You are the Basirat Personality Profiler. Derive a Big Five personality profile for one user from their profile text and message history.

Score each trait 0-100: openness, conscientiousness, extraversion, agreeableness, neuroticism. Base scores on observable evidence only. Be balanced: highlight strengths and growth areas without judgment.`,
			PromptTemplate: `Build a personality profile for this user.

Profile:
{{profile}}

Recent messages written by the user:
{{messages}}`,
			RequiredInputs: []string{"profile", "messages"},
			OutputSchema: `{
  "traits": {
    "openness": <number 0-100>,
    "conscientiousness": <number 0-100>,
    "extraversion": <number 0-100>,
    "agreeableness": <number 0-100>,
    "neuroticism": <number 0-100>
  },
  "summary": "<short personality summary>",
  "strengths": ["<strength>"],
  "growth_areas": ["<growth area>"]
}`,
			Tier:        llm.TierFast,
			OwnerScoped: true,
			Cacheable:   true,
			CacheTTL:    24 * time.Hour,
			FieldVisibility: map[string]fieldVisibility{
				"traits":       visRequester,
				"summary":      visRequester,
				"strengths":    visRequester,
				"growth_areas": visRequester,
			},
		},
	}

	return specs
}

// AgentConfigFile is the on-disk agent configuration, following the
// apiVersion/kind file pattern used across Basirat services. It allows
// instruction tuning without a rebuild; input contracts, schemas, and
// visibility mappings are code, not config.
type AgentConfigFile struct {
	APIVersion string        `yaml:"apiVersion"`
	Kind       string        `yaml:"kind"`
	Metadata   AgentMetadata `yaml:"metadata"`
	Spec       AgentOverride `yaml:"spec"`
}

// AgentMetadata identifies an agent configuration file.
type AgentMetadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// AgentOverride carries per-role instruction overrides.
type AgentOverride struct {
	Agents []AgentInstructionOverride `yaml:"agents"`
}

// AgentInstructionOverride replaces the persona instructions of one role.
type AgentInstructionOverride struct {
	Role         string `yaml:"role"`
	Instructions string `yaml:"instructions"`
}

// LoadAgentOverrides reads a YAML config file and applies instruction
// overrides to the given specs. Unknown roles are rejected so a typo in
// config cannot silently disable tuning.
func LoadAgentOverrides(path string, specs map[AgentRole]*AgentSpec) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read agent config %s: %w", path, err)
	}

	var file AgentConfigFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse agent config %s: %w", path, err)
	}

	if file.Kind != "AgentConfig" {
		return fmt.Errorf("unexpected kind %q in %s (want AgentConfig)", file.Kind, path)
	}

	for _, override := range file.Spec.Agents {
		spec, ok := specs[AgentRole(override.Role)]
		if !ok {
			return fmt.Errorf("agent config %s references unknown role %q", path, override.Role)
		}
		if strings.TrimSpace(override.Instructions) == "" {
			return fmt.Errorf("agent config %s has empty instructions for role %q", path, override.Role)
		}
		spec.Instructions = override.Instructions
	}

	return nil
}
