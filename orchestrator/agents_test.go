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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"basirat/insight/orchestrator/llm"
)

func TestDefaultAgentSpecs(t *testing.T) {
	specs := defaultAgentSpecs()

	if len(specs) != len(AllRoles) {
		t.Fatalf("expected %d agent specs, got %d", len(AllRoles), len(specs))
	}
	for _, role := range AllRoles {
		spec, ok := specs[role]
		if !ok {
			t.Fatalf("missing spec for role %s", role)
		}
		if spec.Instructions == "" || spec.PromptTemplate == "" || spec.OutputSchema == "" {
			t.Errorf("role %s has incomplete definition", role)
		}
		if len(spec.FieldVisibility) == 0 {
			t.Errorf("role %s declares no field visibility", role)
		}
	}

	// Safety and Analyzer carry the stakes, so they get the smart tier.
	if specs[RoleSafety].Tier != llm.TierSmart || specs[RoleAnalyzer].Tier != llm.TierSmart {
		t.Error("safety and analyzer should run on the smart tier")
	}
	if specs[RoleCoach].Cacheable {
		t.Error("coach answers are question-specific and must not be cached")
	}
	for _, role := range []AgentRole{RoleCoach, RoleSafety, RoleProfiler} {
		if !specs[role].OwnerScoped {
			t.Errorf("role %s should be owner-scoped", role)
		}
	}
}

func TestBuildPrompt(t *testing.T) {
	specs := defaultAgentSpecs()
	req := &AnalysisRequest{
		Role:             RoleMatchmaker,
		MatchID:          "match-1",
		RequestingUserID: "alice",
		UserAID:          "alice",
		UserBID:          "bob",
		Context: map[string]string{
			"profile_a": "Age 28, software engineer, practicing",
			"profile_b": "Age 27, teacher, practicing",
		},
	}

	prompt, err := BuildPrompt(specs[RoleMatchmaker], req)
	if err != nil {
		t.Fatalf("BuildPrompt failed: %v", err)
	}

	if !strings.Contains(prompt, "Age 28, software engineer, practicing") {
		t.Error("profile_a not substituted")
	}
	if !strings.Contains(prompt, "Age 27, teacher, practicing") {
		t.Error("profile_b not substituted")
	}
	if strings.Contains(prompt, "{{") {
		t.Errorf("unresolved placeholder in prompt: %s", prompt)
	}
	if !strings.Contains(prompt, "compatibility_score") {
		t.Error("output schema must be appended to the prompt")
	}
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	specs := defaultAgentSpecs()
	req := &AnalysisRequest{
		Context: map[string]string{"profile_a": "a", "profile_b": "b"},
	}

	first, err := BuildPrompt(specs[RoleMatchmaker], req)
	if err != nil {
		t.Fatalf("BuildPrompt failed: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := BuildPrompt(specs[RoleMatchmaker], req)
		if err != nil || again != first {
			t.Fatal("equal spec and request must produce equal prompts")
		}
	}
}

func TestBuildPrompt_QuestionSubstitution(t *testing.T) {
	specs := defaultAgentSpecs()
	req := &AnalysisRequest{
		Question: "Should I ask about her career plans?",
		Context: map[string]string{
			"user_name":    "Ahmed",
			"match_name":   "Fatima",
			"conversation": "transcript here",
		},
	}

	prompt, err := BuildPrompt(specs[RoleCoach], req)
	if err != nil {
		t.Fatalf("BuildPrompt failed: %v", err)
	}
	if !strings.Contains(prompt, "Should I ask about her career plans?") {
		t.Error("question not substituted into coach prompt")
	}
}

func TestBuildPrompt_MissingContext(t *testing.T) {
	specs := defaultAgentSpecs()
	req := &AnalysisRequest{
		Context: map[string]string{"profile_a": "only one profile"},
	}

	_, err := BuildPrompt(specs[RoleMatchmaker], req)
	if err == nil {
		t.Fatal("missing template input must fail")
	}
	if !strings.Contains(err.Error(), "profile_b") {
		t.Errorf("error should name the missing field: %v", err)
	}
}

func TestLoadAgentOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agents.yaml")

	content := `apiVersion: basirat.dev/v1
kind: AgentConfig
metadata:
  name: tuned-agents
spec:
  agents:
    - role: coach
      instructions: "You are a concise coach."
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	specs := defaultAgentSpecs()
	if err := LoadAgentOverrides(path, specs); err != nil {
		t.Fatalf("LoadAgentOverrides failed: %v", err)
	}
	if specs[RoleCoach].Instructions != "You are a concise coach." {
		t.Errorf("override not applied: %q", specs[RoleCoach].Instructions)
	}
	// Other roles untouched.
	if !strings.Contains(specs[RoleSafety].Instructions, "Safety Guardian") {
		t.Error("unrelated roles must keep their instructions")
	}
}

func TestLoadAgentOverrides_Rejections(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"unknown role", "kind: AgentConfig\nspec:\n  agents:\n    - role: astrologer\n      instructions: x\n"},
		{"wrong kind", "kind: ProviderConfig\nspec: {}\n"},
		{"empty instructions", "kind: AgentConfig\nspec:\n  agents:\n    - role: coach\n      instructions: \"  \"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}
			if err := LoadAgentOverrides(path, defaultAgentSpecs()); err == nil {
				t.Error("expected rejection")
			}
		})
	}
}
