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
	"time"
)

// AgentRole identifies one of the five specialized reasoning agents.
type AgentRole string

const (
	// RoleMatchmaker analyzes two profiles for marriage compatibility.
	RoleMatchmaker AgentRole = "matchmaker"

	// RoleAnalyzer observes a conversation and derives relationship
	// signals. It never writes messages.
	RoleAnalyzer AgentRole = "analyzer"

	// RoleCoach answers one user's private coaching question.
	RoleCoach AgentRole = "coach"

	// RoleSafety screens a conversation for scams, manipulation, and
	// inappropriate behavior on behalf of one user.
	RoleSafety AgentRole = "safety"

	// RoleProfiler derives a Big Five personality profile for one user.
	RoleProfiler AgentRole = "profiler"
)

// AllRoles lists every agent role, in routing order.
var AllRoles = []AgentRole{RoleMatchmaker, RoleAnalyzer, RoleCoach, RoleSafety, RoleProfiler}

// Zone is a categorical bucket derived from a numeric score plus
// override rules.
type Zone string

const (
	ZoneGreen  Zone = "green"
	ZoneYellow Zone = "yellow"
	ZoneRed    Zone = "red"

	// ZoneBlack is a safety-only zone: severe threat, recommend
	// blocking and reporting.
	ZoneBlack Zone = "black"
)

// Visibility classifies who may see an insight field.
type Visibility string

const (
	// VisibilityShared means both match participants may see the field.
	VisibilityShared Visibility = "shared"

	// VisibilityOwnerOnly means only the labeled owner may see the field.
	VisibilityOwnerOnly Visibility = "owner_only"
)

// PrivacyLabel is attached to every field of a StructuredInsight.
// A field without a valid label is a defect and fails closed.
type PrivacyLabel struct {
	Visibility Visibility `json:"visibility"`
	OwnerID    string     `json:"owner_id,omitempty"`
}

// Field is one named sub-result of an insight together with its label.
type Field struct {
	Value any          `json:"value"`
	Label PrivacyLabel `json:"label"`
}

// StructuredInsight is the validated, schema-conformant result of one
// agent invocation. Instances are immutable once built; recomputation
// produces a new value with a fresh timestamp.
type StructuredInsight struct {
	// Role is the agent that produced this insight.
	Role AgentRole `json:"role"`

	// MatchID identifies the match the insight belongs to.
	MatchID string `json:"match_id"`

	// OwnerID is set for insights scoped to one participant (Coach,
	// Safety, Profiler). Empty for match-shared insights.
	OwnerID string `json:"owner_id,omitempty"`

	// Zone is the categorical bucket, where applicable.
	Zone Zone `json:"zone,omitempty"`

	// Score is the authoritative 0-100 value, where applicable.
	// Computed by the scoring engine, never taken from the agent.
	Score *float64 `json:"score,omitempty"`

	// Fields maps named sub-results to labeled values.
	Fields map[string]Field `json:"fields"`

	// ComputedAt is when this insight was produced.
	ComputedAt time.Time `json:"computed_at"`
}

// AnalysisRequest is one typed request into the orchestrator.
// Constructed per call; never persisted directly.
type AnalysisRequest struct {
	// Role selects the agent.
	Role AgentRole `json:"role"`

	// MatchID identifies the match under analysis.
	MatchID string `json:"match_id"`

	// RequestingUserID is the identity the response is addressed to.
	RequestingUserID string `json:"requesting_user_id"`

	// UserAID and UserBID are the match participants. Required so
	// per-user fields can be labeled with their owner.
	UserAID string `json:"user_a_id"`
	UserBID string `json:"user_b_id"`

	// Question is optional free text (Coach only).
	Question string `json:"question,omitempty"`

	// Refresh forces a fresh analysis even when a stored insight is
	// still live. The result replaces the stored one.
	Refresh bool `json:"refresh,omitempty"`

	// Context carries the rendered payloads the agent needs: profile
	// summaries, conversation transcripts, message-derived signals.
	// The CRUD backend owns the raw records; only derived text enters
	// this core.
	Context map[string]string `json:"context,omitempty"`
}

// Participant reports whether userID is one of the match participants.
func (r *AnalysisRequest) Participant(userID string) bool {
	return userID != "" && (userID == r.UserAID || userID == r.UserBID)
}

// Error kinds crossing the orchestrator boundary. Provider-level codes
// never appear here.
const (
	// KindInvalidRequest is a caller error: missing or malformed input.
	KindInvalidRequest = "invalid_request"

	// KindUnknownRole means no agent spec exists for the requested role.
	KindUnknownRole = "unknown_role"

	// KindAnalysisUnavailable means both providers failed; retry later.
	KindAnalysisUnavailable = "analysis_unavailable"

	// KindMalformedAgentOutput means the agent output failed schema
	// validation even after one reformat retry.
	KindMalformedAgentOutput = "malformed_agent_output"

	// KindPrivacyViolationPrevented is an internal assertion failure:
	// a field lacked a privacy label and the response was withheld.
	KindPrivacyViolationPrevented = "privacy_violation_prevented"
)

// InsightError is the caller-facing error type for analysis operations.
type InsightError struct {
	// Kind is one of the Kind* constants.
	Kind string `json:"kind"`

	// Message is safe to show to API clients: it never contains raw
	// provider error text.
	Message string `json:"message"`

	// Cause is the underlying error, for logs only.
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *InsightError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error.
func (e *InsightError) Unwrap() error {
	return e.Cause
}

// NewInsightError creates an InsightError with the given kind.
func NewInsightError(kind, message string) *InsightError {
	return &InsightError{Kind: kind, Message: message}
}
