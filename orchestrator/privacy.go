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

import "fmt"

// FilteredInsight is the per-viewer projection of a StructuredInsight.
// Omitted fields leave no trace: no key, no placeholder, no count.
type FilteredInsight struct {
	Role       AgentRole      `json:"role"`
	MatchID    string         `json:"match_id"`
	Zone       Zone           `json:"zone,omitempty"`
	Score      *float64       `json:"score,omitempty"`
	Fields     map[string]any `json:"fields"`
	ComputedAt string         `json:"computed_at"`
}

// FilterInsight projects an insight for one viewer. Every field must
// carry a valid privacy label; an unlabeled or malformed field aborts
// the whole projection rather than leak. Owner-only fields belonging to
// another user are silently omitted.
func FilterInsight(insight *StructuredInsight, viewerUserID string) (*FilteredInsight, error) {
	if insight == nil {
		return nil, NewInsightError(KindInvalidRequest, "no insight to filter")
	}
	if viewerUserID == "" {
		return nil, NewInsightError(KindInvalidRequest, "viewer identity required")
	}

	out := &FilteredInsight{
		Role:       insight.Role,
		MatchID:    insight.MatchID,
		Zone:       insight.Zone,
		Score:      insight.Score,
		Fields:     make(map[string]any, len(insight.Fields)),
		ComputedAt: insight.ComputedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}

	for name, field := range insight.Fields {
		switch field.Label.Visibility {
		case VisibilityShared:
			out.Fields[name] = field.Value
		case VisibilityOwnerOnly:
			if field.Label.OwnerID == "" {
				return nil, &InsightError{
					Kind:    KindPrivacyViolationPrevented,
					Message: "response withheld",
					Cause:   fmt.Errorf("field %q is owner_only with no owner", name),
				}
			}
			if field.Label.OwnerID == viewerUserID {
				out.Fields[name] = field.Value
			}
		default:
			// Fail closed: a field we cannot classify is a field we
			// do not release.
			return nil, &InsightError{
				Kind:    KindPrivacyViolationPrevented,
				Message: "response withheld",
				Cause:   fmt.Errorf("field %q has invalid visibility %q", name, field.Label.Visibility),
			}
		}
	}

	return out, nil
}
