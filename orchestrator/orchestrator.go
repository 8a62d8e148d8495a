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
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"basirat/insight/orchestrator/llm"
	"basirat/insight/shared/logger"
)

// Dispatcher sends one completion request through the provider chain.
// *llm.Router is the production implementation.
type Dispatcher interface {
	Dispatch(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, *llm.RouteInfo, error)
}

// Orchestrator runs the full analysis pipeline: validate, consult the
// store, build the prompt, dispatch, validate output (with one reformat
// retry), score, persist, and partition for the requesting viewer.
type Orchestrator struct {
	specs   map[AgentRole]*AgentSpec
	router  Dispatcher
	store   Store
	metrics *metricsRegistry
	logger  *logger.Logger

	// now is injectable for deterministic timestamps in tests.
	now func() time.Time
}

// Option configures the Orchestrator.
type Option func(*Orchestrator)

// WithStore sets the insight store. Without one, nothing is cached.
func WithStore(s Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithLogger sets the structured logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithAgentSpecs replaces the built-in agent definitions.
func WithAgentSpecs(specs map[AgentRole]*AgentSpec) Option {
	return func(o *Orchestrator) { o.specs = specs }
}

// New creates an Orchestrator over the given dispatcher.
func New(router Dispatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		specs:   defaultAgentSpecs(),
		router:  router,
		metrics: newMetricsRegistry(),
		logger:  logger.New("orchestrator"),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Specs exposes the active agent definitions, keyed by role.
func (o *Orchestrator) Specs() map[AgentRole]*AgentSpec {
	return o.specs
}

// Metrics returns the JSON counters snapshot.
func (o *Orchestrator) Metrics() MetricsSnapshot {
	return o.metrics.snapshot()
}

// validate checks the request shape against the spec's input contract.
func (o *Orchestrator) validate(spec *AgentSpec, req *AnalysisRequest) error {
	if req.MatchID == "" {
		return NewInsightError(KindInvalidRequest, "match_id is required")
	}
	if req.UserAID == "" || req.UserBID == "" || req.UserAID == req.UserBID {
		return NewInsightError(KindInvalidRequest, "two distinct match participants are required")
	}
	if req.RequestingUserID == "" {
		return NewInsightError(KindInvalidRequest, "requesting_user_id is required")
	}
	if !req.Participant(req.RequestingUserID) {
		return NewInsightError(KindInvalidRequest, "requesting user is not a participant of this match")
	}
	if spec.Role == RoleCoach && strings.TrimSpace(req.Question) == "" {
		return NewInsightError(KindInvalidRequest, "coach requests need a question")
	}

	var missing []string
	for _, key := range spec.RequiredInputs {
		if strings.TrimSpace(req.Context[key]) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return NewInsightError(KindInvalidRequest,
			fmt.Sprintf("missing required context: %s", strings.Join(missing, ", ")))
	}
	return nil
}

// storeOwner returns the store key owner for this role and request.
func storeOwner(spec *AgentSpec, req *AnalysisRequest) string {
	if spec.OwnerScoped {
		return req.RequestingUserID
	}
	return ""
}

// Analyze runs one analysis end to end and returns the insight already
// filtered for the requesting user.
func (o *Orchestrator) Analyze(ctx context.Context, req *AnalysisRequest) (*FilteredInsight, error) {
	start := o.now()
	requestID := uuid.New().String()

	spec, ok := o.specs[req.Role]
	if !ok {
		o.metrics.recordAnalysis(req.Role, "unknown_role", o.now().Sub(start))
		return nil, NewInsightError(KindUnknownRole, fmt.Sprintf("no agent for role %q", req.Role))
	}

	if err := o.validate(spec, req); err != nil {
		o.metrics.recordAnalysis(req.Role, "invalid_request", o.now().Sub(start))
		return nil, err
	}

	// A cached insight skips the provider entirely; it still goes
	// through the partition below.
	if spec.Cacheable && o.store != nil && !req.Refresh {
		cached, err := o.store.Load(ctx, req.MatchID, spec.Role, storeOwner(spec, req))
		if err == nil {
			o.metrics.recordCacheHit(spec.Role)
			o.logger.Debug(req.MatchID, requestID, "Serving cached insight",
				map[string]interface{}{"role": string(spec.Role)})
			return o.finish(req, requestID, cached, start)
		}
		if err != ErrInsightNotFound {
			// Store trouble degrades to a fresh dispatch.
			o.logger.Warn(req.MatchID, requestID, "Insight store read failed",
				map[string]interface{}{"error": err.Error()})
		}
	}

	prompt, err := BuildPrompt(spec, req)
	if err != nil {
		o.metrics.recordAnalysis(req.Role, "invalid_request", o.now().Sub(start))
		return nil, &InsightError{Kind: KindInvalidRequest, Message: "request context does not satisfy the agent template", Cause: err}
	}

	insight, err := o.dispatchAndParse(ctx, spec, req, requestID, prompt)
	if err != nil {
		var kind string
		if ie, ok := err.(*InsightError); ok {
			kind = ie.Kind
		}
		o.metrics.recordAnalysis(req.Role, kind, o.now().Sub(start))
		return nil, err
	}

	if spec.Cacheable && o.store != nil {
		if err := o.store.Save(ctx, insight, spec.CacheTTL); err != nil {
			// The fresh insight is still good; only caching failed.
			o.logger.Warn(req.MatchID, requestID, "Insight store write failed",
				map[string]interface{}{"error": err.Error()})
		}
	}

	return o.finish(req, requestID, insight, start)
}

// dispatchAndParse sends the prompt and validates the completion,
// retrying exactly once with a reformat instruction when the output
// fails schema validation. Provider failures are never retried here;
// failover already happened inside the dispatcher.
func (o *Orchestrator) dispatchAndParse(ctx context.Context, spec *AgentSpec, req *AnalysisRequest, requestID, prompt string) (*StructuredInsight, error) {
	completionReq := llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: spec.Instructions,
		Tier:         spec.Tier,
	}

	var parseErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt == 1 {
			completionReq.Prompt = prompt + reformatInstruction
			o.metrics.recordReformatRetry(spec.Role)
			o.logger.Warn(req.MatchID, requestID, "Agent output malformed, retrying with reformat instruction",
				map[string]interface{}{"role": string(spec.Role), "error": parseErr.Error()})
		}

		resp, route, err := o.router.Dispatch(ctx, completionReq)
		if err != nil {
			o.logger.ErrorWithCode(req.MatchID, requestID, "All providers failed", 0, err,
				map[string]interface{}{"role": string(spec.Role)})
			return nil, &InsightError{
				Kind:    KindAnalysisUnavailable,
				Message: "analysis is temporarily unavailable, try again later",
				Cause:   err,
			}
		}
		if route.FailedOver {
			o.metrics.recordFailover()
		}

		insight, err := parseAgentOutput(spec, req, resp.Content, o.now())
		if err == nil {
			o.logger.InfoWithDuration(req.MatchID, requestID, "Analysis complete",
				float64(route.Latency.Milliseconds()), map[string]interface{}{
					"role":     string(spec.Role),
					"provider": route.Provider,
					"model":    route.Model,
					"retried":  attempt == 1,
				})
			return insight, nil
		}
		parseErr = err
	}

	return nil, &InsightError{
		Kind:    KindMalformedAgentOutput,
		Message: "the agent returned output that could not be validated",
		Cause:   parseErr,
	}
}

// finish partitions the insight for the requesting viewer and records
// the outcome.
func (o *Orchestrator) finish(req *AnalysisRequest, requestID string, insight *StructuredInsight, start time.Time) (*FilteredInsight, error) {
	filtered, err := FilterInsight(insight, req.RequestingUserID)
	if err != nil {
		o.metrics.recordAnalysis(req.Role, KindPrivacyViolationPrevented, o.now().Sub(start))
		o.logger.ErrorWithCode(req.MatchID, requestID, "Privacy partition withheld a response", 0, err,
			map[string]interface{}{"role": string(req.Role)})
		return nil, err
	}
	o.metrics.recordAnalysis(req.Role, "success", o.now().Sub(start))
	return filtered, nil
}
