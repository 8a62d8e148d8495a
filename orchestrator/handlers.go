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
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"basirat/insight/orchestrator/llm"
	"basirat/insight/shared/logger"
)

// Server exposes the orchestrator over HTTP.
type Server struct {
	orch    *Orchestrator
	router  *llm.Router
	storage llm.Storage
	logger  *logger.Logger
}

// NewServer creates the HTTP server. storage may be nil, in which case
// provider swaps are not persisted.
func NewServer(orch *Orchestrator, router *llm.Router, storage llm.Storage) *Server {
	return &Server{
		orch:    orch,
		router:  router,
		storage: storage,
		logger:  logger.New("api"),
	}
}

// Routes registers all endpoints on a new mux router.
func (s *Server) Routes() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/ai/{role}/{match_id}", s.handleAnalyze).Methods("POST")
	api.HandleFunc("/providers/status", s.handleProviderStatus).Methods("GET")
	api.HandleFunc("/providers/{slot}", s.handleProviderSwap).Methods("PUT")

	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	r.Handle("/prometheus", promhttp.Handler()).Methods("GET")

	return r
}

// errorBody is the wire shape of every error response.
type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusForKind maps orchestrator error kinds to HTTP status codes.
func statusForKind(kind string) int {
	switch kind {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindUnknownRole:
		return http.StatusNotFound
	case KindAnalysisUnavailable:
		return http.StatusServiceUnavailable
	case KindMalformedAgentOutput:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ie *InsightError
	if !errors.As(err, &ie) {
		ie = NewInsightError("internal", "internal error")
	}
	status := statusForKind(ie.Kind)
	s.logger.ErrorWithCode(mux.Vars(r)["match_id"], "", "Request failed", status, err, nil)
	writeJSON(w, status, errorBody{Kind: ie.Kind, Message: ie.Message})
}

// analyzeBody is the request payload for analysis calls. The viewer
// identity travels in the X-User-ID header, not the body, so gateway
// auth middleware can overwrite it.
type analyzeBody struct {
	UserAID  string            `json:"user_a_id"`
	UserBID  string            `json:"user_b_id"`
	Question string            `json:"question,omitempty"`
	Refresh  bool              `json:"refresh,omitempty"`
	Context  map[string]string `json:"context,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var body analyzeBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, NewInsightError(KindInvalidRequest, "request body must be valid JSON"))
		return
	}

	req := &AnalysisRequest{
		Role:             AgentRole(vars["role"]),
		MatchID:          vars["match_id"],
		RequestingUserID: r.Header.Get("X-User-ID"),
		UserAID:          body.UserAID,
		UserBID:          body.UserBID,
		Question:         body.Question,
		Refresh:          body.Refresh,
		Context:          body.Context,
	}

	insight, err := s.orch.Analyze(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, insight)
}

func (s *Server) handleProviderStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": s.router.Status()})
}

// providerSwapBody configures a replacement provider for one slot.
// Credentials arrive as an env var name, never as the key itself.
type providerSwapBody struct {
	Name           string `json:"name"`
	Endpoint       string `json:"endpoint"`
	CredentialEnv  string `json:"credential_env"`
	FastModel      string `json:"fast_model"`
	SmartModel     string `json:"smart_model"`
	QuotaPerMinute int    `json:"quota_per_minute"`
	QuotaPerDay    int    `json:"quota_per_day"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

func (s *Server) handleProviderSwap(w http.ResponseWriter, r *http.Request) {
	slot := llm.Slot(mux.Vars(r)["slot"])

	var body providerSwapBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, NewInsightError(KindInvalidRequest, "request body must be valid JSON"))
		return
	}

	cfg := &llm.ProviderConfig{
		Slot:           slot,
		Name:           body.Name,
		Endpoint:       body.Endpoint,
		CredentialEnv:  body.CredentialEnv,
		FastModel:      body.FastModel,
		SmartModel:     body.SmartModel,
		QuotaPerMinute: body.QuotaPerMinute,
		QuotaPerDay:    body.QuotaPerDay,
		TimeoutSeconds: body.TimeoutSeconds,
	}
	if err := cfg.Validate(); err != nil {
		s.writeError(w, r, &InsightError{Kind: KindInvalidRequest, Message: err.Error(), Cause: err})
		return
	}

	apiKey := os.Getenv(cfg.CredentialEnv)
	if apiKey == "" {
		s.writeError(w, r, NewInsightError(KindInvalidRequest, "credential env var is not set"))
		return
	}

	client, err := llm.NewHTTPClient(llm.Config{
		Name:           cfg.Name,
		BaseURL:        cfg.Endpoint,
		APIKey:         apiKey,
		FastModel:      cfg.FastModel,
		SmartModel:     cfg.SmartModel,
		QuotaPerMinute: cfg.QuotaPerMinute,
		QuotaPerDay:    cfg.QuotaPerDay,
		Timeout:        cfg.Timeout(),
	})
	if err != nil {
		s.writeError(w, r, &InsightError{Kind: KindInvalidRequest, Message: err.Error(), Cause: err})
		return
	}

	if err := s.router.Swap(slot, client); err != nil {
		s.writeError(w, r, &InsightError{Kind: KindInvalidRequest, Message: err.Error(), Cause: err})
		return
	}

	if s.storage != nil {
		if err := s.storage.SaveConfig(r.Context(), cfg); err != nil {
			// Swap already took effect; persistence failure only costs
			// durability across restarts.
			s.logger.Warn("", "", "Failed to persist provider config",
				map[string]interface{}{"slot": string(slot), "error": err.Error()})
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{"providers": s.router.Status()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   "insight-orchestrator",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Metrics())
}
