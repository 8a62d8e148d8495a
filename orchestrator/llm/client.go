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

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultTimeout bounds one provider round trip. Interactive,
	// chat-adjacent use: seconds, not minutes.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxTokens is the default completion budget.
	DefaultMaxTokens = 1024

	// DefaultTemperature is used when the request leaves it unset.
	DefaultTemperature = 0.7
)

// Client is the uniform interface to a text-completion provider.
// Implementations must be safe for concurrent use.
type Client interface {
	// Name returns the provider name used in errors, logs, and metrics.
	Name() string

	// Complete generates a completion for the given request. The
	// context carries cancellation and the per-call deadline.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// QuotaRemaining reports unused request budget in the current
	// minute and day windows (-1 = unlimited).
	QuotaRemaining() (minute, day int)
}

// Doer is an interface for HTTP client operations (enables testing).
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config contains configuration for an OpenAI-compatible provider client.
type Config struct {
	Name           string        // Required: provider name (e.g. "groq")
	BaseURL        string        // Required: API base URL (e.g. "https://api.groq.com/openai/v1")
	APIKey         string        // Required: bearer token
	FastModel      string        // Required: model used for TierFast
	SmartModel     string        // Required: model used for TierSmart
	QuotaPerMinute int           // Optional: request budget per minute (0 = unlimited)
	QuotaPerDay    int           // Optional: request budget per day (0 = unlimited)
	Timeout        time.Duration // Optional: per-call deadline (default 30s)
}

// HTTPClient implements Client against an OpenAI-compatible
// chat-completions endpoint. Groq and Cerebras both expose this API
// shape, so a single implementation covers both provider slots.
type HTTPClient struct {
	name       string
	baseURL    string
	apiKey     string
	fastModel  string
	smartModel string
	timeout    time.Duration
	client     Doer
	quota      *quotaTracker
}

// NewHTTPClient creates a provider client from config.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider API key is required")
	}
	if cfg.FastModel == "" || cfg.SmartModel == "" {
		return nil, fmt.Errorf("both fast and smart models are required")
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &HTTPClient{
		name:       cfg.Name,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		fastModel:  cfg.FastModel,
		smartModel: cfg.SmartModel,
		timeout:    cfg.Timeout,
		client:     &http.Client{Timeout: cfg.Timeout},
		quota:      newQuotaTracker(cfg.QuotaPerMinute, cfg.QuotaPerDay),
	}, nil
}

// SetDoer replaces the underlying HTTP client (tests only).
func (c *HTTPClient) SetDoer(d Doer) {
	c.client = d
}

// Name returns the provider name.
func (c *HTTPClient) Name() string {
	return c.name
}

// QuotaRemaining reports unused request budget.
func (c *HTTPClient) QuotaRemaining() (minute, day int) {
	return c.quota.remaining()
}

// Model returns the concrete model name for a tier.
func (c *HTTPClient) Model(tier ModelTier) string {
	if tier == TierSmart {
		return c.smartModel
	}
	return c.fastModel
}

// chatRequest is the OpenAI-compatible request body.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the OpenAI-compatible response body.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// chatError is the OpenAI-compatible error body.
type chatError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete generates a completion for the given request.
func (c *HTTPClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	// Predictive quota check: fail fast before spending a network call.
	if !c.quota.reserve() {
		return nil, &ProviderError{
			Provider: c.name,
			Code:     ErrCodeRateLimited,
			Message:  "local quota window exhausted",
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	temperature := req.Temperature
	if temperature < 0 {
		temperature = DefaultTemperature
	}

	apiReq := chatRequest{
		Model:       c.Model(req.Tier),
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}
	if req.SystemPrompt != "" {
		apiReq.Messages = append(apiReq.Messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	apiReq.Messages = append(apiReq.Messages, chatMessage{Role: "user", Content: req.Prompt})

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		c.quota.release()
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	// Every call carries a bounded deadline even if the caller's
	// context has none.
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		c.quota.release()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		c.quota.release()
		// Timeouts and transport errors are indistinguishable from an
		// unreachable provider for fallback purposes.
		return nil, &ProviderError{
			Provider: c.name,
			Code:     ErrCodeProviderUnavailable,
			Message:  "request failed",
			Cause:    err,
		}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return nil, c.parseAPIError(resp.StatusCode, body)
	}

	var apiResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, &ProviderError{
			Provider: c.name,
			Code:     ErrCodeInvalidResponse,
			Message:  "failed to decode response body",
			Cause:    err,
		}
	}

	if len(apiResp.Choices) == 0 || strings.TrimSpace(apiResp.Choices[0].Message.Content) == "" {
		return nil, &ProviderError{
			Provider: c.name,
			Code:     ErrCodeInvalidResponse,
			Message:  "provider returned empty completion",
		}
	}

	model := apiResp.Model
	if model == "" {
		model = c.Model(req.Tier)
	}

	return &CompletionResponse{
		Content: apiResp.Choices[0].Message.Content,
		Model:   model,
		Usage: UsageStats{
			PromptTokens:     apiResp.Usage.PromptTokens,
			CompletionTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:      apiResp.Usage.TotalTokens,
		},
		Latency: time.Since(start),
	}, nil
}

// parseAPIError maps a non-200 provider reply onto the error taxonomy.
func (c *HTTPClient) parseAPIError(statusCode int, body []byte) *ProviderError {
	message := "provider request failed"
	var apiErr chatError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}

	code := ErrCodeProviderUnavailable
	if statusCode == http.StatusTooManyRequests {
		code = ErrCodeRateLimited
	}

	return &ProviderError{
		Provider:   c.name,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}
