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

// Package llm provides a uniform client interface to OpenAI-compatible
// text-completion providers, per-provider quota tracking, and a
// primary/backup failover router.
package llm

import (
	"errors"
	"fmt"
	"time"
)

// ModelTier selects between a provider's fast and smart models.
// The orchestrator picks the tier per agent role; the client maps the
// tier to a concrete model name.
type ModelTier string

const (
	// TierFast maps to the provider's low-latency model.
	TierFast ModelTier = "fast"

	// TierSmart maps to the provider's higher-quality model.
	TierSmart ModelTier = "smart"
)

// CompletionRequest encapsulates the parameters for a completion call.
type CompletionRequest struct {
	// Prompt is the user message text.
	Prompt string `json:"prompt"`

	// SystemPrompt sets the agent persona and output contract.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Tier selects the model class. Defaults to TierFast when empty.
	Tier ModelTier `json:"tier,omitempty"`

	// MaxTokens limits the response length. 0 uses the client default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Temperature controls randomness. Negative means unset.
	Temperature float64 `json:"temperature,omitempty"`
}

// CompletionResponse contains the result of a completion call.
type CompletionResponse struct {
	// Content is the generated text.
	Content string `json:"content"`

	// Model is the concrete model that produced the content.
	Model string `json:"model"`

	// Usage contains token usage statistics.
	Usage UsageStats `json:"usage"`

	// Latency is the round-trip time for the call.
	Latency time.Duration `json:"latency"`
}

// UsageStats tracks token usage for quota accounting and monitoring.
type UsageStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Error codes returned by provider clients.
const (
	// ErrCodeRateLimited indicates provider throttling or predicted
	// local quota exhaustion.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeProviderUnavailable indicates transport, auth, timeout,
	// or server-side failures.
	ErrCodeProviderUnavailable = "provider_unavailable"

	// ErrCodeInvalidResponse indicates the provider returned empty or
	// undecodable content.
	ErrCodeInvalidResponse = "invalid_response"
)

// ProviderError represents an error from a provider client.
type ProviderError struct {
	// Provider is the name of the provider that returned the error.
	Provider string `json:"provider"`

	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// StatusCode is the HTTP status code (if applicable).
	StatusCode int `json:"status_code,omitempty"`

	// Cause is the underlying error (if any).
	Cause error `json:"-"`
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, code, message string) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Code:     code,
		Message:  message,
	}
}

// IsFailoverable reports whether an error should trigger a backup
// attempt. Rate limiting, unavailability, and malformed upstream
// replies are all provider faults; the caller's request is unchanged,
// so an independent provider may still serve it.
func IsFailoverable(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Code {
	case ErrCodeRateLimited, ErrCodeProviderUnavailable, ErrCodeInvalidResponse:
		return true
	}
	return false
}

// FailoverError combines the failure causes of both provider slots.
type FailoverError struct {
	PrimaryProvider string
	PrimaryErr      error
	BackupProvider  string
	BackupErr       error
}

// Error implements the error interface, naming both providers.
func (e *FailoverError) Error() string {
	return fmt.Sprintf("all providers failed: %s: %v; %s: %v",
		e.PrimaryProvider, e.PrimaryErr, e.BackupProvider, e.BackupErr)
}

// Unwrap returns both underlying errors for errors.Is/As matching.
func (e *FailoverError) Unwrap() []error {
	return []error{e.PrimaryErr, e.BackupErr}
}
