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

package logger

import (
	"bytes"
	"encoding/json"
	"log"
	"os"
	"strings"
	"testing"
)

// TestNew tests logger initialization
func TestNew(t *testing.T) {
	tests := []struct {
		name           string
		component      string
		instanceID     string
		expectedComp   string
		expectedInstID string
	}{
		{
			name:           "with instance ID set",
			component:      "test-component",
			instanceID:     "instance-123",
			expectedComp:   "test-component",
			expectedInstID: "instance-123",
		},
		{
			name:           "without instance ID",
			component:      "orchestrator",
			instanceID:     "",
			expectedComp:   "orchestrator",
			expectedInstID: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.instanceID != "" {
				t.Setenv("INSTANCE_ID", tt.instanceID)
			} else {
				t.Setenv("INSTANCE_ID", "")
			}

			logger := New(tt.component)

			if logger.Component != tt.expectedComp {
				t.Errorf("Expected component %s, got %s", tt.expectedComp, logger.Component)
			}

			if logger.InstanceID != tt.expectedInstID {
				t.Errorf("Expected instance ID %s, got %s", tt.expectedInstID, logger.InstanceID)
			}

			if logger.Container == "" {
				t.Error("Expected container to be set from hostname")
			}
		})
	}
}

// captureOutput captures log output during fn
func captureOutput(fn func()) string {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)
	fn()
	return buf.String()
}

func TestLogEntryFormat(t *testing.T) {
	logger := New("test")

	out := captureOutput(func() {
		logger.Info("match-1", "req-1", "hello", map[string]interface{}{"role": "safety"})
	})

	// Strip the log package's own prefix before the JSON body
	idx := strings.Index(out, "{")
	if idx < 0 {
		t.Fatalf("no JSON in log output: %q", out)
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(out[idx:])), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v", err)
	}

	if entry.Level != INFO {
		t.Errorf("Expected level INFO, got %s", entry.Level)
	}
	if entry.MatchID != "match-1" {
		t.Errorf("Expected match_id match-1, got %s", entry.MatchID)
	}
	if entry.RequestID != "req-1" {
		t.Errorf("Expected request_id req-1, got %s", entry.RequestID)
	}
	if entry.Message != "hello" {
		t.Errorf("Expected message hello, got %s", entry.Message)
	}
	if entry.Fields["role"] != "safety" {
		t.Errorf("Expected field role=safety, got %v", entry.Fields["role"])
	}
}

func TestErrorWithCode(t *testing.T) {
	logger := New("test")

	out := captureOutput(func() {
		logger.ErrorWithCode("match-2", "req-2", "analysis failed", 503, os.ErrDeadlineExceeded, nil)
	})

	idx := strings.Index(out, "{")
	if idx < 0 {
		t.Fatalf("no JSON in log output: %q", out)
	}

	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(out[idx:])), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v", err)
	}

	if entry.Level != ERROR {
		t.Errorf("Expected level ERROR, got %s", entry.Level)
	}
	if entry.Fields["status_code"] != float64(503) {
		t.Errorf("Expected status_code 503, got %v", entry.Fields["status_code"])
	}
	if entry.Fields["error"] == "" {
		t.Error("Expected error field to be populated")
	}
}

func TestInfoWithDuration(t *testing.T) {
	logger := New("test")

	out := captureOutput(func() {
		logger.InfoWithDuration("match-3", "req-3", "done", 42.5, nil)
	})

	idx := strings.Index(out, "{")
	var entry LogEntry
	if err := json.Unmarshal([]byte(strings.TrimSpace(out[idx:])), &entry); err != nil {
		t.Fatalf("log output is not valid JSON: %v", err)
	}

	if entry.Fields["duration_ms"] != 42.5 {
		t.Errorf("Expected duration_ms 42.5, got %v", entry.Fields["duration_ms"])
	}
}
