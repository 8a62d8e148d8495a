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

/*
Package logger provides structured JSON logging for Basirat insight
services.

# Overview

The logger outputs single-line JSON to stdout, making logs easily
consumable by CloudWatch, ELK, or other log aggregation systems.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (orchestrator, llm, etc.)
  - Instance ID and container name (for distributed tracing)
  - Match ID (correlation key for one analysis)
  - Request ID (for request correlation)
  - Custom fields

Match IDs, not user IDs, are the correlation key: insight logs must never
tie a line of analysis output to an individual user.

# Usage

Create a logger for your component:

	log := logger.New("orchestrator")

Log messages with match and request context:

	log.Info("match-123", "req-456", "Dispatching analysis", map[string]interface{}{
	    "role": "matchmaker",
	    "tier": "fast",
	})

Log errors with status codes:

	log.ErrorWithCode("match-123", "req-456", "Analysis failed", 503, err, nil)

Log with duration tracking:

	start := time.Now()
	// ... do work ...
	log.InfoWithDuration("match-123", "req-456", "Analysis completed",
	    float64(time.Since(start).Milliseconds()), nil)

# Environment Variables

The logger reads these environment variables:

  - INSTANCE_ID: Deployment instance identifier
  - HOSTNAME: Container hostname (auto-detected)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
