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

// Package orchestrator runs matrimonial analysis requests through
// specialized agent roles, validates and scores their output, and
// partitions every insight per viewer before it leaves the service.
//
// The pipeline for one request: validate, consult the insight store,
// build the role's prompt, dispatch through the provider chain, parse
// and score the completion (one reformat retry on malformed output),
// persist, and filter for the requesting user. Numeric scores and
// zones always come from the deterministic scoring engine; the model
// only supplies sub-scores and narrative fields.
package orchestrator
