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

// Command insightd serves the Basirat AI insight orchestrator.
package main

import (
	"fmt"
	"os"

	"basirat/insight/orchestrator"
)

func main() {
	if err := orchestrator.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "insightd: %v\n", err)
		os.Exit(1)
	}
}
