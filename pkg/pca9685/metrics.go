// Copyright 2025 Ewout Prangsma
//
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
//
// Author Ewout Prangsma
//

package pca9685

import (
	"github.com/binkynet/PWMWorker/pkg/metrics"
)

const (
	subSystem = "pca9685"
)

var (
	// Total number of register writes per register (group)
	registerWritesTotal = metrics.MustRegisterCounterVec(subSystem,
		"register_writes_total",
		"Total number of register writes per register",
		"register")
	// Total number of Initialize calls per result
	initializeTotal = metrics.MustRegisterCounterVec(subSystem,
		"initialize_total",
		"Total number of Initialize calls per result",
		"result")
	// Total number of prescale changes
	prescaleChangesTotal = metrics.MustRegisterCounter(subSystem,
		"prescale_changes_total",
		"Total number of prescale register updates")
)
