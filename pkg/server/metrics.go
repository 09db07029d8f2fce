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

package server

import (
	"github.com/binkynet/PWMWorker/pkg/metrics"
)

const (
	subSystem = "http"
)

var (
	// Duration of HTTP requests per method, route and status code
	httpRequestDuration = metrics.MustRegisterHistogramVec(subSystem,
		"request_duration_seconds",
		"Duration of HTTP requests per method, route and status code",
		"method", "route", "code")
)
