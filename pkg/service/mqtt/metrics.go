// Copyright 2024 Ewout Prangsma
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

package mqtt

import (
	"github.com/binkynet/PWMWorker/pkg/metrics"
)

const (
	subSystem = "mqtt"
)

var (
	// Total number of received MQTT commands per kind
	mqttCommandsTotal = metrics.MustRegisterCounterVec(subSystem,
		"commands_total",
		"Total number of received MQTT commands per kind",
		"kind")
	// Total number of failed MQTT commands per kind
	mqttCommandErrorsTotal = metrics.MustRegisterCounterVec(subSystem,
		"command_errors_total",
		"Total number of failed MQTT commands per kind",
		"kind")
	// 1 when connected to the broker
	mqttConnectedGauge = metrics.MustRegisterGaugeVec(subSystem,
		"connected",
		"1 when connected to the MQTT broker",
		"broker")
)
