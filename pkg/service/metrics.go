//    Copyright 2021 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package service

import (
	"github.com/binkynet/PWMWorker/pkg/metrics"
)

const (
	subSystem = "service"
)

var (
	// Total number of service operations per operation
	operationsTotal = metrics.MustRegisterCounterVec(subSystem,
		"operations_total",
		"Total number of service operations per operation",
		"operation")
	// Total number of failed service operations per operation
	operationErrorsTotal = metrics.MustRegisterCounterVec(subSystem,
		"operation_errors_total",
		"Total number of failed service operations per operation",
		"operation")
	// Current state of the chip session
	chipStateGauge = metrics.MustRegisterGauge(subSystem,
		"chip_state",
		"Current state of the chip session (0=acquired, 1=initialized, 2=failed, 3=released)")
	// 1 when the outputs of the chip are enabled through OE
	outputEnabledGauge = metrics.MustRegisterGauge(subSystem,
		"output_enabled",
		"1 when the outputs of the chip are enabled through the OE pin")
)
