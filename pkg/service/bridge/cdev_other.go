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

//go:build !linux

package bridge

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// CharDevConfig configures the character device based bridge.
type CharDevConfig struct {
	I2CBus       string
	GPIOChip     string
	StatusLEDPin int
}

// NewCharDevBridge is only available on linux.
func NewCharDevBridge(log zerolog.Logger, config CharDevConfig) (API, error) {
	return nil, errors.New("character device bridge is only supported on linux")
}
