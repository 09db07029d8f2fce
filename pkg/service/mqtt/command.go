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
	"fmt"
	"strconv"
	"strings"
)

type commandKind uint8

const (
	commandPulse commandKind = iota
	commandChannel
	commandFrequency
)

func (k commandKind) String() string {
	switch k {
	case commandPulse:
		return "pulse"
	case commandChannel:
		return "channel"
	case commandFrequency:
		return "frequency"
	default:
		return "unknown"
	}
}

// command is a parsed MQTT command message.
type command struct {
	Kind         commandKind
	Channel      int
	On, Off      int
	Microseconds int
	Hz           int
}

// parseCommand parses the topic & payload of a message.
// Returns nil, nil for messages that are not commands.
// Range checks are left to the service.
func parseCommand(prefix, topic, payload string) (*command, error) {
	if !strings.HasPrefix(topic, prefix) {
		return nil, nil
	}
	topic = strings.TrimPrefix(topic, prefix)
	if !strings.HasSuffix(topic, "/command") {
		// Not a command (state or unknown)
		return nil, nil
	}
	topic = strings.TrimSuffix(topic, "/command")
	payload = strings.TrimSpace(payload)

	switch {
	case topic == "frequency":
		hz, err := strconv.Atoi(payload)
		if err != nil {
			return nil, fmt.Errorf("invalid frequency '%s': %w", payload, err)
		}
		return &command{Kind: commandFrequency, Hz: hz}, nil
	case strings.HasPrefix(topic, "channel"):
		rest := strings.TrimPrefix(topic, "channel")
		isPulse := strings.HasSuffix(rest, "/pulse")
		rest = strings.TrimSuffix(rest, "/pulse")
		channel, err := strconv.Atoi(rest)
		if err != nil {
			return nil, fmt.Errorf("invalid channel in topic '%s': %w", topic, err)
		}
		if isPulse {
			us, err := strconv.Atoi(payload)
			if err != nil {
				return nil, fmt.Errorf("invalid pulse width '%s': %w", payload, err)
			}
			return &command{Kind: commandPulse, Channel: channel, Microseconds: us}, nil
		}
		on, off, err := parseDutyCycle(payload)
		if err != nil {
			return nil, err
		}
		return &command{Kind: commandChannel, Channel: channel, On: on, Off: off}, nil
	default:
		return nil, fmt.Errorf("unknown command topic '%s'", topic)
	}
}

// parseDutyCycle parses an "on,off" payload.
func parseDutyCycle(payload string) (int, int, error) {
	parts := strings.Split(payload, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid duty cycle '%s', expected 'on,off'", payload)
	}
	on, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid on value '%s': %w", parts[0], err)
	}
	off, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid off value '%s': %w", parts[1], err)
	}
	return on, off, nil
}
