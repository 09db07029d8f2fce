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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pwmworker.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadEmptyPathGivesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Device.Address != 0x40 {
		t.Errorf("address = %s, want 0x40", cfg.Device.Address)
	}
	if cfg.Device.PWMFrequency != 50 {
		t.Errorf("pwm frequency = %d, want 50", cfg.Device.PWMFrequency)
	}
	if cfg.Device.OscillatorFrequency != 25000000 {
		t.Errorf("oscillator frequency = %d, want 25000000", cfg.Device.OscillatorFrequency)
	}
	if cfg.Device.OutputEnablePin != -1 {
		t.Errorf("oe pin = %d, want -1", cfg.Device.OutputEnablePin)
	}
	if cfg.MQTT.TopicPrefix != "" {
		t.Errorf("topic prefix = %q, want empty without broker", cfg.MQTT.TopicPrefix)
	}
}

func TestLoadOverridesOnlyGivenFields(t *testing.T) {
	path := writeConfig(t, `
bridge:
  type: virtual
device:
  address: "0x41"
  pwm_frequency: 60
mqtt:
  broker: localhost:1883
  client_id: test
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Bridge.Type != BridgeTypeVirtual {
		t.Errorf("bridge type = %q", cfg.Bridge.Type)
	}
	if cfg.Device.Address != 0x41 {
		t.Errorf("address = %s, want 0x41", cfg.Device.Address)
	}
	if cfg.Device.PWMFrequency != 60 {
		t.Errorf("pwm frequency = %d, want 60", cfg.Device.PWMFrequency)
	}
	if cfg.Device.OscillatorFrequency != 25000000 {
		t.Errorf("oscillator frequency = %d, want default", cfg.Device.OscillatorFrequency)
	}
	if cfg.Server.Port != DefaultServerPort {
		t.Errorf("port = %d, want default", cfg.Server.Port)
	}
	if cfg.MQTT.TopicPrefix != "/binky/pwm/0x41/" {
		t.Errorf("topic prefix = %q", cfg.MQTT.TopicPrefix)
	}
}

func TestLoadDecimalAddress(t *testing.T) {
	path := writeConfig(t, "device:\n  address: 65\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Device.Address != 0x41 {
		t.Errorf("address = %s, want 0x41", cfg.Device.Address)
	}
}

func TestLoadRejectsInvalidAddress(t *testing.T) {
	path := writeConfig(t, "device:\n  address: 0x80\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for address 0x80")
	}
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{"0x40", 0x40, false},
		{"64", 0x40, false},
		{" 0x7f ", 0x7F, false},
		{"0", 0, false},
		{"128", 0, true},
		{"0x80", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}
	for _, tc := range tests {
		got, err := ParseAddress(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseAddress(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAddress(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseAddress(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestAddressFlagValue(t *testing.T) {
	a := DefaultAddress
	if err := a.Set("0x42"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if a.String() != "0x42" {
		t.Errorf("String() = %q", a.String())
	}
	if err := a.Set("200"); err == nil {
		t.Error("expected error for out of range address")
	}
	if a != 0x42 {
		t.Errorf("failed Set modified value to %s", a)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"bridge type", func(c *Config) { c.Bridge.Type = "opz" }},
		{"missing bus", func(c *Config) { c.Bridge.I2CBus = "" }},
		{"address", func(c *Config) { c.Device.Address = 0x80 }},
		{"oscillator", func(c *Config) { c.Device.OscillatorFrequency = 0 }},
		{"pwm too low", func(c *Config) { c.Device.PWMFrequency = 23 }},
		{"pwm too high", func(c *Config) { c.Device.PWMFrequency = 1527 }},
		{"port", func(c *Config) { c.Server.Port = 0 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.modify(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateVirtualWithoutBus(t *testing.T) {
	cfg := Default()
	cfg.Bridge.Type = BridgeTypeVirtual
	cfg.Bridge.I2CBus = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidateNormalizesTopicPrefix(t *testing.T) {
	cfg := Default()
	cfg.MQTT.Broker = "localhost:1883"
	cfg.MQTT.TopicPrefix = "/my/pwm"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.MQTT.TopicPrefix != "/my/pwm/" {
		t.Errorf("topic prefix = %q", cfg.MQTT.TopicPrefix)
	}
	if cfg.MQTT.ClientID == "" {
		t.Error("client id not defaulted")
	}
}

func TestValidateResolvesAutoBridge(t *testing.T) {
	cfg := Default()
	cfg.Bridge.Type = BridgeTypeAuto
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	switch cfg.Bridge.Type {
	case BridgeTypeRaspberryPi, BridgeTypeCharDev, BridgeTypeVirtual:
		// OK
	default:
		t.Errorf("bridge type = %q after auto detection", cfg.Bridge.Type)
	}
}
