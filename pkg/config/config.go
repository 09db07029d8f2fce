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
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/binkynet/PWMWorker/pkg/environment"
	"github.com/binkynet/PWMWorker/pkg/pca9685"
)

const (
	BridgeTypeRaspberryPi = "rpi"
	BridgeTypeCharDev     = "cdev"
	BridgeTypeVirtual     = "virtual"
	// Detect the bridge type from the host
	BridgeTypeAuto = "auto"

	DefaultAddress    Address = 0x40
	DefaultServerPort         = 7139
	// Highest valid 7-bit I2C address
	MaxAddress = 0x7F
)

// Config of the PWM worker.
type Config struct {
	Bridge BridgeConfig `yaml:"bridge"`
	Device DeviceConfig `yaml:"device"`
	Server ServerConfig `yaml:"server"`
	MQTT   MQTTConfig   `yaml:"mqtt"`
	// Optional file that logs are written to (in addition to stderr)
	LogFile string `yaml:"log_file"`
}

// BridgeConfig selects the hardware used to reach the I2C bus.
type BridgeConfig struct {
	// Type of bridge (rpi|cdev|virtual|auto)
	Type string `yaml:"type"`
	// I2C bus location (rpi: /dev/i2c-1) or name (cdev: I2C1 or /dev/i2c-1)
	I2CBus string `yaml:"i2c_bus"`
	// GPIO chip used by the cdev bridge
	GPIOChip string `yaml:"gpio_chip"`
	// Pin used for lockup recovery of the bus (-1 to disable, rpi only)
	SCLPin int `yaml:"scl_pin"`
	// Pin of the status led (-1 for none)
	StatusLEDPin int `yaml:"status_led_pin"`
}

// DeviceConfig configures the PCA9685 itself.
type DeviceConfig struct {
	Address             Address `yaml:"address"`
	PWMFrequency        int     `yaml:"pwm_frequency"`
	OscillatorFrequency int     `yaml:"oscillator_frequency"`
	// Pin connected to the active-low OE input of the chip (-1 for none)
	OutputEnablePin int `yaml:"output_enable_pin"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// MQTTConfig configures the (optional) MQTT connection.
type MQTTConfig struct {
	// Broker address (host:port). MQTT is disabled when empty.
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Default returns a configuration with all default values.
func Default() Config {
	return Config{
		Bridge: BridgeConfig{
			Type:         BridgeTypeRaspberryPi,
			I2CBus:       "/dev/i2c-1",
			GPIOChip:     "gpiochip0",
			SCLPin:       -1,
			StatusLEDPin: -1,
		},
		Device: DeviceConfig{
			Address:             DefaultAddress,
			PWMFrequency:        50,
			OscillatorFrequency: pca9685.DefaultOscillatorFrequency,
			OutputEnablePin:     -1,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: DefaultServerPort,
		},
	}
}

// Load the configuration from the YAML file at given path.
// Values missing from the file keep their default.
// An empty path yields the default configuration.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "failed to read config '%s'", path)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "failed to parse config '%s'", path)
	}
	return cfg, nil
}

// Validate the configuration and fill in derived defaults.
func (c *Config) Validate() error {
	if c.Bridge.Type == BridgeTypeAuto {
		c.Bridge.Type = environment.AutoDetectBridgeType()
	}
	switch c.Bridge.Type {
	case BridgeTypeRaspberryPi, BridgeTypeCharDev, BridgeTypeVirtual:
		// OK
	default:
		return errors.Errorf("bridge.type '%s' is invalid (rpi|cdev|virtual|auto)", c.Bridge.Type)
	}
	if c.Bridge.Type != BridgeTypeVirtual && c.Bridge.I2CBus == "" {
		return errors.New("bridge.i2c_bus is required")
	}
	if c.Device.Address > MaxAddress {
		return errors.Errorf("device.address 0x%02x is out of range (0x00-0x7f)", uint8(c.Device.Address))
	}
	if c.Device.OscillatorFrequency <= 0 {
		return errors.New("device.oscillator_frequency must be > 0")
	}
	if c.Device.PWMFrequency < pca9685.MinPWMFrequency || c.Device.PWMFrequency > pca9685.MaxPWMFrequency {
		return errors.Errorf("device.pwm_frequency must be in %d..%d", pca9685.MinPWMFrequency, pca9685.MaxPWMFrequency)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Errorf("server.port %d is invalid", c.Server.Port)
	}
	if c.MQTT.Broker != "" {
		if c.MQTT.ClientID == "" {
			host, _ := os.Hostname()
			c.MQTT.ClientID = fmt.Sprintf("pwmworker-%s-%s", host, c.Device.Address)
		}
		if c.MQTT.TopicPrefix == "" {
			c.MQTT.TopicPrefix = fmt.Sprintf("/binky/pwm/%s/", c.Device.Address)
		}
		c.MQTT.TopicPrefix = strings.TrimSuffix(c.MQTT.TopicPrefix, "/") + "/"
	}
	return nil
}

// Address is a 7-bit I2C address.
// It is parsed from decimal or 0x prefixed hexadecimal notation.
type Address uint8

// ParseAddress parses a decimal or hexadecimal (0x..) address.
func ParseAddress(s string) (Address, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid address '%s'", s)
	}
	if v > MaxAddress {
		return 0, errors.Errorf("address '%s' is out of range (0x00-0x7f)", s)
	}
	return Address(v), nil
}

// String returns the address in 0x notation.
func (a Address) String() string {
	return fmt.Sprintf("0x%02x", uint8(a))
}

// Set implements pflag.Value.
func (a *Address) Set(s string) error {
	v, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Type implements pflag.Value.
func (a *Address) Type() string {
	return "address"
}

// UnmarshalYAML accepts both integer and string notations.
func (a *Address) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return errors.Errorf("line %d: address must be a scalar", value.Line)
	}
	v, err := ParseAddress(value.Value)
	if err != nil {
		return errors.Wrapf(err, "line %d", value.Line)
	}
	*a = v
	return nil
}

// MarshalYAML writes the address in 0x notation.
func (a Address) MarshalYAML() (interface{}, error) {
	return a.String(), nil
}
