//    Copyright 2017-2025 Ewout Prangsma
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

package cmd

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/PWMWorker/pkg/config"
	"github.com/binkynet/PWMWorker/pkg/service"
	"github.com/binkynet/PWMWorker/pkg/service/bridge"
)

// newBridge creates the bridge selected in the configuration.
func newBridge(log zerolog.Logger, cfg config.Config) (bridge.API, error) {
	switch cfg.Bridge.Type {
	case config.BridgeTypeRaspberryPi:
		br, err := bridge.NewRaspberryPiBridge(log, bridge.RaspberryPiConfig{
			I2CLocation:  cfg.Bridge.I2CBus,
			SCLPin:       cfg.Bridge.SCLPin,
			StatusLEDPin: cfg.Bridge.StatusLEDPin,
		})
		if err != nil {
			return nil, errors.Wrap(err, "Failed to initialize Raspberry Pi Bridge")
		}
		return br, nil
	case config.BridgeTypeCharDev:
		br, err := bridge.NewCharDevBridge(log, bridge.CharDevConfig{
			I2CBus:       cfg.Bridge.I2CBus,
			GPIOChip:     cfg.Bridge.GPIOChip,
			StatusLEDPin: cfg.Bridge.StatusLEDPin,
		})
		if err != nil {
			return nil, errors.Wrap(err, "Failed to initialize character device Bridge")
		}
		return br, nil
	case config.BridgeTypeVirtual:
		return bridge.NewVirtualBridge(uint8(cfg.Device.Address)), nil
	default:
		return nil, errors.Errorf("Unknown bridge type '%s' (rpi|cdev|virtual)", cfg.Bridge.Type)
	}
}

// newService creates the bridge and the service on top of it.
func newService(log zerolog.Logger, cfg config.Config) (service.Service, error) {
	br, err := newBridge(log, cfg)
	if err != nil {
		return nil, err
	}
	svc, err := service.NewService(service.Config{
		ProgramVersion:      projectVersion,
		Address:             uint8(cfg.Device.Address),
		PWMFrequency:        cfg.Device.PWMFrequency,
		OscillatorFrequency: cfg.Device.OscillatorFrequency,
		OutputEnablePin:     cfg.Device.OutputEnablePin,
	}, service.Dependencies{
		Logger: log,
		Bridge: br,
	})
	if err != nil {
		br.Close()
		return nil, errors.Wrap(err, "Failed to initialize Service")
	}
	return svc, nil
}
