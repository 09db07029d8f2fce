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

package bridge

import (
	"context"
	"sync"
)

// RegisterDevice binds an I2C bus and a device address into
// register level read/write access.
type RegisterDevice struct {
	mutex   sync.Mutex
	bus     I2CBus
	address uint8
	closed  bool
}

// NewRegisterDevice creates register level access to the device
// at the given address.
func NewRegisterDevice(bus I2CBus, address uint8) *RegisterDevice {
	return &RegisterDevice{
		bus:     bus,
		address: address,
	}
}

// Address returns the 7-bit address of the device.
func (d *RegisterDevice) Address() uint8 {
	return d.address
}

// WriteRegister writes the given bytes, starting at the given register.
func (d *RegisterDevice) WriteRegister(ctx context.Context, reg uint8, data []byte) error {
	if err := d.checkOpen(); err != nil {
		return err
	}
	return d.bus.Execute(ctx, d.address, func(ctx context.Context, dev I2CDevice) error {
		if len(data) == 1 {
			return dev.WriteByteReg(reg, data[0])
		}
		return dev.WriteReg(reg, data)
	})
}

// ReadRegister reads length bytes, starting at the given register.
func (d *RegisterDevice) ReadRegister(ctx context.Context, reg uint8, length int) ([]byte, error) {
	if err := d.checkOpen(); err != nil {
		return nil, err
	}
	result := make([]byte, length)
	if err := d.bus.Execute(ctx, d.address, func(ctx context.Context, dev I2CDevice) error {
		if length == 1 {
			v, err := dev.ReadByteReg(reg)
			if err != nil {
				return err
			}
			result[0] = v
			return nil
		}
		return dev.ReadReg(reg, result)
	}); err != nil {
		return nil, err
	}
	return result, nil
}

// Close releases the device connection on the bus.
func (d *RegisterDevice) Close() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.bus.Release(d.address)
}

func (d *RegisterDevice) checkOpen() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if d.closed {
		return DeviceClosedError
	}
	return nil
}
