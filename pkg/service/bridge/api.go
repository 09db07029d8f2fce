//    Copyright 2017 Ewout Prangsma
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

package bridge

import (
	"context"
	"time"
)

// API of the bridge, the hardware used to connect the host to
// the I2C bus that the PWM controller is connected to.
type API interface {
	// Turn status led on/off
	SetStatusLED(on bool) error
	// Blink status led with given duration between on/off
	BlinkStatusLED(delay time.Duration) error

	// Open the I2C bus
	I2CBus() (I2CBus, error)

	// Output initializes a GPIO output pin with the given pin number
	// and initial logical value.
	Output(pinNumber int, activeLow bool, initialValue bool) (OutputPin, error)

	// Close the bridge, including the I2C bus and all pins
	Close() error
}

// OutputPin is the interface satisfied by GPIO output pins.
type OutputPin interface {
	Write(bool) error
}

// I2CBus gives serialized access to the devices on a single I2C bus.
type I2CBus interface {
	// Execute an option on the bus.
	Execute(ctx context.Context, address uint8, op func(ctx context.Context, dev I2CDevice) error) error
	// DetectSlaveAddresses probes the bus to detect available addresses.
	DetectSlaveAddresses() []byte
	// Release closes the connection to the device at the given address (if any).
	Release(address uint8) error
	// Close the bus and all devices on it
	Close() error
}

// I2CDevice communicates with a device on the I2C Bus that has a specific address.
type I2CDevice interface {
	// Read a byte from given register
	ReadByteReg(reg uint8) (uint8, error)
	// Write a byte to given register
	WriteByteReg(reg uint8, val uint8) error
	// Read len(data) bytes, starting at given register
	ReadReg(reg uint8, data []byte) error
	// Write data, starting at given register
	WriteReg(reg uint8, data []byte) error
}
