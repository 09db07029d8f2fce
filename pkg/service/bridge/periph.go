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
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

type periphBus struct {
	mutex sync.Mutex
	bus   i2c.BusCloser
}

// NewPeriphI2CBus opens the I2C bus with the given name (e.g. "I2C1" or "/dev/i2c-1")
// through periph.io.
func NewPeriphI2CBus(name string) (I2CBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph host.Init failed")
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open I2C bus '%s'", name)
	}
	return &periphBus{bus: bus}, nil
}

// Execute an option on the bus.
func (b *periphBus) Execute(ctx context.Context, address uint8, op func(context.Context, I2CDevice) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()

	addressLabel := strconv.Itoa(int(address))
	i2cExecuteCounters.WithLabelValues(addressLabel).Inc()
	dev := periphDevice{dev: &i2c.Dev{Bus: b.bus, Addr: uint16(address)}}
	if err := op(ctx, dev); err != nil {
		i2cExecuteErrorCounters.WithLabelValues(addressLabel).Inc()
		return err
	}
	return nil
}

// DetectSlaveAddresses probes the bus to detect available addresses.
func (b *periphBus) DetectSlaveAddresses() []byte {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	var result []byte
	var buf [1]byte
	for addr := uint8(1); addr < 128; addr++ {
		dev := &i2c.Dev{Bus: b.bus, Addr: uint16(addr)}
		if err := dev.Tx(nil, buf[:]); err == nil {
			result = append(result, addr)
		}
	}
	return result
}

// Release is a no-op; periph does not keep per-device connections.
func (b *periphBus) Release(address uint8) error {
	return nil
}

// Close the bus.
func (b *periphBus) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if err := b.bus.Close(); err != nil {
		return maskAny(err)
	}
	return nil
}

type periphDevice struct {
	dev *i2c.Dev
}

func (d periphDevice) ReadByteReg(reg uint8) (uint8, error) {
	var buf [1]byte
	if err := d.ReadReg(reg, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (d periphDevice) WriteByteReg(reg uint8, val uint8) error {
	return d.WriteReg(reg, []byte{val})
}

func (d periphDevice) ReadReg(reg uint8, data []byte) error {
	if err := d.dev.Tx([]byte{reg}, data); err != nil {
		return errors.Wrapf(err, "readReg[0x%0x](0x%0x, %d) failed", d.dev.Addr, reg, len(data))
	}
	return nil
}

func (d periphDevice) WriteReg(reg uint8, data []byte) error {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, reg)
	buf = append(buf, data...)
	if err := d.dev.Tx(buf, nil); err != nil {
		return errors.Wrapf(err, "writeReg[0x%0x](0x%0x, %d) failed", d.dev.Addr, reg, len(data))
	}
	return nil
}
