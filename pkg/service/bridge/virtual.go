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
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	virtualMode1Reg    = 0x00
	virtualMode2Reg    = 0x01
	virtualLEDBaseReg  = 0x06
	virtualAllLEDReg   = 0xFA
	virtualPrescaleReg = 0xFE
	virtualSleepBit    = 0x10
)

// VirtualBridge implements the bridge without hardware.
// Every configured address behaves like a PCA9685 register file.
type VirtualBridge struct {
	mutex sync.Mutex
	bus   *VirtualBus
	pins  map[int]*VirtualPin
	led   bool
}

// NewVirtualBridge implements the bridge for a virtual PWM worker with
// simulated devices at the given addresses.
func NewVirtualBridge(addresses ...uint8) *VirtualBridge {
	return &VirtualBridge{
		bus:  NewVirtualBus(addresses...),
		pins: make(map[int]*VirtualPin),
	}
}

// Output initializes a virtual output pin with the given pin number
// and initial logical value.
func (p *VirtualBridge) Output(pinNumber int, activeLow bool, initialValue bool) (OutputPin, error) {
	if pinNumber < 0 {
		return nil, errors.Wrapf(InvalidPinError, "pin %d", pinNumber)
	}
	p.mutex.Lock()
	defer p.mutex.Unlock()

	pin := &VirtualPin{value: initialValue}
	p.pins[pinNumber] = pin
	return pin, nil
}

// Pin returns the output pin with given number, or nil if not requested.
func (p *VirtualBridge) Pin(pinNumber int) *VirtualPin {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.pins[pinNumber]
}

// Turn status led on/off
func (p *VirtualBridge) SetStatusLED(on bool) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.led = on
	return nil
}

// Blink status led with given duration between on/off
func (p *VirtualBridge) BlinkStatusLED(delay time.Duration) error {
	return nil
}

// Open the I2C bus
func (p *VirtualBridge) I2CBus() (I2CBus, error) {
	return p.bus, nil
}

// Bus returns the simulated bus.
func (p *VirtualBridge) Bus() *VirtualBus {
	return p.bus
}

func (p *VirtualBridge) Close() error {
	return p.bus.Close()
}

// VirtualPin is an output pin that remembers its logical value.
type VirtualPin struct {
	mutex sync.Mutex
	value bool
}

func (p *VirtualPin) Write(value bool) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.value = value
	return nil
}

// Value returns the last written logical value.
func (p *VirtualPin) Value() bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.value
}

// VirtualBus is an in-memory I2C bus.
type VirtualBus struct {
	mutex   sync.Mutex
	devices map[uint8]*virtualDevice
	failure func(address, reg uint8, write bool) error
	closed  bool
}

// NewVirtualBus creates a bus with simulated PCA9685 devices at the given addresses.
func NewVirtualBus(addresses ...uint8) *VirtualBus {
	b := &VirtualBus{
		devices: make(map[uint8]*virtualDevice),
	}
	for _, addr := range addresses {
		d := &virtualDevice{address: addr}
		d.powerOn()
		b.devices[addr] = d
	}
	return b
}

// SetFailure installs a hook that is consulted before every register access.
// A non-nil result fails the access. Pass nil to remove the hook.
func (b *VirtualBus) SetFailure(f func(address, reg uint8, write bool) error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.failure = f
}

// Register returns the current content of a register of the device at given address.
func (b *VirtualBus) Register(address, reg uint8) uint8 {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if d, found := b.devices[address]; found {
		return d.regs[reg]
	}
	return 0
}

// Execute an option on the bus.
func (b *VirtualBus) Execute(ctx context.Context, address uint8, op func(ctx context.Context, dev I2CDevice) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.closed {
		return errors.Wrap(DeviceClosedError, "bus closed")
	}
	addressLabel := strconv.Itoa(int(address))
	i2cExecuteCounters.WithLabelValues(addressLabel).Inc()
	d, found := b.devices[address]
	if !found {
		i2cExecuteErrorCounters.WithLabelValues(addressLabel).Inc()
		return errors.Wrapf(DeviceNotFoundError, "address 0x%02x", address)
	}
	if err := op(ctx, virtualAccess{bus: b, dev: d}); err != nil {
		i2cExecuteErrorCounters.WithLabelValues(addressLabel).Inc()
		return err
	}
	return nil
}

// DetectSlaveAddresses returns the addresses of all simulated devices.
func (b *VirtualBus) DetectSlaveAddresses() []byte {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	result := make([]byte, 0, len(b.devices))
	for addr := range b.devices {
		result = append(result, addr)
	}
	sort.Slice(result, func(i, j int) bool { return result[i] < result[j] })
	return result
}

// Release is a no-op; the simulated devices keep their state.
func (b *VirtualBus) Release(address uint8) error {
	return nil
}

// Close the bus
func (b *VirtualBus) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.closed = true
	return nil
}

func (b *VirtualBus) check(address, reg uint8, write bool) error {
	if b.failure != nil {
		return b.failure(address, reg, write)
	}
	return nil
}

type virtualDevice struct {
	address uint8
	regs    [256]byte
}

// powerOn sets the register values a PCA9685 has after reset.
func (d *virtualDevice) powerOn() {
	d.regs = [256]byte{}
	d.regs[virtualMode1Reg] = 0x11
	d.regs[virtualMode2Reg] = 0x04
	d.regs[virtualPrescaleReg] = 0x1E
}

// write a single register, applying the chip rules for PRESCALE and ALL_LED.
func (d *virtualDevice) write(reg uint8, val uint8) {
	switch {
	case reg == virtualPrescaleReg:
		// Prescale can only be changed while the oscillator is off
		if d.regs[virtualMode1Reg]&virtualSleepBit == 0 {
			return
		}
	case reg >= virtualAllLEDReg && reg < virtualAllLEDReg+4:
		offset := reg - virtualAllLEDReg
		for ch := uint8(0); ch < 16; ch++ {
			d.regs[virtualLEDBaseReg+4*ch+offset] = val
		}
	}
	d.regs[reg] = val
}

type virtualAccess struct {
	bus *VirtualBus
	dev *virtualDevice
}

func (a virtualAccess) ReadByteReg(reg uint8) (uint8, error) {
	if err := a.bus.check(a.dev.address, reg, false); err != nil {
		return 0, err
	}
	return a.dev.regs[reg], nil
}

func (a virtualAccess) WriteByteReg(reg uint8, val uint8) error {
	return a.WriteReg(reg, []byte{val})
}

func (a virtualAccess) ReadReg(reg uint8, data []byte) error {
	if err := a.bus.check(a.dev.address, reg, false); err != nil {
		return err
	}
	for i := range data {
		data[i] = a.dev.regs[reg+uint8(i)]
	}
	return nil
}

func (a virtualAccess) WriteReg(reg uint8, data []byte) error {
	if err := a.bus.check(a.dev.address, reg, true); err != nil {
		return err
	}
	for i, v := range data {
		a.dev.write(reg+uint8(i), v)
	}
	virtualWritesTotal.WithLabelValues(strconv.Itoa(int(a.dev.address))).Add(float64(len(data)))
	return nil
}
