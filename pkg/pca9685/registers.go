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

package pca9685

import (
	"context"
	"fmt"
	"time"
)

// Transport provides byte level register access to a single device
// at a fixed address on an I2C bus.
type Transport interface {
	// WriteRegister writes the given bytes, starting at the given register.
	WriteRegister(ctx context.Context, reg uint8, data []byte) error
	// ReadRegister reads length bytes, starting at the given register.
	ReadRegister(ctx context.Context, reg uint8, length int) ([]byte, error)
	// Close releases the binding to the device.
	Close() error
}

const (
	MODE1Reg      = 0x00
	MODE2Reg      = 0x01
	LEDBaseReg    = 0x06
	AllLEDBaseReg = 0xFA
	PRESCALEReg   = 0xFE

	onLowRegOfs   = 0
	onHighRegOfs  = 1
	offLowRegOfs  = 2
	offHighRegOfs = 3
	regIncrement  = 4

	// MODE1 bits
	MODE1AllCall       = 0x01
	MODE1Sleep         = 0x10
	MODE1AutoIncrement = 0x20
	MODE1Restart       = 0x80
	// MODE2 bits
	MODE2OutDrv = 0x04

	// ChannelCount is the number of PWM outputs of the chip.
	ChannelCount = 16
	// MaxValue is the maximum valid value for an ON or OFF tick.
	MaxValue = 4095
)

var (
	// Settle time of the oscillator after leaving sleep mode.
	oscillatorSettleDelay = time.Millisecond * 5
	// Replaced in tests.
	sleep = time.Sleep
)

// registers performs the register level transactions of the PCA9685.
// Every method returns the first transport error unchanged, leaving the
// remaining steps of a sequence undone.
type registers struct {
	t Transport
}

// channelBase returns the first register for the given channel (0..15).
func channelBase(channel int) uint8 {
	return uint8(LEDBaseReg + channel*regIncrement)
}

func (r registers) writeByte(ctx context.Context, reg, value uint8) error {
	registerWritesTotal.WithLabelValues(registerName(reg)).Inc()
	return r.t.WriteRegister(ctx, reg, []byte{value})
}

func (r registers) readByte(ctx context.Context, reg uint8) (uint8, error) {
	data, err := r.t.ReadRegister(ctx, reg, 1)
	if err != nil {
		return 0, err
	}
	if len(data) != 1 {
		return 0, fmt.Errorf("short read of register 0x%02x: expected 1 byte, got %d", reg, len(data))
	}
	return data[0], nil
}

// writeAllOff sets ON=0, OFF=0 for all channels at once.
func (r registers) writeAllOff(ctx context.Context) error {
	return r.writeChannel(ctx, AllLEDBaseReg, 0, 0)
}

// configureOutputMode selects totem-pole outputs, then enables
// register auto-increment and the all-call address.
func (r registers) configureOutputMode(ctx context.Context) error {
	if err := r.writeByte(ctx, MODE2Reg, MODE2OutDrv); err != nil {
		return err
	}
	if err := r.writeByte(ctx, MODE1Reg, MODE1AutoIncrement|MODE1AllCall); err != nil {
		return err
	}
	return nil
}

// wakeOscillator clears the SLEEP bit and waits for the oscillator to settle.
func (r registers) wakeOscillator(ctx context.Context) error {
	mode1, err := r.readByte(ctx, MODE1Reg)
	if err != nil {
		return err
	}
	if err := r.writeByte(ctx, MODE1Reg, mode1&^MODE1Sleep); err != nil {
		return err
	}
	sleep(oscillatorSettleDelay)
	return nil
}

// writePrescale stores the given prescale value.
// PRESCALE can only be written while the oscillator is stopped, so the chip
// is put to sleep first, then restored and finally restarted.
func (r registers) writePrescale(ctx context.Context, prescale uint8) error {
	oldMode1, err := r.readByte(ctx, MODE1Reg)
	if err != nil {
		return err
	}
	// Stop the oscillator (writing RESTART=1 here would restart PWM)
	if err := r.writeByte(ctx, MODE1Reg, (oldMode1&^MODE1Restart)|MODE1Sleep); err != nil {
		return err
	}
	if err := r.writeByte(ctx, PRESCALEReg, prescale); err != nil {
		return err
	}
	if err := r.writeByte(ctx, MODE1Reg, oldMode1); err != nil {
		return err
	}
	sleep(oscillatorSettleDelay)
	if err := r.writeByte(ctx, MODE1Reg, oldMode1|MODE1Restart); err != nil {
		return err
	}
	return nil
}

// readPrescale returns the current content of the PRESCALE register.
func (r registers) readPrescale(ctx context.Context) (uint8, error) {
	return r.readByte(ctx, PRESCALEReg)
}

// writeChannel writes the ON/OFF quadruplet that starts at the given register.
func (r registers) writeChannel(ctx context.Context, base uint8, on, off uint16) error {
	on, off = capValue(on), capValue(off)
	data := make([]byte, regIncrement)
	data[onLowRegOfs] = uint8(on & 0xFF)
	data[onHighRegOfs] = uint8((on >> 8) & 0x0F)
	data[offLowRegOfs] = uint8(off & 0xFF)
	data[offHighRegOfs] = uint8((off >> 8) & 0x0F)
	registerWritesTotal.WithLabelValues(registerName(base)).Inc()
	return r.t.WriteRegister(ctx, base, data)
}

// readChannel reads the ON/OFF quadruplet that starts at the given register.
func (r registers) readChannel(ctx context.Context, base uint8) (uint16, uint16, error) {
	data, err := r.t.ReadRegister(ctx, base, regIncrement)
	if err != nil {
		return 0, 0, err
	}
	if len(data) != regIncrement {
		return 0, 0, fmt.Errorf("short read of register 0x%02x: expected %d bytes, got %d", base, regIncrement, len(data))
	}
	on := uint16(data[onLowRegOfs]) | (uint16(data[onHighRegOfs]&0x0F) << 8)
	off := uint16(data[offLowRegOfs]) | (uint16(data[offHighRegOfs]&0x0F) << 8)
	return on, off, nil
}

func capValue(v uint16) uint16 {
	if v > MaxValue {
		return MaxValue
	}
	return v
}

// registerName returns a metric label for the given register.
func registerName(reg uint8) string {
	switch {
	case reg == MODE1Reg:
		return "mode1"
	case reg == MODE2Reg:
		return "mode2"
	case reg == PRESCALEReg:
		return "prescale"
	case reg == AllLEDBaseReg:
		return "all_led"
	case reg >= LEDBaseReg && reg < LEDBaseReg+ChannelCount*regIncrement:
		return fmt.Sprintf("led%d", (int(reg)-LEDBaseReg)/regIncrement)
	default:
		return fmt.Sprintf("0x%02x", reg)
	}
}
