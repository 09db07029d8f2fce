//    Copyright 2025 Ewout Prangsma
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
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestVirtualBusPowerOnState(t *testing.T) {
	b := NewVirtualBus(0x40)
	if got := b.Register(0x40, virtualMode1Reg); got != 0x11 {
		t.Errorf("MODE1 = 0x%02x, want 0x11", got)
	}
	if got := b.Register(0x40, virtualMode2Reg); got != 0x04 {
		t.Errorf("MODE2 = 0x%02x, want 0x04", got)
	}
	if got := b.Register(0x40, virtualPrescaleReg); got != 0x1E {
		t.Errorf("PRESCALE = 0x%02x, want 0x1e", got)
	}
}

func TestVirtualBusDetect(t *testing.T) {
	b := NewVirtualBus(0x41, 0x40, 0x70)
	got := b.DetectSlaveAddresses()
	if !bytes.Equal(got, []byte{0x40, 0x41, 0x70}) {
		t.Errorf("DetectSlaveAddresses = %v", got)
	}
}

func TestVirtualBusUnknownAddress(t *testing.T) {
	b := NewVirtualBus(0x40)
	err := b.Execute(context.Background(), 0x41, func(ctx context.Context, dev I2CDevice) error {
		t.Error("operation must not run for unknown address")
		return nil
	})
	if !IsDeviceNotFound(err) {
		t.Errorf("expected device not found, got %v", err)
	}
}

func TestVirtualBusAutoIncrement(t *testing.T) {
	ctx := context.Background()
	b := NewVirtualBus(0x40)
	if err := b.Execute(ctx, 0x40, func(ctx context.Context, dev I2CDevice) error {
		return dev.WriteReg(0x0A, []byte{1, 2, 3, 4})
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	buf := make([]byte, 4)
	if err := b.Execute(ctx, 0x40, func(ctx context.Context, dev I2CDevice) error {
		return dev.ReadReg(0x0A, buf)
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !bytes.Equal(buf, []byte{1, 2, 3, 4}) {
		t.Errorf("read back %v", buf)
	}
}

func TestVirtualBusAllLEDPropagates(t *testing.T) {
	b := NewVirtualBus(0x40)
	if err := b.Execute(context.Background(), 0x40, func(ctx context.Context, dev I2CDevice) error {
		return dev.WriteReg(virtualAllLEDReg, []byte{0, 0, 0x33, 0x01})
	}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for ch := uint8(0); ch < 16; ch++ {
		base := virtualLEDBaseReg + 4*ch
		if lo, hi := b.Register(0x40, base+2), b.Register(0x40, base+3); lo != 0x33 || hi != 0x01 {
			t.Errorf("channel %d OFF = 0x%02x 0x%02x", ch, lo, hi)
		}
	}
}

func TestVirtualBusPrescaleRequiresSleep(t *testing.T) {
	ctx := context.Background()
	b := NewVirtualBus(0x40)
	write := func(reg, val uint8) {
		if err := b.Execute(ctx, 0x40, func(ctx context.Context, dev I2CDevice) error {
			return dev.WriteByteReg(reg, val)
		}); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
	// Wake up, then try to write prescale
	write(virtualMode1Reg, 0x01)
	write(virtualPrescaleReg, 121)
	if got := b.Register(0x40, virtualPrescaleReg); got != 0x1E {
		t.Errorf("PRESCALE changed while awake: %d", got)
	}
	// Sleep, then write prescale
	write(virtualMode1Reg, 0x11)
	write(virtualPrescaleReg, 121)
	if got := b.Register(0x40, virtualPrescaleReg); got != 121 {
		t.Errorf("PRESCALE = %d, want 121", got)
	}
}

func TestVirtualBusFailureHook(t *testing.T) {
	ctx := context.Background()
	b := NewVirtualBus(0x40)
	failure := errors.New("nack")
	b.SetFailure(func(address, reg uint8, write bool) error {
		if write {
			return failure
		}
		return nil
	})
	err := b.Execute(ctx, 0x40, func(ctx context.Context, dev I2CDevice) error {
		return dev.WriteByteReg(0x06, 1)
	})
	if err != failure {
		t.Errorf("expected failure, got %v", err)
	}
	if got := b.Register(0x40, 0x06); got != 0 {
		t.Errorf("failed write changed register to %d", got)
	}
	if err := b.Execute(ctx, 0x40, func(ctx context.Context, dev I2CDevice) error {
		_, err := dev.ReadByteReg(0x06)
		return err
	}); err != nil {
		t.Errorf("read failed: %v", err)
	}
}

func TestVirtualBusClosed(t *testing.T) {
	b := NewVirtualBus(0x40)
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	err := b.Execute(context.Background(), 0x40, func(ctx context.Context, dev I2CDevice) error { return nil })
	if !IsDeviceClosed(err) {
		t.Errorf("expected device closed, got %v", err)
	}
}

func TestVirtualBridgeOutput(t *testing.T) {
	br := NewVirtualBridge()
	if _, err := br.Output(-1, true, false); !IsInvalidPin(err) {
		t.Errorf("expected invalid pin, got %v", err)
	}
	pin, err := br.Output(4, true, true)
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if !br.Pin(4).Value() {
		t.Error("expected initial value true")
	}
	pin.Write(false)
	if br.Pin(4).Value() {
		t.Error("expected value false after write")
	}
	if br.Pin(5) != nil {
		t.Error("expected nil for unrequested pin")
	}
}
