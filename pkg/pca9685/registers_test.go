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
	"testing"
	"time"
)

func TestWritePrescaleSequence(t *testing.T) {
	f := &fakeTransport{}
	f.regs[MODE1Reg] = MODE1AutoIncrement | MODE1AllCall
	durations := stubSleep(t, f)

	r := registers{t: f}
	if err := r.writePrescale(context.Background(), 121); err != nil {
		t.Fatalf("writePrescale failed: %v", err)
	}
	assertOps(t, f.ops,
		read(MODE1Reg, 1),
		write(MODE1Reg, 0x31),
		write(PRESCALEReg, 121),
		write(MODE1Reg, 0x21),
		sleepOp(),
		write(MODE1Reg, 0xA1),
	)
	if len(*durations) != 1 || (*durations)[0] != 5*time.Millisecond {
		t.Errorf("expected a single 5ms sleep, got %v", *durations)
	}
}

func TestWritePrescaleClearsRestartWhileSleeping(t *testing.T) {
	f := &fakeTransport{}
	f.regs[MODE1Reg] = MODE1Restart | MODE1AutoIncrement | MODE1AllCall
	stubSleep(t, f)

	r := registers{t: f}
	if err := r.writePrescale(context.Background(), 30); err != nil {
		t.Fatalf("writePrescale failed: %v", err)
	}
	if got := f.ops[1].data[0]; got != 0x31 {
		t.Errorf("expected sleep mode 0x31, got 0x%02x", got)
	}
}

func TestWritePrescaleAbortsOnFailure(t *testing.T) {
	f := &fakeTransport{
		failOn: func(o op) error {
			if o.kind == "w" && o.reg == PRESCALEReg {
				return errBus
			}
			return nil
		},
	}
	stubSleep(t, f)

	r := registers{t: f}
	err := r.writePrescale(context.Background(), 121)
	if err != errBus {
		t.Fatalf("expected transport error to be returned unchanged, got %v", err)
	}
	assertOps(t, f.ops,
		read(MODE1Reg, 1),
		write(MODE1Reg, 0x10),
		write(PRESCALEReg, 121),
	)
}

func TestWakeOscillator(t *testing.T) {
	f := &fakeTransport{}
	f.regs[MODE1Reg] = MODE1Sleep | MODE1AutoIncrement | MODE1AllCall
	durations := stubSleep(t, f)

	r := registers{t: f}
	if err := r.wakeOscillator(context.Background()); err != nil {
		t.Fatalf("wakeOscillator failed: %v", err)
	}
	assertOps(t, f.ops,
		read(MODE1Reg, 1),
		write(MODE1Reg, 0x21),
		sleepOp(),
	)
	if len(*durations) != 1 || (*durations)[0] != 5*time.Millisecond {
		t.Errorf("expected a single 5ms sleep, got %v", *durations)
	}
}

func TestConfigureOutputMode(t *testing.T) {
	f := &fakeTransport{}
	r := registers{t: f}
	if err := r.configureOutputMode(context.Background()); err != nil {
		t.Fatalf("configureOutputMode failed: %v", err)
	}
	assertOps(t, f.ops,
		write(MODE2Reg, 0x04),
		write(MODE1Reg, 0x21),
	)
}

func TestWriteChannelEncoding(t *testing.T) {
	f := &fakeTransport{}
	r := registers{t: f}
	if err := r.writeChannel(context.Background(), channelBase(1), 0x123, 0xABC); err != nil {
		t.Fatalf("writeChannel failed: %v", err)
	}
	assertOps(t, f.ops, write(0x0A, 0x23, 0x01, 0xBC, 0x0A))

	// Values above 4095 are capped
	f.reset()
	if err := r.writeChannel(context.Background(), channelBase(0), 0xFFFF, 0x1000); err != nil {
		t.Fatalf("writeChannel failed: %v", err)
	}
	assertOps(t, f.ops, write(LEDBaseReg, 0xFF, 0x0F, 0xFF, 0x0F))
}

func TestReadChannelDecoding(t *testing.T) {
	f := &fakeTransport{}
	base := channelBase(15)
	copy(f.regs[base:], []byte{0xFF, 0xFF, 0x34, 0x1F})

	r := registers{t: f}
	on, off, err := r.readChannel(context.Background(), base)
	if err != nil {
		t.Fatalf("readChannel failed: %v", err)
	}
	if on != 0xFFF || off != 0xF34 {
		t.Errorf("expected (0xfff, 0xf34), got (0x%x, 0x%x)", on, off)
	}
	assertOps(t, f.ops, read(0x42, 4))
}

func TestChannelBase(t *testing.T) {
	if got := channelBase(0); got != 0x06 {
		t.Errorf("channel 0: expected 0x06, got 0x%02x", got)
	}
	if got := channelBase(15); got != 0x42 {
		t.Errorf("channel 15: expected 0x42, got 0x%02x", got)
	}
}
