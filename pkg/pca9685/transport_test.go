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
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// op is a single recorded transaction (or sleep).
type op struct {
	kind string // "w", "r" or "sleep"
	reg  uint8
	data []byte
	n    int
}

func (o op) String() string {
	switch o.kind {
	case "w":
		return fmt.Sprintf("w[0x%02x]%x", o.reg, o.data)
	case "r":
		return fmt.Sprintf("r[0x%02x]%d", o.reg, o.n)
	default:
		return o.kind
	}
}

func write(reg uint8, data ...byte) op { return op{kind: "w", reg: reg, data: data} }
func read(reg uint8, n int) op         { return op{kind: "r", reg: reg, n: n} }
func sleepOp() op                      { return op{kind: "sleep"} }

// fakeTransport is a register map with auto-increment addressing
// that records all transactions.
type fakeTransport struct {
	regs   [256]byte
	ops    []op
	closed int
	// failOn returns a non-nil error when the given transaction must fail.
	failOn func(o op) error
}

func (f *fakeTransport) WriteRegister(ctx context.Context, reg uint8, data []byte) error {
	o := write(reg, append([]byte(nil), data...)...)
	f.ops = append(f.ops, o)
	if f.failOn != nil {
		if err := f.failOn(o); err != nil {
			return err
		}
	}
	for i, b := range data {
		f.regs[int(reg)+i] = b
	}
	return nil
}

func (f *fakeTransport) ReadRegister(ctx context.Context, reg uint8, length int) ([]byte, error) {
	o := read(reg, length)
	f.ops = append(f.ops, o)
	if f.failOn != nil {
		if err := f.failOn(o); err != nil {
			return nil, err
		}
	}
	result := make([]byte, length)
	copy(result, f.regs[int(reg):])
	return result, nil
}

func (f *fakeTransport) Close() error {
	f.closed++
	return nil
}

// reset forgets all recorded transactions.
func (f *fakeTransport) reset() {
	f.ops = nil
}

// stubSleep replaces the package sleep function with one that records
// a sleep operation in the given transport.
func stubSleep(t *testing.T, f *fakeTransport) *[]time.Duration {
	t.Helper()
	var durations []time.Duration
	old := sleep
	sleep = func(d time.Duration) {
		durations = append(durations, d)
		f.ops = append(f.ops, sleepOp())
	}
	t.Cleanup(func() { sleep = old })
	return &durations
}

func assertOps(t *testing.T, actual []op, expected ...op) {
	t.Helper()
	if len(actual) != len(expected) {
		t.Fatalf("expected %d operations %v, got %d %v", len(expected), expected, len(actual), actual)
	}
	for i := range expected {
		a, e := actual[i], expected[i]
		if a.kind != e.kind || a.reg != e.reg || a.n != e.n || !bytes.Equal(a.data, e.data) {
			t.Errorf("operation %d: expected %v, got %v", i, e, a)
		}
	}
}

var errBus = errors.New("bus failure")
