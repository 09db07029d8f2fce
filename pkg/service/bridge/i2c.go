// Copyright 2020 Ewout Prangsma
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
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/ecc1/gpio"
	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/rs/zerolog"
)

type i2cBus struct {
	log                  zerolog.Logger
	location             string
	devices              map[uint8]*i2cDevice
	queue                chan func()
	sclPin               int
	tryRecoverFromLockup bool
}

const (
	I2C_RECOVER_NUM_CLOCKS = 10    /* # clock cycles for recovery  */
	I2C_RECOVER_CLOCK_FREQ = 50000 /* clock frequency for recovery */

	I2C_RECOVER_CLOCK_DELAY_US = (1000000 / (2 * I2C_RECOVER_CLOCK_FREQ))
)

// NewI2CBus returns accessors the the I2C bus at the given location (e.g. /dev/i2c-1).
// When sclPin >= 0, the bus is clocked free (lockup recovery) at startup and after
// every failed operation.
func NewI2CBus(log zerolog.Logger, location string, sclPin int) (I2CBus, error) {
	b := &i2cBus{
		log:                  log.With().Str("component", "i2c-bus").Str("location", location).Logger(),
		location:             location,
		devices:              make(map[uint8]*i2cDevice),
		queue:                make(chan func()),
		sclPin:               sclPin,
		tryRecoverFromLockup: sclPin >= 0,
	}
	go b.queueProcessor()
	if b.tryRecoverFromLockup {
		if err := b.recoverFromLockup(); err != nil {
			return nil, fmt.Errorf("failed to recover bus at startup: %w", err)
		}
		time.Sleep(time.Second * 2)
	}
	return b, nil
}

// Execute an option on the bus.
func (b *i2cBus) Execute(ctx context.Context, address uint8, op func(context.Context, I2CDevice) error) error {
	result := make(chan error, 1)
	req := func() {
		result <- b.execute(ctx, address, op)
	}

	// Put request in queue
	select {
	case b.queue <- req:
		// Request is on the queue
	case <-ctx.Done():
		// Context canceled
		return ctx.Err()
	}

	// The operation itself is not canceled, so always wait for it.
	return <-result
}

// run the given function on the queue processor and wait for it.
func (b *i2cBus) runOnQueue(f func()) {
	done := make(chan struct{})
	b.queue <- func() {
		defer close(done)
		f()
	}
	<-done
}

// Process bus requests from the queue until the queue is closed.
func (b *i2cBus) queueProcessor() {
	// Ensure we're always using the same OS thread
	runtime.LockOSThread()

	for req := range b.queue {
		req()
	}
}

// Execute an option on the bus.
// Failed operations are not retried. The device connection is dropped
// so the next operation starts with a fresh one.
func (b *i2cBus) execute(ctx context.Context, address uint8, op func(context.Context, I2CDevice) error) error {
	addressLabel := strconv.Itoa(int(address))
	i2cExecuteCounters.WithLabelValues(addressLabel).Inc()

	// Open device
	dev, err := b.openDevice(address)
	if err != nil {
		i2cExecuteErrorCounters.WithLabelValues(addressLabel).Inc()
		return fmt.Errorf("openDevice(%d) failed: %w", address, err)
	}

	// Execute operation
	if err := op(ctx, dev); err != nil {
		i2cExecuteErrorCounters.WithLabelValues(addressLabel).Inc()
		dev.closeFile()
		delete(b.devices, address)

		// Perform recovery (if configured)
		if b.tryRecoverFromLockup {
			i2cRecoveryAttemptsTotal.Inc()
			if rerr := b.recoverFromLockup(); rerr != nil {
				i2cRecoveryFailedTotal.Inc()
				b.log.Warn().Err(rerr).Msg("i2c recovery failed")
			} else {
				i2cRecoverySucceededTotal.Inc()
			}
		}
		return err
	}
	return nil
}

// Open a connection to a device at the given address.
func (b *i2cBus) openDevice(address uint8) (*i2cDevice, error) {
	// Did we already open the device?
	if d, found := b.devices[address]; found {
		return d, nil
	}

	// Open new device
	d, err := newI2CDevice(b.location, address)
	if err != nil {
		return nil, err
	}

	// Register device
	b.devices[address] = d

	return d, nil
}

// DetectSlaveAddresses probes the bus to detect available addresses.
func (b *i2cBus) DetectSlaveAddresses() []byte {
	var result []byte
	b.runOnQueue(func() {
		for addr := uint8(1); addr < 128; addr++ {
			if d, err := newI2CDevice(b.location, addr); err == nil {
				if err := d.DetectDevice(); err == nil {
					result = append(result, addr)
				}
				d.closeFile()
			}
		}
	})
	return result
}

// Release closes the connection to the device at the given address.
func (b *i2cBus) Release(address uint8) error {
	var err error
	b.runOnQueue(func() {
		if d, found := b.devices[address]; found {
			delete(b.devices, address)
			err = d.closeFile()
		}
	})
	return err
}

// Close the bus and all devices on it
func (b *i2cBus) Close() error {
	var ae aerr.AggregateError
	b.runOnQueue(func() {
		for addr, d := range b.devices {
			if err := d.closeFile(); err != nil {
				ae.Add(err)
			}
			delete(b.devices, addr)
		}
	})
	close(b.queue)
	return ae.AsError()
}

// Try to recover the i2c bus from lockup by clocking SCL.
func (b *i2cBus) recoverFromLockup() error {
	b.log.Info().Int("scl", b.sclPin).Msg("Performing i2c recovery ...")
	activeLow := true
	initialValue := true
	scl, err := gpio.Output(b.sclPin, activeLow, initialValue)
	if err != nil {
		return fmt.Errorf("failed to set scl pin to output: %w", err)
	}
	for i := 0; i < I2C_RECOVER_NUM_CLOCKS; i++ {
		time.Sleep(time.Microsecond * I2C_RECOVER_CLOCK_DELAY_US)
		if err := scl.Write(false); err != nil {
			return fmt.Errorf("failed to lower scl during i2c recovery: %w", err)
		}
		time.Sleep(time.Microsecond * I2C_RECOVER_CLOCK_DELAY_US)
		if err := scl.Write(true); err != nil {
			return fmt.Errorf("failed to raise scl during i2c recovery: %w", err)
		}
	}
	// Reset pin to be input
	if _, err := gpio.Input(b.sclPin, activeLow); err != nil {
		return fmt.Errorf("failed to reset scl pin to input: %w", err)
	}
	// Unexport the pin
	unexportPath := "/sys/class/gpio/unexport"
	unexportContent := strconv.Itoa(b.sclPin)
	if err := os.WriteFile(unexportPath, []byte(unexportContent), 0644); err != nil {
		return fmt.Errorf("failed to unexport scl pin to input: %w", err)
	}

	b.log.Info().Msg("Performed i2c recovery.")
	return nil
}
