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

//go:build linux

package bridge

import (
	"sync"
	"time"

	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/warthog618/go-gpiocdev"
)

// CharDevConfig configures the character device based bridge.
type CharDevConfig struct {
	// Name of the I2C bus as known to periph.io (e.g. "I2C1" or "/dev/i2c-1")
	I2CBus string
	// Name of the GPIO chip (e.g. "gpiochip0")
	GPIOChip string
	// Line offset of the status led (-1 for none)
	StatusLEDPin int
}

type cdevBridge struct {
	mutex     sync.Mutex
	log       zerolog.Logger
	config    CharDevConfig
	statusLed statusLed
	lines     []*gpiocdev.Line
	bus       I2CBus
}

// cdevLine adapts a requested gpiocdev line to OutputPin.
type cdevLine struct {
	line      *gpiocdev.Line
	activeLow bool
}

func (l cdevLine) Write(value bool) error {
	v := 0
	if value != l.activeLow {
		v = 1
	}
	return l.line.SetValue(v)
}

// NewCharDevBridge implements the bridge using periph.io for I2C and
// the GPIO character device for output pins.
func NewCharDevBridge(log zerolog.Logger, config CharDevConfig) (API, error) {
	b := &cdevBridge{
		log:    log.With().Str("component", "cdev-bridge").Logger(),
		config: config,
	}
	if config.StatusLEDPin >= 0 {
		pin, err := b.Output(config.StatusLEDPin, true, false)
		if err != nil {
			return nil, errors.Wrap(err, "Output[statusLed] failed")
		}
		b.statusLed.pin = pin
	}
	return b, nil
}

// Output requests a GPIO line as output with the given initial logical value.
func (b *cdevBridge) Output(pinNumber int, activeLow bool, initialValue bool) (OutputPin, error) {
	if pinNumber < 0 {
		return nil, errors.Wrapf(InvalidPinError, "pin %d", pinNumber)
	}
	b.mutex.Lock()
	defer b.mutex.Unlock()

	physical := 0
	if initialValue != activeLow {
		physical = 1
	}
	line, err := gpiocdev.RequestLine(b.config.GPIOChip, pinNumber,
		gpiocdev.AsOutput(physical),
		gpiocdev.WithConsumer("pwmworker"))
	if err != nil {
		return nil, errors.Wrapf(err, "RequestLine(%s, %d) failed", b.config.GPIOChip, pinNumber)
	}
	b.lines = append(b.lines, line)
	return cdevLine{line: line, activeLow: activeLow}, nil
}

// Turn status led on/off
func (b *cdevBridge) SetStatusLED(on bool) error {
	return b.statusLed.Set(on)
}

// Blink status led with given duration between on/off
func (b *cdevBridge) BlinkStatusLED(delay time.Duration) error {
	return b.statusLed.Blink(delay)
}

// Open the I2C bus
func (b *cdevBridge) I2CBus() (I2CBus, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.bus == nil {
		bus, err := NewPeriphI2CBus(b.config.I2CBus)
		if err != nil {
			return nil, err
		}
		b.bus = bus
	}
	return b.bus, nil
}

// Close the bus and release all lines.
func (b *cdevBridge) Close() error {
	b.statusLed.Set(false)

	b.mutex.Lock()
	defer b.mutex.Unlock()

	var ae aerr.AggregateError
	for _, l := range b.lines {
		if err := l.Reconfigure(gpiocdev.AsInput); err != nil {
			ae.Add(err)
		}
		if err := l.Close(); err != nil {
			ae.Add(err)
		}
	}
	b.lines = nil
	if b.bus != nil {
		if err := b.bus.Close(); err != nil {
			ae.Add(err)
		}
		b.bus = nil
	}
	return ae.AsError()
}
