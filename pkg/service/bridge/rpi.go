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
	"sync"
	"time"

	"github.com/ecc1/gpio"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type statusLed struct {
	sync.Mutex
	pin         OutputPin
	cancelBlink func()
}

// Turn led on/off, cancel blink
func (l *statusLed) Set(on bool) error {
	l.Mutex.Lock()
	defer l.Mutex.Unlock()

	if l.pin == nil {
		return nil
	}
	if cancel := l.cancelBlink; cancel != nil {
		l.cancelBlink = nil
		cancel()
	}
	if err := l.pin.Write(on); err != nil {
		return errors.Wrap(err, "Write failed")
	}
	return nil
}

// Blink led on/off
func (l *statusLed) Blink(delay time.Duration) error {
	l.Mutex.Lock()
	defer l.Mutex.Unlock()

	if l.pin == nil {
		return nil
	}
	if cancel := l.cancelBlink; cancel != nil {
		l.cancelBlink = nil
		cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.cancelBlink = cancel
	go func() {
		value := true
		for {
			l.Mutex.Lock()
			if ctx.Err() == nil {
				l.pin.Write(value)
				value = !value
			}
			l.Mutex.Unlock()
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// RaspberryPiConfig configures the sysfs/ioctl based bridge.
type RaspberryPiConfig struct {
	// Location of the I2C bus device (e.g. /dev/i2c-1)
	I2CLocation string
	// Pin used to clock the bus free after a lockup (-1 to disable)
	SCLPin int
	// Pin of the status led (-1 for none)
	StatusLEDPin int
}

type piBridge struct {
	mutex     sync.Mutex
	log       zerolog.Logger
	config    RaspberryPiConfig
	statusLed statusLed
	bus       I2CBus
}

// NewRaspberryPiBridge implements the bridge for Raspberry PI's
// using sysfs GPIO and the i2c-dev ioctl interface.
func NewRaspberryPiBridge(log zerolog.Logger, config RaspberryPiConfig) (API, error) {
	b := &piBridge{
		log:    log.With().Str("component", "rpi-bridge").Logger(),
		config: config,
	}
	if config.StatusLEDPin >= 0 {
		activeLow := true
		initialValue := false
		pin, err := gpio.Output(config.StatusLEDPin, activeLow, initialValue)
		if err != nil {
			return nil, errors.Wrap(err, "Output[statusLed] failed")
		}
		b.statusLed.pin = pin
	}
	return b, nil
}

// Output initializes a GPIO output pin with the given pin number
// and initial logical value.
func (p *piBridge) Output(pinNumber int, activeLow bool, initialValue bool) (OutputPin, error) {
	if pinNumber < 0 {
		return nil, errors.Wrapf(InvalidPinError, "pin %d", pinNumber)
	}
	pin, err := gpio.Output(pinNumber, activeLow, initialValue)
	if err != nil {
		return nil, maskAny(err)
	}
	return pin, nil
}

// Turn status led on/off
func (p *piBridge) SetStatusLED(on bool) error {
	if err := p.statusLed.Set(on); err != nil {
		return errors.Wrap(err, "Set[statusLed] failed")
	}
	return nil
}

// Blink status led with given duration between on/off
func (p *piBridge) BlinkStatusLED(delay time.Duration) error {
	if err := p.statusLed.Blink(delay); err != nil {
		return errors.Wrap(err, "Blink[statusLed] failed")
	}
	return nil
}

// Open the I2C bus
func (p *piBridge) I2CBus() (I2CBus, error) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.bus == nil {
		bus, err := NewI2CBus(p.log, p.config.I2CLocation, p.config.SCLPin)
		if err != nil {
			return nil, errors.Wrap(err, "NewI2CBus failed")
		}
		p.bus = bus
	}
	return p.bus, nil
}

func (p *piBridge) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.statusLed.Set(false)
	if p.bus != nil {
		bus := p.bus
		p.bus = nil
		if err := bus.Close(); err != nil {
			return errors.Wrap(err, "Close failed")
		}
	}
	return nil
}
