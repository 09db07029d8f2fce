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

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// State of a chip session.
type State uint8

const (
	// StateAcquired is the state directly after Acquire.
	StateAcquired State = iota
	// StateInitialized is reached after a successful Initialize.
	StateInitialized
	// StateFailed is reached when Initialize failed halfway.
	StateFailed
	// StateReleased is the final state.
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateAcquired:
		return "acquired"
	case StateInitialized:
		return "initialized"
	case StateFailed:
		return "failed"
	case StateReleased:
		return "released"
	default:
		return "unknown"
	}
}

// DutyCycle holds the ON and OFF tick of a single channel.
type DutyCycle struct {
	On  int `json:"on"`
	Off int `json:"off"`
}

// Chip is a session with a single PCA9685 chip.
//
// A Chip is not safe for concurrent use. Multi-register sequences
// (initialize, prescale updates) must not be interleaved with other
// transactions on the same device, so all calls must be serialized by
// the owner of the Chip.
type Chip struct {
	log                 zerolog.Logger
	transport           Transport
	regs                registers
	state               State
	pwmFrequency        int
	oscillatorFrequency int
}

// Acquire creates a session for the chip reachable through the given transport.
// The session owns the transport; it is closed by Release.
func Acquire(t Transport, log zerolog.Logger) *Chip {
	return &Chip{
		log:       log.With().Str("component", "pca9685").Logger(),
		transport: t,
		regs:      registers{t: t},
		state:     StateAcquired,
	}
}

// State returns the current state of the session.
func (c *Chip) State() State {
	return c.state
}

// PWMFrequency returns the current output frequency (Hz).
// Returns 0 if the chip has never been initialized.
func (c *Chip) PWMFrequency() int {
	return c.pwmFrequency
}

// OscillatorFrequency returns the oscillator frequency (Hz) passed to Initialize.
func (c *Chip) OscillatorFrequency() int {
	return c.oscillatorFrequency
}

// Initialize runs the wake up sequence and sets the PWM frequency.
//
// All channels are switched off before the mode registers are touched.
// When any step fails, the chip is left in the failed state and must be
// initialized again before channel operations are accepted.
func (c *Chip) Initialize(ctx context.Context, pwmFrequency, oscillatorFrequency int) error {
	if c.state == StateReleased {
		return errors.Wrap(InvalidStateError, "chip is released")
	}
	if !isValidPWMFrequency(pwmFrequency) {
		return invalidArgument("PWM frequency must be in %d..%d range, got %d", MinPWMFrequency, MaxPWMFrequency, pwmFrequency)
	}
	if oscillatorFrequency <= 0 {
		return invalidArgument("oscillator frequency must be positive, got %d", oscillatorFrequency)
	}

	prescale := ComputePrescale(pwmFrequency, oscillatorFrequency)
	log := c.log.With().
		Int("pwm_frequency", pwmFrequency).
		Int("oscillator_frequency", oscillatorFrequency).
		Uint8("prescale", prescale).
		Logger()
	log.Debug().Msg("initializing chip...")

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"all-off", c.regs.writeAllOff},
		{"output-mode", c.regs.configureOutputMode},
		{"wake", c.regs.wakeOscillator},
		{"prescale", func(ctx context.Context) error { return c.regs.writePrescale(ctx, prescale) }},
	}
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			c.state = StateFailed
			initializeTotal.WithLabelValues("failed").Inc()
			log.Debug().Err(err).Str("step", step.name).Msg("initialize failed")
			return err
		}
	}

	c.pwmFrequency = pwmFrequency
	c.oscillatorFrequency = oscillatorFrequency
	c.state = StateInitialized
	initializeTotal.WithLabelValues("success").Inc()
	log.Debug().Msg("initialized chip")
	return nil
}

// SetChannel sets the ON and OFF tick of the given channel (0..15).
func (c *Chip) SetChannel(ctx context.Context, channel, on, off int) error {
	if err := c.checkInitialized(); err != nil {
		return err
	}
	if err := validateChannel(channel); err != nil {
		return err
	}
	if err := validateDutyCycle(on, off); err != nil {
		return err
	}
	return c.regs.writeChannel(ctx, channelBase(channel), uint16(on), uint16(off))
}

// SetAll sets the ON and OFF tick of all channels at once.
func (c *Chip) SetAll(ctx context.Context, on, off int) error {
	if err := c.checkInitialized(); err != nil {
		return err
	}
	if err := validateDutyCycle(on, off); err != nil {
		return err
	}
	return c.regs.writeChannel(ctx, AllLEDBaseReg, uint16(on), uint16(off))
}

// GetChannel returns the ON and OFF tick of the given channel (0..15).
func (c *Chip) GetChannel(ctx context.Context, channel int) (DutyCycle, error) {
	if err := c.checkInitialized(); err != nil {
		return DutyCycle{}, err
	}
	if err := validateChannel(channel); err != nil {
		return DutyCycle{}, err
	}
	on, off, err := c.regs.readChannel(ctx, channelBase(channel))
	if err != nil {
		return DutyCycle{}, err
	}
	return DutyCycle{On: int(on), Off: int(off)}, nil
}

// GetAll returns the ON and OFF ticks of all channels, ordered by channel.
// The first failing read aborts the operation.
func (c *Chip) GetAll(ctx context.Context) ([]DutyCycle, error) {
	if err := c.checkInitialized(); err != nil {
		return nil, err
	}
	result := make([]DutyCycle, 0, ChannelCount)
	for channel := 0; channel < ChannelCount; channel++ {
		on, off, err := c.regs.readChannel(ctx, channelBase(channel))
		if err != nil {
			return nil, err
		}
		result = append(result, DutyCycle{On: int(on), Off: int(off)})
	}
	return result, nil
}

// SetPWMFrequency changes the output frequency of all channels.
// Setting the current frequency again is a no-op.
func (c *Chip) SetPWMFrequency(ctx context.Context, hz int) error {
	if err := c.checkInitialized(); err != nil {
		return err
	}
	if !isValidPWMFrequency(hz) {
		return invalidArgument("PWM frequency must be in %d..%d range, got %d", MinPWMFrequency, MaxPWMFrequency, hz)
	}
	if hz == c.pwmFrequency {
		return nil
	}
	prescale := ComputePrescale(hz, c.oscillatorFrequency)
	if err := c.regs.writePrescale(ctx, prescale); err != nil {
		return err
	}
	prescaleChangesTotal.Inc()
	c.log.Debug().
		Int("old", c.pwmFrequency).
		Int("new", hz).
		Uint8("prescale", prescale).
		Msg("changed PWM frequency")
	c.pwmFrequency = hz
	return nil
}

// PulseWidth sets the given channel to a pulse of the given length,
// starting at tick 0.
func (c *Chip) PulseWidth(ctx context.Context, channel, microseconds int) error {
	if err := c.checkInitialized(); err != nil {
		return err
	}
	if microseconds <= 0 {
		return invalidArgument("pulse width must be positive, got %d", microseconds)
	}
	ticks := MicrosecondsToTicks(microseconds, c.pwmFrequency, c.oscillatorFrequency)
	return c.SetChannel(ctx, channel, 0, int(ticks))
}

// GetPulseWidth returns the pulse width (in microseconds) of the given channel.
// The ON tick is ignored.
func (c *Chip) GetPulseWidth(ctx context.Context, channel int) (int, error) {
	dc, err := c.GetChannel(ctx, channel)
	if err != nil {
		return 0, err
	}
	return TicksToMicroseconds(uint16(dc.Off), c.pwmFrequency, c.oscillatorFrequency), nil
}

// Prescale reads the PRESCALE register.
func (c *Chip) Prescale(ctx context.Context) (uint8, error) {
	if err := c.checkInitialized(); err != nil {
		return 0, err
	}
	return c.regs.readPrescale(ctx)
}

// Release closes the transport.
// It is valid in any state and only closes the transport the first time.
func (c *Chip) Release() error {
	if c.state == StateReleased {
		return nil
	}
	c.state = StateReleased
	if err := c.transport.Close(); err != nil {
		return errors.Wrap(err, "failed to close transport")
	}
	return nil
}

// checkInitialized returns an error unless the chip is initialized.
func (c *Chip) checkInitialized() error {
	switch c.state {
	case StateInitialized:
		return nil
	case StateReleased:
		return errors.Wrap(InvalidStateError, "chip is released")
	default:
		return errors.Wrapf(NotInitializedError, "chip is %s", c.state)
	}
}

func validateChannel(channel int) error {
	if channel < 0 || channel >= ChannelCount {
		return invalidArgument("channel must be in 0..%d range, got %d", ChannelCount-1, channel)
	}
	return nil
}

func validateDutyCycle(on, off int) error {
	if on < 0 || on > MaxValue {
		return invalidArgument("on value must be in 0..%d range, got %d", MaxValue, on)
	}
	if off < 0 || off > MaxValue {
		return invalidArgument("off value must be in 0..%d range, got %d", MaxValue, off)
	}
	return nil
}
