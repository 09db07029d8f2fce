//    Copyright 2017-2025 Ewout Prangsma
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

package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	aerr "github.com/ewoutp/go-aggregate-error"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/binkynet/PWMWorker/pkg/pca9685"
	"github.com/binkynet/PWMWorker/pkg/service/bridge"
)

// Service contains the API that is exposed by the PWM worker.
// All operations are serialized; it is safe to call them from
// multiple goroutines (HTTP handlers, MQTT callbacks).
type Service interface {
	// Configure acquires and initializes the chip, then enables its outputs.
	Configure(ctx context.Context) error
	// Run the service until the given context is canceled.
	Run(ctx context.Context) error
	// Close brings the chip back to a safe state and releases all resources.
	Close(ctx context.Context) error

	// Status returns the current state of the chip.
	Status(ctx context.Context) Status
	// SetChannel sets the ON and OFF tick of a single channel.
	SetChannel(ctx context.Context, channel, on, off int) error
	// SetAll sets the ON and OFF tick of all channels at once.
	SetAll(ctx context.Context, on, off int) error
	// GetChannel reads the state of a single channel.
	GetChannel(ctx context.Context, channel int) (Channel, error)
	// GetAll reads the state of all channels.
	GetAll(ctx context.Context) ([]Channel, error)
	// GetPWMFrequency returns the current frequency settings.
	GetPWMFrequency(ctx context.Context) (Frequency, error)
	// SetPWMFrequency changes the PWM frequency.
	SetPWMFrequency(ctx context.Context, hz int) error
	// SetPulseWidth sets the high time of a channel in microseconds.
	SetPulseWidth(ctx context.Context, channel, microseconds int) error
	// GetPulseWidth returns the high time of a channel in microseconds.
	GetPulseWidth(ctx context.Context, channel int) (int, error)
	// SetOutputEnabled drives the OE pin of the chip.
	SetOutputEnabled(ctx context.Context, enabled bool) error
	// Reinitialize runs the initialize sequence again.
	Reinitialize(ctx context.Context) error
}

// Config of the service.
type Config struct {
	ProgramVersion      string
	Address             uint8
	PWMFrequency        int
	OscillatorFrequency int
	// Pin connected to the active-low OE input (-1 for none)
	OutputEnablePin int
}

// Dependencies of the service.
type Dependencies struct {
	Logger zerolog.Logger
	Bridge bridge.API
}

// Status of the worker.
type Status struct {
	ProgramVersion      string  `json:"program_version"`
	Address             uint8   `json:"address"`
	State               string  `json:"state"`
	PWMFrequency        int     `json:"pwm_frequency"`
	OscillatorFrequency int     `json:"oscillator_frequency"`
	Prescale            *uint8  `json:"prescale,omitempty"`
	EffectiveFrequency  float64 `json:"effective_frequency,omitempty"`
	OutputEnabled       bool    `json:"output_enabled"`
	HasOutputEnablePin  bool    `json:"has_output_enable_pin"`
	StartedAt           string  `json:"started_at"`
	LastError           string  `json:"last_error,omitempty"`
}

// Channel holds the state of a single channel.
type Channel struct {
	Channel      int `json:"channel"`
	On           int `json:"on"`
	Off          int `json:"off"`
	Microseconds int `json:"microseconds"`
}

// Frequency holds the frequency settings of the chip.
type Frequency struct {
	Hz                 int     `json:"hz"`
	OscillatorHz       int     `json:"oscillator_hz"`
	Prescale           uint8   `json:"prescale"`
	EffectiveFrequency float64 `json:"effective_frequency"`
}

type service struct {
	Config
	Dependencies

	mutex         sync.Mutex
	log           zerolog.Logger
	chip          *pca9685.Chip
	oePin         bridge.OutputPin
	outputEnabled bool
	lastError     error
	startedAt     time.Time
	activeCount   uint32
}

// NewService creates a Service instance and returns it.
func NewService(conf Config, deps Dependencies) (Service, error) {
	if deps.Bridge == nil {
		return nil, errors.New("bridge is required")
	}
	return &service{
		Config:       conf,
		Dependencies: deps,
		log: deps.Logger.With().
			Str("component", "service").
			Str("address", formatAddress(conf.Address)).
			Logger(),
		startedAt: time.Now(),
	}, nil
}

// Configure acquires the chip, initializes it and enables its outputs.
// When initialization fails, outputs stay disabled.
func (s *service) Configure(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	log := s.log
	if s.chip != nil {
		return errors.Wrap(pca9685.InvalidStateError, "already configured")
	}
	bus, err := s.Bridge.I2CBus()
	if err != nil {
		return errors.Wrap(err, "I2CBus failed")
	}
	if s.OutputEnablePin >= 0 {
		// OE is active-low; logical true enables the outputs.
		pin, err := s.Bridge.Output(s.OutputEnablePin, true, false)
		if err != nil {
			return errors.Wrap(err, "Output[oe] failed")
		}
		s.oePin = pin
	}
	dev := bridge.NewRegisterDevice(bus, s.Address)
	s.chip = pca9685.Acquire(dev, s.Logger)

	log.Debug().
		Int("pwm-frequency", s.PWMFrequency).
		Str("oscillator", humanize.SIWithDigits(float64(s.OscillatorFrequency), 3, "Hz")).
		Msg("Initializing chip...")
	if err := s.initialize(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to initialize chip")
		return err
	}
	if err := s.setOutputEnabled(true); err != nil {
		return err
	}
	log.Info().Msg("Configured chip")
	s.onActive()
	return nil
}

// initialize the chip, keeping track of metrics and the last error.
func (s *service) initialize(ctx context.Context) error {
	err := s.chip.Initialize(ctx, s.PWMFrequency, s.OscillatorFrequency)
	s.lastError = err
	chipStateGauge.Set(float64(s.chip.State()))
	return err
}

// Run the service until the given context is canceled.
func (s *service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.runActiveNotify(ctx) })
	return g.Wait()
}

// Close disables the outputs, turns all channels off and releases
// the chip and bridge.
func (s *service) Close(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var ae aerr.AggregateError
	if s.oePin != nil {
		if err := s.setOutputEnabled(false); err != nil {
			ae.Add(err)
		}
	}
	if chip := s.chip; chip != nil {
		if chip.State() == pca9685.StateInitialized {
			if err := chip.SetAll(ctx, 0, 0); err != nil {
				ae.Add(err)
			}
		}
		if err := chip.Release(); err != nil {
			ae.Add(err)
		}
		chipStateGauge.Set(float64(chip.State()))
	}
	if err := s.Bridge.Close(); err != nil {
		ae.Add(err)
	}
	return ae.AsError()
}

// onActive is called when a chip change is applied.
func (s *service) onActive() {
	atomic.AddUint32(&s.activeCount, 1)
}

// runActiveNotify updates the blinking status when a chip change has been applied
func (s *service) runActiveNotify(ctx context.Context) error {
	lastActiveCount := uint32(0)
	count := 0
	for {
		select {
		case <-ctx.Done():
			// Context canceled
			s.Bridge.SetStatusLED(false)
			return nil
		case <-time.After(time.Second / 10):
			newActiveCount := atomic.LoadUint32(&s.activeCount)
			if newActiveCount != lastActiveCount {
				lastActiveCount = newActiveCount
				s.Bridge.BlinkStatusLED(time.Second / 10)
				count = 0
			} else if count < 20 {
				count++
			} else {
				count = 0
				s.Bridge.SetStatusLED(true)
			}
		}
	}
}

// Status returns the current state of the chip.
func (s *service) Status(ctx context.Context) Status {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result := Status{
		ProgramVersion:      s.ProgramVersion,
		Address:             s.Address,
		State:               "unconfigured",
		PWMFrequency:        s.PWMFrequency,
		OscillatorFrequency: s.OscillatorFrequency,
		OutputEnabled:       s.outputEnabled,
		HasOutputEnablePin:  s.oePin != nil,
		StartedAt:           humanize.Time(s.startedAt),
	}
	if s.lastError != nil {
		result.LastError = s.lastError.Error()
	}
	if s.chip == nil {
		return result
	}
	result.State = s.chip.State().String()
	result.PWMFrequency = s.chip.PWMFrequency()
	result.OscillatorFrequency = s.chip.OscillatorFrequency()
	if s.chip.State() == pca9685.StateInitialized {
		if prescale, err := s.chip.Prescale(ctx); err == nil {
			result.Prescale = &prescale
			result.EffectiveFrequency = pca9685.EffectiveFrequency(prescale, s.chip.OscillatorFrequency())
		} else {
			result.LastError = err.Error()
		}
	}
	return result
}

// SetChannel sets the ON and OFF tick of a single channel.
func (s *service) SetChannel(ctx context.Context, channel, on, off int) error {
	return s.withChip("set_channel", func(chip *pca9685.Chip) error {
		return chip.SetChannel(ctx, channel, on, off)
	})
}

// SetAll sets the ON and OFF tick of all channels at once.
func (s *service) SetAll(ctx context.Context, on, off int) error {
	return s.withChip("set_all", func(chip *pca9685.Chip) error {
		return chip.SetAll(ctx, on, off)
	})
}

// GetChannel reads the state of a single channel.
func (s *service) GetChannel(ctx context.Context, channel int) (Channel, error) {
	var result Channel
	err := s.withChip("get_channel", func(chip *pca9685.Chip) error {
		dc, err := chip.GetChannel(ctx, channel)
		if err != nil {
			return err
		}
		result = s.toChannel(chip, dc, channel)
		return nil
	})
	return result, err
}

// GetAll reads the state of all channels.
func (s *service) GetAll(ctx context.Context) ([]Channel, error) {
	var result []Channel
	err := s.withChip("get_all", func(chip *pca9685.Chip) error {
		all, err := chip.GetAll(ctx)
		if err != nil {
			return err
		}
		result = lo.Map(all, func(dc pca9685.DutyCycle, channel int) Channel {
			return s.toChannel(chip, dc, channel)
		})
		return nil
	})
	return result, err
}

// GetPWMFrequency returns the current frequency settings.
func (s *service) GetPWMFrequency(ctx context.Context) (Frequency, error) {
	var result Frequency
	err := s.withChip("get_pwm_frequency", func(chip *pca9685.Chip) error {
		prescale, err := chip.Prescale(ctx)
		if err != nil {
			return err
		}
		result = Frequency{
			Hz:                 chip.PWMFrequency(),
			OscillatorHz:       chip.OscillatorFrequency(),
			Prescale:           prescale,
			EffectiveFrequency: pca9685.EffectiveFrequency(prescale, chip.OscillatorFrequency()),
		}
		return nil
	})
	return result, err
}

// SetPWMFrequency changes the PWM frequency.
func (s *service) SetPWMFrequency(ctx context.Context, hz int) error {
	return s.withChip("set_pwm_frequency", func(chip *pca9685.Chip) error {
		if err := chip.SetPWMFrequency(ctx, hz); err != nil {
			return err
		}
		s.log.Info().Int("pwm-frequency", hz).Msg("Changed PWM frequency")
		return nil
	})
}

// SetPulseWidth sets the high time of a channel in microseconds.
func (s *service) SetPulseWidth(ctx context.Context, channel, microseconds int) error {
	return s.withChip("set_pulse_width", func(chip *pca9685.Chip) error {
		return chip.PulseWidth(ctx, channel, microseconds)
	})
}

// GetPulseWidth returns the high time of a channel in microseconds.
func (s *service) GetPulseWidth(ctx context.Context, channel int) (int, error) {
	var result int
	err := s.withChip("get_pulse_width", func(chip *pca9685.Chip) error {
		var err error
		result, err = chip.GetPulseWidth(ctx, channel)
		return err
	})
	return result, err
}

// SetOutputEnabled drives the OE pin of the chip.
// Enabling requires an initialized chip.
func (s *service) SetOutputEnabled(ctx context.Context, enabled bool) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	operationsTotal.WithLabelValues("set_output_enabled").Inc()
	if s.oePin == nil {
		operationErrorsTotal.WithLabelValues("set_output_enabled").Inc()
		return errors.Wrapf(NoOutputEnablePinError, "set output enabled to %v", enabled)
	}
	if enabled && (s.chip == nil || s.chip.State() != pca9685.StateInitialized) {
		operationErrorsTotal.WithLabelValues("set_output_enabled").Inc()
		return errors.Wrap(pca9685.NotInitializedError, "cannot enable outputs")
	}
	if err := s.setOutputEnabled(enabled); err != nil {
		operationErrorsTotal.WithLabelValues("set_output_enabled").Inc()
		return err
	}
	s.onActive()
	return nil
}

// setOutputEnabled drives the OE pin (if any).
// Must be called with the mutex held.
func (s *service) setOutputEnabled(enabled bool) error {
	if s.oePin == nil {
		// Without OE pin, outputs are always enabled.
		s.outputEnabled = true
		return nil
	}
	if err := s.oePin.Write(enabled); err != nil {
		return errors.Wrap(err, "Write[oe] failed")
	}
	s.outputEnabled = enabled
	if enabled {
		outputEnabledGauge.Set(1)
	} else {
		outputEnabledGauge.Set(0)
	}
	return nil
}

// Reinitialize runs the initialize sequence again.
// Outputs are disabled while initializing and are enabled again on success.
func (s *service) Reinitialize(ctx context.Context) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	operationsTotal.WithLabelValues("reinitialize").Inc()
	if s.chip == nil {
		operationErrorsTotal.WithLabelValues("reinitialize").Inc()
		return NotConfiguredError
	}
	if s.oePin != nil {
		if err := s.setOutputEnabled(false); err != nil {
			operationErrorsTotal.WithLabelValues("reinitialize").Inc()
			return err
		}
	}
	if err := s.initialize(ctx); err != nil {
		operationErrorsTotal.WithLabelValues("reinitialize").Inc()
		s.log.Error().Err(err).Msg("Failed to re-initialize chip")
		return err
	}
	if err := s.setOutputEnabled(true); err != nil {
		operationErrorsTotal.WithLabelValues("reinitialize").Inc()
		return err
	}
	s.log.Info().Msg("Re-initialized chip")
	s.onActive()
	return nil
}

// withChip runs the given operation with the mutex held,
// keeping track of metrics.
func (s *service) withChip(operation string, op func(*pca9685.Chip) error) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	operationsTotal.WithLabelValues(operation).Inc()
	if s.chip == nil {
		operationErrorsTotal.WithLabelValues(operation).Inc()
		return NotConfiguredError
	}
	if err := op(s.chip); err != nil {
		operationErrorsTotal.WithLabelValues(operation).Inc()
		if !pca9685.IsInvalidArgument(err) {
			s.log.Debug().Err(err).Str("operation", operation).Msg("Operation failed")
		}
		return err
	}
	s.onActive()
	return nil
}

func (s *service) toChannel(chip *pca9685.Chip, dc pca9685.DutyCycle, channel int) Channel {
	return Channel{
		Channel:      channel,
		On:           dc.On,
		Off:          dc.Off,
		Microseconds: pca9685.TicksToMicroseconds(uint16(dc.Off), chip.PWMFrequency(), chip.OscillatorFrequency()),
	}
}
