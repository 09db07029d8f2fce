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
	"math"
)

const (
	// MinPWMFrequency is the lowest output frequency (Hz) the chip can produce
	// with a 25MHz oscillator (prescale 255).
	MinPWMFrequency = 24
	// MaxPWMFrequency is the highest output frequency (Hz) the chip can produce
	// with a 25MHz oscillator (prescale 3).
	MaxPWMFrequency = 1526
	// DefaultOscillatorFrequency is the nominal rate of the internal oscillator.
	DefaultOscillatorFrequency = 25000000

	// Number of ticks in a single PWM period.
	ticksPerPeriod = 4096
)

// ComputePrescale returns the PRESCALE register value that makes the chip
// run at the given target frequency.
// The result is rounded half-up and clamped into the 8-bit register range.
func ComputePrescale(targetHz, oscillatorHz int) uint8 {
	prescale := float64(oscillatorHz) / ticksPerPeriod / float64(targetHz)
	prescale -= 1.0
	result := math.Floor(prescale + 0.5)
	switch {
	case math.IsNaN(result) || result < 0:
		return 0
	case result > math.MaxUint8:
		return math.MaxUint8
	default:
		return uint8(result)
	}
}

// tickLength returns the duration of a single tick in microseconds.
func tickLength(pwmHz, oscillatorHz int) float64 {
	prescale := ComputePrescale(pwmHz, oscillatorHz)
	return 1000000.0 * float64(int(prescale)+1) / float64(oscillatorHz)
}

// MicrosecondsToTicks converts a pulse width into the number of ticks
// (OFF register value with ON pinned at 0) at the given frequencies.
// Results are clamped into 0..4095.
func MicrosecondsToTicks(microseconds, pwmHz, oscillatorHz int) uint16 {
	ticks := math.Floor(float64(microseconds)/tickLength(pwmHz, oscillatorHz) + 0.5)
	switch {
	case math.IsNaN(ticks) || ticks < 0:
		return 0
	case ticks > MaxValue:
		return MaxValue
	default:
		return uint16(ticks)
	}
}

// TicksToMicroseconds converts a number of ticks into a pulse width in
// microseconds at the given frequencies.
func TicksToMicroseconds(ticks uint16, pwmHz, oscillatorHz int) int {
	return int(math.Floor(float64(ticks)*tickLength(pwmHz, oscillatorHz) + 0.5))
}

// EffectiveFrequency returns the output frequency (Hz) that the chip
// actually produces for the given prescale value.
func EffectiveFrequency(prescale uint8, oscillatorHz int) float64 {
	return float64(oscillatorHz) / ticksPerPeriod / float64(int(prescale)+1)
}

// isValidPWMFrequency returns true if the given frequency is in the
// range the chip supports.
func isValidPWMFrequency(hz int) bool {
	return hz >= MinPWMFrequency && hz <= MaxPWMFrequency
}
