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
	"testing"
)

func TestComputePrescale(t *testing.T) {
	tests := []struct {
		hz, osc  int
		expected uint8
	}{
		{50, 25000000, 121},
		{24, 25000000, 253},
		{60, 25000000, 101},
		{200, 25000000, 30},
		{1000, 25000000, 5},
		{1526, 25000000, 3},
		// Out of register range; clamped
		{24, 27000000, 255},
	}
	for _, test := range tests {
		if got := ComputePrescale(test.hz, test.osc); got != test.expected {
			t.Errorf("ComputePrescale(%d, %d): expected %d, got %d", test.hz, test.osc, test.expected, got)
		}
	}
}

func TestComputePrescaleDeterministic(t *testing.T) {
	for osc := 23000000; osc <= 27000000; osc += 250000 {
		for hz := MinPWMFrequency; hz <= MaxPWMFrequency; hz++ {
			a := ComputePrescale(hz, osc)
			b := ComputePrescale(hz, osc)
			if a != b {
				t.Fatalf("ComputePrescale(%d, %d) not deterministic: %d != %d", hz, osc, a, b)
			}
		}
	}
}

func TestMicrosecondsToTicks(t *testing.T) {
	tests := []struct {
		us, hz, osc int
		expected    uint16
	}{
		{1500, 50, 25000000, 307},
		{1000, 50, 25000000, 205},
		{2000, 50, 25000000, 410},
		{1, 50, 25000000, 0},
		{3, 50, 25000000, 1},
		{0, 50, 25000000, 0},
		{-100, 50, 25000000, 0},
		{1000000, 50, 25000000, MaxValue},
		{math.MaxInt32, 50, 25000000, MaxValue},
	}
	for _, test := range tests {
		if got := MicrosecondsToTicks(test.us, test.hz, test.osc); got != test.expected {
			t.Errorf("MicrosecondsToTicks(%d, %d, %d): expected %d, got %d", test.us, test.hz, test.osc, test.expected, got)
		}
	}
}

func TestTicksToMicroseconds(t *testing.T) {
	tests := []struct {
		ticks    uint16
		hz, osc  int
		expected int
	}{
		{0, 50, 25000000, 0},
		{307, 50, 25000000, 1498},
		{MaxValue, 50, 25000000, 19984},
	}
	for _, test := range tests {
		if got := TicksToMicroseconds(test.ticks, test.hz, test.osc); got != test.expected {
			t.Errorf("TicksToMicroseconds(%d, %d, %d): expected %d, got %d", test.ticks, test.hz, test.osc, test.expected, got)
		}
	}
}

func TestPulseWidthRoundTrip(t *testing.T) {
	for _, osc := range []int{24500000, 25000000, 26000000} {
		for _, hz := range []int{50, 60, 200} {
			bound := tickLength(hz, osc) + 1
			for _, us := range []int{500, 1000, 1500, 2000, 2500} {
				ticks := MicrosecondsToTicks(us, hz, osc)
				back := TicksToMicroseconds(ticks, hz, osc)
				if diff := math.Abs(float64(back - us)); diff > bound {
					t.Errorf("round trip of %dus at %dHz/%dHz: got %dus (%d ticks), diff %f > %f", us, hz, osc, back, ticks, diff, bound)
				}
			}
		}
	}
}

func TestConversionFollowsFrequency(t *testing.T) {
	// Same pulse at a higher frequency needs more ticks.
	at50 := MicrosecondsToTicks(1500, 50, DefaultOscillatorFrequency)
	at100 := MicrosecondsToTicks(1500, 100, DefaultOscillatorFrequency)
	if at100 <= at50 {
		t.Errorf("expected more ticks at 100Hz than at 50Hz, got %d <= %d", at100, at50)
	}
}

func TestEffectiveFrequency(t *testing.T) {
	f := EffectiveFrequency(121, DefaultOscillatorFrequency)
	if math.Abs(f-50.03) > 0.01 {
		t.Errorf("expected ~50.03Hz, got %f", f)
	}
}
