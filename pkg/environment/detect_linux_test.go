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

package environment

import "testing"

func TestBridgeTypeFor(t *testing.T) {
	tests := []struct {
		machine, release string
		gpioChip         bool
		want             string
	}{
		{"x86_64", "6.1.0-18-amd64", true, "virtual"},
		{"armv7l", "6.1.21-v7+", false, "rpi"},
		{"aarch64", "6.6.31+rpt-rpi-v8", true, "rpi"},
		{"aarch64", "6.6.16-current-sunxi64", true, "cdev"},
		{"armv7l", "5.15.0-sunxi", false, "rpi"},
	}
	for _, tc := range tests {
		if got := bridgeTypeFor(tc.machine, tc.release, tc.gpioChip); got != tc.want {
			t.Errorf("bridgeTypeFor(%q, %q, %v) = %q, want %q", tc.machine, tc.release, tc.gpioChip, got, tc.want)
		}
	}
}
