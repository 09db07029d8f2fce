//    Copyright 2018 Ewout Prangsma
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

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

var (
	gpioChipPath = "/dev/gpiochip0"
)

// AutoDetectBridgeType detects the default bridge type based on the environment.
// Non-ARM hosts get the virtual bridge.
func AutoDetectBridgeType() string {
	var name unix.Utsname
	if err := unix.Uname(&name); err != nil {
		// Fallback to RPI
		return "rpi"
	}
	return bridgeTypeFor(unix.ByteSliceToString(name.Machine[:]), unix.ByteSliceToString(name.Release[:]), fileExists(gpioChipPath))
}

func bridgeTypeFor(machine, release string, hasGPIOChip bool) string {
	machine = strings.TrimSpace(machine)
	release = strings.TrimSpace(release)
	if !strings.HasPrefix(machine, "arm") && machine != "aarch64" {
		return "virtual"
	}
	if strings.Contains(release, "rpi") || strings.Contains(release, "raspi") || strings.HasSuffix(release, "+") {
		return "rpi"
	}
	if hasGPIOChip {
		return "cdev"
	}
	return "rpi"
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
