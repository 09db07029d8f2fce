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

package service

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// NotConfiguredError is returned by chip operations before Configure.
	NotConfiguredError = errors.New("not configured")
	IsNotConfigured    = isErrorFunc(NotConfiguredError)
	// NoOutputEnablePinError is returned when controlling OE without an OE pin.
	NoOutputEnablePinError = errors.New("no output enable pin configured")
	IsNoOutputEnablePin    = isErrorFunc(NoOutputEnablePinError)
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}

func formatAddress(address uint8) string {
	return fmt.Sprintf("0x%02x", address)
}
