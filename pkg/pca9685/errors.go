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

import "github.com/pkg/errors"

var (
	// InvalidArgumentError is the cause of all range/validation failures.
	// It is always returned before any register transaction is attempted.
	InvalidArgumentError = errors.New("invalid argument")
	IsInvalidArgument    = isErrorFunc(InvalidArgumentError)
	// NotInitializedError is returned by channel operations on a chip
	// that has not (successfully) completed Initialize.
	NotInitializedError = errors.New("not initialized")
	IsNotInitialized    = isErrorFunc(NotInitializedError)
	// InvalidStateError is returned by all operations on a released chip.
	InvalidStateError = errors.New("invalid state")
	IsInvalidState    = isErrorFunc(InvalidStateError)
)

func isErrorFunc(typeOfError error) func(err error) bool {
	return func(err error) bool {
		return err == typeOfError || errors.Cause(err) == typeOfError
	}
}

// invalidArgument creates an error with InvalidArgumentError as its cause.
func invalidArgument(format string, args ...interface{}) error {
	return errors.Wrapf(InvalidArgumentError, format, args...)
}
