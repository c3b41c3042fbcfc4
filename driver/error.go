// Copyright 2021 FerretDB Inc.
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

package driver

import (
	"errors"
	"fmt"

	"github.com/FerretDB/graphconn/internal/util/debugbuild"
)

// Error codes used by ClientContract for arguments validation.
// Server error codes are passed through as is.
const (
	// ErrorCodeInvalidNamespace is returned for invalid database and collection names.
	ErrorCodeInvalidNamespace = 73
)

// Error represents an error reported by the database server or by the client contract.
type Error struct {
	// This internal error can't be accessed by the caller; it exists only for debugging.
	// It may be nil.
	err error

	Message string
	Code    int
}

// NewError creates a new client error.
//
// Message must not be empty. Err may be nil.
func NewError(code int, msg string, err error) *Error {
	if msg == "" {
		panic("driver.NewError: message must not be empty")
	}

	return &Error{
		err:     err,
		Message: msg,
		Code:    code,
	}
}

// Error implements error interface.
func (e *Error) Error() string {
	return e.Message
}

// There is intentionally no Unwrap method.

// ErrorCode returns the code of *Error found in err's chain, or 0.
func ErrorCode(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return 0
}

// ErrorMessage returns the message of *Error found in err's chain, or err's text.
// It returns an empty string for nil error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}

	return err.Error()
}

// checkError enforces client interface contracts.
//
// Err must be nil, *Error, or some other opaque error.
// *Error values can't be wrapped or be present anywhere in the error chain.
// If that's not the case, checkError panics in debug builds.
//
// It does nothing in non-debug builds.
func checkError(err error) {
	if !debugbuild.Enabled {
		return
	}

	if err == nil {
		return
	}

	if _, ok := err.(*Error); ok { //nolint:errorlint // do not inspect error chain
		return
	}

	var e *Error
	if errors.As(err, &e) {
		panic(fmt.Sprintf("error should not be wrapped: %v", err))
	}
}

// check interfaces
var (
	_ error = (*Error)(nil)
)
