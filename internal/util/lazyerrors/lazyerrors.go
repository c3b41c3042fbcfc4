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

// Package lazyerrors provides error wrapping that records the caller location.
//
// It is used for internal errors only; errors returned to graphconn users are *graphconn.Error values.
package lazyerrors

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// withStack is an error annotated with the program counter of the caller.
type withStack struct {
	error
	pc uintptr
}

// Error implements error interface.
func (e withStack) Error() string {
	if e.pc == 0 {
		return e.error.Error()
	}

	f, _ := runtime.CallersFrames([]uintptr{e.pc}).Next()
	if f.File == "" {
		return "[unknown] " + e.error.Error()
	}

	_, file := filepath.Split(f.File)
	loc := file + ":" + strconv.Itoa(f.Line)

	if f.Function != "" {
		i := strings.LastIndex(f.Function, "/")
		loc += " " + f.Function[i+1:]
	}

	return "[" + loc + "] " + e.error.Error()
}

// Unwrap returns the annotated error.
func (e withStack) Unwrap() error {
	return e.error
}

// New returns a new error with the given text, annotated with the caller location.
func New(s string) error {
	return withStack{
		error: errors.New(s),
		pc:    caller(),
	}
}

// Error annotates err with the caller location.
//
// It panics if err is nil.
func Error(err error) error {
	if err == nil {
		panic("err is nil")
	}

	return withStack{
		error: err,
		pc:    caller(),
	}
}

// Errorf formats an error like [fmt.Errorf] and annotates it with the caller location.
func Errorf(format string, a ...any) error {
	return withStack{
		error: fmt.Errorf(format, a...),
		pc:    caller(),
	}
}

// Strip removes caller annotations added by this package from the front of err's chain.
//
// Errors wrapped by other means (for example, by [fmt.Errorf] with %w) are returned as is.
// It returns nil for nil error.
func Strip(err error) error {
	for {
		ws, ok := err.(withStack) //nolint:errorlint // only the outer annotations are stripped
		if !ok {
			return err
		}

		err = ws.error
	}
}

// caller returns the program counter of the function that called New, Error or Errorf.
func caller() uintptr {
	pcs := make([]uintptr, 1)
	if runtime.Callers(3, pcs) < 1 {
		return 0
	}

	return pcs[0]
}
