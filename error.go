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

package graphconn

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/FerretDB/graphconn/driver"
	"github.com/FerretDB/graphconn/internal/util/lazyerrors"
)

// errorName is the category label of all *Error values.
const errorName = "OrientDB Exception"

// unknownErrorMessage is used for empty command results without error fields.
const unknownErrorMessage = `Unknown error, use "w=1" option to enable error tracking`

var (
	// ErrInvalidConfig is returned by New when the default database name can't be resolved.
	// It is not wrapped into *Error.
	ErrInvalidConfig = errors.New("graphconn: default database name is not configured")

	// ErrNotOpen is wrapped into *Error when an operation requires an open connection or database handle.
	ErrNotOpen = errors.New("graphconn: not open")
)

// Error is the only error type returned by Conn and Database operations,
// except New's ErrInvalidConfig.
type Error struct {
	// Cause; may be nil.
	err error

	Message string
	Code    int
}

// newError wraps err into *Error.
//
// Code and Message are taken from *driver.Error in err's chain, if any.
// Otherwise, Message is err's text without caller annotations; err itself stays the cause.
// It returns err as is if it is already *Error.
func newError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return &Error{
		err:     err,
		Message: driver.ErrorMessage(lazyerrors.Strip(err)),
		Code:    driver.ErrorCode(err),
	}
}

// Error implements error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%d)", errorName, e.Message, e.Code)
}

// Name returns the category label.
func (e *Error) Name() string {
	return errorName
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.err
}

// resultError returns *Error if the raw command result signals an error, nil otherwise.
//
// Structured results signal errors with non-empty errmsg or err fields;
// the code is taken from the ok field.
// Empty results of any kind signal an unknown error.
func resultError(res any) error {
	var doc map[string]any

	switch res := res.(type) {
	case bson.M:
		doc = res
	case map[string]any:
		doc = res
	case bson.D:
		doc = make(map[string]any, len(res))
		for _, e := range res {
			doc[e.Key] = e.Value
		}
	default:
		if empty(res) {
			return &Error{Message: unknownErrorMessage}
		}

		return nil
	}

	if len(doc) == 0 {
		return &Error{Message: unknownErrorMessage}
	}

	for _, f := range []string{"errmsg", "err"} {
		v := doc[f]
		if empty(v) {
			continue
		}

		msg, ok := v.(string)
		if !ok {
			msg = fmt.Sprint(v)
		}

		return &Error{
			Message: msg,
			Code:    okCode(doc["ok"]),
		}
	}

	return nil
}

// okCode converts the ok field value to an error code.
//
// Numeric strings are parsed; floats are truncated and clamped to the int range.
// Other values give 0.
func okCode(v any) int {
	switch v := v.(type) {
	case float64:
		return floatCode(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	case bool:
		if v {
			return 1
		}

		return 0
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return int(i)
		}

		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return floatCode(f)
		}

		return 0
	default:
		return 0
	}
}

// floatCode truncates f to int, clamping out-of-range values; NaN and infinities give 0.
func floatCode(f float64) int {
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return 0
	case f >= math.MaxInt:
		return math.MaxInt
	case f <= math.MinInt:
		return math.MinInt
	default:
		return int(f)
	}
}

// empty returns true for nil, false, zero numbers, and empty strings, slices, and maps.
func empty(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)

	switch rv.Kind() { //nolint:exhaustive // other kinds are never empty
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return rv.IsZero()
	default:
		return false
	}
}

// check interfaces
var (
	_ error = (*Error)(nil)
)
