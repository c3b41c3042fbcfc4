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

// Package must provides helpers for invariants that can't be violated at runtime.
//
// Use them only when an error or zero value indicates a programming mistake, not a runtime condition.
package must

import (
	"fmt"
	"reflect"
)

// NotFail panics if err is not nil; otherwise, it returns res.
func NotFail[T any](res T, err error) T {
	if err != nil {
		panic(err)
	}

	return res
}

// NoError panics if err is not nil.
func NoError(err error) {
	if err != nil {
		panic(err)
	}
}

// NotBeZero panics if v is a zero value (nil pointer, empty string, zero struct, etc.).
func NotBeZero[T any](v T) {
	if reflect.ValueOf(&v).Elem().IsZero() {
		panic(fmt.Sprintf("v must not be zero: %T", v))
	}
}
