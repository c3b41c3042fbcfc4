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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/FerretDB/graphconn/driver"
	"github.com/FerretDB/graphconn/internal/util/lazyerrors"
)

func TestNewError(t *testing.T) {
	t.Parallel()

	t.Run("Driver", func(t *testing.T) {
		t.Parallel()

		cause := driver.NewError(26, "Database 'foo' does not exist", nil)
		e := newError(lazyerrors.Error(cause))

		assert.Equal(t, 26, e.Code)
		assert.Equal(t, "Database 'foo' does not exist", e.Message)
		assert.Equal(t, "OrientDB Exception: Database 'foo' does not exist (26)", e.Error())
		assert.ErrorIs(t, e, cause)
	})

	t.Run("Other", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("boom")
		e := newError(cause)

		assert.Equal(t, 0, e.Code)
		assert.Equal(t, "boom", e.Message)
		assert.Equal(t, cause, e.Unwrap())
	})

	t.Run("Twice", func(t *testing.T) {
		t.Parallel()

		e := newError(errors.New("boom"))
		assert.Same(t, e, newError(e))
	})
}

func TestOKCode(t *testing.T) {
	t.Parallel()

	for name, tc := range map[string]struct {
		v        any
		expected int
	}{
		"Nil":     {v: nil, expected: 0},
		"Float":   {v: float64(1), expected: 1},
		"NaN":     {v: math.NaN(), expected: 0},
		"Int32":   {v: int32(-1), expected: -1},
		"Int64":   {v: int64(2), expected: 2},
		"Int":     {v: 3, expected: 3},
		"True":    {v: true, expected: 1},
		"False":   {v: false, expected: 0},
		"Unknown": {v: struct{}{}, expected: 0},

		"String":      {v: "1", expected: 1},
		"StringSpace": {v: " -2 ", expected: -2},
		"StringFloat": {v: "1.9", expected: 1},
		"StringNaN":   {v: "NaN", expected: 0},
		"StringText":  {v: "ok", expected: 0},
		"StringEmpty": {v: "", expected: 0},
		"StringHuge":  {v: "1e300", expected: math.MaxInt},

		"FloatTrunc": {v: -1.9, expected: -1},
		"FloatHuge":  {v: 1e300, expected: math.MaxInt},
		"FloatTiny":  {v: -1e300, expected: math.MinInt},
		"FloatInf":   {v: math.Inf(1), expected: 0},
		"FloatNInf":  {v: math.Inf(-1), expected: 0},
	} {
		name, tc := name, tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, okCode(tc.v))
		})
	}
}
