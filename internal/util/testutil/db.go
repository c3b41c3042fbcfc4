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

package testutil

import (
	"bytes"
	"regexp"
	"runtime/debug"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	databaseNamesM sync.Mutex
	databaseNames  = make(map[string][]byte)

	invalidChars = regexp.MustCompile(`[^a-z0-9_-]`)
)

func stack() []byte {
	s := bytes.Split(debug.Stack(), []byte("\n"))
	return bytes.Join(s[7:], []byte("\n"))
}

// DatabaseName returns a stable database name for that test.
//
// It panics if another test already used the same name.
func DatabaseName(tb testing.TB) string {
	tb.Helper()

	name := invalidChars.ReplaceAllString(strings.ToLower(tb.Name()), "_")

	require.Less(tb, len(name), 64)

	databaseNamesM.Lock()
	defer databaseNamesM.Unlock()

	current := stack()
	if another, ok := databaseNames[name]; ok {
		tb.Logf("Database name %q already used by another test:\n%s", name, another)
		panic("duplicate database name")
	}
	databaseNames[name] = current

	return name
}
