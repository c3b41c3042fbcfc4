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

// Package resource provides utilities for tracking resource lifetimes.
//
// It is used for driver clients: a client that is garbage collected without being closed
// holds a network connection that nobody can release.
package resource

import (
	"fmt"
	"reflect"
	"runtime"
	"runtime/pprof"
	"sync"

	"github.com/FerretDB/graphconn/internal/util/debugbuild"
)

// Token should be a field of a tracked object.
//
// It is a separate allocation so that pprof profiles do not keep tracked objects alive.
type Token struct {
	msg string
	_   byte // prevent zero-sized allocations sharing the same address
}

// NewToken returns a new Token.
func NewToken() *Token {
	return new(Token)
}

// profilesM protects access to profiles.
var profilesM sync.Mutex

// profileName returns pprof profile name for the given object.
func profileName(obj any) string {
	return "graphconn/" + reflect.TypeOf(obj).Elem().String()
}

// Track tracks the lifetime of an object until Untrack is called on it.
//
// Obj should be a pointer to a struct with a field "token" of type *Token.
// If obj becomes unreachable without Untrack, the finalizer panics in debug builds
// and does nothing otherwise.
func Track(obj any, token *Token) {
	checkArgs(obj, token)

	name := profileName(obj)

	profilesM.Lock()

	p := pprof.Lookup(name)
	if p == nil {
		p = pprof.NewProfile(name)
	}

	profilesM.Unlock()

	p.Add(token, 1)

	token.msg = fmt.Sprintf("%T has not been closed", obj)
	if debugbuild.Enabled {
		token.msg += "\nObject created by " + string(debugbuild.Stack())
	}

	runtime.SetFinalizer(obj, func(obj any) {
		if debugbuild.Enabled {
			panic(token.msg)
		}

		p.Remove(token)
	})
}

// Untrack stops tracking the lifetime of an object.
//
// It is safe to call this function multiple times.
func Untrack(obj any, token *Token) {
	checkArgs(obj, token)

	runtime.SetFinalizer(obj, nil)

	if p := pprof.Lookup(profileName(obj)); p != nil {
		p.Remove(token)
	}
}

// Count returns the number of tracked objects of the same type as obj.
func Count(obj any) int {
	p := pprof.Lookup(profileName(obj))
	if p == nil {
		return 0
	}

	return p.Count()
}

// checkArgs checks Track and Untrack arguments.
func checkArgs(obj any, token *Token) {
	if obj == nil {
		panic("obj must not be nil")
	}

	if token == nil {
		panic("token must not be nil")
	}

	v := reflect.ValueOf(obj)
	if v.Kind() != reflect.Pointer || v.Elem().Kind() != reflect.Struct {
		panic(fmt.Sprintf("obj must be a pointer to struct, got %T", obj))
	}

	f := v.Elem().FieldByName("token")
	if f.Kind() != reflect.Pointer || f.Pointer() != reflect.ValueOf(token).Pointer() {
		panic("token must be a pointer field of a struct")
	}
}
