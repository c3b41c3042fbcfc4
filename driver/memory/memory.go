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

// Package memory provides an in-process implementation of driver.Client.
//
// Server keeps databases and collections in memory and answers a small set of commands;
// more can be registered with Server.Handle.
// It is used by tests and by the `--driver=memory` CLI mode.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"

	"github.com/FerretDB/graphconn/driver"
)

// Error codes returned by the server; they match MongoDB codes.
const (
	ErrorCodeHostUnreachable      = 6
	ErrorCodeAuthenticationFailed = 18
	ErrorCodeNamespaceNotFound    = 26
	ErrorCodeNamespaceExists      = 48
	ErrorCodeCommandNotFound      = 59
)

// HandlerFunc handles a single command sent to the database with the given name.
//
// The returned value is passed to the caller as the raw command result.
type HandlerFunc func(ctx context.Context, db string, cmd bson.D) (any, error)

// Stats represents server statistics.
type Stats struct {
	Clients  int // number of constructed (non-cloned) clients
	Connects int // number of established transports
}

// Server is an in-process database server.
//
// It is safe for concurrent use.
//
//nolint:vet // for readability
type Server struct {
	rw        sync.RWMutex
	databases map[string]map[string]map[string]any // database -> collection -> options
	users     map[string]string
	handlers  map[string]HandlerFunc
	stats     Stats
	epoch     int // incremented when the server goes down
	down      bool
}

// NewServer creates a new server with the given databases and default command handlers.
func NewServer(databases ...string) *Server {
	s := &Server{
		databases: make(map[string]map[string]map[string]any, len(databases)),
		users:     map[string]string{},
		handlers:  map[string]HandlerFunc{},
	}

	for _, db := range databases {
		s.databases[db] = map[string]map[string]any{}
	}

	s.initHandlers()

	return s
}

// AddUser enables authentication and adds a user.
//
// Without users, any credentials are accepted.
func (s *Server) AddUser(username, password string) {
	s.rw.Lock()
	defer s.rw.Unlock()

	s.users[username] = password
}

// Handle registers a command handler, replacing the existing one.
func (s *Server) Handle(name string, h HandlerFunc) {
	s.rw.Lock()
	defer s.rw.Unlock()

	s.handlers[name] = h
}

// SetDown makes the server unreachable (or reachable again).
//
// Unreachable server drops all established transports.
func (s *Server) SetDown(down bool) {
	s.rw.Lock()
	defer s.rw.Unlock()

	if down && !s.down {
		s.epoch++
	}

	s.down = down
}

// Stats returns server statistics.
func (s *Server) Stats() Stats {
	s.rw.RLock()
	defer s.rw.RUnlock()

	return s.stats
}

// NewClientFunc returns a function that constructs clients of that server.
func (s *Server) NewClientFunc() driver.NewClientFunc {
	return func(params *driver.NewClientParams) (driver.Client, error) {
		if params.Host == "" || params.Port <= 0 {
			return nil, fmt.Errorf("memory: invalid address %s:%d", params.Host, params.Port)
		}

		l := params.L
		if l == nil {
			l = zap.NewNop()
		}

		s.rw.Lock()
		s.stats.Clients++
		s.rw.Unlock()

		c := &client{
			s:     s,
			l:     l,
			t:     new(transport),
			owner: true,
			token: params.SessionToken,
		}

		return driver.ClientContract(c), nil
	}
}

// collections returns sorted collection names of the given database.
// The caller must hold the lock.
func (s *Server) collections(db string) []string {
	res := maps.Keys(s.databases[db])
	slices.Sort(res)

	return res
}

// createCollection creates a collection.
// The caller must not hold the lock.
func (s *Server) createCollection(db, name string, opts map[string]any) error {
	s.rw.Lock()
	defer s.rw.Unlock()

	colls, ok := s.databases[db]
	if !ok {
		return driver.NewError(ErrorCodeNamespaceNotFound, fmt.Sprintf("Database '%s' does not exist", db), nil)
	}

	if _, ok = colls[name]; ok {
		msg := fmt.Sprintf("Collection %s.%s already exists.", db, name)
		return driver.NewError(ErrorCodeNamespaceExists, msg, nil)
	}

	if opts == nil {
		opts = map[string]any{}
	}

	colls[name] = opts

	return nil
}
