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

package memory

import (
	"context"
	"fmt"
	"slices"

	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/exp/maps"

	"github.com/FerretDB/graphconn/driver"
)

// Version is reported by the buildInfo command.
const Version = "7.0.0-memory"

// initHandlers registers default command handlers.
func (s *Server) initHandlers() {
	s.handlers = map[string]HandlerFunc{
		// sorted alphabetically
		"buildInfo":       s.msgBuildInfo,
		"buildinfo":       s.msgBuildInfo, // old lowercase variant
		"create":          s.msgCreate,
		"dbStats":         s.msgDBStats,
		"drop":            s.msgDrop,
		"listCollections": s.msgListCollections,
		"ping":            s.msgPing,
	}
}

// databaseNames returns sorted database names.
// The caller must hold the lock.
func (s *Server) databaseNames() []string {
	res := maps.Keys(s.databases)
	slices.Sort(res)

	return res
}

// msgBuildInfo implements `buildInfo` command.
func (s *Server) msgBuildInfo(context.Context, string, bson.D) (any, error) {
	return bson.M{
		"version": Version,
		"ok":      float64(1),
	}, nil
}

// msgCreate implements `create` command.
func (s *Server) msgCreate(_ context.Context, db string, cmd bson.D) (any, error) {
	name, ok := cmd[0].Value.(string)
	if !ok {
		return commandError(2, fmt.Sprintf("collection name has invalid type %T", cmd[0].Value)), nil
	}

	opts := make(map[string]any, len(cmd)-1)
	for _, e := range cmd[1:] {
		opts[e.Key] = e.Value
	}

	if err := s.createCollection(db, name, opts); err != nil {
		return commandError(driver.ErrorCode(err), driver.ErrorMessage(err)), nil
	}

	return bson.M{"ok": float64(1)}, nil
}

// msgDBStats implements `dbStats` command.
func (s *Server) msgDBStats(_ context.Context, db string, _ bson.D) (any, error) {
	s.rw.RLock()
	defer s.rw.RUnlock()

	return bson.M{
		"db":          db,
		"collections": int32(len(s.databases[db])),
		"ok":          float64(1),
	}, nil
}

// msgDrop implements `drop` command.
func (s *Server) msgDrop(_ context.Context, db string, cmd bson.D) (any, error) {
	name, _ := cmd[0].Value.(string)

	s.rw.Lock()
	defer s.rw.Unlock()

	if _, ok := s.databases[db][name]; !ok {
		return commandError(ErrorCodeNamespaceNotFound, "ns not found"), nil
	}

	delete(s.databases[db], name)

	return bson.M{
		"ns": db + "." + name,
		"ok": float64(1),
	}, nil
}

// msgListCollections implements `listCollections` command.
func (s *Server) msgListCollections(_ context.Context, db string, _ bson.D) (any, error) {
	s.rw.RLock()
	defer s.rw.RUnlock()

	names := s.collections(db)

	batch := make(bson.A, len(names))
	for i, name := range names {
		batch[i] = bson.M{"name": name, "type": "collection"}
	}

	return bson.M{
		"cursor": bson.M{
			"id":         int64(0),
			"ns":         db + ".$cmd.listCollections",
			"firstBatch": batch,
		},
		"ok": float64(1),
	}, nil
}

// msgPing implements `ping` command.
func (s *Server) msgPing(context.Context, string, bson.D) (any, error) {
	return bson.M{"ok": float64(1)}, nil
}

// commandError returns a raw command result with embedded error.
func commandError(code int, msg string) bson.M {
	return bson.M{
		"ok":     float64(0),
		"errmsg": msg,
		"code":   int32(code),
	}
}
