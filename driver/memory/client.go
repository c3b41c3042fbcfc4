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

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/FerretDB/graphconn/driver"
)

// transport is shared between a client and its clones.
// It is protected by the server's lock.
type transport struct {
	connected bool
	epoch     int // server's epoch at the moment of connection
}

// alive returns true if the transport is connected to the reachable server.
// The caller must hold the server's lock.
func (t *transport) alive(s *Server) bool {
	return t.connected && t.epoch == s.epoch && !s.down
}

// client implements driver.Client interface.
type client struct {
	s     *Server
	l     *zap.Logger
	t     *transport
	token string
	db    string
	owner bool
}

// OpenDatabase implements driver.Client interface.
func (c *client) OpenDatabase(ctx context.Context, params *driver.OpenDatabaseParams) error {
	c.s.rw.Lock()
	defer c.s.rw.Unlock()

	if c.s.down {
		c.t.connected = false
		return driver.NewError(ErrorCodeHostUnreachable, "connection refused", nil)
	}

	if !c.t.alive(c.s) {
		c.t.connected = true
		c.t.epoch = c.s.epoch
		c.s.stats.Connects++

		c.l.Debug("Transport connected", zap.String("session", c.token))
	}

	if len(c.s.users) > 0 {
		if p, ok := c.s.users[params.Username]; !ok || p != params.Password {
			return driver.NewError(ErrorCodeAuthenticationFailed, "Authentication failed.", nil)
		}
	}

	if _, ok := c.s.databases[params.Name]; !ok {
		msg := fmt.Sprintf("Database '%s' does not exist", params.Name)
		return driver.NewError(ErrorCodeNamespaceNotFound, msg, nil)
	}

	c.db = params.Name

	return nil
}

// CloseDatabase implements driver.Client interface.
func (c *client) CloseDatabase(ctx context.Context) error {
	c.db = ""
	return nil
}

// Transport implements driver.Client interface.
func (c *client) Transport() driver.Transport {
	c.s.rw.RLock()
	defer c.s.rw.RUnlock()

	return driver.Transport{
		DatabaseName:   c.db,
		Connected:      c.t.alive(c.s),
		DatabaseOpened: c.db != "",
	}
}

// Command implements driver.Client interface.
func (c *client) Command(ctx context.Context, params *driver.CommandParams) (any, error) {
	cmd, err := commandDocument(params.Command)
	if err != nil {
		return nil, err
	}

	if err = c.checkConnected(); err != nil {
		return nil, err
	}

	name := cmd[0].Key

	c.s.rw.RLock()
	h := c.s.handlers[name]
	c.s.rw.RUnlock()

	if h == nil {
		return bson.M{
			"ok":     float64(0),
			"errmsg": fmt.Sprintf("no such command: '%s'", name),
			"code":   int32(ErrorCodeCommandNotFound),
		}, nil
	}

	c.l.Debug("Command", zap.String("db", c.db), zap.String("command", name))

	return h(ctx, c.db, cmd)
}

// CreateCollection implements driver.Client interface.
func (c *client) CreateCollection(ctx context.Context, params *driver.CreateCollectionParams) (*driver.CreateCollectionResult, error) { //nolint:lll // for readability
	if err := c.checkConnected(); err != nil {
		return nil, err
	}

	if err := c.s.createCollection(c.db, params.Name, params.Options); err != nil {
		return nil, err
	}

	return &driver.CreateCollectionResult{
		Database: c.db,
		Name:     params.Name,
	}, nil
}

// ClusterMap implements driver.Client interface.
func (c *client) ClusterMap(ctx context.Context) ([]driver.ClusterInfo, error) {
	if err := c.checkConnected(); err != nil {
		return nil, err
	}

	c.s.rw.RLock()
	defer c.s.rw.RUnlock()

	names := c.s.collections(c.db)

	res := make([]driver.ClusterInfo, len(names))
	for i, name := range names {
		res[i] = driver.ClusterInfo{
			Name: name,
			Type: "collection",
			ID:   i,
		}
	}

	return res, nil
}

// ListDatabases implements driver.Client interface.
func (c *client) ListDatabases(ctx context.Context) ([]string, error) {
	if err := c.checkConnected(); err != nil {
		return nil, err
	}

	c.s.rw.RLock()
	defer c.s.rw.RUnlock()

	return c.s.databaseNames(), nil
}

// Ping implements driver.Client interface.
func (c *client) Ping(ctx context.Context) error {
	return c.checkConnected()
}

// Clone implements driver.Client interface.
func (c *client) Clone() driver.Client {
	return &client{
		s:     c.s,
		l:     c.l,
		t:     c.t,
		token: c.token,
	}
}

// Close implements driver.Client interface.
func (c *client) Close(ctx context.Context) error {
	c.db = ""

	if !c.owner {
		return nil
	}

	c.s.rw.Lock()
	defer c.s.rw.Unlock()

	if c.t.connected {
		c.t.connected = false
		c.l.Debug("Transport disconnected", zap.String("session", c.token))
	}

	return nil
}

// checkConnected returns an error if the transport is not connected.
func (c *client) checkConnected() error {
	c.s.rw.RLock()
	defer c.s.rw.RUnlock()

	if c.s.down {
		return driver.NewError(ErrorCodeHostUnreachable, "connection refused", nil)
	}

	if !c.t.alive(c.s) {
		return driver.NewError(0, "client is not connected", nil)
	}

	return nil
}

// commandDocument converts a command to bson.D with the command name as the first key.
func commandDocument(cmd any) (bson.D, error) {
	var res bson.D

	switch cmd := cmd.(type) {
	case bson.D:
		res = cmd
	case bson.M:
		if len(cmd) == 1 {
			for k, v := range cmd {
				res = bson.D{{Key: k, Value: v}}
			}
		}
	case map[string]any:
		if len(cmd) == 1 {
			for k, v := range cmd {
				res = bson.D{{Key: k, Value: v}}
			}
		}
	case string:
		res = bson.D{{Key: cmd, Value: int32(1)}}
	}

	if len(res) == 0 {
		return nil, driver.NewError(0, fmt.Sprintf("memory: invalid command %T; use bson.D", cmd), nil)
	}

	return res, nil
}

// check interfaces
var (
	_ driver.Client = (*client)(nil)
)
