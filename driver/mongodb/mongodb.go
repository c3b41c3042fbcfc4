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

// Package mongodb provides driver.Client implementation on top of the MongoDB Go driver.
//
// It works with any server that speaks MongoDB wire protocol, including FerretDB.
//
// # Database options
//
// The following keys of driver.OpenDatabaseParams.Options are supported:
//   - readPreference (string): read preference mode, for example "primary" or "secondaryPreferred";
//   - readConcern (string): read concern level, for example "majority";
//   - writeConcern (string or integer): "majority", a tag set name, or a number of nodes;
//   - journal (bool): journal acknowledgement;
//   - authSource (string): authentication database; defaults to the opened database;
//   - directConnection (bool): connect directly to the given host.
//
// Unknown keys are ignored. authSource and directConnection are used only when the transport is established.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/FerretDB/graphconn/driver"
	"github.com/FerretDB/graphconn/internal/util/lazyerrors"
	"github.com/FerretDB/graphconn/internal/util/logging"
)

// ErrorCodeBadValue is returned for invalid option values; it matches the MongoDB code.
const ErrorCodeBadValue = 2

// appNamePrefix is the prefix of the application name reported to the server.
const appNamePrefix = "graphconn"

// transport is shared between a client and its clones.
type transport struct {
	mc        *mongo.Client
	connected atomic.Bool // updated by server heartbeats
}

// client implements driver.Client interface.
type client struct {
	l     *zap.Logger
	t     *transport
	db    *mongo.Database
	host  string
	token string
	port  int
	owner bool
}

// NewClient creates a new client for the given host and port.
//
// It does not connect; the connection is established by the first OpenDatabase call.
func NewClient(params *driver.NewClientParams) (driver.Client, error) {
	if params.Host == "" {
		return nil, lazyerrors.New("mongodb.NewClient: host is empty")
	}

	if params.Port <= 0 || params.Port > 65535 {
		return nil, lazyerrors.Errorf("mongodb.NewClient: invalid port %d", params.Port)
	}

	l := params.L
	if l == nil {
		l = zap.NewNop()
	}

	c := &client{
		l:     l,
		t:     new(transport),
		host:  params.Host,
		token: params.SessionToken,
		port:  params.Port,
		owner: true,
	}

	return driver.ClientContract(c), nil
}

// connect establishes the transport.
func (c *client) connect(ctx context.Context, params *driver.OpenDatabaseParams) error {
	addr := net.JoinHostPort(c.host, strconv.Itoa(c.port))

	loggerOpts := options.Logger().
		SetSink(logging.NewMongoSink(c.l.Named("mongo"))).
		SetComponentLevel(options.LogComponentCommand, options.LogLevelDebug).
		SetComponentLevel(options.LogComponentConnection, options.LogLevelDebug)

	opts := options.Client().
		SetHosts([]string{addr}).
		SetAppName(appName(c.token)).
		SetLoggerOptions(loggerOpts).
		SetServerMonitor(&event.ServerMonitor{
			ServerHeartbeatSucceeded: func(*event.ServerHeartbeatSucceededEvent) {
				c.t.connected.Store(true)
			},
			ServerHeartbeatFailed: func(e *event.ServerHeartbeatFailedEvent) {
				c.t.connected.Store(false)
				c.l.Warn("Server heartbeat failed", zap.String("address", e.ConnectionID), zap.Error(e.Failure))
			},
		})

	if params.Username != "" {
		source := params.Name
		if s, ok := params.Options["authSource"].(string); ok && s != "" {
			source = s
		}

		opts.SetAuth(options.Credential{
			Username:   params.Username,
			Password:   params.Password,
			AuthSource: source,
		})
	}

	if v, ok := params.Options["directConnection"].(bool); ok {
		opts.SetDirect(v)
	}

	c.l.Debug("Connecting", zap.String("address", addr), zap.String("username", params.Username))

	mc, err := mongo.Connect(ctx, opts)
	if err != nil {
		return convertError(err)
	}

	if err = mc.Ping(ctx, readpref.Primary()); err != nil {
		_ = mc.Disconnect(ctx)
		return convertError(err)
	}

	c.t.mc = mc
	c.t.connected.Store(true)

	return nil
}

// OpenDatabase implements driver.Client interface.
//
// Credentials are used only when the transport is established;
// clones share the authenticated transport.
func (c *client) OpenDatabase(ctx context.Context, params *driver.OpenDatabaseParams) error {
	dbOpts, err := databaseOptions(c.l, params.Options)
	if err != nil {
		return err
	}

	if c.t.mc == nil {
		if !c.owner {
			return driver.NewError(0, "client is closed", nil)
		}

		if err = c.connect(ctx, params); err != nil {
			return err
		}
	}

	c.db = c.t.mc.Database(params.Name, dbOpts)

	return nil
}

// CloseDatabase implements driver.Client interface.
func (c *client) CloseDatabase(ctx context.Context) error {
	c.db = nil
	return nil
}

// Transport implements driver.Client interface.
func (c *client) Transport() driver.Transport {
	var t driver.Transport

	if c.t.mc != nil {
		t.Connected = c.t.connected.Load()
	}

	if c.db != nil {
		t.DatabaseOpened = true
		t.DatabaseName = c.db.Name()
	}

	return t
}

// Command implements driver.Client interface.
func (c *client) Command(ctx context.Context, params *driver.CommandParams) (any, error) {
	var opts []*options.RunCmdOptions

	if v, ok := params.Options["readPreference"]; ok {
		rp, err := readPreference(v)
		if err != nil {
			return nil, err
		}

		opts = append(opts, options.RunCmd().SetReadPreference(rp))
	}

	var res bson.M
	if err := c.db.RunCommand(ctx, params.Command, opts...).Decode(&res); err != nil {
		return nil, convertError(err)
	}

	return res, nil
}

// CreateCollection implements driver.Client interface.
func (c *client) CreateCollection(ctx context.Context, params *driver.CreateCollectionParams) (*driver.CreateCollectionResult, error) { //nolint:lll // for readability
	opts, err := createCollectionOptions(c.l, params.Options)
	if err != nil {
		return nil, err
	}

	if err = c.db.CreateCollection(ctx, params.Name, opts); err != nil {
		return nil, convertError(err)
	}

	return &driver.CreateCollectionResult{
		Database: c.db.Name(),
		Name:     params.Name,
	}, nil
}

// ClusterMap implements driver.Client interface.
func (c *client) ClusterMap(ctx context.Context) ([]driver.ClusterInfo, error) {
	specs, err := c.db.ListCollectionSpecifications(ctx, bson.D{})
	if err != nil {
		return nil, convertError(err)
	}

	slices.SortFunc(specs, func(a, b *mongo.CollectionSpecification) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		default:
			return 0
		}
	})

	res := make([]driver.ClusterInfo, len(specs))
	for i, s := range specs {
		res[i] = driver.ClusterInfo{
			Name: s.Name,
			Type: s.Type,
			ID:   i,
		}
	}

	return res, nil
}

// ListDatabases implements driver.Client interface.
func (c *client) ListDatabases(ctx context.Context) ([]string, error) {
	if c.t.mc == nil {
		return nil, driver.NewError(0, "client is not connected", nil)
	}

	res, err := c.t.mc.ListDatabaseNames(ctx, bson.D{})
	if err != nil {
		return nil, convertError(err)
	}

	slices.Sort(res)

	return res, nil
}

// Ping implements driver.Client interface.
func (c *client) Ping(ctx context.Context) error {
	if c.t.mc == nil {
		return driver.NewError(0, "client is not connected", nil)
	}

	if err := c.t.mc.Ping(ctx, readpref.Primary()); err != nil {
		return convertError(err)
	}

	return nil
}

// Clone implements driver.Client interface.
func (c *client) Clone() driver.Client {
	return &client{
		l:     c.l,
		t:     c.t,
		host:  c.host,
		token: c.token,
		port:  c.port,
	}
}

// Close implements driver.Client interface.
func (c *client) Close(ctx context.Context) error {
	c.db = nil

	if !c.owner || c.t.mc == nil {
		return nil
	}

	mc := c.t.mc
	c.t.mc = nil
	c.t.connected.Store(false)

	if err := mc.Disconnect(ctx); err != nil {
		return convertError(err)
	}

	return nil
}

// appName returns the application name for the given session token.
func appName(token string) string {
	if token == "" {
		return appNamePrefix
	}

	return appNamePrefix + "/" + token
}

// convertError converts MongoDB driver errors to *driver.Error where the server provided a code.
func convertError(err error) error {
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		return driver.NewError(int(ce.Code), ce.Message, err)
	}

	var we mongo.WriteException
	if errors.As(err, &we) && len(we.WriteErrors) > 0 {
		return driver.NewError(we.WriteErrors[0].Code, we.WriteErrors[0].Message, err)
	}

	if errors.Is(err, mongo.ErrClientDisconnected) {
		return driver.NewError(0, "client is disconnected", err)
	}

	return lazyerrors.Error(err)
}

// badValue returns an error for an invalid option value.
func badValue(option string, v any) error {
	return driver.NewError(ErrorCodeBadValue, fmt.Sprintf("invalid value for option %q: %v (%T)", option, v, v), nil)
}

// check interfaces
var (
	_ driver.Client = (*client)(nil)
)
