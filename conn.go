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
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"strconv"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"

	"github.com/FerretDB/graphconn/driver"
	"github.com/FerretDB/graphconn/driver/mongodb"
	"github.com/FerretDB/graphconn/internal/connmetrics"
	"github.com/FerretDB/graphconn/internal/util/lazyerrors"
	"github.com/FerretDB/graphconn/internal/util/observability"
)

// AfterOpenFunc is called by Conn.Open after the default database is opened.
//
// Returned error fails Open.
type AfterOpenFunc func(ctx context.Context, c *Conn) error

// NewOpts represents the options of New function.
type NewOpts struct {
	Config *Config
	L      *zap.Logger // zap.NewNop() if nil

	// NewClient constructs the underlying client; mongodb.NewClient if nil.
	NewClient driver.NewClientFunc

	AfterOpen []AfterOpenFunc
}

// Conn represents a single logical connection.
//
// It is not safe for concurrent use; callers should serialize calls.
//
//nolint:vet // for readability
type Conn struct {
	config      Config
	defaultName string

	l         *zap.Logger
	newClient driver.NewClientFunc
	afterOpen []AfterOpenFunc
	metrics   *connmetrics.ConnMetrics

	client    driver.Client // nil if not open
	databases map[string]*Database
}

// New creates a new connection.
//
// It does not connect; see Open.
// It returns ErrInvalidConfig if the default database name can't be resolved.
func New(opts *NewOpts) (*Conn, error) {
	if opts.Config == nil {
		return nil, lazyerrors.New("graphconn.New: Config is nil")
	}

	config := opts.Config.withDefaults()

	name, err := config.defaultDatabaseName()
	if err != nil {
		return nil, err
	}

	if config.SessionToken == "" {
		config.SessionToken = uuid.NewString()
	}

	l := opts.L
	if l == nil {
		l = zap.NewNop()
	}

	newClient := opts.NewClient
	if newClient == nil {
		newClient = mongodb.NewClient
	}

	return &Conn{
		config:      config,
		defaultName: name,
		l:           l,
		newClient:   newClient,
		afterOpen:   slices.Clone(opts.AfterOpen),
		metrics:     connmetrics.NewConnMetrics(),
		databases:   map[string]*Database{},
	}, nil
}

// addr returns host:port string.
func (c *Conn) addr() string {
	return net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
}

// profile starts a profiling block for the given operation and records metrics.
//
// The returned function should be called exactly once with the operation's error.
func (c *Conn) profile(ctx context.Context, operation, token string) (context.Context, func(error)) {
	c.metrics.Request(operation)

	ctx, p := observability.BeginProfile(ctx, c.l, operation, token)

	return ctx, func(err error) {
		p.End(err)

		result := connmetrics.ResultOK
		if err != nil {
			var e *Error
			if errors.As(err, &e) {
				result = strconv.Itoa(e.Code)
			} else {
				result = strconv.Itoa(driver.ErrorCode(err))
			}
		}

		c.metrics.Response(operation, result, p.Duration())
	}
}

// openParams returns parameters for opening the database with the given name.
func (c *Conn) openParams(name string) *driver.OpenDatabaseParams {
	return &driver.OpenDatabaseParams{
		Options:  c.config.Options,
		Name:     name,
		Username: c.config.Connection.Username,
		Password: c.config.Connection.Password,
	}
}

// Open constructs the client, opens the default database, and calls after-open hooks.
//
// It does nothing if the connection is already open.
// On failure, the client is closed and the connection stays closed.
func (c *Conn) Open(ctx context.Context) (err error) {
	if c.client != nil {
		return nil
	}

	addr := c.addr()
	c.l.Debug("Opening connection", zap.String("address", addr), zap.String("database", c.defaultName))

	ctx, end := c.profile(ctx, "conn.open", "open "+addr)
	defer func() { end(err) }()

	client, err := c.newClient(&driver.NewClientParams{
		Host:         c.config.Host,
		Port:         c.config.Port,
		SessionToken: c.config.SessionToken,
		L:            c.l.Named("client"),
	})
	if err != nil {
		return newError(lazyerrors.Error(err))
	}

	if err = client.OpenDatabase(ctx, c.openParams(c.defaultName)); err != nil {
		if e := client.Close(ctx); e != nil {
			c.l.Warn("Failed to close client", zap.Error(e))
		}

		return newError(err)
	}

	c.client = client
	c.metrics.Open.Set(1)

	for _, h := range c.afterOpen {
		if err = h(ctx, c); err != nil {
			if e := c.discard(ctx); e != nil {
				c.l.Warn("Failed to close connection", zap.Error(e))
			}

			return newError(err)
		}
	}

	return nil
}

// Close closes all database handles, the remote database session, and the client.
//
// It does nothing if the connection is not open.
// The client is discarded even if closing fails.
func (c *Conn) Close(ctx context.Context) (err error) {
	if c.client == nil {
		return nil
	}

	addr := c.addr()
	c.l.Debug("Closing connection", zap.String("address", addr))

	ctx, end := c.profile(ctx, "conn.close", "close "+addr)
	defer func() { end(err) }()

	if err = c.discard(ctx); err != nil {
		return newError(err)
	}

	return nil
}

// discard closes and clears the client and cached database handles.
func (c *Conn) discard(ctx context.Context) error {
	client, databases := c.client, c.databases

	c.client = nil
	c.databases = map[string]*Database{}
	c.metrics.Open.Set(0)

	var errs []error

	names := maps.Keys(databases)
	slices.Sort(names)

	for _, name := range names {
		if err := databases[name].invalidate(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if client.Transport().DatabaseOpened {
		if err := client.CloseDatabase(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := client.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Database returns a database handle for the given name; empty name means the default database.
//
// The cached handle is returned unless refresh is true or there is no cached handle.
// Otherwise, the connection is opened if needed, and a new handle replaces the cached one;
// the previous handle is invalidated.
func (c *Conn) Database(ctx context.Context, name string, refresh bool) (db *Database, err error) {
	if name == "" {
		name = c.defaultName
	}

	if db = c.databases[name]; db != nil && !refresh {
		return db, nil
	}

	if err = c.Open(ctx); err != nil {
		return nil, err
	}

	ctx, end := c.profile(ctx, "conn.database", "database "+name)
	defer func() { end(err) }()

	client := c.client.Clone()

	if err = client.OpenDatabase(ctx, c.openParams(name)); err != nil {
		if e := client.Close(ctx); e != nil {
			c.l.Warn("Failed to close client", zap.Error(e))
		}

		return nil, newError(err)
	}

	if prev := c.databases[name]; prev != nil {
		if e := prev.invalidate(ctx); e != nil {
			c.l.Warn("Failed to invalidate database handle", zap.String("database", name), zap.Error(e))
		}
	}

	db = &Database{
		c:      c,
		client: client,
		name:   name,
	}
	c.databases[name] = db

	return db, nil
}

// IsActive returns true if the client exists and its transport is connected.
func (c *Conn) IsActive() bool {
	return c.client != nil && c.client.Transport().Connected
}

// DefaultDatabaseName returns the resolved default database name.
func (c *Conn) DefaultDatabaseName() string {
	return c.defaultName
}

// Client returns the underlying client, or nil if the connection is not open.
func (c *Conn) Client() driver.Client {
	return c.client
}

// Name returns the name of the database opened by the connection's client,
// or an empty string.
func (c *Conn) Name() string {
	if c.client == nil {
		return ""
	}

	return c.client.Transport().DatabaseName
}

// String implements fmt.Stringer interface.
func (c *Conn) String() string {
	return c.Name()
}

// Db returns the connection's client with the default database opened.
//
// The default database is reopened if refresh is true or if the transport reports no opened database.
func (c *Conn) Db(ctx context.Context, refresh bool) (client driver.Client, err error) {
	if c.client == nil {
		return nil, newError(ErrNotOpen)
	}

	if !refresh && c.client.Transport().DatabaseOpened {
		return c.client, nil
	}

	ctx, end := c.profile(ctx, "conn.db", "db "+c.defaultName)
	defer func() { end(err) }()

	if c.client.Transport().DatabaseOpened {
		if err = c.client.CloseDatabase(ctx); err != nil {
			return nil, newError(err)
		}
	}

	if err = c.client.OpenDatabase(ctx, c.openParams(c.defaultName)); err != nil {
		return nil, newError(err)
	}

	return c.client, nil
}

// Cluster returns collections of the database opened by the connection's client.
func (c *Conn) Cluster(ctx context.Context) (res []driver.ClusterInfo, err error) {
	if c.client == nil {
		return nil, newError(ErrNotOpen)
	}

	ctx, end := c.profile(ctx, "conn.cluster", "cluster "+c.Name())
	defer func() { end(err) }()

	if res, err = c.client.ClusterMap(ctx); err != nil {
		return nil, newError(err)
	}

	return res, nil
}

// ListDatabases returns database names.
func (c *Conn) ListDatabases(ctx context.Context) (res []string, err error) {
	if c.client == nil {
		return nil, newError(ErrNotOpen)
	}

	ctx, end := c.profile(ctx, "conn.list_databases", "list databases")
	defer func() { end(err) }()

	if res, err = c.client.ListDatabases(ctx); err != nil {
		return nil, newError(err)
	}

	return res, nil
}

// Ping checks that the server is reachable.
func (c *Conn) Ping(ctx context.Context) (err error) {
	if c.client == nil {
		return newError(ErrNotOpen)
	}

	ctx, end := c.profile(ctx, "conn.ping", "ping "+c.addr())
	defer func() { end(err) }()

	if err = c.client.Ping(ctx); err != nil {
		return newError(err)
	}

	return nil
}

// Command runs a command against the database opened by the connection's client
// and returns the raw result.
//
// Unlike Database.ExecuteCommand, the result is not inspected for embedded errors.
func (c *Conn) Command(ctx context.Context, cmd any, opts map[string]any) (res any, err error) {
	if c.client == nil {
		return nil, newError(ErrNotOpen)
	}

	ctx, end := c.profile(ctx, "conn.command", fmt.Sprintf("command %v", cmd))
	defer func() { end(err) }()

	if res, err = c.client.Command(ctx, &driver.CommandParams{Command: cmd, Options: opts}); err != nil {
		return nil, newError(err)
	}

	return res, nil
}

// Describe implements prometheus.Collector.
func (c *Conn) Describe(ch chan<- *prometheus.Desc) {
	c.metrics.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Conn) Collect(ch chan<- prometheus.Metric) {
	c.metrics.Collect(ch)
}

// check interfaces
var (
	_ fmt.Stringer         = (*Conn)(nil)
	_ prometheus.Collector = (*Conn)(nil)
)
