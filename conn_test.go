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
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/FerretDB/graphconn/driver"
	"github.com/FerretDB/graphconn/driver/memory"
	tu "github.com/FerretDB/graphconn/internal/util/testutil"
)

// setup returns a new connection to a new in-memory server with
// "GratefulDeadConcerts" and "other" databases.
func setup(t *testing.T, opts *NewOpts) (*Conn, *memory.Server) {
	t.Helper()

	s := memory.NewServer("GratefulDeadConcerts", "other")

	if opts == nil {
		opts = new(NewOpts)
	}

	if opts.Config == nil {
		opts.Config = &Config{
			Connection: ConnectionParams{Database: "GratefulDeadConcerts"},
		}
	}

	if opts.L == nil {
		opts.L = tu.Logger(t)
	}

	opts.NewClient = s.NewClientFunc()

	c, err := New(opts)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, c.Close(context.Background()))
	})

	return c, s
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("Defaults", func(t *testing.T) {
		t.Parallel()

		c, _ := setup(t, nil)

		assert.Equal(t, DefaultHost, c.config.Host)
		assert.Equal(t, DefaultPort, c.config.Port)
		assert.NotEmpty(t, c.config.SessionToken)
		assert.Equal(t, "GratefulDeadConcerts", c.DefaultDatabaseName())
	})

	t.Run("Override", func(t *testing.T) {
		t.Parallel()

		c, _ := setup(t, &NewOpts{
			Config: &Config{
				Host:                "db.example.com",
				Port:                2480,
				Connection:          ConnectionParams{Database: "GratefulDeadConcerts"},
				DefaultDatabaseName: "other",
				SessionToken:        "token",
			},
		})

		assert.Equal(t, "db.example.com", c.config.Host)
		assert.Equal(t, 2480, c.config.Port)
		assert.Equal(t, "token", c.config.SessionToken)
		assert.Equal(t, "other", c.DefaultDatabaseName())
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		t.Parallel()

		s := memory.NewServer("GratefulDeadConcerts")

		c, err := New(&NewOpts{
			Config:    &Config{Connection: ConnectionParams{Username: "admin"}},
			NewClient: s.NewClientFunc(),
		})
		require.ErrorIs(t, err, ErrInvalidConfig)
		assert.Nil(t, c)

		var e *Error
		assert.False(t, errors.As(err, &e))

		assert.Equal(t, memory.Stats{}, s.Stats())
	})

	t.Run("NilConfig", func(t *testing.T) {
		t.Parallel()

		_, err := New(&NewOpts{})
		require.Error(t, err)
	})
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("Idempotent", func(t *testing.T) {
		t.Parallel()

		ctx := tu.Ctx(t)
		c, s := setup(t, nil)

		assert.False(t, c.IsActive())
		assert.Nil(t, c.Client())

		require.NoError(t, c.Open(ctx))
		client := c.Client()
		require.NotNil(t, client)

		require.NoError(t, c.Open(ctx))
		assert.Same(t, client, c.Client())

		assert.True(t, c.IsActive())
		assert.Equal(t, memory.Stats{Clients: 1, Connects: 1}, s.Stats())

		assert.Equal(t, "GratefulDeadConcerts", c.DefaultDatabaseName())
		assert.Equal(t, "GratefulDeadConcerts", c.Name())
		assert.Equal(t, "GratefulDeadConcerts", c.String())
	})

	t.Run("DatabaseNotFound", func(t *testing.T) {
		t.Parallel()

		ctx := tu.Ctx(t)
		c, s := setup(t, &NewOpts{
			Config: &Config{Connection: ConnectionParams{Database: "missing"}},
		})

		err := c.Open(ctx)

		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, memory.ErrorCodeNamespaceNotFound, e.Code)
		assert.Equal(t, "Database 'missing' does not exist", e.Message)
		assert.Equal(t, "OrientDB Exception", e.Name())

		assert.Nil(t, c.Client())
		assert.False(t, c.IsActive())
		assert.Equal(t, 1, s.Stats().Clients)
	})

	t.Run("AuthenticationFailed", func(t *testing.T) {
		t.Parallel()

		ctx := tu.Ctx(t)
		c, s := setup(t, &NewOpts{
			Config: &Config{
				Connection: ConnectionParams{
					Database: "GratefulDeadConcerts",
					Username: "admin",
					Password: "wrong",
				},
			},
		})
		s.AddUser("admin", "admin")

		err := c.Open(ctx)

		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, memory.ErrorCodeAuthenticationFailed, e.Code)
		assert.Nil(t, c.Client())
	})

	t.Run("ServerDown", func(t *testing.T) {
		t.Parallel()

		ctx := tu.Ctx(t)
		c, s := setup(t, nil)
		s.SetDown(true)

		err := c.Open(ctx)

		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, memory.ErrorCodeHostUnreachable, e.Code)
		assert.Nil(t, c.Client())

		s.SetDown(false)
		require.NoError(t, c.Open(ctx))
		assert.True(t, c.IsActive())
	})

	t.Run("NewClientError", func(t *testing.T) {
		t.Parallel()

		ctx := tu.Ctx(t)
		c, err := New(&NewOpts{
			Config: &Config{Connection: ConnectionParams{Database: "db"}},
			NewClient: func(*driver.NewClientParams) (driver.Client, error) {
				return nil, errors.New("no client for you")
			},
		})
		require.NoError(t, err)

		err = c.Open(ctx)

		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, 0, e.Code)
		assert.Equal(t, "no client for you", e.Message)
		assert.Regexp(t, `^\[conn.go:\d+ graphconn.\(\*Conn\).Open\] no client for you$`, e.Unwrap().Error())
		assert.Nil(t, c.Client())
	})

	t.Run("InvalidPort", func(t *testing.T) {
		t.Parallel()

		ctx := tu.Ctx(t)
		c, err := New(&NewOpts{
			Config: &Config{Port: 70000, Connection: ConnectionParams{Database: "db"}},
			L:      tu.Logger(t),
		})
		require.NoError(t, err)

		err = c.Open(ctx)

		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, 0, e.Code)
		assert.Equal(t, "mongodb.NewClient: invalid port 70000", e.Message)
		assert.Equal(t, "OrientDB Exception: mongodb.NewClient: invalid port 70000 (0)", e.Error())
		assert.False(t, c.IsActive())
	})
}

func TestAfterOpen(t *testing.T) {
	t.Parallel()

	t.Run("Called", func(t *testing.T) {
		t.Parallel()

		ctx := tu.Ctx(t)

		var calls int
		var opened *Conn
		c, _ := setup(t, &NewOpts{
			AfterOpen: []AfterOpenFunc{func(ctx context.Context, c *Conn) error {
				calls++
				opened = c
				assert.True(t, c.IsActive())
				return nil
			}},
		})

		require.NoError(t, c.Open(ctx))
		require.NoError(t, c.Open(ctx))

		assert.Equal(t, 1, calls)
		assert.Same(t, c, opened)
	})

	t.Run("Error", func(t *testing.T) {
		t.Parallel()

		ctx := tu.Ctx(t)

		hookErr := errors.New("hook failed")
		c, s := setup(t, &NewOpts{
			AfterOpen: []AfterOpenFunc{func(ctx context.Context, c *Conn) error {
				_, err := c.Database(ctx, "other", false)
				require.NoError(t, err)

				return hookErr
			}},
		})

		err := c.Open(ctx)

		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, "hook failed", e.Message)
		assert.ErrorIs(t, err, hookErr)

		assert.Nil(t, c.Client())
		assert.False(t, c.IsActive())
		assert.Empty(t, c.databases)
		assert.Equal(t, 1, s.Stats().Clients)
	})
}

func TestClose(t *testing.T) {
	t.Parallel()

	ctx := tu.Ctx(t)
	c, _ := setup(t, nil)

	require.NoError(t, c.Close(ctx))

	require.NoError(t, c.Open(ctx))

	db, err := c.Database(ctx, "other", false)
	require.NoError(t, err)

	require.NoError(t, c.Close(ctx))
	assert.False(t, c.IsActive())
	assert.Nil(t, c.Client())
	assert.Empty(t, c.databases)
	assert.Equal(t, "", c.Name())

	_, err = db.ExecuteCommand(ctx, "ping", nil)
	assert.ErrorIs(t, err, ErrNotOpen)

	require.NoError(t, c.Close(ctx))

	require.NoError(t, c.Open(ctx))
	assert.True(t, c.IsActive())
}

func TestDatabase(t *testing.T) {
	t.Parallel()

	t.Run("Cache", func(t *testing.T) {
		t.Parallel()

		ctx := tu.Ctx(t)
		c, s := setup(t, nil)

		db1, err := c.Database(ctx, "", false)
		require.NoError(t, err)
		assert.Equal(t, "GratefulDeadConcerts", db1.Name())
		assert.True(t, c.IsActive())

		db2, err := c.Database(ctx, "GratefulDeadConcerts", false)
		require.NoError(t, err)
		assert.Same(t, db1, db2)

		db3, err := c.Database(ctx, "", true)
		require.NoError(t, err)
		assert.NotSame(t, db1, db3)
		assert.Equal(t, "GratefulDeadConcerts", db3.String())

		db4, err := c.Database(ctx, "", false)
		require.NoError(t, err)
		assert.Same(t, db3, db4)

		_, err = db1.ExecuteCommand(ctx, "ping", nil)
		assert.ErrorIs(t, err, ErrNotOpen)

		_, err = db3.ExecuteCommand(ctx, "ping", nil)
		require.NoError(t, err)

		assert.Equal(t, memory.Stats{Clients: 1, Connects: 1}, s.Stats())
	})

	t.Run("Other", func(t *testing.T) {
		t.Parallel()

		ctx := tu.Ctx(t)
		c, _ := setup(t, nil)

		db, err := c.Database(ctx, "other", false)
		require.NoError(t, err)
		assert.Equal(t, "other", db.Name())

		assert.Equal(t, "GratefulDeadConcerts", c.Name())
	})

	t.Run("NotFound", func(t *testing.T) {
		t.Parallel()

		ctx := tu.Ctx(t)
		c, _ := setup(t, nil)

		_, err := c.Database(ctx, "missing", false)

		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, memory.ErrorCodeNamespaceNotFound, e.Code)

		assert.NotContains(t, c.databases, "missing")
		assert.True(t, c.IsActive())
	})

	t.Run("InvalidName", func(t *testing.T) {
		t.Parallel()

		ctx := tu.Ctx(t)
		c, _ := setup(t, nil)

		_, err := c.Database(ctx, "invalid name", false)

		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, driver.ErrorCodeInvalidNamespace, e.Code)
	})

	t.Run("Close", func(t *testing.T) {
		t.Parallel()

		ctx := tu.Ctx(t)
		c, _ := setup(t, nil)

		db1, err := c.Database(ctx, "other", false)
		require.NoError(t, err)

		require.NoError(t, db1.Close(ctx))
		require.NoError(t, db1.Close(ctx))

		db2, err := c.Database(ctx, "other", false)
		require.NoError(t, err)
		assert.NotSame(t, db1, db2)
	})
}

func TestPassThrough(t *testing.T) {
	t.Parallel()

	t.Run("NotOpen", func(t *testing.T) {
		t.Parallel()

		ctx := tu.Ctx(t)
		c, _ := setup(t, nil)

		_, err := c.Db(ctx, false)
		assert.ErrorIs(t, err, ErrNotOpen)

		_, err = c.Cluster(ctx)
		assert.ErrorIs(t, err, ErrNotOpen)

		_, err = c.ListDatabases(ctx)
		assert.ErrorIs(t, err, ErrNotOpen)

		err = c.Ping(ctx)
		assert.ErrorIs(t, err, ErrNotOpen)

		_, err = c.Command(ctx, "ping", nil)
		assert.ErrorIs(t, err, ErrNotOpen)

		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, 0, e.Code)
	})

	t.Run("Open", func(t *testing.T) {
		t.Parallel()

		ctx := tu.Ctx(t)
		c, _ := setup(t, nil)
		require.NoError(t, c.Open(ctx))

		require.NoError(t, c.Ping(ctx))

		names, err := c.ListDatabases(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"GratefulDeadConcerts", "other"}, names)

		db, err := c.Database(ctx, "", false)
		require.NoError(t, err)
		_, err = db.CreateCollection(ctx, "V", nil)
		require.NoError(t, err)
		_, err = db.CreateCollection(ctx, "E", nil)
		require.NoError(t, err)

		clusters, err := c.Cluster(ctx)
		require.NoError(t, err)
		expected := []driver.ClusterInfo{
			{Name: "E", Type: "collection", ID: 0},
			{Name: "V", Type: "collection", ID: 1},
		}
		assert.Equal(t, expected, clusters)

		res, err := c.Command(ctx, "noSuchCommand", nil)
		require.NoError(t, err, "raw results are not inspected")
		assert.Equal(t, float64(0), res.(bson.M)["ok"])
	})

	t.Run("Db", func(t *testing.T) {
		t.Parallel()

		ctx := tu.Ctx(t)
		c, _ := setup(t, nil)
		require.NoError(t, c.Open(ctx))

		client, err := c.Db(ctx, false)
		require.NoError(t, err)
		assert.Same(t, c.Client(), client)

		require.NoError(t, client.CloseDatabase(ctx))
		assert.Equal(t, "", c.Name())

		_, err = c.Db(ctx, false)
		require.NoError(t, err)
		assert.Equal(t, "GratefulDeadConcerts", c.Name())

		_, err = c.Db(ctx, true)
		require.NoError(t, err)
		assert.Equal(t, "GratefulDeadConcerts", c.Name())
	})

	t.Run("ServerDown", func(t *testing.T) {
		t.Parallel()

		ctx := tu.Ctx(t)
		c, s := setup(t, nil)
		require.NoError(t, c.Open(ctx))

		s.SetDown(true)
		assert.False(t, c.IsActive())

		err := c.Ping(ctx)

		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, memory.ErrorCodeHostUnreachable, e.Code)
		assert.Equal(t, "connection refused", e.Message)

		s.SetDown(false)
	})
}

func TestObservability(t *testing.T) {
	t.Parallel()

	ctx := tu.Ctx(t)

	core, logs := observer.New(zapcore.DebugLevel)
	c, s := setup(t, &NewOpts{L: zap.New(core)})

	require.NoError(t, c.Open(ctx))
	require.NoError(t, c.Ping(ctx))

	s.SetDown(true)
	require.Error(t, c.Ping(ctx))
	s.SetDown(false)

	assert.Equal(t, 1, logs.FilterMessage("Opening connection").Len())
	assert.Equal(t, 3, logs.FilterMessage("Begin profile").Len())
	assert.Equal(t, 3, logs.FilterMessage("End profile").Len())

	expected := `
		# HELP graphconn_conn_open 1 if the connection's client is open, 0 otherwise.
		# TYPE graphconn_conn_open gauge
		graphconn_conn_open 1
		# HELP graphconn_conn_responses_total Total number of responses.
		# TYPE graphconn_conn_responses_total counter
		graphconn_conn_responses_total{operation="conn.open",result="ok"} 1
		graphconn_conn_responses_total{operation="conn.ping",result="6"} 1
		graphconn_conn_responses_total{operation="conn.ping",result="ok"} 1
	`
	err := testutil.CollectAndCompare(
		c, strings.NewReader(expected),
		"graphconn_conn_open", "graphconn_conn_responses_total",
	)
	require.NoError(t, err)
}
