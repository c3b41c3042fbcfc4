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

package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/FerretDB/graphconn"
	"github.com/FerretDB/graphconn/driver"
	"github.com/FerretDB/graphconn/driver/memory"
	"github.com/FerretDB/graphconn/driver/mongodb"
	"github.com/FerretDB/graphconn/internal/util/lazyerrors"
)

// executeParams represents the parameters of execute function.
type executeParams struct {
	command string
	flags   *cliFlags
	out     io.Writer
	l       *zap.Logger
	r       prometheus.Registerer // may be nil
}

// execute opens a connection with the given flags and runs the given command,
// writing results to the output as MongoDB Extended JSON.
func execute(ctx context.Context, params *executeParams) (err error) {
	flags := params.flags
	l := params.l

	newClient, err := newClientFunc(flags)
	if err != nil {
		return err
	}

	conn, err := graphconn.New(&graphconn.NewOpts{
		Config: &graphconn.Config{
			Host: flags.Host,
			Port: flags.Port,
			Connection: graphconn.ConnectionParams{
				Database: flags.Database,
				Username: flags.Username,
				Password: flags.Password,
			},
			Options: parseOptions(flags.Option),
		},
		L:         l.Named("conn"),
		NewClient: newClient,
		AfterOpen: []graphconn.AfterOpenFunc{func(_ context.Context, c *graphconn.Conn) error {
			l.Debug("Connection opened", zap.String("database", c.Name()))
			return nil
		}},
	})
	if err != nil {
		return err
	}

	if params.r != nil {
		if err = params.r.Register(conn); err != nil {
			return lazyerrors.Error(err)
		}

		defer params.r.Unregister(conn)
	}

	ctx, cancel := context.WithTimeout(ctx, flags.Timeout)
	defer cancel()

	if err = conn.Open(ctx); err != nil {
		return err
	}

	defer func() {
		if e := conn.Close(context.WithoutCancel(ctx)); e != nil && err == nil {
			err = e
		}
	}()

	var res any

	switch params.command {
	case "ping":
		if err = conn.Ping(ctx); err != nil {
			return err
		}

		res = bson.D{{Key: "ok", Value: float64(1)}}

	case "databases":
		var names []string
		if names, err = conn.ListDatabases(ctx); err != nil {
			return err
		}

		res = bson.D{{Key: "databases", Value: names}}

	case "collections":
		var clusters []driver.ClusterInfo
		if clusters, err = conn.Cluster(ctx); err != nil {
			return err
		}

		collections := make(bson.A, len(clusters))
		for i, c := range clusters {
			collections[i] = bson.D{{Key: "id", Value: int32(c.ID)}, {Key: "name", Value: c.Name}, {Key: "type", Value: c.Type}}
		}

		res = bson.D{{Key: "collections", Value: collections}}

	case "create-collection <name>":
		res, err = createCollection(ctx, conn, flags)

	case "command <document>":
		res, err = command(ctx, conn, flags.Command.Document)

	default:
		return lazyerrors.Errorf("unhandled command %q", params.command)
	}

	if err != nil {
		return err
	}

	return printResult(params.out, res)
}

// createCollection creates a collection in the default database.
func createCollection(ctx context.Context, conn *graphconn.Conn, flags *cliFlags) (any, error) {
	db, err := conn.Database(ctx, "", false)
	if err != nil {
		return nil, err
	}

	opts := map[string]any{}

	if f := flags.CreateCollection; f.Capped {
		opts["capped"] = true

		if f.Size > 0 {
			opts["size"] = f.Size
		}

		if f.Max > 0 {
			opts["max"] = f.Max
		}
	}

	res, err := db.CreateCollection(ctx, flags.CreateCollection.Name, opts)
	if err != nil {
		return nil, err
	}

	return bson.D{{Key: "database", Value: res.Database}, {Key: "name", Value: res.Name}}, nil
}

// command runs a command given as MongoDB Extended JSON against the default database.
func command(ctx context.Context, conn *graphconn.Conn, doc string) (any, error) {
	var cmd bson.D
	if err := bson.UnmarshalExtJSON([]byte(doc), false, &cmd); err != nil {
		return nil, lazyerrors.Error(err)
	}

	db, err := conn.Database(ctx, "", false)
	if err != nil {
		return nil, err
	}

	return db.ExecuteCommand(ctx, cmd, nil)
}

// newClientFunc returns the client constructor for the driver flag.
func newClientFunc(flags *cliFlags) (driver.NewClientFunc, error) {
	switch flags.Driver {
	case "mongodb":
		return mongodb.NewClient, nil
	case "memory":
		return memory.NewServer(flags.Database).NewClientFunc(), nil
	default:
		return nil, lazyerrors.Errorf("unknown driver %q", flags.Driver)
	}
}

// parseOptions converts option flag values to booleans and integers where possible.
func parseOptions(opts map[string]string) map[string]any {
	if len(opts) == 0 {
		return nil
	}

	res := make(map[string]any, len(opts))

	for k, v := range opts {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			res[k] = i
			continue
		}

		if b, err := strconv.ParseBool(v); err == nil {
			res[k] = b
			continue
		}

		res[k] = v
	}

	return res
}

// printResult writes the result as relaxed MongoDB Extended JSON.
func printResult(w io.Writer, res any) error {
	b, err := bson.MarshalExtJSON(res, false, false)
	if err != nil {
		_, err = fmt.Fprintf(w, "%v\n", res)
		return err
	}

	_, err = fmt.Fprintf(w, "%s\n", b)

	return err
}
