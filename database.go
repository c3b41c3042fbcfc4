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

	"go.uber.org/zap"

	"github.com/FerretDB/graphconn/driver"
)

// Database represents a handle of a single opened database.
//
// Handles are created and cached by Conn.Database.
// A handle is invalidated when it is replaced by a refreshed one or when the connection is closed;
// operations on invalidated handles return *Error wrapping ErrNotOpen.
type Database struct {
	c      *Conn
	client driver.Client // clone of the connection's client; nil if invalidated
	name   string
}

// Name returns the database name.
func (db *Database) Name() string {
	return db.name
}

// String implements fmt.Stringer interface.
func (db *Database) String() string {
	return db.name
}

// CreateCollection creates a new collection with the given name and options
// and returns the driver's result unchanged.
func (db *Database) CreateCollection(ctx context.Context, name string, opts map[string]any) (res *driver.CreateCollectionResult, err error) { //nolint:lll // for readability
	if db.client == nil {
		return nil, newError(ErrNotOpen)
	}

	ctx, end := db.c.profile(ctx, "database.create_collection", fmt.Sprintf("db.create(%s, %s)", db.name, name))
	defer func() { end(err) }()

	res, err = db.client.CreateCollection(ctx, &driver.CreateCollectionParams{
		Options: opts,
		Name:    name,
	})
	if err != nil {
		return nil, newError(err)
	}

	return res, nil
}

// ExecuteCommand runs the command and returns the raw result.
//
// The result is inspected for embedded errors: errmsg or err fields of structured results,
// or an empty result. Such results are returned as *Error.
func (db *Database) ExecuteCommand(ctx context.Context, cmd any, opts map[string]any) (res any, err error) {
	if db.client == nil {
		return nil, newError(ErrNotOpen)
	}

	ctx, end := db.c.profile(ctx, "database.command", fmt.Sprintf("db.command(%s, %v)", db.name, cmd))
	defer func() { end(err) }()

	res, err = db.client.Command(ctx, &driver.CommandParams{
		Command: cmd,
		Options: opts,
	})
	if err != nil {
		return nil, newError(err)
	}

	if err = resultError(res); err != nil {
		db.c.l.Debug("Command returned an error", zap.String("database", db.name), zap.Error(err))
		return nil, err
	}

	return res, nil
}

// Close invalidates the handle and removes it from the connection's cache.
//
// It does nothing if the handle is already invalidated.
func (db *Database) Close(ctx context.Context) error {
	if db.c.databases[db.name] == db {
		delete(db.c.databases, db.name)
	}

	if err := db.invalidate(ctx); err != nil {
		return newError(err)
	}

	return nil
}

// invalidate closes the client clone.
func (db *Database) invalidate(ctx context.Context) error {
	client := db.client
	if client == nil {
		return nil
	}

	db.client = nil

	if client.Transport().DatabaseOpened {
		if err := client.CloseDatabase(ctx); err != nil {
			return errors.Join(err, client.Close(ctx))
		}
	}

	return client.Close(ctx)
}

// check interfaces
var (
	_ fmt.Stringer = (*Database)(nil)
)
