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

package driver

import (
	"context"
	"fmt"
	"regexp"

	"github.com/FerretDB/graphconn/internal/util/observability"
	"github.com/FerretDB/graphconn/internal/util/resource"
)

// databaseNameRe validates database names.
var databaseNameRe = regexp.MustCompile("^[a-zA-Z0-9_-]{1,63}$")

// collectionNameRe validates collection names.
var collectionNameRe = regexp.MustCompile("^[^\\.$\x00][^$\x00]{0,234}$")

// clientContract implements Client interface.
type clientContract struct {
	c     Client
	token *resource.Token
}

// ClientContract wraps Client and enforces its contract.
//
// All client implementations should use that function when they create new Client instances,
// including clones.
// The connection should not use that function.
//
// See clientContract and its methods for additional details.
func ClientContract(c Client) Client {
	if cc, ok := c.(*clientContract); ok {
		return cc
	}

	cc := &clientContract{
		c:     c,
		token: resource.NewToken(),
	}
	resource.Track(cc, cc.token)

	return cc
}

// OpenDatabase establishes the transport if needed, authenticates and opens the database with the given name.
//
// Opening a database on a client that already has one opened switches it.
func (cc *clientContract) OpenDatabase(ctx context.Context, params *OpenDatabaseParams) (err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err) }()

	if err = validateDatabaseName(params.Name); err != nil {
		return
	}

	err = cc.c.OpenDatabase(ctx, params)

	return
}

// CloseDatabase closes the opened database session; the transport stays connected.
func (cc *clientContract) CloseDatabase(ctx context.Context) (err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err) }()

	err = cc.c.CloseDatabase(ctx)

	return
}

// Transport returns the current state of the client's transport.
// It does not perform network I/O.
func (cc *clientContract) Transport() Transport {
	t := cc.c.Transport()

	if t.DatabaseOpened && t.DatabaseName == "" {
		panic("driver: database is opened, but its name is empty")
	}

	return t
}

// Command runs a command against the opened database and returns its raw result.
//
// The raw result may embed an error (for example, `errmsg` field); the caller inspects it.
func (cc *clientContract) Command(ctx context.Context, params *CommandParams) (res any, err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err) }()

	if params.Command == nil {
		err = NewError(0, "command must not be nil", nil)
		return
	}

	if err = cc.databaseOpened(); err != nil {
		return
	}

	res, err = cc.c.Command(ctx, params)

	return
}

// CreateCollection creates a new collection in the opened database.
func (cc *clientContract) CreateCollection(ctx context.Context, params *CreateCollectionParams) (res *CreateCollectionResult, err error) { //nolint:lll // for readability
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err) }()

	if err = validateCollectionName(params.Name); err != nil {
		return
	}

	if err = cc.databaseOpened(); err != nil {
		return
	}

	res, err = cc.c.CreateCollection(ctx, params)

	return
}

// ClusterMap returns information about clusters (collections) of the opened database.
func (cc *clientContract) ClusterMap(ctx context.Context) (res []ClusterInfo, err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err) }()

	if err = cc.databaseOpened(); err != nil {
		return
	}

	res, err = cc.c.ClusterMap(ctx)

	return
}

// ListDatabases returns names of all databases on the server.
func (cc *clientContract) ListDatabases(ctx context.Context) (res []string, err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err) }()

	res, err = cc.c.ListDatabases(ctx)

	return
}

// Ping checks that the server is reachable.
func (cc *clientContract) Ping(ctx context.Context) (err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err) }()

	err = cc.c.Ping(ctx)

	return
}

// Clone returns a new client sharing the transport, with no database opened.
func (cc *clientContract) Clone() Client {
	clone := cc.c.Clone()

	if clone.Transport().DatabaseOpened {
		panic("driver: clone must not have a database opened")
	}

	return ClientContract(clone)
}

// Close releases the client.
//
// Closing the client that established the transport closes the transport;
// closing a clone only releases its opened database.
func (cc *clientContract) Close(ctx context.Context) (err error) {
	defer observability.FuncCall(ctx)()
	defer func() { checkError(err) }()

	err = cc.c.Close(ctx)

	resource.Untrack(cc, cc.token)

	return
}

// databaseOpened returns an error if the client has no database opened.
func (cc *clientContract) databaseOpened() error {
	if cc.c.Transport().DatabaseOpened {
		return nil
	}

	return NewError(0, "no database opened", nil)
}

// validateDatabaseName checks that database name is valid.
//
// Only basic latin letters, digits, and basic punctuation are allowed.
// Implementations can do their own additional validation.
func validateDatabaseName(name string) error {
	if !databaseNameRe.MatchString(name) {
		return NewError(ErrorCodeInvalidNamespace, fmt.Sprintf("Invalid database name: '%s'", name), nil)
	}

	return nil
}

// validateCollectionName checks that collection name is valid.
func validateCollectionName(name string) error {
	if !collectionNameRe.MatchString(name) {
		return NewError(ErrorCodeInvalidNamespace, fmt.Sprintf("Invalid collection name: '%s'", name), nil)
	}

	return nil
}

// check interfaces
var (
	_ Client = (*clientContract)(nil)
)
