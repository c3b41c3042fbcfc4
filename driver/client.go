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

	"go.uber.org/zap"
)

// Client is a generic interface for the underlying database clients.
//
// Client methods are not safe for concurrent use;
// the connection that owns a Client serializes calls.
//
// See clientContract and its methods for additional details.
type Client interface {
	OpenDatabase(context.Context, *OpenDatabaseParams) error
	CloseDatabase(context.Context) error
	Transport() Transport

	Command(context.Context, *CommandParams) (any, error)
	CreateCollection(context.Context, *CreateCollectionParams) (*CreateCollectionResult, error)
	ClusterMap(context.Context) ([]ClusterInfo, error)
	ListDatabases(context.Context) ([]string, error)
	Ping(context.Context) error

	Clone() Client
	Close(context.Context) error
}

// NewClientParams represents the parameters of NewClientFunc.
type NewClientParams struct {
	Host         string
	Port         int
	SessionToken string // may be empty
	L            *zap.Logger
}

// NewClientFunc constructs a Client.
//
// It must not perform network I/O.
type NewClientFunc func(params *NewClientParams) (Client, error)

// Transport represents the state of the client's transport.
type Transport struct {
	DatabaseName   string // empty if no database is opened
	Connected      bool
	DatabaseOpened bool
}

// OpenDatabaseParams represents the parameters of Client.OpenDatabase method.
type OpenDatabaseParams struct {
	Options  map[string]any
	Name     string
	Username string
	Password string
}

// CommandParams represents the parameters of Client.Command method.
type CommandParams struct {
	// Command is a command document, usually bson.D with the command name as the first key.
	Command any
	Options map[string]any
}

// CreateCollectionParams represents the parameters of Client.CreateCollection method.
type CreateCollectionParams struct {
	Options map[string]any
	Name    string
}

// CreateCollectionResult represents the result of Client.CreateCollection method.
type CreateCollectionResult struct {
	Database string
	Name     string
}

// ClusterInfo represents information about a single cluster (collection) of the opened database.
type ClusterInfo struct {
	Name string
	Type string
	ID   int
}
