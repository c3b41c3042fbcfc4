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

// Package graphconn provides a database connection component.
//
// Conn owns a single lazily created client of the underlying database driver,
// opens the default database on it, and hands out cached Database handles by name.
// All driver failures are returned as *Error values.
package graphconn

import (
	"maps"
)

// Defaults for Config fields.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 2424
)

// ConnectionParams represents database connection parameters.
type ConnectionParams struct {
	// Database is the default database name, used when Config.DefaultDatabaseName is empty.
	Database string

	Username string
	Password string
}

// Config represents connection configuration.
type Config struct {
	// Host to connect to; DefaultHost if empty.
	Host string

	// Port to connect to; DefaultPort if zero.
	Port int

	Connection ConnectionParams

	// Options are passed to the driver as is when a database is opened.
	Options map[string]any

	// DefaultDatabaseName overrides Connection.Database.
	DefaultDatabaseName string

	// SessionToken is passed to the driver when the client is constructed.
	// A random token is generated if empty.
	SessionToken string
}

// defaultDatabaseName returns the resolved default database name.
func (c *Config) defaultDatabaseName() (string, error) {
	if c.DefaultDatabaseName != "" {
		return c.DefaultDatabaseName, nil
	}

	if c.Connection.Database != "" {
		return c.Connection.Database, nil
	}

	return "", ErrInvalidConfig
}

// withDefaults returns a copy of the configuration with defaults filled in.
func (c *Config) withDefaults() Config {
	res := *c
	res.Options = maps.Clone(c.Options)

	if res.Host == "" {
		res.Host = DefaultHost
	}

	if res.Port == 0 {
		res.Port = DefaultPort
	}

	return res
}
