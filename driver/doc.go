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

// Package driver defines the underlying database client that graphconn adapts.
//
// # Design principles.
//
//  1. The client does all substantive work: socket handling, wire serialization, command execution.
//     graphconn only decides when to open and close it, and how to report its failures.
//  2. A Client is created without network I/O; the transport is established by the first OpenDatabase call.
//     Clone returns a new Client that shares the transport but has its own opened database.
//  3. Contexts are per-operation and should not be stored.
//  4. Errors returned by methods could be nil, *Error, or some other opaque error.
//     *Error values carry the server's error code and message;
//     they can't be wrapped or be present anywhere in the error chain.
//     ClientContract enforces that in debug builds.
//
// All implementations should wrap their clients with ClientContract.
package driver
