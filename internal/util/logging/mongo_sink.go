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

package logging

import (
	"fmt"

	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// mongoLogLevels maps mongo-driver log levels to zap levels.
//
// The driver's info level is used for every command started/succeeded message,
// so it is hidden by default.
var mongoLogLevels = map[int]zapcore.Level{
	int(options.LogLevelInfo):  zap.DebugLevel,
	int(options.LogLevelDebug): zap.DebugLevel,
}

// mongoSink is a mongo-driver's [options.LogSink] implementation that uses zap.
type mongoSink struct {
	l *zap.Logger
}

// NewMongoSink creates a new [options.LogSink] that uses given logger.
func NewMongoSink(l *zap.Logger) options.LogSink {
	return &mongoSink{
		l: l.WithOptions(zap.AddCallerSkip(1)),
	}
}

// Info implements [options.LogSink].
func (ms *mongoSink) Info(level int, msg string, keysAndValues ...any) {
	lvl, ok := mongoLogLevels[level]
	if !ok {
		lvl = zap.DebugLevel
	}

	if ce := ms.l.Check(lvl, msg); ce != nil {
		ce.Write(fields(keysAndValues)...)
	}
}

// Error implements [options.LogSink].
func (ms *mongoSink) Error(err error, msg string, keysAndValues ...any) {
	ms.l.Warn(msg, append(fields(keysAndValues), zap.Error(err))...)
}

// fields converts mongo-driver's key/value pairs to zap fields.
func fields(keysAndValues []any) []zap.Field {
	res := make([]zap.Field, 0, len(keysAndValues)/2+1)

	for i := 0; i < len(keysAndValues); i += 2 {
		k := fmt.Sprint(keysAndValues[i])

		if i+1 == len(keysAndValues) {
			res = append(res, zap.Any("!BADKEY", k))
			break
		}

		res = append(res, zap.Any(k, keysAndValues[i+1]))
	}

	return res
}

// check interfaces
var (
	_ options.LogSink = (*mongoSink)(nil)
)
