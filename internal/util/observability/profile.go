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

package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// tracerName is the name of the OpenTelemetry tracer used by graphconn.
const tracerName = "github.com/FerretDB/graphconn"

// Profile is a profiling block around a single connection or command operation.
//
// It pairs a debug log line at the beginning and at the end of the block
// with an OpenTelemetry span.
type Profile struct {
	l     *zap.Logger
	span  trace.Span
	token string
	start time.Time
}

// BeginProfile starts a profiling block named by token; category is usually the operation name.
//
// The returned context carries the span and should be passed to the profiled operation.
// The caller must call End exactly once.
func BeginProfile(ctx context.Context, l *zap.Logger, category, token string) (context.Context, *Profile) {
	ctx, span := otel.Tracer(tracerName).Start(
		ctx,
		category,
		trace.WithAttributes(attribute.String("graphconn.token", token)),
		trace.WithSpanKind(trace.SpanKindClient),
	)

	l.Debug("Begin profile", zap.String("category", category), zap.String("token", token))

	return ctx, &Profile{
		l:     l,
		span:  span,
		token: token,
		start: time.Now(),
	}
}

// End finishes the profiling block, recording err (if any) on the span.
func (p *Profile) End(err error) {
	d := time.Since(p.start)

	if err != nil {
		p.span.RecordError(err)
		p.span.SetStatus(codes.Error, err.Error())
	}

	p.span.End()

	p.l.Debug("End profile", zap.String("token", p.token), zap.Duration("duration", d), zap.Error(err))
}

// Duration returns the time elapsed since the beginning of the profiling block.
func (p *Profile) Duration() time.Duration {
	return time.Since(p.start)
}
