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
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	otelsdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// Tests in this file replace the global tracer provider; they must not run in parallel.

func TestProfile(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := otelsdktrace.NewTracerProvider(otelsdktrace.WithSyncer(exporter))

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		require.NoError(t, tp.Shutdown(context.Background()))
	})

	core, logs := observer.New(zap.DebugLevel)
	l := zap.New(core)

	ctx, p := BeginProfile(context.Background(), l, "ExecuteCommand", "GratefulDeadConcerts.$cmd({})")
	assert.NotNil(t, ctx)
	p.End(nil)

	_, p = BeginProfile(context.Background(), l, "CreateCollection", "GratefulDeadConcerts.create(v)")
	p.End(errors.New("collection already exists"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	assert.Equal(t, "ExecuteCommand", spans[0].Name)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)

	assert.Equal(t, "CreateCollection", spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, "collection already exists", spans[1].Status.Description)

	require.Equal(t, 4, logs.Len())
	assert.Equal(t, "Begin profile", logs.All()[0].Message)
	assert.Equal(t, "End profile", logs.All()[1].Message)
}

func TestSetupOtelDisabled(t *testing.T) {
	shutdown, err := SetupOtel("graphconn", "")
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestFuncCall(t *testing.T) {
	assert.NotPanics(t, func() {
		defer FuncCall(context.Background())()
	})
}
