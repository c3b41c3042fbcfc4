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

package debug

import (
	"context"
	"io"
	"net/http"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FerretDB/graphconn/internal/connmetrics"
	"github.com/FerretDB/graphconn/internal/util/testutil"
)

func TestHandler(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(testutil.Ctx(t))

	cm := connmetrics.NewConnMetrics()
	cm.Request("conn.open")

	r := prometheus.NewRegistry()
	r.MustRegister(cm)

	h, err := Listen(&ListenOpts{
		TCPAddr: "127.0.0.1:0",
		L:       testutil.Logger(t),
		R:       r,
		G:       r,
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		h.Serve(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	root := "http://" + h.Addr().String()

	for path, expected := range map[string]string{
		"/debug/metrics": `graphconn_conn_requests_total{operation="conn.open"} 1`,
		"/debug":         "/debug/graphs",
	} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, root+path, nil)
		require.NoError(t, err)

		res, err := http.DefaultClient.Do(req)
		require.NoError(t, err)

		b, err := io.ReadAll(res.Body)
		require.NoError(t, res.Body.Close())
		require.NoError(t, err)

		assert.Equal(t, http.StatusOK, res.StatusCode, path)
		assert.Contains(t, string(b), expected, path)
	}
}

func TestPlotter(t *testing.T) {
	t.Parallel()

	cm := connmetrics.NewConnMetrics()
	cm.Request("conn.open")
	cm.Request("conn.ping")
	cm.Open.Set(1)

	r := prometheus.NewRegistry()
	r.MustRegister(cm)

	p := newPlotter(r)

	plots, err := p.plots()
	require.NoError(t, err)
	assert.Len(t, plots, 2)

	assert.Equal(t, float64(2), p.sum("graphconn_conn_requests_total")())
	assert.Equal(t, float64(1), p.sum("graphconn_conn_open")())
	assert.Equal(t, float64(0), p.sum("no_such_metric")())
}
