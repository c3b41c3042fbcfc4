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

// Package debug provides debug facilities.
package debug

import (
	"bytes"
	"context"
	"errors"
	"expvar"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"slices"
	"text/template"
	"time"

	"github.com/arl/statsviz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/exp/maps"

	"github.com/FerretDB/graphconn/internal/util/lazyerrors"
	"github.com/FerretDB/graphconn/internal/util/must"
)

// Handler represents debug handler.
type Handler struct {
	lis      net.Listener
	l        *zap.Logger
	mux      *http.ServeMux
	handlers map[string]string
}

// ListenOpts represents the options of Listen function.
type ListenOpts struct {
	TCPAddr string
	L       *zap.Logger
	R       prometheus.Registerer
	G       prometheus.Gatherer
}

// Listen creates a new debug handler and starts listener on the given TCP address.
//
// Metrics are gathered from G; handler metrics are registered in R.
func Listen(opts *ListenOpts) (*Handler, error) {
	must.NotBeZero(opts)

	g := newGatherer(opts.G, opts.L.Named("gatherer"))

	stdL := must.NotFail(zap.NewStdLogAt(opts.L, zap.WarnLevel))

	mux := http.NewServeMux()

	mux.Handle("/debug/metrics", promhttp.InstrumentMetricHandler(
		opts.R, promhttp.HandlerFor(g, promhttp.HandlerOpts{
			ErrorLog:          stdL,
			ErrorHandling:     promhttp.ContinueOnError,
			Registry:          opts.R,
			EnableOpenMetrics: true,
		}),
	))

	plots, err := newPlotter(g).plots()
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	vizOpts := []statsviz.Option{statsviz.Root("/debug/graphs")}
	for _, p := range plots {
		vizOpts = append(vizOpts, statsviz.TimeseriesPlot(p))
	}

	if err = statsviz.Register(mux, vizOpts...); err != nil {
		return nil, lazyerrors.Error(err)
	}

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/vars", expvar.Handler())

	handlers := map[string]string{
		// custom handlers registered above
		"/debug/graphs":  "Visualize metrics",
		"/debug/metrics": "Metrics in Prometheus format",

		// stdlib handlers
		"/debug/vars":  "Expvar package metrics",
		"/debug/pprof": "Runtime profiling data for pprof",
	}

	var page bytes.Buffer
	must.NoError(template.Must(template.New("debug").Parse(`
	<html>
	<body>
	<ul>
	{{range $path, $desc := .}}
		<li><a href="{{$path}}">{{$path}}</a>: {{$desc}}</li>
	{{end}}
	</ul>
	</body>
	</html>
	`)).Execute(&page, handlers))

	mux.HandleFunc("/debug", func(rw http.ResponseWriter, _ *http.Request) {
		_, _ = rw.Write(page.Bytes())
	})

	mux.HandleFunc("/", func(rw http.ResponseWriter, req *http.Request) {
		http.Redirect(rw, req, "/debug", http.StatusSeeOther)
	})

	lis, err := net.Listen("tcp", opts.TCPAddr)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	return &Handler{
		lis:      lis,
		l:        opts.L,
		mux:      mux,
		handlers: handlers,
	}, nil
}

// Addr returns the listener's address.
func (h *Handler) Addr() net.Addr {
	return h.lis.Addr()
}

// Serve runs debug handler until ctx is canceled.
//
// It exits when handler is stopped and listener closed.
func (h *Handler) Serve(ctx context.Context) {
	s := http.Server{
		Handler:  h.mux,
		ErrorLog: must.NotFail(zap.NewStdLogAt(h.l, zap.WarnLevel)),
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	root := fmt.Sprintf("http://%s", h.lis.Addr())

	h.l.Sugar().Infof("Starting debug server on %s ...", root)

	paths := maps.Keys(h.handlers)
	slices.Sort(paths)

	for _, path := range paths {
		h.l.Sugar().Infof("%s%s - %s", root, path, h.handlers[path])
	}

	go func() {
		if err := s.Serve(h.lis); !errors.Is(err, http.ErrServerClosed) {
			h.l.DPanic("Debug server stopped unexpectedly", zap.Error(err))
		}
	}()

	<-ctx.Done()

	// ctx is already canceled, but we want to inherit its values
	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer stopCancel()

	_ = s.Shutdown(stopCtx)
	_ = s.Close()

	h.l.Info("Debug server stopped.")
}
