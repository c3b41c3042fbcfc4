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
	"github.com/arl/statsviz"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/FerretDB/graphconn/internal/util/lazyerrors"
)

// plotter builds statsviz plots from Prometheus metrics.
type plotter struct {
	g prometheus.Gatherer
}

// newPlotter returns a new plotter.
func newPlotter(g prometheus.Gatherer) *plotter {
	return &plotter{
		g: g,
	}
}

// plots returns connection plots.
func (p *plotter) plots() ([]statsviz.TimeSeriesPlot, error) {
	configs := []statsviz.TimeSeriesPlotConfig{{
		Name:       "graphconn-requests",
		Title:      "Connection requests",
		Type:       statsviz.Scatter,
		InfoText:   "Total number of connection and database operations.",
		YAxisTitle: "requests",
		Series: []statsviz.TimeSeries{{
			Name:     "requests",
			Unitfmt:  "%{y:.4s}",
			GetValue: p.sum("graphconn_conn_requests_total"),
		}, {
			Name:     "responses",
			Unitfmt:  "%{y:.4s}",
			GetValue: p.sum("graphconn_conn_responses_total"),
		}},
	}, {
		Name:       "graphconn-open",
		Title:      "Open connections",
		Type:       statsviz.Bar,
		InfoText:   "1 if the connection's client is open, 0 otherwise.",
		YAxisTitle: "open",
		Series: []statsviz.TimeSeries{{
			Name:     "open",
			Unitfmt:  "%{y}",
			GetValue: p.sum("graphconn_conn_open"),
		}},
	}}

	res := make([]statsviz.TimeSeriesPlot, len(configs))

	for i, c := range configs {
		plot, err := c.Build()
		if err != nil {
			return nil, lazyerrors.Error(err)
		}

		res[i] = plot
	}

	return res, nil
}

// sum returns a function that sums values of all metrics in the family with the given name.
func (p *plotter) sum(name string) func() float64 {
	return func() float64 {
		mfs, _ := p.g.Gather()

		for _, mf := range mfs {
			if mf.GetName() != name {
				continue
			}

			var res float64
			for _, m := range mf.GetMetric() {
				res += value(mf.GetType(), m)
			}

			return res
		}

		return 0
	}
}

// value returns a single value of the metric.
func value(t dto.MetricType, m *dto.Metric) float64 {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	case dto.MetricType_UNTYPED:
		return m.GetUntyped().GetValue()
	case dto.MetricType_SUMMARY:
		return m.GetSummary().GetSampleSum()
	case dto.MetricType_HISTOGRAM, dto.MetricType_GAUGE_HISTOGRAM:
		return float64(m.GetHistogram().GetSampleCount())
	default:
		return 0
	}
}
