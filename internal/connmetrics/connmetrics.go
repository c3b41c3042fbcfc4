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

// Package connmetrics provides connection metrics.
package connmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "graphconn"
	subsystem = "conn"
)

// ResultOK is the result label value of successful operations.
const ResultOK = "ok"

// ConnMetrics represents connection metrics.
type ConnMetrics struct {
	Open      prometheus.Gauge
	Requests  *prometheus.CounterVec
	Responses *prometheus.CounterVec
	Durations *prometheus.HistogramVec
}

// NewConnMetrics creates connection metrics.
func NewConnMetrics() *ConnMetrics {
	return &ConnMetrics{
		Open: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "open",
				Help:      "1 if the connection's client is open, 0 otherwise.",
			},
		),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "requests_total",
				Help:      "Total number of requests.",
			},
			[]string{"operation"},
		),
		Responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "responses_total",
				Help:      "Total number of responses.",
			},
			[]string{"operation", "result"},
		),
		Durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "duration_seconds",
				Help:      "Operation durations.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"operation"},
		),
	}
}

// Request records the start of the given operation.
func (cm *ConnMetrics) Request(operation string) {
	cm.Requests.WithLabelValues(operation).Inc()
}

// Response records the result of the given operation.
//
// Result is ResultOK or an error code.
func (cm *ConnMetrics) Response(operation, result string, d time.Duration) {
	cm.Responses.WithLabelValues(operation, result).Inc()
	cm.Durations.WithLabelValues(operation).Observe(d.Seconds())
}

// Describe implements prometheus.Collector.
func (cm *ConnMetrics) Describe(ch chan<- *prometheus.Desc) {
	cm.Open.Describe(ch)
	cm.Requests.Describe(ch)
	cm.Responses.Describe(ch)
	cm.Durations.Describe(ch)
}

// Collect implements prometheus.Collector.
func (cm *ConnMetrics) Collect(ch chan<- prometheus.Metric) {
	cm.Open.Collect(ch)
	cm.Requests.Collect(ch)
	cm.Responses.Collect(ch)
	cm.Durations.Collect(ch)
}

// check interfaces
var (
	_ prometheus.Collector = (*ConnMetrics)(nil)
)
