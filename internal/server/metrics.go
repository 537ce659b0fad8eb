// Copyright 2020-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import "github.com/prometheus/client_golang/prometheus"

const namespace = "spanpart"

type metrics struct {
	mutations  *prometheus.CounterVec
	rejections prometheus.Counter
	sessions   prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer, dropped func() uint64) *metrics {
	m := &metrics{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutations_total",
			Help:      "Changes made to document partitions, by operation.",
		}, []string{"op"}),
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Annotations that were rejected as malformed or invalid.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Documents currently open.",
		}),
	}
	reg.MustRegister(m.mutations, m.rejections, m.sessions)

	if dropped != nil {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submit_dropped_total",
			Help:      "Snapshots dropped because the submission queue was full.",
		}, func() float64 { return float64(dropped()) }))
	}
	return m
}

// reject counts the errors err joins.
func (m *metrics) reject(err error) {
	if err == nil {
		return
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		m.rejections.Add(float64(len(joined.Unwrap())))
		return
	}
	m.rejections.Inc()
}
