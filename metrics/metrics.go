// Copyright 2026 The Quartz Authors.
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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Label constants.
const (
	LblType   = "type"
	LblResult = "result"

	OpInsert = "insert"
	OpDelete = "delete"
	OpUpdate = "update"

	RetOK    = "ok"
	RetError = "error"
)

// Materialized view maintenance metrics.
var (
	DeltaApplyCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quartz",
			Subsystem: "mview",
			Name:      "delta_apply_total",
			Help:      "Counter of incremental delta applications by operation kind.",
		}, []string{LblType, LblResult})

	FallbackRecomputeCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quartz",
			Subsystem: "mview",
			Name:      "fallback_recompute_total",
			Help:      "Counter of per-group MIN/MAX fallback recomputations.",
		}, []string{LblResult})

	JoinRefreshCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quartz",
			Subsystem: "mview",
			Name:      "join_refresh_total",
			Help:      "Counter of full join refresh reconciliations.",
		}, []string{LblResult})

	RefreshDurationHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "quartz",
			Subsystem: "mview",
			Name:      "refresh_duration_seconds",
			Help:      "Bucketed histogram of processing time (s) of view refresh.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 24),
		})

	HandlerGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "quartz",
			Subsystem: "mview",
			Name:      "installed_handlers",
			Help:      "Number of installed view handlers.",
		})

	PlanCacheCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quartz",
			Subsystem: "planner",
			Name:      "plan_cache_total",
			Help:      "Counter of compiled view plan cache hits and misses.",
		}, []string{LblType})
)

// RegisterMetrics registers the metrics which are only used in this
// repository.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(DeltaApplyCounter)
	reg.MustRegister(FallbackRecomputeCounter)
	reg.MustRegister(JoinRefreshCounter)
	reg.MustRegister(RefreshDurationHistogram)
	reg.MustRegister(HandlerGauge)
	reg.MustRegister(PlanCacheCounter)
}
