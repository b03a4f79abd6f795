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

package mview

import (
	"github.com/pingcap/errors"
	"github.com/pingcap/failpoint"
	"go.uber.org/zap"

	"github.com/quartzdb/quartz/metrics"
	"github.com/quartzdb/quartz/types"
	"github.com/quartzdb/quartz/util/logutil"
)

// recomputeExtremum resolves one (group key, MIN/MAX column) pair that was
// flagged unsafe by the delta applier. It invokes the precompiled fallback
// plan, which re-scans exactly the source rows matching the group key, so
// the cost is bounded by the size of one group, never the whole view.
// An empty result is not an error: it means no non-NULL aggregated value
// remains and the slot takes the aggregate's empty-group value, NULL.
func (h *Handler) recomputeExtremum(i int, groupKey []types.Datum) (types.Datum, error) {
	var failErr error
	failpoint.Inject("mockFallbackErr", func() {
		failErr = errors.New("mock fallback recompute error")
	})
	if failErr != nil {
		metrics.FallbackRecomputeCounter.WithLabelValues(metrics.RetError).Inc()
		return types.Datum{}, failErr
	}

	plan, ok := h.minMaxPlans[i]
	if !ok || plan == nil {
		metrics.FallbackRecomputeCounter.WithLabelValues(metrics.RetError).Inc()
		return types.Datum{}, errors.Annotatef(ErrMissingFallbackPlan,
			"view %s aggregate %d", h.info.Name, i)
	}

	val, found, err := plan.Recompute(groupKey)
	if err != nil {
		metrics.FallbackRecomputeCounter.WithLabelValues(metrics.RetError).Inc()
		return types.Datum{}, errors.Trace(err)
	}
	metrics.FallbackRecomputeCounter.WithLabelValues(metrics.RetOK).Inc()

	if !found {
		var null types.Datum
		null.SetNull()
		return null, nil
	}
	logutil.BgLogger().Debug("fallback extremum recompute",
		zap.String("handler", h.id),
		zap.String("view", h.info.Name.O),
		zap.Int("agg", i),
		zap.Stringer("extremum", val))
	return val.Clone(), nil
}
