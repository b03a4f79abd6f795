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
	"github.com/quartzdb/quartz/types"
)

// FallbackPlan is a precompiled executor plan that re-scans exactly the
// source rows matching one group key and returns the correct new extremum
// for one MIN/MAX aggregate column. ok is false when no row with a non-NULL
// aggregated value remains in the group. The plan is an opaque synchronous
// in-memory computation supplied by the planner; the handler does not
// reinterpret it.
type FallbackPlan interface {
	Recompute(groupKey []types.Datum) (extremum types.Datum, ok bool, err error)
}

// RefreshPlan is a precompiled executor plan that recomputes the complete
// view content, re-joining all source tables for a multi-source view. Each
// returned row is a full target-table row, hidden maintenance columns
// included.
type RefreshPlan interface {
	Execute() ([][]types.Datum, error)
}

// PlanSet bundles the precompiled executor plans the catalog supplies when
// installing a handler: one fallback plan per MIN/MAX aggregate column,
// keyed by the aggregate's ordinal in the view definition, and one full
// refresh plan.
type PlanSet struct {
	MinMax  map[int]FallbackPlan
	Refresh RefreshPlan
}
