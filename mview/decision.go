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
	"github.com/quartzdb/quartz/model"
)

// opKind is the row-level operation being propagated into the view.
type opKind int

const (
	opInsert opKind = iota
	opDelete
	opUpdate
)

// String implements fmt.Stringer interface.
func (op opKind) String() string {
	switch op {
	case opInsert:
		return "insert"
	case opDelete:
		return "delete"
	case opUpdate:
		return "update"
	}
	return "unknown"
}

// action is the maintenance strategy chosen for one aggregate slot.
type action int

const (
	// actNone leaves the slot untouched.
	actNone action = iota
	// actIncremental applies an O(1) in-place delta to the slot.
	actIncremental
	// actFallback recomputes the slot with the group-scoped fallback plan.
	actFallback
	// actRefresh re-executes the view's join plan and reconciles the
	// whole target table.
	actRefresh
)

// String implements fmt.Stringer interface.
func (a action) String() string {
	switch a {
	case actNone:
		return "none"
	case actIncremental:
		return "incremental"
	case actFallback:
		return "fallback"
	case actRefresh:
		return "refresh"
	}
	return "unknown"
}

// decideSlot chooses the maintenance strategy for one aggregate slot. It is
// a pure function of the operation kind, the aggregate kind, whether the
// removed or replaced value equals the stored extremum, and whether the
// view joins multiple source tables, so every cell of the decision table
// can be tested directly.
//
// A change on one source table of a joined view can touch target rows that
// cannot be enumerated without re-running the join, so every multi-source
// change escalates to refresh.
//
// For an update whose old value hits the extremum, the applier may still
// avoid the recompute when the new value dominates the stored extremum;
// that refinement needs the new value and therefore lives in the applier,
// not here.
func decideSlot(op opKind, f model.AggFunc, hitExtremum, multiSource bool) action {
	if multiSource {
		return actRefresh
	}
	switch op {
	case opInsert:
		return actIncremental
	case opDelete:
		switch f {
		case model.AggCountStar, model.AggCount, model.AggSum:
			return actIncremental
		case model.AggMin, model.AggMax:
			if hitExtremum {
				return actFallback
			}
			return actNone
		}
	case opUpdate:
		switch f {
		case model.AggCountStar, model.AggCount, model.AggSum:
			return actIncremental
		case model.AggMin, model.AggMax:
			if hitExtremum {
				return actFallback
			}
			return actIncremental
		}
	}
	return actNone
}
