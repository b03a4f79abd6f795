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
	"math"

	"github.com/pingcap/errors"

	"github.com/quartzdb/quartz/model"
	"github.com/quartzdb/quartz/types"
)

// AddSum adds a non-NULL contribution into a SUM slot. A NULL slot means
// the group currently has no non-NULL contribution, so the slot becomes the
// contribution itself. It is exported for the planner, whose refresh plans
// must produce sums with the same arithmetic and overflow behavior as the
// incremental path.
func AddSum(slot, contrib types.Datum) (types.Datum, error) {
	if slot.IsNull() {
		return contrib.Clone(), nil
	}
	return sumArith(slot, contrib, 1)
}

// subSum subtracts a non-NULL contribution from a SUM slot.
func subSum(slot, contrib types.Datum) (types.Datum, error) {
	if slot.IsNull() {
		return types.Datum{}, errors.Annotate(ErrViewInconsistent, "subtract from NULL sum")
	}
	return sumArith(slot, contrib, -1)
}

func sumArith(slot, contrib types.Datum, sign int64) (types.Datum, error) {
	if slot.Kind() != contrib.Kind() {
		return types.Datum{}, errors.Annotatef(types.ErrIncompatibleTypes,
			"sum slot %s, contribution %s", slot.Kind(), contrib.Kind())
	}
	var ret types.Datum
	switch slot.Kind() {
	case types.KindInt64:
		a, b := slot.GetInt64(), contrib.GetInt64()*sign
		if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
			return ret, errors.Annotatef(ErrOverflow, "sum %d + %d", a, b)
		}
		ret.SetInt64(a + b)
	case types.KindUint64:
		a, b := slot.GetUint64(), contrib.GetUint64()
		if sign > 0 {
			if a > math.MaxUint64-b {
				return ret, errors.Annotatef(ErrOverflow, "sum %d + %d", a, b)
			}
			ret.SetUint64(a + b)
		} else {
			if a < b {
				return ret, errors.Annotatef(ErrOverflow, "sum %d - %d", a, b)
			}
			ret.SetUint64(a - b)
		}
	case types.KindFloat64:
		ret.SetFloat64(slot.GetFloat64() + float64(sign)*contrib.GetFloat64())
	default:
		return ret, errors.Annotatef(types.ErrIncompatibleTypes, "sum over %s", slot.Kind())
	}
	return ret, nil
}

// addCount adds delta to a COUNT slot.
func addCount(slot types.Datum, delta int64) (types.Datum, error) {
	if slot.IsNull() {
		return types.Datum{}, errors.Annotate(ErrViewInconsistent, "NULL count slot")
	}
	cnt := slot.GetInt64() + delta
	if cnt < 0 {
		return types.Datum{}, errors.Annotatef(ErrViewInconsistent, "negative count %d", cnt)
	}
	var ret types.Datum
	ret.SetInt64(cnt)
	return ret, nil
}

// moreExtreme reports whether a non-NULL candidate should replace the
// current MIN/MAX slot on insertion. A NULL slot holds no value yet and is
// always replaced.
func moreExtreme(f model.AggFunc, candidate, slot types.Datum) (bool, error) {
	if slot.IsNull() {
		return true, nil
	}
	cmp, err := candidate.Compare(slot)
	if err != nil {
		return false, errors.Trace(err)
	}
	if f == model.AggMin {
		return cmp < 0, nil
	}
	return cmp > 0, nil
}

// dominates reports whether replacing an extremal value with the candidate
// is still incrementally safe: for MIN the candidate must be less than or
// equal to the stored extremum, for MAX greater than or equal.
func dominates(f model.AggFunc, candidate, slot types.Datum) (bool, error) {
	if slot.IsNull() {
		return true, nil
	}
	cmp, err := candidate.Compare(slot)
	if err != nil {
		return false, errors.Trace(err)
	}
	if f == model.AggMin {
		return cmp <= 0, nil
	}
	return cmp >= 0, nil
}

// hitsExtremum reports whether a non-NULL deleted/replaced contribution
// equals the stored extremum, in which case the remaining extremum is
// unknown without inspection.
func hitsExtremum(contrib, slot types.Datum) (bool, error) {
	if contrib.IsNull() || slot.IsNull() {
		return false, nil
	}
	cmp, err := contrib.Compare(slot)
	if err != nil {
		return false, errors.Trace(err)
	}
	return cmp == 0, nil
}
