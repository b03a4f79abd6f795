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

	"github.com/quartzdb/quartz/metrics"
	"github.com/quartzdb/quartz/model"
	"github.com/quartzdb/quartz/txn"
	"github.com/quartzdb/quartz/types"
)

// The delta applier: translates one row-level change on a registered source
// table into the minimal correct mutation of the target table. A change on
// a multi-source view escalates to the join refresh path; everything here
// below assumes a single-source view, where every column reference resolves
// into the changed row itself.

func (h *Handler) onSourceInsert(tx *txn.Txn, row []types.Datum) error {
	if h.state != StateActive {
		return nil
	}
	if h.info.IsMultiSource() {
		return h.refresh(tx)
	}
	if err := h.applyInsert(tx, row); err != nil {
		metrics.DeltaApplyCounter.WithLabelValues(opInsert.String(), metrics.RetError).Inc()
		return errors.Trace(err)
	}
	metrics.DeltaApplyCounter.WithLabelValues(opInsert.String(), metrics.RetOK).Inc()
	return nil
}

func (h *Handler) onSourceDelete(tx *txn.Txn, row []types.Datum) error {
	if h.state != StateActive {
		return nil
	}
	if h.info.IsMultiSource() {
		return h.refresh(tx)
	}
	if err := h.applyDelete(tx, row); err != nil {
		metrics.DeltaApplyCounter.WithLabelValues(opDelete.String(), metrics.RetError).Inc()
		return errors.Trace(err)
	}
	metrics.DeltaApplyCounter.WithLabelValues(opDelete.String(), metrics.RetOK).Inc()
	return nil
}

func (h *Handler) onSourceUpdate(tx *txn.Txn, oldRow, newRow []types.Datum) error {
	if h.state != StateActive {
		return nil
	}
	if h.info.IsMultiSource() {
		return h.refresh(tx)
	}
	if err := h.applyUpdate(tx, oldRow, newRow); err != nil {
		metrics.DeltaApplyCounter.WithLabelValues(opUpdate.String(), metrics.RetError).Inc()
		return errors.Trace(err)
	}
	metrics.DeltaApplyCounter.WithLabelValues(opUpdate.String(), metrics.RetOK).Inc()
	return nil
}

// groupKeyOf extracts the view's group key values from a source row.
func (h *Handler) groupKeyOf(row []types.Datum) []types.Datum {
	key := make([]types.Datum, len(h.info.GroupBy))
	for i, ref := range h.info.GroupBy {
		key[i] = row[ref.Offset]
	}
	return key
}

// contribution extracts the aggregated value the source row contributes to
// the i-th aggregate. The returned datum is meaningless for COUNT(*).
func (h *Handler) contribution(i int, row []types.Datum) types.Datum {
	agg := h.info.Aggs[i]
	if agg.Func == model.AggCountStar {
		return types.Datum{}
	}
	return row[agg.Arg.Offset]
}

func (h *Handler) applyInsert(tx *txn.Txn, row []types.Datum) error {
	groupKey := h.groupKeyOf(row)
	key, err := encodeGroupKey(groupKey)
	if err != nil {
		return errors.Trace(err)
	}

	handle, ok := h.groupIndex[key]
	if !ok {
		viewRow, err := h.newGroupRow(groupKey, row)
		if err != nil {
			return errors.Trace(err)
		}
		newHandle, err := h.target.AddRecord(tx, viewRow)
		if err != nil {
			return errors.Trace(err)
		}
		h.setGroupHandle(tx, key, newHandle)
		return nil
	}

	cur, err := h.target.Row(handle)
	if err != nil {
		return errors.Trace(err)
	}
	next := types.CloneRow(cur)
	for i := range h.info.Aggs {
		if err := h.applyInsertSlot(next, i, row); err != nil {
			return errors.Trace(err)
		}
	}
	rcOff := h.layout.RowCountOffset()
	if next[rcOff], err = addCount(next[rcOff], 1); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(h.target.UpdateRecord(tx, handle, cur, next))
}

// newGroupRow builds the view row for the first source row of a previously
// absent group.
func (h *Handler) newGroupRow(groupKey, row []types.Datum) ([]types.Datum, error) {
	viewRow := make([]types.Datum, h.layout.NumColumns())
	for i, v := range groupKey {
		viewRow[i] = v.Clone()
	}
	for i, agg := range h.info.Aggs {
		off := h.layout.AggOffset(i)
		contrib := h.contribution(i, row)
		switch agg.Func {
		case model.AggCountStar:
			viewRow[off].SetInt64(1)
		case model.AggCount:
			if contrib.IsNull() {
				viewRow[off].SetInt64(0)
			} else {
				viewRow[off].SetInt64(1)
			}
		case model.AggSum:
			cntOff, _ := h.layout.SumCountOffset(i)
			if contrib.IsNull() {
				viewRow[off].SetNull()
				viewRow[cntOff].SetInt64(0)
			} else {
				viewRow[off] = contrib.Clone()
				viewRow[cntOff].SetInt64(1)
			}
		case model.AggMin, model.AggMax:
			if contrib.IsNull() {
				viewRow[off].SetNull()
			} else {
				viewRow[off] = contrib.Clone()
			}
		}
	}
	viewRow[h.layout.RowCountOffset()].SetInt64(1)
	return viewRow, nil
}

// applyInsertSlot adds one source row's contribution to the i-th aggregate
// slot of an existing view row.
func (h *Handler) applyInsertSlot(next []types.Datum, i int, row []types.Datum) error {
	agg := h.info.Aggs[i]
	off := h.layout.AggOffset(i)
	contrib := h.contribution(i, row)
	var err error
	switch agg.Func {
	case model.AggCountStar:
		next[off], err = addCount(next[off], 1)
	case model.AggCount:
		if !contrib.IsNull() {
			next[off], err = addCount(next[off], 1)
		}
	case model.AggSum:
		if !contrib.IsNull() {
			if next[off], err = AddSum(next[off], contrib); err != nil {
				return errors.Trace(err)
			}
			cntOff, _ := h.layout.SumCountOffset(i)
			next[cntOff], err = addCount(next[cntOff], 1)
		}
	case model.AggMin, model.AggMax:
		if !contrib.IsNull() {
			replace, cmpErr := moreExtreme(agg.Func, contrib, next[off])
			if cmpErr != nil {
				return errors.Trace(cmpErr)
			}
			if replace {
				next[off] = contrib.Clone()
			}
		}
	}
	return errors.Trace(err)
}

func (h *Handler) applyDelete(tx *txn.Txn, row []types.Datum) error {
	groupKey := h.groupKeyOf(row)
	key, err := encodeGroupKey(groupKey)
	if err != nil {
		return errors.Trace(err)
	}
	handle, ok := h.groupIndex[key]
	if !ok {
		return errors.Annotatef(ErrViewInconsistent,
			"view %s has no row for deleted group", h.info.Name)
	}
	cur, err := h.target.Row(handle)
	if err != nil {
		return errors.Trace(err)
	}

	rcOff := h.layout.RowCountOffset()
	if cur[rcOff].GetInt64() <= 1 {
		// Last contributing row of the group: the view row goes away
		// entirely, no zero-row artifact remains.
		if err := h.target.RemoveRecord(tx, handle, cur); err != nil {
			return errors.Trace(err)
		}
		h.delGroupHandle(tx, key, handle)
		return nil
	}

	next := types.CloneRow(cur)
	if next[rcOff], err = addCount(next[rcOff], -1); err != nil {
		return errors.Trace(err)
	}

	var recomputes []int
	for i, agg := range h.info.Aggs {
		off := h.layout.AggOffset(i)
		contrib := h.contribution(i, row)
		hit := false
		if agg.Func == model.AggMin || agg.Func == model.AggMax {
			if hit, err = hitsExtremum(contrib, cur[off]); err != nil {
				return errors.Trace(err)
			}
		}
		switch decideSlot(opDelete, agg.Func, hit, false) {
		case actIncremental:
			if err := h.applyDeleteSlot(next, i, contrib); err != nil {
				return errors.Trace(err)
			}
		case actFallback:
			recomputes = append(recomputes, i)
		case actNone:
		}
	}
	for _, i := range recomputes {
		val, err := h.recomputeExtremum(i, groupKey)
		if err != nil {
			return errors.Trace(err)
		}
		next[h.layout.AggOffset(i)] = val
	}
	return errors.Trace(h.target.UpdateRecord(tx, handle, cur, next))
}

// applyDeleteSlot subtracts one source row's contribution from the i-th
// aggregate slot. Only SUM and COUNT slots reach here; MIN/MAX deletion is
// either a no-op or a fallback recompute.
func (h *Handler) applyDeleteSlot(next []types.Datum, i int, contrib types.Datum) error {
	agg := h.info.Aggs[i]
	off := h.layout.AggOffset(i)
	var err error
	switch agg.Func {
	case model.AggCountStar:
		next[off], err = addCount(next[off], -1)
	case model.AggCount:
		if !contrib.IsNull() {
			next[off], err = addCount(next[off], -1)
		}
	case model.AggSum:
		if !contrib.IsNull() {
			if next[off], err = subSum(next[off], contrib); err != nil {
				return errors.Trace(err)
			}
			cntOff, _ := h.layout.SumCountOffset(i)
			if next[cntOff], err = addCount(next[cntOff], -1); err != nil {
				return errors.Trace(err)
			}
			if next[cntOff].GetInt64() == 0 {
				next[off].SetNull()
			}
		}
	}
	return errors.Trace(err)
}

func (h *Handler) applyUpdate(tx *txn.Txn, oldRow, newRow []types.Datum) error {
	oldKey := h.groupKeyOf(oldRow)
	newKey := h.groupKeyOf(newRow)
	same, err := types.EqualDatums(oldKey, newKey)
	if err != nil {
		return errors.Trace(err)
	}
	if !same {
		// The row moved between groups: delete from the old group,
		// insert into the new one.
		if err := h.applyDelete(tx, oldRow); err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(h.applyInsert(tx, newRow))
	}

	key, err := encodeGroupKey(oldKey)
	if err != nil {
		return errors.Trace(err)
	}
	handle, ok := h.groupIndex[key]
	if !ok {
		return errors.Annotatef(ErrViewInconsistent,
			"view %s has no row for updated group", h.info.Name)
	}
	cur, err := h.target.Row(handle)
	if err != nil {
		return errors.Trace(err)
	}
	next := types.CloneRow(cur)

	var recomputes []int
	for i, agg := range h.info.Aggs {
		off := h.layout.AggOffset(i)
		oldC := h.contribution(i, oldRow)
		newC := h.contribution(i, newRow)
		hit := false
		if agg.Func == model.AggMin || agg.Func == model.AggMax {
			if hit, err = hitsExtremum(oldC, cur[off]); err != nil {
				return errors.Trace(err)
			}
		}
		switch decideSlot(opUpdate, agg.Func, hit, false) {
		case actIncremental:
			if err := h.applyUpdateSlot(next, i, oldC, newC); err != nil {
				return errors.Trace(err)
			}
		case actFallback:
			// Replacing the extremal value stays incremental when the
			// new value dominates the stored extremum.
			safe, cmpErr := dominates(agg.Func, newC, cur[off])
			if cmpErr != nil {
				return errors.Trace(cmpErr)
			}
			if !newC.IsNull() && safe {
				next[off] = newC.Clone()
			} else {
				recomputes = append(recomputes, i)
			}
		case actNone:
		}
	}
	for _, i := range recomputes {
		val, err := h.recomputeExtremum(i, oldKey)
		if err != nil {
			return errors.Trace(err)
		}
		next[h.layout.AggOffset(i)] = val
	}
	return errors.Trace(h.target.UpdateRecord(tx, handle, cur, next))
}

// applyUpdateSlot applies a combined remove-old-add-new delta to the i-th
// aggregate slot of a view row whose group key did not change.
func (h *Handler) applyUpdateSlot(next []types.Datum, i int, oldC, newC types.Datum) error {
	agg := h.info.Aggs[i]
	off := h.layout.AggOffset(i)
	var err error
	switch agg.Func {
	case model.AggCountStar:
		// Row count is unchanged.
	case model.AggCount:
		delta := int64(0)
		if !oldC.IsNull() {
			delta--
		}
		if !newC.IsNull() {
			delta++
		}
		if delta != 0 {
			next[off], err = addCount(next[off], delta)
		}
	case model.AggSum:
		cntOff, _ := h.layout.SumCountOffset(i)
		if !oldC.IsNull() {
			if next[off], err = subSum(next[off], oldC); err != nil {
				return errors.Trace(err)
			}
			if next[cntOff], err = addCount(next[cntOff], -1); err != nil {
				return errors.Trace(err)
			}
		}
		if !newC.IsNull() {
			if next[off], err = AddSum(next[off], newC); err != nil {
				return errors.Trace(err)
			}
			if next[cntOff], err = addCount(next[cntOff], 1); err != nil {
				return errors.Trace(err)
			}
		}
		if next[cntOff].GetInt64() == 0 {
			next[off].SetNull()
		}
	case model.AggMin, model.AggMax:
		// The old value was not the extremum, so only the new value can
		// change the slot.
		if !newC.IsNull() {
			replace, cmpErr := moreExtreme(agg.Func, newC, next[off])
			if cmpErr != nil {
				return errors.Trace(cmpErr)
			}
			if replace {
				next[off] = newC.Clone()
			}
		}
	}
	return errors.Trace(err)
}
