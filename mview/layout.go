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

	"github.com/quartzdb/quartz/model"
)

// Layout maps a view definition onto its target table's column layout.
// A target row is laid out as:
//
//	[group-by columns][aggregate slots][hidden SUM non-NULL counters][hidden row counter]
//
// The hidden row counter holds the number of contributing source (or join
// result) rows of the group; the view row is deleted when it reaches zero.
// Each SUM slot carries a hidden counter of its non-NULL contributions so
// that a group whose remaining SUM inputs are all NULL yields SUM = NULL
// without rescanning the group.
type Layout struct {
	groupLen  int
	aggOff    []int
	sumCntOff map[int]int
	rowCntOff int
}

// NewLayout computes the target column layout of a view definition.
func NewLayout(info *model.ViewInfo) *Layout {
	l := &Layout{
		groupLen:  len(info.GroupBy),
		aggOff:    make([]int, len(info.Aggs)),
		sumCntOff: make(map[int]int),
	}
	off := l.groupLen
	for i := range info.Aggs {
		l.aggOff[i] = off
		off++
	}
	for i, agg := range info.Aggs {
		if agg.Func == model.AggSum {
			l.sumCntOff[i] = off
			off++
		}
	}
	l.rowCntOff = off
	return l
}

// GroupLen returns the number of group-by columns.
func (l *Layout) GroupLen() int {
	return l.groupLen
}

// AggOffset returns the target column offset of the i-th aggregate slot.
func (l *Layout) AggOffset(i int) int {
	return l.aggOff[i]
}

// SumCountOffset returns the offset of the hidden non-NULL counter of the
// i-th aggregate, which exists only for SUM aggregates.
func (l *Layout) SumCountOffset(i int) (int, bool) {
	off, ok := l.sumCntOff[i]
	return off, ok
}

// RowCountOffset returns the offset of the hidden group row counter.
func (l *Layout) RowCountOffset() int {
	return l.rowCntOff
}

// NumColumns returns the total target column count, hidden columns
// included.
func (l *Layout) NumColumns() int {
	return l.rowCntOff + 1
}

// Check validates that a target table's metadata matches the layout.
func (l *Layout) Check(meta *model.TableInfo) error {
	if len(meta.Columns) != l.NumColumns() {
		return errors.Errorf("view target %s has %d columns, layout wants %d",
			meta.Name, len(meta.Columns), l.NumColumns())
	}
	return nil
}
