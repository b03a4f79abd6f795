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

package model

import (
	"strings"

	"github.com/quartzdb/quartz/types"
)

// CIStr is case insensitive string.
type CIStr struct {
	O string `json:"O"` // Original string.
	L string `json:"L"` // Lower case string.
}

// String implements fmt.Stringer interface.
func (s CIStr) String() string {
	return s.O
}

// NewCIStr creates a new CIStr.
func NewCIStr(s string) (cs CIStr) {
	cs.O = s
	cs.L = strings.ToLower(s)
	return
}

// ColumnInfo provides meta data describing of a table column.
type ColumnInfo struct {
	ID     int64      `json:"id"`
	Name   CIStr      `json:"name"`
	Offset int        `json:"offset"`
	Tp     types.Kind `json:"type"`
	// Hidden marks maintenance bookkeeping columns of a view target table.
	// Hidden columns are never part of the view's visible result.
	Hidden bool `json:"hidden"`
}

// Clone clones ColumnInfo.
func (c *ColumnInfo) Clone() *ColumnInfo {
	nc := *c
	return &nc
}

// TableInfo provides meta data describing a table.
type TableInfo struct {
	ID      int64         `json:"id"`
	Name    CIStr         `json:"name"`
	Columns []*ColumnInfo `json:"cols"`
	// View is non-nil when the table is the target of a materialized view.
	View *ViewInfo `json:"view,omitempty"`
}

// Clone clones TableInfo.
func (t *TableInfo) Clone() *TableInfo {
	nt := *t
	nt.Columns = make([]*ColumnInfo, len(t.Columns))
	for i := range t.Columns {
		nt.Columns[i] = t.Columns[i].Clone()
	}
	if t.View != nil {
		nt.View = t.View.Clone()
	}
	return &nt
}

// IsView reports whether the table is a materialized view target.
func (t *TableInfo) IsView() bool {
	return t.View != nil
}

// VisibleCols returns the non-hidden columns.
func (t *TableInfo) VisibleCols() []*ColumnInfo {
	cols := make([]*ColumnInfo, 0, len(t.Columns))
	for _, col := range t.Columns {
		if !col.Hidden {
			cols = append(cols, col)
		}
	}
	return cols
}

// AggFunc is the kind of an aggregated expression in a view definition.
type AggFunc int

// Aggregate function kinds maintainable in a materialized view.
// AVG is intentionally absent: the view compiler upstream rewrites
// AVG(x) into SUM(x) and COUNT(x) columns.
const (
	AggCountStar AggFunc = iota
	AggCount
	AggSum
	AggMin
	AggMax
)

// String implements fmt.Stringer interface.
func (f AggFunc) String() string {
	switch f {
	case AggCountStar:
		return "count(*)"
	case AggCount:
		return "count"
	case AggSum:
		return "sum"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	}
	return "unknown"
}

// ColRef locates a column inside the ordered source-table list of a view
// definition.
type ColRef struct {
	// Source is the ordinal of the source table in ViewInfo.SourceTables.
	Source int `json:"source"`
	// Offset is the column offset inside that source table.
	Offset int `json:"offset"`
}

// AggDesc describes one aggregated expression of a view.
type AggDesc struct {
	Func AggFunc `json:"func"`
	// Arg is the aggregated column. Unused for AggCountStar.
	Arg ColRef `json:"arg"`
}

// JoinCond is one equi-join condition between two source tables of a view.
type JoinCond struct {
	Left  ColRef `json:"left"`
	Right ColRef `json:"right"`
}

// ViewInfo provides meta data describing a materialized view definition.
type ViewInfo struct {
	ID   int64 `json:"id"`
	Name CIStr `json:"name"`
	// Version increases on every definition change, so compiled plans
	// for stale definitions are never reused.
	Version int64 `json:"version"`
	// SourceTables is the ordered list of base table names the view is
	// defined over.
	SourceTables []CIStr `json:"source_tables"`
	// GroupBy lists the view's GROUP BY columns. Empty for an ungrouped
	// aggregate view.
	GroupBy []ColRef `json:"group_by"`
	// Aggs lists the view's aggregated expressions.
	Aggs []AggDesc `json:"aggs"`
	// Join lists equi-join conditions. Empty for a single-source view.
	Join []JoinCond `json:"join,omitempty"`
}

// Clone clones ViewInfo.
func (v *ViewInfo) Clone() *ViewInfo {
	nv := *v
	nv.SourceTables = append([]CIStr(nil), v.SourceTables...)
	nv.GroupBy = append([]ColRef(nil), v.GroupBy...)
	nv.Aggs = append([]AggDesc(nil), v.Aggs...)
	nv.Join = append([]JoinCond(nil), v.Join...)
	return &nv
}

// IsMultiSource reports whether the view is defined over a join of more
// than one source table.
func (v *ViewInfo) IsMultiSource() bool {
	return len(v.SourceTables) > 1
}
