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

// Package planner compiles the executor plans consumed by the materialized
// view maintenance core: per-column fallback plans that re-scan one group,
// and full refresh plans that re-join all source tables. Compiled plan sets
// are cached per view definition version.
package planner

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pingcap/errors"

	"github.com/quartzdb/quartz/metrics"
	"github.com/quartzdb/quartz/model"
	"github.com/quartzdb/quartz/mview"
	"github.com/quartzdb/quartz/table"
	"github.com/quartzdb/quartz/types"
	"github.com/quartzdb/quartz/util/codec"
)

// Planner compiles and caches materialized view executor plans.
type Planner struct {
	cache *lru.Cache
}

type planCacheKey struct {
	viewID  int64
	version int64
}

// New creates a Planner with a plan cache of the given capacity.
func New(cacheCapacity int) (*Planner, error) {
	cache, err := lru.New(cacheCapacity)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Planner{cache: cache}, nil
}

// Compile produces the plan set for a view definition over its resolved
// source tables. sources must be ordered exactly as info.SourceTables.
// Plans for an unchanged (view ID, version) pair are served from the cache.
func (p *Planner) Compile(info *model.ViewInfo, sources []table.Table) (mview.PlanSet, error) {
	if len(sources) != len(info.SourceTables) {
		return mview.PlanSet{}, errors.Errorf("view %s wants %d source tables, got %d",
			info.Name, len(info.SourceTables), len(sources))
	}
	key := planCacheKey{viewID: info.ID, version: info.Version}
	if cached, ok := p.cache.Get(key); ok {
		metrics.PlanCacheCounter.WithLabelValues("hit").Inc()
		return cached.(mview.PlanSet), nil
	}
	metrics.PlanCacheCounter.WithLabelValues("miss").Inc()

	set := mview.PlanSet{
		MinMax:  make(map[int]mview.FallbackPlan),
		Refresh: &refreshPlan{info: info, sources: sources, layout: mview.NewLayout(info)},
	}
	for i, agg := range info.Aggs {
		if agg.Func == model.AggMin || agg.Func == model.AggMax {
			set.MinMax[i] = &groupScanPlan{info: info, sources: sources, aggIdx: i}
		}
	}
	p.cache.Add(key, set)
	return set, nil
}

// BuildTargetTableInfo derives the target table schema of a view: the
// group-by columns, one visible column per aggregated expression, a hidden
// non-NULL counter per SUM column, and the hidden group row counter.
// The layout must stay in lockstep with mview.Layout.
func BuildTargetTableInfo(tableID int64, info *model.ViewInfo, sources []*model.TableInfo) (*model.TableInfo, error) {
	if len(sources) != len(info.SourceTables) {
		return nil, errors.Errorf("view %s wants %d source tables, got %d",
			info.Name, len(info.SourceTables), len(sources))
	}
	resolve := func(ref model.ColRef) (*model.ColumnInfo, error) {
		src := sources[ref.Source]
		if ref.Offset < 0 || ref.Offset >= len(src.Columns) {
			return nil, errors.Errorf("view %s references column %d of table %s",
				info.Name, ref.Offset, src.Name)
		}
		return src.Columns[ref.Offset], nil
	}

	var cols []*model.ColumnInfo
	add := func(name string, tp types.Kind, hidden bool) {
		cols = append(cols, &model.ColumnInfo{
			ID:     int64(len(cols) + 1),
			Name:   model.NewCIStr(name),
			Offset: len(cols),
			Tp:     tp,
			Hidden: hidden,
		})
	}

	for _, ref := range info.GroupBy {
		src, err := resolve(ref)
		if err != nil {
			return nil, errors.Trace(err)
		}
		add(src.Name.O, src.Tp, false)
	}
	for _, agg := range info.Aggs {
		switch agg.Func {
		case model.AggCountStar:
			add("count(*)", types.KindInt64, false)
		case model.AggCount:
			src, err := resolve(agg.Arg)
			if err != nil {
				return nil, errors.Trace(err)
			}
			add(fmt.Sprintf("count(%s)", src.Name.O), types.KindInt64, false)
		default:
			src, err := resolve(agg.Arg)
			if err != nil {
				return nil, errors.Trace(err)
			}
			add(fmt.Sprintf("%s(%s)", agg.Func, src.Name.O), src.Tp, false)
		}
	}
	for i, agg := range info.Aggs {
		if agg.Func == model.AggSum {
			add(fmt.Sprintf("_sum_cnt_%d", i), types.KindInt64, true)
		}
	}
	add("_row_cnt", types.KindInt64, true)

	tblInfo := &model.TableInfo{
		ID:      tableID,
		Name:    info.Name,
		Columns: cols,
		View:    info.Clone(),
	}
	if err := mview.NewLayout(info).Check(tblInfo); err != nil {
		return nil, errors.Trace(err)
	}
	return tblInfo, nil
}

// joinEach enumerates the view's joined source tuples with a nested-loop
// equi-join and calls fn for each tuple that satisfies every join
// condition. tuple[i] is the current row of the i-th source table. A NULL
// join key never matches.
func joinEach(info *model.ViewInfo, sources []table.Table, fn func(tuple [][]types.Datum) error) error {
	tuple := make([][]types.Datum, len(sources))
	var walk func(depth int) error
	walk = func(depth int) error {
		if depth == len(sources) {
			return fn(tuple)
		}
		return sources[depth].IterRecords(func(_ int64, rec []types.Datum) (bool, error) {
			tuple[depth] = rec
			ok, err := joinConditionsHold(info, tuple, depth)
			if err != nil {
				return false, errors.Trace(err)
			}
			if ok {
				if err := walk(depth + 1); err != nil {
					return false, errors.Trace(err)
				}
			}
			return true, nil
		})
	}
	return walk(0)
}

// joinConditionsHold checks every join condition whose both sides are bound
// once the table at depth is bound, pruning dead branches early.
func joinConditionsHold(info *model.ViewInfo, tuple [][]types.Datum, depth int) (bool, error) {
	for _, jc := range info.Join {
		hi := jc.Left.Source
		if jc.Right.Source > hi {
			hi = jc.Right.Source
		}
		if hi != depth {
			continue
		}
		l := tuple[jc.Left.Source][jc.Left.Offset]
		r := tuple[jc.Right.Source][jc.Right.Offset]
		if l.IsNull() || r.IsNull() {
			return false, nil
		}
		cmp, err := l.Compare(r)
		if err != nil {
			return false, errors.Trace(err)
		}
		if cmp != 0 {
			return false, nil
		}
	}
	return true, nil
}

func groupValsOfTuple(info *model.ViewInfo, tuple [][]types.Datum) []types.Datum {
	vals := make([]types.Datum, len(info.GroupBy))
	for i, ref := range info.GroupBy {
		vals[i] = tuple[ref.Source][ref.Offset]
	}
	return vals
}

// groupScanPlan recomputes the extremum of one MIN/MAX aggregate for one
// group key by re-scanning the source rows (or join results) matching that
// group only.
type groupScanPlan struct {
	info    *model.ViewInfo
	sources []table.Table
	aggIdx  int
}

var _ mview.FallbackPlan = (*groupScanPlan)(nil)

// Recompute implements mview.FallbackPlan interface.
func (p *groupScanPlan) Recompute(groupKey []types.Datum) (types.Datum, bool, error) {
	agg := p.info.Aggs[p.aggIdx]
	var (
		ext   types.Datum
		found bool
	)
	err := joinEach(p.info, p.sources, func(tuple [][]types.Datum) error {
		vals := groupValsOfTuple(p.info, tuple)
		match, err := types.EqualDatums(vals, groupKey)
		if err != nil {
			return errors.Trace(err)
		}
		if !match {
			return nil
		}
		v := tuple[agg.Arg.Source][agg.Arg.Offset]
		if v.IsNull() {
			return nil
		}
		if !found {
			ext = v.Clone()
			found = true
			return nil
		}
		cmp, err := v.Compare(ext)
		if err != nil {
			return errors.Trace(err)
		}
		if (agg.Func == model.AggMin && cmp < 0) || (agg.Func == model.AggMax && cmp > 0) {
			ext = v.Clone()
		}
		return nil
	})
	if err != nil {
		return types.Datum{}, false, errors.Trace(err)
	}
	return ext, found, nil
}

// refreshPlan recomputes the complete view content by re-joining all source
// tables and aggregating from scratch.
type refreshPlan struct {
	info    *model.ViewInfo
	sources []table.Table
	layout  *mview.Layout
}

var _ mview.RefreshPlan = (*refreshPlan)(nil)

type aggAcc struct {
	count  int64
	sum    types.Datum
	sumCnt int64
	ext    types.Datum
}

type groupAcc struct {
	groupVals []types.Datum
	rowCnt    int64
	aggs      []aggAcc
}

// Execute implements mview.RefreshPlan interface.
func (p *refreshPlan) Execute() ([][]types.Datum, error) {
	groups := make(map[string]*groupAcc)
	var order []string

	err := joinEach(p.info, p.sources, func(tuple [][]types.Datum) error {
		vals := groupValsOfTuple(p.info, tuple)
		key, err := encodeGroupVals(vals)
		if err != nil {
			return errors.Trace(err)
		}
		acc, ok := groups[key]
		if !ok {
			acc = &groupAcc{
				groupVals: types.CloneRow(vals),
				aggs:      make([]aggAcc, len(p.info.Aggs)),
			}
			groups[key] = acc
			order = append(order, key)
		}
		acc.rowCnt++
		for i, agg := range p.info.Aggs {
			if agg.Func == model.AggCountStar {
				acc.aggs[i].count++
				continue
			}
			v := tuple[agg.Arg.Source][agg.Arg.Offset]
			if v.IsNull() {
				continue
			}
			switch agg.Func {
			case model.AggCount:
				acc.aggs[i].count++
			case model.AggSum:
				sum, err := mview.AddSum(acc.aggs[i].sum, v)
				if err != nil {
					return errors.Trace(err)
				}
				acc.aggs[i].sum = sum
				acc.aggs[i].sumCnt++
			case model.AggMin, model.AggMax:
				if acc.aggs[i].ext.IsNull() {
					acc.aggs[i].ext = v.Clone()
					continue
				}
				cmp, err := v.Compare(acc.aggs[i].ext)
				if err != nil {
					return errors.Trace(err)
				}
				if (agg.Func == model.AggMin && cmp < 0) || (agg.Func == model.AggMax && cmp > 0) {
					acc.aggs[i].ext = v.Clone()
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Trace(err)
	}

	result := make([][]types.Datum, 0, len(order))
	for _, key := range order {
		acc := groups[key]
		row := make([]types.Datum, p.layout.NumColumns())
		copy(row, acc.groupVals)
		for i, agg := range p.info.Aggs {
			off := p.layout.AggOffset(i)
			switch agg.Func {
			case model.AggCountStar, model.AggCount:
				row[off].SetInt64(acc.aggs[i].count)
			case model.AggSum:
				row[off] = acc.aggs[i].sum
				cntOff, _ := p.layout.SumCountOffset(i)
				row[cntOff].SetInt64(acc.aggs[i].sumCnt)
			case model.AggMin, model.AggMax:
				row[off] = acc.aggs[i].ext
			}
		}
		row[p.layout.RowCountOffset()].SetInt64(acc.rowCnt)
		result = append(result, row)
	}
	return result, nil
}

func encodeGroupVals(vals []types.Datum) (string, error) {
	b, err := codec.EncodeKey(nil, vals...)
	if err != nil {
		return "", errors.Trace(err)
	}
	return string(b), nil
}
