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
	"testing"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"

	"github.com/quartzdb/quartz/model"
	"github.com/quartzdb/quartz/table"
	"github.com/quartzdb/quartz/table/tables"
	"github.com/quartzdb/quartz/txn"
	"github.com/quartzdb/quartz/types"
)

// The test schema throughout this package: a single sales source table and
// a view grouping it by region with one aggregate of every maintainable
// kind.
//
//	sales(region string, qty int64, price int64)
//	sales_by_region: SELECT region, COUNT(*), SUM(qty), MIN(price), MAX(price)
//	                 FROM sales GROUP BY region

const (
	aggIdxCount = 0
	aggIdxSum   = 1
	aggIdxMin   = 2
	aggIdxMax   = 3
)

func salesMeta(id int64) *model.TableInfo {
	return &model.TableInfo{
		ID:   id,
		Name: model.NewCIStr("sales"),
		Columns: []*model.ColumnInfo{
			{ID: 1, Name: model.NewCIStr("region"), Offset: 0, Tp: types.KindString},
			{ID: 2, Name: model.NewCIStr("qty"), Offset: 1, Tp: types.KindInt64},
			{ID: 3, Name: model.NewCIStr("price"), Offset: 2, Tp: types.KindInt64},
		},
	}
}

func salesViewInfo() *model.ViewInfo {
	return &model.ViewInfo{
		ID:           100,
		Name:         model.NewCIStr("sales_by_region"),
		Version:      1,
		SourceTables: []model.CIStr{model.NewCIStr("sales")},
		GroupBy:      []model.ColRef{{Source: 0, Offset: 0}},
		Aggs: []model.AggDesc{
			{Func: model.AggCountStar},
			{Func: model.AggSum, Arg: model.ColRef{Source: 0, Offset: 1}},
			{Func: model.AggMin, Arg: model.ColRef{Source: 0, Offset: 2}},
			{Func: model.AggMax, Arg: model.ColRef{Source: 0, Offset: 2}},
		},
	}
}

// targetMetaFor builds target table metadata matching the layout of a view
// definition, the way the planner derives it in production.
func targetMetaFor(id int64, info *model.ViewInfo, src *model.TableInfo) *model.TableInfo {
	layout := NewLayout(info)
	cols := make([]*model.ColumnInfo, layout.NumColumns())
	add := func(off int, name string, tp types.Kind, hidden bool) {
		cols[off] = &model.ColumnInfo{
			ID:     int64(off + 1),
			Name:   model.NewCIStr(name),
			Offset: off,
			Tp:     tp,
			Hidden: hidden,
		}
	}
	for i, ref := range info.GroupBy {
		add(i, src.Columns[ref.Offset].Name.O, src.Columns[ref.Offset].Tp, false)
	}
	for i, agg := range info.Aggs {
		tp := types.KindInt64
		if agg.Func != model.AggCountStar && agg.Func != model.AggCount {
			tp = src.Columns[agg.Arg.Offset].Tp
		}
		add(layout.AggOffset(i), agg.Func.String(), tp, false)
		if cntOff, ok := layout.SumCountOffset(i); ok {
			add(cntOff, "_sum_cnt", types.KindInt64, true)
		}
	}
	add(layout.RowCountOffset(), "_row_cnt", types.KindInt64, true)
	return &model.TableInfo{
		ID:      id,
		Name:    info.Name,
		Columns: cols,
		View:    info.Clone(),
	}
}

// scanFallbackPlan recomputes one MIN/MAX aggregate of a single-source view
// by scanning the source table, the reference semantics the compiled plans
// must match.
type scanFallbackPlan struct {
	info   *model.ViewInfo
	source table.Table
	aggIdx int
}

func (p *scanFallbackPlan) Recompute(groupKey []types.Datum) (types.Datum, bool, error) {
	agg := p.info.Aggs[p.aggIdx]
	var (
		ext   types.Datum
		found bool
	)
	err := p.source.IterRecords(func(_ int64, rec []types.Datum) (bool, error) {
		vals := make([]types.Datum, len(p.info.GroupBy))
		for i, ref := range p.info.GroupBy {
			vals[i] = rec[ref.Offset]
		}
		match, err := types.EqualDatums(vals, groupKey)
		if err != nil || !match {
			return err == nil, err
		}
		v := rec[agg.Arg.Offset]
		if v.IsNull() {
			return true, nil
		}
		if !found {
			ext = v.Clone()
			found = true
			return true, nil
		}
		cmp, err := v.Compare(ext)
		if err != nil {
			return false, err
		}
		if (agg.Func == model.AggMin && cmp < 0) || (agg.Func == model.AggMax && cmp > 0) {
			ext = v.Clone()
		}
		return true, nil
	})
	return ext, found, err
}

// poisonPlan fails the test when invoked, proving a maintenance path never
// reached the fallback.
type poisonPlan struct {
	t *testing.T
}

func (p *poisonPlan) Recompute(groupKey []types.Datum) (types.Datum, bool, error) {
	p.t.Helper()
	p.t.Fatalf("fallback plan must not run, group %v", groupKey)
	return types.Datum{}, false, nil
}

type stubRefreshPlan struct {
	rows  [][]types.Datum
	err   error
	calls int
}

func (p *stubRefreshPlan) Execute() ([][]types.Datum, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	ret := make([][]types.Datum, 0, len(p.rows))
	for _, r := range p.rows {
		ret = append(ret, types.CloneRow(r))
	}
	return ret, nil
}

type fixture struct {
	registry *Registry
	source   *tables.MemTable
	target   *tables.MemTable
	handler  *Handler
	info     *model.ViewInfo
	layout   *Layout
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		registry: NewRegistry(),
		info:     salesViewInfo(),
	}
	f.layout = NewLayout(f.info)

	var err error
	f.source, err = tables.MemTableFromMeta(salesMeta(1))
	require.NoError(t, err)
	f.source.SetObserver(f.registry)

	f.target, err = tables.MemTableFromMeta(targetMetaFor(2, f.info, f.source.Meta()))
	require.NoError(t, err)

	f.handler = NewHandler(f.registry, f.info)
	plans := PlanSet{
		MinMax: map[int]FallbackPlan{
			aggIdxMin: &scanFallbackPlan{info: f.info, source: f.source, aggIdx: aggIdxMin},
			aggIdxMax: &scanFallbackPlan{info: f.info, source: f.source, aggIdx: aggIdxMax},
		},
		Refresh: &stubRefreshPlan{},
	}
	require.NoError(t, f.handler.Install(f.target, []table.Table{f.source}, plans))
	return f
}

// salesRow builds a source row; nil stands for NULL.
func salesRow(region interface{}, qty, price interface{}) []types.Datum {
	return []types.Datum{
		types.NewDatum(region),
		types.NewDatum(qty),
		types.NewDatum(price),
	}
}

func (f *fixture) insert(t *testing.T, tx *txn.Txn, rows ...[]types.Datum) []int64 {
	t.Helper()
	handles := make([]int64, 0, len(rows))
	for _, r := range rows {
		h, err := f.source.AddRecord(tx, r)
		require.NoError(t, err)
		handles = append(handles, h)
	}
	return handles
}

// viewRow returns the target row of a group, or nil when the group has no
// view row.
func (f *fixture) viewRow(t *testing.T, region interface{}) []types.Datum {
	t.Helper()
	var found []types.Datum
	want := []types.Datum{types.NewDatum(region)}
	require.NoError(t, f.target.IterRecords(func(_ int64, rec []types.Datum) (bool, error) {
		equal, err := types.EqualDatums(rec[:1], want)
		if err != nil {
			return false, err
		}
		if equal {
			found = rec
			return false, nil
		}
		return true, nil
	}))
	return found
}

// requireGroup asserts the full aggregate state of one group. NULL slots
// are expressed as nil.
func (f *fixture) requireGroup(t *testing.T, region interface{}, count, sum, min, max, sumCnt, rowCnt interface{}) {
	t.Helper()
	row := f.viewRow(t, region)
	require.NotNil(t, row, "group %v has no view row", region)
	want := []types.Datum{
		types.NewDatum(count),
		types.NewDatum(sum),
		types.NewDatum(min),
		types.NewDatum(max),
		types.NewDatum(sumCnt),
		types.NewDatum(rowCnt),
	}
	equal, err := types.EqualDatums(row[1:], want)
	require.NoError(t, err)
	require.True(t, equal, "group %v: got %v, want %v", region, row[1:], want)
}

func TestHandlerLifecycle(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, StateActive, f.handler.State())
	require.NotEmpty(t, f.handler.ID())
	require.Equal(t, f.target, f.handler.Target())
	require.Len(t, f.handler.SourceTables(), 1)
	require.Equal(t, f.handler, f.registry.InstalledHandler(2))

	// Double install of the same handler.
	err := f.handler.Install(f.target, []table.Table{f.source}, PlanSet{})
	require.ErrorIs(t, errors.Cause(err), ErrHandlerInstalled)

	// A second handler cannot bind the same target.
	other := NewHandler(f.registry, salesViewInfo())
	err = other.Install(f.target, []table.Table{f.source}, PlanSet{})
	require.ErrorIs(t, errors.Cause(err), ErrHandlerInstalled)

	require.NoError(t, f.handler.Uninstall())
	require.Equal(t, StateUninstalled, f.handler.State())
	require.Nil(t, f.registry.InstalledHandler(2))
	require.Empty(t, f.registry.HandlersForSource(1))
	err = f.handler.Uninstall()
	require.ErrorIs(t, errors.Cause(err), ErrHandlerNotInstalled)
	err = f.handler.AddSourceTable(f.source)
	require.ErrorIs(t, errors.Cause(err), ErrHandlerNotInstalled)
}

func TestInstallValidation(t *testing.T) {
	registry := NewRegistry()
	info := salesViewInfo()
	source, err := tables.MemTableFromMeta(salesMeta(1))
	require.NoError(t, err)

	// Target without view metadata.
	notView, err := tables.MemTableFromMeta(salesMeta(3))
	require.NoError(t, err)
	h := NewHandler(registry, info)
	err = h.Install(notView, []table.Table{source}, PlanSet{})
	require.ErrorIs(t, errors.Cause(err), ErrNotViewTarget)

	// Empty source list.
	target, err := tables.MemTableFromMeta(targetMetaFor(2, info, source.Meta()))
	require.NoError(t, err)
	h = NewHandler(registry, info)
	err = h.Install(target, nil, PlanSet{})
	require.ErrorIs(t, errors.Cause(err), ErrNoSourceTables)

	// Target column count disagrees with the view layout.
	badMeta := targetMetaFor(2, info, source.Meta())
	badMeta.Columns = badMeta.Columns[:len(badMeta.Columns)-1]
	badTarget, err := tables.MemTableFromMeta(badMeta)
	require.NoError(t, err)
	h = NewHandler(registry, info)
	require.Error(t, h.Install(badTarget, []table.Table{source}, PlanSet{}))

	// Out-of-range column reference in the definition.
	badInfo := salesViewInfo()
	badInfo.Aggs[aggIdxSum].Arg.Offset = 99
	h = NewHandler(registry, badInfo)
	badInfoTarget, err := tables.MemTableFromMeta(targetMetaFor(4, info, source.Meta()))
	require.NoError(t, err)
	require.Error(t, h.Install(badInfoTarget, []table.Table{source}, PlanSet{}))
}

func TestAddSourceTableIdempotent(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handler.AddSourceTable(f.source))
	require.Len(t, f.handler.SourceTables(), 1)
	require.Len(t, f.registry.HandlersForSource(1), 1)

	// Registration stayed single: one source insert contributes exactly
	// once.
	tx := txn.New()
	f.insert(t, tx, salesRow("east", int64(3), int64(10)))
	require.NoError(t, tx.Commit())
	f.requireGroup(t, "east", int64(1), int64(3), int64(10), int64(10), int64(1), int64(1))
}

func TestDropSourceTable(t *testing.T) {
	f := newFixture(t)
	tx := txn.New()
	f.insert(t, tx, salesRow("east", int64(3), int64(10)))
	require.NoError(t, tx.Commit())

	otherTable, err := tables.MemTableFromMeta(salesMeta(9))
	require.NoError(t, err)
	err = f.handler.DropSourceTable(otherTable)
	require.ErrorIs(t, errors.Cause(err), ErrSourceNotRegistered)

	require.NoError(t, f.handler.DropSourceTable(f.source))
	require.Equal(t, StateInert, f.handler.State())
	require.Empty(t, f.registry.HandlersForSource(1))

	// The view keeps serving its last content; further source changes do
	// not reach it.
	tx2 := txn.New()
	f.insert(t, tx2, salesRow("east", int64(5), int64(20)))
	require.NoError(t, tx2.Commit())
	f.requireGroup(t, "east", int64(1), int64(3), int64(10), int64(10), int64(1), int64(1))

	// Inert is not uninstalled: teardown still works.
	require.NoError(t, f.handler.Uninstall())
	require.Equal(t, StateUninstalled, f.handler.State())
}

func TestReinstallOverExistingContent(t *testing.T) {
	f := newFixture(t)
	tx := txn.New()
	f.insert(t, tx,
		salesRow("east", int64(3), int64(10)),
		salesRow("west", int64(4), int64(20)))
	require.NoError(t, tx.Commit())
	require.NoError(t, f.handler.Uninstall())

	// A fresh handler installed over the populated target rebuilds its
	// group index from the stored rows, the snapshot-restore path.
	h2 := NewHandler(f.registry, f.info)
	plans := PlanSet{
		MinMax: map[int]FallbackPlan{
			aggIdxMin: &scanFallbackPlan{info: f.info, source: f.source, aggIdx: aggIdxMin},
			aggIdxMax: &scanFallbackPlan{info: f.info, source: f.source, aggIdx: aggIdxMax},
		},
		Refresh: &stubRefreshPlan{},
	}
	require.NoError(t, h2.Install(f.target, []table.Table{f.source}, plans))

	tx2 := txn.New()
	f.insert(t, tx2, salesRow("east", int64(7), int64(5)))
	require.NoError(t, tx2.Commit())
	f.requireGroup(t, "east", int64(2), int64(10), int64(5), int64(10), int64(2), int64(2))
	f.requireGroup(t, "west", int64(1), int64(4), int64(20), int64(20), int64(1), int64(1))
}
