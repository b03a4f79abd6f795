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

package tables

import (
	"testing"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/require"

	"github.com/quartzdb/quartz/model"
	"github.com/quartzdb/quartz/table"
	"github.com/quartzdb/quartz/txn"
	"github.com/quartzdb/quartz/types"
)

func newTestMeta(t *testing.T) *model.TableInfo {
	t.Helper()
	return &model.TableInfo{
		ID:   1,
		Name: model.NewCIStr("t"),
		Columns: []*model.ColumnInfo{
			{ID: 1, Name: model.NewCIStr("a"), Offset: 0, Tp: types.KindInt64},
			{ID: 2, Name: model.NewCIStr("b"), Offset: 1, Tp: types.KindString},
		},
	}
}

func makeRow(a int64, b string) []types.Datum {
	return []types.Datum{types.NewIntDatum(a), types.NewStringDatum(b)}
}

func TestMemTableFromMeta(t *testing.T) {
	_, err := MemTableFromMeta(&model.TableInfo{Name: model.NewCIStr("empty")})
	require.Error(t, err)

	bad := newTestMeta(t)
	bad.Columns[1].Offset = 5
	_, err = MemTableFromMeta(bad)
	require.Error(t, err)

	tbl, err := MemTableFromMeta(newTestMeta(t))
	require.NoError(t, err)
	require.Zero(t, tbl.RowCount())
}

func TestMemTableCRUD(t *testing.T) {
	tbl, err := MemTableFromMeta(newTestMeta(t))
	require.NoError(t, err)

	tx := txn.New()
	h1, err := tbl.AddRecord(tx, makeRow(1, "x"))
	require.NoError(t, err)
	h2, err := tbl.AddRecord(tx, makeRow(2, "y"))
	require.NoError(t, err)
	require.NotEqual(t, h1, h2)
	require.Equal(t, 2, tbl.RowCount())

	_, err = tbl.AddRecord(tx, []types.Datum{types.NewIntDatum(3)})
	require.ErrorIs(t, errors.Cause(err), table.ErrColumnCountMismatch)

	require.NoError(t, tbl.UpdateRecord(tx, h1, makeRow(1, "x"), makeRow(1, "z")))
	row, err := tbl.Row(h1)
	require.NoError(t, err)
	require.Equal(t, "z", row[1].GetString())

	require.NoError(t, tbl.RemoveRecord(tx, h2, makeRow(2, "y")))
	require.Equal(t, 1, tbl.RowCount())
	_, err = tbl.Row(h2)
	require.ErrorIs(t, errors.Cause(err), table.ErrRowNotFound)
	err = tbl.UpdateRecord(tx, h2, makeRow(2, "y"), makeRow(2, "w"))
	require.ErrorIs(t, errors.Cause(err), table.ErrRowNotFound)

	require.NoError(t, tx.Commit())
	_, err = tbl.AddRecord(tx, makeRow(9, "q"))
	require.ErrorIs(t, errors.Cause(err), txn.ErrTxnFinished)
}

func TestMemTableRollback(t *testing.T) {
	tbl, err := MemTableFromMeta(newTestMeta(t))
	require.NoError(t, err)

	setup := txn.New()
	h1, err := tbl.AddRecord(setup, makeRow(1, "x"))
	require.NoError(t, err)
	require.NoError(t, setup.Commit())

	tx := txn.New()
	_, err = tbl.AddRecord(tx, makeRow(2, "y"))
	require.NoError(t, err)
	require.NoError(t, tbl.UpdateRecord(tx, h1, makeRow(1, "x"), makeRow(1, "z")))
	require.NoError(t, tbl.RemoveRecord(tx, h1, makeRow(1, "z")))
	require.NoError(t, tx.Rollback())

	require.Equal(t, 1, tbl.RowCount())
	row, err := tbl.Row(h1)
	require.NoError(t, err)
	require.Equal(t, "x", row[1].GetString())
}

func TestMemTableIterRecords(t *testing.T) {
	tbl, err := MemTableFromMeta(newTestMeta(t))
	require.NoError(t, err)
	tx := txn.New()
	for i := int64(1); i <= 5; i++ {
		_, err := tbl.AddRecord(tx, makeRow(i, "r"))
		require.NoError(t, err)
	}
	require.NoError(t, tx.Commit())

	// Iteration order follows handle order.
	var got []int64
	require.NoError(t, tbl.IterRecords(func(h int64, rec []types.Datum) (bool, error) {
		got = append(got, rec[0].GetInt64())
		return true, nil
	}))
	require.Equal(t, []int64{1, 2, 3, 4, 5}, got)

	// Early stop.
	got = got[:0]
	require.NoError(t, tbl.IterRecords(func(h int64, rec []types.Datum) (bool, error) {
		got = append(got, rec[0].GetInt64())
		return len(got) < 2, nil
	}))
	require.Equal(t, []int64{1, 2}, got)

	// Callback error propagates.
	boom := errors.New("boom")
	err = tbl.IterRecords(func(h int64, rec []types.Datum) (bool, error) {
		return false, boom
	})
	require.ErrorIs(t, errors.Cause(err), boom)
}

type recordingObserver struct {
	events []string
}

func (o *recordingObserver) OnInsert(tx *txn.Txn, t table.Table, h int64, row []types.Datum) error {
	o.events = append(o.events, "insert")
	tx.RecordUndo(func() error {
		o.events = append(o.events, "undo-insert")
		return nil
	})
	return nil
}

func (o *recordingObserver) OnDelete(tx *txn.Txn, t table.Table, h int64, row []types.Datum) error {
	o.events = append(o.events, "delete")
	return nil
}

func (o *recordingObserver) OnUpdate(tx *txn.Txn, t table.Table, h int64, oldRow, newRow []types.Datum) error {
	o.events = append(o.events, "update")
	return nil
}

func TestMemTableObserver(t *testing.T) {
	tbl, err := MemTableFromMeta(newTestMeta(t))
	require.NoError(t, err)
	obs := &recordingObserver{}
	tbl.SetObserver(obs)

	tx := txn.New()
	h, err := tbl.AddRecord(tx, makeRow(1, "x"))
	require.NoError(t, err)
	require.NoError(t, tbl.UpdateRecord(tx, h, makeRow(1, "x"), makeRow(1, "y")))
	require.NoError(t, tbl.RemoveRecord(tx, h, makeRow(1, "y")))
	require.Equal(t, []string{"insert", "update", "delete"}, obs.events)

	// Observer undo entries replay together with the table's own on abort.
	require.NoError(t, tx.Rollback())
	require.Equal(t, "undo-insert", obs.events[len(obs.events)-1])
	require.Zero(t, tbl.RowCount())
}

func TestMemTableSnapshotRoundTrip(t *testing.T) {
	tbl, err := MemTableFromMeta(newTestMeta(t))
	require.NoError(t, err)
	tx := txn.New()
	_, err = tbl.AddRecord(tx, makeRow(1, "x"))
	require.NoError(t, err)
	_, err = tbl.AddRecord(tx, makeRow(2, "y"))
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	snap := tbl.SnapshotRecords()
	require.Len(t, snap, 2)

	restored, err := MemTableFromMeta(newTestMeta(t))
	require.NoError(t, err)
	restored.LoadRecords(snap)
	require.Equal(t, 2, restored.RowCount())

	// The handle allocator resumes past the loaded handles.
	tx2 := txn.New()
	h, err := restored.AddRecord(tx2, makeRow(3, "z"))
	require.NoError(t, err)
	require.NoError(t, tx2.Commit())
	require.Equal(t, int64(3), h)
}
