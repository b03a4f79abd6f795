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
	"sort"

	"github.com/pingcap/errors"

	"github.com/quartzdb/quartz/model"
	"github.com/quartzdb/quartz/table"
	"github.com/quartzdb/quartz/txn"
	"github.com/quartzdb/quartz/types"
)

// MemTable implements table.Table with partition-local in-memory storage.
// It is single-threaded like everything else on the partition execution
// path.
type MemTable struct {
	meta     *model.TableInfo
	rows     map[int64][]types.Datum
	alloc    int64
	observer table.Observer
}

var _ table.Table = (*MemTable)(nil)

// MemTableFromMeta creates a MemTable instance from model.TableInfo.
func MemTableFromMeta(tblInfo *model.TableInfo) (*MemTable, error) {
	if len(tblInfo.Columns) == 0 {
		return nil, errors.Errorf("table %s has no columns", tblInfo.Name)
	}
	for i, col := range tblInfo.Columns {
		if col.Offset != i {
			return nil, errors.Errorf("table %s column %s offset %d, want %d",
				tblInfo.Name, col.Name, col.Offset, i)
		}
	}
	return &MemTable{
		meta: tblInfo,
		rows: make(map[int64][]types.Datum),
	}, nil
}

// Meta implements table.Table Meta interface.
func (t *MemTable) Meta() *model.TableInfo {
	return t.meta
}

// SetObserver implements table.Table SetObserver interface.
func (t *MemTable) SetObserver(o table.Observer) {
	t.observer = o
}

// RowCount implements table.Table RowCount interface.
func (t *MemTable) RowCount() int {
	return len(t.rows)
}

func (t *MemTable) checkRecord(r []types.Datum) error {
	if len(r) != len(t.meta.Columns) {
		return errors.Annotatef(table.ErrColumnCountMismatch,
			"table %s got %d columns, want %d", t.meta.Name, len(r), len(t.meta.Columns))
	}
	return nil
}

// AddRecord implements table.Table AddRecord interface.
func (t *MemTable) AddRecord(tx *txn.Txn, r []types.Datum) (int64, error) {
	if !tx.Valid() {
		return 0, errors.Trace(txn.ErrTxnFinished)
	}
	if err := t.checkRecord(r); err != nil {
		return 0, errors.Trace(err)
	}
	t.alloc++
	h := t.alloc
	t.rows[h] = types.CloneRow(r)
	tx.RecordUndo(func() error {
		delete(t.rows, h)
		return nil
	})
	if t.observer != nil {
		if err := t.observer.OnInsert(tx, t, h, types.CloneRow(r)); err != nil {
			return 0, errors.Trace(err)
		}
	}
	return h, nil
}

// UpdateRecord implements table.Table UpdateRecord interface.
func (t *MemTable) UpdateRecord(tx *txn.Txn, h int64, oldData, newData []types.Datum) error {
	if !tx.Valid() {
		return errors.Trace(txn.ErrTxnFinished)
	}
	if err := t.checkRecord(newData); err != nil {
		return errors.Trace(err)
	}
	prev, ok := t.rows[h]
	if !ok {
		return errors.Annotatef(table.ErrRowNotFound, "table %s handle %d", t.meta.Name, h)
	}
	t.rows[h] = types.CloneRow(newData)
	tx.RecordUndo(func() error {
		t.rows[h] = prev
		return nil
	})
	if t.observer != nil {
		err := t.observer.OnUpdate(tx, t, h, types.CloneRow(oldData), types.CloneRow(newData))
		if err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// RemoveRecord implements table.Table RemoveRecord interface.
func (t *MemTable) RemoveRecord(tx *txn.Txn, h int64, r []types.Datum) error {
	if !tx.Valid() {
		return errors.Trace(txn.ErrTxnFinished)
	}
	prev, ok := t.rows[h]
	if !ok {
		return errors.Annotatef(table.ErrRowNotFound, "table %s handle %d", t.meta.Name, h)
	}
	delete(t.rows, h)
	tx.RecordUndo(func() error {
		t.rows[h] = prev
		return nil
	})
	if t.observer != nil {
		if err := t.observer.OnDelete(tx, t, h, types.CloneRow(r)); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// Row implements table.Table Row interface.
func (t *MemTable) Row(h int64) ([]types.Datum, error) {
	r, ok := t.rows[h]
	if !ok {
		return nil, errors.Annotatef(table.ErrRowNotFound, "table %s handle %d", t.meta.Name, h)
	}
	return types.CloneRow(r), nil
}

// IterRecords implements table.Table IterRecords interface.
func (t *MemTable) IterRecords(fn table.RecordIterFunc) error {
	handles := make([]int64, 0, len(t.rows))
	for h := range t.rows {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	for _, h := range handles {
		more, err := fn(h, types.CloneRow(t.rows[h]))
		if err != nil {
			return errors.Trace(err)
		}
		if !more {
			break
		}
	}
	return nil
}

// LoadRecords bulk-loads rows without transactional bookkeeping or observer
// notification. It is used by snapshot restore only.
func (t *MemTable) LoadRecords(rows map[int64][]types.Datum) {
	maxHandle := t.alloc
	for h, r := range rows {
		t.rows[h] = types.CloneRow(r)
		if h > maxHandle {
			maxHandle = h
		}
	}
	t.alloc = maxHandle
}

// SnapshotRecords copies out all rows keyed by handle, for snapshotting.
func (t *MemTable) SnapshotRecords() map[int64][]types.Datum {
	ret := make(map[int64][]types.Datum, len(t.rows))
	for h, r := range t.rows {
		ret[h] = types.CloneRow(r)
	}
	return ret
}
