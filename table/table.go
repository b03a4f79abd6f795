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

package table

import (
	"github.com/pingcap/errors"

	"github.com/quartzdb/quartz/model"
	"github.com/quartzdb/quartz/txn"
	"github.com/quartzdb/quartz/types"
)

var (
	// ErrRowNotFound is returned when a handle does not exist in the table.
	ErrRowNotFound = errors.New("row not found")
	// ErrColumnCountMismatch is returned when a record does not match the
	// table's column count.
	ErrColumnCountMismatch = errors.New("column count mismatch")
)

// RecordIterFunc is used for low-level record iteration.
type RecordIterFunc func(h int64, rec []types.Datum) (more bool, err error)

// Table is used to retrieve and modify rows in one table of a partition.
// All mutations run under a transaction and record their undo there.
type Table interface {
	// Meta returns TableInfo.
	Meta() *model.TableInfo

	// AddRecord inserts a record into the table and returns its handle.
	AddRecord(tx *txn.Txn, r []types.Datum) (int64, error)

	// UpdateRecord updates a record in the table. oldData must be the
	// current content of the record.
	UpdateRecord(tx *txn.Txn, h int64, oldData, newData []types.Datum) error

	// RemoveRecord removes a record from the table. r must be the current
	// content of the record.
	RemoveRecord(tx *txn.Txn, h int64, r []types.Datum) error

	// Row returns a copy of the record identified by the handle.
	Row(h int64) ([]types.Datum, error)

	// IterRecords iterates records in the table in ascending handle order
	// and calls fn with a copy of each.
	IterRecords(fn RecordIterFunc) error

	// RowCount returns the number of records in the table.
	RowCount() int

	// SetObserver binds the table's mutation observer. A nil observer
	// detaches it.
	SetObserver(o Observer)
}

// Observer receives every row-level change of a table, synchronously and
// under the mutating transaction, after the base mutation is applied.
// The materialized-view registry implements it to drive view maintenance.
type Observer interface {
	OnInsert(tx *txn.Txn, t Table, h int64, row []types.Datum) error
	OnDelete(tx *txn.Txn, t Table, h int64, row []types.Datum) error
	OnUpdate(tx *txn.Txn, t Table, h int64, oldRow, newRow []types.Datum) error
}
