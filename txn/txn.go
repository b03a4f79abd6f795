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

package txn

import (
	"github.com/pingcap/errors"
)

// ErrTxnFinished is returned when a finished transaction is reused.
var ErrTxnFinished = errors.New("transaction has been committed or rolled back")

// UndoFunc reverts one mutation performed under a transaction.
type UndoFunc func() error

// Txn is a single-partition transaction. Every mutation performed under it,
// base-table writes and the view maintenance they trigger alike, records an
// UndoFunc. Rollback replays the undo log in reverse order, so an aborted
// DML statement reverts its view mutations through the same mechanism as
// its source-table mutations. Txn is not safe for concurrent use; one
// partition executes transactions on a single thread.
type Txn struct {
	undo     []UndoFunc
	finished bool
}

// New creates a transaction.
func New() *Txn {
	return &Txn{}
}

// Valid reports whether the transaction is still open.
func (t *Txn) Valid() bool {
	return !t.finished
}

// RecordUndo appends an undo entry. It must be called after the forward
// mutation succeeded.
func (t *Txn) RecordUndo(f UndoFunc) {
	t.undo = append(t.undo, f)
}

// Len returns the number of recorded undo entries.
func (t *Txn) Len() int {
	return len(t.undo)
}

// Commit finishes the transaction and discards the undo log.
func (t *Txn) Commit() error {
	if t.finished {
		return errors.Trace(ErrTxnFinished)
	}
	t.finished = true
	t.undo = nil
	return nil
}

// Rollback finishes the transaction, reverting all recorded mutations in
// reverse order.
func (t *Txn) Rollback() error {
	if t.finished {
		return errors.Trace(ErrTxnFinished)
	}
	t.finished = true
	for i := len(t.undo) - 1; i >= 0; i-- {
		if err := t.undo[i](); err != nil {
			return errors.Annotate(err, "replay undo log")
		}
	}
	t.undo = nil
	return nil
}
