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
	"sort"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/failpoint"

	"github.com/quartzdb/quartz/metrics"
	"github.com/quartzdb/quartz/txn"
	"github.com/quartzdb/quartz/types"
)

// Refresh re-executes the view's full executor plan and reconciles its
// output against current target table content: rows present only in the
// new result are inserted, rows present only in the target are deleted,
// and rows present in both with changed values are updated in place.
//
// This is the most expensive maintenance path. It serves the one-time
// initial population after install, and every change on a multi-source
// view, where the affected target rows cannot be enumerated without
// re-running the join.
func (h *Handler) Refresh(tx *txn.Txn) error {
	if h.state != StateActive {
		return errors.Annotatef(ErrHandlerNotInstalled, "handler %s is %s", h.id, h.state)
	}
	return errors.Trace(h.refresh(tx))
}

func (h *Handler) refresh(tx *txn.Txn) error {
	start := time.Now()
	if err := h.doRefresh(tx); err != nil {
		metrics.JoinRefreshCounter.WithLabelValues(metrics.RetError).Inc()
		return errors.Trace(err)
	}
	metrics.JoinRefreshCounter.WithLabelValues(metrics.RetOK).Inc()
	metrics.RefreshDurationHistogram.Observe(time.Since(start).Seconds())
	return nil
}

func (h *Handler) doRefresh(tx *txn.Txn) error {
	var failErr error
	failpoint.Inject("mockRefreshErr", func() {
		failErr = errors.New("mock refresh error")
	})
	if failErr != nil {
		return failErr
	}
	if h.refreshPlan == nil {
		return errors.Errorf("view %s has no refresh plan", h.info.Name)
	}

	result, err := h.refreshPlan.Execute()
	if err != nil {
		return errors.Trace(err)
	}
	groupLen := h.layout.GroupLen()

	fresh := make(map[string][]types.Datum, len(result))
	for _, row := range result {
		if len(row) != h.layout.NumColumns() {
			return errors.Errorf("refresh plan row has %d columns, want %d",
				len(row), h.layout.NumColumns())
		}
		key, err := encodeGroupKey(row[:groupLen])
		if err != nil {
			return errors.Trace(err)
		}
		fresh[key] = row
	}

	// Pass one: walk current target content, updating changed rows and
	// removing rows whose group vanished from the result.
	type targetRow struct {
		handle int64
		key    string
		row    []types.Datum
	}
	var current []targetRow
	err = h.target.IterRecords(func(handle int64, rec []types.Datum) (bool, error) {
		key, kerr := encodeGroupKey(rec[:groupLen])
		if kerr != nil {
			return false, errors.Trace(kerr)
		}
		current = append(current, targetRow{handle: handle, key: key, row: rec})
		return true, nil
	})
	if err != nil {
		return errors.Trace(err)
	}

	seen := make(map[string]struct{}, len(current))
	for _, tr := range current {
		newRow, ok := fresh[tr.key]
		if !ok {
			if err := h.target.RemoveRecord(tx, tr.handle, tr.row); err != nil {
				return errors.Trace(err)
			}
			h.delGroupHandle(tx, tr.key, tr.handle)
			continue
		}
		seen[tr.key] = struct{}{}
		equal, eqErr := types.EqualDatums(tr.row, newRow)
		if eqErr != nil {
			return errors.Trace(eqErr)
		}
		if !equal {
			if err := h.target.UpdateRecord(tx, tr.handle, tr.row, newRow); err != nil {
				return errors.Trace(err)
			}
		}
	}

	// Pass two: insert groups that are new in the result, in deterministic
	// key order.
	missing := make([]string, 0, len(fresh))
	for key := range fresh {
		if _, ok := seen[key]; !ok {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	for _, key := range missing {
		handle, err := h.target.AddRecord(tx, fresh[key])
		if err != nil {
			return errors.Trace(err)
		}
		h.setGroupHandle(tx, key, handle)
	}
	return nil
}
