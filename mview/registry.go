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

	"github.com/quartzdb/quartz/table"
	"github.com/quartzdb/quartz/txn"
	"github.com/quartzdb/quartz/types"
)

// Registry is the non-owning index from source tables to the view handlers
// observing them, and from target tables to their single installed handler.
// Source and view objects carry no back-pointers to each other; dropping
// either side only touches this index.
//
// Handlers registered on the same source table are notified in registration
// order, which makes the fan-out of one row change to several views
// deterministic. Registration changes happen only in catalog transactions,
// which are serialized against DML on the partition, so no locking is
// needed.
type Registry struct {
	observers map[int64][]*Handler
	targets   map[int64]*Handler
}

var _ table.Observer = (*Registry)(nil)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		observers: make(map[int64][]*Handler),
		targets:   make(map[int64]*Handler),
	}
}

// InstalledHandler returns the handler installed on the target table, or
// nil.
func (r *Registry) InstalledHandler(targetID int64) *Handler {
	return r.targets[targetID]
}

// HandlersForSource returns the handlers observing a source table, in
// registration order.
func (r *Registry) HandlersForSource(sourceID int64) []*Handler {
	hs := r.observers[sourceID]
	return append([]*Handler(nil), hs...)
}

func (r *Registry) bindTarget(targetID int64, h *Handler) error {
	if cur := r.targets[targetID]; cur != nil && cur != h {
		return errors.Annotatef(ErrHandlerInstalled, "target table %d", targetID)
	}
	r.targets[targetID] = h
	return nil
}

func (r *Registry) unbindTarget(targetID int64) {
	delete(r.targets, targetID)
}

func (r *Registry) registerSource(sourceID int64, h *Handler) {
	for _, cur := range r.observers[sourceID] {
		if cur == h {
			return
		}
	}
	r.observers[sourceID] = append(r.observers[sourceID], h)
}

func (r *Registry) deregisterSource(sourceID int64, h *Handler) {
	hs := r.observers[sourceID]
	for i, cur := range hs {
		if cur == h {
			r.observers[sourceID] = append(hs[:i], hs[i+1:]...)
			break
		}
	}
	if len(r.observers[sourceID]) == 0 {
		delete(r.observers, sourceID)
	}
}

// OnInsert implements table.Observer interface.
func (r *Registry) OnInsert(tx *txn.Txn, t table.Table, h int64, row []types.Datum) error {
	for _, hd := range r.observers[t.Meta().ID] {
		if err := hd.onSourceInsert(tx, row); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// OnDelete implements table.Observer interface.
func (r *Registry) OnDelete(tx *txn.Txn, t table.Table, h int64, row []types.Datum) error {
	for _, hd := range r.observers[t.Meta().ID] {
		if err := hd.onSourceDelete(tx, row); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// OnUpdate implements table.Observer interface.
func (r *Registry) OnUpdate(tx *txn.Txn, t table.Table, h int64, oldRow, newRow []types.Datum) error {
	for _, hd := range r.observers[t.Meta().ID] {
		if err := hd.onSourceUpdate(tx, oldRow, newRow); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}
