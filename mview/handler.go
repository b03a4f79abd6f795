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

// Package mview implements incremental maintenance of materialized views.
//
// One Handler is installed per view target table. It observes the view's
// source tables through the Registry and translates every row-level change
// into the minimal correct mutation of the target: an O(1) incremental
// delta where that is safe, a per-group fallback recompute for a MIN/MAX
// slot whose extremal value was removed, or a full join refresh for views
// over multiple source tables. All maintenance runs synchronously inside
// the transaction that mutated the source table and rolls back with it.
package mview

import (
	"github.com/google/uuid"
	"github.com/pingcap/errors"
	"go.uber.org/zap"

	"github.com/quartzdb/quartz/metrics"
	"github.com/quartzdb/quartz/model"
	"github.com/quartzdb/quartz/table"
	"github.com/quartzdb/quartz/txn"
	"github.com/quartzdb/quartz/types"
	"github.com/quartzdb/quartz/util/codec"
	"github.com/quartzdb/quartz/util/logutil"
)

// State is the lifecycle state of a Handler.
type State int

// Handler states. An inert handler has lost all of its source tables but
// was not explicitly uninstalled; it applies no further deltas.
const (
	StateUninstalled State = iota
	StateActive
	StateInert
)

// String implements fmt.Stringer interface.
func (s State) String() string {
	switch s {
	case StateUninstalled:
		return "uninstalled"
	case StateActive:
		return "active"
	case StateInert:
		return "inert"
	}
	return "unknown"
}

// Handler maintains one materialized view. It holds non-owning references
// to the view's source tables and target table; the catalog installation
// that created it owns its lifetime.
type Handler struct {
	id     string
	info   *model.ViewInfo
	layout *Layout

	registry *Registry
	target   table.Table
	sources  []table.Table

	minMaxPlans map[int]FallbackPlan
	refreshPlan RefreshPlan

	// groupIndex maps the encoded group key of every view row to its
	// target-table handle.
	groupIndex map[string]int64

	state State
}

// NewHandler creates an uninstalled handler for a view definition.
func NewHandler(registry *Registry, info *model.ViewInfo) *Handler {
	return &Handler{
		id:         uuid.NewString(),
		info:       info,
		layout:     NewLayout(info),
		registry:   registry,
		groupIndex: make(map[string]int64),
		state:      StateUninstalled,
	}
}

// ID returns the handler's instance ID, used for log correlation.
func (h *Handler) ID() string {
	return h.id
}

// Info returns the view definition the handler maintains.
func (h *Handler) Info() *model.ViewInfo {
	return h.info
}

// State returns the handler's lifecycle state.
func (h *Handler) State() State {
	return h.state
}

// Target returns the view's target table.
func (h *Handler) Target() table.Table {
	return h.target
}

// SourceTables returns the handler's current source tables in registration
// order.
func (h *Handler) SourceTables() []table.Table {
	return append([]table.Table(nil), h.sources...)
}

func (h *Handler) validateInfo() error {
	nSources := len(h.info.SourceTables)
	check := func(ref model.ColRef) error {
		if ref.Source < 0 || ref.Source >= nSources {
			return errors.Errorf("view %s references source ordinal %d of %d",
				h.info.Name, ref.Source, nSources)
		}
		return nil
	}
	for _, ref := range h.info.GroupBy {
		if err := check(ref); err != nil {
			return err
		}
	}
	for _, agg := range h.info.Aggs {
		if agg.Func == model.AggCountStar {
			continue
		}
		if err := check(agg.Arg); err != nil {
			return err
		}
	}
	for _, jc := range h.info.Join {
		if err := check(jc.Left); err != nil {
			return err
		}
		if err := check(jc.Right); err != nil {
			return err
		}
	}
	return nil
}

// Install binds the handler to its target table, registers it on every
// source table, and accepts the precompiled fallback and refresh plans
// supplied by the planner. Installing onto a target that already has a
// different handler which was not torn down first is a catalog-consistency
// error.
func (h *Handler) Install(target table.Table, sources []table.Table, plans PlanSet) error {
	if h.state != StateUninstalled {
		return errors.Annotatef(ErrHandlerInstalled, "handler %s is %s", h.id, h.state)
	}
	meta := target.Meta()
	if !meta.IsView() {
		return errors.Annotatef(ErrNotViewTarget, "table %s", meta.Name)
	}
	if len(sources) == 0 {
		return errors.Annotatef(ErrNoSourceTables, "view %s", h.info.Name)
	}
	if err := h.validateInfo(); err != nil {
		return errors.Trace(err)
	}
	if err := h.layout.Check(meta); err != nil {
		return errors.Trace(err)
	}
	if err := h.registry.bindTarget(meta.ID, h); err != nil {
		return errors.Trace(err)
	}

	h.target = target
	h.minMaxPlans = plans.MinMax
	h.refreshPlan = plans.Refresh
	h.state = StateActive
	for _, s := range sources {
		if err := h.AddSourceTable(s); err != nil {
			return errors.Trace(err)
		}
	}
	if err := h.rebuildGroupIndex(); err != nil {
		return errors.Trace(err)
	}

	metrics.HandlerGauge.Inc()
	logutil.BgLogger().Info("install materialized view handler",
		zap.String("handler", h.id),
		zap.String("view", h.info.Name.O),
		zap.Int("sources", len(h.sources)))
	return nil
}

// Uninstall tears the handler down: it deregisters the handler from every
// source table and releases the target binding. The handler cannot be
// reinstalled afterwards; the catalog creates a fresh one on view
// alteration.
func (h *Handler) Uninstall() error {
	if h.state == StateUninstalled {
		return errors.Annotatef(ErrHandlerNotInstalled, "handler %s", h.id)
	}
	for _, s := range h.sources {
		h.registry.deregisterSource(s.Meta().ID, h)
	}
	h.sources = nil
	h.registry.unbindTarget(h.target.Meta().ID)
	h.state = StateUninstalled
	h.groupIndex = make(map[string]int64)

	metrics.HandlerGauge.Dec()
	logutil.BgLogger().Info("uninstall materialized view handler",
		zap.String("handler", h.id),
		zap.String("view", h.info.Name.O))
	return nil
}

// AddSourceTable adds a source table to the handler and registers the
// handler as its observer. It is idempotent: re-adding a registered table
// leaves the source set unchanged, so future deltas are never
// double-counted.
func (h *Handler) AddSourceTable(t table.Table) error {
	if h.state == StateUninstalled {
		return errors.Annotatef(ErrHandlerNotInstalled, "handler %s", h.id)
	}
	id := t.Meta().ID
	for _, cur := range h.sources {
		if cur.Meta().ID == id {
			logutil.BgLogger().Warn("source table already registered on view handler",
				zap.String("handler", h.id),
				zap.String("view", h.info.Name.O),
				zap.String("table", t.Meta().Name.O))
			return nil
		}
	}
	h.sources = append(h.sources, t)
	h.registry.registerSource(id, h)
	h.state = StateActive
	return nil
}

// DropSourceTable deregisters the handler from a source table. Dropping
// the last source table leaves the handler inert; it is not implicitly
// destroyed, an explicit Uninstall is still required.
func (h *Handler) DropSourceTable(t table.Table) error {
	if h.state == StateUninstalled {
		return errors.Annotatef(ErrHandlerNotInstalled, "handler %s", h.id)
	}
	id := t.Meta().ID
	idx := -1
	for i, cur := range h.sources {
		if cur.Meta().ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return errors.Annotatef(ErrSourceNotRegistered, "view %s, table %s",
			h.info.Name, t.Meta().Name)
	}
	h.sources = append(h.sources[:idx], h.sources[idx+1:]...)
	h.registry.deregisterSource(id, h)
	if len(h.sources) == 0 {
		h.state = StateInert
		logutil.BgLogger().Warn("view handler lost its last source table",
			zap.String("handler", h.id),
			zap.String("view", h.info.Name.O))
	}
	return nil
}

// rebuildGroupIndex reconstructs the group key index from current target
// table content. On a fresh install the target is empty; on reinstallation
// after a restart or snapshot restore it holds the persisted view rows.
func (h *Handler) rebuildGroupIndex() error {
	h.groupIndex = make(map[string]int64)
	return h.target.IterRecords(func(handle int64, rec []types.Datum) (bool, error) {
		key, err := encodeGroupKey(rec[:h.layout.GroupLen()])
		if err != nil {
			return false, errors.Trace(err)
		}
		h.groupIndex[key] = handle
		return true, nil
	})
}

func encodeGroupKey(vals []types.Datum) (string, error) {
	b, err := codec.EncodeKey(nil, vals...)
	if err != nil {
		return "", errors.Trace(err)
	}
	return string(b), nil
}

func (h *Handler) setGroupHandle(tx *txn.Txn, key string, handle int64) {
	h.groupIndex[key] = handle
	tx.RecordUndo(func() error {
		delete(h.groupIndex, key)
		return nil
	})
}

func (h *Handler) delGroupHandle(tx *txn.Txn, key string, handle int64) {
	delete(h.groupIndex, key)
	tx.RecordUndo(func() error {
		h.groupIndex[key] = handle
		return nil
	})
}
