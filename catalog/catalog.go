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

// Package catalog owns the table and view namespace of one database. It
// resolves view definitions against base tables, drives handler
// installation through the planner, and implements snapshot and restore
// of the full catalog state.
package catalog

import (
	"github.com/pingcap/errors"
	"go.uber.org/zap"

	"github.com/quartzdb/quartz/config"
	"github.com/quartzdb/quartz/model"
	"github.com/quartzdb/quartz/mview"
	"github.com/quartzdb/quartz/planner"
	"github.com/quartzdb/quartz/table"
	"github.com/quartzdb/quartz/table/tables"
	"github.com/quartzdb/quartz/txn"
	"github.com/quartzdb/quartz/types"
	"github.com/quartzdb/quartz/util/logutil"
)

// Catalog errors.
var (
	ErrTableExists    = errors.New("table already exists")
	ErrTableNotExists = errors.New("table does not exist")
	ErrViewExists     = errors.New("view already exists")
	ErrViewNotExists  = errors.New("view does not exist")
)

type viewEntry struct {
	handler *mview.Handler
	target  *tables.MemTable
}

// Catalog is the table and view namespace. It is not safe for concurrent
// use; callers serialize DDL the same way they serialize transactions.
type Catalog struct {
	registry  *mview.Registry
	planner   *planner.Planner
	tables    map[string]*tables.MemTable
	tableByID map[int64]*tables.MemTable
	views     map[string]*viewEntry
	idAlloc   int64
}

// New creates an empty catalog. The plan cache capacity comes from the
// global configuration.
func New() (*Catalog, error) {
	p, err := planner.New(config.GetGlobalConfig().Performance.PlanCacheCapacity)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Catalog{
		registry:  mview.NewRegistry(),
		planner:   p,
		tables:    make(map[string]*tables.MemTable),
		tableByID: make(map[int64]*tables.MemTable),
		views:     make(map[string]*viewEntry),
	}, nil
}

func (c *Catalog) nextID() int64 {
	c.idAlloc++
	return c.idAlloc
}

// CreateTable creates a base table from tblInfo. The catalog assigns the
// table ID and column IDs; any IDs already set on tblInfo are overwritten.
// Every base table gets the view registry installed as its observer.
func (c *Catalog) CreateTable(tblInfo *model.TableInfo) (*tables.MemTable, error) {
	name := tblInfo.Name.L
	if _, ok := c.tables[name]; ok {
		return nil, errors.Annotatef(ErrTableExists, "table %s", tblInfo.Name)
	}
	if _, ok := c.views[name]; ok {
		return nil, errors.Annotatef(ErrViewExists, "view %s", tblInfo.Name)
	}
	info := tblInfo.Clone()
	info.ID = c.nextID()
	for i, col := range info.Columns {
		col.ID = int64(i + 1)
		col.Offset = i
	}
	t, err := tables.MemTableFromMeta(info)
	if err != nil {
		return nil, errors.Trace(err)
	}
	t.SetObserver(c.registry)
	c.tables[name] = t
	c.tableByID[info.ID] = t
	logutil.BgLogger().Info("create table",
		zap.String("table", info.Name.O),
		zap.Int64("tableID", info.ID))
	return t, nil
}

// Table returns a base table by name.
func (c *Catalog) Table(name string) (*tables.MemTable, error) {
	t, ok := c.tables[model.NewCIStr(name).L]
	if !ok {
		return nil, errors.Annotatef(ErrTableNotExists, "table %s", name)
	}
	return t, nil
}

// DropTable removes a base table. Views fed by the table are not dropped:
// each referencing handler is deregistered from the table and keeps serving
// its last materialized content, going inert once it has no sources left.
func (c *Catalog) DropTable(name string) error {
	t, err := c.Table(name)
	if err != nil {
		return errors.Trace(err)
	}
	id := t.Meta().ID
	for _, hd := range c.registry.HandlersForSource(id) {
		if err := hd.DropSourceTable(t); err != nil {
			return errors.Trace(err)
		}
	}
	delete(c.tables, t.Meta().Name.L)
	delete(c.tableByID, id)
	logutil.BgLogger().Info("drop table",
		zap.String("table", t.Meta().Name.O),
		zap.Int64("tableID", id))
	return nil
}

// CreateView defines a materialized view, installs its maintenance handler,
// and populates the target table from current source content inside tx. If
// tx later rolls back, the population rolls back with it; DropView is still
// needed to remove the definition.
func (c *Catalog) CreateView(tx *txn.Txn, viewInfo *model.ViewInfo) (*mview.Handler, error) {
	name := viewInfo.Name.L
	if _, ok := c.views[name]; ok {
		return nil, errors.Annotatef(ErrViewExists, "view %s", viewInfo.Name)
	}
	if _, ok := c.tables[name]; ok {
		return nil, errors.Annotatef(ErrTableExists, "table %s", viewInfo.Name)
	}
	info := viewInfo.Clone()
	info.ID = c.nextID()
	if info.Version == 0 {
		info.Version = 1
	}

	srcTables := make([]table.Table, 0, len(info.SourceTables))
	srcMetas := make([]*model.TableInfo, 0, len(info.SourceTables))
	for _, src := range info.SourceTables {
		t, ok := c.tables[src.L]
		if !ok {
			return nil, errors.Annotatef(ErrTableNotExists, "source table %s of view %s",
				src, info.Name)
		}
		srcTables = append(srcTables, t)
		srcMetas = append(srcMetas, t.Meta())
	}

	targetInfo, err := planner.BuildTargetTableInfo(c.nextID(), info, srcMetas)
	if err != nil {
		return nil, errors.Trace(err)
	}
	target, err := tables.MemTableFromMeta(targetInfo)
	if err != nil {
		return nil, errors.Trace(err)
	}
	plans, err := c.planner.Compile(info, srcTables)
	if err != nil {
		return nil, errors.Trace(err)
	}

	hd := mview.NewHandler(c.registry, info)
	if err := hd.Install(target, srcTables, plans); err != nil {
		return nil, errors.Trace(err)
	}
	if err := hd.Refresh(tx); err != nil {
		uninstallErr := hd.Uninstall()
		if uninstallErr != nil {
			logutil.BgLogger().Error("uninstall handler after failed initial refresh",
				zap.String("view", info.Name.O),
				zap.Error(uninstallErr))
		}
		return nil, errors.Annotatef(err, "initial population of view %s", info.Name)
	}

	c.views[name] = &viewEntry{handler: hd, target: target}
	c.tableByID[targetInfo.ID] = target
	logutil.BgLogger().Info("create materialized view",
		zap.String("view", info.Name.O),
		zap.Int64("viewID", info.ID),
		zap.Int("sources", len(srcTables)))
	return hd, nil
}

// View returns the maintenance handler of a view by name.
func (c *Catalog) View(name string) (*mview.Handler, error) {
	entry, ok := c.views[model.NewCIStr(name).L]
	if !ok {
		return nil, errors.Annotatef(ErrViewNotExists, "view %s", name)
	}
	return entry.handler, nil
}

// ViewTarget returns the target table holding a view's materialized rows.
func (c *Catalog) ViewTarget(name string) (*tables.MemTable, error) {
	entry, ok := c.views[model.NewCIStr(name).L]
	if !ok {
		return nil, errors.Annotatef(ErrViewNotExists, "view %s", name)
	}
	return entry.target, nil
}

// DropView uninstalls a view's handler and removes its definition and
// target table from the catalog.
func (c *Catalog) DropView(name string) error {
	key := model.NewCIStr(name).L
	entry, ok := c.views[key]
	if !ok {
		return errors.Annotatef(ErrViewNotExists, "view %s", name)
	}
	if err := entry.handler.Uninstall(); err != nil {
		return errors.Trace(err)
	}
	delete(c.views, key)
	delete(c.tableByID, entry.target.Meta().ID)
	logutil.BgLogger().Info("drop materialized view", zap.String("view", name))
	return nil
}

// TableSnapshot is the persisted state of one base table.
type TableSnapshot struct {
	Meta *model.TableInfo
	Rows map[int64][]types.Datum
}

// ViewSnapshot is the persisted state of one materialized view: its
// definition plus the already materialized target rows. Plans and group
// indexes are rebuilt on restore, never persisted.
type ViewSnapshot struct {
	Info       *model.ViewInfo
	TargetMeta *model.TableInfo
	Rows       map[int64][]types.Datum
}

// Snapshot captures the full catalog state.
type Snapshot struct {
	NextID int64
	Tables []TableSnapshot
	Views  []ViewSnapshot
}

// Snapshot copies out all catalog state. Materialized view content is
// persisted as-is so restore does not replay source history.
func (c *Catalog) Snapshot() *Snapshot {
	snap := &Snapshot{NextID: c.idAlloc}
	for _, t := range c.tables {
		snap.Tables = append(snap.Tables, TableSnapshot{
			Meta: t.Meta().Clone(),
			Rows: t.SnapshotRecords(),
		})
	}
	for _, entry := range c.views {
		snap.Views = append(snap.Views, ViewSnapshot{
			Info:       entry.handler.Info().Clone(),
			TargetMeta: entry.target.Meta().Clone(),
			Rows:       entry.target.SnapshotRecords(),
		})
	}
	return snap
}

// Restore builds a fresh catalog from a snapshot. Base tables and view
// targets are bulk-loaded, then every handler is recompiled and
// reinstalled over the restored content; installation rebuilds the group
// index from the target rows, so no refresh runs.
func Restore(snap *Snapshot) (*Catalog, error) {
	c, err := New()
	if err != nil {
		return nil, errors.Trace(err)
	}
	c.idAlloc = snap.NextID

	for _, ts := range snap.Tables {
		t, err := tables.MemTableFromMeta(ts.Meta.Clone())
		if err != nil {
			return nil, errors.Trace(err)
		}
		t.LoadRecords(ts.Rows)
		t.SetObserver(c.registry)
		c.tables[ts.Meta.Name.L] = t
		c.tableByID[ts.Meta.ID] = t
	}

	for _, vs := range snap.Views {
		target, err := tables.MemTableFromMeta(vs.TargetMeta.Clone())
		if err != nil {
			return nil, errors.Trace(err)
		}
		target.LoadRecords(vs.Rows)

		info := vs.Info.Clone()
		srcTables := make([]table.Table, 0, len(info.SourceTables))
		for _, src := range info.SourceTables {
			t, ok := c.tables[src.L]
			if !ok {
				return nil, errors.Annotatef(ErrTableNotExists,
					"source table %s of restored view %s", src, info.Name)
			}
			srcTables = append(srcTables, t)
		}
		plans, err := c.planner.Compile(info, srcTables)
		if err != nil {
			return nil, errors.Trace(err)
		}
		hd := mview.NewHandler(c.registry, info)
		if err := hd.Install(target, srcTables, plans); err != nil {
			return nil, errors.Trace(err)
		}
		c.views[info.Name.L] = &viewEntry{handler: hd, target: target}
		c.tableByID[vs.TargetMeta.ID] = target
	}

	logutil.BgLogger().Info("restore catalog from snapshot",
		zap.Int("tables", len(snap.Tables)),
		zap.Int("views", len(snap.Views)))
	return c, nil
}
