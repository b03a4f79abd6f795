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
)

// Registration and maintenance errors. All of them abort the enclosing
// catalog or DML transaction.
var (
	// ErrHandlerInstalled is returned when installing a handler onto a
	// target table that already has one which was not torn down first.
	ErrHandlerInstalled = errors.New("target table already has an installed view handler")

	// ErrHandlerNotInstalled is returned when an operation requires an
	// installed handler.
	ErrHandlerNotInstalled = errors.New("view handler is not installed")

	// ErrNoSourceTables is returned when installing a handler with an
	// empty source table list.
	ErrNoSourceTables = errors.New("view handler requires at least one source table")

	// ErrSourceNotRegistered is returned when dropping a source table the
	// handler is not registered on.
	ErrSourceNotRegistered = errors.New("source table is not registered on the view handler")

	// ErrNotViewTarget is returned when the target table's metadata does
	// not describe a materialized view.
	ErrNotViewTarget = errors.New("table is not a materialized view target")

	// ErrViewInconsistent is returned when delta application finds view
	// state that cannot have resulted from correct maintenance, e.g. a
	// delete for a group with no view row.
	ErrViewInconsistent = errors.New("materialized view state inconsistent with source table")

	// ErrMissingFallbackPlan is returned when a MIN/MAX column needs a
	// recompute but no plan was compiled for it.
	ErrMissingFallbackPlan = errors.New("no fallback plan compiled for aggregate column")

	// ErrOverflow is returned when SUM maintenance overflows the slot
	// type.
	ErrOverflow = errors.New("aggregate value out of range")
)
