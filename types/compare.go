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

package types

import (
	"bytes"
	"math"

	"github.com/pingcap/errors"
)

// CompareInt64 returns an integer comparing the int64 x to y.
func CompareInt64(x, y int64) int {
	if x < y {
		return -1
	} else if x == y {
		return 0
	}
	return 1
}

// CompareUint64 returns an integer comparing the uint64 x to y.
func CompareUint64(x, y uint64) int {
	if x < y {
		return -1
	} else if x == y {
		return 0
	}
	return 1
}

// CompareFloat64 returns an integer comparing the float64 x to y.
func CompareFloat64(x, y float64) int {
	if x < y {
		return -1
	} else if x == y {
		return 0
	}
	return 1
}

// Compare compares the datum to another datum.
// NULL sorts before every non-NULL value. Numeric kinds compare by value
// across kinds. Comparing a numeric kind to a string kind is an error and
// aborts the enclosing transaction.
func (d Datum) Compare(other Datum) (int, error) {
	if d.IsNull() {
		if other.IsNull() {
			return 0, nil
		}
		return -1, nil
	}
	if other.IsNull() {
		return 1, nil
	}

	switch d.k {
	case KindInt64, KindUint64, KindFloat64:
		switch other.k {
		case KindInt64, KindUint64, KindFloat64:
			return compareNumeric(d, other), nil
		}
	case KindString, KindBytes:
		switch other.k {
		case KindString, KindBytes:
			return bytes.Compare(d.b, other.b), nil
		}
	}
	return 0, errors.Annotatef(ErrIncompatibleTypes, "cannot compare %s with %s", d.k, other.k)
}

func compareNumeric(x, y Datum) int {
	// Mixed signed/unsigned comparison must not go through float64, it
	// loses precision above 2^53.
	if x.k == KindFloat64 || y.k == KindFloat64 {
		return CompareFloat64(numericAsFloat64(x), numericAsFloat64(y))
	}
	switch {
	case x.k == KindInt64 && y.k == KindInt64:
		return CompareInt64(x.GetInt64(), y.GetInt64())
	case x.k == KindUint64 && y.k == KindUint64:
		return CompareUint64(x.GetUint64(), y.GetUint64())
	case x.k == KindInt64:
		return compareIntUint(x.GetInt64(), y.GetUint64())
	default:
		return -compareIntUint(y.GetInt64(), x.GetUint64())
	}
}

func compareIntUint(x int64, y uint64) int {
	if x < 0 {
		return -1
	}
	if y > math.MaxInt64 {
		return -1
	}
	return CompareInt64(x, int64(y))
}

func numericAsFloat64(d Datum) float64 {
	switch d.k {
	case KindInt64:
		return float64(d.GetInt64())
	case KindUint64:
		return float64(d.GetUint64())
	default:
		return d.GetFloat64()
	}
}

// EqualDatums reports whether two rows are equal value by value.
func EqualDatums(a, b []Datum) (bool, error) {
	if len(a) != len(b) {
		return false, nil
	}
	for i := range a {
		// NULL equals NULL for row identity purposes.
		if a[i].IsNull() != b[i].IsNull() {
			return false, nil
		}
		if a[i].IsNull() {
			continue
		}
		cmp, err := a[i].Compare(b[i])
		if err != nil {
			return false, errors.Trace(err)
		}
		if cmp != 0 {
			return false, nil
		}
	}
	return true, nil
}
