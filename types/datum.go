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
	"fmt"
	"math"

	"github.com/pingcap/errors"
)

// Kind is the discriminant of a Datum.
type Kind byte

// Datum kinds.
const (
	KindNull Kind = iota
	KindInt64
	KindUint64
	KindFloat64
	KindString
	KindBytes
)

// String implements fmt.Stringer interface.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt64:
		return "int64"
	case KindUint64:
		return "uint64"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ErrIncompatibleTypes is returned when two datums cannot be compared or
// combined arithmetically. It aborts the enclosing transaction.
var ErrIncompatibleTypes = errors.New("incompatible types")

// Datum is a tagged value holder for one column value.
type Datum struct {
	k Kind
	i int64
	b []byte
}

// Kind returns the datum kind.
func (d Datum) Kind() Kind {
	return d.k
}

// IsNull reports whether the datum holds NULL.
func (d Datum) IsNull() bool {
	return d.k == KindNull
}

// GetInt64 gets the int64 value.
func (d Datum) GetInt64() int64 {
	return d.i
}

// GetUint64 gets the uint64 value.
func (d Datum) GetUint64() uint64 {
	return uint64(d.i)
}

// GetFloat64 gets the float64 value.
func (d Datum) GetFloat64() float64 {
	return math.Float64frombits(uint64(d.i))
}

// GetString gets the string value.
func (d Datum) GetString() string {
	return string(d.b)
}

// GetBytes gets the bytes value.
func (d Datum) GetBytes() []byte {
	return d.b
}

// SetNull sets the datum to NULL.
func (d *Datum) SetNull() {
	d.k = KindNull
	d.i = 0
	d.b = nil
}

// SetInt64 sets the datum to an int64 value.
func (d *Datum) SetInt64(i int64) {
	d.k = KindInt64
	d.i = i
	d.b = nil
}

// SetUint64 sets the datum to a uint64 value.
func (d *Datum) SetUint64(u uint64) {
	d.k = KindUint64
	d.i = int64(u)
	d.b = nil
}

// SetFloat64 sets the datum to a float64 value.
func (d *Datum) SetFloat64(f float64) {
	d.k = KindFloat64
	d.i = int64(math.Float64bits(f))
	d.b = nil
}

// SetString sets the datum to a string value.
func (d *Datum) SetString(s string) {
	d.k = KindString
	d.i = 0
	d.b = []byte(s)
}

// SetBytes sets the datum to a bytes value.
func (d *Datum) SetBytes(b []byte) {
	d.k = KindBytes
	d.i = 0
	d.b = b
}

// NewDatum creates a Datum from a Go value.
func NewDatum(in interface{}) (d Datum) {
	switch x := in.(type) {
	case nil:
		d.SetNull()
	case bool:
		if x {
			d.SetInt64(1)
		} else {
			d.SetInt64(0)
		}
	case int:
		d.SetInt64(int64(x))
	case int64:
		d.SetInt64(x)
	case uint64:
		d.SetUint64(x)
	case float64:
		d.SetFloat64(x)
	case string:
		d.SetString(x)
	case []byte:
		d.SetBytes(x)
	case Datum:
		d = x
	default:
		panic(fmt.Sprintf("unsupported datum value %v (%T)", in, in))
	}
	return d
}

// NewIntDatum creates a Datum holding an int64.
func NewIntDatum(i int64) (d Datum) {
	d.SetInt64(i)
	return d
}

// NewUintDatum creates a Datum holding a uint64.
func NewUintDatum(u uint64) (d Datum) {
	d.SetUint64(u)
	return d
}

// NewFloat64Datum creates a Datum holding a float64.
func NewFloat64Datum(f float64) (d Datum) {
	d.SetFloat64(f)
	return d
}

// NewStringDatum creates a Datum holding a string.
func NewStringDatum(s string) (d Datum) {
	d.SetString(s)
	return d
}

// NewBytesDatum creates a Datum holding bytes.
func NewBytesDatum(b []byte) (d Datum) {
	d.SetBytes(b)
	return d
}

// Clone deep-copies the datum.
func (d Datum) Clone() Datum {
	ret := d
	if d.b != nil {
		ret.b = make([]byte, len(d.b))
		copy(ret.b, d.b)
	}
	return ret
}

// CloneRow deep-copies a row of datums.
func CloneRow(row []Datum) []Datum {
	if row == nil {
		return nil
	}
	ret := make([]Datum, len(row))
	for i := range row {
		ret[i] = row[i].Clone()
	}
	return ret
}

// String implements fmt.Stringer interface, for logging and tests only.
func (d Datum) String() string {
	switch d.k {
	case KindNull:
		return "NULL"
	case KindInt64:
		return fmt.Sprintf("%d", d.GetInt64())
	case KindUint64:
		return fmt.Sprintf("%d", d.GetUint64())
	case KindFloat64:
		return fmt.Sprintf("%g", d.GetFloat64())
	case KindString:
		return d.GetString()
	case KindBytes:
		return fmt.Sprintf("%x", d.b)
	}
	return fmt.Sprintf("datum(%d)", int(d.k))
}
