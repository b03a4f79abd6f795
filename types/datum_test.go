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
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDatumAccessors(t *testing.T) {
	var d Datum
	require.True(t, d.IsNull())

	d.SetInt64(-7)
	require.Equal(t, KindInt64, d.Kind())
	require.Equal(t, int64(-7), d.GetInt64())

	d.SetUint64(math.MaxUint64)
	require.Equal(t, KindUint64, d.Kind())
	require.Equal(t, uint64(math.MaxUint64), d.GetUint64())

	d.SetFloat64(3.25)
	require.Equal(t, KindFloat64, d.Kind())
	require.Equal(t, 3.25, d.GetFloat64())

	d.SetString("abc")
	require.Equal(t, KindString, d.Kind())
	require.Equal(t, "abc", d.GetString())

	d.SetNull()
	require.True(t, d.IsNull())
	require.Nil(t, d.GetBytes())
}

func TestNewDatum(t *testing.T) {
	tests := []struct {
		in   interface{}
		kind Kind
	}{
		{nil, KindNull},
		{true, KindInt64},
		{42, KindInt64},
		{int64(-1), KindInt64},
		{uint64(1), KindUint64},
		{1.5, KindFloat64},
		{"x", KindString},
		{[]byte{0x01}, KindBytes},
	}
	for _, tt := range tests {
		d := NewDatum(tt.in)
		require.Equal(t, tt.kind, d.Kind(), "NewDatum(%v)", tt.in)
	}
	require.Panics(t, func() { NewDatum(struct{}{}) })
}

func TestDatumClone(t *testing.T) {
	d := NewBytesDatum([]byte{1, 2, 3})
	c := d.Clone()
	c.GetBytes()[0] = 9
	require.Equal(t, []byte{1, 2, 3}, d.GetBytes())

	row := []Datum{NewIntDatum(1), NewStringDatum("a")}
	cloned := CloneRow(row)
	cloned[1].SetString("b")
	require.Equal(t, "a", row[1].GetString())
	require.Nil(t, CloneRow(nil))
}

func TestDatumCompare(t *testing.T) {
	null := Datum{}
	tests := []struct {
		lhs Datum
		rhs Datum
		ret int
	}{
		{null, null, 0},
		{null, NewIntDatum(math.MinInt64), -1},
		{NewIntDatum(0), null, 1},
		{NewIntDatum(1), NewIntDatum(2), -1},
		{NewIntDatum(2), NewIntDatum(2), 0},
		{NewIntDatum(-1), NewUintDatum(0), -1},
		{NewUintDatum(math.MaxUint64), NewIntDatum(math.MaxInt64), 1},
		{NewIntDatum(3), NewFloat64Datum(2.5), 1},
		{NewFloat64Datum(1.5), NewFloat64Datum(1.5), 0},
		{NewStringDatum("abc"), NewStringDatum("abd"), -1},
		{NewStringDatum("abc"), NewBytesDatum([]byte("abc")), 0},
	}
	for _, tt := range tests {
		cmp, err := tt.lhs.Compare(tt.rhs)
		require.NoError(t, err, "%v vs %v", tt.lhs, tt.rhs)
		require.Equal(t, tt.ret, cmp, "%v vs %v", tt.lhs, tt.rhs)
		rev, err := tt.rhs.Compare(tt.lhs)
		require.NoError(t, err)
		require.Equal(t, -tt.ret, rev, "%v vs %v reversed", tt.rhs, tt.lhs)
	}
}

func TestDatumCompareIncompatible(t *testing.T) {
	_, err := NewIntDatum(1).Compare(NewStringDatum("1"))
	require.ErrorIs(t, err, ErrIncompatibleTypes)
}

func TestEqualDatums(t *testing.T) {
	null := Datum{}
	tests := []struct {
		a     []Datum
		b     []Datum
		equal bool
	}{
		{nil, nil, true},
		{[]Datum{null}, []Datum{null}, true},
		{[]Datum{NewIntDatum(1)}, []Datum{NewIntDatum(1)}, true},
		{[]Datum{NewIntDatum(1)}, []Datum{NewIntDatum(2)}, false},
		{[]Datum{null}, []Datum{NewIntDatum(0)}, false},
		{[]Datum{NewIntDatum(1)}, []Datum{NewIntDatum(1), NewIntDatum(2)}, false},
		{[]Datum{NewIntDatum(1), null}, []Datum{NewIntDatum(1), null}, true},
	}
	for _, tt := range tests {
		got, err := EqualDatums(tt.a, tt.b)
		require.NoError(t, err)
		require.Equal(t, tt.equal, got, "%v vs %v", tt.a, tt.b)
	}
}
