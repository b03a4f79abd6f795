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

package codec

import (
	"encoding/binary"
	"math"

	"github.com/pingcap/errors"

	"github.com/quartzdb/quartz/types"
)

// First byte in the encoded value which specifies the encoding type.
const (
	nilFlag    byte = 0
	bytesFlag  byte = 1
	intFlag    byte = 3
	uintFlag   byte = 4
	floatFlag  byte = 5
	stringFlag byte = 6
)

const signMask uint64 = 0x8000000000000000

// EncodeKey appends the memcomparable encoding of vals to b.
// The encoding preserves the ordering defined by types.Datum.Compare for
// datums of the same kind, and is injective, so encoded keys can be used
// as map keys for group identity.
func EncodeKey(b []byte, vals ...types.Datum) ([]byte, error) {
	for _, val := range vals {
		switch val.Kind() {
		case types.KindNull:
			b = append(b, nilFlag)
		case types.KindInt64:
			b = append(b, intFlag)
			b = EncodeInt(b, val.GetInt64())
		case types.KindUint64:
			b = append(b, uintFlag)
			b = EncodeUint(b, val.GetUint64())
		case types.KindFloat64:
			b = append(b, floatFlag)
			b = EncodeFloat(b, val.GetFloat64())
		case types.KindString:
			b = append(b, stringFlag)
			b = EncodeBytes(b, []byte(val.GetString()))
		case types.KindBytes:
			b = append(b, bytesFlag)
			b = EncodeBytes(b, val.GetBytes())
		default:
			return nil, errors.Errorf("unsupported encode kind %s", val.Kind())
		}
	}
	return b, nil
}

// DecodeKey decodes all datums from the encoded key b.
func DecodeKey(b []byte) ([]types.Datum, error) {
	var (
		vals []types.Datum
		d    types.Datum
		err  error
	)
	for len(b) > 0 {
		b, d, err = DecodeOne(b)
		if err != nil {
			return nil, errors.Trace(err)
		}
		vals = append(vals, d)
	}
	return vals, nil
}

// DecodeOne decodes one datum from b and returns the remaining bytes.
func DecodeOne(b []byte) (remain []byte, d types.Datum, err error) {
	if len(b) < 1 {
		return nil, d, errors.New("invalid encoded key")
	}
	flag := b[0]
	b = b[1:]
	switch flag {
	case nilFlag:
		d.SetNull()
	case intFlag:
		var v int64
		b, v, err = DecodeInt(b)
		d.SetInt64(v)
	case uintFlag:
		var v uint64
		b, v, err = DecodeUint(b)
		d.SetUint64(v)
	case floatFlag:
		var v float64
		b, v, err = DecodeFloat(b)
		d.SetFloat64(v)
	case bytesFlag:
		var v []byte
		b, v, err = DecodeBytes(b)
		d.SetBytes(v)
	case stringFlag:
		var v []byte
		b, v, err = DecodeBytes(b)
		d.SetString(string(v))
	default:
		return nil, d, errors.Errorf("invalid encoded key flag %v", flag)
	}
	if err != nil {
		return nil, d, errors.Trace(err)
	}
	return b, d, nil
}

// EncodeInt appends the encoded value to slice b and returns the appended
// slice. EncodeInt guarantees that the encoded value is in ascending order
// for comparison.
func EncodeInt(b []byte, v int64) []byte {
	var data [8]byte
	u := uint64(v) ^ signMask
	binary.BigEndian.PutUint64(data[:], u)
	return append(b, data[:]...)
}

// DecodeInt decodes the value encoded by EncodeInt before.
func DecodeInt(b []byte) ([]byte, int64, error) {
	if len(b) < 8 {
		return nil, 0, errors.New("insufficient bytes to decode value")
	}
	u := binary.BigEndian.Uint64(b[:8])
	return b[8:], int64(u ^ signMask), nil
}

// EncodeUint appends the encoded value to slice b and returns the appended
// slice.
func EncodeUint(b []byte, v uint64) []byte {
	var data [8]byte
	binary.BigEndian.PutUint64(data[:], v)
	return append(b, data[:]...)
}

// DecodeUint decodes the value encoded by EncodeUint before.
func DecodeUint(b []byte) ([]byte, uint64, error) {
	if len(b) < 8 {
		return nil, 0, errors.New("insufficient bytes to decode value")
	}
	return b[8:], binary.BigEndian.Uint64(b[:8]), nil
}

// EncodeFloat appends the encoded value to slice b and returns the appended
// slice. A float is encoded by flipping its sign bit when non-negative and
// all of its bits when negative, which keeps byte order aligned with the
// numeric order.
func EncodeFloat(b []byte, v float64) []byte {
	u := math.Float64bits(v)
	if v >= 0 {
		u |= signMask
	} else {
		u = ^u
	}
	return EncodeUint(b, u)
}

// DecodeFloat decodes the value encoded by EncodeFloat before.
func DecodeFloat(b []byte) ([]byte, float64, error) {
	b, u, err := DecodeUint(b)
	if err != nil {
		return nil, 0, errors.Trace(err)
	}
	if u&signMask > 0 {
		u &= ^signMask
	} else {
		u = ^u
	}
	return b, math.Float64frombits(u), nil
}

const (
	encGroupSize = 8
	encMarker    = byte(0xFF)
	encPad       = byte(0x0)
)

var pads = make([]byte, encGroupSize)

// EncodeBytes guarantees the encoded value is in ascending order for
// comparison, encoding with the following rule:
//
//	[group1][marker1]...[groupN][markerN]
//	group is 8 bytes slice which is padding with 0.
//	marker is `0xFF - padCount`.
func EncodeBytes(b, data []byte) []byte {
	dLen := len(data)
	reallocSize := (dLen/encGroupSize + 1) * (encGroupSize + 1)
	result := reallocBytes(b, reallocSize)
	for idx := 0; idx <= dLen; idx += encGroupSize {
		remain := dLen - idx
		padCount := 0
		if remain >= encGroupSize {
			result = append(result, data[idx:idx+encGroupSize]...)
		} else {
			padCount = encGroupSize - remain
			result = append(result, data[idx:]...)
			result = append(result, pads[:padCount]...)
		}
		result = append(result, encMarker-byte(padCount))
	}
	return result
}

// DecodeBytes decodes the value encoded by EncodeBytes before and returns
// the remaining bytes and the decoded data.
func DecodeBytes(b []byte) ([]byte, []byte, error) {
	data := make([]byte, 0, len(b))
	for {
		if len(b) < encGroupSize+1 {
			return nil, nil, errors.New("insufficient bytes to decode value")
		}
		groupBytes := b[:encGroupSize+1]
		group := groupBytes[:encGroupSize]
		marker := groupBytes[encGroupSize]
		padCount := encMarker - marker
		if padCount > encGroupSize {
			return nil, nil, errors.Errorf("invalid marker byte, group bytes %q", groupBytes)
		}
		realGroupSize := encGroupSize - padCount
		data = append(data, group[:realGroupSize]...)
		b = b[encGroupSize+1:]
		if padCount != 0 {
			// Check validity of padding bytes.
			for _, v := range group[realGroupSize:] {
				if v != encPad {
					return nil, nil, errors.Errorf("invalid padding byte, group bytes %q", groupBytes)
				}
			}
			break
		}
	}
	return b, data, nil
}

// reallocBytes is like realloc.
func reallocBytes(b []byte, n int) []byte {
	newSize := len(b) + n
	if cap(b) < newSize {
		bs := make([]byte, len(b), newSize)
		copy(bs, b)
		return bs
	}
	return b
}
