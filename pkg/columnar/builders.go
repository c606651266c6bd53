package columnar

import (
	"encoding/binary"
	"fmt"
	"math"
)

// The constructors below take the values plus an optional validity slice
// (nil means every row is valid). Values at invalid positions are still
// stored and should be zero. They panic if valid and values differ in
// length, like the arrow builders do on misuse.

func checkValid(n int, valid []bool) {
	if valid != nil && len(valid) != n {
		panic(fmt.Sprintf("columnar: %d validity entries for %d values", len(valid), n))
	}
}

func fixed[T any](t DataType, values []T, valid []bool, width int, put func([]byte, T) []byte) *ArrayData {
	checkValid(len(values), valid)
	buf := make([]byte, 0, len(values)*width)
	for _, v := range values {
		buf = put(buf, v)
	}
	bitmap, nulls := bitmapFromBools(valid)
	return &ArrayData{
		Type:      t,
		Length:    int64(len(values)),
		NullCount: nulls,
		Validity:  bitmap,
		Buffers:   [][]byte{buf},
	}
}

var le = binary.LittleEndian

// NewNullArray returns an array of n nulls
func NewNullArray(n int64) *ArrayData {
	return &ArrayData{Type: Null, Length: n, NullCount: n, Buffers: [][]byte{}}
}

// NewBooleanArray returns a bit-packed boolean array
func NewBooleanArray(values []bool, valid []bool) *ArrayData {
	checkValid(len(values), valid)
	n := int64(len(values))
	buf := make([]byte, BytesForBits(n))
	for i, v := range values {
		if v {
			SetBit(buf, int64(i))
		}
	}
	bitmap, nulls := bitmapFromBools(valid)
	return &ArrayData{Type: Boolean, Length: n, NullCount: nulls, Validity: bitmap, Buffers: [][]byte{buf}}
}

func NewInt8Array(values []int8, valid []bool) *ArrayData {
	return fixed(Int8, values, valid, 1, func(b []byte, v int8) []byte { return append(b, byte(v)) })
}

func NewInt16Array(values []int16, valid []bool) *ArrayData {
	return fixed(Int16, values, valid, 2, func(b []byte, v int16) []byte { return le.AppendUint16(b, uint16(v)) })
}

func NewInt32Array(values []int32, valid []bool) *ArrayData {
	return fixed(Int32, values, valid, 4, func(b []byte, v int32) []byte { return le.AppendUint32(b, uint32(v)) })
}

func NewInt64Array(values []int64, valid []bool) *ArrayData {
	return fixed(Int64, values, valid, 8, func(b []byte, v int64) []byte { return le.AppendUint64(b, uint64(v)) })
}

func NewUint8Array(values []uint8, valid []bool) *ArrayData {
	return fixed(Uint8, values, valid, 1, func(b []byte, v uint8) []byte { return append(b, v) })
}

func NewUint16Array(values []uint16, valid []bool) *ArrayData {
	return fixed(Uint16, values, valid, 2, le.AppendUint16)
}

func NewUint32Array(values []uint32, valid []bool) *ArrayData {
	return fixed(Uint32, values, valid, 4, le.AppendUint32)
}

func NewUint64Array(values []uint64, valid []bool) *ArrayData {
	return fixed(Uint64, values, valid, 8, le.AppendUint64)
}

func NewFloat32Array(values []float32, valid []bool) *ArrayData {
	return fixed(Float32, values, valid, 4, func(b []byte, v float32) []byte { return le.AppendUint32(b, math.Float32bits(v)) })
}

func NewFloat64Array(values []float64, valid []bool) *ArrayData {
	return fixed(Float64, values, valid, 8, func(b []byte, v float64) []byte { return le.AppendUint64(b, math.Float64bits(v)) })
}

// NewStringArray returns a utf8 array with int32 offsets
func NewStringArray(values []string, valid []bool) *ArrayData {
	checkValid(len(values), valid)
	offsets := make([]byte, 0, (len(values)+1)*4)
	var data []byte
	offsets = le.AppendUint32(offsets, 0)
	for _, v := range values {
		data = append(data, v...)
		offsets = le.AppendUint32(offsets, uint32(len(data)))
	}
	bitmap, nulls := bitmapFromBools(valid)
	return &ArrayData{
		Type:      String,
		Length:    int64(len(values)),
		NullCount: nulls,
		Validity:  bitmap,
		Buffers:   [][]byte{offsets, data},
	}
}

// NewBinaryArray returns a binary array with int32 offsets
func NewBinaryArray(values [][]byte, valid []bool) *ArrayData {
	checkValid(len(values), valid)
	offsets := make([]byte, 0, (len(values)+1)*4)
	var data []byte
	offsets = le.AppendUint32(offsets, 0)
	for _, v := range values {
		data = append(data, v...)
		offsets = le.AppendUint32(offsets, uint32(len(data)))
	}
	bitmap, nulls := bitmapFromBools(valid)
	return &ArrayData{
		Type:      Binary,
		Length:    int64(len(values)),
		NullCount: nulls,
		Validity:  bitmap,
		Buffers:   [][]byte{offsets, data},
	}
}

// NewListArray returns a list array. offsets has len(valid)+1 entries (or
// one more than the row count when valid is nil) indexing into values.
func NewListArray(elem Field, offsets []int32, valid []bool, values *ArrayData) *ArrayData {
	n := len(offsets) - 1
	if n < 0 {
		n = 0
	}
	checkValid(n, valid)
	buf := make([]byte, 0, len(offsets)*4)
	for _, o := range offsets {
		buf = le.AppendUint32(buf, uint32(o))
	}
	bitmap, nulls := bitmapFromBools(valid)
	return &ArrayData{
		Type:      ListType{Elem: elem},
		Length:    int64(n),
		NullCount: nulls,
		Validity:  bitmap,
		Buffers:   [][]byte{buf},
		Children:  []*ArrayData{values},
	}
}

// NewStructArray returns a struct array over equal length children
func NewStructArray(fields []Field, children []*ArrayData, valid []bool) *ArrayData {
	var n int64
	if len(children) > 0 {
		n = children[0].Length
	} else if valid != nil {
		n = int64(len(valid))
	}
	checkValid(int(n), valid)
	bitmap, nulls := bitmapFromBools(valid)
	return &ArrayData{
		Type:      StructType{Fields: fields},
		Length:    n,
		NullCount: nulls,
		Validity:  bitmap,
		Buffers:   [][]byte{},
		Children:  children,
	}
}

// NewDictionaryArray returns a dictionary encoded array. indices are stored
// with the width of index; dict holds the values.
func NewDictionaryArray(index IntType, indices []int64, valid []bool, dict *ArrayData) *ArrayData {
	checkValid(len(indices), valid)
	buf := make([]byte, 0, len(indices)*index.ByteWidth())
	for _, ix := range indices {
		switch index.BitWidth {
		case 8:
			buf = append(buf, byte(ix))
		case 16:
			buf = le.AppendUint16(buf, uint16(ix))
		case 32:
			buf = le.AppendUint32(buf, uint32(ix))
		default:
			buf = le.AppendUint64(buf, uint64(ix))
		}
	}
	bitmap, nulls := bitmapFromBools(valid)
	return &ArrayData{
		Type:       DictionaryType{Index: index, Value: dict.Type},
		Length:     int64(len(indices)),
		NullCount:  nulls,
		Validity:   bitmap,
		Buffers:    [][]byte{buf},
		Dictionary: dict,
	}
}
