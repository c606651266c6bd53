package columnar

import (
	"bytes"
	"encoding/binary"
	"math"
)

// MaxLength is the largest array length the stream format can describe
const MaxLength = math.MaxInt32

// ArrayData is the physical layout of one column, possibly nested.
//
// Validity is an LSB-ordered bitmap with 1 meaning valid; nil means the
// array has no nulls. Buffers holds the value buffers for the type (see
// NumBuffers). Children holds child arrays of list and struct types. For
// dictionary types Buffers holds only the indices and Dictionary holds the
// values, which are transmitted separately from the batch.
//
// The encoder reads ArrayData without copying it; callers must not mutate
// the buffers while a batch is being encoded.
type ArrayData struct {
	Type       DataType
	Length     int64
	NullCount  int64
	Validity   []byte
	Buffers    [][]byte
	Children   []*ArrayData
	Dictionary *ArrayData
}

// NumBuffers returns the number of value buffers (excluding validity) that
// an array of type t carries.
func NumBuffers(t DataType) int {
	switch t.ID() {
	case NULL, STRUCT:
		return 0
	case BINARY, STRING:
		return 2
	default:
		return 1
	}
}

// IsValid reports whether row i is non-null
func (a *ArrayData) IsValid(i int64) bool {
	if a.Type.ID() == NULL {
		return false
	}
	if a.Validity == nil {
		return true
	}
	return BitIsSet(a.Validity, i)
}

// Validate checks that the declared lengths, null count and buffers are
// consistent with each other and with the type, recursively.
func (a *ArrayData) Validate() error {
	return a.validate("")
}

func (a *ArrayData) validate(path string) error {
	if a == nil {
		return validationErrf(path, "missing array")
	}
	if a.Type == nil {
		return validationErrf(path, "missing type")
	}
	if a.Length < 0 || a.NullCount < 0 {
		return validationErrf(path, "negative length %d or null count %d", a.Length, a.NullCount)
	}
	if a.Length > MaxLength {
		return validationErrf(path, "length %d exceeds %d", a.Length, MaxLength)
	}
	if a.NullCount > a.Length {
		return validationErrf(path, "null count %d exceeds length %d", a.NullCount, a.Length)
	}
	if n := NumBuffers(a.Type); len(a.Buffers) != n {
		return validationErrf(path, "%s array has %d buffers, want %d", a.Type, len(a.Buffers), n)
	}

	if a.Type.ID() == NULL {
		if a.Validity != nil || len(a.Children) != 0 {
			return validationErrf(path, "null array carries buffers or children")
		}
		return nil
	}

	if a.Validity == nil {
		if a.NullCount != 0 {
			return validationErrf(path, "null count %d without a validity bitmap", a.NullCount)
		}
	} else {
		if int64(len(a.Validity)) < BytesForBits(a.Length) {
			return validationErrf(path, "validity bitmap has %d bytes, need %d", len(a.Validity), BytesForBits(a.Length))
		}
		if nulls := CountUnset(a.Validity, a.Length); nulls != a.NullCount {
			return validationErrf(path, "validity bitmap has %d nulls, null count says %d", nulls, a.NullCount)
		}
	}

	switch t := a.Type.(type) {
	case BooleanType:
		if int64(len(a.Buffers[0])) < BytesForBits(a.Length) {
			return validationErrf(path, "bool values have %d bytes, need %d", len(a.Buffers[0]), BytesForBits(a.Length))
		}
	case IntType, FloatType:
		w, _ := FixedWidth(t)
		if need := a.Length * int64(w); int64(len(a.Buffers[0])) < need {
			return validationErrf(path, "%s values have %d bytes, need %d", t, len(a.Buffers[0]), need)
		}
	case BinaryType, StringType:
		end, err := checkOffsets(path, a.Buffers[0], a.Length)
		if err != nil {
			return err
		}
		if int64(len(a.Buffers[1])) < end {
			return validationErrf(path, "data buffer has %d bytes, offsets reach %d", len(a.Buffers[1]), end)
		}
	case ListType:
		end, err := checkOffsets(path, a.Buffers[0], a.Length)
		if err != nil {
			return err
		}
		if len(a.Children) != 1 {
			return validationErrf(path, "list array has %d children, want 1", len(a.Children))
		}
		child := a.Children[0]
		cpath := path + "." + t.Elem.Name
		if child == nil || !TypeEqual(child.Type, t.Elem.Type) {
			return validationErrf(cpath, "child type does not match %s", t.Elem.Type)
		}
		if child.Length < end {
			return validationErrf(cpath, "child has %d values, offsets reach %d", child.Length, end)
		}
		return child.validate(cpath)
	case StructType:
		if len(a.Children) != len(t.Fields) {
			return validationErrf(path, "struct array has %d children, want %d", len(a.Children), len(t.Fields))
		}
		for i, f := range t.Fields {
			child := a.Children[i]
			cpath := path + "." + f.Name
			if child == nil || !TypeEqual(child.Type, f.Type) {
				return validationErrf(cpath, "child type does not match %s", f.Type)
			}
			if child.Length != a.Length {
				return validationErrf(cpath, "child length %d differs from struct length %d", child.Length, a.Length)
			}
			if err := child.validate(cpath); err != nil {
				return err
			}
		}
	case DictionaryType:
		if need := a.Length * int64(t.Index.ByteWidth()); int64(len(a.Buffers[0])) < need {
			return validationErrf(path, "indices have %d bytes, need %d", len(a.Buffers[0]), need)
		}
		if len(a.Children) != 0 {
			return validationErrf(path, "dictionary array carries children")
		}
		if a.Dictionary == nil {
			return validationErrf(path, "dictionary array has no values")
		}
		if !TypeEqual(a.Dictionary.Type, t.Value) {
			return validationErrf(path, "dictionary values are %s, want %s", a.Dictionary.Type, t.Value)
		}
		return a.Dictionary.validate(path + "<dict>")
	}
	return nil
}

func checkOffsets(path string, offsets []byte, length int64) (int64, error) {
	if length == 0 && len(offsets) == 0 {
		return 0, nil
	}
	if need := (length + 1) * 4; int64(len(offsets)) < need {
		return 0, validationErrf(path, "offsets have %d bytes, need %d", len(offsets), need)
	}
	start := int32(binary.LittleEndian.Uint32(offsets))
	end := int32(binary.LittleEndian.Uint32(offsets[length*4:]))
	if start < 0 || end < start {
		return 0, validationErrf(path, "invalid offsets range [%d, %d]", start, end)
	}
	return int64(end), nil
}

// Equal reports whether two arrays hold byte-identical data. Validity is
// compared logically, so a nil bitmap equals an all-valid one.
func (a *ArrayData) Equal(b *ArrayData) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if !TypeEqual(a.Type, b.Type) || a.Length != b.Length || a.NullCount != b.NullCount {
		return false
	}
	if a.NullCount > 0 {
		for i := int64(0); i < a.Length; i++ {
			if a.IsValid(i) != b.IsValid(i) {
				return false
			}
		}
	}
	if len(a.Buffers) != len(b.Buffers) || len(a.Children) != len(b.Children) {
		return false
	}
	for i := range a.Buffers {
		if !bytes.Equal(a.Buffers[i], b.Buffers[i]) {
			return false
		}
	}
	for i := range a.Children {
		if !a.Children[i].Equal(b.Children[i]) {
			return false
		}
	}
	if a.Dictionary != nil || b.Dictionary != nil {
		return a.Dictionary.Equal(b.Dictionary)
	}
	return true
}

// Clone returns a deep copy that shares no memory with a
func (a *ArrayData) Clone() *ArrayData {
	if a == nil {
		return nil
	}
	c := &ArrayData{
		Type:      a.Type,
		Length:    a.Length,
		NullCount: a.NullCount,
		Validity:  cloneBytes(a.Validity),
		Buffers:   make([][]byte, len(a.Buffers)),
	}
	for i, b := range a.Buffers {
		c.Buffers[i] = cloneBytes(b)
	}
	if a.Children != nil {
		c.Children = make([]*ArrayData, len(a.Children))
		for i, child := range a.Children {
			c.Children[i] = child.Clone()
		}
	}
	c.Dictionary = a.Dictionary.Clone()
	return c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
