package columnar

import (
	"fmt"
	"strings"
)

// TypeID identifies the logical variant of a DataType
type TypeID int

const (
	NULL TypeID = iota
	BOOL
	INT
	FLOAT
	BINARY
	STRING
	LIST
	STRUCT
	DICTIONARY
)

func (id TypeID) String() string {
	switch id {
	case NULL:
		return "null"
	case BOOL:
		return "bool"
	case INT:
		return "int"
	case FLOAT:
		return "float"
	case BINARY:
		return "binary"
	case STRING:
		return "utf8"
	case LIST:
		return "list"
	case STRUCT:
		return "struct"
	case DICTIONARY:
		return "dictionary"
	}
	return fmt.Sprintf("TypeID(%d)", int(id))
}

// DataType is the logical type of a column. Nested types own their children
// by value, so a type tree never contains cycles.
type DataType interface {
	ID() TypeID
	String() string
}

// NullType is a column where every value is null. It has no physical buffers.
type NullType struct{}

func (NullType) ID() TypeID     { return NULL }
func (NullType) String() string { return "null" }

// BooleanType stores one bit per value
type BooleanType struct{}

func (BooleanType) ID() TypeID     { return BOOL }
func (BooleanType) String() string { return "bool" }

// IntType is a fixed width signed or unsigned integer
type IntType struct {
	BitWidth int
	Signed   bool
}

func (IntType) ID() TypeID { return INT }

func (t IntType) String() string {
	if t.Signed {
		return fmt.Sprintf("int%d", t.BitWidth)
	}
	return fmt.Sprintf("uint%d", t.BitWidth)
}

// ByteWidth returns the size of one value in bytes
func (t IntType) ByteWidth() int { return t.BitWidth / 8 }

// Precision of a floating point column
type Precision int16

const (
	Half Precision = iota
	Single
	Double
)

// FloatType is an IEEE 754 floating point number
type FloatType struct {
	Precision Precision
}

func (FloatType) ID() TypeID { return FLOAT }

func (t FloatType) String() string {
	switch t.Precision {
	case Half:
		return "float16"
	case Single:
		return "float32"
	default:
		return "float64"
	}
}

// ByteWidth returns the size of one value in bytes
func (t FloatType) ByteWidth() int {
	switch t.Precision {
	case Half:
		return 2
	case Single:
		return 4
	default:
		return 8
	}
}

// BinaryType is variable length bytes with int32 offsets
type BinaryType struct{}

func (BinaryType) ID() TypeID     { return BINARY }
func (BinaryType) String() string { return "binary" }

// StringType is variable length UTF-8 with int32 offsets
type StringType struct{}

func (StringType) ID() TypeID     { return STRING }
func (StringType) String() string { return "utf8" }

// ListType is a variable length list of Elem values with int32 offsets
type ListType struct {
	Elem Field
}

func (ListType) ID() TypeID { return LIST }

func (t ListType) String() string {
	return fmt.Sprintf("list<%s: %s>", t.Elem.Name, t.Elem.Type)
}

// StructType groups named child columns of equal length
type StructType struct {
	Fields []Field
}

func (StructType) ID() TypeID { return STRUCT }

func (t StructType) String() string {
	var b strings.Builder
	b.WriteString("struct<")
	for i, f := range t.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s: %s", f.Name, f.Type)
	}
	b.WriteString(">")
	return b.String()
}

// DictionaryType stores Index integers pointing into a separately
// transmitted array of Value values.
type DictionaryType struct {
	Index   IntType
	Value   DataType
	Ordered bool
}

func (DictionaryType) ID() TypeID { return DICTIONARY }

func (t DictionaryType) String() string {
	return fmt.Sprintf("dictionary<values=%s, indices=%s, ordered=%t>", t.Value, t.Index, t.Ordered)
}

// Common type instances
var (
	Null    DataType = NullType{}
	Boolean DataType = BooleanType{}
	Int8    DataType = IntType{BitWidth: 8, Signed: true}
	Int16   DataType = IntType{BitWidth: 16, Signed: true}
	Int32   DataType = IntType{BitWidth: 32, Signed: true}
	Int64   DataType = IntType{BitWidth: 64, Signed: true}
	Uint8   DataType = IntType{BitWidth: 8}
	Uint16  DataType = IntType{BitWidth: 16}
	Uint32  DataType = IntType{BitWidth: 32}
	Uint64  DataType = IntType{BitWidth: 64}
	Float16 DataType = FloatType{Precision: Half}
	Float32 DataType = FloatType{Precision: Single}
	Float64 DataType = FloatType{Precision: Double}
	Binary  DataType = BinaryType{}
	String  DataType = StringType{}
)

// ListOf returns a list type whose nullable element field is named "item"
func ListOf(elem DataType) ListType {
	return ListType{Elem: Field{Name: "item", Type: elem, Nullable: true}}
}

// StructOf returns a struct type over the given fields
func StructOf(fields ...Field) StructType {
	return StructType{Fields: fields}
}

// DictionaryOf returns a dictionary type with the given index and value types
func DictionaryOf(index IntType, value DataType) DictionaryType {
	return DictionaryType{Index: index, Value: value}
}

// FixedWidth reports the byte width of one value for fixed width
// primitive types.
func FixedWidth(t DataType) (int, bool) {
	switch t := t.(type) {
	case IntType:
		return t.ByteWidth(), true
	case FloatType:
		return t.ByteWidth(), true
	}
	return 0, false
}

// TypeEqual reports whether two types are structurally identical, including
// child field names, nullability and dictionary ids.
func TypeEqual(a, b DataType) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.ID() != b.ID() {
		return false
	}
	switch a := a.(type) {
	case IntType:
		return a == b.(IntType)
	case FloatType:
		return a == b.(FloatType)
	case ListType:
		return fieldEqual(a.Elem, b.(ListType).Elem)
	case StructType:
		bs := b.(StructType)
		if len(a.Fields) != len(bs.Fields) {
			return false
		}
		for i := range a.Fields {
			if !fieldEqual(a.Fields[i], bs.Fields[i]) {
				return false
			}
		}
		return true
	case DictionaryType:
		bd := b.(DictionaryType)
		return a.Index == bd.Index && a.Ordered == bd.Ordered && TypeEqual(a.Value, bd.Value)
	}
	return true
}

func fieldEqual(a, b Field) bool {
	return a.Name == b.Name && a.Nullable == b.Nullable && a.DictID == b.DictID && TypeEqual(a.Type, b.Type)
}

func isValidIntWidth(w int) bool {
	return w == 8 || w == 16 || w == 32 || w == 64
}
