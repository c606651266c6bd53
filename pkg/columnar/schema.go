package columnar

import (
	"fmt"
	"strings"
)

// KeyValue is one entry of custom metadata attached to a schema or field
type KeyValue struct {
	Key   string
	Value string
}

// Field describes one column of a schema
type Field struct {
	Name     string
	Type     DataType
	Nullable bool
	DictID   int64 // only meaningful when Type is a DictionaryType
	Metadata []KeyValue
}

func (f Field) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", f.Name, f.Type)
	if f.Nullable {
		b.WriteString(" (nullable)")
	}
	if _, ok := f.Type.(DictionaryType); ok {
		fmt.Fprintf(&b, " dict_id=%d", f.DictID)
	}
	return b.String()
}

// Schema is the ordered field list shared by every batch of a stream.
// It must not be modified after construction.
type Schema struct {
	fields   []Field
	metadata []KeyValue
}

// NewSchema validates and returns a schema. Dictionary ids must be unique
// across every dictionary-typed field in the tree.
func NewSchema(fields []Field, metadata ...KeyValue) (*Schema, error) {
	seen := make(map[int64]string)
	for i := range fields {
		if err := checkField(fields[i], fields[i].Name, seen); err != nil {
			return nil, err
		}
	}
	return &Schema{
		fields:   append([]Field(nil), fields...),
		metadata: append([]KeyValue(nil), metadata...),
	}, nil
}

// MustSchema is like NewSchema but panics on error
func MustSchema(fields []Field, metadata ...KeyValue) *Schema {
	s, err := NewSchema(fields, metadata...)
	if err != nil {
		panic(err)
	}
	return s
}

func checkField(f Field, path string, seen map[int64]string) error {
	if f.Type == nil {
		return validationErrf(path, "missing type")
	}
	if err := checkPrimitive(f.Type, path); err != nil {
		return err
	}
	if t, ok := f.Type.(DictionaryType); ok {
		if !isValidIntWidth(t.Index.BitWidth) {
			return validationErrf(path, "invalid dictionary index bit width %d", t.Index.BitWidth)
		}
		if other, dup := seen[f.DictID]; dup {
			return validationErrf(path, "dictionary id %d already used by %s", f.DictID, other)
		}
		seen[f.DictID] = path
		if containsDictionary(t.Value) {
			return validationErrf(path, "dictionary values may not be dictionary encoded")
		}
		if err := checkPrimitive(t.Value, path); err != nil {
			return err
		}
		return checkChildren(t.Value, path, seen)
	}
	return checkChildren(f.Type, path, seen)
}

func checkPrimitive(dt DataType, path string) error {
	switch t := dt.(type) {
	case IntType:
		if !isValidIntWidth(t.BitWidth) {
			return validationErrf(path, "invalid integer bit width %d", t.BitWidth)
		}
	case FloatType:
		if t.Precision < Half || t.Precision > Double {
			return validationErrf(path, "invalid floating point precision %d", t.Precision)
		}
	}
	return nil
}

func checkChildren(t DataType, path string, seen map[int64]string) error {
	for _, child := range childFields(t) {
		if err := checkField(child, path+"."+child.Name, seen); err != nil {
			return err
		}
	}
	return nil
}

func containsDictionary(t DataType) bool {
	if t.ID() == DICTIONARY {
		return true
	}
	for _, child := range childFields(t) {
		if containsDictionary(child.Type) {
			return true
		}
	}
	return false
}

// childFields returns the child fields of a nested type, in order
func childFields(t DataType) []Field {
	switch t := t.(type) {
	case ListType:
		return []Field{t.Elem}
	case StructType:
		return t.Fields
	}
	return nil
}

// ChildFields returns the child fields of a nested type. For a dictionary it
// returns the children of the value type.
func ChildFields(t DataType) []Field {
	if d, ok := t.(DictionaryType); ok {
		return childFields(d.Value)
	}
	return childFields(t)
}

// Fields returns the schema fields. The returned slice must not be modified.
func (s *Schema) Fields() []Field { return s.fields }

// Field returns the i-th field
func (s *Schema) Field(i int) Field { return s.fields[i] }

// NumFields returns the number of top-level fields
func (s *Schema) NumFields() int { return len(s.fields) }

// Metadata returns the schema-level custom metadata
func (s *Schema) Metadata() []KeyValue { return s.metadata }

// FieldIndex returns the index of the first field with the given name, or -1
func (s *Schema) FieldIndex(name string) int {
	for i, f := range s.fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Equal reports whether two schemas have identical fields and metadata
func (s *Schema) Equal(o *Schema) bool {
	if s == o {
		return true
	}
	if s == nil || o == nil || len(s.fields) != len(o.fields) || len(s.metadata) != len(o.metadata) {
		return false
	}
	for i := range s.fields {
		if !fieldEqual(s.fields[i], o.fields[i]) {
			return false
		}
	}
	for i := range s.metadata {
		if s.metadata[i] != o.metadata[i] {
			return false
		}
	}
	return true
}

func (s *Schema) String() string {
	var b strings.Builder
	b.WriteString("schema:\n")
	for _, f := range s.fields {
		b.WriteString("  ")
		b.WriteString(f.String())
		b.WriteString("\n")
	}
	return b.String()
}
