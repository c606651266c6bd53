// Package arrowconv converts arrow-go schemas and records into the columnar
// model so they can be written by the codec.
//
// Converted arrays alias the arrow buffers. Keep the source record retained
// until the converted batch has been encoded.
package arrowconv

import (
	"encoding/binary"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ssargent/colstream/pkg/codec"
	"github.com/ssargent/colstream/pkg/columnar"
)

// Converter converts records that share one arrow schema
type Converter struct {
	source *arrow.Schema
	schema *columnar.Schema
}

// NewConverter converts s once. Dictionary ids are assigned depth-first in
// field order starting at zero.
func NewConverter(s *arrow.Schema) (*Converter, error) {
	schema, err := Schema(s)
	if err != nil {
		return nil, err
	}
	return &Converter{source: s, schema: schema}, nil
}

// Schema returns the converted schema
func (c *Converter) Schema() *columnar.Schema {
	return c.schema
}

// Convert converts one record. The record's schema must equal the one the
// converter was built from.
func (c *Converter) Convert(rec arrow.Record) (*columnar.RecordBatch, error) {
	if !rec.Schema().Equal(c.source) {
		return nil, codec.UnsupportedErrorf("record schema differs from stream schema")
	}
	columns := make([]*columnar.ArrayData, rec.NumCols())
	for i, col := range rec.Columns() {
		f := c.schema.Field(i)
		a, err := convertData(f.Name, f.Type, col.Data())
		if err != nil {
			return nil, err
		}
		columns[i] = a
	}
	return columnar.NewRecordBatch(c.schema, rec.NumRows(), columns)
}

// Schema converts an arrow-go schema
func Schema(s *arrow.Schema) (*columnar.Schema, error) {
	var nextID int64
	fields := make([]columnar.Field, s.NumFields())
	for i, f := range s.Fields() {
		cf, err := convertField(f, f.Name, &nextID)
		if err != nil {
			return nil, err
		}
		fields[i] = cf
	}
	return columnar.NewSchema(fields, keyValues(s.Metadata())...)
}

func keyValues(md arrow.Metadata) []columnar.KeyValue {
	if md.Len() == 0 {
		return nil
	}
	kvs := make([]columnar.KeyValue, md.Len())
	for i, k := range md.Keys() {
		kvs[i] = columnar.KeyValue{Key: k, Value: md.Values()[i]}
	}
	return kvs
}

func convertField(f arrow.Field, path string, nextID *int64) (columnar.Field, error) {
	out := columnar.Field{
		Name:     f.Name,
		Nullable: f.Nullable,
		Metadata: keyValues(f.Metadata),
	}
	if dt, ok := f.Type.(*arrow.DictionaryType); ok {
		index, err := intType(dt.IndexType)
		if err != nil {
			return out, codec.UnsupportedErrorf("%s: dictionary index %s", path, dt.IndexType)
		}
		out.DictID = *nextID
		*nextID++
		value, err := convertType(dt.ValueType, path, nextID)
		if err != nil {
			return out, err
		}
		out.Type = columnar.DictionaryType{Index: index, Value: value, Ordered: dt.Ordered}
		return out, nil
	}
	t, err := convertType(f.Type, path, nextID)
	if err != nil {
		return out, err
	}
	out.Type = t
	return out, nil
}

func convertType(t arrow.DataType, path string, nextID *int64) (columnar.DataType, error) {
	switch t.ID() {
	case arrow.NULL:
		return columnar.Null, nil
	case arrow.BOOL:
		return columnar.Boolean, nil
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return intType(t)
	case arrow.FLOAT16:
		return columnar.Float16, nil
	case arrow.FLOAT32:
		return columnar.Float32, nil
	case arrow.FLOAT64:
		return columnar.Float64, nil
	case arrow.BINARY:
		return columnar.Binary, nil
	case arrow.STRING:
		return columnar.String, nil
	case arrow.LIST:
		elem, err := convertField(t.(*arrow.ListType).ElemField(), path+".item", nextID)
		if err != nil {
			return nil, err
		}
		return columnar.ListType{Elem: elem}, nil
	case arrow.STRUCT:
		st := t.(*arrow.StructType)
		fields := make([]columnar.Field, st.NumFields())
		for i, f := range st.Fields() {
			cf, err := convertField(f, path+"."+f.Name, nextID)
			if err != nil {
				return nil, err
			}
			fields[i] = cf
		}
		return columnar.StructType{Fields: fields}, nil
	case arrow.DICTIONARY:
		return nil, codec.UnsupportedErrorf("%s: dictionary values may not be dictionary encoded", path)
	}
	return nil, codec.UnsupportedErrorf("%s: type %s", path, t)
}

func intType(t arrow.DataType) (columnar.IntType, error) {
	switch t.ID() {
	case arrow.INT8:
		return columnar.IntType{BitWidth: 8, Signed: true}, nil
	case arrow.INT16:
		return columnar.IntType{BitWidth: 16, Signed: true}, nil
	case arrow.INT32:
		return columnar.IntType{BitWidth: 32, Signed: true}, nil
	case arrow.INT64:
		return columnar.IntType{BitWidth: 64, Signed: true}, nil
	case arrow.UINT8:
		return columnar.IntType{BitWidth: 8}, nil
	case arrow.UINT16:
		return columnar.IntType{BitWidth: 16}, nil
	case arrow.UINT32:
		return columnar.IntType{BitWidth: 32}, nil
	case arrow.UINT64:
		return columnar.IntType{BitWidth: 64}, nil
	}
	return columnar.IntType{}, codec.UnsupportedErrorf("type %s is not an integer", t)
}

// convertData converts one array of columnar type t. Buffers are trimmed to
// the exact size the columnar model expects for the array length.
func convertData(path string, t columnar.DataType, d arrow.ArrayData) (*columnar.ArrayData, error) {
	if d.Offset() != 0 {
		return nil, codec.UnsupportedErrorf("%s: sliced array with offset %d", path, d.Offset())
	}
	n := int64(d.Len())
	if t.ID() == columnar.NULL {
		return columnar.NewNullArray(n), nil
	}

	bufs := d.Buffers()
	out := &columnar.ArrayData{
		Type:      t,
		Length:    n,
		NullCount: int64(d.NullN()),
	}
	if out.NullCount > 0 {
		out.Validity = trim(bufs[0], columnar.BytesForBits(n))
	}

	switch t := t.(type) {
	case columnar.BooleanType:
		out.Buffers = [][]byte{trim(bufs[1], columnar.BytesForBits(n))}
	case columnar.IntType:
		out.Buffers = [][]byte{trim(bufs[1], n*int64(t.ByteWidth()))}
	case columnar.FloatType:
		out.Buffers = [][]byte{trim(bufs[1], n*int64(t.ByteWidth()))}
	case columnar.BinaryType, columnar.StringType:
		offsets := trimOffsets(bufs[1], n)
		out.Buffers = [][]byte{offsets, trim(bufs[2], lastOffset(offsets, n))}
	case columnar.ListType:
		out.Buffers = [][]byte{trimOffsets(bufs[1], n)}
		child, err := convertData(path+"."+t.Elem.Name, t.Elem.Type, d.Children()[0])
		if err != nil {
			return nil, err
		}
		out.Children = []*columnar.ArrayData{child}
	case columnar.StructType:
		out.Buffers = [][]byte{}
		out.Children = make([]*columnar.ArrayData, len(t.Fields))
		for i, f := range t.Fields {
			child, err := convertData(path+"."+f.Name, f.Type, d.Children()[i])
			if err != nil {
				return nil, err
			}
			out.Children[i] = child
		}
	case columnar.DictionaryType:
		out.Buffers = [][]byte{trim(bufs[1], n*int64(t.Index.ByteWidth()))}
		values, err := convertData(path+"<dict>", t.Value, d.Dictionary())
		if err != nil {
			return nil, err
		}
		out.Dictionary = values
	}
	return out, nil
}

func trim(b *memory.Buffer, n int64) []byte {
	if b == nil || n == 0 {
		return nil
	}
	data := b.Bytes()
	if int64(len(data)) > n {
		data = data[:n]
	}
	return data
}

func trimOffsets(b *memory.Buffer, n int64) []byte {
	if n == 0 && (b == nil || b.Len() == 0) {
		return nil
	}
	return trim(b, (n+1)*4)
}

func lastOffset(offsets []byte, n int64) int64 {
	if int64(len(offsets)) < (n+1)*4 {
		return 0
	}
	return int64(int32(binary.LittleEndian.Uint32(offsets[n*4:])))
}
