package codec

import (
	flatbuffers "github.com/google/flatbuffers/go"

	"github.com/ssargent/colstream/pkg/columnar"
)

// The tables below follow the Arrow Message.fbs and Schema.fbs layouts.
// Slot numbers are the field positions in those schemas; union fields take
// two slots (type tag, then value).

const metadataVersionV5 int16 = 4

// MessageKind is the header type of a message
type MessageKind byte

const (
	KindSchema          MessageKind = 1
	KindDictionaryBatch MessageKind = 2
	KindRecordBatch     MessageKind = 3
)

func (k MessageKind) String() string {
	switch k {
	case KindSchema:
		return "schema"
	case KindDictionaryBatch:
		return "dictionary_batch"
	case KindRecordBatch:
		return "record_batch"
	}
	return "unknown"
}

// Type union tags
const (
	fbTypeNull          byte = 1
	fbTypeInt           byte = 2
	fbTypeFloatingPoint byte = 3
	fbTypeBinary        byte = 4
	fbTypeUtf8          byte = 5
	fbTypeBool          byte = 6
	fbTypeList          byte = 12
	fbTypeStruct        byte = 13
)

// recordBatchHeader is the RecordBatch table
type recordBatchHeader struct {
	Length  int64
	Nodes   []FieldNode
	Buffers []Buffer
}

// dictionaryBatchHeader is the DictionaryBatch table
type dictionaryBatchHeader struct {
	ID      int64
	Data    recordBatchHeader
	IsDelta bool
}

func encodeSchemaMetadata(s *columnar.Schema) []byte {
	b := flatbuffers.NewBuilder(1024)
	header := buildSchema(b, s)
	return finishMessage(b, KindSchema, header, 0)
}

func encodeRecordBatchMetadata(h recordBatchHeader, bodyLen int64) []byte {
	b := flatbuffers.NewBuilder(256 + 16*(len(h.Nodes)+len(h.Buffers)))
	header := buildRecordBatch(b, h)
	return finishMessage(b, KindRecordBatch, header, bodyLen)
}

func encodeDictionaryBatchMetadata(h dictionaryBatchHeader, bodyLen int64) []byte {
	b := flatbuffers.NewBuilder(256 + 16*(len(h.Data.Nodes)+len(h.Data.Buffers)))
	data := buildRecordBatch(b, h.Data)
	b.StartObject(3)
	b.PrependInt64Slot(0, h.ID, 0)
	b.PrependUOffsetTSlot(1, data, 0)
	b.PrependBoolSlot(2, h.IsDelta, false)
	header := b.EndObject()
	return finishMessage(b, KindDictionaryBatch, header, bodyLen)
}

func finishMessage(b *flatbuffers.Builder, kind MessageKind, header flatbuffers.UOffsetT, bodyLen int64) []byte {
	b.StartObject(5)
	b.PrependInt16Slot(0, metadataVersionV5, 0)
	b.PrependByteSlot(1, byte(kind), 0)
	b.PrependUOffsetTSlot(2, header, 0)
	b.PrependInt64Slot(3, bodyLen, 0)
	msg := b.EndObject()
	b.Finish(msg)
	return b.FinishedBytes()
}

func buildRecordBatch(b *flatbuffers.Builder, h recordBatchHeader) flatbuffers.UOffsetT {
	// struct vectors are written back to front
	b.StartVector(16, len(h.Buffers), 8)
	for i := len(h.Buffers) - 1; i >= 0; i-- {
		b.Prep(8, 16)
		b.PrependInt64(h.Buffers[i].Length)
		b.PrependInt64(h.Buffers[i].Offset)
	}
	buffers := b.EndVector(len(h.Buffers))

	b.StartVector(16, len(h.Nodes), 8)
	for i := len(h.Nodes) - 1; i >= 0; i-- {
		b.Prep(8, 16)
		b.PrependInt64(h.Nodes[i].NullCount)
		b.PrependInt64(h.Nodes[i].Length)
	}
	nodes := b.EndVector(len(h.Nodes))

	b.StartObject(5)
	b.PrependInt64Slot(0, h.Length, 0)
	b.PrependUOffsetTSlot(1, nodes, 0)
	b.PrependUOffsetTSlot(2, buffers, 0)
	return b.EndObject()
}

func buildSchema(b *flatbuffers.Builder, s *columnar.Schema) flatbuffers.UOffsetT {
	fields := buildFieldVector(b, s.Fields())
	meta := buildKeyValues(b, s.Metadata())

	b.StartObject(4)
	b.PrependInt16Slot(0, 0, 0) // little endian
	b.PrependUOffsetTSlot(1, fields, 0)
	if meta != 0 {
		b.PrependUOffsetTSlot(2, meta, 0)
	}
	return b.EndObject()
}

func buildFieldVector(b *flatbuffers.Builder, fields []columnar.Field) flatbuffers.UOffsetT {
	offsets := make([]flatbuffers.UOffsetT, len(fields))
	for i, f := range fields {
		offsets[i] = buildField(b, f)
	}
	return buildOffsetVector(b, offsets)
}

func buildOffsetVector(b *flatbuffers.Builder, offsets []flatbuffers.UOffsetT) flatbuffers.UOffsetT {
	b.StartVector(4, len(offsets), 4)
	for i := len(offsets) - 1; i >= 0; i-- {
		b.PrependUOffsetT(offsets[i])
	}
	return b.EndVector(len(offsets))
}

// buildField writes a Field table. A dictionary field is described by its
// value type plus a DictionaryEncoding carrying the id and index type.
func buildField(b *flatbuffers.Builder, f columnar.Field) flatbuffers.UOffsetT {
	name := b.CreateString(f.Name)

	valueType := f.Type
	var dict flatbuffers.UOffsetT
	if dt, ok := f.Type.(columnar.DictionaryType); ok {
		valueType = dt.Value
		dict = buildDictionaryEncoding(b, f.DictID, dt)
	}
	typeTag, typeOff := buildType(b, valueType)
	children := buildFieldVector(b, columnar.ChildFields(valueType))
	meta := buildKeyValues(b, f.Metadata)

	b.StartObject(7)
	b.PrependUOffsetTSlot(0, name, 0)
	b.PrependBoolSlot(1, f.Nullable, false)
	b.PrependByteSlot(2, typeTag, 0)
	b.PrependUOffsetTSlot(3, typeOff, 0)
	if dict != 0 {
		b.PrependUOffsetTSlot(4, dict, 0)
	}
	b.PrependUOffsetTSlot(5, children, 0)
	if meta != 0 {
		b.PrependUOffsetTSlot(6, meta, 0)
	}
	return b.EndObject()
}

func buildDictionaryEncoding(b *flatbuffers.Builder, id int64, dt columnar.DictionaryType) flatbuffers.UOffsetT {
	index := buildInt(b, dt.Index)
	b.StartObject(4)
	b.PrependInt64Slot(0, id, 0)
	b.PrependUOffsetTSlot(1, index, 0)
	b.PrependBoolSlot(2, dt.Ordered, false)
	return b.EndObject()
}

func buildInt(b *flatbuffers.Builder, t columnar.IntType) flatbuffers.UOffsetT {
	b.StartObject(2)
	b.PrependInt32Slot(0, int32(t.BitWidth), 0)
	b.PrependBoolSlot(1, t.Signed, false)
	return b.EndObject()
}

func buildType(b *flatbuffers.Builder, t columnar.DataType) (byte, flatbuffers.UOffsetT) {
	switch t := t.(type) {
	case columnar.IntType:
		return fbTypeInt, buildInt(b, t)
	case columnar.FloatType:
		b.StartObject(1)
		b.PrependInt16Slot(0, int16(t.Precision), 0)
		return fbTypeFloatingPoint, b.EndObject()
	case columnar.NullType:
		return fbTypeNull, emptyTable(b)
	case columnar.BooleanType:
		return fbTypeBool, emptyTable(b)
	case columnar.BinaryType:
		return fbTypeBinary, emptyTable(b)
	case columnar.StringType:
		return fbTypeUtf8, emptyTable(b)
	case columnar.ListType:
		return fbTypeList, emptyTable(b)
	case columnar.StructType:
		return fbTypeStruct, emptyTable(b)
	}
	// NewSchema rejects dictionaries nested in dictionary values, so every
	// type reaching here is one of the above.
	panic("codec: unexpected type " + t.String())
}

func emptyTable(b *flatbuffers.Builder) flatbuffers.UOffsetT {
	b.StartObject(0)
	return b.EndObject()
}

func buildKeyValues(b *flatbuffers.Builder, kvs []columnar.KeyValue) flatbuffers.UOffsetT {
	if len(kvs) == 0 {
		return 0
	}
	offsets := make([]flatbuffers.UOffsetT, len(kvs))
	for i, kv := range kvs {
		key := b.CreateString(kv.Key)
		value := b.CreateString(kv.Value)
		b.StartObject(2)
		b.PrependUOffsetTSlot(0, key, 0)
		b.PrependUOffsetTSlot(1, value, 0)
		offsets[i] = b.EndObject()
	}
	return buildOffsetVector(b, offsets)
}
