package codec

import (
	"github.com/ssargent/colstream/pkg/columnar"
)

// EncodedMessage is one message ready for framing: flatbuffer metadata plus
// a body made of padded segments. Body segments alias the column buffers.
type EncodedMessage struct {
	Kind     MessageKind
	Metadata []byte
	Body     [][]byte
	BodyLen  int64
}

// EncodeSchema builds the schema message. It has no body.
func EncodeSchema(s *columnar.Schema) EncodedMessage {
	return EncodedMessage{
		Kind:     KindSchema,
		Metadata: encodeSchemaMetadata(s),
	}
}

// EncodeRecordBatch builds the record batch message for batch. Every column
// is validated first; dictionary columns contribute only their indices.
func EncodeRecordBatch(batch *columnar.RecordBatch) (EncodedMessage, error) {
	var f flattener
	for i, col := range batch.Columns() {
		if err := col.Validate(); err != nil {
			return EncodedMessage{}, newErr(EncodingFailure, StageMetadata, err, "column %q", batch.Schema().Field(i).Name)
		}
		f.visit(col)
	}
	h := recordBatchHeader{
		Length:  batch.NumRows(),
		Nodes:   f.nodes,
		Buffers: f.buffers,
	}
	return EncodedMessage{
		Kind:     KindRecordBatch,
		Metadata: encodeRecordBatchMetadata(h, f.body.size),
		Body:     f.body.segs,
		BodyLen:  f.body.size,
	}, nil
}

// EncodeDictionaryBatch builds a dictionary batch message carrying values as
// a single column batch for dictionary id.
func EncodeDictionaryBatch(id int64, values *columnar.ArrayData) (EncodedMessage, error) {
	if err := values.Validate(); err != nil {
		return EncodedMessage{}, newErr(EncodingFailure, StageMetadata, err, "dictionary %d", id)
	}
	var f flattener
	f.visit(values)
	h := dictionaryBatchHeader{
		ID: id,
		Data: recordBatchHeader{
			Length:  values.Length,
			Nodes:   f.nodes,
			Buffers: f.buffers,
		},
	}
	return EncodedMessage{
		Kind:     KindDictionaryBatch,
		Metadata: encodeDictionaryBatchMetadata(h, f.body.size),
		Body:     f.body.segs,
		BodyLen:  f.body.size,
	}, nil
}
