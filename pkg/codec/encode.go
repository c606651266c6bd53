package codec

import (
	"bytes"
	"io"

	"github.com/ssargent/colstream/pkg/columnar"
)

// Encode serializes batches into one stream and returns it. The schema is
// taken from the first batch; with no batches the result is empty.
func Encode(batches []*columnar.RecordBatch, opts ...Option) ([]byte, error) {
	if len(batches) == 0 {
		return []byte{}, nil
	}
	return EncodeWithSchema(batches[0].Schema(), batches, opts...)
}

// EncodeWithSchema serializes batches under schema. With no batches the
// result is the schema message followed by the end-of-stream marker.
func EncodeWithSchema(schema *columnar.Schema, batches []*columnar.RecordBatch, opts ...Option) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeTo(&buf, schema, batches, opts...); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeTo writes a complete stream to w. On error w holds a partial stream
// that must be discarded.
func EncodeTo(w io.Writer, schema *columnar.Schema, batches []*columnar.RecordBatch, opts ...Option) error {
	sw := NewStreamWriter(w, schema, opts...)
	for _, batch := range batches {
		if err := sw.Write(batch); err != nil {
			return err
		}
	}
	return sw.Close()
}
