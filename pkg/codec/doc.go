// Package codec writes columnar record batches as an Arrow IPC stream.
//
// The codec is a writer only. It turns a schema and an ordered sequence of
// record batches into a self-describing byte stream that any conformant
// Arrow stream reader can parse back into the same data.
//
// # Stream Format
//
// A stream is a sequence of framed messages followed by an end marker:
//
//	[FF FF FF FF][Length(4)][Metadata + padding][Body]
//	...
//	[FF FF FF FF][00 00 00 00]
//
// Fields:
//   - Continuation marker: 0xFFFFFFFF, signals that a message follows
//   - Length: int32 little-endian, size of the padded metadata (never the body)
//   - Metadata: a flatbuffer Message table, zero padded to a multiple of 8
//   - Body: the message's buffers, each zero padded to a multiple of 8
//
// The first message is always the schema (no body). Each record batch is
// preceded by dictionary batches for every dictionary id that is new or
// whose values changed since it was last sent.
//
// # Body Layout
//
// Arrays are flattened depth-first. Every array contributes one field node
// (length, null count). Every array except null arrays contributes a
// validity bitmap, synthesized as all-valid when the array has none, then
// its value buffers. Dictionary arrays contribute only their indices.
// Buffer descriptors record the offset within the body and the padded
// length, so every buffer starts and ends 8-byte aligned.
//
// # Usage
//
// One-shot encoding:
//
//	stream, err := codec.Encode(batches)
//	if err != nil {
//	    return err
//	}
//
// Incremental encoding to any io.Writer:
//
//	w := codec.NewStreamWriter(out, schema, codec.WithLogger(logger))
//	for batch := range batches {
//	    if err := w.Write(batch); err != nil {
//	        return err // out now holds a partial stream
//	    }
//	}
//	return w.Close()
//
// # Error Handling
//
// All failures are *Error values carrying a Kind and the Stage that failed:
//   - EncodingFailure: inconsistent column buffers or counts (metadata stage)
//   - WriteFailure: the sink rejected a write (write stage)
//   - AlignmentViolation: a body was not 8-byte aligned (framing stage)
//   - UnsupportedInput: input the format cannot carry
//
// Use errors.Is with ErrEncoding, ErrWrite, ErrAlignment or ErrUnsupported.
// Nothing is retried; retry by encoding again to a fresh sink.
//
// # Thread Safety
//
// StreamWriter, FrameWriter and DictionaryTracker belong to one stream and
// are not safe for concurrent use. Encode independent streams with
// independent writers.
package codec
