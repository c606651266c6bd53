package codec

// Alignment is the byte boundary every buffer, metadata block and body is
// padded to.
const Alignment = 8

// FieldNode is the per-array entry of a record batch header
type FieldNode struct {
	Length    int64
	NullCount int64
}

// Buffer locates one physical buffer inside a message body. Offset is
// relative to the start of the body and Length includes padding.
type Buffer struct {
	Offset int64
	Length int64
}

var zeroPad [Alignment]byte

func paddedLen(n int64) int64 {
	return (n + Alignment - 1) &^ (Alignment - 1)
}

// bodyWriter accumulates a message body as a list of segments referencing
// the caller's buffers, so column data is copied only once, into the sink.
// Each append is followed by zero padding up to the alignment.
type bodyWriter struct {
	segs [][]byte
	size int64
}

func (w *bodyWriter) append(b []byte) Buffer {
	off := w.size
	n := int64(len(b))
	if n > 0 {
		w.segs = append(w.segs, b)
	}
	pad := paddedLen(n) - n
	if pad > 0 {
		w.segs = append(w.segs, zeroPad[:pad])
	}
	w.size += n + pad
	return Buffer{Offset: off, Length: n + pad}
}
