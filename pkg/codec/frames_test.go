package codec

import (
	"encoding/binary"
	"testing"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/stretchr/testify/require"
)

// frame is one message as found on the wire
type frame struct {
	offset    int64
	length    int32 // the int32 after the continuation marker
	metadata  []byte
	body      []byte
	kind      MessageKind
	bodyLen   int64
	rowCount  int64
	dictID    int64
	nodes     []FieldNode
	buffers   []Buffer
	eos       bool
	bodyStart int64
}

// walkFrames splits a stream into frames, checking the framing and
// alignment invariants along the way. The last frame is the EOS marker.
func walkFrames(t *testing.T, data []byte) []frame {
	t.Helper()
	var frames []frame
	var off int64
	for {
		require.GreaterOrEqual(t, int64(len(data)), off+8, "truncated prefix at %d", off)
		marker := binary.LittleEndian.Uint32(data[off:])
		require.Equal(t, ContinuationMarker, marker, "missing continuation marker at %d", off)
		length := int32(binary.LittleEndian.Uint32(data[off+4:]))
		if length == 0 {
			frames = append(frames, frame{offset: off, eos: true})
			require.Equal(t, int64(len(data)), off+8, "bytes after end-of-stream marker")
			return frames
		}
		require.Zero(t, (int64(length)+8)%Alignment, "metadata block not aligned at %d", off)
		metaStart := off + 8
		bodyStart := metaStart + int64(length)
		require.Zero(t, bodyStart%Alignment, "body not aligned at %d", off)

		f := frame{offset: off, length: length, bodyStart: bodyStart}
		f.metadata = data[metaStart:bodyStart]
		parseMessage(t, &f)
		require.Zero(t, f.bodyLen%Alignment, "body length %d not aligned", f.bodyLen)
		f.body = data[bodyStart : bodyStart+f.bodyLen]
		frames = append(frames, f)
		off = bodyStart + f.bodyLen
	}
}

// parseMessage reads the Message table the way generated flatbuffer
// accessors do: vtable offset 4+2*slot.
func parseMessage(t *testing.T, f *frame) {
	t.Helper()
	buf := f.metadata
	msg := flatbuffers.Table{Bytes: buf, Pos: flatbuffers.GetUOffsetT(buf)}

	require.Equal(t, metadataVersionV5, getInt16(&msg, 0))
	f.kind = MessageKind(getByte(&msg, 1))
	f.bodyLen = getInt64(&msg, 3)

	var header flatbuffers.Table
	o := flatbuffers.UOffsetT(msg.Offset(vt(2)))
	require.NotZero(t, o, "message without header")
	msg.Union(&header, o)

	switch f.kind {
	case KindRecordBatch:
		readRecordBatch(&header, f)
	case KindDictionaryBatch:
		f.dictID = getInt64(&header, 0)
		var data flatbuffers.Table
		o := flatbuffers.UOffsetT(header.Offset(vt(1)))
		require.NotZero(t, o)
		data.Bytes = header.Bytes
		data.Pos = header.Indirect(o + header.Pos)
		readRecordBatch(&data, f)
	}
}

func readRecordBatch(tbl *flatbuffers.Table, f *frame) {
	f.rowCount = getInt64(tbl, 0)
	f.nodes = nil
	for _, s := range readStructs(tbl, 1) {
		f.nodes = append(f.nodes, FieldNode{Length: s[0], NullCount: s[1]})
	}
	f.buffers = nil
	for _, s := range readStructs(tbl, 2) {
		f.buffers = append(f.buffers, Buffer{Offset: s[0], Length: s[1]})
	}
}

func readStructs(tbl *flatbuffers.Table, slot int) [][2]int64 {
	o := flatbuffers.UOffsetT(tbl.Offset(vt(slot)))
	if o == 0 {
		return nil
	}
	start := tbl.Vector(o)
	n := tbl.VectorLen(o)
	out := make([][2]int64, n)
	for i := 0; i < n; i++ {
		p := start + flatbuffers.UOffsetT(i*16)
		out[i] = [2]int64{tbl.GetInt64(p), tbl.GetInt64(p + 8)}
	}
	return out
}

// schemaFieldNames returns the top-level field names of a schema message
func schemaFieldNames(t *testing.T, f frame) []string {
	t.Helper()
	require.Equal(t, KindSchema, f.kind)
	msg := flatbuffers.Table{Bytes: f.metadata, Pos: flatbuffers.GetUOffsetT(f.metadata)}
	var schema flatbuffers.Table
	msg.Union(&schema, flatbuffers.UOffsetT(msg.Offset(vt(2))))

	o := flatbuffers.UOffsetT(schema.Offset(vt(1)))
	if o == 0 {
		return nil
	}
	start := schema.Vector(o)
	var names []string
	for i := 0; i < schema.VectorLen(o); i++ {
		field := flatbuffers.Table{Bytes: schema.Bytes, Pos: schema.Indirect(start + flatbuffers.UOffsetT(i*4))}
		no := flatbuffers.UOffsetT(field.Offset(vt(0)))
		names = append(names, string(field.ByteVector(no+field.Pos)))
	}
	return names
}

func vt(slot int) flatbuffers.VOffsetT {
	return flatbuffers.VOffsetT(4 + 2*slot)
}

func getInt64(tbl *flatbuffers.Table, slot int) int64 {
	if o := flatbuffers.UOffsetT(tbl.Offset(vt(slot))); o != 0 {
		return tbl.GetInt64(o + tbl.Pos)
	}
	return 0
}

func getInt16(tbl *flatbuffers.Table, slot int) int16 {
	if o := flatbuffers.UOffsetT(tbl.Offset(vt(slot))); o != 0 {
		return tbl.GetInt16(o + tbl.Pos)
	}
	return 0
}

func getByte(tbl *flatbuffers.Table, slot int) byte {
	if o := flatbuffers.UOffsetT(tbl.Offset(vt(slot))); o != 0 {
		return tbl.GetByte(o + tbl.Pos)
	}
	return 0
}

func kinds(frames []frame) []MessageKind {
	var out []MessageKind
	for _, f := range frames {
		if !f.eos {
			out = append(out, f.kind)
		}
	}
	return out
}
