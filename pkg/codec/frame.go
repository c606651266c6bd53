package codec

import (
	"encoding/binary"
	"io"
	"math"
)

// ContinuationMarker precedes every message and the end-of-stream marker
const ContinuationMarker uint32 = 0xFFFFFFFF

// prefixSize is the continuation marker plus the int32 length
const prefixSize = 8

// Block records where a framed message landed in the output
type Block struct {
	Offset      int64 // stream offset of the continuation marker
	MetadataLen int64 // prefix + metadata + padding
	BodyLen     int64
}

type flusher interface {
	Flush() error
}

// FrameWriter writes messages to a sink using the stream framing:
//
//	[FF FF FF FF][int32 LE length][metadata, zero padded][body]
//
// where length covers the padded metadata only. It tracks the cumulative
// number of bytes written.
type FrameWriter struct {
	w      io.Writer
	offset int64
	flush  bool
}

// NewFrameWriter returns a frame writer on w
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// Offset returns the number of bytes written so far
func (fw *FrameWriter) Offset() int64 {
	return fw.offset
}

// WriteMessage frames and writes msg. The body must already be a multiple
// of the alignment; anything else is an AlignmentViolation and nothing is
// written.
func (fw *FrameWriter) WriteMessage(msg EncodedMessage) (Block, error) {
	var total int64
	for _, seg := range msg.Body {
		total += int64(len(seg))
	}
	if total != msg.BodyLen {
		return Block{}, newErr(AlignmentViolation, StageFraming, nil, "%s body segments total %d bytes, header says %d", msg.Kind, total, msg.BodyLen)
	}
	if msg.BodyLen%Alignment != 0 {
		return Block{}, newErr(AlignmentViolation, StageFraming, nil, "%s body length %d is not a multiple of %d", msg.Kind, msg.BodyLen, Alignment)
	}

	flatbufSize := int64(len(msg.Metadata))
	alignedSize := paddedLen(flatbufSize + prefixSize)
	if alignedSize-prefixSize > math.MaxInt32 {
		return Block{}, newErr(EncodingFailure, StageFraming, nil, "%s metadata of %d bytes does not fit the length prefix", msg.Kind, flatbufSize)
	}

	block := Block{Offset: fw.offset, MetadataLen: alignedSize, BodyLen: msg.BodyLen}
	if err := fw.writePrefix(int32(alignedSize - prefixSize)); err != nil {
		return Block{}, err
	}
	if err := fw.write(msg.Metadata); err != nil {
		return Block{}, err
	}
	if err := fw.write(zeroPad[:alignedSize-prefixSize-flatbufSize]); err != nil {
		return Block{}, err
	}
	for _, seg := range msg.Body {
		if err := fw.write(seg); err != nil {
			return Block{}, err
		}
	}
	if err := fw.maybeFlush(); err != nil {
		return Block{}, err
	}
	return block, nil
}

// WriteEOS writes the end-of-stream marker: a continuation marker followed
// by a zero length.
func (fw *FrameWriter) WriteEOS() error {
	if err := fw.writePrefix(0); err != nil {
		return err
	}
	return fw.maybeFlush()
}

func (fw *FrameWriter) writePrefix(length int32) error {
	var prefix [prefixSize]byte
	binary.LittleEndian.PutUint32(prefix[0:], ContinuationMarker)
	binary.LittleEndian.PutUint32(prefix[4:], uint32(length))
	return fw.write(prefix[:])
}

func (fw *FrameWriter) write(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	n, err := fw.w.Write(b)
	fw.offset += int64(n)
	if err == nil && n < len(b) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return newErr(WriteFailure, StageWrite, err, "wrote %d of %d bytes at offset %d", n, len(b), fw.offset-int64(n))
	}
	return nil
}

func (fw *FrameWriter) maybeFlush() error {
	if !fw.flush {
		return nil
	}
	if f, ok := fw.w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return newErr(WriteFailure, StageWrite, err, "flush")
		}
	}
	return nil
}
