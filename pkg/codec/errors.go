package codec

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies encoder failures
type Kind int

const (
	// EncodingFailure means a column's buffers or counts are inconsistent
	EncodingFailure Kind = iota + 1
	// WriteFailure means the output sink rejected a write
	WriteFailure
	// AlignmentViolation means a body was not a multiple of 8 bytes before
	// framing. It indicates a bug in the encoder.
	AlignmentViolation
	// UnsupportedInput means the input cannot be represented
	UnsupportedInput
)

func (k Kind) String() string {
	switch k {
	case EncodingFailure:
		return "encoding failure"
	case WriteFailure:
		return "write failure"
	case AlignmentViolation:
		return "alignment violation"
	case UnsupportedInput:
		return "unsupported input"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Stage names the step of the pipeline that failed
type Stage string

const (
	StageMetadata Stage = "metadata"
	StageFraming  Stage = "framing"
	StageWrite    Stage = "write"
)

// Error is returned by every encoder operation
type Error struct {
	Kind  Kind
	Stage Stage
	Msg   string
	Err   error
}

// Sentinels for errors.Is; they match any Error of the same Kind.
var (
	ErrEncoding    = &Error{Kind: EncodingFailure}
	ErrWrite       = &Error{Kind: WriteFailure}
	ErrAlignment   = &Error{Kind: AlignmentViolation}
	ErrUnsupported = &Error{Kind: UnsupportedInput}
)

// ErrClosed is the cause reported when writing to a closed stream
var ErrClosed = errors.New("stream is closed")

func newErr(kind Kind, stage Stage, err error, format string, args ...any) error {
	return &Error{Kind: kind, Stage: stage, Msg: fmt.Sprintf(format, args...), Err: err}
}

// UnsupportedErrorf returns an UnsupportedInput error. Input adapters use it
// to report values the stream format cannot carry.
func UnsupportedErrorf(format string, args ...any) error {
	return newErr(UnsupportedInput, StageMetadata, nil, format, args...)
}

func (e *Error) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Kind.String())
	if e.Stage != "" {
		buf.WriteString(" (")
		buf.WriteString(string(e.Stage))
		buf.WriteString(")")
	}
	if e.Msg != "" {
		buf.WriteString(": ")
		buf.WriteString(e.Msg)
	}
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Stage == "" || t.Stage == e.Stage)
}
