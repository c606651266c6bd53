package codec

import (
	"io"
	"log/slog"

	"github.com/ssargent/colstream/pkg/columnar"
)

// Observer is notified of every message written and every dictionary
// decision. Implementations must be cheap; they run inline.
type Observer interface {
	MessageWritten(kind MessageKind, block Block)
	DictionaryChecked(id int64, decision Decision)
	StreamClosed(bytes int64, err error)
}

type nopObserver struct{}

func (nopObserver) MessageWritten(MessageKind, Block) {}
func (nopObserver) DictionaryChecked(int64, Decision) {}
func (nopObserver) StreamClosed(int64, error) {}

type options struct {
	logger             *slog.Logger
	observer           Observer
	errorOnReplacement bool
	flush              bool
}

// Option configures a StreamWriter
type Option func(*options)

// WithLogger sets the logger used for per-message debug logging
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver sets the observer notified of written messages
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithErrorOnDictionaryReplacement makes a changed dictionary an
// EncodingFailure instead of a replacement dictionary batch.
func WithErrorOnDictionaryReplacement(v bool) Option {
	return func(o *options) { o.errorOnReplacement = v }
}

// WithFlush flushes the sink after every frame when it has a Flush method
func WithFlush(v bool) Option {
	return func(o *options) { o.flush = v }
}

type streamState int

const (
	stateStart streamState = iota
	stateSchemaWritten
	stateClosed
	stateFailed
)

func (s streamState) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateSchemaWritten:
		return "schema_written"
	case stateClosed:
		return "closed"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// StreamWriter writes one stream: the schema message, then for every batch
// any new or changed dictionaries followed by the record batch, then the
// end-of-stream marker on Close.
//
// The first error puts the writer in a failed state; the sink then holds a
// partial stream that must be discarded and every later call returns the
// same error. A StreamWriter is not safe for concurrent use.
type StreamWriter struct {
	fw       *FrameWriter
	schema   *columnar.Schema
	tracker  *DictionaryTracker
	state    streamState
	err      error
	batches  int64
	logger   *slog.Logger
	observer Observer
}

// NewStreamWriter returns a writer on w. schema may be nil, in which case
// the schema of the first batch is used; closing such a writer before any
// batch leaves w empty.
func NewStreamWriter(w io.Writer, schema *columnar.Schema, opts ...Option) *StreamWriter {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	fw := NewFrameWriter(w)
	fw.flush = o.flush
	return &StreamWriter{
		fw:       fw,
		schema:   schema,
		tracker:  NewDictionaryTracker(o.errorOnReplacement),
		logger:   o.logger,
		observer: o.observer,
	}
}

// Offset returns the number of bytes written so far
func (sw *StreamWriter) Offset() int64 {
	return sw.fw.Offset()
}

// Schema returns the stream schema, or nil if it is not known yet
func (sw *StreamWriter) Schema() *columnar.Schema {
	return sw.schema
}

// Write appends batch to the stream, writing the schema first if this is
// the first batch.
func (sw *StreamWriter) Write(batch *columnar.RecordBatch) error {
	if err := sw.usable(); err != nil {
		return err
	}
	if batch == nil {
		return sw.fail(newErr(EncodingFailure, StageMetadata, nil, "nil record batch"))
	}
	if sw.schema == nil {
		sw.schema = batch.Schema()
	}
	if sw.state == stateStart {
		if err := sw.writeSchema(); err != nil {
			return err
		}
	}

	msgs, err := sw.encodeBatch(batch)
	if err != nil {
		return sw.fail(err)
	}
	for _, msg := range msgs {
		if err := sw.writeMessage(msg); err != nil {
			return err
		}
	}
	sw.batches++
	return nil
}

// encodeBatch returns the dictionary batches the tracker asks for, in field
// order, followed by the record batch.
func (sw *StreamWriter) encodeBatch(batch *columnar.RecordBatch) ([]EncodedMessage, error) {
	rb, err := EncodeRecordBatch(batch)
	if err != nil {
		return nil, err
	}
	var msgs []EncodedMessage
	for _, ref := range collectDictionaries(batch.Schema().Fields(), batch.Columns()) {
		decision, err := sw.tracker.RecordAndCheck(ref.id, ref.values)
		if err != nil {
			return nil, err
		}
		sw.observer.DictionaryChecked(ref.id, decision)
		if decision == Skip {
			continue
		}
		msg, err := EncodeDictionaryBatch(ref.id, ref.values)
		if err != nil {
			return nil, err
		}
		sw.logger.Debug("dictionary changed", "dict_id", ref.id, "field", ref.path, "values", ref.values.Length)
		msgs = append(msgs, msg)
	}
	return append(msgs, rb), nil
}

// Close writes the schema if no batch was written, then the end-of-stream
// marker. A writer that never learned its schema writes nothing.
func (sw *StreamWriter) Close() error {
	if err := sw.usable(); err != nil {
		return err
	}
	if sw.schema != nil {
		if sw.state == stateStart {
			if err := sw.writeSchema(); err != nil {
				return err
			}
		}
		if err := sw.fw.WriteEOS(); err != nil {
			return sw.fail(err)
		}
	}
	sw.state = stateClosed
	sw.logger.Debug("stream closed", "batches", sw.batches, "dictionaries", sw.tracker.Len(), "bytes", sw.fw.Offset())
	sw.observer.StreamClosed(sw.fw.Offset(), nil)
	return nil
}

func (sw *StreamWriter) writeSchema() error {
	if err := sw.writeMessage(EncodeSchema(sw.schema)); err != nil {
		return err
	}
	sw.state = stateSchemaWritten
	return nil
}

func (sw *StreamWriter) writeMessage(msg EncodedMessage) error {
	block, err := sw.fw.WriteMessage(msg)
	if err != nil {
		return sw.fail(err)
	}
	sw.logger.Debug("wrote message",
		"kind", msg.Kind.String(),
		"offset", block.Offset,
		"metadata_len", block.MetadataLen,
		"body_len", block.BodyLen)
	sw.observer.MessageWritten(msg.Kind, block)
	return nil
}

func (sw *StreamWriter) usable() error {
	switch sw.state {
	case stateFailed:
		return sw.err
	case stateClosed:
		return newErr(WriteFailure, StageWrite, ErrClosed, "")
	}
	return nil
}

func (sw *StreamWriter) fail(err error) error {
	sw.state = stateFailed
	sw.err = err
	sw.logger.Debug("stream failed", "error", err, "bytes", sw.fw.Offset())
	sw.observer.StreamClosed(sw.fw.Offset(), err)
	return err
}
