package arrowconv

import (
	"io"

	"github.com/apache/arrow-go/v18/arrow"

	"github.com/ssargent/colstream/pkg/codec"
)

// RecordReader is the subset of the arrow-go record readers used by Copy.
// ipc.Reader and csv.Reader implement it.
type RecordReader interface {
	Schema() *arrow.Schema
	Next() bool
	Record() arrow.Record
	Err() error
}

// Copy encodes every record of rdr as one stream on w and returns the
// number of batches written. Each record is encoded before the reader
// advances, so records need not be retained.
func Copy(w io.Writer, rdr RecordReader, opts ...codec.Option) (int, error) {
	conv, err := NewConverter(rdr.Schema())
	if err != nil {
		return 0, err
	}
	sw := codec.NewStreamWriter(w, conv.Schema(), opts...)
	n := 0
	for rdr.Next() {
		batch, err := conv.Convert(rdr.Record())
		if err != nil {
			return n, err
		}
		if err := sw.Write(batch); err != nil {
			return n, err
		}
		n++
	}
	if err := rdr.Err(); err != nil {
		return n, err
	}
	return n, sw.Close()
}
