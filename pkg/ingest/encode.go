package ingest

import (
	"io"

	"github.com/ssargent/colstream/pkg/codec"
)

// Summary describes an encoded stream
type Summary struct {
	Rows    int64
	Batches int
	Bytes   int64
}

// Encode reads delimited text from r and writes it to w as one stream.
// On error the summary covers what was written before the failure.
func Encode(w io.Writer, r io.Reader, opts Options, codecOpts ...codec.Option) (Summary, error) {
	rd, err := NewReader(r, opts)
	if err != nil {
		return Summary{}, err
	}
	defer rd.Release()

	sw := codec.NewStreamWriter(w, rd.Schema(), codecOpts...)
	var sum Summary
	for rd.Next() {
		if err := sw.Write(rd.Batch()); err != nil {
			sum.Bytes = sw.Offset()
			return sum, err
		}
		sum.Batches++
		sum.Rows += rd.Batch().NumRows()
	}
	if err := rd.Err(); err != nil {
		sum.Bytes = sw.Offset()
		return sum, err
	}
	err = sw.Close()
	sum.Bytes = sw.Offset()
	return sum, err
}
