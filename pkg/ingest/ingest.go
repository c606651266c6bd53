// Package ingest reads delimited text into record batches.
//
// The first line names the columns. Column types come from Options.Types
// and default to utf8; empty cells are null. Columns listed in
// Options.Dictionary are dictionary encoded with an int32 index and a
// dictionary that grows as new values appear, so a stream only re-sends it
// when a batch introduces a value.
package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	arrowcsv "github.com/apache/arrow-go/v18/arrow/csv"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ssargent/colstream/pkg/arrowconv"
	"github.com/ssargent/colstream/pkg/columnar"
)

// DefaultBatchSize is the number of rows per batch when Options.BatchSize is zero
const DefaultBatchSize = 1024

// ErrEmptyInput is returned when the input has no header line
var ErrEmptyInput = errors.New("input has no header line")

// Options control how input is split and typed
type Options struct {
	BatchSize  int
	Comma      rune
	Types      map[string]string // column name -> type name, see ParseType
	Dictionary []string          // utf8 columns to dictionary encode
	Allocator  memory.Allocator
}

var typeNames = map[string]struct {
	col   columnar.DataType
	arrow arrow.DataType
}{
	"bool":    {columnar.Boolean, arrow.FixedWidthTypes.Boolean},
	"int8":    {columnar.Int8, arrow.PrimitiveTypes.Int8},
	"int16":   {columnar.Int16, arrow.PrimitiveTypes.Int16},
	"int32":   {columnar.Int32, arrow.PrimitiveTypes.Int32},
	"int64":   {columnar.Int64, arrow.PrimitiveTypes.Int64},
	"uint8":   {columnar.Uint8, arrow.PrimitiveTypes.Uint8},
	"uint16":  {columnar.Uint16, arrow.PrimitiveTypes.Uint16},
	"uint32":  {columnar.Uint32, arrow.PrimitiveTypes.Uint32},
	"uint64":  {columnar.Uint64, arrow.PrimitiveTypes.Uint64},
	"float32": {columnar.Float32, arrow.PrimitiveTypes.Float32},
	"float64": {columnar.Float64, arrow.PrimitiveTypes.Float64},
	"string":  {columnar.String, arrow.BinaryTypes.String},
	"utf8":    {columnar.String, arrow.BinaryTypes.String},
}

// ParseType returns the column type for a type name such as "int64",
// "float64", "bool" or "string".
func ParseType(name string) (columnar.DataType, error) {
	t, ok := typeNames[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown column type %q (known: %s)", name, strings.Join(TypeNames(), ", "))
	}
	return t.col, nil
}

// TypeNames returns the accepted type names, sorted
func TypeNames() []string {
	names := make([]string, 0, len(typeNames))
	for n := range typeNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Reader yields record batches from delimited text. A batch returned by
// Batch is valid until the next call to Next.
type Reader struct {
	csv    *arrowcsv.Reader
	conv   *arrowconv.Converter
	schema *columnar.Schema
	dicts  map[int]*dictionaryEncoder
	batch  *columnar.RecordBatch
	rows   int64
	err    error
}

// NewReader reads the header line from r and prepares a reader for the rest
func NewReader(r io.Reader, opts Options) (*Reader, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Comma == 0 {
		opts.Comma = ','
	}
	if opts.Allocator == nil {
		opts.Allocator = memory.NewGoAllocator()
	}

	br := bufio.NewReader(r)
	header, err := readHeader(br, opts.Comma)
	if err != nil {
		return nil, err
	}

	fields := make([]arrow.Field, len(header))
	for i, name := range header {
		typ := arrow.BinaryTypes.String
		if tn, ok := opts.Types[name]; ok {
			t, ok := typeNames[strings.ToLower(tn)]
			if !ok {
				return nil, fmt.Errorf("column %q: unknown column type %q", name, tn)
			}
			typ = t.arrow
		}
		fields[i] = arrow.Field{Name: name, Type: typ, Nullable: true}
	}
	for name := range opts.Types {
		if !contains(header, name) {
			return nil, fmt.Errorf("type given for unknown column %q", name)
		}
	}
	source := arrow.NewSchema(fields, nil)

	conv, err := arrowconv.NewConverter(source)
	if err != nil {
		return nil, err
	}

	rd := &Reader{
		conv:  conv,
		dicts: make(map[int]*dictionaryEncoder),
	}
	schemaFields := append([]columnar.Field(nil), conv.Schema().Fields()...)
	var nextID int64
	for _, name := range opts.Dictionary {
		i := indexOf(header, name)
		if i < 0 {
			return nil, fmt.Errorf("dictionary column %q not in header", name)
		}
		if schemaFields[i].Type.ID() != columnar.STRING {
			return nil, fmt.Errorf("dictionary column %q must be utf8, not %s", name, schemaFields[i].Type)
		}
		if _, dup := rd.dicts[i]; dup {
			continue
		}
		schemaFields[i].Type = columnar.DictionaryOf(dictIndex, columnar.String)
		schemaFields[i].DictID = nextID
		nextID++
		rd.dicts[i] = newDictionaryEncoder()
	}
	rd.schema, err = columnar.NewSchema(schemaFields)
	if err != nil {
		return nil, err
	}

	rd.csv = arrowcsv.NewReader(br, source,
		arrowcsv.WithHeader(false),
		arrowcsv.WithComma(opts.Comma),
		arrowcsv.WithChunk(opts.BatchSize),
		arrowcsv.WithNullReader(true, ""),
		arrowcsv.WithAllocator(opts.Allocator),
	)
	return rd, nil
}

func readHeader(br *bufio.Reader, comma rune) ([]string, error) {
	line, err := br.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if strings.TrimSpace(line) == "" {
		return nil, ErrEmptyInput
	}
	cr := csv.NewReader(strings.NewReader(line))
	cr.Comma = comma
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("header column %d has no name", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate header column %q", name)
		}
		seen[name] = true
		header[i] = name
	}
	return header, nil
}

// Schema returns the schema of every batch
func (r *Reader) Schema() *columnar.Schema {
	return r.schema
}

// Next advances to the next batch
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	if !r.csv.Next() {
		r.err = r.csv.Err()
		return false
	}
	batch, err := r.convert(r.csv.Record())
	if err != nil {
		r.err = err
		return false
	}
	r.batch = batch
	r.rows += batch.NumRows()
	return true
}

func (r *Reader) convert(rec arrow.Record) (*columnar.RecordBatch, error) {
	raw, err := r.conv.Convert(rec)
	if err != nil {
		return nil, err
	}
	if len(r.dicts) == 0 {
		return raw, nil
	}
	columns := append([]*columnar.ArrayData(nil), raw.Columns()...)
	for i, enc := range r.dicts {
		col, err := enc.encode(columns[i])
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", r.schema.Field(i).Name, err)
		}
		columns[i] = col
	}
	return columnar.NewRecordBatch(r.schema, raw.NumRows(), columns)
}

// Batch returns the current batch
func (r *Reader) Batch() *columnar.RecordBatch {
	return r.batch
}

// Rows returns the number of rows read so far
func (r *Reader) Rows() int64 {
	return r.rows
}

// Err returns the first error encountered, if any
func (r *Reader) Err() error {
	return r.err
}

// Release releases the underlying arrow reader
func (r *Reader) Release() {
	r.csv.Release()
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func contains(list []string, s string) bool {
	return indexOf(list, s) >= 0
}
