package columnar

// RecordBatch is a fixed row count set of columns sharing one schema
type RecordBatch struct {
	schema  *Schema
	numRows int64
	columns []*ArrayData
}

// NewRecordBatch checks that there is one column per field, that every
// column has the field's type and that all columns have numRows rows.
// Column contents are not validated here; the encoder validates each
// column before writing it.
func NewRecordBatch(schema *Schema, numRows int64, columns []*ArrayData) (*RecordBatch, error) {
	if schema == nil {
		return nil, validationErrf("", "record batch requires a schema")
	}
	if len(columns) != schema.NumFields() {
		return nil, validationErrf("", "record batch has %d columns, schema has %d fields", len(columns), schema.NumFields())
	}
	if numRows < 0 {
		return nil, validationErrf("", "negative row count %d", numRows)
	}
	for i, col := range columns {
		f := schema.Field(i)
		if col == nil {
			return nil, validationErrf(f.Name, "missing column")
		}
		if !TypeEqual(col.Type, f.Type) {
			return nil, validationErrf(f.Name, "column type %s does not match field type %s", col.Type, f.Type)
		}
		if col.Length != numRows {
			return nil, validationErrf(f.Name, "column has %d rows, batch has %d", col.Length, numRows)
		}
	}
	return &RecordBatch{
		schema:  schema,
		numRows: numRows,
		columns: append([]*ArrayData(nil), columns...),
	}, nil
}

// Schema returns the batch schema
func (b *RecordBatch) Schema() *Schema { return b.schema }

// NumRows returns the number of rows in the batch
func (b *RecordBatch) NumRows() int64 { return b.numRows }

// NumCols returns the number of columns
func (b *RecordBatch) NumCols() int { return len(b.columns) }

// Column returns the i-th column
func (b *RecordBatch) Column(i int) *ArrayData { return b.columns[i] }

// Columns returns all columns. The returned slice must not be modified.
func (b *RecordBatch) Columns() []*ArrayData { return b.columns }
