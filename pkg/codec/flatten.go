package codec

import (
	"github.com/ssargent/colstream/pkg/columnar"
)

// flattener walks arrays depth-first, producing the field node list, the
// buffer descriptor list and the body, all in the same order.
type flattener struct {
	nodes   []FieldNode
	buffers []Buffer
	body    bodyWriter
}

func (f *flattener) add(b []byte) {
	f.buffers = append(f.buffers, f.body.append(b))
}

// visit appends the node and buffers of a and then its children. Null
// arrays have no buffers at all. Arrays without a validity bitmap get a
// synthesized all-valid one. Dictionary arrays contribute only their
// indices; their values travel in dictionary batches.
func (f *flattener) visit(a *columnar.ArrayData) {
	f.nodes = append(f.nodes, FieldNode{Length: a.Length, NullCount: a.NullCount})
	if a.Type.ID() == columnar.NULL {
		return
	}

	validity := a.Validity
	if validity == nil {
		validity = columnar.AllValidBitmap(a.Length)
	}
	f.add(validity)
	for _, buf := range a.Buffers {
		f.add(buf)
	}

	if a.Type.ID() == columnar.DICTIONARY {
		return
	}
	for _, child := range a.Children {
		f.visit(child)
	}
}

// dictRef is a dictionary-typed field found while walking a batch
type dictRef struct {
	id     int64
	path   string
	values *columnar.ArrayData
}

// collectDictionaries returns the dictionaries referenced by the columns in
// depth-first field order, which for top-level columns is column order.
// Dictionary values are not searched.
func collectDictionaries(fields []columnar.Field, columns []*columnar.ArrayData) []dictRef {
	var refs []dictRef
	for i, f := range fields {
		if i >= len(columns) {
			break
		}
		refs = collectField(refs, f, f.Name, columns[i])
	}
	return refs
}

func collectField(refs []dictRef, f columnar.Field, path string, a *columnar.ArrayData) []dictRef {
	if f.Type.ID() == columnar.DICTIONARY {
		return append(refs, dictRef{id: f.DictID, path: path, values: a.Dictionary})
	}
	for i, child := range columnar.ChildFields(f.Type) {
		if i >= len(a.Children) {
			break
		}
		refs = collectField(refs, child, path+"."+child.Name, a.Children[i])
	}
	return refs
}
