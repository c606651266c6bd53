package ingest

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ssargent/colstream/pkg/columnar"
)

var dictIndex = columnar.IntType{BitWidth: 32, Signed: true}

// dictionaryEncoder turns utf8 columns into dictionary columns. Values keep
// their first-seen position, so earlier indices stay valid as the
// dictionary grows.
type dictionaryEncoder struct {
	values []string
	index  map[string]int64
	dict   *columnar.ArrayData
}

func newDictionaryEncoder() *dictionaryEncoder {
	return &dictionaryEncoder{index: make(map[string]int64)}
}

func (e *dictionaryEncoder) encode(col *columnar.ArrayData) (*columnar.ArrayData, error) {
	if col.Type.ID() != columnar.STRING {
		return nil, fmt.Errorf("cannot dictionary encode %s", col.Type)
	}
	offsets, data := col.Buffers[0], col.Buffers[1]
	indices := make([]int64, col.Length)
	var valid []bool
	if col.NullCount > 0 {
		valid = make([]bool, col.Length)
	}
	grew := false
	for i := int64(0); i < col.Length; i++ {
		if !col.IsValid(i) {
			continue
		}
		if valid != nil {
			valid[i] = true
		}
		start := binary.LittleEndian.Uint32(offsets[i*4:])
		end := binary.LittleEndian.Uint32(offsets[(i+1)*4:])
		v := string(data[start:end])
		ix, ok := e.index[v]
		if !ok {
			if len(e.values) == math.MaxInt32 {
				return nil, fmt.Errorf("more than %d distinct values", math.MaxInt32)
			}
			ix = int64(len(e.values))
			e.index[v] = ix
			e.values = append(e.values, v)
			grew = true
		}
		indices[i] = ix
	}
	if grew || e.dict == nil {
		e.dict = columnar.NewStringArray(e.values, nil)
	}
	return columnar.NewDictionaryArray(dictIndex, indices, valid, e.dict), nil
}
