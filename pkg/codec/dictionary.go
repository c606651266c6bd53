package codec

import (
	"github.com/ssargent/colstream/pkg/columnar"
)

// Decision is the tracker's verdict for one dictionary of a batch
type Decision int

const (
	// Skip means the last emitted dictionary for the id is still current
	Skip Decision = iota
	// Emit means a dictionary batch must be written before the record batch
	Emit
)

func (d Decision) String() string {
	if d == Emit {
		return "emit"
	}
	return "skip"
}

// DictionaryTracker remembers the last dictionary emitted for each id in
// one stream. It is owned by a single StreamWriter.
type DictionaryTracker struct {
	written            map[int64]*columnar.ArrayData
	errorOnReplacement bool
}

// NewDictionaryTracker returns an empty tracker. With errorOnReplacement
// set, a dictionary whose values change after it was emitted is rejected
// instead of being re-sent.
func NewDictionaryTracker(errorOnReplacement bool) *DictionaryTracker {
	return &DictionaryTracker{
		written:            make(map[int64]*columnar.ArrayData),
		errorOnReplacement: errorOnReplacement,
	}
}

// RecordAndCheck reports whether values must be emitted for id. An unseen
// id or values differing from the last emitted ones yield Emit and are
// recorded; identical values yield Skip. The tracker keeps its own copy.
func (t *DictionaryTracker) RecordAndCheck(id int64, values *columnar.ArrayData) (Decision, error) {
	if values == nil {
		return Skip, newErr(EncodingFailure, StageMetadata, nil, "dictionary %d has no values", id)
	}
	if last, ok := t.written[id]; ok {
		if last.Equal(values) {
			return Skip, nil
		}
		if t.errorOnReplacement {
			return Skip, newErr(EncodingFailure, StageMetadata, nil, "dictionary %d changed after it was emitted", id)
		}
	}
	t.written[id] = values.Clone()
	return Emit, nil
}

// Len returns the number of dictionary ids emitted so far
func (t *DictionaryTracker) Len() int {
	return len(t.written)
}
