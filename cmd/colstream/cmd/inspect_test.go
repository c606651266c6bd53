package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeForTest(t *testing.T, opts encodeOptions) []byte {
	t.Helper()
	var out bytes.Buffer
	opts.Input, opts.Output = "-", "-"
	_, err := runEncode(testRuntime(t), opts, strings.NewReader(testCSV), &out)
	require.NoError(t, err)
	return out.Bytes()
}

func TestListMessages(t *testing.T) {
	data := encodeForTest(t, encodeOptions{BatchSize: 2, Dictionary: []string{"country"}})

	infos, err := listMessages(data)
	require.NoError(t, err)

	var types []string
	for _, m := range infos {
		types = append(types, m.Type)
		assert.Zero(t, m.Offset%8, m.Type)
		assert.Zero(t, m.Metadata%8, m.Type)
		assert.Zero(t, m.Body%8, m.Type)
	}
	// The second batch adds "dk", so the dictionary is re-sent
	assert.Equal(t, []string{"Schema", "DictionaryBatch", "RecordBatch", "DictionaryBatch", "RecordBatch"}, types)

	last := infos[len(infos)-1]
	assert.Equal(t, int64(len(data))-8, last.Offset+last.Metadata+last.Body, "only the end-of-stream marker follows")
}

func TestRunInspect(t *testing.T) {
	data := encodeForTest(t, encodeOptions{Types: map[string]string{"id": "int64"}})

	var out bytes.Buffer
	require.NoError(t, runInspect(&out, data, true))
	s := out.String()
	assert.Contains(t, s, "OFFSET")
	assert.Contains(t, s, "RecordBatch")
	assert.Contains(t, s, "id: [1 2 3 4]")
	assert.Contains(t, s, "batch 0 (4 rows)")
	assert.Contains(t, s, "4 rows in 1 record batches")
}

func TestRunInspect_Truncated(t *testing.T) {
	data := encodeForTest(t, encodeOptions{})
	var out bytes.Buffer
	assert.Error(t, runInspect(&out, data[:len(data)-20], false))
}
