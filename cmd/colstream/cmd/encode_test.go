package cmd

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssargent/colstream/pkg/config"
	"github.com/ssargent/colstream/pkg/storage"
)

const testCSV = "id,country,amount\n1,no,1.5\n2,se,2.5\n3,no,\n4,dk,4.0\n"

func testRuntime(t *testing.T) *runtime {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Archive.Dir = filepath.Join(t.TempDir(), "archive")
	return &runtime{config: cfg, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func countRows(t *testing.T, data []byte) int64 {
	t.Helper()
	rdr, err := ipc.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer rdr.Release()
	var rows int64
	for rdr.Next() {
		rows += rdr.Record().NumRows()
	}
	require.NoError(t, rdr.Err())
	return rows
}

func TestRunEncode_CSVToFile(t *testing.T) {
	rt := testRuntime(t)
	output := filepath.Join(t.TempDir(), "out.arrows")

	res, err := runEncode(rt, encodeOptions{
		Input:      writeInput(t, "in.csv", testCSV),
		Output:     output,
		BatchSize:  2,
		Delimiter:  ",",
		Types:      map[string]string{"id": "int64", "amount": "float64"},
		Dictionary: []string{"country"},
	}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Rows)
	assert.Equal(t, 2, res.Batches)
	assert.Empty(t, res.ArchiveID)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, res.Bytes, int64(len(data)))
	assert.Equal(t, int64(4), countRows(t, data))
}

func TestRunEncode_Stdout(t *testing.T) {
	rt := testRuntime(t)
	var out bytes.Buffer
	res, err := runEncode(rt, encodeOptions{Input: "-", Output: "-"}, strings.NewReader(testCSV), &out)
	require.NoError(t, err)
	assert.Equal(t, int64(out.Len()), res.Bytes)
	assert.Equal(t, int64(4), countRows(t, out.Bytes()))
}

func TestRunEncode_Archive(t *testing.T) {
	rt := testRuntime(t)
	output := filepath.Join(t.TempDir(), "out.arrows")

	res, err := runEncode(rt, encodeOptions{
		Input:   writeInput(t, "in.csv", testCSV),
		Output:  output,
		Archive: true,
		Name:    "daily",
	}, nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, res.ArchiveID)

	a, err := storage.Open(rt.config.Archive.Dir)
	require.NoError(t, err)
	defer a.Close()
	id, err := storage.ParseID(res.ArchiveID)
	require.NoError(t, err)
	entry, stream, err := a.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "daily", entry.Name)
	assert.Equal(t, int64(4), entry.Rows)

	file, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, file, stream, "file and archive receive the same bytes")

	var listing bytes.Buffer
	require.NoError(t, listArchive(&listing, a))
	assert.Contains(t, listing.String(), res.ArchiveID)
	assert.Contains(t, listing.String(), "daily")
}

func TestRunEncode_Reencode(t *testing.T) {
	rt := testRuntime(t)
	dir := t.TempDir()
	first := filepath.Join(dir, "first.arrows")
	second := filepath.Join(dir, "second.arrows")

	_, err := runEncode(rt, encodeOptions{
		Input:      writeInput(t, "in.csv", testCSV),
		Output:     first,
		BatchSize:  3,
		Types:      map[string]string{"id": "int32"},
		Dictionary: []string{"country"},
	}, nil, nil)
	require.NoError(t, err)

	res, err := runEncode(rt, encodeOptions{Input: first, Output: second}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Rows)
	assert.Equal(t, 2, res.Batches)

	data, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, res.Bytes, int64(len(data)))
	assert.Equal(t, int64(4), countRows(t, data))
}

func TestRunEncode_FailureRemovesOutput(t *testing.T) {
	rt := testRuntime(t)
	output := filepath.Join(t.TempDir(), "out.arrows")

	_, err := runEncode(rt, encodeOptions{
		Input:  writeInput(t, "in.csv", testCSV),
		Output: output,
		Types:  map[string]string{"country": "int64"},
	}, nil, nil)
	require.Error(t, err)
	assert.NoFileExists(t, output)
}

func TestRunEncode_MetricsTextfile(t *testing.T) {
	rt := testRuntime(t)
	rt.config.Metrics.Textfile = filepath.Join(t.TempDir(), "colstream.prom")

	_, err := runEncode(rt, encodeOptions{Input: "-", Output: "-"}, strings.NewReader(testCSV), io.Discard)
	require.NoError(t, err)

	data, err := os.ReadFile(rt.config.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `colstream_messages_total{kind="record_batch"} 1`)
}

func TestRunEncode_Errors(t *testing.T) {
	rt := testRuntime(t)
	testCases := []struct {
		name    string
		opts    encodeOptions
		wantErr string
	}{
		{name: "no destination", opts: encodeOptions{Input: "-"}, wantErr: "nothing to write"},
		{name: "bad format", opts: encodeOptions{Input: "-", Output: "-", Format: "parquet"}, wantErr: "unknown input format"},
		{name: "missing input", opts: encodeOptions{Input: "/does/not/exist.csv", Output: "-"}, wantErr: "open input"},
		{name: "not a stream", opts: encodeOptions{Input: "-", Output: "-", Format: "arrows"}, wantErr: "read input stream"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := runEncode(rt, tc.opts, strings.NewReader(testCSV), io.Discard)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

type flushCounter struct {
	bytes.Buffer
	flushes int
}

func (f *flushCounter) Flush() error {
	f.flushes++
	return nil
}

func TestCountingWriter_FlushesEverySink(t *testing.T) {
	file, archive := &flushCounter{}, &flushCounter{}
	var plain bytes.Buffer
	w := newCountingWriter(file, &plain, archive)

	n, err := w.Write([]byte("12345678"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	require.NoError(t, w.Flush())

	assert.Equal(t, int64(8), w.n)
	assert.Equal(t, 1, file.flushes)
	assert.Equal(t, 1, archive.flushes)
	assert.Equal(t, "12345678", file.String())
	assert.Equal(t, "12345678", plain.String())
}

func TestRunEncode_FileAndArchiveWithFlush(t *testing.T) {
	rt := testRuntime(t)
	output := filepath.Join(t.TempDir(), "out.arrows")

	res, err := runEncode(rt, encodeOptions{
		Input:     writeInput(t, "in.csv", testCSV),
		Output:    output,
		Archive:   true,
		Flush:     true,
		BatchSize: 1,
		Delimiter: ",",
	}, nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, res.ArchiveID)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, res.Bytes, int64(len(data)))
	assert.Equal(t, int64(4), countRows(t, data))
}

func TestInputFormat(t *testing.T) {
	testCases := []struct {
		opts encodeOptions
		want string
	}{
		{opts: encodeOptions{Input: "a.csv"}, want: formatCSV},
		{opts: encodeOptions{Input: "a.ARROWS"}, want: formatArrows},
		{opts: encodeOptions{Input: "a.ipc"}, want: formatArrows},
		{opts: encodeOptions{Input: "-"}, want: formatCSV},
		{opts: encodeOptions{Input: "a.arrows", Format: "csv"}, want: formatCSV},
		{opts: encodeOptions{Input: "-", Format: "arrow"}, want: formatArrows},
	}
	for _, tc := range testCases {
		got, err := inputFormat(tc.opts)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%+v", tc.opts)
	}
}

func TestDelimiterRune(t *testing.T) {
	assert.Equal(t, ';', delimiterRune(";"))
	assert.Equal(t, '\t', delimiterRune(`\t`))
	assert.Equal(t, rune(0), delimiterRune(""))
}
