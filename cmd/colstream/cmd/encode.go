/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/spf13/cobra"

	"github.com/ssargent/colstream/pkg/arrowconv"
	"github.com/ssargent/colstream/pkg/codec"
	"github.com/ssargent/colstream/pkg/ingest"
	"github.com/ssargent/colstream/pkg/metrics"
	"github.com/ssargent/colstream/pkg/storage"
	"github.com/ssargent/colstream/pkg/store"
)

const (
	formatCSV    = "csv"
	formatArrows = "arrows"
)

type encodeOptions struct {
	Input   string // path, or "-" for stdin
	Output  string // path, "-" for stdout, or empty with Archive
	Format  string // csv, arrows, or empty to guess from the input name
	Archive bool
	Name    string

	BatchSize          int
	Delimiter          string
	Types              map[string]string
	Dictionary         []string
	Flush              bool
	ErrorOnReplacement bool
}

type encodeResult struct {
	Rows      int64
	Batches   int
	Bytes     int64
	ArchiveID string
}

// encodeCmd represents the encode command
var encodeCmd = &cobra.Command{
	Use:   "encode [input]",
	Short: "Encode CSV or an existing stream into a stream file",
	Long: `Encode delimited text, or re-encode an Arrow IPC stream, into an
8-byte aligned stream. Input defaults to stdin.

CSV columns are utf8 unless typed with --type; empty cells are null.
Columns named with --dict are dictionary encoded and the dictionary is
only re-sent when a batch brings new values.

Examples:
  colstream encode data.csv -o data.arrows --type id=int64 --type score=float64
  colstream encode data.csv --archive --name nightly --dict country
  cat data.csv | colstream encode -o - > data.arrows
  colstream encode old.arrows -o new.arrows`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt := runtimeFrom(cmd)
		opts := encodeOptions{Input: "-"}
		if len(args) == 1 {
			opts.Input = args[0]
		}
		opts.Output, _ = cmd.Flags().GetString("output")
		opts.Format, _ = cmd.Flags().GetString("format")
		opts.Archive, _ = cmd.Flags().GetBool("archive")
		opts.Name, _ = cmd.Flags().GetString("name")
		opts.Types, _ = cmd.Flags().GetStringToString("type")
		opts.Dictionary, _ = cmd.Flags().GetStringSlice("dict")

		// Flags that were not given fall back to the config file
		enc := rt.config.Encode
		opts.BatchSize = enc.BatchSize
		if cmd.Flags().Changed("batch-size") {
			opts.BatchSize, _ = cmd.Flags().GetInt("batch-size")
		}
		opts.Delimiter = enc.Delimiter
		if cmd.Flags().Changed("delimiter") {
			opts.Delimiter, _ = cmd.Flags().GetString("delimiter")
		}
		opts.Flush = rt.config.Output.FlushEachMessage
		if cmd.Flags().Changed("flush") {
			opts.Flush, _ = cmd.Flags().GetBool("flush")
		}
		opts.ErrorOnReplacement = enc.ErrorOnDictionaryReplacement
		if cmd.Flags().Changed("error-on-dictionary-replacement") {
			opts.ErrorOnReplacement, _ = cmd.Flags().GetBool("error-on-dictionary-replacement")
		}
		for k, v := range enc.Types {
			if _, ok := opts.Types[k]; !ok {
				if opts.Types == nil {
					opts.Types = make(map[string]string)
				}
				opts.Types[k] = v
			}
		}
		opts.Dictionary = append(append([]string(nil), enc.Dictionary...), opts.Dictionary...)

		res, err := runEncode(rt, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		msg := fmt.Sprintf("encoded %d rows in %d batches (%d bytes)", res.Rows, res.Batches, res.Bytes)
		if res.ArchiveID != "" {
			msg += ", archived as " + res.ArchiveID
		}
		if opts.Output == "-" {
			rt.logger.Info(msg)
		} else {
			cmd.Println(msg)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(encodeCmd)
	encodeCmd.Flags().StringP("output", "o", "", `Output stream file, or "-" for stdout`)
	encodeCmd.Flags().StringP("format", "f", "", "Input format: csv or arrows (default: from the file extension)")
	encodeCmd.Flags().Bool("archive", false, "Store the stream in the archive")
	encodeCmd.Flags().String("name", "", "Name recorded with the archived stream")
	encodeCmd.Flags().Int("batch-size", 0, "Rows per record batch")
	encodeCmd.Flags().String("delimiter", "", "CSV field delimiter")
	encodeCmd.Flags().StringToString("type", nil, "Column type, as column=type (repeatable)")
	encodeCmd.Flags().StringSlice("dict", nil, "Dictionary encode a utf8 column (repeatable)")
	encodeCmd.Flags().Bool("flush", false, "Flush the output after every message")
	encodeCmd.Flags().Bool("error-on-dictionary-replacement", false, "Fail instead of re-sending a changed dictionary")
}

func runEncode(rt *runtime, opts encodeOptions, stdin io.Reader, stdout io.Writer) (encodeResult, error) {
	if opts.Output == "" && !opts.Archive {
		return encodeResult{}, fmt.Errorf("nothing to write: give --output or --archive")
	}
	format, err := inputFormat(opts)
	if err != nil {
		return encodeResult{}, err
	}

	in := stdin
	if opts.Input != "-" {
		f, err := os.Open(opts.Input)
		if err != nil {
			return encodeResult{}, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	var (
		sink    *store.FileSink
		archive bytes.Buffer
		sinks   []io.Writer
	)
	switch opts.Output {
	case "":
	case "-":
		sinks = append(sinks, stdout)
	default:
		sink, err = store.NewFileSink(store.FileSinkConfig{
			FilePath:      opts.Output,
			FsyncInterval: rt.config.Output.FsyncInterval,
			BufferSize:    rt.config.Output.BufferSize,
		})
		if err != nil {
			return encodeResult{}, err
		}
		sinks = append(sinks, sink)
	}
	if opts.Archive {
		sinks = append(sinks, &archive)
	}
	out := newCountingWriter(sinks...)

	m := metrics.New()
	codecOpts := []codec.Option{
		codec.WithLogger(rt.logger),
		codec.WithObserver(m),
		codec.WithFlush(opts.Flush),
		codec.WithErrorOnDictionaryReplacement(opts.ErrorOnReplacement),
	}

	start := time.Now()
	var res encodeResult
	switch format {
	case formatCSV:
		var sum ingest.Summary
		sum, err = ingest.Encode(out, in, ingest.Options{
			BatchSize:  opts.BatchSize,
			Comma:      delimiterRune(opts.Delimiter),
			Types:      opts.Types,
			Dictionary: opts.Dictionary,
		}, codecOpts...)
		res.Rows, res.Batches = sum.Rows, sum.Batches
	case formatArrows:
		res.Rows, res.Batches, err = reencode(out, in, codecOpts)
	}
	res.Bytes = out.n
	if err != nil {
		if sink != nil {
			_ = sink.Abort()
		}
		return res, err
	}
	if sink != nil {
		if err := sink.Close(); err != nil {
			return res, err
		}
	}
	rt.logger.Debug("stream written", "rows", res.Rows, "batches", res.Batches, "bytes", res.Bytes, "elapsed", time.Since(start))

	if opts.Archive {
		entry, err := archiveStream(rt, m, storage.Entry{
			Name:    opts.Name,
			Rows:    res.Rows,
			Batches: res.Batches,
		}, archive.Bytes())
		if err != nil {
			return res, err
		}
		res.ArchiveID = entry.ID.String()
	}

	if path := rt.config.Metrics.Textfile; path != "" {
		if err := m.WriteToTextfile(path); err != nil {
			rt.logger.Warn("metrics textfile not written", "path", path, "error", err)
		}
	}
	return res, nil
}

func archiveStream(rt *runtime, m *metrics.Metrics, entry storage.Entry, stream []byte) (storage.Entry, error) {
	a, err := storage.Open(rt.config.Archive.Dir)
	if err != nil {
		return storage.Entry{}, err
	}
	defer a.Close()

	start := time.Now()
	entry, err = a.Put(entry, stream)
	m.RecordArchiveOperation("put", err == nil, time.Since(start))
	return entry, err
}

// reencode copies an existing stream through the encoder
func reencode(w io.Writer, r io.Reader, opts []codec.Option) (int64, int, error) {
	rdr, err := ipc.NewReader(r)
	if err != nil {
		return 0, 0, fmt.Errorf("read input stream: %w", err)
	}
	defer rdr.Release()

	counter := &rowCounter{RecordReader: rdr}
	n, err := arrowconv.Copy(w, counter, opts...)
	return counter.rows, n, err
}

type rowCounter struct {
	arrowconv.RecordReader
	rows int64
}

func (c *rowCounter) Next() bool {
	if !c.RecordReader.Next() {
		return false
	}
	c.rows += c.Record().NumRows()
	return true
}

// countingWriter fans writes out to every sink, counts bytes and flushes
// each sink that can be flushed
type countingWriter struct {
	w     io.Writer
	sinks []io.Writer
	n     int64
}

func newCountingWriter(sinks ...io.Writer) *countingWriter {
	c := &countingWriter{w: sinks[0], sinks: sinks}
	if len(sinks) > 1 {
		c.w = io.MultiWriter(sinks...)
	}
	return c
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

func (c *countingWriter) Flush() error {
	for _, w := range c.sinks {
		if f, ok := w.(interface{ Flush() error }); ok {
			if err := f.Flush(); err != nil {
				return err
			}
		}
	}
	return nil
}

func inputFormat(opts encodeOptions) (string, error) {
	switch strings.ToLower(opts.Format) {
	case formatCSV:
		return formatCSV, nil
	case formatArrows, "arrow", "ipc":
		return formatArrows, nil
	case "":
	default:
		return "", fmt.Errorf("unknown input format %q (want csv or arrows)", opts.Format)
	}
	switch strings.ToLower(filepath.Ext(opts.Input)) {
	case ".arrows", ".arrow", ".ipc":
		return formatArrows, nil
	}
	return formatCSV, nil
}

func delimiterRune(s string) rune {
	if s == `\t` {
		return '\t'
	}
	r, _ := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return 0
	}
	return r
}
