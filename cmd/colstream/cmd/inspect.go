/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/spf13/cobra"

	"github.com/ssargent/colstream/pkg/storage"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "List the messages of a stream and check that it decodes",
	Long: `Inspect a stream file, or an archived stream with --id. Every message
is listed with its offset and lengths, then the stream is decoded to
report its schema and row count.

Examples:
  colstream inspect data.arrows
  colstream inspect --id 2Hx4mJ1oQkK4pB8m5v1Rj0xWqYz --rows`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rt := runtimeFrom(cmd)
		id, _ := cmd.Flags().GetString("id")
		showRows, _ := cmd.Flags().GetBool("rows")

		var data []byte
		switch {
		case id != "" && len(args) == 0:
			a, err := storage.Open(rt.config.Archive.Dir)
			if err != nil {
				return err
			}
			defer a.Close()
			ksid, err := storage.ParseID(id)
			if err != nil {
				return err
			}
			if _, data, err = a.Get(ksid); err != nil {
				return err
			}
		case id == "" && len(args) == 1:
			var err error
			if data, err = os.ReadFile(args[0]); err != nil {
				return err
			}
		default:
			return errors.New("give either a file or --id")
		}
		return runInspect(cmd.OutOrStdout(), data, showRows)
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().String("id", "", "Inspect an archived stream")
	inspectCmd.Flags().Bool("rows", false, "Print every record batch")
}

// messageInfo is one framed message as seen by the reader
type messageInfo struct {
	Offset   int64
	Type     string
	Metadata int64
	Body     int64
}

// listMessages walks the stream with arrow's message reader. Offsets are
// taken from the bytes consumed so far.
func listMessages(data []byte) ([]messageInfo, error) {
	src := bytes.NewReader(data)
	mr := ipc.NewMessageReader(src)
	defer mr.Release()

	var infos []messageInfo
	offset := int64(0)
	for {
		msg, err := mr.Message()
		if errors.Is(err, io.EOF) {
			return infos, nil
		}
		if err != nil {
			return infos, fmt.Errorf("message %d at offset %d: %w", len(infos), offset, err)
		}
		consumed := int64(len(data)) - int64(src.Len())
		body := msg.BodyLen()
		infos = append(infos, messageInfo{
			Offset:   offset,
			Type:     msg.Type().String(),
			Metadata: consumed - offset - body,
			Body:     body,
		})
		offset = consumed
	}
}

func runInspect(out io.Writer, data []byte, showRows bool) error {
	infos, err := listMessages(data)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tOFFSET\tTYPE\tMETADATA\tBODY\tALIGNED")
	for i, m := range infos {
		aligned := m.Offset%8 == 0 && m.Metadata%8 == 0 && m.Body%8 == 0
		fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%d\t%t\n", i, m.Offset, m.Type, m.Metadata, m.Body, aligned)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	rdr, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode stream: %w", err)
	}
	defer rdr.Release()

	fmt.Fprintf(out, "\nschema:\n%s\n", rdr.Schema())
	var rows int64
	batches := 0
	for rdr.Next() {
		rec := rdr.Record()
		rows += rec.NumRows()
		if showRows {
			fmt.Fprintf(out, "\nbatch %d (%d rows)\n", batches, rec.NumRows())
			for i, col := range rec.Columns() {
				fmt.Fprintf(out, "  %s: %s\n", rec.ColumnName(i), col)
			}
		}
		batches++
	}
	if err := rdr.Err(); err != nil {
		return fmt.Errorf("decode stream: %w", err)
	}
	fmt.Fprintf(out, "\n%d rows in %d record batches, %d bytes\n", rows, batches, len(data))
	return nil
}
