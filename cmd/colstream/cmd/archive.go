/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ssargent/colstream/pkg/storage"
)

// archiveCmd represents the archive command
var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Manage archived streams",
	Long: `List, download and delete streams kept in the archive.

Examples:
  colstream archive list
  colstream archive get 2Hx4mJ1oQkK4pB8m5v1Rj0xWqYz -o out.arrows
  colstream archive delete 2Hx4mJ1oQkK4pB8m5v1Rj0xWqYz`,
}

var archiveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived streams, oldest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchive(cmd, func(a *storage.Archive) error {
			return listArchive(cmd.OutOrStdout(), a)
		})
	},
}

var archiveGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Write an archived stream to a file or stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		return withArchive(cmd, func(a *storage.Archive) error {
			id, err := storage.ParseID(args[0])
			if err != nil {
				return err
			}
			_, stream, err := a.Get(id)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(stream)
				return err
			}
			return os.WriteFile(output, stream, 0644)
		})
	},
}

var archiveDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an archived stream",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArchive(cmd, func(a *storage.Archive) error {
			id, err := storage.ParseID(args[0])
			if err != nil {
				return err
			}
			if err := a.Delete(id); err != nil {
				return err
			}
			cmd.Printf("Deleted %s\n", id)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd)
	archiveCmd.AddCommand(archiveListCmd, archiveGetCmd, archiveDeleteCmd)
	archiveCmd.PersistentFlags().String("archive-dir", "", "Archive directory (default from config)")
	archiveGetCmd.Flags().StringP("output", "o", "", `Output file, or "-" for stdout`)
}

func withArchive(cmd *cobra.Command, fn func(*storage.Archive) error) error {
	rt := runtimeFrom(cmd)
	dir, _ := cmd.Flags().GetString("archive-dir")
	if dir == "" {
		dir = rt.config.Archive.Dir
	}
	a, err := storage.Open(dir)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func listArchive(out io.Writer, a *storage.Archive) error {
	entries, err := a.List()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tROWS\tBATCHES\tBYTES\tSTORED\tCREATED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n", e.ID, e.Name, e.Rows, e.Batches, e.Bytes, e.Stored, e.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
