package main

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/openmined/tablesync/internal/model"
	"github.com/spf13/cobra"
)

func newTableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "table",
		Short: "Print the table schema and partitioning",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			var table *model.InternalTable
			if cmd.Flags().Changed("version") {
				v, _ := cmd.Flags().GetInt64("version")
				table, err = s.source.GetTable(cmd.Context(), v)
			} else {
				table, err = s.source.GetCurrentTable(cmd.Context())
			}
			if err != nil {
				return err
			}

			view := newTableView(table)
			return render(cmd, view, func(w io.Writer) error {
				printTable(w, view)
				return nil
			})
		},
	}
	cmd.Flags().Int64("version", 0, "table version (default latest)")
	addOutputFlag(cmd)
	return cmd
}

func printTable(w io.Writer, t tableView) {
	fmt.Fprintf(w, "%s %s\n", bold.Render(t.Name), gray.Render(t.BasePath))
	fmt.Fprintf(w, "%s %d at %s\n", lightGray.Render("version"), t.Version, formatTime(t.LatestCommitTime))
	if len(t.PartitionColumns) > 0 {
		fmt.Fprintf(w, "%s %v\n", lightGray.Render("partitioned by"), t.PartitionColumns)
	}
	for _, f := range t.Fields {
		null := ""
		if !f.Nullable {
			null = " not null"
		}
		line := fmt.Sprintf("  %-24s %s%s", f.Path, cyan.Render(f.Type), null)
		if f.Comment != "" {
			line += gray.Render("  -- " + f.Comment)
		}
		fmt.Fprintln(w, line)
	}
}

func newSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "List the live data files of the latest version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			snap, err := s.source.GetCurrentSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			filter, err := newFileFilter(cmd, snap.Table.BasePath)
			if err != nil {
				return err
			}

			view := snapshotView{
				Table:      newTableView(snap.Table),
				Commit:     snap.SourceIdentifier,
				Partitions: make([]partitionView, 0, len(snap.PartitionedDataFiles)),
			}
			for _, g := range snap.PartitionedDataFiles {
				files := filter.Filter(g.Files)
				if len(files) == 0 {
					continue
				}
				for _, f := range files {
					view.TotalBytes += f.FileSizeBytes
				}
				view.FileCount += len(files)
				view.Partitions = append(view.Partitions, partitionView{
					Partition: model.PartitionKey(g.PartitionValues),
					Files:     newFileViews(files),
				})
			}

			return render(cmd, view, func(w io.Writer) error {
				printSnapshot(w, view)
				return nil
			})
		},
	}
	addIncludeFlag(cmd)
	addOutputFlag(cmd)
	return cmd
}

func printSnapshot(w io.Writer, s snapshotView) {
	fmt.Fprintf(w, "%s %s %s\n", bold.Render(s.Table.Name), lightGray.Render("commit"), s.Commit)
	for _, p := range s.Partitions {
		name := p.Partition
		if name == "" {
			name = "(unpartitioned)"
		}
		fmt.Fprintln(w, cyan.Render(name))
		for _, f := range p.Files {
			printFile(w, "  ", f)
		}
	}
	fmt.Fprintf(w, "%d files, %s\n", s.FileCount, humanize.IBytes(uint64(s.TotalBytes)))
}

func printFile(w io.Writer, prefix string, f fileView) {
	line := fmt.Sprintf("%s%s %s", prefix, f.Path, gray.Render(fmt.Sprintf("%s, %d rows", humanize.IBytes(uint64(f.SizeBytes)), f.RecordCount)))
	if f.DeletionVectorRef != "" {
		line += gray.Render(" dv=" + f.DeletionVectorRef)
	}
	fmt.Fprintln(w, line)
}
