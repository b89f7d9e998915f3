package main

import (
	"fmt"
	"io"

	"github.com/openmined/tablesync/internal/model"
	"github.com/spf13/cobra"
)

type backlogView struct {
	Since    string  `json:"since" yaml:"since"`
	Versions []int64 `json:"versions" yaml:"versions"`
}

func newBacklogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backlog",
		Short: "List the versions committed after an instant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			since, err := sinceFlag(cmd)
			if err != nil {
				return err
			}
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			backlog, err := s.source.GetCommitsBacklog(cmd.Context(), since)
			if err != nil {
				return err
			}

			view := backlogView{Since: formatTime(since), Versions: backlog.CommitsToProcess}
			if view.Versions == nil {
				view.Versions = []int64{}
			}
			return render(cmd, view, func(w io.Writer) error {
				if backlog.IsEmpty() {
					_, err := fmt.Fprintln(w, gray.Render("up to date"))
					return err
				}
				for _, v := range backlog.CommitsToProcess {
					if _, err := fmt.Fprintln(w, v); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	addSinceFlag(cmd)
	addOutputFlag(cmd)
	return cmd
}

func newChangesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "changes",
		Short: "Show the files added and removed by every version after an instant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			since, err := sinceFlag(cmd)
			if err != nil {
				return err
			}
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			backlog, err := s.source.GetCommitsBacklog(ctx, since)
			if err != nil {
				return err
			}
			filter, err := newFileFilter(cmd, s.location.BasePath())
			if err != nil {
				return err
			}

			views := make([]changeView, 0, len(backlog.CommitsToProcess))
			for _, v := range backlog.CommitsToProcess {
				change, err := s.source.GetTableChangeForCommit(ctx, v)
				if err != nil {
					return err
				}
				views = append(views, newChangeView(v, change, filter))
			}

			return render(cmd, views, func(w io.Writer) error {
				for _, c := range views {
					printChange(w, c)
				}
				return nil
			})
		},
	}
	addSinceFlag(cmd)
	addIncludeFlag(cmd)
	addOutputFlag(cmd)
	return cmd
}

func newChangeView(version int64, change *model.TableChange, filter *fileFilter) changeView {
	view := changeView{
		Version: version,
		Commit:  change.SourceIdentifier,
		At:      change.TableAsOfChange.LatestCommitTime,
	}
	view.Added = newFileViews(filter.Filter(filesAt(change.FilesDiff.FilesAdded, change.FilesDiff.AddedPaths())))
	view.Removed = newFileViews(filter.Filter(filesAt(change.FilesDiff.FilesRemoved, change.FilesDiff.RemovedPaths())))
	return view
}

func filesAt(files map[string]*model.DataFile, paths []string) []*model.DataFile {
	out := make([]*model.DataFile, 0, len(paths))
	for _, p := range paths {
		out = append(out, files[p])
	}
	return out
}

func printChange(w io.Writer, c changeView) {
	fmt.Fprintf(w, "%s %s\n", cyan.Render(fmt.Sprintf("version %d", c.Version)), gray.Render(formatTime(c.At)))
	if len(c.Added) == 0 && len(c.Removed) == 0 {
		fmt.Fprintln(w, gray.Render("  no file changes"))
	}
	for _, f := range c.Removed {
		fmt.Fprintln(w, red.Render("  - "+f.Path))
	}
	for _, f := range c.Added {
		printFile(w, green.Render("  + "), f)
	}
}

type safeView struct {
	Since string `json:"since" yaml:"since"`
	Safe  bool   `json:"safe" yaml:"safe"`
}

func newSafeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "safe",
		Short: "Report whether an incremental sync can resume from an instant",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			since, err := sinceFlag(cmd)
			if err != nil {
				return err
			}
			s, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			safe, err := s.source.IsIncrementalSyncSafeFrom(cmd.Context(), since)
			if err != nil {
				return err
			}

			view := safeView{Since: formatTime(since), Safe: safe}
			return render(cmd, view, func(w io.Writer) error {
				if safe {
					_, err := fmt.Fprintln(w, green.Render("safe"))
					return err
				}
				_, err := fmt.Fprintln(w, red.Render("not safe: run a full snapshot sync"))
				return err
			})
		},
	}
	addSinceFlag(cmd)
	addOutputFlag(cmd)
	return cmd
}
