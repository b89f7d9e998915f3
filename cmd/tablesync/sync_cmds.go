package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/openmined/tablesync/internal/delta"
	"github.com/openmined/tablesync/internal/journal"
	"github.com/openmined/tablesync/internal/watch"
	"github.com/spf13/cobra"
)

// openSyncer opens the table, the journal and the journal lock. The returned
// cleanup releases all three.
func openSyncer(cmd *cobra.Command) (*syncer, *session, func(), error) {
	sy := &syncer{}
	s, err := openSession(cmd, delta.WithAnomalyHandler(sy.onAnomaly))
	if err != nil {
		return nil, nil, nil, err
	}

	j, err := journal.Open(s.cfg.JournalPath)
	if err != nil {
		s.Close()
		return nil, nil, nil, err
	}

	sy.tableURI = s.cfg.TableURI
	sy.journal = j
	sy.source = s.source
	sy.lock = flock.New(j.Path() + ".lock")
	if err := sy.Lock(); err != nil {
		j.Close()
		s.Close()
		return nil, nil, nil, err
	}

	cleanup := func() {
		if err := sy.Unlock(); err != nil {
			slog.Warn("sync unlock", "error", err)
		}
		j.Close()
		s.Close()
	}
	return sy, s, cleanup, nil
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Advance the journaled sync state of the table to its latest version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sy, _, cleanup, err := openSyncer(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			res, err := sy.Run(cmd.Context())
			if err != nil {
				return err
			}
			return render(cmd, res, func(w io.Writer) error {
				printSyncResult(w, res)
				return nil
			})
		},
	}
	addOutputFlag(cmd)
	return cmd
}

func printSyncResult(w io.Writer, res *syncResult) {
	switch res.Mode {
	case syncModeUpToDate:
		fmt.Fprintf(w, "%s at version %d\n", gray.Render("up to date"), res.ToVersion)
		return
	case syncModeSnapshot:
		fmt.Fprintf(w, "%s version %d, %s files\n", cyan.Render("snapshot"), res.ToVersion, green.Render(fmt.Sprint(res.FilesAdded)))
	default:
		fmt.Fprintf(w, "%s versions %d..%d, %s added, %s removed\n", cyan.Render("incremental"), res.FromVersion, res.ToVersion,
			green.Render(fmt.Sprint(res.FilesAdded)), red.Render(fmt.Sprint(res.FilesRemoved)))
	}
	if res.Anomalies > 0 {
		fmt.Fprintln(w, red.Render(fmt.Sprintf("%d reconciliation anomalies, see log", res.Anomalies)))
	}
	fmt.Fprintln(w, gray.Render("synced through "+formatTime(res.LastSyncInstant)+" in "+res.Took))
}

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sync the table and keep syncing as new versions are committed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sy, s, cleanup, err := openSyncer(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			runOnce := func() {
				res, err := sy.Run(ctx)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						slog.Error("sync failed", "table", sy.tableURI, "error", err)
					}
					return
				}
				printSyncResult(out, res)
			}

			runOnce()

			interval, _ := cmd.Flags().GetDuration("interval")
			if s.location.Scheme == "file" {
				debounce, _ := cmd.Flags().GetDuration("debounce")
				return watchLocal(ctx, s.location.LocalDir, debounce, runOnce)
			}
			return poll(ctx, interval, runOnce)
		},
	}
	cmd.Flags().Duration("interval", 30*time.Second, "poll interval for remote tables")
	cmd.Flags().Duration("debounce", watch.DefaultDebounce, "quiet period before syncing a local table after its log changes")
	return cmd
}

func watchLocal(ctx context.Context, dir string, debounce time.Duration, run func()) error {
	w := watch.New(dir, watch.WithDebounce(debounce))
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("watch %s: %w", w.LogDir(), err)
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			slog.Debug("log changed", "commits", len(ev.Paths))
			run()
		}
	}
}

func poll(ctx context.Context, interval time.Duration, run func()) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			run()
		}
	}
}

type runView struct {
	ID           string    `json:"id" yaml:"id"`
	FromVersion  int64     `json:"fromVersion" yaml:"fromVersion"`
	ToVersion    int64     `json:"toVersion" yaml:"toVersion"`
	FilesAdded   int       `json:"filesAdded" yaml:"filesAdded"`
	FilesRemoved int       `json:"filesRemoved" yaml:"filesRemoved"`
	Anomalies    int       `json:"anomalies" yaml:"anomalies"`
	StartedAt    time.Time `json:"startedAt" yaml:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt" yaml:"finishedAt"`
}

type statusView struct {
	Table           string    `json:"table" yaml:"table"`
	LastVersion     *int64    `json:"lastVersion,omitempty" yaml:"lastVersion,omitempty"`
	LastSyncInstant time.Time `json:"lastSyncInstant,omitempty" yaml:"lastSyncInstant,omitempty"`
	Runs            []runView `json:"runs" yaml:"runs"`
}

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show the journaled sync state and recent sync runs of the table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true
			logs, err := setupLogging(cfg)
			if err != nil {
				return err
			}
			defer logs.Close()

			j, err := journal.Open(cfg.JournalPath)
			if err != nil {
				return err
			}
			defer j.Close()

			ctx := cmd.Context()
			state, err := j.Get(ctx, cfg.TableURI)
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := j.Runs(ctx, cfg.TableURI, limit)
			if err != nil {
				return err
			}

			view := statusView{Table: cfg.TableURI, Runs: make([]runView, 0, len(runs))}
			if state != nil {
				view.LastVersion = &state.LastVersion
				view.LastSyncInstant = state.LastSyncInstant
			}
			for _, r := range runs {
				view.Runs = append(view.Runs, runView{
					ID:           r.ID,
					FromVersion:  r.FromVersion,
					ToVersion:    r.ToVersion,
					FilesAdded:   r.FilesAdded,
					FilesRemoved: r.FilesRemoved,
					Anomalies:    r.Anomalies,
					StartedAt:    r.StartedAt,
					FinishedAt:   r.FinishedAt,
				})
			}

			return render(cmd, view, func(w io.Writer) error {
				if view.LastVersion == nil {
					_, err := fmt.Fprintln(w, gray.Render("never synced"))
					return err
				}
				fmt.Fprintf(w, "%s version %d at %s\n", bold.Render(view.Table), *view.LastVersion, formatTime(view.LastSyncInstant))
				for _, r := range view.Runs {
					fmt.Fprintf(w, "  %s %d..%d +%d -%d %s\n", gray.Render(formatTime(r.StartedAt)), r.FromVersion, r.ToVersion,
						r.FilesAdded, r.FilesRemoved, lightGray.Render(r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntP("limit", "n", 10, "number of runs to show")
	addOutputFlag(cmd)
	return cmd
}
