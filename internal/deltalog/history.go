package deltalog

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/openmined/tablesync/internal/blob"
)

const (
	LogDir = "_delta_log"

	commitFileDigits = 20
	commitFileSuffix = ".json"
)

// Commit is a version together with its resolved commit timestamp.
type Commit struct {
	Version   int64
	Timestamp time.Time
}

type commitFile struct {
	version      int64
	key          string
	lastModified time.Time
}

// CommitFileKey returns the key of the commit file for version relative to the table root.
func CommitFileKey(version int64) string {
	return fmt.Sprintf("%s/%0*d%s", LogDir, commitFileDigits, version, commitFileSuffix)
}

// parseCommitFileKey returns the version of a commit file key. Checkpoints,
// checksums and staged commits are not commit files.
func parseCommitFileKey(key string) (int64, bool) {
	dir, name := path.Split(key)
	if strings.TrimSuffix(dir, "/") != LogDir {
		return 0, false
	}
	if len(name) != commitFileDigits+len(commitFileSuffix) || !strings.HasSuffix(name, commitFileSuffix) {
		return 0, false
	}
	v, err := strconv.ParseInt(strings.TrimSuffix(name, commitFileSuffix), 10, 64)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// IsCommitFileName reports whether name, a file name inside the log
// directory, is a commit file.
func IsCommitFileName(name string) bool {
	_, ok := parseCommitFileKey(LogDir + "/" + name)
	return ok
}

func listCommitFiles(ctx context.Context, client blob.IBlobClient) ([]commitFile, error) {
	objects, err := client.ListObjects(ctx, LogDir+"/")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", LogDir, err)
	}

	files := make([]commitFile, 0, len(objects))
	for _, obj := range objects {
		v, ok := parseCommitFileKey(obj.Key)
		if !ok {
			continue
		}
		files = append(files, commitFile{version: v, key: obj.Key, lastModified: obj.LastModified})
	}

	slices.SortFunc(files, func(a, b commitFile) int {
		switch {
		case a.version < b.version:
			return -1
		case a.version > b.version:
			return 1
		}
		return 0
	})

	for i := 1; i < len(files); i++ {
		if files[i].version != files[i-1].version+1 {
			return nil, fmt.Errorf("%w: versions %d to %d are missing", ErrVersionNotFound, files[i-1].version+1, files[i].version-1)
		}
	}

	return files, nil
}

// monotonizeTimestamps makes commit timestamps strictly increasing, bumping
// any timestamp that does not advance past its predecessor by one millisecond.
func monotonizeTimestamps(millis []int64) {
	for i := 1; i < len(millis); i++ {
		if millis[i] <= millis[i-1] {
			millis[i] = millis[i-1] + 1
		}
	}
}

// History is the ordered list of commits of the log at the time it was read.
type History struct {
	commits []Commit
}

func newHistory(versions []int64, millis []int64) *History {
	monotonizeTimestamps(millis)
	commits := make([]Commit, len(versions))
	for i, v := range versions {
		commits[i] = Commit{Version: v, Timestamp: time.UnixMilli(millis[i]).UTC()}
	}
	return &History{commits: commits}
}

func (h *History) Earliest() (Commit, error) {
	if len(h.commits) == 0 {
		return Commit{}, ErrEmptyLog
	}
	return h.commits[0], nil
}

func (h *History) Latest() (Commit, error) {
	if len(h.commits) == 0 {
		return Commit{}, ErrEmptyLog
	}
	return h.commits[len(h.commits)-1], nil
}

func (h *History) CommitAt(version int64) (Commit, error) {
	if len(h.commits) == 0 {
		return Commit{}, ErrEmptyLog
	}
	first := h.commits[0].Version
	if version < first || version > h.commits[len(h.commits)-1].Version {
		return Commit{}, fmt.Errorf("%w: %d", ErrVersionNotFound, version)
	}
	return h.commits[version-first], nil
}

// ActiveCommitAtOrBefore returns the most recent commit whose timestamp is at
// or before ts (strictly before when inclusive is false), compared at
// millisecond granularity. When ts precedes every commit the earliest commit
// is returned, so callers that need "at or before" must compare the result.
func (h *History) ActiveCommitAtOrBefore(ts time.Time, inclusive bool) (Commit, error) {
	if len(h.commits) == 0 {
		return Commit{}, ErrEmptyLog
	}

	target := ts.UnixMilli()
	// first commit that is after target
	idx, _ := slices.BinarySearchFunc(h.commits, target, func(c Commit, t int64) int {
		ms := c.Timestamp.UnixMilli()
		if ms < t || (inclusive && ms == t) {
			return -1
		}
		return 1
	})
	if idx == 0 {
		return h.commits[0], nil
	}
	return h.commits[idx-1], nil
}
