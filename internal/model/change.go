package model

import (
	"maps"
	"slices"
	"time"
)

// FilesDiff is the set of data files added and removed by a single version,
// keyed by physical path.
type FilesDiff struct {
	FilesAdded   map[string]*DataFile
	FilesRemoved map[string]*DataFile
}

func NewFilesDiff() *FilesDiff {
	return &FilesDiff{
		FilesAdded:   make(map[string]*DataFile),
		FilesRemoved: make(map[string]*DataFile),
	}
}

// AddedPaths returns the added paths in lexical order.
func (d *FilesDiff) AddedPaths() []string {
	return slices.Sorted(maps.Keys(d.FilesAdded))
}

// RemovedPaths returns the removed paths in lexical order.
func (d *FilesDiff) RemovedPaths() []string {
	return slices.Sorted(maps.Keys(d.FilesRemoved))
}

// IsEmpty returns true if the diff neither adds nor removes any file.
func (d *FilesDiff) IsEmpty() bool {
	return len(d.FilesAdded) == 0 && len(d.FilesRemoved) == 0
}

// TableChange is the table as of a version together with the files that
// version added and removed.
type TableChange struct {
	TableAsOfChange  *InternalTable
	FilesDiff        *FilesDiff
	SourceIdentifier string
}

// CommitsBacklog lists the versions still to be processed, in increasing order.
type CommitsBacklog struct {
	CommitsToProcess []int64
}

func (b *CommitsBacklog) IsEmpty() bool {
	return len(b.CommitsToProcess) == 0
}

// InstantsForIncrementalSync carries the point from which an incremental sync resumes.
type InstantsForIncrementalSync struct {
	LastSyncInstant time.Time
}

// InternalSnapshot is the full table state as of one version.
type InternalSnapshot struct {
	Table                *InternalTable
	PartitionedDataFiles []*PartitionFileGroup
	SourceIdentifier     string
}

// FileCount returns the number of data files across all partitions.
func (s *InternalSnapshot) FileCount() int {
	n := 0
	for _, g := range s.PartitionedDataFiles {
		n += len(g.Files)
	}
	return n
}

type PartitionFileGroup struct {
	PartitionValues []PartitionValue
	Files           []*DataFile
}

// GroupFilesByPartition groups files by their partition values. Groups and the
// files inside each group keep the order in which they were first seen.
func GroupFilesByPartition(files []*DataFile) []*PartitionFileGroup {
	groups := make([]*PartitionFileGroup, 0)
	byKey := make(map[string]*PartitionFileGroup)
	for _, f := range files {
		key := f.PartitionKey()
		g, ok := byKey[key]
		if !ok {
			g = &PartitionFileGroup{PartitionValues: f.PartitionValues}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.Files = append(g.Files, f)
	}
	return groups
}
