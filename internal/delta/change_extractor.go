package delta

import (
	"context"
	"log/slog"
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/openmined/tablesync/internal/deltalog"
	"github.com/openmined/tablesync/internal/model"
)

// ConvertFunc converts a file action into a data file.
type ConvertFunc func(deltalog.Action) (*model.DataFile, error)

// ReconcileActions classifies the file actions of a single version into added
// and removed files keyed by physical path.
//
// Attaching a deletion vector to an existing file is logged as a remove of the
// old entry and an add of the same path carrying the vector. Such pairs are
// dropped from both sides. An add with a deletion vector and no matching
// remove stays added and is reported as an anomaly.
func ReconcileActions(version int64, actions []deltalog.Action, convert ConvertFunc) (*model.FilesDiff, []ReconciliationAnomaly, error) {
	diff := model.NewFilesDiff()
	maskedPaths := mapset.NewThreadUnsafeSet[string]()
	var masked []string

	for _, a := range actions {
		switch v := a.(type) {
		case *deltalog.AddFile:
			df, err := convert(v)
			if err != nil {
				return nil, nil, err
			}
			diff.FilesAdded[df.PhysicalPath] = df
			if v.DeletionVector != nil && maskedPaths.Add(df.PhysicalPath) {
				masked = append(masked, df.PhysicalPath)
			}
		case *deltalog.RemoveFile:
			df, err := convert(v)
			if err != nil {
				return nil, nil, err
			}
			diff.FilesRemoved[df.PhysicalPath] = df
		}
	}

	var anomalies []ReconciliationAnomaly
	for _, p := range masked {
		if _, ok := diff.FilesRemoved[p]; ok {
			delete(diff.FilesAdded, p)
			delete(diff.FilesRemoved, p)
			continue
		}
		anomalies = append(anomalies, ReconciliationAnomaly{Version: version, Path: p})
	}

	return diff, anomalies, nil
}

// ChangeExtractor builds the table change of a single version.
type ChangeExtractor struct {
	tables    *TableExtractor
	onAnomaly AnomalyHandler
}

func NewChangeExtractor(tables *TableExtractor, onAnomaly AnomalyHandler) *ChangeExtractor {
	return &ChangeExtractor{tables: tables, onAnomaly: onAnomaly}
}

func (e *ChangeExtractor) ExtractChange(ctx context.Context, state *IncrementalChangesState, version int64) (*model.TableChange, error) {
	actions, err := state.ActionsForVersion(ctx, version)
	if err != nil {
		return nil, err
	}

	snap, err := state.SnapshotAt(ctx, version)
	if err != nil {
		return nil, err
	}
	table, err := e.tables.FromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	format, err := FileFormat(snap.Metadata)
	if err != nil {
		return nil, err
	}

	converter := NewActionsConverter(table, format)
	diff, anomalies, err := ReconcileActions(version, actions, converter.Convert)
	if err != nil {
		return nil, err
	}

	for _, anomaly := range anomalies {
		slog.Warn("deletion vector added without a matching remove",
			"version", anomaly.Version,
			"path", anomaly.Path,
		)
		if e.onAnomaly != nil {
			e.onAnomaly(anomaly)
		}
	}

	return &model.TableChange{
		TableAsOfChange:  table,
		FilesDiff:        diff,
		SourceIdentifier: strconv.FormatInt(version, 10),
	}, nil
}
