package delta

import (
	"errors"
	"fmt"

	"github.com/openmined/tablesync/internal/deltalog"
)

var (
	ErrRead                       = errors.New("table read failed")
	ErrChangesStateNotInitialized = errors.New("changes state is not initialized, request a commits backlog first")
	ErrSourceClosed               = errors.New("conversion source is closed")
	ErrVersionNotInBacklog        = errors.New("version is not part of the current commits backlog")
	ErrUnsupportedFileFormat      = errors.New("unsupported file format")
	ErrInvalidSchema              = errors.New("invalid table schema")
	ErrMissingMetadata            = deltalog.ErrMissingMetadata
)

// ReadError reports a failure to read or enumerate table state at a version.
// errors.Is matches both ErrRead and the underlying cause.
type ReadError struct {
	Version int64
	Op      string
	Err     error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("%s at version %d: %v", e.Op, e.Version, e.Err)
}

func (e *ReadError) Unwrap() []error {
	return []error{ErrRead, e.Err}
}

// StateError reports an operation invoked in a state that does not allow it.
type StateError struct {
	Op  string
	Err error
}

func (e *StateError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// ReconciliationAnomaly records a file that gained a deletion vector in a
// commit that did not also remove its previous entry. The file is kept as
// added.
type ReconciliationAnomaly struct {
	Version int64
	Path    string
}

// AnomalyHandler receives every reconciliation anomaly as it is found.
type AnomalyHandler func(ReconciliationAnomaly)
