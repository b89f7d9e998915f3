package deltalog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

type ActionKind string

const (
	KindAdd        ActionKind = "add"
	KindRemove     ActionKind = "remove"
	KindMetadata   ActionKind = "metaData"
	KindProtocol   ActionKind = "protocol"
	KindCommitInfo ActionKind = "commitInfo"
	KindTxn        ActionKind = "txn"
	KindCDC        ActionKind = "cdc"
)

// Action is a single entry of a commit file. Values returned by the log are
// shared between callers and must be treated as read-only.
type Action interface {
	Kind() ActionKind
}

// AddFile adds a data file to the table. When DeletionVector is set the action
// attaches a row-level delete mask to the file at Path.
type AddFile struct {
	Path             string             `json:"path"`
	PartitionValues  map[string]*string `json:"partitionValues"`
	Size             int64              `json:"size"`
	ModificationTime int64              `json:"modificationTime"`
	DataChange       bool               `json:"dataChange"`
	Stats            string             `json:"stats,omitempty"`
	Tags             map[string]string  `json:"tags,omitempty"`
	DeletionVector   *DeletionVector    `json:"deletionVector,omitempty"`
	BaseRowID        *int64             `json:"baseRowId,omitempty"`
}

func (a *AddFile) Kind() ActionKind { return KindAdd }

// FileKey identifies the logical file: the same path with a different
// deletion vector is a different entry of the snapshot.
func (a *AddFile) FileKey() string {
	return fileKey(a.Path, a.DeletionVector)
}

type RemoveFile struct {
	Path                 string             `json:"path"`
	DeletionTimestamp    *int64             `json:"deletionTimestamp,omitempty"`
	DataChange           bool               `json:"dataChange"`
	ExtendedFileMetadata *bool              `json:"extendedFileMetadata,omitempty"`
	PartitionValues      map[string]*string `json:"partitionValues,omitempty"`
	Size                 *int64             `json:"size,omitempty"`
	Stats                string             `json:"stats,omitempty"`
	Tags                 map[string]string  `json:"tags,omitempty"`
	DeletionVector       *DeletionVector    `json:"deletionVector,omitempty"`
}

func (r *RemoveFile) Kind() ActionKind { return KindRemove }

func (r *RemoveFile) FileKey() string {
	return fileKey(r.Path, r.DeletionVector)
}

type Format struct {
	Provider string            `json:"provider"`
	Options  map[string]string `json:"options,omitempty"`
}

type Metadata struct {
	ID               string            `json:"id"`
	Name             string            `json:"name,omitempty"`
	Description      string            `json:"description,omitempty"`
	Format           Format            `json:"format"`
	SchemaString     string            `json:"schemaString"`
	PartitionColumns []string          `json:"partitionColumns"`
	Configuration    map[string]string `json:"configuration,omitempty"`
	CreatedTime      *int64            `json:"createdTime,omitempty"`
}

func (m *Metadata) Kind() ActionKind { return KindMetadata }

type Protocol struct {
	MinReaderVersion int      `json:"minReaderVersion"`
	MinWriterVersion int      `json:"minWriterVersion"`
	ReaderFeatures   []string `json:"readerFeatures,omitempty"`
	WriterFeatures   []string `json:"writerFeatures,omitempty"`
}

func (p *Protocol) Kind() ActionKind { return KindProtocol }

type CommitInfo struct {
	Timestamp           int64          `json:"timestamp"`
	InCommitTimestamp   *int64         `json:"inCommitTimestamp,omitempty"`
	Operation           string         `json:"operation,omitempty"`
	OperationParameters map[string]any `json:"operationParameters,omitempty"`
	IsBlindAppend       *bool          `json:"isBlindAppend,omitempty"`
	EngineInfo          string         `json:"engineInfo,omitempty"`
}

func (c *CommitInfo) Kind() ActionKind { return KindCommitInfo }

type SetTransaction struct {
	AppID       string `json:"appId"`
	Version     int64  `json:"version"`
	LastUpdated *int64 `json:"lastUpdated,omitempty"`
}

func (t *SetTransaction) Kind() ActionKind { return KindTxn }

type AddCDCFile struct {
	Path            string             `json:"path"`
	PartitionValues map[string]*string `json:"partitionValues"`
	Size            int64              `json:"size"`
	DataChange      bool               `json:"dataChange"`
}

func (c *AddCDCFile) Kind() ActionKind { return KindCDC }

// actionEnvelope is one line of a commit file. Exactly one field is expected
// to be set; lines with unknown keys decode to an empty envelope.
type actionEnvelope struct {
	Add        *AddFile        `json:"add,omitempty"`
	Remove     *RemoveFile     `json:"remove,omitempty"`
	MetaData   *Metadata       `json:"metaData,omitempty"`
	Protocol   *Protocol       `json:"protocol,omitempty"`
	CommitInfo *CommitInfo     `json:"commitInfo,omitempty"`
	Txn        *SetTransaction `json:"txn,omitempty"`
	CDC        *AddCDCFile     `json:"cdc,omitempty"`
}

func (e *actionEnvelope) action() Action {
	switch {
	case e.Add != nil:
		return e.Add
	case e.Remove != nil:
		return e.Remove
	case e.MetaData != nil:
		return e.MetaData
	case e.Protocol != nil:
		return e.Protocol
	case e.CommitInfo != nil:
		return e.CommitInfo
	case e.Txn != nil:
		return e.Txn
	case e.CDC != nil:
		return e.CDC
	}
	return nil
}

const maxActionLineSize = 64 * 1024 * 1024

// ParseActions decodes a newline-delimited commit file, keeping the order of
// the lines. Blank lines and actions this reader does not know are skipped.
func ParseActions(r io.Reader) ([]Action, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxActionLineSize)

	var actions []Action
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var env actionEnvelope
		if err := jsonUnmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidCommitFile, line, err)
		}
		if a := env.action(); a != nil {
			actions = append(actions, a)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCommitFile, err)
	}

	return actions, nil
}

// EncodeAction renders a single action as a commit file line.
func EncodeAction(a Action) ([]byte, error) {
	var env actionEnvelope
	switch v := a.(type) {
	case *AddFile:
		env.Add = v
	case *RemoveFile:
		env.Remove = v
	case *Metadata:
		env.MetaData = v
	case *Protocol:
		env.Protocol = v
	case *CommitInfo:
		env.CommitInfo = v
	case *SetTransaction:
		env.Txn = v
	case *AddCDCFile:
		env.CDC = v
	default:
		return nil, fmt.Errorf("unknown action type %T", a)
	}
	return jsonMarshal(&env)
}
