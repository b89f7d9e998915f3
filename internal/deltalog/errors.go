package deltalog

import "errors"

var (
	ErrEmptyLog               = errors.New("table log has no commits")
	ErrVersionNotFound        = errors.New("version not found in table log")
	ErrSnapshotNotRecreatable = errors.New("snapshot cannot be recreated from the available commits")
	ErrInvalidCommitFile      = errors.New("invalid commit file")
	ErrMissingMetadata        = errors.New("table log has no metadata action")
	ErrInvalidDeletionVector  = errors.New("invalid deletion vector descriptor")
)
