package model

import (
	"errors"
	"fmt"
)

// File-local failures. A pass records them per file and moves on.
var (
	ErrParse            = errors.New("parse error")
	ErrUnresolvedType   = errors.New("unresolved entity type")
	ErrTemplateNotFound = errors.New("template not found")
	ErrRender           = errors.New("render error")
	ErrSchemaValidation = errors.New("schema validation failed")
	ErrBackupFailure    = errors.New("backup failed")
	ErrConflict         = errors.New("conflicting sources")
)

// ErrMetadataPersist aborts the pass.
var ErrMetadataPersist = errors.New("failed to persist sync metadata")

// ErrSourceNotFound is returned for a single-file sync of a path that is
// neither on disk nor tracked.
var ErrSourceNotFound = errors.New("source not found")

type FileError struct {
	Path string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// Kind returns the taxonomy label of a file-local error, or "error" when it
// does not wrap one of the known sentinels.
func Kind(err error) string {
	for _, k := range []error{
		ErrParse, ErrUnresolvedType, ErrTemplateNotFound, ErrRender,
		ErrSchemaValidation, ErrBackupFailure, ErrConflict, ErrMetadataPersist,
	} {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "error"
}
