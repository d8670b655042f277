package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"docsync/internal/model"
	"docsync/internal/util"

	"github.com/gofrs/flock"
)

// Store persists SyncMetadata as JSON. Writes hold an advisory file lock so
// a watch daemon and a one-shot run never interleave.
type Store struct {
	path string
	lock *flock.Flock
}

func NewStore(path string) *Store {
	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns empty metadata when the file does not exist yet. A file that
// exists but cannot be decoded is an error.
func (s *Store) Load() (*model.SyncMetadata, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.NewSyncMetadata(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata: %w", err)
	}

	var md model.SyncMetadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("metadata file %s is corrupt: %w", s.path, err)
	}
	md.Normalize()

	return &md, nil
}

func (s *Store) Save(md *model.SyncMetadata) error {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create metadata dir: %w", err)
	}

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock metadata: %w", err)
	}

	defer func() {
		_ = s.lock.Unlock()
	}()

	if err := util.AtomicWriteBytes(s.path, append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}

	return nil
}
