package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"docsync/internal/logger"
	"docsync/internal/model"
	"docsync/internal/util"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

const (
	idPrefix     = "backup_"
	idTimeLayout = "20060102_150405.000000000"
	zipExt       = ".zip"
	lockExt      = ".lock"
)

type Options struct {
	MaxBackups int
	Compress   bool
}

// Manager archives documents before they are overwritten. Snapshots live
// under dir as backup_<timestamp>/ or backup_<timestamp>.zip and are never
// modified after creation.
type Manager struct {
	root string
	dir  string
	opts Options
	now  func() time.Time

	mu       sync.Mutex
	pinned   map[string]int
	locks    map[string]*flock.Flock
	lastTime time.Time
}

func NewManager(root, dir string, opts Options) *Manager {
	if opts.MaxBackups < 1 {
		opts.MaxBackups = 1
	}
	return &Manager{
		root:   root,
		dir:    dir,
		opts:   opts,
		now:    time.Now,
		pinned: make(map[string]int),
		locks:  make(map[string]*flock.Flock),
	}
}

func (m *Manager) Dir() string {
	return m.dir
}

// Backup copies every existing file in paths (relative to the workspace
// root) into a new snapshot and returns its ID. It returns an empty ID when
// none of the files exist.
func (m *Manager) Backup(paths []string) (string, error) {
	var existing []string
	for _, p := range paths {
		ok, err := util.Exists(filepath.Join(m.root, p))
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", model.ErrBackupFailure, p, err)
		}
		if ok {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return "", nil
	}

	id, err := m.newID()
	if err != nil {
		return "", err
	}
	snapDir := filepath.Join(m.dir, id)

	for _, p := range existing {
		rel, err := cleanRel(p)
		if err != nil {
			_ = os.RemoveAll(snapDir)
			return "", fmt.Errorf("%w: %v", model.ErrBackupFailure, err)
		}
		if err := util.CopyFile(filepath.Join(m.root, p), filepath.Join(snapDir, rel)); err != nil {
			_ = os.RemoveAll(snapDir)
			return "", fmt.Errorf("%w: %s: %v", model.ErrBackupFailure, p, err)
		}
	}

	if m.opts.Compress {
		if err := zipDir(snapDir, snapDir+zipExt); err != nil {
			_ = os.RemoveAll(snapDir)
			return "", fmt.Errorf("%w: %v", model.ErrBackupFailure, err)
		}
		if err := os.RemoveAll(snapDir); err != nil {
			return "", fmt.Errorf("%w: failed to remove uncompressed snapshot: %v", model.ErrBackupFailure, err)
		}
	}

	logger.Log.Info("backup created",
		zap.String("id", id),
		zap.Int("files", len(existing)),
		zap.Bool("compressed", m.opts.Compress))

	return id, nil
}

func (m *Manager) newID() (string, error) {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return "", fmt.Errorf("%w: failed to create backup dir: %v", model.ErrBackupFailure, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	t := m.now()
	if !t.After(m.lastTime) {
		t = m.lastTime.Add(time.Nanosecond)
	}
	for m.exists(idPrefix + t.Format(idTimeLayout)) {
		t = t.Add(time.Nanosecond)
	}
	m.lastTime = t

	return idPrefix + t.Format(idTimeLayout), nil
}

func (m *Manager) exists(id string) bool {
	for _, p := range []string{filepath.Join(m.dir, id), filepath.Join(m.dir, id+zipExt)} {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}

// List returns all snapshots, newest first.
func (m *Manager) List() ([]model.Snapshot, error) {
	entries, err := os.ReadDir(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var snaps []model.Snapshot
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, idPrefix) {
			continue
		}

		compressed := !e.IsDir()
		id := name
		if compressed {
			if !strings.HasSuffix(name, zipExt) {
				continue
			}
			id = strings.TrimSuffix(name, zipExt)
		}

		created, err := time.ParseInLocation(idTimeLayout, strings.TrimPrefix(id, idPrefix), time.Local)
		if err != nil {
			continue
		}

		snaps = append(snaps, model.Snapshot{
			ID:         id,
			Path:       filepath.Join(m.dir, name),
			Compressed: compressed,
			CreatedAt:  created,
			Pinned:     m.pinned[id] > 0,
		})
	}

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].ID > snaps[j].ID
	})

	return snaps, nil
}

// Prune removes every snapshot beyond the retention count, oldest first,
// leaving pinned snapshots in place. A snapshot pinned by another process
// is detected through its lock file.
func (m *Manager) Prune() ([]string, error) {
	snaps, err := m.List()
	if err != nil {
		return nil, err
	}
	if len(snaps) <= m.opts.MaxBackups {
		return nil, nil
	}

	var removed []string
	for _, s := range snaps[m.opts.MaxBackups:] {
		if m.isPinned(s.ID) {
			logger.Log.Debug("skipping pinned backup",
				zap.String("id", s.ID))
			continue
		}
		ok, err := m.remove(s)
		if err != nil {
			return removed, err
		}
		if !ok {
			logger.Log.Debug("skipping backup pinned by another process",
				zap.String("id", s.ID))
			continue
		}
		removed = append(removed, s.ID)
	}

	if len(removed) > 0 {
		logger.Log.Info("old backups pruned",
			zap.Int("removed", len(removed)),
			zap.Int("kept", len(snaps)-len(removed)))
	}

	return removed, nil
}

// remove deletes a snapshot under an exclusive lock on its lock file and
// reports false when a reader holds the lock.
func (m *Manager) remove(s model.Snapshot) (bool, error) {
	lk := flock.New(m.lockPath(s.ID))
	ok, err := lk.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to lock backup %s: %w", s.ID, err)
	}
	if !ok {
		return false, nil
	}
	defer func() {
		_ = lk.Unlock()
	}()

	if err := os.RemoveAll(s.Path); err != nil {
		return false, fmt.Errorf("failed to remove backup %s: %w", s.ID, err)
	}
	_ = os.Remove(lk.Path())

	return true, nil
}

func (m *Manager) lockPath(id string) string {
	return filepath.Join(m.dir, id+lockExt)
}

// Acquire pins a snapshot so Prune leaves it alone until Release. The first
// pin takes a shared lock on the snapshot's lock file, which Prune in any
// process respects.
func (m *Manager) Acquire(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pinned[id] == 0 {
		if err := os.MkdirAll(m.dir, 0755); err != nil {
			return fmt.Errorf("failed to create backup dir: %w", err)
		}
		lk := flock.New(m.lockPath(id))
		if err := lk.RLock(); err != nil {
			return fmt.Errorf("failed to pin backup %s: %w", id, err)
		}
		m.locks[id] = lk
	}
	m.pinned[id]++

	return nil
}

func (m *Manager) Release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pinned[id] > 1 {
		m.pinned[id]--
		return
	}
	delete(m.pinned, id)
	if lk, ok := m.locks[id]; ok {
		_ = lk.Unlock()
		delete(m.locks, id)
	}
}

func (m *Manager) isPinned(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pinned[id] > 0
}

func (m *Manager) find(id string) (model.Snapshot, error) {
	snaps, err := m.List()
	if err != nil {
		return model.Snapshot{}, err
	}
	for _, s := range snaps {
		if s.ID == id {
			return s, nil
		}
	}
	return model.Snapshot{}, fmt.Errorf("backup %s not found", id)
}

// Restore writes every file of the snapshot back to its original location
// and returns the restored workspace-relative paths.
func (m *Manager) Restore(id string) ([]string, error) {
	snap, err := m.find(id)
	if err != nil {
		return nil, err
	}
	if err := m.Acquire(id); err != nil {
		return nil, err
	}
	defer m.Release(id)
	if ok, err := util.Exists(snap.Path); err != nil || !ok {
		return nil, fmt.Errorf("backup %s not found", id)
	}

	var restored []string
	err = m.walk(snap, func(rel string, r io.Reader) error {
		if err := util.AtomicWrite(filepath.Join(m.root, rel), r); err != nil {
			return fmt.Errorf("failed to restore %s: %w", rel, err)
		}
		restored = append(restored, rel)
		return nil
	})
	if err != nil {
		return restored, err
	}

	logger.Log.Info("backup restored",
		zap.String("id", id),
		zap.Int("files", len(restored)))

	return restored, nil
}

// ReadFile returns the archived content of rel inside snapshot id.
func (m *Manager) ReadFile(id, rel string) ([]byte, error) {
	snap, err := m.find(id)
	if err != nil {
		return nil, err
	}

	want, err := cleanRel(rel)
	if err != nil {
		return nil, err
	}

	var data []byte
	found := false
	err = m.walk(snap, func(name string, r io.Reader) error {
		if name != want || found {
			return nil
		}
		found = true
		b, rerr := io.ReadAll(r)
		data = b
		return rerr
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%s: %w", rel, fs.ErrNotExist)
	}

	return data, nil
}

func (m *Manager) walk(snap model.Snapshot, fn func(rel string, r io.Reader) error) error {
	if snap.Compressed {
		return walkZip(snap.Path, fn)
	}

	return filepath.WalkDir(snap.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(snap.Path, path)
		if err != nil {
			return err
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}

		defer func(f *os.File) {
			_ = f.Close()
		}(f)

		return fn(filepath.ToSlash(rel), f)
	})
}

func cleanRel(p string) (string, error) {
	clean := filepath.ToSlash(filepath.Clean(p))
	if filepath.IsAbs(p) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("path %q escapes the workspace", p)
	}
	return clean, nil
}
