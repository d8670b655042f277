package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"docsync/internal/entity"
	"docsync/internal/logger"
	"docsync/internal/model"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Changes struct {
	Modified []string `json:"modified"`
	Added    []string `json:"added"`
	Deleted  []string `json:"deleted"`
	Warnings []string `json:"warnings,omitempty"`

	// Stale lists stored paths that are no longer inside any configured
	// source directory. Only a scan of every type reports them.
	Stale []string `json:"stale,omitempty"`
}

func (c Changes) Empty() bool {
	return len(c.Modified)+len(c.Added)+len(c.Deleted) == 0
}

// Changed returns added and modified paths, sorted.
func (c Changes) Changed() []string {
	out := append(slices.Clone(c.Added), c.Modified...)
	sort.Strings(out)
	return out
}

type previous struct {
	hash   string
	exists bool
}

// Detector classifies sources under the configured entity directories
// against the Store. Added and modified hashes are written through; deleted
// entries stay until AckDeleted.
type Detector struct {
	store     *Store
	configDir string
	dirs      map[model.EntityType]string
	workers   int

	mu   sync.Mutex
	prev map[string]previous
}

func NewDetector(store *Store, configDir string, dirs map[model.EntityType]string, workers int) *Detector {
	if workers < 1 {
		workers = 1
	}
	return &Detector{
		store:     store,
		configDir: configDir,
		dirs:      dirs,
		workers:   workers,
		prev:      make(map[string]previous),
	}
}

type scanned struct {
	path string
	hash string
	err  error
}

// DetectChanges scans the directories of the given types, or all of them
// when none are given.
func (d *Detector) DetectChanges(ctx context.Context, types ...model.EntityType) (Changes, error) {
	return d.scan(ctx, types, true)
}

// Preview classifies like DetectChanges but leaves the store untouched.
func (d *Detector) Preview(ctx context.Context, types ...model.EntityType) (Changes, error) {
	return d.scan(ctx, types, false)
}

func (d *Detector) scan(ctx context.Context, types []model.EntityType, write bool) (Changes, error) {
	var changes Changes

	paths, scope, err := d.listSources(types)
	if err != nil {
		return changes, err
	}

	results := make([]scanned, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			h, err := Hash(filepath.Join(d.configDir, p))
			results[i] = scanned{path: p, hash: h, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return changes, err
	}

	for _, r := range results {
		if r.err != nil {
			logger.Log.Warn("failed to hash source, treating as unchanged",
				zap.String("path", r.path),
				zap.Error(r.err))
			changes.Warnings = append(changes.Warnings, fmt.Sprintf("%s: %v", r.path, r.err))
			continue
		}

		stored, ok := d.store.Get(r.path)
		switch {
		case !ok:
			changes.Added = append(changes.Added, r.path)
		case stored != r.hash:
			changes.Modified = append(changes.Modified, r.path)
		default:
			continue
		}
		if write {
			d.record(r.path, r.hash)
		}
	}

	for _, p := range d.store.Paths() {
		if len(types) == 0 && !d.Owns(p) {
			changes.Stale = append(changes.Stale, p)
			continue
		}
		if !inScope(p, scope) {
			continue
		}
		if _, err := os.Stat(filepath.Join(d.configDir, p)); errors.Is(err, os.ErrNotExist) {
			changes.Deleted = append(changes.Deleted, p)
		}
	}

	sort.Strings(changes.Added)
	sort.Strings(changes.Modified)
	sort.Strings(changes.Deleted)
	sort.Strings(changes.Stale)

	return changes, nil
}

// Check hashes a single source and reports whether it differs from the
// store, writing the new hash through when it does.
func (d *Detector) Check(relPath string) (string, bool, error) {
	h, changed, err := d.Peek(relPath)
	if err != nil || !changed {
		return h, changed, err
	}
	d.record(relPath, h)
	return h, true, nil
}

// Peek is Check without the write-through.
func (d *Detector) Peek(relPath string) (string, bool, error) {
	h, err := Hash(filepath.Join(d.configDir, relPath))
	if err != nil {
		return "", false, err
	}
	stored, ok := d.store.Get(relPath)
	return h, !ok || stored != h, nil
}

func (d *Detector) record(path, hash string) {
	prev, existed := d.store.Set(path, hash)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, pending := d.prev[path]; !pending {
		d.prev[path] = previous{hash: prev, exists: existed}
	}
}

// Commit forgets the pre-detection hash of path once its regeneration has
// succeeded.
func (d *Detector) Commit(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.prev, path)
}

// Rollback restores the hash path had before it was detected as changed, so
// a failed regeneration is detected again on the next pass.
func (d *Detector) Rollback(path string) {
	d.mu.Lock()
	p, ok := d.prev[path]
	delete(d.prev, path)
	d.mu.Unlock()

	if !ok {
		return
	}
	if p.exists {
		d.store.Set(path, p.hash)
	} else {
		d.store.Delete(path)
	}
}

// AckDeleted drops store entries once the caller has handled the deletion.
// Paths whose file has reappeared are kept.
func (d *Detector) AckDeleted(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(filepath.Join(d.configDir, p)); err == nil {
			continue
		}
		d.store.Delete(p)
		d.Commit(p)
	}
}

// Forget drops store entries regardless of whether their files exist.
func (d *Detector) Forget(paths ...string) {
	for _, p := range paths {
		d.store.Delete(p)
		d.Commit(p)
	}
}

// Owns reports whether relPath is a source file directly inside one of the
// configured entity directories.
func (d *Detector) Owns(relPath string) bool {
	if !entity.IsSourceFile(relPath) {
		return false
	}
	dir := filepath.Dir(filepath.Clean(relPath))
	for _, sd := range d.dirs {
		if filepath.Clean(sd) == dir {
			return true
		}
	}
	return false
}

// Sources lists the source files of the given types, or of every
// configured type.
func (d *Detector) Sources(types ...model.EntityType) ([]string, error) {
	paths, _, err := d.listSources(types)
	return paths, err
}

func (d *Detector) listSources(types []model.EntityType) ([]string, []string, error) {
	if len(types) == 0 {
		for t := range d.dirs {
			types = append(types, t)
		}
	}

	var paths, scope []string
	for _, t := range types {
		dir, ok := d.dirs[t]
		if !ok {
			return nil, nil, fmt.Errorf("no source directory configured for %s", t)
		}
		scope = append(scope, filepath.Clean(dir))

		entries, err := os.ReadDir(filepath.Join(d.configDir, dir))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, nil, fmt.Errorf("failed to list %s: %w", dir, err)
		}

		for _, e := range entries {
			if e.IsDir() || !entity.IsSourceFile(e.Name()) {
				continue
			}
			paths = append(paths, filepath.ToSlash(filepath.Join(dir, e.Name())))
		}
	}

	sort.Strings(paths)
	return paths, scope, nil
}

func inScope(path string, scope []string) bool {
	dir := filepath.Dir(filepath.FromSlash(path))
	return slices.Contains(scope, dir)
}
