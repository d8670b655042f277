package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"docsync/internal/audit"
	"docsync/internal/backup"
	"docsync/internal/config"
	"docsync/internal/conflict"
	"docsync/internal/entity"
	"docsync/internal/fingerprint"
	"docsync/internal/generator"
	"docsync/internal/logger"
	"docsync/internal/metadata"
	"docsync/internal/model"
	"docsync/internal/render"
	"docsync/internal/schema"
	"docsync/internal/util"
	"docsync/internal/vcs"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HistoryRecorder receives every sync record once it is durable in the
// metadata file.
type HistoryRecorder interface {
	SaveAll(recs []model.SyncRecord) error
}

// Deps overrides the collaborators built from the config. Zero values are
// filled in by New.
type Deps struct {
	Engine    render.Engine
	Validator schema.Validator
	VCS       vcs.Client
	History   HistoryRecorder
	Now       func() time.Time
}

type Options struct {
	DryRun bool

	// Types restricts a full pass to some entity types. Empty means all.
	Types []model.EntityType

	// Force regenerates sources whose fingerprint is unchanged.
	Force bool
}

type Orchestrator struct {
	cfg       *config.Config
	configDir string

	meta     *metadata.Store
	md       *model.SyncMetadata
	hashes   *fingerprint.Store
	detector *fingerprint.Detector
	resolver *entity.Resolver
	gen      *generator.Generator
	backups  *backup.Manager
	auditor  *audit.Auditor
	vcs      vcs.Client
	history  HistoryRecorder
	now      func() time.Time

	state     atomic.Int32
	watching  atomic.Bool
	startedAt time.Time
	locks     *keyedMutex
	passMu    sync.Mutex
	writeMu   sync.Mutex

	mdMu    sync.Mutex
	pending []model.SyncRecord
	synced  int
	failed  int
}

// New loads the sync metadata and wires the engine. A metadata file that
// exists but cannot be decoded is an error: fingerprints from it cannot be
// trusted.
func New(cfg *config.Config, deps Deps) (*Orchestrator, error) {
	meta := metadata.NewStore(cfg.Path(cfg.MetadataFile))
	md, err := meta.Load()
	if err != nil {
		return nil, err
	}

	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Engine == nil {
		deps.Engine = render.NewTextEngine(cfg.Path(cfg.TemplatesDir))
	}
	if deps.Validator == nil {
		if cfg.Validation.Enabled && cfg.Validation.SchemaValidation {
			deps.Validator = schema.NewJSONSchema(cfg.Path(cfg.SchemasDir))
		} else {
			deps.Validator = schema.Nop{}
		}
	}
	if deps.VCS == nil {
		if cfg.Git.Enabled {
			deps.VCS = vcs.NewGit(cfg.Root)
		} else {
			deps.VCS = vcs.Noop{}
		}
	}

	mgr := backup.NewManager(cfg.Root, cfg.Path(cfg.Backup.Dir), backup.Options{
		MaxBackups: cfg.Backup.MaxBackups,
		Compress:   cfg.Backup.Compress,
	})

	o := &Orchestrator{
		cfg:       cfg,
		configDir: cfg.Path(cfg.ConfigDir),
		meta:      meta,
		md:        md,
		hashes:    fingerprint.NewStore(md.FileHashes),
		resolver:  entity.NewResolver(cfg.SourceDirs()),
		backups:   mgr,
		auditor:   audit.New(cfg.Root, cfg.ConfigDir, cfg.DocsDir, cfg.Rules),
		vcs:       deps.VCS,
		history:   deps.History,
		now:       deps.Now,
		startedAt: deps.Now(),
		locks:     newKeyedMutex(),
	}
	o.detector = fingerprint.NewDetector(o.hashes, o.configDir, cfg.SourceDirs(), cfg.Watch.Workers)

	var backups generator.Backupper
	if cfg.Backup.Enabled {
		backups = mgr
	}
	o.gen = generator.New(generator.Options{
		Root:      cfg.Root,
		ConfigDir: cfg.ConfigDir,
		DocsDir:   cfg.DocsDir,
		Rules:     cfg.Rules,
		Resolver:  o.resolver,
		Engine:    deps.Engine,
		Validator: deps.Validator,
		Backups:   backups,
		Stamps:    o,
		Now:       deps.Now,
	})

	return o, nil
}

func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(s State) {
	o.state.Store(int32(s))
}

func (o *Orchestrator) Backups() *backup.Manager {
	return o.backups
}

// GeneratedAt returns the recorded generation time of source while its
// content hash is unchanged.
func (o *Orchestrator) GeneratedAt(source, hash string) (time.Time, bool) {
	o.mdMu.Lock()
	defer o.mdMu.Unlock()

	rec, ok := o.md.Documents[source]
	if !ok || rec.SourceHash != hash {
		return time.Time{}, false
	}
	return rec.GeneratedAt, true
}

func (o *Orchestrator) Status() Status {
	o.mdMu.Lock()
	defer o.mdMu.Unlock()

	return Status{
		State:     o.State().String(),
		StartedAt: o.startedAt,
		LastSync:  o.md.LastSync,
		Sources:   o.hashes.Len(),
		Documents: len(o.md.Documents),
		Conflicts: len(o.md.Conflicts),
		Synced:    o.synced,
		Failed:    o.failed,
		Watching:  o.watching.Load(),
	}
}

// History returns the last n records of the persisted sync log, newest
// last.
func (o *Orchestrator) History(n int) []model.SyncRecord {
	o.mdMu.Lock()
	defer o.mdMu.Unlock()

	h := o.md.SyncHistory
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	return append([]model.SyncRecord(nil), h...)
}

// SyncAll runs one full pass over the configured sources.
func (o *Orchestrator) SyncAll(ctx context.Context, opts Options) (*Summary, error) {
	o.passMu.Lock()
	defer o.passMu.Unlock()

	sum := &Summary{RunID: uuid.NewString(), DryRun: opts.DryRun}
	log := logger.Log.With(zap.String("run", sum.RunID))

	detect, rollback := o.detector.DetectChanges, o.rollback
	if opts.DryRun {
		detect, rollback = o.detector.Preview, func([]string) {}
	}

	o.setState(StateDetecting)
	changes, err := detect(ctx, opts.Types...)
	if err != nil {
		o.setState(StateFailed)
		return sum, fmt.Errorf("failed to detect changes: %w", err)
	}
	sum.Warnings = changes.Warnings

	candidates := changes.Changed()
	if opts.Force {
		all, err := o.detector.Sources(opts.Types...)
		if err != nil {
			rollback(candidates)
			o.setState(StateFailed)
			return sum, fmt.Errorf("failed to list sources: %w", err)
		}
		candidates = all
	}

	log.Info("changes detected",
		zap.Int("added", len(changes.Added)),
		zap.Int("modified", len(changes.Modified)),
		zap.Int("deleted", len(changes.Deleted)),
		zap.Bool("dry_run", opts.DryRun))

	o.setState(StateValidating)
	conflicts, err := o.detectConflicts()
	if err != nil {
		rollback(candidates)
		o.setState(StateFailed)
		return sum, err
	}
	sum.Conflicts = conflicts
	blocked := conflict.Blocked(conflicts)

	o.setState(StateGenerating)
	for i, path := range candidates {
		if ctx.Err() != nil {
			rollback(candidates[i:])
			break
		}
		if c, ok := blocked[path]; ok {
			rollback([]string{path})
			sum.fail(path, fmt.Errorf("%w: %s shares %s with %v", model.ErrConflict, path, c.Targets[0], c.Sources))
			continue
		}
		o.process(ctx, path, opts.DryRun, sum)
	}

	for _, path := range changes.Deleted {
		if opts.DryRun || ctx.Err() != nil {
			break
		}
		o.handleDeleted(path, sum)
	}
	if !opts.DryRun && len(changes.Stale) > 0 {
		o.forgetStale(changes.Stale, sum)
	}

	if !opts.DryRun && (len(sum.Succeeded) > 0 || len(sum.Deleted) > 0 || len(changes.Stale) > 0) {
		o.setState(StatePersisting)
		if err := o.persist(ctx, sum, conflicts, true); err != nil {
			o.setState(StateFailed)
			return sum, err
		}
	}

	o.setState(StateIdle)

	log.Info("sync pass finished",
		zap.Int("succeeded", len(sum.Succeeded)),
		zap.Int("failed", len(sum.Failures)),
		zap.Int("deleted", len(sum.Deleted)))

	return sum, ctx.Err()
}

// SyncFile handles a single source given relative to the config dir or to
// the workspace root. A tracked source that no longer exists is handled as a
// deletion.
func (o *Orchestrator) SyncFile(ctx context.Context, path string, opts Options) (*Summary, error) {
	path = o.sourceRel(path)
	sum := &Summary{RunID: uuid.NewString(), DryRun: opts.DryRun}

	if !entity.IsSourceFile(path) {
		return sum, fmt.Errorf("%s is not a configuration source", path)
	}
	if !o.detector.Owns(path) {
		return sum, fmt.Errorf("%w: %s is outside the configured source directories", model.ErrUnresolvedType, path)
	}

	ok, err := util.Exists(filepath.Join(o.configDir, path))
	if err != nil {
		return sum, err
	}
	if !ok {
		if _, tracked := o.hashes.Get(path); !tracked {
			return sum, fmt.Errorf("%w: %s", model.ErrSourceNotFound, path)
		}
		if opts.DryRun {
			return sum, nil
		}
		return o.HandleDeletion(ctx, path)
	}

	unlock := o.locks.Lock(path)
	defer unlock()

	check, rollback := o.detector.Check, o.detector.Rollback
	if opts.DryRun {
		check, rollback = o.detector.Peek, func(string) {}
	}

	o.setState(StateDetecting)
	_, changed, err := check(path)
	if err != nil {
		o.setState(StateIdle)
		sum.fail(path, fmt.Errorf("failed to hash source: %w", err))
		return sum, nil
	}
	if !changed && !opts.Force {
		o.setState(StateIdle)
		sum.Unchanged = append(sum.Unchanged, path)
		return sum, nil
	}

	o.setState(StateValidating)
	conflicts, err := o.detectConflicts()
	if err != nil {
		rollback(path)
		o.setState(StateFailed)
		return sum, err
	}
	sum.Conflicts = conflicts
	if c, ok := conflict.Blocked(conflicts)[path]; ok {
		rollback(path)
		sum.fail(path, fmt.Errorf("%w: %s shares %s with %v", model.ErrConflict, path, c.Targets[0], c.Sources))
		o.setState(StateIdle)
		return sum, nil
	}

	o.setState(StateGenerating)
	o.generate(ctx, path, opts.DryRun, sum)

	if !opts.DryRun && len(sum.Succeeded) > 0 {
		o.setState(StatePersisting)
		if err := o.persist(ctx, sum, conflicts, false); err != nil {
			o.setState(StateFailed)
			return sum, err
		}
	}

	o.setState(StateIdle)
	return sum, nil
}

// HandleDeletion acknowledges a removed source: its orphaned document is
// reported, pruned when configured, and its fingerprint dropped.
func (o *Orchestrator) HandleDeletion(ctx context.Context, path string) (*Summary, error) {
	path = filepath.ToSlash(filepath.Clean(path))
	sum := &Summary{RunID: uuid.NewString()}

	if _, tracked := o.hashes.Get(path); !tracked {
		return sum, nil
	}

	o.handleDeleted(path, sum)

	if len(sum.Deleted) > 0 {
		o.setState(StatePersisting)
		if err := o.persist(ctx, sum, nil, false); err != nil {
			o.setState(StateFailed)
			return sum, err
		}
		o.setState(StateIdle)
	}
	return sum, nil
}

// sourceRel normalises path to be relative to the config dir, accepting a
// workspace-relative path as well.
func (o *Orchestrator) sourceRel(path string) string {
	path = filepath.ToSlash(filepath.Clean(path))
	if o.detector.Owns(path) {
		return path
	}
	prefix := filepath.ToSlash(filepath.Clean(o.cfg.ConfigDir)) + "/"
	if rel, ok := strings.CutPrefix(path, prefix); ok && o.detector.Owns(rel) {
		return rel
	}
	return path
}

// Audit reports orphans in both directions along with current conflicts.
func (o *Orchestrator) Audit() (model.AuditReport, error) {
	conflicts, err := o.detectConflicts()
	if err != nil {
		return model.AuditReport{}, err
	}
	return o.auditor.Audit(conflicts)
}

func (o *Orchestrator) process(ctx context.Context, path string, dryRun bool, sum *Summary) {
	unlock := o.locks.Lock(path)
	defer unlock()

	o.generate(ctx, path, dryRun, sum)
}

func (o *Orchestrator) generate(ctx context.Context, path string, dryRun bool, sum *Summary) {
	if dryRun {
		res, err := o.gen.Plan(ctx, path)
		if err != nil {
			sum.fail(path, err)
			return
		}
		sum.Succeeded = append(sum.Succeeded, FileResult{
			Source:  path,
			Target:  res.TargetPath,
			Changed: res.Changed,
		})
		return
	}

	res, err := o.gen.Generate(ctx, path)
	rec := model.SyncRecord{
		Timestamp:  o.now().UTC(),
		SourcePath: path,
		Action:     model.ActionSync,
		RunID:      sum.RunID,
	}

	if err != nil {
		o.detector.Rollback(path)
		sum.fail(path, err)
		rec.Error = err.Error()
		o.record(rec, nil)

		logger.Log.Error("failed to generate document",
			zap.String("source", path),
			zap.String("kind", model.Kind(err)),
			zap.Error(err))
		return
	}

	o.detector.Commit(path)
	rec.TargetPath = res.TargetPath
	rec.Success = true
	o.record(rec, &model.DocumentRecord{
		TargetPath:  res.TargetPath,
		SourceHash:  res.SourceHash,
		GeneratedAt: res.GeneratedAt,
	})

	sum.Succeeded = append(sum.Succeeded, FileResult{
		Source:     path,
		Target:     res.TargetPath,
		Changed:    res.Changed,
		SnapshotID: res.SnapshotID,
	})
}

func (o *Orchestrator) handleDeleted(path string, sum *Summary) {
	unlock := o.locks.Lock(path)
	defer unlock()

	if ok, _ := util.Exists(filepath.Join(o.configDir, path)); ok {
		return
	}

	target := o.orphanTarget(path)
	rec := model.SyncRecord{
		Timestamp:  o.now().UTC(),
		SourcePath: path,
		TargetPath: target,
		Action:     model.ActionDelete,
		RunID:      sum.RunID,
		Success:    true,
	}

	if target != "" {
		exists, _ := util.Exists(o.cfg.Path(target))
		if exists {
			sum.Orphans = append(sum.Orphans, target)
			if o.cfg.PruneOrphans {
				if err := o.prune(target); err != nil {
					sum.fail(path, err)
					rec.Success = false
					rec.Error = err.Error()
					o.record(rec, nil)
					return
				}
				rec.Action = model.ActionPrune
			} else {
				logger.Log.Warn("source deleted, document left orphaned",
					zap.String("source", path),
					zap.String("document", target))
			}
		}
	}

	o.detector.AckDeleted(path)
	o.mdMu.Lock()
	delete(o.md.Documents, path)
	o.mdMu.Unlock()
	o.record(rec, nil)

	sum.Deleted = append(sum.Deleted, path)
}

// forgetStale drops fingerprints of paths that are no longer inside any
// source directory. Their documents are left alone since another source
// may own the same target.
func (o *Orchestrator) forgetStale(paths []string, sum *Summary) {
	o.detector.Forget(paths...)

	o.mdMu.Lock()
	for _, p := range paths {
		delete(o.md.Documents, p)
	}
	o.mdMu.Unlock()

	for _, p := range paths {
		logger.Log.Warn("dropping fingerprint outside source directories",
			zap.String("path", p))
		sum.Warnings = append(sum.Warnings, fmt.Sprintf("%s: outside the configured source directories, fingerprint dropped", p))
	}
}

func (o *Orchestrator) orphanTarget(path string) string {
	o.mdMu.Lock()
	doc, ok := o.md.Documents[path]
	o.mdMu.Unlock()
	if ok {
		return doc.TargetPath
	}

	t := o.resolver.ResolvePath(path)
	if t == model.EntityUnknown {
		return ""
	}
	target, err := o.gen.TargetPath(t, entity.StableName(path))
	if err != nil {
		return ""
	}
	return target
}

func (o *Orchestrator) prune(target string) error {
	if o.cfg.Backup.Enabled {
		if _, err := o.backups.Backup([]string{target}); err != nil {
			return err
		}
	}
	if err := util.RemoveIfExists(o.cfg.Path(target)); err != nil {
		return err
	}

	logger.Log.Info("orphaned document removed",
		zap.String("document", target))
	return nil
}

// detectConflicts classifies every source of every type by its directory.
func (o *Orchestrator) detectConflicts() ([]model.Conflict, error) {
	paths, err := o.detector.Sources()
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}

	sources := make([]conflict.Source, 0, len(paths))
	for _, p := range paths {
		t := o.resolver.ResolvePath(p)
		name := entity.StableName(p)
		target, err := o.gen.TargetPath(t, name)
		if err != nil {
			continue
		}
		sources = append(sources, conflict.Source{Path: p, Type: t, Name: name, Target: target})
	}

	return conflict.Detect(sources, o.now().UTC()), nil
}

func (o *Orchestrator) record(rec model.SyncRecord, doc *model.DocumentRecord) {
	o.mdMu.Lock()
	defer o.mdMu.Unlock()

	o.md.SyncHistory = append(o.md.SyncHistory, rec)
	o.pending = append(o.pending, rec)
	if rec.Success {
		o.synced++
	} else {
		o.failed++
	}
	if doc != nil {
		o.md.Documents[rec.SourcePath] = *doc
	}
}

func (o *Orchestrator) rollback(paths []string) {
	for _, p := range paths {
		o.detector.Rollback(p)
	}
}

// persist is the single writer of the metadata file. History mirroring,
// backup pruning and VCS staging are best effort once the metadata is
// durable.
func (o *Orchestrator) persist(ctx context.Context, sum *Summary, conflicts []model.Conflict, fullPass bool) error {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()

	o.mdMu.Lock()
	o.md.FileHashes = o.hashes.Snapshot()
	if fullPass {
		now := o.now().UTC()
		o.md.LastSync = &now
	}
	if conflicts != nil {
		o.md.Conflicts = conflicts
	}
	err := o.meta.Save(o.md)
	pending := o.pending
	if err == nil {
		o.pending = nil
	}
	o.mdMu.Unlock()

	if err != nil {
		logger.Log.Error("failed to persist sync metadata",
			zap.String("path", o.meta.Path()),
			zap.Error(err))
		return fmt.Errorf("%w: %v", model.ErrMetadataPersist, err)
	}

	if o.history != nil {
		if err := o.history.SaveAll(pending); err != nil {
			logger.Log.Warn("failed to save history",
				zap.Error(err))
		}
	}

	if o.cfg.Backup.Enabled {
		if _, err := o.backups.Prune(); err != nil {
			logger.Log.Warn("failed to prune backups",
				zap.Error(err))
		}
	}

	o.commit(ctx, sum)
	return nil
}

func (o *Orchestrator) commit(ctx context.Context, sum *Summary) {
	staged := append(sum.Changed(), o.pendingPrunes(sum)...)
	if len(staged) == 0 {
		return
	}

	if err := o.vcs.Stage(ctx, staged); err != nil {
		logger.Log.Warn("failed to stage documents",
			zap.Error(err))
		return
	}

	names := make([]string, 0, len(staged))
	for _, p := range staged {
		names = append(names, entity.StableName(p))
	}
	msg := vcs.CommitMessage(o.cfg.Git.CommitMessageTemplate, names)

	if !o.cfg.Git.AutoCommit {
		logger.Log.Info("documents staged",
			zap.Int("count", len(staged)),
			zap.String("message", msg))
		return
	}

	if err := o.vcs.Commit(ctx, msg); err != nil {
		logger.Log.Warn("failed to commit documents",
			zap.Error(err))
		return
	}
	logger.Log.Info("documents committed",
		zap.String("message", msg))
}

// pendingPrunes returns the orphaned documents this pass removed, so their
// removal is staged too.
func (o *Orchestrator) pendingPrunes(sum *Summary) []string {
	if !o.cfg.PruneOrphans {
		return nil
	}
	var out []string
	for _, doc := range sum.Orphans {
		if _, err := os.Stat(o.cfg.Path(doc)); errors.Is(err, os.ErrNotExist) {
			out = append(out, doc)
		}
	}
	return out
}
