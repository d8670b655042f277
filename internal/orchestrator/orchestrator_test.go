package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"docsync/internal/config"
	"docsync/internal/metadata"
	"docsync/internal/model"
	"docsync/internal/render"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	reviewerYAML = `metadata:
  name: reviewer
  description: Reviews changes.
  category: core
`
	plannerYAML = `metadata:
  name: planner
  description: Plans work.
  category: core
`
	linterYAML = `metadata:
  name: linter
  description: Lints code.
  category: testing
`
)

type fakeHistory struct {
	mu   sync.Mutex
	recs []model.SyncRecord
}

func (h *fakeHistory) SaveAll(recs []model.SyncRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.recs = append(h.recs, recs...)
	return nil
}

type fakeVCS struct {
	mu      sync.Mutex
	staged  []string
	commits []string
}

func (v *fakeVCS) Stage(_ context.Context, paths []string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.staged = append(v.staged, paths...)
	return nil
}

func (v *fakeVCS) Commit(_ context.Context, msg string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.commits = append(v.commits, msg)
	return nil
}

// gatedEngine holds renders of one config name until release is closed and
// tracks how many of them overlap.
type gatedEngine struct {
	inner   render.Engine
	name    string
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}

	mu        sync.Mutex
	active    int
	maxActive int
}

func newGatedEngine(cfg *config.Config, name string) *gatedEngine {
	return &gatedEngine{
		inner:   render.NewTextEngine(cfg.Path(cfg.TemplatesDir)),
		name:    name,
		entered: make(chan struct{}, 8),
		release: make(chan struct{}),
	}
}

func (e *gatedEngine) Render(id string, data map[string]any) (string, error) {
	if e.armed.Load() && data["config_name"] == e.name {
		e.mu.Lock()
		e.active++
		e.maxActive = max(e.maxActive, e.active)
		e.mu.Unlock()

		e.entered <- struct{}{}
		<-e.release

		e.mu.Lock()
		e.active--
		e.mu.Unlock()
	}
	return e.inner.Render(id, data)
}

func waitEntered(t *testing.T, e *gatedEngine) {
	t.Helper()
	select {
	case <-e.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("render was never reached")
	}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default
	cfg.Root = t.TempDir()
	cfg.Backup.Compress = false
	cfg.Watch.Debounce = 50 * time.Millisecond
	cfg.Watch.Workers = 2
	cfg.BufferSize = 16
	require.NoError(t, cfg.Validate())
	return &cfg
}

func newTestOrchestrator(t *testing.T, cfg *config.Config, deps Deps) *Orchestrator {
	t.Helper()
	o, err := New(cfg, deps)
	require.NoError(t, err)
	return o
}

func writeSource(t *testing.T, cfg *config.Config, rel, content string) {
	t.Helper()
	p := filepath.Join(cfg.Root, cfg.ConfigDir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func readDoc(t *testing.T, cfg *config.Config, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.Root, rel))
	require.NoError(t, err)
	return string(data)
}

func loadMetadata(t *testing.T, cfg *config.Config) model.SyncMetadata {
	t.Helper()
	data, err := os.ReadFile(cfg.Path(cfg.MetadataFile))
	require.NoError(t, err)
	var md model.SyncMetadata
	require.NoError(t, json.Unmarshal(data, &md))
	return md
}

func snapshotCount(t *testing.T, o *Orchestrator) int {
	t.Helper()
	snaps, err := o.Backups().List()
	require.NoError(t, err)
	return len(snaps)
}

func TestAddedSourceProducesDocument(t *testing.T) {
	cfg := testConfig(t)
	hist := &fakeHistory{}
	o := newTestOrchestrator(t, cfg, Deps{History: hist})
	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML)

	sum, err := o.SyncAll(context.Background(), Options{})
	require.NoError(t, err)
	require.NoError(t, sum.Err)

	want := []FileResult{{Source: "agents/reviewer.yaml", Target: "docs/agents/reviewer.md", Changed: true}}
	if diff := cmp.Diff(want, sum.Succeeded); diff != "" {
		t.Errorf("Succeeded mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, readDoc(t, cfg, "docs/agents/reviewer.md"), "# Reviewer")

	_, tracked := o.hashes.Get("agents/reviewer.yaml")
	assert.True(t, tracked)

	md := loadMetadata(t, cfg)
	assert.Contains(t, md.FileHashes, "agents/reviewer.yaml")
	assert.NotNil(t, md.LastSync)
	require.Len(t, md.SyncHistory, 1)
	assert.True(t, md.SyncHistory[0].Success)
	assert.Equal(t, sum.RunID, md.SyncHistory[0].RunID)

	assert.Len(t, hist.recs, 1)
	assert.Equal(t, StateIdle, o.State())
}

func TestDeletedSourceIsAcknowledged(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(t, cfg, Deps{})
	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML)

	_, err := o.SyncAll(context.Background(), Options{})
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(cfg.Root, "config/agents/reviewer.yaml")))

	changes, err := o.detector.DetectChanges(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"agents/reviewer.yaml"}, changes.Deleted)
	_, tracked := o.hashes.Get("agents/reviewer.yaml")
	assert.True(t, tracked, "deleted entry must stay until acknowledged")

	sum, err := o.SyncAll(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"agents/reviewer.yaml"}, sum.Deleted)
	assert.Equal(t, []string{"docs/agents/reviewer.md"}, sum.Orphans)

	_, tracked = o.hashes.Get("agents/reviewer.yaml")
	assert.False(t, tracked)
	assert.NotContains(t, loadMetadata(t, cfg).FileHashes, "agents/reviewer.yaml")
	assert.FileExists(t, filepath.Join(cfg.Root, "docs/agents/reviewer.md"))
}

func TestDeletedSourcePrunesOrphan(t *testing.T) {
	cfg := testConfig(t)
	cfg.PruneOrphans = true
	o := newTestOrchestrator(t, cfg, Deps{})
	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML)

	_, err := o.SyncAll(context.Background(), Options{})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(cfg.Root, "config/agents/reviewer.yaml")))

	sum, err := o.SyncAll(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"agents/reviewer.yaml"}, sum.Deleted)
	assert.NoFileExists(t, filepath.Join(cfg.Root, "docs/agents/reviewer.md"))
	assert.Equal(t, 1, snapshotCount(t, o))

	history := loadMetadata(t, cfg).SyncHistory
	assert.Equal(t, model.ActionPrune, history[len(history)-1].Action)
}

func TestMalformedSourceIsIsolated(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(t, cfg, Deps{})
	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML)
	writeSource(t, cfg, "agents/planner.yaml", plannerYAML)
	writeSource(t, cfg, "agents/broken.yaml", "metadata: [unclosed\n")

	sum, err := o.SyncAll(context.Background(), Options{})
	require.NoError(t, err)

	assert.Len(t, sum.Succeeded, 2)
	require.Len(t, sum.Failures, 1)
	assert.True(t, sum.HasFailures())
	assert.Equal(t, "agents/broken.yaml", sum.Failures[0].Source)
	assert.Equal(t, model.ErrParse.Error(), sum.Failures[0].Kind)
	assert.ErrorIs(t, sum.Err, model.ErrParse)
	assert.Contains(t, sum.Breakdown(), "agents/broken.yaml [parse error]")

	assert.FileExists(t, filepath.Join(cfg.Root, "docs/agents/reviewer.md"))
	assert.FileExists(t, filepath.Join(cfg.Root, "docs/agents/planner.md"))
	assert.NoFileExists(t, filepath.Join(cfg.Root, "docs/agents/broken.md"))

	again, err := o.SyncAll(context.Background(), Options{})
	require.NoError(t, err)
	assert.Empty(t, again.Succeeded)
	require.Len(t, again.Failures, 1, "failed source must be retried")
}

func TestSecondPassIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(t, cfg, Deps{})
	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML)
	writeSource(t, cfg, "tools/linter.yaml", linterYAML)

	_, err := o.SyncAll(context.Background(), Options{})
	require.NoError(t, err)
	before := readDoc(t, cfg, "docs/agents/reviewer.md")

	sum, err := o.SyncAll(context.Background(), Options{})
	require.NoError(t, err)
	assert.Empty(t, sum.Succeeded)
	assert.Empty(t, sum.Changed())

	forced, err := o.SyncAll(context.Background(), Options{Force: true})
	require.NoError(t, err)
	assert.Len(t, forced.Succeeded, 2)
	assert.Empty(t, forced.Changed())

	assert.Equal(t, before, readDoc(t, cfg, "docs/agents/reviewer.md"))
	assert.Zero(t, snapshotCount(t, o))
}

func TestIdempotentAcrossRestart(t *testing.T) {
	cfg := testConfig(t)
	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML)

	clock := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	o := newTestOrchestrator(t, cfg, Deps{Now: func() time.Time { return clock }})
	_, err := o.SyncAll(context.Background(), Options{})
	require.NoError(t, err)
	before := readDoc(t, cfg, "docs/agents/reviewer.md")

	clock = clock.Add(24 * time.Hour)
	o2 := newTestOrchestrator(t, cfg, Deps{Now: func() time.Time { return clock }})
	sum, err := o2.SyncAll(context.Background(), Options{Force: true})
	require.NoError(t, err)
	require.Len(t, sum.Succeeded, 1)
	assert.False(t, sum.Succeeded[0].Changed)
	assert.Equal(t, before, readDoc(t, cfg, "docs/agents/reviewer.md"))
}

func TestModifiedSourceBacksUpPreviousDocument(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(t, cfg, Deps{})
	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML)

	_, err := o.SyncAll(context.Background(), Options{})
	require.NoError(t, err)
	previous := readDoc(t, cfg, "docs/agents/reviewer.md")

	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML+"configuration:\n  capabilities:\n    - triage\n")
	sum, err := o.SyncAll(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, sum.Succeeded, 1)
	id := sum.Succeeded[0].SnapshotID
	require.NotEmpty(t, id)

	saved, err := o.Backups().ReadFile(id, "docs/agents/reviewer.md")
	require.NoError(t, err)
	assert.Equal(t, previous, string(saved))
	assert.Contains(t, readDoc(t, cfg, "docs/agents/reviewer.md"), "- triage")
}

func TestBackupRetention(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backup.MaxBackups = 2
	o := newTestOrchestrator(t, cfg, Deps{})

	for i := range 5 {
		writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML+"  version: \""+string(rune('a'+i))+"\"\n")
		_, err := o.SyncAll(context.Background(), Options{})
		require.NoError(t, err)
	}

	assert.Equal(t, 2, snapshotCount(t, o))
}

func TestDryRunWritesNothing(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(t, cfg, Deps{})
	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML)

	sum, err := o.SyncAll(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	require.Len(t, sum.Succeeded, 1)
	assert.True(t, sum.Succeeded[0].Changed)
	assert.NoFileExists(t, filepath.Join(cfg.Root, "docs/agents/reviewer.md"))
	assert.NoFileExists(t, cfg.Path(cfg.MetadataFile))

	live, err := o.SyncAll(context.Background(), Options{})
	require.NoError(t, err)
	assert.Len(t, live.Succeeded, 1, "dry run must not consume the change")
}

func TestModeRestrictsTypes(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(t, cfg, Deps{})
	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML)
	writeSource(t, cfg, "tools/linter.yaml", linterYAML)

	sum, err := o.SyncAll(context.Background(), Options{Types: []model.EntityType{model.EntityTool}})
	require.NoError(t, err)
	require.Len(t, sum.Succeeded, 1)
	assert.Equal(t, "docs/tools/linter.md", sum.Succeeded[0].Target)
	assert.NoFileExists(t, filepath.Join(cfg.Root, "docs/agents/reviewer.md"))
}

func TestCrossTypeNameIsReportedNotBlocked(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(t, cfg, Deps{})
	writeSource(t, cfg, "tools/git.yaml", "metadata:\n  name: git\n  description: Git.\n")
	writeSource(t, cfg, "llms/git.yaml", "metadata:\n  name: git\n  description: Git model.\n")

	sum, err := o.SyncAll(context.Background(), Options{})
	require.NoError(t, err)
	assert.Len(t, sum.Succeeded, 2)
	require.Len(t, sum.Conflicts, 1)
	assert.Equal(t, model.ConflictCrossType, sum.Conflicts[0].Kind)

	md := loadMetadata(t, cfg)
	require.Len(t, md.Conflicts, 1)
	assert.Equal(t, "git", md.Conflicts[0].Name)
}

func TestDuplicateTargetBlocksBoth(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(t, cfg, Deps{})
	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML)
	writeSource(t, cfg, "agents/reviewer.yml", reviewerYAML)
	writeSource(t, cfg, "agents/planner.yaml", plannerYAML)

	sum, err := o.SyncAll(context.Background(), Options{})
	require.NoError(t, err)
	assert.Len(t, sum.Succeeded, 1)
	require.Len(t, sum.Failures, 2)
	for _, f := range sum.Failures {
		assert.ErrorIs(t, f.Err, model.ErrConflict)
	}
	assert.NoFileExists(t, filepath.Join(cfg.Root, "docs/agents/reviewer.md"))
}

func TestSyncFile(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(t, cfg, Deps{})
	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML)

	sum, err := o.SyncFile(context.Background(), "agents/reviewer.yaml", Options{})
	require.NoError(t, err)
	require.Len(t, sum.Succeeded, 1)
	assert.Nil(t, loadMetadata(t, cfg).LastSync, "single-file sync is not a full pass")

	sum, err = o.SyncFile(context.Background(), "agents/reviewer.yaml", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"agents/reviewer.yaml"}, sum.Unchanged)

	require.NoError(t, os.Remove(filepath.Join(cfg.Root, "config/agents/reviewer.yaml")))
	sum, err = o.SyncFile(context.Background(), "agents/reviewer.yaml", Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"agents/reviewer.yaml"}, sum.Deleted)

	_, err = o.SyncFile(context.Background(), "agents/notes.txt", Options{})
	assert.Error(t, err)
}

func TestSyncFileAcceptsWorkspaceRelativePath(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(t, cfg, Deps{})
	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML)

	sum, err := o.SyncFile(context.Background(), "config/agents/reviewer.yaml", Options{})
	require.NoError(t, err)
	require.Len(t, sum.Succeeded, 1)
	assert.Equal(t, "agents/reviewer.yaml", sum.Succeeded[0].Source)
}

func TestSyncFileMissingUntrackedSourceIsError(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(t, cfg, Deps{})
	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML)

	for _, path := range []string{"agents/typo.yaml", "config/agents/typo.yaml"} {
		for _, dryRun := range []bool{false, true} {
			sum, err := o.SyncFile(context.Background(), path, Options{DryRun: dryRun})
			assert.ErrorIs(t, err, model.ErrSourceNotFound, "%s dry=%v", path, dryRun)
			assert.Empty(t, sum.Deleted)
		}
	}
	assert.NoFileExists(t, cfg.Path(cfg.MetadataFile))
}

func TestSyncFileRejectsPathOutsideSourceDirs(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(t, cfg, Deps{})
	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML)
	writeSource(t, cfg, "drafts/reviewer.yaml", "metadata:\n  name: reviewer\n  description: Draft.\n")

	_, err := o.SyncAll(context.Background(), Options{})
	require.NoError(t, err)
	before := readDoc(t, cfg, "docs/agents/reviewer.md")

	for _, path := range []string{"drafts/reviewer.yaml", "agents/sub/reviewer.yaml"} {
		_, err = o.SyncFile(context.Background(), path, Options{})
		assert.ErrorIs(t, err, model.ErrUnresolvedType, path)
	}

	assert.Equal(t, before, readDoc(t, cfg, "docs/agents/reviewer.md"))
	_, tracked := o.hashes.Get("drafts/reviewer.yaml")
	assert.False(t, tracked)
}

func TestStaleFingerprintIsDropped(t *testing.T) {
	cfg := testConfig(t)
	md := model.NewSyncMetadata()
	md.FileHashes["drafts/reviewer.yaml"] = "0123"
	md.Documents["drafts/reviewer.yaml"] = model.DocumentRecord{TargetPath: "docs/agents/reviewer.md", SourceHash: "0123"}
	require.NoError(t, metadata.NewStore(cfg.Path(cfg.MetadataFile)).Save(md))

	o := newTestOrchestrator(t, cfg, Deps{})
	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML)

	dry, err := o.SyncAll(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	_, tracked := o.hashes.Get("drafts/reviewer.yaml")
	assert.True(t, tracked, "dry run must not drop fingerprints")
	assert.Empty(t, dry.Warnings)

	sum, err := o.SyncAll(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, sum.Warnings, 1)
	assert.Contains(t, sum.Warnings[0], "drafts/reviewer.yaml")

	saved := loadMetadata(t, cfg)
	assert.NotContains(t, saved.FileHashes, "drafts/reviewer.yaml")
	assert.NotContains(t, saved.Documents, "drafts/reviewer.yaml")
	assert.Contains(t, saved.Documents, "agents/reviewer.yaml")
	assert.FileExists(t, filepath.Join(cfg.Root, "docs/agents/reviewer.md"))
}

func TestDryRunDoesNotHideConcurrentChange(t *testing.T) {
	cfg := testConfig(t)
	eng := newGatedEngine(cfg, "planner")
	o := newTestOrchestrator(t, cfg, Deps{Engine: eng})
	writeSource(t, cfg, "agents/planner.yaml", plannerYAML)
	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML)

	_, err := o.SyncAll(context.Background(), Options{})
	require.NoError(t, err)

	writeSource(t, cfg, "agents/planner.yaml", "metadata:\n  name: planner\n  description: Plans everything.\n")
	writeSource(t, cfg, "agents/reviewer.yaml", "metadata:\n  name: reviewer\n  description: Reviews everything.\n")

	eng.armed.Store(true)
	dryDone := make(chan error, 1)
	go func() {
		_, err := o.SyncAll(context.Background(), Options{DryRun: true})
		dryDone <- err
	}()
	waitEntered(t, eng)

	sum, err := o.SyncFile(context.Background(), "agents/reviewer.yaml", Options{})
	require.NoError(t, err)
	require.Len(t, sum.Succeeded, 1)
	assert.Empty(t, sum.Unchanged)
	assert.Contains(t, readDoc(t, cfg, "docs/agents/reviewer.md"), "Reviews everything.")

	close(eng.release)
	require.NoError(t, <-dryDone)
	eng.armed.Store(false)

	live, err := o.SyncAll(context.Background(), Options{})
	require.NoError(t, err)
	require.Len(t, live.Succeeded, 1, "the dry run must not consume the planner change")
	assert.Equal(t, "agents/planner.yaml", live.Succeeded[0].Source)
	assert.Contains(t, readDoc(t, cfg, "docs/agents/planner.md"), "Plans everything.")
}

func TestOverlappingRequestsForOnePathAreSerialised(t *testing.T) {
	cfg := testConfig(t)
	eng := newGatedEngine(cfg, "reviewer")
	o := newTestOrchestrator(t, cfg, Deps{Engine: eng})
	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML)

	ctx := context.Background()
	req := model.FileEvent{Type: model.EventModify, Path: "agents/reviewer.yaml"}
	eng.armed.Store(true)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- o.handleRequest(ctx, req)
	}()
	waitEntered(t, eng)

	writeSource(t, cfg, "agents/reviewer.yaml", "metadata:\n  name: reviewer\n  description: Reviews everything.\n")
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- o.handleRequest(ctx, req)
	}()

	select {
	case <-eng.entered:
		t.Fatal("second request rendered while the first was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(eng.release)
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	assert.Equal(t, 1, eng.maxActive)
	assert.Equal(t, 2, o.Status().Synced)
	assert.Contains(t, readDoc(t, cfg, "docs/agents/reviewer.md"), "Reviews everything.")

	md := loadMetadata(t, cfg)
	h, _ := o.hashes.Get("agents/reviewer.yaml")
	assert.Equal(t, h, md.FileHashes["agents/reviewer.yaml"])
	assert.Equal(t, h, md.Documents["agents/reviewer.yaml"].SourceHash)
}

func TestMetadataPersistFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(t, cfg, Deps{})
	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML)
	require.NoError(t, os.MkdirAll(cfg.Path(cfg.MetadataFile), 0o755))

	_, err := o.SyncAll(context.Background(), Options{})
	assert.ErrorIs(t, err, model.ErrMetadataPersist)
	assert.Equal(t, StateFailed, o.State())
}

func TestCorruptMetadataRefusesToStart(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Path(cfg.MetadataFile), []byte("{broken"), 0o644))

	_, err := New(cfg, Deps{})
	assert.Error(t, err)
}

func TestVCSStagingAndCommit(t *testing.T) {
	cfg := testConfig(t)
	cfg.Git.Enabled = true
	cfg.Git.AutoCommit = true
	repo := &fakeVCS{}
	o := newTestOrchestrator(t, cfg, Deps{VCS: repo})
	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML)
	writeSource(t, cfg, "tools/linter.yaml", linterYAML)

	_, err := o.SyncAll(context.Background(), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"docs/agents/reviewer.md", "docs/tools/linter.md"}, repo.staged)
	assert.Equal(t, []string{"docs: sync configuration changes for reviewer, linter"}, repo.commits)

	_, err = o.SyncAll(context.Background(), Options{})
	require.NoError(t, err)
	assert.Len(t, repo.commits, 1, "nothing changed, nothing committed")
}

func TestAuditCompleteness(t *testing.T) {
	cfg := testConfig(t)
	o := newTestOrchestrator(t, cfg, Deps{})
	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML)

	report, err := o.Audit()
	require.NoError(t, err)
	require.Len(t, report.SourcesWithoutDocs, 1)
	assert.Equal(t, "docs/agents/reviewer.md", report.SourcesWithoutDocs[0].ExpectedDoc)

	require.NoError(t, os.Remove(filepath.Join(cfg.Root, "config/agents/reviewer.yaml")))
	report, err = o.Audit()
	require.NoError(t, err)
	assert.True(t, report.Clean())
}

func TestWatchRegeneratesChangedSource(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.Root, "config/agents"), 0o755))
	o := newTestOrchestrator(t, cfg, Deps{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Watch(ctx) }()

	require.Eventually(t, func() bool { return o.Status().Watching }, 5*time.Second, 10*time.Millisecond)
	writeSource(t, cfg, "agents/reviewer.yaml", reviewerYAML)

	doc := filepath.Join(cfg.Root, "docs/agents/reviewer.md")
	require.Eventually(t, func() bool {
		_, err := os.Stat(doc)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
	assert.False(t, o.Status().Watching)
}

func TestKeyedMutexSerialisesSameKey(t *testing.T) {
	k := newKeyedMutex()
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)

	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("agents/a.yaml")
			defer unlock()

			mu.Lock()
			active++
			maxSeen = max(maxSeen, active)
			mu.Unlock()

			time.Sleep(2 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Empty(t, k.locks)
}
