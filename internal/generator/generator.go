package generator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docsync/internal/config"
	"docsync/internal/entity"
	"docsync/internal/fingerprint"
	"docsync/internal/logger"
	"docsync/internal/model"
	"docsync/internal/render"
	"docsync/internal/schema"
	"docsync/internal/util"

	"go.uber.org/zap"
)

// Backupper snapshots workspace-relative files before they are overwritten.
type Backupper interface {
	Backup(paths []string) (string, error)
}

// Stamps supplies the generation time previously recorded for a source at a
// given content hash, so unchanged input renders byte-identical output.
type Stamps interface {
	GeneratedAt(source, hash string) (time.Time, bool)
}

type Options struct {
	Root      string
	ConfigDir string
	DocsDir   string
	Rules     map[model.EntityType]config.Rule
	Resolver  *entity.Resolver
	Engine    render.Engine
	Validator schema.Validator
	Backups   Backupper
	Stamps    Stamps
	Now       func() time.Time
}

type Generator struct {
	opts Options
}

type Result struct {
	Entity      *model.SourceEntity
	TargetPath  string
	SourceHash  string
	GeneratedAt time.Time
	Changed     bool
	SnapshotID  string
	Content     string
}

func New(opts Options) *Generator {
	if opts.Resolver == nil {
		dirs := make(map[model.EntityType]string, len(opts.Rules))
		for t, r := range opts.Rules {
			dirs[t] = r.SourceDir
		}
		opts.Resolver = entity.NewResolver(dirs)
	}
	if opts.Validator == nil {
		opts.Validator = schema.Nop{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Generator{opts: opts}
}

// TargetPath is the workspace-relative document path for an entity. It
// depends on nothing but the type and the stable name.
func (g *Generator) TargetPath(t model.EntityType, name string) (string, error) {
	rule, ok := g.opts.Rules[t]
	if !ok {
		return "", fmt.Errorf("%w: no sync rule for %s", model.ErrUnresolvedType, t)
	}
	rel := strings.ReplaceAll(rule.TargetPattern, "{name}", name)
	return filepath.ToSlash(filepath.Join(g.opts.DocsDir, rel)), nil
}

// SourcePath is the workspace-relative path of a source given relative to
// the config dir.
func (g *Generator) SourcePath(rel string) string {
	return filepath.ToSlash(filepath.Join(g.opts.ConfigDir, rel))
}

// Plan runs every step short of backing up and writing.
func (g *Generator) Plan(ctx context.Context, sourceRel string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ent, err := g.opts.Resolver.Load(g.abs(g.opts.ConfigDir), sourceRel)
	if err != nil {
		return nil, err
	}
	t, content := ent.Type, ent.Content
	hash := fingerprint.HashBytes(ent.Raw)

	vr, err := g.opts.Validator.Validate(content, t)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrSchemaValidation, err)
	}
	if !vr.Valid {
		return nil, fmt.Errorf("%w: %s", model.ErrSchemaValidation, strings.Join(vr.Errors, "; "))
	}

	rule, ok := g.opts.Rules[t]
	if !ok || rule.Template == "" {
		return nil, fmt.Errorf("%w: no template bound to %s", model.ErrTemplateNotFound, t)
	}

	generatedAt := g.opts.Now().UTC().Truncate(time.Second)
	if g.opts.Stamps != nil {
		if ts, ok := g.opts.Stamps.GeneratedAt(ent.RelPath, hash); ok {
			generatedAt = ts
		}
	}

	out, err := g.opts.Engine.Render(rule.Template, map[string]any{
		"config":       content,
		"config_name":  ent.Name,
		"config_type":  string(t),
		"config_file":  g.SourcePath(ent.RelPath),
		"generated_at": generatedAt.Format(time.RFC3339),
		"sync_version": model.SchemaVersion,
		"source_hash":  hash,
	})
	if err != nil {
		return nil, err
	}

	target, err := g.TargetPath(t, ent.Name)
	if err != nil {
		return nil, err
	}

	existing, err := os.ReadFile(g.abs(target))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		existing = nil
	case err != nil:
		return nil, fmt.Errorf("failed to read target %s: %w", target, err)
	}

	return &Result{
		Entity:      ent,
		TargetPath:  target,
		SourceHash:  hash,
		GeneratedAt: generatedAt,
		Changed:     existing == nil || !bytes.Equal(existing, []byte(out)),
		Content:     out,
	}, nil
}

// Generate regenerates the document for one source. An existing target is
// backed up before it is replaced, and left alone when the rendered bytes
// match.
func (g *Generator) Generate(ctx context.Context, sourceRel string) (*Result, error) {
	res, err := g.Plan(ctx, sourceRel)
	if err != nil {
		return nil, err
	}
	if !res.Changed {
		logger.Log.Debug("document up to date",
			zap.String("source", res.Entity.RelPath),
			zap.String("target", res.TargetPath))
		return res, nil
	}

	if g.opts.Backups != nil {
		id, err := g.opts.Backups.Backup([]string{res.TargetPath})
		if err != nil {
			if !errors.Is(err, model.ErrBackupFailure) {
				err = fmt.Errorf("%w: %v", model.ErrBackupFailure, err)
			}
			return nil, err
		}
		res.SnapshotID = id
	}

	if err := util.AtomicWriteBytes(g.abs(res.TargetPath), []byte(res.Content)); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", res.TargetPath, err)
	}

	logger.Log.Info("document generated",
		zap.String("source", res.Entity.RelPath),
		zap.String("target", res.TargetPath),
		zap.String("type", string(res.Entity.Type)),
		zap.String("backup", res.SnapshotID))

	return res, nil
}

func (g *Generator) abs(rel string) string {
	return filepath.Join(g.opts.Root, filepath.FromSlash(rel))
}
