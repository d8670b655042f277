package audit

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"docsync/internal/config"
	"docsync/internal/entity"
	"docsync/internal/model"
)

// IndexFile is a hand-maintained landing page in every docs directory and
// never has a source.
const IndexFile = "index.md"

type Auditor struct {
	root      string
	configDir string
	docsDir   string
	rules     map[model.EntityType]config.Rule
}

func New(root, configDir, docsDir string, rules map[model.EntityType]config.Rule) *Auditor {
	return &Auditor{
		root:      root,
		configDir: configDir,
		docsDir:   docsDir,
		rules:     rules,
	}
}

// Audit compares the stable names on both sides of every rule. It is
// read-only; conflicts are passed through from the caller.
func (a *Auditor) Audit(conflicts []model.Conflict) (model.AuditReport, error) {
	report := model.AuditReport{
		SourcesWithoutDocs: []model.MissingDoc{},
		DocsWithoutSources: []model.MissingSource{},
		Conflicts:          conflicts,
	}
	if report.Conflicts == nil {
		report.Conflicts = []model.Conflict{}
	}

	for _, t := range model.EntityTypes {
		rule, ok := a.rules[t]
		if !ok {
			continue
		}

		sources, err := a.sources(rule)
		if err != nil {
			return report, err
		}
		docs, err := a.docs(rule)
		if err != nil {
			return report, err
		}

		for _, name := range sortedKeys(sources) {
			if _, ok := docs[name]; ok {
				continue
			}
			report.SourcesWithoutDocs = append(report.SourcesWithoutDocs, model.MissingDoc{
				Type:        t,
				SourcePath:  sources[name],
				ExpectedDoc: a.target(rule, name),
			})
		}

		for _, name := range sortedKeys(docs) {
			if _, ok := sources[name]; ok {
				continue
			}
			report.DocsWithoutSources = append(report.DocsWithoutSources, model.MissingSource{
				Type:           t,
				DocPath:        docs[name],
				ExpectedSource: filepath.ToSlash(filepath.Join(a.configDir, rule.SourceDir, name+entity.SourceExtensions[0])),
			})
		}
	}

	return report, nil
}

// sources maps stable name to the workspace-relative source path. When a
// name exists with both extensions the first in directory order wins; the
// duplicate is reported as a conflict elsewhere.
func (a *Auditor) sources(rule config.Rule) (map[string]string, error) {
	dir := filepath.Join(a.configDir, rule.SourceDir)
	entries, err := readDir(filepath.Join(a.root, dir))
	if err != nil {
		return nil, err
	}

	out := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() || !entity.IsSourceFile(e.Name()) {
			continue
		}
		name := entity.StableName(e.Name())
		if _, ok := out[name]; !ok {
			out[name] = filepath.ToSlash(filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

// docs maps stable name to the workspace-relative document path for every
// file matching the rule's target pattern.
func (a *Auditor) docs(rule config.Rule) (map[string]string, error) {
	pattern := filepath.FromSlash(rule.TargetPattern)
	dir := filepath.Join(a.docsDir, filepath.Dir(pattern))
	prefix, suffix, _ := strings.Cut(filepath.Base(pattern), "{name}")

	entries, err := readDir(filepath.Join(a.root, dir))
	if err != nil {
		return nil, err
	}

	out := make(map[string]string)
	for _, e := range entries {
		fn := e.Name()
		if e.IsDir() || fn == IndexFile {
			continue
		}
		if !strings.HasPrefix(fn, prefix) || !strings.HasSuffix(fn, suffix) {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(fn, prefix), suffix)
		if name == "" {
			continue
		}
		out[name] = filepath.ToSlash(filepath.Join(dir, fn))
	}
	return out, nil
}

func (a *Auditor) target(rule config.Rule, name string) string {
	return filepath.ToSlash(filepath.Join(a.docsDir, strings.ReplaceAll(rule.TargetPattern, "{name}", name)))
}

func readDir(dir string) ([]os.DirEntry, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	return entries, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
