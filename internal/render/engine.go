package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"text/template"

	"docsync/internal/model"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed templates/*.md
var builtin embed.FS

// Engine renders a named template against a context mapping.
type Engine interface {
	Render(templateID string, data map[string]any) (string, error)
}

// TextEngine looks templates up in dir first and falls back to the built-in
// set. Parsed templates are cached by ID and re-parsed when the source they
// were parsed from changes.
type TextEngine struct {
	dir string

	mu    sync.Mutex
	cache map[string]cached
}

type cached struct {
	src  []byte
	tmpl *template.Template
}

func NewTextEngine(dir string) *TextEngine {
	return &TextEngine{
		dir:   dir,
		cache: make(map[string]cached),
	}
}

func (e *TextEngine) Render(templateID string, data map[string]any) (string, error) {
	tmpl, err := e.lookup(templateID)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: %s: %v", model.ErrRender, templateID, err)
	}

	return buf.String(), nil
}

func (e *TextEngine) lookup(id string) (*template.Template, error) {
	if id == "" || strings.ContainsAny(id, `/\`) {
		return nil, fmt.Errorf("%w: invalid template id %q", model.ErrTemplateNotFound, id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	src, err := e.read(id)
	if err != nil {
		return nil, err
	}
	if c, ok := e.cache[id]; ok && bytes.Equal(c.src, src) {
		return c.tmpl, nil
	}

	t, err := template.New(id).
		Option("missingkey=error").
		Funcs(funcMap()).
		Parse(string(src))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrRender, id, err)
	}

	e.cache[id] = cached{src: src, tmpl: t}
	return t, nil
}

func (e *TextEngine) read(id string) ([]byte, error) {
	if e.dir != "" {
		data, err := os.ReadFile(filepath.Join(e.dir, id))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read template %s: %w", id, err)
		}
	}

	data, err := builtin.ReadFile("templates/" + id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", model.ErrTemplateNotFound, id)
	}
	return data, nil
}

// Builtin returns the names and content of the embedded default templates.
func Builtin() (map[string][]byte, error) {
	entries, err := builtin.ReadDir("templates")
	if err != nil {
		return nil, err
	}

	out := make(map[string][]byte, len(entries))
	for _, e := range entries {
		data, err := builtin.ReadFile("templates/" + e.Name())
		if err != nil {
			return nil, err
		}
		out[e.Name()] = data
	}
	return out, nil
}

func funcMap() template.FuncMap {
	titler := cases.Title(language.English)

	return template.FuncMap{
		"title": func(v any) string {
			return titler.String(strings.ReplaceAll(fmt.Sprint(v), "-", " "))
		},
		"dig":     dig,
		"default": defaultValue,
		"toYaml":  toYaml,
		"join": func(sep string, v any) string {
			items, _ := v.([]any)
			parts := make([]string, 0, len(items))
			for _, it := range items {
				parts = append(parts, fmt.Sprint(it))
			}
			return strings.Join(parts, sep)
		},
		"short": func(s string) string {
			if len(s) > 12 {
				return s[:12]
			}
			return s
		},
		"kindIs": func(kind string, v any) bool {
			if v == nil {
				return kind == "nil"
			}
			return reflect.ValueOf(v).Kind().String() == kind
		},
	}
}

// dig walks nested mappings and returns nil for any missing step, for
// optional sections that must not trip missingkey=error.
func dig(v any, keys ...string) any {
	cur := v
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[k]
		if !ok {
			return nil
		}
	}
	return cur
}

func defaultValue(def, v any) any {
	if v == nil {
		return def
	}
	if s, ok := v.(string); ok && s == "" {
		return def
	}
	return v
}

func toYaml(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
