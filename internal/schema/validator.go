package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"docsync/internal/model"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type Result struct {
	Valid   bool
	Skipped bool
	Errors  []string
}

// Validator checks a parsed document against the schema registered for an
// entity type. A type without a schema is skipped, not failed.
type Validator interface {
	Validate(doc any, t model.EntityType) (Result, error)
}

// Nop accepts everything.
type Nop struct{}

func (Nop) Validate(any, model.EntityType) (Result, error) {
	return Result{Valid: true, Skipped: true}, nil
}

type JSONSchema struct {
	dir     string
	printer *message.Printer

	mu      sync.Mutex
	schemas map[model.EntityType]*jsonschema.Schema
	absent  map[model.EntityType]bool
}

func NewJSONSchema(dir string) *JSONSchema {
	return &JSONSchema{
		dir:     dir,
		printer: message.NewPrinter(language.English),
		schemas: make(map[model.EntityType]*jsonschema.Schema),
		absent:  make(map[model.EntityType]bool),
	}
}

// FileName is the schema file consulted for t inside the schemas dir.
func FileName(t model.EntityType) string {
	return string(t) + "-schema.json"
}

func (v *JSONSchema) Validate(doc any, t model.EntityType) (Result, error) {
	sch, err := v.schema(t)
	if err != nil {
		return Result{}, err
	}
	if sch == nil {
		return Result{Valid: true, Skipped: true}, nil
	}

	inst, err := normalize(doc)
	if err != nil {
		return Result{}, fmt.Errorf("failed to normalize document: %w", err)
	}

	err = sch.Validate(inst)
	if err == nil {
		return Result{Valid: true}, nil
	}

	ve, ok := errors.AsType[*jsonschema.ValidationError](err)
	if !ok {
		return Result{}, fmt.Errorf("failed to validate %s document: %w", t, err)
	}

	return Result{Errors: v.leaves(ve, nil)}, nil
}

func (v *JSONSchema) schema(t model.EntityType) (*jsonschema.Schema, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if s, ok := v.schemas[t]; ok {
		return s, nil
	}
	if v.absent[t] {
		return nil, nil
	}
	if v.dir == "" {
		v.absent[t] = true
		return nil, nil
	}

	path, err := filepath.Abs(filepath.Join(v.dir, FileName(t)))
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			v.absent[t] = true
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open schema %s: %w", path, err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	raw, err := jsonschema.UnmarshalJSON(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema %s: %w", path, err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(path, raw); err != nil {
		return nil, fmt.Errorf("failed to register schema %s: %w", path, err)
	}
	s, err := c.Compile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", path, err)
	}

	v.schemas[t] = s
	return s, nil
}

func (v *JSONSchema) leaves(ve *jsonschema.ValidationError, out []string) []string {
	if len(ve.Causes) == 0 {
		loc := "/" + strings.Join(ve.InstanceLocation, "/")
		return append(out, loc+": "+ve.ErrorKind.LocalizedString(v.printer))
	}
	for _, c := range ve.Causes {
		out = v.leaves(c, out)
	}
	return out
}

// normalize turns YAML-decoded values into the JSON data model the
// validator expects (json.Number, map[string]any, []any).
func normalize(doc any) (any, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}
