package entity

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docsync/internal/model"

	"gopkg.in/yaml.v3"
)

var SourceExtensions = []string{".yaml", ".yml"}

func IsSourceFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SourceExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// StableName is the base name of a source without its extension.
func StableName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Parse decodes a YAML source. The top-level node must be a mapping.
func Parse(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", model.ErrParse)
	}

	var content map[string]any
	if err := yaml.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrParse, err)
	}
	if content == nil {
		return nil, fmt.Errorf("%w: document is not a mapping", model.ErrParse)
	}

	return content, nil
}

// Load reads relPath under configDir, parses it and resolves its type.
func (r *Resolver) Load(configDir, relPath string) (*model.SourceEntity, error) {
	data, err := os.ReadFile(filepath.Join(configDir, relPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}

	content, err := Parse(data)
	if err != nil {
		return nil, err
	}

	t, err := r.Resolve(relPath, content)
	if err != nil {
		return nil, err
	}

	return &model.SourceEntity{
		RelPath: filepath.ToSlash(relPath),
		Type:    t,
		Name:    StableName(relPath),
		Content: content,
		Raw:     data,
	}, nil
}
