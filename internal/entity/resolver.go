package entity

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"docsync/internal/model"
)

var (
	agentCategories = []string{"core", "specialized", "utility", "governance"}
	toolCategories  = []string{"development", "testing", "deployment", "monitoring", "security", "collaboration"}
)

// Resolver classifies sources. The containing directory decides first; the
// content heuristic is consulted only when the path is not conclusive.
type Resolver struct {
	dirs map[string]model.EntityType
}

func NewResolver(sourceDirs map[model.EntityType]string) *Resolver {
	dirs := make(map[string]model.EntityType, len(sourceDirs))
	for t, d := range sourceDirs {
		dirs[filepath.ToSlash(filepath.Clean(d))] = t
	}
	return &Resolver{dirs: dirs}
}

// ResolvePath matches the directory of relPath (relative to the config dir)
// against the configured source directories.
func (r *Resolver) ResolvePath(relPath string) model.EntityType {
	dir := filepath.ToSlash(filepath.Dir(filepath.Clean(relPath)))
	if t, ok := r.dirs[dir]; ok {
		return t
	}
	return model.EntityUnknown
}

// ResolveContent looks for the fields that only one entity type carries.
// More than one match is as unresolved as none.
func ResolveContent(content map[string]any) model.EntityType {
	var candidates []model.EntityType

	metadata, _ := content["metadata"].(map[string]any)
	if category, ok := metadata["category"].(string); ok {
		switch {
		case slices.Contains(agentCategories, strings.ToLower(category)):
			candidates = append(candidates, model.EntityAgent)
		case slices.Contains(toolCategories, strings.ToLower(category)):
			candidates = append(candidates, model.EntityTool)
		}
	}
	if _, ok := metadata["phase"]; ok {
		candidates = append(candidates, model.EntityLifecycle)
	}
	if configuration, ok := content["configuration"].(map[string]any); ok {
		if _, ok := configuration["providers"]; ok {
			candidates = append(candidates, model.EntityLLM)
		}
	}

	if len(candidates) != 1 {
		return model.EntityUnknown
	}
	return candidates[0]
}

func (r *Resolver) Resolve(relPath string, content map[string]any) (model.EntityType, error) {
	if t := r.ResolvePath(relPath); t != model.EntityUnknown {
		return t, nil
	}
	if t := ResolveContent(content); t != model.EntityUnknown {
		return t, nil
	}
	return model.EntityUnknown, fmt.Errorf("%w: %s", model.ErrUnresolvedType, relPath)
}
