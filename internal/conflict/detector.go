package conflict

import (
	"sort"
	"time"

	"docsync/internal/logger"
	"docsync/internal/model"

	"go.uber.org/zap"
)

// Source is one classified source file and the document it maps to.
type Source struct {
	Path   string
	Type   model.EntityType
	Name   string
	Target string
}

// Detect finds sources that would share a target document and stable names
// claimed by more than one entity type. The result is ordered by kind and
// name.
func Detect(sources []Source, now time.Time) []model.Conflict {
	byTarget := make(map[string][]Source)
	byName := make(map[string][]Source)
	for _, s := range sources {
		byTarget[s.Target] = append(byTarget[s.Target], s)
		byName[s.Name] = append(byName[s.Name], s)
	}

	var out []model.Conflict

	for target, group := range byTarget {
		if len(group) < 2 {
			continue
		}
		out = append(out, model.Conflict{
			Kind:       model.ConflictDuplicateTarget,
			Name:       group[0].Name,
			Sources:    paths(group),
			Targets:    []string{target},
			DetectedAt: now,
		})
	}

	for name, group := range byName {
		types := make(map[model.EntityType]string)
		for _, s := range group {
			types[s.Type] = s.Target
		}
		if len(types) < 2 {
			continue
		}
		targets := make([]string, 0, len(types))
		for _, t := range types {
			targets = append(targets, t)
		}
		sort.Strings(targets)
		out = append(out, model.Conflict{
			Kind:       model.ConflictCrossType,
			Name:       name,
			Sources:    paths(group),
			Targets:    targets,
			DetectedAt: now,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind > out[j].Kind
		}
		return out[i].Name < out[j].Name
	})

	for _, c := range out {
		logger.Log.Warn("conflict detected",
			zap.String("kind", string(c.Kind)),
			zap.String("name", c.Name),
			zap.Strings("sources", c.Sources))
	}

	return out
}

// Blocked returns the sources that must not be generated: every member of
// a duplicate-target conflict, since no single one of them owns the target.
func Blocked(conflicts []model.Conflict) map[string]model.Conflict {
	out := make(map[string]model.Conflict)
	for _, c := range conflicts {
		if c.Kind != model.ConflictDuplicateTarget {
			continue
		}
		for _, s := range c.Sources {
			out[s] = c
		}
	}
	return out
}

func paths(group []Source) []string {
	out := make([]string, 0, len(group))
	for _, s := range group {
		out = append(out, s.Path)
	}
	sort.Strings(out)
	return out
}
