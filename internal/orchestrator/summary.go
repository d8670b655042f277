package orchestrator

import (
	"fmt"
	"sort"
	"strings"

	"docsync/internal/model"

	"go.uber.org/multierr"
)

type FileResult struct {
	Source     string `json:"source"`
	Target     string `json:"target"`
	Changed    bool   `json:"changed"`
	SnapshotID string `json:"snapshot_id,omitempty"`
}

type Failure struct {
	Source  string `json:"source"`
	Kind    string `json:"kind"`
	Message string `json:"error"`
	Err     error  `json:"-"`
}

// Summary is the outcome of one pass. File-local failures never abort a
// pass; they are collected here and combined into Err.
type Summary struct {
	RunID     string           `json:"run_id"`
	DryRun    bool             `json:"dry_run"`
	Succeeded []FileResult     `json:"succeeded"`
	Failures  []Failure        `json:"failures"`
	Unchanged []string         `json:"unchanged,omitempty"`
	Deleted   []string         `json:"deleted"`
	Orphans   []string         `json:"orphans,omitempty"`
	Warnings  []string         `json:"warnings,omitempty"`
	Conflicts []model.Conflict `json:"conflicts,omitempty"`
	Err       error            `json:"-"`
}

func (s *Summary) HasFailures() bool {
	return len(s.Failures) > 0
}

func (s *Summary) fail(source string, err error) {
	s.Failures = append(s.Failures, Failure{
		Source:  source,
		Kind:    model.Kind(err),
		Message: err.Error(),
		Err:     err,
	})
	s.Err = multierr.Append(s.Err, &model.FileError{Path: source, Err: err})
}

// Changed returns the targets whose content was rewritten.
func (s *Summary) Changed() []string {
	var out []string
	for _, r := range s.Succeeded {
		if r.Changed {
			out = append(out, r.Target)
		}
	}
	sort.Strings(out)
	return out
}

// Breakdown formats one line per failed file.
func (s *Summary) Breakdown() string {
	var b strings.Builder
	for _, f := range s.Failures {
		fmt.Fprintf(&b, "  %s [%s]: %v\n", f.Source, f.Kind, f.Err)
	}
	return b.String()
}
