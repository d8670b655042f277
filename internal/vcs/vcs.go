package vcs

import (
	"context"
	"fmt"
	"strings"
)

// Client stages and commits generated documents.
type Client interface {
	Stage(ctx context.Context, paths []string) error
	Commit(ctx context.Context, message string) error
}

// Noop is used when git integration is disabled.
type Noop struct{}

func (Noop) Stage(context.Context, []string) error { return nil }

func (Noop) Commit(context.Context, string) error { return nil }

const maxListedFiles = 5

// CommitMessage fills {files} in template with the first few names and
// appends a count of the rest.
func CommitMessage(template string, names []string) string {
	listed := names
	if len(listed) > maxListedFiles {
		listed = listed[:maxListedFiles]
	}

	msg := strings.ReplaceAll(template, "{files}", strings.Join(listed, ", "))
	if rest := len(names) - len(listed); rest > 0 {
		msg += fmt.Sprintf(" and %d more", rest)
	}
	return msg
}
