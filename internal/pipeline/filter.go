package pipeline

import (
	"path/filepath"
	"strings"

	"docsync/internal/model"
)

// Filter drops events whose path has a component matching ignoreList, and
// those accept rejects. A nil accept lets everything else through.
func Filter(inCh <-chan model.FileEvent, ignoreList []string, accept func(path string) bool) <-chan model.FileEvent {
	outCh := make(chan model.FileEvent, cap(inCh))

	go func() {
		defer close(outCh)

		for event := range inCh {
			if shouldIgnore(event.Path, ignoreList) {
				continue
			}
			if accept != nil && !accept(event.Path) {
				continue
			}
			outCh <- event
		}
	}()

	return outCh
}

func shouldIgnore(path string, ignoreList []string) bool {
	parts := strings.Split(filepath.ToSlash(path), "/")

	for _, part := range parts {
		for _, pattern := range ignoreList {
			matched, err := filepath.Match(pattern, part)
			if err == nil && matched {
				return true
			}
		}
	}

	return false
}
