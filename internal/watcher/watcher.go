package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"docsync/internal/logger"
	"docsync/internal/model"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reports file events under a directory tree. Event paths are
// slash-separated and relative to the watched root.
type Watcher struct {
	fw      *fsnotify.Watcher
	root    string
	eventCh chan model.FileEvent
	doneCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

func New(bufferSize int) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		fw:      fw,
		eventCh: make(chan model.FileEvent, bufferSize),
		doneCh:  make(chan struct{}),
	}, nil
}

func (w *Watcher) Watch(dir string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	if _, err := os.Stat(absDir); err != nil {
		return fmt.Errorf("source directory not found: %w", err)
	}
	w.root = absDir

	if err := w.addRecursive(absDir); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.run()

	logger.Log.Info("watcher started",
		zap.String("dir", absDir))
	return nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if err := w.fw.Add(path); err != nil {
				return fmt.Errorf("failed to watch %s: %w", path, err)
			}
			logger.Log.Debug("watching directory",
				zap.String("path", path))
		}

		return nil
	})
}

func (w *Watcher) run() {
	defer w.wg.Done()
	defer close(w.eventCh)

	for {
		select {
		case <-w.doneCh:
			logger.Log.Info("watcher stopping")
			return

		case fsEvent, ok := <-w.fw.Events:
			if !ok {
				return
			}

			eventType := toEventType(fsEvent.Op)
			if eventType == "" {
				continue
			}

			if fsEvent.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(fsEvent.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(fsEvent.Name); err != nil {
						logger.Log.Warn("failed to watch new directory",
							zap.String("path", fsEvent.Name),
							zap.Error(err))
					}
					continue
				}
			}

			rel, err := filepath.Rel(w.root, fsEvent.Name)
			if err != nil {
				continue
			}

			event := model.FileEvent{
				Type:      eventType,
				Path:      filepath.ToSlash(rel),
				Timestamp: time.Now(),
			}

			select {
			case w.eventCh <- event:
			case <-w.doneCh:
				return
			default:
				logger.Log.Warn("event channel is full, dropping event",
					zap.String("path", event.Path))
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}

			logger.Log.Error("watcher error",
				zap.Error(err))
		}
	}
}

// Events is closed once the watcher stops.
func (w *Watcher) Events() <-chan model.FileEvent {
	return w.eventCh
}

// Stop releases the OS watch handles and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.once.Do(func() {
		close(w.doneCh)
		_ = w.fw.Close()
		w.wg.Wait()
	})
}

func toEventType(op fsnotify.Op) model.EventType {
	switch {
	case op.Has(fsnotify.Create):
		return model.EventCreate
	case op.Has(fsnotify.Write):
		return model.EventModify
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return model.EventDelete
	default:
		return ""
	}
}
