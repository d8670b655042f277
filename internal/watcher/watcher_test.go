package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"docsync/internal/model"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToEventType(t *testing.T) {
	assert.Equal(t, model.EventCreate, toEventType(fsnotify.Create))
	assert.Equal(t, model.EventModify, toEventType(fsnotify.Write))
	assert.Equal(t, model.EventDelete, toEventType(fsnotify.Remove))
	assert.Equal(t, model.EventDelete, toEventType(fsnotify.Rename))
	assert.Equal(t, model.EventType(""), toEventType(fsnotify.Chmod))
}

func TestWatchReportsRelativePaths(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "agents"), 0o755))

	w, err := New(16)
	require.NoError(t, err)
	require.NoError(t, w.Watch(root))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(root, "agents", "a.yaml"), []byte("x: 1\n"), 0o644))

	select {
	case e := <-w.Events():
		assert.Equal(t, "agents/a.yaml", e.Path)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
}

func TestWatchMissingDir(t *testing.T) {
	w, err := New(1)
	require.NoError(t, err)
	defer w.Stop()

	assert.Error(t, w.Watch(filepath.Join(t.TempDir(), "missing")))
}

func TestStopClosesEvents(t *testing.T) {
	w, err := New(1)
	require.NoError(t, err)
	require.NoError(t, w.Watch(t.TempDir()))

	w.Stop()
	_, ok := <-w.Events()
	assert.False(t, ok)
	w.Stop()
}
