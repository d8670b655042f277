package pipeline

import (
	"testing"
	"time"

	"docsync/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const delay = 50 * time.Millisecond

func ev(t model.EventType, path string) model.FileEvent {
	return model.FileEvent{Type: t, Path: path, Timestamp: time.Now()}
}

func collect(ch <-chan model.FileEvent, wait time.Duration) []model.FileEvent {
	var out []model.FileEvent
	deadline := time.After(wait)
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, e)
		case <-deadline:
			return out
		}
	}
}

func TestCoordinatorCoalescesBurst(t *testing.T) {
	c := NewCoordinator(delay, 10)
	defer c.Stop()

	for range 5 {
		c.Notify(ev(model.EventModify, "agents/a.yaml"))
		time.Sleep(delay / 5)
	}

	got := collect(c.Requests(), 4*delay)
	require.Len(t, got, 1)
	assert.Equal(t, "agents/a.yaml", got[0].Path)
	assert.Zero(t, c.Pending())
}

func TestCoordinatorIndependentPaths(t *testing.T) {
	c := NewCoordinator(delay, 10)
	defer c.Stop()

	c.Notify(ev(model.EventModify, "agents/a.yaml"))
	c.Notify(ev(model.EventCreate, "tools/b.yaml"))
	c.Notify(ev(model.EventModify, "agents/a.yaml"))

	got := collect(c.Requests(), 4*delay)
	paths := make([]string, 0, len(got))
	for _, e := range got {
		paths = append(paths, e.Path)
	}
	assert.ElementsMatch(t, []string{"agents/a.yaml", "tools/b.yaml"}, paths)
}

func TestCoordinatorDeleteBypassesDebounce(t *testing.T) {
	c := NewCoordinator(time.Hour, 10)
	defer c.Stop()

	c.Notify(ev(model.EventModify, "agents/a.yaml"))
	c.Notify(ev(model.EventDelete, "agents/a.yaml"))

	got := collect(c.Requests(), 200*time.Millisecond)
	require.Len(t, got, 1)
	assert.Equal(t, model.EventDelete, got[0].Type)
	assert.Zero(t, c.Pending())
}

func TestCoordinatorDeleteIsQueuedBeforeNotifyReturns(t *testing.T) {
	c := NewCoordinator(time.Hour, 1)
	defer c.Stop()

	require.True(t, c.Notify(ev(model.EventDelete, "agents/a.yaml")))
	select {
	case e := <-c.Requests():
		assert.Equal(t, "agents/a.yaml", e.Path)
	default:
		t.Fatal("deletion was not queued")
	}
}

func TestCoordinatorStopReleasesBlockedDelete(t *testing.T) {
	c := NewCoordinator(time.Hour, 1)
	require.True(t, c.Notify(ev(model.EventDelete, "agents/a.yaml")))

	returned := make(chan bool)
	go func() {
		returned <- c.Notify(ev(model.EventDelete, "agents/b.yaml"))
	}()

	select {
	case <-returned:
		t.Fatal("Notify returned while Requests was full")
	case <-time.After(delay):
	}

	c.Stop()
	assert.True(t, <-returned)

	got := collect(c.Requests(), delay)
	require.Len(t, got, 1)
	assert.Equal(t, "agents/a.yaml", got[0].Path)
}

func TestCoordinatorRunClosesOnInputClose(t *testing.T) {
	in := make(chan model.FileEvent, 4)
	c := NewCoordinator(time.Hour, 4)
	go c.Run(in)

	in <- ev(model.EventModify, "agents/a.yaml")
	in <- ev(model.EventDelete, "agents/b.yaml")
	close(in)

	got := collect(c.Requests(), 4*delay)
	require.Len(t, got, 1)
	assert.Equal(t, model.EventDelete, got[0].Type)
	_, ok := <-c.Requests()
	assert.False(t, ok)
}

func TestCoordinatorStopCancelsPending(t *testing.T) {
	c := NewCoordinator(delay, 10)

	c.Notify(ev(model.EventModify, "agents/a.yaml"))
	c.Notify(ev(model.EventModify, "agents/b.yaml"))
	assert.Equal(t, 2, c.Pending())

	c.Stop()
	assert.False(t, c.Notify(ev(model.EventModify, "agents/c.yaml")))

	time.Sleep(2 * delay)
	_, ok := <-c.Requests()
	assert.False(t, ok, "requests channel should be closed and empty")
	c.Stop()
}

func TestFilter(t *testing.T) {
	in := make(chan model.FileEvent, 10)
	out := Filter(in, []string{".git", "*.swp"}, func(p string) bool { return p != "agents/skip.yaml" })

	for _, p := range []string{"agents/a.yaml", ".git/HEAD", "agents/.a.yaml.swp", "agents/skip.yaml", "tools/b.yaml"} {
		in <- ev(model.EventModify, p)
	}
	close(in)

	var paths []string
	for e := range out {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"agents/a.yaml", "tools/b.yaml"}, paths)
}
