package pipeline

import (
	"sync"
	"time"

	"docsync/internal/model"
)

type pending struct {
	timer *time.Timer
	gen   uint64
}

// Coordinator turns a burst of notifications for one path into a single
// request once the path has been quiet for the debounce delay. Each path has
// its own timer; requests for different paths are emitted in whatever order
// their timers fire. Deletions are forwarded immediately and cancel any
// pending request for the path.
type Coordinator struct {
	delay time.Duration
	out   chan model.FileEvent
	done  chan struct{}

	mu       sync.Mutex
	timers   map[string]*pending
	gen      uint64
	stopped  bool
	inflight sync.WaitGroup
}

func NewCoordinator(delay time.Duration, bufferSize int) *Coordinator {
	return &Coordinator{
		delay:  delay,
		out:    make(chan model.FileEvent, bufferSize),
		done:   make(chan struct{}),
		timers: make(map[string]*pending),
	}
}

// Requests is closed after Stop.
func (c *Coordinator) Requests() <-chan model.FileEvent {
	return c.out
}

// Notify records one raw event. It returns false once the coordinator has
// been stopped. A deletion is sent from the caller's goroutine, so Notify
// blocks while Requests is full.
func (c *Coordinator) Notify(event model.FileEvent) bool {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return false
	}

	path := event.Path
	if p, ok := c.timers[path]; ok {
		if p.timer.Stop() {
			c.inflight.Done()
		}
		delete(c.timers, path)
	}

	c.inflight.Add(1)
	if event.Type == model.EventDelete {
		c.mu.Unlock()
		defer c.inflight.Done()
		c.emit(event)
		return true
	}

	c.gen++
	gen := c.gen
	c.timers[path] = &pending{
		gen: gen,
		timer: time.AfterFunc(c.delay, func() {
			defer c.inflight.Done()
			c.fire(path, gen, event)
		}),
	}
	c.mu.Unlock()
	return true
}

func (c *Coordinator) fire(path string, gen uint64, event model.FileEvent) {
	c.mu.Lock()
	p, ok := c.timers[path]
	if !ok || p.gen != gen || c.stopped {
		c.mu.Unlock()
		return
	}
	delete(c.timers, path)
	c.mu.Unlock()

	c.emit(event)
}

func (c *Coordinator) emit(event model.FileEvent) {
	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.out <- event:
	case <-c.done:
	}
}

// Pending returns the number of paths waiting for their quiet period.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Run feeds every event from inCh into the coordinator and stops it when
// inCh is closed.
func (c *Coordinator) Run(inCh <-chan model.FileEvent) {
	for event := range inCh {
		c.Notify(event)
	}
	c.Stop()
}

// Stop cancels every pending timer, waits for callbacks already running and
// closes Requests. Nothing is emitted after Stop returns.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	for path, p := range c.timers {
		if p.timer.Stop() {
			c.inflight.Done()
		}
		delete(c.timers, path)
	}
	close(c.done)
	c.mu.Unlock()

	c.inflight.Wait()
	close(c.out)
}
