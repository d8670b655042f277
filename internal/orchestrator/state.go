package orchestrator

import (
	"sync"
	"time"
)

type State int32

const (
	StateIdle State = iota
	StateDetecting
	StateValidating
	StateGenerating
	StatePersisting
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDetecting:
		return "detecting"
	case StateValidating:
		return "validating"
	case StateGenerating:
		return "generating"
	case StatePersisting:
		return "persisting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// keyedMutex serialises work on the same key and lets distinct keys
// proceed in parallel.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()

		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Status is a point-in-time view for the daemon API and `status`.
type Status struct {
	State     string     `json:"state"`
	StartedAt time.Time  `json:"started_at"`
	LastSync  *time.Time `json:"last_sync"`
	Sources   int        `json:"sources"`
	Documents int        `json:"documents"`
	Conflicts int        `json:"conflicts"`
	Synced    int        `json:"synced"`
	Failed    int        `json:"failed"`
	Watching  bool       `json:"watching"`
}
