package tracker

import (
	"sync"

	"sitewatch/internal/domain"
)

// keyedMutex serializes snapshot updates per target without a global lock.
// Entries are reference-counted and dropped once nobody holds or waits on
// them, so the arena does not grow with the number of targets ever seen.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[domain.TargetID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[domain.TargetID]*lockEntry)}
}

// lock acquires the per-target mutex and returns its release func.
func (k *keyedMutex) lock(id domain.TargetID) func() {
	k.mu.Lock()
	e := k.locks[id]
	if e == nil {
		e = &lockEntry{}
		k.locks[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
