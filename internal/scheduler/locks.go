package scheduler

import "sync"

// keyedLocks serializes work per task id while letting unrelated tasks
// proceed in parallel. Entries are reference counted so the map doesn't
// grow with every task id ever seen.
type keyedLocks struct {
	mu sync.Mutex
	m  map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{m: map[string]*lockEntry{}}
}

// Lock acquires the per-id lock and returns its release func.
func (k *keyedLocks) Lock(id string) func() {
	k.mu.Lock()
	e, ok := k.m[id]
	if !ok {
		e = &lockEntry{}
		k.m[id] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.m, id)
		}
		k.mu.Unlock()
	}
}
