// Package keymutex provides named mutual exclusion: callers serialize on a
// string key while operations for different keys proceed independently.
package keymutex

import "sync"

// KeyMutex is a map of independently lockable named mutexes. Lock entries are
// created on first use and dropped once no goroutine holds or waits on them,
// so the map does not grow with the universe of keys seen.
//
// The zero value is not usable; call New.
type KeyMutex struct {
	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New returns an empty KeyMutex.
func New() *KeyMutex {
	return &KeyMutex{entries: make(map[string]*entry)}
}

// Lock acquires the mutex for key, blocking until it is available, and
// returns the matching unlock function.
func (k *KeyMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &entry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()

	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}

// RunExclusive runs fn while holding the mutex for key.
func (k *KeyMutex) RunExclusive(key string, fn func() error) error {
	unlock := k.Lock(key)
	defer unlock()
	return fn()
}
