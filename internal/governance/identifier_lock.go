package governance

import "sync"

// keyedMutex provides one mutual-exclusion scope per identifier so the
// check-then-act sequences in submit and vote resolution cannot interleave
// for the same identifier. Entries are reference counted and dropped once
// the last holder releases, so the map never grows with dead identifiers.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*identifierLock
}

type identifierLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*identifierLock)}
}

// Lock blocks until the identifier's scope is exclusively held and returns
// the release func.
func (k *keyedMutex) Lock(identifier string) func() {
	k.mu.Lock()
	entry, ok := k.locks[identifier]
	if !ok {
		entry = &identifierLock{}
		k.locks[identifier] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, identifier)
		}
		k.mu.Unlock()
	}
}
