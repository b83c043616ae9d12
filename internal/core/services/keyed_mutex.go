package services

import (
	"sync"

	"github.com/publica-labs/publica-core/internal/core/domain"
)

// keyedMutex serializes operations per (user, provider) pair. Operations on
// different keys proceed concurrently. Entries are refcounted so the map
// does not grow with every key ever seen.
type keyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{entries: make(map[string]*keyedEntry)}
}

func connectionKey(userID string, provider domain.ProviderType) string {
	return userID + "/" + string(provider)
}

// Lock acquires the mutex for a key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &keyedEntry{}
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
