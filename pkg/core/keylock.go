package core

import "sync"

// keyLock serializes operations per string key.
//
// Each key gets its own mutex with a reference count; the entry is removed
// once the last holder releases it, so the map does not grow with the number
// of distinct keys ever seen.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*keyLockEntry
}

type keyLockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{
		locks: make(map[string]*keyLockEntry),
	}
}

// Lock acquires the mutex for key, creating it on first use.
func (k *keyLock) Lock(key string) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyLockEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
}

// Unlock releases the mutex for key and drops the entry when no other
// goroutine is waiting on it.
func (k *keyLock) Unlock(key string) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if ok {
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
	}
	k.mu.Unlock()

	if ok {
		entry.mu.Unlock()
	}
}
