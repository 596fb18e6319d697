package core

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyLock_SerializesPerKey(t *testing.T) {
	kl := newKeyLock()

	var mu sync.Mutex
	counters := make(map[string]int)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		for _, key := range []string{"a", "b"} {
			wg.Add(1)
			go func(key string) {
				defer wg.Done()
				kl.Lock(key)
				defer kl.Unlock(key)

				mu.Lock()
				counters[key]++
				mu.Unlock()
			}(key)
		}
	}
	wg.Wait()

	assert.Equal(t, 50, counters["a"])
	assert.Equal(t, 50, counters["b"])
}

func TestKeyLock_ReleasesUncontendedEntries(t *testing.T) {
	kl := newKeyLock()

	kl.Lock("k")
	kl.Unlock("k")

	kl.mu.Lock()
	defer kl.mu.Unlock()
	assert.Empty(t, kl.locks)
}
