package cache

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// KeyedMutex serializes work per key using a fixed set of lock stripes.
// Different keys may share a stripe; the same key always maps to one.
type KeyedMutex struct {
	stripes []sync.Mutex
}

// NewKeyedMutex creates a KeyedMutex with n stripes (at least one).
func NewKeyedMutex(n int) *KeyedMutex {
	if n < 1 {
		n = 1
	}
	return &KeyedMutex{stripes: make([]sync.Mutex, n)}
}

// Lock acquires the stripe for key and returns its unlock function.
func (m *KeyedMutex) Lock(key string) func() {
	mu := &m.stripes[xxhash.Sum64String(key)%uint64(len(m.stripes))]
	mu.Lock()
	return mu.Unlock
}
