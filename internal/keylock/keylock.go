// Package keylock provides striped mutual exclusion by string key. The
// entitlement services use it to serialize read-modify-write turns on a
// single entity id without a global lock.
package keylock

import (
	"hash/fnv"
	"sync"
)

const defaultStripes = 64

// Striped is a fixed set of mutexes indexed by key hash. Two keys may
// share a stripe; that costs contention, not correctness.
type Striped struct {
	stripes []sync.Mutex
}

func New() *Striped {
	return &Striped{stripes: make([]sync.Mutex, defaultStripes)}
}

// Lock acquires the stripe holding key and returns its unlock func.
func (s *Striped) Lock(key string) func() {
	m := &s.stripes[s.index(key)]
	m.Lock()
	return m.Unlock
}

func (s *Striped) index(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % uint32(len(s.stripes))
}
