package activitypub

import (
	"hash/fnv"
	"sync"
)

// stripes is the number of mutexes in a keyLocks set. Collisions between
// unrelated keys cost a little contention, never correctness.
const stripes = 64

// keyLocks serialises work on string-keyed resources. Updates to the same
// key never interleave; updates to different keys usually proceed in
// parallel.
type keyLocks struct {
	mu [stripes]sync.Mutex
}

// Lock locks the stripe for key and returns the unlock function.
func (l *keyLocks) Lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	mu := &l.mu[h.Sum32()%stripes]
	mu.Lock()
	return mu.Unlock
}
