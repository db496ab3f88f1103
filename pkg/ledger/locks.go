package ledger

import (
	"sort"
	"sync"
)

// keyLocks serializes mutations per record key (order id, owner+asset).
// Settlement takes its order key and both balance keys with tryAcquire so a
// conflicting settlement fails fast instead of queueing; single-key operations
// block with acquire. Keys are always taken in sorted order, so the blocking
// path cannot deadlock. The registry only grows, which is fine: the key space
// is bounded by live orders and owner/asset combinations.
type keyLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{locks: make(map[string]*sync.Mutex)}
}

func (k *keyLocks) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// acquire blocks until all keys are held, then returns the release func.
func (k *keyLocks) acquire(keys ...string) func() {
	ordered := sortedUnique(keys)
	held := make([]*sync.Mutex, 0, len(ordered))
	for _, key := range ordered {
		m := k.get(key)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

// tryAcquire attempts all keys without blocking. On any contention it releases
// whatever it already holds and reports false.
func (k *keyLocks) tryAcquire(keys ...string) (func(), bool) {
	ordered := sortedUnique(keys)
	held := make([]*sync.Mutex, 0, len(ordered))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
	for _, key := range ordered {
		m := k.get(key)
		if !m.TryLock() {
			release()
			return nil, false
		}
		held = append(held, m)
	}
	return release, true
}

func sortedUnique(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Lock key schema: one namespace for orders, one for balances.
func orderLockKey(id string) string {
	return "ord:" + id
}

func balanceLockKey(owner, asset string) string {
	return "bal:" + owner + ":" + asset
}
