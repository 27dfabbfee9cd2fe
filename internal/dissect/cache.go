package dissect

import (
	"container/heap"
	"time"

	"firestige.xyz/dissect/internal/metrics"
)

// sweepFragmentCache evicts stale fragment groups. It runs on every
// top-level parse but is a no-op until the clear interval has elapsed.
// Pass 1 removes timed-out groups; pass 2 trims the table back to
// MaxCacheCount by removing the least recently accessed groups.
func (a *Analyzer) sweepFragmentCache(now time.Time) {
	a.cacheMu.Lock()
	defer a.cacheMu.Unlock()
	if now.Sub(a.lastCleanup) < a.cfg.FragClearInterval {
		return
	}
	a.lastCleanup = now

	for key, entry := range a.fragmentCache {
		if now.Sub(entry.lastAccess) > a.cfg.FragTimeout {
			delete(a.fragmentCache, key)
			metrics.FragmentGroupsActive.Dec()
			metrics.CacheEvictionsTotal.WithLabelValues("timeout").Inc()
		}
	}

	overflow := len(a.fragmentCache) - int(a.cfg.MaxCacheCount)
	if overflow <= 0 {
		return
	}
	for _, key := range a.oldestFragmentKeys(overflow) {
		delete(a.fragmentCache, key)
		metrics.FragmentGroupsActive.Dec()
		metrics.CacheEvictionsTotal.WithLabelValues("lru").Inc()
	}
}

type agedKey struct {
	key        fragmentKey
	lastAccess time.Time
}

// agedKeyHeap is a max-heap on lastAccess, so the root is the newest of
// the kept candidates and can be displaced by anything older.
type agedKeyHeap []agedKey

func (h agedKeyHeap) Len() int            { return len(h) }
func (h agedKeyHeap) Less(i, j int) bool  { return h[i].lastAccess.After(h[j].lastAccess) }
func (h agedKeyHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *agedKeyHeap) Push(x interface{}) { *h = append(*h, x.(agedKey)) }
func (h *agedKeyHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// oldestFragmentKeys selects the k least recently accessed groups without
// sorting the whole table: a bounded heap keeps the pass at O(n log k).
// Must be called with the cache lock held.
func (a *Analyzer) oldestFragmentKeys(k int) []fragmentKey {
	h := make(agedKeyHeap, 0, k)
	heap.Init(&h)
	for key, entry := range a.fragmentCache {
		if len(h) < k {
			heap.Push(&h, agedKey{key: key, lastAccess: entry.lastAccess})
			continue
		}
		if entry.lastAccess.Before(h[0].lastAccess) {
			h[0] = agedKey{key: key, lastAccess: entry.lastAccess}
			heap.Fix(&h, 0)
		}
	}
	keys := make([]fragmentKey, len(h))
	for i := range h {
		keys[i] = h[i].key
	}
	return keys
}
