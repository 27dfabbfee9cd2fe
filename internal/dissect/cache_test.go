package dissect

import (
	"testing"
	"time"
)

func seedEntry(a *Analyzer, id uint32, lastAccess time.Time) fragmentKey {
	key := fragmentKey{version: 4, id: id}
	a.fragmentCache[key] = &fragmentEntry{
		fragments:  make(map[uint16][]byte),
		lastAccess: lastAccess,
	}
	return key
}

func TestSweepTimeoutEviction(t *testing.T) {
	a := NewAnalyzer(NetworkConfig{FragTimeout: time.Second})
	base := time.Now()
	a.lastCleanup = base

	stale := seedEntry(a, 1, base)
	fresh := seedEntry(a, 2, base.Add(1500*time.Millisecond))

	a.sweepFragmentCache(base.Add(2 * time.Second))
	if _, ok := a.fragmentCache[stale]; ok {
		t.Error("stale entry survived the sweep")
	}
	if _, ok := a.fragmentCache[fresh]; !ok {
		t.Error("fresh entry evicted")
	}
}

func TestSweepRespectsClearInterval(t *testing.T) {
	a := NewAnalyzer(NetworkConfig{FragTimeout: time.Second})
	base := time.Now()
	a.lastCleanup = base
	stale := seedEntry(a, 1, base.Add(-2*time.Second))

	// The clamped clear interval is timeout/5 = 200ms; sweeping sooner is
	// a no-op even with an expired entry present.
	a.sweepFragmentCache(base.Add(100 * time.Millisecond))
	if _, ok := a.fragmentCache[stale]; !ok {
		t.Fatal("sweep ran inside the clear interval")
	}
	a.sweepFragmentCache(base.Add(300 * time.Millisecond))
	if _, ok := a.fragmentCache[stale]; ok {
		t.Fatal("sweep missed the expired entry")
	}
}

func TestSweepPartialLRU(t *testing.T) {
	a := NewAnalyzer(NetworkConfig{FragTimeout: 10 * time.Second, MaxCacheCount: 3})
	base := time.Now()
	a.lastCleanup = base

	// Five live groups; the two with the oldest access times must go.
	keys := make([]fragmentKey, 5)
	for i := range keys {
		keys[i] = seedEntry(a, uint32(i), base.Add(time.Duration(i)*time.Second))
	}

	a.sweepFragmentCache(base.Add(3 * time.Second))
	if len(a.fragmentCache) != 3 {
		t.Fatalf("expected 3 groups after LRU pass, got %d", len(a.fragmentCache))
	}
	for i := 0; i < 2; i++ {
		if _, ok := a.fragmentCache[keys[i]]; ok {
			t.Errorf("oldest entry %d survived", i)
		}
	}
	for i := 2; i < 5; i++ {
		if _, ok := a.fragmentCache[keys[i]]; !ok {
			t.Errorf("recent entry %d evicted", i)
		}
	}
}

func TestSweepIdempotent(t *testing.T) {
	a := NewAnalyzer(NetworkConfig{FragTimeout: time.Second})
	base := time.Now()
	a.lastCleanup = base
	seedEntry(a, 1, base.Add(-2*time.Second))
	live := seedEntry(a, 2, base.Add(400*time.Millisecond))

	at := base.Add(500 * time.Millisecond)
	a.sweepFragmentCache(at)
	sizeAfterFirst := len(a.fragmentCache)
	a.sweepFragmentCache(at)
	if len(a.fragmentCache) != sizeAfterFirst {
		t.Fatal("second sweep changed the cache")
	}
	if _, ok := a.fragmentCache[live]; !ok {
		t.Fatal("live entry lost")
	}
}
