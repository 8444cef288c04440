package detect

import (
	"fmt"
	"sync"
	"testing"
)

// newTestS3FIFO creates a small S3-FIFO wrapping an in-memory backing cache
// for tests that do not need bbolt.
func newTestS3FIFO(capacity int) *s3fifoCache {
	return newS3FIFOCache(newMemoryCache(), capacity).(*s3fifoCache)
}

func spansFor(text string) []Span {
	return []Span{{Start: 0, End: len(text), Category: CategoryPerson, Text: text, Confidence: 0.9, Source: SourceModel}}
}

// ── Basic contract ───────────────────────────────────────────────────────────

func TestS3FIFOGetSetDelete(t *testing.T) {
	t.Parallel()
	c := newTestS3FIFO(10)
	defer c.Close() //nolint:errcheck

	// Miss on empty cache.
	if _, ok := c.Get("x"); ok {
		t.Error("expected miss on empty cache")
	}

	// Set then Get.
	c.Set("k1", spansFor("Jane Doe"))
	spans, ok := c.Get("k1")
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if len(spans) != 1 || spans[0].Text != "Jane Doe" {
		t.Errorf("unexpected spans: %+v", spans)
	}

	// Overwrite.
	c.Set("k1", spansFor("John Roe"))
	spans, ok = c.Get("k1")
	if !ok || len(spans) != 1 || spans[0].Text != "John Roe" {
		t.Errorf("expected overwritten value, got %+v ok=%v", spans, ok)
	}

	// Delete.
	c.Delete("k1")
	if _, ok := c.Get("k1"); ok {
		t.Error("expected miss after Delete")
	}
}

// ── Eviction: capacity enforcement ──────────────────────────────────────────

func TestS3FIFOCapacityEnforced(t *testing.T) {
	t.Parallel()
	capacity := 10
	c := newTestS3FIFO(capacity)
	defer c.Close() //nolint:errcheck

	// Fill past capacity with unique keys.
	for i := 0; i < capacity+5; i++ {
		c.Set(fmt.Sprintf("key-%d", i), spansFor(fmt.Sprintf("name-%d", i)))
	}

	c.mu.Lock()
	total := c.sQueue.Len() + c.mQueue.Len()
	c.mu.Unlock()

	if total > capacity {
		t.Errorf("in-memory entries %d exceeds capacity %d", total, capacity)
	}
}

// ── Promotion: freq > 0 on S eviction triggers M promotion ─────────────────

func TestS3FIFOPromotionToM(t *testing.T) {
	t.Parallel()
	// capacity=2 → sTarget=1, mTarget=1.
	// S3-FIFO evicts only when total > capacity, so we need capacity+1 insertions
	// to trigger eviction of the oldest S entry.
	c := newTestS3FIFO(2)
	defer c.Close() //nolint:errcheck

	// Insert "hot" and access it so freq > 0.
	c.Set("hot", spansFor("hot"))
	c.Get("hot") // freq → 1

	// Fill to capacity.
	c.Set("cold", spansFor("cold")) // total=2, no eviction yet

	// One more insertion pushes total to 3 > 2, triggering evictFromS on "hot".
	// Because hot.freq > 0, it is promoted to M, not evicted.
	c.Set("extra", spansFor("extra"))

	c.mu.Lock()
	e, ok := c.entries["hot"]
	c.mu.Unlock()

	if !ok {
		t.Fatal("expected 'hot' to still be resident after S eviction")
	}
	if !e.inM {
		t.Error("expected 'hot' to be promoted to M queue (freq > 0 at eviction time)")
	}
}

// ── Ghost set: recently evicted S key bypasses S on re-insert ───────────────

func TestS3FIFOGhostBypassesS(t *testing.T) {
	t.Parallel()
	// capacity=2: eviction fires when total > 2.
	c := newTestS3FIFO(2)
	defer c.Close() //nolint:errcheck

	// Insert "victim" (freq=0) and fill to capacity.
	c.Set("victim", spansFor("victim"))
	c.Set("displacer", spansFor("displacer")) // total=2, no eviction yet

	// Third insert pushes total to 3 > 2. evictFromS pops "victim" (freq=0):
	// victim evicted to ghost, "trigger" inserted into S.
	c.Set("trigger", spansFor("trigger"))

	c.mu.Lock()
	_, victimResident := c.entries["victim"]
	inGhost := c.ghostContains("victim")
	c.mu.Unlock()

	if victimResident {
		t.Error("expected 'victim' to be evicted from memory")
	}
	if !inGhost {
		t.Error("expected 'victim' to be in ghost after S eviction")
	}

	// Re-insert "victim". Ghost hit → should bypass S and go directly to M.
	c.Set("victim", spansFor("victim-new"))

	c.mu.Lock()
	e, ok := c.entries["victim"]
	c.mu.Unlock()

	if !ok {
		t.Fatal("expected 'victim' to be resident after re-insert")
	}
	if !e.inM {
		t.Error("expected 'victim' to bypass S and go to M on ghost-hit re-insert")
	}
}

// ── Ghost capacity: oldest ghost entry is evicted when ghost is full ─────────

func TestS3FIFOGhostBounded(t *testing.T) {
	t.Parallel()
	// capacity=20 → sTarget=2, ghostCap=4.
	c := newTestS3FIFO(20)
	defer c.Close() //nolint:errcheck

	ghostCap := c.ghostCap

	// Evict ghostCap+2 keys so the ghost overflows.
	for i := 0; i < ghostCap+2; i++ {
		c.Set(fmt.Sprintf("evict-%d", i), spansFor("e"))
		c.Set(fmt.Sprintf("filler-%d", i), spansFor("f"))
	}

	c.mu.Lock()
	ghostCount := c.ghostCount
	c.mu.Unlock()

	if ghostCount > ghostCap {
		t.Errorf("ghost count %d exceeds ghostCap %d", ghostCount, ghostCap)
	}
}

// ── Cold read: bbolt hit re-warms S3-FIFO memory layer ──────────────────────

func TestS3FIFOColdReadRewarmsMemory(t *testing.T) {
	t.Parallel()
	backing := newMemoryCache()
	// Pre-populate the backing store (simulates data written by a previous process).
	backing.Set("cold-key", spansFor("cold"))

	c := newS3FIFOCache(backing, 10).(*s3fifoCache)
	defer c.Close() //nolint:errcheck

	// Key is not in S3-FIFO memory yet.
	c.mu.Lock()
	_, inMem := c.entries["cold-key"]
	c.mu.Unlock()
	if inMem {
		t.Fatal("expected cold-key absent from memory before Get")
	}

	// Get triggers backing store lookup and re-warm.
	spans, ok := c.Get("cold-key")
	if !ok || len(spans) != 1 || spans[0].Text != "cold" {
		t.Fatalf("expected cold-key hit from backing, got ok=%v spans=%+v", ok, spans)
	}

	// Verify the entry is now in memory.
	c.mu.Lock()
	_, inMem = c.entries["cold-key"]
	c.mu.Unlock()
	if !inMem {
		t.Error("expected cold-key to be re-warmed into memory after Get")
	}
}

// ── Concurrent safety ────────────────────────────────────────────────────────

func TestS3FIFOConcurrentAccess(t *testing.T) {
	t.Parallel()
	c := newTestS3FIFO(100)
	defer c.Close() //nolint:errcheck

	const goroutines = 20
	const ops = 200

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(g int) {
			defer wg.Done()
			for i := 0; i < ops; i++ {
				key := fmt.Sprintf("key-%d-%d", g, i%50)
				c.Set(key, spansFor(fmt.Sprintf("name-%d-%d", g, i)))
				c.Get(key)
				if i%10 == 0 {
					c.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()

	// Verify structural invariants after concurrent storm.
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.sQueue.Len() + c.mQueue.Len()
	if total > c.capacity {
		t.Errorf("post-concurrency: %d entries exceed capacity %d", total, c.capacity)
	}
	if len(c.entries) != total {
		t.Errorf("entries map (%d) out of sync with queue lengths (%d)", len(c.entries), total)
	}
	if c.ghostCount > c.ghostCap {
		t.Errorf("ghostCount %d exceeds ghostCap %d", c.ghostCount, c.ghostCap)
	}
}

// ── Frequency saturation ─────────────────────────────────────────────────────

func TestS3FIFOFrequencySaturation(t *testing.T) {
	t.Parallel()
	c := newTestS3FIFO(10)
	defer c.Close() //nolint:errcheck

	c.Set("k", spansFor("v"))
	// Access many times; freq must saturate at 3.
	for i := 0; i < 100; i++ {
		c.Get("k")
	}

	c.mu.Lock()
	e := c.entries["k"]
	c.mu.Unlock()

	if e.freq != 3 {
		t.Errorf("expected freq=3 (saturated), got %d", e.freq)
	}
}

// ── Interface compliance via bbolt backing ───────────────────────────────────

func TestS3FIFOWithBboltBacking(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	bb, err := newBboltCache(dir + "/test.db")
	if err != nil {
		t.Fatalf("newBboltCache: %v", err)
	}

	c := newS3FIFOCache(bb, 100)
	defer c.Close() //nolint:errcheck

	key := CacheKey("persisted leaf")
	c.Set(key, sampleSpans)

	spans, ok := c.Get(key)
	if !ok || !sameSpans(spans, sampleSpans) {
		t.Fatalf("expected hit, got ok=%v spans=%+v", ok, spans)
	}

	c.Delete(key)
	if _, ok := c.Get(key); ok {
		t.Error("expected miss after Delete")
	}
}
