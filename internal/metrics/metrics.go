// Package metrics provides lightweight, lock-minimal runtime counters for
// the anonymization toolkit.
//
// Counters use sync/atomic so hot paths (leaf processing, span accounting)
// incur no mutex contention. Latency statistics use a single mutex per
// dimension; they are updated at most once per run or detection call.
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// knownCategories lists all detection categories the engine can produce.
// Used to pre-populate the per-category span counter map in New() so
// Snapshot() can iterate a fixed set without racing on map writes.
var knownCategories = []string{
	"SSN", "CREDIT_CARD", "EMAIL", "PHONE", "DOB",
	"PERSON", "ORGANIZATION", "LOCATION", "MISC",
}

// Metrics holds all runtime counters for a running toolkit instance.
// The zero value is NOT valid for the per-category counters — use New().
type Metrics struct {
	// Run counters
	DocumentsTotal  atomic.Int64
	DocumentsFailed atomic.Int64
	RunsDegraded    atomic.Int64
	LeavesWalked    atomic.Int64

	// Span volume
	SpansRegex atomic.Int64
	SpansModel atomic.Int64

	// Placeholder allocation
	PlaceholdersAllocated atomic.Int64
	PlaceholderReuses     atomic.Int64

	// Model collaborator health and detection cache effectiveness
	ModelErrors atomic.Int64
	CacheHits   atomic.Int64
	CacheMisses atomic.Int64

	// Per-category substitution counters.
	// Map is written only in New(); concurrent reads are safe without a lock.
	spansByCategory map[string]*atomic.Int64

	// Latency statistics (mutex-guarded because they accumulate floats)
	detectMu   sync.Mutex
	detectStat latencyStats

	runMu   sync.Mutex
	runStat latencyStats

	startTime time.Time
}

// New returns a new Metrics with the start time recorded and the
// per-category counter map pre-populated for all known categories.
func New() *Metrics {
	m := &Metrics{
		startTime:       time.Now(),
		spansByCategory: make(map[string]*atomic.Int64, len(knownCategories)),
	}
	for _, c := range knownCategories {
		m.spansByCategory[c] = new(atomic.Int64)
	}
	return m
}

// RecordSpan increments the substitution counter for the given category.
// Operator-defined categories outside the known set are silently ignored.
func (m *Metrics) RecordSpan(category string) {
	if c, ok := m.spansByCategory[category]; ok {
		c.Add(1)
	}
}

// RecordDetectLatency records the duration of one model detection call.
func (m *Metrics) RecordDetectLatency(d time.Duration) {
	m.detectMu.Lock()
	m.detectStat.record(float64(d.Microseconds()) / 1000.0)
	m.detectMu.Unlock()
}

// RecordRunLatency records the duration of one full anonymization run.
func (m *Metrics) RecordRunLatency(d time.Duration) {
	m.runMu.Lock()
	m.runStat.record(float64(d.Microseconds()) / 1000.0)
	m.runMu.Unlock()
}

// Snapshot returns a point-in-time copy of all metrics, safe for JSON encoding.
func (m *Metrics) Snapshot() Snapshot {
	m.detectMu.Lock()
	detect := m.detectStat.snapshot()
	m.detectMu.Unlock()

	m.runMu.Lock()
	run := m.runStat.snapshot()
	m.runMu.Unlock()

	byCategory := make(map[string]int64, len(m.spansByCategory))
	for cat, c := range m.spansByCategory {
		if n := c.Load(); n > 0 {
			byCategory[cat] = n
		}
	}

	return Snapshot{
		Documents: DocumentSnapshot{
			Total:    m.DocumentsTotal.Load(),
			Failed:   m.DocumentsFailed.Load(),
			Degraded: m.RunsDegraded.Load(),
			Leaves:   m.LeavesWalked.Load(),
		},
		Spans: SpanSnapshot{
			Regex:      m.SpansRegex.Load(),
			Model:      m.SpansModel.Load(),
			ByCategory: byCategory,
		},
		Placeholders: PlaceholderSnapshot{
			Allocated: m.PlaceholdersAllocated.Load(),
			Reused:    m.PlaceholderReuses.Load(),
		},
		Model: ModelSnapshot{
			Errors:      m.ModelErrors.Load(),
			CacheHits:   m.CacheHits.Load(),
			CacheMisses: m.CacheMisses.Load(),
		},
		Latency: LatencyGroup{
			DetectionMs: detect,
			RunMs:       run,
		},
		UptimeSecs: time.Since(m.startTime).Seconds(),
	}
}

// --- JSON-serialisable snapshot types ---

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Documents    DocumentSnapshot    `json:"documents"`
	Spans        SpanSnapshot        `json:"spans"`
	Placeholders PlaceholderSnapshot `json:"placeholders"`
	Model        ModelSnapshot       `json:"model"`
	Latency      LatencyGroup        `json:"latency"`
	UptimeSecs   float64             `json:"uptimeSecs"`
}

// DocumentSnapshot holds run-level counters.
type DocumentSnapshot struct {
	Total    int64 `json:"total"`
	Failed   int64 `json:"failed"`
	Degraded int64 `json:"degraded"`
	Leaves   int64 `json:"leaves"`
}

// SpanSnapshot holds span volume counters.
type SpanSnapshot struct {
	Regex int64 `json:"regex"`
	Model int64 `json:"model"`

	// Per-category substitutions (only categories with non-zero counts appear).
	ByCategory map[string]int64 `json:"byCategory,omitempty"`
}

// PlaceholderSnapshot holds allocator counters.
type PlaceholderSnapshot struct {
	Allocated int64 `json:"allocated"`
	Reused    int64 `json:"reused"`
}

// ModelSnapshot holds model collaborator counters.
type ModelSnapshot struct {
	Errors      int64 `json:"errors"`
	CacheHits   int64 `json:"cacheHits"`
	CacheMisses int64 `json:"cacheMisses"`
}

// LatencyGroup groups the two latency dimensions.
type LatencyGroup struct {
	DetectionMs LatencySnapshot `json:"detectionMs"`
	RunMs       LatencySnapshot `json:"runMs"`
}

// LatencySnapshot is a min/mean/max summary for one latency dimension.
type LatencySnapshot struct {
	Count  int64   `json:"count"`
	MinMs  float64 `json:"minMs"`
	MeanMs float64 `json:"meanMs"`
	MaxMs  float64 `json:"maxMs"`
}

// --- internal accumulator ---

type latencyStats struct {
	count int64
	sum   float64
	min   float64
	max   float64
}

func (s *latencyStats) record(ms float64) {
	s.count++
	s.sum += ms
	if s.count == 1 || ms < s.min {
		s.min = ms
	}
	if ms > s.max {
		s.max = ms
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

func (s *latencyStats) snapshot() LatencySnapshot {
	if s.count == 0 {
		return LatencySnapshot{}
	}
	return LatencySnapshot{
		Count:  s.count,
		MinMs:  round2(s.min),
		MeanMs: round2(s.sum / float64(s.count)),
		MaxMs:  round2(s.max),
	}
}
