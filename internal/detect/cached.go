package detect

import (
	"context"

	"pii-toolkit/internal/metrics"
)

// CachedDetector wraps a Detector with a content-hash cache. Identical leaf
// texts within a run, and across runs when the cache is persistent, cost one
// call to the inner detector.
type CachedDetector struct {
	inner Detector
	cache DetectionCache
	met   *metrics.Metrics
}

// NewCachedDetector wraps inner with cache. met may be nil.
func NewCachedDetector(inner Detector, cache DetectionCache, met *metrics.Metrics) *CachedDetector {
	return &CachedDetector{inner: inner, cache: cache, met: met}
}

// Detect returns cached spans when the leaf text has been seen before,
// otherwise calls the inner detector and caches its result. Inner errors are
// returned unchanged and nothing is cached for that text.
func (d *CachedDetector) Detect(ctx context.Context, text string) ([]Span, error) {
	if text == "" {
		return nil, nil
	}

	key := CacheKey(text)
	if spans, ok := d.cache.Get(key); ok {
		if d.met != nil {
			d.met.CacheHits.Add(1)
		}
		return spans, nil
	}
	if d.met != nil {
		d.met.CacheMisses.Add(1)
	}

	spans, err := d.inner.Detect(ctx, text)
	if err != nil {
		return nil, err
	}
	d.cache.Set(key, spans)
	return spans, nil
}

// Close closes the underlying cache.
func (d *CachedDetector) Close() error {
	return d.cache.Close()
}
