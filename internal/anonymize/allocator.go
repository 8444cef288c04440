// Package anonymize rewrites documents by replacing detected sensitive spans
// with deterministic placeholder tokens, and records an audit trail mapping
// each token back to the value it replaced.
package anonymize

import (
	"fmt"
	"strings"

	"pii-toolkit/internal/detect"
)

// allocKey identifies one distinct value within a category. Values are
// normalized so "Jane Doe" and " jane doe " share a placeholder.
type allocKey struct {
	category detect.Category
	value    string
}

// Allocator hands out placeholder tokens of the form [CATEGORY_n].
// Numbering is per category, starts at 1, and follows allocation order, so
// the first person encountered in a document is always [PERSON_1]. The same
// normalized value always maps to the same token for the lifetime of the
// allocator, across every leaf of a document.
//
// Not safe for concurrent use; each run gets its own allocator.
type Allocator struct {
	counters map[detect.Category]int
	tokens   map[allocKey]string
}

// NewAllocator returns an empty allocator.
func NewAllocator() *Allocator {
	return &Allocator{
		counters: make(map[detect.Category]int),
		tokens:   make(map[allocKey]string),
	}
}

// Placeholder returns the token for the given category and value. reused is
// true when the value had already been assigned a token earlier in the run.
func (a *Allocator) Placeholder(category detect.Category, value string) (token string, reused bool) {
	key := allocKey{category: category, value: normalizeValue(value)}
	if tok, ok := a.tokens[key]; ok {
		return tok, true
	}
	a.counters[category]++
	tok := fmt.Sprintf("[%s_%d]", category, a.counters[category])
	a.tokens[key] = tok
	return tok, false
}

// normalizeValue canonicalizes a detected value for placeholder reuse.
func normalizeValue(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}
