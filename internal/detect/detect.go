// Package detect finds sensitive spans in text.
// Detection runs in two stages:
//  1. Fast regex pass for structured identifiers (SSN, credit card, email,
//     phone, date of birth)
//  2. NER model pass for context-dependent entities (person, organization,
//     location, misc)
//
// Both stages report byte-offset spans against the same input text; merging
// the two result sets is the caller's concern. Model results are cached by
// content hash so repeated leaves cost one model round trip.
package detect

import (
	"context"
	"crypto/md5" // #nosec G501 -- content hash for cache keys, not cryptographic security
	"fmt"
)

// Category classifies the kind of sensitive data found.
type Category string

// Categories produced by the built-in detectors. Operators can register
// additional categories at runtime through the management API.
const (
	CategorySSN          Category = "SSN"
	CategoryCreditCard   Category = "CREDIT_CARD"
	CategoryEmail        Category = "EMAIL"
	CategoryPhone        Category = "PHONE"
	CategoryDOB          Category = "DOB"
	CategoryPerson       Category = "PERSON"
	CategoryOrganization Category = "ORGANIZATION"
	CategoryLocation     Category = "LOCATION"
	CategoryMISC         Category = "MISC"
)

// Span sources.
const (
	SourceRegex = "regex"
	SourceModel = "model"
)

// Span is one detected occurrence of sensitive data within a text leaf.
// Start and End are byte offsets into the leaf text, End exclusive.
type Span struct {
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Category   Category `json:"category"`
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
	Source     string   `json:"source"`
}

// Detector finds sensitive spans in a single text leaf.
type Detector interface {
	Detect(ctx context.Context, text string) ([]Span, error)
}

// CacheKey returns the cache key for a text leaf: the hex md5 of its bytes.
func CacheKey(text string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(text))) // #nosec G401 -- cache key, not crypto
}
