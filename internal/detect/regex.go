package detect

import (
	"context"
	"regexp"
	"sync/atomic"
	"unicode"
)

// Pattern pairs a compiled regex with the category it detects.
type Pattern struct {
	Category Category
	RE       *regexp.Regexp
}

// builtinSpecs lists the structured-identifier patterns in evaluation order.
// Order matters: matches of a later pattern that fall entirely inside a match
// of an earlier pattern are suppressed, so e.g. the last four digits of a
// credit card number are never reported as a second finding.
var builtinSpecs = []struct {
	expr     string
	category Category
}{
	{`\b\d{3}-\d{2}-\d{4}\b`, CategorySSN},
	{`\b(?:\d[ -]?){13,16}\b`, CategoryCreditCard},
	{`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`, CategoryEmail},
	{`(?:\+?\d{1,2}[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`, CategoryPhone},
	{`\b\d{4}-\d{2}-\d{2}\b`, CategoryDOB},
}

// phoneMaxDigits bounds how many digits a phone match may contain.
// Longer digit runs are card or account numbers, not phone numbers.
const phoneMaxDigits = 11

// RegexDetector runs the ordered built-in patterns plus any operator-defined
// patterns supplied through SetExtra. Detect never fails; the error return
// exists to satisfy Detector.
type RegexDetector struct {
	patterns []Pattern

	// extra returns operator-defined patterns. Stored atomically so the
	// management API can swap the set while detections are running.
	extra atomic.Pointer[func() []Pattern]
}

// NewRegexDetector compiles the built-in pattern set.
func NewRegexDetector() *RegexDetector {
	d := &RegexDetector{}
	for _, s := range builtinSpecs {
		d.patterns = append(d.patterns, Pattern{Category: s.category, RE: regexp.MustCompile(s.expr)})
	}
	return d
}

// SetExtra registers a provider of operator-defined patterns. They are
// evaluated after the built-in set on every Detect call, so registry updates
// take effect immediately. Passing nil clears the provider.
func (d *RegexDetector) SetExtra(fn func() []Pattern) {
	if fn == nil {
		d.extra.Store(nil)
		return
	}
	d.extra.Store(&fn)
}

// Detect runs every pattern against text in order and returns the surviving
// spans sorted by pattern order then match position.
func (d *RegexDetector) Detect(_ context.Context, text string) ([]Span, error) {
	if text == "" {
		return nil, nil
	}

	patterns := d.patterns
	if fn := d.extra.Load(); fn != nil {
		patterns = append(append([]Pattern(nil), patterns...), (*fn)()...)
	}

	var spans []Span
	for _, p := range patterns {
		for _, loc := range p.RE.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			match := text[start:end]
			if p.Category == CategoryPhone && digitCount(match) > phoneMaxDigits {
				continue
			}
			if containedIn(spans, start, end) {
				continue
			}
			spans = append(spans, Span{
				Start:      start,
				End:        end,
				Category:   p.Category,
				Text:       match,
				Confidence: 1.0,
				Source:     SourceRegex,
			})
		}
	}
	return spans, nil
}

// containedIn reports whether [start, end) lies entirely inside any
// previously accepted span.
func containedIn(spans []Span, start, end int) bool {
	for _, s := range spans {
		if start >= s.Start && end <= s.End {
			return true
		}
	}
	return false
}

func digitCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsDigit(r) {
			n++
		}
	}
	return n
}
