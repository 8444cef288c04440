package anonymize

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"pii-toolkit/internal/detect"
)

// placeholderRe matches tokens produced by the Allocator. Detections that
// overlap an existing token are discarded so already-anonymized text passes
// through unchanged.
var placeholderRe = regexp.MustCompile(`\[[A-Z][A-Z0-9_]*_\d+\]`)

// dropFunc observes every span discarded during merging. winner is the span
// the loser lost to; for validity drops it is the zero Span. A nil dropFunc
// is allowed.
type dropFunc func(reason string, loser, winner detect.Span)

// mergeSpans combines the regex and model result sets for one leaf into a
// single non-overlapping, position-sorted span list ready for rewriting.
// Every discarded span is reported through onDrop.
//
// Policy, in order:
//  1. Spans with invalid offsets or ragged rune boundaries are dropped.
//  2. Spans overlapping an existing placeholder token are dropped.
//  3. Model spans overlapping any regex span are dropped. Structured
//     matches carry exact boundaries; the model's guess over the same text
//     does not improve them.
//  4. Remaining overlaps are resolved first-start-wins; at equal starts the
//     longer span wins.
//  5. Adjacent same-category spans separated only by spaces are merged, so
//     a first and last name split by the model become one placeholder.
func mergeSpans(text string, regexSpans, modelSpans []detect.Span, onDrop dropFunc) []detect.Span {
	if onDrop == nil {
		onDrop = func(string, detect.Span, detect.Span) {}
	}

	regexSpans = validSpans(text, regexSpans, onDrop)
	modelSpans = validSpans(text, modelSpans, onDrop)
	modelSpans = dropOverlappingRegex(modelSpans, regexSpans, onDrop)

	all := make([]detect.Span, 0, len(regexSpans)+len(modelSpans))
	all = append(all, regexSpans...)
	all = append(all, modelSpans...)

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Start != all[j].Start {
			return all[i].Start < all[j].Start
		}
		return all[i].End-all[i].Start > all[j].End-all[j].Start
	})

	all = resolveOverlaps(all, onDrop)
	return mergeAdjacent(text, all)
}

// validSpans filters out spans that cannot be applied to text: offsets out
// of range, empty or inverted ranges, offsets splitting a UTF-8 sequence,
// and spans touching an existing placeholder token.
func validSpans(text string, spans []detect.Span, onDrop dropFunc) []detect.Span {
	if len(spans) == 0 {
		return nil
	}
	tokens := placeholderRe.FindAllStringIndex(text, -1)

	out := spans[:0:0]
	for _, s := range spans {
		if s.Start < 0 || s.End > len(text) || s.Start >= s.End {
			onDrop("invalid_offsets", s, detect.Span{})
			continue
		}
		if !utf8.RuneStart(text[s.Start]) {
			onDrop("rune_boundary", s, detect.Span{})
			continue
		}
		if s.End < len(text) && !utf8.RuneStart(text[s.End]) {
			onDrop("rune_boundary", s, detect.Span{})
			continue
		}
		if overlapsAny(s, tokens) {
			onDrop("placeholder_overlap", s, detect.Span{})
			continue
		}
		out = append(out, s)
	}
	return out
}

func overlapsAny(s detect.Span, ranges [][]int) bool {
	for _, r := range ranges {
		if s.Start < r[1] && r[0] < s.End {
			return true
		}
	}
	return false
}

// dropOverlappingRegex removes model spans that overlap any regex span.
func dropOverlappingRegex(modelSpans, regexSpans []detect.Span, onDrop dropFunc) []detect.Span {
	if len(modelSpans) == 0 || len(regexSpans) == 0 {
		return modelSpans
	}
	out := modelSpans[:0:0]
	for _, m := range modelSpans {
		overlaps := false
		for _, r := range regexSpans {
			if m.Start < r.End && r.Start < m.End {
				onDrop("regex_wins", m, r)
				overlaps = true
				break
			}
		}
		if !overlaps {
			out = append(out, m)
		}
	}
	return out
}

// resolveOverlaps keeps the first span of each overlapping group.
// Input must be sorted by start ascending, length descending.
func resolveOverlaps(spans []detect.Span, onDrop dropFunc) []detect.Span {
	if len(spans) < 2 {
		return spans
	}
	out := spans[:0:0]
	var kept detect.Span
	lastEnd := -1
	for _, s := range spans {
		if s.Start < lastEnd {
			onDrop("overlap", s, kept)
			continue
		}
		out = append(out, s)
		kept = s
		lastEnd = s.End
	}
	return out
}

// mergeAdjacent coalesces consecutive same-category spans whose gap is
// empty or spaces only. Input must be sorted and non-overlapping.
func mergeAdjacent(text string, spans []detect.Span) []detect.Span {
	if len(spans) < 2 {
		return spans
	}
	out := spans[:0:0]
	cur := spans[0]
	for _, next := range spans[1:] {
		gap := text[cur.End:next.Start]
		if next.Category == cur.Category && isSpaces(gap) {
			cur.End = next.End
			cur.Text = text[cur.Start:cur.End]
			if next.Confidence < cur.Confidence {
				cur.Confidence = next.Confidence
			}
			continue
		}
		out = append(out, cur)
		cur = next
	}
	return append(out, cur)
}

func isSpaces(s string) bool {
	return strings.Trim(s, " ") == ""
}
