package anonymize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pii-toolkit/internal/detect"
	"pii-toolkit/internal/document"
	"pii-toolkit/internal/logger"
	"pii-toolkit/internal/metrics"
)

// AuditRecord maps one placeholder occurrence back to the value it replaced.
// Records for a reused placeholder appear once per distinct location.
type AuditRecord struct {
	Placeholder string          `json:"placeholder"`
	Original    string          `json:"original"`
	Category    detect.Category `json:"category"`
	Location    string          `json:"location"`
}

// Result is the outcome of one anonymization run.
type Result struct {
	Format   document.Format `json:"format"`
	Output   []byte          `json:"-"`
	Degraded bool            `json:"degraded"`
	Audit    []AuditRecord   `json:"audit"`
}

// AuditMap returns the placeholder → original value mapping. When a
// placeholder appears at several locations the first original is kept;
// by construction they all normalize to the same value.
func (r *Result) AuditMap() map[string]string {
	m := make(map[string]string, len(r.Audit))
	for _, rec := range r.Audit {
		if _, ok := m[rec.Placeholder]; !ok {
			m[rec.Placeholder] = rec.Original
		}
	}
	return m
}

// Engine runs the full detect-allocate-rewrite pipeline over documents.
//
// The regex detector always runs. The model detector is optional; when it is
// configured and fails, the run fails unless allowRegexOnly is set, in which
// case the run completes with Degraded=true on the regex findings alone.
type Engine struct {
	regex          detect.Detector
	model          detect.Detector
	allowRegexOnly bool
	log            *logger.Logger
	met            *metrics.Metrics
}

// New creates an Engine. model may be nil to run regex-only detection
// unconditionally. met may be nil.
func New(regex, model detect.Detector, allowRegexOnly bool, log *logger.Logger, met *metrics.Metrics) *Engine {
	if met == nil {
		met = metrics.New()
	}
	if log == nil {
		log = logger.New("engine", "info")
	}
	return &Engine{
		regex:          regex,
		model:          model,
		allowRegexOnly: allowRegexOnly,
		log:            log,
		met:            met,
	}
}

// Anonymize parses data as the given format, replaces every detected
// sensitive span in its text leaves with placeholder tokens, and returns the
// re-encoded document together with the audit trail. The input is never
// modified; all structure (key order, attributes, comments, indentation
// conventions) is preserved in the output.
func (e *Engine) Anonymize(ctx context.Context, data []byte, format document.Format) (*Result, error) {
	start := time.Now()
	e.met.DocumentsTotal.Add(1)

	doc, err := document.Parse(data, format)
	if err != nil {
		e.met.DocumentsFailed.Add(1)
		return nil, fmt.Errorf("parse %s document: %w", format, err)
	}

	alloc := NewAllocator()
	res := &Result{Format: format}

	err = doc.Transform(func(location, text string) (string, error) {
		e.met.LeavesWalked.Add(1)
		return e.anonymizeLeaf(ctx, location, text, alloc, res)
	})
	if err != nil {
		e.met.DocumentsFailed.Add(1)
		return nil, err
	}

	out, err := doc.Encode()
	if err != nil {
		e.met.DocumentsFailed.Add(1)
		return nil, fmt.Errorf("encode %s document: %w", format, err)
	}
	res.Output = out

	if res.Degraded {
		e.met.RunsDegraded.Add(1)
	}
	e.met.RecordRunLatency(time.Since(start))
	e.log.Infof("anonymize", "format=%s leaves_ok spans=%d degraded=%v elapsed=%s",
		format, len(res.Audit), res.Degraded, time.Since(start).Round(time.Millisecond))
	return res, nil
}

// anonymizeLeaf detects, merges and rewrites a single text leaf.
func (e *Engine) anonymizeLeaf(ctx context.Context, location, text string, alloc *Allocator, res *Result) (string, error) {
	if text == "" {
		return text, nil
	}

	regexSpans, err := e.regex.Detect(ctx, text)
	if err != nil {
		return "", fmt.Errorf("regex detection at %s: %w", location, err)
	}

	var modelSpans []detect.Span
	if e.model != nil {
		t0 := time.Now()
		modelSpans, err = e.model.Detect(ctx, text)
		e.met.RecordDetectLatency(time.Since(t0))
		if err != nil {
			e.met.ModelErrors.Add(1)
			if !e.allowRegexOnly {
				return "", fmt.Errorf("model detection at %s: %w", location, err)
			}
			e.log.Warnf("detect", "model unavailable at %s, continuing regex-only: %v", location, err)
			res.Degraded = true
			modelSpans = nil
		}
	}

	spans := mergeSpans(text, regexSpans, modelSpans, e.dropLogger(location))
	if len(spans) == 0 {
		return text, nil
	}

	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	for _, s := range spans {
		b.WriteString(text[cursor:s.Start])
		original := text[s.Start:s.End]
		token, reused := alloc.Placeholder(s.Category, original)
		b.WriteString(token)
		cursor = s.End

		res.Audit = append(res.Audit, AuditRecord{
			Placeholder: token,
			Original:    original,
			Category:    s.Category,
			Location:    location,
		})
		e.recordSpanMetrics(s, reused)
	}
	b.WriteString(text[cursor:])
	return b.String(), nil
}

// dropLogger reports spans discarded during merge resolution, with both
// spans' bounds when one span lost to another.
func (e *Engine) dropLogger(location string) dropFunc {
	return func(reason string, loser, winner detect.Span) {
		if winner.End > winner.Start {
			e.log.Debugf("span_resolve", "%s at %s: dropped %s/%s [%d,%d) in favor of %s/%s [%d,%d)",
				reason, location, loser.Source, loser.Category, loser.Start, loser.End,
				winner.Source, winner.Category, winner.Start, winner.End)
			return
		}
		e.log.Debugf("span_resolve", "%s at %s: dropped %s/%s [%d,%d)",
			reason, location, loser.Source, loser.Category, loser.Start, loser.End)
	}
}

func (e *Engine) recordSpanMetrics(s detect.Span, reused bool) {
	switch s.Source {
	case detect.SourceModel:
		e.met.SpansModel.Add(1)
	default:
		e.met.SpansRegex.Add(1)
	}
	e.met.RecordSpan(string(s.Category))
	if reused {
		e.met.PlaceholderReuses.Add(1)
	} else {
		e.met.PlaceholdersAllocated.Add(1)
	}
}
