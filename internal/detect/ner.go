package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable is returned when the NER model service cannot be reached
// or answers with a non-success status. Callers use it to decide whether a
// degraded regex-only run is acceptable.
var ErrUnavailable = errors.New("model service unavailable")

// labelMap translates the model's entity group labels to categories.
// Labels outside the map pass through upper-cased so a model emitting a
// richer tag set still produces placeholders.
var labelMap = map[string]Category{
	"PER":  CategoryPerson,
	"ORG":  CategoryOrganization,
	"LOC":  CategoryLocation,
	"MISC": CategoryMISC,
}

// mapLabel resolves an entity group to a category. Empty groups fall back
// to ENTITY.
func mapLabel(group string) Category {
	if cat, ok := labelMap[group]; ok {
		return cat
	}
	if group == "" {
		return Category("ENTITY")
	}
	return Category(strings.ToUpper(group))
}

const (
	modelCallTimeout = 10 * time.Second
	maxModelResponse = 4 << 20 // 4 MB
)

// ModelClient calls an HTTP NER service and converts its entities to spans.
type ModelClient struct {
	url       string
	threshold float64
	client    *http.Client
}

// NewModelClient returns a client for the NER service at endpoint.
// Entities scoring below threshold are discarded.
func NewModelClient(endpoint string, threshold float64) *ModelClient {
	return &ModelClient{
		url:       endpoint,
		threshold: threshold,
		client:    &http.Client{Timeout: modelCallTimeout},
	}
}

type modelRequest struct {
	Text string `json:"text"`
}

type modelEntity struct {
	EntityGroup string  `json:"entity_group"`
	Start       int     `json:"start"`
	End         int     `json:"end"`
	Score       float64 `json:"score"`
	Word        string  `json:"word"`
}

type modelResponse struct {
	Entities []modelEntity `json:"entities"`
}

// Detect sends text to the model service and returns the entity spans that
// clear the confidence threshold. Connection failures and non-2xx statuses
// are reported as ErrUnavailable.
func (c *ModelClient) Detect(ctx context.Context, text string) ([]Span, error) {
	if text == "" {
		return nil, nil
	}

	reqBody, err := json.Marshal(modelRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("encode model request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create model request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req) // #nosec G704 -- URL from trusted config, not user input
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on HTTP response body

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxModelResponse))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	var mr modelResponse
	if err := json.Unmarshal(body, &mr); err != nil {
		return nil, fmt.Errorf("model response parse error: %w", err)
	}

	var spans []Span
	for _, e := range mr.Entities {
		if e.Score < c.threshold {
			continue
		}
		if e.Start < 0 || e.End > len(text) || e.Start >= e.End {
			continue // offsets out of range for the text we sent
		}
		word := e.Word
		if word == "" {
			word = text[e.Start:e.End]
		}
		spans = append(spans, Span{
			Start:      e.Start,
			End:        e.End,
			Category:   mapLabel(e.EntityGroup),
			Text:       word,
			Confidence: e.Score,
			Source:     SourceModel,
		})
	}
	return spans, nil
}
