// Package summarize provides text summarization through a deployed model
// endpoint, with a local extractive fallback when no endpoint is configured.
package summarize

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

// ErrEmptyInput is returned when there is no text to summarize.
var ErrEmptyInput = errors.New("provide text to summarize")

const (
	requestTimeout  = 20 * time.Second
	maxResponseSize = 1 << 20 // 1 MB
)

// Client talks to a deployed summarization model. With an empty endpoint it
// degrades to a local first-sentences summary so the UI stays usable.
type Client struct {
	endpoint   string
	token      string
	projectKey string
	client     *http.Client
}

// New returns a Client. endpoint may be empty; token and projectKey are
// attached as Authorization and X-Project-Key headers when set.
func New(endpoint, token, projectKey string) *Client {
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		token:      token,
		projectKey: projectKey,
		client:     &http.Client{Timeout: requestTimeout},
	}
}

// Deployed reports whether a model endpoint is configured.
func (c *Client) Deployed() bool { return c.endpoint != "" }

// Summarize returns a summary of text. With an endpoint configured the
// deployed model is called and its failure is an error; otherwise the local
// fallback summary is returned.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyInput
	}
	if c.endpoint == "" {
		return fallbackSummary(text), nil
	}
	return c.summarizeViaModel(ctx, text)
}

func (c *Client) summarizeViaModel(ctx context.Context, text string) (string, error) {
	payload, err := json.Marshal(map[string]string{"input": text})
	if err != nil {
		return "", fmt.Errorf("encode summarize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create summarize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.projectKey != "" {
		req.Header.Set("X-Project-Key", c.projectKey)
	}

	resp, err := c.client.Do(req) // #nosec G704 -- URL from trusted config, not user input
	if err != nil {
		return "", fmt.Errorf("summarization failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close on HTTP response body

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("summarization failed: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("read summarize response: %w", err)
	}
	return parseModelResponse(body)
}

// parseModelResponse accepts the payload shapes deployed models answer with:
// {"summary": "..."}, {"output": "..."} or a bare JSON array of strings.
func parseModelResponse(body []byte) (string, error) {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err == nil {
		for _, key := range []string{"summary", "output"} {
			if s, ok := obj[key].(string); ok && s != "" {
				return strings.TrimSpace(s), nil
			}
		}
		return "", errors.New("unexpected response payload from summarization model")
	}

	var arr []any
	if err := json.Unmarshal(body, &arr); err == nil && len(arr) > 0 {
		if s, ok := arr[0].(string); ok {
			return strings.TrimSpace(s), nil
		}
	}
	return "", errors.New("unexpected response payload from summarization model")
}

// fallbackSummary returns the first two sentences of text.
func fallbackSummary(text string) string {
	flat := strings.ReplaceAll(text, "\n", " ")
	var sentences []string
	for _, s := range strings.Split(flat, ".") {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	switch len(sentences) {
	case 0:
		return text
	case 1:
		return sentences[0]
	default:
		return strings.Join(sentences[:2], ". ") + "."
	}
}
