// Package ner provides a Recognizer backed by an entity-recognition sidecar
// reachable over HTTP. Unlike best-effort classifiers it never degrades to an
// empty result: an unreachable or misbehaving sidecar is reported as
// ErrUnavailable so callers stop instead of forwarding raw personal data.
package ner

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

	"go.uber.org/zap"

	"github.com/spigell/cv-intake/internal/anonymize"
	"github.com/spigell/cv-intake/internal/logger"
)

const defaultTimeout = 10 * time.Second

// ErrUnavailable wraps every failure to obtain a classification.
var ErrUnavailable = errors.New("entity recognition backend unavailable")

// Client calls the sidecar's /classify endpoint.
type Client struct {
	url    string
	http   *http.Client
	logger *zap.Logger
}

// New creates a Client for the sidecar at baseURL (e.g. "http://ner:8001").
func New(baseURL string, timeout time.Duration, log *zap.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("ner base url is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		url:    baseURL + "/classify",
		http:   &http.Client{Timeout: timeout},
		logger: logger.OrNop(log),
	}, nil
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Spans []nerSpan `json:"spans"`
}

type nerSpan struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Name implements anonymize.Recognizer.
func (c *Client) Name() string { return "ner" }

// Recognize implements anonymize.Recognizer. Spans with labels that do not
// denote identifying data are dropped.
func (c *Client) Recognize(ctx context.Context, text string) ([]anonymize.Span, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("ner: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ner: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var result classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnavailable, err)
	}

	offsets := runeOffsets(text)
	spans := make([]anonymize.Span, 0, len(result.Spans))
	skipped := 0
	for _, s := range result.Spans {
		category, ok := anonymize.CategoryFromLabel(s.Label)
		if !ok {
			skipped++
			continue
		}
		start, end, err := locate(text, offsets, s)
		if err != nil {
			return nil, err
		}
		spans = append(spans, anonymize.Span{
			Start:    start,
			End:      end,
			Category: category,
			Text:     text[start:end],
		})
	}

	c.logger.Debug("ner classified text",
		zap.Int("spans", len(spans)),
		zap.Int("skipped_labels", skipped),
	)

	return spans, nil
}

// runeOffsets returns the byte offset of every character of text followed by
// len(text), so offsets[i] is where character i starts.
func runeOffsets(text string) []int {
	offsets := make([]int, 0, len(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	return append(offsets, len(text))
}

// locate converts a sidecar span to byte offsets of text. Start and End are
// character offsets. Byte offsets are accepted when they select the reported
// text, and a span whose offsets select neither is moved to the nearest
// occurrence of its text. A span that cannot be placed is an error.
func locate(text string, offsets []int, s nerSpan) (int, int, error) {
	hint := s.Start
	if s.Start >= 0 && s.Start < s.End && s.End < len(offsets) {
		start, end := offsets[s.Start], offsets[s.End]
		if s.Text == "" || text[start:end] == s.Text {
			return start, end, nil
		}
		hint = start
	}
	if s.Text == "" {
		return 0, 0, fmt.Errorf("%w: span %d-%d is outside the text", ErrUnavailable, s.Start, s.End)
	}
	if s.Start >= 0 && s.Start < s.End && s.End <= len(text) && text[s.Start:s.End] == s.Text {
		return s.Start, s.End, nil
	}

	best := -1
	for offset := 0; offset < len(text); {
		i := strings.Index(text[offset:], s.Text)
		if i < 0 {
			break
		}
		at := offset + i
		if best < 0 || distance(at, hint) < distance(best, hint) {
			best = at
		}
		offset = at + 1
	}
	if best < 0 {
		return 0, 0, fmt.Errorf("%w: span %q at %d-%d not found in text", ErrUnavailable, s.Text, s.Start, s.End)
	}
	return best, best + len(s.Text), nil
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// Ping checks that the sidecar answers a classification request.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Recognize(ctx, "ping")
	return err
}
