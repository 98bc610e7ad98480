package analyzer

import (
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/thebtf/scribe/pkg/models"
)

// ErrMalformedResponse marks a backend response that failed validation.
// Callers match it with errors.Is to decide on a retry.
var ErrMalformedResponse = errors.New("malformed backend response")

// ParseResponse decodes raw backend output and validates it against the
// batch it answers: exactly one item per message, indexes 1..n each exactly
// once, every tag a known tag. Any violation returns ErrMalformedResponse.
func ParseResponse(raw string, batchSize int) (*models.BatchResponse, error) {
	payload := extractJSON(raw)
	if payload == "" {
		return nil, fmt.Errorf("%w: no JSON object found", ErrMalformedResponse)
	}

	var resp models.BatchResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if len(resp.Items) != batchSize {
		return nil, fmt.Errorf("%w: got %d items for %d messages", ErrMalformedResponse, len(resp.Items), batchSize)
	}

	seen := make([]bool, batchSize)
	for _, item := range resp.Items {
		if item.Index < 1 || item.Index > batchSize {
			return nil, fmt.Errorf("%w: index %d out of range 1..%d", ErrMalformedResponse, item.Index, batchSize)
		}
		if seen[item.Index-1] {
			return nil, fmt.Errorf("%w: duplicate index %d", ErrMalformedResponse, item.Index)
		}
		seen[item.Index-1] = true
		if _, ok := models.ParseTag(string(item.Tag)); !ok {
			return nil, fmt.Errorf("%w: unknown tag %q at index %d", ErrMalformedResponse, item.Tag, item.Index)
		}
	}

	return &resp, nil
}

// extractJSON pulls the outermost JSON object out of raw text, tolerating
// markdown code fences and surrounding prose.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if idx := strings.Index(raw, "\n"); idx >= 0 {
			raw = raw[idx+1:]
		}
		if idx := strings.LastIndex(raw, "```"); idx >= 0 {
			raw = raw[:idx]
		}
		raw = strings.TrimSpace(raw)
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return ""
	}
	return raw[start : end+1]
}
