package analyzer

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/scribe/internal/aicache"
	"github.com/thebtf/scribe/internal/classify"
	"github.com/thebtf/scribe/internal/generation"
	"github.com/thebtf/scribe/pkg/models"
)

// scriptedBackend returns canned responses in order, cycling on the last.
type scriptedBackend struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	calls     int
}

func (b *scriptedBackend) Generate(ctx context.Context, prompt string, schema generation.Schema) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := b.calls
	b.calls++
	if idx >= len(b.responses) {
		idx = len(b.responses) - 1
	}
	if b.errs != nil && b.errs[idx] != nil {
		return "", b.errs[idx]
	}
	return b.responses[idx], nil
}

func (b *scriptedBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

type AnalyzerSuite struct {
	suite.Suite
}

func TestAnalyzerSuite(t *testing.T) {
	suite.Run(t, new(AnalyzerSuite))
}

func (s *AnalyzerSuite) newAnalyzer(backend generation.Backend, opts Options) *Analyzer {
	fallback, err := classify.New(classify.DefaultRules())
	s.Require().NoError(err)
	cache := aicache.New(aicache.NewMemoryStore(), time.Hour)
	return New(backend, cache, fallback, opts)
}

func makeMessages(n int) []models.NormalizedMessage {
	msgs := make([]models.NormalizedMessage, n)
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	for i := range msgs {
		msgs[i] = models.NormalizedMessage{
			Source: models.RawMessage{
				ID:      fmt.Sprintf("m%d", i+1),
				Channel: "eng",
			},
			CleanedText: fmt.Sprintf("working on task %d", i+1),
			Project:     "unknown",
			DisplayName: "Alice",
			Channel:     "eng",
			Timestamp:   base.Add(time.Duration(i) * time.Minute),
		}
	}
	return msgs
}

func validResponse(n int) string {
	resp := models.BatchResponse{Summary: "batch summary"}
	for i := 1; i <= n; i++ {
		resp.Items = append(resp.Items, models.BatchItem{
			Index:       i,
			Tag:         models.TagDevelop,
			Project:     "payments",
			Description: fmt.Sprintf("task %d", i),
			Confidence:  0.9,
		})
	}
	raw, _ := json.Marshal(resp)
	return string(raw)
}

func (s *AnalyzerSuite) TestValidResponseClassifiesEveryMessage() {
	msgs := makeMessages(3)
	backend := &scriptedBackend{responses: []string{validResponse(3)}}
	a := s.newAnalyzer(backend, Options{})

	results, summaries, err := a.Analyze(context.Background(), msgs)
	s.Require().NoError(err)
	s.Require().Len(results, 3)
	for i, r := range results {
		s.Equal(models.TagDevelop, r.Tag, "message %d", i)
		s.Equal(models.SourceAI, r.Source)
		s.Equal("payments", r.Project)
		s.NotEmpty(r.Description)
	}
	s.Equal([]string{"batch summary"}, summaries)
	s.Equal(1, backend.callCount())
}

func (s *AnalyzerSuite) TestSecondRunHitsCache() {
	msgs := makeMessages(2)
	backend := &scriptedBackend{responses: []string{validResponse(2)}}
	a := s.newAnalyzer(backend, Options{})

	_, _, err := a.Analyze(context.Background(), msgs)
	s.Require().NoError(err)
	_, _, err = a.Analyze(context.Background(), msgs)
	s.Require().NoError(err)

	s.Equal(1, backend.callCount(), "second run should be served from cache")
	s.Equal(int64(1), a.Stats().CacheHits)
}

func (s *AnalyzerSuite) TestMalformedThenValidRetries() {
	msgs := makeMessages(2)
	backend := &scriptedBackend{responses: []string{
		"I think these are all deploys!",
		validResponse(2),
	}}
	a := s.newAnalyzer(backend, Options{})

	results, _, err := a.Analyze(context.Background(), msgs)
	s.Require().NoError(err)
	s.Equal(2, backend.callCount())
	for _, r := range results {
		s.Equal(models.SourceAI, r.Source)
	}
}

func (s *AnalyzerSuite) TestPersistentlyMalformedFallsBackWithoutDataLoss() {
	msgs := makeMessages(4)
	msgs[0].CleanedText = "deploy the payment service"
	backend := &scriptedBackend{responses: []string{"not json at all"}}
	a := s.newAnalyzer(backend, Options{MaxRetries: 2})

	results, summaries, err := a.Analyze(context.Background(), msgs)
	s.Require().NoError(err)
	s.Require().Len(results, len(msgs), "every message must get a result")
	s.Empty(summaries)
	s.Equal(3, backend.callCount(), "initial attempt plus two retries")

	s.Equal(models.TagDeploy, results[0].Tag)
	for _, r := range results {
		s.Equal(models.SourceFallback, r.Source)
		s.NotEmpty(r.Tag)
	}
	s.Equal(int64(4), a.Stats().Fallbacks)
}

func (s *AnalyzerSuite) TestPermanentBackendErrorFallsBackImmediately() {
	msgs := makeMessages(2)
	backend := &scriptedBackend{
		responses: []string{""},
		errs:      []error{fmt.Errorf("api key rejected")},
	}
	a := s.newAnalyzer(backend, Options{})

	results, _, err := a.Analyze(context.Background(), msgs)
	s.Require().NoError(err)
	s.Equal(1, backend.callCount(), "permanent errors are not retried")
	for _, r := range results {
		s.Equal(models.SourceFallback, r.Source)
	}
}

func (s *AnalyzerSuite) TestTransientErrorIsRetried() {
	msgs := makeMessages(1)
	backend := &scriptedBackend{
		responses: []string{"", validResponse(1)},
		errs:      []error{generation.Transient(fmt.Errorf("status 503")), nil},
	}
	a := s.newAnalyzer(backend, Options{})

	results, _, err := a.Analyze(context.Background(), msgs)
	s.Require().NoError(err)
	s.Equal(2, backend.callCount())
	s.Equal(models.SourceAI, results[0].Source)
}

func (s *AnalyzerSuite) TestCancelledContextAppliesFallback() {
	msgs := makeMessages(3)
	backend := &scriptedBackend{responses: []string{validResponse(3)}}
	a := s.newAnalyzer(backend, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, _, err := a.Analyze(ctx, msgs)
	s.Require().NoError(err)
	s.Require().Len(results, 3)
	for _, r := range results {
		s.Equal(models.SourceFallback, r.Source)
	}
	s.Equal(0, backend.callCount())
}

func TestBatcherSplitsByCount(t *testing.T) {
	b := NewBatcher(3, 0)
	msgs := makeMessages(8)
	batches := b.Split(msgs)

	require.Len(t, batches, 3)
	assert.Len(t, batches[0], 3)
	assert.Len(t, batches[1], 3)
	assert.Len(t, batches[2], 2)

	total := 0
	for _, batch := range batches {
		total += len(batch)
	}
	assert.Equal(t, len(msgs), total)
}

func TestBatcherKeepsThreadRunsTogether(t *testing.T) {
	b := NewBatcher(3, 0)
	msgs := makeMessages(4)
	// Messages 2..4 share one thread.
	for i := 1; i < 4; i++ {
		msgs[i].Source.ThreadID = "t1"
	}

	batches := b.Split(msgs)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 1, "thread run moves whole to the next batch")
	assert.Len(t, batches[1], 3)
}

func TestBatcherSplitsOversizedRun(t *testing.T) {
	b := NewBatcher(2, 0)
	msgs := makeMessages(5)
	for i := range msgs {
		msgs[i].Source.ThreadID = "t1"
	}

	batches := b.Split(msgs)
	require.Len(t, batches, 3)
	for _, batch := range batches {
		assert.LessOrEqual(t, len(batch), 2)
	}
}

func TestBatcherEmptyInput(t *testing.T) {
	b := NewBatcher(0, 0)
	assert.Nil(t, b.Split(nil))
}

func TestParseResponse(t *testing.T) {
	valid := validResponse(2)

	tests := []struct {
		name    string
		raw     string
		size    int
		wantErr bool
	}{
		{"plain object", valid, 2, false},
		{"fenced object", "```json\n" + valid + "\n```", 2, false},
		{"surrounding prose", "Here you go:\n" + valid + "\nHope that helps!", 2, false},
		{"no json", "sorry, cannot help", 2, true},
		{"wrong item count", valid, 3, true},
		{"empty", "", 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := ParseResponse(tt.raw, tt.size)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrMalformedResponse)
				return
			}
			require.NoError(t, err)
			assert.Len(t, resp.Items, tt.size)
		})
	}
}

func TestParseResponseRejectsDuplicateIndex(t *testing.T) {
	raw := `{"items":[{"index":1,"tag":"Fix","description":"a"},{"index":1,"tag":"Fix","description":"b"}]}`
	_, err := ParseResponse(raw, 2)
	require.ErrorIs(t, err, ErrMalformedResponse)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestParseResponseRejectsUnknownTag(t *testing.T) {
	raw := `{"items":[{"index":1,"tag":"Shipped","description":"a"}]}`
	_, err := ParseResponse(raw, 1)
	require.ErrorIs(t, err, ErrMalformedResponse)
}

func TestPromptNumbersMessages(t *testing.T) {
	msgs := makeMessages(2)
	prompt := BuildClassificationPrompt(msgs)

	assert.Contains(t, prompt, "[1] ")
	assert.Contains(t, prompt, "[2] ")
	assert.Contains(t, prompt, "#eng")
	assert.Contains(t, prompt, "exactly 2 items")
}

func TestPromptTruncatesLongMessages(t *testing.T) {
	msgs := makeMessages(1)
	msgs[0].CleanedText = strings.Repeat("x", 2000)
	prompt := BuildClassificationPrompt(msgs)
	assert.NotContains(t, prompt, strings.Repeat("x", maxMessageChars+1))
	assert.Contains(t, prompt, strings.Repeat("x", maxMessageChars))
}

func TestPromptTruncationKeepsValidUTF8(t *testing.T) {
	msgs := makeMessages(1)
	// Multi-byte text long enough that a byte cap lands inside a rune.
	msgs[0].CleanedText = strings.Repeat("上線交測分支合併", 40)

	prompt := BuildClassificationPrompt(msgs)
	assert.True(t, utf8.ValidString(prompt), "truncation must not split a rune")
	assert.Contains(t, prompt, "上線交測")
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short ascii untouched", "deploy done", 500, "deploy done"},
		{"ascii cut at cap", "abcdef", 4, "abcd"},
		{"rune boundary respected", "ab上線", 4, "ab"},
		{"exact rune fit", "上線", 6, "上線"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.max)
			assert.Equal(t, tt.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestRetryPromptChangesWording(t *testing.T) {
	msgs := makeMessages(1)
	base := BuildClassificationPrompt(msgs)
	retry := BuildRetryPrompt(msgs, 1)
	assert.NotEqual(t, base, retry)
	assert.Contains(t, retry, base)
}
