package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/suite"

	"github.com/thebtf/scribe/internal/aicache"
	"github.com/thebtf/scribe/internal/analyzer"
	"github.com/thebtf/scribe/internal/classify"
	"github.com/thebtf/scribe/internal/generation"
	"github.com/thebtf/scribe/pkg/models"
)

type staticSource struct {
	msgs []models.RawMessage
	err  error
}

func (s *staticSource) Fetch(ctx context.Context, period models.Period) ([]models.RawMessage, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []models.RawMessage
	for _, m := range s.msgs {
		if period.Contains(m.Timestamp) {
			out = append(out, m)
		}
	}
	return out, nil
}

type captureSink struct {
	mu   sync.Mutex
	docs []*models.JournalDocument
}

func (c *captureSink) Write(ctx context.Context, doc *models.JournalDocument) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = append(c.docs, doc)
	return nil
}

type captureNotifier struct {
	mu     sync.Mutex
	phases []Phase
}

func (c *captureNotifier) Notify(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phases = append(c.phases, ev.Phase)
}

// echoBackend classifies every message as Develop with a per-index
// description, or returns garbage when broken.
type echoBackend struct {
	mu     sync.Mutex
	broken bool
	calls  int
}

func (b *echoBackend) Generate(ctx context.Context, prompt string, schema generation.Schema) (string, error) {
	b.mu.Lock()
	b.calls++
	broken := b.broken
	b.mu.Unlock()
	if broken {
		return "no json here", nil
	}

	n := 0
	for i := 1; ; i++ {
		if !strings.Contains(prompt, fmt.Sprintf("[%d] ", i)) {
			break
		}
		n = i
	}
	resp := models.BatchResponse{Summary: "week of steady progress"}
	for i := 1; i <= n; i++ {
		resp.Items = append(resp.Items, models.BatchItem{
			Index:       i,
			Tag:         models.TagDevelop,
			Description: fmt.Sprintf("work item %d", i),
			Confidence:  0.8,
		})
	}
	raw, _ := json.Marshal(resp)
	return string(raw), nil
}

type PipelineSuite struct {
	suite.Suite
	period  models.Period
	backend *echoBackend
	sink    *captureSink
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.period = models.WorkWeek(time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC))
	s.backend = &echoBackend{}
	s.sink = &captureSink{}
}

func (s *PipelineSuite) newPipeline(src ...models.RawMessage) *Pipeline {
	return s.newPipelineOpts(Options{}, src...)
}

func (s *PipelineSuite) newPipelineOpts(opts Options, src ...models.RawMessage) *Pipeline {
	classifier, err := classify.New(classify.DefaultRules())
	s.Require().NoError(err)

	cache := aicache.New(aicache.NewMemoryStore(), time.Hour)
	a := analyzer.New(s.backend, cache, classifier, analyzer.Options{})

	opts.Source = &staticSource{msgs: src}
	opts.Classifier = classifier
	opts.Analyzer = a
	if opts.Sink == nil {
		opts.Sink = s.sink
	}
	p, err := New(opts)
	s.Require().NoError(err)
	return p
}

func (s *PipelineSuite) raw(id, text string, hour int) models.RawMessage {
	return models.RawMessage{
		ID:        id,
		Channel:   "eng",
		UserID:    "U1",
		UserName:  "alice",
		Text:      text,
		Timestamp: s.period.Start.Add(time.Duration(hour) * time.Hour),
	}
}

func (s *PipelineSuite) TestRejectsInvalidPeriod() {
	p := s.newPipeline()
	_, err := p.Run(context.Background(), models.Period{})
	s.Require().Error(err)
	s.Contains(err.Error(), "invalid period")
}

func (s *PipelineSuite) TestKeywordAndAIRoutesSplit() {
	p := s.newPipeline(
		s.raw("m1", "deployed billing.api to production", 9),
		s.raw("m2", "spent the day pairing on onboarding", 10),
	)

	doc, err := p.Run(context.Background(), s.period)
	s.Require().NoError(err)

	s.Equal(2, doc.Stats.MessagesSeen)
	s.Equal(1, doc.Stats.KeywordClassified)
	s.Equal(1, doc.Stats.AIClassified)
	s.Equal(0, doc.Stats.FallbackClassified)
	s.Require().Len(doc.Entries, 2)
	s.Contains(doc.Summary, "2 work units")
	s.Len(s.sink.docs, 1, "document delivered to the sink")
}

func (s *PipelineSuite) TestExclusionFilterRunsBeforeNormalization() {
	p := s.newPipelineOpts(Options{ExcludeKeywords: []string{"SYNC"}},
		s.raw("m1", "daily sync with the team", 9),
		s.raw("m2", "deployed billing.api again", 10),
	)

	doc, err := p.Run(context.Background(), s.period)
	s.Require().NoError(err)

	s.Equal(2, doc.Stats.MessagesSeen)
	s.Equal(1, doc.Stats.MessagesExcluded)
	s.Len(doc.Entries, 1)
	s.Equal(models.TagDeploy, doc.Entries[0].Tag)
}

func (s *PipelineSuite) TestBrokenBackendStillYieldsEveryMessage() {
	s.backend.broken = true
	p := s.newPipeline(
		s.raw("m1", "thinking about the roadmap", 9),
		s.raw("m2", "still thinking about the roadmap", 10),
		s.raw("m3", "wrote a test plan", 11),
	)

	doc, err := p.Run(context.Background(), s.period)
	s.Require().NoError(err, "a failing backend degrades, never fails the run")

	s.Equal(0, doc.Stats.AIClassified)
	total := doc.Stats.KeywordClassified + doc.Stats.AIClassified + doc.Stats.FallbackClassified
	s.Equal(3, total, "every message is classified by some route")
}

func (s *PipelineSuite) TestSecondRunIsCachedAndIdentical() {
	p := s.newPipeline(
		s.raw("m1", "deployed billing.api to production", 9),
		s.raw("m2", "sketching the migration plan", 10),
	)

	first, err := p.Run(context.Background(), s.period)
	s.Require().NoError(err)
	callsAfterFirst := s.backend.calls

	second, err := p.Run(context.Background(), s.period)
	s.Require().NoError(err)

	s.Equal(callsAfterFirst, s.backend.calls, "rerun is served from the cache")
	s.Equal(1, second.Stats.CacheHits)

	// Identical apart from the cache counters, which record how the run
	// was served rather than what it produced.
	second.Stats.CacheHits = first.Stats.CacheHits
	second.Stats.BackendCalls = first.Stats.BackendCalls
	a, err := json.Marshal(first)
	s.Require().NoError(err)
	b, err := json.Marshal(second)
	s.Require().NoError(err)
	s.Equal(string(a), string(b))
}

func (s *PipelineSuite) TestNotifierSeesPhaseSequence() {
	notifier := &captureNotifier{}
	p := s.newPipelineOpts(Options{Notifier: notifier},
		s.raw("m1", "deployed billing.api", 9),
	)

	_, err := p.Run(context.Background(), s.period)
	s.Require().NoError(err)
	s.Equal([]Phase{PhaseCollecting, PhaseClassifying, PhaseAssembling, PhaseDone}, notifier.phases)
}

func (s *PipelineSuite) TestSourceFailureNotifiesFailed() {
	classifier, err := classify.New(classify.DefaultRules())
	s.Require().NoError(err)
	cache := aicache.New(aicache.NewMemoryStore(), time.Hour)
	notifier := &captureNotifier{}

	p, err := New(Options{
		Source:     &staticSource{err: fmt.Errorf("export unreadable")},
		Classifier: classifier,
		Analyzer:   analyzer.New(s.backend, cache, classifier, analyzer.Options{}),
		Notifier:   notifier,
	})
	s.Require().NoError(err)

	_, err = p.Run(context.Background(), s.period)
	s.Require().Error(err)
	s.Equal(PhaseFailed, notifier.phases[len(notifier.phases)-1])
}
