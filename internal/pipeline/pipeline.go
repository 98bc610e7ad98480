// Package pipeline orchestrates a journal run: collect raw messages,
// classify them along the hybrid keyword/AI routes, assemble and deliver
// the journal document.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/thebtf/scribe/internal/analyzer"
	"github.com/thebtf/scribe/internal/classify"
	"github.com/thebtf/scribe/internal/journal"
	"github.com/thebtf/scribe/internal/normalize"
	"github.com/thebtf/scribe/internal/sink"
	"github.com/thebtf/scribe/internal/source"
	"github.com/thebtf/scribe/pkg/models"
)

// Phase names a stage of a run.
type Phase string

const (
	PhaseCollecting  Phase = "collecting"
	PhaseClassifying Phase = "classifying"
	PhaseAssembling  Phase = "assembling"
	PhaseDone        Phase = "done"
	PhaseFailed      Phase = "failed"
)

// Event is a progress notification emitted as a run advances.
type Event struct {
	RunID    string    `json:"run_id"`
	Phase    Phase     `json:"phase"`
	Messages int       `json:"messages,omitempty"`
	Error    string    `json:"error,omitempty"`
	Time     time.Time `json:"time"`
}

// Notifier receives run events. Implementations must not block; the
// pipeline calls them inline.
type Notifier interface {
	Notify(Event)
}

// Pipeline wires the processing stages together. Safe for concurrent runs;
// all per-run state lives on the stack of Run.
type Pipeline struct {
	source     source.Source
	normalizer *normalize.Normalizer
	classifier *classify.Classifier
	analyzer   *analyzer.Analyzer
	assembler  *journal.Assembler
	sink       sink.Sink
	notifier   Notifier

	exclude    []string // pre-lowered
	runTimeout time.Duration
}

// Options assembles a Pipeline. Source, Classifier and Analyzer are
// required; the rest defaults sensibly.
type Options struct {
	Source          source.Source
	Normalizer      *normalize.Normalizer
	Classifier      *classify.Classifier
	Analyzer        *analyzer.Analyzer
	Assembler       *journal.Assembler
	Sink            sink.Sink
	Notifier        Notifier
	ExcludeKeywords []string
	RunTimeout      time.Duration
}

// New validates opts and builds a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("pipeline: source is required")
	}
	if opts.Classifier == nil {
		return nil, fmt.Errorf("pipeline: classifier is required")
	}
	if opts.Analyzer == nil {
		return nil, fmt.Errorf("pipeline: analyzer is required")
	}
	if opts.Normalizer == nil {
		opts.Normalizer = normalize.New(nil)
	}
	if opts.Assembler == nil {
		opts.Assembler = journal.New()
	}

	exclude := make([]string, 0, len(opts.ExcludeKeywords))
	for _, kw := range opts.ExcludeKeywords {
		if kw = strings.ToLower(strings.TrimSpace(kw)); kw != "" {
			exclude = append(exclude, kw)
		}
	}

	return &Pipeline{
		source:     opts.Source,
		normalizer: opts.Normalizer,
		classifier: opts.Classifier,
		analyzer:   opts.Analyzer,
		assembler:  opts.Assembler,
		sink:       opts.Sink,
		notifier:   opts.Notifier,
		exclude:    exclude,
		runTimeout: opts.RunTimeout,
	}, nil
}

// Run executes one journal run for period and returns the assembled
// document. The document is also delivered to the configured sink.
func (p *Pipeline) Run(ctx context.Context, period models.Period) (*models.JournalDocument, error) {
	if !period.Valid() {
		return nil, fmt.Errorf("pipeline: invalid period %s..%s",
			period.Start.Format(time.RFC3339), period.End.Format(time.RFC3339))
	}

	runID := uuid.NewString()
	logger := log.With().Str("run_id", runID).Logger()

	if p.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.runTimeout)
		defer cancel()
	}

	started := time.Now()
	logger.Info().
		Str("period_start", period.Start.Format("2006-01-02")).
		Str("period_end", period.End.Format("2006-01-02")).
		Msg("Journal run started")

	var stats models.RunStats

	p.notify(Event{RunID: runID, Phase: PhaseCollecting, Time: time.Now()})
	raws, err := p.source.Fetch(ctx, period)
	if err != nil {
		p.notify(Event{RunID: runID, Phase: PhaseFailed, Error: err.Error(), Time: time.Now()})
		return nil, fmt.Errorf("pipeline: collect: %w", err)
	}
	stats.MessagesSeen = len(raws)

	kept := raws[:0:0]
	for _, raw := range raws {
		if p.excluded(raw.Text) {
			stats.MessagesExcluded++
			continue
		}
		kept = append(kept, raw)
	}
	logger.Debug().Int("seen", stats.MessagesSeen).Int("excluded", stats.MessagesExcluded).
		Msg("Messages collected")

	p.notify(Event{RunID: runID, Phase: PhaseClassifying, Messages: len(kept), Time: time.Now()})
	msgs := p.normalizer.NormalizeAll(kept)

	results := make([]models.ClassificationResult, len(msgs))
	var aiMsgs []models.NormalizedMessage
	var aiIdx []int
	for i, msg := range msgs {
		if result, ok := p.classifier.Classify(msg); ok {
			results[i] = result
			stats.KeywordClassified++
			continue
		}
		aiMsgs = append(aiMsgs, msg)
		aiIdx = append(aiIdx, i)
	}

	if len(aiMsgs) > 0 {
		before := p.analyzer.Stats()
		aiResults, aiSummaries, err := p.analyzer.Analyze(ctx, aiMsgs)
		if err != nil {
			p.notify(Event{RunID: runID, Phase: PhaseFailed, Error: err.Error(), Time: time.Now()})
			return nil, fmt.Errorf("pipeline: classify: %w", err)
		}
		for j, r := range aiResults {
			results[aiIdx[j]] = r
			switch r.Source {
			case models.SourceAI:
				stats.AIClassified++
			case models.SourceFallback:
				stats.FallbackClassified++
			}
		}
		after := p.analyzer.Stats()
		stats.CacheHits = int(after.CacheHits - before.CacheHits)
		stats.BackendCalls = int(after.BackendCalls - before.BackendCalls)
		for _, summary := range aiSummaries {
			logger.Debug().Str("summary", summary).Msg("Batch summary")
		}
	}

	p.notify(Event{RunID: runID, Phase: PhaseAssembling, Messages: len(msgs), Time: time.Now()})
	doc, err := p.assembler.Assemble(period, msgs, results, stats)
	if err != nil {
		p.notify(Event{RunID: runID, Phase: PhaseFailed, Error: err.Error(), Time: time.Now()})
		return nil, fmt.Errorf("pipeline: assemble: %w", err)
	}

	if p.sink != nil {
		if err := p.sink.Write(ctx, doc); err != nil {
			p.notify(Event{RunID: runID, Phase: PhaseFailed, Error: err.Error(), Time: time.Now()})
			return nil, fmt.Errorf("pipeline: deliver: %w", err)
		}
	}

	p.notify(Event{RunID: runID, Phase: PhaseDone, Messages: len(doc.Entries), Time: time.Now()})
	logger.Info().
		Int("entries", len(doc.Entries)).
		Int("keyword", stats.KeywordClassified).
		Int("ai", stats.AIClassified).
		Int("fallback", stats.FallbackClassified).
		Dur("elapsed", time.Since(started)).
		Msg("Journal run finished")
	return doc, nil
}

// excluded matches the raw, pre-normalization text so operators can filter
// on markup the cleaner would strip.
func (p *Pipeline) excluded(text string) bool {
	if len(p.exclude) == 0 {
		return false
	}
	lowered := strings.ToLower(text)
	for _, kw := range p.exclude {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

func (p *Pipeline) notify(ev Event) {
	if p.notifier != nil {
		p.notifier.Notify(ev)
	}
}
