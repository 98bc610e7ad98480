package analyzer

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/scribe/internal/aicache"
	"github.com/thebtf/scribe/internal/classify"
	"github.com/thebtf/scribe/internal/generation"
	"github.com/thebtf/scribe/pkg/models"
)

// batchState tracks one batch through the request lifecycle.
type batchState int

const (
	stateNotAttempted batchState = iota
	stateAIRequested
	stateValidated
	stateRetrying
	stateFallbackApplied
)

func (s batchState) String() string {
	switch s {
	case stateNotAttempted:
		return "not_attempted"
	case stateAIRequested:
		return "ai_requested"
	case stateValidated:
		return "validated"
	case stateRetrying:
		return "retrying"
	case stateFallbackApplied:
		return "fallback_applied"
	default:
		return "unknown"
	}
}

const (
	// DefaultConcurrency bounds concurrent backend requests.
	DefaultConcurrency = 4

	// DefaultMaxRetries re-asks the backend after a malformed or transient
	// failure before falling back to keyword classification.
	DefaultMaxRetries = 2
)

// Options tune an Analyzer; zero values select the defaults.
type Options struct {
	Concurrency      int
	MaxRetries       int
	MaxBatchMessages int
	MaxBatchTokens   int
}

// Stats are cumulative counters for one Analyzer instance.
type Stats struct {
	BackendCalls int64
	CacheHits    int64
	AIClassified int64
	Fallbacks    int64
}

// Analyzer drives the AI classification route. Every input message gets
// exactly one result: a validated backend item, or a keyword fallback when
// retries exhaust, the backend fails permanently, or the run is cancelled.
type Analyzer struct {
	backend     generation.Backend
	cache       *aicache.Cache
	batcher     *Batcher
	fallback    *classify.Classifier
	concurrency int
	maxRetries  int

	backendCalls atomic.Int64
	cacheHits    atomic.Int64
	aiClassified atomic.Int64
	fallbacks    atomic.Int64
}

// New creates an Analyzer. fallback must be non-nil; it closes the
// completeness guarantee when the backend cannot.
func New(backend generation.Backend, cache *aicache.Cache, fallback *classify.Classifier, opts Options) *Analyzer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	return &Analyzer{
		backend:     backend,
		cache:       cache,
		batcher:     NewBatcher(opts.MaxBatchMessages, opts.MaxBatchTokens),
		fallback:    fallback,
		concurrency: opts.Concurrency,
		maxRetries:  opts.MaxRetries,
	}
}

// Analyze classifies msgs through the backend and returns one result per
// input message, positionally aligned, plus the batch summaries the backend
// produced. It never returns fewer results than messages.
func (a *Analyzer) Analyze(ctx context.Context, msgs []models.NormalizedMessage) ([]models.ClassificationResult, []string, error) {
	if len(msgs) == 0 {
		return nil, nil, nil
	}

	batches := a.batcher.Split(msgs)
	results := make([]models.ClassificationResult, len(msgs))
	summaries := make([]string, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)

	offset := 0
	for i, batch := range batches {
		i, batch, off := i, batch, offset
		offset += len(batch)
		g.Go(func() error {
			batchResults, summary := a.processBatch(gctx, batch)
			copy(results[off:], batchResults)
			summaries[i] = summary
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	kept := summaries[:0]
	for _, s := range summaries {
		if s != "" {
			kept = append(kept, s)
		}
	}
	return results, kept, nil
}

// processBatch runs the request/validate/retry state machine for one batch
// and always returns len(batch) results.
func (a *Analyzer) processBatch(ctx context.Context, batch []models.NormalizedMessage) ([]models.ClassificationResult, string) {
	fp := aicache.Fingerprint(PromptVersion, batch)
	state := stateNotAttempted

	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if ctx.Err() != nil {
			break
		}

		prompt := BuildClassificationPrompt(batch)
		if attempt > 0 {
			state = stateRetrying
			log.Debug().Str("fingerprint", fp).Int("attempt", attempt).
				Str("state", state.String()).Msg("Retrying batch with adjusted prompt")
			a.cache.Invalidate(ctx, fp)
			prompt = BuildRetryPrompt(batch, attempt)
		}
		state = stateAIRequested

		resp, cached, err := a.cache.GetOrCompute(ctx, fp, func(cctx context.Context) (models.BatchResponse, error) {
			a.backendCalls.Add(1)
			raw, genErr := a.backend.Generate(cctx, prompt, ResponseSchema())
			if genErr != nil {
				return models.BatchResponse{}, genErr
			}
			parsed, parseErr := ParseResponse(raw, len(batch))
			if parseErr != nil {
				return models.BatchResponse{}, parseErr
			}
			return *parsed, nil
		})

		switch {
		case err == nil && len(resp.Items) == len(batch):
			if cached {
				a.cacheHits.Add(1)
			}
			state = stateValidated
			log.Debug().Str("fingerprint", fp).Int("messages", len(batch)).
				Bool("cached", cached).Str("state", state.String()).Msg("Batch classified")
			a.aiClassified.Add(int64(len(batch)))
			return a.itemsToResults(resp), resp.Summary

		case err == nil:
			// A cached entry whose shape no longer matches the batch.
			log.Warn().Str("fingerprint", fp).Int("attempt", attempt).
				Msg("Cached response shape mismatch, invalidating")

		case errors.Is(err, ErrMalformedResponse):
			log.Warn().Err(err).Str("fingerprint", fp).Int("attempt", attempt).
				Msg("Malformed backend response")

		case generation.IsTransient(err):
			log.Warn().Err(err).Str("fingerprint", fp).Int("attempt", attempt).
				Msg("Transient backend failure")

		default:
			log.Error().Err(err).Str("fingerprint", fp).Msg("Permanent backend failure, applying fallback")
			return a.applyFallback(batch), ""
		}
	}

	state = stateFallbackApplied
	log.Warn().Int("messages", len(batch)).Str("state", state.String()).
		Msg("AI route exhausted, applying keyword fallback")
	return a.applyFallback(batch), ""
}

func (a *Analyzer) itemsToResults(resp models.BatchResponse) []models.ClassificationResult {
	results := make([]models.ClassificationResult, len(resp.Items))
	for _, item := range resp.Items {
		tag, _ := models.ParseTag(string(item.Tag))
		results[item.Index-1] = models.ClassificationResult{
			Tag:          tag,
			Source:       models.SourceAI,
			Confidence:   item.Confidence,
			Description:  item.Description,
			Participants: item.Participants,
			Project:      item.Project,
		}
	}
	return results
}

func (a *Analyzer) applyFallback(batch []models.NormalizedMessage) []models.ClassificationResult {
	results := make([]models.ClassificationResult, len(batch))
	for i, msg := range batch {
		results[i] = a.fallback.Fallback(msg)
	}
	a.fallbacks.Add(int64(len(batch)))
	return results
}

// Stats returns a snapshot of the analyzer's counters.
func (a *Analyzer) Stats() Stats {
	return Stats{
		BackendCalls: a.backendCalls.Load(),
		CacheHits:    a.cacheHits.Load(),
		AIClassified: a.aiClassified.Load(),
		Fallbacks:    a.fallbacks.Load(),
	}
}
