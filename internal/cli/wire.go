package cli

import (
	"fmt"

	"github.com/thebtf/scribe/internal/aicache"
	"github.com/thebtf/scribe/internal/analyzer"
	"github.com/thebtf/scribe/internal/classify"
	"github.com/thebtf/scribe/internal/config"
	"github.com/thebtf/scribe/internal/generation"
	"github.com/thebtf/scribe/internal/identity"
	"github.com/thebtf/scribe/internal/normalize"
	"github.com/thebtf/scribe/internal/pipeline"
	"github.com/thebtf/scribe/internal/sink"
	"github.com/thebtf/scribe/internal/source"
)

// engine bundles everything a command needs for journal runs.
type engine struct {
	cfg      *config.Config
	pipeline *pipeline.Pipeline
	cache    *aicache.Cache
}

func (e *engine) Close() {
	if err := e.cache.Close(); err != nil {
		// Close runs on the way out; the error is only worth a note.
		fmt.Fprintf(rootCmd.ErrOrStderr(), "cache close: %v\n", err)
	}
}

// buildEngine wires a pipeline from configuration. sourcePath, when not
// empty, overrides the configured source. notifier may be nil.
func buildEngine(cfg *config.Config, sourcePath string, notifier pipeline.Notifier) (*engine, error) {
	if sourcePath == "" {
		sourcePath = cfg.Source.Path
	}
	if sourcePath == "" {
		return nil, fmt.Errorf("no message source: set source.path or pass a path argument")
	}

	classifier, err := classify.New(cfg.ClassifierRules())
	if err != nil {
		return nil, err
	}

	backend, err := generation.NewGemini(generation.GeminiConfig{
		APIKey:      cfg.Gemini.APIKey,
		Model:       cfg.Gemini.Model,
		Temperature: cfg.Gemini.Temperature,
		MaxTokens:   cfg.Gemini.MaxTokens,
		BaseURL:     cfg.Gemini.BaseURL,
		Timeout:     cfg.Gemini.Timeout,
	})
	if err != nil {
		return nil, err
	}

	store, err := buildCacheStore(cfg)
	if err != nil {
		return nil, err
	}
	cache := aicache.New(store, cfg.Cache.TTL)

	a := analyzer.New(backend, cache, classifier, analyzer.Options{
		Concurrency:      cfg.Analyzer.Concurrency,
		MaxRetries:       cfg.Analyzer.MaxRetries,
		MaxBatchMessages: cfg.Analyzer.MaxBatchMessages,
		MaxBatchTokens:   cfg.Analyzer.MaxBatchTokens,
	})

	sinks := sink.Multi{}
	if cfg.Output.Dir != "" {
		fileSink, err := sink.NewFile(cfg.Output.Dir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, fileSink)
	}
	if cfg.Output.Stdout {
		sinks = append(sinks, sink.NewWriter(nil))
	}

	p, err := pipeline.New(pipeline.Options{
		Source:          source.NewFile(sourcePath),
		Normalizer:      normalize.New(directoryFromConfig(cfg)),
		Classifier:      classifier,
		Analyzer:        a,
		Sink:            sinks,
		Notifier:        notifier,
		ExcludeKeywords: cfg.ExcludeKeywords,
		RunTimeout:      cfg.RunTimeout,
	})
	if err != nil {
		return nil, err
	}

	return &engine{cfg: cfg, pipeline: p, cache: cache}, nil
}

func buildCacheStore(cfg *config.Config) (aicache.Store, error) {
	switch cfg.Cache.Backend {
	case "memory":
		return aicache.NewMemoryStore(), nil
	case "sqlite":
		return aicache.NewSQLiteStore(cfg.Cache.SQLitePath)
	case "redis":
		return aicache.NewRedisStore(cfg.Cache.RedisAddr), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

func directoryFromConfig(cfg *config.Config) identity.Directory {
	if len(cfg.Identities) == 0 {
		return nil
	}
	dir := make(identity.Static, len(cfg.Identities))
	for id, person := range cfg.Identities {
		dir[id] = identity.Identity{Name: person.Name, RealName: person.RealName}
	}
	return dir
}
