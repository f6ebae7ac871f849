// File: internal/pipeline/wiring.go

package pipeline

import (
	"context"

	"go.uber.org/zap"

	"hindsight/api/schemas"
	"hindsight/internal/assembler"
	"hindsight/internal/cache"
	"hindsight/internal/config"
	"hindsight/internal/explainer"
	"hindsight/internal/history"
	"hindsight/internal/intent"
	"hindsight/internal/llmclient"
	"hindsight/internal/ranker"
	"hindsight/internal/trace"
)

// Build wires the production component set from config and returns the ready
// pipeline. The LLM client is created only when enabled and configured; a
// missing client means local fallback explanations. Cache failures disable
// caching rather than failing startup.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	ext := intent.NewExtractor(logger)
	ext.MaxFileSize = cfg.Analysis.MaxFileSize
	ext.ExcludedPatterns = cfg.Analysis.ExcludedPatterns

	asm := assembler.New(logger)
	if cfg.Analysis.ContextCommits > 0 {
		asm.MaxCommits = cfg.Analysis.ContextCommits
	}

	var llm schemas.LLMClient
	if cfg.LLM.Enabled && cfg.LLM.APIKey != "" {
		client, err := llmclient.NewGeminiClient(ctx, cfg.LLM, logger)
		if err != nil {
			logger.Warn("explanation generator unavailable", zap.Error(err))
		} else {
			llm = client
		}
	}

	var store *cache.Cache
	if cfg.Cache.Enabled {
		c, err := cache.New(cfg.Cache.Dir, cfg.Cache.TTL, cfg.Cache.MemoryEntries, logger)
		if err != nil {
			logger.Warn("cache disabled", zap.Error(err))
		} else {
			store = c
		}
	}

	comps := Components{
		Parser:      trace.NewParser(logger),
		OpenScanner: scannerFactory(cfg, logger),
		Extractor:   ext,
		Ranker:      ranker.NewRanker(cfg.Ranker, logger),
		Selector:    ranker.NewSelector(cfg.Ranker, logger),
		Assembler:   asm,
		Explainer:   explainer.New(llm, cfg.LLM, logger),
		Cache:       store,
	}
	return New(cfg, comps, logger)
}

func scannerFactory(cfg *config.Config, logger *zap.Logger) ScannerFactory {
	return func(path string) (HistoryScanner, error) {
		s, err := history.NewScanner(path, logger)
		if err != nil {
			return nil, err
		}
		s.MaxDiffBytes = cfg.Analysis.MaxDiffBytes
		s.Concurrency = cfg.Analysis.Concurrency
		s.OpTimeout = cfg.Analysis.OpTimeout
		s.ExcludedPatterns = cfg.Analysis.ExcludedPatterns
		return s, nil
	}
}

// ValidateRepository opens the repository without scanning, for cheap
// short-circuit checks before an analysis is queued.
func ValidateRepository(path string, logger *zap.Logger) error {
	_, err := history.NewScanner(path, logger)
	return err
}
