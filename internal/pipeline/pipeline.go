// File: internal/pipeline/pipeline.go

// Package pipeline coordinates a full analysis run: parse the error, scan
// repository history, extract intent for the implicated files, rank, select,
// assemble, explain. The coordinator owns explicit handles to each component
// and passes one context value through every stage; component failures that
// are recoverable become warnings on the result, never pipeline failures.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hindsight/api/schemas"
	"hindsight/internal/cache"
	"hindsight/internal/config"
)

// ErrEmptyErrorText is returned for blank input; there is nothing to analyze.
var ErrEmptyErrorText = errors.New("error text is empty")

// TraceParser produces a structured error description from raw text.
type TraceParser interface {
	Parse(raw string) (schemas.ErrorDescription, error)
}

// HistoryScanner walks a repository's commit history.
type HistoryScanner interface {
	Scan(ctx context.Context, maxCommits int) ([]schemas.CommitRecord, []string, error)
	Meta() schemas.RepositoryMeta
}

// ScannerFactory opens a scanner for the repository at path. Opening fails
// with RepositoryError before any walk begins.
type ScannerFactory func(path string) (HistoryScanner, error)

// IntentExtractor analyzes one source file for intent signals.
type IntentExtractor interface {
	Extract(ctx context.Context, filePath string) ([]schemas.IntentRecord, error)
}

// CommitRanker orders commits by relevance to the error.
type CommitRanker interface {
	Rank(errDesc *schemas.ErrorDescription, commits []schemas.CommitRecord, intents map[string][]schemas.IntentRecord) []schemas.CommitRecord
}

// CauseSelector reduces the ranked list to a primary hypothesis.
type CauseSelector interface {
	Select(errDesc *schemas.ErrorDescription, ranked []schemas.CommitRecord) schemas.RootCauseResult
}

// ContextAssembler builds the bounded bug context.
type ContextAssembler interface {
	Assemble(errDesc *schemas.ErrorDescription, ranked []schemas.CommitRecord, intent map[string][]schemas.IntentRecord, meta schemas.RepositoryMeta, warnings []string, degraded bool) *schemas.BugContext
}

// ExplanationGenerator produces the final explanation, falling back locally
// when the external generator is unavailable.
type ExplanationGenerator interface {
	Explain(ctx context.Context, bug *schemas.BugContext) *schemas.Explanation
}

// Components are the pipeline's injected collaborators. Cache is optional;
// everything else is required.
type Components struct {
	Parser      TraceParser
	OpenScanner ScannerFactory
	Extractor   IntentExtractor
	Ranker      CommitRanker
	Selector    CauseSelector
	Assembler   ContextAssembler
	Explainer   ExplanationGenerator
	Cache       *cache.Cache
}

// Pipeline runs analyses. Safe for concurrent use; each Analyze call carries
// its own state.
type Pipeline struct {
	cfg    *config.Config
	comps  Components
	logger *zap.Logger
}

// New validates the wiring and creates a pipeline.
func New(cfg *config.Config, comps Components, logger *zap.Logger) (*Pipeline, error) {
	if cfg == nil {
		return nil, errors.New("pipeline requires a config")
	}
	switch {
	case comps.Parser == nil:
		return nil, errors.New("pipeline requires a trace parser")
	case comps.OpenScanner == nil:
		return nil, errors.New("pipeline requires a scanner factory")
	case comps.Extractor == nil:
		return nil, errors.New("pipeline requires an intent extractor")
	case comps.Ranker == nil:
		return nil, errors.New("pipeline requires a ranker")
	case comps.Selector == nil:
		return nil, errors.New("pipeline requires a selector")
	case comps.Assembler == nil:
		return nil, errors.New("pipeline requires an assembler")
	case comps.Explainer == nil:
		return nil, errors.New("pipeline requires an explainer")
	}
	return &Pipeline{cfg: cfg, comps: comps, logger: logger.Named("pipeline")}, nil
}

// Analyze runs the full flow for one error against one repository. Only
// whole-pipeline-invalidating conditions return an error: empty input or an
// invalid repository. Everything else degrades into warnings on the report.
func (p *Pipeline) Analyze(ctx context.Context, errorText, repoPath string) (*schemas.AnalysisReport, error) {
	start := time.Now()
	if errorText == "" {
		return nil, ErrEmptyErrorText
	}

	if p.cfg.Analysis.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Analysis.Deadline)
		defer cancel()
	}

	errDesc, err := p.comps.Parser.Parse(errorText)
	if err != nil {
		return nil, fmt.Errorf("parsing error text: %w", err)
	}
	p.logger.Info("error parsed",
		zap.String("kind", string(errDesc.Kind)),
		zap.String("completeness", string(errDesc.Completeness)),
		zap.Int("frames", len(errDesc.Frames)))

	scanner, err := p.comps.OpenScanner(repoPath)
	if err != nil {
		return nil, err
	}
	meta := scanner.Meta()

	var warnings []string
	degraded := false

	commits, scanWarnings, err := p.scan(ctx, scanner, meta)
	if err != nil {
		var repoErr *schemas.RepositoryError
		if errors.As(err, &repoErr) {
			return nil, err
		}
		// A timed-out or partially failed scan degrades rather than aborts.
		warnings = append(warnings, fmt.Sprintf("history scan incomplete: %v", err))
		degraded = true
	}
	warnings = append(warnings, scanWarnings...)

	intent, intentWarnings, intentDegraded := p.extractIntent(ctx, repoPath, &errDesc)
	warnings = append(warnings, intentWarnings...)
	degraded = degraded || intentDegraded

	ranked := p.comps.Ranker.Rank(&errDesc, commits, intent)
	rootCause := p.comps.Selector.Select(&errDesc, ranked)
	bug := p.comps.Assembler.Assemble(&errDesc, ranked, intent, meta, warnings, degraded)

	explanation := p.explain(ctx, bug)

	report := &schemas.AnalysisReport{
		ID:          uuid.NewString(),
		Error:       errDesc,
		RootCause:   rootCause,
		Explanation: explanation,
		Commits:     bug.Commits,
		Intent:      bug.Intent,
		Warnings:    bug.Warnings,
		Degraded:    bug.Degraded,
		Elapsed:     time.Since(start),
	}
	p.logger.Info("analysis complete",
		zap.String("id", report.ID),
		zap.Bool("found", rootCause.Found()),
		zap.Bool("degraded", report.Degraded),
		zap.Duration("elapsed", report.Elapsed))
	return report, nil
}

// scan retrieves commit records, served from the history cache when the
// repository state has not moved.
func (p *Pipeline) scan(ctx context.Context, scanner HistoryScanner, meta schemas.RepositoryMeta) ([]schemas.CommitRecord, []string, error) {
	key := fmt.Sprintf("%s@%s:max=%d", meta.RootPath, meta.HeadHash, p.cfg.Analysis.MaxCommits)

	if p.comps.Cache != nil {
		var cached []schemas.CommitRecord
		if p.comps.Cache.Get(cache.NamespaceHistory, key, &cached) {
			p.logger.Debug("history served from cache", zap.Int("commits", len(cached)))
			return cached, nil, nil
		}
	}

	commits, warnings, err := scanner.Scan(ctx, p.cfg.Analysis.MaxCommits)
	if err != nil {
		return commits, warnings, err
	}
	if p.comps.Cache != nil && len(warnings) == 0 {
		p.comps.Cache.Put(cache.NamespaceHistory, key, commits)
	}
	return commits, warnings, nil
}

// extractIntent fans out one extraction per affected file onto a bounded
// worker pool. Results land in pre-indexed slots so no locking is needed.
// Per-file failures become warnings; deadline expiry keeps completed partials
// and reports the run degraded.
func (p *Pipeline) extractIntent(ctx context.Context, repoPath string, errDesc *schemas.ErrorDescription) (map[string][]schemas.IntentRecord, []string, bool) {
	files := errDesc.AffectedFiles
	if len(files) == 0 {
		return nil, nil, false
	}

	type slot struct {
		records []schemas.IntentRecord
		warning string
	}
	slots := make([]slot, len(files))

	concurrency := p.cfg.Analysis.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var mu sync.Mutex
	degraded := false

	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			// Exclusion wins over the missing-file warning; an excluded
			// path is skipped silently whether or not it exists.
			if p.isExcluded(file) {
				return nil
			}
			path, ok := p.resolvePath(repoPath, file)
			if !ok {
				slots[i].warning = fmt.Sprintf("source file not found for intent extraction: %s", file)
				return nil
			}

			records, warning, timedOut := p.extractOne(gctx, path)
			slots[i].records = records
			slots[i].warning = warning
			if timedOut {
				mu.Lock()
				degraded = true
				mu.Unlock()
			}
			return nil
		})
	}
	// Workers never return errors; Wait only observes context expiry.
	_ = g.Wait()
	if ctx.Err() != nil {
		degraded = true
	}

	intent := make(map[string][]schemas.IntentRecord, len(files))
	var warnings []string
	for i, file := range files {
		if len(slots[i].records) > 0 {
			intent[file] = slots[i].records
		}
		if slots[i].warning != "" {
			warnings = append(warnings, slots[i].warning)
		}
	}
	sort.Strings(warnings)
	if len(intent) == 0 {
		intent = nil
	}
	return intent, warnings, degraded
}

// extractOne runs a single bounded extraction, served from the intent cache
// by content hash when possible. The size limit is enforced before the
// cache-key read; oversized files must never be loaded, here or in the
// extractor.
func (p *Pipeline) extractOne(ctx context.Context, path string) (records []schemas.IntentRecord, warning string, timedOut bool) {
	var key string
	if p.comps.Cache != nil && p.withinSizeLimit(path) {
		if content, err := os.ReadFile(path); err == nil {
			sum := sha256.Sum256(content)
			key = hex.EncodeToString(sum[:])
			var cached []schemas.IntentRecord
			if p.comps.Cache.Get(cache.NamespaceIntent, key, &cached) {
				return cached, "", false
			}
		}
	}

	opCtx := ctx
	if p.cfg.Analysis.OpTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, p.cfg.Analysis.OpTimeout)
		defer cancel()
	}

	records, err := p.comps.Extractor.Extract(opCtx, path)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return records, fmt.Sprintf("intent extraction timed out: %s", path), true
		}
		// ParseError and ResourceError are recoverable per-file conditions;
		// partial records, if any, are still used.
		return records, fmt.Sprintf("intent extraction skipped: %v", err), false
	}

	if p.comps.Cache != nil && key != "" {
		p.comps.Cache.Put(cache.NamespaceIntent, key, records)
	}
	return records, "", false
}

// explain produces the explanation, served from the explanation cache by
// context fingerprint. Only generated explanations are cached; a fallback is
// cheap to rebuild and should be replaced by a real one when the generator
// recovers.
func (p *Pipeline) explain(ctx context.Context, bug *schemas.BugContext) *schemas.Explanation {
	var key string
	if p.comps.Cache != nil {
		key = bug.Fingerprint()
		var cached schemas.Explanation
		if p.comps.Cache.Get(cache.NamespaceExplanations, key, &cached) {
			p.logger.Debug("explanation served from cache", zap.String("fingerprint", key))
			return &cached
		}
	}

	explanation := p.comps.Explainer.Explain(ctx, bug)
	if p.comps.Cache != nil && explanation.Generated {
		p.comps.Cache.Put(cache.NamespaceExplanations, key, explanation)
	}
	return explanation
}

// withinSizeLimit stats the file against the configured ceiling. Oversized
// files skip the cache path entirely; the extractor repeats the check and
// reports the ResourceError.
func (p *Pipeline) withinSizeLimit(path string) bool {
	if p.cfg.Analysis.MaxFileSize <= 0 {
		return true
	}
	info, err := os.Stat(path)
	return err == nil && info.Size() <= p.cfg.Analysis.MaxFileSize
}

// resolvePath maps a frame path onto the repository working tree.
func (p *Pipeline) resolvePath(repoPath, file string) (string, bool) {
	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(repoPath, file)
	}
	if _, err := os.Stat(path); err != nil {
		return "", false
	}
	return path, true
}

func (p *Pipeline) isExcluded(file string) bool {
	for _, pattern := range p.cfg.Analysis.ExcludedPatterns {
		if ok, err := doublestar.Match(pattern, filepath.ToSlash(file)); err == nil && ok {
			return true
		}
	}
	return false
}
