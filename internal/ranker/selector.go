// File: internal/ranker/selector.go

package ranker

import (
	"go.uber.org/zap"

	"hindsight/api/schemas"
	"hindsight/internal/config"
	"hindsight/internal/history"
)

// Selector reduces a ranked commit list to a primary root cause hypothesis,
// or to an explicit no-candidate outcome with a human-actionable reason.
type Selector struct {
	cfg    config.RankerConfig
	logger *zap.Logger
}

// NewSelector creates a selector sharing the ranker's configuration.
func NewSelector(cfg config.RankerConfig, logger *zap.Logger) *Selector {
	return &Selector{cfg: cfg, logger: logger.Named("selector")}
}

// Select picks the top candidate iff it clears the confidence threshold and,
// when a runner-up exists, leads it by the selection margin. A ranked list
// where nothing overlaps the error's affected files never yields a primary;
// that case reports no-overlapping-commits so the caller cannot present a
// fabricated cause.
func (s *Selector) Select(errDesc *schemas.ErrorDescription, ranked []schemas.CommitRecord) schemas.RootCauseResult {
	if len(ranked) == 0 {
		return schemas.RootCauseResult{Reason: schemas.ReasonInsufficientSignal}
	}

	if len(errDesc.AffectedFiles) > 0 && !anyCommitOverlaps(errDesc.AffectedFiles, ranked) {
		s.logger.Info("no commit touches the affected files",
			zap.Strings("affected", errDesc.AffectedFiles))
		return schemas.RootCauseResult{Reason: schemas.ReasonNoOverlappingCommits}
	}

	top := ranked[0]
	if top.RelevanceScore < s.cfg.ConfidenceThreshold {
		return schemas.RootCauseResult{Reason: schemas.ReasonInsufficientSignal}
	}
	if len(ranked) > 1 && top.RelevanceScore-ranked[1].RelevanceScore < s.cfg.SelectionMargin {
		return schemas.RootCauseResult{Reason: schemas.ReasonAmbiguousTie}
	}

	result := schemas.RootCauseResult{
		Primary:    &top,
		Confidence: s.confidence(ranked),
		Related:    s.relatedChanges(&top, ranked),
	}
	s.logger.Info("root cause selected",
		zap.String("commit", top.Hash),
		zap.Float64("confidence", result.Confidence),
		zap.Int("related", len(result.Related)))
	return result
}

// confidence normalizes the top candidate's lead into [0,1]: the threshold
// maps to 0.5, and the relative gap to the runner-up contributes the rest.
func (s *Selector) confidence(ranked []schemas.CommitRecord) float64 {
	top := ranked[0].RelevanceScore
	if top <= 0 {
		return 0
	}

	base := 0.5
	if s.cfg.ConfidenceThreshold > 0 {
		excess := (top - s.cfg.ConfidenceThreshold) / s.cfg.ConfidenceThreshold
		base += 0.25 * clamp01(excess)
	}
	if len(ranked) > 1 {
		base += 0.25 * clamp01((top-ranked[1].RelevanceScore)/top)
	} else {
		base += 0.25
	}
	return clamp01(base)
}

// relatedChanges groups commits inside the ranked window that share changed
// files with the primary, capturing multi-commit root causes.
func (s *Selector) relatedChanges(primary *schemas.CommitRecord, ranked []schemas.CommitRecord) []schemas.CommitRecord {
	window := s.cfg.RelatedWindow
	if window <= 0 || window > len(ranked) {
		window = len(ranked)
	}

	var related []schemas.CommitRecord
	for _, c := range ranked[:window] {
		if c.Hash == primary.Hash {
			continue
		}
		if history.Overlaps(c.ChangedFiles, primary.ChangedFiles) {
			related = append(related, c)
		}
	}
	return related
}

func anyCommitOverlaps(affected []string, ranked []schemas.CommitRecord) bool {
	for _, c := range ranked {
		for _, a := range affected {
			if anyPathMatch(a, c.ChangedFiles) {
				return true
			}
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
