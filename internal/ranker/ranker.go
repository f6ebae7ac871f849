// File: internal/ranker/ranker.go

// Package ranker orders scanned commits by likelihood of having caused a
// given error, fusing file overlap, diff line proximity, recency, intent
// divergence, and commit-message keywords into a single relevance score. It
// also houses the root cause selector that reduces the ranked list to a
// primary hypothesis.
package ranker

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"hindsight/api/schemas"
	"hindsight/internal/config"
	"hindsight/internal/history"
)

var (
	hunkHeaderRegex = regexp.MustCompile(`^@@ -\d+(?:,\d+)? \+(\d+)(?:,(\d+))? @@`)
	diffFileRegex   = regexp.MustCompile(`^\+\+\+ b/(.+)$`)

	// suspectKeywords are commit-message terms weakly correlated with a
	// change that touched broken behavior.
	suspectKeywords = []string{"fix", "bug", "error", "crash", "revert", "broke", "regression", "patch", "hotfix"}
)

// Ranker scores and orders commit records against an error description and
// extracted intent signals.
type Ranker struct {
	cfg    config.RankerConfig
	logger *zap.Logger

	// now is injectable so recency scoring is testable.
	now func() time.Time
}

// NewRanker creates a ranker with the given weights.
func NewRanker(cfg config.RankerConfig, logger *zap.Logger) *Ranker {
	return &Ranker{cfg: cfg, logger: logger.Named("ranker"), now: time.Now}
}

// Rank returns a copy of commits annotated with relevance scores and ordered
// descending by score, ties broken by hash ascending so the order is total
// and reproducible for identical inputs. Empty input yields empty output.
func (r *Ranker) Rank(errDesc *schemas.ErrorDescription, commits []schemas.CommitRecord, intents map[string][]schemas.IntentRecord) []schemas.CommitRecord {
	if len(commits) == 0 {
		return nil
	}

	ranked := make([]schemas.CommitRecord, len(commits))
	copy(ranked, commits)
	now := r.now()

	for i := range ranked {
		ranked[i].RelevanceScore = r.score(errDesc, &ranked[i], intents, now)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].RelevanceScore != ranked[j].RelevanceScore {
			return ranked[i].RelevanceScore > ranked[j].RelevanceScore
		}
		return ranked[i].Hash < ranked[j].Hash
	})

	r.logger.Debug("ranking complete",
		zap.Int("commits", len(ranked)),
		zap.Float64("top_score", ranked[0].RelevanceScore))
	return ranked
}

// score combines the five signals. File overlap occupies a dominant band:
// any overlapping commit clears the full overlap weight, which exceeds the
// combined maximum of every non-overlap signal, so overlap strictly outranks
// its absence regardless of recency or keywords.
func (r *Ranker) score(errDesc *schemas.ErrorDescription, commit *schemas.CommitRecord, intents map[string][]schemas.IntentRecord, now time.Time) float64 {
	var score float64

	overlap := overlapFraction(errDesc.AffectedFiles, commit.ChangedFiles)
	if overlap > 0 {
		score += r.cfg.OverlapWeight * (1 + overlap)
		score += r.cfg.ProximityWeight * proximity(errDesc.Frames, commit.Diff)
	}

	if r.cfg.RecencyHalfLife > 0 {
		age := now.Sub(commit.Timestamp)
		if age < 0 {
			age = 0
		}
		decay := math.Exp2(-age.Hours() / r.cfg.RecencyHalfLife.Hours())
		score += r.cfg.RecencyWeight * decay
	}

	if diverges(commit, intents) {
		score += r.cfg.DivergenceWeight
	}

	message := strings.ToLower(commit.Message)
	for _, kw := range suspectKeywords {
		if strings.Contains(message, kw) {
			score += r.cfg.KeywordWeight
			break
		}
	}

	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	return score
}

// overlapFraction returns the share of affected files the commit touched,
// in [0,1].
func overlapFraction(affected, changed []string) float64 {
	if len(affected) == 0 {
		return 0
	}
	matched := 0
	for _, a := range affected {
		for _, c := range changed {
			if history.PathMatches(a, c) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(affected))
}

// proximity returns a value in (0,1] inversely scaled by the minimum line
// distance between the commit's diff hunks and the error's frame lines, or 0
// when no hunk can be paired with a frame file.
func proximity(frames []schemas.CallFrame, diff string) float64 {
	ranges := hunkRanges(diff)
	if len(ranges) == 0 {
		return 0
	}

	minDist := -1
	for _, frame := range frames {
		for _, hr := range ranges {
			if !history.PathMatches(frame.FilePath, hr.file) {
				continue
			}
			d := hr.distance(frame.LineNumber)
			if minDist < 0 || d < minDist {
				minDist = d
			}
		}
	}
	if minDist < 0 {
		return 0
	}
	return 1 / (1 + float64(minDist))
}

type hunkRange struct {
	file  string
	start int
	end   int // inclusive
}

func (h hunkRange) distance(line int) int {
	switch {
	case line < h.start:
		return h.start - line
	case line > h.end:
		return line - h.end
	default:
		return 0
	}
}

// hunkRanges parses the post-image line ranges out of a unified diff,
// attributing each @@ header to the preceding +++ file marker. Truncated or
// malformed diffs simply yield fewer ranges.
func hunkRanges(diff string) []hunkRange {
	var ranges []hunkRange
	var current string
	for _, line := range strings.Split(diff, "\n") {
		if m := diffFileRegex.FindStringSubmatch(line); m != nil {
			current = m[1]
			continue
		}
		m := hunkHeaderRegex.FindStringSubmatch(line)
		if m == nil || current == "" {
			continue
		}
		start, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		count := 1
		if m[2] != "" {
			if count, err = strconv.Atoi(m[2]); err != nil {
				continue
			}
		}
		end := start
		if count > 0 {
			end = start + count - 1
		}
		ranges = append(ranges, hunkRange{file: current, start: start, end: end})
	}
	return ranges
}

// diverges reports whether the commit's diff removes code that an intent
// record for one of its files documents: a deleted None guard against a
// nullability intent, or a deleted line naming a documented subject.
func diverges(commit *schemas.CommitRecord, intents map[string][]schemas.IntentRecord) bool {
	if len(intents) == 0 {
		return false
	}
	removed := removedLines(commit.Diff)
	if len(removed) == 0 {
		return false
	}

	for file, records := range intents {
		if !anyPathMatch(file, commit.ChangedFiles) {
			continue
		}
		for _, rec := range records {
			for _, line := range removed {
				if contradicts(rec, line) {
					return true
				}
			}
		}
	}
	return false
}

func contradicts(rec schemas.IntentRecord, removedLine string) bool {
	desc := strings.ToLower(rec.Description)
	nullable := strings.Contains(desc, "none") || strings.Contains(desc, "optional") || strings.Contains(desc, "nullab")
	if nullable && strings.Contains(removedLine, "is None") {
		return true
	}
	return rec.Subject != "" && rec.Subject != "(module)" && strings.Contains(removedLine, rec.Subject)
}

func removedLines(diff string) []string {
	var out []string
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---") {
			out = append(out, strings.TrimPrefix(line, "-"))
		}
	}
	return out
}

func anyPathMatch(path string, changed []string) bool {
	for _, c := range changed {
		if history.PathMatches(path, c) {
			return true
		}
	}
	return false
}
