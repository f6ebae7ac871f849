// File: internal/assembler/assembler.go

// Package assembler combines the parsed error, ranked commits, intent
// signals, and repository metadata into one bounded BugContext for the
// explanation generator.
package assembler

import (
	"go.uber.org/zap"

	"hindsight/api/schemas"
	"hindsight/internal/history"
)

// Assembler enforces the context size bound. The ranked commit list is the
// only thing truncated; the error description and the intent for implicated
// files always survive intact.
type Assembler struct {
	logger *zap.Logger

	// MaxCommits bounds the commits carried into the context. Zero or
	// negative means the default of 50.
	MaxCommits int
}

// New creates an assembler.
func New(logger *zap.Logger) *Assembler {
	return &Assembler{logger: logger.Named("assembler"), MaxCommits: 50}
}

// Assemble builds the bug context. The intent map is restricted to files
// referenced by the error or changed by a kept commit; intent for anything
// else would only dilute the generator's attention.
func (a *Assembler) Assemble(
	errDesc *schemas.ErrorDescription,
	ranked []schemas.CommitRecord,
	intent map[string][]schemas.IntentRecord,
	meta schemas.RepositoryMeta,
	warnings []string,
	degraded bool,
) *schemas.BugContext {
	limit := a.MaxCommits
	if limit <= 0 {
		limit = 50
	}

	truncated := false
	commits := ranked
	if len(commits) > limit {
		commits = commits[:limit]
		truncated = true
		a.logger.Debug("commit list truncated",
			zap.Int("kept", limit),
			zap.Int("dropped", len(ranked)-limit))
	}

	ctx := &schemas.BugContext{
		Error:            *errDesc,
		Commits:          commits,
		Intent:           restrictIntent(intent, errDesc, commits),
		Repository:       meta,
		CommitsTruncated: truncated,
		Degraded:         degraded,
		Warnings:         warnings,
	}

	a.logger.Info("bug context assembled",
		zap.String("fingerprint", ctx.Fingerprint()),
		zap.Int("commits", len(commits)),
		zap.Int("intent_files", len(ctx.Intent)),
		zap.Bool("degraded", degraded))
	return ctx
}

// restrictIntent keeps intent only for implicated files: those in the
// error's affected set or touched by a kept commit.
func restrictIntent(intent map[string][]schemas.IntentRecord, errDesc *schemas.ErrorDescription, commits []schemas.CommitRecord) map[string][]schemas.IntentRecord {
	if len(intent) == 0 {
		return nil
	}

	kept := make(map[string][]schemas.IntentRecord, len(intent))
	for file, records := range intent {
		if len(records) == 0 {
			continue
		}
		if implicated(file, errDesc, commits) {
			kept[file] = records
		}
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func implicated(file string, errDesc *schemas.ErrorDescription, commits []schemas.CommitRecord) bool {
	for _, a := range errDesc.AffectedFiles {
		if history.PathMatches(file, a) {
			return true
		}
	}
	for _, c := range commits {
		for _, changed := range c.ChangedFiles {
			if history.PathMatches(file, changed) {
				return true
			}
		}
	}
	return false
}
