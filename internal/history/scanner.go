// File: internal/history/scanner.go

// Package history reads repository history through go-git, producing
// lightweight commit records bounded by a recency window. The repository is
// never written to.
package history

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"hindsight/api/schemas"
)

// truncationMarker is appended to diff text cut at the byte ceiling so the
// truncation is never silent.
const truncationMarker = "\n... [diff truncated]"

// Scanner walks a repository's history from HEAD backward.
type Scanner struct {
	repo   *git.Repository
	path   string
	logger *zap.Logger

	// MaxDiffBytes is the per-commit diff ceiling. Zero disables truncation.
	MaxDiffBytes int
	// Concurrency bounds parallel diff retrieval. Values below 1 mean serial.
	Concurrency int
	// OpTimeout bounds each per-commit diff computation. Zero disables it.
	OpTimeout time.Duration
	// ExcludedPatterns are doublestar globs; matching changed-file paths are
	// dropped from the records.
	ExcludedPatterns []string
}

// NewScanner opens the repository at path. It fails fast with
// RepositoryError{NotARepository} before any walk begins so callers can
// short-circuit cheaply.
func NewScanner(path string, logger *zap.Logger) (*Scanner, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, &schemas.RepositoryError{Kind: schemas.RepoNotARepository, Path: path, Err: err}
		}
		return nil, &schemas.RepositoryError{Kind: schemas.RepoCorruptedHistory, Path: path, Err: err}
	}
	return &Scanner{
		repo:   repo,
		path:   path,
		logger: logger.Named("history"),
	}, nil
}

// Scan walks history from the current reference backward, stopping at
// maxCommits or the repository origin, whichever comes first. Records are
// reverse-chronological as scanned. Per-commit diff failures are recovered
// into warnings, never scan failures.
func (s *Scanner) Scan(ctx context.Context, maxCommits int) ([]schemas.CommitRecord, []string, error) {
	if maxCommits < 1 {
		return nil, nil, fmt.Errorf("maxCommits must be at least 1, got %d", maxCommits)
	}

	head, err := s.repo.Head()
	if err != nil {
		return nil, nil, &schemas.RepositoryError{Kind: schemas.RepoCorruptedHistory, Path: s.path, Err: err}
	}
	iter, err := s.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, nil, &schemas.RepositoryError{Kind: schemas.RepoCorruptedHistory, Path: s.path, Err: err}
	}
	defer iter.Close()

	var commits []*object.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		commits = append(commits, c)
		if len(commits) >= maxCommits {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, &schemas.RepositoryError{Kind: schemas.RepoCorruptedHistory, Path: s.path, Err: err}
	}

	records := make([]schemas.CommitRecord, len(commits))
	warnings := make([]string, len(commits))

	// Each diff retrieval is independent and writes only its own slot, so the
	// fan-out needs no locking.
	g, gctx := errgroup.WithContext(ctx)
	limit := s.Concurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for i, c := range commits {
		g.Go(func() error {
			records[i] = s.buildRecord(gctx, c, &warnings[i])
			return nil
		})
	}
	_ = g.Wait()

	var collected []string
	for _, w := range warnings {
		if w != "" {
			collected = append(collected, w)
		}
	}
	s.logger.Debug("history scan complete",
		zap.Int("commits", len(records)),
		zap.Int("warnings", len(collected)))
	return records, collected, nil
}

// buildRecord fills one commit record; diff failures degrade to an empty diff
// plus a warning in the caller-provided slot.
func (s *Scanner) buildRecord(ctx context.Context, c *object.Commit, warning *string) schemas.CommitRecord {
	rec := schemas.CommitRecord{
		Hash:      c.Hash.String(),
		Author:    strings.TrimSpace(c.Author.Name),
		Timestamp: c.Author.When,
		Message:   strings.TrimSpace(c.Message),
	}

	opCtx := ctx
	if s.OpTimeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, s.OpTimeout)
		defer cancel()
	}

	changes, err := s.commitChanges(opCtx, c)
	if err != nil {
		*warning = fmt.Sprintf("diff unavailable for commit %s: %v", shortHash(rec.Hash), err)
		return rec
	}

	for _, change := range changes {
		name := change.To.Name
		if name == "" {
			name = change.From.Name
		}
		if name == "" || s.excluded(name) {
			continue
		}
		rec.ChangedFiles = append(rec.ChangedFiles, name)
	}

	patch, err := changes.PatchContext(opCtx)
	if err != nil {
		*warning = fmt.Sprintf("patch unavailable for commit %s: %v", shortHash(rec.Hash), err)
		return rec
	}
	diff := patch.String()
	if s.MaxDiffBytes > 0 && len(diff) > s.MaxDiffBytes {
		diff = diff[:s.MaxDiffBytes] + truncationMarker
		rec.DiffTruncated = true
	}
	rec.Diff = diff
	return rec
}

// commitChanges diffs a commit against its first parent, or against the empty
// tree for a root commit.
func (s *Scanner) commitChanges(ctx context.Context, c *object.Commit) (object.Changes, error) {
	tree, err := c.Tree()
	if err != nil {
		return nil, err
	}
	var parentTree *object.Tree
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return nil, err
		}
		parentTree, err = parent.Tree()
		if err != nil {
			return nil, err
		}
	}
	return object.DiffTreeWithOptions(ctx, parentTree, tree, object.DefaultDiffTreeOptions)
}

func (s *Scanner) excluded(path string) bool {
	normalized := filepath.ToSlash(path)
	for _, pattern := range s.ExcludedPatterns {
		if ok, err := doublestar.Match(pattern, normalized); err == nil && ok {
			return true
		}
	}
	return false
}

// TotalCommits counts the commits reachable from HEAD.
func (s *Scanner) TotalCommits() (int, error) {
	head, err := s.repo.Head()
	if err != nil {
		return 0, err
	}
	iter, err := s.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	count := 0
	err = iter.ForEach(func(*object.Commit) error {
		count++
		return nil
	})
	return count, err
}

// Meta returns repository-level metadata for the bug context.
func (s *Scanner) Meta() schemas.RepositoryMeta {
	meta := schemas.RepositoryMeta{RootPath: s.path}
	head, err := s.repo.Head()
	if err != nil {
		return meta
	}
	meta.HeadHash = head.Hash().String()
	meta.DefaultBranch = head.Name().Short()
	if total, err := s.TotalCommits(); err == nil {
		meta.TotalCommits = total
	}
	return meta
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
