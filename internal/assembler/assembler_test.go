// File: internal/assembler/assembler_test.go

package assembler

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hindsight/api/schemas"
)

func testError() *schemas.ErrorDescription {
	return &schemas.ErrorDescription{
		Kind:          schemas.KindMissingAttribute,
		TypeName:      "AttributeError",
		Message:       "'NoneType' object has no attribute 'name'",
		AffectedFiles: []string{"user_service.py"},
	}
}

func rankedCommits(n int) []schemas.CommitRecord {
	out := make([]schemas.CommitRecord, n)
	for i := range out {
		out[i] = schemas.CommitRecord{
			Hash:           fmt.Sprintf("%040x", i),
			ChangedFiles:   []string{"user_service.py"},
			RelevanceScore: float64(n - i),
		}
	}
	return out
}

func TestAssembleTruncatesCommits(t *testing.T) {
	t.Parallel()

	a := New(zap.NewNop())
	a.MaxCommits = 5

	ctx := a.Assemble(testError(), rankedCommits(8), nil, schemas.RepositoryMeta{}, nil, false)

	assert.Len(t, ctx.Commits, 5)
	assert.True(t, ctx.CommitsTruncated)
	// Top of the ranking survives the cut.
	assert.Equal(t, float64(8), ctx.Commits[0].RelevanceScore)
}

func TestAssembleNoTruncationFlagWhenUnderLimit(t *testing.T) {
	t.Parallel()

	a := New(zap.NewNop())
	ctx := a.Assemble(testError(), rankedCommits(3), nil, schemas.RepositoryMeta{}, nil, false)

	assert.Len(t, ctx.Commits, 3)
	assert.False(t, ctx.CommitsTruncated)
}

func TestAssembleRestrictsIntentToImplicatedFiles(t *testing.T) {
	t.Parallel()

	intent := map[string][]schemas.IntentRecord{
		"user_service.py": {{Subject: "get_user", Kind: schemas.IntentDeclaredBehavior}},
		"unrelated.py":    {{Subject: "helper", Kind: schemas.IntentDeclaredBehavior}},
		"empty.py":        {},
	}

	a := New(zap.NewNop())
	ctx := a.Assemble(testError(), rankedCommits(1), intent, schemas.RepositoryMeta{}, nil, false)

	require.Contains(t, ctx.Intent, "user_service.py")
	assert.NotContains(t, ctx.Intent, "unrelated.py")
	assert.NotContains(t, ctx.Intent, "empty.py")
}

func TestAssembleKeepsIntentForCommitTouchedFiles(t *testing.T) {
	t.Parallel()

	commits := []schemas.CommitRecord{{
		Hash:           "abc",
		ChangedFiles:   []string{"models.py"},
		RelevanceScore: 1,
	}}
	intent := map[string][]schemas.IntentRecord{
		"models.py": {{Subject: "User", Kind: schemas.IntentDeclaredBehavior}},
	}

	a := New(zap.NewNop())
	ctx := a.Assemble(testError(), commits, intent, schemas.RepositoryMeta{}, nil, false)

	assert.Contains(t, ctx.Intent, "models.py")
}

func TestAssembleCarriesWarningsAndDegraded(t *testing.T) {
	t.Parallel()

	a := New(zap.NewNop())
	ctx := a.Assemble(testError(), nil, nil, schemas.RepositoryMeta{HeadHash: "deadbeef"}, []string{"intent extraction timed out"}, true)

	assert.True(t, ctx.Degraded)
	assert.Equal(t, []string{"intent extraction timed out"}, ctx.Warnings)
	assert.Equal(t, "deadbeef", ctx.Repository.HeadHash)
}

func TestFingerprintStability(t *testing.T) {
	t.Parallel()

	a := New(zap.NewNop())
	first := a.Assemble(testError(), rankedCommits(3), nil, schemas.RepositoryMeta{}, nil, false)
	second := a.Assemble(testError(), rankedCommits(3), nil, schemas.RepositoryMeta{}, nil, false)

	assert.Equal(t, first.Fingerprint(), second.Fingerprint())
	assert.Len(t, first.Fingerprint(), 16)

	reordered := rankedCommits(3)
	reordered[0], reordered[1] = reordered[1], reordered[0]
	third := a.Assemble(testError(), reordered, nil, schemas.RepositoryMeta{}, nil, false)
	assert.NotEqual(t, first.Fingerprint(), third.Fingerprint())
}
