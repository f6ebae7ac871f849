// File: api/schemas/schemas_test.go

package schemas

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInnermostFrame(t *testing.T) {
	t.Parallel()

	var desc ErrorDescription
	assert.Nil(t, desc.InnermostFrame())

	desc.Frames = []CallFrame{
		{FilePath: "outer.py", LineNumber: 10},
		{FilePath: "inner.py", LineNumber: 3},
	}
	inner := desc.InnermostFrame()
	require.NotNil(t, inner)
	assert.Equal(t, "inner.py", inner.FilePath)
}

func TestFingerprintCoversErrorAndCommitOrder(t *testing.T) {
	t.Parallel()

	base := BugContext{
		Error: ErrorDescription{
			Kind:          KindTypeMismatch,
			Message:       "unsupported operand",
			AffectedFiles: []string{"calc.py"},
		},
		Commits: []CommitRecord{{Hash: "aaa"}, {Hash: "bbb"}},
	}

	same := base
	assert.Equal(t, base.Fingerprint(), same.Fingerprint())
	assert.Len(t, base.Fingerprint(), 16)

	changedMsg := base
	changedMsg.Error.Message = "different"
	assert.NotEqual(t, base.Fingerprint(), changedMsg.Fingerprint())

	reordered := base
	reordered.Commits = []CommitRecord{{Hash: "bbb"}, {Hash: "aaa"}}
	assert.NotEqual(t, base.Fingerprint(), reordered.Fingerprint())
}

func TestRootCauseResultFound(t *testing.T) {
	t.Parallel()

	var r RootCauseResult
	assert.False(t, r.Found())
	r.Primary = &CommitRecord{Hash: "abc"}
	assert.True(t, r.Found())
}

func TestErrorTypesUnwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("boom")

	repoErr := &RepositoryError{Kind: RepoNotARepository, Path: "/x", Err: inner}
	assert.ErrorIs(t, repoErr, inner)
	assert.Contains(t, repoErr.Error(), "not-a-repository")

	parseErr := &ParseError{FilePath: "a.py", Err: inner}
	assert.ErrorIs(t, parseErr, inner)

	svcErr := &ServiceError{Transient: true, Err: inner}
	assert.ErrorIs(t, svcErr, inner)
	assert.Contains(t, svcErr.Error(), "transient")

	resErr := &ResourceError{Subject: "big.py", Limit: 10, Actual: 20}
	assert.Contains(t, resErr.Error(), "big.py")
}
