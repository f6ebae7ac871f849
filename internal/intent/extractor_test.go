// File: internal/intent/extractor_test.go

package intent

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hindsight/api/schemas"
)

func writeSource(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func recordsOfKind(records []schemas.IntentRecord, kind schemas.IntentKind) []schemas.IntentRecord {
	var out []schemas.IntentRecord
	for _, r := range records {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

func TestExtractDeclaredBehavior(t *testing.T) {
	t.Parallel()

	src := `def load_user(user_id, session=None):
    """Load a user by its identifier.

    :param user_id: the primary key of the user
    :param session: optional database session
    :returns: the User instance or None
    """
    return None
`
	path := writeSource(t, "service.py", src)
	e := NewExtractor(zap.NewNop())

	records, err := e.Extract(context.Background(), path)
	require.NoError(t, err)

	declared := recordsOfKind(records, schemas.IntentDeclaredBehavior)
	require.Len(t, declared, 1)
	rec := declared[0]
	assert.Equal(t, "load_user", rec.Subject)
	assert.Equal(t, "Load a user by its identifier.", rec.Description)
	assert.Equal(t, "the primary key of the user", rec.Parameters["user_id"])
	assert.Equal(t, "optional database session", rec.Parameters["session"])
	assert.Equal(t, "the User instance or None", rec.Returns)
	assert.Equal(t, 1, rec.Line)
}

func TestExtractGoogleStyleParams(t *testing.T) {
	t.Parallel()

	src := `def fetch(url, timeout):
    """Fetch a resource.

    Args:
        url: the resource location
        timeout: seconds before giving up
    """
    pass
`
	path := writeSource(t, "fetch.py", src)
	e := NewExtractor(zap.NewNop())

	records, err := e.Extract(context.Background(), path)
	require.NoError(t, err)

	declared := recordsOfKind(records, schemas.IntentDeclaredBehavior)
	require.Len(t, declared, 1)
	assert.Equal(t, "the resource location", declared[0].Parameters["url"])
	assert.Equal(t, "seconds before giving up", declared[0].Parameters["timeout"])
}

func TestGoogleStyleArgsStopAtNextSection(t *testing.T) {
	t.Parallel()

	src := `def get_name(user):
    """Resolve a display name.

    Args:
        user: the account record

    Returns:
        str: The user's display name.

    Raises:
        KeyError: when the account has no profile.
    """
    return user.name
`
	path := writeSource(t, "names.py", src)
	e := NewExtractor(zap.NewNop())

	records, err := e.Extract(context.Background(), path)
	require.NoError(t, err)

	declared := recordsOfKind(records, schemas.IntentDeclaredBehavior)
	require.Len(t, declared, 1)
	params := declared[0].Parameters
	assert.Equal(t, "the account record", params["user"])
	assert.NotContains(t, params, "str")
	assert.NotContains(t, params, "KeyError")
}

func TestExtractTestExpectations(t *testing.T) {
	t.Parallel()

	src := `def test_load_user_returns_none_when_missing():
    result = load_user(42)
    assert result is None
`
	path := writeSource(t, "test_service.py", src)
	e := NewExtractor(zap.NewNop())

	records, err := e.Extract(context.Background(), path)
	require.NoError(t, err)

	tests := recordsOfKind(records, schemas.IntentTestExpectation)
	require.Len(t, tests, 1)
	assert.Equal(t, "load_user", tests[0].Subject)
	assert.Contains(t, tests[0].Description, "load user returns none when missing")
	assert.Contains(t, tests[0].Description, "result is None")
}

func TestTestPassSkippedForNonTestFiles(t *testing.T) {
	t.Parallel()

	src := `def test_helper():
    assert True
`
	path := writeSource(t, "helpers.py", src)
	e := NewExtractor(zap.NewNop())

	records, err := e.Extract(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, recordsOfKind(records, schemas.IntentTestExpectation))
}

func TestExtractInlineRationale(t *testing.T) {
	t.Parallel()

	src := `def process(items):
    # TODO: handle empty batches explicitly
    # retries are cheaper than partial writes
    return items
`
	path := writeSource(t, "worker.py", src)
	e := NewExtractor(zap.NewNop())

	records, err := e.Extract(context.Background(), path)
	require.NoError(t, err)

	rationale := recordsOfKind(records, schemas.IntentInlineRationale)
	require.Len(t, rationale, 2)
	assert.Equal(t, "process", rationale[0].Subject)
	assert.Contains(t, rationale[0].Description, "[todo]")
	assert.Equal(t, "retries are cheaper than partial writes", rationale[1].Description)
}

func TestModuleLevelCommentSubject(t *testing.T) {
	t.Parallel()

	src := `# module wiring happens at import time
VERSION = "1.0"
`
	path := writeSource(t, "config.py", src)
	e := NewExtractor(zap.NewNop())

	records, err := e.Extract(context.Background(), path)
	require.NoError(t, err)

	rationale := recordsOfKind(records, schemas.IntentInlineRationale)
	require.Len(t, rationale, 1)
	assert.Equal(t, moduleSubject, rationale[0].Subject)
}

func TestInferredPatterns(t *testing.T) {
	t.Parallel()

	src := `def resolve(user, retries=None):
    if user is None:
        return None
    if not isinstance(user, dict):
        raise TypeError("expected dict")
    for attempt in range(3):
        try:
            return lookup(user)
        except ConnectionError:
            continue
`
	path := writeSource(t, "resolver.py", src)
	e := NewExtractor(zap.NewNop())

	records, err := e.Extract(context.Background(), path)
	require.NoError(t, err)

	inferred := recordsOfKind(records, schemas.IntentInferredPattern)
	var descriptions []string
	for _, r := range inferred {
		assert.Equal(t, "resolve", r.Subject)
		descriptions = append(descriptions, r.Description)
	}
	assert.Contains(t, descriptions, "guard clause checking for None: user is None")
	assert.Contains(t, descriptions, "runtime type validation")
	assert.Contains(t, descriptions, "error handling for an expected failure mode")
	assert.Contains(t, descriptions, "retry loop for transient failures")
	assert.Contains(t, descriptions, `parameter "retries" anticipated to be absent (defaults to None)`)
}

func TestExtractMissingFile(t *testing.T) {
	t.Parallel()

	e := NewExtractor(zap.NewNop())
	_, err := e.Extract(context.Background(), filepath.Join(t.TempDir(), "absent.py"))

	var parseErr *schemas.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestExtractOversizedFile(t *testing.T) {
	t.Parallel()

	path := writeSource(t, "big.py", "x = 1\n")
	e := NewExtractor(zap.NewNop())
	e.MaxFileSize = 2

	_, err := e.Extract(context.Background(), path)

	var resErr *schemas.ResourceError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, int64(2), resErr.Limit)
}

func TestExtractSalvagesDamagedSource(t *testing.T) {
	t.Parallel()

	src := `def good():
    """Works fine."""
    return 1

def broken(:
`
	path := writeSource(t, "damaged.py", src)
	e := NewExtractor(zap.NewNop())

	records, err := e.Extract(context.Background(), path)
	require.NoError(t, err)
	declared := recordsOfKind(records, schemas.IntentDeclaredBehavior)
	require.NotEmpty(t, declared)
	assert.Equal(t, "good", declared[0].Subject)
}

func TestIsTestFile(t *testing.T) {
	t.Parallel()

	cases := []struct {
		path string
		want bool
	}{
		{"pkg/test_service.py", true},
		{"pkg/service_test.py", true},
		{"project/tests/conftest.py", true},
		{"pkg/service.py", false},
		{"pkg/latest_news.py", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, isTestFile(tc.path), tc.path)
	}
}
