// File: internal/trace/parser_test.go

package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hindsight/api/schemas"
)

const fullTraceback = `Traceback (most recent call last):
  File "app.py", line 42, in main
    user = load_user(user_id)
  File "services/user_service.py", line 18, in load_user
    return user.name
AttributeError: 'NoneType' object has no attribute 'name'`

func TestParseFullTraceback(t *testing.T) {
	t.Parallel()

	p := NewParser(zap.NewNop())
	desc, err := p.Parse(fullTraceback)
	require.NoError(t, err)

	assert.Equal(t, schemas.CompletenessFull, desc.Completeness)
	assert.Equal(t, schemas.KindMissingAttribute, desc.Kind)
	assert.Equal(t, "AttributeError", desc.TypeName)
	assert.Equal(t, "'NoneType' object has no attribute 'name'", desc.Message)

	require.Len(t, desc.Frames, 2)
	assert.Equal(t, "app.py", desc.Frames[0].FilePath)
	assert.Equal(t, 42, desc.Frames[0].LineNumber)
	assert.Equal(t, "main", desc.Frames[0].FunctionName)
	assert.Equal(t, "user = load_user(user_id)", desc.Frames[0].CodeContext)

	inner := desc.InnermostFrame()
	require.NotNil(t, inner)
	assert.Equal(t, "services/user_service.py", inner.FilePath)
	assert.Equal(t, 18, inner.LineNumber)

	assert.Equal(t, []string{"app.py", "services/user_service.py"}, desc.AffectedFiles)
}

func TestParseSingleLineError(t *testing.T) {
	t.Parallel()

	p := NewParser(zap.NewNop())
	desc, err := p.Parse("ValueError: invalid literal for int() with base 10: 'abc'")
	require.NoError(t, err)

	assert.Equal(t, schemas.CompletenessGeneric, desc.Completeness)
	assert.Equal(t, schemas.KindValueError, desc.Kind)
	assert.Equal(t, "ValueError", desc.TypeName)
	assert.Empty(t, desc.Frames)
}

func TestParseTruncatedTracebackSalvagesFrames(t *testing.T) {
	t.Parallel()

	raw := `Traceback (most recent call last):
  File "worker.py", line 7, in run
garbage line that matches nothing
KeyError: 'missing'`

	p := NewParser(zap.NewNop())
	desc, err := p.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, schemas.CompletenessPartial, desc.Completeness)
	assert.Equal(t, "KeyError", desc.TypeName)
	require.Len(t, desc.Frames, 1)
	assert.Equal(t, "worker.py", desc.Frames[0].FilePath)
}

func TestParseHeaderWithoutErrorLine(t *testing.T) {
	t.Parallel()

	raw := `Traceback (most recent call last):
  File "job.py", line 3, in start`

	p := NewParser(zap.NewNop())
	desc, err := p.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, schemas.CompletenessPartial, desc.Completeness)
	assert.Equal(t, schemas.KindUnknown, desc.Kind)
	require.Len(t, desc.Frames, 1)
}

func TestParseArbitraryTextNeverFails(t *testing.T) {
	t.Parallel()

	p := NewParser(zap.NewNop())
	desc, err := p.Parse("the job crashed around midnight, see handlers/cleanup.py for context")
	require.NoError(t, err)

	assert.Equal(t, schemas.CompletenessGeneric, desc.Completeness)
	assert.Equal(t, schemas.KindUnknown, desc.Kind)
	assert.Equal(t, []string{"handlers/cleanup.py"}, desc.AffectedFiles)
}

func TestParseEmptyInput(t *testing.T) {
	t.Parallel()

	p := NewParser(zap.NewNop())
	_, err := p.Parse("   \n  ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestParseDottedExceptionName(t *testing.T) {
	t.Parallel()

	p := NewParser(zap.NewNop())
	desc, err := p.Parse("requests.exceptions.ConnectionError: connection refused")
	require.NoError(t, err)

	assert.Equal(t, "requests.exceptions.ConnectionError", desc.TypeName)
	assert.Equal(t, "connection refused", desc.Message)
	assert.Equal(t, schemas.KindUnknown, desc.Kind)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		typeName string
		want     schemas.ErrorKind
	}{
		{"TypeError", schemas.KindTypeMismatch},
		{"AttributeError", schemas.KindMissingAttribute},
		{"KeyError", schemas.KindNotFound},
		{"TimeoutError", schemas.KindTimeout},
		{"ImportError", schemas.KindImportError},
		{"ZeroDivisionError", schemas.KindArithmetic},
		{"SomethingNovelError", schemas.KindUnknown},
		{"", schemas.KindUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Classify(tc.typeName), tc.typeName)
	}
}

func TestParseChainedTracebackUsesLastError(t *testing.T) {
	t.Parallel()

	raw := `Traceback (most recent call last):
  File "db.py", line 11, in connect
    raise TimeoutError("db unreachable")
TimeoutError: db unreachable`

	p := NewParser(zap.NewNop())
	desc, err := p.Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, schemas.KindTimeout, desc.Kind)
	assert.Equal(t, "db unreachable", desc.Message)
}
