// File: internal/explainer/explainer_test.go

package explainer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hindsight/api/schemas"
	"hindsight/internal/config"
)

// fakeClient scripts one response or error per Generate call.
type fakeClient struct {
	responses []string
	errs      []error
	calls     int
}

func (f *fakeClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", &schemas.ServiceError{Transient: true, Err: errors.New("exhausted")}
}

func (f *fakeClient) Close() error { return nil }

func testBugContext() *schemas.BugContext {
	return &schemas.BugContext{
		Error: schemas.ErrorDescription{
			Kind:          schemas.KindMissingAttribute,
			TypeName:      "AttributeError",
			Message:       "'NoneType' object has no attribute 'name'",
			AffectedFiles: []string{"user_service.py"},
			Frames: []schemas.CallFrame{
				{FilePath: "user_service.py", LineNumber: 18, FunctionName: "get_user_name"},
			},
		},
		Commits: []schemas.CommitRecord{
			{
				Hash:           "abc1234",
				Author:         "dev@example.com",
				Timestamp:      time.Date(2026, 7, 20, 10, 0, 0, 0, time.UTC),
				Message:        "simplify user lookup",
				ChangedFiles:   []string{"user_service.py"},
				Diff:           "-    if user is None:\n-        return None\n",
				RelevanceScore: 21.5,
			},
		},
		Intent: map[string][]schemas.IntentRecord{
			"user_service.py": {{
				Kind:        schemas.IntentDeclaredBehavior,
				Subject:     "get_user_name",
				Description: "Return the user's name or None when missing.",
			}},
		},
	}
}

func newTestExplainer(client schemas.LLMClient) *Explainer {
	cfg := config.NewDefaultConfig().LLM
	cfg.MaxRetries = 2
	cfg.BackoffBase = time.Millisecond
	e := New(client, cfg, zap.NewNop())
	e.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return e
}

const structuredResponse = `SUMMARY: The lookup dereferences a missing user.

ROOT_CAUSE: Commit abc1234 removed the None guard.

INTENT_VS_ACTUAL: The docstring promises None handling; the code no longer has it.

FIX_SUGGESTIONS:
DESCRIPTION: Restore the None guard
CODE: if user is None:
    return None
RATIONALE: Callers rely on the documented contract
DIFFICULTY: easy

EDUCATIONAL_NOTES:
- Guard clauses are part of the contract
- Tests should cover the missing-user path`

func TestExplainParsesStructuredResponse(t *testing.T) {
	t.Parallel()

	client := &fakeClient{responses: []string{structuredResponse}}
	expl := newTestExplainer(client).Explain(context.Background(), testBugContext())

	assert.True(t, expl.Generated)
	assert.Equal(t, "The lookup dereferences a missing user.", expl.Summary)
	assert.Contains(t, expl.RootCause, "abc1234")
	assert.Contains(t, expl.IntentVsActual, "docstring")
	require.Len(t, expl.FixSuggestions, 1)
	fix := expl.FixSuggestions[0]
	assert.Equal(t, "Restore the None guard", fix.Description)
	assert.Contains(t, fix.CodeExample, "if user is None:")
	assert.Equal(t, "easy", fix.Difficulty)
	assert.Len(t, expl.EducationalNotes, 2)
	require.Len(t, expl.CommitReferences, 1)
	assert.Equal(t, "abc1234: simplify user lookup", expl.CommitReferences[0])
}

func TestExplainUnstructuredResponseBecomesSummary(t *testing.T) {
	t.Parallel()

	client := &fakeClient{responses: []string{"just prose, no markers"}}
	expl := newTestExplainer(client).Explain(context.Background(), testBugContext())

	assert.True(t, expl.Generated)
	assert.Equal(t, "just prose, no markers", expl.Summary)
}

func TestExplainRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		errs:      []error{&schemas.ServiceError{Transient: true, Err: errors.New("429")}, nil},
		responses: []string{"", structuredResponse},
	}
	expl := newTestExplainer(client).Explain(context.Background(), testBugContext())

	assert.True(t, expl.Generated)
	assert.Equal(t, 2, client.calls)
}

func TestExplainPermanentFailureNoRetry(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		errs: []error{&schemas.ServiceError{Transient: false, Err: errors.New("401")}},
	}
	expl := newTestExplainer(client).Explain(context.Background(), testBugContext())

	assert.False(t, expl.Generated)
	assert.Equal(t, 1, client.calls)
}

func TestExplainGivesUpAfterMaxRetries(t *testing.T) {
	t.Parallel()

	transient := &schemas.ServiceError{Transient: true, Err: errors.New("503")}
	client := &fakeClient{errs: []error{transient, transient, transient}}
	expl := newTestExplainer(client).Explain(context.Background(), testBugContext())

	assert.False(t, expl.Generated)
	assert.Equal(t, 3, client.calls) // initial attempt + MaxRetries
	assert.Contains(t, expl.Summary, "AttributeError")
	assert.Contains(t, expl.RootCause, "abc1234")
}

func TestExplainNilClientUsesFallback(t *testing.T) {
	t.Parallel()

	expl := newTestExplainer(nil).Explain(context.Background(), testBugContext())

	assert.False(t, expl.Generated)
	assert.Contains(t, expl.Summary, "'NoneType' object has no attribute 'name'")
	assert.NotEmpty(t, expl.EducationalNotes)
}

func TestBuildPromptContents(t *testing.T) {
	t.Parallel()

	prompt := buildPrompt(testBugContext())

	assert.Contains(t, prompt, "AttributeError")
	assert.Contains(t, prompt, `File "user_service.py", line 18, in get_user_name`)
	assert.Contains(t, prompt, "### Commit abc1234 (score: 21.50)")
	assert.Contains(t, prompt, "get_user_name")
	assert.Contains(t, prompt, "SUMMARY:")
	assert.Contains(t, prompt, "EDUCATIONAL_NOTES:")
}

func TestBuildPromptEmptyContext(t *testing.T) {
	t.Parallel()

	prompt := buildPrompt(&schemas.BugContext{})

	assert.Contains(t, prompt, "(no stack trace available)")
	assert.Contains(t, prompt, "(no relevant commits found)")
	assert.Contains(t, prompt, "(no intent signals found)")
}

func TestParseFixSuggestionsBulletList(t *testing.T) {
	t.Parallel()

	fixes := ParseFixSuggestions("- add a guard\n- write a regression test")

	require.Len(t, fixes, 2)
	assert.Equal(t, "add a guard", fixes[0].Description)
	assert.Empty(t, fixes[0].Difficulty)
}

func TestParseFixSuggestionsMultipleStructured(t *testing.T) {
	t.Parallel()

	text := `DESCRIPTION: first fix
CODE: x = 1
DIFFICULTY: hard
DESCRIPTION: second fix
RATIONALE: because`

	fixes := ParseFixSuggestions(text)

	require.Len(t, fixes, 2)
	assert.Equal(t, "hard", fixes[0].Difficulty)
	assert.Equal(t, "x = 1", fixes[0].CodeExample)
	assert.Equal(t, "second fix", fixes[1].Description)
	assert.Equal(t, "because", fixes[1].Rationale)
	assert.Equal(t, "medium", fixes[1].Difficulty)
}
