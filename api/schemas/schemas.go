// File: api/schemas/schemas.go

// Package schemas defines the shared data model exchanged between the
// analysis pipeline stages and the external explanation generator.
package schemas

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Completeness describes how much of the raw error text the trace parser was
// able to recover. Consumers switch on this instead of probing for missing
// fields.
type Completeness string

const (
	// CompletenessFull means a header and at least one call frame parsed.
	CompletenessFull Completeness = "full"
	// CompletenessPartial means some frames parsed but the trace was
	// malformed or truncated.
	CompletenessPartial Completeness = "partial"
	// CompletenessGeneric means nothing structured parsed; only the raw
	// message is available.
	CompletenessGeneric Completeness = "generic"
)

// ErrorKind is the normalized classification of a runtime error.
type ErrorKind string

const (
	KindTypeMismatch     ErrorKind = "type-mismatch"
	KindMissingAttribute ErrorKind = "missing-attribute"
	KindNotFound         ErrorKind = "not-found"
	KindValueError       ErrorKind = "invalid-value"
	KindImportError      ErrorKind = "import-error"
	KindIOError          ErrorKind = "io-error"
	KindTimeout          ErrorKind = "timeout"
	KindAssertion        ErrorKind = "assertion"
	KindRecursion        ErrorKind = "recursion"
	KindResource         ErrorKind = "resource-exhausted"
	KindSyntax           ErrorKind = "syntax"
	KindArithmetic       ErrorKind = "arithmetic"
	KindNetwork          ErrorKind = "network"
	KindPermission       ErrorKind = "permission"
	KindRuntime          ErrorKind = "runtime"
	KindUnknown          ErrorKind = "unknown"
)

// CallFrame is a single entry in a parsed stack trace. The referenced file
// may no longer exist on disk (renamed or deleted since the error occurred).
type CallFrame struct {
	FilePath     string `json:"file_path"`
	LineNumber   int    `json:"line_number"` // 1-based
	FunctionName string `json:"function_name"`
	CodeContext  string `json:"code_context,omitempty"` // best-effort source snippet
}

// ErrorDescription is the structured form of a raw error message plus
// traceback. Frames are ordered outermost first, matching the order they
// appear in a Python traceback; the innermost frame (closest to the failure)
// is the last element.
type ErrorDescription struct {
	Kind          ErrorKind         `json:"kind"`
	TypeName      string            `json:"type_name"` // original exception name, e.g. "AttributeError"
	Message       string            `json:"message"`
	Frames        []CallFrame       `json:"frames"`
	AffectedFiles []string          `json:"affected_files"` // union of frame paths, first-seen order
	Variables     map[string]string `json:"variables,omitempty"`
	Completeness  Completeness      `json:"completeness"`
	Raw           string            `json:"raw"`
}

// InnermostFrame returns the frame closest to the failure site, or nil when
// no frames parsed.
func (e *ErrorDescription) InnermostFrame() *CallFrame {
	if len(e.Frames) == 0 {
		return nil
	}
	return &e.Frames[len(e.Frames)-1]
}

// CommitRecord is one historical change scanned from the repository.
type CommitRecord struct {
	Hash          string    `json:"hash"`
	Author        string    `json:"author"`
	Timestamp     time.Time `json:"timestamp"`
	Message       string    `json:"message"`
	ChangedFiles  []string  `json:"changed_files"`
	Diff          string    `json:"diff"`
	DiffTruncated bool      `json:"diff_truncated"`
	// RelevanceScore is undefined until the ranker runs. The ranker always
	// assigns a finite value.
	RelevanceScore float64 `json:"relevance_score"`
}

// IntentKind tags the source of an extracted intent signal.
type IntentKind string

const (
	IntentDeclaredBehavior IntentKind = "declared-behavior"
	IntentTestExpectation  IntentKind = "test-expectation"
	IntentInlineRationale  IntentKind = "inline-rationale"
	IntentInferredPattern  IntentKind = "inferred-pattern"
)

// IntentRecord is one structured intent signal extracted from source or test
// code. Every record is attributable to exactly one file and one subject;
// a subject may accumulate several records (docstring plus test plus comment).
type IntentRecord struct {
	FilePath    string            `json:"file_path"`
	Kind        IntentKind        `json:"kind"`
	Subject     string            `json:"subject"` // function, symbol, or test name
	Description string            `json:"description"`
	Line        int               `json:"line,omitempty"`
	Parameters  map[string]string `json:"parameters,omitempty"`
	Returns     string            `json:"returns,omitempty"`
}

// RepositoryMeta carries repository-level facts attached to a BugContext.
type RepositoryMeta struct {
	RootPath      string `json:"root_path"`
	DefaultBranch string `json:"default_branch"`
	TotalCommits  int    `json:"total_commits"`
	HeadHash      string `json:"head_hash"`
}

// BugContext is the bounded evidence package handed to the explanation
// generator. Once assembled it is treated as an immutable snapshot.
type BugContext struct {
	Error      ErrorDescription          `json:"error"`
	Commits    []CommitRecord            `json:"commits"` // ranked, index 0 = most likely cause
	Intent     map[string][]IntentRecord `json:"intent"`  // file path -> records
	Repository RepositoryMeta            `json:"repository"`
	// CommitsTruncated is set when the ranked list was cut to the size bound.
	CommitsTruncated bool `json:"commits_truncated"`
	// Degraded is set when parts of the pipeline timed out or failed and the
	// context reflects only what completed.
	Degraded bool `json:"degraded"`
	// Warnings records per-file and per-commit failures recovered during
	// analysis so the final explanation can disclose reduced confidence.
	Warnings []string `json:"warnings,omitempty"`
}

// Fingerprint returns a short stable identifier for this context, used as the
// cache key for generated explanations. It covers the error identity and the
// ranked commit order, so any change in either produces a new key.
func (b *BugContext) Fingerprint() string {
	hashes := make([]string, len(b.Commits))
	for i, c := range b.Commits {
		hashes[i] = c.Hash
	}
	payload, _ := json.Marshal(struct {
		Kind    ErrorKind `json:"kind"`
		Message string    `json:"message"`
		Files   []string  `json:"files"`
		Commits []string  `json:"commits"`
	}{b.Error.Kind, b.Error.Message, b.Error.AffectedFiles, hashes})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:16]
}

// NoCandidateReason explains why selection produced no primary commit.
type NoCandidateReason string

const (
	ReasonInsufficientSignal   NoCandidateReason = "insufficient-signal"
	ReasonNoOverlappingCommits NoCandidateReason = "no-overlapping-commits"
	ReasonAmbiguousTie         NoCandidateReason = "ambiguous-tie"
)

// RootCauseResult is the outcome of root cause selection. Exactly one shape
// is populated: Primary with Confidence and Related, or Reason.
type RootCauseResult struct {
	Primary    *CommitRecord     `json:"primary,omitempty"`
	Confidence float64           `json:"confidence,omitempty"` // normalized to [0,1]
	Related    []CommitRecord    `json:"related,omitempty"`    // multi-file change group
	Reason     NoCandidateReason `json:"reason,omitempty"`
}

// Found reports whether a primary candidate was selected.
func (r *RootCauseResult) Found() bool { return r.Primary != nil }

// FixSuggestion is one actionable remediation proposed by the explainer.
type FixSuggestion struct {
	Description string `json:"description"`
	CodeExample string `json:"code_example,omitempty"`
	Rationale   string `json:"rationale,omitempty"`
	Difficulty  string `json:"difficulty,omitempty"` // easy, medium, hard
}

// Explanation is the structured output of the explanation generator, or of
// the local fallback when the generator is unavailable.
type Explanation struct {
	Summary          string          `json:"summary"`
	RootCause        string          `json:"root_cause,omitempty"`
	IntentVsActual   string          `json:"intent_vs_actual,omitempty"`
	CommitReferences []string        `json:"commit_references,omitempty"`
	FixSuggestions   []FixSuggestion `json:"fix_suggestions,omitempty"`
	EducationalNotes []string        `json:"educational_notes,omitempty"`
	// Generated is false for locally assembled fallback explanations.
	Generated bool `json:"generated"`
}

// AnalysisReport is the complete result of one pipeline run.
type AnalysisReport struct {
	ID          string                    `json:"id"`
	Error       ErrorDescription          `json:"error"`
	RootCause   RootCauseResult           `json:"root_cause"`
	Explanation *Explanation              `json:"explanation,omitempty"`
	Commits     []CommitRecord            `json:"commits"`
	Intent      map[string][]IntentRecord `json:"intent,omitempty"`
	Warnings    []string                  `json:"warnings,omitempty"`
	Degraded    bool                      `json:"degraded"`
	Elapsed     time.Duration             `json:"elapsed"`
}
