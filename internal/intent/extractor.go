// File: internal/intent/extractor.go

// Package intent statically analyzes Python source and test files, emitting
// structured records of what the author intended the code to do. Four
// independent passes contribute records; a failure in one pass never blocks
// the others.
package intent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
	"go.uber.org/zap"

	"hindsight/api/schemas"
)

// moduleSubject attributes file-level records that have no enclosing function.
const moduleSubject = "(module)"

var (
	sphinxParamRegex  = regexp.MustCompile(`(?m)^\s*:param\s+(\w+):\s*(.+)$`)
	googleParamRegex  = regexp.MustCompile(`(?m)^\s{2,}(\w+)\s*(?:\([^)]*\))?\s*:\s*(.+)$`)
	returnsRegex      = regexp.MustCompile(`(?m)(?::returns?:\s*(.+)$)|(?:Returns?:\s*\n\s+(.+)$)`)
	testNameSeparator = []string{"_returns", "_raises", "_when", "_should", "_with", "_handles", "_on"}
)

// Extractor parses source files with tree-sitter and runs the intent passes.
type Extractor struct {
	logger *zap.Logger

	// MaxFileSize bounds the files considered; larger files are skipped with
	// a ResourceError. Zero disables the bound.
	MaxFileSize int64
	// ExcludedPatterns are doublestar globs; matching files are skipped.
	ExcludedPatterns []string
}

// NewExtractor creates an intent extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger.Named("intent")}
}

// Extract analyzes one file and returns all intent records found. Errors are
// recoverable per-file conditions (unreadable, oversized, unparseable); the
// caller logs them and continues with partial intent.
func (e *Extractor) Extract(ctx context.Context, filePath string) ([]schemas.IntentRecord, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, &schemas.ParseError{FilePath: filePath, Err: err}
	}
	if e.MaxFileSize > 0 && info.Size() > e.MaxFileSize {
		return nil, &schemas.ResourceError{Subject: filePath, Limit: e.MaxFileSize, Actual: info.Size()}
	}

	source, err := os.ReadFile(filePath)
	if err != nil {
		return nil, &schemas.ParseError{FilePath: filePath, Err: err}
	}

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil || tree == nil {
		return nil, &schemas.ParseError{FilePath: filePath, Err: fmt.Errorf("tree-sitter parse failed: %w", err)}
	}
	defer tree.Close()
	root := tree.RootNode()

	var records []schemas.IntentRecord
	records = append(records, e.declaredBehavior(root, source, filePath)...)
	if isTestFile(filePath) {
		records = append(records, e.testExpectations(root, source, filePath)...)
	}
	records = append(records, e.inlineRationale(root, source, filePath)...)
	records = append(records, e.inferredPatterns(root, source, filePath)...)

	// Tree-sitter recovers around syntax errors, so a damaged file still
	// yields partial records. Report the damage so the caller can record a
	// warning alongside whatever was salvaged.
	if root.HasError() && len(records) == 0 {
		return nil, &schemas.ParseError{FilePath: filePath, Err: fmt.Errorf("source is not valid Python")}
	}

	e.logger.Debug("intent extraction complete",
		zap.String("file", filePath),
		zap.Int("records", len(records)),
		zap.Bool("partial", root.HasError()))
	return records, nil
}

// declaredBehavior extracts docstring-documented functions: the behavior
// summary, per-parameter notes, and the return description.
func (e *Extractor) declaredBehavior(root *sitter.Node, source []byte, filePath string) []schemas.IntentRecord {
	var records []schemas.IntentRecord
	walk(root, func(n *sitter.Node) {
		if n.Type() != "function_definition" && n.Type() != "class_definition" {
			return
		}
		name := fieldContent(n, "name", source)
		doc := docstring(n, source)
		if name == "" || doc == "" {
			return
		}

		rec := schemas.IntentRecord{
			FilePath:    filePath,
			Kind:        schemas.IntentDeclaredBehavior,
			Subject:     name,
			Description: firstLine(doc),
			Line:        int(n.StartPoint().Row) + 1,
		}

		params := map[string]string{}
		for _, m := range sphinxParamRegex.FindAllStringSubmatch(doc, -1) {
			params[m[1]] = strings.TrimSpace(m[2])
		}
		if len(params) == 0 {
			// Google/NumPy style only counts inside an Args/Parameters block.
			if block := argsBlock(doc); block != "" {
				for _, m := range googleParamRegex.FindAllStringSubmatch(block, -1) {
					params[m[1]] = strings.TrimSpace(m[2])
				}
			}
		}
		if len(params) > 0 {
			rec.Parameters = params
		}
		if m := returnsRegex.FindStringSubmatch(doc); m != nil {
			if m[1] != "" {
				rec.Returns = strings.TrimSpace(m[1])
			} else {
				rec.Returns = strings.TrimSpace(m[2])
			}
		}
		records = append(records, rec)
	})
	return records
}

// testExpectations extracts, per test function, the subject under test and a
// paraphrase of the expected behavior.
func (e *Extractor) testExpectations(root *sitter.Node, source []byte, filePath string) []schemas.IntentRecord {
	var records []schemas.IntentRecord
	walk(root, func(n *sitter.Node) {
		if n.Type() != "function_definition" {
			return
		}
		name := fieldContent(n, "name", source)
		if !strings.HasPrefix(name, "test_") {
			return
		}

		behavior := firstLine(docstring(n, source))
		if behavior == "" {
			behavior = testNameToBehavior(name)
		}
		if asserted := assertedConditions(n, source); len(asserted) > 0 {
			behavior += " (asserts: " + strings.Join(asserted, "; ") + ")"
		}

		records = append(records, schemas.IntentRecord{
			FilePath:    filePath,
			Kind:        schemas.IntentTestExpectation,
			Subject:     subjectUnderTest(name),
			Description: behavior,
			Line:        int(n.StartPoint().Row) + 1,
		})
	})
	return records
}

// inlineRationale extracts comments, classified by their leading marker, and
// attributes each to the nearest enclosing function.
func (e *Extractor) inlineRationale(root *sitter.Node, source []byte, filePath string) []schemas.IntentRecord {
	var records []schemas.IntentRecord
	walk(root, func(n *sitter.Node) {
		if n.Type() != "comment" {
			return
		}
		text := strings.TrimSpace(strings.TrimLeft(n.Content(source), "# "))
		if text == "" || strings.HasPrefix(text, "!") || strings.HasPrefix(text, "-*-") {
			return
		}

		marker := commentMarker(text)
		records = append(records, schemas.IntentRecord{
			FilePath:    filePath,
			Kind:        schemas.IntentInlineRationale,
			Subject:     enclosingFunction(n, source),
			Description: marker + text,
			Line:        int(n.StartPoint().Row) + 1,
		})
	})
	return records
}

// inferredPatterns heuristically recognizes intent from code shape. This pass
// never errors; ambiguous constructs emit nothing rather than low-confidence
// noise.
func (e *Extractor) inferredPatterns(root *sitter.Node, source []byte, filePath string) []schemas.IntentRecord {
	var records []schemas.IntentRecord
	emit := func(n *sitter.Node, desc string) {
		records = append(records, schemas.IntentRecord{
			FilePath:    filePath,
			Kind:        schemas.IntentInferredPattern,
			Subject:     enclosingFunction(n, source),
			Description: desc,
			Line:        int(n.StartPoint().Row) + 1,
		})
	}

	walk(root, func(n *sitter.Node) {
		switch n.Type() {
		case "if_statement":
			if desc := guardClause(n, source); desc != "" {
				emit(n, desc)
			}
		case "try_statement":
			emit(n, "error handling for an expected failure mode")
		case "assert_statement":
			emit(n, "asserts invariant: "+compact(n.Content(source), 80))
		case "call":
			if fn := n.ChildByFieldName("function"); fn != nil && fn.Content(source) == "isinstance" {
				emit(n, "runtime type validation")
			}
		case "for_statement", "while_statement":
			if containsType(n, "try_statement") {
				emit(n, "retry loop for transient failures")
			}
		case "default_parameter", "typed_default_parameter":
			if val := n.ChildByFieldName("value"); val != nil && val.Type() == "none" {
				name := fieldContent(n, "name", source)
				if name != "" {
					emit(n, fmt.Sprintf("parameter %q anticipated to be absent (defaults to None)", name))
				}
			}
		}
	})
	return records
}

// guardClause recognizes early return/raise on a None or falsy check.
func guardClause(n *sitter.Node, source []byte) string {
	cond := n.ChildByFieldName("condition")
	body := n.ChildByFieldName("consequence")
	if cond == nil || body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "return_statement" && first.Type() != "raise_statement" {
		return ""
	}

	condText := cond.Content(source)
	switch {
	case cond.Type() == "comparison_operator" && strings.Contains(condText, " is None"):
		return "guard clause checking for None: " + compact(condText, 60)
	case cond.Type() == "not_operator":
		return "guard clause for falsy value: " + compact(condText, 60)
	}
	return ""
}

// assertedConditions collects up to three assertion expressions from a test
// body, compacted for readability.
func assertedConditions(fn *sitter.Node, source []byte) []string {
	var out []string
	walk(fn, func(n *sitter.Node) {
		if len(out) >= 3 {
			return
		}
		switch n.Type() {
		case "assert_statement":
			out = append(out, compact(strings.TrimPrefix(n.Content(source), "assert "), 60))
		case "call":
			callee := fieldContent(n, "function", source)
			// unittest-style self.assertEqual(...), pytest.raises(...)
			if strings.Contains(callee, "assert") || strings.HasSuffix(callee, ".raises") {
				out = append(out, compact(n.Content(source), 60))
			}
		}
	})
	return out
}

// --- tree helpers ---

func walk(n *sitter.Node, fn func(*sitter.Node)) {
	if n == nil {
		return
	}
	fn(n)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		walk(n.NamedChild(i), fn)
	}
}

func fieldContent(n *sitter.Node, field string, source []byte) string {
	child := n.ChildByFieldName(field)
	if child == nil {
		return ""
	}
	return child.Content(source)
}

// docstring returns the unquoted leading string literal of a function or
// class body, or "".
func docstring(def *sitter.Node, source []byte) string {
	body := def.ChildByFieldName("body")
	if body == nil || body.NamedChildCount() == 0 {
		return ""
	}
	first := body.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return ""
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return ""
	}
	return unquote(str.Content(source))
}

func containsType(n *sitter.Node, nodeType string) bool {
	found := false
	walk(n, func(c *sitter.Node) {
		if c != n && c.Type() == nodeType {
			found = true
		}
	})
	return found
}

// enclosingFunction walks ancestors to the nearest function definition name.
func enclosingFunction(n *sitter.Node, source []byte) string {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Type() == "function_definition" {
			if name := fieldContent(p, "name", source); name != "" {
				return name
			}
		}
	}
	return moduleSubject
}

// --- text helpers ---

func unquote(s string) string {
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return strings.TrimSpace(s[len(q) : len(s)-len(q)])
		}
	}
	return strings.TrimSpace(s)
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

// argsBlock returns the text of an Args:/Parameters: section, cropped at the
// next section heading so Returns/Raises body lines do not read as
// parameters.
func argsBlock(doc string) string {
	for _, heading := range []string{"Args:", "Arguments:", "Parameters:"} {
		idx := strings.Index(doc, heading)
		if idx < 0 {
			continue
		}
		block := doc[idx+len(heading):]
		for _, next := range []string{"Returns:", "Yields:", "Raises:", "Attributes:", "Examples:", "Notes:"} {
			if end := strings.Index(block, next); end >= 0 {
				block = block[:end]
			}
		}
		return block
	}
	return ""
}

func commentMarker(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.HasPrefix(lower, "todo"):
		return "[todo] "
	case strings.HasPrefix(lower, "fixme"), strings.HasPrefix(lower, "fix me"):
		return "[fixme] "
	case strings.HasPrefix(lower, "note"):
		return "[note] "
	case strings.HasPrefix(lower, "hack"), strings.HasPrefix(lower, "workaround"):
		return "[workaround] "
	}
	return ""
}

// testNameToBehavior converts test_user_returns_none to "user returns none".
func testNameToBehavior(name string) string {
	return strings.Join(strings.Split(strings.TrimPrefix(name, "test_"), "_"), " ")
}

// subjectUnderTest derives the tested symbol from a test name, cutting at the
// first verb-like separator: test_load_user_returns_none -> load_user.
func subjectUnderTest(name string) string {
	remainder := strings.TrimPrefix(name, "test_")
	for _, sep := range testNameSeparator {
		if idx := strings.Index(remainder, sep); idx > 0 {
			return remainder[:idx]
		}
	}
	return remainder
}

func compact(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// isTestFile recognizes test files by naming convention or location.
func isTestFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.py") {
		return true
	}
	dir := filepath.ToSlash(filepath.Dir(path))
	return strings.HasSuffix(dir, "/tests") || strings.Contains(dir, "/tests/")
}
