// File: internal/trace/parser.go

// Package trace turns raw error text into a structured ErrorDescription.
// Parsing never fails the pipeline: on a total non-match it degrades to a
// generic description carrying only the raw message.
package trace

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"hindsight/api/schemas"
)

// ErrEmptyInput is the single invalid input: there is nothing to analyze.
var ErrEmptyInput = errors.New("error text is empty")

// Regex definitions for parsing Python traceback output.
var (
	tracebackHeaderRegex = regexp.MustCompile(`^Traceback \(most recent call last\):`)
	frameRegex           = regexp.MustCompile(`^\s*File "(.+?)", line (\d+), in (.+)$`)
	errorLineRegex       = regexp.MustCompile(`^(\w+(?:\.\w+)*(?:Error|Exception|Warning|Interrupt|Exit|Iteration))\s*:\s*(.*)$`)
	simpleErrorRegex     = regexp.MustCompile(`^(\w+(?:\.\w+)*)\s*:\s*(.+)$`)
	// fileRefRegex mines source file references out of unstructured messages.
	fileRefRegex = regexp.MustCompile(`["']?([\w./-]+\.py)["']?`)
)

// kindTable is the closed mapping from recognized exception names to
// normalized error kinds. Unlisted names map to KindUnknown.
var kindTable = map[string]schemas.ErrorKind{
	"TypeError":            schemas.KindTypeMismatch,
	"AttributeError":       schemas.KindMissingAttribute,
	"NameError":            schemas.KindNotFound,
	"KeyError":             schemas.KindNotFound,
	"IndexError":           schemas.KindNotFound,
	"FileNotFoundError":    schemas.KindNotFound,
	"ModuleNotFoundError":  schemas.KindImportError,
	"ImportError":          schemas.KindImportError,
	"ValueError":           schemas.KindValueError,
	"IOError":              schemas.KindIOError,
	"OSError":              schemas.KindIOError,
	"RuntimeError":         schemas.KindRuntime,
	"ZeroDivisionError":    schemas.KindArithmetic,
	"OverflowError":        schemas.KindArithmetic,
	"StopIteration":        schemas.KindRuntime,
	"RecursionError":       schemas.KindRecursion,
	"MemoryError":          schemas.KindResource,
	"SyntaxError":          schemas.KindSyntax,
	"IndentationError":     schemas.KindSyntax,
	"AssertionError":       schemas.KindAssertion,
	"TimeoutError":         schemas.KindTimeout,
	"ConnectionError":      schemas.KindNetwork,
	"ConnectionResetError": schemas.KindNetwork,
	"PermissionError":      schemas.KindPermission,
	"NotImplementedError":  schemas.KindRuntime,
}

// Classify maps an exception type name to its normalized kind.
func Classify(typeName string) schemas.ErrorKind {
	if kind, ok := kindTable[typeName]; ok {
		return kind
	}
	return schemas.KindUnknown
}

// Parser converts raw error text into ErrorDescription values.
type Parser struct {
	logger *zap.Logger
}

// NewParser creates a trace parser.
func NewParser(logger *zap.Logger) *Parser {
	return &Parser{logger: logger.Named("trace")}
}

// Parse interprets raw error text. A structured traceback yields a full
// description; salvaged frames from malformed text yield a partial one; text
// with no recognizable structure yields a generic one. Only empty input is an
// error.
func (p *Parser) Parse(raw string) (schemas.ErrorDescription, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return schemas.ErrorDescription{}, ErrEmptyInput
	}

	lines := strings.Split(trimmed, "\n")
	headerIdx := -1
	for i, line := range lines {
		if tracebackHeaderRegex.MatchString(strings.TrimSpace(line)) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return p.parseSimple(trimmed, lines), nil
	}

	desc := schemas.ErrorDescription{Raw: trimmed, Completeness: schemas.CompletenessFull}
	sawGarbage := false

	i := headerIdx + 1
	for i < len(lines) {
		line := lines[i]
		if m := frameRegex.FindStringSubmatch(line); m != nil {
			lineNo, _ := strconv.Atoi(m[2])
			frame := schemas.CallFrame{
				FilePath:     m[1],
				LineNumber:   lineNo,
				FunctionName: strings.TrimSpace(m[3]),
			}
			// The line after a frame header is usually the source snippet.
			if i+1 < len(lines) && !frameRegex.MatchString(lines[i+1]) &&
				!errorLineRegex.MatchString(strings.TrimSpace(lines[i+1])) {
				frame.CodeContext = strings.TrimSpace(lines[i+1])
				i++
			}
			desc.Frames = append(desc.Frames, frame)
			i++
			continue
		}

		stripped := strings.TrimSpace(line)
		if m := errorLineRegex.FindStringSubmatch(stripped); m != nil {
			desc.TypeName = m[1]
			desc.Message = strings.TrimSpace(m[2])
			break
		}
		if m := simpleErrorRegex.FindStringSubmatch(stripped); m != nil {
			desc.TypeName = m[1]
			desc.Message = strings.TrimSpace(m[2])
			break
		}
		if stripped != "" {
			sawGarbage = true
		}
		i++
	}

	// A truncated traceback may carry the error line at the very end.
	if desc.TypeName == "" {
		last := strings.TrimSpace(lines[len(lines)-1])
		if m := errorLineRegex.FindStringSubmatch(last); m != nil {
			desc.TypeName = m[1]
			desc.Message = strings.TrimSpace(m[2])
		} else if m := simpleErrorRegex.FindStringSubmatch(last); m != nil {
			desc.TypeName = m[1]
			desc.Message = strings.TrimSpace(m[2])
		}
	}

	if desc.TypeName == "" {
		desc.Message = trimmed
		desc.Completeness = schemas.CompletenessPartial
	} else if sawGarbage || len(desc.Frames) == 0 {
		desc.Completeness = schemas.CompletenessPartial
	}
	desc.Kind = Classify(desc.TypeName)
	desc.AffectedFiles = affectedFiles(desc.Frames)

	p.logger.Debug("parsed traceback",
		zap.String("type", desc.TypeName),
		zap.Int("frames", len(desc.Frames)),
		zap.String("completeness", string(desc.Completeness)))
	return desc, nil
}

// parseSimple handles error text without a traceback header: a bare
// "ErrKind: message" line, or arbitrary text.
func (p *Parser) parseSimple(raw string, lines []string) schemas.ErrorDescription {
	desc := schemas.ErrorDescription{
		Raw:          raw,
		Message:      raw,
		Kind:         schemas.KindUnknown,
		Completeness: schemas.CompletenessGeneric,
	}

	for _, line := range lines {
		stripped := strings.TrimSpace(line)
		m := errorLineRegex.FindStringSubmatch(stripped)
		if m == nil {
			m = simpleErrorRegex.FindStringSubmatch(stripped)
		}
		if m != nil {
			desc.TypeName = m[1]
			desc.Message = strings.TrimSpace(m[2])
			desc.Kind = Classify(desc.TypeName)
			break
		}
	}

	// Even an unstructured message may name source files worth scanning for.
	for _, m := range fileRefRegex.FindAllStringSubmatch(raw, -1) {
		desc.AffectedFiles = appendUnique(desc.AffectedFiles, m[1])
	}
	return desc
}

// affectedFiles is the deduplicated union of frame paths in first-seen order.
func affectedFiles(frames []schemas.CallFrame) []string {
	var files []string
	for _, f := range frames {
		files = appendUnique(files, f.FilePath)
	}
	return files
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}
