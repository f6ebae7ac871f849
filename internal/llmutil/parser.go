// Package llmutil contains helpers for parsing model responses, which arrive
// as loosely formatted text and must be normalized before structured use.
package llmutil

import (
	"regexp"
	"strings"
)

// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.
var codeBlockRegex = regexp.MustCompile("(?s)^\x60\x60\x60[a-zA-Z]*\\s*(.*?)\\s*\x60\x60\x60$")

// StripCodeFence unwraps a response the model wrapped in a markdown code
// block. Unfenced input is returned trimmed and otherwise untouched.
func StripCodeFence(response string) string {
	response = strings.TrimSpace(response)
	if m := codeBlockRegex.FindStringSubmatch(response); len(m) > 1 {
		return m[1]
	}
	return response
}

// ParseSections splits a response into the requested "KEY: value" sections.
// A section runs until the next recognized key. Keys that never appear map to
// the empty string. Content before the first key is discarded.
func ParseSections(raw string, keys []string) map[string]string {
	sections := make(map[string]string, len(keys))
	for _, k := range keys {
		sections[k] = ""
	}

	var current string
	var buf []string
	flush := func() {
		if current != "" {
			sections[current] = strings.TrimSpace(strings.Join(buf, "\n"))
		}
	}

	for _, line := range strings.Split(raw, "\n") {
		stripped := strings.TrimSpace(line)
		matched := false
		for _, key := range keys {
			if rest, ok := strings.CutPrefix(stripped, key+":"); ok {
				flush()
				current = key
				buf = buf[:0]
				if rest = strings.TrimSpace(rest); rest != "" {
					buf = append(buf, rest)
				}
				matched = true
				break
			}
		}
		if !matched && current != "" {
			buf = append(buf, line)
		}
	}
	flush()
	return sections
}

// ParseBullets extracts the items of a "- item" list, ignoring blank lines
// and bare dashes.
func ParseBullets(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" || stripped == "-" {
			continue
		}
		stripped = strings.TrimSpace(strings.TrimPrefix(stripped, "- "))
		if stripped != "" {
			items = append(items, stripped)
		}
	}
	return items
}

// HasContent reports whether any parsed section is non-empty.
func HasContent(sections map[string]string) bool {
	for _, v := range sections {
		if v != "" {
			return true
		}
	}
	return false
}
