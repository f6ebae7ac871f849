// File: internal/explainer/suggestions.go

package explainer

import (
	"strings"

	"hindsight/api/schemas"
	"hindsight/internal/llmutil"
)

// ParseFixSuggestions parses the FIX_SUGGESTIONS block. Two shapes are
// accepted: structured DESCRIPTION/CODE/RATIONALE/DIFFICULTY groups, or a
// plain bullet list where each bullet is a bare description.
func ParseFixSuggestions(text string) []schemas.FixSuggestion {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if !strings.Contains(text, "DESCRIPTION:") {
		var out []schemas.FixSuggestion
		for _, item := range llmutil.ParseBullets(text) {
			out = append(out, schemas.FixSuggestion{Description: item})
		}
		return out
	}

	var suggestions []schemas.FixSuggestion
	var current *schemas.FixSuggestion
	var codeLines []string
	inCode := false

	flush := func() {
		if current == nil {
			return
		}
		current.CodeExample = strings.TrimSpace(strings.Join(codeLines, "\n"))
		if current.Difficulty == "" {
			current.Difficulty = "medium"
		}
		suggestions = append(suggestions, *current)
	}

	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(stripped, "DESCRIPTION:"):
			flush()
			current = &schemas.FixSuggestion{
				Description: strings.TrimSpace(strings.TrimPrefix(stripped, "DESCRIPTION:")),
			}
			codeLines = nil
			inCode = false
		case current == nil:
			// Text before the first DESCRIPTION marker carries nothing usable.
		case strings.HasPrefix(stripped, "CODE:"):
			codeLines = nil
			if rest := strings.TrimSpace(strings.TrimPrefix(stripped, "CODE:")); rest != "" {
				codeLines = append(codeLines, rest)
			}
			inCode = true
		case strings.HasPrefix(stripped, "RATIONALE:"):
			current.Rationale = strings.TrimSpace(strings.TrimPrefix(stripped, "RATIONALE:"))
			inCode = false
		case strings.HasPrefix(stripped, "DIFFICULTY:"):
			current.Difficulty = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(stripped, "DIFFICULTY:")))
			inCode = false
		case inCode:
			codeLines = append(codeLines, line)
		}
	}
	flush()
	return suggestions
}
