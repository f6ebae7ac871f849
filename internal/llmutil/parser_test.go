// File: internal/llmutil/parser_test.go

package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripCodeFence(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{"unfenced", "plain text", "plain text"},
		{"fenced", "```\nhello\n```", "hello"},
		{"fenced with language", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  ```\nbody\n```  ", "body"},
		{"internal fence untouched", "before ```x``` after", "before ```x``` after"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, StripCodeFence(tc.in))
		})
	}
}

func TestParseSections(t *testing.T) {
	t.Parallel()

	raw := "preamble ignored\nSUMMARY: short version\nwith a second line\n\nROOT_CAUSE:\nthe cause\nNOTES:\n- a\n- b"
	sections := ParseSections(raw, []string{"SUMMARY", "ROOT_CAUSE", "NOTES"})

	assert.Equal(t, "short version\nwith a second line", sections["SUMMARY"])
	assert.Equal(t, "the cause", sections["ROOT_CAUSE"])
	assert.Equal(t, "- a\n- b", sections["NOTES"])
}

func TestParseSectionsMissingKeys(t *testing.T) {
	t.Parallel()

	sections := ParseSections("no markers here", []string{"SUMMARY"})
	assert.Equal(t, "", sections["SUMMARY"])
	assert.False(t, HasContent(sections))
}

func TestParseBullets(t *testing.T) {
	t.Parallel()

	items := ParseBullets("- first\n\n-\n- second item\nplain trailing line")
	assert.Equal(t, []string{"first", "second item", "plain trailing line"}, items)
}
