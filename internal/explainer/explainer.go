// File: internal/explainer/explainer.go

// Package explainer turns an assembled bug context into a human-readable
// explanation. A configured model client generates the explanation text;
// when the client is missing or every attempt fails the explainer falls back
// to a locally assembled summary, so the analysis is never blocked on the
// external service.
package explainer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"hindsight/api/schemas"
	"hindsight/internal/config"
	"hindsight/internal/llmutil"
)

const systemPrompt = `You are a debugging assistant that explains why bugs happen.
Given error information, git history, and developer intent signals, provide:
1. A clear summary of what went wrong
2. The root cause, referencing specific commits
3. How the developer's intent differs from actual behavior
4. Concrete fix suggestions with code examples
5. Educational notes to help the developer learn

Be concise, specific, and reference actual code/commits. Format your response as structured sections.`

const (
	sectionSummary     = "SUMMARY"
	sectionRootCause   = "ROOT_CAUSE"
	sectionIntent      = "INTENT_VS_ACTUAL"
	sectionFixes       = "FIX_SUGGESTIONS"
	sectionEducational = "EDUCATIONAL_NOTES"
)

var responseSections = []string{
	sectionSummary, sectionRootCause, sectionIntent, sectionFixes, sectionEducational,
}

// promptCommitLimit bounds how many ranked commits the prompt carries; the
// diff of each is further capped to keep the payload within model limits.
const (
	promptCommitLimit   = 10
	promptDiffByteLimit = 2000
	promptIntentPerFile = 5
)

// Explainer drives generation with a bounded retry policy: transient
// failures retry with exponential backoff up to MaxRetries, permanent
// failures give up immediately.
type Explainer struct {
	client schemas.LLMClient // nil means fallback-only operation
	cfg    config.LLMConfig
	logger *zap.Logger

	// sleep is injectable so backoff timing is testable.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an explainer. A nil client is valid and yields local fallback
// explanations only.
func New(client schemas.LLMClient, cfg config.LLMConfig, logger *zap.Logger) *Explainer {
	return &Explainer{
		client: client,
		cfg:    cfg,
		logger: logger.Named("explainer"),
		sleep:  sleepCtx,
	}
}

// Explain generates an explanation for the bug context. It never returns an
// error: on generator failure the local fallback is returned with
// Generated=false.
func (e *Explainer) Explain(ctx context.Context, bug *schemas.BugContext) *schemas.Explanation {
	if e.client == nil {
		return e.fallback(bug, "explanation generator not configured")
	}

	raw, err := e.generateWithRetry(ctx, buildPrompt(bug))
	if err != nil {
		e.logger.Warn("explanation generation failed, using local fallback", zap.Error(err))
		return e.fallback(bug, fmt.Sprintf("explanation generator unavailable: %v", err))
	}
	return e.parseResponse(raw, bug)
}

// generateWithRetry is the retry state machine: attempt, wait backoff(n),
// attempt again, giving up after MaxRetries additional tries or on the first
// permanent error.
func (e *Explainer) generateWithRetry(ctx context.Context, prompt string) (string, error) {
	req := schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   prompt,
		Tier:         schemas.TierPowerful,
		Options:      schemas.GenerationOptions{Temperature: 0.2},
	}

	var lastErr error
	attempts := e.cfg.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			backoff := e.cfg.BackoffBase << (attempt - 1)
			e.logger.Debug("retrying generation",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff))
			if err := e.sleep(ctx, backoff); err != nil {
				return "", err
			}
		}

		raw, err := e.client.Generate(ctx, req)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		var svcErr *schemas.ServiceError
		if errors.As(err, &svcErr) && !svcErr.Transient {
			return "", err
		}
	}
	return "", fmt.Errorf("all %d attempts failed: %w", attempts, lastErr)
}

// parseResponse extracts the structured sections. A response with no
// recognizable markers becomes the summary verbatim rather than being
// discarded.
func (e *Explainer) parseResponse(raw string, bug *schemas.BugContext) *schemas.Explanation {
	raw = llmutil.StripCodeFence(raw)
	sections := llmutil.ParseSections(raw, responseSections)
	if !llmutil.HasContent(sections) {
		return &schemas.Explanation{
			Summary:          strings.TrimSpace(raw),
			CommitReferences: commitReferences(bug),
			Generated:        true,
		}
	}

	return &schemas.Explanation{
		Summary:          sections[sectionSummary],
		RootCause:        sections[sectionRootCause],
		IntentVsActual:   sections[sectionIntent],
		CommitReferences: commitReferences(bug),
		FixSuggestions:   ParseFixSuggestions(sections[sectionFixes]),
		EducationalNotes: llmutil.ParseBullets(sections[sectionEducational]),
		Generated:        true,
	}
}

// fallback assembles an explanation from local signal only.
func (e *Explainer) fallback(bug *schemas.BugContext, limitation string) *schemas.Explanation {
	summary := fmt.Sprintf("Error: %s: %s", bug.Error.TypeName, bug.Error.Message)
	if bug.Error.TypeName == "" {
		summary = "Error: " + bug.Error.Message
	}

	var rootCause string
	if len(bug.Commits) > 0 && bug.Commits[0].RelevanceScore > 0 {
		top := bug.Commits[0]
		rootCause = fmt.Sprintf("Most likely related to commit %s: %s (by %s, relevance: %.2f)",
			top.Hash, firstMessageLine(top.Message), top.Author, top.RelevanceScore)
	}

	return &schemas.Explanation{
		Summary:          summary,
		RootCause:        rootCause,
		CommitReferences: commitReferences(bug),
		EducationalNotes: []string{limitation, "Showing local analysis only."},
		Generated:        false,
	}
}

// buildPrompt renders the bug context into the analysis prompt: the error
// block, the top ranked commits with capped diffs, and the intent signals.
func buildPrompt(bug *schemas.BugContext) string {
	var b strings.Builder

	b.WriteString("## Error Information\n")
	fmt.Fprintf(&b, "- **Type**: %s\n", bug.Error.TypeName)
	fmt.Fprintf(&b, "- **Message**: %s\n", bug.Error.Message)
	affected := strings.Join(bug.Error.AffectedFiles, ", ")
	if affected == "" {
		affected = "(unknown)"
	}
	fmt.Fprintf(&b, "- **Affected Files**: %s\n", affected)
	b.WriteString("- **Stack Trace**:\n")
	b.WriteString(stackTraceBlock(bug.Error.Frames))

	b.WriteString("\n## Recent Relevant Commits\n")
	b.WriteString(commitsBlock(bug.Commits))

	b.WriteString("\n## Developer Intent Signals\n")
	b.WriteString(intentBlock(bug.Intent))

	if len(bug.Warnings) > 0 {
		b.WriteString("\n## Analysis Limitations\n")
		for _, w := range bug.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	b.WriteString("\n---\n\nAnalyze this bug and provide your explanation in the following format:\n\n")
	fmt.Fprintf(&b, "%s: <one-paragraph summary>\n\n", sectionSummary)
	fmt.Fprintf(&b, "%s: <explain the root cause, referencing specific commits>\n\n", sectionRootCause)
	fmt.Fprintf(&b, "%s: <how the developer's intent differs from actual behavior>\n\n", sectionIntent)
	fmt.Fprintf(&b, "%s:\n- <suggestion 1>\n- <suggestion 2>\n\n", sectionFixes)
	fmt.Fprintf(&b, "%s:\n- <learning point 1>\n- <learning point 2>\n", sectionEducational)
	return b.String()
}

func stackTraceBlock(frames []schemas.CallFrame) string {
	if len(frames) == 0 {
		return "(no stack trace available)\n"
	}
	var b strings.Builder
	for _, f := range frames {
		fmt.Fprintf(&b, "  File %q, line %d, in %s\n", f.FilePath, f.LineNumber, f.FunctionName)
		if f.CodeContext != "" {
			fmt.Fprintf(&b, "    %s\n", f.CodeContext)
		}
	}
	return b.String()
}

func commitsBlock(commits []schemas.CommitRecord) string {
	var parts []string
	for _, c := range commits {
		if c.RelevanceScore <= 0 {
			continue
		}
		diff := c.Diff
		if len(diff) > promptDiffByteLimit {
			diff = diff[:promptDiffByteLimit]
		}
		parts = append(parts, fmt.Sprintf(
			"### Commit %s (score: %.2f)\nAuthor: %s | Date: %s\nMessage: %s\nChanged files: %s\nDiff:\n```\n%s\n```",
			c.Hash, c.RelevanceScore, c.Author, c.Timestamp.Format("2006-01-02 15:04"),
			firstMessageLine(c.Message), strings.Join(c.ChangedFiles, ", "), diff))
		if len(parts) == promptCommitLimit {
			break
		}
	}
	if len(parts) == 0 {
		return "(no relevant commits found)\n"
	}
	return strings.Join(parts, "\n\n") + "\n"
}

func intentBlock(intent map[string][]schemas.IntentRecord) string {
	var lines []string
	for file, records := range intent {
		count := 0
		for _, r := range records {
			lines = append(lines, fmt.Sprintf("- [%s] %s `%s`: %s", r.Kind, file, r.Subject, r.Description))
			if count++; count == promptIntentPerFile {
				break
			}
		}
	}
	if len(lines) == 0 {
		return "(no intent signals found)\n"
	}
	// Map iteration order is random; keep the prompt stable across runs.
	sort.Strings(lines)
	return strings.Join(lines, "\n") + "\n"
}

func commitReferences(bug *schemas.BugContext) []string {
	var refs []string
	for _, c := range bug.Commits {
		if c.RelevanceScore > 0 {
			refs = append(refs, fmt.Sprintf("%s: %s", c.Hash, firstMessageLine(c.Message)))
		}
	}
	return refs
}

func firstMessageLine(message string) string {
	if idx := strings.IndexByte(message, '\n'); idx >= 0 {
		return strings.TrimSpace(message[:idx])
	}
	return strings.TrimSpace(message)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
