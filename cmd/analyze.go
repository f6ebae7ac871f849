// File: cmd/analyze.go

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hindsight/api/schemas"
	"hindsight/internal/observability"
	"hindsight/internal/pipeline"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newAnalyzeCmd() *cobra.Command {
	var (
		repoPath  string
		errorFile string
		format    string
		noCache   bool
	)

	analyzeCmd := &cobra.Command{
		Use:   "analyze [error text]",
		Short: "Analyze a runtime error against the repository's history",
		Long: `Analyze parses the given error text (or traceback), scans the repository's
recent commits, extracts developer intent from the implicated source files,
and reports the commit most likely to have caused the error.

The error text is taken from the argument, from --file, or from stdin when
--file is '-'.`,
		Args: cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("analysis.max_commits", cmd.Flags().Lookup("max-commits")); err != nil {
				return err
			}
			return viper.BindPFlag("analysis.deadline", cmd.Flags().Lookup("timeout"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if noCache {
				cfg.Cache.Enabled = false
			}

			errorText, err := readErrorText(args, errorFile, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if err := pipeline.ValidateRepository(repoPath, observability.GetLogger()); err != nil {
				return err
			}

			ctx := cmd.Context()
			p, err := pipeline.Build(ctx, cfg, observability.GetLogger())
			if err != nil {
				return err
			}

			report, err := p.Analyze(ctx, errorText, repoPath)
			if err != nil {
				return err
			}

			switch strings.ToLower(format) {
			case "json":
				return renderJSON(cmd.OutOrStdout(), report)
			case "text":
				renderText(cmd.OutOrStdout(), report)
				return nil
			default:
				return fmt.Errorf("unknown format %q (want text or json)", format)
			}
		},
	}

	analyzeCmd.Flags().StringVarP(&repoPath, "repo", "r", ".", "path to the git repository to analyze")
	analyzeCmd.Flags().StringVarP(&errorFile, "file", "f", "", "read the error text from a file ('-' for stdin)")
	analyzeCmd.Flags().StringVar(&format, "format", "text", "output format: text or json")
	analyzeCmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the result cache")
	analyzeCmd.Flags().Int("max-commits", 0, "maximum commits to scan (overrides config)")
	analyzeCmd.Flags().Duration("timeout", 0, "overall analysis deadline (overrides config)")
	return analyzeCmd
}

// readErrorText resolves the error input: positional argument first, then
// --file, then stdin.
func readErrorText(args []string, errorFile string, stdin io.Reader) (string, error) {
	if len(args) == 1 && args[0] != "" {
		return args[0], nil
	}
	switch errorFile {
	case "":
		return "", fmt.Errorf("no error text given: pass it as an argument or with --file")
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading error text from stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		data, err := os.ReadFile(errorFile)
		if err != nil {
			return "", fmt.Errorf("reading error text: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
}

func renderJSON(w io.Writer, report *schemas.AnalysisReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// renderText prints the human-readable report.
func renderText(w io.Writer, report *schemas.AnalysisReport) {
	fmt.Fprintf(w, "Error: %s", report.Error.Message)
	if report.Error.TypeName != "" {
		fmt.Fprintf(w, " (%s)", report.Error.TypeName)
	}
	fmt.Fprintln(w)
	if len(report.Error.AffectedFiles) > 0 {
		fmt.Fprintf(w, "Affected files: %s\n", strings.Join(report.Error.AffectedFiles, ", "))
	}
	fmt.Fprintln(w)

	if report.RootCause.Found() {
		primary := report.RootCause.Primary
		fmt.Fprintf(w, "Most likely cause: commit %s\n", primary.Hash)
		fmt.Fprintf(w, "  %s\n", firstLine(primary.Message))
		fmt.Fprintf(w, "  Author: %s, %s\n", primary.Author, primary.Timestamp.Format("2006-01-02 15:04"))
		fmt.Fprintf(w, "  Confidence: %.0f%%\n", report.RootCause.Confidence*100)
		for _, rel := range report.RootCause.Related {
			fmt.Fprintf(w, "  Related: %s %s\n", rel.Hash, firstLine(rel.Message))
		}
	} else {
		fmt.Fprintf(w, "No confident candidate: %s\n", describeReason(report.RootCause.Reason))
	}
	fmt.Fprintln(w)

	if expl := report.Explanation; expl != nil {
		if expl.Summary != "" {
			fmt.Fprintf(w, "Summary:\n  %s\n\n", indent(expl.Summary))
		}
		if expl.RootCause != "" {
			fmt.Fprintf(w, "Root cause:\n  %s\n\n", indent(expl.RootCause))
		}
		if expl.IntentVsActual != "" {
			fmt.Fprintf(w, "Intent vs actual:\n  %s\n\n", indent(expl.IntentVsActual))
		}
		for i, fix := range expl.FixSuggestions {
			fmt.Fprintf(w, "Fix %d (%s): %s\n", i+1, orDefault(fix.Difficulty, "medium"), fix.Description)
			if fix.CodeExample != "" {
				fmt.Fprintf(w, "  %s\n", indent(fix.CodeExample))
			}
			if fix.Rationale != "" {
				fmt.Fprintf(w, "  Why: %s\n", fix.Rationale)
			}
		}
		if len(expl.FixSuggestions) > 0 {
			fmt.Fprintln(w)
		}
		for _, note := range expl.EducationalNotes {
			fmt.Fprintf(w, "Note: %s\n", note)
		}
		if !expl.Generated {
			fmt.Fprintln(w, "(local analysis; no generated explanation)")
		}
	}

	if report.Degraded {
		fmt.Fprintln(w, "\nAnalysis was degraded; results reflect only what completed in time.")
	}
	for _, warning := range report.Warnings {
		fmt.Fprintf(w, "Warning: %s\n", warning)
	}
}

func describeReason(reason schemas.NoCandidateReason) string {
	switch reason {
	case schemas.ReasonNoOverlappingCommits:
		return "no scanned commit touches the affected files"
	case schemas.ReasonInsufficientSignal:
		return "no commit scored above the confidence threshold"
	case schemas.ReasonAmbiguousTie:
		return "multiple commits are equally plausible"
	default:
		return string(reason)
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func indent(s string) string {
	return strings.ReplaceAll(s, "\n", "\n  ")
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
