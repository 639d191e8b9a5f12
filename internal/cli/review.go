package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/parable-ai/coderev/internal/lang"
	"github.com/parable-ai/coderev/internal/model"
	"github.com/parable-ai/coderev/internal/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review [file]",
	Short: "Review a file or diff and print prioritized findings",
	Long: `Run all analyzers over a file (or a unified diff) and print the
findings in priority order, scored against the team's acceptance history.

Examples:
  coderev review main.go                  # review one file
  git diff | coderev review -             # review a piped diff
  coderev review main.go --no-llm         # deterministic analyzers only
  coderev review main.go --fix            # also generate fixes`,
	Args: cobra.ExactArgs(1),
	RunE: runReview,
}

func init() {
	reviewCmd.Flags().String("team", "default", "team whose acceptance history biases scoring")
	reviewCmd.Flags().String("repo", "", "repository identifier (defaults to the working directory name)")
	reviewCmd.Flags().StringSlice("analyzers", nil, "analyzer subset to run (default: all)")
	reviewCmd.Flags().Duration("deadline", 0, "wall-clock budget for the review (0 = none)")
	reviewCmd.Flags().Bool("skip-cache", false, "force recomputation even if cached")
	reviewCmd.Flags().Bool("no-llm", false, "skip the LLM analyzer")
	reviewCmd.Flags().Bool("fix", false, "generate fix suggestions for the findings")
	reviewCmd.Flags().StringP("format", "f", "text", "output format: text, json")
}

func runReview(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	path := args[0]
	content, err := readInput(path)
	if err != nil {
		return err
	}
	if strings.TrimSpace(content) == "" {
		fmt.Println("Nothing to review.")
		return nil
	}

	repoID, _ := cmd.Flags().GetString("repo")
	if repoID == "" {
		if wd, err := os.Getwd(); err == nil {
			repoID = wd
		}
	}
	if path == "-" {
		path = "stdin"
	}

	noLLM, _ := cmd.Flags().GetBool("no-llm")
	eng, closeEngine, err := buildEngine(cfg, !noLLM, log)
	if err != nil {
		return err
	}
	defer closeEngine()

	team, _ := cmd.Flags().GetString("team")
	analyzers, _ := cmd.Flags().GetStringSlice("analyzers")
	deadline, _ := cmd.Flags().GetDuration("deadline")
	skipCache, _ := cmd.Flags().GetBool("skip-cache")

	unit := eng.NewUnit(repoID, path, lang.Detect(path, content), content)
	result, err := eng.Submit(context.Background(), unit, team, review.Options{
		Analyzers: analyzers,
		Deadline:  deadline,
		SkipCache: skipCache,
	})
	if err != nil {
		return err
	}

	if wantFix, _ := cmd.Flags().GetBool("fix"); wantFix && !noLLM {
		requestFixes(eng, result, deadline)
	}

	format, _ := cmd.Flags().GetString("format")
	if format == "json" {
		return printJSON(result)
	}
	printResult(result)

	switch {
	case hasSeverity(result, model.SeverityCritical):
		os.Exit(2)
	case hasSeverity(result, model.SeverityMajor):
		os.Exit(1)
	}
	return nil
}

func readInput(path string) (string, error) {
	if path == "-" {
		data, err := os.ReadFile("/dev/stdin")
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

func requestFixes(eng *review.Engine, result *model.ReviewResult, deadline time.Duration) {
	ctx := context.Background()
	if deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, deadline)
		defer cancel()
	}
	for _, sf := range result.Findings {
		if _, err := eng.RequestFix(ctx, sf.Finding.ID); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: fix for %s failed: %v\n", sf.Finding.ID, err)
		}
	}
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	scoreStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	badScoreStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	fixStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))

	severityStyles = map[model.Severity]lipgloss.Style{
		model.SeverityCritical: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
		model.SeverityMajor:    lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		model.SeverityMinor:    lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		model.SeverityInfo:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
)

func printResult(result *model.ReviewResult) {
	style := scoreStyle
	if result.Score < 60 {
		style = badScoreStyle
	}
	fmt.Printf("%s  %s\n",
		headerStyle.Render(result.Unit.Path),
		style.Render(fmt.Sprintf("quality %d/100", result.Score)))

	var dims []string
	for _, dim := range []string{"security", "complexity", "maintainability"} {
		if rating, ok := result.Metrics[dim]; ok {
			dims = append(dims, fmt.Sprintf("%s: %s", dim, rating))
		}
	}
	if len(dims) > 0 {
		fmt.Println(dimStyle.Render(strings.Join(dims, "  ")))
	}
	fmt.Println()

	if len(result.Findings) == 0 {
		fmt.Println("No findings above the visibility floor.")
	}
	for i, sf := range result.Findings {
		f := sf.Finding
		sev := severityStyles[f.Severity].Render(f.Severity.String())
		fmt.Printf("%2d. %s [%s] line %s (%s, impact %.0f)\n",
			i+1, sev, f.Category, f.Location, f.Analyzer, sf.Score.Impact)
		fmt.Printf("    %s\n", f.Description)
		if f.Suggestion != "" {
			fmt.Printf("    %s\n", dimStyle.Render(f.Suggestion))
		}
		if len(sf.Corroborated) > 0 {
			fmt.Printf("    %s\n", dimStyle.Render("corroborated by "+strings.Join(sf.Corroborated, ", ")))
		}
		if fix, ok := result.Fixes[f.ID]; ok && fix.Status == model.FixReady {
			fmt.Println(fixStyle.Render("    proposed fix:"))
			for _, line := range strings.Split(fix.Patch, "\n") {
				fmt.Printf("    %s\n", line)
			}
		}
		fmt.Printf("    %s\n", dimStyle.Render("id "+f.ID))
	}

	if len(result.Failures) > 0 {
		fmt.Println()
		for _, fail := range result.Failures {
			note := "failed"
			if fail.TimedOut {
				note = "timed out"
			}
			fmt.Fprintf(os.Stderr, "Warning: analyzer %s %s: %s\n", fail.Analyzer, note, fail.Err)
		}
	}
}

func printJSON(result *model.ReviewResult) error {
	type jsonFinding struct {
		ID           string   `json:"id"`
		Severity     string   `json:"severity"`
		Category     string   `json:"category"`
		Line         string   `json:"line"`
		Description  string   `json:"description"`
		Suggestion   string   `json:"suggestion,omitempty"`
		Analyzer     string   `json:"analyzer"`
		Impact       float64  `json:"impact"`
		EffortMins   int      `json:"effort_minutes"`
		Corroborated []string `json:"corroborated,omitempty"`
		Fix          string   `json:"fix,omitempty"`
	}
	type jsonFailure struct {
		Analyzer string `json:"analyzer"`
		Error    string `json:"error"`
		TimedOut bool   `json:"timed_out"`
	}
	type jsonOutput struct {
		Path     string            `json:"path"`
		Language string            `json:"language"`
		Score    int               `json:"score"`
		Metrics  map[string]string `json:"metrics"`
		Findings []jsonFinding     `json:"findings"`
		Failures []jsonFailure     `json:"failures,omitempty"`
	}

	out := jsonOutput{
		Path:     result.Unit.Path,
		Language: result.Unit.Language,
		Score:    result.Score,
		Metrics:  result.Metrics,
	}
	for _, sf := range result.Findings {
		jf := jsonFinding{
			ID:           sf.Finding.ID,
			Severity:     sf.Finding.Severity.String(),
			Category:     sf.Finding.Category,
			Line:         sf.Finding.Location.String(),
			Description:  sf.Finding.Description,
			Suggestion:   sf.Finding.Suggestion,
			Analyzer:     sf.Finding.Analyzer,
			Impact:       sf.Score.Impact,
			EffortMins:   int(sf.Score.EffortEstimate.Minutes()),
			Corroborated: sf.Corroborated,
		}
		if fix, ok := result.Fixes[sf.Finding.ID]; ok && fix.Status == model.FixReady {
			jf.Fix = fix.Patch
		}
		out.Findings = append(out.Findings, jf)
	}
	for _, fail := range result.Failures {
		out.Failures = append(out.Failures, jsonFailure{
			Analyzer: fail.Analyzer,
			Error:    fail.Err,
			TimedOut: fail.TimedOut,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func hasSeverity(result *model.ReviewResult, sev model.Severity) bool {
	for _, sf := range result.Findings {
		if sf.Finding.Severity >= sev {
			return true
		}
	}
	return false
}
