package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/parable-ai/coderev/internal/model"
)

// Static style/complexity patterns.
var (
	todoPattern  = regexp.MustCompile(`(?i)\b(TODO|FIXME|HACK|XXX)\b`)
	debugPattern = regexp.MustCompile(`\b(print|console\.log|fmt\.Println|println|System\.out\.println)\s*\(`)
	// Single-letter assignment outside loop headers.
	shortNamePattern = regexp.MustCompile(`(?:^|[^\w.])([a-z])\s*:?=\s*[^=]`)
	controlPattern   = regexp.MustCompile(`\b(if|for|while|switch|case)\b`)
)

const (
	maxNestingDepth = 4
	indentWidth     = 4
)

// Static is the deterministic style and complexity analyzer. It has no
// external dependency and never fails.
type Static struct{}

// NewStatic returns the static analyzer.
func NewStatic() *Static { return &Static{} }

func (s *Static) Name() string           { return "static" }
func (s *Static) Timeout() time.Duration { return 5 * time.Second }
func (s *Static) MaxRetries() int        { return 0 }

// Analyze runs the rule-based checks over the unit.
func (s *Static) Analyze(_ context.Context, unit *model.ReviewUnit) ([]model.Finding, error) {
	lines := reviewableLines(unit)

	var findings []model.Finding
	add := func(category string, sev model.Severity, line int, conf float64, desc, suggestion string) {
		loc := model.LineRange{Start: line, End: line}
		findings = append(findings, model.Finding{
			ID:          model.FindingID(unit.Fingerprint, s.Name(), category, loc),
			Category:    category,
			Severity:    sev,
			Location:    loc,
			Description: desc,
			Suggestion:  suggestion,
			Analyzer:    s.Name(),
			Confidence:  conf,
		})
	}

	for _, nl := range lines {
		if m := todoPattern.FindString(nl.text); m != "" && isCommentLine(nl.text) {
			add("todo", model.SeverityMinor, nl.number, 0.9,
				fmt.Sprintf("Unresolved %s marker: %s", m, strings.TrimSpace(nl.text)),
				"Address the marker or track it in a ticket")
		}
		if isCommentLine(nl.text) {
			continue
		}
		if debugPattern.MatchString(nl.text) {
			add("debug-logging", model.SeverityMinor, nl.number, 0.8,
				fmt.Sprintf("Debug statement: %s", strings.TrimSpace(nl.text)),
				"Remove the debug statement or use structured logging")
		}
		if m := shortNamePattern.FindStringSubmatch(nl.text); m != nil && !controlPattern.MatchString(nl.text) {
			add("naming", model.SeverityInfo, nl.number, 0.5,
				fmt.Sprintf("Single-letter variable %q", m[1]),
				"Use a descriptive variable name")
		}
	}

	findings = append(findings, s.complexityFindings(unit, lines)...)
	return findings, nil
}

// complexityFindings flags deep nesting and dense control flow, the same
// signals the quality score is built from.
func (s *Static) complexityFindings(unit *model.ReviewUnit, lines []numberedLine) []model.Finding {
	maxDepth, maxDepthLine := 0, 0
	controls := 0
	for _, nl := range lines {
		if isCommentLine(nl.text) {
			continue
		}
		indent := len(nl.text) - len(strings.TrimLeft(nl.text, " \t"))
		depth := indent / indentWidth
		if depth > maxDepth {
			maxDepth, maxDepthLine = depth, nl.number
		}
		controls += len(controlPattern.FindAllString(nl.text, -1))
	}

	var findings []model.Finding
	if maxDepth > maxNestingDepth {
		loc := model.LineRange{Start: maxDepthLine, End: maxDepthLine}
		findings = append(findings, model.Finding{
			ID:       model.FindingID(unit.Fingerprint, s.Name(), "nesting", loc),
			Category: "nesting",
			Severity: model.SeverityMajor,
			Location: loc,
			Description: fmt.Sprintf("Nesting depth %d exceeds %d; extract helper functions",
				maxDepth, maxNestingDepth),
			Suggestion: "Flatten the logic with early returns or extracted helpers",
			Analyzer:   s.Name(),
			Confidence: 0.7,
		})
	}
	if n := len(lines); n > 0 && controls > n/4 && controls > 10 {
		loc := model.LineRange{Start: 1, End: n}
		findings = append(findings, model.Finding{
			ID:       model.FindingID(unit.Fingerprint, s.Name(), "complexity", loc),
			Category: "complexity",
			Severity: model.SeverityMinor,
			Location: loc,
			Description: fmt.Sprintf("High control-flow density: %d branches across %d lines",
				controls, n),
			Suggestion: "Split the unit into smaller functions",
			Analyzer:   s.Name(),
			Confidence: 0.6,
		})
	}
	return findings
}
