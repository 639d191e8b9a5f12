// Package model defines the core data types shared across coderev.
package model

import (
	"fmt"
	"time"
)

// Severity categorizes how serious a finding is.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityMinor
	SeverityMajor
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityMinor:
		return "minor"
	case SeverityMajor:
		return "major"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseSeverity maps a string (as emitted by an LLM) to a Severity.
// Unknown strings map to SeverityInfo rather than failing.
func ParseSeverity(s string) Severity {
	switch s {
	case "critical", "high":
		return SeverityCritical
	case "major", "medium":
		return SeverityMajor
	case "minor", "low":
		return SeverityMinor
	default:
		return SeverityInfo
	}
}

// LineRange identifies a range of lines in the reviewed unit.
type LineRange struct {
	Start int
	End   int
}

// Overlaps reports whether two ranges share at least one line.
func (r LineRange) Overlaps(o LineRange) bool {
	return r.Start <= o.End && o.Start <= r.End
}

func (r LineRange) String() string {
	if r.End <= r.Start {
		return fmt.Sprintf("%d", r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Finding is one issue surfaced by one analyzer. Findings from different
// analyzers are never merged by identity; deduplication happens at scoring
// time via category + location proximity.
type Finding struct {
	ID          string
	Category    string
	Severity    Severity
	Location    LineRange
	Description string
	Suggestion  string
	Analyzer    string
	Confidence  float64 // 0..1
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s %s: %s", f.Analyzer, f.Severity, f.Location, f.Description)
}

// PriorityScore is derived for a Finding at scoring time and never mutated
// afterwards. A re-review produces a new Finding+Score pair.
type PriorityScore struct {
	Impact         float64 // 0..100
	EffortEstimate time.Duration
	Priority       float64
}

// ScoredFinding pairs a finding with its derived score.
type ScoredFinding struct {
	Finding Finding
	Score   PriorityScore
	// Corroborated lists analyzers whose overlapping duplicate findings
	// were folded into this one.
	Corroborated []string
}

// FixStatus tracks the lifecycle of a generated fix.
type FixStatus int

const (
	FixPending FixStatus = iota
	FixReady
	FixFailed
)

func (s FixStatus) String() string {
	switch s {
	case FixPending:
		return "pending"
	case FixReady:
		return "ready"
	case FixFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FixSuggestion is an optionally generated patch for a finding. On failure
// the raw model output is retained for diagnostics.
type FixSuggestion struct {
	FindingID string
	Patch     string
	RawOutput string
	Status    FixStatus
	Err       string
}

// AnalyzerFailure records one analyzer that errored or timed out during a
// review. Failures are metadata on the result, never silently dropped.
type AnalyzerFailure struct {
	Analyzer string
	Stage    string
	Err      string
	TimedOut bool
}

// ReviewResult is the unit of caching: everything produced for one review
// unit. Exclusively owned by the result cache once written.
type ReviewResult struct {
	Unit       *ReviewUnit
	TeamID     string
	Findings   []ScoredFinding
	Fixes      map[string]*FixSuggestion
	Failures   []AnalyzerFailure
	Score      int               // 0-100 overall quality score
	Metrics    map[string]string // coarse per-dimension ratings
	ComputedAt time.Time
}

// FindingByID returns the scored finding with the given id, if present.
func (r *ReviewResult) FindingByID(id string) (ScoredFinding, bool) {
	for _, sf := range r.Findings {
		if sf.Finding.ID == id {
			return sf, true
		}
	}
	return ScoredFinding{}, false
}
