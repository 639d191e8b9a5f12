// Package scoring converts raw findings plus team bias into a ranked,
// deduplicated list. Scoring is deterministic: identical findings and
// identical pattern state always produce identical ordering.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/parable-ai/coderev/internal/config"
	"github.com/parable-ai/coderev/internal/model"
)

// BiasFunc resolves the team acceptance bias for a category.
type BiasFunc func(category string) float64

// Engine applies the configured coefficients.
type Engine struct {
	cfg config.ScoringConfig
}

// New returns an Engine with the given coefficients.
func New(cfg config.ScoringConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Score deduplicates, weighs, and orders findings. Findings must be passed
// in analyzer invocation order; that order is the final tie-breaker.
// An all-below-floor input yields an empty list, not an error.
func (e *Engine) Score(findings []model.Finding, bias BiasFunc) []model.ScoredFinding {
	merged := e.dedupe(findings)

	var out []model.ScoredFinding
	for _, m := range merged {
		b := 0.5
		if bias != nil {
			b = clamp(bias(m.finding.Category), 0, 1)
		}
		// Historically dismissed categories (low acceptance bias) are
		// discounted, never fully suppressed.
		visibility := math.Max(e.cfg.MinVisibility, b)
		impact := e.severityBase(m.finding.Severity) * m.confidence * visibility
		if impact < e.cfg.VisibilityFloor {
			continue
		}

		f := m.finding
		f.Confidence = m.confidence
		out = append(out, model.ScoredFinding{
			Finding: f,
			Score: model.PriorityScore{
				Impact:         impact,
				EffortEstimate: effortFor(f.Severity),
				Priority:       impact,
			},
			Corroborated: m.corroborated,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score.Impact != b.Score.Impact {
			return a.Score.Impact > b.Score.Impact
		}
		if a.Finding.Severity != b.Finding.Severity {
			return a.Finding.Severity > b.Finding.Severity
		}
		if a.Finding.Location.Start != b.Finding.Location.Start {
			return a.Finding.Location.Start < b.Finding.Location.Start
		}
		// SliceStable preserves invocation order for full ties.
		return false
	})
	return out
}

type mergedFinding struct {
	finding      model.Finding
	confidence   float64
	corroborated []string
}

// dedupe collapses findings of the same category with overlapping ranges,
// keeping the highest-confidence one. The rest corroborate it, raising the
// effective confidence (capped at 1.0).
func (e *Engine) dedupe(findings []model.Finding) []mergedFinding {
	var merged []mergedFinding
	for _, f := range findings {
		folded := false
		for j := range merged {
			m := &merged[j]
			if m.finding.Category != f.Category || !m.finding.Location.Overlaps(f.Location) {
				continue
			}
			if f.Confidence > m.finding.Confidence {
				m.corroborated = append(m.corroborated, m.finding.Analyzer)
				m.finding = f
			} else {
				m.corroborated = append(m.corroborated, f.Analyzer)
			}
			m.confidence = math.Min(1.0,
				math.Max(m.finding.Confidence, m.confidence)+e.cfg.CorroborationBoost)
			folded = true
			break
		}
		if !folded {
			merged = append(merged, mergedFinding{
				finding:    f,
				confidence: f.Confidence,
			})
		}
	}
	return merged
}

func (e *Engine) severityBase(s model.Severity) float64 {
	switch s {
	case model.SeverityCritical:
		return e.cfg.CriticalBase
	case model.SeverityMajor:
		return e.cfg.MajorBase
	case model.SeverityMinor:
		return e.cfg.MinorBase
	default:
		return e.cfg.InfoBase
	}
}

func effortFor(s model.Severity) time.Duration {
	switch s {
	case model.SeverityCritical:
		return 60 * time.Minute
	case model.SeverityMajor:
		return 30 * time.Minute
	case model.SeverityMinor:
		return 10 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// QualityScore condenses scored findings into the 0-100 unit score.
func QualityScore(findings []model.ScoredFinding) int {
	penalty := 0.0
	for _, sf := range findings {
		penalty += sf.Score.Impact / 5
	}
	score := 100 - int(math.Round(penalty))
	if score < 10 {
		score = 10
	}
	return score
}

// Metrics derives coarse per-dimension ratings from the scored findings.
func Metrics(findings []model.ScoredFinding) map[string]string {
	worst := map[string]model.Severity{}
	for _, sf := range findings {
		dim := dimensionFor(sf.Finding.Category)
		if sev, ok := worst[dim]; !ok || sf.Finding.Severity > sev {
			worst[dim] = sf.Finding.Severity
		}
	}
	metrics := map[string]string{
		"security":        "good",
		"complexity":      "good",
		"maintainability": "good",
	}
	for dim, sev := range worst {
		switch {
		case sev >= model.SeverityCritical:
			metrics[dim] = "poor"
		case sev >= model.SeverityMajor:
			metrics[dim] = "needs-work"
		default:
			metrics[dim] = "fair"
		}
	}
	return metrics
}

func dimensionFor(category string) string {
	switch category {
	case "authentication", "authorization", "sql", "cryptography",
		"secrets", "filesystem", "network", "subprocess", "security":
		return "security"
	case "complexity", "nesting":
		return "complexity"
	default:
		return "maintainability"
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}
