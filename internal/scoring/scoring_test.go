package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parable-ai/coderev/internal/config"
	"github.com/parable-ai/coderev/internal/model"
)

func testEngine() *Engine {
	return New(config.Default().Scoring)
}

func neutralBias(string) float64 { return 0.5 }

func finding(id, category string, sev model.Severity, start, end int, analyzer string, conf float64) model.Finding {
	return model.Finding{
		ID:         id,
		Category:   category,
		Severity:   sev,
		Location:   model.LineRange{Start: start, End: end},
		Analyzer:   analyzer,
		Confidence: conf,
	}
}

func TestScoreDeterministic(t *testing.T) {
	e := testEngine()
	in := []model.Finding{
		finding("a", "sql", model.SeverityCritical, 10, 10, "security", 0.7),
		finding("b", "todo", model.SeverityMinor, 3, 3, "static", 0.9),
		finding("c", "nesting", model.SeverityMajor, 20, 20, "static", 0.7),
	}

	first := e.Score(in, neutralBias)
	for i := 0; i < 5; i++ {
		again := e.Score(in, neutralBias)
		require.Equal(t, first, again, "identical input must produce identical output")
	}
}

func TestCriticalOutranksMinor(t *testing.T) {
	e := testEngine()
	scored := e.Score([]model.Finding{
		finding("minor", "todo", model.SeverityMinor, 1, 1, "static", 0.9),
		finding("crit", "secrets", model.SeverityCritical, 40, 40, "security", 0.8),
	}, neutralBias)

	require.Len(t, scored, 2)
	assert.Equal(t, "crit", scored[0].Finding.ID,
		"critical at neutral bias outranks minor regardless of input order")
	assert.Greater(t, scored[0].Score.Impact, scored[1].Score.Impact)
}

func TestDedupeKeepsHighestConfidence(t *testing.T) {
	e := testEngine()
	scored := e.Score([]model.Finding{
		finding("a", "sql", model.SeverityCritical, 10, 12, "security", 0.7),
		finding("b", "sql", model.SeverityCritical, 11, 11, "semantic", 0.9),
	}, neutralBias)

	require.Len(t, scored, 1, "same category overlapping ranges merge")
	assert.Equal(t, "b", scored[0].Finding.ID, "higher confidence wins")
	assert.GreaterOrEqual(t, scored[0].Finding.Confidence, 0.9,
		"merged confidence is at least the max of the duplicates")
	assert.Equal(t, []string{"security"}, scored[0].Corroborated)
}

func TestDedupeConfidenceCapped(t *testing.T) {
	e := testEngine()
	scored := e.Score([]model.Finding{
		finding("a", "sql", model.SeverityCritical, 5, 5, "security", 0.95),
		finding("b", "sql", model.SeverityCritical, 5, 5, "semantic", 0.95),
		finding("c", "sql", model.SeverityCritical, 5, 5, "static", 0.95),
	}, neutralBias)

	require.Len(t, scored, 1)
	assert.LessOrEqual(t, scored[0].Finding.Confidence, 1.0)
}

func TestNoMergeAcrossCategories(t *testing.T) {
	e := testEngine()
	scored := e.Score([]model.Finding{
		finding("a", "sql", model.SeverityCritical, 10, 10, "security", 0.7),
		finding("b", "secrets", model.SeverityCritical, 10, 10, "security", 0.7),
	}, neutralBias)
	assert.Len(t, scored, 2, "different categories never merge even at the same line")
}

func TestDismissedCategoryDemotedNotSuppressed(t *testing.T) {
	e := testEngine()
	in := []model.Finding{
		// Major finding in a category the team always dismisses.
		finding("disliked", "naming", model.SeverityMajor, 1, 1, "static", 0.8),
		// Minor finding in a category with no history.
		finding("fresh", "todo", model.SeverityMinor, 9, 9, "static", 0.8),
	}

	scored := e.Score(in, func(category string) float64 {
		if category == "naming" {
			return 0.0 // accepted 0, dismissed 10
		}
		return 0.5
	})

	require.Len(t, scored, 2, "the demoted finding stays visible at the floor")
	assert.Equal(t, "fresh", scored[0].Finding.ID,
		"neutral-bias minor outranks always-dismissed major")
	assert.Equal(t, "disliked", scored[1].Finding.ID)
	assert.Greater(t, scored[1].Score.Impact, 0.0, "floored, never zeroed")
}

func TestVisibilityFloorDropsFindings(t *testing.T) {
	e := testEngine()
	scored := e.Score([]model.Finding{
		finding("tiny", "naming", model.SeverityInfo, 1, 1, "static", 0.05),
	}, neutralBias)
	assert.Empty(t, scored, "below-floor findings yield an empty list, not an error")
}

func TestTieBreaksByLocationThenOrder(t *testing.T) {
	e := testEngine()
	scored := e.Score([]model.Finding{
		finding("late", "todo", model.SeverityMinor, 30, 30, "static", 0.8),
		finding("early", "todo", model.SeverityMinor, 2, 2, "static", 0.8),
	}, neutralBias)

	require.Len(t, scored, 2)
	assert.Equal(t, "early", scored[0].Finding.ID, "equal impact breaks ties by location")
}

func TestQualityScore(t *testing.T) {
	assert.Equal(t, 100, QualityScore(nil))

	one := []model.ScoredFinding{{Score: model.PriorityScore{Impact: 50}}}
	assert.Equal(t, 90, QualityScore(one))

	var many []model.ScoredFinding
	for i := 0; i < 50; i++ {
		many = append(many, model.ScoredFinding{Score: model.PriorityScore{Impact: 100}})
	}
	assert.Equal(t, 10, QualityScore(many), "score is floored, never negative")
}

func TestMetrics(t *testing.T) {
	findings := []model.ScoredFinding{
		{Finding: model.Finding{Category: "sql", Severity: model.SeverityCritical}},
		{Finding: model.Finding{Category: "nesting", Severity: model.SeverityMajor}},
		{Finding: model.Finding{Category: "todo", Severity: model.SeverityMinor}},
	}
	m := Metrics(findings)
	assert.Equal(t, "poor", m["security"])
	assert.Equal(t, "needs-work", m["complexity"])
	assert.Equal(t, "fair", m["maintainability"])

	clean := Metrics(nil)
	assert.Equal(t, "good", clean["security"])
	assert.Equal(t, "good", clean["complexity"])
	assert.Equal(t, "good", clean["maintainability"])
}
