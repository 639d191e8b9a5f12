package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSeverity(t *testing.T) {
	cases := map[string]Severity{
		"critical": SeverityCritical,
		"high":     SeverityCritical,
		"major":    SeverityMajor,
		"medium":   SeverityMajor,
		"minor":    SeverityMinor,
		"low":      SeverityMinor,
		"info":     SeverityInfo,
		"nonsense": SeverityInfo,
		"":         SeverityInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseSeverity(in), "input %q", in)
	}
}

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityCritical > SeverityMajor)
	assert.True(t, SeverityMajor > SeverityMinor)
	assert.True(t, SeverityMinor > SeverityInfo)
}

func TestLineRangeOverlaps(t *testing.T) {
	cases := []struct {
		a, b LineRange
		want bool
	}{
		{LineRange{1, 5}, LineRange{5, 10}, true},
		{LineRange{1, 5}, LineRange{6, 10}, false},
		{LineRange{3, 3}, LineRange{1, 10}, true},
		{LineRange{10, 20}, LineRange{1, 9}, false},
		{LineRange{7, 7}, LineRange{7, 7}, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.a.Overlaps(c.b), "%v vs %v", c.a, c.b)
		assert.Equal(t, c.want, c.b.Overlaps(c.a), "overlap must be symmetric")
	}
}

func TestLineRangeString(t *testing.T) {
	assert.Equal(t, "7", LineRange{7, 7}.String())
	assert.Equal(t, "3-9", LineRange{3, 9}.String())
}

func TestFingerprintStable(t *testing.T) {
	a := ComputeFingerprint("repo", "main.go", "package main\n", FingerprintOptions{})
	b := ComputeFingerprint("repo", "main.go", "package main\n", FingerprintOptions{})
	assert.Equal(t, a, b)

	c := ComputeFingerprint("repo", "other.go", "package main\n", FingerprintOptions{})
	assert.NotEqual(t, a, c, "path is part of the identity")

	d := ComputeFingerprint("other", "main.go", "package main\n", FingerprintOptions{})
	assert.NotEqual(t, a, d, "repo is part of the identity")
}

func TestFingerprintIgnoreWhitespace(t *testing.T) {
	opts := FingerprintOptions{IgnoreWhitespace: true}
	a := ComputeFingerprint("r", "f", "x := 1\ny := 2\n", opts)
	b := ComputeFingerprint("r", "f", "x  :=  1   \n\n\ny := 2\n", opts)
	assert.Equal(t, a, b, "reformatting must not change the fingerprint")

	strict := ComputeFingerprint("r", "f", "x := 1\ny := 2\n", FingerprintOptions{})
	loose := ComputeFingerprint("r", "f", "x  := 1\ny := 2\n", FingerprintOptions{})
	assert.NotEqual(t, strict, loose, "strict mode is whitespace sensitive")
}

func TestFindingIDDeterministic(t *testing.T) {
	loc := LineRange{4, 4}
	a := FindingID("fp", "static", "todo", loc)
	b := FindingID("fp", "static", "todo", loc)
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)

	assert.NotEqual(t, a, FindingID("fp", "security", "todo", loc))
	assert.NotEqual(t, a, FindingID("fp", "static", "naming", loc))
	assert.NotEqual(t, a, FindingID("fp", "static", "todo", LineRange{5, 5}))
}

func TestFindingByID(t *testing.T) {
	r := &ReviewResult{
		Findings: []ScoredFinding{
			{Finding: Finding{ID: "aaa"}},
			{Finding: Finding{ID: "bbb", Category: "sql"}},
		},
	}
	sf, ok := r.FindingByID("bbb")
	assert.True(t, ok)
	assert.Equal(t, "sql", sf.Finding.Category)

	_, ok = r.FindingByID("zzz")
	assert.False(t, ok)
}
