package review

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/parable-ai/coderev/internal/analyzer"
	"github.com/parable-ai/coderev/internal/config"
	"github.com/parable-ai/coderev/internal/model"
	"github.com/parable-ai/coderev/internal/pattern"
	"github.com/parable-ai/coderev/internal/provider"
	"github.com/parable-ai/coderev/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// stubAnalyzer is a scriptable analyzer for orchestration tests.
type stubAnalyzer struct {
	name    string
	timeout time.Duration
	delay   time.Duration
	err     error
	produce func(u *model.ReviewUnit) []model.Finding
	calls   atomic.Int64
}

func (s *stubAnalyzer) Name() string { return s.name }

func (s *stubAnalyzer) Timeout() time.Duration {
	if s.timeout > 0 {
		return s.timeout
	}
	return time.Second
}

func (s *stubAnalyzer) MaxRetries() int { return 0 }

func (s *stubAnalyzer) Analyze(ctx context.Context, unit *model.ReviewUnit) ([]model.Finding, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.produce != nil {
		return s.produce(unit), nil
	}
	return nil, nil
}

func producer(analyzerName, category string, sev model.Severity, line int, conf float64) func(*model.ReviewUnit) []model.Finding {
	return func(u *model.ReviewUnit) []model.Finding {
		loc := model.LineRange{Start: line, End: line}
		return []model.Finding{{
			ID:          model.FindingID(u.Fingerprint, analyzerName, category, loc),
			Category:    category,
			Severity:    sev,
			Location:    loc,
			Description: category + " issue",
			Analyzer:    analyzerName,
			Confidence:  conf,
		}}
	}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Cache.TTL = 0
	return cfg
}

func newTestEngine(analyzers ...analyzer.Analyzer) *Engine {
	e := NewEngine(testConfig(), Deps{Patterns: pattern.NewMemory()})
	e.registry = analyzer.NewRegistry(analyzers...)
	return e
}

func unitFixture(content string) *model.ReviewUnit {
	return model.NewReviewUnit("repo", "main.go", "go", content, model.FingerprintOptions{})
}

func TestSubmitComplete(t *testing.T) {
	e := newTestEngine(&stubAnalyzer{
		name:    "stub",
		produce: producer("stub", "sql", model.SeverityCritical, 10, 0.9),
	})

	result, err := e.Submit(context.Background(), unitFixture("package main\n"), "team", Options{})
	require.NoError(t, err)

	require.Len(t, result.Findings, 1)
	assert.Equal(t, "sql", result.Findings[0].Finding.Category)
	assert.Empty(t, result.Failures)
	assert.False(t, result.ComputedAt.IsZero())
	assert.Less(t, result.Score, 100)
	assert.Equal(t, "poor", result.Metrics["security"])
}

func TestConcurrentSubmitsShareOneExecution(t *testing.T) {
	stub := &stubAnalyzer{
		name:    "stub",
		delay:   30 * time.Millisecond,
		produce: producer("stub", "todo", model.SeverityMinor, 1, 0.9),
	}
	e := newTestEngine(stub)
	unit := unitFixture("package main\n")

	var wg sync.WaitGroup
	results := make([]*model.ReviewResult, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := e.Submit(context.Background(), unit, "team", Options{})
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), stub.calls.Load(), "identical fingerprints share one analysis")
	for _, r := range results[1:] {
		assert.Equal(t, results[0].ComputedAt, r.ComputedAt)
	}
}

func TestSecondSubmitServedFromCache(t *testing.T) {
	stub := &stubAnalyzer{name: "stub", produce: producer("stub", "todo", model.SeverityMinor, 1, 0.9)}
	e := newTestEngine(stub)
	unit := unitFixture("package main\n")

	first, err := e.Submit(context.Background(), unit, "team", Options{})
	require.NoError(t, err)
	second, err := e.Submit(context.Background(), unit, "team", Options{})
	require.NoError(t, err)

	assert.Equal(t, int64(1), stub.calls.Load())
	assert.Equal(t, first.ComputedAt, second.ComputedAt)
}

func TestSkipCacheRecomputes(t *testing.T) {
	stub := &stubAnalyzer{name: "stub", produce: producer("stub", "todo", model.SeverityMinor, 1, 0.9)}
	e := newTestEngine(stub)
	unit := unitFixture("package main\n")

	first, err := e.Submit(context.Background(), unit, "team", Options{})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	second, err := e.Submit(context.Background(), unit, "team", Options{SkipCache: true})
	require.NoError(t, err)

	assert.Equal(t, int64(2), stub.calls.Load())
	assert.NotEqual(t, first.ComputedAt, second.ComputedAt,
		"a forced recomputation never reuses a prior timestamp")
}

func TestPartialFailureStillCompletes(t *testing.T) {
	healthy := &stubAnalyzer{name: "healthy", produce: producer("healthy", "sql", model.SeverityMajor, 3, 0.8)}
	broken := &stubAnalyzer{name: "broken", err: errors.New("upstream exploded")}
	slow := &stubAnalyzer{name: "slow", timeout: 20 * time.Millisecond, delay: 500 * time.Millisecond}
	e := newTestEngine(healthy, broken, slow)

	result, err := e.Submit(context.Background(), unitFixture("package main\n"), "team", Options{})
	require.NoError(t, err, "2 of 3 failing still completes")

	require.Len(t, result.Findings, 1)
	assert.Equal(t, "healthy", result.Findings[0].Finding.Analyzer)

	require.Len(t, result.Failures, 2)
	byName := map[string]model.AnalyzerFailure{}
	for _, f := range result.Failures {
		byName[f.Analyzer] = f
	}
	assert.False(t, byName["broken"].TimedOut)
	assert.Contains(t, byName["broken"].Err, "upstream exploded")
	assert.True(t, byName["slow"].TimedOut, "per-analyzer timeout is recorded as such")
}

func TestAllAnalyzersFailed(t *testing.T) {
	e := newTestEngine(
		&stubAnalyzer{name: "a", err: errors.New("boom")},
		&stubAnalyzer{name: "b", err: errors.New("bang")},
	)
	unit := unitFixture("package main\n")

	_, err := e.Submit(context.Background(), unit, "team", Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllAnalyzersFailed)

	_, ok := e.cache.get(unit.Fingerprint)
	assert.False(t, ok, "failed requests are never cached")
}

func TestDeadlineExceeded(t *testing.T) {
	stub := &stubAnalyzer{name: "slow", delay: 500 * time.Millisecond}
	e := newTestEngine(stub)
	unit := unitFixture("package main\n")

	_, err := e.Submit(context.Background(), unit, "team", Options{Deadline: 5 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeadlineExceeded)

	_, ok := e.cache.get(unit.Fingerprint)
	assert.False(t, ok, "the cache remains unwritten")
}

func TestCancelledContext(t *testing.T) {
	e := newTestEngine(&stubAnalyzer{name: "stub"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Submit(ctx, unitFixture("package main\n"), "team", Options{})
	assert.ErrorIs(t, err, ErrDeadlineExceeded)
}

func TestUnknownAnalyzerSelection(t *testing.T) {
	e := newTestEngine(&stubAnalyzer{name: "stub"})
	_, err := e.Submit(context.Background(), unitFixture("package main\n"), "team",
		Options{Analyzers: []string{"imaginary"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "imaginary")
}

func TestAnalyzerSubsetSelection(t *testing.T) {
	wanted := &stubAnalyzer{name: "wanted", produce: producer("wanted", "todo", model.SeverityMinor, 1, 0.9)}
	skipped := &stubAnalyzer{name: "skipped", produce: producer("skipped", "sql", model.SeverityCritical, 2, 0.9)}
	e := newTestEngine(wanted, skipped)

	result, err := e.Submit(context.Background(), unitFixture("package main\n"), "team",
		Options{Analyzers: []string{"wanted"}})
	require.NoError(t, err)

	assert.Equal(t, int64(1), wanted.calls.Load())
	assert.Zero(t, skipped.calls.Load())
	require.Len(t, result.Findings, 1)
	assert.Equal(t, "todo", result.Findings[0].Finding.Category)
}

func TestFeedbackDemotesCategory(t *testing.T) {
	disliked := &stubAnalyzer{name: "styler", produce: producer("styler", "naming", model.SeverityMajor, 1, 0.8)}
	fresh := &stubAnalyzer{name: "secure", produce: producer("secure", "sql", model.SeverityMajor, 9, 0.8)}
	e := newTestEngine(disliked, fresh)
	unit := unitFixture("package main\n")

	result, err := e.Submit(context.Background(), unit, "team", Options{})
	require.NoError(t, err)
	require.Len(t, result.Findings, 2)
	assert.Equal(t, "naming", result.Findings[0].Finding.Category,
		"equal impact ties break by location")

	namingID := result.Findings[0].Finding.ID
	for i := 0; i < 10; i++ {
		require.NoError(t, e.RecordFeedback(namingID, false))
	}

	rescored, err := e.Submit(context.Background(), unit, "team", Options{SkipCache: true})
	require.NoError(t, err)
	require.Len(t, rescored.Findings, 2, "demoted finding stays visible")
	assert.Equal(t, "sql", rescored.Findings[0].Finding.Category,
		"a consistently dismissed category sinks")
	assert.Less(t, rescored.Findings[1].Score.Impact, result.Findings[0].Score.Impact)
}

func TestRecordFeedbackUnknownFinding(t *testing.T) {
	e := newTestEngine(&stubAnalyzer{name: "stub"})
	assert.ErrorIs(t, e.RecordFeedback("nope", true), ErrFindingNotFound)
}

const enginePatch = `--- a/main.go
+++ b/main.go
@@ -1,3 +1,3 @@
 package main

-var x = 1
+var count = 1
`

// routedProvider serves fix, chat, and semantic prompts with canned output.
type routedProvider struct {
	fixCalls  atomic.Int64
	chatCalls atomic.Int64
}

func (p *routedProvider) Name() string { return "routed" }

func (p *routedProvider) Complete(_ context.Context, req provider.Request) (provider.Response, error) {
	switch {
	case strings.Contains(req.System, "unified diff"):
		p.fixCalls.Add(1)
		return provider.Response{Content: enginePatch}, nil
	case strings.Contains(req.System, "follow-up"):
		p.chatCalls.Add(1)
		return provider.Response{Content: fmt.Sprintf("chat-answer-%d", p.chatCalls.Load())}, nil
	default:
		return provider.Response{Content: "[]"}, nil
	}
}

func newLLMEngine(p provider.Provider, analyzers ...analyzer.Analyzer) *Engine {
	e := NewEngine(testConfig(), Deps{Patterns: pattern.NewMemory(), Provider: p})
	e.registry = analyzer.NewRegistry(analyzers...)
	return e
}

func TestRequestFix(t *testing.T) {
	p := &routedProvider{}
	stub := &stubAnalyzer{name: "stub", produce: producer("stub", "naming", model.SeverityMinor, 3, 0.9)}
	e := newLLMEngine(p, stub)

	result, err := e.Submit(context.Background(), unitFixture("package main\n\nvar x = 1\n"), "team", Options{})
	require.NoError(t, err)
	id := result.Findings[0].Finding.ID

	fix, err := e.RequestFix(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, model.FixReady, fix.Status)
	assert.Contains(t, fix.Patch, "+var count = 1")

	// A second request reuses the stored suggestion.
	again, err := e.RequestFix(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, fix, again)
	assert.Equal(t, int64(1), p.fixCalls.Load())

	// The suggestion is attached to the cached result.
	cached, err := e.GetReview(context.Background(), result.Unit.Fingerprint)
	require.NoError(t, err)
	assert.Contains(t, cached.Fixes, id)
}

func TestRequestFixUnknownFinding(t *testing.T) {
	e := newLLMEngine(&routedProvider{}, &stubAnalyzer{name: "stub"})
	_, err := e.RequestFix(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrFindingNotFound)
}

func TestRequestFixWithoutProvider(t *testing.T) {
	e := newTestEngine(&stubAnalyzer{name: "stub"})
	_, err := e.RequestFix(context.Background(), "anything")
	assert.Error(t, err)
}

func TestFollowupSession(t *testing.T) {
	p := &routedProvider{}
	stub := &stubAnalyzer{name: "stub", produce: producer("stub", "sql", model.SeverityCritical, 10, 0.9)}
	e := newLLMEngine(p, stub)

	result, err := e.Submit(context.Background(), unitFixture("package main\n"), "team", Options{})
	require.NoError(t, err)

	sessionID, err := e.OpenSession(context.Background(), result.Unit.Fingerprint)
	require.NoError(t, err)

	answer, err := e.AskFollowup(context.Background(), sessionID, "why does this matter?")
	require.NoError(t, err)
	assert.Equal(t, "chat-answer-1", answer)
}

func TestOpenSessionUnknownResult(t *testing.T) {
	e := newLLMEngine(&routedProvider{}, &stubAnalyzer{name: "stub"})
	_, err := e.OpenSession(context.Background(), "not-a-fingerprint")
	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestEvictionPrunesFindingIndex(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Capacity = 1
	e := NewEngine(cfg, Deps{Patterns: pattern.NewMemory()})
	e.registry = analyzer.NewRegistry(&stubAnalyzer{
		name:    "stub",
		produce: producer("stub", "todo", model.SeverityMinor, 1, 0.9),
	})

	first, err := e.Submit(context.Background(), unitFixture("package one\n"), "team", Options{})
	require.NoError(t, err)
	firstID := first.Findings[0].Finding.ID
	require.NoError(t, e.RecordFeedback(firstID, true))

	// A second unit evicts the first from the capacity-1 cache.
	_, err = e.Submit(context.Background(), unitFixture("package two\n"), "team", Options{})
	require.NoError(t, err)

	assert.ErrorIs(t, e.RecordFeedback(firstID, true), ErrFindingNotFound,
		"feedback for evicted results is rejected without durable storage")
}

func TestDurableResultsOutliveTheCache(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "coderev.db"))
	require.NoError(t, err)
	defer db.Close()

	stub := &stubAnalyzer{name: "stub", produce: producer("stub", "sql", model.SeverityMajor, 4, 0.8)}
	e := NewEngine(testConfig(), Deps{Patterns: db, DB: db})
	e.registry = analyzer.NewRegistry(stub)
	unit := unitFixture("package main\n")

	result, err := e.Submit(context.Background(), unit, "team", Options{})
	require.NoError(t, err)

	e.cache.remove(unit.Fingerprint)

	reloaded, err := e.GetReview(context.Background(), unit.Fingerprint)
	require.NoError(t, err)
	assert.Equal(t, result.Unit.Fingerprint, reloaded.Unit.Fingerprint)
	assert.Equal(t, result.Score, reloaded.Score)
	assert.Equal(t, int64(1), stub.calls.Load(), "reload comes from storage, not re-analysis")

	listed, err := e.ListReviews("team", 10)
	require.NoError(t, err)
	assert.Len(t, listed, 1)

	require.NoError(t, e.DeleteReview(unit.Fingerprint))
	_, err = e.GetReview(context.Background(), unit.Fingerprint)
	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestTeamInsightsRoundTrip(t *testing.T) {
	stub := &stubAnalyzer{name: "stub", produce: producer("stub", "naming", model.SeverityMinor, 1, 0.9)}
	e := newTestEngine(stub)

	result, err := e.Submit(context.Background(), unitFixture("package main\n"), "team", Options{})
	require.NoError(t, err)

	id := result.Findings[0].Finding.ID
	require.NoError(t, e.RecordFeedback(id, true))
	require.NoError(t, e.RecordFeedback(id, false))

	profiles, err := e.TeamInsights("team")
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "naming", profiles[0].Category)
	assert.Equal(t, int64(1), profiles[0].Accepted)
	assert.Equal(t, int64(1), profiles[0].Dismissed)
}
