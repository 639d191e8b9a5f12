// Package review implements the orchestration engine: it takes a review
// unit through fingerprinting, cached single-flight computation, concurrent
// analysis, pattern-biased scoring, and optional fix generation, and it
// answers follow-up questions about completed reviews.
package review

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/parable-ai/coderev/internal/analyzer"
	"github.com/parable-ai/coderev/internal/config"
	"github.com/parable-ai/coderev/internal/fix"
	"github.com/parable-ai/coderev/internal/model"
	"github.com/parable-ai/coderev/internal/pattern"
	"github.com/parable-ai/coderev/internal/provider"
	"github.com/parable-ai/coderev/internal/scoring"
	"github.com/parable-ai/coderev/internal/session"
	"github.com/parable-ai/coderev/internal/store"
)

// Options tune one submit call.
type Options struct {
	// Analyzers selects a subset by name; empty means all registered.
	Analyzers []string
	// Deadline is the wall-clock budget for the whole pipeline,
	// including any queueing for provider admission. Zero means no
	// explicit budget (the caller's context still governs).
	Deadline time.Duration
	// SkipCache forces recomputation even when a result is cached.
	SkipCache bool
}

// Deps are the engine's external collaborators.
type Deps struct {
	// Provider is the LLM dependency; nil disables the semantic
	// analyzer, fix generation, and follow-up sessions.
	Provider provider.Provider
	// Patterns is the team-pattern store. Required.
	Patterns pattern.Store
	// DB is optional durable storage for results; nil keeps results
	// in-memory only.
	DB *store.DB
	// Logger defaults to a nop logger.
	Logger *zap.Logger
}

// Engine is the top-level review coordinator.
type Engine struct {
	cfg      config.Config
	registry *analyzer.Registry
	scorer   *scoring.Engine
	patterns pattern.Store
	fixer    *fix.Generator
	sessions *session.Manager
	cache    *resultCache
	db       *store.DB
	log      *zap.Logger

	mu       sync.Mutex
	index    map[string]findingRef
	fixGroup singleflight.Group
}

type findingRef struct {
	fingerprint string
	teamID      string
	category    string
}

// NewEngine wires the pipeline from configuration and collaborators.
func NewEngine(cfg config.Config, deps Deps) *Engine {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	e := &Engine{
		cfg:      cfg,
		scorer:   scoring.New(cfg.Scoring),
		patterns: deps.Patterns,
		db:       deps.DB,
		log:      log,
		index:    make(map[string]findingRef),
	}
	e.cache = newResultCache(cfg.Cache.Capacity, cfg.Cache.TTL, e.onEvict)

	analyzers := []analyzer.Analyzer{
		analyzer.NewStatic(),
		analyzer.NewSecurity(),
	}
	if deps.Provider != nil {
		gated := provider.NewGate(deps.Provider, cfg.Provider.MaxInFlight, log)
		analyzers = append(analyzers, analyzer.NewSemantic(
			gated, cfg.Provider.Timeout, cfg.Provider.MaxRetries, log))
		e.fixer = fix.New(gated, cfg.Provider.MaxRetries, log)
		e.sessions = session.NewManager(gated, cfg.Provider.MaxRetries, cfg.Session,
			func(ctx context.Context, fingerprint string) (*model.ReviewResult, error) {
				return e.resultFor(ctx, fingerprint)
			}, log)
	}
	e.registry = analyzer.NewRegistry(analyzers...)
	return e
}

// Analyzers lists the registered analyzer names.
func (e *Engine) Analyzers() []string { return e.registry.Names() }

// NewUnit builds a fingerprinted unit using the engine's normalization
// settings.
func (e *Engine) NewUnit(repoID, path, language, content string) *model.ReviewUnit {
	return model.NewReviewUnit(repoID, path, language, content, model.FingerprintOptions{
		IgnoreWhitespace: e.cfg.Fingerprint.IgnoreWhitespace,
	})
}

// Submit runs the full pipeline for one unit. Partial analyzer failure
// still completes with the surviving findings plus failure metadata; the
// request fails only when every analyzer fails or the deadline expires.
// Failed requests are never cached.
func (e *Engine) Submit(ctx context.Context, unit *model.ReviewUnit, teamID string, opts Options) (*model.ReviewResult, error) {
	log := e.log.With(
		zap.String("fingerprint", shortFP(unit.Fingerprint)),
		zap.String("team", teamID),
	)
	log.Debug("review pending")

	if opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Deadline)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		log.Debug("review failed before start", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDeadlineExceeded, err)
	}

	analyzers, err := e.registry.Select(opts.Analyzers)
	if err != nil {
		return nil, stageErr("pending", err)
	}

	result, err := e.cache.getOrCompute(ctx, unit.Fingerprint, opts.SkipCache, func() (*model.ReviewResult, error) {
		if !opts.SkipCache && e.db != nil {
			if stored, err := e.db.GetReview(unit.Fingerprint); err == nil {
				e.indexResult(stored)
				return stored, nil
			}
		}
		return e.compute(ctx, unit, teamID, analyzers, log)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%w: %v", ErrDeadlineExceeded, err)
		}
		return nil, err
	}
	return result, nil
}

// compute runs analyzers concurrently and scores whatever survived. It is
// invoked at most once per fingerprint at a time (single-flight).
func (e *Engine) compute(ctx context.Context, unit *model.ReviewUnit, teamID string, analyzers []analyzer.Analyzer, log *zap.Logger) (*model.ReviewResult, error) {
	log.Debug("review analyzing", zap.Int("analyzers", len(analyzers)))

	type outcome struct {
		findings []model.Finding
		err      error
		timedOut bool
	}
	outcomes := make([]outcome, len(analyzers))

	var wg sync.WaitGroup
	for i, a := range analyzers {
		wg.Add(1)
		go func(i int, a analyzer.Analyzer) {
			defer wg.Done()
			actx, cancel := context.WithTimeout(ctx, a.Timeout())
			defer cancel()

			start := time.Now()
			findings, err := a.Analyze(actx, unit)
			timedOut := err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
			outcomes[i] = outcome{findings: findings, err: err, timedOut: timedOut}

			if err != nil {
				log.Warn("analyzer failed",
					zap.String("analyzer", a.Name()),
					zap.Duration("elapsed", time.Since(start)),
					zap.Bool("timedOut", timedOut),
					zap.Error(err))
			} else {
				log.Debug("analyzer completed",
					zap.String("analyzer", a.Name()),
					zap.Int("findings", len(findings)),
					zap.Duration("elapsed", time.Since(start)))
			}
		}(i, a)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	// Scoring never starts on a partial subset: wait until every
	// analyzer settles or the request deadline cuts them all off.
	select {
	case <-done:
	case <-ctx.Done():
		return nil, stageErr("analyzing", ctx.Err())
	}

	var findings []model.Finding
	var failures []model.AnalyzerFailure
	for i, a := range analyzers {
		o := outcomes[i]
		if o.err != nil {
			failures = append(failures, model.AnalyzerFailure{
				Analyzer: a.Name(),
				Stage:    "analyzing",
				Err:      o.err.Error(),
				TimedOut: o.timedOut,
			})
			continue
		}
		findings = append(findings, o.findings...)
	}
	if len(failures) == len(analyzers) {
		return nil, stageErr("analyzing", fmt.Errorf("%w: %v", ErrAllAnalyzersFailed, failureSummary(failures)))
	}

	log.Debug("review scoring", zap.Int("rawFindings", len(findings)))
	biasMemo := make(map[string]float64)
	scored := e.scorer.Score(findings, func(category string) float64 {
		if b, ok := biasMemo[category]; ok {
			return b
		}
		b, err := e.patterns.Bias(teamID, category)
		if err != nil {
			log.Warn("bias lookup failed", zap.String("category", category), zap.Error(err))
			b = 0.5
		}
		biasMemo[category] = b
		return b
	})

	result := &model.ReviewResult{
		Unit:       unit,
		TeamID:     teamID,
		Findings:   scored,
		Fixes:      make(map[string]*model.FixSuggestion),
		Failures:   failures,
		Score:      scoring.QualityScore(scored),
		Metrics:    scoring.Metrics(scored),
		ComputedAt: time.Now(),
	}

	if e.db != nil {
		if err := e.db.SaveReview(result); err != nil {
			log.Warn("persisting review failed", zap.Error(err))
		}
	}
	e.indexResult(result)

	log.Info("review complete",
		zap.Int("findings", len(scored)),
		zap.Int("failures", len(failures)),
		zap.Int("score", result.Score))
	return result, nil
}

// RequestFix lazily generates (at most once concurrently per finding) a
// fix suggestion for a previously surfaced finding.
func (e *Engine) RequestFix(ctx context.Context, findingID string) (*model.FixSuggestion, error) {
	if e.fixer == nil {
		return nil, stageErr("fix", errors.New("no provider configured"))
	}
	ref, ok := e.lookup(findingID)
	if !ok {
		return nil, ErrFindingNotFound
	}
	result, err := e.resultFor(ctx, ref.fingerprint)
	if err != nil {
		return nil, err
	}
	sf, ok := result.FindingByID(findingID)
	if !ok {
		return nil, ErrFindingNotFound
	}

	e.mu.Lock()
	if existing, ok := result.Fixes[findingID]; ok && existing.Status == model.FixReady {
		e.mu.Unlock()
		return existing, nil
	}
	e.mu.Unlock()

	v, err, _ := e.fixGroup.Do("fix:"+findingID, func() (any, error) {
		suggestion := e.fixer.Generate(ctx, result.Unit, sf.Finding)
		e.mu.Lock()
		result.Fixes[findingID] = suggestion
		e.mu.Unlock()
		if e.db != nil {
			if err := e.db.SaveReview(result); err != nil {
				e.log.Warn("persisting fix failed", zap.Error(err))
			}
		}
		return suggestion, nil
	})
	if err != nil {
		return nil, stageErr("fix", err)
	}
	return v.(*model.FixSuggestion), nil
}

// RecordFeedback records reviewer acceptance or dismissal of a finding
// against the owning team's pattern profile.
func (e *Engine) RecordFeedback(findingID string, accepted bool) error {
	ref, ok := e.lookup(findingID)
	if !ok {
		return ErrFindingNotFound
	}
	if err := e.patterns.RecordFeedback(ref.teamID, ref.category, accepted); err != nil {
		return stageErr("feedback", err)
	}
	e.log.Debug("feedback recorded",
		zap.String("finding", findingID),
		zap.String("category", ref.category),
		zap.Bool("accepted", accepted))
	return nil
}

// OpenSession starts a follow-up session for a completed review.
func (e *Engine) OpenSession(ctx context.Context, fingerprint string) (string, error) {
	if e.sessions == nil {
		return "", stageErr("session", errors.New("no provider configured"))
	}
	if _, err := e.resultFor(ctx, fingerprint); err != nil {
		return "", err
	}
	return e.sessions.Open(fingerprint), nil
}

// AskFollowup answers a question in an existing session.
func (e *Engine) AskFollowup(ctx context.Context, sessionID, question string) (string, error) {
	if e.sessions == nil {
		return "", stageErr("session", errors.New("no provider configured"))
	}
	return e.sessions.Ask(ctx, sessionID, question)
}

// TeamInsights returns the team's pattern profiles.
func (e *Engine) TeamInsights(teamID string) ([]pattern.Profile, error) {
	return e.patterns.Profiles(teamID)
}

// DecayTeam scales the team's acceptance history by factor in (0,1) so old
// feedback loses weight.
func (e *Engine) DecayTeam(teamID string, factor float64) error {
	return e.patterns.Decay(teamID, factor)
}

// GetReview returns a completed result from cache or durable storage.
func (e *Engine) GetReview(ctx context.Context, fingerprint string) (*model.ReviewResult, error) {
	return e.resultFor(ctx, fingerprint)
}

// ListReviews returns recent persisted results for a team.
func (e *Engine) ListReviews(teamID string, limit int) ([]*model.ReviewResult, error) {
	if e.db == nil {
		return nil, nil
	}
	return e.db.ListReviews(teamID, limit)
}

// DeleteReview removes a result from cache and durable storage.
func (e *Engine) DeleteReview(fingerprint string) error {
	e.cache.remove(fingerprint)
	if e.db != nil {
		return e.db.DeleteReview(fingerprint)
	}
	return nil
}

// resultFor loads a completed result from the cache, falling back to
// durable storage (re-adopting it into the cache).
func (e *Engine) resultFor(_ context.Context, fingerprint string) (*model.ReviewResult, error) {
	if result, ok := e.cache.get(fingerprint); ok {
		return result, nil
	}
	if e.db != nil {
		result, err := e.db.GetReview(fingerprint)
		if err == nil {
			e.cache.put(fingerprint, result)
			e.indexResult(result)
			return result, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, stageErr("cache", err)
		}
	}
	return nil, ErrResultNotFound
}

func (e *Engine) indexResult(result *model.ReviewResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, sf := range result.Findings {
		e.index[sf.Finding.ID] = findingRef{
			fingerprint: result.Unit.Fingerprint,
			teamID:      result.TeamID,
			category:    sf.Finding.Category,
		}
	}
}

func (e *Engine) lookup(findingID string) (findingRef, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ref, ok := e.index[findingID]
	return ref, ok
}

// onEvict invalidates sessions and prunes the finding index when a
// completed entry leaves the cache.
func (e *Engine) onEvict(fingerprint string) {
	if e.sessions != nil {
		e.sessions.Invalidate(fingerprint)
	}
	e.mu.Lock()
	for id, ref := range e.index {
		if ref.fingerprint == fingerprint {
			delete(e.index, id)
		}
	}
	e.mu.Unlock()
}

func failureSummary(failures []model.AnalyzerFailure) string {
	var b []byte
	for i, f := range failures {
		if i > 0 {
			b = append(b, "; "...)
		}
		b = append(b, f.Analyzer...)
		b = append(b, ": "...)
		b = append(b, f.Err...)
	}
	return string(b)
}

func shortFP(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
