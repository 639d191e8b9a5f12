package provider

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Gate wraps a Provider with a global cap on in-flight calls. Callers
// beyond the cap queue in FIFO order; queueing time counts against the
// caller's deadline, so a context that expires while waiting fails with
// the context error rather than ever reaching the provider.
type Gate struct {
	inner Provider
	sem   *semaphore.Weighted
	log   *zap.Logger
}

// NewGate caps concurrent calls to inner at maxInFlight (minimum 1).
func NewGate(inner Provider, maxInFlight int, log *zap.Logger) *Gate {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{
		inner: inner,
		sem:   semaphore.NewWeighted(int64(maxInFlight)),
		log:   log,
	}
}

func (g *Gate) Name() string { return g.inner.Name() }

// Complete acquires an admission slot, then delegates.
func (g *Gate) Complete(ctx context.Context, req Request) (Response, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return Response{}, Classify(g.Name(), err)
	}
	defer g.sem.Release(1)

	resp, err := g.inner.Complete(ctx, req)
	if err != nil {
		g.log.Debug("provider call failed",
			zap.String("provider", g.Name()),
			zap.Error(err))
	}
	return resp, err
}
