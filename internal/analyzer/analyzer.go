// Package analyzer implements the pluggable analysis stages that produce
// raw findings for one review unit. Adding an analyzer means adding a
// variant to the registry, not patching dispatch logic.
package analyzer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/parable-ai/coderev/internal/model"
)

// Analyzer is one analysis capability. Each variant declares its own
// timeout and retry budget; the orchestrator enforces both.
type Analyzer interface {
	Name() string
	Timeout() time.Duration
	MaxRetries() int
	Analyze(ctx context.Context, unit *model.ReviewUnit) ([]model.Finding, error)
}

// Registry holds the fixed set of registered analyzers in a stable order.
type Registry struct {
	order     []string
	analyzers map[string]Analyzer
}

// NewRegistry registers the given analyzers. Order is preserved and
// becomes the invocation order used for deterministic tie-breaking.
func NewRegistry(analyzers ...Analyzer) *Registry {
	r := &Registry{analyzers: make(map[string]Analyzer)}
	for _, a := range analyzers {
		if _, dup := r.analyzers[a.Name()]; dup {
			continue
		}
		r.order = append(r.order, a.Name())
		r.analyzers[a.Name()] = a
	}
	return r
}

// All returns every registered analyzer in registration order.
func (r *Registry) All() []Analyzer {
	out := make([]Analyzer, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.analyzers[name])
	}
	return out
}

// Select returns the named subset in registration order. An empty name
// list selects all analyzers. Unknown names are an error.
func (r *Registry) Select(names []string) ([]Analyzer, error) {
	if len(names) == 0 {
		return r.All(), nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := r.analyzers[n]; !ok {
			known := append([]string(nil), r.order...)
			sort.Strings(known)
			return nil, fmt.Errorf("unknown analyzer %q (registered: %v)", n, known)
		}
		want[n] = true
	}
	var out []Analyzer
	for _, name := range r.order {
		if want[name] {
			out = append(out, r.analyzers[name])
		}
	}
	return out, nil
}

// Names returns the registered analyzer names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
