package pattern

import (
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store. Increment semantics match the SQLite
// store: atomic, commutative adds under a single mutex.
type Memory struct {
	mu       sync.Mutex
	profiles map[memKey]*Profile
}

type memKey struct {
	team     string
	category string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{profiles: make(map[memKey]*Profile)}
}

// Bias implements Store.
func (m *Memory) Bias(teamID, category string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[memKey{teamID, category}]
	if !ok {
		return 0.5, nil
	}
	return p.Bias(), nil
}

// RecordFeedback implements Store.
func (m *Memory) RecordFeedback(teamID, category string, accepted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memKey{teamID, category}
	p, ok := m.profiles[k]
	if !ok {
		p = &Profile{TeamID: teamID, Category: category}
		m.profiles[k] = p
	}
	if accepted {
		p.Accepted++
	} else {
		p.Dismissed++
	}
	p.LastUpdated = time.Now()
	return nil
}

// Profiles implements Store.
func (m *Memory) Profiles(teamID string) ([]Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Profile
	for k, p := range m.profiles {
		if k.team == teamID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// Decay implements Store.
func (m *Memory) Decay(teamID string, factor float64) error {
	if factor <= 0 || factor >= 1 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, p := range m.profiles {
		if k.team != teamID {
			continue
		}
		p.Accepted = int64(float64(p.Accepted) * factor)
		p.Dismissed = int64(float64(p.Dismissed) * factor)
		p.LastUpdated = time.Now()
	}
	return nil
}
