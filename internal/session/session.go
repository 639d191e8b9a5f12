// Package session maintains conversational context for follow-up questions
// about a reviewed unit. Each ask is a single request/response with
// deterministic context assembly; there is no hidden event loop.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parable-ai/coderev/internal/config"
	"github.com/parable-ai/coderev/internal/model"
	"github.com/parable-ai/coderev/internal/provider"
)

const chatSystemPrompt = `You are a code review assistant answering follow-up questions about a
completed review. Be concrete; when suggesting fixes, include code.`

// ErrUnknownSession is returned for session ids the manager has not issued.
var ErrUnknownSession = fmt.Errorf("unknown session")

// Turn is one question/answer exchange.
type Turn struct {
	Question string
	Answer   string
	AskedAt  time.Time
}

// Session threads follow-up questions about one review result. Turn
// history is append-only.
type Session struct {
	ID          string
	Fingerprint string
	Turns       []Turn

	// findingContext is the materialized summary of the underlying
	// result. Cleared when the result is evicted; rebuilt on next use.
	findingContext string
}

// Resolver produces the review result for a fingerprint, recomputing it if
// it was evicted from the cache.
type Resolver func(ctx context.Context, fingerprint string) (*model.ReviewResult, error)

// Manager owns the live sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	byUnit   map[string][]string // fingerprint -> session ids

	provider   provider.Provider
	maxRetries int
	cfg        config.SessionConfig
	resolve    Resolver
	log        *zap.Logger
}

// NewManager builds a session manager.
func NewManager(p provider.Provider, maxRetries int, cfg config.SessionConfig, resolve Resolver, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 8
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = 16000
	}
	return &Manager{
		sessions:   make(map[string]*Session),
		byUnit:     make(map[string][]string),
		provider:   p,
		maxRetries: maxRetries,
		cfg:        cfg,
		resolve:    resolve,
		log:        log,
	}
}

// Open creates a session bound to the given review unit and returns its id.
func (m *Manager) Open(fingerprint string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &Session{ID: uuid.NewString(), Fingerprint: fingerprint}
	m.sessions[s.ID] = s
	m.byUnit[fingerprint] = append(m.byUnit[fingerprint], s.ID)
	return s.ID
}

// Invalidate clears materialized context for every session bound to the
// fingerprint. Wired to the result cache's eviction hook: the next ask
// re-materializes through the resolver.
func (m *Manager) Invalidate(fingerprint string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.byUnit[fingerprint] {
		if s, ok := m.sessions[id]; ok {
			s.findingContext = ""
		}
	}
}

// History returns a copy of the session's turns.
func (m *Manager) History(sessionID string) ([]Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrUnknownSession
	}
	return append([]Turn(nil), s.Turns...), nil
}

// Ask answers a follow-up question with the session's accumulated context
// and appends the exchange to the turn history.
func (m *Manager) Ask(ctx context.Context, sessionID, question string) (string, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return "", ErrUnknownSession
	}
	findingContext := s.findingContext
	fingerprint := s.Fingerprint
	turns := append([]Turn(nil), s.Turns...)
	m.mu.Unlock()

	if findingContext == "" {
		result, err := m.resolve(ctx, fingerprint)
		if err != nil {
			return "", fmt.Errorf("materializing session context: %w", err)
		}
		findingContext = summarize(result)
	}

	prompt := m.assemble(findingContext, turns, question)
	resp, err := provider.CompleteWithRetry(ctx, m.provider, provider.Request{
		System:      chatSystemPrompt,
		Prompt:      prompt,
		MaxTokens:   1024,
		Temperature: 0.7,
	}, m.maxRetries, m.log)
	if err != nil {
		return "", fmt.Errorf("follow-up call: %w", err)
	}

	m.mu.Lock()
	if s, ok := m.sessions[sessionID]; ok {
		s.findingContext = findingContext
		s.Turns = append(s.Turns, Turn{Question: question, Answer: resp.Content, AskedAt: time.Now()})
	}
	m.mu.Unlock()

	return resp.Content, nil
}

// assemble builds the prompt: finding context first, then the most recent
// turns that fit the budget (oldest truncated first), then the question.
func (m *Manager) assemble(findingContext string, turns []Turn, question string) string {
	if len(turns) > m.cfg.MaxTurns {
		turns = turns[len(turns)-m.cfg.MaxTurns:]
	}

	var history strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&history, "Q: %s\nA: %s\n\n", t.Question, t.Answer)
	}

	budget := m.cfg.MaxContextChars - len(question)
	if budget < 0 {
		budget = 0
	}
	ctxPart := findingContext
	if len(ctxPart) > budget/2 {
		ctxPart = ctxPart[:budget/2]
	}
	hist := history.String()
	if remaining := budget - len(ctxPart); len(hist) > remaining && remaining > 0 {
		hist = hist[len(hist)-remaining:]
	}

	var b strings.Builder
	b.WriteString("Review context:\n")
	b.WriteString(ctxPart)
	if hist != "" {
		b.WriteString("\nConversation so far:\n")
		b.WriteString(hist)
	}
	b.WriteString("\nQuestion: ")
	b.WriteString(question)
	return b.String()
}

func summarize(result *model.ReviewResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Unit %s (%s), quality score %d/100.\n",
		result.Unit.Path, result.Unit.Language, result.Score)
	for i, sf := range result.Findings {
		fmt.Fprintf(&b, "%d. [%s/%s] line %s: %s\n",
			i+1, sf.Finding.Severity, sf.Finding.Category,
			sf.Finding.Location, sf.Finding.Description)
	}
	if len(result.Failures) > 0 {
		b.WriteString("Analyzers that did not complete:")
		for _, f := range result.Failures {
			fmt.Fprintf(&b, " %s", f.Analyzer)
		}
		b.WriteString("\n")
	}
	return b.String()
}
