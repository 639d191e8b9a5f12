package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parable-ai/coderev/internal/model"
	"github.com/parable-ai/coderev/internal/provider"
)

const semanticSystemPrompt = `You are an expert code reviewer. You receive one file or diff and
respond with ONLY a JSON array of findings. Each finding has the fields:
severity ("info"|"minor"|"major"|"critical"), category (short kebab-case
identifier), startLine, endLine, description, suggestion, confidence (0-1).
Report real issues only; an empty array is a valid answer.`

// Semantic is the LLM-backed analyzer. It is non-deterministic across
// calls and subject to provider failures and rate limits; the orchestrator
// treats its errors as an AnalyzerFailure, never as a request failure on
// its own.
type Semantic struct {
	provider   provider.Provider
	timeout    time.Duration
	maxRetries int
	log        *zap.Logger
}

// NewSemantic builds the LLM analyzer.
func NewSemantic(p provider.Provider, timeout time.Duration, maxRetries int, log *zap.Logger) *Semantic {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Semantic{provider: p, timeout: timeout, maxRetries: maxRetries, log: log}
}

func (s *Semantic) Name() string           { return "semantic" }
func (s *Semantic) Timeout() time.Duration { return s.timeout }
func (s *Semantic) MaxRetries() int        { return s.maxRetries }

// Analyze asks the provider for findings and parses the JSON reply. A
// malformed reply gets exactly one repair pass before failing.
func (s *Semantic) Analyze(ctx context.Context, unit *model.ReviewUnit) ([]model.Finding, error) {
	req := provider.Request{
		System:      semanticSystemPrompt,
		Prompt:      s.buildPrompt(unit),
		MaxTokens:   4096,
		Temperature: 0.2,
	}

	resp, err := provider.CompleteWithRetry(ctx, s.provider, req, s.maxRetries, s.log)
	if err != nil {
		return nil, fmt.Errorf("semantic analysis: %w", err)
	}

	findings, err := s.parseFindings(unit, resp.Content)
	if err == nil {
		return findings, nil
	}

	s.log.Debug("semantic reply malformed, attempting repair", zap.Error(err))
	repair := provider.Request{
		System: semanticSystemPrompt,
		Prompt: fmt.Sprintf(
			"Your previous response was not a valid JSON findings array (%v). Respond again with ONLY the corrected JSON array.\n\nPrevious response:\n%s",
			err, resp.Content),
		MaxTokens: 4096,
	}
	resp2, err2 := provider.CompleteWithRetry(ctx, s.provider, repair, s.maxRetries, s.log)
	if err2 != nil {
		return nil, fmt.Errorf("semantic repair pass: %w", err2)
	}
	findings, err = s.parseFindings(unit, resp2.Content)
	if err != nil {
		return nil, fmt.Errorf("semantic reply invalid after repair: %w", err)
	}
	return findings, nil
}

func (s *Semantic) buildPrompt(unit *model.ReviewUnit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Review this %s code", unit.Language)
	if unit.Path != "" {
		fmt.Fprintf(&b, " from %s", unit.Path)
	}
	b.WriteString(":\n\n```")
	b.WriteString(unit.Language)
	b.WriteString("\n")
	b.WriteString(unit.Content)
	b.WriteString("\n```\n")
	return b.String()
}

type rawFinding struct {
	Severity    string  `json:"severity"`
	Category    string  `json:"category"`
	StartLine   int     `json:"startLine"`
	EndLine     int     `json:"endLine"`
	Description string  `json:"description"`
	Suggestion  string  `json:"suggestion"`
	Confidence  float64 `json:"confidence"`
}

func (s *Semantic) parseFindings(unit *model.ReviewUnit, content string) ([]model.Finding, error) {
	content = stripFences(content)

	var raw []rawFinding
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON array: %w", err)
	}

	findings := make([]model.Finding, 0, len(raw))
	for _, r := range raw {
		if r.EndLine < r.StartLine {
			r.EndLine = r.StartLine
		}
		conf := r.Confidence
		if conf <= 0 || conf > 1 {
			conf = 0.5
		}
		category := r.Category
		if category == "" {
			category = "semantic"
		}
		loc := model.LineRange{Start: r.StartLine, End: r.EndLine}
		findings = append(findings, model.Finding{
			ID:          model.FindingID(unit.Fingerprint, s.Name(), category, loc),
			Category:    category,
			Severity:    model.ParseSeverity(r.Severity),
			Location:    loc,
			Description: r.Description,
			Suggestion:  r.Suggestion,
			Analyzer:    s.Name(),
			Confidence:  conf,
		})
	}
	return findings, nil
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return content
	}
	end := len(lines)
	if strings.TrimSpace(lines[end-1]) == "```" {
		end--
	}
	return strings.Join(lines[1:end], "\n")
}
