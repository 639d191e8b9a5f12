// Package fix generates proposed patches for findings on demand, using the
// same provider-call discipline as the analyzers.
package fix

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/parable-ai/coderev/internal/diff"
	"github.com/parable-ai/coderev/internal/model"
	"github.com/parable-ai/coderev/internal/provider"
)

const fixSystemPrompt = `You are an expert code reviewer producing fixes. You receive a file and
one finding about it. Respond with ONLY a unified diff (git format,
"--- a/..." and "+++ b/..." headers) that fixes the finding. No prose, no
markdown fences.`

// Generator produces fix suggestions lazily, one finding at a time, to
// bound provider call volume.
type Generator struct {
	provider   provider.Provider
	maxRetries int
	log        *zap.Logger
}

// New builds a fix generator.
func New(p provider.Provider, maxRetries int, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{provider: p, maxRetries: maxRetries, log: log}
}

// Generate asks the provider for a patch and validates it before marking
// the suggestion ready. Transient provider errors are retried with backoff;
// permanent ones fail immediately. A malformed patch fails the suggestion
// but retains the raw model output for diagnostics.
func (g *Generator) Generate(ctx context.Context, unit *model.ReviewUnit, finding model.Finding) *model.FixSuggestion {
	suggestion := &model.FixSuggestion{FindingID: finding.ID, Status: model.FixPending}

	req := provider.Request{
		System:    fixSystemPrompt,
		Prompt:    g.buildPrompt(unit, finding),
		MaxTokens: 4096,
	}
	resp, err := provider.CompleteWithRetry(ctx, g.provider, req, g.maxRetries, g.log)
	if err != nil {
		suggestion.Status = model.FixFailed
		suggestion.Err = err.Error()
		return suggestion
	}

	patch := strings.TrimSpace(stripFence(resp.Content))
	suggestion.RawOutput = resp.Content

	if err := diff.ValidatePatch(patch); err != nil {
		g.log.Debug("generated patch rejected",
			zap.String("finding", finding.ID),
			zap.Error(err))
		suggestion.Status = model.FixFailed
		suggestion.Err = err.Error()
		return suggestion
	}

	suggestion.Patch = patch
	suggestion.Status = model.FixReady
	return suggestion
}

func (g *Generator) buildPrompt(unit *model.ReviewUnit, finding model.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "File: %s (%s)\n", unit.Path, unit.Language)
	fmt.Fprintf(&b, "Finding at line %s [%s, %s]: %s\n",
		finding.Location, finding.Category, finding.Severity, finding.Description)
	if finding.Suggestion != "" {
		fmt.Fprintf(&b, "Suggested direction: %s\n", finding.Suggestion)
	}
	b.WriteString("\nContent:\n```\n")
	b.WriteString(unit.Content)
	b.WriteString("\n```\n")
	return b.String()
}

func stripFence(content string) string {
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
