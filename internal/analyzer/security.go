package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/parable-ai/coderev/internal/model"
)

// Security-sensitive patterns grouped by category.
var securityPatterns = []struct {
	category   string
	patterns   []*regexp.Regexp
	severity   model.Severity
	confidence float64
}{
	{
		category: "authentication",
		patterns: compilePatterns(
			`(?i)(password|credential|jwt|oauth)\s*[:=]`,
			`(?i)\b(login|logout|signin|signup)\s*\(`,
		),
		severity:   model.SeverityMajor,
		confidence: 0.6,
	},
	{
		category: "authorization",
		patterns: compilePatterns(
			`(?i)(permission|role|access.?control|rbac|acl|is.?admin|can.?access)`,
		),
		severity:   model.SeverityMajor,
		confidence: 0.55,
	},
	{
		category: "sql",
		patterns: compilePatterns(
			`(?i)(db\.exec|db\.query|\.prepare\(|raw.?sql|cursor\.execute|connection\.execute)`,
			`(?i)(\bSELECT\b|\bINSERT\b|\bUPDATE\b|\bDELETE\b|\bDROP\b|\bALTER\b).*["'+%]\s*\+?\s*\w`,
		),
		severity:   model.SeverityCritical,
		confidence: 0.7,
	},
	{
		category: "cryptography",
		patterns: compilePatterns(
			`(?i)\b(md5|sha1)\s*\(`,
			`(?i)(private.?key|signing.?key)\s*[:=]`,
			`(?i)(InsecureSkipVerify|disable.?ssl|verify.?ssl.*false)`,
		),
		severity:   model.SeverityMajor,
		confidence: 0.7,
	},
	{
		category: "filesystem",
		patterns: compilePatterns(
			`(?i)(os\.Remove|os\.Chmod|os\.Chown|unlink|rmdir|shutil\.rmtree)`,
			`(?i)(path\.join|filepath\.join).*\.\.|\.\.\/`,
		),
		severity:   model.SeverityMinor,
		confidence: 0.5,
	},
	{
		category: "secrets",
		patterns: compilePatterns(
			`(?i)(api.?key|secret|token|password)\s*[:=]\s*["'][^"']{8,}["']`,
			`(?i)(PRIVATE|SECRET|PASSWORD|TOKEN)\s*=\s*["']`,
		),
		severity:   model.SeverityCritical,
		confidence: 0.8,
	},
	{
		category: "network",
		patterns: compilePatterns(
			`(?i)(http\.ListenAndServe|\.listen\(|allow.?origin.*\*)`,
			`(?i)tls\.Config\{`,
		),
		severity:   model.SeverityMinor,
		confidence: 0.5,
	},
	{
		category: "subprocess",
		patterns: compilePatterns(
			`(?i)(exec\.Command|os\.system|subprocess|child_process|shell_exec)`,
			`(?i)\b(eval|exec)\s*\(`,
		),
		severity:   model.SeverityMajor,
		confidence: 0.65,
	},
}

func compilePatterns(patterns ...string) []*regexp.Regexp {
	var compiled []*regexp.Regexp
	for _, p := range patterns {
		compiled = append(compiled, regexp.MustCompile(p))
	}
	return compiled
}

// Security is the deterministic security-surface analyzer.
type Security struct{}

// NewSecurity returns the security analyzer.
func NewSecurity() *Security { return &Security{} }

func (s *Security) Name() string           { return "security" }
func (s *Security) Timeout() time.Duration { return 5 * time.Second }
func (s *Security) MaxRetries() int        { return 0 }

// Analyze flags security-sensitive lines in the unit.
func (s *Security) Analyze(_ context.Context, unit *model.ReviewUnit) ([]model.Finding, error) {
	var findings []model.Finding
	seen := make(map[string]bool)

	for _, nl := range reviewableLines(unit) {
		if isCommentLine(nl.text) {
			continue
		}
		for _, sp := range securityPatterns {
			for _, re := range sp.patterns {
				if !re.MatchString(nl.text) {
					continue
				}
				loc := model.LineRange{Start: nl.number, End: nl.number}
				id := model.FindingID(unit.Fingerprint, s.Name(), sp.category, loc)
				if seen[id] {
					break
				}
				seen[id] = true
				findings = append(findings, model.Finding{
					ID:       id,
					Category: sp.category,
					Severity: sp.severity,
					Location: loc,
					Description: fmt.Sprintf("Security-sensitive change (%s): %s",
						sp.category, strings.TrimSpace(nl.text)),
					Suggestion: "Review this line with the security checklist for " + sp.category,
					Analyzer:   s.Name(),
					Confidence: sp.confidence,
				})
				break // one finding per pattern group per line
			}
		}
	}

	return findings, nil
}
