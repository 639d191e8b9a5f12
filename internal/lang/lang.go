// Package lang detects the programming language of a review unit.
package lang

import (
	"strings"

	"github.com/alecthomas/chroma/v2/lexers"
)

// Detect returns a lowercase language name for the given filename and
// content. The filename extension wins; content heuristics are the fallback.
// Returns "unknown" when nothing matches.
func Detect(filename, content string) string {
	if filename != "" {
		if lexer := lexers.Match(filename); lexer != nil {
			return normalize(lexer.Config().Name)
		}
	}
	if lexer := lexers.Analyse(content); lexer != nil {
		return normalize(lexer.Config().Name)
	}
	return "unknown"
}

func normalize(name string) string {
	name = strings.ToLower(name)
	// Chroma uses display names; fold the common ones to identifiers.
	switch name {
	case "c++":
		return "cpp"
	case "c#":
		return "csharp"
	}
	return strings.ReplaceAll(name, " ", "-")
}
