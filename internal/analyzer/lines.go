package analyzer

import (
	"strings"

	"github.com/parable-ai/coderev/internal/diff"
	"github.com/parable-ai/coderev/internal/model"
)

// numberedLine is one reviewable source line with its line number in the
// (new) file.
type numberedLine struct {
	number int
	text   string
}

// reviewableLines extracts the lines an analyzer should inspect. Units
// holding a unified diff contribute only their added lines; whole files
// contribute everything.
func reviewableLines(unit *model.ReviewUnit) []numberedLine {
	if diff.IsDiff(unit.Content) {
		if ds, err := diff.Parse(unit.Content); err == nil {
			var out []numberedLine
			for _, f := range ds.Files {
				for _, al := range f.Added() {
					out = append(out, numberedLine{number: al.Number, text: al.Text})
				}
			}
			return out
		}
	}
	lines := unit.Lines()
	out := make([]numberedLine, 0, len(lines))
	for i, l := range lines {
		out = append(out, numberedLine{number: i + 1, text: l})
	}
	return out
}

func isCommentLine(text string) bool {
	trimmed := strings.TrimSpace(text)
	return strings.HasPrefix(trimmed, "//") ||
		strings.HasPrefix(trimmed, "#") ||
		strings.HasPrefix(trimmed, "*") ||
		strings.HasPrefix(trimmed, "/*")
}
