// Package diff handles parsing unified diffs into structured representations.
package diff

import (
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// File represents a single file in a diff with its parsed fragments.
type File struct {
	OldName      string
	NewName      string
	IsNew        bool
	IsDeleted    bool
	IsRenamed    bool
	IsBinary     bool
	Fragments    []*gitdiff.TextFragment
	AddedLines   int
	DeletedLines int
}

// Name returns the display name for the file.
func (f *File) Name() string {
	if f.IsNew {
		return f.NewName
	}
	if f.IsDeleted {
		return f.OldName
	}
	if f.NewName != "" {
		return f.NewName
	}
	return f.OldName
}

// AddedLine is one added line with its position in the new file.
type AddedLine struct {
	Number int
	Text   string
}

// Added returns all added lines with their new-file line numbers.
func (f *File) Added() []AddedLine {
	var out []AddedLine
	for _, frag := range f.Fragments {
		n := int(frag.NewPosition)
		for _, line := range frag.Lines {
			if line.Op == gitdiff.OpAdd {
				out = append(out, AddedLine{Number: n, Text: line.Line})
			}
			if line.Op == gitdiff.OpAdd || line.Op == gitdiff.OpContext {
				n++
			}
		}
	}
	return out
}

// DiffSet holds the parsed diff for all files.
type DiffSet struct {
	Files []*File
	Raw   string
}

// Stats returns aggregate statistics.
func (ds *DiffSet) Stats() (files, added, deleted int) {
	files = len(ds.Files)
	for _, f := range ds.Files {
		added += f.AddedLines
		deleted += f.DeletedLines
	}
	return
}

// IsDiff reports whether the text looks like a unified diff. Used to decide
// whether a review unit should be analyzed as a patch or as a whole file.
func IsDiff(text string) bool {
	trimmed := strings.TrimSpace(text)
	return strings.HasPrefix(trimmed, "diff --git ") ||
		strings.HasPrefix(trimmed, "--- ")
}

// Parse reads a unified diff string and returns a DiffSet.
func Parse(raw string) (*DiffSet, error) {
	parsed, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	ds := &DiffSet{Raw: raw}
	for _, f := range parsed {
		df := &File{
			OldName:   f.OldName,
			NewName:   f.NewName,
			IsNew:     f.IsNew,
			IsDeleted: f.IsDelete,
			IsRenamed: f.IsRename,
			IsBinary:  f.IsBinary,
		}

		for _, frag := range f.TextFragments {
			df.Fragments = append(df.Fragments, frag)
			for _, line := range frag.Lines {
				switch line.Op {
				case gitdiff.OpAdd:
					df.AddedLines++
				case gitdiff.OpDelete:
					df.DeletedLines++
				}
			}
		}

		ds.Files = append(ds.Files, df)
	}

	return ds, nil
}

// ValidatePatch checks that text parses as a well-formed unified diff
// touching at least one file. Fix suggestions must pass this before being
// marked ready.
func ValidatePatch(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("empty patch")
	}
	files, _, err := gitdiff.Parse(strings.NewReader(text))
	if err != nil {
		return fmt.Errorf("malformed patch: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("patch contains no file changes")
	}
	return nil
}
