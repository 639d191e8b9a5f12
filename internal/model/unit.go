package model

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode"
)

// ReviewUnit is the thing being reviewed: one file or diff attributed to a
// repository. Immutable once fingerprinted — two units with equal
// fingerprints are identical for caching purposes.
type ReviewUnit struct {
	RepoID      string
	Path        string
	Language    string
	Content     string
	Fingerprint string
}

// FingerprintOptions controls content normalization before hashing.
type FingerprintOptions struct {
	// IgnoreWhitespace collapses runs of whitespace and strips leading or
	// trailing blanks so reformatting does not change the fingerprint.
	IgnoreWhitespace bool
}

// NewReviewUnit builds an immutable unit with its content fingerprint.
func NewReviewUnit(repoID, path, language, content string, opts FingerprintOptions) *ReviewUnit {
	return &ReviewUnit{
		RepoID:      repoID,
		Path:        path,
		Language:    language,
		Content:     content,
		Fingerprint: ComputeFingerprint(repoID, path, content, opts),
	}
}

// Key returns the cache identity of the unit.
func (u *ReviewUnit) Key() string { return u.Fingerprint }

// Lines returns the unit content split into lines.
func (u *ReviewUnit) Lines() []string {
	return strings.Split(strings.ReplaceAll(u.Content, "\r\n", "\n"), "\n")
}

// ComputeFingerprint derives the stable content fingerprint for a unit.
func ComputeFingerprint(repoID, path, content string, opts FingerprintOptions) string {
	if opts.IgnoreWhitespace {
		content = normalizeWhitespace(content)
	}
	h := sha256.New()
	h.Write([]byte(repoID))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return fmt.Sprintf("%x", h.Sum(nil))
}

func normalizeWhitespace(content string) string {
	var b strings.Builder
	b.Grow(len(content))
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRightFunc(line, unicode.IsSpace)
		if line == "" {
			continue
		}
		inSpace := false
		for _, r := range line {
			if unicode.IsSpace(r) {
				inSpace = true
				continue
			}
			if inSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			inSpace = false
			b.WriteRune(r)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
