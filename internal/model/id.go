package model

import (
	"crypto/sha256"
	"fmt"
)

// FindingID derives the stable identifier for a finding: a short digest of
// the unit fingerprint, analyzer, category, and location.
func FindingID(fingerprint, analyzer, category string, loc LineRange) string {
	data := fmt.Sprintf("%s:%s:%s:%d:%d", fingerprint, analyzer, category, loc.Start, loc.End)
	h := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", h[:8])
}
