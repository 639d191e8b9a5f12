// Package pattern maintains per-team acceptance history for finding
// categories and derives the scoring bias from it. The learner is a
// frequentist aggregate on purpose: demotions must be explainable from the
// counts, so there is no opaque model update anywhere.
package pattern

import "time"

// Profile is the per-team, per-category aggregate. Counts only grow,
// except through an explicit Decay.
type Profile struct {
	TeamID      string
	Category    string
	Accepted    int64
	Dismissed   int64
	LastUpdated time.Time
}

// Bias returns the profile's acceptance bias.
func (p Profile) Bias() float64 {
	return Bias(p.Accepted, p.Dismissed)
}

// Store is the persistence contract for pattern profiles. Feedback
// recording is append-only and commutative: concurrent feedback from
// different reviewers must produce the same final aggregate regardless
// of order.
type Store interface {
	// Bias returns the acceptance bias in [0,1] for the category.
	// A category with no history returns the neutral 0.5.
	Bias(teamID, category string) (float64, error)
	// RecordFeedback atomically increments the accepted or dismissed
	// count.
	RecordFeedback(teamID, category string, accepted bool) error
	// Profiles returns all profiles for a team.
	Profiles(teamID string) ([]Profile, error)
	// Decay scales all of a team's counts by factor in (0,1), the only
	// operation allowed to shrink them.
	Decay(teamID string, factor float64) error
}

const epsilon = 1e-9

// Bias computes accepted/(accepted+dismissed+ε). Cold-start categories
// (no history at all) are neutral rather than zero.
func Bias(accepted, dismissed int64) float64 {
	if accepted == 0 && dismissed == 0 {
		return 0.5
	}
	return float64(accepted) / (float64(accepted) + float64(dismissed) + epsilon)
}
