package allocator

import "math/rand"

// PriorityPolicy orders groups before a trial's placement pass, on top
// of the trial's own randomized shuffle. spec.md §9 leaves whether the
// Golden D20 bonus should confer placement-order priority (in addition
// to its role in preference ordering) as caller policy; this interface
// is that policy hook. The zero value of Input.Priority (nil) behaves
// as NoPriority.
type PriorityPolicy interface {
	// Order returns groups in the order InitialPlacement should attempt
	// to seat them, given the trial's already-shuffled base order and
	// that trial's random source (for any additional randomization
	// within priority buckets).
	Order(groups []Group, shuffled []GroupID, rng *rand.Rand) []GroupID
}

// NoPriority reproduces spec.md's undirected behavior: the trial's
// shuffle alone determines placement order.
type NoPriority struct{}

// Order returns shuffled unchanged.
func (NoPriority) Order(_ []Group, shuffled []GroupID, _ *rand.Rand) []GroupID {
	return shuffled
}

// GoldenD20First stably moves groups holding at least one Golden D20
// preference (score 20 for some session) ahead of groups that don't,
// preserving the trial's shuffle within each bucket.
type GoldenD20First struct {
	// holders reports whether a group holds a Golden D20 preference.
	// Populated by NewGoldenD20First from the run's preference table.
	holders map[GroupID]bool
}

// NewGoldenD20First builds a GoldenD20First policy from the input's
// preference entries.
func NewGoldenD20First(prefs []PreferenceEntry) *GoldenD20First {
	holders := make(map[GroupID]bool)
	for _, p := range prefs {
		if p.Score == GoldenD20Score {
			holders[p.GroupID] = true
		}
	}
	return &GoldenD20First{holders: holders}
}

// Order partitions shuffled into golden-holders and everyone else,
// preserving each bucket's relative (shuffled) order.
func (p *GoldenD20First) Order(_ []Group, shuffled []GroupID, _ *rand.Rand) []GroupID {
	out := make([]GroupID, 0, len(shuffled))
	var rest []GroupID
	for _, gid := range shuffled {
		if p.holders[gid] {
			out = append(out, gid)
		} else {
			rest = append(rest, gid)
		}
	}
	return append(out, rest...)
}
