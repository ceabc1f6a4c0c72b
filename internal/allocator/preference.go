package allocator

import (
	"math/rand"
	"sort"
)

// Tier is one ordered bucket of sessions at a given loss tier for a
// group: tier 0 holds the group's best-scored sessions.
type Tier struct {
	Index    int
	Sessions []SessionID
}

// PreferenceModel transforms raw ordinal preferences into a per-group
// loss map over sessions and a loss-tier ranking. It is rebuilt once per
// trial so the within-tier shuffle can vary across restarts while the
// between-tier ordering stays strictly determined by score.
type PreferenceModel struct {
	loss  map[GroupID]map[SessionID]int
	tiers map[GroupID][]Tier
}

// newPreferenceModel groups each group's preference scores by numeric
// value (defaulting absent entries to DefaultScore), sorts the distinct
// score values descending, shuffles within each value bucket using rng,
// and assigns tier indices 0, 1, 2, ... in that order. The integer tier
// index becomes the loss contribution of placing the group at a session
// in that tier.
func newPreferenceModel(groups []Group, sessions []Session, prefs []PreferenceEntry, rng *rand.Rand) *PreferenceModel {
	scoreByGroupSession := make(map[GroupID]map[SessionID]Score, len(groups))
	for _, g := range groups {
		byGroup := make(map[SessionID]Score, len(sessions))
		for _, s := range sessions {
			byGroup[s.ID] = DefaultScore
		}
		scoreByGroupSession[g.ID] = byGroup
	}
	for _, p := range prefs {
		if byGroup, ok := scoreByGroupSession[p.GroupID]; ok {
			byGroup[p.SessionID] = p.Score
		}
	}

	model := &PreferenceModel{
		loss:  make(map[GroupID]map[SessionID]int, len(groups)),
		tiers: make(map[GroupID][]Tier, len(groups)),
	}

	for _, g := range groups {
		byScore := make(map[Score][]SessionID)
		for _, s := range sessions {
			sc := scoreByGroupSession[g.ID][s.ID]
			byScore[sc] = append(byScore[sc], s.ID)
		}

		distinctScores := make([]Score, 0, len(byScore))
		for sc := range byScore {
			distinctScores = append(distinctScores, sc)
		}
		sort.Slice(distinctScores, func(i, j int) bool {
			return distinctScores[i] > distinctScores[j]
		})

		groupLoss := make(map[SessionID]int, len(sessions))
		tiers := make([]Tier, 0, len(distinctScores))
		for tierIndex, sc := range distinctScores {
			bucket := byScore[sc]
			shuffled := shuffledCopy(bucket, rng)
			tiers = append(tiers, Tier{Index: tierIndex, Sessions: shuffled})
			for _, sid := range shuffled {
				groupLoss[sid] = tierIndex
			}
		}

		model.loss[g.ID] = groupLoss
		model.tiers[g.ID] = tiers
	}

	return model
}

// Loss returns the tier index of sid within gid's tiered preferences.
func (m *PreferenceModel) Loss(gid GroupID, sid SessionID) int {
	return m.loss[gid][sid]
}

// TiersOf returns gid's tiers in ascending (best-first) order.
func (m *PreferenceModel) TiersOf(gid GroupID) []Tier {
	return m.tiers[gid]
}

func shuffledCopy(in []SessionID, rng *rand.Rand) []SessionID {
	out := make([]SessionID, len(in))
	copy(out, in)
	rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
