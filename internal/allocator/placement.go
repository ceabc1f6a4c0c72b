package allocator

import "sort"

// initialPlacement seats every group in order, either politely (without
// displacing anyone) or via a one-step bump that preserves preference
// monotonicity for the displaced incumbent. It mutates st in place and
// returns an error naming the first group it could not place.
func initialPlacement(st *AllocationState, model *PreferenceModel, order []GroupID) error {
	for _, gid := range order {
		if placePolitely(st, model, gid) {
			continue
		}
		if bumpToPlace(st, model, gid) {
			continue
		}
		return &UnplaceableGroupError{GroupID: gid}
	}
	return nil
}

// placePolitely walks gid's tiers from best to worst. Within each tier
// it tries sessions ordered by remaining capacity (max - current load)
// descending, breaking ties by the tier's own randomized order, and
// seats gid at the first session with room. It never displaces an
// incumbent.
func placePolitely(st *AllocationState, model *PreferenceModel, gid GroupID) bool {
	g := st.groups[gid]
	for _, tier := range model.TiersOf(gid) {
		candidates := make([]SessionID, len(tier.Sessions))
		copy(candidates, tier.Sessions)
		sort.SliceStable(candidates, func(i, j int) bool {
			return st.RemainingCapacity(candidates[i]) > st.RemainingCapacity(candidates[j])
		})
		for _, sid := range candidates {
			if st.Load(sid)+g.Size() <= st.sessions[sid].Max {
				st.Place(gid, sid)
				return true
			}
		}
	}
	return false
}

// bumpToPlace walks gid's tiers again, this time trying to displace an
// incumbent h at a candidate session s whenever h's loss at s is at
// least as bad as gid's would be. h is relocated to an alternative
// session within h's own tier at index loss(h, s) that still has room;
// if no such alternative exists, h is not disturbed and the next
// incumbent (or session) is tried. This never strictly increases any
// previously-placed group's loss (P4).
func bumpToPlace(st *AllocationState, model *PreferenceModel, gid GroupID) bool {
	g := st.groups[gid]
	for _, tier := range model.TiersOf(gid) {
		for _, sid := range tier.Sessions {
			ourLoss := model.Loss(gid, sid)
			session := st.sessions[sid]
			for _, hid := range st.GroupsAt(sid) {
				h := st.groups[hid]
				hLoss := model.Loss(hid, sid)
				if hLoss < ourLoss {
					continue
				}
				if st.Load(sid)-h.Size()+g.Size() > session.Max {
					// Displacing h alone would not free enough room for g.
					continue
				}
				altSID, ok := findAlternative(st, model, hid, hLoss, sid)
				if !ok {
					continue
				}
				st.Move(hid, altSID)
				st.Place(gid, sid)
				return true
			}
		}
	}
	return false
}

// findAlternative searches h's tier at index hLoss for a session other
// than excludeSID that can absorb h without exceeding its max capacity.
func findAlternative(st *AllocationState, model *PreferenceModel, hid GroupID, hLoss int, excludeSID SessionID) (SessionID, bool) {
	h := st.groups[hid]
	tiers := model.TiersOf(hid)
	if hLoss < 0 || hLoss >= len(tiers) {
		return "", false
	}
	for _, altSID := range tiers[hLoss].Sessions {
		if altSID == excludeSID {
			continue
		}
		if st.Load(altSID)+h.Size() <= st.sessions[altSID].Max {
			return altSID, true
		}
	}
	return "", false
}
