package allocator

import "math/rand"

type repairCandidate struct {
	donor SessionID
	group GroupID
}

// capacityRepair raises every under-minimum session to at least its
// minimum by pulling groups from over-optimal donor sessions, never
// taking a donor below its own optimal. Filling an under-minimum
// session can cost a moved group a strictly higher loss
// than it had at its donor (see spec's over-optimal-donor scenario,
// where two groups move from loss 0 to loss 1 to satisfy a session's
// minimum) — capacityRepair does not refuse a move on that basis. The
// donor-optimal guard in selectMoves, not a loss comparison, is what
// bounds how much repair is allowed to cost. It mutates st in place.
func capacityRepair(st *AllocationState, rng *rand.Rand) error {
	under := underMinimumSessions(st)

	for _, sid := range under {
		session := st.sessions[sid]
		needMin := session.Min - st.Load(sid)
		needOpt := session.Optimal - st.Load(sid)
		if needMin <= 0 {
			// Already satisfied by an earlier move in this same pass.
			continue
		}

		donors := overOptimalSessions(st)
		candidates := buildCandidates(st, sid, donors)
		if len(candidates) < needMin {
			return &CannotRepairError{SessionID: sid}
		}

		rng.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})

		selected := selectMoves(st, candidates, needOpt)
		if len(selected) < needMin {
			return &CannotRepairError{SessionID: sid}
		}

		for _, c := range selected {
			st.Move(c.group, sid)
		}
	}

	return nil
}

func underMinimumSessions(st *AllocationState) []SessionID {
	var out []SessionID
	for sid, s := range st.sessions {
		if st.Load(sid) < s.Min {
			out = append(out, sid)
		}
	}
	return out
}

func overOptimalSessions(st *AllocationState) []SessionID {
	var out []SessionID
	for sid, s := range st.sessions {
		if st.Load(sid) > s.Optimal {
			out = append(out, sid)
		}
	}
	return out
}

// buildCandidates collects every (donor, group) pair eligible to move
// from d to needySID: any group currently seated at an over-optimal
// donor other than needySID itself. Eligibility is not gated on loss —
// a donor's groups are, by construction, at least as happy at d as
// they'd be anywhere worse, so the move to needySID is usually a
// regression for the moved group; repair accepts that cost rather than
// leaving the session under minimum.
func buildCandidates(st *AllocationState, needySID SessionID, donors []SessionID) []repairCandidate {
	var out []repairCandidate
	for _, d := range donors {
		if d == needySID {
			continue
		}
		for _, hid := range st.GroupsAt(d) {
			out = append(out, repairCandidate{donor: d, group: hid})
		}
	}
	return out
}

// selectMoves greedily accepts candidates in their (already shuffled)
// order, skipping any move that would push its donor strictly below
// its optimal (landing exactly at optimal is fine), and stops once
// needOpt moves have been accepted.
func selectMoves(st *AllocationState, candidates []repairCandidate, needOpt int) []repairCandidate {
	removedFromDonor := make(map[SessionID]int)
	var selected []repairCandidate

	for _, c := range candidates {
		if needOpt > 0 && len(selected) >= needOpt {
			break
		}
		donorSession := st.sessions[c.donor]
		groupSize := st.groups[c.group].Size()
		remainingLoad := st.Load(c.donor) - removedFromDonor[c.donor] - groupSize
		if remainingLoad < donorSession.Optimal {
			continue
		}
		removedFromDonor[c.donor] += groupSize
		selected = append(selected, c)
	}

	return selected
}
