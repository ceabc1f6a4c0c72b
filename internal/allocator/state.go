package allocator

// AllocationState is a mutable map of session to the groups seated
// there, plus a reverse index from group to its current session so
// membership queries (invariant I2) stay O(1). Group and Session data
// are immutable across trials; only this state is mutated.
type AllocationState struct {
	sessions   map[SessionID]*Session
	groups     map[GroupID]*Group
	bySession  map[SessionID][]GroupID
	bySessionIdx map[SessionID]map[GroupID]int // group -> index within bySession[sid], for O(1) removal
	location   map[GroupID]SessionID
}

func newAllocationState(sessions []Session, groups []Group) *AllocationState {
	st := &AllocationState{
		sessions:     make(map[SessionID]*Session, len(sessions)),
		groups:       make(map[GroupID]*Group, len(groups)),
		bySession:    make(map[SessionID][]GroupID, len(sessions)),
		bySessionIdx: make(map[SessionID]map[GroupID]int, len(sessions)),
		location:     make(map[GroupID]SessionID, len(groups)),
	}
	for i := range sessions {
		s := sessions[i]
		st.sessions[s.ID] = &s
		st.bySession[s.ID] = nil
		st.bySessionIdx[s.ID] = make(map[GroupID]int)
	}
	for i := range groups {
		g := groups[i]
		st.groups[g.ID] = &g
	}
	return st
}

// Load returns the current number of players seated at sid.
func (st *AllocationState) Load(sid SessionID) int {
	total := 0
	for _, gid := range st.bySession[sid] {
		total += st.groups[gid].Size()
	}
	return total
}

// GroupsAt returns the groups currently seated at sid.
func (st *AllocationState) GroupsAt(sid SessionID) []GroupID {
	out := make([]GroupID, len(st.bySession[sid]))
	copy(out, st.bySession[sid])
	return out
}

// LocationOf returns the session gid is currently seated at, and
// whether gid has been placed at all.
func (st *AllocationState) LocationOf(gid GroupID) (SessionID, bool) {
	sid, ok := st.location[gid]
	return sid, ok
}

// Place seats gid at sid. gid must not already be placed anywhere.
func (st *AllocationState) Place(gid GroupID, sid SessionID) {
	idx := len(st.bySession[sid])
	st.bySession[sid] = append(st.bySession[sid], gid)
	st.bySessionIdx[sid][gid] = idx
	st.location[gid] = sid
}

// Move relocates gid from its current session to sid.
func (st *AllocationState) Move(gid GroupID, sid SessionID) {
	if oldSID, ok := st.location[gid]; ok {
		st.remove(oldSID, gid)
	}
	st.Place(gid, sid)
}

func (st *AllocationState) remove(sid SessionID, gid GroupID) {
	list := st.bySession[sid]
	idx, ok := st.bySessionIdx[sid][gid]
	if !ok {
		return
	}
	last := len(list) - 1
	moved := list[last]
	list[idx] = moved
	list = list[:last]
	st.bySession[sid] = list
	st.bySessionIdx[sid][moved] = idx
	delete(st.bySessionIdx[sid], gid)
}

// PlacedCount returns how many of the state's groups have been placed.
func (st *AllocationState) PlacedCount() int {
	return len(st.location)
}

// RemainingCapacity returns max(sid) - Load(sid).
func (st *AllocationState) RemainingCapacity(sid SessionID) int {
	return st.sessions[sid].Max - st.Load(sid)
}

// Assignments returns the final (group, session) pairs.
func (st *AllocationState) Assignments() []Assignment {
	out := make([]Assignment, 0, len(st.location))
	for gid, sid := range st.location {
		out = append(out, Assignment{GroupID: gid, SessionID: sid})
	}
	return out
}
