package allocator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pref(gid GroupID, sid SessionID, score Score) PreferenceEntry {
	return PreferenceEntry{GroupID: gid, SessionID: sid, Score: score}
}

func totalAssignedSize(groupsByID map[GroupID]Group, assignments []Assignment) int {
	total := 0
	for _, a := range assignments {
		total += groupsByID[a.GroupID].Size()
	}
	return total
}

func singleton(id string) Group {
	return Group{ID: GroupID(id), PlayerIDs: []PlayerID{PlayerID(id)}}
}

// Scenario 1 — trivial fit: every group gets its top choice.
func TestAllocate_Scenario1_TrivialFit(t *testing.T) {
	sessions := []Session{
		{ID: "A", Min: 2, Optimal: 3, Max: 4},
		{ID: "B", Min: 2, Optimal: 3, Max: 4},
	}
	groups := []Group{singleton("g1"), singleton("g2"), singleton("g3"), singleton("g4"), singleton("g5"), singleton("g6")}
	var prefs []PreferenceEntry
	for _, gid := range []string{"g1", "g2", "g3"} {
		prefs = append(prefs, pref(GroupID(gid), "A", 5), pref(GroupID(gid), "B", 0))
	}
	for _, gid := range []string{"g4", "g5", "g6"} {
		prefs = append(prefs, pref(GroupID(gid), "A", 0), pref(GroupID(gid), "B", 5))
	}

	result, err := Allocate(Input{Sessions: sessions, Groups: groups, Preferences: prefs, RunSeed: 0, NTrials: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalLoss)

	bySession := make(map[GroupID]SessionID)
	for _, a := range result.Assignments {
		bySession[a.GroupID] = a.SessionID
	}
	for _, gid := range []string{"g1", "g2", "g3"} {
		assert.Equal(t, SessionID("A"), bySession[GroupID(gid)])
	}
	for _, gid := range []string{"g4", "g5", "g6"} {
		assert.Equal(t, SessionID("B"), bySession[GroupID(gid)])
	}
}

// Scenario 2 — bump with monotonicity: A's capacity forces two groups to B.
func TestAllocate_Scenario2_BumpWithMonotonicity(t *testing.T) {
	sessions := []Session{
		{ID: "A", Min: 1, Optimal: 2, Max: 2},
		{ID: "B", Min: 1, Optimal: 2, Max: 3},
	}
	groups := []Group{singleton("g1"), singleton("g2"), singleton("g3"), singleton("g4")}
	var prefs []PreferenceEntry
	for _, gid := range []string{"g1", "g2", "g3", "g4"} {
		prefs = append(prefs, pref(GroupID(gid), "A", 5), pref(GroupID(gid), "B", 3))
	}

	result, err := Allocate(Input{Sessions: sessions, Groups: groups, Preferences: prefs, RunSeed: 0, NTrials: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalLoss)

	countA, countB := 0, 0
	for _, a := range result.Assignments {
		switch a.SessionID {
		case "A":
			countA++
		case "B":
			countB++
		}
	}
	assert.Equal(t, 2, countA)
	assert.Equal(t, 2, countB)
}

// Scenario 3 — repair pulls from an over-optimal donor.
func TestAllocate_Scenario3_RepairFromDonor(t *testing.T) {
	sessions := []Session{
		{ID: "A", Min: 2, Optimal: 3, Max: 5},
		{ID: "B", Min: 2, Optimal: 2, Max: 3},
	}
	groups := []Group{singleton("g1"), singleton("g2"), singleton("g3"), singleton("g4"), singleton("g5")}
	var prefs []PreferenceEntry
	for _, gid := range []string{"g1", "g2", "g3", "g4", "g5"} {
		prefs = append(prefs, pref(GroupID(gid), "A", 5), pref(GroupID(gid), "B", 4))
	}

	result, err := Allocate(Input{Sessions: sessions, Groups: groups, Preferences: prefs, RunSeed: 0, NTrials: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalLoss)

	loadA, loadB := 0, 0
	for _, a := range result.Assignments {
		switch a.SessionID {
		case "A":
			loadA++
		case "B":
			loadB++
		}
	}
	assert.GreaterOrEqual(t, loadA, sessions[0].Min)
	assert.GreaterOrEqual(t, loadB, sessions[1].Min)
}

// Scenario 4 — A cannot donate (it is not over its optimal), but no
// repair is needed: after placement A and B both meet their minimum, so
// the trial succeeds with zero loss.
func TestAllocate_Scenario4_RepairNotNeeded(t *testing.T) {
	sessions := []Session{
		{ID: "A", Min: 1, Optimal: 1, Max: 1},
		{ID: "B", Min: 3, Optimal: 3, Max: 3},
	}
	groups := []Group{singleton("g1"), singleton("g2"), singleton("g3"), singleton("g4")}
	prefs := []PreferenceEntry{
		pref("g1", "A", 5), pref("g1", "B", 0),
		pref("g2", "A", 0), pref("g2", "B", 5),
		pref("g3", "A", 0), pref("g3", "B", 5),
		pref("g4", "A", 0), pref("g4", "B", 5),
	}

	result, err := Allocate(Input{Sessions: sessions, Groups: groups, Preferences: prefs, RunSeed: 0, NTrials: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalLoss)
}

// Repair boundary case — C's need_min (2) and need_opt (4) diverge, unlike
// scenario 3 where the donor's optimal-guard and need_min coincidentally
// capped selection at the same count. Here the donor (A, load 8, optimal 3)
// has room to give up far more than need_min before hitting its own
// optimal, so selectMoves must stop because need_opt moves were reached,
// not because the donor-optimal guard kicked in.
func TestAllocate_Repair_NeedOptDivergesFromNeedMin(t *testing.T) {
	sessions := []Session{
		{ID: "A", Min: 2, Optimal: 3, Max: 8},
		{ID: "C", Min: 2, Optimal: 4, Max: 4},
	}
	ids := []string{"g1", "g2", "g3", "g4", "g5", "g6", "g7", "g8"}
	groups := make([]Group, len(ids))
	var prefs []PreferenceEntry
	for i, gid := range ids {
		groups[i] = singleton(gid)
		prefs = append(prefs, pref(GroupID(gid), "A", 5), pref(GroupID(gid), "C", 3))
	}

	result, err := Allocate(Input{Sessions: sessions, Groups: groups, Preferences: prefs, RunSeed: 0, NTrials: 10})
	require.NoError(t, err)
	assert.Equal(t, 4, result.TotalLoss)

	loadA, loadC := 0, 0
	for _, a := range result.Assignments {
		switch a.SessionID {
		case "A":
			loadA++
		case "C":
			loadC++
		}
	}
	assert.Equal(t, 4, loadA)
	assert.Equal(t, 4, loadC)
	assert.GreaterOrEqual(t, loadA, sessions[0].Optimal)
}

// Scenario 5 — Golden D20 outranks an ordinary high score.
func TestAllocate_Scenario5_GoldenD20Outranks(t *testing.T) {
	sessions := []Session{
		{ID: "A", Min: 1, Optimal: 2, Max: 3},
		{ID: "B", Min: 1, Optimal: 2, Max: 3},
	}
	groups := []Group{singleton("g1")}
	prefs := []PreferenceEntry{pref("g1", "A", 20), pref("g1", "B", 5)}

	result, err := Allocate(Input{Sessions: sessions, Groups: groups, Preferences: prefs, RunSeed: 0, NTrials: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalLoss)
	require.Len(t, result.Assignments, 1)
	assert.Equal(t, SessionID("A"), result.Assignments[0].SessionID)
}

// Scenario 6 — an atomic group of 3 is seated together, never split.
func TestAllocate_Scenario6_AtomicGroup(t *testing.T) {
	sessions := []Session{
		{ID: "A", Min: 2, Optimal: 3, Max: 4},
		{ID: "B", Min: 2, Optimal: 3, Max: 4},
	}
	groupG := Group{ID: "G", PlayerIDs: []PlayerID{"p1", "p2", "p3"}}
	groups := []Group{groupG, singleton("g1"), singleton("g2"), singleton("g3")}
	prefs := []PreferenceEntry{
		pref("G", "A", 5), pref("G", "B", 0),
		pref("g1", "A", 0), pref("g1", "B", 5),
		pref("g2", "A", 0), pref("g2", "B", 5),
		pref("g3", "A", 0), pref("g3", "B", 5),
	}

	result, err := Allocate(Input{Sessions: sessions, Groups: groups, Preferences: prefs, RunSeed: 0, NTrials: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, result.TotalLoss)

	bySession := make(map[GroupID]SessionID)
	for _, a := range result.Assignments {
		bySession[a.GroupID] = a.SessionID
	}
	assert.Equal(t, SessionID("A"), bySession["G"])
	assert.Equal(t, SessionID("B"), bySession["g1"])
}

// P1/P2/P3 — every group placed exactly once, capacity respected, and
// every non-empty session meets its minimum.
func TestAllocate_Invariants_P1P2P3(t *testing.T) {
	sessions := []Session{
		{ID: "A", Min: 2, Optimal: 4, Max: 6},
		{ID: "B", Min: 2, Optimal: 4, Max: 6},
		{ID: "C", Min: 2, Optimal: 3, Max: 5},
	}
	groupsByID := map[GroupID]Group{}
	var groups []Group
	var prefs []PreferenceEntry
	for i := 0; i < 15; i++ {
		g := singleton(string(rune('a' + i)))
		groups = append(groups, g)
		groupsByID[g.ID] = g
		for _, sid := range []SessionID{"A", "B", "C"} {
			prefs = append(prefs, pref(g.ID, sid, Score(i%6)))
		}
	}

	result, err := Allocate(Input{Sessions: sessions, Groups: groups, Preferences: prefs, RunSeed: 7, NTrials: 10})
	require.NoError(t, err)

	assert.Equal(t, len(groups), len(result.Assignments), "P1: every group placed exactly once")
	assert.Equal(t, totalAssignedSize(groupsByID, result.Assignments), len(groups))

	loadBySession := make(map[SessionID]int)
	for _, a := range result.Assignments {
		loadBySession[a.SessionID] += groupsByID[a.GroupID].Size()
	}
	for _, s := range sessions {
		load := loadBySession[s.ID]
		assert.LessOrEqual(t, load, s.Max, "P2: capacity ceiling")
		assert.True(t, load == 0 || load >= s.Min, "P3: meets minimum or is empty")
	}
}

// P6 — determinism: identical inputs and run_seed reproduce identical output.
func TestAllocate_Determinism_P6(t *testing.T) {
	sessions := []Session{
		{ID: "A", Min: 2, Optimal: 3, Max: 5},
		{ID: "B", Min: 2, Optimal: 3, Max: 5},
	}
	var groups []Group
	var prefs []PreferenceEntry
	for i := 0; i < 10; i++ {
		g := singleton(string(rune('a' + i)))
		groups = append(groups, g)
		prefs = append(prefs, pref(g.ID, "A", Score(i%6)), pref(g.ID, "B", Score((i+3)%6)))
	}

	input := Input{Sessions: sessions, Groups: groups, Preferences: prefs, RunSeed: 42, NTrials: 10}
	first, err := Allocate(input)
	require.NoError(t, err)
	second, err := Allocate(input)
	require.NoError(t, err)

	assert.Equal(t, first.TotalLoss, second.TotalLoss)
	assert.ElementsMatch(t, first.Assignments, second.Assignments)
}

// P7 — total loss equals the size-weighted sum of per-seat losses.
func TestAllocate_SizeWeightedLoss_P7(t *testing.T) {
	sessions := []Session{
		{ID: "A", Min: 1, Optimal: 1, Max: 3},
		{ID: "B", Min: 1, Optimal: 1, Max: 6},
	}
	big := Group{ID: "big", PlayerIDs: []PlayerID{"p1", "p2", "p3"}}
	small := singleton("solo")
	groups := []Group{big, small}
	// Both groups rank A best (tier 0) and B worst (tier 1). A's max (3)
	// fits only one of the two groups at once, so the best trial seats
	// "big" (the larger group) in A and pays tier-1 loss for "solo"
	// alone: size-weighted total = 1 * 1 = 1.
	prefs := []PreferenceEntry{
		pref("big", "A", 5), pref("big", "B", 0),
		pref("solo", "A", 5), pref("solo", "B", 0),
	}

	result, err := Allocate(Input{Sessions: sessions, Groups: groups, Preferences: prefs, RunSeed: 1, NTrials: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalLoss)
}

// Boundary — total demand exactly equals total max capacity; allocator
// must still succeed.
func TestAllocate_Boundary_TightFeasibility(t *testing.T) {
	sessions := []Session{
		{ID: "A", Min: 1, Optimal: 2, Max: 2},
		{ID: "B", Min: 1, Optimal: 2, Max: 2},
	}
	groups := []Group{singleton("g1"), singleton("g2"), singleton("g3"), singleton("g4")}
	var prefs []PreferenceEntry
	for _, gid := range []string{"g1", "g2", "g3", "g4"} {
		prefs = append(prefs, pref(GroupID(gid), "A", 3), pref(GroupID(gid), "B", 3))
	}

	result, err := Allocate(Input{Sessions: sessions, Groups: groups, Preferences: prefs, RunSeed: 3, NTrials: 10})
	require.NoError(t, err)
	assert.Len(t, result.Assignments, 4)
}

// Boundary — a group larger than every session's max must surface
// UnplaceableGroupError via NoFeasibleAllocationError.
func TestAllocate_Boundary_UnplaceableGroup(t *testing.T) {
	sessions := []Session{
		{ID: "A", Min: 1, Optimal: 2, Max: 3},
	}
	oversized := Group{ID: "huge", PlayerIDs: []PlayerID{"p1", "p2", "p3", "p4"}}
	groups := []Group{oversized}
	prefs := []PreferenceEntry{pref("huge", "A", 5)}

	_, err := Allocate(Input{Sessions: sessions, Groups: groups, Preferences: prefs, RunSeed: 0, NTrials: 5})
	require.Error(t, err)
	var noFeasible *NoFeasibleAllocationError
	require.True(t, errors.As(err, &noFeasible))
	for _, cause := range noFeasible.Causes {
		var unplaceable *UnplaceableGroupError
		assert.True(t, errors.As(cause, &unplaceable))
	}
}

// InvalidInput — min > max is rejected before any trial runs.
func TestAllocate_InvalidInput_MinGreaterThanMax(t *testing.T) {
	sessions := []Session{{ID: "A", Min: 5, Optimal: 5, Max: 3}}
	groups := []Group{singleton("g1")}

	_, err := Allocate(Input{Sessions: sessions, Groups: groups, NTrials: 1})
	require.Error(t, err)
	var invalid *InvalidInputError
	assert.True(t, errors.As(err, &invalid))
}

// InvalidInput — a preference referencing an unknown session is rejected.
func TestAllocate_InvalidInput_UnknownSessionReference(t *testing.T) {
	sessions := []Session{{ID: "A", Min: 1, Optimal: 1, Max: 2}}
	groups := []Group{singleton("g1")}
	prefs := []PreferenceEntry{pref("g1", "does-not-exist", 5)}

	_, err := Allocate(Input{Sessions: sessions, Groups: groups, Preferences: prefs, NTrials: 1})
	require.Error(t, err)
	var invalid *InvalidInputError
	assert.True(t, errors.As(err, &invalid))
}

func TestAllocate_GoldenD20PriorityPolicy_PreservesNoPriorityResultWhenUnused(t *testing.T) {
	sessions := []Session{
		{ID: "A", Min: 2, Optimal: 3, Max: 4},
		{ID: "B", Min: 2, Optimal: 3, Max: 4},
	}
	groups := []Group{singleton("g1"), singleton("g2"), singleton("g3"), singleton("g4"), singleton("g5"), singleton("g6")}
	var prefs []PreferenceEntry
	for _, gid := range []string{"g1", "g2", "g3"} {
		prefs = append(prefs, pref(GroupID(gid), "A", 5), pref(GroupID(gid), "B", 0))
	}
	for _, gid := range []string{"g4", "g5", "g6"} {
		prefs = append(prefs, pref(GroupID(gid), "A", 0), pref(GroupID(gid), "B", 5))
	}

	withoutPolicy, err := Allocate(Input{Sessions: sessions, Groups: groups, Preferences: prefs, RunSeed: 5, NTrials: 10})
	require.NoError(t, err)

	withPolicy, err := Allocate(Input{
		Sessions: sessions, Groups: groups, Preferences: prefs, RunSeed: 5, NTrials: 10,
		Priority: NewGoldenD20First(prefs),
	})
	require.NoError(t, err)

	assert.Equal(t, withoutPolicy.TotalLoss, withPolicy.TotalLoss)
}
