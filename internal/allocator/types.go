// Package allocator assigns player groups to game sessions within a single
// time slot, respecting session capacity windows and minimizing the
// aggregate preference loss across players.
package allocator

import "fmt"

// SessionID identifies a scheduled game session (a.k.a. table allocation).
type SessionID string

// GroupID identifies an atomic placement unit (a solo player or a
// pre-formed group of 2-3 players who must be seated together).
type GroupID string

// PlayerID identifies an individual player.
type PlayerID string

// Score is a raw ordinal preference a group expresses for a session.
// Valid values are 0-5 and the Golden D20 bonus 20. A missing entry
// defaults to DefaultScore.
type Score int

// DefaultScore is used for any (group, session) pair absent from the
// preference table.
const DefaultScore Score = 3

// GoldenD20Score is the rare strong-bias bonus preference value.
const GoldenD20Score Score = 20

// Session is a scheduled instance of a game in one time slot, with a
// capacity window (min <= optimal <= max).
type Session struct {
	ID        SessionID
	Min       int
	Optimal   int
	Max       int
	GameTitle string
}

func (s Session) validate() error {
	if s.ID == "" {
		return &InvalidInputError{Reason: "session has empty ID"}
	}
	if s.Min < 1 {
		return &InvalidInputError{Reason: fmt.Sprintf("session %s: min must be >= 1, got %d", s.ID, s.Min)}
	}
	if s.Min > s.Optimal {
		return &InvalidInputError{Reason: fmt.Sprintf("session %s: min (%d) > optimal (%d)", s.ID, s.Min, s.Optimal)}
	}
	if s.Optimal > s.Max {
		return &InvalidInputError{Reason: fmt.Sprintf("session %s: optimal (%d) > max (%d)", s.ID, s.Optimal, s.Max)}
	}
	return nil
}

// Group aggregates one or more players into an atomic placement unit.
// Members are always seated together or not at all. AvgComp carries a
// cross-time-slot compensation figure that is informational only: no
// placement or repair logic in this package reads it (see DESIGN.md,
// Open Question 3).
type Group struct {
	ID        GroupID
	PlayerIDs []PlayerID
	AvgComp   float64
}

// Size returns the number of players in the group.
func (g Group) Size() int {
	return len(g.PlayerIDs)
}

func (g Group) validate() error {
	if g.ID == "" {
		return &InvalidInputError{Reason: "group has empty ID"}
	}
	if len(g.PlayerIDs) == 0 {
		return &InvalidInputError{Reason: fmt.Sprintf("group %s has no players", g.ID)}
	}
	return nil
}

// PreferenceEntry is one group's raw ordinal preference for one session.
type PreferenceEntry struct {
	GroupID   GroupID
	SessionID SessionID
	Score     Score
}

// Assignment pairs a placed group with its session.
type Assignment struct {
	GroupID   GroupID
	SessionID SessionID
}

// LossHistogram maps a loss tier to the number of player-seats placed
// at that tier.
type LossHistogram map[int]int

// DeltaHistogram maps (load - optimal) to the number of sessions with
// that signed deviation.
type DeltaHistogram map[int]int

// Result is the output of a successful allocation run.
type Result struct {
	Assignments    []Assignment
	TotalLoss      int
	LossHistogram  LossHistogram
	DeltaHistogram DeltaHistogram
}

// Input is the full input contract for one allocation run over one
// time slot.
type Input struct {
	Sessions    []Session
	Groups      []Group
	Preferences []PreferenceEntry
	RunSeed     int64
	NTrials     int

	// Priority governs placement order within a trial. Nil defaults to
	// NoPriority, reproducing the undirected per-trial shuffle.
	Priority PriorityPolicy

	// OnTrial, if set, is called after each trial completes (whether it
	// succeeded or failed) with the trial index and the best total loss
	// seen so far (0 until a trial has succeeded). Callers use it to stream progress without the
	// allocator depending on any transport.
	OnTrial func(trial int, bestLoss int)
}

func (in Input) validate() error {
	seenSessions := make(map[SessionID]struct{}, len(in.Sessions))
	for _, s := range in.Sessions {
		if err := s.validate(); err != nil {
			return err
		}
		if _, dup := seenSessions[s.ID]; dup {
			return &InvalidInputError{Reason: fmt.Sprintf("duplicate session ID %s", s.ID)}
		}
		seenSessions[s.ID] = struct{}{}
	}
	if len(in.Sessions) == 0 {
		return &InvalidInputError{Reason: "no sessions supplied"}
	}

	seenGroups := make(map[GroupID]struct{}, len(in.Groups))
	for _, g := range in.Groups {
		if err := g.validate(); err != nil {
			return err
		}
		if _, dup := seenGroups[g.ID]; dup {
			return &InvalidInputError{Reason: fmt.Sprintf("duplicate group ID %s", g.ID)}
		}
		seenGroups[g.ID] = struct{}{}
	}
	if len(in.Groups) == 0 {
		return &InvalidInputError{Reason: "no groups supplied"}
	}

	for _, p := range in.Preferences {
		if _, ok := seenGroups[p.GroupID]; !ok {
			return &InvalidInputError{Reason: fmt.Sprintf("preference references unknown group %s", p.GroupID)}
		}
		if _, ok := seenSessions[p.SessionID]; !ok {
			return &InvalidInputError{Reason: fmt.Sprintf("preference references unknown session %s", p.SessionID)}
		}
		if !validScore(p.Score) {
			return &InvalidInputError{Reason: fmt.Sprintf("preference for group %s, session %s has invalid score %d", p.GroupID, p.SessionID, p.Score)}
		}
	}

	if in.NTrials <= 0 {
		return &InvalidInputError{Reason: fmt.Sprintf("n_trials must be positive, got %d", in.NTrials)}
	}

	return nil
}

func validScore(s Score) bool {
	switch s {
	case 0, 1, 2, 3, 4, 5, GoldenD20Score:
		return true
	default:
		return false
	}
}
