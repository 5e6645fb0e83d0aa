package room

// PickTeam chooses a team for a joining player in team mode.
//
// The hint is tried first, then the other team; the first team under cap
// takes the seat. Callers flip the hint on success, which makes assignment
// alternate red/blue/red/blue under sequential joins. When both teams are at
// cap there is no seat and ok is false.
//
// Precondition: cap >= 1; counts holds the live per-team member counts.
func PickTeam(counts map[Team]int, hint Team, cap int) (team Team, ok bool) {
	if hint == TeamNone {
		hint = TeamRed
	}
	for _, t := range []Team{hint, hint.other()} {
		if counts[t] < cap {
			return t, true
		}
	}
	return TeamNone, false
}
