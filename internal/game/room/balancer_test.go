package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPickTeam_FollowsHintFirst(t *testing.T) {
	// The hint wins whenever it is under cap, even when the other team is
	// smaller.
	team, ok := PickTeam(map[Team]int{TeamRed: 2, TeamBlue: 1}, TeamRed, 3)
	require.True(t, ok)
	assert.Equal(t, TeamRed, team)

	team, ok = PickTeam(map[Team]int{TeamRed: 0, TeamBlue: 2}, TeamBlue, 3)
	require.True(t, ok)
	assert.Equal(t, TeamBlue, team)
}

func TestPickTeam_TieFollowsHint(t *testing.T) {
	team, ok := PickTeam(map[Team]int{}, TeamRed, 3)
	require.True(t, ok)
	assert.Equal(t, TeamRed, team)

	team, ok = PickTeam(map[Team]int{TeamRed: 1, TeamBlue: 1}, TeamBlue, 3)
	require.True(t, ok)
	assert.Equal(t, TeamBlue, team)
}

func TestPickTeam_SkipsCappedTeam(t *testing.T) {
	// The hint points at blue but blue is at cap, so red takes the seat.
	team, ok := PickTeam(map[Team]int{TeamRed: 1, TeamBlue: 2}, TeamBlue, 2)
	require.True(t, ok)
	assert.Equal(t, TeamRed, team)
}

func TestPickTeam_BothCapped(t *testing.T) {
	_, ok := PickTeam(map[Team]int{TeamRed: 3, TeamBlue: 3}, TeamRed, 3)
	assert.False(t, ok)
}

func TestPickTeam_AlternatesFromEmpty(t *testing.T) {
	counts := map[Team]int{}
	hint := TeamRed
	var got []Team
	for i := 0; i < 6; i++ {
		team, ok := PickTeam(counts, hint, 3)
		require.True(t, ok)
		counts[team]++
		hint = team.other()
		got = append(got, team)
	}
	assert.Equal(t, []Team{TeamRed, TeamBlue, TeamRed, TeamBlue, TeamRed, TeamBlue}, got)
}

// TestPropertyPickTeamBalances drives random join/leave sequences and checks
// the invariants that matter: caps are never exceeded and team sizes never
// drift more than one apart as long as nobody leaves.
func TestPropertyPickTeamBalances(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cap := rapid.IntRange(1, 5).Draw(t, "cap")
		joins := rapid.IntRange(0, 2*cap).Draw(t, "joins")

		counts := map[Team]int{}
		hint := TeamRed
		for i := 0; i < joins; i++ {
			team, ok := PickTeam(counts, hint, cap)
			require.True(t, ok)
			counts[team]++
			hint = team.other()

			require.LessOrEqual(t, counts[TeamRed], cap)
			require.LessOrEqual(t, counts[TeamBlue], cap)
			diff := counts[TeamRed] - counts[TeamBlue]
			if diff < 0 {
				diff = -diff
			}
			require.LessOrEqual(t, diff, 1)
		}

		_, ok := PickTeam(map[Team]int{TeamRed: cap, TeamBlue: cap}, hint, cap)
		require.False(t, ok)
	})
}

// TestPropertyPickTeamHintOrder checks the assignment order on arbitrary
// live counts: the hint takes the seat whenever it is under cap, the other
// team only when the hint is capped, and nobody when both are.
func TestPropertyPickTeamHintOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cap := rapid.IntRange(1, 4).Draw(t, "cap")
		red := rapid.IntRange(0, cap).Draw(t, "red")
		blue := rapid.IntRange(0, cap).Draw(t, "blue")
		hint := rapid.SampledFrom([]Team{TeamRed, TeamBlue}).Draw(t, "hint")

		counts := map[Team]int{TeamRed: red, TeamBlue: blue}
		team, ok := PickTeam(counts, hint, cap)
		switch {
		case counts[hint] < cap:
			require.True(t, ok)
			require.Equal(t, hint, team)
		case counts[hint.other()] < cap:
			require.True(t, ok)
			require.Equal(t, hint.other(), team)
		default:
			require.False(t, ok)
		}
	})
}
