// Package augment implements per-round augment selection: the ledger that
// records each player's choice and the completion barrier over the live
// roster, plus the catalog of options offered each selection phase.
package augment

// Ledger records augment selections keyed by round number. Records are
// append/overwrite only and live as long as the owning room.
//
// A Ledger is not safe for concurrent use on its own; the owning room's
// lock guards it.
type Ledger struct {
	rounds map[int]map[string]string // round → playerID → choiceID
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{rounds: make(map[int]map[string]string)}
}

// Select records playerID's choice for the round, overwriting any previous
// choice. Idempotent for repeated identical calls.
func (l *Ledger) Select(round int, playerID, choiceID string) {
	sel, ok := l.rounds[round]
	if !ok {
		sel = make(map[string]string)
		l.rounds[round] = sel
	}
	sel[playerID] = choiceID
}

// Complete reports whether every id in roster has a recorded choice for the
// round. The roster is the room's LIVE membership at evaluation time: a
// player who joined mid-phase blocks completion, one who left is no longer
// required. An empty roster is trivially complete.
func (l *Ledger) Complete(round int, roster []string) bool {
	sel := l.rounds[round]
	for _, id := range roster {
		if _, ok := sel[id]; !ok {
			return false
		}
	}
	return true
}

// Selections returns a copy of the recorded choices for the round. Never
// nil.
func (l *Ledger) Selections(round int) map[string]string {
	out := make(map[string]string, len(l.rounds[round]))
	for id, choice := range l.rounds[round] {
		out[id] = choice
	}
	return out
}

// Rounds returns the round numbers that have at least one selection.
func (l *Ledger) Rounds() []int {
	out := make([]int, 0, len(l.rounds))
	for r := range l.rounds {
		out = append(out, r)
	}
	return out
}
