package combat

import "strings"

// ClampTurn bounds a turn index to an ordering of length n.
//
// Postcondition: Returns 0 when n == 0, otherwise a value in [0, n-1].
func ClampTurn(idx, n int) int {
	if n <= 0 || idx < 0 {
		return 0
	}
	if idx > n-1 {
		return n - 1
	}
	return idx
}

// Advance computes the turn index and round after one turn in an ordering of
// length n. The round increments exactly when the index wraps to 0.
//
// Postcondition: When n == 0 the inputs are returned unchanged.
// Postcondition: Calling Advance n times from (i, r) yields (i, r+1) for any valid i.
func Advance(idx, round, n int) (nextIdx, nextRound int) {
	if n <= 0 {
		return idx, round
	}
	nextIdx = (ClampTurn(idx, n) + 1) % n
	nextRound = round
	if nextIdx == 0 {
		nextRound++
	}
	return nextIdx, nextRound
}

// CurrentTurn returns the combatant whose turn it is, or nil if the ordering is empty.
// The persisted TurnIndex is clamped, so removing the last combatant in the
// order moves the turn to the new last combatant rather than off the end.
func (e *Encounter) CurrentTurn() *Combatant {
	order := e.TurnOrder()
	if len(order) == 0 {
		return nil
	}
	return order[ClampTurn(e.TurnIndex, len(order))]
}

// Start transitions the encounter from setup to active. It has no other guard:
// an encounter may start with zero combatants.
//
// Postcondition: Phase == PhaseActive; TurnIndex == 0; Round >= 1.
func (e *Encounter) Start() {
	if e.Phase == PhaseActive {
		return
	}
	e.Phase = PhaseActive
	e.TurnIndex = 0
	if e.Round < 1 {
		e.Round = 1
	}
}

// AdvanceTurn moves to the next combatant in the current ordering.
//
// Postcondition: Returns true iff the ordering wrapped and Round was incremented.
// An empty ordering is a no-op.
func (e *Encounter) AdvanceTurn() bool {
	n := len(e.TurnOrder())
	if n == 0 {
		return false
	}
	prev := e.Round
	e.TurnIndex, e.Round = Advance(e.TurnIndex, e.Round, n)
	return e.Round != prev
}

// End terminates the encounter. The outcome is recorded when non-blank.
// Ended encounters are read-only history by caller contract.
//
// Postcondition: IsActive == false.
func (e *Encounter) End(outcome string) {
	e.IsActive = false
	if o := strings.TrimSpace(outcome); o != "" {
		e.Outcome = &o
	}
}
