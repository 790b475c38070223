// Package dice rolls initiative expressions such as "1d20+2" or "2d20kh1+3".
package dice

import (
	"fmt"
	"strings"
)

// RollResult records one evaluated expression.
//
// Postcondition: Total() == sum(Kept) + Modifier.
type RollResult struct {
	Expression string // normalized expression, e.g. "2d20kh1+3"
	Rolled     []int  // every die rolled, in roll order
	Kept       []int  // the dice that count toward the total
	Modifier   int
}

// Total returns the sum of the kept dice plus the modifier.
func (r RollResult) Total() int {
	total := r.Modifier
	for _, d := range r.Kept {
		total += d
	}
	return total
}

// String renders the roll for display, e.g. "2d20kh1+3 → [17 4] keep [17] +3 = 20".
//
// Precondition: r.Expression is non-empty.
func (r RollResult) String() string {
	if r.Expression == "" {
		panic("dice: RollResult.String() precondition violated: Expression must be non-empty")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s → %v", r.Expression, r.Rolled)
	if len(r.Kept) != len(r.Rolled) {
		fmt.Fprintf(&b, " keep %v", r.Kept)
	}
	fmt.Fprintf(&b, " %+d = %d", r.Modifier, r.Total())
	return b.String()
}

// Source is the randomness provider for rolls.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}
