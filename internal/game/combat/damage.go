package combat

// ApplyDelta returns the damage counter after applying delta: positive deltas
// are damage, negative deltas are healing. The counter floors at zero and has
// no ceiling, so damage beyond MaxHP must be healed away before CurrentHP rises.
//
// Precondition: damageTaken >= 0.
// Postcondition: Returns max(0, damageTaken+delta).
func ApplyDelta(damageTaken, delta int) int {
	next := damageTaken + delta
	if next < 0 {
		return 0
	}
	return next
}

// ApplyDelta applies a signed damage delta to c.
//
// Postcondition: c.DamageTaken >= 0.
func (c *Combatant) ApplyDelta(delta int) {
	c.DamageTaken = ApplyDelta(c.DamageTaken, delta)
}

// DamageDelta converts a positive damage amount into a signed delta.
//
// Postcondition: Returns a ValidationError when amount <= 0.
func DamageDelta(amount int) (int, error) {
	if amount <= 0 {
		return 0, Invalid("amount", "damage must be greater than zero")
	}
	return amount, nil
}

// HealDelta converts a positive heal amount into a signed delta.
//
// Postcondition: Returns a ValidationError when amount <= 0.
func HealDelta(amount int) (int, error) {
	if amount <= 0 {
		return 0, Invalid("amount", "heal must be greater than zero")
	}
	return -amount, nil
}
