package combat

import "sort"

// Order returns the turn order for combatants: active combatants only, highest
// InitiativeRoll first. Ties are broken by the Order key ascending and then by
// position in combatants, so records that were never manually reordered keep
// their insertion order.
//
// Precondition: combatants is in insertion order.
// Postcondition: combatants is not modified; the result is deterministic for a
// fixed input.
func Order(combatants []*Combatant) []*Combatant {
	out := make([]*Combatant, 0, len(combatants))
	for _, c := range combatants {
		if c.IsActive {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].InitiativeRoll != out[j].InitiativeRoll {
			return out[i].InitiativeRoll > out[j].InitiativeRoll
		}
		return out[i].Order < out[j].Order
	})
	return out
}

// TurnOrder returns the current ordering of e's combatants. It is recomputed on
// every call so that initiative edits take effect immediately.
func (e *Encounter) TurnOrder() []*Combatant {
	return Order(e.Combatants)
}

// TurnOrderIDs returns the ids of TurnOrder in sequence.
func (e *Encounter) TurnOrderIDs() []string {
	order := e.TurnOrder()
	ids := make([]string, len(order))
	for i, c := range order {
		ids[i] = c.ID
	}
	return ids
}
