package api

import (
	"github.com/cory-johannsen/initiative/internal/game/combat"
)

// EncounterView is the wire form of an encounter: the stored record plus the
// values every observer derives from it.
type EncounterView struct {
	*combat.Encounter
	Combatants    []CombatantView `json:"combatants"`
	State         string          `json:"state"`
	TurnOrder     []string        `json:"turnOrder"`
	CurrentTurnID *string         `json:"currentTurnId"`
}

// CombatantView is the wire form of a combatant.
type CombatantView struct {
	*combat.Combatant
	// CurrentHP is null when the combatant has no tracked maximum.
	CurrentHP  *int `json:"currentHp"`
	IsDefeated bool `json:"isDefeated"`
}

// NewEncounterView derives the wire form of enc.
func NewEncounterView(enc *combat.Encounter) EncounterView {
	v := EncounterView{
		Encounter:  enc,
		Combatants: make([]CombatantView, len(enc.Combatants)),
		State:      enc.State().String(),
		TurnOrder:  enc.TurnOrderIDs(),
	}
	for i, c := range enc.Combatants {
		v.Combatants[i] = NewCombatantView(c)
	}
	if enc.Phase == combat.PhaseActive {
		if cur := enc.CurrentTurn(); cur != nil {
			v.CurrentTurnID = &cur.ID
		}
	}
	return v
}

// NewCombatantView derives the wire form of c.
func NewCombatantView(c *combat.Combatant) CombatantView {
	v := CombatantView{Combatant: c, IsDefeated: c.IsDefeated()}
	if hp, ok := c.CurrentHP(); ok {
		v.CurrentHP = &hp
	}
	return v
}

// Record returns the stored encounter carried by v with its combatants.
func (v EncounterView) Record() *combat.Encounter {
	if v.Encounter == nil {
		return nil
	}
	enc := *v.Encounter
	enc.Combatants = make([]*combat.Combatant, 0, len(v.Combatants))
	for _, c := range v.Combatants {
		if c.Combatant != nil {
			enc.Combatants = append(enc.Combatants, c.Combatant)
		}
	}
	return &enc
}

// WatchMessage is one frame on the live watch socket.
type WatchMessage struct {
	// Encounter is null while no encounter is live.
	Encounter *EncounterView `json:"encounter"`
}

// ErrorBody is the JSON body of every failed request.
type ErrorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type createEncounterRequest struct {
	Name string `json:"name"`
}

type endEncounterRequest struct {
	Outcome string `json:"outcome"`
}

type amountRequest struct {
	Amount int `json:"amount"`
}

type deltaRequest struct {
	Delta int `json:"delta"`
}
