// Package combat implements the initiative tracking engine: combatant records,
// turn ordering, round progression, and damage/heal application.
package combat

import "time"

// Phase is the stored progression phase of an Encounter.
type Phase string

const (
	PhaseSetup  Phase = "setup"
	PhaseActive Phase = "active"
)

// Valid reports whether p is a recognised phase.
func (p Phase) Valid() bool {
	return p == PhaseSetup || p == PhaseActive
}

// State is the lifecycle state derived from Phase and IsActive.
type State int

const (
	StateSetup State = iota
	StateActive
	StateEnded
)

// String returns a human-readable state label.
func (s State) String() string {
	switch s {
	case StateSetup:
		return "setup"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Combatant is one participant in an Encounter.
type Combatant struct {
	ID             string    `json:"id"`
	EncounterID    string    `json:"encounterId"`
	Name           string    `json:"name"`
	InitiativeRoll int       `json:"initiativeRoll"`
	ArmorClass     *int      `json:"armorClass"`
	MaxHP          *int      `json:"maxHp"`
	DamageTaken    int       `json:"damageTaken"`
	IsPlayer       bool      `json:"isPlayer"`
	IsActive       bool      `json:"isActive"`
	Order          int       `json:"order"`
	CreatedAt      time.Time `json:"createdAt"`
}

// CurrentHP returns max(0, MaxHP-DamageTaken).
//
// Postcondition: ok is false iff MaxHP is nil; otherwise 0 <= hp <= *MaxHP when *MaxHP >= 0.
func (c *Combatant) CurrentHP() (hp int, ok bool) {
	if c.MaxHP == nil {
		return 0, false
	}
	hp = *c.MaxHP - c.DamageTaken
	if hp < 0 {
		hp = 0
	}
	return hp, true
}

// IsDefeated reports whether the combatant has trackable HP and none left.
// Combatants without MaxHP are never defeated.
func (c *Combatant) IsDefeated() bool {
	hp, ok := c.CurrentHP()
	return ok && hp <= 0
}

// Clone returns a deep copy of c.
func (c *Combatant) Clone() *Combatant {
	out := *c
	out.ArmorClass = cloneInt(c.ArmorClass)
	out.MaxHP = cloneInt(c.MaxHP)
	return &out
}

// Encounter aggregates the combatants of one fight with its phase and round.
type Encounter struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Phase is setup until Start is called.
	Phase Phase `json:"phase"`
	// Round starts at 1 and only advances while the encounter is active.
	Round int `json:"round"`
	// TurnIndex indexes TurnOrder(). It is persisted so every observer agrees on
	// the current actor, and is always read through ClampTurn.
	TurnIndex int `json:"turnIndex"`
	// IsActive is false once the encounter has ended; ended encounters are history.
	IsActive bool    `json:"isActive"`
	Outcome  *string `json:"outcome"`
	// Combatants is held in insertion order. It is not the turn order.
	Combatants []*Combatant `json:"combatants"`
	CreatedAt  time.Time    `json:"createdAt"`
	UpdatedAt  time.Time    `json:"updatedAt"`
}

// State returns the lifecycle state of the encounter.
func (e *Encounter) State() State {
	switch {
	case !e.IsActive:
		return StateEnded
	case e.Phase == PhaseActive:
		return StateActive
	default:
		return StateSetup
	}
}

// IsLive reports whether e is the in-progress encounter: phase active and not ended.
func (e *Encounter) IsLive() bool {
	return e.Phase == PhaseActive && e.IsActive
}

// Combatant returns the combatant with the given id.
//
// Postcondition: Returns (combatant, true) if found, or (nil, false) otherwise.
func (e *Encounter) Combatant(id string) (*Combatant, bool) {
	for _, c := range e.Combatants {
		if c.ID == id {
			return c, true
		}
	}
	return nil, false
}

// Clone returns a deep copy of e including its combatants.
func (e *Encounter) Clone() *Encounter {
	out := *e
	if e.Outcome != nil {
		o := *e.Outcome
		out.Outcome = &o
	}
	out.Combatants = make([]*Combatant, len(e.Combatants))
	for i, c := range e.Combatants {
		out.Combatants[i] = c.Clone()
	}
	return &out
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

// Int returns a pointer to v, for optional fields.
func Int(v int) *int { return &v }

// String returns a pointer to v, for optional fields.
func String(v string) *string { return &v }
