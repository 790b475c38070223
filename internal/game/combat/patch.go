package combat

import "strings"

// NewCombatant is the payload for adding a combatant to an encounter.
// Players are typically entered with only a name and initiative.
type NewCombatant struct {
	Name           string `json:"name" yaml:"name"`
	InitiativeRoll *int   `json:"initiativeRoll" yaml:"initiative"`
	ArmorClass     *int   `json:"armorClass,omitempty" yaml:"ac,omitempty"`
	MaxHP          *int   `json:"maxHp,omitempty" yaml:"hp,omitempty"`
	IsPlayer       bool   `json:"isPlayer" yaml:"player"`
}

// Validate checks the required fields.
//
// Postcondition: Returns a ValidationError if Name is blank or InitiativeRoll is absent.
func (n NewCombatant) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return Invalid("name", "must not be empty")
	}
	if n.InitiativeRoll == nil {
		return Invalid("initiativeRoll", "is required")
	}
	if n.MaxHP != nil && *n.MaxHP < 0 {
		return Invalid("maxHp", "must not be negative")
	}
	return nil
}

// Build returns the Combatant record described by n, active and undamaged.
//
// Precondition: n.Validate() == nil.
func (n NewCombatant) Build(id, encounterID string) *Combatant {
	return &Combatant{
		ID:             id,
		EncounterID:    encounterID,
		Name:           strings.TrimSpace(n.Name),
		InitiativeRoll: *n.InitiativeRoll,
		ArmorClass:     cloneInt(n.ArmorClass),
		MaxHP:          cloneInt(n.MaxHP),
		IsPlayer:       n.IsPlayer,
		IsActive:       true,
	}
}

// CombatantPatch is a partial update; nil fields are left unchanged.
type CombatantPatch struct {
	InitiativeRoll *int  `json:"initiativeRoll,omitempty"`
	ArmorClass     *int  `json:"armorClass,omitempty"`
	MaxHP          *int  `json:"maxHp,omitempty"`
	DamageTaken    *int  `json:"damageTaken,omitempty"`
	IsActive       *bool `json:"isActive,omitempty"`
	Order          *int  `json:"order,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p CombatantPatch) Empty() bool {
	return p.InitiativeRoll == nil && p.ArmorClass == nil && p.MaxHP == nil &&
		p.DamageTaken == nil && p.IsActive == nil && p.Order == nil
}

// Validate checks the provided fields.
//
// Postcondition: Returns a ValidationError if DamageTaken or MaxHP is negative.
func (p CombatantPatch) Validate() error {
	if p.DamageTaken != nil && *p.DamageTaken < 0 {
		return Invalid("damageTaken", "must not be negative")
	}
	if p.MaxHP != nil && *p.MaxHP < 0 {
		return Invalid("maxHp", "must not be negative")
	}
	return nil
}

// Apply writes the provided fields onto c.
func (p CombatantPatch) Apply(c *Combatant) {
	if p.InitiativeRoll != nil {
		c.InitiativeRoll = *p.InitiativeRoll
	}
	if p.ArmorClass != nil {
		c.ArmorClass = cloneInt(p.ArmorClass)
	}
	if p.MaxHP != nil {
		c.MaxHP = cloneInt(p.MaxHP)
	}
	if p.DamageTaken != nil {
		c.DamageTaken = *p.DamageTaken
	}
	if p.IsActive != nil {
		c.IsActive = *p.IsActive
	}
	if p.Order != nil {
		c.Order = *p.Order
	}
}

// EncounterPatch is a partial update; nil fields are left unchanged.
type EncounterPatch struct {
	Name      *string `json:"name,omitempty"`
	Phase     *Phase  `json:"phase,omitempty"`
	Round     *int    `json:"round,omitempty"`
	TurnIndex *int    `json:"turnIndex,omitempty"`
	IsActive  *bool   `json:"isActive,omitempty"`
	Outcome   *string `json:"outcome,omitempty"`
}

// Validate checks the provided fields.
func (p EncounterPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return Invalid("name", "must not be empty")
	}
	if p.Phase != nil && !p.Phase.Valid() {
		return Invalid("phase", "must be setup or active")
	}
	if p.Round != nil && *p.Round < 1 {
		return Invalid("round", "must be at least 1")
	}
	if p.TurnIndex != nil && *p.TurnIndex < 0 {
		return Invalid("turnIndex", "must not be negative")
	}
	return nil
}

// Apply writes the provided fields onto e.
func (p EncounterPatch) Apply(e *Encounter) {
	if p.Name != nil {
		e.Name = strings.TrimSpace(*p.Name)
	}
	if p.Phase != nil {
		e.Phase = *p.Phase
	}
	if p.Round != nil {
		e.Round = *p.Round
	}
	if p.TurnIndex != nil {
		e.TurnIndex = *p.TurnIndex
	}
	if p.IsActive != nil {
		e.IsActive = *p.IsActive
	}
	if p.Outcome != nil {
		o := *p.Outcome
		e.Outcome = &o
	}
}
