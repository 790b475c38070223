// Package memory provides an in-process encounter store.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cory-johannsen/initiative/internal/game/combat"
)

// Store keeps encounters in memory. All methods are safe for concurrent use and
// return deep copies, so callers never share state with the store.
type Store struct {
	mu         sync.RWMutex
	encounters map[string]*combat.Encounter
	order      []string          // encounter ids, oldest first
	owner      map[string]string // combatant id → encounter id
	now        func() time.Time
}

// NewStore creates an empty Store.
//
// Postcondition: Returns a non-nil Store ready for use.
func NewStore() *Store {
	return &Store{
		encounters: make(map[string]*combat.Encounter),
		owner:      make(map[string]string),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CreateEncounter inserts a new encounter in phase setup.
func (s *Store) CreateEncounter(ctx context.Context, name string) (*combat.Encounter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	enc := &combat.Encounter{
		ID:         uuid.NewString(),
		Name:       name,
		Phase:      combat.PhaseSetup,
		Round:      1,
		IsActive:   true,
		Combatants: []*combat.Combatant{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.encounters[enc.ID] = enc
	s.order = append(s.order, enc.ID)
	return enc.Clone(), nil
}

// ListEncounters returns all encounters, oldest first.
func (s *Store) ListEncounters(ctx context.Context) ([]*combat.Encounter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*combat.Encounter, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.encounters[id].Clone())
	}
	return out, nil
}

// GetEncounter returns a copy of the encounter.
//
// Postcondition: Returns a NotFoundError for an unknown id.
func (s *Store) GetEncounter(ctx context.Context, id string) (*combat.Encounter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	enc, ok := s.encounters[id]
	if !ok {
		return nil, combat.EncounterNotFound(id)
	}
	return enc.Clone(), nil
}

// UpdateEncounter applies patch to the encounter.
//
// Postcondition: Returns a ConflictError when the patch would make a second
// encounter live.
func (s *Store) UpdateEncounter(ctx context.Context, id string, patch combat.EncounterPatch) (*combat.Encounter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	enc, ok := s.encounters[id]
	if !ok {
		return nil, combat.EncounterNotFound(id)
	}
	next := enc.Clone()
	patch.Apply(next)
	if next.IsLive() {
		for otherID, other := range s.encounters {
			if otherID != id && other.IsLive() {
				return nil, &combat.ConflictError{Reason: fmt.Sprintf("encounter %q is already live", otherID)}
			}
		}
	}
	next.UpdatedAt = s.now()
	s.encounters[id] = next
	return next.Clone(), nil
}

// DeleteEncounter removes the encounter and its combatants. Unknown ids are a no-op.
func (s *Store) DeleteEncounter(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	enc, ok := s.encounters[id]
	if !ok {
		return nil
	}
	for _, c := range enc.Combatants {
		delete(s.owner, c.ID)
	}
	delete(s.encounters, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// AddCombatant appends a combatant to the encounter.
//
// Precondition: in.Validate() == nil.
func (s *Store) AddCombatant(ctx context.Context, encounterID string, in combat.NewCombatant) (*combat.Combatant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	enc, ok := s.encounters[encounterID]
	if !ok {
		return nil, combat.EncounterNotFound(encounterID)
	}
	c := in.Build(uuid.NewString(), encounterID)
	c.CreatedAt = s.now()
	enc.Combatants = append(enc.Combatants, c)
	enc.UpdatedAt = c.CreatedAt
	s.owner[c.ID] = encounterID
	return c.Clone(), nil
}

// ListCombatants returns the encounter's combatants in insertion order.
func (s *Store) ListCombatants(ctx context.Context, encounterID string) ([]*combat.Combatant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	enc, ok := s.encounters[encounterID]
	if !ok {
		return nil, combat.EncounterNotFound(encounterID)
	}
	out := make([]*combat.Combatant, len(enc.Combatants))
	for i, c := range enc.Combatants {
		out[i] = c.Clone()
	}
	return out, nil
}

// GetCombatant returns a copy of the combatant.
func (s *Store) GetCombatant(ctx context.Context, id string) (*combat.Combatant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.lookup(id)
	if !ok {
		return nil, combat.CombatantNotFound(id)
	}
	return c.Clone(), nil
}

// UpdateCombatant applies patch to the combatant.
func (s *Store) UpdateCombatant(ctx context.Context, id string, patch combat.CombatantPatch) (*combat.Combatant, error) {
	return s.mutate(ctx, id, patch.Apply)
}

// ApplyDamageDelta adjusts the damage counter, flooring at zero.
func (s *Store) ApplyDamageDelta(ctx context.Context, id string, delta int) (*combat.Combatant, error) {
	return s.mutate(ctx, id, func(c *combat.Combatant) { c.ApplyDelta(delta) })
}

// RemoveCombatant deletes the combatant. Unknown ids are a no-op.
func (s *Store) RemoveCombatant(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	encID, ok := s.owner[id]
	if !ok {
		return nil
	}
	enc := s.encounters[encID]
	for i, c := range enc.Combatants {
		if c.ID == id {
			enc.Combatants = append(enc.Combatants[:i], enc.Combatants[i+1:]...)
			break
		}
	}
	enc.UpdatedAt = s.now()
	delete(s.owner, id)
	return nil
}

func (s *Store) mutate(ctx context.Context, id string, fn func(*combat.Combatant)) (*combat.Combatant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.lookup(id)
	if !ok {
		return nil, combat.CombatantNotFound(id)
	}
	fn(c)
	s.encounters[c.EncounterID].UpdatedAt = s.now()
	return c.Clone(), nil
}

// lookup must be called with mu held.
func (s *Store) lookup(id string) (*combat.Combatant, bool) {
	encID, ok := s.owner[id]
	if !ok {
		return nil, false
	}
	return s.encounters[encID].Combatant(id)
}
