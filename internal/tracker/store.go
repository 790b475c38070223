// Package tracker coordinates encounters and combatants over a persistence
// Store, applying the combat engine rules to every mutation.
package tracker

import (
	"context"

	"github.com/cory-johannsen/initiative/internal/game/combat"
)

// Store is the source of truth for encounters and combatants. Every observer
// reads from and writes to the same Store; concurrent writes to the same field
// are decided by arrival order (last write wins).
//
// Implementations MUST be safe for concurrent use, MUST return
// *combat.NotFoundError for unknown ids on reads and updates, and MUST treat
// removal of an unknown id as success.
type Store interface {
	// CreateEncounter inserts an encounter in phase setup, round 1, active.
	CreateEncounter(ctx context.Context, name string) (*combat.Encounter, error)
	// ListEncounters returns all encounters, oldest first, with their combatants.
	ListEncounters(ctx context.Context) ([]*combat.Encounter, error)
	// GetEncounter returns one encounter with its combatants in insertion order.
	GetEncounter(ctx context.Context, id string) (*combat.Encounter, error)
	// UpdateEncounter applies a partial patch and returns the updated encounter.
	UpdateEncounter(ctx context.Context, id string, patch combat.EncounterPatch) (*combat.Encounter, error)
	// DeleteEncounter removes an encounter and all of its combatants.
	DeleteEncounter(ctx context.Context, id string) error

	// AddCombatant appends a combatant to an encounter.
	AddCombatant(ctx context.Context, encounterID string, in combat.NewCombatant) (*combat.Combatant, error)
	// ListCombatants returns an encounter's combatants in insertion order.
	ListCombatants(ctx context.Context, encounterID string) ([]*combat.Combatant, error)
	// GetCombatant returns one combatant.
	GetCombatant(ctx context.Context, id string) (*combat.Combatant, error)
	// UpdateCombatant applies a partial patch and returns the updated combatant.
	UpdateCombatant(ctx context.Context, id string, patch combat.CombatantPatch) (*combat.Combatant, error)
	// ApplyDamageDelta atomically sets damageTaken = max(0, damageTaken+delta).
	ApplyDamageDelta(ctx context.Context, id string, delta int) (*combat.Combatant, error)
	// RemoveCombatant hard-deletes a combatant.
	RemoveCombatant(ctx context.Context, id string) error
}
