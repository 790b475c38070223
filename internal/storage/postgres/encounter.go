package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/initiative/internal/game/combat"
)

const encounterColumns = `id::text, name, phase, round, turn_index, is_active, outcome, created_at, updated_at`

const combatantColumns = `id::text, encounter_id::text, name, initiative_roll, armor_class, max_hp,
	damage_taken, is_player, is_active, sort_order, created_at`

// EncounterStore persists encounters and combatants in PostgreSQL.
// Ids are UUIDs; an id that does not parse is treated as unknown.
type EncounterStore struct {
	db *pgxpool.Pool
}

// NewEncounterStore creates an EncounterStore backed by the given pool.
//
// Precondition: db must be a valid, open connection pool with migrations applied.
func NewEncounterStore(db *pgxpool.Pool) *EncounterStore {
	return &EncounterStore{db: db}
}

// CreateEncounter inserts a new encounter in phase setup.
func (s *EncounterStore) CreateEncounter(ctx context.Context, name string) (*combat.Encounter, error) {
	enc, err := scanEncounter(s.db.QueryRow(ctx, `
		INSERT INTO encounters (name) VALUES ($1)
		RETURNING `+encounterColumns, name))
	if err != nil {
		return nil, mapError(fmt.Errorf("inserting encounter: %w", err))
	}
	enc.Combatants = []*combat.Combatant{}
	return enc, nil
}

// ListEncounters returns all encounters with their combatants, oldest first.
func (s *EncounterStore) ListEncounters(ctx context.Context) ([]*combat.Encounter, error) {
	rows, err := s.db.Query(ctx, `SELECT `+encounterColumns+` FROM encounters ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing encounters: %w", err)
	}
	encs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*combat.Encounter, error) {
		return scanEncounter(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning encounters: %w", err)
	}

	byID := make(map[string]*combat.Encounter, len(encs))
	for _, enc := range encs {
		enc.Combatants = []*combat.Combatant{}
		byID[enc.ID] = enc
	}
	rows, err = s.db.Query(ctx, `SELECT `+combatantColumns+` FROM combatants ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing combatants: %w", err)
	}
	cs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*combat.Combatant, error) {
		return scanCombatant(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning combatants: %w", err)
	}
	for _, c := range cs {
		// A combatant inserted between the two queries has no parent in byID.
		if enc, ok := byID[c.EncounterID]; ok {
			enc.Combatants = append(enc.Combatants, c)
		}
	}
	return encs, nil
}

// GetEncounter returns the encounter with its combatants.
//
// Postcondition: Returns a NotFoundError for an unknown id.
func (s *EncounterStore) GetEncounter(ctx context.Context, id string) (*combat.Encounter, error) {
	if !validID(id) {
		return nil, combat.EncounterNotFound(id)
	}
	enc, err := scanEncounter(s.db.QueryRow(ctx,
		`SELECT `+encounterColumns+` FROM encounters WHERE id = $1::uuid`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, combat.EncounterNotFound(id)
		}
		return nil, fmt.Errorf("querying encounter: %w", err)
	}
	if enc.Combatants, err = s.ListCombatants(ctx, id); err != nil {
		return nil, err
	}
	return enc, nil
}

// UpdateEncounter applies patch in a single statement.
//
// Postcondition: Returns a ConflictError when the patch would make a second
// encounter live.
func (s *EncounterStore) UpdateEncounter(ctx context.Context, id string, patch combat.EncounterPatch) (*combat.Encounter, error) {
	if !validID(id) {
		return nil, combat.EncounterNotFound(id)
	}
	var name, phase *string
	if patch.Name != nil {
		n := strings.TrimSpace(*patch.Name)
		name = &n
	}
	if patch.Phase != nil {
		p := string(*patch.Phase)
		phase = &p
	}
	enc, err := scanEncounter(s.db.QueryRow(ctx, `
		UPDATE encounters SET
			name       = COALESCE($2, name),
			phase      = COALESCE($3, phase),
			round      = COALESCE($4, round),
			turn_index = COALESCE($5, turn_index),
			is_active  = COALESCE($6, is_active),
			outcome    = COALESCE($7, outcome),
			updated_at = NOW()
		WHERE id = $1::uuid
		RETURNING `+encounterColumns,
		id, name, phase, patch.Round, patch.TurnIndex, patch.IsActive, patch.Outcome,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, combat.EncounterNotFound(id)
		}
		return nil, mapError(fmt.Errorf("updating encounter: %w", err))
	}
	if enc.Combatants, err = s.ListCombatants(ctx, id); err != nil {
		return nil, err
	}
	return enc, nil
}

// DeleteEncounter removes the encounter; combatants cascade. Unknown ids are a no-op.
func (s *EncounterStore) DeleteEncounter(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM encounters WHERE id = $1::uuid`, id); err != nil {
		return fmt.Errorf("deleting encounter: %w", err)
	}
	return nil
}

// AddCombatant inserts a combatant and touches the parent encounter.
//
// Precondition: in.Validate() == nil.
func (s *EncounterStore) AddCombatant(ctx context.Context, encounterID string, in combat.NewCombatant) (*combat.Combatant, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if !validID(encounterID) {
		return nil, combat.EncounterNotFound(encounterID)
	}
	built := in.Build("", encounterID)

	var out *combat.Combatant
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE encounters SET updated_at = NOW() WHERE id = $1::uuid`, encounterID)
		if err != nil {
			return fmt.Errorf("touching encounter: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return combat.EncounterNotFound(encounterID)
		}
		out, err = scanCombatant(tx.QueryRow(ctx, `
			INSERT INTO combatants
				(encounter_id, name, initiative_roll, armor_class, max_hp, is_player)
			VALUES ($1::uuid, $2, $3, $4, $5, $6)
			RETURNING `+combatantColumns,
			encounterID, built.Name, built.InitiativeRoll, built.ArmorClass, built.MaxHP, built.IsPlayer,
		))
		if err != nil {
			return fmt.Errorf("inserting combatant: %w", err)
		}
		return nil
	})
	if err != nil {
		if sqlState(err) == sqlStateForeignKeyViolation {
			return nil, combat.EncounterNotFound(encounterID)
		}
		return nil, mapError(err)
	}
	return out, nil
}

// ListCombatants returns the encounter's combatants in insertion order.
func (s *EncounterStore) ListCombatants(ctx context.Context, encounterID string) ([]*combat.Combatant, error) {
	if !validID(encounterID) {
		return nil, combat.EncounterNotFound(encounterID)
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+combatantColumns+` FROM combatants
		WHERE encounter_id = $1::uuid ORDER BY seq ASC`, encounterID)
	if err != nil {
		return nil, fmt.Errorf("listing combatants: %w", err)
	}
	cs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*combat.Combatant, error) {
		return scanCombatant(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scanning combatants: %w", err)
	}
	if len(cs) == 0 {
		var exists bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM encounters WHERE id = $1::uuid)`, encounterID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("checking encounter: %w", err)
		}
		if !exists {
			return nil, combat.EncounterNotFound(encounterID)
		}
	}
	return cs, nil
}

// GetCombatant returns the combatant.
func (s *EncounterStore) GetCombatant(ctx context.Context, id string) (*combat.Combatant, error) {
	if !validID(id) {
		return nil, combat.CombatantNotFound(id)
	}
	c, err := scanCombatant(s.db.QueryRow(ctx,
		`SELECT `+combatantColumns+` FROM combatants WHERE id = $1::uuid`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, combat.CombatantNotFound(id)
		}
		return nil, fmt.Errorf("querying combatant: %w", err)
	}
	return c, nil
}

// UpdateCombatant applies patch in a single statement.
func (s *EncounterStore) UpdateCombatant(ctx context.Context, id string, patch combat.CombatantPatch) (*combat.Combatant, error) {
	return s.updateCombatant(ctx, id, `
		UPDATE combatants SET
			initiative_roll = COALESCE($2, initiative_roll),
			armor_class     = COALESCE($3, armor_class),
			max_hp          = COALESCE($4, max_hp),
			damage_taken    = COALESCE($5, damage_taken),
			is_active       = COALESCE($6, is_active),
			sort_order      = COALESCE($7, sort_order)
		WHERE id = $1::uuid
		RETURNING `+combatantColumns,
		id, patch.InitiativeRoll, patch.ArmorClass, patch.MaxHP, patch.DamageTaken, patch.IsActive, patch.Order,
	)
}

// ApplyDamageDelta adjusts the damage counter in place, flooring at zero, so
// concurrent deltas from different observers are never lost.
func (s *EncounterStore) ApplyDamageDelta(ctx context.Context, id string, delta int) (*combat.Combatant, error) {
	return s.updateCombatant(ctx, id, `
		UPDATE combatants SET damage_taken = GREATEST(damage_taken + $2, 0)
		WHERE id = $1::uuid
		RETURNING `+combatantColumns,
		id, delta,
	)
}

// RemoveCombatant deletes the combatant. Unknown ids are a no-op.
func (s *EncounterStore) RemoveCombatant(ctx context.Context, id string) error {
	if !validID(id) {
		return nil
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM combatants WHERE id = $1::uuid`, id); err != nil {
		return fmt.Errorf("removing combatant: %w", err)
	}
	return nil
}

func (s *EncounterStore) updateCombatant(ctx context.Context, id, query string, args ...any) (*combat.Combatant, error) {
	if !validID(id) {
		return nil, combat.CombatantNotFound(id)
	}
	c, err := scanCombatant(s.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, combat.CombatantNotFound(id)
		}
		return nil, mapError(fmt.Errorf("updating combatant: %w", err))
	}
	return c, nil
}

func scanEncounter(row pgx.Row) (*combat.Encounter, error) {
	var enc combat.Encounter
	var phase string
	err := row.Scan(
		&enc.ID, &enc.Name, &phase, &enc.Round, &enc.TurnIndex,
		&enc.IsActive, &enc.Outcome, &enc.CreatedAt, &enc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	enc.Phase = combat.Phase(phase)
	return &enc, nil
}

func scanCombatant(row pgx.Row) (*combat.Combatant, error) {
	var c combat.Combatant
	err := row.Scan(
		&c.ID, &c.EncounterID, &c.Name, &c.InitiativeRoll, &c.ArmorClass, &c.MaxHP,
		&c.DamageTaken, &c.IsPlayer, &c.IsActive, &c.Order, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// mapError converts constraint violations into domain errors and leaves
// everything else wrapped as is.
func mapError(err error) error {
	switch sqlState(err) {
	case sqlStateUniqueViolation:
		return &combat.ConflictError{Reason: "another encounter is already live"}
	case sqlStateCheckViolation:
		return &combat.ValidationError{Reason: "value violates a storage constraint", Err: err}
	default:
		return err
	}
}
