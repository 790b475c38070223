package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/initiative/internal/game/combat"
)

// Service implements the encounter lifecycle, turn progression, and damage
// application on top of a Store. It holds no encounter state of its own, so any
// number of Services and observers may share one Store.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates a Service backed by store.
//
// Precondition: store and logger must be non-nil.
func NewService(store Store, logger *zap.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// CreateEncounter creates an encounter in phase setup.
//
// Postcondition: Returns the new encounter or a ValidationError for a blank name.
func (s *Service) CreateEncounter(ctx context.Context, name string) (*combat.Encounter, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, combat.Invalid("name", "must not be empty")
	}
	enc, err := s.store.CreateEncounter(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("creating encounter: %w", err)
	}
	s.logger.Info("encounter created",
		zap.String("encounter_id", enc.ID),
		zap.String("name", enc.Name),
	)
	return enc, nil
}

// ListEncounters returns every encounter, live and historical.
func (s *Service) ListEncounters(ctx context.Context) ([]*combat.Encounter, error) {
	encs, err := s.store.ListEncounters(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing encounters: %w", err)
	}
	return encs, nil
}

// GetEncounter returns the encounter with its combatants.
//
// Postcondition: Returns a NotFoundError for an unknown id.
func (s *Service) GetEncounter(ctx context.Context, id string) (*combat.Encounter, error) {
	enc, err := s.store.GetEncounter(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting encounter: %w", err)
	}
	return enc, nil
}

// UpdateEncounter applies an administrative patch. It is the same path used to
// correct historical encounters, so it does not refuse edits to ended ones;
// callers must not reactivate an ended encounter.
func (s *Service) UpdateEncounter(ctx context.Context, id string, patch combat.EncounterPatch) (*combat.Encounter, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	enc, err := s.store.UpdateEncounter(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("updating encounter: %w", err)
	}
	s.logger.Debug("encounter updated", zap.String("encounter_id", id))
	return enc, nil
}

// DeleteEncounter removes the encounter and its combatants. Deleting an unknown
// id succeeds.
func (s *Service) DeleteEncounter(ctx context.Context, id string) error {
	if err := s.store.DeleteEncounter(ctx, id); err != nil && !errors.Is(err, combat.ErrNotFound) {
		return fmt.Errorf("deleting encounter: %w", err)
	}
	s.logger.Info("encounter deleted", zap.String("encounter_id", id))
	return nil
}

// AddCombatant validates in and appends it to the encounter.
//
// Postcondition: Returns a ValidationError for a blank name or missing
// initiative, or a NotFoundError for an unknown encounter.
func (s *Service) AddCombatant(ctx context.Context, encounterID string, in combat.NewCombatant) (*combat.Combatant, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	c, err := s.store.AddCombatant(ctx, encounterID, in)
	if err != nil {
		return nil, fmt.Errorf("adding combatant: %w", err)
	}
	s.logger.Info("combatant added",
		zap.String("encounter_id", encounterID),
		zap.String("combatant_id", c.ID),
		zap.String("name", c.Name),
		zap.Int("initiative", c.InitiativeRoll),
		zap.Bool("player", c.IsPlayer),
	)
	return c, nil
}

// ListCombatants returns the encounter's combatants in insertion order.
func (s *Service) ListCombatants(ctx context.Context, encounterID string) ([]*combat.Combatant, error) {
	cs, err := s.store.ListCombatants(ctx, encounterID)
	if err != nil {
		return nil, fmt.Errorf("listing combatants: %w", err)
	}
	return cs, nil
}

// UpdateCombatant applies a partial patch to a combatant.
//
// Postcondition: Returns a NotFoundError for an unknown id.
func (s *Service) UpdateCombatant(ctx context.Context, id string, patch combat.CombatantPatch) (*combat.Combatant, error) {
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if patch.Empty() {
		return s.getCombatant(ctx, id)
	}
	c, err := s.store.UpdateCombatant(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("updating combatant: %w", err)
	}
	s.logger.Debug("combatant updated", zap.String("combatant_id", id))
	return c, nil
}

// RemoveCombatant hard-deletes a combatant. Two observers may race to remove
// the same entry, so removing an unknown id succeeds.
func (s *Service) RemoveCombatant(ctx context.Context, id string) error {
	if err := s.store.RemoveCombatant(ctx, id); err != nil && !errors.Is(err, combat.ErrNotFound) {
		return fmt.Errorf("removing combatant: %w", err)
	}
	s.logger.Info("combatant removed", zap.String("combatant_id", id))
	return nil
}

// StartEncounter moves an encounter from setup to active. Starting an encounter
// that is already active is a no-op.
//
// Postcondition: Returns a ConflictError when a different encounter is live.
func (s *Service) StartEncounter(ctx context.Context, id string) (*combat.Encounter, error) {
	enc, err := s.GetEncounter(ctx, id)
	if err != nil {
		return nil, err
	}
	if enc.Phase == combat.PhaseActive {
		return enc, nil
	}

	encs, err := s.ListEncounters(ctx)
	if err != nil {
		return nil, err
	}
	for _, other := range encs {
		if other.ID != id && other.IsLive() {
			return nil, &combat.ConflictError{Reason: fmt.Sprintf("encounter %q is already live", other.ID)}
		}
	}

	enc.Start()
	phase := enc.Phase
	updated, err := s.store.UpdateEncounter(ctx, id, combat.EncounterPatch{
		Phase:     &phase,
		Round:     &enc.Round,
		TurnIndex: &enc.TurnIndex,
	})
	if err != nil {
		return nil, fmt.Errorf("starting encounter: %w", err)
	}
	s.logger.Info("encounter started",
		zap.String("encounter_id", id),
		zap.Int("combatants", len(updated.TurnOrder())),
	)
	return updated, nil
}

// AdvanceTurn moves to the next combatant in initiative order, incrementing the
// round when the order wraps. An empty order is a no-op.
//
// Postcondition: Returns a ValidationError when the encounter is still in setup.
func (s *Service) AdvanceTurn(ctx context.Context, id string) (*combat.Encounter, error) {
	enc, err := s.GetEncounter(ctx, id)
	if err != nil {
		return nil, err
	}
	if enc.Phase != combat.PhaseActive {
		return nil, combat.Invalid("phase", "encounter has not started")
	}
	if len(enc.TurnOrder()) == 0 {
		return enc, nil
	}

	wrapped := enc.AdvanceTurn()
	updated, err := s.store.UpdateEncounter(ctx, id, combat.EncounterPatch{
		Round:     &enc.Round,
		TurnIndex: &enc.TurnIndex,
	})
	if err != nil {
		return nil, fmt.Errorf("advancing turn: %w", err)
	}
	fields := []zap.Field{
		zap.String("encounter_id", id),
		zap.Int("round", updated.Round),
		zap.Int("turn_index", updated.TurnIndex),
	}
	if cur := updated.CurrentTurn(); cur != nil {
		fields = append(fields, zap.String("current", cur.Name))
	}
	if wrapped {
		s.logger.Info("round advanced", fields...)
	} else {
		s.logger.Debug("turn advanced", fields...)
	}
	return updated, nil
}

// ApplyDelta applies a signed damage delta (positive damages, negative heals).
//
// Postcondition: damageTaken >= 0. Returns a ValidationError, which also
// matches combat.ErrNotFound, when the combatant does not exist.
func (s *Service) ApplyDelta(ctx context.Context, combatantID string, delta int) (*combat.Combatant, error) {
	c, err := s.store.ApplyDamageDelta(ctx, combatantID, delta)
	if err != nil {
		if errors.Is(err, combat.ErrNotFound) {
			return nil, &combat.ValidationError{Field: "combatantId", Reason: "no such combatant", Err: err}
		}
		return nil, fmt.Errorf("applying damage: %w", err)
	}
	hp, tracked := c.CurrentHP()
	s.logger.Info("hit points changed",
		zap.String("combatant_id", c.ID),
		zap.String("name", c.Name),
		zap.Int("delta", delta),
		zap.Int("damage_taken", c.DamageTaken),
		zap.Bool("hp_tracked", tracked),
		zap.Int("current_hp", hp),
		zap.Bool("defeated", c.IsDefeated()),
	)
	return c, nil
}

// Damage applies amount points of damage.
//
// Precondition: amount > 0, otherwise a ValidationError is returned.
func (s *Service) Damage(ctx context.Context, combatantID string, amount int) (*combat.Combatant, error) {
	delta, err := combat.DamageDelta(amount)
	if err != nil {
		return nil, err
	}
	return s.ApplyDelta(ctx, combatantID, delta)
}

// Heal removes amount points of damage, never below zero.
//
// Precondition: amount > 0, otherwise a ValidationError is returned.
func (s *Service) Heal(ctx context.Context, combatantID string, amount int) (*combat.Combatant, error) {
	delta, err := combat.HealDelta(amount)
	if err != nil {
		return nil, err
	}
	return s.ApplyDelta(ctx, combatantID, delta)
}

// EndEncounter terminates the encounter, recording outcome when non-blank.
//
// Postcondition: The returned encounter has IsActive == false.
func (s *Service) EndEncounter(ctx context.Context, id, outcome string) (*combat.Encounter, error) {
	enc, err := s.GetEncounter(ctx, id)
	if err != nil {
		return nil, err
	}
	enc.End(outcome)
	patch := combat.EncounterPatch{IsActive: &enc.IsActive, Outcome: enc.Outcome}
	updated, err := s.store.UpdateEncounter(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("ending encounter: %w", err)
	}
	fields := []zap.Field{zap.String("encounter_id", id), zap.Int("round", updated.Round)}
	if updated.Outcome != nil {
		fields = append(fields, zap.String("outcome", *updated.Outcome))
	}
	s.logger.Info("encounter ended", fields...)
	return updated, nil
}

// CurrentEncounter returns the single live encounter (phase active, not ended).
//
// Postcondition: Returns a NotFoundError when none is live and a ConflictError
// when more than one is, which indicates a data-integrity fault.
func (s *Service) CurrentEncounter(ctx context.Context) (*combat.Encounter, error) {
	encs, err := s.ListEncounters(ctx)
	if err != nil {
		return nil, err
	}
	var live []*combat.Encounter
	for _, enc := range encs {
		if enc.IsLive() {
			live = append(live, enc)
		}
	}
	switch len(live) {
	case 0:
		return nil, &combat.NotFoundError{Kind: "live encounter"}
	case 1:
		return live[0], nil
	default:
		ids := make([]string, len(live))
		for i, enc := range live {
			ids[i] = enc.ID
		}
		s.logger.Error("multiple live encounters", zap.Strings("encounter_ids", ids))
		return nil, &combat.ConflictError{Reason: fmt.Sprintf("%d encounters are live", len(live))}
	}
}

func (s *Service) getCombatant(ctx context.Context, id string) (*combat.Combatant, error) {
	c, err := s.store.GetCombatant(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting combatant: %w", err)
	}
	return c, nil
}
