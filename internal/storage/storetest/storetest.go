// Package storetest provides a conformance suite for tracker.Store implementations.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/initiative/internal/game/combat"
	"github.com/cory-johannsen/initiative/internal/tracker"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) tracker.Store

// Run exercises every Store contract against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	cases := []struct {
		name string
		fn   func(t *testing.T, s tracker.Store)
	}{
		{"CreateEncounterDefaults", testCreateEncounterDefaults},
		{"ListEncountersOldestFirst", testListEncounters},
		{"GetEncounterNotFound", testGetEncounterNotFound},
		{"UpdateEncounterPartial", testUpdateEncounterPartial},
		{"UpdateEncounterNotFound", testUpdateEncounterNotFound},
		{"SecondLiveEncounterConflicts", testSecondLiveConflicts},
		{"DeleteEncounterCascades", testDeleteEncounterCascades},
		{"DeleteEncounterIdempotent", testDeleteEncounterIdempotent},
		{"AddCombatantFields", testAddCombatantFields},
		{"AddCombatantUnknownEncounter", testAddCombatantUnknownEncounter},
		{"CombatantsInInsertionOrder", testCombatantsInsertionOrder},
		{"UpdateCombatantPartial", testUpdateCombatantPartial},
		{"UpdateCombatantNotFound", testUpdateCombatantNotFound},
		{"ApplyDamageDeltaClamps", testApplyDamageDeltaClamps},
		{"ApplyDamageDeltaConcurrent", testApplyDamageDeltaConcurrent},
		{"RemoveCombatantIdempotent", testRemoveCombatantIdempotent},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func addGoblin(t *testing.T, s tracker.Store, encounterID string) *combat.Combatant {
	t.Helper()
	c, err := s.AddCombatant(context.Background(), encounterID, combat.NewCombatant{
		Name:           "Goblin",
		InitiativeRoll: combat.Int(12),
		ArmorClass:     combat.Int(13),
		MaxHP:          combat.Int(7),
	})
	require.NoError(t, err)
	return c
}

func testCreateEncounterDefaults(t *testing.T, s tracker.Store) {
	enc, err := s.CreateEncounter(context.Background(), "Goblin Ambush")
	require.NoError(t, err)
	assert.NotEmpty(t, enc.ID)
	assert.Equal(t, "Goblin Ambush", enc.Name)
	assert.Equal(t, combat.PhaseSetup, enc.Phase)
	assert.Equal(t, 1, enc.Round)
	assert.Equal(t, 0, enc.TurnIndex)
	assert.True(t, enc.IsActive)
	assert.Nil(t, enc.Outcome)
	assert.Empty(t, enc.Combatants)
	assert.False(t, enc.CreatedAt.IsZero())
}

func testListEncounters(t *testing.T, s tracker.Store) {
	ctx := context.Background()
	a, err := s.CreateEncounter(ctx, "First")
	require.NoError(t, err)
	b, err := s.CreateEncounter(ctx, "Second")
	require.NoError(t, err)
	addGoblin(t, s, b.ID)

	encs, err := s.ListEncounters(ctx)
	require.NoError(t, err)
	require.Len(t, encs, 2)
	assert.Equal(t, a.ID, encs[0].ID)
	assert.Equal(t, b.ID, encs[1].ID)
	assert.Len(t, encs[1].Combatants, 1, "list includes combatants")
}

func testGetEncounterNotFound(t *testing.T, s tracker.Store) {
	_, err := s.GetEncounter(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, combat.ErrNotFound)
}

func testUpdateEncounterPartial(t *testing.T, s tracker.Store) {
	ctx := context.Background()
	enc, err := s.CreateEncounter(ctx, "Crypt")
	require.NoError(t, err)

	phase := combat.PhaseActive
	updated, err := s.UpdateEncounter(ctx, enc.ID, combat.EncounterPatch{Phase: &phase, Round: combat.Int(3), TurnIndex: combat.Int(1)})
	require.NoError(t, err)
	assert.Equal(t, combat.PhaseActive, updated.Phase)
	assert.Equal(t, 3, updated.Round)
	assert.Equal(t, 1, updated.TurnIndex)
	assert.Equal(t, "Crypt", updated.Name, "unpatched fields are unchanged")
	assert.True(t, updated.IsActive)

	ended, err := s.UpdateEncounter(ctx, enc.ID, combat.EncounterPatch{IsActive: new(bool), Outcome: combat.String("Defeat")})
	require.NoError(t, err)
	assert.False(t, ended.IsActive)
	require.NotNil(t, ended.Outcome)
	assert.Equal(t, "Defeat", *ended.Outcome)
	assert.Equal(t, 3, ended.Round)

	got, err := s.GetEncounter(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, ended.Outcome, got.Outcome)
}

func testUpdateEncounterNotFound(t *testing.T, s tracker.Store) {
	_, err := s.UpdateEncounter(context.Background(), "00000000-0000-0000-0000-000000000000", combat.EncounterPatch{Round: combat.Int(2)})
	assert.ErrorIs(t, err, combat.ErrNotFound)
}

func testSecondLiveConflicts(t *testing.T, s tracker.Store) {
	ctx := context.Background()
	a, err := s.CreateEncounter(ctx, "A")
	require.NoError(t, err)
	b, err := s.CreateEncounter(ctx, "B")
	require.NoError(t, err)

	phase := combat.PhaseActive
	_, err = s.UpdateEncounter(ctx, a.ID, combat.EncounterPatch{Phase: &phase})
	require.NoError(t, err)
	_, err = s.UpdateEncounter(ctx, b.ID, combat.EncounterPatch{Phase: &phase})
	assert.ErrorIs(t, err, combat.ErrConflict)

	_, err = s.UpdateEncounter(ctx, a.ID, combat.EncounterPatch{IsActive: new(bool)})
	require.NoError(t, err)
	_, err = s.UpdateEncounter(ctx, b.ID, combat.EncounterPatch{Phase: &phase})
	assert.NoError(t, err, "an ended encounter is no longer live")
}

func testDeleteEncounterCascades(t *testing.T, s tracker.Store) {
	ctx := context.Background()
	enc, err := s.CreateEncounter(ctx, "Doomed")
	require.NoError(t, err)
	c := addGoblin(t, s, enc.ID)

	require.NoError(t, s.DeleteEncounter(ctx, enc.ID))
	_, err = s.GetEncounter(ctx, enc.ID)
	assert.ErrorIs(t, err, combat.ErrNotFound)
	_, err = s.GetCombatant(ctx, c.ID)
	assert.ErrorIs(t, err, combat.ErrNotFound)
}

func testDeleteEncounterIdempotent(t *testing.T, s tracker.Store) {
	ctx := context.Background()
	enc, err := s.CreateEncounter(ctx, "Twice")
	require.NoError(t, err)
	require.NoError(t, s.DeleteEncounter(ctx, enc.ID))
	assert.NoError(t, s.DeleteEncounter(ctx, enc.ID))
}

func testAddCombatantFields(t *testing.T, s tracker.Store) {
	ctx := context.Background()
	enc, err := s.CreateEncounter(ctx, "Fields")
	require.NoError(t, err)

	player, err := s.AddCombatant(ctx, enc.ID, combat.NewCombatant{Name: "Ala", InitiativeRoll: combat.Int(18), IsPlayer: true})
	require.NoError(t, err)
	assert.NotEmpty(t, player.ID)
	assert.Equal(t, enc.ID, player.EncounterID)
	assert.Equal(t, 18, player.InitiativeRoll)
	assert.Nil(t, player.ArmorClass)
	assert.Nil(t, player.MaxHP)
	assert.True(t, player.IsPlayer)
	assert.True(t, player.IsActive)
	assert.Zero(t, player.DamageTaken)

	monster := addGoblin(t, s, enc.ID)
	require.NotNil(t, monster.ArmorClass)
	require.NotNil(t, monster.MaxHP)
	assert.Equal(t, 13, *monster.ArmorClass)
	assert.Equal(t, 7, *monster.MaxHP)
	assert.False(t, monster.IsPlayer)
}

func testAddCombatantUnknownEncounter(t *testing.T, s tracker.Store) {
	_, err := s.AddCombatant(context.Background(), "00000000-0000-0000-0000-000000000000",
		combat.NewCombatant{Name: "Lost", InitiativeRoll: combat.Int(1)})
	assert.ErrorIs(t, err, combat.ErrNotFound)
}

func testCombatantsInsertionOrder(t *testing.T, s tracker.Store) {
	ctx := context.Background()
	enc, err := s.CreateEncounter(ctx, "Order")
	require.NoError(t, err)
	names := []string{"A", "B", "C", "D"}
	for _, n := range names {
		_, err := s.AddCombatant(ctx, enc.ID, combat.NewCombatant{Name: n, InitiativeRoll: combat.Int(10)})
		require.NoError(t, err)
	}

	cs, err := s.ListCombatants(ctx, enc.ID)
	require.NoError(t, err)
	require.Len(t, cs, len(names))
	for i, c := range cs {
		assert.Equal(t, names[i], c.Name)
	}

	got, err := s.GetEncounter(ctx, enc.ID)
	require.NoError(t, err)
	order := got.TurnOrder()
	for i, c := range order {
		assert.Equal(t, names[i], c.Name, "equal rolls keep insertion order")
	}
}

func testUpdateCombatantPartial(t *testing.T, s tracker.Store) {
	ctx := context.Background()
	enc, err := s.CreateEncounter(ctx, "Patch")
	require.NoError(t, err)
	c := addGoblin(t, s, enc.ID)

	f := false
	updated, err := s.UpdateCombatant(ctx, c.ID, combat.CombatantPatch{
		InitiativeRoll: combat.Int(3),
		DamageTaken:    combat.Int(2),
		IsActive:       &f,
		Order:          combat.Int(5),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.InitiativeRoll)
	assert.Equal(t, 2, updated.DamageTaken)
	assert.False(t, updated.IsActive)
	assert.Equal(t, 5, updated.Order)
	require.NotNil(t, updated.MaxHP)
	assert.Equal(t, 7, *updated.MaxHP, "unpatched fields are unchanged")
	assert.Equal(t, "Goblin", updated.Name)

	got, err := s.GetCombatant(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.InitiativeRoll, got.InitiativeRoll)
	assert.Equal(t, updated.IsActive, got.IsActive)
}

func testUpdateCombatantNotFound(t *testing.T, s tracker.Store) {
	_, err := s.UpdateCombatant(context.Background(), "00000000-0000-0000-0000-000000000000", combat.CombatantPatch{Order: combat.Int(1)})
	assert.ErrorIs(t, err, combat.ErrNotFound)
	_, err = s.ApplyDamageDelta(context.Background(), "00000000-0000-0000-0000-000000000000", 3)
	assert.ErrorIs(t, err, combat.ErrNotFound)
}

func testApplyDamageDeltaClamps(t *testing.T, s tracker.Store) {
	ctx := context.Background()
	enc, err := s.CreateEncounter(ctx, "Clamp")
	require.NoError(t, err)
	c := addGoblin(t, s, enc.ID)

	c, err = s.ApplyDamageDelta(ctx, c.ID, -5)
	require.NoError(t, err)
	assert.Equal(t, 0, c.DamageTaken)

	c, err = s.ApplyDamageDelta(ctx, c.ID, 25)
	require.NoError(t, err)
	assert.Equal(t, 25, c.DamageTaken, "no ceiling at max hp")

	c, err = s.ApplyDamageDelta(ctx, c.ID, -10)
	require.NoError(t, err)
	assert.Equal(t, 15, c.DamageTaken)
}

func testApplyDamageDeltaConcurrent(t *testing.T, s tracker.Store) {
	ctx := context.Background()
	enc, err := s.CreateEncounter(ctx, "Concurrent")
	require.NoError(t, err)
	c := addGoblin(t, s, enc.ID)

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ApplyDamageDelta(ctx, c.ID, 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetCombatant(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, writers, got.DamageTaken, "concurrent deltas are not lost")
}

func testRemoveCombatantIdempotent(t *testing.T, s tracker.Store) {
	ctx := context.Background()
	enc, err := s.CreateEncounter(ctx, "Remove")
	require.NoError(t, err)
	c := addGoblin(t, s, enc.ID)

	require.NoError(t, s.RemoveCombatant(ctx, c.ID))
	require.NoError(t, s.RemoveCombatant(ctx, c.ID))

	cs, err := s.ListCombatants(ctx, enc.ID)
	require.NoError(t, err)
	assert.Empty(t, cs)
}
