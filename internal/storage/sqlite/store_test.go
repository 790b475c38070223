package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/initiative/internal/game/combat"
	"github.com/cory-johannsen/initiative/internal/storage/sqlite"
	"github.com/cory-johannsen/initiative/internal/storage/storetest"
	"github.com/cory-johannsen/initiative/internal/tracker"
)

func openStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) tracker.Store {
		return openStore(t, filepath.Join(t.TempDir(), "tracker.db"))
	})
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := sqlite.Open("  ")
	assert.Error(t, err)
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tracker.db")

	s, err := sqlite.Open(path)
	require.NoError(t, err)
	enc, err := s.CreateEncounter(ctx, "Persisted")
	require.NoError(t, err)
	c, err := s.AddCombatant(ctx, enc.ID, combat.NewCombatant{Name: "Ala", InitiativeRoll: combat.Int(18), IsPlayer: true})
	require.NoError(t, err)
	_, err = s.ApplyDamageDelta(ctx, c.ID, 4)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened := openStore(t, path)
	got, err := reopened.GetEncounter(ctx, enc.ID)
	require.NoError(t, err)
	require.Len(t, got.Combatants, 1)
	assert.Equal(t, 4, got.Combatants[0].DamageTaken)
	assert.True(t, got.Combatants[0].IsPlayer)
	assert.NoError(t, reopened.Ping(ctx))
}

func TestStore_CheckConstraintIsValidation(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, filepath.Join(t.TempDir(), "tracker.db"))
	enc, err := s.CreateEncounter(ctx, "Checks")
	require.NoError(t, err)

	_, err = s.UpdateEncounter(ctx, enc.ID, combat.EncounterPatch{Round: combat.Int(0)})
	assert.ErrorIs(t, err, combat.ErrValidation)
}
