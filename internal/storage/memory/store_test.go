package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/initiative/internal/game/combat"
	"github.com/cory-johannsen/initiative/internal/storage/memory"
	"github.com/cory-johannsen/initiative/internal/storage/storetest"
	"github.com/cory-johannsen/initiative/internal/tracker"
)

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) tracker.Store {
		return memory.NewStore()
	})
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := memory.NewStore()
	ctx := context.Background()
	enc, err := s.CreateEncounter(ctx, "Copies")
	require.NoError(t, err)
	c, err := s.AddCombatant(ctx, enc.ID, combat.NewCombatant{Name: "Ala", InitiativeRoll: combat.Int(4)})
	require.NoError(t, err)

	c.DamageTaken = 99
	got, err := s.GetEncounter(ctx, enc.ID)
	require.NoError(t, err)
	got.Combatants[0].Name = "mutated"

	again, err := s.GetCombatant(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, again.DamageTaken)
	assert.Equal(t, "Ala", again.Name)
}

func TestStore_CancelledContext(t *testing.T) {
	s := memory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.CreateEncounter(ctx, "Never")
	assert.ErrorIs(t, err, context.Canceled)
}
