package tracker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/initiative/internal/game/combat"
	"github.com/cory-johannsen/initiative/internal/storage/memory"
	"github.com/cory-johannsen/initiative/internal/tracker"
)

func newService(t *testing.T) *tracker.Service {
	t.Helper()
	return tracker.NewService(memory.NewStore(), zaptest.NewLogger(t))
}

func add(t *testing.T, svc *tracker.Service, encID, name string, init int) *combat.Combatant {
	t.Helper()
	c, err := svc.AddCombatant(context.Background(), encID, combat.NewCombatant{Name: name, InitiativeRoll: combat.Int(init)})
	require.NoError(t, err)
	return c
}

func names(cs []*combat.Combatant) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}

func TestService_GoblinAmbush(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	enc, err := svc.CreateEncounter(ctx, "Goblin Ambush")
	require.NoError(t, err)
	assert.Equal(t, combat.PhaseSetup, enc.Phase)

	_, err = svc.AddCombatant(ctx, enc.ID, combat.NewCombatant{Name: "Ala", InitiativeRoll: combat.Int(18), IsPlayer: true})
	require.NoError(t, err)
	goblin, err := svc.AddCombatant(ctx, enc.ID, combat.NewCombatant{
		Name:           "Goblin",
		InitiativeRoll: combat.Int(12),
		ArmorClass:     combat.Int(13),
		MaxHP:          combat.Int(7),
	})
	require.NoError(t, err)

	enc, err = svc.StartEncounter(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, combat.StateActive, enc.State())
	assert.Equal(t, 1, enc.Round)
	assert.Equal(t, []string{"Ala", "Goblin"}, names(enc.TurnOrder()))
	assert.Equal(t, "Ala", enc.CurrentTurn().Name)

	goblin, err = svc.Damage(ctx, goblin.ID, 7)
	require.NoError(t, err)
	hp, ok := goblin.CurrentHP()
	require.True(t, ok)
	assert.Equal(t, 0, hp)
	assert.True(t, goblin.IsDefeated())

	enc, err = svc.AdvanceTurn(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Goblin", enc.CurrentTurn().Name)
	assert.Equal(t, 1, enc.Round)

	enc, err = svc.AdvanceTurn(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, enc.Round)
	assert.Equal(t, 0, enc.TurnIndex)

	live, err := svc.CurrentEncounter(ctx)
	require.NoError(t, err)
	assert.Equal(t, enc.ID, live.ID)

	enc, err = svc.EndEncounter(ctx, enc.ID, "Victory")
	require.NoError(t, err)
	assert.False(t, enc.IsActive)
	require.NotNil(t, enc.Outcome)
	assert.Equal(t, "Victory", *enc.Outcome)
	assert.Equal(t, combat.StateEnded, enc.State())

	_, err = svc.CurrentEncounter(ctx)
	assert.ErrorIs(t, err, combat.ErrNotFound)
}

func TestService_CreateEncounterValidation(t *testing.T) {
	svc := newService(t)
	_, err := svc.CreateEncounter(context.Background(), "   ")
	require.Error(t, err)
	assert.ErrorIs(t, err, combat.ErrValidation)

	enc, err := svc.CreateEncounter(context.Background(), "  Bridge Trolls ")
	require.NoError(t, err)
	assert.Equal(t, "Bridge Trolls", enc.Name)
}

func TestService_AddCombatantValidation(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	enc, err := svc.CreateEncounter(ctx, "Checks")
	require.NoError(t, err)

	_, err = svc.AddCombatant(ctx, enc.ID, combat.NewCombatant{Name: "", InitiativeRoll: combat.Int(3)})
	assert.ErrorIs(t, err, combat.ErrValidation)

	_, err = svc.AddCombatant(ctx, enc.ID, combat.NewCombatant{Name: "NoRoll"})
	assert.ErrorIs(t, err, combat.ErrValidation)

	_, err = svc.AddCombatant(ctx, "00000000-0000-0000-0000-000000000000", combat.NewCombatant{Name: "Lost", InitiativeRoll: combat.Int(3)})
	assert.ErrorIs(t, err, combat.ErrNotFound)

	cs, err := svc.ListCombatants(ctx, enc.ID)
	require.NoError(t, err)
	assert.Empty(t, cs)
}

func TestService_StartConflictsWithLiveEncounter(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	first, err := svc.CreateEncounter(ctx, "First")
	require.NoError(t, err)
	second, err := svc.CreateEncounter(ctx, "Second")
	require.NoError(t, err)

	_, err = svc.StartEncounter(ctx, first.ID)
	require.NoError(t, err)

	_, err = svc.StartEncounter(ctx, second.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, combat.ErrConflict)

	// Restarting the live one is a no-op.
	again, err := svc.StartEncounter(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Round)

	_, err = svc.EndEncounter(ctx, first.ID, "")
	require.NoError(t, err)
	started, err := svc.StartEncounter(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, started.IsLive())
}

func TestService_StartPreservesProgress(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	enc, err := svc.CreateEncounter(ctx, "Resume")
	require.NoError(t, err)
	add(t, svc, enc.ID, "A", 10)
	add(t, svc, enc.ID, "B", 5)

	_, err = svc.StartEncounter(ctx, enc.ID)
	require.NoError(t, err)
	_, err = svc.AdvanceTurn(ctx, enc.ID)
	require.NoError(t, err)

	again, err := svc.StartEncounter(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.TurnIndex)
}

func TestService_CurrentEncounter(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)

	_, err := svc.CurrentEncounter(ctx)
	var nf *combat.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "live encounter", nf.Kind)

	setup, err := svc.CreateEncounter(ctx, "Waiting")
	require.NoError(t, err)
	_, err = svc.CurrentEncounter(ctx)
	assert.ErrorIs(t, err, combat.ErrNotFound, "setup encounters are not live")

	_, err = svc.StartEncounter(ctx, setup.ID)
	require.NoError(t, err)
	live, err := svc.CurrentEncounter(ctx)
	require.NoError(t, err)
	assert.Equal(t, setup.ID, live.ID)
}

// multiLive is a Store that lets two encounters be live at once, as a corrupted
// database could.
type multiLive struct {
	tracker.Store
}

func (m multiLive) ListEncounters(ctx context.Context) ([]*combat.Encounter, error) {
	return []*combat.Encounter{
		{ID: "a", Phase: combat.PhaseActive, IsActive: true, Round: 1},
		{ID: "b", Phase: combat.PhaseActive, IsActive: true, Round: 3},
	}, nil
}

func TestService_CurrentEncounterAmbiguous(t *testing.T) {
	svc := tracker.NewService(multiLive{Store: memory.NewStore()}, zaptest.NewLogger(t))
	_, err := svc.CurrentEncounter(context.Background())
	assert.ErrorIs(t, err, combat.ErrConflict)
}

func TestService_AdvanceBeforeStart(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	enc, err := svc.CreateEncounter(ctx, "Early")
	require.NoError(t, err)
	add(t, svc, enc.ID, "A", 1)

	_, err = svc.AdvanceTurn(ctx, enc.ID)
	assert.ErrorIs(t, err, combat.ErrValidation)
}

func TestService_AdvanceEmptyOrderNoOp(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	enc, err := svc.CreateEncounter(ctx, "Empty")
	require.NoError(t, err)
	_, err = svc.StartEncounter(ctx, enc.ID)
	require.NoError(t, err)

	got, err := svc.AdvanceTurn(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Round)
	assert.Equal(t, 0, got.TurnIndex)
	assert.Nil(t, got.CurrentTurn())
}

func TestService_AdvanceSkipsInactiveAndClampsAfterRemoval(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	enc, err := svc.CreateEncounter(ctx, "Shrinking")
	require.NoError(t, err)
	a := add(t, svc, enc.ID, "A", 20)
	b := add(t, svc, enc.ID, "B", 15)
	c := add(t, svc, enc.ID, "C", 10)

	_, err = svc.StartEncounter(ctx, enc.ID)
	require.NoError(t, err)

	inactive := false
	_, err = svc.UpdateCombatant(ctx, b.ID, combat.CombatantPatch{IsActive: &inactive})
	require.NoError(t, err)

	got, err := svc.AdvanceTurn(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.CurrentTurn().ID)

	require.NoError(t, svc.RemoveCombatant(ctx, c.ID))
	got, err = svc.GetEncounter(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.CurrentTurn().ID, "stale index clamps to the last entry")
}

func TestService_AdvanceFullCycleIncrementsRound(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		svc := tracker.NewService(memory.NewStore(), zaptest.NewLogger(t))
		enc, err := svc.CreateEncounter(ctx, "Cycle")
		require.NoError(rt, err)
		n := rapid.IntRange(1, 6).Draw(rt, "n")
		for i := 0; i < n; i++ {
			roll := rapid.IntRange(-5, 30).Draw(rt, "roll")
			_, err := svc.AddCombatant(ctx, enc.ID, combat.NewCombatant{Name: "c", InitiativeRoll: combat.Int(roll)})
			require.NoError(rt, err)
		}
		enc, err = svc.StartEncounter(ctx, enc.ID)
		require.NoError(rt, err)
		before := enc.CurrentTurn().ID
		for i := 0; i < n; i++ {
			enc, err = svc.AdvanceTurn(ctx, enc.ID)
			require.NoError(rt, err)
		}
		assert.Equal(rt, 2, enc.Round)
		assert.Equal(rt, before, enc.CurrentTurn().ID)
	})
}

func TestService_DamageAndHeal(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	enc, err := svc.CreateEncounter(ctx, "Hits")
	require.NoError(t, err)
	ogre, err := svc.AddCombatant(ctx, enc.ID, combat.NewCombatant{Name: "Ogre", InitiativeRoll: combat.Int(8), MaxHP: combat.Int(20)})
	require.NoError(t, err)

	got, err := svc.Heal(ctx, ogre.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, got.DamageTaken)

	got, err = svc.Damage(ctx, ogre.ID, 25)
	require.NoError(t, err)
	assert.Equal(t, 25, got.DamageTaken)
	hp, _ := got.CurrentHP()
	assert.Equal(t, 0, hp)

	got, err = svc.Heal(ctx, ogre.ID, 10)
	require.NoError(t, err)
	assert.Equal(t, 15, got.DamageTaken)
	hp, _ = got.CurrentHP()
	assert.Equal(t, 5, hp)

	_, err = svc.Damage(ctx, ogre.ID, 0)
	assert.ErrorIs(t, err, combat.ErrValidation)
	_, err = svc.Heal(ctx, ogre.ID, -3)
	assert.ErrorIs(t, err, combat.ErrValidation)
}

func TestService_DamageMissingCombatant(t *testing.T) {
	svc := newService(t)
	_, err := svc.Damage(context.Background(), "00000000-0000-0000-0000-000000000000", 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, combat.ErrValidation)
	assert.ErrorIs(t, err, combat.ErrNotFound)

	var ve *combat.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "combatantId", ve.Field)
}

func TestService_RemovalsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	enc, err := svc.CreateEncounter(ctx, "Twice")
	require.NoError(t, err)
	c := add(t, svc, enc.ID, "A", 1)

	require.NoError(t, svc.RemoveCombatant(ctx, c.ID))
	require.NoError(t, svc.RemoveCombatant(ctx, c.ID))

	require.NoError(t, svc.DeleteEncounter(ctx, enc.ID))
	require.NoError(t, svc.DeleteEncounter(ctx, enc.ID))

	_, err = svc.GetEncounter(ctx, enc.ID)
	assert.ErrorIs(t, err, combat.ErrNotFound)
}

func TestService_UpdateCombatant(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	enc, err := svc.CreateEncounter(ctx, "Edits")
	require.NoError(t, err)
	a := add(t, svc, enc.ID, "A", 10)
	b := add(t, svc, enc.ID, "B", 5)

	_, err = svc.UpdateCombatant(ctx, b.ID, combat.CombatantPatch{InitiativeRoll: combat.Int(25)})
	require.NoError(t, err)

	got, err := svc.GetEncounter(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID, a.ID}, got.TurnOrderIDs())

	same, err := svc.UpdateCombatant(ctx, a.ID, combat.CombatantPatch{})
	require.NoError(t, err)
	assert.Equal(t, 10, same.InitiativeRoll)

	_, err = svc.UpdateCombatant(ctx, a.ID, combat.CombatantPatch{DamageTaken: combat.Int(-1)})
	assert.ErrorIs(t, err, combat.ErrValidation)

	_, err = svc.UpdateCombatant(ctx, "00000000-0000-0000-0000-000000000000", combat.CombatantPatch{InitiativeRoll: combat.Int(1)})
	assert.ErrorIs(t, err, combat.ErrNotFound)
}

func TestService_EndedEncounterStaysEnded(t *testing.T) {
	ctx := context.Background()
	svc := newService(t)
	enc, err := svc.CreateEncounter(ctx, "Over")
	require.NoError(t, err)
	c := add(t, svc, enc.ID, "A", 3)
	_, err = svc.StartEncounter(ctx, enc.ID)
	require.NoError(t, err)
	_, err = svc.EndEncounter(ctx, enc.ID, "  ")
	require.NoError(t, err)

	_, err = svc.Damage(ctx, c.ID, 2)
	require.NoError(t, err)
	_, err = svc.AdvanceTurn(ctx, enc.ID)
	require.NoError(t, err)
	renamed := "Over (edited)"
	_, err = svc.UpdateEncounter(ctx, enc.ID, combat.EncounterPatch{Name: &renamed})
	require.NoError(t, err)

	got, err := svc.GetEncounter(ctx, enc.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Nil(t, got.Outcome, "blank outcome is not recorded")
	assert.Equal(t, combat.StateEnded, got.State())
}
