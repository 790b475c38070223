package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/initiative/internal/api"
	"github.com/cory-johannsen/initiative/internal/client"
	"github.com/cory-johannsen/initiative/internal/game/combat"
	"github.com/cory-johannsen/initiative/internal/storage/memory"
	"github.com/cory-johannsen/initiative/internal/tracker"
	"github.com/cory-johannsen/initiative/internal/watch"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newClient(t *testing.T) *client.Client {
	t.Helper()
	logger := zaptest.NewLogger(t)
	svc := tracker.NewService(memory.NewStore(), logger)
	srv := httptest.NewServer(api.NewRouter(svc, logger, api.Options{}))
	t.Cleanup(srv.Close)
	c, err := client.New(srv.URL, 5*time.Second)
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := client.New("ftp://example.com", time.Second)
	assert.Error(t, err)
	_, err = client.New("://nope", time.Second)
	assert.Error(t, err)
}

func TestClient_GoblinAmbush(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	live, err := c.FetchLive(ctx)
	require.NoError(t, err)
	assert.Nil(t, live)

	enc, err := c.CreateEncounter(ctx, "Goblin Ambush")
	require.NoError(t, err)
	assert.Equal(t, combat.StateSetup, enc.State())

	aria, err := c.AddCombatant(ctx, enc.ID, combat.NewCombatant{Name: "Aria", InitiativeRoll: combat.Int(18), IsPlayer: true})
	require.NoError(t, err)
	g1, err := c.AddCombatant(ctx, enc.ID, combat.NewCombatant{Name: "Goblin 1", InitiativeRoll: combat.Int(14), ArmorClass: combat.Int(15), MaxHP: combat.Int(7)})
	require.NoError(t, err)
	_, err = c.AddCombatant(ctx, enc.ID, combat.NewCombatant{Name: "Borin", InitiativeRoll: combat.Int(14), IsPlayer: true})
	require.NoError(t, err)

	enc, err = c.StartEncounter(ctx, enc.ID)
	require.NoError(t, err)
	require.Len(t, enc.Combatants, 3)
	assert.Equal(t, aria.ID, enc.CurrentTurn().ID)

	enc, err = c.AdvanceTurn(ctx, enc.ID)
	require.NoError(t, err)
	assert.Equal(t, g1.ID, enc.CurrentTurn().ID)

	hit, err := c.Damage(ctx, g1.ID, 9)
	require.NoError(t, err)
	assert.Equal(t, 9, hit.DamageTaken)
	assert.True(t, hit.IsDefeated())

	healed, err := c.Heal(ctx, g1.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, 0, healed.DamageTaken)

	delta, err := c.ApplyDelta(ctx, g1.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, delta.DamageTaken)

	live, err = c.FetchLive(ctx)
	require.NoError(t, err)
	require.NotNil(t, live)
	assert.Equal(t, enc.ID, live.ID)

	ended, err := c.EndEncounter(ctx, enc.ID, "victory")
	require.NoError(t, err)
	assert.Equal(t, combat.StateEnded, ended.State())
	require.NotNil(t, ended.Outcome)
	assert.Equal(t, "victory", *ended.Outcome)

	live, err = c.FetchLive(ctx)
	require.NoError(t, err)
	assert.Nil(t, live)
}

func TestClient_ErrorsMatchSentinels(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	_, err := c.CreateEncounter(ctx, "   ")
	assert.ErrorIs(t, err, combat.ErrValidation)

	_, err = c.GetEncounter(ctx, "missing")
	assert.ErrorIs(t, err, combat.ErrNotFound)
	assert.NotErrorIs(t, err, combat.ErrValidation)

	_, err = c.CurrentEncounter(ctx)
	assert.ErrorIs(t, err, combat.ErrNotFound)

	a, err := c.CreateEncounter(ctx, "A")
	require.NoError(t, err)
	b, err := c.CreateEncounter(ctx, "B")
	require.NoError(t, err)
	_, err = c.StartEncounter(ctx, a.ID)
	require.NoError(t, err)
	_, err = c.StartEncounter(ctx, b.ID)
	assert.ErrorIs(t, err, combat.ErrConflict)

	var rerr *client.RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusConflict, rerr.Status)
	assert.NotEmpty(t, rerr.Message)
}

func TestClient_CombatantLifecycle(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	enc, err := c.CreateEncounter(ctx, "Bridge")
	require.NoError(t, err)
	cb, err := c.AddCombatant(ctx, enc.ID, combat.NewCombatant{Name: "Troll", InitiativeRoll: combat.Int(3), MaxHP: combat.Int(84)})
	require.NoError(t, err)

	up, err := c.UpdateCombatant(ctx, cb.ID, combat.CombatantPatch{InitiativeRoll: combat.Int(21)})
	require.NoError(t, err)
	assert.Equal(t, 21, up.InitiativeRoll)

	cs, err := c.ListCombatants(ctx, enc.ID)
	require.NoError(t, err)
	require.Len(t, cs, 1)

	name := "Troll Bridge"
	renamed, err := c.UpdateEncounter(ctx, enc.ID, combat.EncounterPatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, renamed.Name)

	require.NoError(t, c.RemoveCombatant(ctx, cb.ID))
	require.NoError(t, c.RemoveCombatant(ctx, cb.ID))
	cs, err = c.ListCombatants(ctx, enc.ID)
	require.NoError(t, err)
	assert.Empty(t, cs)

	encs, err := c.ListEncounters(ctx)
	require.NoError(t, err)
	assert.Len(t, encs, 1)

	require.NoError(t, c.DeleteEncounter(ctx, enc.ID))
	require.NoError(t, c.DeleteEncounter(ctx, enc.ID))
	_, err = c.GetEncounter(ctx, enc.ID)
	assert.ErrorIs(t, err, combat.ErrNotFound)
}

func TestClient_FetchLiveDrivesPoller(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	enc, err := c.CreateEncounter(ctx, "Cellar")
	require.NoError(t, err)
	_, err = c.AddCombatant(ctx, enc.ID, combat.NewCombatant{Name: "Rat", InitiativeRoll: combat.Int(5)})
	require.NoError(t, err)
	_, err = c.StartEncounter(ctx, enc.ID)
	require.NoError(t, err)

	p := watch.NewPoller(c.FetchLive)
	require.NoError(t, p.Poll(ctx))
	view := p.View()
	require.NotNil(t, view.Encounter)
	assert.Equal(t, enc.ID, view.Encounter.ID)
	assert.Len(t, view.Encounter.Combatants, 1)
}
