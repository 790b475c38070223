package roster_test

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/initiative/internal/game/dice"
	"github.com/cory-johannsen/initiative/internal/game/roster"
)

// fixedRoller rolls a constant total and records each label.
type fixedRoller struct {
	total  int
	labels []string
}

func (f *fixedRoller) RollExpr(label, expr string) (dice.RollResult, error) {
	f.labels = append(f.labels, label)
	return dice.RollResult{Expression: expr, Kept: []int{f.total}}, nil
}

type failingRoller struct{}

func (failingRoller) RollExpr(string, string) (dice.RollResult, error) {
	return dice.RollResult{}, errors.New("out of dice")
}

func TestLoadFromFile_GoblinAmbush(t *testing.T) {
	r, err := roster.LoadFromFile(filepath.Join("testdata", "goblin_ambush.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "Goblin Ambush", r.Name)
	require.Len(t, r.Combatants, 4)

	roller := &fixedRoller{total: 9}
	out, err := r.Resolve(roller)
	require.NoError(t, err)
	require.Len(t, out, 6)

	names := make([]string, len(out))
	for i, c := range out {
		names[i] = c.Name
		assert.NoError(t, c.Validate())
	}
	assert.Equal(t, []string{"Aria", "Borin", "Goblin 1", "Goblin 2", "Goblin 3", "Goblin Boss"}, names)
	assert.Equal(t, []string{"Goblin 1", "Goblin 2", "Goblin 3"}, roller.labels)

	assert.True(t, out[0].IsPlayer)
	assert.Equal(t, 18, *out[0].InitiativeRoll)
	assert.Nil(t, out[0].MaxHP)
	assert.Equal(t, 9, *out[2].InitiativeRoll)
	assert.Equal(t, 15, *out[2].ArmorClass)
	assert.Equal(t, 7, *out[2].MaxHP)
	assert.False(t, out[2].IsPlayer)
	assert.Equal(t, 12, *out[5].InitiativeRoll)
}

func TestResolve_CopiesDoNotAlias(t *testing.T) {
	r, err := roster.LoadFromBytes([]byte("combatants:\n  - {name: Orc, initiative: 5, hp: 15, count: 2}\n"))
	require.NoError(t, err)
	out, err := r.Resolve(nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	*out[0].MaxHP = 1
	assert.Equal(t, 15, *out[1].MaxHP)
	*out[0].InitiativeRoll = 1
	assert.Equal(t, 5, *out[1].InitiativeRoll)
}

func TestResolve_RollError(t *testing.T) {
	r, err := roster.LoadFromBytes([]byte("combatants:\n  - {name: Kobold, roll: 1d20}\n"))
	require.NoError(t, err)
	_, err = r.Resolve(failingRoller{})
	assert.ErrorContains(t, err, "Kobold")
}

func TestResolve_WithLoggedRoller(t *testing.T) {
	r, err := roster.LoadFromBytes([]byte("combatants:\n  - {name: Wolf, roll: 2d20kh1+1, count: 4}\n"))
	require.NoError(t, err)
	out, err := r.Resolve(dice.NewLoggedRoller(dice.NewCryptoSource(), zap.NewNop()))
	require.NoError(t, err)
	require.Len(t, out, 4)
	for _, c := range out {
		assert.GreaterOrEqual(t, *c.InitiativeRoll, 2)
		assert.LessOrEqual(t, *c.InitiativeRoll, 21)
	}
}

func TestLoadFromBytes_Rejects(t *testing.T) {
	cases := map[string]string{
		"empty":        "name: nothing\n",
		"no name":      "combatants:\n  - {initiative: 3}\n",
		"no init":      "combatants:\n  - {name: A}\n",
		"both":         "combatants:\n  - {name: A, initiative: 3, roll: 1d20}\n",
		"bad roll":     "combatants:\n  - {name: A, roll: 1d}\n",
		"count":        "combatants:\n  - {name: A, initiative: 3, count: 51}\n",
		"negative hp":  "combatants:\n  - {name: A, initiative: 3, hp: -1}\n",
		"invalid yaml": "combatants: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := roster.LoadFromBytes([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := roster.LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestResolve_CountExpansion(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		count := rapid.IntRange(0, roster.MaxCount).Draw(rt, "count")
		doc := fmt.Sprintf("combatants:\n  - {name: Skeleton, initiative: 4, count: %d}\n", count)
		r, err := roster.LoadFromBytes([]byte(doc))
		require.NoError(rt, err)
		out, err := r.Resolve(nil)
		require.NoError(rt, err)

		want := count
		if want == 0 {
			want = 1
		}
		require.Len(rt, out, want)
		if want == 1 {
			assert.Equal(rt, "Skeleton", out[0].Name)
			return
		}
		for i, c := range out {
			assert.Equal(rt, fmt.Sprintf("Skeleton %d", i+1), c.Name)
		}
	})
}
