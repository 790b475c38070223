package watch_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/initiative/internal/game/combat"
	"github.com/cory-johannsen/initiative/internal/storage/memory"
	"github.com/cory-johannsen/initiative/internal/tracker"
	"github.com/cory-johannsen/initiative/internal/watch"
)

func encounter(name string) *combat.Encounter {
	return &combat.Encounter{ID: name, Name: name, Phase: combat.PhaseActive, IsActive: true, Round: 1}
}

func TestPoller_SlowResponseIsDiscarded(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	fetch := func(ctx context.Context) (*combat.Encounter, error) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
			return encounter("old"), nil
		}
		return encounter("new"), nil
	}
	p := watch.NewPoller(fetch, watch.WithLogger(zaptest.NewLogger(t)))

	slow := make(chan error, 1)
	go func() { slow <- p.Poll(context.Background()) }()
	<-entered

	require.NoError(t, p.Poll(context.Background()))
	assert.Equal(t, "new", p.View().Encounter.Name)

	close(release)
	assert.ErrorIs(t, <-slow, watch.ErrSuperseded)
	assert.Equal(t, "new", p.View().Encounter.Name, "the slow response must not clobber the newer one")
	assert.Equal(t, uint64(2), p.View().Seq)
}

func TestPoller_SlowFailureAfterNewerSuccessIsDiscarded(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32

	fetch := func(ctx context.Context) (*combat.Encounter, error) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
			return nil, errors.New("timeout")
		}
		return encounter("fresh"), nil
	}
	p := watch.NewPoller(fetch)

	slow := make(chan error, 1)
	go func() { slow <- p.Poll(context.Background()) }()
	<-entered
	require.NoError(t, p.Poll(context.Background()))
	close(release)

	assert.ErrorIs(t, <-slow, watch.ErrSuperseded)
	assert.False(t, p.View().Stale())
}

func TestPoller_FailureLeavesViewAndReportsOnce(t *testing.T) {
	var fail atomic.Bool
	boom := errors.New("connection refused")
	fetch := func(ctx context.Context) (*combat.Encounter, error) {
		if fail.Load() {
			return nil, boom
		}
		return encounter("steady"), nil
	}

	var reports []int
	var mu sync.Mutex
	p := watch.NewPoller(fetch,
		watch.WithFailureThreshold(2),
		watch.OnPersistentFailure(func(err error, failures int) {
			mu.Lock()
			defer mu.Unlock()
			assert.ErrorIs(t, err, boom)
			reports = append(reports, failures)
		}),
	)
	ctx := context.Background()

	require.NoError(t, p.Poll(ctx))
	fail.Store(true)
	for i := 0; i < 4; i++ {
		assert.ErrorIs(t, p.Poll(ctx), boom)
	}
	view := p.View()
	require.NotNil(t, view.Encounter)
	assert.Equal(t, "steady", view.Encounter.Name, "failed polls leave the view unchanged")
	assert.Equal(t, 4, view.Failures)
	assert.True(t, view.Stale())
	assert.ErrorIs(t, view.LastErr, boom)
	assert.Equal(t, []int{2}, reports)

	fail.Store(false)
	require.NoError(t, p.Poll(ctx))
	assert.Zero(t, p.View().Failures)
	assert.NoError(t, p.View().LastErr)

	fail.Store(true)
	_ = p.Poll(ctx)
	_ = p.Poll(ctx)
	assert.Equal(t, []int{2, 2}, reports, "a success re-arms the report")
}

func TestPoller_NoLiveEncounter(t *testing.T) {
	svc := tracker.NewService(memory.NewStore(), zaptest.NewLogger(t))
	p := watch.NewPoller(watch.LiveFetcher(svc))

	require.NoError(t, p.Poll(context.Background()))
	view := p.View()
	assert.Nil(t, view.Encounter)
	assert.Equal(t, uint64(1), view.Seq)
}

func TestPoller_AmbiguousLiveIsAFailure(t *testing.T) {
	src := liveFunc(func(ctx context.Context) (*combat.Encounter, error) {
		return nil, &combat.ConflictError{Reason: "2 encounters are live"}
	})
	p := watch.NewPoller(watch.LiveFetcher(src))
	assert.ErrorIs(t, p.Poll(context.Background()), combat.ErrConflict)
}

type liveFunc func(ctx context.Context) (*combat.Encounter, error)

func (f liveFunc) CurrentEncounter(ctx context.Context) (*combat.Encounter, error) { return f(ctx) }

func TestPoller_ViewIsACopy(t *testing.T) {
	p := watch.NewPoller(func(ctx context.Context) (*combat.Encounter, error) {
		return encounter("original"), nil
	})
	require.NoError(t, p.Poll(context.Background()))
	p.View().Encounter.Name = "mutated"
	assert.Equal(t, "original", p.View().Encounter.Name)
}

func TestPoller_TwoObserversConverge(t *testing.T) {
	ctx := context.Background()
	svc := tracker.NewService(memory.NewStore(), zaptest.NewLogger(t))
	enc, err := svc.CreateEncounter(ctx, "Goblin Ambush")
	require.NoError(t, err)
	ala, err := svc.AddCombatant(ctx, enc.ID, combat.NewCombatant{Name: "Ala", InitiativeRoll: combat.Int(18), IsPlayer: true})
	require.NoError(t, err)
	goblin, err := svc.AddCombatant(ctx, enc.ID, combat.NewCombatant{Name: "Goblin", InitiativeRoll: combat.Int(12), MaxHP: combat.Int(7)})
	require.NoError(t, err)
	_, err = svc.StartEncounter(ctx, enc.ID)
	require.NoError(t, err)

	tracker1 := watch.NewPoller(watch.LiveFetcher(svc))
	overlay := watch.NewPoller(watch.LiveFetcher(svc))
	require.NoError(t, tracker1.Poll(ctx))
	require.NoError(t, overlay.Poll(ctx))

	// The overlay damages the goblin and the tracker advances the turn
	// without either waiting for its own poll.
	_, err = svc.Damage(ctx, goblin.ID, 3)
	require.NoError(t, err)
	_, err = svc.AdvanceTurn(ctx, enc.ID)
	require.NoError(t, err)
	require.NoError(t, svc.RemoveCombatant(ctx, ala.ID))

	assert.Len(t, tracker1.View().Encounter.Combatants, 2, "stale until the next poll")

	require.NoError(t, tracker1.Poll(ctx))
	require.NoError(t, overlay.Poll(ctx))
	a, b := tracker1.View().Encounter, overlay.View().Encounter
	assert.Equal(t, a.Combatants, b.Combatants)
	assert.Equal(t, a.TurnIndex, b.TurnIndex)
	require.Len(t, a.Combatants, 1, "the removed combatant disappears; the view is replaced wholesale")
	assert.Equal(t, 3, a.Combatants[0].DamageTaken)
	assert.Equal(t, goblin.ID, a.CurrentTurn().ID)
}

func TestPoller_RunPollsUntilCancelled(t *testing.T) {
	var updates atomic.Int32
	var fetches atomic.Int32
	p := watch.NewPoller(
		func(ctx context.Context) (*combat.Encounter, error) {
			fetches.Add(1)
			return encounter("tick"), nil
		},
		watch.WithInterval(5*time.Millisecond),
		watch.OnUpdate(func(s watch.Snapshot) { updates.Add(1) }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for updates.Load() < 3 {
		select {
		case <-deadline:
			t.Fatal("poller did not tick")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	n := fetches.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, fetches.Load(), "no polls after Run returns")
}

func TestPoller_RunJoinsSlowPolls(t *testing.T) {
	release := make(chan struct{})
	var finished atomic.Bool
	p := watch.NewPoller(
		func(ctx context.Context) (*combat.Encounter, error) {
			<-release
			finished.Store(true)
			return nil, nil
		},
		watch.WithInterval(time.Hour),
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	cancel()

	select {
	case <-done:
		t.Fatal("Run returned before its in-flight poll settled")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-done)
	assert.True(t, finished.Load())
}

func TestPoller_UpdatesDeliveredInOrder(t *testing.T) {
	var n atomic.Int32
	var mu sync.Mutex
	var seen []uint64
	p := watch.NewPoller(
		func(ctx context.Context) (*combat.Encounter, error) {
			n.Add(1)
			return encounter("x"), nil
		},
		watch.OnUpdate(func(s watch.Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, s.Seq)
		}),
	)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Poll(context.Background())
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1], "applied snapshots only move forward")
	}
	assert.Equal(t, seen[len(seen)-1], p.View().Seq)
}
