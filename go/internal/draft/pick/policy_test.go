package pick

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/mcdev12/draftclock/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) AvailablePlayers(ctx context.Context, draftID uuid.UUID, limit int) ([]models.Player, error) {
	args := m.Called(ctx, draftID, limit)
	players, _ := args.Get(0).([]models.Player)
	return players, args.Error(1)
}

func (m *mockEngine) SubmitSystemPick(ctx context.Context, draftID, pickID, playerID uuid.UUID) (*models.DraftPick, error) {
	args := m.Called(ctx, draftID, pickID, playerID)
	p, _ := args.Get(0).(*models.DraftPick)
	return p, args.Error(1)
}

func expiredTurn() ExpiredTurn {
	draftID := uuid.New()
	return ExpiredTurn{
		Draft: models.Draft{ID: draftID},
		Pick:  models.DraftPick{ID: uuid.New(), DraftID: draftID, TeamKey: "team-1", TotalPickNumber: 4},
	}
}

func rankedPlayers(n int) []models.Player {
	out := make([]models.Player, n)
	for i := range out {
		out[i] = models.Player{ID: uuid.New(), Rank: i + 1}
	}
	return out
}

func TestAutoPickPolicy_SubmitsSelection(t *testing.T) {
	ctx := context.Background()
	turn := expiredTurn()
	pool := rankedPlayers(3)

	engine := &mockEngine{}
	engine.On("AvailablePlayers", ctx, turn.Draft.ID, 10).Return(pool, nil)
	engine.On("SubmitSystemPick", ctx, turn.Draft.ID, turn.Pick.ID, pool[0].ID).Return(&models.DraftPick{}, nil)

	require.NoError(t, NewAutoPickPolicy(BestAvailableSelector{}, 10).OnExpire(ctx, engine, turn))
	engine.AssertExpectations(t)
}

func TestAutoPickPolicy_EmptyPool(t *testing.T) {
	ctx := context.Background()
	turn := expiredTurn()

	engine := &mockEngine{}
	engine.On("AvailablePlayers", ctx, turn.Draft.ID, 25).Return([]models.Player{}, nil)

	require.NoError(t, NewAutoPickPolicy(BestAvailableSelector{}, 0).OnExpire(ctx, engine, turn))
	engine.AssertNotCalled(t, "SubmitSystemPick", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAutoPickPolicy_LostRaceIsNotAnError(t *testing.T) {
	ctx := context.Background()
	turn := expiredTurn()
	pool := rankedPlayers(1)

	engine := &mockEngine{}
	engine.On("AvailablePlayers", ctx, turn.Draft.ID, 1).Return(pool, nil)
	engine.On("SubmitSystemPick", ctx, turn.Draft.ID, turn.Pick.ID, pool[0].ID).Return(nil, models.ErrPickAlreadyMade)

	assert.NoError(t, NewAutoPickPolicy(BestAvailableSelector{}, 1).OnExpire(ctx, engine, turn))
}

func TestAutoPickPolicy_TakenChoiceReloadsPool(t *testing.T) {
	ctx := context.Background()
	turn := expiredTurn()
	first, second := rankedPlayers(1), rankedPlayers(1)

	engine := &mockEngine{}
	engine.On("AvailablePlayers", ctx, turn.Draft.ID, 1).Return(first, nil).Once()
	engine.On("SubmitSystemPick", ctx, turn.Draft.ID, turn.Pick.ID, first[0].ID).Return(nil, models.ErrPlayerAlreadyDrafted).Once()
	engine.On("AvailablePlayers", ctx, turn.Draft.ID, 1).Return(second, nil).Once()
	engine.On("SubmitSystemPick", ctx, turn.Draft.ID, turn.Pick.ID, second[0].ID).Return(&models.DraftPick{}, nil).Once()

	require.NoError(t, NewAutoPickPolicy(BestAvailableSelector{}, 1).OnExpire(ctx, engine, turn))
	engine.AssertExpectations(t)
}

func TestAutoPickPolicy_TakenChoiceGivesUpAfterRetry(t *testing.T) {
	ctx := context.Background()
	turn := expiredTurn()
	pool := rankedPlayers(1)

	engine := &mockEngine{}
	engine.On("AvailablePlayers", ctx, turn.Draft.ID, 1).Return(pool, nil)
	engine.On("SubmitSystemPick", ctx, turn.Draft.ID, turn.Pick.ID, pool[0].ID).Return(nil, models.ErrPlayerAlreadyDrafted)

	err := NewAutoPickPolicy(BestAvailableSelector{}, 1).OnExpire(ctx, engine, turn)
	assert.ErrorIs(t, err, models.ErrPlayerAlreadyDrafted)
	engine.AssertNumberOfCalls(t, "AvailablePlayers", maxAutoPickAttempts)
}

func TestAutoPickPolicy_Failures(t *testing.T) {
	ctx := context.Background()
	turn := expiredTurn()

	engine := &mockEngine{}
	engine.On("AvailablePlayers", ctx, turn.Draft.ID, 1).Return(nil, models.ErrUpstreamUnavailable).Once()
	err := NewAutoPickPolicy(BestAvailableSelector{}, 1).OnExpire(ctx, engine, turn)
	assert.ErrorIs(t, err, models.ErrUpstreamUnavailable)

	pool := rankedPlayers(1)
	engine.On("AvailablePlayers", ctx, turn.Draft.ID, 1).Return(pool, nil)
	engine.On("SubmitSystemPick", ctx, turn.Draft.ID, turn.Pick.ID, pool[0].ID).Return(nil, errors.New("db gone"))
	err = NewAutoPickPolicy(BestAvailableSelector{}, 1).OnExpire(ctx, engine, turn)
	assert.EqualError(t, err, "auto-pick: db gone")
}

func TestRandomSelector_StaysInPool(t *testing.T) {
	pool := rankedPlayers(5)
	ids := map[uuid.UUID]bool{}
	for _, p := range pool {
		ids[p.ID] = true
	}

	sel := NewRandomSelector(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		assert.True(t, ids[sel.Select(expiredTurn(), pool).ID])
	}

	// The same seed gives the same sequence.
	a, b := NewRandomSelector(rand.NewSource(7)), NewRandomSelector(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Select(expiredTurn(), pool).ID, b.Select(expiredTurn(), pool).ID)
	}
}

func TestPolicyByName(t *testing.T) {
	for name, want := range map[string]string{
		"":                "none",
		"none":            "none",
		"autopick":        "autopick",
		"autopick-best":   "autopick",
		"autopick-random": "autopick",
	} {
		p, err := PolicyByName(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, p.Name(), name)
	}

	_, err := PolicyByName("queue")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestNoopPolicy(t *testing.T) {
	engine := &mockEngine{}
	require.NoError(t, NoopPolicy{}.OnExpire(context.Background(), engine, expiredTurn()))
	engine.AssertExpectations(t)
}
