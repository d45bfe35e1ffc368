package store

import (
	"context"
	"testing"
	"time"

	"github.com/lox/durak/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCreditDebit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Credit(ctx, "alice", 1000))
	require.NoError(t, s.Debit(ctx, "alice", 400))

	bal, err := s.Balance(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, money.Amount(600), bal)

	err = s.Debit(ctx, "alice", 601)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	bal, _ = s.Balance(ctx, "alice")
	assert.Equal(t, money.Amount(600), bal)

	assert.ErrorIs(t, s.Credit(ctx, "alice", -1), ErrInvalidAmount)
	assert.ErrorIs(t, s.Debit(ctx, "alice", -1), ErrInvalidAmount)
}

func TestMemoryApplySettlementIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.SetBalance("loser", 1000)

	st := Settlement{
		Key: "room:r1",
		Changes: []BalanceChange{
			{UserID: "loser", Delta: -1000, Reason: "loss"},
			{UserID: "winner", Delta: 900, Reason: "win"},
		},
		Match:    &MatchRecord{RoomID: "r1", Mode: "podkidnoy", Bet: 1000},
		Earnings: &EarningsRecord{Source: "durak", Ref: "r1", Amount: 100, CreatedAt: time.Unix(0, 0)},
	}
	require.NoError(t, s.ApplySettlement(ctx, st))
	require.ErrorIs(t, s.ApplySettlement(ctx, st), ErrAlreadyApplied)

	loser, _ := s.Balance(ctx, "loser")
	winner, _ := s.Balance(ctx, "winner")
	assert.Equal(t, money.Amount(0), loser)
	assert.Equal(t, money.Amount(900), winner)
	assert.Len(t, s.Matches(), 1)
	assert.Len(t, s.Earnings(), 1)
}

func TestMemoryApplySettlementAllOrNone(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.SetBalance("a", 100)

	err := s.ApplySettlement(ctx, Settlement{
		Key: "room:r2",
		Changes: []BalanceChange{
			{UserID: "b", Delta: 500},
			{UserID: "a", Delta: -200},
		},
		Match: &MatchRecord{RoomID: "r2"},
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	a, _ := s.Balance(ctx, "a")
	b, _ := s.Balance(ctx, "b")
	assert.Equal(t, money.Amount(100), a)
	assert.Equal(t, money.Amount(0), b)
	assert.Empty(t, s.Matches())

	// the key was not consumed by the failed attempt
	s.SetBalance("a", 200)
	require.NoError(t, s.ApplySettlement(ctx, Settlement{
		Key:     "room:r2",
		Changes: []BalanceChange{{UserID: "a", Delta: -200}, {UserID: "b", Delta: 200}},
	}))
}

func TestMemoryRounds(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	latest, err := s.LatestUnresolvedRound(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	last, err := s.LastRoundID(ctx)
	require.NoError(t, err)
	assert.Zero(t, last)

	require.NoError(t, s.SaveRound(ctx, RoundRecord{ID: 1, State: RoundResolved}))
	require.NoError(t, s.SaveRound(ctx, RoundRecord{ID: 2, State: "betting", Bets: []BetRecord{{UserID: "u", Color: "red", Amount: 100}}}))
	require.NoError(t, s.SaveRound(ctx, RoundRecord{ID: 3, State: RoundResolved}))

	latest, err = s.LatestUnresolvedRound(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(2), latest.ID)
	assert.Len(t, latest.Bets, 1)

	// mutating the returned copy must not leak into the store
	latest.Bets[0].Amount = 1
	r, ok := s.Round(2)
	require.True(t, ok)
	assert.Equal(t, money.Amount(100), r.Bets[0].Amount)

	last, _ = s.LastRoundID(ctx)
	assert.Equal(t, int64(3), last)
}

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = Open(ctx, Options{Driver: "file"})
	assert.Error(t, err)

	_, err = Open(ctx, Options{Driver: "postgres"})
	assert.Error(t, err)

	_, err = Open(ctx, Options{Driver: "mongo"})
	assert.ErrorContains(t, err, "unknown driver")
}
