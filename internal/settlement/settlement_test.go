package settlement

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/durak/internal/money"
	"github.com/lox/durak/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func humans(ids ...string) []Participant {
	out := make([]Participant, len(ids))
	for i, id := range ids {
		out[i] = Participant{ID: id}
	}
	return out
}

func TestCompute(t *testing.T) {
	bot := Participant{ID: "bot-1", IsBot: true}
	tests := []struct {
		name       string
		outcome    Outcome
		rate       money.Rate
		prize      money.Amount
		commission money.Amount
		perWinner  money.Amount
		winners    []string
	}{
		{
			name:       "human loser among three humans",
			outcome:    Outcome{Bet: 10000, Players: humans("a", "b", "c"), Loser: "c"},
			rate:       1000,
			prize:      20000,
			commission: 2000,
			perWinner:  9000,
			winners:    []string{"a", "b"},
		},
		{
			name:       "bot loser pays every human",
			outcome:    Outcome{Bet: 10000, Players: append(humans("a", "b"), bot), Loser: "bot-1"},
			rate:       1000,
			prize:      20000,
			commission: 2000,
			perWinner:  9000,
			winners:    []string{"a", "b"},
		},
		{
			name:    "lone human loses to bots",
			outcome: Outcome{Bet: 10000, Players: append(humans("a"), bot), Loser: "a"},
			rate:    1000,
			winners: []string{},
		},
		{
			name:    "draw moves no money",
			outcome: Outcome{Bet: 10000, Players: humans("a", "b")},
			rate:    1000,
			winners: []string{},
		},
		{
			name:       "division dust goes to the house",
			outcome:    Outcome{Bet: 101, Players: humans("a", "b", "c", "d"), Loser: "d"},
			rate:       700,
			prize:      303,
			commission: 24,
			perWinner:  93,
			winners:    []string{"a", "b", "c"},
		},
		{
			name:       "zero commission",
			outcome:    Outcome{Bet: 500, Players: humans("a", "b"), Loser: "a"},
			rate:       0,
			prize:      500,
			commission: 0,
			perWinner:  500,
			winners:    []string{"b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Compute(tt.outcome, tt.rate)
			assert.Equal(t, tt.prize, s.Prize)
			assert.Equal(t, tt.commission, s.Commission)
			assert.Equal(t, tt.perWinner, s.PerWinner)
			assert.Equal(t, tt.winners, s.Winners)
			assert.Equal(t, s.Prize, s.PerWinner*money.Amount(len(s.Winners))+s.Commission, "prize fully accounted for")
		})
	}
}

func newTestEngine(t *testing.T, st store.Store, cfg Config) (*Engine, *quartz.Mock) {
	t.Helper()
	clock := quartz.NewMock(t)
	logger := log.NewWithOptions(io.Discard, log.Options{})
	return NewEngine(st, clock, logger, cfg), clock
}

func waitIdle(t *testing.T, e *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Wait(ctx))
}

func TestSettleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	mem.SetBalance("a", 50000)
	mem.SetBalance("b", 50000)
	e, _ := newTestEngine(t, mem, DefaultConfig())

	o := Outcome{RoomID: "r1", Mode: "classic", Bet: 10000, Players: humans("a", "b"), Loser: "a", FinishedAt: time.Unix(100, 0)}

	first, ok := e.Settle(o)
	require.True(t, ok)
	second, ok := e.Settle(o)
	require.False(t, ok)
	assert.Equal(t, first, second)
	waitIdle(t, e)

	a, _ := mem.Balance(ctx, "a")
	b, _ := mem.Balance(ctx, "b")
	assert.Equal(t, money.Amount(40000), a)
	assert.Equal(t, money.Amount(59000), b)

	matches := mem.Matches()
	require.Len(t, matches, 1)
	assert.Equal(t, []string{"a", "b"}, matches[0].Players)
	assert.Equal(t, money.Amount(1000), matches[0].Commission)
	require.Len(t, mem.Earnings(), 1)
	assert.Equal(t, money.Amount(1000), mem.Earnings()[0].Amount)

	stats := e.Stats()
	assert.Equal(t, 1, stats.Settled)
	assert.Equal(t, 1, stats.Applied)
	assert.Zero(t, stats.Pending)
}

func TestSecondEngineCannotDoubleApply(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	mem.SetBalance("a", 10000)
	o := Outcome{RoomID: "r1", Bet: 10000, Players: humans("a", "b"), Loser: "a"}

	for range 2 {
		e, _ := newTestEngine(t, mem, DefaultConfig())
		e.Settle(o)
		waitIdle(t, e)
	}

	b, _ := mem.Balance(ctx, "b")
	assert.Equal(t, money.Amount(9000), b)
	assert.Len(t, mem.Matches(), 1)
}

func TestLoserDebitCappedAtBalance(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	mem.SetBalance("a", 3000)
	e, _ := newTestEngine(t, mem, DefaultConfig())

	e.Settle(Outcome{RoomID: "r1", Bet: 10000, Players: humans("a", "b"), Loser: "a"})
	waitIdle(t, e)

	a, _ := mem.Balance(ctx, "a")
	b, _ := mem.Balance(ctx, "b")
	assert.Zero(t, a)
	assert.Equal(t, money.Amount(9000), b)
}

type flakyStore struct {
	*store.MemoryStore
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyStore) ApplySettlement(ctx context.Context, s store.Settlement) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return errors.New("connection refused")
	}
	return f.MemoryStore.ApplySettlement(ctx, s)
}

func TestSettleRetriesOnClock(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	flaky := &flakyStore{MemoryStore: store.NewMemoryStore(), failures: 1}
	flaky.SetBalance("a", 10000)
	cfg := DefaultConfig()
	cfg.RetryBackoff = 2 * time.Second
	e, clock := newTestEngine(t, flaky, cfg)

	_, ok := e.Settle(Outcome{RoomID: "r1", Bet: 10000, Players: humans("a", "b"), Loser: "a"})
	require.True(t, ok)

	require.Eventually(t, func() bool { return e.Stats().Retried == 1 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, 1, e.Stats().Pending)

	clock.Advance(2 * time.Second).MustWait(ctx)
	waitIdle(t, e)

	b, _ := flaky.Balance(ctx, "b")
	assert.Equal(t, money.Amount(9000), b)
	assert.Equal(t, 1, e.Stats().Applied)
}

func TestSettleGivesUpAfterRetries(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	flaky := &flakyStore{MemoryStore: store.NewMemoryStore(), failures: 100}
	cfg := DefaultConfig()
	cfg.RetryAttempts = 2
	cfg.RetryBackoff = time.Second
	e, clock := newTestEngine(t, flaky, cfg)

	e.Settle(Outcome{RoomID: "r1", Bet: 100, Players: humans("a", "b"), Loser: "a"})
	require.Eventually(t, func() bool { return e.Stats().Retried == 1 }, 2*time.Second, time.Millisecond)

	clock.Advance(time.Second).MustWait(ctx)
	waitIdle(t, e)

	stats := e.Stats()
	assert.Equal(t, 1, stats.Failed)
	assert.Zero(t, stats.Pending)
	assert.Empty(t, flaky.Matches())

	// the room still has its summary for observers
	_, ok := e.Summary("r1")
	assert.True(t, ok)
}

func TestCommitRetriesPreparedSettlement(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	flaky := &flakyStore{MemoryStore: store.NewMemoryStore(), failures: 1}
	e, clock := newTestEngine(t, flaky, DefaultConfig())

	st := store.Settlement{
		Key:     "jackpot:1",
		Changes: []store.BalanceChange{{UserID: "a", Delta: 1900, Reason: "jackpot win 1"}},
	}
	e.Commit(st)
	stats := e.Stats()
	assert.Equal(t, 1, stats.Retried)
	assert.Equal(t, 1, stats.Pending)

	clock.Advance(time.Second).MustWait(ctx)
	waitIdle(t, e)

	a, _ := flaky.Balance(ctx, "a")
	assert.Equal(t, money.Amount(1900), a)

	// a replay of the same key is absorbed
	e.Commit(st)
	a, _ = flaky.Balance(ctx, "a")
	assert.Equal(t, money.Amount(1900), a)
	stats = e.Stats()
	assert.Equal(t, 2, stats.Applied)
	assert.Zero(t, stats.Pending)
}
