package jackpot

import (
	"math/rand/v2"
	"testing"

	"github.com/lox/durak/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocate(t *testing.T) {
	tests := []struct {
		name   string
		pool   money.Amount
		stakes []Stake
		want   []Payout
	}{
		{
			name:   "single bettor takes the pool",
			pool:   3800,
			stakes: []Stake{{"alice", 1000}},
			want:   []Payout{{UserID: "alice", Amount: 3800}},
		},
		{
			name:   "remainder goes to the earliest equal stake",
			pool:   100,
			stakes: []Stake{{"a", 5}, {"b", 5}, {"c", 5}},
			want:   []Payout{{UserID: "a", Amount: 34}, {UserID: "b", Amount: 33}, {UserID: "c", Amount: 33}},
		},
		{
			name:   "half-up overshoot is taken back from the earliest",
			pool:   101,
			stakes: []Stake{{"a", 7}, {"b", 7}},
			want:   []Payout{{UserID: "a", Amount: 50}, {UserID: "b", Amount: 51}},
		},
		{
			name:   "proportional",
			pool:   10,
			stakes: []Stake{{"a", 1}, {"b", 2}},
			want:   []Payout{{UserID: "a", Amount: 3}, {UserID: "b", Amount: 7}},
		},
		{
			name:   "stakes of one user are combined",
			pool:   40,
			stakes: []Stake{{"alice", 10}, {"bob", 20}, {"alice", 10}},
			want:   []Payout{{UserID: "alice", Amount: 20}, {UserID: "bob", Amount: 20}},
		},
		{
			name:   "larger stake is adjusted first on a tied error",
			pool:   2,
			stakes: []Stake{{"a", 1}, {"b", 3}},
			want:   []Payout{{UserID: "a", Amount: 1}, {UserID: "b", Amount: 1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Allocate(tt.pool, tt.stakes))
		})
	}
}

func TestAllocateEmpty(t *testing.T) {
	assert.Nil(t, Allocate(100, nil))
	assert.Nil(t, Allocate(0, []Stake{{"a", 10}}))
	assert.Nil(t, Allocate(100, []Stake{{"a", 0}}))
}

func TestAllocateSumsToPool(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for i := range 2000 {
		n := 1 + rng.IntN(50)
		stakes := make([]Stake, n)
		var total int64
		for j := range stakes {
			amt := 1 + rng.Int64N(1_000_000)
			stakes[j] = Stake{UserID: string(rune('a' + rng.IntN(26))), Amount: money.Amount(amt)}
			total += amt
		}
		pool := money.Amount(rng.Int64N(total + 1))
		if pool == 0 {
			continue
		}

		payouts := Allocate(pool, stakes)
		byUser := make(map[string]int64)
		for _, s := range stakes {
			byUser[s.UserID] += int64(s.Amount)
		}
		require.Len(t, payouts, len(byUser), "iteration %d", i)

		var sum money.Amount
		for _, p := range payouts {
			require.GreaterOrEqual(t, p.Amount, money.Amount(0))
			sum += p.Amount
			// within one minor unit of the exact share
			diff := int64(p.Amount)*total - byUser[p.UserID]*int64(pool)
			require.LessOrEqual(t, max(diff, -diff), total, "iteration %d user %s", i, p.UserID)
		}
		require.Equal(t, pool, sum, "iteration %d", i)
	}
}
