package jackpot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"math/rand/v2"
	"testing"

	"github.com/lox/durak/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSeed(t *testing.T) {
	seed, err := NewSeed(bytes.NewReader(bytes.Repeat([]byte{0xab}, SeedSize)))
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(bytes.Repeat([]byte{0xab}, SeedSize)), seed)

	_, err = NewSeed(bytes.NewReader([]byte{1, 2, 3}))
	assert.Error(t, err)

	a, err := NewSeed(nil)
	require.NoError(t, err)
	b, err := NewSeed(nil)
	require.NoError(t, err)
	assert.Len(t, a, 2*SeedSize)
	assert.NotEqual(t, a, b)
}

func TestCommit(t *testing.T) {
	seed := "00ff"
	sum := sha256.Sum256([]byte(seed))
	assert.Equal(t, hex.EncodeToString(sum[:]), Commit(seed))
	assert.Len(t, Commit(seed), 64)
}

func TestDrawIsDeterministic(t *testing.T) {
	seed := hex.EncodeToString(bytes.Repeat([]byte{7}, SeedSize))
	d := Draw(seed, 42)
	assert.Equal(t, d, Draw(seed, 42))
	assert.GreaterOrEqual(t, d, 0.0)
	assert.Less(t, d, 1.0)
	assert.NotEqual(t, DrawBits(seed, 42), DrawBits(seed, 43), "round id is part of the message")
	assert.Less(t, DrawBits(seed, 42), uint64(1)<<drawBits)
}

func TestPickBoundaries(t *testing.T) {
	half := uint64(1) << (drawBits - 1)
	tests := []struct {
		name       string
		draw       uint64
		red, black money.Amount
		want       Color
	}{
		{"zero draw favours red", 0, 1, 1_000_000, Red},
		{"empty red never wins", 0, 0, 5, Black},
		{"empty black always loses", 1<<drawBits - 1, 5, 0, Red},
		{"just below half", half - 1, 100, 100, Red},
		{"exactly half", half, 100, 100, Black},
		{"no stakes", 0, 0, 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Pick(tt.draw, tt.red, tt.black))
		})
	}
}

func TestPickMatchesExactComparison(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	scale := new(big.Int).Lsh(big.NewInt(1), drawBits)
	for range 5000 {
		draw := rng.Uint64N(1 << drawBits)
		red := money.Amount(rng.Int64N(1 << 40))
		black := money.Amount(rng.Int64N(1 << 40))
		if red+black == 0 {
			continue
		}
		lhs := new(big.Int).Mul(new(big.Int).SetUint64(draw), big.NewInt(int64(red+black)))
		rhs := new(big.Int).Mul(big.NewInt(int64(red)), scale)
		want := Black
		if lhs.Cmp(rhs) < 0 {
			want = Red
		}
		require.Equal(t, want, Pick(draw, red, black), "draw=%d red=%d black=%d", draw, red, black)
	}
}

func TestVerify(t *testing.T) {
	seed := hex.EncodeToString(bytes.Repeat([]byte{3}, SeedSize))
	commit := Commit(seed)

	v, err := Verify(seed, commit, 9, 300, 700)
	require.NoError(t, err)
	assert.Equal(t, int64(9), v.RoundID)
	assert.Equal(t, Draw(seed, 9), v.Draw)
	assert.Equal(t, Pick(DrawBits(seed, 9), 300, 700), v.Winner)

	_, err = Verify(seed, Commit("tampered"), 9, 300, 700)
	assert.ErrorIs(t, err, ErrCommitMismatch)

	_, err = Verify(seed, commit, 9, -1, 700)
	assert.Error(t, err)
}
