package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/lox/durak/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreReload(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "durak.json")

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SetBalance("alice", 500))
	require.NoError(t, s.ApplySettlement(ctx, Settlement{
		Key:     "room:r1",
		Changes: []BalanceChange{{UserID: "alice", Delta: -500}, {UserID: "bob", Delta: 450}},
	}))
	require.NoError(t, s.SaveRound(ctx, RoundRecord{ID: 7, State: "betting", Rake: 500, ServerSeedHash: "abc", ServerSeed: "seed"}))
	require.NoError(t, s.Close())

	reopened, err := OpenFileStore(path)
	require.NoError(t, err)

	bob, err := reopened.Balance(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, money.Amount(450), bob)

	require.ErrorIs(t, reopened.ApplySettlement(ctx, Settlement{Key: "room:r1"}), ErrAlreadyApplied)

	round, err := reopened.LatestUnresolvedRound(ctx)
	require.NoError(t, err)
	require.NotNil(t, round)
	assert.Equal(t, int64(7), round.ID)
	assert.Equal(t, "seed", round.ServerSeed)
	assert.Equal(t, money.Rate(500), round.Rake)
}

func TestFileStoreRollbackOnWriteFailure(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "durak.json")

	s, err := OpenFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Credit(ctx, "alice", 100))

	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

	err = s.Credit(ctx, "alice", 50)
	require.Error(t, err)

	bal, _ := s.Balance(ctx, "alice")
	assert.Equal(t, money.Amount(100), bal)
}

func TestOpenFileStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "durak.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := OpenFileStore(path)
	assert.Error(t, err)
}
