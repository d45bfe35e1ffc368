package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/lox/durak/internal/fileutil"
	"github.com/lox/durak/internal/money"
)

// FileStore persists a MemoryStore snapshot to one JSON file after every
// mutation. A failed write rolls the in-memory state back so callers see
// all-or-none behaviour.
type FileStore struct {
	mu   sync.Mutex
	path string
	mem  *MemoryStore
}

// OpenFileStore loads path if it exists, otherwise starts empty
func OpenFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store: file driver requires a path")
	}
	mem := NewMemoryStore()
	var state memoryState
	found, err := fileutil.ReadJSON(path, &state)
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", path, err)
	}
	if found {
		mem.restore(state)
	}
	return &FileStore{path: path, mem: mem}, nil
}

func (f *FileStore) mutate(fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	before := f.mem.snapshot()
	if err := fn(); err != nil {
		return err
	}
	if err := fileutil.WriteJSONAtomic(f.path, f.mem.snapshot(), 0o600); err != nil {
		f.mem.restore(before)
		return fmt.Errorf("store: persist %s: %w", f.path, err)
	}
	return nil
}

// SetBalance overwrites a wallet balance
func (f *FileStore) SetBalance(userID string, amount money.Amount) error {
	return f.mutate(func() error {
		f.mem.SetBalance(userID, amount)
		return nil
	})
}

func (f *FileStore) Balance(ctx context.Context, userID string) (money.Amount, error) {
	return f.mem.Balance(ctx, userID)
}

func (f *FileStore) Credit(ctx context.Context, userID string, amount money.Amount) error {
	return f.mutate(func() error { return f.mem.Credit(ctx, userID, amount) })
}

func (f *FileStore) Debit(ctx context.Context, userID string, amount money.Amount) error {
	return f.mutate(func() error { return f.mem.Debit(ctx, userID, amount) })
}

func (f *FileStore) ApplySettlement(ctx context.Context, s Settlement) error {
	return f.mutate(func() error { return f.mem.ApplySettlement(ctx, s) })
}

func (f *FileStore) SaveRound(ctx context.Context, r RoundRecord) error {
	return f.mutate(func() error { return f.mem.SaveRound(ctx, r) })
}

func (f *FileStore) LatestUnresolvedRound(ctx context.Context) (*RoundRecord, error) {
	return f.mem.LatestUnresolvedRound(ctx)
}

func (f *FileStore) LastRoundID(ctx context.Context) (int64, error) {
	return f.mem.LastRoundID(ctx)
}

// Close is a no-op; every mutation is already on disk
func (f *FileStore) Close() error { return nil }
