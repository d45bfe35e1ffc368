package store

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/lox/durak/internal/money"
)

// MemoryStore keeps everything in process. It backs tests and single-node
// development and is the state engine behind FileStore.
type MemoryStore struct {
	mu    sync.RWMutex
	state memoryState
}

type memoryState struct {
	Balances map[string]money.Amount `json:"balances"`
	Applied  map[string]bool         `json:"applied"`
	Matches  []MatchRecord           `json:"matches"`
	Earnings []EarningsRecord        `json:"earnings"`
	Rounds   map[int64]RoundRecord   `json:"rounds"`
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

func newMemoryState() memoryState {
	return memoryState{
		Balances: make(map[string]money.Amount),
		Applied:  make(map[string]bool),
		Rounds:   make(map[int64]RoundRecord),
	}
}

// SetBalance overwrites a wallet balance
func (m *MemoryStore) SetBalance(userID string, amount money.Amount) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Balances[userID] = amount
}

// Balance returns the wallet balance, zero for unknown users
func (m *MemoryStore) Balance(_ context.Context, userID string) (money.Amount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Balances[userID], nil
}

// Credit adds amount to a wallet
func (m *MemoryStore) Credit(_ context.Context, userID string, amount money.Amount) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Balances[userID] += amount
	return nil
}

// Debit removes amount from a wallet if it is covered
func (m *MemoryStore) Debit(_ context.Context, userID string, amount money.Amount) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Balances[userID] < amount {
		return fmt.Errorf("%w: user %s", ErrInsufficientFunds, userID)
	}
	m.state.Balances[userID] -= amount
	return nil
}

// ApplySettlement validates every change before touching any balance
func (m *MemoryStore) ApplySettlement(_ context.Context, s Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Applied[s.Key] {
		return ErrAlreadyApplied
	}

	next := make(map[string]money.Amount, len(s.Changes))
	for _, c := range s.Changes {
		cur, ok := next[c.UserID]
		if !ok {
			cur = m.state.Balances[c.UserID]
		}
		cur += c.Delta
		if cur < 0 {
			return fmt.Errorf("%w: user %s", ErrInsufficientFunds, c.UserID)
		}
		next[c.UserID] = cur
	}

	for userID, bal := range next {
		m.state.Balances[userID] = bal
	}
	m.state.Applied[s.Key] = true
	if s.Match != nil {
		m.state.Matches = append(m.state.Matches, *s.Match)
	}
	if s.Earnings != nil {
		m.state.Earnings = append(m.state.Earnings, *s.Earnings)
	}
	return nil
}

// SaveRound upserts a round record
func (m *MemoryStore) SaveRound(_ context.Context, r RoundRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Bets = slices.Clone(r.Bets)
	m.state.Rounds[r.ID] = r
	return nil
}

// LatestUnresolvedRound returns the newest round not yet resolved
func (m *MemoryStore) LatestUnresolvedRound(_ context.Context) (*RoundRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *RoundRecord
	for _, r := range m.state.Rounds {
		if r.State == RoundResolved {
			continue
		}
		if latest == nil || r.ID > latest.ID {
			rec := r
			latest = &rec
		}
	}
	if latest != nil {
		latest.Bets = slices.Clone(latest.Bets)
	}
	return latest, nil
}

// LastRoundID returns the highest round id ever saved
func (m *MemoryStore) LastRoundID(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var last int64
	for id := range m.state.Rounds {
		last = max(last, id)
	}
	return last, nil
}

// Round returns a saved round by id
func (m *MemoryStore) Round(id int64) (RoundRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.state.Rounds[id]
	return r, ok
}

// Matches returns the persisted match records in commit order
func (m *MemoryStore) Matches() []MatchRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.state.Matches)
}

// Earnings returns the persisted earnings records in commit order
func (m *MemoryStore) Earnings() []EarningsRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.state.Earnings)
}

// Close is a no-op
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) snapshot() memoryState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := newMemoryState()
	for k, v := range m.state.Balances {
		s.Balances[k] = v
	}
	for k, v := range m.state.Applied {
		s.Applied[k] = v
	}
	s.Matches = slices.Clone(m.state.Matches)
	s.Earnings = slices.Clone(m.state.Earnings)
	ids := make([]int64, 0, len(m.state.Rounds))
	for id := range m.state.Rounds {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		r := m.state.Rounds[id]
		r.Bets = slices.Clone(r.Bets)
		s.Rounds[id] = r
	}
	return s
}

func (m *MemoryStore) restore(s memoryState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.Balances == nil {
		s.Balances = make(map[string]money.Amount)
	}
	if s.Applied == nil {
		s.Applied = make(map[string]bool)
	}
	if s.Rounds == nil {
		s.Rounds = make(map[int64]RoundRecord)
	}
	m.state = s
}
