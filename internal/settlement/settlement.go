// Package settlement turns a finished room into balance changes and match
// records. Each room settles exactly once; persistence happens in the
// background with bounded retries so a slow store never holds a room open.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/lox/durak/internal/money"
	"github.com/lox/durak/internal/store"
)

// Config controls the house cut and persistence retries
type Config struct {
	Commission     money.Rate
	RetryAttempts  int
	RetryBackoff   time.Duration
	PersistTimeout time.Duration
}

// DefaultConfig returns a 10% commission with five attempts
func DefaultConfig() Config {
	return Config{
		Commission:     1000,
		RetryAttempts:  5,
		RetryBackoff:   time.Second,
		PersistTimeout: 5 * time.Second,
	}
}

// Participant is a seat at the finished table
type Participant struct {
	ID    string
	IsBot bool
}

// Outcome is what a room reports when its game ends
type Outcome struct {
	RoomID     string
	Mode       string
	Bet        money.Amount
	Players    []Participant
	Loser      string // empty for a draw
	FinishedAt time.Time
}

// Summary is the computed money outcome
type Summary struct {
	RoomID       string
	Loser        string
	LoserIsHuman bool
	Winners      []string
	HumanCount   int
	Prize        money.Amount
	Commission   money.Amount
	PerWinner    money.Amount
}

// Compute applies the prize formula. Only humans are paid or charged; the
// division remainder stays with the house.
func Compute(o Outcome, commission money.Rate) Summary {
	s := Summary{RoomID: o.RoomID, Loser: o.Loser, Winners: []string{}}
	for _, p := range o.Players {
		if p.IsBot {
			continue
		}
		s.HumanCount++
		if p.ID == o.Loser {
			s.LoserIsHuman = true
			continue
		}
		s.Winners = append(s.Winners, p.ID)
	}
	if o.Loser == "" {
		// nobody pays in a draw, so nobody is paid
		s.Winners = []string{}
		return s
	}

	payers := s.HumanCount
	if s.LoserIsHuman {
		payers--
	}
	s.Prize = o.Bet * money.Amount(max(0, payers))
	distributable, cut := commission.Split(s.Prize)
	s.Commission = cut
	if n := len(s.Winners); n > 0 {
		s.PerWinner = distributable / money.Amount(n)
		s.Commission += distributable - s.PerWinner*money.Amount(n)
	} else {
		s.Commission = s.Prize
	}
	return s
}

// Stats counts persistence outcomes since start
type Stats struct {
	Settled int
	Applied int
	Retried int
	Failed  int
	Pending int
}

// Engine settles rooms against a store
type Engine struct {
	store  store.Store
	clock  quartz.Clock
	logger *log.Logger
	cfg    Config

	mu      sync.Mutex
	settled map[string]Summary
	stats   Stats
	wg      sync.WaitGroup
}

// NewEngine creates a settlement engine
func NewEngine(st store.Store, clock quartz.Clock, logger *log.Logger, cfg Config) *Engine {
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	return &Engine{
		store:   st,
		clock:   clock,
		logger:  logger.WithPrefix("settlement"),
		cfg:     cfg,
		settled: make(map[string]Summary),
	}
}

// Settle computes the summary for a finished room and starts persisting it.
// The first call for a room returns true; later calls return the same
// summary and false without touching the store.
func (e *Engine) Settle(o Outcome) (Summary, bool) {
	e.mu.Lock()
	if s, ok := e.settled[o.RoomID]; ok {
		e.mu.Unlock()
		e.logger.Debug("Ignoring repeated settlement", "room", o.RoomID)
		return s, false
	}
	s := Compute(o, e.cfg.Commission)
	e.settled[o.RoomID] = s
	e.stats.Settled++
	e.stats.Pending++
	e.mu.Unlock()

	e.logger.Info("Settling room",
		"room", o.RoomID,
		"loser", o.Loser,
		"winners", len(s.Winners),
		"prize", s.Prize,
		"commission", s.Commission,
		"perWinner", s.PerWinner)

	e.wg.Add(1)
	go e.persist(Key(o.RoomID), func(ctx context.Context) error { return e.apply(ctx, o, s) }, 1)
	return s, true
}

// Commit records a prepared settlement with the same retries as a room. The
// first attempt runs before Commit returns; later ones run on the clock.
func (e *Engine) Commit(st store.Settlement) {
	e.mu.Lock()
	e.stats.Pending++
	e.mu.Unlock()

	e.wg.Add(1)
	e.persist(st.Key, func(ctx context.Context) error { return e.store.ApplySettlement(ctx, st) }, 1)
}

// Key is the idempotency key of a room's settlement
func Key(roomID string) string { return "room:" + roomID }

func (e *Engine) persist(key string, apply func(context.Context) error, attempt int) {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.PersistTimeout)
	defer cancel()

	err := apply(ctx)
	switch {
	case err == nil:
		e.finish(func(st *Stats) { st.Applied++ })
		return
	case errors.Is(err, store.ErrAlreadyApplied):
		e.logger.Debug("Settlement already recorded", "key", key)
		e.finish(func(st *Stats) { st.Applied++ })
		return
	case attempt >= e.cfg.RetryAttempts:
		e.logger.Error("Giving up on settlement", "key", key, "attempts", attempt, "error", err)
		e.finish(func(st *Stats) { st.Failed++ })
		return
	}

	backoff := e.cfg.RetryBackoff << (attempt - 1)
	e.logger.Warn("Settlement write failed, retrying",
		"key", key, "attempt", attempt, "backoff", backoff, "error", err)
	e.clock.AfterFunc(backoff, func() { e.persist(key, apply, attempt+1) })

	e.mu.Lock()
	e.stats.Retried++
	e.mu.Unlock()
}

func (e *Engine) finish(update func(*Stats)) {
	e.mu.Lock()
	update(&e.stats)
	e.stats.Pending--
	e.mu.Unlock()
	e.wg.Done()
}

// apply reads the loser's balance and commits every change in one unit. It
// runs again on each retry so the debit reflects the current balance.
func (e *Engine) apply(ctx context.Context, o Outcome, s Summary) error {
	st := store.Settlement{
		Key: Key(o.RoomID),
		Match: &store.MatchRecord{
			RoomID:     o.RoomID,
			Mode:       o.Mode,
			Bet:        o.Bet,
			Humans:     s.HumanCount,
			Loser:      o.Loser,
			Winners:    slices.Clone(s.Winners),
			Prize:      s.Prize,
			Commission: s.Commission,
			PerWinner:  s.PerWinner,
			FinishedAt: o.FinishedAt,
		},
		Earnings: &store.EarningsRecord{
			Source:    "durak",
			Ref:       o.RoomID,
			Amount:    s.Commission,
			CreatedAt: o.FinishedAt,
		},
	}
	for _, p := range o.Players {
		st.Match.Players = append(st.Match.Players, p.ID)
	}

	if s.LoserIsHuman {
		bal, err := e.store.Balance(ctx, o.Loser)
		if err != nil {
			return fmt.Errorf("load loser balance: %w", err)
		}
		if debit := min(bal, o.Bet); debit > 0 {
			st.Changes = append(st.Changes, store.BalanceChange{UserID: o.Loser, Delta: -debit, Reason: "durak loss " + o.RoomID})
		}
	}
	if s.PerWinner > 0 {
		for _, w := range s.Winners {
			st.Changes = append(st.Changes, store.BalanceChange{UserID: w, Delta: s.PerWinner, Reason: "durak win " + o.RoomID})
		}
	}
	return e.store.ApplySettlement(ctx, st)
}

// Summary returns the recorded summary for a room
func (e *Engine) Summary(roomID string) (Summary, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.settled[roomID]
	return s, ok
}

// Stats returns a copy of the persistence counters
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// Wait blocks until in-flight persistence finishes or ctx is done. Retries
// scheduled on the clock count as in flight.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
