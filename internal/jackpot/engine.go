// Package jackpot runs the two-colour betting wheel: a single global round
// that opens for stakes, locks, spins and pays out, with its outcome fixed by
// a commit-reveal server seed.
package jackpot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/durak/internal/events"
	"github.com/lox/durak/internal/money"
	"github.com/lox/durak/internal/settlement"
	"github.com/lox/durak/internal/store"
)

// State is the phase of a round
type State string

const (
	StateOpen   State = "open"
	StateLock   State = "lock"
	StateSpin   State = "spin"
	StateResult State = store.RoundResolved
)

// Config controls round timing and stake limits. Durations other than an
// in-flight countdown take effect from the next phase that starts.
type Config struct {
	RoundDuration time.Duration
	LockDuration  time.Duration
	SpinDuration  time.Duration
	ResultDelay   time.Duration
	MinBet        money.Amount
	MaxBet        money.Amount
	Rake          money.Rate
	History       int
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		RoundDuration: 30 * time.Second,
		LockDuration:  5 * time.Second,
		SpinDuration:  5 * time.Second,
		ResultDelay:   5 * time.Second,
		MinBet:        money.Units(1),
		MaxBet:        money.Units(1000),
		Rake:          500,
		History:       100,
	}
}

// Validate checks the durations and limits are usable
func (c Config) Validate() error {
	switch {
	case c.LockDuration <= 0 || c.SpinDuration <= 0 || c.ResultDelay <= 0:
		return errors.New("jackpot: phase durations must be positive")
	case c.RoundDuration <= c.LockDuration:
		return fmt.Errorf("jackpot: round duration %s must exceed lock duration %s", c.RoundDuration, c.LockDuration)
	case c.MinBet <= 0:
		return errors.New("jackpot: min bet must be positive")
	case c.MaxBet < c.MinBet:
		return fmt.Errorf("jackpot: max bet %s below min bet %s", c.MaxBet, c.MinBet)
	case c.Rake < 0 || c.Rake >= money.Whole:
		return fmt.Errorf("jackpot: rake %d bps out of range", c.Rake)
	}
	return nil
}

func (c Config) openDuration() time.Duration { return c.RoundDuration - c.LockDuration }

type round struct {
	id        int64
	state     State
	seed      string
	commit    string
	rake      money.Rate
	bets      []Bet
	betIDs    map[string]struct{}
	bankRed   money.Amount
	bankBlack money.Amount
	countdown bool
	winner    Color
	draw      float64
}

func (r *round) total() money.Amount { return r.bankRed + r.bankBlack }

// Option customises an Engine
type Option func(*Engine)

// WithSeedSource replaces crypto/rand as the source of server seeds
func WithSeedSource(r io.Reader) Option {
	return func(e *Engine) { e.seeds = r }
}

// WithCommitter sends round payouts through c, typically the shared
// settlement engine, instead of a private one
func WithCommitter(c Committer) Option {
	return func(e *Engine) { e.payouts = c }
}

// Committer records a prepared settlement, retrying on failure
type Committer interface {
	Commit(st store.Settlement)
}

// Engine is the single writer for jackpot rounds
type Engine struct {
	store          store.Store
	events         events.Publisher
	clock          quartz.Clock
	logger         *log.Logger
	seeds          io.Reader
	payouts        Committer
	persistTimeout time.Duration

	mu      sync.Mutex
	cfg     Config
	round   *round
	timer   phaseTimer
	running bool
	history map[int64]store.RoundRecord
	order   []int64
}

// NewEngine creates a stopped engine; call Start to open the first round
func NewEngine(st store.Store, pub events.Publisher, clock quartz.Clock, logger *log.Logger, cfg Config, opts ...Option) *Engine {
	if pub == nil {
		pub = events.Discard
	}
	e := &Engine{
		store:          st,
		events:         pub,
		clock:          clock,
		logger:         logger.WithPrefix("jackpot"),
		persistTimeout: 5 * time.Second,
		cfg:            cfg,
		timer:          phaseTimer{clock: clock},
		history:        make(map[int64]store.RoundRecord),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.payouts == nil {
		e.payouts = settlement.NewEngine(st, clock, logger, settlement.DefaultConfig())
	}
	return e
}

// Start resumes the newest unresolved round from the store, or opens a new
// one numbered after the last persisted round.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return errors.New("jackpot: engine already started")
	}

	rec, err := e.store.LatestUnresolvedRound(ctx)
	if err != nil {
		return fmt.Errorf("jackpot: load unresolved round: %w", err)
	}
	now := e.clock.Now()

	if rec != nil && rec.ServerSeed != "" {
		e.round = e.roundFromRecord(*rec)
		e.running = true
		e.logger.Info("Resuming round", "round", rec.ID, "state", rec.State, "bets", len(rec.Bets))
		switch e.round.state {
		case StateOpen:
			if e.round.bankRed > 0 && e.round.bankBlack > 0 {
				e.round.countdown = true
				e.scheduleLocked(e.cfg.openDuration(), e.closeBetsLocked)
			}
			e.saveLocked()
			e.publishLocked(now)
		default:
			e.resolveLocked(now)
		}
		return nil
	}
	if rec != nil {
		e.logger.Warn("Unresolved round has no seed, starting fresh", "round", rec.ID)
	}

	last, err := e.store.LastRoundID(ctx)
	if err != nil {
		return fmt.Errorf("jackpot: load last round id: %w", err)
	}
	if err := e.openRoundLocked(last+1, now); err != nil {
		return err
	}
	e.running = true
	return nil
}

// Stop cancels the pending phase timer. The current round stays persisted
// and is resumed by the next Start.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running = false
	e.timer.stop()
	e.logger.Info("Jackpot stopped")
}

// Config returns the active configuration
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// UpdateConfig swaps the configuration. A running OPEN countdown keeps its
// progress: the time left is rescaled to the new open duration.
func (e *Engine) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.cfg
	e.cfg = cfg
	r := e.round
	if r == nil || r.state != StateOpen || !r.countdown || !e.timer.active() {
		return nil
	}
	now := e.clock.Now()
	left := e.timer.remaining(now)
	scaled := time.Duration(float64(left) * float64(cfg.openDuration()) / float64(old.openDuration()))
	e.scheduleLocked(scaled, e.closeBetsLocked)
	e.logger.Info("Countdown rescaled", "round", r.id, "from", left, "to", scaled)
	e.publishLocked(now)
	return nil
}

// Snapshot returns the public state of the current round
func (e *Engine) Snapshot() events.JackpotState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked(e.clock.Now())
}

// Round returns a persisted view of a resolved round from recent history, or
// of the current round with its seed withheld.
func (e *Engine) Round(id int64) (store.RoundRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rec, ok := e.history[id]; ok {
		return rec, true
	}
	if e.round != nil && e.round.id == id {
		rec := e.recordLocked(e.clock.Now())
		if e.round.state != StateResult {
			rec.ServerSeed = ""
		}
		return rec, true
	}
	return store.RoundRecord{}, false
}

func (e *Engine) scheduleLocked(d time.Duration, step func(time.Time)) {
	e.timer.schedule(d, func(gen uint64) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if !e.running || gen != e.timer.gen {
			return
		}
		e.timer.timer = nil
		step(e.clock.Now())
	})
}

func (e *Engine) openRoundLocked(id int64, now time.Time) error {
	seed, err := NewSeed(e.seeds)
	if err != nil {
		return err
	}
	e.round = &round{
		id:     id,
		state:  StateOpen,
		seed:   seed,
		commit: Commit(seed),
		rake:   e.cfg.Rake,
		betIDs: make(map[string]struct{}),
	}
	e.logger.Info("Round opened", "round", id, "commit", e.round.commit)
	e.saveLocked()
	e.publishLocked(now)
	return nil
}

func (e *Engine) nextRoundLocked(now time.Time) {
	if err := e.openRoundLocked(e.round.id+1, now); err != nil {
		e.logger.Error("Cannot open round, retrying", "error", err, "after", e.cfg.ResultDelay)
		e.scheduleLocked(e.cfg.ResultDelay, e.nextRoundLocked)
	}
}

func (e *Engine) closeBetsLocked(now time.Time) {
	r := e.round
	r.state = StateLock
	e.logger.Info("Bets locked", "round", r.id, "red", r.bankRed, "black", r.bankBlack, "bets", len(r.bets))
	e.scheduleLocked(e.cfg.LockDuration, e.spinLocked)
	e.saveLocked()
	e.publishLocked(now)
}

func (e *Engine) spinLocked(now time.Time) {
	r := e.round
	r.state = StateSpin
	e.drawLocked()
	e.logger.Info("Spinning", "round", r.id, "winner", r.winner)
	e.scheduleLocked(e.cfg.SpinDuration, e.resolveLocked)
	e.saveLocked()
	e.publishLocked(now)
}

func (e *Engine) drawLocked() {
	r := e.round
	if r.winner != "" || r.total() == 0 {
		return
	}
	bits := DrawBits(r.seed, r.id)
	r.draw = float64(bits) / (1 << drawBits)
	r.winner = Pick(bits, r.bankRed, r.bankBlack)
}

func (e *Engine) resolveLocked(now time.Time) {
	r := e.round
	e.timer.stop()
	e.drawLocked()
	r.state = StateResult

	if r.total() == 0 {
		e.logger.Info("Round had no stakes", "round", r.id)
		e.saveLocked()
		e.rememberLocked(now)
		e.publishLocked(now)
		e.nextRoundLocked(now)
		return
	}

	pool, rake := r.rake.Split(r.total())
	var stakes []Stake
	for _, b := range r.bets {
		if b.Color == r.winner {
			stakes = append(stakes, Stake{UserID: b.UserID, Amount: b.Amount})
		}
	}
	payouts := Allocate(pool, stakes)
	e.payLocked(r, payouts, rake, now)

	e.logger.Info("Round resolved", "round", r.id, "winner", r.winner, "pool", pool, "rake", rake, "winners", len(payouts))
	e.scheduleLocked(e.cfg.ResultDelay, e.nextRoundLocked)
	e.saveLocked()
	e.rememberLocked(now)
	e.publishLocked(now)
	e.events.Publish(events.JackpotResult{
		RoundID:        r.id,
		Winner:         string(r.winner),
		Draw:           r.draw,
		ServerSeed:     r.seed,
		ServerSeedHash: r.commit,
		Pool:           pool,
		Rake:           rake,
		Payouts:        slices.Clone(payouts),
		At:             now,
	})
}

// SettlementKey is the idempotency key of a round's payouts
func SettlementKey(roundID int64) string { return "jackpot:" + strconv.FormatInt(roundID, 10) }

// payLocked credits every payout and records the rake as one settlement. The
// key makes a retry or a replay after restart harmless.
func (e *Engine) payLocked(r *round, payouts []Payout, rake money.Amount, now time.Time) {
	ref := strconv.FormatInt(r.id, 10)
	st := store.Settlement{
		Key:      SettlementKey(r.id),
		Earnings: &store.EarningsRecord{Source: "jackpot", Ref: ref, Amount: rake, CreatedAt: now},
	}
	for _, p := range payouts {
		if p.Amount > 0 {
			st.Changes = append(st.Changes, store.BalanceChange{UserID: p.UserID, Delta: p.Amount, Reason: "jackpot win " + ref})
		}
	}
	e.payouts.Commit(st)
}

func (e *Engine) saveLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), e.persistTimeout)
	defer cancel()
	if err := e.store.SaveRound(ctx, e.recordLocked(e.clock.Now())); err != nil {
		e.logger.Warn("Failed to persist round", "round", e.round.id, "state", e.round.state, "error", err)
	}
}

func (e *Engine) rememberLocked(now time.Time) {
	id := e.round.id
	if _, ok := e.history[id]; !ok {
		e.order = append(e.order, id)
	}
	e.history[id] = e.recordLocked(now)
	for limit := max(1, e.cfg.History); len(e.order) > limit; e.order = e.order[1:] {
		delete(e.history, e.order[0])
	}
}

func (e *Engine) recordLocked(now time.Time) store.RoundRecord {
	r := e.round
	rec := store.RoundRecord{
		ID:             r.id,
		State:          string(r.state),
		BankRed:        r.bankRed,
		BankBlack:      r.bankBlack,
		Rake:           r.rake,
		ServerSeedHash: r.commit,
		ServerSeed:     r.seed,
		Winner:         string(r.winner),
		Draw:           r.draw,
		UpdatedAt:      now,
	}
	for _, b := range r.bets {
		rec.Bets = append(rec.Bets, store.BetRecord{UserID: b.UserID, Color: string(b.Color), Amount: b.Amount, ClientBetID: b.ClientBetID})
	}
	return rec
}

func (e *Engine) roundFromRecord(rec store.RoundRecord) *round {
	r := &round{
		id:     rec.ID,
		state:  State(rec.State),
		seed:   rec.ServerSeed,
		commit: rec.ServerSeedHash,
		rake:   rec.Rake,
		betIDs: make(map[string]struct{}),
		winner: Color(rec.Winner),
		draw:   rec.Draw,
	}
	for _, b := range rec.Bets {
		r.bets = append(r.bets, Bet{UserID: b.UserID, Color: Color(b.Color), Amount: b.Amount, ClientBetID: b.ClientBetID})
		if b.ClientBetID != "" {
			r.betIDs[b.ClientBetID] = struct{}{}
		}
		if Color(b.Color) == Red {
			r.bankRed += b.Amount
		} else {
			r.bankBlack += b.Amount
		}
	}
	return r
}

func (e *Engine) stateLocked(now time.Time) events.JackpotState {
	r := e.round
	if r == nil {
		return events.JackpotState{At: now}
	}
	s := events.JackpotState{
		RoundID:        r.id,
		State:          string(r.state),
		BankRed:        r.bankRed,
		BankBlack:      r.bankBlack,
		Bets:           len(r.bets),
		ServerSeedHash: r.commit,
		At:             now,
	}
	if r.state == StateSpin || r.state == StateResult {
		s.Winner = string(r.winner)
		s.Draw = r.draw
	}
	if r.state == StateResult {
		s.ServerSeed = r.seed
	}
	if e.timer.active() {
		ends := e.timer.ends
		s.PhaseEndsAt = &ends
	}
	return s
}

func (e *Engine) publishLocked(now time.Time) {
	e.events.Publish(e.stateLocked(now))
}
