// Package room owns the set of live Durak rooms: creation and seating,
// routing player actions, the periodic supervisor that drives timeouts and
// bots, and handing finished games to settlement.
package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/lox/durak/internal/bot"
	"github.com/lox/durak/internal/durak"
	"github.com/lox/durak/internal/events"
	"github.com/lox/durak/internal/gameid"
	"github.com/lox/durak/internal/money"
	"github.com/lox/durak/internal/randutil"
	"github.com/lox/durak/internal/settlement"
	"github.com/lox/durak/internal/store"
)

var (
	ErrRoomNotFound        = errors.New("room: not found")
	ErrRoomFull            = errors.New("room: full")
	ErrNotWaiting          = errors.New("room: game already started")
	ErrAlreadySeated       = errors.New("room: already seated")
	ErrNotSeated           = errors.New("room: not seated")
	ErrNotCreator          = errors.New("room: only the creator can do that")
	ErrBotsDisabled        = errors.New("room: bots are disabled")
	ErrNotEnoughPlayers    = errors.New("room: not enough players")
	ErrInsufficientBalance = errors.New("room: balance does not cover the bet")
	ErrInvalidBet          = errors.New("room: invalid bet")
	ErrInvalidMaxPlayers   = errors.New("room: invalid player count")
)

// Config is read when a room is created or started
type Config struct {
	MinBet       money.Amount
	MaxBet       money.Amount
	MaxPlayers   int
	BotsEnabled  bool
	TurnTimeout  time.Duration
	DisposeGrace time.Duration
	Pacing       bot.Pacing
	Parallelism  int
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		MinBet:       money.Units(1),
		MaxBet:       money.Units(10_000),
		MaxPlayers:   durak.MaxPlayers,
		BotsEnabled:  true,
		TurnTimeout:  30 * time.Second,
		DisposeGrace: 10 * time.Second,
		Pacing:       bot.DefaultPacing,
		Parallelism:  8,
	}
}

// Settler is what a room needs from settlement
type Settler interface {
	Settle(o settlement.Outcome) (settlement.Summary, bool)
}

// Balances is what a room needs from the wallet store
type Balances interface {
	Balance(ctx context.Context, userID string) (money.Amount, error)
}

// CreateOptions describe a new room
type CreateOptions struct {
	Bet        money.Amount
	Mode       durak.Mode
	MaxPlayers int
	Creator    string
}

// Option customises a Manager
type Option func(*Manager)

// WithRand sets the source of deck shuffles. Tests pass a seeded source.
func WithRand(fn func() *rand.Rand) Option {
	return func(m *Manager) { m.newRand = fn }
}

// Manager is the concurrency-safe registry of rooms
type Manager struct {
	cfg      Config
	balances Balances
	settler  Settler
	events   events.Publisher
	clock    quartz.Clock
	logger   *log.Logger
	newRand  func() *rand.Rand

	mu     sync.RWMutex
	rooms  map[string]*Room
	botSeq atomic.Int64
}

// NewManager creates an empty room registry
func NewManager(cfg Config, balances Balances, settler Settler, pub events.Publisher, clock quartz.Clock, logger *log.Logger, opts ...Option) *Manager {
	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if pub == nil {
		pub = events.Discard
	}
	m := &Manager{
		cfg:      cfg,
		balances: balances,
		settler:  settler,
		events:   pub,
		clock:    clock,
		logger:   logger.WithPrefix("rooms"),
		newRand:  randutil.NewSecure,
		rooms:    make(map[string]*Room),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) get(roomID string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	return r, ok
}

func (m *Manager) lock(roomID string) (*Room, error) {
	r, ok := m.get(roomID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
	}
	return r, nil
}

func (m *Manager) checkBalance(ctx context.Context, userID string, bet money.Amount) error {
	bal, err := m.balances.Balance(ctx, userID)
	if err != nil {
		return fmt.Errorf("room: load balance for %s: %w", userID, err)
	}
	if bal < bet {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance, bal, bet)
	}
	return nil
}

// CreateRoom opens a waiting room with the creator seated
func (m *Manager) CreateRoom(ctx context.Context, opts CreateOptions) (string, error) {
	if opts.Creator == "" {
		return "", fmt.Errorf("%w: missing creator", ErrNotSeated)
	}
	if opts.Bet <= 0 || opts.Bet < m.cfg.MinBet || (m.cfg.MaxBet > 0 && opts.Bet > m.cfg.MaxBet) {
		return "", fmt.Errorf("%w: %s not in [%s, %s]", ErrInvalidBet, opts.Bet, m.cfg.MinBet, m.cfg.MaxBet)
	}
	if opts.MaxPlayers < durak.MinPlayers || opts.MaxPlayers > min(durak.MaxPlayers, m.cfg.MaxPlayers) {
		return "", fmt.Errorf("%w: %d", ErrInvalidMaxPlayers, opts.MaxPlayers)
	}
	if err := m.checkBalance(ctx, opts.Creator, opts.Bet); err != nil {
		return "", err
	}

	now := m.clock.Now()
	r := &Room{
		id:         gameid.Generate(),
		mode:       opts.Mode,
		bet:        opts.Bet,
		maxPlayers: opts.MaxPlayers,
		creator:    opts.Creator,
		createdAt:  now,
		seats:      []seat{{id: opts.Creator, connected: true}},
		status:     durak.Waiting,
	}

	m.mu.Lock()
	m.rooms[r.id] = r
	m.mu.Unlock()

	m.logger.Info("Room created", "room", r.id, "creator", opts.Creator, "bet", opts.Bet, "mode", opts.Mode, "maxPlayers", opts.MaxPlayers)

	r.mu.Lock()
	defer r.mu.Unlock()
	m.publishLocked(r, now)
	return r.id, nil
}

// Join seats a human in a waiting room. A room that fills up starts.
func (m *Manager) Join(ctx context.Context, roomID, userID string) error {
	r, err := m.lock(roomID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	switch {
	case r.status != durak.Waiting:
		return ErrNotWaiting
	case r.seatIndex(userID) >= 0:
		return ErrAlreadySeated
	case r.full():
		return ErrRoomFull
	}
	if err := m.checkBalance(ctx, userID, r.bet); err != nil {
		return err
	}

	r.seats = append(r.seats, seat{id: userID, connected: true})
	m.logger.Info("Player joined", "room", r.id, "user", userID, "seats", len(r.seats))

	now := m.clock.Now()
	if r.full() {
		return m.startLocked(r, now)
	}
	m.publishLocked(r, now)
	return nil
}

// AddBot seats a bot on behalf of the creator
func (m *Manager) AddBot(roomID, requester string) (string, error) {
	if !m.cfg.BotsEnabled {
		return "", ErrBotsDisabled
	}
	r, err := m.lock(roomID)
	if err != nil {
		return "", err
	}
	defer r.mu.Unlock()

	switch {
	case requester != r.creator:
		return "", ErrNotCreator
	case r.status != durak.Waiting:
		return "", ErrNotWaiting
	case r.full():
		return "", ErrRoomFull
	}

	id := fmt.Sprintf("bot-%d", m.botSeq.Add(1))
	r.seats = append(r.seats, seat{id: id, isBot: true, connected: true})
	m.logger.Info("Bot added", "room", r.id, "bot", id)

	now := m.clock.Now()
	if r.full() {
		return id, m.startLocked(r, now)
	}
	m.publishLocked(r, now)
	return id, nil
}

// Leave frees a seat in a waiting room. During play the player is only
// marked disconnected and timeouts act for them.
func (m *Manager) Leave(roomID, userID string) error {
	r, err := m.lock(roomID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	i := r.seatIndex(userID)
	if i < 0 {
		return ErrNotSeated
	}
	now := m.clock.Now()

	if r.status != durak.Waiting {
		m.setConnectedLocked(r, userID, false, now)
		return nil
	}

	r.seats = append(r.seats[:i], r.seats[i+1:]...)
	m.logger.Info("Player left", "room", r.id, "user", userID)

	humans := r.humans()
	if len(humans) == 0 {
		m.disposeLocked(r, now)
		return nil
	}
	if userID == r.creator {
		r.creator = humans[0]
	}
	m.publishLocked(r, now)
	return nil
}

// SetConnected records a transport connect or disconnect
func (m *Manager) SetConnected(roomID, userID string, connected bool) error {
	r, err := m.lock(roomID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()
	if r.seatIndex(userID) < 0 {
		return ErrNotSeated
	}
	m.setConnectedLocked(r, userID, connected, m.clock.Now())
	return nil
}

func (m *Manager) setConnectedLocked(r *Room, userID string, connected bool, now time.Time) {
	r.seats[r.seatIndex(userID)].connected = connected
	if r.game != nil {
		r.game.SetConnected(userID, connected)
	}
	m.logger.Debug("Connection changed", "room", r.id, "user", userID, "connected", connected)
	m.publishLocked(r, now)
}

// Start begins play early, before the room is full
func (m *Manager) Start(roomID, requester string) error {
	r, err := m.lock(roomID)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	switch {
	case requester != r.creator:
		return ErrNotCreator
	case r.status != durak.Waiting:
		return ErrNotWaiting
	case len(r.seats) < durak.MinPlayers:
		return ErrNotEnoughPlayers
	}
	return m.startLocked(r, m.clock.Now())
}

func (m *Manager) startLocked(r *Room, now time.Time) error {
	seats := make([]durak.Seat, len(r.seats))
	for i, s := range r.seats {
		seats[i] = durak.Seat{ID: s.id, IsBot: s.isBot}
	}
	g, err := durak.NewGame(seats, r.mode, m.newRand(), now, m.cfg.TurnTimeout)
	if err != nil {
		return fmt.Errorf("room %s: %w", r.id, err)
	}
	for _, s := range r.seats {
		g.SetConnected(s.id, s.connected)
	}
	r.game = g
	r.status = durak.Playing
	r.nextBotAt = now.Add(m.cfg.Pacing.Attack)

	m.logger.Info("Game started", "room", r.id, "players", len(seats), "trump", g.Trump(), "attacker", g.Attacker())
	m.publishLocked(r, now)
	return nil
}

// SubmitAction applies a player's move. Nothing is returned: rejections
// reach the player as a Notice event.
func (m *Manager) SubmitAction(roomID, actorID string, a durak.Action) {
	if a == nil {
		m.notice(roomID, actorID, "no action")
		return
	}
	r, err := m.lock(roomID)
	if err != nil {
		m.logger.Debug("Action for unknown room", "room", roomID, "user", actorID)
		m.notice(roomID, actorID, "room not found")
		return
	}
	defer r.mu.Unlock()

	if r.status != durak.Playing {
		m.notice(roomID, actorID, fmt.Sprintf("the game is %s", r.status))
		return
	}
	if r.game.IsBot(actorID) {
		m.notice(roomID, actorID, "bot seats are played by the server")
		return
	}

	now := m.clock.Now()
	res := r.game.Apply(actorID, a, now)
	if !res.Accepted {
		m.logger.Debug("Action rejected", "room", r.id, "user", actorID, "action", a.Kind(), "reason", res.Reason)
		m.notice(roomID, actorID, res.Reason)
		return
	}
	m.logger.Debug("Action applied", "room", r.id, "user", actorID, "action", a)
	m.afterActionLocked(r, now)
}

func (m *Manager) afterActionLocked(r *Room, now time.Time) {
	if r.game.Status() == durak.Finished {
		m.finishLocked(r, now)
		return
	}
	m.publishLocked(r, now)
}

// finishLocked records the terminal state and settles once
func (m *Manager) finishLocked(r *Room, now time.Time) {
	r.status = durak.Finished
	m.publishLocked(r, now)
	if r.settled {
		return
	}
	r.settled = true

	outcome := settlement.Outcome{
		RoomID:     r.id,
		Mode:       r.mode.String(),
		Bet:        r.bet,
		Loser:      r.game.Loser(),
		FinishedAt: now,
	}
	for _, s := range r.seats {
		outcome.Players = append(outcome.Players, settlement.Participant{ID: s.id, IsBot: s.isBot})
	}
	summary, first := m.settler.Settle(outcome)
	m.logger.Info("Game finished", "room", r.id, "loser", outcome.Loser, "tricks", r.game.Tricks())
	if first {
		m.events.Publish(events.MatchSettled{
			RoomID:     r.id,
			Loser:      summary.Loser,
			Winners:    summary.Winners,
			Prize:      summary.Prize,
			Commission: summary.Commission,
			PerWinner:  summary.PerWinner,
			At:         now,
		})
	}

	id := r.id
	m.clock.AfterFunc(m.cfg.DisposeGrace, func() { m.dispose(id) })
}

func (m *Manager) dispose(roomID string) {
	r, err := m.lock(roomID)
	if err != nil {
		return
	}
	defer r.mu.Unlock()
	m.disposeLocked(r, m.clock.Now())
}

func (m *Manager) disposeLocked(r *Room, now time.Time) {
	r.disposed = true
	m.mu.Lock()
	delete(m.rooms, r.id)
	m.mu.Unlock()
	m.logger.Info("Room disposed", "room", r.id)
	m.events.Publish(events.RoomClosed{RoomID: r.id, At: now})
}

func (m *Manager) notice(roomID, userID, msg string) {
	m.events.Publish(events.Notice{RoomID: roomID, To: userID, Message: msg, At: m.clock.Now()})
}

// publishLocked sends each human their own view plus one public view
func (m *Manager) publishLocked(r *Room, now time.Time) {
	for _, id := range r.humans() {
		m.events.Publish(r.snapshotLocked(id, now))
	}
	m.events.Publish(r.snapshotLocked("", now))
}

// Snapshot returns the room as viewer sees it
func (m *Manager) Snapshot(roomID, viewer string) (Snapshot, error) {
	r, err := m.lock(roomID)
	if err != nil {
		return Snapshot{}, err
	}
	defer r.mu.Unlock()
	return r.snapshotLocked(viewer, m.clock.Now()), nil
}

// Rooms lists public snapshots of every live room, oldest first
func (m *Manager) Rooms() []Snapshot {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	sort.Slice(rooms, func(i, j int) bool { return rooms[i].id < rooms[j].id })
	now := m.clock.Now()
	out := make([]Snapshot, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if !r.disposed {
			out = append(out, r.snapshotLocked("", now))
		}
		r.mu.Unlock()
	}
	return out
}

// Len returns the number of live rooms
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Tick drives timeouts and bots in every playing room. Rooms are processed
// concurrently; each one only under its own lock.
func (m *Manager) Tick(ctx context.Context) error {
	m.mu.RLock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}
	m.mu.RUnlock()

	now := m.clock.Now()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Parallelism)
	for _, r := range rooms {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m.tickRoom(r, now)
			return nil
		})
	}
	return g.Wait()
}

func (m *Manager) tickRoom(r *Room, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed || r.status != durak.Playing {
		return
	}
	g := r.game

	if g.HasUnmatched() && g.Deadline().IsZero() {
		g.SetDeadline(now.Add(m.cfg.TurnTimeout))
	}

	if g.CheckTerminal(now) {
		m.finishLocked(r, now)
		return
	}

	if !now.Before(g.Deadline()) {
		res := g.HandleTimeout(now)
		m.logger.Info("Turn timed out", "room", r.id, "attacker", g.Attacker(), "defender", g.Defender(), "applied", res.Kind)
		if res.Accepted {
			m.afterActionLocked(r, now)
		}
		return
	}

	if now.Before(r.nextBotAt) {
		return
	}
	seat, a, ok := bot.Due(g)
	if !ok {
		return
	}
	res := g.Apply(seat, a, now)
	r.nextBotAt = now.Add(m.cfg.Pacing.Delay(a.Kind()))
	if !res.Accepted {
		m.logger.Warn("Bot move rejected", "room", r.id, "bot", seat, "action", a, "reason", res.Reason)
		return
	}
	m.logger.Debug("Bot moved", "room", r.id, "bot", seat, "action", a)
	m.afterActionLocked(r, now)
}
