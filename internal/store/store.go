// Package store is the persistence collaborator for balances, settlement
// records and jackpot rounds. The engines depend only on the Store
// interface; the backing technology is chosen at startup.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lox/durak/internal/money"
)

var (
	// ErrInsufficientFunds is returned when a debit would take a balance below zero
	ErrInsufficientFunds = errors.New("store: insufficient funds")
	// ErrAlreadyApplied is returned when a settlement key has been committed before
	ErrAlreadyApplied = errors.New("store: settlement already applied")
	// ErrInvalidAmount is returned for negative credits or debits
	ErrInvalidAmount = errors.New("store: amount must not be negative")
)

// RoundResolved is the state name of a jackpot round whose payouts are final
const RoundResolved = "result"

// Store is everything the core needs from persistence
type Store interface {
	Balance(ctx context.Context, userID string) (money.Amount, error)
	Credit(ctx context.Context, userID string, amount money.Amount) error
	Debit(ctx context.Context, userID string, amount money.Amount) error

	// ApplySettlement commits every balance change and record of s as one
	// unit. A key that was applied before yields ErrAlreadyApplied and no
	// change.
	ApplySettlement(ctx context.Context, s Settlement) error

	SaveRound(ctx context.Context, r RoundRecord) error
	// LatestUnresolvedRound returns the newest round not yet in RoundResolved,
	// or nil when there is none.
	LatestUnresolvedRound(ctx context.Context) (*RoundRecord, error)
	LastRoundID(ctx context.Context) (int64, error)

	Close() error
}

// BalanceChange is a signed delta applied to one wallet
type BalanceChange struct {
	UserID string       `json:"user_id"`
	Delta  money.Amount `json:"delta"`
	Reason string       `json:"reason,omitempty"`
}

// MatchRecord describes one settled Durak room
type MatchRecord struct {
	RoomID     string       `json:"room_id"`
	Mode       string       `json:"mode"`
	Bet        money.Amount `json:"bet"`
	Players    []string     `json:"players"`
	Humans     int          `json:"humans"`
	Loser      string       `json:"loser,omitempty"`
	Winners    []string     `json:"winners"`
	Prize      money.Amount `json:"prize"`
	Commission money.Amount `json:"commission"`
	PerWinner  money.Amount `json:"per_winner"`
	FinishedAt time.Time    `json:"finished_at"`
}

// EarningsRecord is the operator's cut from one room or round
type EarningsRecord struct {
	Source    string       `json:"source"`
	Ref       string       `json:"ref"`
	Amount    money.Amount `json:"amount"`
	CreatedAt time.Time    `json:"created_at"`
}

// Settlement groups the writes that must land together
type Settlement struct {
	Key      string          `json:"key"`
	Changes  []BalanceChange `json:"changes"`
	Match    *MatchRecord    `json:"match,omitempty"`
	Earnings *EarningsRecord `json:"earnings,omitempty"`
}

// BetRecord is a stake as persisted with its round
type BetRecord struct {
	UserID      string       `json:"user_id"`
	Color       string       `json:"color"`
	Amount      money.Amount `json:"amount"`
	ClientBetID string       `json:"client_bet_id"`
}

// RoundRecord is the persisted view of a jackpot round. ServerSeed is kept
// so a restarted process can finish an in-flight round; public views must
// only show it once State is RoundResolved.
type RoundRecord struct {
	ID             int64        `json:"id"`
	State          string       `json:"state"`
	BankRed        money.Amount `json:"bank_red"`
	BankBlack      money.Amount `json:"bank_black"`
	Rake           money.Rate   `json:"rake"`
	Bets           []BetRecord  `json:"bets"`
	ServerSeedHash string       `json:"server_seed_hash"`
	ServerSeed     string       `json:"server_seed"`
	Winner         string       `json:"winner,omitempty"`
	Draw           float64      `json:"draw,omitempty"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Options selects and configures a backend
type Options struct {
	Driver string // memory, file or postgres
	Path   string
	DSN    string
}

// Open constructs the backend named by opts.Driver
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "file":
		return OpenFileStore(opts.Path)
	case "postgres":
		return OpenPostgres(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("store: unknown driver %q", opts.Driver)
	}
}
