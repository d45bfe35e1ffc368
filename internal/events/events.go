// Package events is the output side of the core: engines publish an Event
// after every accepted mutation and the transport fans them out.
package events

import (
	"time"

	"github.com/lox/durak/internal/durak"
	"github.com/lox/durak/internal/money"
)

// Type identifies an event on the wire
type Type string

const (
	TypeRoomState     Type = "room_state"
	TypeNotice        Type = "notice"
	TypeMatchSettled  Type = "match_settled"
	TypeRoomClosed    Type = "room_closed"
	TypeJackpotState  Type = "jackpot_state"
	TypeJackpotResult Type = "jackpot_result"
	TypeBetAccepted   Type = "bet_accepted"
)

func (t Type) String() string { return string(t) }

// Event is anything the core reports to its environment
type Event interface {
	Type() Type
	Time() time.Time
}

// Seat is a room participant
type Seat struct {
	ID        string `json:"id"`
	IsBot     bool   `json:"is_bot"`
	Connected bool   `json:"connected"`
}

// RoomState is a full room snapshot. Viewer is the user whose hand is
// visible in Game; empty means a public snapshot with no hands.
type RoomState struct {
	RoomID     string       `json:"room_id"`
	Viewer     string       `json:"viewer,omitempty"`
	Status     durak.Status `json:"status"`
	Mode       durak.Mode   `json:"mode"`
	Bet        money.Amount `json:"bet"`
	MaxPlayers int          `json:"max_players"`
	Creator    string       `json:"creator"`
	Seats      []Seat       `json:"seats"`
	Game       *durak.View  `json:"game,omitempty"`
	At         time.Time    `json:"at"`
}

func (e RoomState) Type() Type      { return TypeRoomState }
func (e RoomState) Time() time.Time { return e.At }

// Notice is an advisory message for one user, usually a rejected action
type Notice struct {
	RoomID  string    `json:"room_id,omitempty"`
	To      string    `json:"to"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

func (e Notice) Type() Type      { return TypeNotice }
func (e Notice) Time() time.Time { return e.At }

// MatchSettled reports the money outcome of a finished room
type MatchSettled struct {
	RoomID     string       `json:"room_id"`
	Loser      string       `json:"loser,omitempty"`
	Winners    []string     `json:"winners"`
	Prize      money.Amount `json:"prize"`
	Commission money.Amount `json:"commission"`
	PerWinner  money.Amount `json:"per_winner"`
	At         time.Time    `json:"at"`
}

func (e MatchSettled) Type() Type      { return TypeMatchSettled }
func (e MatchSettled) Time() time.Time { return e.At }

// RoomClosed is published when a room is disposed
type RoomClosed struct {
	RoomID string    `json:"room_id"`
	At     time.Time `json:"at"`
}

func (e RoomClosed) Type() Type      { return TypeRoomClosed }
func (e RoomClosed) Time() time.Time { return e.At }

// JackpotState is the public view of the current jackpot round.
// ServerSeed is only set once the round has reached its result.
type JackpotState struct {
	RoundID        int64        `json:"round_id"`
	State          string       `json:"state"`
	BankRed        money.Amount `json:"bank_red"`
	BankBlack      money.Amount `json:"bank_black"`
	Bets           int          `json:"bets"`
	ServerSeedHash string       `json:"server_seed_hash"`
	ServerSeed     string       `json:"server_seed,omitempty"`
	Winner         string       `json:"winner,omitempty"`
	Draw           float64      `json:"draw,omitempty"`
	PhaseEndsAt    *time.Time   `json:"phase_ends_at,omitempty"`
	At             time.Time    `json:"at"`
}

func (e JackpotState) Type() Type      { return TypeJackpotState }
func (e JackpotState) Time() time.Time { return e.At }

// Payout is one user's winnings from a jackpot round
type Payout struct {
	UserID string       `json:"user_id"`
	Amount money.Amount `json:"amount"`
}

// JackpotResult reveals the seed and the payouts of a resolved round
type JackpotResult struct {
	RoundID        int64        `json:"round_id"`
	Winner         string       `json:"winner"`
	Draw           float64      `json:"draw"`
	ServerSeed     string       `json:"server_seed"`
	ServerSeedHash string       `json:"server_seed_hash"`
	Pool           money.Amount `json:"pool"`
	Rake           money.Amount `json:"rake"`
	Payouts        []Payout     `json:"payouts"`
	At             time.Time    `json:"at"`
}

func (e JackpotResult) Type() Type      { return TypeJackpotResult }
func (e JackpotResult) Time() time.Time { return e.At }

// BetAccepted confirms a stake to the bettor
type BetAccepted struct {
	RoundID     int64        `json:"round_id"`
	UserID      string       `json:"user_id"`
	Color       string       `json:"color"`
	Amount      money.Amount `json:"amount"`
	ClientBetID string       `json:"client_bet_id"`
	At          time.Time    `json:"at"`
}

func (e BetAccepted) Type() Type      { return TypeBetAccepted }
func (e BetAccepted) Time() time.Time { return e.At }
