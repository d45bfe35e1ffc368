package jackpot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lox/durak/internal/events"
	"github.com/lox/durak/internal/money"
	"github.com/lox/durak/internal/store"
)

// Color is one of the two outcomes a stake can back
type Color string

const (
	Red   Color = "red"
	Black Color = "black"
)

// ParseColor accepts "red" or "black" in any case
func ParseColor(s string) (Color, error) {
	switch c := Color(strings.ToLower(strings.TrimSpace(s))); c {
	case Red, Black:
		return c, nil
	}
	return "", &BetError{Code: ErrInvalidColor.Code, Message: fmt.Sprintf("unknown colour %q", s)}
}

// BetError is a rejected stake. Code is stable and safe to show to clients.
type BetError struct {
	Code    string
	Message string
}

func (e *BetError) Error() string {
	if e.Message == "" {
		return "jackpot: " + e.Code
	}
	return "jackpot: " + e.Code + ": " + e.Message
}

// Is matches any BetError with the same code
func (e *BetError) Is(target error) bool {
	var t *BetError
	return errors.As(target, &t) && t.Code == e.Code
}

var (
	ErrBetsClosed        = &BetError{Code: "bets_closed"}
	ErrInvalidAmount     = &BetError{Code: "invalid_amount"}
	ErrInvalidColor      = &BetError{Code: "invalid_color"}
	ErrInsufficientFunds = &BetError{Code: "insufficient_funds"}
)

// Bet is an accepted stake
type Bet struct {
	UserID      string
	Color       Color
	Amount      money.Amount
	ClientBetID string
	PlacedAt    time.Time
}

// PlaceBet stakes amount on colour for the current round. A clientBetID that
// was already accepted in this round is ignored and returns nil.
func (e *Engine) PlaceBet(ctx context.Context, userID, colour string, amount money.Amount, clientBetID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := e.round
	if r == nil || r.state != StateOpen {
		return ErrBetsClosed
	}
	if amount <= 0 || amount < e.cfg.MinBet || (e.cfg.MaxBet > 0 && amount > e.cfg.MaxBet) {
		return &BetError{Code: ErrInvalidAmount.Code, Message: fmt.Sprintf("%s not in [%s, %s]", amount, e.cfg.MinBet, e.cfg.MaxBet)}
	}
	c, err := ParseColor(colour)
	if err != nil {
		return err
	}
	if clientBetID != "" {
		if _, dup := r.betIDs[clientBetID]; dup {
			e.logger.Debug("Duplicate bet ignored", "round", r.id, "user", userID, "clientBetId", clientBetID)
			return nil
		}
	}

	if err := e.store.Debit(ctx, userID, amount); err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			return &BetError{Code: ErrInsufficientFunds.Code, Message: fmt.Sprintf("cannot cover %s", amount)}
		}
		return fmt.Errorf("jackpot: debit %s: %w", userID, err)
	}

	now := e.clock.Now()
	r.bets = append(r.bets, Bet{UserID: userID, Color: c, Amount: amount, ClientBetID: clientBetID, PlacedAt: now})
	if clientBetID != "" {
		r.betIDs[clientBetID] = struct{}{}
	}
	if c == Red {
		r.bankRed += amount
	} else {
		r.bankBlack += amount
	}
	e.logger.Info("Bet accepted", "round", r.id, "user", userID, "color", c, "amount", amount)

	e.events.Publish(events.BetAccepted{
		RoundID:     r.id,
		UserID:      userID,
		Color:       string(c),
		Amount:      amount,
		ClientBetID: clientBetID,
		At:          now,
	})

	if !r.countdown && r.bankRed > 0 && r.bankBlack > 0 {
		r.countdown = true
		e.scheduleLocked(e.cfg.openDuration(), e.closeBetsLocked)
		e.logger.Info("Countdown started", "round", r.id, "duration", e.cfg.openDuration())
	}
	e.saveLocked()
	e.publishLocked(now)
	return nil
}
