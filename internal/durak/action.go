package durak

import (
	"fmt"
	"strings"

	"github.com/lox/durak/internal/deck"
)

// ActionKind names one move in the action vocabulary
type ActionKind string

const (
	KindAttack    ActionKind = "attack"
	KindDefend    ActionKind = "defend"
	KindTransfer  ActionKind = "transfer"
	KindPass      ActionKind = "pass"
	KindTake      ActionKind = "take"
	KindSurrender ActionKind = "surrender"
)

// NeedsCard reports whether actions of this kind carry a card
func (k ActionKind) NeedsCard() bool {
	switch k {
	case KindAttack, KindDefend, KindTransfer:
		return true
	default:
		return false
	}
}

// Action is one of Attack, Defend, Transfer, Pass, Take or Surrender.
// The set is closed: only this package can add variants.
type Action interface {
	Kind() ActionKind
	isAction()
}

// Attack leads or throws in a card
type Attack struct{ Card deck.Card }

// Defend covers the oldest unmatched attack
type Defend struct{ Card deck.Card }

// Transfer redirects the trick to the next player with a same-rank card
type Transfer struct{ Card deck.Card }

// Pass declares every attack beaten and ends the trick
type Pass struct{}

// Take picks up the whole table
type Take struct{}

// Surrender concedes the game
type Surrender struct{}

func (Attack) Kind() ActionKind    { return KindAttack }
func (Defend) Kind() ActionKind    { return KindDefend }
func (Transfer) Kind() ActionKind  { return KindTransfer }
func (Pass) Kind() ActionKind      { return KindPass }
func (Take) Kind() ActionKind      { return KindTake }
func (Surrender) Kind() ActionKind { return KindSurrender }

func (Attack) isAction()    {}
func (Defend) isAction()    {}
func (Transfer) isAction()  {}
func (Pass) isAction()      {}
func (Take) isAction()      {}
func (Surrender) isAction() {}

func (a Attack) String() string   { return "attack " + a.Card.String() }
func (a Defend) String() string   { return "defend " + a.Card.String() }
func (a Transfer) String() string { return "transfer " + a.Card.String() }
func (Pass) String() string       { return "pass" }
func (Take) String() string       { return "take" }
func (Surrender) String() string  { return "surrender" }

// CardOf returns the card an action carries
func CardOf(a Action) (deck.Card, bool) {
	switch v := a.(type) {
	case Attack:
		return v.Card, true
	case Defend:
		return v.Card, true
	case Transfer:
		return v.Card, true
	default:
		return deck.Card{}, false
	}
}

// ParseAction builds an Action from wire fields. Unknown kinds, a missing
// card on card actions and a card on card-less actions are all rejected.
func ParseAction(kind, card string) (Action, error) {
	k := ActionKind(strings.ToLower(strings.TrimSpace(kind)))
	card = strings.TrimSpace(card)

	if !k.NeedsCard() {
		if card != "" {
			return nil, fmt.Errorf("action %q takes no card", kind)
		}
		switch k {
		case KindPass:
			return Pass{}, nil
		case KindTake:
			return Take{}, nil
		case KindSurrender:
			return Surrender{}, nil
		default:
			return nil, fmt.Errorf("unknown action %q", kind)
		}
	}

	if card == "" {
		return nil, fmt.Errorf("action %q requires a card", kind)
	}
	c, err := deck.ParseCard(card)
	if err != nil {
		return nil, fmt.Errorf("action %q: %w", kind, err)
	}
	switch k {
	case KindAttack:
		return Attack{Card: c}, nil
	case KindDefend:
		return Defend{Card: c}, nil
	default:
		return Transfer{Card: c}, nil
	}
}
