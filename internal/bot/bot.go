// Package bot chooses moves for computer-controlled seats. Choices are a
// pure function of the visible game state so bot games replay exactly.
package bot

import (
	"time"

	"github.com/lox/durak/internal/deck"
	"github.com/lox/durak/internal/durak"
)

// Choose returns the move seat should make, or false when it has nothing
// to do right now. Only the primary attacker and the defender act.
func Choose(v durak.View, seat string) (durak.Action, bool) {
	if v.Status != durak.Playing {
		return nil, false
	}
	me, ok := v.Player(seat)
	if !ok {
		return nil, false
	}
	hand := append([]deck.Card(nil), me.Hand...)
	durak.SortHand(hand, v.Trump.Suit)

	switch seat {
	case v.Defender:
		return defend(v, seat, hand)
	case v.Attacker:
		return attack(v, hand)
	default:
		return nil, false
	}
}

func defend(v durak.View, seat string, hand []deck.Card) (durak.Action, bool) {
	target := v.Unmatched()
	if target < 0 {
		return nil, false
	}
	attack := v.Table[target].Attack

	if v.Mode == durak.Transferable && len(v.Table) == 1 && canReceive(v, seat) {
		for _, c := range hand {
			if c.Rank == attack.Rank {
				return durak.Transfer{Card: c}, true
			}
		}
	}

	if c, ok := lowest(hand, func(c deck.Card) bool { return deck.CanBeat(attack, c, v.Trump.Suit) }); ok {
		return durak.Defend{Card: c}, true
	}
	return durak.Take{}, true
}

// lowest returns the lowest-ranked card matching ok, breaking ties by suit.
// Trumps get no special treatment here.
func lowest(hand []deck.Card, ok func(deck.Card) bool) (deck.Card, bool) {
	var best deck.Card
	found := false
	for _, c := range hand {
		if !ok(c) {
			continue
		}
		if !found || c.Rank < best.Rank || (c.Rank == best.Rank && c.Suit < best.Suit) {
			best, found = c, true
		}
	}
	return best, found
}

func canReceive(v durak.View, seat string) bool {
	next := v.NextWithCards(seat)
	if next == "" || next == seat {
		return false
	}
	p, _ := v.Player(next)
	return p.HandCount >= len(v.Table)+1
}

func attack(v durak.View, hand []deck.Card) (durak.Action, bool) {
	if v.Unmatched() >= 0 {
		// let the defender answer first
		return nil, false
	}
	if len(v.Table) == 0 {
		c, ok := durak.LowestLead(hand, v.Trump.Suit)
		if !ok {
			return nil, false
		}
		return durak.Attack{Card: c}, true
	}
	if len(v.Table) < v.TrickLimit {
		if c, ok := lowest(hand, func(c deck.Card) bool { return v.RankOnTable(c.Rank) }); ok {
			return durak.Attack{Card: c}, true
		}
	}
	return durak.Pass{}, true
}

// Due returns the bot seat expected to move next in g and its move
func Due(g *durak.Game) (string, durak.Action, bool) {
	for _, seat := range []string{g.Defender(), g.Attacker()} {
		if !g.IsBot(seat) {
			continue
		}
		if a, ok := Choose(g.Snapshot(seat), seat); ok {
			return seat, a, true
		}
	}
	return "", nil, false
}

// Pacing holds the artificial think time after each kind of bot move
type Pacing struct {
	Attack time.Duration
	Defend time.Duration
	Other  time.Duration
}

// DefaultPacing approximates human cadence
var DefaultPacing = Pacing{
	Attack: 900 * time.Millisecond,
	Defend: 800 * time.Millisecond,
	Other:  1500 * time.Millisecond,
}

// Delay is the pause before the room's next bot move after kind
func (p Pacing) Delay(kind durak.ActionKind) time.Duration {
	switch kind {
	case durak.KindAttack:
		return p.Attack
	case durak.KindDefend:
		return p.Defend
	default:
		return p.Other
	}
}
