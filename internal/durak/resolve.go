package durak

import (
	"slices"
	"time"

	"github.com/lox/durak/internal/deck"
)

// resolveRound ends the current trick. took means the defender picks up
// every table card; otherwise the table goes to the discard pile.
func (g *Game) resolveRound(took bool, now time.Time) Result {
	if g.resolving || g.status != Playing {
		return Result{Accepted: true}
	}
	g.resolving = true
	defer func() { g.resolving = false }()

	defender := g.players[g.defender]
	for _, pair := range g.table {
		cards := []deck.Card{pair.Attack}
		if pair.Defense != nil {
			cards = append(cards, *pair.Defense)
		}
		if took {
			defender.Hand = append(defender.Hand, cards...)
		} else {
			g.discard = append(g.discard, cards...)
		}
	}
	g.table = nil
	g.tricks++

	g.drawUp()

	res := Result{Accepted: true, Resolved: true, Took: took}
	if g.finishIfDone() {
		res.Finished = true
		return res
	}

	next := g.defender
	if took {
		next = (g.defender + 1) % len(g.players)
	}
	if len(g.players[next].Hand) == 0 {
		next = g.nextWithCards(next)
	}
	g.attacker = next
	g.defender = g.nextWithCards(next)
	g.startTrick(now)
	return res
}

// drawUp refills hands to six in turn order starting from the attacker
func (g *Game) drawUp() {
	n := len(g.players)
	for step := range n {
		p := g.players[(g.attacker+step)%n]
		if need := deck.HandSize - len(p.Hand); need > 0 {
			p.Hand = append(p.Hand, g.deck.DrawN(need)...)
		}
	}
}

// finishIfDone ends the game once the deck is empty and at most one
// player still holds cards; that player, if any, is the loser.
func (g *Game) finishIfDone() bool {
	if !g.deck.IsEmpty() {
		return false
	}
	holders := g.holders()
	if len(holders) > 1 {
		return false
	}
	g.status = Finished
	if len(holders) == 1 {
		g.loser = holders[0]
	}
	return true
}

// CheckTerminal finishes the game if nobody but one player can still act.
// A fully beaten table is discarded first; a pending attack is left for the
// defender to answer.
func (g *Game) CheckTerminal(now time.Time) bool {
	if g.status == Finished {
		return true
	}
	if !g.deck.IsEmpty() || len(g.holders()) > 1 || g.unmatched() >= 0 {
		return false
	}
	if len(g.table) > 0 {
		g.resolveRound(false, now)
		return g.status == Finished
	}
	return g.finishIfDone()
}

// HasUnmatched reports whether an attack is waiting for the defender
func (g *Game) HasUnmatched() bool { return g.unmatched() >= 0 }

// HandleTimeout applies the default move once the turn deadline passes: the
// defender takes an unbeaten table, a beaten table is discarded, and an
// empty table gets the attacker's lowest legal lead.
func (g *Game) HandleTimeout(now time.Time) Result {
	if g.status != Playing {
		return reject("the game is over")
	}
	var res Result
	switch {
	case g.unmatched() >= 0:
		res = g.resolveRound(true, now)
		res.Kind = KindTake
	case len(g.table) > 0:
		res = g.resolveRound(false, now)
		res.Kind = KindPass
	default:
		c, ok := LowestLead(g.players[g.attacker].Hand, g.trump.Suit)
		if !ok {
			// attacker has nothing; hand the lead on
			g.attacker = g.nextWithCards(g.attacker)
			g.defender = g.nextWithCards(g.attacker)
			g.startTrick(now)
			return Result{Accepted: true}
		}
		res = g.attack(g.attacker, c, now)
		res.Kind = KindAttack
	}
	return res
}

// LowestLead picks the lowest non-trump card, falling back to the lowest
// trump when the hand holds nothing else.
func LowestLead(hand []deck.Card, trump deck.Suit) (deck.Card, bool) {
	if len(hand) == 0 {
		return deck.Card{}, false
	}
	sorted := slices.Clone(hand)
	SortHand(sorted, trump)
	return sorted[0], true
}

// SortHand orders cards non-trumps first, then by rank, then by suit
func SortHand(cards []deck.Card, trump deck.Suit) {
	slices.SortStableFunc(cards, func(a, b deck.Card) int {
		at, bt := a.Suit == trump, b.Suit == trump
		if at != bt {
			if at {
				return 1
			}
			return -1
		}
		if a.Rank != b.Rank {
			return int(a.Rank) - int(b.Rank)
		}
		return int(a.Suit) - int(b.Suit)
	})
}
