package durak

import (
	"fmt"
	"time"

	"github.com/lox/durak/internal/deck"
)

// Result describes the effect of one action. Rejected actions leave the
// game untouched and carry a message for the actor.
type Result struct {
	Accepted bool
	Reason   string
	Kind     ActionKind
	Resolved bool // the trick ended
	Took     bool // the defender picked the table up
	Finished bool
}

func reject(format string, args ...any) Result {
	return Result{Reason: fmt.Sprintf(format, args...)}
}

// Apply validates a against the current state and performs it
func (g *Game) Apply(actorID string, a Action, now time.Time) Result {
	if g.status != Playing {
		return reject("the game is over")
	}
	if a == nil {
		return reject("no action")
	}
	actor := g.index(actorID)
	if actor < 0 {
		return reject("you are not seated in this game")
	}

	var res Result
	switch v := a.(type) {
	case Attack:
		res = g.attack(actor, v.Card, now)
	case Defend:
		res = g.defend(actor, v.Card, now)
	case Transfer:
		res = g.transfer(actor, v.Card, now)
	case Pass:
		res = g.pass(actor, now)
	case Take:
		res = g.take(actor, now)
	case Surrender:
		res = g.surrender(actor)
	default:
		return reject("unknown action")
	}
	res.Kind = a.Kind()
	return res
}

func (g *Game) attack(actor int, c deck.Card, now time.Time) Result {
	if actor == g.defender {
		return reject("the defender cannot attack")
	}
	p := g.players[actor]
	i := p.holds(c)
	if i < 0 {
		return reject("you do not hold %s", c)
	}

	if len(g.table) == 0 {
		if actor != g.attacker {
			return reject("only %s may lead", g.players[g.attacker].ID)
		}
		if c.Suit == g.trump.Suit && !g.onlyTrumps(p) {
			return reject("cannot lead with a trump while holding other suits")
		}
	} else if !g.onTable(c.Rank) {
		return reject("rank %s is not on the table", c.Rank)
	}
	if len(g.table) >= g.trickLimit {
		return reject("the trick is full (%d cards)", g.trickLimit)
	}

	g.table = append(g.table, TablePair{Attack: p.remove(i)})
	g.deadline = now.Add(g.turnTimeout)
	return Result{Accepted: true}
}

func (g *Game) onlyTrumps(p *Player) bool {
	for _, c := range p.Hand {
		if c.Suit != g.trump.Suit {
			return false
		}
	}
	return true
}

func (g *Game) defend(actor int, c deck.Card, now time.Time) Result {
	if actor != g.defender {
		return reject("only the defender can defend")
	}
	target := g.unmatched()
	if target < 0 {
		return reject("nothing to defend")
	}
	p := g.players[actor]
	i := p.holds(c)
	if i < 0 {
		return reject("you do not hold %s", c)
	}
	attack := g.table[target].Attack
	if !deck.CanBeat(attack, c, g.trump.Suit) {
		return reject("%s does not beat %s", c, attack)
	}

	card := p.remove(i)
	g.table[target].Defense = &card
	g.deadline = now.Add(g.turnTimeout)

	if len(p.Hand) == 0 && g.unmatched() < 0 {
		return g.resolveRound(false, now)
	}
	return Result{Accepted: true}
}

func (g *Game) transfer(actor int, c deck.Card, now time.Time) Result {
	if g.mode != Transferable {
		return reject("transfers are not allowed in %s mode", g.mode)
	}
	if actor != g.defender {
		return reject("only the defender can transfer")
	}
	if len(g.table) != 1 || g.table[0].Beaten() {
		return reject("transfer needs exactly one unbeaten card on the table")
	}
	p := g.players[actor]
	i := p.holds(c)
	if i < 0 {
		return reject("you do not hold %s", c)
	}
	if c.Rank != g.table[0].Attack.Rank {
		return reject("transfer card must match rank %s", g.table[0].Attack.Rank)
	}
	next := g.nextWithCards(actor)
	if next == actor {
		return reject("nobody can receive the transfer")
	}
	if need := len(g.table) + 1; len(g.players[next].Hand) < need {
		return reject("%s cannot cover %d cards", g.players[next].ID, need)
	}

	g.table = append(g.table, TablePair{Attack: p.remove(i)})
	g.attacker, g.defender = actor, next
	g.trickLimit = min(deck.HandSize, len(g.players[next].Hand))
	g.deadline = now.Add(g.turnTimeout)
	return Result{Accepted: true}
}

func (g *Game) pass(actor int, now time.Time) Result {
	if actor == g.defender {
		return reject("the defender cannot pass")
	}
	if actor != g.attacker && len(g.players[actor].Hand) == 0 {
		return reject("you are out of the trick")
	}
	if len(g.table) == 0 {
		return reject("nothing on the table")
	}
	if g.unmatched() >= 0 {
		return reject("not every attack is beaten")
	}
	return g.resolveRound(false, now)
}

func (g *Game) take(actor int, now time.Time) Result {
	if actor != g.defender {
		return reject("only the defender can take")
	}
	if len(g.table) == 0 {
		return reject("nothing to take")
	}
	return g.resolveRound(true, now)
}

func (g *Game) surrender(actor int) Result {
	g.loser = actor
	g.status = Finished
	return Result{Accepted: true, Finished: true}
}
