package durak

import (
	"slices"
	"time"

	"github.com/lox/durak/internal/deck"
)

// View is an immutable snapshot of a game as one viewer may see it
type View struct {
	Mode       Mode         `json:"mode"`
	Status     Status       `json:"status"`
	Trump      deck.Card    `json:"trump"`
	DeckCount  int          `json:"deck_count"`
	Discarded  int          `json:"discarded"`
	Table      []TablePair  `json:"table"`
	TrickLimit int          `json:"trick_limit"`
	Attacker   string       `json:"attacker"`
	Defender   string       `json:"defender"`
	Deadline   time.Time    `json:"deadline"`
	Players    []PlayerView `json:"players"`
	Loser      string       `json:"loser,omitempty"`
	Tricks     int          `json:"tricks"`
}

// PlayerView shows a hand only to its owner
type PlayerView struct {
	ID        string      `json:"id"`
	IsBot     bool        `json:"is_bot"`
	Connected bool        `json:"connected"`
	HandCount int         `json:"hand_count"`
	Hand      []deck.Card `json:"hand,omitempty"`
}

// Snapshot returns the game as viewer sees it: their own hand and card
// counts for everybody else. An unknown viewer sees no hands.
func (g *Game) Snapshot(viewer string) View {
	return g.view(func(p *Player) bool { return p.ID == viewer })
}

// FullSnapshot reveals every hand, for logs and tests
func (g *Game) FullSnapshot() View {
	return g.view(func(*Player) bool { return true })
}

func (g *Game) view(reveal func(*Player) bool) View {
	v := View{
		Mode:       g.mode,
		Status:     g.status,
		Trump:      g.trump,
		DeckCount:  g.deck.Len(),
		Discarded:  len(g.discard),
		Table:      make([]TablePair, len(g.table)),
		TrickLimit: g.trickLimit,
		Attacker:   g.players[g.attacker].ID,
		Defender:   g.players[g.defender].ID,
		Deadline:   g.deadline,
		Loser:      g.Loser(),
		Tricks:     g.tricks,
	}
	for i, pair := range g.table {
		v.Table[i] = TablePair{Attack: pair.Attack}
		if pair.Defense != nil {
			d := *pair.Defense
			v.Table[i].Defense = &d
		}
	}
	for _, p := range g.players {
		pv := PlayerView{ID: p.ID, IsBot: p.IsBot, Connected: p.Connected, HandCount: len(p.Hand)}
		if reveal(p) {
			pv.Hand = slices.Clone(p.Hand)
		}
		v.Players = append(v.Players, pv)
	}
	return v
}

// Player returns the view entry for id
func (v View) Player(id string) (PlayerView, bool) {
	i := slices.IndexFunc(v.Players, func(p PlayerView) bool { return p.ID == id })
	if i < 0 {
		return PlayerView{}, false
	}
	return v.Players[i], true
}

// NextWithCards returns the first player after id in turn order who still
// holds cards, or "" if nobody does.
func (v View) NextWithCards(id string) string {
	i := slices.IndexFunc(v.Players, func(p PlayerView) bool { return p.ID == id })
	if i < 0 {
		return ""
	}
	n := len(v.Players)
	for step := 1; step < n; step++ {
		p := v.Players[(i+step)%n]
		if p.HandCount > 0 {
			return p.ID
		}
	}
	return ""
}

// Unmatched returns the index of the oldest unbeaten pair, or -1
func (v View) Unmatched() int {
	return slices.IndexFunc(v.Table, func(p TablePair) bool { return p.Defense == nil })
}

// RankOnTable reports whether r appears anywhere on the table
func (v View) RankOnTable(r deck.Rank) bool {
	for _, p := range v.Table {
		if p.Attack.Rank == r || (p.Defense != nil && p.Defense.Rank == r) {
			return true
		}
	}
	return false
}
