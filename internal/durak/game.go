// Package durak implements the rules of Durak for one room: dealing, move
// validation, trick resolution and terminal detection. A Game is not safe
// for concurrent use; the owning room serialises every call.
package durak

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/lox/durak/internal/deck"
)

const (
	MinPlayers = 2
	MaxPlayers = deck.Size / deck.HandSize
)

var (
	ErrPlayerCount = fmt.Errorf("durak: a game needs %d to %d players", MinPlayers, MaxPlayers)
	ErrDuplicateID = errors.New("durak: duplicate player id")
)

// Mode selects the rule variant
type Mode int

const (
	// Classic is podkidnoy: throw-ins allowed, no transfers
	Classic Mode = iota
	// Transferable is perevodnoy: the defender may pass the attack on
	Transferable
)

func (m Mode) String() string {
	switch m {
	case Classic:
		return "classic"
	case Transferable:
		return "transfer"
	default:
		return "unknown"
	}
}

// ParseMode accepts the mode names used in config and on the wire
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "classic", "podkidnoy":
		return Classic, nil
	case "transfer", "perevodnoy":
		return Transferable, nil
	default:
		return Classic, fmt.Errorf("durak: unknown mode %q", s)
	}
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Status is the lifecycle of a room and its game
type Status int

const (
	Waiting Status = iota
	Playing
	Finished
)

func (s Status) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Playing:
		return "playing"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "waiting":
		*s = Waiting
	case "playing":
		*s = Playing
	case "finished":
		*s = Finished
	default:
		return fmt.Errorf("durak: unknown status %q", text)
	}
	return nil
}

// Seat describes a participant before the deal
type Seat struct {
	ID    string
	IsBot bool
}

// Player is a participant with a hand
type Player struct {
	ID        string
	Hand      []deck.Card
	IsBot     bool
	Connected bool
}

func (p *Player) holds(c deck.Card) int {
	return slices.IndexFunc(p.Hand, func(h deck.Card) bool {
		return h.Rank == c.Rank && h.Suit == c.Suit
	})
}

func (p *Player) remove(i int) deck.Card {
	c := p.Hand[i]
	p.Hand = slices.Delete(p.Hand, i, i+1)
	return c
}

// TablePair is one attack card and its defense, if any
type TablePair struct {
	Attack  deck.Card  `json:"attack"`
	Defense *deck.Card `json:"defense,omitempty"`
}

// Beaten reports whether the attack has been covered
func (p TablePair) Beaten() bool { return p.Defense != nil }

// Game is the rules state of one room
type Game struct {
	mode    Mode
	players []*Player
	deck    *deck.Deck
	trump   deck.Card
	table   []TablePair
	discard []deck.Card

	attacker   int
	defender   int
	trickLimit int

	turnTimeout time.Duration
	deadline    time.Time

	resolving bool
	status    Status
	loser     int
	tricks    int
}

// NewGame shuffles a fresh deck with rng, deals six cards to each seat and
// exposes the last card as trump. The holder of the lowest trump attacks
// first; without one, the first attacker is drawn uniformly from rng.
func NewGame(seats []Seat, mode Mode, rng *rand.Rand, now time.Time, turnTimeout time.Duration) (*Game, error) {
	return newGame(seats, mode, deck.New(rng), rng, now, turnTimeout)
}

// NewGameWithDeck deals from d as-is. Tests use it to stage exact hands.
func NewGameWithDeck(seats []Seat, mode Mode, d *deck.Deck, rng *rand.Rand, now time.Time, turnTimeout time.Duration) (*Game, error) {
	return newGame(seats, mode, d, rng, now, turnTimeout)
}

func newGame(seats []Seat, mode Mode, d *deck.Deck, rng *rand.Rand, now time.Time, turnTimeout time.Duration) (*Game, error) {
	if len(seats) < MinPlayers || len(seats) > MaxPlayers {
		return nil, ErrPlayerCount
	}
	if d.Len() < len(seats)*deck.HandSize {
		return nil, fmt.Errorf("durak: deck has %d cards, need %d", d.Len(), len(seats)*deck.HandSize)
	}

	seen := make(map[string]bool, len(seats))
	g := &Game{
		mode:        mode,
		deck:        d,
		turnTimeout: turnTimeout,
		status:      Playing,
		loser:       -1,
	}
	for _, s := range seats {
		if s.ID == "" || seen[s.ID] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, s.ID)
		}
		seen[s.ID] = true
		g.players = append(g.players, &Player{ID: s.ID, IsBot: s.IsBot, Connected: true})
	}

	for _, p := range g.players {
		p.Hand = d.DrawN(deck.HandSize)
	}
	trump, ok := d.Last()
	if !ok {
		// Six players take all 36 cards; the last dealt card names trump
		last := g.players[len(g.players)-1]
		trump = last.Hand[len(last.Hand)-1]
	}
	g.trump = trump

	g.attacker = g.firstAttacker(rng)
	g.defender = g.nextWithCards(g.attacker)
	g.startTrick(now)
	return g, nil
}

func (g *Game) firstAttacker(rng *rand.Rand) int {
	best, bestRank := -1, deck.Rank(0)
	for i, p := range g.players {
		for _, c := range p.Hand {
			if c.Suit != g.trump.Suit {
				continue
			}
			if best < 0 || c.Rank < bestRank {
				best, bestRank = i, c.Rank
			}
		}
	}
	if best >= 0 {
		return best
	}
	return rng.IntN(len(g.players))
}

// startTrick is the single place trickLimit is fixed for a new trick
func (g *Game) startTrick(now time.Time) {
	g.trickLimit = min(deck.HandSize, len(g.players[g.defender].Hand))
	g.deadline = now.Add(g.turnTimeout)
}

// nextWithCards returns the first seat after i that holds cards, or i
func (g *Game) nextWithCards(i int) int {
	n := len(g.players)
	for step := 1; step < n; step++ {
		j := (i + step) % n
		if len(g.players[j].Hand) > 0 {
			return j
		}
	}
	return i
}

func (g *Game) index(id string) int {
	return slices.IndexFunc(g.players, func(p *Player) bool { return p.ID == id })
}

func (g *Game) Mode() Mode           { return g.mode }
func (g *Game) Status() Status       { return g.status }
func (g *Game) Trump() deck.Card     { return g.trump }
func (g *Game) TrumpSuit() deck.Suit { return g.trump.Suit }
func (g *Game) TrickLimit() int      { return g.trickLimit }
func (g *Game) Deadline() time.Time  { return g.deadline }
func (g *Game) Tricks() int          { return g.tricks }
func (g *Game) DeckLen() int         { return g.deck.Len() }
func (g *Game) DiscardLen() int      { return len(g.discard) }
func (g *Game) Table() []TablePair   { return slices.Clone(g.table) }
func (g *Game) Attacker() string     { return g.players[g.attacker].ID }
func (g *Game) Defender() string     { return g.players[g.defender].ID }

// Loser returns the loser's id; empty while playing and after a draw
func (g *Game) Loser() string {
	if g.loser < 0 {
		return ""
	}
	return g.players[g.loser].ID
}

// Players returns copies of every player in turn order
func (g *Game) Players() []Player {
	out := make([]Player, len(g.players))
	for i, p := range g.players {
		out[i] = *p
		out[i].Hand = slices.Clone(p.Hand)
	}
	return out
}

// Hand returns a copy of one player's hand
func (g *Game) Hand(id string) []deck.Card {
	i := g.index(id)
	if i < 0 {
		return nil
	}
	return slices.Clone(g.players[i].Hand)
}

// IsBot reports whether id is a bot seat
func (g *Game) IsBot(id string) bool {
	i := g.index(id)
	return i >= 0 && g.players[i].IsBot
}

// SetConnected records whether a human is currently attached
func (g *Game) SetConnected(id string, connected bool) bool {
	i := g.index(id)
	if i < 0 {
		return false
	}
	g.players[i].Connected = connected
	return true
}

// SetDeadline overrides the current turn deadline
func (g *Game) SetDeadline(t time.Time) { g.deadline = t }

// CardCount totals every card in hands, deck, discard pile and on the table
func (g *Game) CardCount() int {
	n := g.deck.Len() + len(g.discard)
	for _, p := range g.players {
		n += len(p.Hand)
	}
	for _, pair := range g.table {
		n++
		if pair.Defense != nil {
			n++
		}
	}
	return n
}

func (g *Game) unmatched() int {
	return slices.IndexFunc(g.table, func(p TablePair) bool { return p.Defense == nil })
}

func (g *Game) onTable(r deck.Rank) bool {
	for _, p := range g.table {
		if p.Attack.Rank == r || (p.Defense != nil && p.Defense.Rank == r) {
			return true
		}
	}
	return false
}

func (g *Game) holders() []int {
	var out []int
	for i, p := range g.players {
		if len(p.Hand) > 0 {
			out = append(out, i)
		}
	}
	return out
}
