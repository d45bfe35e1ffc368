package deck

import rand "math/rand/v2"

// Size is the number of cards in a Durak deck
const Size = NumSuits * NumRanks

// HandSize is the number of cards each player holds after drawing
const HandSize = 6

// Deck is an ordered stack of cards consumed from the front
type Deck struct {
	cards []Card
}

// New creates a full 36-card deck shuffled with rng
func New(rng *rand.Rand) *Deck {
	d := &Deck{cards: Ordered()}
	d.Shuffle(rng)
	return d
}

// FromCards creates a deck with a fixed order, first element on top
func FromCards(cards []Card) *Deck {
	c := make([]Card, len(cards))
	copy(c, cards)
	return &Deck{cards: c}
}

// Ordered returns all 36 cards sorted by suit then rank
func Ordered() []Card {
	cards := make([]Card, 0, Size)
	for suit := Spades; suit <= Diamonds; suit++ {
		for rank := Six; rank <= Ace; rank++ {
			cards = append(cards, NewCard(rank, suit))
		}
	}
	return cards
}

// Shuffle applies a uniform Fisher-Yates permutation
func (d *Deck) Shuffle(rng *rand.Rand) {
	for i := len(d.cards) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Draw removes and returns the top card from the deck
func (d *Deck) Draw() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	card := d.cards[0]
	d.cards = d.cards[1:]
	return card, true
}

// DrawN draws up to n cards
func (d *Deck) DrawN(n int) []Card {
	n = min(n, len(d.cards))
	cards := make([]Card, n)
	copy(cards, d.cards[:n])
	d.cards = d.cards[n:]
	return cards
}

// Len returns the number of cards left in the deck
func (d *Deck) Len() int {
	return len(d.cards)
}

// IsEmpty returns true if the deck has no cards left
func (d *Deck) IsEmpty() bool {
	return len(d.cards) == 0
}

// Last returns the bottom card, which is exposed as trump after the deal
func (d *Deck) Last() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	return d.cards[len(d.cards)-1], true
}

// Cards returns a copy of the remaining cards in draw order
func (d *Deck) Cards() []Card {
	c := make([]Card, len(d.cards))
	copy(c, d.cards)
	return c
}
