package deck

import (
	"fmt"
	"strings"
)

// Suit represents a card suit
type Suit int

const (
	Spades Suit = iota
	Clubs
	Hearts
	Diamonds
)

// NumSuits is the number of suits in a deck
const NumSuits = 4

// String returns the string representation of a suit
func (s Suit) String() string {
	switch s {
	case Spades:
		return "♠"
	case Clubs:
		return "♣"
	case Hearts:
		return "♥"
	case Diamonds:
		return "♦"
	default:
		return "?"
	}
}

// Letter returns the single-letter notation used on the wire ("s", "c", "h", "d")
func (s Suit) Letter() byte {
	switch s {
	case Spades:
		return 's'
	case Clubs:
		return 'c'
	case Hearts:
		return 'h'
	case Diamonds:
		return 'd'
	default:
		return '?'
	}
}

// Valid reports whether s is one of the four suits
func (s Suit) Valid() bool {
	return s >= Spades && s <= Diamonds
}

// IsRed returns true if the suit is red (Hearts or Diamonds)
func (s Suit) IsRed() bool {
	return s == Hearts || s == Diamonds
}

// Rank represents a card rank. A Durak deck starts at six.
type Rank int

const (
	Six Rank = iota + 6
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
	Ace
)

// NumRanks is the number of ranks per suit
const NumRanks = 9

// String returns the string representation of a rank
func (r Rank) String() string {
	switch r {
	case Six:
		return "6"
	case Seven:
		return "7"
	case Eight:
		return "8"
	case Nine:
		return "9"
	case Ten:
		return "T"
	case Jack:
		return "J"
	case Queen:
		return "Q"
	case King:
		return "K"
	case Ace:
		return "A"
	default:
		return "?"
	}
}

// Valid reports whether r is a rank used in the 36-card deck
func (r Rank) Valid() bool {
	return r >= Six && r <= Ace
}

// Card represents a playing card. ID is unique within one deck.
type Card struct {
	ID   int
	Rank Rank
	Suit Suit
}

// NewCard creates a card with its canonical deck ID
func NewCard(rank Rank, suit Suit) Card {
	return Card{ID: int(suit)*NumRanks + int(rank-Six), Rank: rank, Suit: suit}
}

// String returns the string representation of a card (e.g., "A♠")
func (c Card) String() string {
	return fmt.Sprintf("%s%s", c.Rank, c.Suit)
}

// Code returns the two-character wire form of the card (e.g., "As", "Th")
func (c Card) Code() string {
	return c.Rank.String() + string(c.Suit.Letter())
}

// MarshalText encodes the card in its wire form
func (c Card) MarshalText() ([]byte, error) {
	if !c.Rank.Valid() || !c.Suit.Valid() {
		return nil, fmt.Errorf("deck: cannot marshal invalid card %d/%d", c.Rank, c.Suit)
	}
	return []byte(c.Code()), nil
}

// UnmarshalText decodes a card from its wire form
func (c *Card) UnmarshalText(text []byte) error {
	parsed, err := ParseCard(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// IsTrump reports whether the card belongs to the trump suit
func (c Card) IsTrump(trump Suit) bool {
	return c.Suit == trump
}

// CanBeat reports whether defense legally covers attack. A card beats another
// of the same suit with a strictly higher rank, and a trump beats any
// non-trump regardless of rank.
func CanBeat(attack, defense Card, trump Suit) bool {
	if defense.Suit == attack.Suit {
		return defense.Rank > attack.Rank
	}
	return defense.Suit == trump
}

// ParseCard parses a two-character card such as "Th", "6s" or "10d"
func ParseCard(s string) (Card, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "10") {
		s = "T" + s[2:]
	}
	if len(s) != 2 {
		return Card{}, fmt.Errorf("deck: invalid card %q", s)
	}

	var rank Rank
	switch strings.ToUpper(s[:1]) {
	case "6":
		rank = Six
	case "7":
		rank = Seven
	case "8":
		rank = Eight
	case "9":
		rank = Nine
	case "T":
		rank = Ten
	case "J":
		rank = Jack
	case "Q":
		rank = Queen
	case "K":
		rank = King
	case "A":
		rank = Ace
	default:
		return Card{}, fmt.Errorf("deck: invalid rank in %q", s)
	}

	var suit Suit
	switch strings.ToLower(s[1:]) {
	case "s":
		suit = Spades
	case "c":
		suit = Clubs
	case "h":
		suit = Hearts
	case "d":
		suit = Diamonds
	default:
		return Card{}, fmt.Errorf("deck: invalid suit in %q", s)
	}

	return NewCard(rank, suit), nil
}

// ParseCards parses a concatenated list of cards such as "6sThAd"
func ParseCards(s string) ([]Card, error) {
	s = strings.ReplaceAll(s, " ", "")
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("deck: odd length card string %q", s)
	}
	cards := make([]Card, 0, len(s)/2)
	for i := 0; i < len(s); i += 2 {
		c, err := ParseCard(s[i : i+2])
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// MustParseCards is ParseCards for tests and fixtures; it panics on error
func MustParseCards(s string) []Card {
	cards, err := ParseCards(s)
	if err != nil {
		panic(err)
	}
	return cards
}
