package deck

import (
	"encoding/json"
	"testing"

	"github.com/lox/durak/internal/randutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCards(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []Card
		wantErr  bool
	}{
		{
			name:  "mixed suits",
			input: "AhKdQcJs9s",
			expected: []Card{
				NewCard(Ace, Hearts),
				NewCard(King, Diamonds),
				NewCard(Queen, Clubs),
				NewCard(Jack, Spades),
				NewCard(Nine, Spades),
			},
		},
		{
			name:     "lowest cards",
			input:    "6s7c",
			expected: []Card{NewCard(Six, Spades), NewCard(Seven, Clubs)},
		},
		{
			name:     "case insensitive",
			input:    "tHqD",
			expected: []Card{NewCard(Ten, Hearts), NewCard(Queen, Diamonds)},
		},
		{name: "rank below six", input: "5s", wantErr: true},
		{name: "invalid suit", input: "AsKx", wantErr: true},
		{name: "odd length", input: "AsK", wantErr: true},
		{name: "empty string", input: "", expected: []Card{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCards(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseCardTen(t *testing.T) {
	c, err := ParseCard("10d")
	require.NoError(t, err)
	assert.Equal(t, NewCard(Ten, Diamonds), c)
}

func TestCanBeat(t *testing.T) {
	trump := Hearts
	tests := []struct {
		attack, defense string
		want            bool
	}{
		{"6s", "7s", true},
		{"7s", "6s", false},
		{"As", "As", false},
		{"As", "6h", true},  // trump beats non-trump
		{"6h", "As", false}, // non-trump never beats trump
		{"7h", "6h", false},
		{"7h", "8h", true},
		{"Ks", "Ad", false}, // off-suit non-trump
	}
	for _, tt := range tests {
		a := MustParseCards(tt.attack)[0]
		d := MustParseCards(tt.defense)[0]
		assert.Equal(t, tt.want, CanBeat(a, d, trump), "%s by %s", tt.attack, tt.defense)
	}
}

func TestCardJSON(t *testing.T) {
	c := NewCard(Ten, Hearts)
	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `"Th"`, string(data))

	var back Card
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, c, back)
}

func TestDeckIsComplete(t *testing.T) {
	d := New(randutil.New(7))
	require.Equal(t, Size, d.Len())

	seen := make(map[int]bool)
	for !d.IsEmpty() {
		c, ok := d.Draw()
		require.True(t, ok)
		require.False(t, seen[c.ID], "duplicate card %s", c)
		seen[c.ID] = true
		assert.True(t, c.Rank.Valid())
		assert.True(t, c.Suit.Valid())
	}
	assert.Len(t, seen, Size)
}

func TestDeckDeterministicShuffle(t *testing.T) {
	a := New(randutil.New(99)).Cards()
	b := New(randutil.New(99)).Cards()
	c := New(randutil.New(100)).Cards()
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestDeckLastAndDrawN(t *testing.T) {
	d := FromCards(MustParseCards("6s7s8s9s"))
	last, ok := d.Last()
	require.True(t, ok)
	assert.Equal(t, NewCard(Nine, Spades), last)

	drawn := d.DrawN(3)
	assert.Equal(t, MustParseCards("6s7s8s"), drawn)
	assert.Equal(t, 1, d.Len())
	assert.Empty(t, d.DrawN(5)[1:])
	assert.True(t, d.IsEmpty())
}
