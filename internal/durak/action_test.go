package durak

import (
	"testing"

	"github.com/lox/durak/internal/deck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		kind, card string
		want       Action
		wantErr    string
	}{
		{kind: "attack", card: "6s", want: Attack{Card: deck.NewCard(deck.Six, deck.Spades)}},
		{kind: "DEFEND", card: "10h", want: Defend{Card: deck.NewCard(deck.Ten, deck.Hearts)}},
		{kind: "transfer", card: "Qd", want: Transfer{Card: deck.NewCard(deck.Queen, deck.Diamonds)}},
		{kind: "pass", want: Pass{}},
		{kind: " take ", want: Take{}},
		{kind: "surrender", want: Surrender{}},
		{kind: "attack", wantErr: "requires a card"},
		{kind: "take", card: "6s", wantErr: "takes no card"},
		{kind: "attack", card: "5s", wantErr: "invalid rank"},
		{kind: "fold", wantErr: "unknown action"},
	}

	for _, tt := range tests {
		t.Run(tt.kind+"/"+tt.card, func(t *testing.T) {
			got, err := ParseAction(tt.kind, tt.card)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCardOf(t *testing.T) {
	c := deck.NewCard(deck.Ace, deck.Clubs)

	got, ok := CardOf(Defend{Card: c})
	assert.True(t, ok)
	assert.Equal(t, c, got)

	_, ok = CardOf(Take{})
	assert.False(t, ok)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("perevodnoy")
	require.NoError(t, err)
	assert.Equal(t, Transferable, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Classic, m)

	_, err = ParseMode("ninja")
	assert.Error(t, err)
}
