package bot

import (
	"testing"
	"time"

	"github.com/lox/durak/internal/deck"
	"github.com/lox/durak/internal/durak"
	"github.com/lox/durak/internal/randutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func card(s string) deck.Card { return deck.MustParseCards(s)[0] }

// headsUp deals p0 and p1 from an exact deck with hearts as trump. p0 holds
// 6h, the lowest trump, and attacks first.
func headsUp(t *testing.T, mode durak.Mode, p0, p1 string) *durak.Game {
	t.Helper()
	cards := deck.MustParseCards(p0 + p1 + "AsKdAh")
	g, err := durak.NewGameWithDeck(
		[]durak.Seat{{ID: "p0", IsBot: true}, {ID: "p1", IsBot: true}},
		mode, deck.FromCards(cards), randutil.New(1), t0, 30*time.Second)
	require.NoError(t, err)
	require.Equal(t, "p0", g.Attacker())
	return g
}

func choose(g *durak.Game, seat string) (durak.Action, bool) {
	return Choose(g.Snapshot(seat), seat)
}

func TestLeadLowestNonTrump(t *testing.T) {
	g := headsUp(t, durak.Classic, "6h7s8d9dTdJd", "9sQs7h6c7c8c")

	a, ok := choose(g, "p0")
	require.True(t, ok)
	assert.Equal(t, durak.Attack{Card: card("7s")}, a)

	_, ok = choose(g, "p1")
	assert.False(t, ok, "defender has nothing to answer yet")
}

func TestDefendWithLowestBeatingCard(t *testing.T) {
	g := headsUp(t, durak.Classic, "6h7s8d9dTdJd", "9sQs7h6c7c8c")
	require.True(t, g.Apply("p0", durak.Attack{Card: card("7s")}, t0).Accepted)

	_, ok := choose(g, "p0")
	assert.False(t, ok, "attacker waits while an attack is unbeaten")

	a, ok := choose(g, "p1")
	require.True(t, ok)
	assert.Equal(t, durak.Defend{Card: card("7h")}, a, "a low trump ranks below 9s")
}

func TestDefendPrefersSuitOnEqualRank(t *testing.T) {
	g := headsUp(t, durak.Classic, "6h7s8d9dTdJd", "8sQs8h6c7c9c")
	require.True(t, g.Apply("p0", durak.Attack{Card: card("7s")}, t0).Accepted)

	a, ok := choose(g, "p1")
	require.True(t, ok)
	assert.Equal(t, durak.Defend{Card: card("8s")}, a)
}

func TestDefendWithTrumpWhenSuitMissing(t *testing.T) {
	g := headsUp(t, durak.Classic, "6h7s8d9dTdJd", "9sQs7h6c7c8c")
	require.True(t, g.Apply("p0", durak.Attack{Card: card("8d")}, t0).Accepted)

	a, ok := choose(g, "p1")
	require.True(t, ok)
	assert.Equal(t, durak.Defend{Card: card("7h")}, a)
}

func TestTakeWhenNothingBeats(t *testing.T) {
	g := headsUp(t, durak.Classic, "6h7s8d9dTdJd", "9sQs6c7c8cKs")
	require.True(t, g.Apply("p0", durak.Attack{Card: card("8d")}, t0).Accepted)

	a, ok := choose(g, "p1")
	require.True(t, ok)
	assert.Equal(t, durak.Take{}, a)
}

func TestTransferSameRank(t *testing.T) {
	g := headsUp(t, durak.Transferable, "6h7s8d9dTdJd", "7c9sQs6c8cKs")
	require.True(t, g.Apply("p0", durak.Attack{Card: card("7s")}, t0).Accepted)

	a, ok := choose(g, "p1")
	require.True(t, ok)
	assert.Equal(t, durak.Transfer{Card: card("7c")}, a)

	res := g.Apply("p1", a, t0)
	require.True(t, res.Accepted, res.Reason)
	assert.Equal(t, "p0", g.Defender())
}

func TestNoTransferInClassicMode(t *testing.T) {
	g := headsUp(t, durak.Classic, "6h7s8d9dTdJd", "7c9sQs6c8cKs")
	require.True(t, g.Apply("p0", durak.Attack{Card: card("7s")}, t0).Accepted)

	a, ok := choose(g, "p1")
	require.True(t, ok)
	assert.Equal(t, durak.Defend{Card: card("9s")}, a)
}

func TestThrowInLowestRankOnTable(t *testing.T) {
	g := headsUp(t, durak.Classic, "6h7s8d9dTdJd", "9sQs7h6c7c8c")
	require.True(t, g.Apply("p0", durak.Attack{Card: card("7s")}, t0).Accepted)
	require.True(t, g.Apply("p1", durak.Defend{Card: card("9s")}, t0).Accepted)

	a, ok := choose(g, "p0")
	require.True(t, ok)
	assert.Equal(t, durak.Attack{Card: card("9d")}, a)
}

func TestThrowInTrumpWhenItRanksLowest(t *testing.T) {
	g := headsUp(t, durak.Classic, "6h6d9sTsJsQs", "9dQc7c6c8cKc")
	require.True(t, g.Apply("p0", durak.Attack{Card: card("6d")}, t0).Accepted)
	require.True(t, g.Apply("p1", durak.Defend{Card: card("9d")}, t0).Accepted)

	a, ok := choose(g, "p0")
	require.True(t, ok)
	assert.Equal(t, durak.Attack{Card: card("6h")}, a)
}

func TestPassWhenNothingToThrow(t *testing.T) {
	g := headsUp(t, durak.Classic, "6h7s8dTdJdQd", "9sQs7h6c7c8c")
	require.True(t, g.Apply("p0", durak.Attack{Card: card("7s")}, t0).Accepted)
	require.True(t, g.Apply("p1", durak.Defend{Card: card("9s")}, t0).Accepted)

	a, ok := choose(g, "p0")
	require.True(t, ok)
	assert.Equal(t, durak.Pass{}, a)
}

func TestDueSkipsHumans(t *testing.T) {
	g, err := durak.NewGame([]durak.Seat{{ID: "h1"}, {ID: "h2"}}, durak.Classic, randutil.New(3), t0, time.Second)
	require.NoError(t, err)
	_, _, ok := Due(g)
	assert.False(t, ok)
}

func playOut(t *testing.T, seed int64, players int) *durak.Game {
	t.Helper()
	ids := []string{"a", "b", "c", "d", "e", "f"}[:players]
	seats := make([]durak.Seat, players)
	for i, id := range ids {
		seats[i] = durak.Seat{ID: id, IsBot: true}
	}
	mode := durak.Classic
	if seed%2 == 0 {
		mode = durak.Transferable
	}
	g, err := durak.NewGame(seats, mode, randutil.New(seed), t0, time.Second)
	require.NoError(t, err)

	now := t0
	for step := 0; step < 5000 && g.Status() == durak.Playing; step++ {
		now = now.Add(time.Second)
		seat, a, ok := Due(g)
		require.True(t, ok, "seed %d step %d: no bot due", seed, step)
		res := g.Apply(seat, a, now)
		require.True(t, res.Accepted, "seed %d step %d: %s %v rejected: %s", seed, step, seat, a, res.Reason)
		require.Equal(t, deck.Size, g.CardCount())
	}
	return g
}

func TestBotsOnlyPlayLegalMoves(t *testing.T) {
	for seed := range int64(40) {
		players := 2 + int(seed%5)
		playOut(t, seed, players)
	}
}

func TestHeadsUpBotGamesFinish(t *testing.T) {
	for seed := range int64(40) {
		g := playOut(t, seed, 2)
		assert.Equal(t, durak.Finished, g.Status(), "seed %d", seed)
	}
}

func TestBotGamesAreDeterministic(t *testing.T) {
	a := playOut(t, 99, 2)
	b := playOut(t, 99, 2)
	assert.Equal(t, a.FullSnapshot(), b.FullSnapshot())
}

func TestPacingDelay(t *testing.T) {
	assert.Equal(t, 900*time.Millisecond, DefaultPacing.Delay(durak.KindAttack))
	assert.Equal(t, 800*time.Millisecond, DefaultPacing.Delay(durak.KindDefend))
	assert.Equal(t, 1500*time.Millisecond, DefaultPacing.Delay(durak.KindTake))
}
