package durak

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/lox/durak/internal/deck"
	"github.com/lox/durak/internal/randutil"
	"github.com/stretchr/testify/require"
)

// Random players try moves at random and let the engine
// sort them out; the table invariants are checked after every step.
func TestRandomPlayInvariants(t *testing.T) {
	for seed := range int64(60) {
		rng := randutil.New(seed)
		mode := Classic
		if seed%2 == 1 {
			mode = Transferable
		}
		n := 2 + int(seed%5)
		ids := []string{"a", "b", "c", "d", "e", "f"}[:n]

		g, err := NewGame(seats(ids...), mode, rng, t0, timeout)
		require.NoError(t, err)

		now := t0
		for step := 0; step < 20000 && g.Status() == Playing; step++ {
			now = now.Add(time.Second)
			tricks, limit, table := g.Tricks(), g.TrickLimit(), len(g.Table())

			res := randomMove(g, rng, now)
			if !res.Accepted {
				res = g.HandleTimeout(now)
			}

			require.Equal(t, deck.Size, g.CardCount(), "seed %d step %d: cards must be conserved", seed, step)
			require.LessOrEqual(t, len(g.Table()), g.TrickLimit(), "seed %d step %d", seed, step)
			for _, pair := range g.Table() {
				if pair.Defense != nil {
					require.True(t, deck.CanBeat(pair.Attack, *pair.Defense, g.TrumpSuit()), "seed %d: %s over %s", seed, *pair.Defense, pair.Attack)
				}
			}
			if g.Tricks() == tricks && res.Kind != KindTransfer && table > 0 {
				require.Equal(t, limit, g.TrickLimit(), "seed %d step %d: trick limit changed mid-trick", seed, step)
			}
		}
		if n == 2 {
			require.Equal(t, Finished, g.Status(), "seed %d: heads-up game must finish", seed)
		}
	}
}

func randomMove(g *Game, rng *rand.Rand, now time.Time) Result {
	players := g.Players()
	p := players[rng.IntN(len(players))]

	var candidates []Action
	for _, c := range p.Hand {
		candidates = append(candidates, Attack{Card: c}, Defend{Card: c}, Transfer{Card: c})
	}
	candidates = append(candidates, Pass{}, Take{})
	rng.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })

	for _, a := range candidates {
		if res := g.Apply(p.ID, a, now); res.Accepted {
			return res
		}
	}
	return Result{}
}
