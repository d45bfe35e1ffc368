package main

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lox/durak/cmd/durak/shared"
	"github.com/lox/durak/internal/bot"
	"github.com/lox/durak/internal/durak"
	"github.com/lox/durak/internal/randutil"
	"github.com/lox/durak/internal/statistics"
)

// maxSteps caps a single simulated game; bot play always terminates well
// before this
const maxSteps = 10_000

// SimulateCmd plays bot-only games to exercise the rules engine and bot
type SimulateCmd struct {
	Games    int    `kong:"default='1000',help='Number of games to play'"`
	Players  int    `kong:"default='2',help='Seats per game (2-6)'"`
	Mode     string `kong:"default='classic',enum='classic,transfer',help='Rule variant'"`
	Seed     *int64 `kong:"help='Base seed; game i uses seed+i (random when unset)'"`
	Parallel int    `kong:"default='0',help='Concurrent games (0 = one per CPU)'"`
	Debug    bool   `kong:"help='Enable debug logging'"`
}

func (c *SimulateCmd) Run() error {
	logger := shared.SetupLogger(c.Debug, "info")

	mode, err := durak.ParseMode(c.Mode)
	if err != nil {
		return err
	}
	if c.Players < durak.MinPlayers || c.Players > durak.MaxPlayers {
		return durak.ErrPlayerCount
	}
	if c.Games < 1 {
		return fmt.Errorf("games must be positive")
	}
	seed := randutil.Seed()
	if c.Seed != nil {
		seed = *c.Seed
	}
	parallel := c.Parallel
	if parallel < 1 {
		parallel = runtime.NumCPU()
	}

	logger.Info("Simulating", "games", c.Games, "players", c.Players, "mode", mode, "seed", seed)

	var mu sync.Mutex
	stats := statistics.New(c.Players)
	stalled := 0
	start := time.Now()

	var g errgroup.Group
	g.SetLimit(parallel)
	for i := range c.Games {
		gameSeed := seed + int64(i)
		g.Go(func() error {
			r, finished, err := simulateGame(gameSeed, c.Players, mode)
			if err != nil {
				return fmt.Errorf("seed %d: %w", gameSeed, err)
			}
			mu.Lock()
			defer mu.Unlock()
			if !finished {
				logger.Warn("Game did not finish", "seed", gameSeed)
				stalled++
				return nil
			}
			stats.Add(r)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Printf("\n%d games (%s, %d players) in %s\n\n", c.Games, mode, c.Players, time.Since(start).Round(time.Millisecond))
	if stalled > 0 {
		fmt.Printf("  stalled      %6d\n", stalled)
	}
	if stats.Games == 0 {
		return fmt.Errorf("no game finished")
	}
	if err := stats.Validate(); err != nil {
		return err
	}
	for i, seat := range stats.Seats {
		lo, hi := stats.LossRateCI95(i)
		fmt.Printf("  seat %d lost  %6d  (%5.1f%%, 95%% CI %.1f-%.1f%%)\n", i+1, seat.Losses, 100*stats.LossRate(i), 100*lo, 100*hi)
	}
	fmt.Printf("  draws        %6d  (%5.1f%%)\n", stats.Draws, 100*stats.DrawRate())

	lo, hi := stats.ConfidenceInterval95()
	fmt.Printf("\n  tricks: mean %.2f (95%% CI %.2f-%.2f), median %.0f, p95 %.0f\n", stats.Mean(), lo, hi, stats.Median(), stats.Percentile(0.95))
	fmt.Printf("  moves:  mean %.1f\n", stats.MeanMoves())
	fmt.Printf("  longest game: seed %d, %d tricks\n", stats.Longest.Seed, stats.Longest.Tricks)
	return nil
}

// simulateGame plays one game with a bot in every seat. Time advances one
// second per move so no turn ever times out.
func simulateGame(seed int64, players int, mode durak.Mode) (statistics.GameResult, bool, error) {
	seats := make([]durak.Seat, players)
	for i := range seats {
		seats[i] = durak.Seat{ID: fmt.Sprintf("bot-%d", i+1), IsBot: true}
	}
	now := time.Unix(0, 0).UTC()
	g, err := durak.NewGame(seats, mode, randutil.New(seed), now, time.Minute)
	if err != nil {
		return statistics.GameResult{}, false, err
	}

	r := statistics.GameResult{Seed: seed, Loser: -1}
	for ; r.Moves < maxSteps && g.Status() == durak.Playing; r.Moves++ {
		now = now.Add(time.Second)
		seat, a, ok := bot.Due(g)
		if !ok {
			return r, false, nil
		}
		if res := g.Apply(seat, a, now); !res.Accepted {
			return r, false, fmt.Errorf("%s %v rejected: %s", seat, a, res.Reason)
		}
	}
	if g.Status() != durak.Finished {
		return r, false, nil
	}

	r.Tricks = g.Tricks()
	if loser := g.Loser(); loser != "" {
		for i, s := range seats {
			if s.ID == loser {
				r.Loser = i
			}
		}
	}
	return r, true, nil
}
