package statistics

import (
	"math"
	"testing"
)

func TestStatistics_Empty(t *testing.T) {
	stats := New(2)

	if stats.Mean() != 0 {
		t.Errorf("Expected mean of 0 for empty stats, got %f", stats.Mean())
	}
	if stats.Variance() != 0 {
		t.Errorf("Expected variance of 0 for empty stats, got %f", stats.Variance())
	}
	if stats.StdError() != 0 {
		t.Errorf("Expected stderr of 0 for empty stats, got %f", stats.StdError())
	}
	if stats.Median() != 0 {
		t.Errorf("Expected median of 0 for empty stats, got %f", stats.Median())
	}
	if lo, hi := stats.LossRateCI95(0); lo != 0 || hi != 0 {
		t.Errorf("Expected empty interval, got [%f, %f]", lo, hi)
	}
	if err := stats.Validate(); err == nil {
		t.Error("Expected validation error for zero games")
	}
}

func TestStatistics_SingleGame(t *testing.T) {
	stats := New(2)
	stats.Add(GameResult{Seed: 12345, Loser: 1, Tricks: 9, Moves: 40})

	if stats.Games != 1 {
		t.Errorf("Expected 1 game, got %d", stats.Games)
	}
	if stats.Mean() != 9 {
		t.Errorf("Expected mean of 9, got %f", stats.Mean())
	}
	if stats.Variance() != 0 {
		t.Errorf("Expected variance of 0 for single value, got %f", stats.Variance())
	}
	if stats.LossRate(1) != 1 || stats.LossRate(0) != 0 {
		t.Errorf("Unexpected loss rates %f / %f", stats.LossRate(0), stats.LossRate(1))
	}
	if stats.Longest.Seed != 12345 {
		t.Errorf("Expected longest game seed 12345, got %d", stats.Longest.Seed)
	}
	if err := stats.Validate(); err != nil {
		t.Errorf("Unexpected validation error: %v", err)
	}
}

func TestStatistics_MultipleGames(t *testing.T) {
	stats := New(3)
	results := []GameResult{
		{Seed: 1, Loser: 0, Tricks: 4, Moves: 20},
		{Seed: 2, Loser: 1, Tricks: 8, Moves: 30},
		{Seed: 3, Loser: -1, Tricks: 6, Moves: 25},
		{Seed: 4, Loser: 0, Tricks: 10, Moves: 45},
		{Seed: 5, Loser: 2, Tricks: 2, Moves: 10},
	}
	for _, r := range results {
		stats.Add(r)
	}

	if stats.Mean() != 6 {
		t.Errorf("Expected mean of 6, got %f", stats.Mean())
	}
	// values 4,8,6,10,2: squared deviations sum to 40, n-1 = 4
	if math.Abs(stats.Variance()-10) > 1e-9 {
		t.Errorf("Expected variance of 10, got %f", stats.Variance())
	}
	if stats.Median() != 6 {
		t.Errorf("Expected median of 6, got %f", stats.Median())
	}
	if stats.Percentile(0.25) != 4 {
		t.Errorf("Expected 25th percentile of 4, got %f", stats.Percentile(0.25))
	}
	if stats.MeanMoves() != 26 {
		t.Errorf("Expected 26 moves per game, got %f", stats.MeanMoves())
	}
	if stats.DrawRate() != 0.2 {
		t.Errorf("Expected draw rate 0.2, got %f", stats.DrawRate())
	}
	if stats.LossRate(0) != 0.4 {
		t.Errorf("Expected seat 0 loss rate 0.4, got %f", stats.LossRate(0))
	}
	if stats.Longest.Seed != 4 {
		t.Errorf("Expected longest game seed 4, got %d", stats.Longest.Seed)
	}

	lo, hi := stats.ConfidenceInterval95()
	if lo >= 6 || hi <= 6 {
		t.Errorf("Expected CI to contain the mean, got [%f, %f]", lo, hi)
	}
	if err := stats.Validate(); err != nil {
		t.Errorf("Unexpected validation error: %v", err)
	}
}

func TestStatistics_LossRateCI95(t *testing.T) {
	stats := New(2)
	for i := range 1000 {
		stats.Add(GameResult{Loser: i % 2, Tricks: 5})
	}
	lo, hi := stats.LossRateCI95(0)
	if lo > 0.5 || hi < 0.5 {
		t.Errorf("Expected interval around 0.5, got [%f, %f]", lo, hi)
	}
	if hi-lo > 0.07 {
		t.Errorf("Expected a tight interval for 1000 games, got width %f", hi-lo)
	}

	allLost := New(2)
	for range 10 {
		allLost.Add(GameResult{Loser: 0, Tricks: 3})
	}
	lo, hi = allLost.LossRateCI95(0)
	if hi < 0.999 || lo <= 0.5 {
		t.Errorf("Expected interval pinned at 1, got [%f, %f]", lo, hi)
	}
}

func TestStatistics_ValidateCatchesMismatch(t *testing.T) {
	stats := New(2)
	stats.Add(GameResult{Loser: 0, Tricks: 3})
	stats.Seats[1].Losses++

	if err := stats.Validate(); err == nil {
		t.Error("Expected validation error for inconsistent losses")
	}
}
