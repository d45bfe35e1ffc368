// Package statistics aggregates the outcomes of simulated durak games
package statistics

import (
	"fmt"
	"math"
	"sort"
)

// GameResult is the outcome of one finished game
type GameResult struct {
	Seed   int64 // RNG seed for this game (for replay)
	Loser  int   // seat index of the durak, -1 for a draw
	Tricks int   // tricks played
	Moves  int   // accepted actions
}

// SeatStats tracks losses for one seat position
type SeatStats struct {
	Losses int
}

// Statistics tracks trick counts and loss rates across games. It is not
// safe for concurrent use.
type Statistics struct {
	Games   int
	Draws   int
	Moves   int
	SumT    float64
	SumT2   float64 // sum of squares for variance
	Values  []float64
	Seats   []SeatStats
	Longest GameResult
}

// New returns statistics for games with the given number of seats
func New(seats int) *Statistics {
	return &Statistics{Seats: make([]SeatStats, seats), Longest: GameResult{Loser: -1}}
}

// Add incorporates one game
func (s *Statistics) Add(r GameResult) {
	t := float64(r.Tricks)
	s.Games++
	s.SumT += t
	s.SumT2 += t * t
	s.Values = append(s.Values, t)
	s.Moves += r.Moves

	if r.Loser < 0 {
		s.Draws++
	} else if r.Loser < len(s.Seats) {
		s.Seats[r.Loser].Losses++
	}
	if s.Games == 1 || r.Tricks > s.Longest.Tricks {
		s.Longest = r
	}
}

// Mean returns the average number of tricks per game
func (s *Statistics) Mean() float64 {
	if s.Games == 0 {
		return 0
	}
	return s.SumT / float64(s.Games)
}

// Variance returns the sample variance of tricks per game
func (s *Statistics) Variance() float64 {
	if s.Games < 2 {
		return 0
	}
	mean := s.Mean()
	return (s.SumT2 - float64(s.Games)*mean*mean) / float64(s.Games-1)
}

// StdDev returns the sample standard deviation of tricks per game
func (s *Statistics) StdDev() float64 {
	return math.Sqrt(max(0, s.Variance()))
}

// StdError returns the standard error of the mean
func (s *Statistics) StdError() float64 {
	if s.Games == 0 {
		return 0
	}
	return s.StdDev() / math.Sqrt(float64(s.Games))
}

// ConfidenceInterval95 returns the 95% confidence interval for the mean
func (s *Statistics) ConfidenceInterval95() (float64, float64) {
	mean := s.Mean()
	margin := 1.96 * s.StdError()
	return mean - margin, mean + margin
}

// MeanMoves returns the average number of accepted actions per game
func (s *Statistics) MeanMoves() float64 {
	if s.Games == 0 {
		return 0
	}
	return float64(s.Moves) / float64(s.Games)
}

// LossRate returns the fraction of games the seat lost
func (s *Statistics) LossRate(seat int) float64 {
	if seat < 0 || seat >= len(s.Seats) || s.Games == 0 {
		return 0
	}
	return float64(s.Seats[seat].Losses) / float64(s.Games)
}

// LossRateCI95 returns the Wilson score interval for a seat's loss rate
func (s *Statistics) LossRateCI95(seat int) (float64, float64) {
	if seat < 0 || seat >= len(s.Seats) || s.Games == 0 {
		return 0, 0
	}
	const z = 1.96
	n := float64(s.Games)
	p := s.LossRate(seat)
	denom := 1 + z*z/n
	centre := (p + z*z/(2*n)) / denom
	margin := z * math.Sqrt(p*(1-p)/n+z*z/(4*n*n)) / denom
	return max(0, centre-margin), min(1, centre+margin)
}

// DrawRate returns the fraction of games nobody lost
func (s *Statistics) DrawRate() float64 {
	if s.Games == 0 {
		return 0
	}
	return float64(s.Draws) / float64(s.Games)
}

// Median returns the median trick count
func (s *Statistics) Median() float64 {
	return s.Percentile(0.5)
}

// Percentile returns the trick count at p (0.0 to 1.0), interpolating
// between neighbours
func (s *Statistics) Percentile(p float64) float64 {
	if len(s.Values) == 0 {
		return 0
	}
	sorted := make([]float64, len(s.Values))
	copy(sorted, s.Values)
	sort.Float64s(sorted)

	index := p * float64(len(sorted)-1)
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}

// Validate checks the counters agree with each other
func (s *Statistics) Validate() error {
	if s.Games <= 0 {
		return fmt.Errorf("invalid games count: %d", s.Games)
	}
	if len(s.Values) != s.Games {
		return fmt.Errorf("values length (%d) does not match games (%d)", len(s.Values), s.Games)
	}
	outcomes := s.Draws
	for _, seat := range s.Seats {
		outcomes += seat.Losses
	}
	if outcomes != s.Games {
		return fmt.Errorf("losses plus draws (%d) does not match games (%d)", outcomes, s.Games)
	}
	return nil
}
