package jackpot

import (
	"math/big"
	"sort"

	"github.com/lox/durak/internal/events"
	"github.com/lox/durak/internal/money"
)

// Stake is one winning-colour bet, in the order it was placed
type Stake struct {
	UserID string
	Amount money.Amount
}

// Payout is one user's share of the pool
type Payout = events.Payout

type share struct {
	userID string
	stake  money.Amount
	order  int
	amount money.Amount
	// rounding error as a numerator over the winning total: raw - amount
	err int64
}

// Allocate splits pool across stakes pro rata. Stakes from the same user are
// combined. Each share is rounded half-up to the minor unit and the
// difference to pool is then handed out one unit at a time, largest rounding
// error first, so the payouts always sum to pool exactly.
func Allocate(pool money.Amount, stakes []Stake) []Payout {
	shares, total := aggregate(stakes)
	if len(shares) == 0 || total <= 0 || pool <= 0 {
		return nil
	}

	den := big.NewInt(int64(total))
	var sum money.Amount
	for _, s := range shares {
		num := new(big.Int).Mul(big.NewInt(int64(s.stake)), big.NewInt(int64(pool)))
		q, r := new(big.Int).QuoRem(num, den, new(big.Int))
		s.amount = money.Amount(q.Int64())
		s.err = r.Int64()
		if 2*s.err >= int64(total) {
			s.amount++
			s.err -= int64(total)
		}
		sum += s.amount
	}

	diff := pool - sum
	if diff != 0 {
		order := make([]*share, len(shares))
		copy(order, shares)
		up := diff > 0
		sort.SliceStable(order, func(i, j int) bool {
			a, b := order[i], order[j]
			if a.err != b.err {
				if up {
					return a.err > b.err
				}
				return a.err < b.err
			}
			if a.stake != b.stake {
				return a.stake > b.stake
			}
			return a.order < b.order
		})
		for i := 0; diff != 0; i = (i + 1) % len(order) {
			s := order[i]
			if up {
				s.amount++
				diff--
			} else if s.amount > 0 {
				s.amount--
				diff++
			}
		}
	}

	out := make([]Payout, len(shares))
	for i, s := range shares {
		out[i] = Payout{UserID: s.userID, Amount: s.amount}
	}
	return out
}

func aggregate(stakes []Stake) ([]*share, money.Amount) {
	var (
		shares []*share
		byUser = make(map[string]*share)
		total  money.Amount
	)
	for _, st := range stakes {
		if st.Amount <= 0 {
			continue
		}
		total += st.Amount
		if s, ok := byUser[st.UserID]; ok {
			s.stake += st.Amount
			continue
		}
		s := &share{userID: st.UserID, stake: st.Amount, order: len(shares)}
		byUser[st.UserID] = s
		shares = append(shares, s)
	}
	return shares, total
}
