package main

import (
	"errors"
	"fmt"

	"github.com/lox/durak/internal/jackpot"
	"github.com/lox/durak/internal/money"
)

// VerifyCmd recomputes a jackpot result offline. It needs only what the
// server publishes: the commitment before the round and the seed after it.
type VerifyCmd struct {
	Seed   string `kong:"arg,help='Revealed server seed (hex)'"`
	Hash   string `kong:"arg,help='Server seed hash published when the round opened'"`
	Round  int64  `kong:"required,help='Round id'"`
	Red    string `kong:"required,help='Red bank, e.g. 12.50'"`
	Black  string `kong:"required,help='Black bank, e.g. 7.25'"`
	Winner string `kong:"help='Winner the server announced; checked when given'"`
}

func (c *VerifyCmd) Run() error {
	red, err := money.Parse(c.Red)
	if err != nil {
		return fmt.Errorf("red bank: %w", err)
	}
	black, err := money.Parse(c.Black)
	if err != nil {
		return fmt.Errorf("black bank: %w", err)
	}

	v, err := jackpot.Verify(c.Seed, c.Hash, c.Round, red, black)
	if errors.Is(err, jackpot.ErrCommitMismatch) {
		return fmt.Errorf("round %d: seed does not hash to %s", c.Round, c.Hash)
	}
	if err != nil {
		return err
	}

	fmt.Printf("round:   %d\n", v.RoundID)
	fmt.Printf("hash:    %s (ok)\n", v.Commit)
	fmt.Printf("draw:    %.15f\n", v.Draw)
	fmt.Printf("banks:   red %s / black %s\n", v.BankRed, v.BankBlack)
	if v.Winner == "" {
		fmt.Println("winner:  none (empty round)")
	} else {
		fmt.Printf("winner:  %s\n", v.Winner)
	}

	if c.Winner != "" {
		announced, err := jackpot.ParseColor(c.Winner)
		if err != nil {
			return err
		}
		if announced != v.Winner {
			return fmt.Errorf("announced winner %s does not match computed %s", announced, v.Winner)
		}
		fmt.Println("announced winner matches")
	}
	return nil
}
