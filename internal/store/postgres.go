package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lox/durak/internal/money"
)

//go:embed schema.sql
var schema string

// PostgresStore keeps wallets and records in PostgreSQL. Every settlement is
// a single transaction keyed by its settlement key.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, pings and migrates
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store: postgres driver requires a dsn")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the embedded schema; statements are idempotent
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Balance(ctx context.Context, userID string) (money.Amount, error) {
	var bal int64
	err := s.pool.QueryRow(ctx, `SELECT balance FROM wallets WHERE user_id = $1`, userID).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: balance %s: %w", userID, err)
	}
	return money.Amount(bal), nil
}

func (s *PostgresStore) Credit(ctx context.Context, userID string, amount money.Amount) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	return credit(ctx, s.pool, userID, amount)
}

func (s *PostgresStore) Debit(ctx context.Context, userID string, amount money.Amount) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	return debit(ctx, s.pool, userID, amount)
}

// querier is satisfied by both the pool and a transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func credit(ctx context.Context, db querier, userID string, amount money.Amount) error {
	_, err := db.Exec(ctx, `
		INSERT INTO wallets (user_id, balance) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		   SET balance = wallets.balance + EXCLUDED.balance,
		       updated_at = now()
	`, userID, int64(amount))
	if err != nil {
		return fmt.Errorf("store: credit %s: %w", userID, err)
	}
	return nil
}

func debit(ctx context.Context, db querier, userID string, amount money.Amount) error {
	tag, err := db.Exec(ctx, `
		UPDATE wallets
		   SET balance = balance - $2,
		       updated_at = now()
		 WHERE user_id = $1 AND balance >= $2
	`, userID, int64(amount))
	if err != nil {
		return fmt.Errorf("store: debit %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 && amount > 0 {
		return fmt.Errorf("%w: user %s", ErrInsufficientFunds, userID)
	}
	return nil
}

// ApplySettlement runs the whole settlement in one transaction
func (s *PostgresStore) ApplySettlement(ctx context.Context, st Settlement) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `INSERT INTO settlements (key) VALUES ($1) ON CONFLICT (key) DO NOTHING`, st.Key)
		if err != nil {
			return fmt.Errorf("store: claim settlement %s: %w", st.Key, err)
		}
		if tag.RowsAffected() == 0 {
			return ErrAlreadyApplied
		}

		for _, c := range st.Changes {
			switch {
			case c.Delta > 0:
				err = credit(ctx, tx, c.UserID, c.Delta)
			case c.Delta < 0:
				err = debit(ctx, tx, c.UserID, -c.Delta)
			}
			if err != nil {
				return err
			}
			if _, err := tx.Exec(ctx, `
				INSERT INTO balance_changes (settlement_key, user_id, delta, reason)
				VALUES ($1, $2, $3, $4)
			`, st.Key, c.UserID, int64(c.Delta), c.Reason); err != nil {
				return fmt.Errorf("store: record change: %w", err)
			}
		}

		if m := st.Match; m != nil {
			players, _ := json.Marshal(m.Players)
			winners, _ := json.Marshal(m.Winners)
			if _, err := tx.Exec(ctx, `
				INSERT INTO matches (room_id, mode, bet, players, humans, loser, winners, prize, commission, per_winner, finished_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				ON CONFLICT (room_id) DO NOTHING
			`, m.RoomID, m.Mode, int64(m.Bet), players, m.Humans, m.Loser, winners,
				int64(m.Prize), int64(m.Commission), int64(m.PerWinner), m.FinishedAt); err != nil {
				return fmt.Errorf("store: insert match %s: %w", m.RoomID, err)
			}
		}

		if e := st.Earnings; e != nil {
			if _, err := tx.Exec(ctx, `
				INSERT INTO earnings (source, ref, amount, created_at) VALUES ($1, $2, $3, $4)
			`, e.Source, e.Ref, int64(e.Amount), e.CreatedAt); err != nil {
				return fmt.Errorf("store: insert earnings %s: %w", e.Ref, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) SaveRound(ctx context.Context, r RoundRecord) error {
	bets, err := json.Marshal(r.Bets)
	if err != nil {
		return fmt.Errorf("store: encode bets: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO jackpot_rounds (id, state, bank_red, bank_black, rake, bets, server_seed_hash, server_seed, winner, draw, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE
		   SET state = EXCLUDED.state,
		       bank_red = EXCLUDED.bank_red,
		       bank_black = EXCLUDED.bank_black,
		       bets = EXCLUDED.bets,
		       winner = EXCLUDED.winner,
		       draw = EXCLUDED.draw,
		       updated_at = EXCLUDED.updated_at
	`, r.ID, r.State, int64(r.BankRed), int64(r.BankBlack), int64(r.Rake), bets, r.ServerSeedHash, r.ServerSeed, r.Winner, r.Draw, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: save round %d: %w", r.ID, err)
	}
	return nil
}

func (s *PostgresStore) LatestUnresolvedRound(ctx context.Context) (*RoundRecord, error) {
	var (
		r                  RoundRecord
		bankRed, bankBlack int64
		rake               int64
		bets               []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, state, bank_red, bank_black, rake, bets, server_seed_hash, server_seed, winner, draw, updated_at
		  FROM jackpot_rounds
		 WHERE state <> $1
		 ORDER BY id DESC
		 LIMIT 1
	`, RoundResolved).Scan(&r.ID, &r.State, &bankRed, &bankBlack, &rake, &bets, &r.ServerSeedHash, &r.ServerSeed, &r.Winner, &r.Draw, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: latest unresolved round: %w", err)
	}
	r.BankRed, r.BankBlack = money.Amount(bankRed), money.Amount(bankBlack)
	r.Rake = money.Rate(rake)
	if err := json.Unmarshal(bets, &r.Bets); err != nil {
		return nil, fmt.Errorf("store: decode bets for round %d: %w", r.ID, err)
	}
	return &r, nil
}

func (s *PostgresStore) LastRoundID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM jackpot_rounds`).Scan(&id); err != nil {
		return 0, fmt.Errorf("store: last round id: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
