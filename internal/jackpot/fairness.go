package jackpot

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"strconv"

	"github.com/lox/durak/internal/money"
)

// SeedSize is the number of random bytes behind a server seed
const SeedSize = 32

const drawBits = 53

// ErrCommitMismatch is returned when a revealed seed does not hash to the
// published commitment
var ErrCommitMismatch = errors.New("jackpot: seed does not match commitment")

// NewSeed reads a fresh hex-encoded server seed from r, or from crypto/rand
// when r is nil.
func NewSeed(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	b := make([]byte, SeedSize)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("jackpot: read seed: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Commit returns the public commitment for a seed: hex(SHA-256(seed)), where
// seed is the hex string exactly as it is revealed.
func Commit(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// DrawBits returns the top 53 bits of HMAC-SHA256(key=seed, "round:<id>")
func DrawBits(seed string, roundID int64) uint64 {
	mac := hmac.New(sha256.New, []byte(seed))
	mac.Write([]byte("round:" + strconv.FormatInt(roundID, 10)))
	sum := mac.Sum(nil)
	return binary.BigEndian.Uint64(sum[:8]) >> (64 - drawBits)
}

// Draw maps DrawBits onto [0, 1)
func Draw(seed string, roundID int64) float64 {
	return float64(DrawBits(seed, roundID)) / (1 << drawBits)
}

// Pick chooses the winning colour for a draw. Red wins iff
// draw × total < bankRed, compared exactly as 128-bit integers.
func Pick(draw uint64, bankRed, bankBlack money.Amount) Color {
	total := uint64(bankRed) + uint64(bankBlack)
	if total == 0 {
		return ""
	}
	lhsHi, lhsLo := bits.Mul64(draw, total)
	red := uint64(bankRed)
	rhsHi, rhsLo := red>>(64-drawBits), red<<drawBits
	if lhsHi < rhsHi || (lhsHi == rhsHi && lhsLo < rhsLo) {
		return Red
	}
	return Black
}

// Verification is the recomputed outcome of a round
type Verification struct {
	RoundID   int64        `json:"round_id"`
	Commit    string       `json:"server_seed_hash"`
	Draw      float64      `json:"draw"`
	Winner    Color        `json:"winner"`
	BankRed   money.Amount `json:"bank_red"`
	BankBlack money.Amount `json:"bank_black"`
}

// Verify checks a revealed seed against its commitment and recomputes the
// draw and winner from the round's banks.
func Verify(seed, commit string, roundID int64, bankRed, bankBlack money.Amount) (Verification, error) {
	if bankRed < 0 || bankBlack < 0 {
		return Verification{}, fmt.Errorf("jackpot: negative bank")
	}
	if !hmac.Equal([]byte(Commit(seed)), []byte(commit)) {
		return Verification{}, ErrCommitMismatch
	}
	d := DrawBits(seed, roundID)
	return Verification{
		RoundID:   roundID,
		Commit:    commit,
		Draw:      float64(d) / (1 << drawBits),
		Winner:    Pick(d, bankRed, bankBlack),
		BankRed:   bankRed,
		BankBlack: bankBlack,
	}, nil
}
