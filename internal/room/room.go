package room

import (
	"slices"
	"sync"
	"time"

	"github.com/lox/durak/internal/durak"
	"github.com/lox/durak/internal/events"
	"github.com/lox/durak/internal/money"
)

// Snapshot is the room state published to clients
type Snapshot = events.RoomState

type seat struct {
	id        string
	isBot     bool
	connected bool
}

// Room is one table. Every field is guarded by mu; player actions, bot
// moves, timeouts and settlement all take it, so they apply one at a time
// in arrival order.
type Room struct {
	mu sync.Mutex

	id         string
	mode       durak.Mode
	bet        money.Amount
	maxPlayers int
	creator    string
	createdAt  time.Time

	seats  []seat
	status durak.Status
	game   *durak.Game

	nextBotAt time.Time
	settled   bool
	disposed  bool
}

func (r *Room) seatIndex(id string) int {
	return slices.IndexFunc(r.seats, func(s seat) bool { return s.id == id })
}

func (r *Room) full() bool { return len(r.seats) >= r.maxPlayers }

func (r *Room) humans() []string {
	var out []string
	for _, s := range r.seats {
		if !s.isBot {
			out = append(out, s.id)
		}
	}
	return out
}

func (r *Room) snapshotLocked(viewer string, now time.Time) Snapshot {
	s := Snapshot{
		RoomID:     r.id,
		Viewer:     viewer,
		Status:     r.status,
		Mode:       r.mode,
		Bet:        r.bet,
		MaxPlayers: r.maxPlayers,
		Creator:    r.creator,
		At:         now,
	}
	for _, st := range r.seats {
		s.Seats = append(s.Seats, events.Seat{ID: st.id, IsBot: st.isBot, Connected: st.connected})
	}
	if r.game != nil {
		v := r.game.Snapshot(viewer)
		s.Game = &v
	}
	return s
}
