// Package server exposes rooms and the jackpot over WebSockets and a small
// read-only HTTP API, and fans core events out to connected clients.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/lox/durak/internal/auth"
	"github.com/lox/durak/internal/durak"
	"github.com/lox/durak/internal/events"
	"github.com/lox/durak/internal/money"
	"github.com/lox/durak/internal/room"
	"github.com/lox/durak/internal/store"
)

// Rooms is what the server needs from the room manager
type Rooms interface {
	CreateRoom(ctx context.Context, opts room.CreateOptions) (string, error)
	Join(ctx context.Context, roomID, userID string) error
	Leave(roomID, userID string) error
	SetConnected(roomID, userID string, connected bool) error
	AddBot(roomID, requester string) (string, error)
	Start(roomID, requester string) error
	SubmitAction(roomID, actorID string, a durak.Action)
	Snapshot(roomID, viewer string) (room.Snapshot, error)
	Rooms() []room.Snapshot
}

// Jackpot is what the server needs from the jackpot engine
type Jackpot interface {
	PlaceBet(ctx context.Context, userID, colour string, amount money.Amount, clientBetID string) error
	Snapshot() events.JackpotState
	Round(id int64) (store.RoundRecord, bool)
}

// Server represents the WebSocket and HTTP server
type Server struct {
	addr        string
	upgrader    websocket.Upgrader
	connections map[*Connection]bool
	register    chan *Connection
	unregister  chan *Connection
	stopped     chan struct{}
	logger      *log.Logger
	mu          sync.RWMutex
	rooms       Rooms
	jackpot     Jackpot
	handler     http.Handler
	auth        auth.Validator
}

// Option customises a Server
type Option func(*Server)

// WithAuth resolves player identity through v instead of trusting the
// name a client claims
func WithAuth(v auth.Validator) Option {
	return func(s *Server) { s.auth = v }
}

// NewServer creates a server; call Subscribe to start receiving events
func NewServer(addr string, rooms Rooms, jp Jackpot, logger *log.Logger, opts ...Option) *Server {
	s := &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stopped:     make(chan struct{}),
		logger:      logger.WithPrefix("server"),
		rooms:       rooms,
		jackpot:     jp,
		auth:        auth.NewNoopValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = s.routes()
	return s
}

// Handler returns the HTTP handler with every route mounted
func (s *Server) Handler() http.Handler { return s.handler }

// Subscribe attaches the server to an event bus and returns the detach func
func (s *Server) Subscribe(bus events.Bus) func() {
	return bus.Subscribe(s)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.run(ctx)
		return nil
	})
	g.Go(func() error {
		s.logger.Info("Starting server", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.closeAll()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// run handles connection lifecycle
func (s *Server) run(ctx context.Context) {
	defer close(s.stopped)
	for {
		select {
		case conn := <-s.register:
			s.mu.Lock()
			s.connections[conn] = true
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info("Client connected", "total", total)

		case conn := <-s.unregister:
			s.mu.Lock()
			_, ok := s.connections[conn]
			delete(s.connections, conn)
			total := len(s.connections)
			s.mu.Unlock()
			if !ok {
				continue
			}

			// outside s.mu: Leave publishes events back into OnEvent
			if playerID, roomID := conn.GetPlayer(), conn.GetRoom(); playerID != "" && roomID != "" && !s.playerOnline(playerID, roomID) {
				s.logger.Info("Cleaning up disconnected player", "player", playerID, "room", roomID)
				_ = s.rooms.Leave(roomID, playerID)
			}
			_ = conn.Close()
			s.logger.Info("Client disconnected", "total", total)

		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.connections {
		_ = conn.Close()
	}
}

// playerOnline reports whether another connection still carries the player
func (s *Server) playerOnline(playerID, roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.connections {
		if conn.GetPlayer() == playerID && conn.GetRoom() == roomID {
			return true
		}
	}
	return false
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, s.logger, s.rooms, s.jackpot, s.auth)
	select {
	case s.register <- client:
	case <-s.stopped:
		_ = client.Close()
		return
	}
	client.Start()

	go func() {
		<-client.Done()
		select {
		case s.unregister <- client:
		case <-s.stopped:
		}
	}()
}

// OnEvent routes a core event to the connections that should see it
func (s *Server) OnEvent(e events.Event) {
	msg, err := MessageFromEvent(e)
	if err != nil {
		s.logger.Error("Failed to encode event", "type", e.Type(), "error", err)
		return
	}

	var match func(c *Connection) bool
	switch ev := e.(type) {
	case events.RoomState:
		if ev.Viewer != "" {
			match = func(c *Connection) bool { return c.GetRoom() == ev.RoomID && c.GetPlayer() == ev.Viewer }
		} else {
			// spectators get the public view; seated humans get their own
			seated := make([]string, 0, len(ev.Seats))
			for _, st := range ev.Seats {
				if !st.IsBot {
					seated = append(seated, st.ID)
				}
			}
			match = func(c *Connection) bool {
				return c.GetRoom() == ev.RoomID && !slices.Contains(seated, c.GetPlayer())
			}
		}
	case events.Notice:
		match = func(c *Connection) bool { return c.GetPlayer() == ev.To }
	case events.BetAccepted:
		match = func(c *Connection) bool { return c.GetPlayer() == ev.UserID }
	case events.MatchSettled:
		match = func(c *Connection) bool { return c.GetRoom() == ev.RoomID }
	case events.RoomClosed:
		match = func(c *Connection) bool {
			if c.GetRoom() != ev.RoomID {
				return false
			}
			c.SetRoom("")
			return true
		}
	default:
		match = func(*Connection) bool { return true }
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for conn := range s.connections {
		if !match(conn) {
			continue
		}
		if err := conn.SendMessage(msg); err != nil {
			s.logger.Debug("Failed to send message to client", "error", err, "player", conn.GetPlayer())
			continue
		}
		count++
	}
	s.logger.Debug("Delivered event", "type", e.Type(), "recipients", count)
}

// ConnectedPlayers returns the authenticated player ids currently online
func (s *Server) ConnectedPlayers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var players []string
	for conn := range s.connections {
		if id := conn.GetPlayer(); id != "" {
			players = append(players, id)
		}
	}
	slices.Sort(players)
	return players
}
