package server

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/lox/durak/internal/auth"
	"github.com/lox/durak/internal/durak"
	"github.com/lox/durak/internal/jackpot"
	"github.com/lox/durak/internal/money"
	"github.com/lox/durak/internal/room"
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	conn      *websocket.Conn
	send      chan *Message
	playerID  string
	roomID    string
	logger    *log.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.RWMutex
	closeOnce sync.Once
	rooms     Rooms
	jackpot   Jackpot
	auth      auth.Validator
}

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, logger *log.Logger, rooms Rooms, jp Jackpot, validator auth.Validator) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:    conn,
		send:    make(chan *Message, 256),
		logger:  logger.WithPrefix("conn"),
		ctx:     ctx,
		cancel:  cancel,
		rooms:   rooms,
		jackpot: jp,
		auth:    validator,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Done is closed once the connection has shut down
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// SendMessage sends a message to the client
func (c *Connection) SendMessage(msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			// the send channel was closed by a concurrent shutdown
			c.logger.Debug("Attempted to send message on closed connection", "error", r)
			err = ErrConnectionClosed
		}
	}()

	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		c.logger.Warn("Connection send buffer full, closing connection", "player", c.GetPlayer())
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// SetPlayer associates this connection with a player
func (c *Connection) SetPlayer(playerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.playerID = playerID
}

// GetPlayer returns the associated player ID
func (c *Connection) GetPlayer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerID
}

// SetRoom associates this connection with a room
func (c *Connection) SetRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
}

// GetRoom returns the associated room ID
func (c *Connection) GetRoom() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomID
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 8192
)

var ErrConnectionClosed = websocket.ErrCloseSent

func (c *Connection) readPump() {
	defer func() { _ = c.Close() }()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		c.handleMessage(&msg)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// decode unmarshals msg.Data into v, replying with an error when it fails
func decode[T any](c *Connection, msg *Message, v *T) bool {
	if err := json.Unmarshal(msg.Data, v); err != nil {
		c.sendError(msg.RequestID, "invalid_message", "Failed to parse "+msg.Type.String()+" data")
		return false
	}
	return true
}

func (c *Connection) handleMessage(msg *Message) {
	c.logger.Debug("Received message", "type", msg.Type, "player", c.GetPlayer())

	if msg.Type != MessageTypeAuth && c.GetPlayer() == "" {
		c.sendError(msg.RequestID, "not_authenticated", "Must authenticate first")
		return
	}

	switch msg.Type {
	case MessageTypeAuth:
		var data AuthData
		if decode(c, msg, &data) {
			c.handleAuth(msg.RequestID, data)
		}

	case MessageTypeCreateRoom:
		var data CreateRoomData
		if decode(c, msg, &data) {
			c.handleCreateRoom(msg.RequestID, data)
		}

	case MessageTypeJoinRoom:
		var data RoomRefData
		if decode(c, msg, &data) {
			c.handleJoinRoom(msg.RequestID, data)
		}

	case MessageTypeLeaveRoom:
		c.handleLeaveRoom(msg.RequestID)

	case MessageTypeAddBot:
		c.handleAddBot(msg.RequestID)

	case MessageTypeStartGame:
		c.handleStartGame(msg.RequestID)

	case MessageTypeAction:
		var data ActionData
		if decode(c, msg, &data) {
			c.handleAction(msg.RequestID, data)
		}

	case MessageTypeListRooms:
		c.reply(msg.RequestID, MessageTypeRoomList, RoomListData{Rooms: c.rooms.Rooms()})

	case MessageTypePlaceBet:
		var data PlaceBetData
		if decode(c, msg, &data) {
			c.handlePlaceBet(msg.RequestID, data)
		}

	case MessageTypeJackpotState:
		c.reply(msg.RequestID, MessageTypeJackpot, c.jackpot.Snapshot())

	default:
		c.sendError(msg.RequestID, "unknown_message_type", "Unknown message type: "+msg.Type.String())
	}
}

func (c *Connection) reply(requestID string, t MessageType, data any) {
	msg, err := NewMessage(t, data)
	if err != nil {
		c.logger.Error("Failed to create message", "type", t, "error", err)
		return
	}
	msg.RequestID = requestID
	_ = c.SendMessage(msg)
}

func (c *Connection) sendError(requestID, code, message string) {
	c.reply(requestID, MessageTypeError, ErrorData{Code: code, Message: message, RequestID: requestID})
}

func (c *Connection) handleAuth(requestID string, data AuthData) {
	ident, err := c.auth.Validate(c.ctx, data.Token)
	switch {
	case errors.Is(err, auth.ErrInvalidToken):
		c.sendError(requestID, "invalid_auth", "Invalid token")
		return
	case err != nil:
		c.logger.Warn("Identity service unavailable", "error", err)
		c.sendError(requestID, "auth_unavailable", "Authentication is temporarily unavailable")
		return
	}

	playerID := data.PlayerName
	if ident != nil {
		playerID = ident.UserID
	}
	if playerID == "" {
		c.sendError(requestID, "invalid_auth", "Player name required")
		return
	}
	if cur := c.GetPlayer(); cur != "" && cur != playerID {
		c.sendError(requestID, "invalid_auth", "Already authenticated as "+cur)
		return
	}
	c.logger.Info("Auth request", "player", playerID, "verified", ident != nil)
	c.SetPlayer(playerID)
	c.reply(requestID, MessageTypeAuthResponse, AuthResponseData{Success: true, PlayerID: playerID})
}

func (c *Connection) handleCreateRoom(requestID string, data CreateRoomData) {
	if c.GetRoom() != "" {
		c.sendError(requestID, "already_in_room", "Leave your current room first")
		return
	}
	id, err := c.rooms.CreateRoom(c.ctx, room.CreateOptions{
		Bet:        data.Bet,
		Mode:       data.Mode,
		MaxPlayers: data.MaxPlayers,
		Creator:    c.GetPlayer(),
	})
	if err != nil {
		c.sendError(requestID, roomErrorCode(err), err.Error())
		return
	}
	c.SetRoom(id)
	c.reply(requestID, MessageTypeRoomJoined, RoomJoinedData{RoomID: id})
	c.pushSnapshot(id)
}

func (c *Connection) handleJoinRoom(requestID string, data RoomRefData) {
	player := c.GetPlayer()
	if cur := c.GetRoom(); cur != "" && cur != data.RoomID {
		c.sendError(requestID, "already_in_room", "Leave your current room first")
		return
	}

	err := c.rooms.Join(c.ctx, data.RoomID, player)
	if errors.Is(err, room.ErrNotWaiting) || errors.Is(err, room.ErrAlreadySeated) {
		// a seated player coming back after a disconnect
		err = c.rooms.SetConnected(data.RoomID, player, true)
	}
	if err != nil {
		c.sendError(requestID, roomErrorCode(err), err.Error())
		return
	}
	c.SetRoom(data.RoomID)
	c.reply(requestID, MessageTypeRoomJoined, RoomJoinedData{RoomID: data.RoomID})
	c.pushSnapshot(data.RoomID)
}

// pushSnapshot sends the player's own view straight away; later changes
// arrive through events.
func (c *Connection) pushSnapshot(roomID string) {
	s, err := c.rooms.Snapshot(roomID, c.GetPlayer())
	if err != nil {
		return
	}
	c.reply("", MessageTypeRoomState, s)
}

func (c *Connection) handleLeaveRoom(requestID string) {
	roomID := c.GetRoom()
	if roomID == "" {
		c.sendError(requestID, "not_in_room", "Not in a room")
		return
	}
	if err := c.rooms.Leave(roomID, c.GetPlayer()); err != nil && !errors.Is(err, room.ErrRoomNotFound) {
		c.sendError(requestID, roomErrorCode(err), err.Error())
		return
	}
	c.SetRoom("")
	c.reply(requestID, MessageTypeRoomLeft, RoomJoinedData{RoomID: roomID})
}

func (c *Connection) handleAddBot(requestID string) {
	roomID := c.GetRoom()
	if roomID == "" {
		c.sendError(requestID, "not_in_room", "Not in a room")
		return
	}
	botID, err := c.rooms.AddBot(roomID, c.GetPlayer())
	if err != nil {
		c.sendError(requestID, roomErrorCode(err), err.Error())
		return
	}
	c.reply(requestID, MessageTypeBotAdded, BotAddedData{RoomID: roomID, BotID: botID})
}

func (c *Connection) handleStartGame(requestID string) {
	roomID := c.GetRoom()
	if roomID == "" {
		c.sendError(requestID, "not_in_room", "Not in a room")
		return
	}
	if err := c.rooms.Start(roomID, c.GetPlayer()); err != nil {
		c.sendError(requestID, roomErrorCode(err), err.Error())
	}
}

func (c *Connection) handleAction(requestID string, data ActionData) {
	roomID := data.RoomID
	if roomID == "" {
		roomID = c.GetRoom()
	}
	a, err := durak.ParseAction(data.Kind, data.Card)
	if err != nil {
		c.sendError(requestID, "invalid_action", err.Error())
		return
	}
	// rejections come back as notice events
	c.rooms.SubmitAction(roomID, c.GetPlayer(), a)
}

func (c *Connection) handlePlaceBet(requestID string, data PlaceBetData) {
	var amount money.Amount
	if err := amount.UnmarshalJSON(data.Amount); err != nil {
		c.sendError(requestID, jackpot.ErrInvalidAmount.Code, err.Error())
		return
	}
	err := c.jackpot.PlaceBet(c.ctx, c.GetPlayer(), data.Color, amount, data.ClientBetID)
	if err == nil {
		return
	}
	var be *jackpot.BetError
	if errors.As(err, &be) {
		c.sendError(requestID, be.Code, err.Error())
		return
	}
	c.logger.Error("Bet failed", "player", c.GetPlayer(), "error", err)
	c.sendError(requestID, "bet_failed", "Bet could not be processed")
}

func roomErrorCode(err error) string {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, room.ErrRoomFull):
		return "room_full"
	case errors.Is(err, room.ErrNotWaiting):
		return "game_started"
	case errors.Is(err, room.ErrNotCreator):
		return "not_creator"
	case errors.Is(err, room.ErrBotsDisabled):
		return "bots_disabled"
	case errors.Is(err, room.ErrNotEnoughPlayers):
		return "not_enough_players"
	case errors.Is(err, room.ErrInsufficientBalance):
		return "insufficient_funds"
	case errors.Is(err, room.ErrInvalidBet):
		return "invalid_bet"
	case errors.Is(err, room.ErrInvalidMaxPlayers):
		return "invalid_max_players"
	case errors.Is(err, room.ErrNotSeated):
		return "not_seated"
	case errors.Is(err, room.ErrAlreadySeated):
		return "already_seated"
	default:
		return "room_error"
	}
}
