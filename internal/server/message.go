package server

import (
	"encoding/json"
	"time"

	"github.com/lox/durak/internal/durak"
	"github.com/lox/durak/internal/events"
	"github.com/lox/durak/internal/money"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	RequestID string          `json:"requestId,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(messageType MessageType, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// MessageFromEvent wraps a core event for the wire
func MessageFromEvent(e events.Event) (*Message, error) {
	msg, err := NewMessage(MessageType(e.Type()), e)
	if err != nil {
		return nil, err
	}
	msg.Timestamp = e.Time()
	return msg, nil
}

// Client → Server Messages

// AuthData names the player. With an identity service configured the
// token decides the player id and PlayerName is ignored.
type AuthData struct {
	PlayerName string `json:"playerName"`
	Token      string `json:"token,omitempty"`
}

type CreateRoomData struct {
	Bet        money.Amount `json:"bet"`
	Mode       durak.Mode   `json:"mode"`
	MaxPlayers int          `json:"maxPlayers"`
}

type RoomRefData struct {
	RoomID string `json:"roomId"`
}

type ActionData struct {
	RoomID string `json:"roomId"`
	Kind   string `json:"kind"`
	Card   string `json:"card,omitempty"`
}

// PlaceBetData carries the amount undecoded so a malformed stake is reported
// as invalid_amount rather than a malformed message
type PlaceBetData struct {
	Color       string          `json:"color"`
	Amount      json.RawMessage `json:"amount"`
	ClientBetID string          `json:"clientBetId"`
}

// Server → Client Messages

type AuthResponseData struct {
	Success  bool   `json:"success"`
	PlayerID string `json:"playerId,omitempty"`
}

type ErrorData struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
}

type RoomJoinedData struct {
	RoomID string `json:"roomId"`
}

type RoomListData struct {
	Rooms []events.RoomState `json:"rooms"`
}

type BotAddedData struct {
	RoomID string `json:"roomId"`
	BotID  string `json:"botId"`
}
