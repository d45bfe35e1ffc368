package server

import "github.com/lox/durak/internal/events"

// MessageType represents a WebSocket message type with type safety
type MessageType string

const (
	// Client to server messages
	MessageTypeAuth         MessageType = "auth"
	MessageTypeCreateRoom   MessageType = "create_room"
	MessageTypeJoinRoom     MessageType = "join_room"
	MessageTypeLeaveRoom    MessageType = "leave_room"
	MessageTypeAddBot       MessageType = "add_bot"
	MessageTypeStartGame    MessageType = "start_game"
	MessageTypeAction       MessageType = "action"
	MessageTypeListRooms    MessageType = "list_rooms"
	MessageTypePlaceBet     MessageType = "place_bet"
	MessageTypeJackpotState MessageType = "get_jackpot"

	// Server to client messages
	MessageTypeError         MessageType = "error"
	MessageTypeAuthResponse  MessageType = "auth_response"
	MessageTypeRoomJoined    MessageType = "room_joined"
	MessageTypeRoomLeft      MessageType = "room_left"
	MessageTypeRoomList      MessageType = "room_list"
	MessageTypeBotAdded      MessageType = "bot_added"
	MessageTypeRoomState     MessageType = MessageType(events.TypeRoomState)
	MessageTypeNotice        MessageType = MessageType(events.TypeNotice)
	MessageTypeMatchSettled  MessageType = MessageType(events.TypeMatchSettled)
	MessageTypeRoomClosed    MessageType = MessageType(events.TypeRoomClosed)
	MessageTypeJackpot       MessageType = MessageType(events.TypeJackpotState)
	MessageTypeJackpotResult MessageType = MessageType(events.TypeJackpotResult)
	MessageTypeBetAccepted   MessageType = MessageType(events.TypeBetAccepted)
)

// String returns the string representation of the message type
func (mt MessageType) String() string {
	return string(mt)
}
