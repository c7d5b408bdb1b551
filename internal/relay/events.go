package relay

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Event type names as they appear in the "type" field on the wire.
const (
	TypeStartChat    = "start_chat"
	TypeChatMessage  = "chat_message"
	TypeEndChat      = "end_chat"
	TypeOnlineUsers  = "online_users"
	TypeChatStarted  = "chat_started"
	TypeChatEnded    = "chat_ended"
	TypeUserLeftChat = "user_left_chat"
	TypeError        = "error"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Inbound is an event received from a client. The set of implementations is
// closed: StartChat, SendChatMessage and EndChat.
type Inbound interface {
	inboundType() string
}

// StartChat asks the relay to pair the sender with TargetUserID.
type StartChat struct {
	TargetUserID string `json:"target_user_id" validate:"required"`
}

// SendChatMessage relays Content to every participant of ChatID.
type SendChatMessage struct {
	ChatID  string `json:"chat_id" validate:"required"`
	Content string `json:"content"`
}

// EndChat closes ChatID for both participants.
type EndChat struct {
	ChatID string `json:"chat_id" validate:"required"`
}

func (StartChat) inboundType() string       { return TypeStartChat }
func (SendChatMessage) inboundType() string { return TypeChatMessage }
func (EndChat) inboundType() string         { return TypeEndChat }

// DecodeInbound parses one JSON frame into its Inbound variant. Malformed
// frames wrap ErrInvalidEvent; frames with an unrecognised type wrap
// ErrUnknownEventType.
func DecodeInbound(data []byte) (Inbound, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	switch envelope.Type {
	case TypeStartChat:
		return decodeAs[StartChat](data)
	case TypeChatMessage:
		return decodeAs[SendChatMessage](data)
	case TypeEndChat:
		return decodeAs[EndChat](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, envelope.Type)
	}
}

func decodeAs[T Inbound](data []byte) (Inbound, error) {
	var ev T
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, ev.inboundType(), err)
	}
	if err := validate.Struct(ev); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidEvent, ev.inboundType(), err)
	}
	return ev, nil
}

// Outbound is an event pushed to a client sink.
type Outbound interface {
	EventType() string
}

// User is one entry of an online-user list or a chat's participant list.
type User struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}

type OnlineUsers struct {
	Type  string `json:"type"`
	Users []User `json:"users"`
}

type ChatStarted struct {
	Type         string `json:"type"`
	ChatID       string `json:"chat_id"`
	Participants []User `json:"participants"`
}

type ChatMessage struct {
	Type       string `json:"type"`
	ChatID     string `json:"chat_id"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
}

type ChatEnded struct {
	Type    string `json:"type"`
	ChatID  string `json:"chat_id"`
	EndedBy string `json:"ended_by"`
}

type UserLeftChat struct {
	Type   string `json:"type"`
	ChatID string `json:"chat_id"`
	UserID string `json:"user_id"`
}

// ErrorEvent reports protocol misuse to the offending client. It is only
// emitted when the relay is built WithProtocolErrors(true).
type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (OnlineUsers) EventType() string  { return TypeOnlineUsers }
func (ChatStarted) EventType() string  { return TypeChatStarted }
func (ChatMessage) EventType() string  { return TypeChatMessage }
func (ChatEnded) EventType() string    { return TypeChatEnded }
func (UserLeftChat) EventType() string { return TypeUserLeftChat }
func (ErrorEvent) EventType() string   { return TypeError }

func newOnlineUsers(users []User) OnlineUsers {
	if users == nil {
		users = []User{}
	}
	return OnlineUsers{Type: TypeOnlineUsers, Users: users}
}

func newChatStarted(chatID string, participants ...User) ChatStarted {
	return ChatStarted{Type: TypeChatStarted, ChatID: chatID, Participants: participants}
}

func newChatEnded(chatID, endedBy string) ChatEnded {
	return ChatEnded{Type: TypeChatEnded, ChatID: chatID, EndedBy: endedBy}
}

func newUserLeftChat(chatID, userID string) UserLeftChat {
	return UserLeftChat{Type: TypeUserLeftChat, ChatID: chatID, UserID: userID}
}

func newErrorEvent(err error) ErrorEvent {
	return ErrorEvent{Type: TypeError, Code: ErrorCode(err), Message: err.Error()}
}
