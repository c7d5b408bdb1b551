package relay

import "errors"

var (
	// ErrSinkClosed is returned by a Sink whose connection is gone.
	ErrSinkClosed = errors.New("sink closed")
	// ErrSinkFull is returned by a Sink whose outbound queue is saturated.
	ErrSinkFull = errors.New("sink queue full")

	ErrInvalidEvent     = errors.New("invalid event")
	ErrUnknownEventType = errors.New("unknown event type")
	ErrTargetOffline    = errors.New("target user is not online")
	ErrUnknownChat      = errors.New("unknown chat")
	ErrChatConflict     = errors.New("chat id already used by another pair")
	ErrRateLimited      = errors.New("rate limited")
)

// Error codes carried by ErrorEvent.
const (
	CodeInvalidEvent  = "invalid_event"
	CodeUnknownEvent  = "unknown_event"
	CodeTargetOffline = "target_offline"
	CodeUnknownChat   = "unknown_chat"
	CodeChatConflict  = "chat_conflict"
	CodeRateLimited   = "rate_limited"
	CodeInternal      = "internal"
)

// ErrorCode maps a protocol error to the code reported to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidEvent):
		return CodeInvalidEvent
	case errors.Is(err, ErrUnknownEventType):
		return CodeUnknownEvent
	case errors.Is(err, ErrTargetOffline):
		return CodeTargetOffline
	case errors.Is(err, ErrUnknownChat):
		return CodeUnknownChat
	case errors.Is(err, ErrChatConflict):
		return CodeChatConflict
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	default:
		return CodeInternal
	}
}
