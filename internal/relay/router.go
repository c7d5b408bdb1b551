package relay

import (
	"fmt"
	"time"
)

// route dispatches one event from the registration h. The caller holds r.mu.
func (r *Relay) route(h Handle, from *entry, ev Inbound) {
	switch ev := ev.(type) {
	case StartChat:
		r.startChat(h, from, ev)
	case SendChatMessage:
		r.chatMessage(h, from, ev)
	case EndChat:
		r.endChat(h, ev)
	default:
		r.protocolError(h, fmt.Errorf("%w: %T", ErrUnknownEventType, ev))
	}
}

func (r *Relay) startChat(h Handle, from *entry, ev StartChat) {
	if ev.TargetUserID == h.UserID {
		r.protocolError(h, fmt.Errorf("%w: cannot start a chat with yourself", ErrInvalidEvent))
		return
	}
	target, ok := r.registry.lookup(ev.TargetUserID)
	if !ok {
		r.protocolError(h, fmt.Errorf("%w: %s", ErrTargetOffline, ev.TargetUserID))
		return
	}

	chatID, ok := r.sessions.Open(h.UserID, ev.TargetUserID)
	if !ok {
		r.protocolError(h, fmt.Errorf("%w: %s", ErrChatConflict, chatID))
		return
	}
	started := newChatStarted(chatID,
		User{UserID: h.UserID, Name: from.name},
		User{UserID: ev.TargetUserID, Name: target.name},
	)
	r.log.Info("Chat started", "chat_id", chatID, "user_id", h.UserID, "target", ev.TargetUserID)

	r.registry.send(h.UserID, started)
	r.registry.send(ev.TargetUserID, started)
}

// chatMessage fans the message out to every participant, the sender included.
func (r *Relay) chatMessage(h Handle, from *entry, ev SendChatMessage) {
	participants := r.sessions.ParticipantsOf(ev.ChatID)
	if len(participants) == 0 {
		r.protocolError(h, fmt.Errorf("%w: %s", ErrUnknownChat, ev.ChatID))
		return
	}

	msg := ChatMessage{
		Type:       TypeChatMessage,
		ChatID:     ev.ChatID,
		SenderID:   h.UserID,
		SenderName: from.name,
		Content:    ev.Content,
		Timestamp:  r.now().UTC().Format(time.RFC3339Nano),
	}
	for _, id := range participants {
		r.registry.send(id, msg)
	}
}

func (r *Relay) endChat(h Handle, ev EndChat) {
	participants := r.sessions.ParticipantsOf(ev.ChatID)
	if len(participants) == 0 {
		r.protocolError(h, fmt.Errorf("%w: %s", ErrUnknownChat, ev.ChatID))
		return
	}

	ended := newChatEnded(ev.ChatID, h.UserID)
	for _, id := range participants {
		r.registry.send(id, ended)
	}
	r.sessions.Close(ev.ChatID)
	r.log.Info("Chat ended", "chat_id", ev.ChatID, "user_id", h.UserID)
}

// protocolError records misuse by h. The connection always stays open; the
// sender only hears about it when error reporting is enabled.
func (r *Relay) protocolError(h Handle, err error) {
	code := ErrorCode(err)
	r.metrics.ProtocolErrors.WithLabelValues(code).Inc()
	r.log.Debug("Ignoring protocol misuse", "user_id", h.UserID, "code", code, "err", err)
	if r.reportErrors {
		r.registry.send(h.UserID, newErrorEvent(err))
	}
}
