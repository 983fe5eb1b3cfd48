package channel

import (
	"encoding/json"
	"fmt"

	"github.com/cloudzz-dev/cldztalk/internal/client/models"
)

// EventKind identifies one inbound event variant.
type EventKind int

const (
	KindConnected EventKind = iota
	KindDisconnected
	KindNewMessage
	KindUserTyping
	KindUserStoppedTyping
	KindMessageRead
)

// Event is the closed set of things the server (or the transport itself) can
// tell us. Every variant carries a statically known payload; handlers switch
// on the concrete type rather than poking at raw JSON.
type Event interface {
	Kind() EventKind
}

// ConnectedEvent fires when the channel reaches the server, including after
// an automatic reconnect. Dependents use it to re-join their live scope.
type ConnectedEvent struct{}

func (ConnectedEvent) Kind() EventKind { return KindConnected }

type DisconnectedEvent struct {
	Reason string
}

func (DisconnectedEvent) Kind() EventKind { return KindDisconnected }

type NewMessageEvent struct {
	Message models.Message
}

func (NewMessageEvent) Kind() EventKind { return KindNewMessage }

type UserTypingEvent struct {
	ChatID   string
	UserID   string
	Username string
}

func (UserTypingEvent) Kind() EventKind { return KindUserTyping }

type UserStoppedTypingEvent struct {
	ChatID string
	UserID string
}

func (UserStoppedTypingEvent) Kind() EventKind { return KindUserStoppedTyping }

type MessageReadEvent struct {
	MessageID string
	UserID    string
}

func (MessageReadEvent) Kind() EventKind { return KindMessageRead }

// envelope is the wire framing shared by both directions.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	wireNewMessage  = "newMessage"
	wireUserTyping  = "userTyping"
	wireUserStopped = "userStoppedTyping"
	wireMessageRead = "messageRead"
)

// decodeEvent turns a wire envelope into a typed event. Unknown types and
// payloads missing their identifying fields come back as errors; the caller
// logs and drops them without dispatching.
func decodeEvent(env envelope) (Event, error) {
	switch env.Type {
	case wireNewMessage:
		var msg models.Message
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return nil, fmt.Errorf("newMessage payload: %w", err)
		}
		if msg.ID == "" || msg.ChatID == "" {
			return nil, fmt.Errorf("newMessage missing id or chatId")
		}
		return NewMessageEvent{Message: msg}, nil

	case wireUserTyping:
		var p struct {
			ChatID   string `json:"chatId"`
			UserID   string `json:"userId"`
			Username string `json:"username"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("userTyping payload: %w", err)
		}
		if p.UserID == "" {
			return nil, fmt.Errorf("userTyping missing userId")
		}
		return UserTypingEvent{ChatID: p.ChatID, UserID: p.UserID, Username: p.Username}, nil

	case wireUserStopped:
		var p struct {
			ChatID string `json:"chatId"`
			UserID string `json:"userId"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("userStoppedTyping payload: %w", err)
		}
		if p.UserID == "" {
			return nil, fmt.Errorf("userStoppedTyping missing userId")
		}
		return UserStoppedTypingEvent{ChatID: p.ChatID, UserID: p.UserID}, nil

	case wireMessageRead:
		var p struct {
			MessageID string `json:"messageId"`
			UserID    string `json:"userId"`
		}
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("messageRead payload: %w", err)
		}
		if p.MessageID == "" {
			return nil, fmt.Errorf("messageRead missing messageId")
		}
		return MessageReadEvent{MessageID: p.MessageID, UserID: p.UserID}, nil
	}

	return nil, fmt.Errorf("unknown event type %q", env.Type)
}
