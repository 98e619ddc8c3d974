package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Kind is the closed set of event names crossing the socket. Payload
// shapes are fixed per kind; anything else is rejected at the boundary.
type Kind string

const (
	// client -> server
	KindJoin   Kind = "join"
	KindLeave  Kind = "leave"
	KindTyping Kind = "typing"

	// server -> client
	KindMessageDelivered    Kind = "message-delivered"
	KindMessageSent         Kind = "message-sent"
	KindPresenceChanged     Kind = "presence-changed"
	KindConversationDeleted Kind = "conversation-deleted"
	KindError               Kind = "error"
)

var ErrUnknownKind = errors.New("unknown event kind")

// Envelope is the wire format for every socket event.
type Envelope struct {
	Event   Kind            `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// JoinPayload re-registers a user handle after every (re)connect.
type JoinPayload struct {
	UserID string `json:"userId"`
}

// LeavePayload is the explicit set-offline emitted at logout.
type LeavePayload struct {
	UserID string `json:"userId"`
}

// TypingPayload is relayed hub-only, never persisted.
type TypingPayload struct {
	ConversationKey string `json:"conversationKey"`
	UserID          string `json:"userId"`
	IsTyping        bool   `json:"isTyping"`
}

// MessagePayload carries a server-confirmed message. Used by both
// message-delivered (to the receiver) and message-sent (to the
// sender's other handles).
type MessagePayload struct {
	ID              string    `json:"id"`
	ConversationKey string    `json:"conversationKey"`
	SenderID        string    `json:"senderId"`
	ReceiverID      string    `json:"receiverId"`
	Text            string    `json:"text"`
	ImageURL        string    `json:"imageUrl,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

// PresencePayload announces an online/offline flip.
type PresencePayload struct {
	UserID     string    `json:"userId"`
	IsOnline   bool      `json:"isOnline"`
	LastActive time.Time `json:"lastActive"`
}

// ConversationDeletedPayload tells the deleting user's other handles
// to drop the thread locally.
type ConversationDeletedPayload struct {
	ConversationKey string `json:"conversationKey"`
	UserID          string `json:"userId"`
}

// ErrorPayload is a server-side failure surfaced on the socket.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// New wraps a payload into an envelope. Marshal failures cannot happen
// for the closed payload set, so the error is collapsed.
func New(kind Kind, payload any) Envelope {
	raw, _ := json.Marshal(payload)
	return Envelope{Event: kind, Payload: raw}
}

func (e Envelope) decode(v any) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Event, err)
	}
	return nil
}

// Decode parses the envelope payload into the typed struct for its
// kind and validates the fields the core depends on. Unknown kinds are
// rejected so a misbehaving peer cannot inject arbitrary shapes.
func (e Envelope) Decode() (any, error) {
	switch e.Event {
	case KindJoin:
		var p JoinPayload
		if err := e.decode(&p); err != nil {
			return nil, err
		}
		if p.UserID == "" {
			return nil, fmt.Errorf("%s: missing userId", e.Event)
		}
		return p, nil
	case KindLeave:
		var p LeavePayload
		if err := e.decode(&p); err != nil {
			return nil, err
		}
		if p.UserID == "" {
			return nil, fmt.Errorf("%s: missing userId", e.Event)
		}
		return p, nil
	case KindTyping:
		var p TypingPayload
		if err := e.decode(&p); err != nil {
			return nil, err
		}
		if p.ConversationKey == "" || p.UserID == "" {
			return nil, fmt.Errorf("%s: missing conversationKey or userId", e.Event)
		}
		return p, nil
	case KindMessageDelivered, KindMessageSent:
		var p MessagePayload
		if err := e.decode(&p); err != nil {
			return nil, err
		}
		if p.ID == "" || p.ConversationKey == "" || p.SenderID == "" {
			return nil, fmt.Errorf("%s: incomplete message payload", e.Event)
		}
		return p, nil
	case KindPresenceChanged:
		var p PresencePayload
		if err := e.decode(&p); err != nil {
			return nil, err
		}
		if p.UserID == "" {
			return nil, fmt.Errorf("%s: missing userId", e.Event)
		}
		return p, nil
	case KindConversationDeleted:
		var p ConversationDeletedPayload
		if err := e.decode(&p); err != nil {
			return nil, err
		}
		if p.ConversationKey == "" {
			return nil, fmt.Errorf("%s: missing conversationKey", e.Event)
		}
		return p, nil
	case KindError:
		var p ErrorPayload
		if err := e.decode(&p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, e.Event)
	}
}
