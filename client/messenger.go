package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Amoura/internal/chat"
	"Amoura/internal/event"
	"Amoura/internal/model"

	"go.uber.org/zap"
)

// SendFailure is returned when a send fails after the optimistic
// placeholder was shown. Draft carries the rolled-back text so the
// input box can be restored for retry; the cause keeps the taxonomy
// code (a BLOCKED or INSUFFICIENT_BALANCE cause drives its own UI
// path, anything else gets the generic retry affordance).
type SendFailure struct {
	Draft string
	Cause error
}

func (e *SendFailure) Error() string {
	return fmt.Sprintf("send failed: %v", e.Cause)
}

func (e *SendFailure) Unwrap() error {
	return e.Cause
}

// Messenger coordinates the session, the REST client and the sync
// cache into the device-side messaging surface. Push events flow
// session → cache through listeners registered once here; the UI only
// reads the cache.
type Messenger struct {
	selfID  string
	api     *API
	session *Session
	cache   *Cache
	logger  *zap.Logger
}

// NewMessenger wires the listeners. Ids are fixed, so rebuilding a
// Messenger over the same session replaces rather than duplicates
// them.
func NewMessenger(selfID string, api *API, session *Session, cache *Cache, logger *zap.Logger) *Messenger {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Messenger{
		selfID:  selfID,
		api:     api,
		session: session,
		cache:   cache,
		logger:  logger,
	}

	session.On(event.KindMessageDelivered, "cache-delivered", func(payload any) {
		if p, ok := payload.(event.MessagePayload); ok {
			m.cache.ApplyDelivered(p)
		}
	})
	session.On(event.KindMessageSent, "cache-sent", func(payload any) {
		if p, ok := payload.(event.MessagePayload); ok {
			m.cache.ConfirmSend(p)
		}
	})
	session.On(event.KindPresenceChanged, "cache-presence", func(payload any) {
		if p, ok := payload.(event.PresencePayload); ok {
			m.cache.ApplyPresence(p)
		}
	})
	session.On(event.KindConversationDeleted, "cache-deleted", func(payload any) {
		if p, ok := payload.(event.ConversationDeletedPayload); ok {
			m.cache.ApplyConversationDeleted(p.ConversationKey)
		}
	})

	// every transition into Joined (first connect and every reconnect)
	// refetches the authoritative list, healing anything missed while
	// the connection was down
	session.OnStateChange("cache-rejoin-refresh", func(st State) {
		if st != StateJoined {
			return
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := m.Refresh(ctx); err != nil {
				m.logger.Warn("post-join refresh failed", zap.Error(err))
			}
		}()
	})

	return m
}

// Send performs an optimistic send: placeholder first, then the REST
// call, then reconciliation or rollback.
func (m *Messenger) Send(ctx context.Context, receiverID, text, imageURL string) (*model.Message, error) {
	key := chat.Key(m.selfID, receiverID)
	pendingID := m.cache.BeginSend(key, receiverID, text, imageURL)

	msg, err := m.api.Send(ctx, receiverID, text, imageURL)
	if err != nil {
		draft, _ := m.cache.RollbackSend(key, pendingID)
		return nil, &SendFailure{Draft: draft, Cause: err}
	}

	m.cache.ConfirmSend(event.MessagePayload{
		ID:              msg.ID.Hex(),
		ConversationKey: msg.ConversationKey,
		SenderID:        msg.SenderID,
		ReceiverID:      msg.ReceiverID,
		Text:            msg.Text,
		ImageURL:        imageURLOf(msg),
		CreatedAt:       msg.CreatedAt,
	})
	return msg, nil
}

// OpenConversation loads the newest page into the cache.
func (m *Messenger) OpenConversation(ctx context.Context, otherUserID string) error {
	page, err := m.api.Conversation(ctx, otherUserID, 1)
	if err != nil {
		return err
	}
	m.cache.LoadPage(chat.Key(m.selfID, otherUserID), page)
	return nil
}

// LoadOlder fetches the next page backward and prepends it. Returns
// false when the conversation start was already reached.
func (m *Messenger) LoadOlder(ctx context.Context, otherUserID string) (bool, error) {
	key := chat.Key(m.selfID, otherUserID)
	t, ok := m.cache.Thread(key)
	if !ok || !t.HasMore() {
		return false, nil
	}

	page, err := m.api.Conversation(ctx, otherUserID, t.page+1)
	if err != nil {
		return false, err
	}
	m.cache.LoadPage(key, page)
	return true, nil
}

// MarkRead zeroes the local mirror immediately and issues the server
// acknowledgment with its short hard timeout. A timed-out ack is
// abandoned, never retried; the next Refresh reconciles.
func (m *Messenger) MarkRead(ctx context.Context, otherUserID string) {
	m.cache.MarkReadLocal(chat.Key(m.selfID, otherUserID))

	if err := m.api.MarkRead(ctx, otherUserID); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			m.logger.Debug("read ack abandoned", zap.String("other_user_id", otherUserID))
			return
		}
		m.logger.Warn("read ack failed", zap.Error(err))
	}
}

// Refresh replaces the chat list from server truth.
func (m *Messenger) Refresh(ctx context.Context) error {
	entries, err := m.api.ChatList(ctx)
	if err != nil {
		return err
	}
	m.cache.RefreshChatList(entries)
	return nil
}

// DeleteConversation tombstones the thread server-side and drops it
// locally.
func (m *Messenger) DeleteConversation(ctx context.Context, conversationKey string) error {
	if err := m.api.DeleteConversation(ctx, conversationKey); err != nil {
		return err
	}
	m.cache.ApplyConversationDeleted(conversationKey)
	return nil
}

func imageURLOf(msg *model.Message) string {
	if msg.ImageURL != nil {
		return *msg.ImageURL
	}
	return ""
}
