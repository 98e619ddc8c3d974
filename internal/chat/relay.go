package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Amoura/internal/event"
	"Amoura/internal/model"
	"Amoura/internal/notify"
	"Amoura/internal/repo"
	"Amoura/internal/wallet"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Pusher is the live fan-out surface the relay drives. The hub
// implements it; tests substitute a fake.
type Pusher interface {
	DeliverToUser(userID string, ev event.Envelope) bool
	Broadcast(ev event.Envelope)
	IsOnline(userID string) bool
}

// Costs holds the diamond price per send tier.
type Costs struct {
	Text  int64
	Image int64
}

// DefaultCosts are used when the config leaves tiers unset.
var DefaultCosts = Costs{Text: 100, Image: 500}

// Service is the messaging core: the relay write path plus the read
// surfaces the chat UI consumes.
type Service struct {
	messages      repo.MessageRepository
	conversations repo.ConversationRepository
	users         repo.UserRepository
	guard         *Guard
	wallet        wallet.Service
	notifier      notify.Notifier
	pusher        Pusher
	costs         Costs
	logger        *zap.Logger
}

func NewService(
	messages repo.MessageRepository,
	conversations repo.ConversationRepository,
	users repo.UserRepository,
	guard *Guard,
	w wallet.Service,
	notifier notify.Notifier,
	pusher Pusher,
	costs Costs,
	logger *zap.Logger,
) *Service {
	if costs.Text <= 0 {
		costs.Text = DefaultCosts.Text
	}
	if costs.Image <= 0 {
		costs.Image = DefaultCosts.Image
	}
	return &Service{
		messages:      messages,
		conversations: conversations,
		users:         users,
		guard:         guard,
		wallet:        w,
		notifier:      notifier,
		pusher:        pusher,
		costs:         costs,
		logger:        logger,
	}
}

// Send is the only write path for messages. Order of effects: validate,
// block check, atomic debit, persist, summary upsert, fan-out, then the
// notify decision. The first three reject before anything persists.
func (s *Service) Send(ctx context.Context, senderID, receiverID, text string, imageURL string) (*model.Message, error) {
	if senderID == receiverID {
		return nil, ErrValidation("cannot message yourself")
	}
	if receiverID == "" {
		return nil, ErrValidation("missing receiver")
	}
	if text == "" && imageURL == "" {
		return nil, ErrValidation("empty message")
	}

	ok, err := s.guard.CanDeliver(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBlocked()
	}

	cost := s.costs.Text
	if imageURL != "" {
		cost = s.costs.Image
	}

	if _, err := s.wallet.Debit(ctx, senderID, cost); err != nil {
		if errors.Is(err, wallet.ErrInsufficient) {
			balance, balErr := s.wallet.GetBalance(ctx, senderID)
			if balErr != nil {
				balance = 0
			}
			return nil, ErrInsufficientBalance(cost, balance)
		}
		if errors.Is(err, wallet.ErrUserNotFound) {
			return nil, ErrNotFound("sender")
		}
		return nil, fmt.Errorf("debit: %w", err)
	}

	msg := &model.Message{
		ConversationKey: Key(senderID, receiverID),
		SenderID:        senderID,
		ReceiverID:      receiverID,
		Text:            text,
		CreatedAt:       time.Now().UTC(),
		Read:            false,
		DeletedFor:      []string{},
	}
	if imageURL != "" {
		msg.ImageURL = &imageURL
	}

	insertedID, err := s.messages.Insert(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}
	if oid, oidErr := primitive.ObjectIDFromHex(insertedID); oidErr == nil {
		msg.ID = oid
	}

	if err := s.conversations.UpsertOnSend(ctx, msg.ConversationKey, senderID, receiverID, msg.Preview(), msg.CreatedAt); err != nil {
		// message is durable; the list refetch path recomputes counts,
		// so a failed summary update degrades, not corrupts
		s.logger.Error("summary update failed after persist",
			zap.String("conversation_key", msg.ConversationKey),
			zap.Error(err),
		)
	}

	payload := messagePayload(msg)
	delivered := s.pusher.DeliverToUser(receiverID, event.New(event.KindMessageDelivered, payload))
	s.pusher.DeliverToUser(senderID, event.New(event.KindMessageSent, payload))

	if !delivered {
		// no live handle on this instance. A peer instance may still
		// hold one; presence flips are persisted, so the durable record
		// spans instances and decides the out-of-band notification.
		online := false
		if user, userErr := s.users.GetUser(ctx, receiverID); userErr == nil {
			online = user.IsOnline
		}
		if !online {
			preview := msg.Preview()
			s.notifier.Notify(ctx, receiverID, "New message", preview, map[string]string{
				"conversationKey": msg.ConversationKey,
				"senderId":        senderID,
			})
		}
	}

	s.logger.Info("message relayed",
		zap.String("message_id", insertedID),
		zap.String("conversation_key", msg.ConversationKey),
		zap.Bool("delivered_live", delivered),
	)
	return msg, nil
}

func messagePayload(m *model.Message) event.MessagePayload {
	p := event.MessagePayload{
		ID:              m.ID.Hex(),
		ConversationKey: m.ConversationKey,
		SenderID:        m.SenderID,
		ReceiverID:      m.ReceiverID,
		Text:            m.Text,
		CreatedAt:       m.CreatedAt,
	}
	if m.ImageURL != nil {
		p.ImageURL = *m.ImageURL
	}
	return p
}
