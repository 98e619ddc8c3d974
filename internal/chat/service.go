package chat

import (
	"context"
	"errors"
	"fmt"

	"Amoura/internal/event"
	"Amoura/internal/model"
	"Amoura/internal/repo"

	"go.uber.org/zap"
)

// ChatList materializes the caller's chat list: summaries sorted by
// recency, decorated with counterpart profiles, blocked relabeling
// applied, and unread counts recomputed from message state. This is
// the authoritative refetch that self-heals any drift accumulated by
// the push fast path.
func (s *Service) ChatList(ctx context.Context, userID string) ([]model.ChatListEntry, error) {
	summaries, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	counterparts := make([]string, 0, len(summaries))
	for i := range summaries {
		counterparts = append(counterparts, summaries[i].Counterpart(userID))
	}

	profiles, err := s.users.GetProfiles(ctx, counterparts)
	if err != nil {
		// decoration must never block the list; fall back to placeholders
		s.logger.Warn("profile decoration failed", zap.Error(err))
		profiles = map[string]model.Profile{}
	}

	entries := make([]model.ChatListEntry, 0, len(summaries))
	for i := range summaries {
		sum := &summaries[i]
		other := sum.Counterpart(userID)

		profile, ok := profiles[other]
		if !ok {
			profile = model.PlaceholderProfile(other)
		}

		rel, err := s.guard.Relationship(ctx, userID, other)
		if err != nil {
			s.logger.Warn("relationship lookup failed", zap.String("other_id", other), zap.Error(err))
		}
		if rel.Blocked() {
			// history stays, the identity is relabeled
			profile.Name = "Blocked"
			profile.Avatar = ""
			profile.IsOnline = false
		}

		entries = append(entries, model.ChatListEntry{
			Key:                sum.Key,
			Counterpart:        profile,
			LastMessagePreview: sum.LastMessagePreview,
			LastMessageSender:  sum.LastMessageSender,
			LastMessageAt:      sum.LastMessageAt,
			Unread:             s.recountUnread(ctx, sum.Key, userID, sum.UnreadFor(userID)),
			BlockedByMe:        rel.BlockedByMe,
			BlockedByThem:      rel.BlockedByThem,
		})
	}
	return entries, nil
}

// Conversation returns one page of the caller's window with the
// counterpart. Page 1 is the newest slice; older pages prepend.
func (s *Service) Conversation(ctx context.Context, userID, otherID string, page int64) (*model.MessagePage, error) {
	if userID == otherID {
		return nil, ErrValidation("cannot open a conversation with yourself")
	}
	if page < 1 {
		page = 1
	}

	result, err := s.messages.PageForUser(ctx, Key(userID, otherID), userID, page)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &model.MessagePage{Messages: []model.Message{}, Page: page}
	}
	return result, nil
}

// DeleteConversation tombstones the thread for the caller only. The
// counterpart's history is untouched, and a new message in either
// direction resurfaces the thread.
func (s *Service) DeleteConversation(ctx context.Context, userID, conversationKey string) error {
	if !HasParticipant(conversationKey, userID) {
		return ErrNotFound("conversation")
	}

	if _, err := s.conversations.FindByKey(ctx, conversationKey); err != nil {
		if errors.Is(err, repo.ErrConversationNotFound) {
			return ErrNotFound("conversation")
		}
		return err
	}

	if err := s.messages.TombstoneAll(ctx, conversationKey, userID); err != nil {
		return fmt.Errorf("tombstone conversation: %w", err)
	}
	if err := s.conversations.HideForUser(ctx, conversationKey, userID); err != nil {
		return fmt.Errorf("hide conversation: %w", err)
	}

	// the caller's other devices drop the thread without a refetch
	s.pusher.DeliverToUser(userID, event.New(event.KindConversationDeleted, event.ConversationDeletedPayload{
		ConversationKey: conversationKey,
		UserID:          userID,
	}))

	s.logger.Info("conversation tombstoned",
		zap.String("conversation_key", conversationKey),
		zap.String("user_id", userID),
	)
	return nil
}

// Block suppresses future delivery between the pair and relabels the
// counterpart in the blocker's lists.
func (s *Service) Block(ctx context.Context, blockerID, blockedID, reason string) error {
	return s.guard.Block(ctx, blockerID, blockedID, reason)
}

// Unblock lifts a block; only the original blocker can.
func (s *Service) Unblock(ctx context.Context, blockerID, blockedID string) error {
	return s.guard.Unblock(ctx, blockerID, blockedID)
}

// Relationship exposes the per-direction block state for UI labeling.
func (s *Service) Relationship(ctx context.Context, userID, otherID string) (model.Relationship, error) {
	return s.guard.Relationship(ctx, userID, otherID)
}
