package chat

import (
	"context"
	"errors"
	"fmt"

	"Amoura/internal/repo"

	"go.uber.org/zap"
)

// MarkRead zeroes the reader's unread count for a conversation and
// flags every message addressed to them as read in the durable store.
// Idempotent: a second call finds nothing to flip and the cached count
// is already zero.
func (s *Service) MarkRead(ctx context.Context, readerID, otherID string) error {
	if readerID == otherID {
		return ErrValidation("cannot mark own conversation")
	}

	key := Key(readerID, otherID)
	flipped, err := s.messages.MarkRead(ctx, key, readerID)
	if err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}

	if err := s.conversations.ZeroUnread(ctx, key, readerID); err != nil {
		if errors.Is(err, repo.ErrConversationNotFound) {
			return ErrNotFound("conversation")
		}
		return fmt.Errorf("zero unread: %w", err)
	}

	s.logger.Debug("conversation acknowledged",
		zap.String("conversation_key", key),
		zap.String("reader_id", readerID),
		zap.Int64("flipped", flipped),
	)
	return nil
}

// TotalUnread sums the caller's unread counts across every listed
// conversation. The summaries it reads are repaired by ChatList, which
// recomputes from message state.
func (s *Service) TotalUnread(ctx context.Context, userID string) (int64, error) {
	summaries, err := s.conversations.ListForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	var total int64
	for i := range summaries {
		total += summaries[i].UnreadFor(userID)
	}
	return total, nil
}

// recountUnread recomputes one participant's unread count from message
// state and repairs the cached summary value when they diverge (for
// example after a missed push event). The recomputed value is
// authoritative; the push-path increment is only a fast path.
func (s *Service) recountUnread(ctx context.Context, key, userID string, cached int64) int64 {
	actual, err := s.messages.CountUnread(ctx, key, userID)
	if err != nil {
		s.logger.Warn("unread recount failed, trusting cache",
			zap.String("conversation_key", key),
			zap.Error(err),
		)
		return cached
	}

	if actual != cached {
		s.logger.Info("unread drift repaired",
			zap.String("conversation_key", key),
			zap.String("user_id", userID),
			zap.Int64("cached", cached),
			zap.Int64("actual", actual),
		)
		if err := s.conversations.SetUnread(ctx, key, userID, actual); err != nil {
			s.logger.Warn("unread repair write failed", zap.Error(err))
		}
	}
	return actual
}
