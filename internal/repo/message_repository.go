package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Amoura/internal/db"
	"Amoura/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var (
	ErrInvalidMessage         = errors.New("invalid message: message cannot be nil")
	ErrInvalidConversationKey = errors.New("invalid conversation key: cannot be empty")
	ErrOperationTimeout       = errors.New("operation timeout exceeded")
)

const (
	defaultWriteTimeout = 5 * time.Second
	defaultReadTimeout  = 30 * time.Second

	maxRetries     = 3
	baseRetryDelay = 100 * time.Millisecond
	maxRetryDelay  = 2 * time.Second

	messagePageSize = 25
)

type messageRepository struct {
	mongoRepo *db.Repository[model.Message]
	logger    *zap.Logger
}

type MessageRepository interface {
	Insert(ctx context.Context, msg *model.Message) (string, error)
	PageForUser(ctx context.Context, conversationKey, userID string, page int64) (*model.MessagePage, error)
	MarkRead(ctx context.Context, conversationKey, readerID string) (int64, error)
	CountUnread(ctx context.Context, conversationKey, userID string) (int64, error)
	TombstoneAll(ctx context.Context, conversationKey, userID string) error
}

func NewMessageRepository(repo *db.Repository[model.Message], logger *zap.Logger) MessageRepository {
	return &messageRepository{mongoRepo: repo, logger: logger}
}

// -----------------------------------------------------------------------------
// Insert
// -----------------------------------------------------------------------------

func (m *messageRepository) Insert(ctx context.Context, msg *model.Message) (string, error) {
	if msg == nil {
		return "", ErrInvalidMessage
	}
	if msg.ConversationKey == "" {
		return "", ErrInvalidConversationKey
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := m.waitForRetry(ctx, attempt); err != nil {
				return "", err
			}
		}

		result, err := m.mongoRepo.Create(ctx, *msg)
		if err == nil {
			insertedID := ""
			if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
				insertedID = oid.Hex()
			}

			m.logger.Info("message inserted",
				zap.String("inserted_id", insertedID),
				zap.String("conversation_key", msg.ConversationKey),
				zap.Int("attempt", attempt+1),
			)
			return insertedID, nil
		}

		lastErr = err
		if !m.isRetryableError(err) {
			break
		}

		m.logger.Warn("insert attempt failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries),
		)
	}

	m.logger.Error("failed to insert message after all retries",
		zap.Error(lastErr),
		zap.String("conversation_key", msg.ConversationKey),
	)
	return "", fmt.Errorf("insert message failed: %w", lastErr)
}

// -----------------------------------------------------------------------------
// PageForUser
// -----------------------------------------------------------------------------

// PageForUser returns one page of the conversation window for a
// participant, excluding messages tombstoned for them. Page 1 is the
// newest slice; within a page messages come back in chronological
// order so the client can prepend older pages directly.
func (m *messageRepository) PageForUser(ctx context.Context, conversationKey, userID string, page int64) (*model.MessagePage, error) {
	if conversationKey == "" {
		return nil, ErrInvalidConversationKey
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("conversation_key", conversationKey).
		Ne("deleted_for", userID).
		Build()

	result, err := m.mongoRepo.FindPage(ctx, filter, db.PageParams{
		Page:     page,
		PageSize: messagePageSize,
		SortBy:   "created_at",
		SortDesc: true,
	})
	if err != nil {
		return nil, m.handleReadError(err, conversationKey)
	}

	// newest-first slice, flip to chronological
	msgs := result.Data
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	m.logger.Debug("messages paged",
		zap.String("conversation_key", conversationKey),
		zap.Int64("page", page),
		zap.Int("count", len(msgs)),
		zap.Int64("total", result.Total),
	)

	return &model.MessagePage{
		Messages: msgs,
		Page:     page,
		HasMore:  result.Total > page*messagePageSize,
	}, nil
}

// -----------------------------------------------------------------------------
// Read state
// -----------------------------------------------------------------------------

// MarkRead flags every unread message addressed to the reader in one
// bulk update and returns how many were flipped.
func (m *messageRepository) MarkRead(ctx context.Context, conversationKey, readerID string) (int64, error) {
	if conversationKey == "" {
		return 0, ErrInvalidConversationKey
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("conversation_key", conversationKey).
		Eq("receiver_id", readerID).
		Eq("read", false).
		Build()

	result, err := m.mongoRepo.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, fmt.Errorf("mark read failed: %w", err)
	}
	return result.ModifiedCount, nil
}

// CountUnread recomputes the unread count from message state. This is
// the authoritative value; cached summary deltas are only a fast path.
func (m *messageRepository) CountUnread(ctx context.Context, conversationKey, userID string) (int64, error) {
	ctx, cancel := m.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("conversation_key", conversationKey).
		Eq("receiver_id", userID).
		Eq("read", false).
		Ne("deleted_for", userID).
		Build()

	return m.mongoRepo.Count(ctx, filter)
}

// TombstoneAll hides every message of the conversation for one
// participant. Nothing is removed for the other participant.
func (m *messageRepository) TombstoneAll(ctx context.Context, conversationKey, userID string) error {
	if conversationKey == "" {
		return ErrInvalidConversationKey
	}

	ctx, cancel := m.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("conversation_key", conversationKey).Build()
	update := bson.M{"$addToSet": bson.M{"deleted_for": userID}}

	if _, err := m.mongoRepo.UpdateMany(ctx, filter, update); err != nil {
		return fmt.Errorf("tombstone messages failed: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Private helpers
// -----------------------------------------------------------------------------

func (m *messageRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (m *messageRepository) waitForRetry(ctx context.Context, attempt int) error {
	delay := time.Duration(1<<uint(attempt)) * baseRetryDelay
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait cancelled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (m *messageRepository) isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	return mongo.IsTimeout(err) || mongo.IsNetworkError(err)
}

func (m *messageRepository) handleReadError(err error, conversationKey string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		m.logger.Error("read timeout", zap.String("conversation_key", conversationKey))
		return ErrOperationTimeout
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}

	m.logger.Error("read failed", zap.Error(err), zap.String("conversation_key", conversationKey))
	return fmt.Errorf("page messages failed: %w", err)
}
