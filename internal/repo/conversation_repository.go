package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Amoura/internal/db"
	"Amoura/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

var ErrConversationNotFound = errors.New("conversation not found")

type conversationRepository struct {
	mongoRepo *db.Repository[model.ConversationSummary]
	logger    *zap.Logger
}

type ConversationRepository interface {
	UpsertOnSend(ctx context.Context, key, senderID, receiverID, preview string, at time.Time) error
	FindByKey(ctx context.Context, key string) (*model.ConversationSummary, error)
	ListForUser(ctx context.Context, userID string) ([]model.ConversationSummary, error)
	ZeroUnread(ctx context.Context, key, userID string) error
	SetUnread(ctx context.Context, key, userID string, count int64) error
	HideForUser(ctx context.Context, key, userID string) error
}

func NewConversationRepository(repo *db.Repository[model.ConversationSummary], logger *zap.Logger) ConversationRepository {
	return &conversationRepository{mongoRepo: repo, logger: logger}
}

// UpsertOnSend is the single atomic read-modify-write of the summary
// row on every send: preview and last_message_at move forward, the
// receiver's unread count is incremented, the sender's is zeroed, and
// the thread is un-hidden for both participants so a new message
// resurfaces a deleted conversation.
func (r *conversationRepository) UpsertOnSend(ctx context.Context, key, senderID, receiverID, preview string, at time.Time) error {
	ctx, cancel := r.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	a, b := senderID, receiverID
	if a > b {
		a, b = b, a
	}

	filter := db.NewFilter().Eq("key", key).Build()
	update := bson.M{
		"$set": bson.M{
			"last_message_preview": preview,
			"last_message_sender":  senderID,
			"last_message_at":      at,
			"unread." + senderID:   int64(0),
		},
		"$inc": bson.M{
			"unread." + receiverID: int64(1),
		},
		"$pull": bson.M{
			"deleted_for": bson.M{"$in": []string{senderID, receiverID}},
		},
		"$setOnInsert": bson.M{
			"key":           key,
			"participant_a": a,
			"participant_b": b,
			"created_at":    at,
		},
	}

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if _, err = r.mongoRepo.UpdateOne(ctx, filter, update, true); err == nil {
			return nil
		}
		// two first sends raced the upsert; the unique index on key
		// rejected the loser, whose retry matches the winner's row
		if !mongo.IsDuplicateKeyError(err) {
			break
		}
	}
	r.logger.Error("summary upsert failed",
		zap.String("key", key),
		zap.Error(err),
	)
	return fmt.Errorf("upsert conversation summary: %w", err)
}

func (r *conversationRepository) FindByKey(ctx context.Context, key string) (*model.ConversationSummary, error) {
	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	summary, err := r.mongoRepo.FindOne(ctx, db.NewFilter().Eq("key", key).Build())
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return summary, nil
}

// ListForUser returns the caller's chat list sorted by recency,
// excluding threads they deleted.
func (r *conversationRepository) ListForUser(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Or(
			bson.M{"participant_a": userID},
			bson.M{"participant_b": userID},
		).
		Ne("deleted_for", userID).
		Build()

	opts := options.Find().SetSort(bson.M{"last_message_at": -1})
	summaries, err := r.mongoRepo.FindAll(ctx, filter, opts)
	if err != nil {
		r.logger.Error("failed to list conversations", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	r.logger.Debug("conversations listed", zap.String("user_id", userID), zap.Int("count", len(summaries)))
	return summaries, nil
}

func (r *conversationRepository) ZeroUnread(ctx context.Context, key, userID string) error {
	return r.SetUnread(ctx, key, userID, 0)
}

// SetUnread overwrites one participant's cached unread count. The
// ledger uses it to repair drift from recomputed message state.
func (r *conversationRepository) SetUnread(ctx context.Context, key, userID string, count int64) error {
	ctx, cancel := r.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("key", key).Build()
	update := bson.M{"$set": bson.M{"unread." + userID: count}}

	result, err := r.mongoRepo.UpdateOne(ctx, filter, update, false)
	if err != nil {
		return fmt.Errorf("set unread: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (r *conversationRepository) HideForUser(ctx context.Context, key, userID string) error {
	ctx, cancel := r.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("key", key).Build()
	update := bson.M{
		"$addToSet": bson.M{"deleted_for": userID},
		"$set":      bson.M{"unread." + userID: int64(0)},
	}

	result, err := r.mongoRepo.UpdateOne(ctx, filter, update, false)
	if err != nil {
		return fmt.Errorf("hide conversation: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrConversationNotFound
	}
	return nil
}

func (r *conversationRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
