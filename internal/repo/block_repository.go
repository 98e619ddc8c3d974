package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"Amoura/internal/db"
	"Amoura/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

var (
	ErrAlreadyBlocked = errors.New("user is already blocked")
	ErrBlockNotFound  = errors.New("block relationship not found")
)

type blockRepository struct {
	mongoRepo *db.Repository[model.BlockRelationship]
	logger    *zap.Logger
}

type BlockRepository interface {
	Create(ctx context.Context, blockerID, blockedID, reason string) error
	Delete(ctx context.Context, blockerID, blockedID string) error
	ExistsEither(ctx context.Context, a, b string) (bool, error)
	Relationship(ctx context.Context, userID, otherID string) (model.Relationship, error)
}

func NewBlockRepository(repo *db.Repository[model.BlockRelationship], logger *zap.Logger) BlockRepository {
	return &blockRepository{mongoRepo: repo, logger: logger}
}

// Create records a directional block. The ordered pair is unique; a
// repeat block is reported, not duplicated.
func (r *blockRepository) Create(ctx context.Context, blockerID, blockedID, reason string) error {
	ctx, cancel := r.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("blocker_id", blockerID).
		Eq("blocked_id", blockedID).
		Build()

	exists, err := r.mongoRepo.Exists(ctx, filter)
	if err != nil {
		return fmt.Errorf("block existence check: %w", err)
	}
	if exists {
		return ErrAlreadyBlocked
	}

	rel := model.BlockRelationship{
		BlockerID: blockerID,
		BlockedID: blockedID,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := r.mongoRepo.Create(ctx, rel); err != nil {
		r.logger.Error("failed to create block",
			zap.String("blocker_id", blockerID),
			zap.String("blocked_id", blockedID),
			zap.Error(err),
		)
		return fmt.Errorf("create block: %w", err)
	}

	r.logger.Info("block created",
		zap.String("blocker_id", blockerID),
		zap.String("blocked_id", blockedID),
	)
	return nil
}

// Delete removes a block. Only the original blocker's direction is
// matched, which makes unblock callable by the blocker alone.
func (r *blockRepository) Delete(ctx context.Context, blockerID, blockedID string) error {
	ctx, cancel := r.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("blocker_id", blockerID).
		Eq("blocked_id", blockedID).
		Build()

	result, err := r.mongoRepo.DeleteOne(ctx, filter)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	if result.DeletedCount == 0 {
		return ErrBlockNotFound
	}

	r.logger.Info("block removed",
		zap.String("blocker_id", blockerID),
		zap.String("blocked_id", blockedID),
	)
	return nil
}

// ExistsEither reports whether a block exists in either direction
// between the pair.
func (r *blockRepository) ExistsEither(ctx context.Context, a, b string) (bool, error) {
	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Or(
			bson.M{"blocker_id": a, "blocked_id": b},
			bson.M{"blocker_id": b, "blocked_id": a},
		).
		Build()

	return r.mongoRepo.Exists(ctx, filter)
}

// Relationship returns the per-direction block state for UI labeling.
func (r *blockRepository) Relationship(ctx context.Context, userID, otherID string) (model.Relationship, error) {
	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().
		Or(
			bson.M{"blocker_id": userID, "blocked_id": otherID},
			bson.M{"blocker_id": otherID, "blocked_id": userID},
		).
		Build()

	rels, err := r.mongoRepo.FindAll(ctx, filter)
	if err != nil {
		return model.Relationship{}, fmt.Errorf("load relationship: %w", err)
	}

	var rel model.Relationship
	for _, b := range rels {
		if b.BlockerID == userID {
			rel.BlockedByMe = true
		}
		if b.BlockerID == otherID {
			rel.BlockedByThem = true
		}
	}
	return rel, nil
}

func (r *blockRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
