package chat

import (
	"context"
	"errors"
	"fmt"

	"Amoura/internal/model"
	"Amoura/internal/repo"

	"go.uber.org/zap"
)

// Guard is the blocking predicate consulted before relay and before
// list materialization. Blocking is directional but its delivery
// effect is symmetric: either side having blocked the other halts
// messaging both ways.
type Guard struct {
	blocks repo.BlockRepository
	logger *zap.Logger
}

func NewGuard(blocks repo.BlockRepository, logger *zap.Logger) *Guard {
	return &Guard{blocks: blocks, logger: logger}
}

// CanDeliver reports whether no block exists in either direction.
func (g *Guard) CanDeliver(ctx context.Context, senderID, receiverID string) (bool, error) {
	blocked, err := g.blocks.ExistsEither(ctx, senderID, receiverID)
	if err != nil {
		return false, fmt.Errorf("block lookup: %w", err)
	}
	return !blocked, nil
}

// Relationship returns the per-direction state for UI labeling.
func (g *Guard) Relationship(ctx context.Context, userID, otherID string) (model.Relationship, error) {
	return g.blocks.Relationship(ctx, userID, otherID)
}

// Block records a directional block. Self-blocks are rejected; history
// is untouched, only new sends are suppressed.
func (g *Guard) Block(ctx context.Context, blockerID, blockedID, reason string) error {
	if blockerID == blockedID {
		return ErrValidation("cannot block yourself")
	}
	if blockedID == "" {
		return ErrValidation("missing user to block")
	}

	if err := g.blocks.Create(ctx, blockerID, blockedID, reason); err != nil {
		if errors.Is(err, repo.ErrAlreadyBlocked) {
			return nil // idempotent
		}
		return err
	}
	return nil
}

// Unblock removes a block. Only the original blocker's record matches,
// so nobody else can lift it.
func (g *Guard) Unblock(ctx context.Context, blockerID, blockedID string) error {
	if err := g.blocks.Delete(ctx, blockerID, blockedID); err != nil {
		if errors.Is(err, repo.ErrBlockNotFound) {
			return ErrNotFound("block")
		}
		return err
	}
	return nil
}
