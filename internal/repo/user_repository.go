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
	"go.uber.org/zap"
)

var ErrUserNotFound = errors.New("user not found")

type userRepository struct {
	mongoRepo *db.Repository[model.User]
	logger    *zap.Logger
}

// UserRepository doubles as the identity/profile directory: profile
// lookups decorate chat lists and must never block delivery, so
// callers fall back to a placeholder when a lookup fails.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	GetProfiles(ctx context.Context, userIDs []string) (map[string]model.Profile, error)
	SetPresence(ctx context.Context, userID string, online bool, lastActive time.Time) error
}

func NewUserRepository(repo *db.Repository[model.User], logger *zap.Logger) UserRepository {
	return &userRepository{mongoRepo: repo, logger: logger}
}

func (r *userRepository) GetUser(ctx context.Context, userID string) (*model.User, error) {
	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	user, err := r.mongoRepo.FindOne(ctx, db.NewFilter().Eq("user_id", userID).Build())
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// GetProfiles bulk-loads display profiles. Missing users simply do not
// appear in the result map.
func (r *userRepository) GetProfiles(ctx context.Context, userIDs []string) (map[string]model.Profile, error) {
	profiles := make(map[string]model.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}

	ctx, cancel := r.ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	users, err := r.mongoRepo.FindAll(ctx, db.NewFilter().In("user_id", userIDs).Build())
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}

	for _, u := range users {
		profiles[u.UserID] = model.Profile{
			UserID:     u.UserID,
			Name:       u.Name,
			Avatar:     u.Avatar,
			Color:      u.Color,
			Gender:     u.Gender,
			IsOnline:   u.IsOnline,
			LastActive: u.LastActive,
		}
	}
	return profiles, nil
}

// SetPresence writes the hub's presence flip back to the durable user
// record so REST polling observes it too.
func (r *userRepository) SetPresence(ctx context.Context, userID string, online bool, lastActive time.Time) error {
	ctx, cancel := r.ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("user_id", userID).Build()
	update := bson.M{"$set": bson.M{
		"is_online":   online,
		"last_active": lastActive,
	}}

	if _, err := r.mongoRepo.UpdateOne(ctx, filter, update, false); err != nil {
		r.logger.Error("failed to persist presence",
			zap.String("user_id", userID),
			zap.Bool("online", online),
			zap.Error(err),
		)
		return fmt.Errorf("persist presence: %w", err)
	}
	return nil
}

func (r *userRepository) ensureTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hadDeadline := ctx.Deadline(); hadDeadline {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
