package wallet

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

var (
	// ErrInsufficient is returned when the balance cannot cover the
	// debit. The caller maps it to the INSUFFICIENT_BALANCE taxonomy
	// with the shortfall amount.
	ErrInsufficient = errors.New("insufficient diamond balance")
	ErrUserNotFound = errors.New("wallet user not found")
)

const opTimeout = 5 * time.Second

// Service is the diamond balance contract the relay consumes. Debit
// is atomic with respect to concurrent debits for the same user.
type Service interface {
	GetBalance(ctx context.Context, userID string) (int64, error)
	Debit(ctx context.Context, userID string, amount int64) (int64, error)
	Credit(ctx context.Context, userID string, amount int64) (int64, error)
}

type service struct {
	users  *db.Repository[model.User]
	logger *zap.Logger
}

func NewService(users *db.Repository[model.User], logger *zap.Logger) Service {
	return &service{users: users, logger: logger}
}

func (s *service) GetBalance(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	user, err := s.users.FindOne(ctx, db.NewFilter().Eq("user_id", userID).Build())
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("load balance: %w", err)
	}
	return user.Diamonds, nil
}

// Debit subtracts amount from the user's balance in one conditional
// read-modify-write. The filter requires diamonds >= amount, so two
// concurrent debits racing for the same remainder produce exactly one
// winner; the loser sees ErrInsufficient.
func (s *service) Debit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("negative debit amount %d", amount)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("user_id", userID).
		Gte("diamonds", amount).
		Build()
	update := bson.M{"$inc": bson.M{"diamonds": -amount}}

	user, err := s.users.FindOneAndUpdate(ctx, filter, update)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// either no such user or not enough balance; disambiguate
			exists, exErr := s.users.Exists(ctx, db.NewFilter().Eq("user_id", userID).Build())
			if exErr != nil {
				return 0, fmt.Errorf("debit existence check: %w", exErr)
			}
			if !exists {
				return 0, ErrUserNotFound
			}
			return 0, ErrInsufficient
		}
		return 0, fmt.Errorf("debit failed: %w", err)
	}

	s.logger.Info("diamonds debited",
		zap.String("user_id", userID),
		zap.Int64("amount", amount),
		zap.Int64("balance", user.Diamonds),
	)
	return user.Diamonds, nil
}

// Credit adds diamonds to the user's balance. Used by the purchase
// flow, which is outside the relay's scope.
func (s *service) Credit(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("negative credit amount %d", amount)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("user_id", userID).Build()
	update := bson.M{"$inc": bson.M{"diamonds": amount}}

	user, err := s.users.FindOneAndUpdate(ctx, filter, update)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("credit failed: %w", err)
	}
	return user.Diamonds, nil
}
