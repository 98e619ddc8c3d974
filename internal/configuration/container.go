package configuration

import (
	"context"
	"fmt"
	"os"
	"time"

	"Amoura/internal/chat"
	"Amoura/internal/db"
	"Amoura/internal/handler"
	"Amoura/internal/hub"
	"Amoura/internal/model"
	"Amoura/internal/notify"
	"Amoura/internal/repo"
	"Amoura/internal/wallet"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Container struct {
	ChatHandler handler.ChatHandler
	Hub         *hub.Hub
	Config      Config
	Logger      *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
	redisClient *redis.Client
}

func BuildContainer() (*Container, error) {
	configPath := os.Getenv("AMOURA_CONFIG")
	if configPath == "" {
		configPath = "config/config.json"
	}

	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	con, err := db.OpenConnection(config.ChatDatabase.Uri, config.ChatDatabase.Database)
	if err != nil {
		return nil, fmt.Errorf("open mongo: %w", err)
	}

	var redisClient *redis.Client
	if config.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis unreachable, running single-node fan-out", zap.Error(err))
			redisClient = nil
		}
	}

	userStore := db.NewRepository[model.User](con, config.ChatDatabase.UsersCollection)
	messageStore := db.NewRepository[model.Message](con, config.ChatDatabase.MessagesCollection)
	conversationStore := db.NewRepository[model.ConversationSummary](con, config.ChatDatabase.ConversationsCollection)
	blockStore := db.NewRepository[model.BlockRelationship](con, config.ChatDatabase.BlocksCollection)

	// the summary upsert and the block pair rely on these being unique;
	// without the index two racing first sends both insert
	idxCtx, cancelIdx := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelIdx()
	if err := conversationStore.EnsureUniqueIndex(idxCtx, "key"); err != nil {
		return nil, fmt.Errorf("ensure conversation key index: %w", err)
	}
	if err := blockStore.EnsureUniqueIndex(idxCtx, "blocker_id", "blocked_id"); err != nil {
		return nil, fmt.Errorf("ensure block pair index: %w", err)
	}

	userRepo := repo.NewUserRepository(userStore, logger)
	messageRepo := repo.NewMessageRepository(messageStore, logger)
	conversationRepo := repo.NewConversationRepository(conversationStore, logger)
	blockRepo := repo.NewBlockRepository(blockStore, logger)

	chatHub := hub.NewHub(userRepo, redisClient, logger)

	guard := chat.NewGuard(blockRepo, logger)
	walletService := wallet.NewService(userStore, logger)
	notifier := notify.NewLogNotifier(logger)

	chatService := chat.NewService(
		messageRepo,
		conversationRepo,
		userRepo,
		guard,
		walletService,
		notifier,
		chatHub,
		chat.Costs{Text: config.Costs.TextMessage, Image: config.Costs.ImageMessage},
		logger,
	)

	return &Container{
		ChatHandler: handler.NewChatHandler(chatService),
		Hub:         chatHub,
		Config:      *config,
		Logger:      logger,
		mongoClient: con,
		redisClient: redisClient,
	}, nil
}

// Close gracefully shuts down all connections.
func (c *Container) Close() error {
	if c.Hub != nil {
		c.Hub.Stop()
	}

	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	if c.redisClient != nil {
		_ = c.redisClient.Close()
	}

	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}
