package configuration

import (
	"encoding/json"
	"os"

	"github.com/joho/godotenv"
)

type MongoConfig struct {
	Uri                     string `json:"uri"`
	Database                string `json:"database"`
	UsersCollection         string `json:"usersCollection"`
	MessagesCollection      string `json:"messagesCollection"`
	ConversationsCollection string `json:"conversationsCollection"`
	BlocksCollection        string `json:"blocksCollection"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type ServerConfig struct {
	AppPort     int    `json:"app_port"`
	SocketPort  int    `json:"socket_port"`
	SocketRoute string `json:"socket_route"`
	JwtSecret   string `json:"jwt_secret"`
}

type CostConfig struct {
	TextMessage  int64 `json:"text_message"`
	ImageMessage int64 `json:"image_message"`
}

type Config struct {
	ChatDatabase MongoConfig  `json:"mongo"`
	Redis        RedisConfig  `json:"redis"`
	Server       ServerConfig `json:"server"`
	Costs        CostConfig   `json:"costs"`
}

// LoadConfig reads the JSON config file. A .env next to the binary may
// override the secret and the redis address without touching the file.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	if secret := os.Getenv("AMOURA_JWT_SECRET"); secret != "" {
		config.Server.JwtSecret = secret
	}
	if addr := os.Getenv("AMOURA_REDIS_ADDR"); addr != "" {
		config.Redis.Addr = addr
	}
	if uri := os.Getenv("AMOURA_MONGO_URI"); uri != "" {
		config.ChatDatabase.Uri = uri
	}

	return &config, nil
}
