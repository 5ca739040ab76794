package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Server      ServerConfig
	Storage     StorageConfig
	JWT         JWTConfig
	Credentials CredentialsConfig
	Chat        ChatConfig
	Bot         BotConfig
	Telegram    TelegramConfig
}

type ServerConfig struct {
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequireWSToken bool
}

type StorageConfig struct {
	Backend     string
	StateFile   string
	DatabaseURL string
	RedisURL    string
	RedisKey    string
}

type JWTConfig struct {
	Secret    []byte
	ExpiresIn time.Duration
}

type CredentialsConfig struct {
	File string
}

type ChatConfig struct {
	HeartbeatInterval time.Duration
	ClosureTick       time.Duration
	SaveDebounce      time.Duration
	MaxMessageLength  int
}

type BotConfig struct {
	AutoModeration bool
	AllowedDomains []string
}

type TelegramConfig struct {
	Token     string
	ChannelID int64
}

func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env file: %v", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvOrDefault("PORT", ":8080"),
			ReadTimeout:    getDurationOrDefault("READ_TIMEOUT", "15s"),
			WriteTimeout:   getDurationOrDefault("WRITE_TIMEOUT", "15s"),
			RequireWSToken: getBoolOrDefault("WS_REQUIRE_TOKEN", true),
		},
		Storage: StorageConfig{
			Backend:   strings.ToLower(getEnvOrDefault("STORAGE_BACKEND", BackendFile)),
			StateFile: getEnvOrDefault("STATE_FILE", "chat_state.json"),
			RedisKey:  getEnvOrDefault("REDIS_KEY", "chatvc:state"),
		},
		JWT: JWTConfig{
			Secret:    []byte(getEnvOrFatal("JWT_SECRET")),
			ExpiresIn: getDurationOrDefault("JWT_EXPIRES_IN", "24h"),
		},
		Credentials: CredentialsConfig{
			File: getEnvOrDefault("CREDENTIALS_FILE", "credentials.json"),
		},
		Chat: ChatConfig{
			HeartbeatInterval: getDurationOrDefault("HEARTBEAT_INTERVAL", "30s"),
			ClosureTick:       getDurationOrDefault("CLOSURE_TICK", "1s"),
			SaveDebounce:      getDurationOrDefault("SAVE_DEBOUNCE", "2s"),
			MaxMessageLength:  getIntOrDefault("MAX_MESSAGE_LENGTH", 1000),
		},
		Bot: BotConfig{
			AutoModeration: getBoolOrDefault("BOT_AUTOMOD", false),
			AllowedDomains: getListOrDefault("BOT_ALLOWED_DOMAINS", nil),
		},
		Telegram: TelegramConfig{
			Token:     os.Getenv("TELEGRAM_BOT_TOKEN"),
			ChannelID: getInt64OrDefault("TELEGRAM_CHANNEL_ID", 0),
		},
	}

	// Remote backends cannot run without their credentials.
	switch cfg.Storage.Backend {
	case BackendPostgres:
		cfg.Storage.DatabaseURL = getEnvOrFatal("DATABASE_URL")
	case BackendRedis:
		cfg.Storage.RedisURL = getEnvOrFatal("REDIS_URL")
	case BackendMemory, BackendFile:
	default:
		log.Fatalf("Unknown STORAGE_BACKEND %q", cfg.Storage.Backend)
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrFatal(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("%s environment variable is required", key)
	}
	return value
}

func getDurationOrDefault(key, defaultValue string) time.Duration {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		log.Fatalf("Invalid duration for %s: %v", key, err)
	}
	return duration
}

func getIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		log.Fatalf("Invalid integer for %s: %v", key, err)
	}
	return intValue
}

func getInt64OrDefault(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		log.Fatalf("Invalid integer for %s: %v", key, err)
	}
	return intValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	boolValue, err := strconv.ParseBool(value)
	if err != nil {
		log.Fatalf("Invalid boolean for %s: %v", key, err)
	}
	return boolValue
}

func getListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
