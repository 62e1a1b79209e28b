package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            int
	NatsURL         string
	NatsToken       string
	DatabaseURL     string
	SQLitePath      string
	LogLevel        string
	AnthropicAPIKey string
	AnthropicModel  string
	AnthropicURL    string
	SlackBotToken   string
	SlackChannel    string
	APIToken        string
	Bilingual       bool

	LiveKitAPIKey    string
	LiveKitAPISecret string
	LiveKitURL       string
	RoomPrefix       string
	TokenTTL         time.Duration
	ConnectTimeout   time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RabbitURL         string
	RabbitQueue       string
	WorkerConcurrency int
}

// Load reads configuration from the environment. Values in .env.local and
// .env are applied first without overriding variables already set.
func Load() Config {
	_ = godotenv.Load(dotenvFiles()...)

	return Config{
		Port:            envInt("DRILL_PORT", 8760),
		NatsURL:         envStr("NATS_URL", ""),
		NatsToken:       envStr("NATS_TOKEN", ""),
		DatabaseURL:     envStr("DATABASE_URL", ""),
		SQLitePath:      envStr("DRILL_SQLITE_PATH", "drill.db"),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  envStr("DRILL_MODEL", "claude-sonnet-4-20250514"),
		AnthropicURL:    envStr("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		SlackBotToken:   envStr("SLACK_BOT_TOKEN", ""),
		SlackChannel:    envStr("SLACK_CHANNEL", ""),
		APIToken:        envStr("DRILL_API_TOKEN", ""),
		Bilingual:       envBool("DRILL_BILINGUAL", false),

		LiveKitAPIKey:    envStr("LIVEKIT_API_KEY", ""),
		LiveKitAPISecret: envStr("LIVEKIT_API_SECRET", ""),
		LiveKitURL:       envStr("LIVEKIT_URL", ""),
		RoomPrefix:       envStr("ROOM_PREFIX", "drill"),
		TokenTTL:         envDuration("TOKEN_TTL", time.Hour),
		ConnectTimeout:   envDuration("CONNECT_TIMEOUT", 30*time.Second),

		RedisAddr:     envStr("REDIS_ADDR", ""),
		RedisPassword: envStr("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),

		RabbitURL:         envStr("RABBIT_URL", ""),
		RabbitQueue:       envStr("RABBIT_QUEUE", "drill.evaluation.retry"),
		WorkerConcurrency: workerConcurrency(envInt("WORKER_CONCURRENCY", 2)),
	}
}

func dotenvFiles() []string {
	var files []string
	for _, name := range []string{".env.local", ".env"} {
		if _, err := os.Stat(name); err == nil {
			files = append(files, name)
		}
	}
	return files
}

func workerConcurrency(n int) int {
	if n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go duration strings ("45s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return fallback
}
