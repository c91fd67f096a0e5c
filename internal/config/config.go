package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the immutable startup snapshot. Hot reload is out of scope;
// the process restarts to pick up changes.
type Config struct {
	// Event stream
	HeliusAPIKey     string
	HeliusWSURL      string
	RaydiumProgramID string

	// Transaction detail RPC
	SolanaRPCURL string

	// Risk analysis
	RugcheckBaseURL     string
	RugcheckAPIKey      string
	RugcheckRate        int
	RugcheckWindow      time.Duration
	RugcheckMaxAttempts int
	ReportCacheTTL      time.Duration

	// Telegram delivery
	TelegramBotToken  string
	TelegramChatID    string
	TelegramRate      int
	TelegramWindow    time.Duration
	NotifyMaxAttempts int
	SendHeaderPhoto   bool

	// Enrichment
	EnrichMaxAttempts int

	// Dispatcher
	MaxConcurrentPipelines int
	QueueCapacity          int

	// HTTP client
	HTTPTimeout  time.Duration
	RetryBackoff time.Duration

	// Redis (report cache + recent alerts)
	RedisAddr string

	// ClickHouse alert archive; empty addr disables archiving
	ClickHouseAddr     string
	ClickHouseDatabase string
	ClickHouseUsername string
	ClickHousePassword string

	// Observability API
	ServerAddr string

	// Lifecycle
	ShutdownTimeout time.Duration

	// Logging
	LogLevel string
	LogJSON  bool
}

// Load reads configuration from the environment, honoring a local .env
// file when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HeliusAPIKey:     getEnv("HELIUS_API_KEY", ""),
		HeliusWSURL:      getEnv("HELIUS_WS_URL", "wss://mainnet.helius-rpc.com"),
		RaydiumProgramID: getEnv("RAYDIUM_PROGRAM_ID", "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"),

		SolanaRPCURL: getEnv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com"),

		RugcheckBaseURL:     getEnv("RUGCHECK_BASE_URL", "https://api.rugcheck.xyz/v1"),
		RugcheckAPIKey:      getEnv("RUGCHECK_API_KEY", ""),
		RugcheckRate:        getIntEnv("RUGCHECK_RATE", 10),
		RugcheckWindow:      getDurationEnv("RUGCHECK_WINDOW", time.Second),
		RugcheckMaxAttempts: getIntEnv("RUGCHECK_MAX_ATTEMPTS", 4),
		ReportCacheTTL:      getDurationEnv("REPORT_CACHE_TTL", 5*time.Minute),

		TelegramBotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:    getEnv("TELEGRAM_CHAT_ID", ""),
		TelegramRate:      getIntEnv("TELEGRAM_RATE", 25),
		TelegramWindow:    getDurationEnv("TELEGRAM_WINDOW", time.Second),
		NotifyMaxAttempts: getIntEnv("NOTIFY_MAX_ATTEMPTS", 3),
		SendHeaderPhoto:   getBoolEnv("SEND_HEADER_PHOTO", false),

		EnrichMaxAttempts: getIntEnv("ENRICH_MAX_ATTEMPTS", 5),

		MaxConcurrentPipelines: getIntEnv("MAX_CONCURRENT_PIPELINES", 5),
		QueueCapacity:          getIntEnv("QUEUE_CAPACITY", 128),

		HTTPTimeout:  getDurationEnv("HTTP_TIMEOUT", 15*time.Second),
		RetryBackoff: getDurationEnv("RETRY_BACKOFF", 2*time.Second),

		RedisAddr: getEnv("REDIS_ADDR", ""),

		ClickHouseAddr:     getEnv("CLICKHOUSE_ADDR", ""),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "sentinel"),
		ClickHouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),

		ServerAddr: getEnv("SERVER_ADDR", ":8090"),

		ShutdownTimeout: getDurationEnv("SHUTDOWN_TIMEOUT", 30*time.Second),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogJSON:  getBoolEnv("LOG_JSON", false),
	}
}

// Validate rejects configurations that cannot run at all.
func (c *Config) Validate() error {
	missing := []string{}
	if c.HeliusAPIKey == "" {
		missing = append(missing, "HELIUS_API_KEY")
	}
	if c.TelegramBotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if c.TelegramChatID == "" {
		missing = append(missing, "TELEGRAM_CHAT_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	if c.MaxConcurrentPipelines < 1 {
		return fmt.Errorf("MAX_CONCURRENT_PIPELINES must be at least 1")
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("QUEUE_CAPACITY must be at least 1")
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getIntEnv(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getBoolEnv(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
