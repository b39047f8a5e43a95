package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Bot Settings
	BotToken string
	BotName  string
	Version  string

	// Database
	DatabaseURL string
	UseDatabase bool

	// Queue behaviour
	MaxPendingPerUser  int
	DuplicateThreshold int
	FairnessMode       string // strict or lenient
	IdleDetachSeconds  int
	MaxTrackDurationS  int
	MaxQueueLength     int

	// Storage
	DataDir string

	// Providers
	ProviderEnabled      map[string]bool
	NetEaseAPIBaseURL    string
	NetEaseProxyHost     string
	NetEaseProxyProtocol string
	NetEaseMemberCookie  string

	// Logging
	LogLevel  string
	LogFormat string
}

// providerNames lists the togglable extraction backends.
var providerNames = []string{"youtube", "netease", "bilibili", "soundcloud", "catbox", "generic"}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if not exists)
	_ = godotenv.Load()

	botToken := os.Getenv("BOT_TOKEN")
	if botToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN environment variable is required")
	}
	if len(botToken) < 50 {
		return nil, fmt.Errorf("invalid BOT_TOKEN format (too short)")
	}

	var databaseURL string
	useDatabase := getEnvBool("USE_DATABASE", false)
	if useDatabase {
		databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			os.Getenv("POSTGRES_USER"),
			os.Getenv("POSTGRES_PASSWORD"),
			os.Getenv("POSTGRES_HOST"),
			getEnvOrDefault("POSTGRES_PORT", "5432"),
			os.Getenv("POSTGRES_DB"))
	}

	providerEnabled := make(map[string]bool, len(providerNames))
	for _, name := range providerNames {
		key := fmt.Sprintf("PROVIDER_%s_ENABLED", strings.ToUpper(name))
		providerEnabled[name] = getEnvBool(key, true)
	}

	cfg := &Config{
		BotToken: botToken,
		BotName:  getEnvOrDefault("BOT_NAME", "Discord Queue Engine"),
		Version:  getEnvOrDefault("VERSION", "1.0.0"),

		DatabaseURL: databaseURL,
		UseDatabase: useDatabase,

		MaxPendingPerUser:  getEnvInt("MAX_PENDING_PER_USER", 1),
		DuplicateThreshold: getEnvInt("DUPLICATE_THRESHOLD_QUEUE_LEN", 5),
		FairnessMode:       getEnvOrDefault("FAIRNESS_MODE", "strict"),
		IdleDetachSeconds:  getEnvInt("IDLE_DETACH_SECONDS", 300),
		MaxTrackDurationS:  getEnvInt("MAX_TRACK_DURATION_SECONDS", 3600),
		MaxQueueLength:     getEnvInt("MAX_QUEUE_LENGTH", 100),

		DataDir: getEnvOrDefault("DATA_DIR", "./data"),

		ProviderEnabled:      providerEnabled,
		NetEaseAPIBaseURL:    getEnvOrDefault("NETEASE_API_BASE_URL", ""),
		NetEaseProxyHost:     getEnvOrDefault("NETEASE_PROXY_HOST", ""),
		NetEaseProxyProtocol: getEnvOrDefault("NETEASE_PROXY_PROTOCOL", "https"),
		NetEaseMemberCookie:  getEnvOrDefault("NETEASE_MEMBER_COOKIE", ""),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}

	if cfg.FairnessMode != "strict" && cfg.FairnessMode != "lenient" {
		return nil, fmt.Errorf("FAIRNESS_MODE must be strict or lenient, got %q", cfg.FairnessMode)
	}
	if cfg.MaxPendingPerUser < 1 {
		return nil, fmt.Errorf("MAX_PENDING_PER_USER must be at least 1")
	}
	if cfg.DuplicateThreshold < 0 {
		return nil, fmt.Errorf("DUPLICATE_THRESHOLD_QUEUE_LEN must not be negative")
	}
	// NetEase needs its API endpoint; without one the provider stays off.
	if cfg.ProviderEnabled["netease"] && cfg.NetEaseAPIBaseURL == "" {
		cfg.ProviderEnabled["netease"] = false
	}

	if !cfg.UseDatabase {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return cfg, nil
}

// GetSafeToken returns a masked version of the token for logging
func (c *Config) GetSafeToken() string {
	if len(c.BotToken) < 15 {
		return "***"
	}
	return c.BotToken[:10] + "..." + c.BotToken[len(c.BotToken)-4:]
}

// Helper functions

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "NO":
			return false
		}
	}
	return defaultValue
}
