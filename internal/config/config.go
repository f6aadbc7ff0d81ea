package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	LogLevel    string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Chat        ChatConfig
	Matching    MatchingConfig
	Rephrasing  RephrasingConfig
	Survey      SurveyConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type DatabaseConfig struct {
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
}

// ChatConfig drives turn counting and the conversation limit.
type ChatConfig struct {
	MinWordCount         int
	MinRephrasingTurns   int
	RephraseEveryNTurns  int
	RequiredPartnerTurns int
	ContextTurns         int
	LockTTL              time.Duration
	LockWait             time.Duration
}

type MatchingConfig struct {
	SweepInterval      time.Duration
	WaitingRoomTimeout time.Duration
}

type RephrasingConfig struct {
	Provider     string // "openai" or "mock"
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	MaxTokens    int
	TopP         float64
	Strategies   []string
	MaxAttempts  int
	RetryDelay   time.Duration
	TemplatesDir string

	// Mock provider tuning, used for load tests.
	MockLatency     time.Duration
	MockFailureRate float64
}

type SurveyConfig struct {
	PostChatURL string
	NoChatURL   string
}

// Load reads configuration from the environment, after loading .env if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DATABASE_DSN", "host=localhost user=user password=password dbname=debatechat port=5432 sslmode=disable"),
			MaxOpenConns:    getEnvAsInt("DATABASE_MAX_OPEN_CONNS", 50),
			ConnMaxLifetime: getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", time.Hour),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			Issuer:    getEnv("JWT_ISSUER", "debatechat-service"),
			TokenTTL:  getEnvAsDuration("JWT_TTL", 72*time.Hour),
		},
		Chat: ChatConfig{
			MinWordCount:         getEnvAsInt("MIN_COUNTED_MESSAGE_WORD_COUNT", DefaultMinCountedMessageWordCount),
			MinRephrasingTurns:   getEnvAsInt("MIN_REPHRASING_TURNS", DefaultMinRephrasingTurns),
			RephraseEveryNTurns:  getEnvAsInt("REPHRASE_EVERY_N_TURNS", DefaultRephraseEveryNTurns),
			RequiredPartnerTurns: getEnvAsInt("REQUIRED_PARTNER_TURNS", DefaultRequiredPartnerTurns),
			ContextTurns:         getEnvAsInt("REPHRASING_CONTEXT_TURNS", DefaultContextTurns),
			LockTTL:              getEnvAsDuration("CHATROOM_LOCK_TTL", DefaultChatroomLockTTL),
			LockWait:             getEnvAsDuration("CHATROOM_LOCK_WAIT", DefaultChatroomLockWait),
		},
		Matching: MatchingConfig{
			SweepInterval:      getEnvAsDuration("MATCH_SWEEP_INTERVAL", DefaultMatchSweepInterval),
			WaitingRoomTimeout: getEnvAsDuration("WAITING_ROOM_TIMEOUT", DefaultWaitingRoomTimeout),
		},
		Rephrasing: RephrasingConfig{
			Provider:        getEnv("REPHRASING_PROVIDER", "openai"),
			BaseURL:         getEnv("OPENAI_BASE_URL", "https://api.openai.com"),
			APIKey:          getEnv("OPENAI_API_KEY", ""),
			Model:           getEnv("OPENAI_MODEL", "gpt-3.5-turbo-instruct"),
			Timeout:         getEnvAsDuration("REPHRASING_TIMEOUT", DefaultRephrasingTimeout),
			MaxTokens:       getEnvAsInt("REPHRASING_MAX_TOKENS", DefaultRephrasingMaxTokens),
			TopP:            getEnvAsFloat("REPHRASING_TOP_P", DefaultRephrasingTopP),
			Strategies:      getEnvAsList("REPHRASING_STRATEGIES", DefaultStrategies),
			MaxAttempts:     getEnvAsInt("MAX_REPHRASING_ATTEMPTS", DefaultMaxRephrasingAttempts),
			RetryDelay:      getEnvAsDuration("REPHRASING_RETRY_DELAY", DefaultRephrasingRetryDelay),
			TemplatesDir:    getEnv("REPHRASING_TEMPLATES_DIR", ""),
			MockLatency:     getEnvAsDuration("MOCK_REPHRASING_LATENCY", 2*time.Second),
			MockFailureRate: getEnvAsFloat("MOCK_REPHRASING_FAILURE_RATE", 0),
		},
		Survey: SurveyConfig{
			PostChatURL: getEnv("POST_CHAT_URL", ""),
			NoChatURL:   getEnv("NO_CHAT_URL", ""),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}
	if c.Chat.MinWordCount < 1 {
		return errors.New("MIN_COUNTED_MESSAGE_WORD_COUNT must be positive")
	}
	if c.Chat.RephraseEveryNTurns < 1 {
		return errors.New("REPHRASE_EVERY_N_TURNS must be positive")
	}
	if c.Matching.SweepInterval <= 0 {
		return errors.New("MATCH_SWEEP_INTERVAL must be positive")
	}
	if c.Rephrasing.MaxAttempts < 1 {
		return errors.New("MAX_REPHRASING_ATTEMPTS must be positive")
	}
	switch c.Rephrasing.Provider {
	case "mock":
	case "openai":
		if c.Rephrasing.APIKey == "" {
			return errors.New("OPENAI_API_KEY must be set when REPHRASING_PROVIDER=openai")
		}
	default:
		return fmt.Errorf("unknown REPHRASING_PROVIDER %q", c.Rephrasing.Provider)
	}
	for _, s := range c.Rephrasing.Strategies {
		if _, ok := StrategyLogitBiases[s]; !ok {
			return fmt.Errorf("unknown rephrasing strategy %q", s)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
