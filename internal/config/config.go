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

// Version is reported by the health and stats endpoints.
const Version = "2.0"

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// UltraMsg gateway
	UltraMsgToken        string
	UltraMsgInstance     string
	UltraMsgBaseURL      string
	GatewayTimeout       time.Duration
	GatewayRatePerSecond float64

	// Generative backend
	OpenAIAPIKey   string
	OpenAIModel    string
	GeminiAPIKey   string
	GeminiModel    string
	LLMTemperature float64
	LLMMaxTokens   int
	LLMContextSize int

	// Optional Redis session backend
	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool
	RedisKeyPrefix string

	// Business hours, local to a fixed UTC offset unless a zone name is given
	BusinessHoursOpen      string
	BusinessHoursClose     string
	BusinessHoursUTCOffset time.Duration
	BusinessHoursTimezone  string

	// Session throttles
	WelcomeInterval          time.Duration
	OutOfHoursNoticeInterval time.Duration
	AttachmentBlockDuration  time.Duration
	HistoryMaxTurns          int
	HistoryKeepTurns         int

	// Guards
	RateLimitMax      int
	RateLimitWindow   time.Duration
	MinMessageSpacing time.Duration
	DedupCooldown     time.Duration
	// DedupLastSentTTL bounds the guard that holds back a repeat of the
	// previous outbound message, regardless of the cool-down.
	DedupLastSentTTL time.Duration
	// WebhookIPRate enables a per-IP /webhook limiter when positive. Gateway
	// callbacks share source IPs, so it only suits non-gateway floods.
	WebhookIPRate  float64
	WebhookIPBurst int

	// Response cache
	ResponseCacheSize  int
	ResponseCacheEvict int

	// Janitor
	JanitorInterval   time.Duration
	SessionTTL        time.Duration
	SupportSessionTTL time.Duration

	AdminJWTSecret string
}

// Load reads configuration from environment variables, after merging an optional .env file.
func Load() *Config {
	_ = godotenv.Load()
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		UltraMsgToken:        getEnv("ULTRAMSG_TOKEN", ""),
		UltraMsgInstance:     getEnv("ULTRAMSG_INSTANCE", "instance129239"),
		UltraMsgBaseURL:      getEnv("ULTRAMSG_BASE_URL", "https://api.ultramsg.com"),
		GatewayTimeout:       getEnvAsDuration("GATEWAY_TIMEOUT", 15*time.Second),
		GatewayRatePerSecond: getEnvAsFloat("GATEWAY_RATE_PER_SECOND", 5),

		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-3.5-turbo"),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		LLMTemperature: getEnvAsFloat("LLM_TEMPERATURE", 0.3),
		LLMMaxTokens:   getEnvAsInt("LLM_MAX_TOKENS", 500),
		LLMContextSize: getEnvAsInt("LLM_CONTEXT_TURNS", 6),

		RedisAddr:      getEnv("REDIS_ADDR", ""),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),
		RedisKeyPrefix: getEnv("REDIS_KEY_PREFIX", "multiplay:session:"),

		BusinessHoursOpen:      getEnv("BUSINESS_HOURS_OPEN", "07:00"),
		BusinessHoursClose:     getEnv("BUSINESS_HOURS_CLOSE", "23:00"),
		BusinessHoursUTCOffset: getEnvAsDuration("BUSINESS_HOURS_UTC_OFFSET", -5*time.Hour),
		BusinessHoursTimezone:  getEnv("BUSINESS_HOURS_TZ", ""),

		WelcomeInterval:          getEnvAsDuration("WELCOME_INTERVAL", 30*time.Minute),
		OutOfHoursNoticeInterval: getEnvAsDuration("OUT_OF_HOURS_NOTICE_INTERVAL", 30*time.Minute),
		AttachmentBlockDuration:  getEnvAsDuration("ATTACHMENT_BLOCK_DURATION", time.Hour),
		HistoryMaxTurns:          getEnvAsInt("HISTORY_MAX_TURNS", 20),
		HistoryKeepTurns:         getEnvAsInt("HISTORY_KEEP_TURNS", 10),

		RateLimitMax:      getEnvAsInt("RATE_LIMIT_MAX", 10),
		RateLimitWindow:   getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		MinMessageSpacing: getEnvAsDuration("MIN_MESSAGE_SPACING", 3*time.Second),
		DedupCooldown:     getEnvAsDuration("DEDUP_COOLDOWN", time.Minute),
		DedupLastSentTTL:  getEnvAsDuration("DEDUP_LAST_SENT_TTL", 2*time.Hour),
		WebhookIPRate:     getEnvAsFloat("WEBHOOK_IP_RATE", 0),
		WebhookIPBurst:    getEnvAsInt("WEBHOOK_IP_BURST", 40),

		ResponseCacheSize:  getEnvAsInt("RESPONSE_CACHE_SIZE", 100),
		ResponseCacheEvict: getEnvAsInt("RESPONSE_CACHE_EVICT", 20),

		JanitorInterval:   getEnvAsDuration("JANITOR_INTERVAL", time.Hour),
		SessionTTL:        getEnvAsDuration("SESSION_TTL", 2*time.Hour),
		SupportSessionTTL: getEnvAsDuration("SUPPORT_SESSION_TTL", 24*time.Hour),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
	}
}

// Validate reports missing or malformed credentials the service cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.UltraMsgToken) == "" {
		errs = append(errs, errors.New("ULTRAMSG_TOKEN is required"))
	}
	if strings.TrimSpace(c.UltraMsgInstance) == "" {
		errs = append(errs, errors.New("ULTRAMSG_INSTANCE is required"))
	}
	if !strings.HasPrefix(c.OpenAIAPIKey, "sk-") {
		errs = append(errs, errors.New("OPENAI_API_KEY missing or malformed"))
	}
	if c.RateLimitMax <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_MAX must be positive, got %d", c.RateLimitMax))
	}
	if c.HistoryKeepTurns > c.HistoryMaxTurns {
		errs = append(errs, fmt.Errorf("HISTORY_KEEP_TURNS (%d) exceeds HISTORY_MAX_TURNS (%d)", c.HistoryKeepTurns, c.HistoryMaxTurns))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
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

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
