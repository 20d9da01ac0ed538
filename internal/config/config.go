package config

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"market_briefing/internal/models"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration.
type Config struct {
	Version string

	LogLevel      string
	LogFile       string
	MaxLogSizeMB  int64
	MaxLogBackups int

	TelegramBotToken string
	TelegramChatID   int64

	LLMProvider        string
	GeminiAPIKey       string
	GeminiModel        string
	AnthropicAPIKey    string
	OpenAIAPIKey       string
	LLMMinInterval     time.Duration
	LLMMaxAttempts     int
	LLMRetryBase       time.Duration
	TranscriptMaxChars int
	ItemTimeout        time.Duration

	Channels       []models.Channel
	TranscriptLang string
	Location       *time.Location

	CacheBackend string
	RedisURL     string
	CacheTTL     time.Duration

	DatabasePath string
	DatabaseURL  string

	MessageDelay time.Duration

	FullBriefingAt   Clock
	UpdateBriefingAt []Clock
	WeeklyReviewDay  time.Weekday
	WeeklyReviewAt   Clock
	SchedulerRetries int
	SchedulerBackoff time.Duration
	StateFile        string

	HTTPAddr string
}

// secrets are masked when the effective configuration is printed.
var secrets = map[string]bool{
	"TELEGRAM_BOT_TOKEN":  true,
	"GEMINI_API_KEY":      true,
	"ANTHROPIC_API_KEY":   true,
	"OPENAI_API_KEY":      true,
	"APCA_API_SECRET_KEY": true,
	"REDIS_URL":           true,
	"DATABASE_URL":        true,
}

var required = []string{"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID"}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("LOG_LEVEL", "INFO")
	v.SetDefault("LOG_FILE", "briefing.log")
	v.SetDefault("MAX_LOG_SIZE_MB", 10)
	v.SetDefault("MAX_LOG_BACKUPS", 3)

	v.SetDefault("LLM_PROVIDER", "gemini")
	v.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	v.SetDefault("LLM_MIN_INTERVAL_MS", 1000)
	v.SetDefault("LLM_MAX_ATTEMPTS", 3)
	v.SetDefault("LLM_RETRY_BASE_MS", 2000)
	v.SetDefault("TRANSCRIPT_MAX_CHARS", 30000)
	v.SetDefault("ITEM_TIMEOUT_SEC", 180)

	v.SetDefault("YOUTUBE_CHANNELS", "")
	v.SetDefault("TRANSCRIPT_LANG", "ko")
	v.SetDefault("BRIEFING_TZ", "Asia/Seoul")

	v.SetDefault("CACHE_BACKEND", "memory")
	v.SetDefault("CACHE_TTL_HOURS", 24)
	v.SetDefault("DATABASE_PATH", "briefing.db")

	v.SetDefault("MESSAGE_DELAY_MS", 500)

	v.SetDefault("FULL_BRIEFING_AT", "05:30")
	v.SetDefault("UPDATE_BRIEFING_AT", "12:00,18:00")
	v.SetDefault("WEEKLY_REVIEW_DAY", "Sunday")
	v.SetDefault("WEEKLY_REVIEW_AT", "09:00")
	v.SetDefault("SCHEDULER_MAX_ATTEMPTS", 3)
	v.SetDefault("SCHEDULER_BACKOFF_SEC", 60)
	v.SetDefault("STATE_FILE", "briefing_state.json")
	return v
}

// Load reads the .env file (if any) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: No .env file found, using system environment variables")
	}

	v := newViper()

	var missing []string
	for _, key := range required {
		if strings.TrimSpace(v.GetString(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %v", missing)
	}

	chatID, err := parseChatID(v.GetString("TELEGRAM_CHAT_ID"))
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(v.GetString("BRIEFING_TZ"))
	if err != nil {
		return nil, fmt.Errorf("invalid BRIEFING_TZ %q: %w", v.GetString("BRIEFING_TZ"), err)
	}

	channels, err := ParseChannels(v.GetString("YOUTUBE_CHANNELS"))
	if err != nil {
		return nil, err
	}

	fullAt, err := ParseClock(v.GetString("FULL_BRIEFING_AT"))
	if err != nil {
		return nil, err
	}
	updateAt, err := ParseClockList(v.GetString("UPDATE_BRIEFING_AT"))
	if err != nil {
		return nil, err
	}
	weeklyAt, err := ParseClock(v.GetString("WEEKLY_REVIEW_AT"))
	if err != nil {
		return nil, err
	}
	weeklyDay, err := ParseWeekday(v.GetString("WEEKLY_REVIEW_DAY"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:      strings.ToUpper(v.GetString("LOG_LEVEL")),
		LogFile:       v.GetString("LOG_FILE"),
		MaxLogSizeMB:  v.GetInt64("MAX_LOG_SIZE_MB"),
		MaxLogBackups: v.GetInt("MAX_LOG_BACKUPS"),

		TelegramBotToken: v.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:   chatID,

		LLMProvider:        strings.ToLower(v.GetString("LLM_PROVIDER")),
		GeminiAPIKey:       v.GetString("GEMINI_API_KEY"),
		GeminiModel:        v.GetString("GEMINI_MODEL"),
		AnthropicAPIKey:    v.GetString("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:       v.GetString("OPENAI_API_KEY"),
		LLMMinInterval:     time.Duration(v.GetInt("LLM_MIN_INTERVAL_MS")) * time.Millisecond,
		LLMMaxAttempts:     v.GetInt("LLM_MAX_ATTEMPTS"),
		LLMRetryBase:       time.Duration(v.GetInt("LLM_RETRY_BASE_MS")) * time.Millisecond,
		TranscriptMaxChars: v.GetInt("TRANSCRIPT_MAX_CHARS"),
		ItemTimeout:        time.Duration(v.GetInt("ITEM_TIMEOUT_SEC")) * time.Second,

		Channels:       channels,
		TranscriptLang: v.GetString("TRANSCRIPT_LANG"),
		Location:       loc,

		CacheBackend: strings.ToLower(v.GetString("CACHE_BACKEND")),
		RedisURL:     v.GetString("REDIS_URL"),
		CacheTTL:     time.Duration(v.GetInt("CACHE_TTL_HOURS")) * time.Hour,

		DatabasePath: v.GetString("DATABASE_PATH"),
		DatabaseURL:  v.GetString("DATABASE_URL"),

		MessageDelay: time.Duration(v.GetInt("MESSAGE_DELAY_MS")) * time.Millisecond,

		FullBriefingAt:   fullAt,
		UpdateBriefingAt: updateAt,
		WeeklyReviewDay:  weeklyDay,
		WeeklyReviewAt:   weeklyAt,
		SchedulerRetries: v.GetInt("SCHEDULER_MAX_ATTEMPTS"),
		SchedulerBackoff: time.Duration(v.GetInt("SCHEDULER_BACKOFF_SEC")) * time.Second,
		StateFile:        v.GetString("STATE_FILE"),

		HTTPAddr: v.GetString("HTTP_ADDR"),
	}

	switch cfg.LLMProvider {
	case "gemini", "anthropic", "openai":
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER %q", cfg.LLMProvider)
	}
	if cfg.CacheBackend == "redis" && cfg.RedisURL == "" {
		return nil, fmt.Errorf("CACHE_BACKEND=redis requires REDIS_URL")
	}

	return cfg, nil
}

// LogEffective prints the .env-sourced variables, masking secrets.
func LogEffective() {
	envMap, err := godotenv.Read()
	if err != nil {
		return
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	log.Println("--- .env File Variables ---")
	for _, key := range keys {
		log.Printf("%s=%s", key, Mask(key, envMap[key]))
	}
	log.Println("---------------------------")
}

// Mask hides all but the last 4 characters of secret values.
func Mask(key, val string) string {
	if !secrets[key] {
		return val
	}
	if len(val) > 4 {
		return "***" + val[len(val)-4:]
	}
	return "***"
}
