package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"concierge/pkg/errors"
)

type Config struct {
	App           AppConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Telegram      TelegramConfig
	AI            AIConfig
	Session       SessionConfig
	Memory        MemoryConfig
	Handoff       HandoffConfig
	ErrorTracking ErrorTrackingConfig
	Metrics       MetricsConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"concierge"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type ClickHouseConfig struct {
	Host     string `envconfig:"CLICKHOUSE_HOST" required:"true"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"concierge"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" required:"true"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Brokers       []string `envconfig:"KAFKA_BROKERS" required:"true"`
	GroupID       string   `envconfig:"KAFKA_GROUP_ID" default:"concierge"`
	InboundTopic  string   `envconfig:"KAFKA_INBOUND_TOPIC" default:"chat.inbound"`
	OutboundTopic string   `envconfig:"KAFKA_OUTBOUND_TOPIC" default:"chat.outbound"`
}

type TelegramConfig struct {
	BotToken        string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	OperatorChatIDs []int64 `envconfig:"TELEGRAM_OPERATOR_CHAT_IDS"`
}

type AIConfig struct {
	OpenAIKey       string        `envconfig:"OPENAI_API_KEY" required:"true"`
	ChatModel       string        `envconfig:"AI_CHAT_MODEL" default:"gpt-4o"`
	SummaryModel    string        `envconfig:"AI_SUMMARY_MODEL" default:"gpt-4o-mini"`
	RequestTimeout  time.Duration `envconfig:"AI_REQUEST_TIMEOUT" default:"45s"`
	RequestsPerMin  float64       `envconfig:"AI_REQUESTS_PER_MINUTE" default:"300"`
	MaxTokens       int           `envconfig:"AI_MAX_TOKENS" default:"1024"`
	MaxIterations   int           `envconfig:"AI_MAX_TOOL_ITERATIONS" default:"10"`
	ToolCallTimeout time.Duration `envconfig:"AI_TOOL_CALL_TIMEOUT" default:"15s"`
}

// SessionConfig bounds the ephemeral per-conversation state
type SessionConfig struct {
	StateTTL        time.Duration `envconfig:"SESSION_STATE_TTL" default:"24h"`
	MemoryTTL       time.Duration `envconfig:"SESSION_MEMORY_TTL" default:"24h"`
	ConfirmationTTL time.Duration `envconfig:"SESSION_CONFIRMATION_TTL" default:"10m"`
	HistoryWindow   int           `envconfig:"SESSION_HISTORY_WINDOW" default:"20"`
}

// MemoryConfig tunes long-term memory extraction and retrieval
type MemoryConfig struct {
	MinMessages      int           `envconfig:"MEMORY_MIN_MESSAGES" default:"4"`
	UpdateCadence    int           `envconfig:"MEMORY_UPDATE_CADENCE" default:"5"`
	MaxFacts         int           `envconfig:"MEMORY_MAX_FACTS" default:"8"`
	MaxPreferences   int           `envconfig:"MEMORY_MAX_PREFERENCES" default:"6"`
	MaxEntities      int           `envconfig:"MEMORY_MAX_ENTITIES" default:"6"`
	SummaryTTL       time.Duration `envconfig:"MEMORY_SUMMARY_TTL" default:"720h"`
	FactTTL          time.Duration `envconfig:"MEMORY_FACT_TTL" default:"2160h"`
	PreferenceTTL    time.Duration `envconfig:"MEMORY_PREFERENCE_TTL" default:"4320h"`
	EntityTTL        time.Duration `envconfig:"MEMORY_ENTITY_TTL" default:"2160h"`
	ExtractionWindow int           `envconfig:"MEMORY_EXTRACTION_WINDOW" default:"12"`
}

// HandoffConfig tunes the escalation policy
type HandoffConfig struct {
	MaxConsecutiveFailures int           `envconfig:"HANDOFF_MAX_FAILURES" default:"2"`
	RepeatWindow           time.Duration `envconfig:"HANDOFF_REPEAT_WINDOW" default:"2h"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

type MetricsConfig struct {
	Enabled bool `envconfig:"METRICS_ENABLED" default:"true"`
	Port    int  `envconfig:"METRICS_PORT" default:"9091"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
