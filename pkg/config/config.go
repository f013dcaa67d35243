// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, OpenAI, Drive, Knowledge, Redis, Postgres, Kafka,
// Telegram, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Adithya-Monish-Kumar-K/Regulatory-QA-Assistant/pkg/errors"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	RPC       RPCConfig       `yaml:"rpc"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Drive     DriveConfig     `yaml:"drive"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Session   SessionConfig   `yaml:"session"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// RPCConfig holds the internal JSON-over-TCP RPC endpoint.
type RPCConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// OpenAIConfig holds credentials and model choices for the hosted language
// model provider.
type OpenAIConfig struct {
	APIKey          string        `yaml:"apiKey"`
	BaseURL         string        `yaml:"baseUrl"`
	EmbeddingModel  string        `yaml:"embeddingModel"`
	ChatModel       string        `yaml:"chatModel"`
	ModerationModel string        `yaml:"moderationModel"`
	Temperature     float32       `yaml:"temperature"`
	MaxTokens       int           `yaml:"maxTokens"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxAttempts     int           `yaml:"maxAttempts"`
}

// DriveConfig identifies the remote folder holding the source documents and
// the OAuth credentials used to read it.
type DriveConfig struct {
	FolderID     string        `yaml:"folderId"`
	ClientID     string        `yaml:"clientId"`
	ClientSecret string        `yaml:"clientSecret"`
	RefreshToken string        `yaml:"refreshToken"`
	PageSize     int64         `yaml:"pageSize"`
	Timeout      time.Duration `yaml:"timeout"`
}

// KnowledgeConfig controls the retrieval core.
type KnowledgeConfig struct {
	IndexPath          string        `yaml:"indexPath"`
	TopK               int           `yaml:"topK"`
	RefreshConcurrency int           `yaml:"refreshConcurrency"`
	Domain             string        `yaml:"domain"`
	SystemPrompt       string        `yaml:"systemPrompt"`
	MaxQueryLength     int           `yaml:"maxQueryLength"`
	AnswerTimeout      time.Duration `yaml:"answerTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for the ingestion
// ledger. An empty Host disables the ledger.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings. No brokers disables
// event publishing.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	KnowledgeRefreshed string `yaml:"knowledgeRefreshed"`
	QueryAnalytics     string `yaml:"queryAnalytics"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// TelegramConfig controls the chat bot surface.
type TelegramConfig struct {
	BotToken               string  `yaml:"botToken"`
	WebhookSecret          string  `yaml:"webhookSecret"`
	LowConfidenceThreshold float64 `yaml:"lowConfidenceThreshold"`
	PollTimeout            int     `yaml:"pollTimeout"`
}

// SessionConfig controls conversation session lifetime.
type SessionConfig struct {
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	MaxTurns        int           `yaml:"maxTurns"`
	MessagesPerHour int           `yaml:"messagesPerHour"`
}

// AuthConfig lists the API keys allowed to call admin endpoints.
type AuthConfig struct {
	AdminKeys []string `yaml:"adminKeys"`
}

// RateLimitConfig controls the per-client limit on the public API.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requestsPerMinute"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values. A missing file at the default path is not an error.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// Validate reports missing credentials required by every service. Drive
// credentials are only required when needDrive is set, since the query path
// can run from a persisted index alone.
func (c *Config) Validate(needDrive bool) error {
	var missing []string
	if c.OpenAI.APIKey == "" {
		missing = append(missing, "openai.apiKey")
	}
	if needDrive {
		if c.Drive.FolderID == "" {
			missing = append(missing, "drive.folderId")
		}
		if c.Drive.ClientID == "" || c.Drive.ClientSecret == "" || c.Drive.RefreshToken == "" {
			missing = append(missing, "drive oauth credentials")
		}
	}
	if len(missing) > 0 {
		return apperrors.Configuration("missing %s", strings.Join(missing, ", "))
	}
	if c.OpenAI.Temperature < 0 || c.OpenAI.Temperature > 0.3 {
		return apperrors.Configuration("openai.temperature must be within [0, 0.3], got %.2f", c.OpenAI.Temperature)
	}
	if c.Knowledge.TopK <= 0 {
		return apperrors.Configuration("knowledge.topK must be positive")
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		RPC: RPCConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9400",
		},
		OpenAI: OpenAIConfig{
			EmbeddingModel:  "text-embedding-3-small",
			ChatModel:       "gpt-4",
			ModerationModel: "omni-moderation-latest",
			Temperature:     0.3,
			MaxTokens:       500,
			Timeout:         30 * time.Second,
			MaxAttempts:     3,
		},
		Drive: DriveConfig{
			PageSize: 100,
			Timeout:  60 * time.Second,
		},
		Knowledge: KnowledgeConfig{
			IndexPath:          "data/vector_store.gob",
			TopK:               3,
			RefreshConcurrency: 1,
			Domain:             "Tanzanian aviation regulations",
			MaxQueryLength:     4000,
			AnswerTimeout:      2 * time.Minute,
		},
		Postgres: PostgresConfig{
			Port:            5432,
			Database:        "regulatoryqa",
			User:            "regulatoryqa",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			ConsumerGroup: "regulatoryqa-group",
			Topics: KafkaTopics{
				KnowledgeRefreshed: "knowledge.refreshed",
				QueryAnalytics:     "query-analytics",
			},
		},
		Redis: RedisConfig{
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Telegram: TelegramConfig{
			LowConfidenceThreshold: 0.5,
			PollTimeout:            60,
		},
		Session: SessionConfig{
			IdleTimeout:     30 * time.Minute,
			MaxTurns:        10,
			MessagesPerHour: 60,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads RQ_* environment variables (plus the conventional
// OPENAI_API_KEY, REGULATIONS_FOLDER_ID and TELEGRAM_BOT_TOKEN) and overrides
// the corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := firstEnv("RQ_OPENAI_API_KEY", "OPENAI_API_KEY"); v != "" {
		cfg.OpenAI.APIKey = v
	}
	if v := os.Getenv("RQ_OPENAI_BASE_URL"); v != "" {
		cfg.OpenAI.BaseURL = v
	}
	if v := os.Getenv("RQ_OPENAI_CHAT_MODEL"); v != "" {
		cfg.OpenAI.ChatModel = v
	}
	if v := os.Getenv("RQ_OPENAI_EMBEDDING_MODEL"); v != "" {
		cfg.OpenAI.EmbeddingModel = v
	}
	if v := firstEnv("RQ_DRIVE_FOLDER_ID", "REGULATIONS_FOLDER_ID"); v != "" {
		cfg.Drive.FolderID = v
	}
	if v := os.Getenv("RQ_DRIVE_CLIENT_ID"); v != "" {
		cfg.Drive.ClientID = v
	}
	if v := os.Getenv("RQ_DRIVE_CLIENT_SECRET"); v != "" {
		cfg.Drive.ClientSecret = v
	}
	if v := os.Getenv("RQ_DRIVE_REFRESH_TOKEN"); v != "" {
		cfg.Drive.RefreshToken = v
	}
	if v := os.Getenv("RQ_KNOWLEDGE_INDEX_PATH"); v != "" {
		cfg.Knowledge.IndexPath = v
	}
	if v := os.Getenv("RQ_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("RQ_RPC_ADDR"); v != "" {
		cfg.RPC.Addr = v
	}
	if v := os.Getenv("RQ_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("RQ_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("RQ_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("RQ_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("RQ_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("RQ_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("RQ_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RQ_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := firstEnv("RQ_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("RQ_TELEGRAM_WEBHOOK_SECRET"); v != "" {
		cfg.Telegram.WebhookSecret = v
	}
	if v := os.Getenv("RQ_ADMIN_KEYS"); v != "" {
		cfg.Auth.AdminKeys = strings.Split(v, ",")
	}
	if v := os.Getenv("RQ_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("RQ_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
