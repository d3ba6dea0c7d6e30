package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "SUPPORTKB"

// Embedding provider names.
const (
	ProviderOpenAI = "openai"
	ProviderHash   = "hash"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	LogFile     string `envconfig:"LOG_FILE"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`

	EmbeddingProvider   string `envconfig:"EMBEDDING_PROVIDER" default:"openai"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`
	EmbeddingAPIKey     string `envconfig:"EMBEDDING_API_KEY"`
	EmbeddingBatchSize  int    `envconfig:"EMBEDDING_BATCH_SIZE" default:"64"`

	LLMModel      string `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	LLMAPIKey     string `envconfig:"LLM_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL"`

	SearchThreshold float64 `envconfig:"SEARCH_THRESHOLD" default:"0.5"`
	SearchTopK      int     `envconfig:"SEARCH_TOP_K" default:"5"`

	BatchSize          int           `envconfig:"BATCH_SIZE" default:"10"`
	PollingInterval    time.Duration `envconfig:"POLLING_INTERVAL" default:"5s"`
	JobMaxAttempts     int32         `envconfig:"JOB_MAX_ATTEMPTS" default:"3"`
	StaleJobTimeout    time.Duration `envconfig:"STALE_JOB_TIMEOUT" default:"15m"`
	SkipSupersededJobs bool          `envconfig:"SKIP_SUPERSEDED_JOBS" default:"true"`

	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`
	KafkaTopic   string   `envconfig:"KAFKA_TOPIC" default:"supportkb.embedding-jobs"`
	KafkaGroupID string   `envconfig:"KAFKA_GROUP_ID" default:"supportkb-workers"`

	RedisURL      string        `envconfig:"REDIS_URL"`
	QueryCacheTTL time.Duration `envconfig:"QUERY_CACHE_TTL" default:"24h"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.EmbeddingProvider {
	case ProviderOpenAI, ProviderHash:
	default:
		return fmt.Errorf("invalid %s_EMBEDDING_PROVIDER %q (want %s or %s)", envPrefix, c.EmbeddingProvider, ProviderOpenAI, ProviderHash)
	}
	if c.SearchThreshold < 0 || c.SearchThreshold > 1 {
		return fmt.Errorf("%s_SEARCH_THRESHOLD must be within [0,1], got %v", envPrefix, c.SearchThreshold)
	}
	if c.SearchTopK <= 0 {
		return fmt.Errorf("%s_SEARCH_TOP_K must be positive, got %d", envPrefix, c.SearchTopK)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%s_BATCH_SIZE must be positive, got %d", envPrefix, c.BatchSize)
	}
	if c.PollingInterval <= 0 {
		return fmt.Errorf("%s_POLLING_INTERVAL must be positive, got %s", envPrefix, c.PollingInterval)
	}
	if c.JobMaxAttempts <= 0 {
		return fmt.Errorf("%s_JOB_MAX_ATTEMPTS must be positive, got %d", envPrefix, c.JobMaxAttempts)
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("%s_EMBEDDING_DIMENSIONS must be positive, got %d", envPrefix, c.EmbeddingDimensions)
	}
	return nil
}

// HasOpenAIEmbeddings reports whether the OpenAI embedding provider is usable.
func (c *Config) HasOpenAIEmbeddings() bool {
	return c.EmbeddingProvider == ProviderOpenAI && c.EmbeddingAPIKey != ""
}

// HasLLM reports whether answers can be generated by a language model.
func (c *Config) HasLLM() bool {
	return c.LLMAPIKey != ""
}

func (c *Config) HasKafka() bool {
	return len(c.KafkaBrokers) > 0 && strings.TrimSpace(c.KafkaTopic) != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}
