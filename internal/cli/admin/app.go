package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/supportkb/internal/cache"
	"github.com/cloo-solutions/supportkb/internal/config"
	"github.com/cloo-solutions/supportkb/internal/database"
	"github.com/cloo-solutions/supportkb/internal/embedding"
	"github.com/cloo-solutions/supportkb/internal/jobs"
	"github.com/cloo-solutions/supportkb/internal/logging"
	"github.com/cloo-solutions/supportkb/internal/openai"
	"github.com/cloo-solutions/supportkb/internal/repository"
	"github.com/cloo-solutions/supportkb/internal/service"
	"github.com/cloo-solutions/supportkb/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	gopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// app holds the process-wide dependencies shared by every daemon command.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool

	ingestion *service.IngestionService
	kb        *service.KnowledgeBase
	worker    *jobs.EmbeddingWorker
	notifier  *jobs.KafkaNotifier

	closers []func()
}

type appOptions struct {
	migrate bool
}

func newApp(ctx context.Context, opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.New(logging.Config{Debug: cfg.Debug, File: cfg.LogFile})
	a := &app{cfg: cfg, logger: logger}
	a.onClose(func() { _ = logger.Sync() })
	a.onClose(logging.Install(logger))

	shutdownTelemetry, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: sampleRate(cfg.Environment),
		Debug:            cfg.Debug,
	}, logger)
	if err != nil {
		logger.Warn("telemetry init failed, continuing without tracing", zap.Error(err))
	} else {
		a.onClose(shutdownTelemetry)
	}

	if err := a.wire(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, opts appOptions) error {
	cfg := a.cfg

	if opts.migrate {
		if err := database.Migrate(cfg.DatabaseURL, a.logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns})
	if err != nil {
		return err
	}
	a.pool = pool
	a.onClose(pool.Close)
	a.logger.Info("connected to database")

	indexEmbedder, err := a.newEmbedder()
	if err != nil {
		return err
	}
	queryEmbedder, err := a.withQueryCache(ctx, indexEmbedder)
	if err != nil {
		return err
	}

	articles := repository.NewArticleRepository(pool)
	chunks := repository.NewChunkRepository(pool)
	jobRepo := repository.NewEmbeddingJobRepository(pool)

	a.ingestion = service.NewIngestionService(repository.NewTxRunner(pool), articles, jobRepo, a.logger).
		WithChunkCounter(chunks)
	if cfg.HasKafka() {
		a.notifier = jobs.NewKafkaNotifier(a.kafkaConfig())
		a.onClose(func() {
			if err := a.notifier.Close(); err != nil {
				a.logger.Warn("failed to close kafka notifier", zap.Error(err))
			}
		})
		a.ingestion.WithNotifier(a.notifier)
	}

	a.kb = service.NewKnowledgeBase(
		service.NewRetriever(queryEmbedder, chunks, service.RetrieverConfig{
			Threshold: cfg.SearchThreshold,
			TopK:      cfg.SearchTopK,
		}),
		service.NewAnswerSynthesizer(a.newChatCompleter(), 0),
	)

	indexer := service.NewEmbeddingService(indexEmbedder, chunks, a.logger)
	a.worker = jobs.NewEmbeddingWorker(jobRepo, articles, indexer, jobs.Config{
		BatchSize:      cfg.BatchSize,
		MaxAttempts:    int(cfg.JobMaxAttempts),
		StaleTimeout:   cfg.StaleJobTimeout,
		SkipSuperseded: cfg.SkipSupersededJobs,
	}, a.logger)

	return nil
}

func (a *app) newEmbedder() (service.Embedder, error) {
	cfg := a.cfg
	if cfg.EmbeddingProvider == config.ProviderHash {
		a.logger.Info("using offline hash embeddings", zap.Int("dimensions", cfg.EmbeddingDimensions))
		return embedding.NewHashEmbedder(cfg.EmbeddingDimensions), nil
	}
	if !cfg.HasOpenAIEmbeddings() {
		return nil, errors.New("SUPPORTKB_EMBEDDING_API_KEY is required for the openai embedding provider")
	}
	a.logger.Info("using openai embeddings",
		zap.String("model", cfg.EmbeddingModel),
		zap.Int("dimensions", cfg.EmbeddingDimensions),
	)
	return openai.NewEmbedder(a.openAIConfig(cfg.EmbeddingAPIKey)), nil
}

// withQueryCache wraps the embedder used for search queries in Redis, or in
// process memory when Redis is not configured. Indexing always goes to the
// provider.
func (a *app) withQueryCache(ctx context.Context, next service.Embedder) (service.Embedder, error) {
	if a.cfg.QueryCacheTTL <= 0 {
		return next, nil
	}

	var store cache.Store
	if a.cfg.HasRedis() {
		redisStore, err := cache.NewRedisStore(ctx, a.cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = redisStore.Close() })
		store = redisStore
		a.logger.Info("query embedding cache enabled", zap.String("backend", "redis"), zap.Duration("ttl", a.cfg.QueryCacheTTL))
	} else {
		store = cache.NewLocalStore(a.cfg.QueryCacheTTL)
		a.logger.Info("query embedding cache enabled", zap.String("backend", "memory"), zap.Duration("ttl", a.cfg.QueryCacheTTL))
	}

	model := a.cfg.EmbeddingProvider + ":" + a.cfg.EmbeddingModel
	return cache.NewCachedEmbedder(next, store, model, a.cfg.QueryCacheTTL, a.logger), nil
}

func (a *app) newChatCompleter() service.ChatCompleter {
	if !a.cfg.HasLLM() {
		a.logger.Info("no LLM configured, answers fall back to the no-answer message")
		return openai.NoopCompleter{}
	}
	return openai.NewChatCompleter(a.openAIConfig(a.cfg.LLMAPIKey))
}

func (a *app) openAIConfig(apiKey string) openai.Config {
	return openai.Config{
		APIKey:              apiKey,
		BaseURL:             a.cfg.OpenAIBaseURL,
		EmbeddingModel:      gopenai.EmbeddingModel(a.cfg.EmbeddingModel),
		EmbeddingDimensions: a.cfg.EmbeddingDimensions,
		BatchSize:           a.cfg.EmbeddingBatchSize,
		ChatModel:           a.cfg.LLMModel,
	}
}

func (a *app) kafkaConfig() jobs.KafkaConfig {
	return jobs.KafkaConfig{
		Brokers: a.cfg.KafkaBrokers,
		Topic:   a.cfg.KafkaTopic,
		GroupID: a.cfg.KafkaGroupID,
	}
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// sampleRate traces everything in development and 10% elsewhere.
func sampleRate(environment string) float64 {
	if environment == "development" {
		return 1.0
	}
	return 0.1
}
