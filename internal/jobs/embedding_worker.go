package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloo-solutions/supportkb/internal/domain"
	"github.com/cloo-solutions/supportkb/internal/logging"
	"github.com/cloo-solutions/supportkb/internal/telemetry"
	"go.uber.org/zap"
)

const (
	NoteSuperseded  = "superseded by a newer job"
	NoteUnpublished = "article unpublished before indexing"
)

// EmbeddingJobRepository is the claim/complete/fail contract shared by the
// polling loop and push transports.
type EmbeddingJobRepository interface {
	ClaimPending(ctx context.Context, limit int) ([]*domain.EmbeddingJob, error)
	Claim(ctx context.Context, id string) (*domain.EmbeddingJob, error)
	Complete(ctx context.Context, id, note string) error
	Fail(ctx context.Context, id, errMsg string) error
	Requeue(ctx context.Context, id, errMsg string) error
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
	HasNewerJob(ctx context.Context, job *domain.EmbeddingJob) (bool, error)
}

type ArticleReader interface {
	GetByID(ctx context.Context, id string) (*domain.Article, error)
}

// ArticleIndexer regenerates the chunks of one article.
type ArticleIndexer interface {
	IndexArticle(ctx context.Context, article *domain.Article) (int, error)
}

type Config struct {
	BatchSize      int
	MaxAttempts    int
	StaleTimeout   time.Duration
	SkipSuperseded bool
}

func DefaultConfig() Config {
	return Config{
		BatchSize:      10,
		MaxAttempts:    3,
		StaleTimeout:   15 * time.Minute,
		SkipSuperseded: true,
	}
}

// EmbeddingWorker processes embedding jobs
type EmbeddingWorker struct {
	repo     EmbeddingJobRepository
	articles ArticleReader
	indexer  ArticleIndexer
	cfg      Config
	logger   *zap.Logger
}

func NewEmbeddingWorker(repo EmbeddingJobRepository, articles ArticleReader, indexer ArticleIndexer, cfg Config, logger *zap.Logger) *EmbeddingWorker {
	defaults := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	return &EmbeddingWorker{
		repo:     repo,
		articles: articles,
		indexer:  indexer,
		cfg:      cfg,
		logger:   logging.OrNop(logger),
	}
}

// ProcessJobs implements the JobProcessor interface. A failing job is recorded
// and the batch continues with the next one.
func (w *EmbeddingWorker) ProcessJobs(ctx context.Context) error {
	if w.cfg.StaleTimeout > 0 {
		n, err := w.repo.RequeueStale(ctx, w.cfg.StaleTimeout)
		if err != nil {
			w.logger.Warn("failed to requeue stale jobs", zap.Error(err))
		} else if n > 0 {
			w.logger.Warn("requeued stale jobs", zap.Int64("count", n))
		}
	}

	jobs, err := w.repo.ClaimPending(ctx, w.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to claim pending jobs: %w", err)
	}

	if len(jobs) == 0 {
		return nil
	}

	w.logger.Info("processing embedding jobs", zap.Int("count", len(jobs)))

	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			w.logger.Error("error processing job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}

	return nil
}

// ProcessJob claims and runs a single job. A job that is no longer pending
// was taken by another worker and is skipped.
func (w *EmbeddingWorker) ProcessJob(ctx context.Context, jobID string) error {
	job, err := w.repo.Claim(ctx, jobID)
	if errors.Is(err, domain.ErrEmbeddingJobNotPending) {
		w.logger.Debug("job already claimed", zap.String("job_id", jobID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to claim job %s: %w", jobID, err)
	}
	return w.processJob(ctx, job)
}

func (w *EmbeddingWorker) processJob(ctx context.Context, job *domain.EmbeddingJob) error {
	ctx, span := telemetry.StartSpan(ctx, "EmbeddingWorker.processJob", telemetry.SpanAttributes{
		OrgID:     job.OrgID,
		ArticleID: job.ArticleID,
		JobID:     job.ID,
		Operation: "embed",
	})
	defer span.End()

	log := w.logger.With(
		zap.String("job_id", job.ID),
		zap.String("article_id", job.ArticleID),
		zap.Int32("attempt", job.Attempts),
	)

	if w.cfg.SkipSuperseded {
		newer, err := w.repo.HasNewerJob(ctx, job)
		if err != nil {
			log.Warn("superseded check failed, processing anyway", zap.Error(err))
		} else if newer {
			log.Info("job superseded")
			return w.complete(ctx, job, NoteSuperseded)
		}
	}

	article, err := w.articles.GetByID(ctx, job.ArticleID)
	if err == nil && article.OrgID != job.OrgID {
		err = domain.ErrOrganizationMismatch
	}
	if err != nil {
		span.SetStatus(err)
		return w.handleJobFailure(ctx, job, err)
	}
	if !article.IsPublished {
		log.Info("article unpublished, skipping")
		return w.complete(ctx, job, NoteUnpublished)
	}

	chunks, err := w.indexer.IndexArticle(ctx, article)
	if errors.Is(err, domain.ErrArticleUnpublished) {
		log.Info("article unpublished during indexing")
		return w.complete(ctx, job, NoteUnpublished)
	}
	if errors.Is(err, domain.ErrStaleArticleRevision) {
		log.Info("article changed during indexing, newer job owns the result")
		return w.complete(ctx, job, NoteSuperseded)
	}
	if err != nil {
		span.SetStatus(err)
		return w.handleJobFailure(ctx, job, err)
	}

	if err := w.complete(ctx, job, ""); err != nil {
		return err
	}
	log.Info("job completed", zap.Int("chunks", chunks))
	span.SetOK()
	return nil
}

func (w *EmbeddingWorker) complete(ctx context.Context, job *domain.EmbeddingJob, note string) error {
	if err := w.repo.Complete(context.WithoutCancel(ctx), job.ID, note); err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	return nil
}

// handleJobFailure requeues retryable errors while attempts remain and marks
// the job failed otherwise.
func (w *EmbeddingWorker) handleJobFailure(ctx context.Context, job *domain.EmbeddingJob, jobErr error) error {
	// The job state must be recorded even if the caller is shutting down.
	ctx = context.WithoutCancel(ctx)

	log := w.logger.With(zap.String("job_id", job.ID), zap.Int32("attempt", job.Attempts))

	if domain.IsRetryable(jobErr) && int(job.Attempts) < w.cfg.MaxAttempts {
		log.Warn("job failed, will be retried", zap.Int("max_attempts", w.cfg.MaxAttempts), zap.Error(jobErr))
		msg := fmt.Sprintf("attempt %d/%d: %v", job.Attempts, w.cfg.MaxAttempts, jobErr)
		telemetry.AddBreadcrumb(ctx, "embedding_job", "requeued "+job.ID+": "+msg)
		if err := w.repo.Requeue(ctx, job.ID, msg); err != nil {
			return fmt.Errorf("failed to requeue job: %w", err)
		}
		return nil
	}

	log.Error("job failed", zap.Error(jobErr))
	telemetry.CaptureError(ctx, jobErr)
	if err := w.repo.Fail(ctx, job.ID, jobErr.Error()); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}
