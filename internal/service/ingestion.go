package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cloo-solutions/supportkb/internal/domain"
	"github.com/cloo-solutions/supportkb/internal/logging"
	"github.com/cloo-solutions/supportkb/internal/pagination"
	"github.com/cloo-solutions/supportkb/internal/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// JobNotifier announces a committed job to push-based workers. Delivery is
// best effort; the polling worker picks up anything that is missed.
type JobNotifier interface {
	NotifyJob(ctx context.Context, job *domain.EmbeddingJob) error
}

// ChunkCounter reports how many chunks are stored for an article.
type ChunkCounter interface {
	CountChunks(ctx context.Context, articleID string) (int, error)
}

// IngestionService records article changes and queues their embedding jobs.
// It never embeds inline.
type IngestionService struct {
	tx       TxRunner
	articles ArticleRepositoryInterface
	jobs     EmbeddingJobRepositoryInterface
	chunks   ChunkCounter
	notifier JobNotifier
	uuidGen  UUIDGenerator
	logger   *zap.Logger
	now      func() time.Time
}

func NewIngestionService(
	tx TxRunner,
	articles ArticleRepositoryInterface,
	jobs EmbeddingJobRepositoryInterface,
	logger *zap.Logger,
) *IngestionService {
	return &IngestionService{
		tx:       tx,
		articles: articles,
		jobs:     jobs,
		uuidGen:  &DefaultUUIDGenerator{},
		logger:   logging.OrNop(logger),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *IngestionService) WithNotifier(n JobNotifier) *IngestionService {
	s.notifier = n
	return s
}

func (s *IngestionService) WithChunkCounter(c ChunkCounter) *IngestionService {
	s.chunks = c
	return s
}

func (s *IngestionService) WithUUIDGen(gen UUIDGenerator) *IngestionService {
	s.uuidGen = gen
	return s
}

// IngestInput is a created or updated article. An empty ID creates a new article.
type IngestInput struct {
	ID          string
	OrgID       string
	Title       string
	Content     string
	Category    string
	IsPublished bool
}

// IngestResult carries the stored article and, for published articles, the
// queued job.
type IngestResult struct {
	Article *domain.Article
	Job     *domain.EmbeddingJob
}

// Ingest upserts the article and queues an embedding job in one transaction.
// An unpublished article is stored and its chunks are removed; no job is queued.
func (s *IngestionService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Ingest", telemetry.SpanAttributes{
		OrgID:     input.OrgID,
		ArticleID: input.ID,
		Operation: "ingest",
	})
	defer span.End()

	if strings.TrimSpace(input.OrgID) == "" {
		return nil, domain.ErrMissingOrganization
	}

	now := s.now()
	article := &domain.Article{
		ID:          strings.TrimSpace(input.ID),
		OrgID:       input.OrgID,
		Title:       strings.TrimSpace(input.Title),
		Content:     input.Content,
		Category:    strings.TrimSpace(input.Category),
		IsPublished: input.IsPublished,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if article.ID == "" {
		article.ID = s.uuidGen.NewString()
	}
	if err := domain.ValidateArticle(article); err != nil {
		return nil, err
	}

	var job *domain.EmbeddingJob
	err := s.tx.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Articles().Upsert(ctx, article); err != nil {
			return err
		}
		if !article.IsPublished {
			return repos.Chunks().DeleteArticle(ctx, article.ID)
		}
		job = domain.NewEmbeddingJob(s.uuidGen.NewString(), article.ID, article.OrgID, now)
		return repos.EmbeddingJobs().Create(ctx, job)
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	if job != nil {
		s.notify(ctx, job)
		s.logger.Info("article ingested",
			zap.String("article_id", article.ID),
			zap.String("org_id", article.OrgID),
			zap.String("job_id", job.ID),
		)
	} else {
		s.logger.Info("unpublished article stored",
			zap.String("article_id", article.ID),
			zap.String("org_id", article.OrgID),
		)
	}

	span.SetOK()
	return &IngestResult{Article: article, Job: job}, nil
}

// Unpublish hides an article from search and deletes its chunks. Unknown
// articles are ignored.
func (s *IngestionService) Unpublish(ctx context.Context, orgID, articleID string) error {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Unpublish", telemetry.SpanAttributes{
		OrgID:     orgID,
		ArticleID: articleID,
		Operation: "unpublish",
	})
	defer span.End()

	err := s.withOwnedArticle(ctx, orgID, articleID, func(repos TxRepositories) error {
		if err := repos.Articles().SetPublished(ctx, articleID, false); err != nil {
			return err
		}
		return repos.Chunks().DeleteArticle(ctx, articleID)
	})
	if err != nil {
		span.SetError(err)
		return err
	}
	return nil
}

// Delete removes an article and its chunks. Unknown articles are ignored.
func (s *IngestionService) Delete(ctx context.Context, orgID, articleID string) error {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Delete", telemetry.SpanAttributes{
		OrgID:     orgID,
		ArticleID: articleID,
		Operation: "delete",
	})
	defer span.End()

	err := s.withOwnedArticle(ctx, orgID, articleID, func(repos TxRepositories) error {
		if err := repos.Chunks().DeleteArticle(ctx, articleID); err != nil {
			return err
		}
		return repos.Articles().Delete(ctx, articleID)
	})
	if err != nil {
		span.SetError(err)
		return err
	}
	return nil
}

func (s *IngestionService) withOwnedArticle(ctx context.Context, orgID, articleID string, fn func(repos TxRepositories) error) error {
	if strings.TrimSpace(orgID) == "" {
		return domain.ErrMissingOrganization
	}
	if strings.TrimSpace(articleID) == "" {
		return domain.NewValidationError("article id is required")
	}

	return s.tx.WithTx(ctx, func(repos TxRepositories) error {
		article, err := repos.Articles().GetByID(ctx, articleID)
		if errors.Is(err, domain.ErrArticleNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if article.OrgID != orgID {
			return domain.ErrArticleNotFound
		}
		return fn(repos)
	})
}

// Reindex queues a job for every published article of an organization.
func (s *IngestionService) Reindex(ctx context.Context, orgID string) ([]*domain.EmbeddingJob, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestionService.Reindex", telemetry.SpanAttributes{
		OrgID:     orgID,
		Operation: "reindex",
	})
	defer span.End()

	if strings.TrimSpace(orgID) == "" {
		return nil, domain.ErrMissingOrganization
	}

	ids, err := s.articles.ListPublishedIDs(ctx, orgID)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	now := s.now()
	jobs := make([]*domain.EmbeddingJob, 0, len(ids))
	err = s.tx.WithTx(ctx, func(repos TxRepositories) error {
		for _, id := range ids {
			job := domain.NewEmbeddingJob(s.uuidGen.NewString(), id, orgID, now)
			if err := repos.EmbeddingJobs().Create(ctx, job); err != nil {
				return err
			}
			jobs = append(jobs, job)
		}
		return nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	for _, job := range jobs {
		s.notify(ctx, job)
	}
	s.logger.Info("reindex queued", zap.String("org_id", orgID), zap.Int("jobs", len(jobs)))
	span.SetOK()
	return jobs, nil
}

// GetJob returns a job owned by orgID.
func (s *IngestionService) GetJob(ctx context.Context, orgID, jobID string) (*domain.EmbeddingJob, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, domain.ErrMissingOrganization
	}
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OrgID != orgID {
		return nil, domain.ErrEmbeddingJobNotFound
	}
	return job, nil
}

// CountIndexedChunks returns the number of chunks currently indexed for an
// article owned by orgID.
func (s *IngestionService) CountIndexedChunks(ctx context.Context, orgID, articleID string) (int, error) {
	if strings.TrimSpace(orgID) == "" {
		return 0, domain.ErrMissingOrganization
	}
	if s.chunks == nil {
		return 0, domain.NewDomainError(domain.ErrCodeInternalError, "chunk counter not configured")
	}
	article, err := s.articles.GetByID(ctx, articleID)
	if err != nil {
		return 0, err
	}
	if article.OrgID != orgID {
		return 0, domain.ErrArticleNotFound
	}
	return s.chunks.CountChunks(ctx, articleID)
}

type ListJobsInput struct {
	OrgID     string
	ArticleID string
	Cursor    string
	Limit     int
}

// ListJobs pages through an article's jobs, newest first.
func (s *IngestionService) ListJobs(ctx context.Context, input ListJobsInput) (pagination.Page[*domain.EmbeddingJob], error) {
	var empty pagination.Page[*domain.EmbeddingJob]
	if strings.TrimSpace(input.OrgID) == "" {
		return empty, domain.ErrMissingOrganization
	}

	cursor, err := pagination.Decode(input.Cursor)
	if err != nil {
		return empty, domain.NewValidationError("invalid cursor")
	}
	limit := pagination.NormalizeLimit(input.Limit)

	rows, err := s.jobs.ListByArticle(ctx, input.ArticleID, cursor, limit)
	if err != nil {
		return empty, err
	}
	if len(rows) > 0 && rows[0].OrgID != input.OrgID {
		return empty, domain.ErrArticleNotFound
	}

	return pagination.NewPage(rows, limit, func(j *domain.EmbeddingJob) pagination.Cursor {
		return pagination.Cursor{CreatedAt: j.CreatedAt, ID: j.ID}
	}), nil
}

func (s *IngestionService) notify(ctx context.Context, job *domain.EmbeddingJob) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyJob(ctx, job); err != nil {
		s.logger.Warn("job notification failed, polling will pick it up",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}
