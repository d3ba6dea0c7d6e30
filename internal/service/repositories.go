package service

import (
	"context"

	"github.com/cloo-solutions/supportkb/internal/domain"
	"github.com/cloo-solutions/supportkb/internal/pagination"
)

type ArticleRepositoryInterface interface {
	// Upsert inserts or updates an article. Updating an article owned by
	// another organization fails with domain.ErrOrganizationMismatch.
	Upsert(ctx context.Context, a *domain.Article) error
	GetByID(ctx context.Context, id string) (*domain.Article, error)
	SetPublished(ctx context.Context, id string, published bool) error
	Delete(ctx context.Context, id string) error
	ListPublishedIDs(ctx context.Context, orgID string) ([]string, error)
}

type EmbeddingJobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.EmbeddingJob) error
	GetByID(ctx context.Context, id string) (*domain.EmbeddingJob, error)
	// ListByArticle returns up to limit+1 jobs, newest first, after cursor.
	ListByArticle(ctx context.Context, articleID string, cursor *pagination.Cursor, limit int) ([]*domain.EmbeddingJob, error)
}

// VectorStore persists chunk embeddings and answers tenant-scoped similarity
// queries. Similarity is cosine mapped into [0,1].
type VectorStore interface {
	// ReplaceChunks atomically swaps the full chunk set of a published article.
	ReplaceChunks(ctx context.Context, articleID, orgID string, chunks []domain.Chunk) error
	// DeleteArticle removes all chunks of an article. Deleting nothing is not an error.
	DeleteArticle(ctx context.Context, articleID string) error
	// SimilaritySearch ranks chunks of orgID by similarity desc, then
	// (article_id, chunk_index) asc, keeping those >= threshold, at most topK.
	SimilaritySearch(ctx context.Context, orgID string, query []float32, threshold float64, topK int) ([]domain.SearchResult, error)
	CountChunks(ctx context.Context, articleID string) (int, error)
}
