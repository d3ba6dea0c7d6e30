package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/supportkb/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// similarityExpr maps pgvector cosine distance (1 - cos) onto (cos+1)/2.
const similarityExpr = `(1 - (c.embedding <=> $1) / 2)`

// ChunkRepository stores article chunks with pgvector embeddings.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// ReplaceChunks swaps the chunk set of an article inside one transaction
// (a savepoint when already running in one). The article row is locked first
// so concurrent replaces and unpublishes of the same article serialize, and
// chunks built from an older revision of the article are rejected with
// domain.ErrStaleArticleRevision.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, articleID, orgID string, chunks []domain.Chunk) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var current domain.Article
		err := tx.QueryRow(ctx,
			`SELECT organization_id, title, content, category, is_published
			 FROM articles WHERE id = $1 FOR UPDATE`,
			articleID,
		).Scan(&current.OrgID, &current.Title, &current.Content, &current.Category, &current.IsPublished)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrArticleNotFound
			}
			return err
		}
		if current.OrgID != orgID {
			return domain.ErrOrganizationMismatch
		}
		if !current.IsPublished {
			return domain.ErrArticleUnpublished
		}
		if stale(chunks, &current) {
			return domain.ErrStaleArticleRevision
		}

		if _, err := tx.Exec(ctx, `DELETE FROM article_chunks WHERE article_id = $1`, articleID); err != nil {
			return err
		}

		if len(chunks) == 0 {
			return nil
		}

		now := time.Now().UTC()
		batch := &pgx.Batch{}
		for _, c := range chunks {
			id := c.ID
			if id == "" {
				id = uuid.NewString()
			}
			createdAt := c.CreatedAt
			if createdAt.IsZero() {
				createdAt = now
			}
			batch.Queue(
				`INSERT INTO article_chunks
					(id, article_id, organization_id, chunk_index, text, embedding, title, category, generation, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				id, articleID, orgID, c.ChunkIndex, c.Text, pgvector.NewVector(c.Embedding),
				c.Metadata.Title, c.Metadata.Category, c.Metadata.Generation, createdAt,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		var domainErr *domain.DomainError
		if errors.As(err, &domainErr) {
			return err
		}
		return domain.NewStoreError("replace chunks", err)
	}
	return nil
}

// stale reports whether chunks were built from a revision other than current.
// Chunks without a revision are accepted.
func stale(chunks []domain.Chunk, current *domain.Article) bool {
	if len(chunks) == 0 || chunks[0].Metadata.Revision == "" {
		return false
	}
	return chunks[0].Metadata.Revision != current.Revision()
}

func (r *ChunkRepository) DeleteArticle(ctx context.Context, articleID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM article_chunks WHERE article_id = $1`, articleID); err != nil {
		return domain.NewStoreError("delete chunks", err)
	}
	return nil
}

// SimilaritySearch filters by organization and threshold inside the query;
// only chunks of published articles are considered. pgvector yields NaN for
// zero vectors and NaN sorts above every number, so those rows are excluded.
func (r *ChunkRepository) SimilaritySearch(ctx context.Context, orgID string, query []float32, threshold float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 || domain.ZeroNorm(query) {
		return []domain.SearchResult{}, nil
	}

	rows, err := r.db.Query(ctx,
		`SELECT c.text, a.title, c.article_id, c.chunk_index, `+similarityExpr+` AS similarity
		 FROM article_chunks c
		 JOIN articles a ON a.id = c.article_id AND a.organization_id = c.organization_id
		 WHERE c.organization_id = $2
		   AND a.is_published
		   AND (c.embedding <=> $1) <> 'NaN'::float8
		   AND `+similarityExpr+` >= $3
		 ORDER BY similarity DESC, c.article_id ASC, c.chunk_index ASC
		 LIMIT $4`,
		pgvector.NewVector(query), orgID, threshold, topK,
	)
	if err != nil {
		return nil, domain.NewStoreError("similarity search", err)
	}
	defer rows.Close()

	results := make([]domain.SearchResult, 0, topK)
	for rows.Next() {
		var res domain.SearchResult
		if err := rows.Scan(&res.ChunkText, &res.ArticleTitle, &res.ArticleID, &res.ChunkIndex, &res.Similarity); err != nil {
			return nil, domain.NewStoreError("similarity search", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStoreError("similarity search", err)
	}
	return results, nil
}

func (r *ChunkRepository) CountChunks(ctx context.Context, articleID string) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM article_chunks WHERE article_id = $1`, articleID).Scan(&n); err != nil {
		return 0, domain.NewStoreError("count chunks", err)
	}
	return n, nil
}
