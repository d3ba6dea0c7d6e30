package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/supportkb/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ArticleRepository struct {
	db dbtx
}

func NewArticleRepository(pool *pgxpool.Pool) *ArticleRepository {
	return &ArticleRepository{db: pool}
}

func NewArticleRepositoryWithTx(tx pgx.Tx) *ArticleRepository {
	return &ArticleRepository{db: tx}
}

// Upsert inserts the article or updates it in place. The conflict branch only
// fires for the owning organization, so an id cannot move between tenants.
func (r *ArticleRepository) Upsert(ctx context.Context, a *domain.Article) error {
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}

	err := r.db.QueryRow(ctx,
		`INSERT INTO articles (id, organization_id, title, content, category, is_published, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO UPDATE
		 SET title = EXCLUDED.title,
		     content = EXCLUDED.content,
		     category = EXCLUDED.category,
		     is_published = EXCLUDED.is_published,
		     updated_at = EXCLUDED.updated_at
		 WHERE articles.organization_id = EXCLUDED.organization_id
		 RETURNING created_at`,
		a.ID, a.OrgID, a.Title, a.Content, a.Category, a.IsPublished, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrOrganizationMismatch
		}
		return domain.NewStoreError("upsert article", err)
	}
	return nil
}

func (r *ArticleRepository) GetByID(ctx context.Context, id string) (*domain.Article, error) {
	a, err := scanArticle(r.db.QueryRow(ctx,
		`SELECT id, organization_id, title, content, category, is_published, created_at, updated_at
		 FROM articles WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrArticleNotFound
		}
		return nil, domain.NewStoreError("get article", err)
	}
	return a, nil
}

func (r *ArticleRepository) SetPublished(ctx context.Context, id string, published bool) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE articles SET is_published = $1, updated_at = $2 WHERE id = $3`,
		published, time.Now().UTC(), id,
	)
	if err != nil {
		return domain.NewStoreError("update article", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrArticleNotFound
	}
	return nil
}

// Delete removes the article; its chunks go with it through the foreign key.
func (r *ArticleRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM articles WHERE id = $1`, id); err != nil {
		return domain.NewStoreError("delete article", err)
	}
	return nil
}

func (r *ArticleRepository) ListPublishedIDs(ctx context.Context, orgID string) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id FROM articles WHERE organization_id = $1 AND is_published ORDER BY id`,
		orgID,
	)
	if err != nil {
		return nil, domain.NewStoreError("list articles", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, domain.NewStoreError("list articles", err)
	}
	return ids, nil
}

func scanArticle(row scanner) (*domain.Article, error) {
	var a domain.Article
	if err := row.Scan(&a.ID, &a.OrgID, &a.Title, &a.Content, &a.Category, &a.IsPublished, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
