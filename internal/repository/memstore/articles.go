package memstore

import (
	"context"
	"sort"

	"github.com/cloo-solutions/supportkb/internal/domain"
)

type ArticleRepository struct {
	v view
}

func (r *ArticleRepository) Upsert(ctx context.Context, a *domain.Article) error {
	return r.v.write(func(st *state) error {
		now := r.v.now()
		if existing, ok := st.articles[a.ID]; ok {
			if existing.OrgID != a.OrgID {
				return domain.ErrOrganizationMismatch
			}
			a.CreatedAt = existing.CreatedAt
		} else if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
		st.articles[a.ID] = *a
		return nil
	})
}

func (r *ArticleRepository) GetByID(ctx context.Context, id string) (*domain.Article, error) {
	var out *domain.Article
	err := r.v.read(func(st *state) error {
		a, ok := st.articles[id]
		if !ok {
			return domain.ErrArticleNotFound
		}
		out = &a
		return nil
	})
	return out, err
}

func (r *ArticleRepository) SetPublished(ctx context.Context, id string, published bool) error {
	return r.v.write(func(st *state) error {
		a, ok := st.articles[id]
		if !ok {
			return domain.ErrArticleNotFound
		}
		a.IsPublished = published
		a.UpdatedAt = r.v.now()
		st.articles[id] = a
		return nil
	})
}

// Delete removes the article and its chunks.
func (r *ArticleRepository) Delete(ctx context.Context, id string) error {
	return r.v.write(func(st *state) error {
		delete(st.articles, id)
		delete(st.chunks, id)
		return nil
	})
}

func (r *ArticleRepository) ListPublishedIDs(ctx context.Context, orgID string) ([]string, error) {
	var ids []string
	err := r.v.read(func(st *state) error {
		for id, a := range st.articles {
			if a.OrgID == orgID && a.IsPublished {
				ids = append(ids, id)
			}
		}
		return nil
	})
	sort.Strings(ids)
	return ids, err
}
