package memstore

import (
	"context"
	"slices"
	"strings"

	"github.com/cloo-solutions/supportkb/internal/domain"
	"github.com/google/uuid"
)

type ChunkRepository struct {
	v view
}

// ReplaceChunks builds the new generation outside the lock and publishes it
// with a single map assignment. Chunks built from an older revision of the
// article are rejected.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, articleID, orgID string, chunks []domain.Chunk) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStoreError("replace chunks", err)
	}

	now := r.v.now()
	gen := &generation{orgID: orgID, chunks: make([]domain.Chunk, len(chunks))}
	for i, c := range chunks {
		c.ArticleID = articleID
		c.OrgID = orgID
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.Embedding = slices.Clone(c.Embedding)
		gen.chunks[i] = c
	}

	return r.v.write(func(st *state) error {
		a, ok := st.articles[articleID]
		if !ok {
			return domain.ErrArticleNotFound
		}
		if a.OrgID != orgID {
			return domain.ErrOrganizationMismatch
		}
		if !a.IsPublished {
			return domain.ErrArticleUnpublished
		}
		if len(gen.chunks) > 0 && gen.chunks[0].Metadata.Revision != "" &&
			gen.chunks[0].Metadata.Revision != a.Revision() {
			return domain.ErrStaleArticleRevision
		}
		if len(gen.chunks) == 0 {
			delete(st.chunks, articleID)
			return nil
		}
		st.chunks[articleID] = gen
		return nil
	})
}

func (r *ChunkRepository) DeleteArticle(ctx context.Context, articleID string) error {
	return r.v.write(func(st *state) error {
		delete(st.chunks, articleID)
		return nil
	})
}

func (r *ChunkRepository) SimilaritySearch(ctx context.Context, orgID string, query []float32, threshold float64, topK int) ([]domain.SearchResult, error) {
	results := []domain.SearchResult{}
	if topK <= 0 || domain.ZeroNorm(query) {
		return results, nil
	}

	err := r.v.read(func(st *state) error {
		for articleID, gen := range st.chunks {
			if gen.orgID != orgID {
				continue
			}
			a, ok := st.articles[articleID]
			if !ok || !a.IsPublished || a.OrgID != orgID {
				continue
			}
			for _, c := range gen.chunks {
				if domain.ZeroNorm(c.Embedding) {
					continue
				}
				sim := domain.CosineSimilarity(query, c.Embedding)
				if sim < threshold {
					continue
				}
				results = append(results, domain.SearchResult{
					ChunkText:    c.Text,
					ArticleTitle: a.Title,
					ArticleID:    articleID,
					ChunkIndex:   c.ChunkIndex,
					Similarity:   sim,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(x, y domain.SearchResult) int {
		switch {
		case x.Similarity > y.Similarity:
			return -1
		case x.Similarity < y.Similarity:
			return 1
		}
		if c := strings.Compare(x.ArticleID, y.ArticleID); c != 0 {
			return c
		}
		return x.ChunkIndex - y.ChunkIndex
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (r *ChunkRepository) CountChunks(ctx context.Context, articleID string) (int, error) {
	var n int
	err := r.v.read(func(st *state) error {
		if gen, ok := st.chunks[articleID]; ok {
			n = len(gen.chunks)
		}
		return nil
	})
	return n, err
}

// Snapshot returns a copy of an article's current chunk generation.
func (r *ChunkRepository) Snapshot(articleID string) []domain.Chunk {
	var out []domain.Chunk
	_ = r.v.read(func(st *state) error {
		if gen, ok := st.chunks[articleID]; ok {
			out = slices.Clone(gen.chunks)
		}
		return nil
	})
	return out
}
