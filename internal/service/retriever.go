package service

import (
	"context"
	"errors"
	"strings"

	"github.com/cloo-solutions/supportkb/internal/domain"
	"github.com/cloo-solutions/supportkb/internal/telemetry"
)

const (
	DefaultSearchThreshold = 0.5
	DefaultSearchTopK      = 5
	MaxSearchTopK          = 50
)

type RetrieverConfig struct {
	Threshold float64
	TopK      int
}

func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		Threshold: DefaultSearchThreshold,
		TopK:      DefaultSearchTopK,
	}
}

// Retriever answers tenant-scoped semantic queries.
type Retriever struct {
	embedder Embedder
	store    VectorStore
	cfg      RetrieverConfig
}

func NewRetriever(embedder Embedder, store VectorStore, cfg RetrieverConfig) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultSearchTopK
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		cfg.Threshold = DefaultSearchThreshold
	}
	return &Retriever{embedder: embedder, store: store, cfg: cfg}
}

// SearchInput is a search request. Nil Threshold and zero TopK use the
// retriever defaults.
type SearchInput struct {
	OrgID     string
	Query     string
	TopK      int
	Threshold *float64
}

// Search returns chunks of published articles of the organization ordered by
// similarity. No match is an empty slice, not an error.
func (r *Retriever) Search(ctx context.Context, input SearchInput) ([]domain.SearchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "Retriever.Search", telemetry.SpanAttributes{
		OrgID:     input.OrgID,
		Operation: "search",
	})
	defer span.End()

	if strings.TrimSpace(input.OrgID) == "" {
		return nil, domain.ErrMissingOrganization
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}

	topK := input.TopK
	switch {
	case topK < 0:
		return nil, domain.NewValidationError("top_k must not be negative")
	case topK == 0:
		topK = r.cfg.TopK
	case topK > MaxSearchTopK:
		topK = MaxSearchTopK
	}

	threshold := r.cfg.Threshold
	if input.Threshold != nil {
		threshold = *input.Threshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, domain.NewValidationError("threshold must be between 0 and 1")
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if len(vectors) != 1 {
		err := &domain.EmbeddingFailure{Transient: true, Message: "no embedding returned for query"}
		span.SetError(err)
		return nil, err
	}

	// Queries with nothing to embed, such as pure punctuation under the hash
	// embedder, match nothing.
	if domain.ZeroNorm(vectors[0]) {
		span.SetOK()
		return []domain.SearchResult{}, nil
	}

	results, err := r.store.SimilaritySearch(ctx, input.OrgID, vectors[0], threshold, topK)
	if err != nil {
		span.SetError(err)
		var domainErr *domain.DomainError
		if errors.As(err, &domainErr) {
			return nil, err
		}
		return nil, domain.NewStoreError("similarity search", err)
	}

	span.SetOK()
	return results, nil
}
