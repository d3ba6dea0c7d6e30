package service

import (
	"context"
	"errors"
	"testing"

	"github.com/cloo-solutions/supportkb/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func float64Ptr(v float64) *float64 {
	return &v
}

func TestRetriever_Search_UsesDefaults(t *testing.T) {
	ctx := context.Background()
	embedder := new(MockEmbedder)
	store := new(MockVectorStore)
	r := NewRetriever(embedder, store, DefaultRetrieverConfig())

	results := []domain.SearchResult{{ArticleID: "a1", ChunkText: "Open Settings", Similarity: 0.9}}
	embedder.On("Embed", mock.Anything, []string{"reset password"}).Return([][]float32{{1, 0}}, nil)
	store.On("SimilaritySearch", mock.Anything, "org-1", []float32{1, 0}, DefaultSearchThreshold, DefaultSearchTopK).Return(results, nil)

	got, err := r.Search(ctx, SearchInput{OrgID: "org-1", Query: "  reset password "})

	require.NoError(t, err)
	assert.Equal(t, results, got)
	embedder.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestRetriever_Search_OverridesAndCapsTopK(t *testing.T) {
	ctx := context.Background()
	embedder := new(MockEmbedder)
	store := new(MockVectorStore)
	r := NewRetriever(embedder, store, DefaultRetrieverConfig())

	embedder.On("Embed", mock.Anything, mock.Anything).Return([][]float32{{1}}, nil)
	store.On("SimilaritySearch", mock.Anything, "org-1", mock.Anything, 0.8, MaxSearchTopK).Return([]domain.SearchResult{}, nil)

	got, err := r.Search(ctx, SearchInput{OrgID: "org-1", Query: "q", TopK: 500, Threshold: float64Ptr(0.8)})

	require.NoError(t, err)
	assert.Empty(t, got)
	store.AssertExpectations(t)
}

func TestRetriever_Search_ZeroVectorMatchesNothing(t *testing.T) {
	embedder := new(MockEmbedder)
	store := new(MockVectorStore)
	r := NewRetriever(embedder, store, DefaultRetrieverConfig())

	embedder.On("Embed", mock.Anything, []string{"???"}).Return([][]float32{{0, 0, 0}}, nil)

	got, err := r.Search(context.Background(), SearchInput{OrgID: "org-1", Query: "???", Threshold: float64Ptr(0)})

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	store.AssertNotCalled(t, "SimilaritySearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRetriever_Search_ValidationHappensBeforeEmbedding(t *testing.T) {
	tests := []struct {
		name  string
		input SearchInput
		want  error
	}{
		{"missing org", SearchInput{Query: "q"}, domain.ErrMissingOrganization},
		{"empty query", SearchInput{OrgID: "org-1", Query: ""}, domain.ErrEmptyQuery},
		{"whitespace query", SearchInput{OrgID: "org-1", Query: " \t\n"}, domain.ErrEmptyQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			embedder := new(MockEmbedder)
			r := NewRetriever(embedder, new(MockVectorStore), DefaultRetrieverConfig())

			_, err := r.Search(context.Background(), tt.input)

			assert.ErrorIs(t, err, tt.want)
			embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
		})
	}

	invalid := []SearchInput{
		{OrgID: "org-1", Query: "q", TopK: -1},
		{OrgID: "org-1", Query: "q", Threshold: float64Ptr(-0.1)},
		{OrgID: "org-1", Query: "q", Threshold: float64Ptr(1.5)},
	}
	for _, input := range invalid {
		embedder := new(MockEmbedder)
		r := NewRetriever(embedder, new(MockVectorStore), DefaultRetrieverConfig())

		_, err := r.Search(context.Background(), input)

		assert.Equal(t, domain.ErrCodeValidation, domain.ErrorCode(err))
		embedder.AssertNotCalled(t, "Embed", mock.Anything, mock.Anything)
	}
}

func TestRetriever_Search_EmbeddingFailure(t *testing.T) {
	embedder := new(MockEmbedder)
	store := new(MockVectorStore)
	r := NewRetriever(embedder, store, DefaultRetrieverConfig())

	failure := &domain.EmbeddingFailure{Transient: true, StatusCode: 503, Message: "unavailable"}
	embedder.On("Embed", mock.Anything, mock.Anything).Return(nil, failure)

	_, err := r.Search(context.Background(), SearchInput{OrgID: "org-1", Query: "q"})

	assert.Equal(t, domain.ErrCodeTransientProvider, domain.ErrorCode(err))
	store.AssertNotCalled(t, "SimilaritySearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRetriever_Search_WrapsStoreErrors(t *testing.T) {
	embedder := new(MockEmbedder)
	store := new(MockVectorStore)
	r := NewRetriever(embedder, store, DefaultRetrieverConfig())

	embedder.On("Embed", mock.Anything, mock.Anything).Return([][]float32{{1}}, nil)
	store.On("SimilaritySearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := r.Search(context.Background(), SearchInput{OrgID: "org-1", Query: "q"})

	assert.Equal(t, domain.ErrCodeStore, domain.ErrorCode(err))
}

func TestNewRetriever_SanitizesConfig(t *testing.T) {
	r := NewRetriever(nil, nil, RetrieverConfig{Threshold: 3, TopK: -2})

	assert.Equal(t, DefaultRetrieverConfig(), r.cfg)
}
