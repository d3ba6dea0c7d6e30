package service

import (
	"context"

	"github.com/cloo-solutions/supportkb/internal/domain"
	"github.com/cloo-solutions/supportkb/internal/pagination"
	"github.com/stretchr/testify/mock"
)

type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

type MockVectorStore struct {
	mock.Mock
}

func (m *MockVectorStore) ReplaceChunks(ctx context.Context, articleID, orgID string, chunks []domain.Chunk) error {
	args := m.Called(ctx, articleID, orgID, chunks)
	return args.Error(0)
}

func (m *MockVectorStore) DeleteArticle(ctx context.Context, articleID string) error {
	args := m.Called(ctx, articleID)
	return args.Error(0)
}

func (m *MockVectorStore) SimilaritySearch(ctx context.Context, orgID string, query []float32, threshold float64, topK int) ([]domain.SearchResult, error) {
	args := m.Called(ctx, orgID, query, threshold, topK)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.SearchResult), args.Error(1)
}

func (m *MockVectorStore) CountChunks(ctx context.Context, articleID string) (int, error) {
	args := m.Called(ctx, articleID)
	return args.Int(0), args.Error(1)
}

type MockArticleRepository struct {
	mock.Mock
}

func (m *MockArticleRepository) Upsert(ctx context.Context, a *domain.Article) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockArticleRepository) GetByID(ctx context.Context, id string) (*domain.Article, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Article), args.Error(1)
}

func (m *MockArticleRepository) SetPublished(ctx context.Context, id string, published bool) error {
	args := m.Called(ctx, id, published)
	return args.Error(0)
}

func (m *MockArticleRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockArticleRepository) ListPublishedIDs(ctx context.Context, orgID string) ([]string, error) {
	args := m.Called(ctx, orgID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

type MockEmbeddingJobRepository struct {
	mock.Mock
}

func (m *MockEmbeddingJobRepository) Create(ctx context.Context, job *domain.EmbeddingJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockEmbeddingJobRepository) GetByID(ctx context.Context, id string) (*domain.EmbeddingJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.EmbeddingJob), args.Error(1)
}

func (m *MockEmbeddingJobRepository) ListByArticle(ctx context.Context, articleID string, cursor *pagination.Cursor, limit int) ([]*domain.EmbeddingJob, error) {
	args := m.Called(ctx, articleID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.EmbeddingJob), args.Error(1)
}

type MockJobNotifier struct {
	mock.Mock
}

func (m *MockJobNotifier) NotifyJob(ctx context.Context, job *domain.EmbeddingJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

type MockChatCompleter struct {
	mock.Mock
}

func (m *MockChatCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	args := m.Called(ctx, system, user)
	return args.String(0), args.Error(1)
}

type MockUUIDGenerator struct {
	ids []string
	i   int
}

func (g *MockUUIDGenerator) NewString() string {
	id := g.ids[g.i%len(g.ids)]
	g.i++
	return id
}

type testTxRepos struct {
	articles      ArticleRepositoryInterface
	embeddingJobs EmbeddingJobRepositoryInterface
	chunks        VectorStore
}

func (t *testTxRepos) Articles() ArticleRepositoryInterface {
	return t.articles
}

func (t *testTxRepos) EmbeddingJobs() EmbeddingJobRepositoryInterface {
	return t.embeddingJobs
}

func (t *testTxRepos) Chunks() VectorStore {
	return t.chunks
}

type testTxRunner struct {
	repos  TxRepositories
	called bool
}

func (t *testTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	t.called = true
	return fn(t.repos)
}
