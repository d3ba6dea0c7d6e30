package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloo-solutions/supportkb/internal/domain"
	"github.com/cloo-solutions/supportkb/internal/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type ingestionFixture struct {
	articles *MockArticleRepository
	jobs     *MockEmbeddingJobRepository
	chunks   *MockVectorStore
	tx       *testTxRunner
	svc      *IngestionService
}

func newIngestionFixture() *ingestionFixture {
	f := &ingestionFixture{
		articles: new(MockArticleRepository),
		jobs:     new(MockEmbeddingJobRepository),
		chunks:   new(MockVectorStore),
	}
	f.tx = &testTxRunner{repos: &testTxRepos{
		articles:      f.articles,
		embeddingJobs: f.jobs,
		chunks:        f.chunks,
	}}
	f.svc = NewIngestionService(f.tx, f.articles, f.jobs, nil).
		WithChunkCounter(f.chunks).
		WithUUIDGen(&MockUUIDGenerator{ids: []string{"id-1", "id-2", "id-3"}})
	return f
}

func TestIngestionService_Ingest_PublishedQueuesJob(t *testing.T) {
	ctx := context.Background()
	f := newIngestionFixture()
	notifier := new(MockJobNotifier)
	f.svc.WithNotifier(notifier)

	f.articles.On("Upsert", ctx, mock.MatchedBy(func(a *domain.Article) bool {
		return a.ID == "article-1" && a.OrgID == "org-1" && a.Title == "Reset" && a.IsPublished
	})).Return(nil)
	f.jobs.On("Create", ctx, mock.MatchedBy(func(j *domain.EmbeddingJob) bool {
		return j.ID == "id-1" && j.ArticleID == "article-1" && j.OrgID == "org-1" &&
			j.Status == domain.EmbeddingJobStatusPending && j.Attempts == 0
	})).Return(nil)
	notifier.On("NotifyJob", ctx, mock.Anything).Return(nil)

	result, err := f.svc.Ingest(ctx, IngestInput{
		ID:          "article-1",
		OrgID:       "org-1",
		Title:       "  Reset ",
		Content:     "Open settings.",
		IsPublished: true,
	})

	require.NoError(t, err)
	assert.True(t, f.tx.called)
	assert.Equal(t, "article-1", result.Article.ID)
	require.NotNil(t, result.Job)
	assert.Equal(t, "id-1", result.Job.ID)
	f.articles.AssertExpectations(t)
	f.jobs.AssertExpectations(t)
	notifier.AssertExpectations(t)
	f.chunks.AssertNotCalled(t, "DeleteArticle", mock.Anything, mock.Anything)
}

func TestIngestionService_Ingest_GeneratesIDForNewArticle(t *testing.T) {
	ctx := context.Background()
	f := newIngestionFixture()

	f.articles.On("Upsert", ctx, mock.Anything).Return(nil)
	f.jobs.On("Create", ctx, mock.Anything).Return(nil)

	result, err := f.svc.Ingest(ctx, IngestInput{
		OrgID:       "org-1",
		Title:       "Reset",
		Content:     "Open settings.",
		IsPublished: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "id-1", result.Article.ID)
	assert.Equal(t, "id-2", result.Job.ID)
	assert.Equal(t, "id-1", result.Job.ArticleID)
}

func TestIngestionService_Ingest_UnpublishedDropsChunks(t *testing.T) {
	ctx := context.Background()
	f := newIngestionFixture()

	f.articles.On("Upsert", ctx, mock.Anything).Return(nil)
	f.chunks.On("DeleteArticle", ctx, "article-1").Return(nil)

	result, err := f.svc.Ingest(ctx, IngestInput{
		ID:    "article-1",
		OrgID: "org-1",
		Title: "Draft",
	})

	require.NoError(t, err)
	assert.Nil(t, result.Job)
	f.chunks.AssertExpectations(t)
	f.jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestIngestionService_Ingest_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input IngestInput
		want  error
	}{
		{
			name:  "missing org",
			input: IngestInput{ID: "a", Title: "t", Content: "c", IsPublished: true},
			want:  domain.ErrMissingOrganization,
		},
		{
			name:  "empty published content",
			input: IngestInput{ID: "a", OrgID: "org-1", Title: "t", Content: "  ", IsPublished: true},
			want:  domain.ErrEmptyContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newIngestionFixture()
			_, err := f.svc.Ingest(context.Background(), tt.input)
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, f.tx.called)
		})
	}

	t.Run("missing title", func(t *testing.T) {
		f := newIngestionFixture()
		_, err := f.svc.Ingest(context.Background(), IngestInput{ID: "a", OrgID: "org-1", Content: "c"})
		assert.Equal(t, domain.ErrCodeValidation, domain.ErrorCode(err))
	})
}

func TestIngestionService_Ingest_OrgMismatch(t *testing.T) {
	ctx := context.Background()
	f := newIngestionFixture()
	f.articles.On("Upsert", ctx, mock.Anything).Return(domain.ErrOrganizationMismatch)

	_, err := f.svc.Ingest(ctx, IngestInput{ID: "a", OrgID: "org-2", Title: "t", Content: "c", IsPublished: true})

	assert.ErrorIs(t, err, domain.ErrOrganizationMismatch)
	f.jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestIngestionService_Ingest_NotifierFailureIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := newIngestionFixture()
	notifier := new(MockJobNotifier)
	f.svc.WithNotifier(notifier)

	f.articles.On("Upsert", ctx, mock.Anything).Return(nil)
	f.jobs.On("Create", ctx, mock.Anything).Return(nil)
	notifier.On("NotifyJob", ctx, mock.Anything).Return(errors.New("broker unavailable"))

	result, err := f.svc.Ingest(ctx, IngestInput{ID: "a", OrgID: "org-1", Title: "t", Content: "c", IsPublished: true})

	require.NoError(t, err)
	assert.NotNil(t, result.Job)
}

func TestIngestionService_Unpublish(t *testing.T) {
	ctx := context.Background()
	f := newIngestionFixture()

	f.articles.On("GetByID", ctx, "article-1").Return(&domain.Article{ID: "article-1", OrgID: "org-1"}, nil)
	f.articles.On("SetPublished", ctx, "article-1", false).Return(nil)
	f.chunks.On("DeleteArticle", ctx, "article-1").Return(nil)

	err := f.svc.Unpublish(ctx, "org-1", "article-1")

	require.NoError(t, err)
	f.articles.AssertExpectations(t)
	f.chunks.AssertExpectations(t)
}

func TestIngestionService_Unpublish_UnknownArticleIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newIngestionFixture()
	f.articles.On("GetByID", ctx, "missing").Return(nil, domain.ErrArticleNotFound)

	err := f.svc.Unpublish(ctx, "org-1", "missing")

	require.NoError(t, err)
	f.articles.AssertNotCalled(t, "SetPublished", mock.Anything, mock.Anything, mock.Anything)
}

func TestIngestionService_Delete(t *testing.T) {
	ctx := context.Background()
	f := newIngestionFixture()

	f.articles.On("GetByID", ctx, "article-1").Return(&domain.Article{ID: "article-1", OrgID: "org-1"}, nil)
	f.chunks.On("DeleteArticle", ctx, "article-1").Return(nil)
	f.articles.On("Delete", ctx, "article-1").Return(nil)

	require.NoError(t, f.svc.Delete(ctx, "org-1", "article-1"))
	f.articles.AssertExpectations(t)
	f.chunks.AssertExpectations(t)
}

func TestIngestionService_Delete_OtherOrganization(t *testing.T) {
	ctx := context.Background()
	f := newIngestionFixture()
	f.articles.On("GetByID", ctx, "article-1").Return(&domain.Article{ID: "article-1", OrgID: "org-1"}, nil)

	err := f.svc.Delete(ctx, "org-2", "article-1")

	assert.ErrorIs(t, err, domain.ErrArticleNotFound)
	f.articles.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	f.chunks.AssertNotCalled(t, "DeleteArticle", mock.Anything, mock.Anything)
}

func TestIngestionService_Reindex(t *testing.T) {
	ctx := context.Background()
	f := newIngestionFixture()

	f.articles.On("ListPublishedIDs", ctx, "org-1").Return([]string{"a", "b"}, nil)
	f.jobs.On("Create", ctx, mock.Anything).Return(nil).Twice()

	jobs, err := f.svc.Reindex(ctx, "org-1")

	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].ArticleID)
	assert.Equal(t, "b", jobs[1].ArticleID)
	f.jobs.AssertExpectations(t)
}

func TestIngestionService_Reindex_RequiresOrg(t *testing.T) {
	f := newIngestionFixture()

	_, err := f.svc.Reindex(context.Background(), " ")

	assert.ErrorIs(t, err, domain.ErrMissingOrganization)
}

func TestIngestionService_GetJob_ScopedToOrg(t *testing.T) {
	ctx := context.Background()
	f := newIngestionFixture()
	job := domain.NewEmbeddingJob("job-1", "article-1", "org-1", time.Now())
	f.jobs.On("GetByID", ctx, "job-1").Return(job, nil)

	got, err := f.svc.GetJob(ctx, "org-1", "job-1")
	require.NoError(t, err)
	assert.Equal(t, job, got)

	_, err = f.svc.GetJob(ctx, "org-2", "job-1")
	assert.ErrorIs(t, err, domain.ErrEmbeddingJobNotFound)
}

func TestIngestionService_ListJobs(t *testing.T) {
	ctx := context.Background()
	f := newIngestionFixture()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []*domain.EmbeddingJob{
		domain.NewEmbeddingJob("j3", "article-1", "org-1", base.Add(3*time.Second)),
		domain.NewEmbeddingJob("j2", "article-1", "org-1", base.Add(2*time.Second)),
		domain.NewEmbeddingJob("j1", "article-1", "org-1", base.Add(time.Second)),
	}
	f.jobs.On("ListByArticle", ctx, "article-1", (*pagination.Cursor)(nil), 2).Return(rows, nil)

	page, err := f.svc.ListJobs(ctx, ListJobsInput{OrgID: "org-1", ArticleID: "article-1", Limit: 2})

	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)

	cursor, err := pagination.Decode(page.NextCursor)
	require.NoError(t, err)
	assert.Equal(t, "j2", cursor.ID)
	assert.True(t, rows[1].CreatedAt.Equal(cursor.CreatedAt))
}

func TestIngestionService_ListJobs_Errors(t *testing.T) {
	ctx := context.Background()
	f := newIngestionFixture()

	_, err := f.svc.ListJobs(ctx, ListJobsInput{OrgID: "org-1", ArticleID: "a", Cursor: "%%%"})
	assert.Equal(t, domain.ErrCodeValidation, domain.ErrorCode(err))

	rows := []*domain.EmbeddingJob{domain.NewEmbeddingJob("j1", "a", "org-1", time.Now())}
	f.jobs.On("ListByArticle", ctx, "a", (*pagination.Cursor)(nil), pagination.DefaultLimit).Return(rows, nil)

	_, err = f.svc.ListJobs(ctx, ListJobsInput{OrgID: "org-2", ArticleID: "a"})
	assert.ErrorIs(t, err, domain.ErrArticleNotFound)
}

func TestIngestionService_CountIndexedChunks(t *testing.T) {
	ctx := context.Background()
	f := newIngestionFixture()

	f.articles.On("GetByID", ctx, "article-1").Return(&domain.Article{ID: "article-1", OrgID: "org-1"}, nil)
	f.chunks.On("CountChunks", ctx, "article-1").Return(3, nil)

	n, err := f.svc.CountIndexedChunks(ctx, "org-1", "article-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = f.svc.CountIndexedChunks(ctx, "org-2", "article-1")
	assert.ErrorIs(t, err, domain.ErrArticleNotFound)

	_, err = f.svc.CountIndexedChunks(ctx, "", "article-1")
	assert.ErrorIs(t, err, domain.ErrMissingOrganization)

	f.chunks.AssertNumberOfCalls(t, "CountChunks", 1)
}
