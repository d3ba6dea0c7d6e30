package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloo-solutions/supportkb/internal/domain"
	"github.com/cloo-solutions/supportkb/internal/logging"
	"github.com/cloo-solutions/supportkb/internal/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Embedder turns texts into vectors. Implementations preserve input order and
// return exactly one vector per text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbeddingService regenerates the chunk set of an article.
type EmbeddingService struct {
	embedder Embedder
	chunks   VectorStore
	chunkCfg ChunkConfig
	logger   *zap.Logger
	now      func() time.Time
}

func NewEmbeddingService(embedder Embedder, chunks VectorStore, logger *zap.Logger) *EmbeddingService {
	return &EmbeddingService{
		embedder: embedder,
		chunks:   chunks,
		chunkCfg: DefaultChunkConfig(),
		logger:   logging.OrNop(logger),
		now:      time.Now,
	}
}

func (s *EmbeddingService) WithChunkConfig(cfg ChunkConfig) *EmbeddingService {
	s.chunkCfg = cfg
	return s
}

// IndexArticle chunks and embeds the article content and atomically replaces
// its stored chunks. It returns the number of chunks written, or
// domain.ErrStaleArticleRevision when the article changed after it was read.
func (s *EmbeddingService) IndexArticle(ctx context.Context, article *domain.Article) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "EmbeddingService.IndexArticle", telemetry.SpanAttributes{
		OrgID:     article.OrgID,
		ArticleID: article.ID,
		Operation: "index",
	})
	defer span.End()

	if !article.IsPublished {
		return 0, domain.ErrArticleUnpublished
	}

	texts, dropped := chunkText(article.Content, s.chunkCfg)
	if len(texts) == 0 {
		return 0, domain.ErrEmptyContent
	}
	if dropped > 0 {
		s.logger.Warn("article truncated, trailing content is not searchable",
			zap.String("article_id", article.ID),
			zap.String("org_id", article.OrgID),
			zap.Int("max_chunks", s.chunkCfg.MaxChunks),
			zap.Int("dropped_chunks", dropped),
		)
		telemetry.AddBreadcrumb(ctx, "indexing", fmt.Sprintf("article %s truncated, %d chunks dropped", article.ID, dropped))
	}

	inputs := make([]string, len(texts))
	for i, text := range texts {
		inputs[i] = buildChunkEmbeddingText(article, text)
	}

	vectors, err := s.embedder.Embed(ctx, inputs)
	if err != nil {
		span.SetError(err)
		return 0, err
	}
	if len(vectors) != len(texts) {
		err := &domain.EmbeddingFailure{
			Transient: true,
			Message:   fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(vectors)),
		}
		span.SetError(err)
		return 0, err
	}

	generation := s.now().UnixNano()
	revision := article.Revision()
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{
			ID:         uuid.NewString(),
			ArticleID:  article.ID,
			OrgID:      article.OrgID,
			ChunkIndex: i,
			Text:       text,
			Embedding:  vectors[i],
			Metadata: domain.ChunkMetadata{
				Title:      article.Title,
				Category:   article.Category,
				Generation: generation,
				Revision:   revision,
			},
		}
	}

	if err := s.chunks.ReplaceChunks(ctx, article.ID, article.OrgID, chunks); err != nil {
		span.SetError(err)
		return 0, err
	}

	s.logger.Debug("article indexed",
		zap.String("article_id", article.ID),
		zap.String("org_id", article.OrgID),
		zap.Int("chunks", len(chunks)),
	)
	span.SetOK()
	return len(chunks), nil
}

// The title is prepended so short chunks keep their topic.
func buildChunkEmbeddingText(a *domain.Article, chunk string) string {
	var parts []string
	if title := strings.TrimSpace(a.Title); title != "" {
		parts = append(parts, title)
	}
	parts = append(parts, chunk)
	return strings.Join(parts, "\n\n")
}
