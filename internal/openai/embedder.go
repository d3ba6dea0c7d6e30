package openai

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloo-solutions/supportkb/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
)

// Embedder generates embeddings through the OpenAI embeddings API. Inputs are
// split into batches that run concurrently; output order matches input order.
type Embedder struct {
	api   EmbeddingAPI
	cfg   Config
	retry retryPolicy
}

func NewEmbedder(cfg Config) *Embedder {
	return NewEmbedderWithAPI(NewAPIClient(cfg.APIKey, cfg.BaseURL), cfg)
}

func NewEmbedderWithAPI(api EmbeddingAPI, cfg Config) *Embedder {
	cfg = cfg.withDefaults()
	return &Embedder{
		api: api,
		cfg: cfg,
		retry: retryPolicy{
			maxAttempts:   cfg.MaxAttempts,
			initialDelay:  cfg.InitialDelay,
			backoffFactor: cfg.BackoffFactor,
		},
	}
}

func (e *Embedder) Model() string {
	return string(e.cfg.EmbeddingModel)
}

func (e *Embedder) Dimensions() int {
	return e.cfg.EmbeddingDimensions
}

// Embed returns one vector per text. Failures are *domain.EmbeddingFailure.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, &domain.EmbeddingFailure{
				Message: fmt.Sprintf("input %d: %v", i, ErrEmptyText),
				Err:     ErrEmptyText,
			}
		}
	}

	out := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for start := 0; start < len(texts); start += e.cfg.BatchSize {
		start := start
		end := min(start+e.cfg.BatchSize, len(texts))
		g.Go(func() error {
			vectors, err := e.embedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vectors)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Embedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	req := openai.EmbeddingRequest{
		Input: batch,
		Model: e.cfg.EmbeddingModel,
	}
	if strings.HasPrefix(string(e.cfg.EmbeddingModel), "text-embedding-3") {
		req.Dimensions = e.cfg.EmbeddingDimensions
	}

	var resp openai.EmbeddingResponse
	err := e.retry.withRetry(ctx, func() error {
		var err error
		resp, err = e.api.CreateEmbeddings(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Data) != len(batch) {
			return fmt.Errorf("%w: got %d vectors for %d texts", errEmbeddingCountMismatch, len(resp.Data), len(batch))
		}
		return nil
	})
	if err != nil {
		return nil, toFailure(err)
	}

	vectors := make([][]float32, len(batch))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(batch) {
			return nil, &domain.EmbeddingFailure{
				Transient: true,
				Message:   fmt.Sprintf("embedding index %d out of range", d.Index),
			}
		}
		if len(d.Embedding) != e.cfg.EmbeddingDimensions {
			return nil, &domain.EmbeddingFailure{
				Message: fmt.Sprintf("%v: expected %d, got %d", ErrWrongDimensions, e.cfg.EmbeddingDimensions, len(d.Embedding)),
				Err:     ErrWrongDimensions,
			}
		}
		vectors[d.Index] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, &domain.EmbeddingFailure{
				Transient: true,
				Message:   fmt.Sprintf("missing embedding for input %d", i),
			}
		}
	}
	return vectors, nil
}

func toFailure(err error) *domain.EmbeddingFailure {
	return &domain.EmbeddingFailure{
		Transient:  isTransient(err),
		StatusCode: statusCode(err),
		Message:    err.Error(),
		Err:        err,
	}
}
