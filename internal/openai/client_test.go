package openai

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloo-solutions/supportkb/internal/domain"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockOpenAIAPI is a mock for the OpenAI API
type MockOpenAIAPI struct {
	mock.Mock
}

func (m *MockOpenAIAPI) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	args := m.Called(ctx, conv)
	return args.Get(0).(openai.EmbeddingResponse), args.Error(1)
}

func (m *MockOpenAIAPI) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(openai.ChatCompletionResponse), args.Error(1)
}

// echoAPI embeds each text as [len(text), marker...] so callers can check order.
type echoAPI struct {
	dims     int
	calls    atomic.Int32
	mu       sync.Mutex
	batches  [][]string
	inflight atomic.Int32
	peak     atomic.Int32
}

func (a *echoAPI) CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error) {
	a.calls.Add(1)
	n := a.inflight.Add(1)
	defer a.inflight.Add(-1)
	for {
		p := a.peak.Load()
		if n <= p || a.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	req := conv.Convert()
	input := req.Input.([]string)

	a.mu.Lock()
	a.batches = append(a.batches, input)
	a.mu.Unlock()

	resp := openai.EmbeddingResponse{}
	// Reverse the data order to prove results are placed by index.
	for i := len(input) - 1; i >= 0; i-- {
		vec := make([]float32, a.dims)
		vec[0] = float32(len(input[i]))
		resp.Data = append(resp.Data, openai.Embedding{Index: i, Embedding: vec})
	}
	return resp, nil
}

func testConfig() Config {
	return Config{
		EmbeddingDimensions: 4,
		BatchSize:           2,
		Concurrency:         2,
		InitialDelay:        time.Millisecond,
	}
}

func TestEmbedder_Embed_PreservesOrderAcrossBatches(t *testing.T) {
	api := &echoAPI{dims: 4}
	embedder := NewEmbedderWithAPI(api, testConfig())

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := embedder.Embed(context.Background(), texts)

	require.NoError(t, err)
	require.Len(t, vectors, len(texts))
	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vectors[i][0], "vector %d", i)
		assert.Len(t, vectors[i], 4)
	}
	assert.Equal(t, int32(3), api.calls.Load())
	assert.LessOrEqual(t, api.peak.Load(), int32(2))
}

func TestEmbedder_Embed_Empty(t *testing.T) {
	embedder := NewEmbedderWithAPI(&echoAPI{dims: 4}, testConfig())

	vectors, err := embedder.Embed(context.Background(), nil)

	require.NoError(t, err)
	assert.Empty(t, vectors)
}

func TestEmbedder_Embed_EmptyTextIsPermanent(t *testing.T) {
	api := &echoAPI{dims: 4}
	embedder := NewEmbedderWithAPI(api, testConfig())

	_, err := embedder.Embed(context.Background(), []string{"ok", "  "})

	var failure *domain.EmbeddingFailure
	require.ErrorAs(t, err, &failure)
	assert.False(t, failure.Transient)
	assert.ErrorIs(t, err, ErrEmptyText)
	assert.Equal(t, int32(0), api.calls.Load())
}

func TestEmbedder_Embed_RetriesRateLimit(t *testing.T) {
	api := new(MockOpenAIAPI)
	rateLimited := &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests, Message: "slow down"}
	ok := openai.EmbeddingResponse{Data: []openai.Embedding{{Index: 0, Embedding: []float32{1, 0, 0, 0}}}}

	api.On("CreateEmbeddings", mock.Anything, mock.Anything).Return(openai.EmbeddingResponse{}, rateLimited).Twice()
	api.On("CreateEmbeddings", mock.Anything, mock.Anything).Return(ok, nil).Once()

	embedder := NewEmbedderWithAPI(api, testConfig())
	vectors, err := embedder.Embed(context.Background(), []string{"hello"})

	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0, 0, 0}}, vectors)
	api.AssertNumberOfCalls(t, "CreateEmbeddings", 3)
}

func TestEmbedder_Embed_ExhaustedRetriesAreTransient(t *testing.T) {
	api := new(MockOpenAIAPI)
	unavailable := &openai.APIError{HTTPStatusCode: http.StatusServiceUnavailable, Message: "down"}
	api.On("CreateEmbeddings", mock.Anything, mock.Anything).Return(openai.EmbeddingResponse{}, unavailable)

	embedder := NewEmbedderWithAPI(api, testConfig())
	_, err := embedder.Embed(context.Background(), []string{"hello"})

	var failure *domain.EmbeddingFailure
	require.ErrorAs(t, err, &failure)
	assert.True(t, failure.Transient)
	assert.Equal(t, http.StatusServiceUnavailable, failure.StatusCode)
	assert.Equal(t, domain.ErrCodeTransientProvider, domain.ErrorCode(err))
	api.AssertNumberOfCalls(t, "CreateEmbeddings", 4)
}

func TestEmbedder_Embed_UnauthorizedIsPermanent(t *testing.T) {
	api := new(MockOpenAIAPI)
	unauthorized := &openai.APIError{HTTPStatusCode: http.StatusUnauthorized, Message: "bad key"}
	api.On("CreateEmbeddings", mock.Anything, mock.Anything).Return(openai.EmbeddingResponse{}, unauthorized)

	embedder := NewEmbedderWithAPI(api, testConfig())
	_, err := embedder.Embed(context.Background(), []string{"hello"})

	var failure *domain.EmbeddingFailure
	require.ErrorAs(t, err, &failure)
	assert.False(t, failure.Transient)
	assert.Equal(t, http.StatusUnauthorized, failure.StatusCode)
	assert.False(t, domain.IsRetryable(err))
	api.AssertNumberOfCalls(t, "CreateEmbeddings", 1)
}

func TestEmbedder_Embed_WrongDimensions(t *testing.T) {
	api := new(MockOpenAIAPI)
	resp := openai.EmbeddingResponse{Data: []openai.Embedding{{Index: 0, Embedding: make([]float32, 3)}}}
	api.On("CreateEmbeddings", mock.Anything, mock.Anything).Return(resp, nil)

	embedder := NewEmbedderWithAPI(api, testConfig())
	_, err := embedder.Embed(context.Background(), []string{"hello"})

	var failure *domain.EmbeddingFailure
	require.ErrorAs(t, err, &failure)
	assert.False(t, failure.Transient)
	assert.ErrorIs(t, err, ErrWrongDimensions)
}

func TestEmbedder_Embed_CountMismatchIsRetried(t *testing.T) {
	api := new(MockOpenAIAPI)
	partial := openai.EmbeddingResponse{Data: []openai.Embedding{{Index: 0, Embedding: make([]float32, 4)}}}
	full := openai.EmbeddingResponse{Data: []openai.Embedding{
		{Index: 0, Embedding: make([]float32, 4)},
		{Index: 1, Embedding: make([]float32, 4)},
	}}
	api.On("CreateEmbeddings", mock.Anything, mock.Anything).Return(partial, nil).Once()
	api.On("CreateEmbeddings", mock.Anything, mock.Anything).Return(full, nil).Once()

	embedder := NewEmbedderWithAPI(api, testConfig())
	vectors, err := embedder.Embed(context.Background(), []string{"a", "b"})

	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	api.AssertNumberOfCalls(t, "CreateEmbeddings", 2)
}

func TestEmbedder_Embed_SetsDimensionsForV3Models(t *testing.T) {
	api := new(MockOpenAIAPI)
	resp := openai.EmbeddingResponse{Data: []openai.Embedding{{Index: 0, Embedding: make([]float32, 4)}}}
	api.On("CreateEmbeddings", mock.Anything, mock.MatchedBy(func(conv openai.EmbeddingRequestConverter) bool {
		req := conv.Convert()
		return req.Model == openai.SmallEmbedding3 && req.Dimensions == 4
	})).Return(resp, nil)

	embedder := NewEmbedderWithAPI(api, testConfig())
	_, err := embedder.Embed(context.Background(), []string{"a"})

	require.NoError(t, err)
	api.AssertExpectations(t)
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", &openai.APIError{HTTPStatusCode: 429}, true},
		{"server error", &openai.APIError{HTTPStatusCode: 500}, true},
		{"bad request", &openai.APIError{HTTPStatusCode: 400}, false},
		{"forbidden", &openai.APIError{HTTPStatusCode: 403}, false},
		{"network error", &openai.RequestError{Err: errors.New("connection reset")}, true},
		{"count mismatch", errEmbeddingCountMismatch, true},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestChatCompleter_Complete(t *testing.T) {
	api := new(MockOpenAIAPI)
	resp := openai.ChatCompletionResponse{Choices: []openai.ChatCompletionChoice{
		{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "Click Reset."}},
	}}
	api.On("CreateChatCompletion", mock.Anything, mock.MatchedBy(func(req openai.ChatCompletionRequest) bool {
		return req.Model == DefaultChatModel &&
			len(req.Messages) == 2 &&
			req.Messages[0].Role == openai.ChatMessageRoleSystem &&
			req.Messages[0].Content == "system" &&
			req.Messages[1].Content == "user"
	})).Return(resp, nil)

	completer := NewChatCompleterWithAPI(api, testConfig())
	text, err := completer.Complete(context.Background(), "system", "user")

	require.NoError(t, err)
	assert.Equal(t, "Click Reset.", text)
	api.AssertExpectations(t)
}

func TestChatCompleter_Complete_PermanentError(t *testing.T) {
	api := new(MockOpenAIAPI)
	api.On("CreateChatCompletion", mock.Anything, mock.Anything).
		Return(openai.ChatCompletionResponse{}, &openai.APIError{HTTPStatusCode: http.StatusUnauthorized})

	completer := NewChatCompleterWithAPI(api, testConfig())
	_, err := completer.Complete(context.Background(), "system", "user")

	require.Error(t, err)
	assert.Equal(t, domain.ErrCodePermanentProvider, domain.ErrorCode(err))
	api.AssertNumberOfCalls(t, "CreateChatCompletion", 1)
}

func TestChatCompleter_Complete_NoChoices(t *testing.T) {
	api := new(MockOpenAIAPI)
	api.On("CreateChatCompletion", mock.Anything, mock.Anything).Return(openai.ChatCompletionResponse{}, nil)

	completer := NewChatCompleterWithAPI(api, testConfig())
	_, err := completer.Complete(context.Background(), "system", "user")

	assert.Equal(t, domain.ErrCodeTransientProvider, domain.ErrorCode(err))
	assert.ErrorIs(t, err, errNoChoices)
}

func TestNewEmbedder(t *testing.T) {
	embedder := NewEmbedder(Config{APIKey: "test-api-key", BaseURL: "http://localhost:1234/v1"})

	assert.NotNil(t, embedder.api)
	assert.Equal(t, string(DefaultEmbeddingModel), embedder.Model())
	assert.Equal(t, DefaultEmbeddingDimensions, embedder.Dimensions())
}
