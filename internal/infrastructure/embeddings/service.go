package embeddings

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/yagpt/gateway/pkg/logger"
)

const (
	DefaultBaseURL = "https://llm.api.cloud.yandex.net/v1"

	docModel   = "text-search-doc"
	queryModel = "text-search-query"
)

// TokenSource supplies a bearer token for each request
type TokenSource interface {
	BearerToken(ctx context.Context) (string, error)
}

// Service embeds text through the OpenAI-compatible Foundation Models endpoint.
// Documents and queries use different models.
type Service struct {
	tokens   TokenSource
	folderID string
	baseURL  string
	timeout  time.Duration
}

type Option func(*Service)

func WithBaseURL(url string) Option {
	return func(s *Service) {
		s.baseURL = url
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.timeout = timeout
	}
}

func NewService(tokens TokenSource, folderID string, opts ...Option) *Service {
	s := &Service{
		tokens:   tokens,
		folderID: folderID,
		baseURL:  DefaultBaseURL,
		timeout:  30 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// EmbedQuery embeds a search query
func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return s.embed(ctx, s.modelURI(queryModel), text)
}

// EmbedDocuments embeds corpus chunks, one request per chunk
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for i, text := range texts {
		vector, err := s.embed(ctx, s.modelURI(docModel), text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed document %d: %w", i, err)
		}
		vectors = append(vectors, vector)
	}
	return vectors, nil
}

func (s *Service) modelURI(model string) string {
	return fmt.Sprintf("emb://%s/%s/latest", s.folderID, model)
}

func (s *Service) embed(ctx context.Context, model, text string) ([]float32, error) {
	token, err := s.tokens.BearerToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.client(token).CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		log := logger.For(logger.RETRIEVAL)
		log.Error().
			Err(err).
			Str("model", model).
			Msg("Embedding request failed")
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embedding response has no data")
	}

	return resp.Data[0].Embedding, nil
}

// client is built per call because the IAM token rotates
func (s *Service) client(token string) *openai.Client {
	cfg := openai.DefaultConfig(token)
	cfg.BaseURL = s.baseURL
	cfg.HTTPClient = &http.Client{
		Timeout: s.timeout,
		Transport: &folderTransport{
			folderID: s.folderID,
			base:     http.DefaultTransport,
		},
	}
	return openai.NewClientWithConfig(cfg)
}

type folderTransport struct {
	folderID string
	base     http.RoundTripper
}

func (t *folderTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("x-folder-id", t.folderID)
	return t.base.RoundTrip(req)
}
