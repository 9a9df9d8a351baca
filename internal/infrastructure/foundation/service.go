package foundation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/yagpt/gateway/internal/domain"
	"github.com/yagpt/gateway/internal/domain/chat/models"
	"github.com/yagpt/gateway/pkg/logger"
)

const (
	DefaultCompletionURL = "https://llm.api.cloud.yandex.net/foundationModels/v1/completion"
	DefaultModel         = "yandexgpt-lite"
	DefaultTemperature   = 0.6
	DefaultMaxTokens     = 2000
)

var (
	ErrEmptyAlternatives = errors.New("response has no alternatives")
	ErrMissingText       = errors.New("response alternative has no message text")
)

// TokenSource supplies a bearer token for each request
type TokenSource interface {
	BearerToken(ctx context.Context) (string, error)
}

type CompletionOptions struct {
	Stream      bool    `json:"stream"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type CompletionRequest struct {
	ModelURI          string            `json:"modelUri"`
	CompletionOptions CompletionOptions `json:"completionOptions"`
	Messages          []Message         `json:"messages"`
}

type CompletionResponse struct {
	Result struct {
		Alternatives []struct {
			Message *struct {
				Role string  `json:"role"`
				Text *string `json:"text"`
			} `json:"message"`
			Status string `json:"status"`
		} `json:"alternatives"`
		ModelVersion string `json:"modelVersion"`
	} `json:"result"`
}

// Service sends conversation turns to the Foundation Models completion endpoint.
// It keeps no conversation state between calls.
type Service struct {
	client      *http.Client
	tokens      TokenSource
	folderID    string
	url         string
	model       string
	temperature float64
	maxTokens   int
}

type Option func(*Service)

func WithURL(url string) Option {
	return func(s *Service) {
		s.url = url
	}
}

func WithModel(model string) Option {
	return func(s *Service) {
		s.model = model
	}
}

func WithTemperature(temperature float64) Option {
	return func(s *Service) {
		s.temperature = temperature
	}
}

func WithMaxTokens(maxTokens int) Option {
	return func(s *Service) {
		s.maxTokens = maxTokens
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.client.Timeout = timeout
	}
}

func NewService(tokens TokenSource, folderID string, opts ...Option) *Service {
	s := &Service{
		client:      &http.Client{Timeout: 30 * time.Second},
		tokens:      tokens,
		folderID:    folderID,
		url:         DefaultCompletionURL,
		model:       DefaultModel,
		temperature: DefaultTemperature,
		maxTokens:   DefaultMaxTokens,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ModelURI returns the gpt:// URI of the configured model
func (s *Service) ModelURI() string {
	return fmt.Sprintf("gpt://%s/%s", s.folderID, s.model)
}

// Complete returns the text of the first alternative for the given turns
func (s *Service) Complete(ctx context.Context, turns []models.Turn) (string, error) {
	log := logger.For(logger.COMPLETION)

	token, err := s.tokens.BearerToken(ctx)
	if err != nil {
		return "", err
	}

	messages := make([]Message, 0, len(turns))
	for _, turn := range turns {
		messages = append(messages, Message{Role: string(turn.Role), Text: turn.Text})
	}

	req := CompletionRequest{
		ModelURI: s.ModelURI(),
		CompletionOptions: CompletionOptions{
			Stream:      false,
			Temperature: s.temperature,
			MaxTokens:   s.maxTokens,
		},
		Messages: messages,
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", &domain.CompletionError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", &domain.CompletionError{Err: fmt.Errorf("failed to create request: %w", err)}
	}

	requestID := uuid.New().String()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	httpReq.Header.Set("x-folder-id", s.folderID)
	httpReq.Header.Set("x-client-request-id", requestID)

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", &domain.CompletionError{Err: fmt.Errorf("failed to make request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Error().
			Int("status", resp.StatusCode).
			Str("request_id", requestID).
			Str("body", logger.Truncate(string(body), 500)).
			Msg("Completion request failed")
		return "", &domain.CompletionError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("completion API returned status %d", resp.StatusCode),
		}
	}

	var completionResp CompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completionResp); err != nil {
		return "", &domain.CompletionError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}

	if len(completionResp.Result.Alternatives) == 0 {
		return "", &domain.CompletionError{Err: ErrEmptyAlternatives}
	}

	message := completionResp.Result.Alternatives[0].Message
	if message == nil || message.Text == nil {
		return "", &domain.CompletionError{Err: ErrMissingText}
	}

	log.Debug().
		Str("request_id", requestID).
		Int("turns", len(turns)).
		Dur("duration", time.Since(start)).
		Msg("Completion received")

	return *message.Text, nil
}
