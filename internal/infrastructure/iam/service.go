package iam

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/yagpt/gateway/internal/domain"
	"github.com/yagpt/gateway/internal/domain/chat/models"
	"github.com/yagpt/gateway/pkg/logger"
)

const (
	DefaultTokenURL = "https://iam.api.cloud.yandex.net/iam/v1/tokens"

	assertionTTL = 360 * time.Second
	tokenTTL     = 3500 * time.Second
	refreshSkew  = 100 * time.Second
)

// Token is a short-lived IAM bearer token
type Token struct {
	Value     string
	ExpiresAt time.Time
}

type tokenRequest struct {
	JWT string `json:"jwt"`
}

// tokenResponse ignores the server's expiresAt; the cache lifetime is fixed locally
type tokenResponse struct {
	IAMToken string `json:"iamToken"`
}

// Service exchanges a signed service-account assertion for an IAM token and caches it
type Service struct {
	mu     sync.RWMutex
	token  *Token
	group  singleflight.Group
	client *http.Client
	creds  models.Credentials
	url    string
	now    func() time.Time
}

type Option func(*Service)

// WithTokenURL overrides the IAM token endpoint
func WithTokenURL(url string) Option {
	return func(s *Service) {
		s.url = url
	}
}

// WithTimeout sets the timeout for token requests
func WithTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		s.client.Timeout = timeout
	}
}

// WithHTTPClient replaces the HTTP client used for token requests
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		s.client = client
	}
}

// WithClock sets the clock used for expiry decisions
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(creds models.Credentials, opts ...Option) *Service {
	s := &Service{
		client: &http.Client{Timeout: 10 * time.Second},
		creds:  creds,
		url:    DefaultTokenURL,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Token returns the cached token while it has more than refreshSkew left, otherwise fetches a new one.
// Concurrent callers share a single in-flight refresh.
func (s *Service) Token(ctx context.Context) (Token, error) {
	if token, ok := s.cached(); ok {
		return token, nil
	}

	v, err, shared := s.group.Do("token", func() (interface{}, error) {
		if token, ok := s.cached(); ok {
			return token, nil
		}
		return s.refresh(ctx)
	})
	if err != nil {
		return Token{}, err
	}

	if shared {
		log := logger.For(logger.IAM)
		log.Debug().Msg("Joined in-flight IAM token refresh")
	}

	return v.(Token), nil
}

// BearerToken returns only the token value
func (s *Service) BearerToken(ctx context.Context) (string, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return "", err
	}
	return token.Value, nil
}

func (s *Service) cached() (Token, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == nil {
		return Token{}, false
	}
	if !s.now().Before(s.token.ExpiresAt.Add(-refreshSkew)) {
		return Token{}, false
	}
	return *s.token, true
}

func (s *Service) refresh(ctx context.Context) (Token, error) {
	log := logger.For(logger.IAM)

	now := s.now()

	assertion, err := s.sign(now)
	if err != nil {
		return Token{}, &domain.AuthError{Err: fmt.Errorf("failed to sign assertion: %w", err)}
	}

	jsonData, err := json.Marshal(tokenRequest{JWT: assertion})
	if err != nil {
		return Token{}, &domain.AuthError{Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return Token{}, &domain.AuthError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Token{}, &domain.AuthError{Err: fmt.Errorf("failed to make request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		log.Error().
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("IAM token request rejected")
		return Token{}, &domain.AuthError{
			Body: string(body),
			Err:  fmt.Errorf("iam API returned status %d", resp.StatusCode),
		}
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return Token{}, &domain.AuthError{Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	if tokenResp.IAMToken == "" {
		return Token{}, &domain.AuthError{Err: fmt.Errorf("iam API returned an empty token")}
	}

	token := Token{
		Value:     tokenResp.IAMToken,
		ExpiresAt: now.Add(tokenTTL),
	}

	s.mu.Lock()
	s.token = &token
	s.mu.Unlock()

	log.Info().
		Time("expires_at", token.ExpiresAt).
		Msg("IAM token refreshed")

	return token, nil
}

func (s *Service) sign(now time.Time) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(s.creds.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("failed to parse private key: %w", err)
	}

	claims := jwt.RegisteredClaims{
		Audience:  jwt.ClaimStrings{s.url},
		Issuer:    s.creds.ServiceAccountID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodPS256, claims)
	token.Header["kid"] = s.creds.KeyID

	return token.SignedString(key)
}
