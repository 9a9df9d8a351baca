package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/yagpt/gateway/internal/config"
	"github.com/yagpt/gateway/internal/domain/chat/models"
	"github.com/yagpt/gateway/internal/infrastructure/badger"
	"github.com/yagpt/gateway/internal/infrastructure/embeddings"
	"github.com/yagpt/gateway/internal/infrastructure/foundation"
	"github.com/yagpt/gateway/internal/infrastructure/iam"
	"github.com/yagpt/gateway/internal/infrastructure/objectstore"
	"github.com/yagpt/gateway/internal/infrastructure/redis"
	"github.com/yagpt/gateway/internal/services/gateway"
	"github.com/yagpt/gateway/internal/services/history"
	"github.com/yagpt/gateway/internal/services/index"
	"github.com/yagpt/gateway/internal/services/retrieval"
	"github.com/yagpt/gateway/internal/services/validator"
)

type Services struct {
	iamService        *iam.Service
	completionService *foundation.Service
	redisService      *redis.Service
	historyService    *history.Service
	indexCache        *badger.Store
	gatewayService    *gateway.Service
}

// InitializeServices builds the single gateway for the process and its collaborators
func InitializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	log.Info().Msg("Initializing core services")

	creds, err := cfg.Credentials()
	if err != nil {
		return nil, err
	}

	iamService := iam.NewService(creds,
		iam.WithTokenURL(cfg.Yandex.TokenURL),
		iam.WithTimeout(cfg.Yandex.TokenTimeout),
	)
	log.Info().Msg("Initializing IAM token service")

	completionService := foundation.NewService(iamService, creds.FolderID,
		foundation.WithURL(cfg.Yandex.CompletionURL),
		foundation.WithModel(cfg.Yandex.Model),
		foundation.WithTemperature(cfg.Yandex.Temperature),
		foundation.WithMaxTokens(cfg.Yandex.MaxTokens),
		foundation.WithTimeout(cfg.Yandex.CompletionTimeout),
	)
	log.Info().Msg("Initializing completion service")

	// Redis is optional; history falls back to memory without it
	var redisService *redis.Service
	if cfg.History.Backend == "redis" {
		redisService, err = redis.NewService(ctx, redis.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Redis unavailable - using in-memory history")
			redisService = nil
		}
	}

	historyService := history.NewService(redisService, cfg.History.MaxTurns)
	log.Info().Msg("Initializing history service")

	validatorService := validator.NewService(completionService, models.NewValidationPrompt(
		cfg.Validator.AffirmativeToken,
		cfg.Validator.NegativeToken,
		cfg.Validator.DisallowedTopics,
	))
	log.Info().Msg("Initializing validator service")

	s := &Services{
		iamService:        iamService,
		completionService: completionService,
		redisService:      redisService,
		historyService:    historyService,
	}

	var retriever gateway.Retriever
	if cfg.RAG.Enabled {
		searcher, err := s.buildRetriever(ctx, cfg, iamService, creds.FolderID)
		if err != nil {
			if !cfg.RAG.Fallback {
				s.Close()
				return nil, fmt.Errorf("failed to initialize retrieval: %w", err)
			}
			log.Error().Err(err).Msg("Document index unavailable - RAG questions will be answered without documentation")
			searcher = retrieval.NewService(nil, nil)
		}
		retriever = searcher
		log.Info().Msg("Initializing retrieval service")
	}

	s.gatewayService = gateway.NewService(validatorService, historyService, completionService, retriever, gateway.Options{
		RefusalMessage: cfg.Validator.RefusalMessage,
		TopK:           cfg.RAG.TopK,
		RAGFallback:    cfg.RAG.Fallback,
		RAGValidate:    cfg.RAG.Validate,
	})

	log.Info().Msg("All services initialized successfully")

	return s, nil
}

func (s *Services) buildRetriever(ctx context.Context, cfg *config.Config, tokens *iam.Service, folderID string) (*retrieval.Service, error) {
	embedder := embeddings.NewService(tokens, folderID,
		embeddings.WithBaseURL(cfg.Yandex.EmbeddingsURL),
		embeddings.WithTimeout(cfg.Yandex.EmbeddingTimeout),
	)

	var cache index.Cache
	if cfg.RAG.CachePath != "" {
		store, err := badger.Open(badger.Config{Path: cfg.RAG.CachePath})
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.RAG.CachePath).Msg("Index cache unavailable - index will be rebuilt")
		} else {
			s.indexCache = store
			cache = store
		}
	}

	indexService := index.NewService(embedder, cache, index.Options{
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
	})

	ix, err := indexService.BuildOrLoad(ctx, objectstore.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		Prefix:    cfg.Storage.Prefix,
	})
	if err != nil {
		return nil, err
	}

	return retrieval.NewService(ix, embedder), nil
}

// GetGatewayService returns the gateway
func (s *Services) GetGatewayService() *gateway.Service {
	return s.gatewayService
}

// GetIAMService returns the IAM token service
func (s *Services) GetIAMService() *iam.Service {
	return s.iamService
}

// GetHistoryService returns the history service
func (s *Services) GetHistoryService() *history.Service {
	return s.historyService
}

// Close releases connections and files held by the services
func (s *Services) Close() error {
	var errs []error
	if s.redisService != nil {
		errs = append(errs, s.redisService.Close())
	}
	if s.indexCache != nil {
		errs = append(errs, s.indexCache.Close())
	}
	return errors.Join(errs...)
}
