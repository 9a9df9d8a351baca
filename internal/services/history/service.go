package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/yagpt/gateway/internal/domain/chat/models"
	"github.com/yagpt/gateway/internal/infrastructure/redis"
	"github.com/yagpt/gateway/pkg/logger"
)

const keyPrefix = "history:"

// HistoryStore keeps an ordered list of turns per user
type HistoryStore interface {
	Get(ctx context.Context, userID string) ([]models.Turn, error)
	Append(ctx context.Context, userID string, turns ...models.Turn) error
	Reset(ctx context.Context, userID string) error
}

type RedisStore struct {
	redisService *redis.Service
	maxTurns     int
}

type MemoryStore struct {
	mu       sync.RWMutex
	maxTurns int
	turns    map[string][]models.Turn
}

type Service struct {
	store HistoryStore
}

// NewService uses Redis when it is reachable and falls back to memory otherwise.
// maxTurns of zero keeps every turn.
func NewService(redisService *redis.Service, maxTurns int) *Service {
	log := logger.For(logger.HISTORY)

	var store HistoryStore
	if redisService != nil {
		if err := redisService.Ping(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Redis unreachable - falling back to in-memory history")
			store = NewMemoryStore(maxTurns)
		} else {
			store = &RedisStore{redisService: redisService, maxTurns: maxTurns}
		}
	} else {
		store = NewMemoryStore(maxTurns)
	}

	log.Info().
		Str("backend", backendName(store)).
		Int("max_turns", maxTurns).
		Msg("History store initialised")

	return &Service{store: store}
}

func NewMemoryStore(maxTurns int) *MemoryStore {
	return &MemoryStore{
		maxTurns: maxTurns,
		turns:    make(map[string][]models.Turn),
	}
}

func backendName(store HistoryStore) string {
	if _, ok := store.(*RedisStore); ok {
		return "redis"
	}
	return "memory"
}

// Backend reports which store is in use
func (s *Service) Backend() string {
	return backendName(s.store)
}

func (s *Service) Get(ctx context.Context, userID string) ([]models.Turn, error) {
	return s.store.Get(ctx, userID)
}

func (s *Service) Append(ctx context.Context, userID string, turns ...models.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	return s.store.Append(ctx, userID, turns...)
}

func (s *Service) Reset(ctx context.Context, userID string) error {
	return s.store.Reset(ctx, userID)
}

// Redis Store implementation
func (rs *RedisStore) Get(ctx context.Context, userID string) ([]models.Turn, error) {
	vals, err := rs.redisService.LRange(ctx, keyPrefix+userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	turns := make([]models.Turn, 0, len(vals))
	for _, val := range vals {
		var turn models.Turn
		if err := json.Unmarshal([]byte(val), &turn); err != nil {
			return nil, fmt.Errorf("failed to decode turn: %w", err)
		}
		turns = append(turns, turn)
	}

	return turns, nil
}

func (rs *RedisStore) Append(ctx context.Context, userID string, turns ...models.Turn) error {
	values := make([]interface{}, 0, len(turns))
	for _, turn := range turns {
		data, err := json.Marshal(turn)
		if err != nil {
			return fmt.Errorf("failed to encode turn: %w", err)
		}
		values = append(values, string(data))
	}

	if err := rs.redisService.AppendTrimmed(ctx, keyPrefix+userID, rs.maxTurns, values...); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (rs *RedisStore) Reset(ctx context.Context, userID string) error {
	if err := rs.redisService.Delete(ctx, keyPrefix+userID); err != nil {
		return fmt.Errorf("failed to reset history: %w", err)
	}
	return nil
}

// Memory Store implementation
func (ms *MemoryStore) Get(ctx context.Context, userID string) ([]models.Turn, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	turns, exists := ms.turns[userID]
	if !exists {
		ms.turns[userID] = []models.Turn{}
		return []models.Turn{}, nil
	}

	out := make([]models.Turn, len(turns))
	copy(out, turns)
	return out, nil
}

func (ms *MemoryStore) Append(ctx context.Context, userID string, turns ...models.Turn) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	updated := append(ms.turns[userID], turns...)
	if ms.maxTurns > 0 && len(updated) > ms.maxTurns {
		updated = append([]models.Turn(nil), updated[len(updated)-ms.maxTurns:]...)
	}
	ms.turns[userID] = updated
	return nil
}

func (ms *MemoryStore) Reset(ctx context.Context, userID string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.turns[userID] = []models.Turn{}
	return nil
}
