package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/yagpt/gateway/internal/domain"
	"github.com/yagpt/gateway/internal/domain/chat/models"
	"github.com/yagpt/gateway/internal/observability"
	"github.com/yagpt/gateway/pkg/logger"
)

const DefaultRefusal = "Your question was removed because it may violate the rules of using this bot."

var errRAGDisabled = &domain.RetrievalError{Err: domain.ErrIndexUnavailable}

// Validator screens a question before it reaches the model
type Validator interface {
	Check(ctx context.Context, question string) (models.Verdict, error)
}

// HistoryStore keeps per-user conversation turns
type HistoryStore interface {
	Get(ctx context.Context, userID string) ([]models.Turn, error)
	Append(ctx context.Context, userID string, turns ...models.Turn) error
	Reset(ctx context.Context, userID string) error
}

// Completer runs a completion over the given turns
type Completer interface {
	Complete(ctx context.Context, turns []models.Turn) (string, error)
}

// Retriever finds corpus passages relevant to a query
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]models.RetrievedPassage, error)
}

type Options struct {
	RefusalMessage string
	TopK           int
	// RAGFallback answers without augmentation when retrieval fails
	RAGFallback bool
	// RAGValidate screens RAG questions with the validator first
	RAGValidate bool
}

// Service orchestrates validation, history and completion for each user question
type Service struct {
	validator Validator
	history   HistoryStore
	completer Completer
	retriever Retriever
	synthesis *models.SynthesisPrompt
	locks     *keyedMutex
	opts      Options
}

// NewService wires the gateway. retriever may be nil when RAG is disabled.
func NewService(validator Validator, history HistoryStore, completer Completer, retriever Retriever, opts Options) *Service {
	if opts.RefusalMessage == "" {
		opts.RefusalMessage = DefaultRefusal
	}
	if opts.TopK <= 0 {
		opts.TopK = 3
	}

	return &Service{
		validator: validator,
		history:   history,
		completer: completer,
		retriever: retriever,
		synthesis: models.NewSynthesisPrompt(),
		locks:     newKeyedMutex(),
		opts:      opts,
	}
}

// RAGEnabled reports whether a retriever is configured
func (s *Service) RAGEnabled() bool {
	return s.retriever != nil
}

// Ask screens the question, answers it in the context of the user's history and records the exchange.
// Calls for the same user are applied in arrival order. A call cancelled while queued is dropped.
func (s *Service) Ask(ctx context.Context, question, userID string) (string, error) {
	log := logger.For(logger.GATEWAY)
	started := time.Now()

	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		observability.ObserveRequest(observability.KindAsk, observability.OutcomeFailed, started)
		return "", err
	}
	defer unlock()

	if !s.allowed(ctx, question, userID) {
		observability.ObserveRequest(observability.KindAsk, observability.OutcomeBlocked, started)
		return s.opts.RefusalMessage, nil
	}

	turns, err := s.history.Get(ctx, userID)
	if err != nil {
		observability.ObserveRequest(observability.KindAsk, observability.OutcomeFailed, started)
		return "", fmt.Errorf("failed to read history: %w", err)
	}

	prompt := make([]models.Turn, 0, len(turns)+1)
	prompt = append(prompt, turns...)
	prompt = append(prompt, models.UserTurn(question))

	answer, err := s.completer.Complete(ctx, prompt)
	if err != nil {
		observability.ObserveRequest(observability.KindAsk, observability.OutcomeFailed, started)
		return "", err
	}

	if err := s.history.Append(ctx, userID, models.UserTurn(question), models.AssistantTurn(answer)); err != nil {
		observability.ObserveRequest(observability.KindAsk, observability.OutcomeFailed, started)
		return "", fmt.Errorf("failed to save history: %w", err)
	}

	log.Info().
		Str("user_id", userID).
		Str("question", logger.Truncate(question, 100)).
		Str("answer", logger.Truncate(answer, 100)).
		Int("history_turns", len(turns)+2).
		Msg("Question answered")

	observability.ObserveRequest(observability.KindAsk, observability.OutcomeAnswered, started)
	return answer, nil
}

// RAGAnswer answers a question from retrieved corpus passages. It neither reads nor writes history.
func (s *Service) RAGAnswer(ctx context.Context, question, userID string) (string, error) {
	log := logger.For(logger.GATEWAY)
	started := time.Now()

	if s.opts.RAGValidate && !s.allowed(ctx, question, userID) {
		observability.ObserveRequest(observability.KindRAG, observability.OutcomeBlocked, started)
		return s.opts.RefusalMessage, nil
	}

	outcome := observability.OutcomeAnswered

	var turn models.Turn
	passages, err := s.search(ctx, question)
	switch {
	case err == nil:
		turn = models.UserTurn(s.synthesis.Render(question, passages))
	case s.opts.RAGFallback:
		log.Warn().
			Err(err).
			Str("user_id", userID).
			Msg("Retrieval failed - answering without documentation")
		outcome = observability.OutcomeFallback
		turn = models.UserTurn(question)
	default:
		observability.ObserveRequest(observability.KindRAG, observability.OutcomeFailed, started)
		return "", err
	}

	answer, err := s.completer.Complete(ctx, []models.Turn{turn})
	if err != nil {
		observability.ObserveRequest(observability.KindRAG, observability.OutcomeFailed, started)
		return "", err
	}

	log.Info().
		Str("user_id", userID).
		Str("question", logger.Truncate(question, 100)).
		Int("passages", len(passages)).
		Msg("RAG question answered")

	observability.ObserveRequest(observability.KindRAG, outcome, started)
	return answer, nil
}

// ResetHistory clears the user's conversation
func (s *Service) ResetHistory(ctx context.Context, userID string) error {
	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.history.Reset(ctx, userID); err != nil {
		return fmt.Errorf("failed to reset history: %w", err)
	}

	log := logger.For(logger.GATEWAY)
	log.Info().Str("user_id", userID).Msg("History reset")
	return nil
}

// HistorySummary counts the user's stored turns by role
func (s *Service) HistorySummary(ctx context.Context, userID string) (models.HistorySummary, error) {
	unlock, err := s.locks.Lock(ctx, userID)
	if err != nil {
		return models.HistorySummary{}, err
	}
	defer unlock()

	turns, err := s.history.Get(ctx, userID)
	if err != nil {
		return models.HistorySummary{}, fmt.Errorf("failed to read history: %w", err)
	}
	return models.Summarize(turns), nil
}

// allowed treats a failed validator call as blocked
func (s *Service) allowed(ctx context.Context, question, userID string) bool {
	verdict, err := s.validator.Check(ctx, question)
	if err != nil {
		log := logger.For(logger.GATEWAY)
		log.Error().
			Err(err).
			Str("user_id", userID).
			Msg("Validator failed - treating question as blocked")
		observability.ValidatorFailed()
		return false
	}

	if verdict == models.Blocked {
		log := logger.For(logger.GATEWAY)
		log.Warn().
			Str("user_id", userID).
			Str("question", logger.Truncate(question, 100)).
			Msg("Question blocked")
		return false
	}

	return true
}

func (s *Service) search(ctx context.Context, question string) ([]models.RetrievedPassage, error) {
	if s.retriever == nil {
		return nil, errRAGDisabled
	}
	return s.retriever.Search(ctx, question, s.opts.TopK)
}
