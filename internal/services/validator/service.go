package validator

import (
	"context"
	"strings"

	"github.com/yagpt/gateway/internal/domain"
	"github.com/yagpt/gateway/internal/domain/chat/models"
	"github.com/yagpt/gateway/pkg/logger"
)

// Completer runs a single completion request
type Completer interface {
	Complete(ctx context.Context, turns []models.Turn) (string, error)
}

// Service screens questions with a fixed safety prompt before they reach the model
type Service struct {
	completer Completer
	prompt    *models.ValidationPrompt
}

func NewService(completer Completer, prompt *models.ValidationPrompt) *Service {
	return &Service{
		completer: completer,
		prompt:    prompt,
	}
}

// Check returns Allowed only when the model reply contains the affirmative token.
// Any other reply is Blocked. An error is returned only when the completion call fails.
func (s *Service) Check(ctx context.Context, question string) (models.Verdict, error) {
	log := logger.For(logger.VALIDATOR)

	reply, err := s.completer.Complete(ctx, []models.Turn{
		models.UserTurn(s.prompt.Render(question)),
	})
	if err != nil {
		return models.Blocked, &domain.ValidationError{Err: err}
	}

	verdict := models.Blocked
	if strings.Contains(reply, s.prompt.Affirmative()) {
		verdict = models.Allowed
	}

	log.Debug().
		Str("verdict", verdict.String()).
		Str("reply", logger.Truncate(reply, 100)).
		Msg("Question screened")

	return verdict, nil
}
