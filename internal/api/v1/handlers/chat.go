package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/yagpt/gateway/internal/domain"
	"github.com/yagpt/gateway/internal/domain/chat/models"
	"github.com/yagpt/gateway/pkg/httpext"
	"github.com/yagpt/gateway/pkg/logger"
)

// Gateway is the conversation surface the transports drive
type Gateway interface {
	Ask(ctx context.Context, question, userID string) (string, error)
	RAGAnswer(ctx context.Context, question, userID string) (string, error)
	ResetHistory(ctx context.Context, userID string) error
	HistorySummary(ctx context.Context, userID string) (models.HistorySummary, error)
	RAGEnabled() bool
}

type QuestionRequest struct {
	UserID   string `json:"user_id" validate:"required,max=256"`
	Question string `json:"question" validate:"required"`
}

type AnswerResponse struct {
	Answer string `json:"answer"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// HandleAsk answers a question in the context of the user's conversation
func HandleAsk(gateway Gateway, w http.ResponseWriter, r *http.Request) {
	handleQuestion(gateway.Ask, "ask", w, r)
}

// HandleRAG answers a question from the document corpus
func HandleRAG(gateway Gateway, w http.ResponseWriter, r *http.Request) {
	if !gateway.RAGEnabled() {
		httpext.JsonError(w, MsgRAGDisabled, http.StatusServiceUnavailable)
		return
	}
	handleQuestion(gateway.RAGAnswer, "rag", w, r)
}

// HandleHistory reports how many turns are stored for a user
func HandleHistory(gateway Gateway, w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	summary, err := gateway.HistorySummary(r.Context(), userID)
	if err != nil {
		log := logger.For(logger.HANDLER)
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to read history")
		httpext.JsonError(w, httpext.Apology, http.StatusInternalServerError)
		return
	}

	httpext.Json(w, http.StatusOK, summary)
}

// HandleResetHistory clears a user's conversation
func HandleResetHistory(gateway Gateway, w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]

	if err := gateway.ResetHistory(r.Context(), userID); err != nil {
		log := logger.For(logger.HANDLER)
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to reset history")
		httpext.JsonError(w, httpext.Apology, http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func handleQuestion(answer func(ctx context.Context, question, userID string) (string, error), kind string, w http.ResponseWriter, r *http.Request) {
	log := logger.For(logger.HANDLER)

	var req QuestionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Debug().Err(err).Msg("Failed to decode question request")
		httpext.JsonError(w, "Invalid request format", http.StatusBadRequest)
		return
	}

	req.Question = strings.TrimSpace(req.Question)

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && verrs[0].Field() == "Question" {
			httpext.JsonError(w, MsgEmptyQuestion, http.StatusBadRequest)
			return
		}
		log.Debug().Err(err).Msg("Question request failed validation")
		httpext.JsonErrorWithDetails(w, http.StatusBadRequest, httpext.ErrorResponse{
			Error:            "Invalid request",
			ErrorDescription: MsgInvalidUser,
		})
		return
	}

	text, err := answer(r.Context(), req.Question, req.UserID)
	if err != nil {
		log.Error().
			Err(err).
			Str("kind", kind).
			Str("user_id", req.UserID).
			Msg("Failed to answer question")
		httpext.JsonError(w, httpext.Apology, statusFor(err))
		return
	}

	httpext.Json(w, http.StatusOK, AnswerResponse{Answer: text})
}

// statusFor maps gateway errors to HTTP status codes. The body stays generic regardless.
func statusFor(err error) int {
	var authErr *domain.AuthError
	var completionErr *domain.CompletionError
	var retrievalErr *domain.RetrievalError

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &authErr), errors.As(err, &completionErr):
		return http.StatusBadGateway
	case errors.As(err, &retrievalErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
