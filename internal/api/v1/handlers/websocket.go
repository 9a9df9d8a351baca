package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yagpt/gateway/internal/connections"
	"github.com/yagpt/gateway/pkg/httpext"
	"github.com/yagpt/gateway/pkg/logger"
)

const (
	FrameTyping = "typing"
	FrameAnswer = "answer"
	FrameError  = "error"
)

// Frame is a server to client chat message
type Frame struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	MessageID string `json:"message_id"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ChatSocket serves the bot-style chat over WebSocket. Each text message is either a
// command (/start, /reset, /history, /rag) or a question.
type ChatSocket struct {
	gateway Gateway
	manager *connections.Manager
}

func NewChatSocket(gateway Gateway, manager *connections.Manager) *ChatSocket {
	return &ChatSocket{
		gateway: gateway,
		manager: manager,
	}
}

func (cs *ChatSocket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.For(logger.HANDLER)

	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		httpext.JsonError(w, "user_id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Could not upgrade connection")
		return
	}

	timeouts := cs.manager.GetTimeouts()

	cs.manager.AddConnection(conn, userID)
	defer func() {
		cs.manager.RemoveConnection(conn)
		conn.Close()
	}()

	log.Info().Str("user_id", userID).Msg("Chat connection opened")

	conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
	})

	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(timeouts.PingPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(timeouts.WriteWait)
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(timeouts.PongWait))
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("user_id", userID).Msg("Unexpected chat connection closure")
			}
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if err := cs.handleMessage(r.Context(), conn, userID, string(message), timeouts.WriteWait); err != nil {
			log.Debug().Err(err).Str("user_id", userID).Msg("Failed to write chat frame")
			break
		}
	}

	log.Info().Str("user_id", userID).Msg("Chat connection closed")
}

func (cs *ChatSocket) handleMessage(ctx context.Context, conn *websocket.Conn, userID, text string, writeWait time.Duration) error {
	messageID := uuid.New().String()
	send := func(frameType, body string) error {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(Frame{Type: frameType, Text: body, MessageID: messageID})
	}

	command, args := splitCommand(text)

	switch command {
	case "/start":
		return send(FrameAnswer, MsgHelp)

	case "/reset":
		if err := cs.gateway.ResetHistory(ctx, userID); err != nil {
			return cs.sendFailure(send, userID, err)
		}
		return send(FrameAnswer, MsgHistoryReset)

	case "/history":
		summary, err := cs.gateway.HistorySummary(ctx, userID)
		if err != nil {
			return cs.sendFailure(send, userID, err)
		}
		return send(FrameAnswer, historyText(summary))

	case "/rag":
		if args == "" {
			return send(FrameAnswer, MsgEmptyRAGQuestion)
		}
		if !cs.gateway.RAGEnabled() {
			return send(FrameAnswer, MsgRAGDisabled)
		}
		if err := send(FrameTyping, ""); err != nil {
			return err
		}
		answer, err := cs.gateway.RAGAnswer(ctx, args, userID)
		if err != nil {
			return cs.sendFailure(send, userID, err)
		}
		return send(FrameAnswer, answer)
	}

	if command != "" {
		return send(FrameAnswer, MsgHelp)
	}

	question := strings.TrimSpace(text)
	if question == "" {
		return send(FrameAnswer, MsgEmptyQuestion)
	}

	if err := send(FrameTyping, ""); err != nil {
		return err
	}

	answer, err := cs.gateway.Ask(ctx, question, userID)
	if err != nil {
		return cs.sendFailure(send, userID, err)
	}
	return send(FrameAnswer, answer)
}

func (cs *ChatSocket) sendFailure(send func(string, string) error, userID string, err error) error {
	log := logger.For(logger.HANDLER)
	log.Error().
		Err(err).
		Str("user_id", userID).
		Msg("Failed to handle chat message")
	return send(FrameError, httpext.Apology)
}

// splitCommand separates a leading /command from its arguments. Plain text has no command.
func splitCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}

	command, args, _ := strings.Cut(text, " ")
	return command, strings.TrimSpace(args)
}
