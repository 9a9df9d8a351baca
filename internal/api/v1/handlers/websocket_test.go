package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yagpt/gateway/internal/connections"
	"github.com/yagpt/gateway/internal/domain/chat/models"
	"github.com/yagpt/gateway/pkg/httpext"
)

var testTimeouts = connections.TimeoutConfig{
	PongWait:   2 * time.Second,
	PingPeriod: time.Second,
	WriteWait:  time.Second,
}

func dialChat(t *testing.T, gw Gateway, userID string) (*websocket.Conn, *connections.Manager) {
	t.Helper()

	manager := connections.NewManager(testTimeouts)
	server := httptest.NewServer(NewChatSocket(gw, manager))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?user_id=" + userID

	dialer := websocket.Dialer{HandshakeTimeout: time.Second}
	conn, _, err := dialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn, manager
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestChatSocketCommands(t *testing.T) {
	tests := []struct {
		name       string
		message    string
		setupMock  func(*MockGateway)
		wantFrames []Frame
	}{
		{
			name:       "start",
			message:    "/start",
			wantFrames: []Frame{{Type: FrameAnswer, Text: MsgHelp}},
		},
		{
			name:       "unknown command",
			message:    "/help",
			wantFrames: []Frame{{Type: FrameAnswer, Text: MsgHelp}},
		},
		{
			name:    "reset",
			message: "/reset",
			setupMock: func(m *MockGateway) {
				m.On("ResetHistory", "u1").Return(nil)
			},
			wantFrames: []Frame{{Type: FrameAnswer, Text: MsgHistoryReset}},
		},
		{
			name:    "empty history",
			message: "/history",
			setupMock: func(m *MockGateway) {
				m.On("HistorySummary", "u1").Return(models.HistorySummary{}, nil)
			},
			wantFrames: []Frame{{Type: FrameAnswer, Text: MsgHistoryEmpty}},
		},
		{
			name:       "rag without query",
			message:    "/rag   ",
			wantFrames: []Frame{{Type: FrameAnswer, Text: MsgEmptyRAGQuestion}},
		},
		{
			name:    "rag",
			message: "/rag refunds policy",
			setupMock: func(m *MockGateway) {
				m.On("RAGEnabled").Return(true)
				m.On("RAGAnswer", "refunds policy", "u1").Return("five days", nil)
			},
			wantFrames: []Frame{{Type: FrameTyping}, {Type: FrameAnswer, Text: "five days"}},
		},
		{
			name:    "question",
			message: "What is 2+2?",
			setupMock: func(m *MockGateway) {
				m.On("Ask", "What is 2+2?", "u1").Return("4", nil)
			},
			wantFrames: []Frame{{Type: FrameTyping}, {Type: FrameAnswer, Text: "4"}},
		},
		{
			name:       "blank question",
			message:    "   ",
			wantFrames: []Frame{{Type: FrameAnswer, Text: MsgEmptyQuestion}},
		},
		{
			name:    "failure",
			message: "hello",
			setupMock: func(m *MockGateway) {
				m.On("Ask", "hello", "u1").Return("", errors.New("upstream exploded"))
			},
			wantFrames: []Frame{{Type: FrameTyping}, {Type: FrameError, Text: httpext.Apology}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &MockGateway{}
			if tt.setupMock != nil {
				tt.setupMock(gw)
			}

			conn, _ := dialChat(t, gw, "u1")
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.message)))

			var messageID string
			for i, want := range tt.wantFrames {
				got := readFrame(t, conn)
				assert.Equal(t, want.Type, got.Type)
				assert.Equal(t, want.Text, got.Text)
				assert.NotEmpty(t, got.MessageID)
				if i == 0 {
					messageID = got.MessageID
				}
				assert.Equal(t, messageID, got.MessageID)
			}

			gw.AssertExpectations(t)
		})
	}
}

func TestChatSocketHistorySummary(t *testing.T) {
	gw := &MockGateway{}
	gw.On("HistorySummary", "u1").Return(models.HistorySummary{UserMessages: 1, AssistantMessages: 1, Total: 2}, nil)

	conn, _ := dialChat(t, gw, "u1")
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("/history")))

	frame := readFrame(t, conn)
	assert.Contains(t, frame.Text, "Your messages: 1")
	assert.Contains(t, frame.Text, "Total messages: 2")
}

func TestChatSocketTracksConnection(t *testing.T) {
	gw := &MockGateway{}
	conn, manager := dialChat(t, gw, "u1")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("/start")))
	readFrame(t, conn)

	assert.Equal(t, 1, manager.UserConnections("u1"))

	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	conn.Close()

	assert.Eventually(t, func() bool {
		return manager.GetConnectionCount() == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestChatSocketRequiresUser(t *testing.T) {
	server := httptest.NewServer(NewChatSocket(&MockGateway{}, connections.NewManager(testTimeouts)))
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		text        string
		wantCommand string
		wantArgs    string
	}{
		{text: "/rag refunds policy", wantCommand: "/rag", wantArgs: "refunds policy"},
		{text: "/reset", wantCommand: "/reset", wantArgs: ""},
		{text: "  plain question ", wantCommand: "", wantArgs: "plain question"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			command, args := splitCommand(tt.text)
			assert.Equal(t, tt.wantCommand, command)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}
