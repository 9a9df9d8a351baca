package handlers

import (
	"fmt"

	"github.com/yagpt/gateway/internal/domain/chat/models"
)

const (
	MsgEmptyQuestion    = "Please enter a question"
	MsgEmptyRAGQuestion = "Please enter a question after the /rag command"
	MsgHistoryReset     = "✅ Conversation history cleared. Starting a new conversation!"
	MsgHistoryEmpty     = "📭 Conversation history is empty"
	MsgRAGDisabled      = "Documentation search is not enabled"
	MsgInvalidUser      = "user_id is required and must be at most 256 characters"

	MsgHelp = "Hi! I'm a Yandex GPT bot.\n" +
		"Just send me your question.\n\n" +
		"Available commands:\n" +
		"/start - show this message\n" +
		"/reset - clear the conversation history\n" +
		"/history - show how many messages are in the history\n" +
		"/rag XXX - search the documentation for XXX and answer from it"
)

func historyText(summary models.HistorySummary) string {
	if summary.Total == 0 {
		return MsgHistoryEmpty
	}
	return fmt.Sprintf("📚 Conversation history:\n"+
		"Your messages: %d\n"+
		"Bot replies: %d\n"+
		"Total messages: %d\n\n"+
		"Use /reset to clear the history",
		summary.UserMessages, summary.AssistantMessages, summary.Total)
}
