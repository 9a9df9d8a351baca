package models

// Role identifies the author of a conversation turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// UserTurn returns a turn authored by the user
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Text: text}
}

// AssistantTurn returns a turn authored by the model
func AssistantTurn(text string) Turn {
	return Turn{Role: RoleAssistant, Text: text}
}

// Verdict is the outcome of screening a question
type Verdict int

const (
	Blocked Verdict = iota
	Allowed
)

func (v Verdict) String() string {
	if v == Allowed {
		return "allowed"
	}
	return "blocked"
}

// RetrievedPassage is a corpus chunk matched to a query
type RetrievedPassage struct {
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
	SourceID string  `json:"source_id"`
}

// HistorySummary counts the turns stored for a user
type HistorySummary struct {
	UserMessages      int `json:"user_messages"`
	AssistantMessages int `json:"assistant_messages"`
	Total             int `json:"total"`
}

// Summarize counts turns by role
func Summarize(turns []Turn) HistorySummary {
	summary := HistorySummary{Total: len(turns)}
	for _, t := range turns {
		switch t.Role {
		case RoleUser:
			summary.UserMessages++
		case RoleAssistant:
			summary.AssistantMessages++
		}
	}
	return summary
}
