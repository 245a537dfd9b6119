package prompt

import (
	"fmt"
	"strings"
)

// Role identifies who wrote a ChatTurn.
type Role int

const (
	Student Role = iota
	Assistant
)

func (r Role) String() string {
	if r == Student {
		return "Student"
	}
	return "Assistant"
}

// ChatTurn is one immutable entry of the conversation the client resends on
// every request.
type ChatTurn struct {
	Role    Role
	Content string
}

// HistoryRecord is the wire shape of a history entry: {"role", "content"}.
type HistoryRecord struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryWindow is how many trailing turns (three exchanges) make it into
// a prompt.
const HistoryWindow = 6

// ConvertHistory is the single conversion from wire records to ChatTurns.
// "user" and "student" map to Student; any other role is the tutor.
func ConvertHistory(records []HistoryRecord) []ChatTurn {
	turns := make([]ChatTurn, 0, len(records))
	for _, rec := range records {
		role := Assistant
		switch strings.ToLower(strings.TrimSpace(rec.Role)) {
		case "user", "student":
			role = Student
		}
		turns = append(turns, ChatTurn{Role: role, Content: rec.Content})
	}
	return turns
}

// Recent returns the last HistoryWindow turns.
func Recent(turns []ChatTurn) []ChatTurn {
	if len(turns) <= HistoryWindow {
		return turns
	}
	return turns[len(turns)-HistoryWindow:]
}

// RenderHistory formats the recent window as alternating "Student:" and
// "Assistant:" lines. An empty history renders as "".
func RenderHistory(turns []ChatTurn) string {
	recent := Recent(turns)
	if len(recent) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Previous conversation:\n")
	for _, turn := range recent {
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
	}
	return b.String()
}
