package chat

import (
	"strings"
	"time"
)

// Role tags the speaker of a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of the conversation. Turns are never mutated once appended.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// RoleLabel returns the capitalised speaker name used in prompts and views.
func RoleLabel(role Role) string {
	s := string(role)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
