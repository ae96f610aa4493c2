package relay

import (
	"time"

	"github.com/zhouzirui/mbti-relay/backend/internal/model/chat"
)

// View is the rendered state of one session.
type View struct {
	SessionID string        `json:"sessionId"`
	Turns     []DisplayTurn `json:"turns"`
	UserTurns int           `json:"userTurns"`
	// VerdictThreshold is zero when classification is disabled.
	VerdictThreshold int          `json:"verdictThreshold,omitempty"`
	Verdict          *VerdictView `json:"verdict,omitempty"`
}

// DisplayTurn is one rendered turn; Content is verbatim.
type DisplayTurn struct {
	Role      chat.Role `json:"role"`
	Label     string    `json:"label"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// VerdictView carries the raw verdict plus whatever type could be recognised in it.
type VerdictView struct {
	Raw         string `json:"raw"`
	Code        string `json:"code,omitempty"`
	Nickname    string `json:"nickname,omitempty"`
	Description string `json:"description,omitempty"`
}

// TurnsUntilVerdict reports how many more user turns are needed before a
// verdict is requested, or zero when none are needed.
func (v View) TurnsUntilVerdict() int {
	if v.Verdict != nil || v.VerdictThreshold == 0 {
		return 0
	}
	if remaining := v.VerdictThreshold - v.UserTurns; remaining > 0 {
		return remaining
	}
	return 0
}
