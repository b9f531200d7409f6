package session

import "time"

// Role identifies the author of a history turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the bounded conversation history.
type Turn struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Session is the mutable per-sender state. Zero timestamps mean "unset".
type Session struct {
	Sender                 string    `json:"sender"`
	InSupportMode          bool      `json:"in_support_mode"`
	BlockedUntil           time.Time `json:"blocked_until"`
	LastWelcomeAt          time.Time `json:"last_welcome_at"`
	LastOutOfHoursNoticeAt time.Time `json:"last_out_of_hours_notice_at"`
	LastActivityAt         time.Time `json:"last_activity_at"`
	History                []Turn    `json:"history,omitempty"`
}

// Blocked reports whether a temporary block is still in force at now.
func (s Session) Blocked(now time.Time) bool {
	return !s.BlockedUntil.IsZero() && now.Before(s.BlockedUntil)
}

// HasBlock reports whether any block, expired or not, is recorded.
func (s Session) HasBlock() bool {
	return !s.BlockedUntil.IsZero()
}

// AppendTurn adds a turn; once the history grows past max it is cut to the
// most recent keep turns. max <= 0 leaves the history unbounded.
func (s *Session) AppendTurn(role Role, text string, max, keep int) {
	s.History = append(s.History, Turn{Role: role, Text: text})
	if max > 0 && len(s.History) > max {
		if keep <= 0 || keep > max {
			keep = max
		}
		s.History = append([]Turn(nil), s.History[len(s.History)-keep:]...)
	}
}

// Tail returns a copy of the last n turns.
func (s Session) Tail(n int) []Turn {
	if n <= 0 || len(s.History) == 0 {
		return nil
	}
	start := len(s.History) - n
	if start < 0 {
		start = 0
	}
	return append([]Turn(nil), s.History[start:]...)
}

// Clone returns a deep copy so callers never share the history backing array.
func (s Session) Clone() Session {
	if s.History != nil {
		s.History = append([]Turn(nil), s.History...)
	}
	return s
}
