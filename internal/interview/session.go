// Package interview keeps per-session interview state and drives the
// question-and-answer loop grounded on the extracted profile.
package interview

import (
	"errors"
	"time"

	"github.com/spigell/cv-intake/internal/llm"
	"github.com/spigell/cv-intake/internal/profile"
)

var (
	// ErrNoProfile is returned when an interview is requested before any
	// profile was extracted for the session.
	ErrNoProfile = errors.New("no candidate profile has been extracted yet")
	// ErrSessionNotFound is returned by stores for unknown or expired sessions.
	ErrSessionNotFound = errors.New("session not found")
	// ErrProfileChanged is returned when a result belongs to a profile that
	// was replaced in the meantime.
	ErrProfileChanged = errors.New("session profile changed")
)

// DefaultSessionID is used by callers that do not identify a session.
const DefaultSessionID = "default"

// State of an interview.
type State int

const (
	StateEmpty State = iota
	StateInProgress
)

func (s State) String() string {
	if s == StateInProgress {
		return "in_progress"
	}
	return "empty"
}

// Turn is one message of the transcript.
type Turn struct {
	Role    llm.Role `json:"role"`
	Content string   `json:"content"`
}

// Session is everything kept for one caller.
type Session struct {
	ID         string                    `json:"id"`
	ProfileID  string                    `json:"profile_id,omitempty"`
	Profile    *profile.CandidateProfile `json:"profile,omitempty"`
	Transcript []Turn                    `json:"transcript,omitempty"`
	Suggested  []string                  `json:"suggested,omitempty"`
	UpdatedAt  time.Time                 `json:"updated_at"`
}

// State is derived from the transcript.
func (s *Session) State() State {
	if len(s.Transcript) == 0 {
		return StateEmpty
	}
	return StateInProgress
}

func toMessages(turns []Turn) []llm.Message {
	messages := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}
	return messages
}
