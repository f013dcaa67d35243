// Package session tracks per-conversation state for the chat bot: message
// count, last activity and the most recent question/answer turns. Sessions
// are created on first contact and evicted after an idle timeout.
package session

import (
	"context"
	"time"
)

// Turn is one question and the answer given to it.
type Turn struct {
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Confidence float64   `json:"confidence"`
	At         time.Time `json:"at"`
}

type Session struct {
	ChatID       int64     `json:"chat_id"`
	Messages     int       `json:"messages"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Turns        []Turn    `json:"turns,omitempty"`
}

// Store persists sessions. Touch creates the session if needed, counts one
// message and refreshes its idle deadline.
type Store interface {
	Touch(ctx context.Context, chatID int64) (Session, error)
	AddTurn(ctx context.Context, chatID int64, turn Turn) error
	Get(ctx context.Context, chatID int64) (Session, bool, error)
	Delete(ctx context.Context, chatID int64) error
}

func (s *Session) touch(now time.Time) {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.Messages++
	s.LastActivity = now
}

func (s *Session) addTurn(t Turn, maxTurns int) {
	s.Turns = append(s.Turns, t)
	if maxTurns > 0 && len(s.Turns) > maxTurns {
		s.Turns = s.Turns[len(s.Turns)-maxTurns:]
	}
}
