package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leomaro7/kb-chat/internal/model/chat"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrEmptyTurn       = errors.New("exchange turns must not be empty")
)

// Service encapsulates conversation state management.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]chat.Session
	messages map[string][]chat.Message
}

// NewService bootstraps the in-memory chat service. Transcripts live only
// for the duration of a session and are never persisted.
func NewService() *Service {
	return &Service{
		sessions: make(map[string]chat.Session),
		messages: make(map[string][]chat.Message),
	}
}

// CreateSession provisions an anonymous session with an empty transcript.
func (s *Service) CreateSession(_ context.Context) (chat.Session, error) {
	session := chat.Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.messages[session.ID] = make([]chat.Message, 0, 16)
	s.mu.Unlock()

	return session, nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session, nil
}

// Transcript returns a copy of the stored messages for the session.
func (s *Service) Transcript(_ context.Context, sessionID string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}

	copied := make([]chat.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

// AppendExchange commits a completed question/answer pair to the transcript.
// Single turns are never stored on their own, so the transcript always
// alternates user/assistant and a failed generation leaves it untouched.
func (s *Service) AppendExchange(_ context.Context, sessionID, question, answer string) error {
	if question == "" || answer == "" {
		return ErrEmptyTurn
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}

	now := time.Now().UTC()
	s.messages[sessionID] = append(s.messages[sessionID],
		chat.Message{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Role:      chat.RoleUser,
			Content:   question,
			CreatedAt: now,
		},
		chat.Message{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Role:      chat.RoleAssistant,
			Content:   answer,
			CreatedAt: now,
		},
	)
	return nil
}

// Clear empties the transcript while keeping the session alive.
func (s *Service) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}

	s.messages[sessionID] = s.messages[sessionID][:0]
	return nil
}
