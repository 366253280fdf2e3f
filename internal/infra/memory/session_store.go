package memory

import (
	"context"
	"sync"
	"time"

	"quizdrill-service/internal/app"
	"quizdrill-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore. It keeps
// the same conditional-update semantics as the Postgres store so the engine
// behaves identically in tests and in the no-database demo mode.
type SessionStore struct {
	mu       sync.Mutex
	nextID   int64
	sessions map[int64]domain.Session
	answers  map[int64][]domain.AnswerRecord
	stats    map[statsKey]domain.SectionStats
}

type statsKey struct {
	userID  int64
	section domain.Section
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[int64]domain.Session),
		answers:  make(map[int64][]domain.AnswerRecord),
		stats:    make(map[statsKey]domain.SectionStats),
	}
}

func (s *SessionStore) Create(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	session.ID = s.nextID
	s.sessions[session.ID] = *session
	return nil
}

func (s *SessionStore) Get(_ context.Context, id int64) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) Pin(_ context.Context, id int64, questionIDs []int64, deadline time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if len(session.QuestionIDs) > 0 {
		return false, nil
	}
	session.QuestionIDs = append([]int64(nil), questionIDs...)
	session.Deadline = &deadline
	session.State = domain.StateActive
	s.sessions[id] = session
	return true, nil
}

func (s *SessionStore) Finalize(_ context.Context, fin app.Finalization) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[fin.SessionID]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if session.FinishedAt != nil {
		return false, nil
	}

	finishedAt := fin.FinishedAt
	session.FinishedAt = &finishedAt
	session.State = fin.State
	session.Result = fin.Result
	s.sessions[fin.SessionID] = session

	s.answers[fin.SessionID] = append([]domain.AnswerRecord(nil), fin.Answers...)

	key := statsKey{userID: fin.UserID, section: fin.Section}
	st := s.stats[key]
	st.UserID = fin.UserID
	st.Section = fin.Section
	st.Score += int64(fin.Delta.Score)
	st.TestsPassed += int64(fin.Delta.TestsPassed)
	st.TotalTests += int64(fin.Delta.TotalTests)
	st.LastActivity = finishedAt
	s.stats[key] = st
	return true, nil
}

func (s *SessionStore) Answers(_ context.Context, sessionID int64) ([]domain.AnswerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AnswerRecord(nil), s.answers[sessionID]...), nil
}

func (s *SessionStore) Stats(_ context.Context, userID int64, section domain.Section) (domain.SectionStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats[statsKey{userID: userID, section: section}], nil
}
