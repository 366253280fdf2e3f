package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"quizdrill-service/internal/domain"
)

// deadlineZone is the fixed reference zone deadlines are computed in.
var deadlineZone = time.FixedZone("MSK", 3*60*60)

// Finalization carries everything the store must persist atomically when a
// session reaches a terminal state: the conditional result write, the
// answer records, and the additive statistics increment.
type Finalization struct {
	SessionID  int64
	UserID     int64
	Section    domain.Section
	State      domain.SessionState
	Result     domain.Result
	FinishedAt time.Time
	Answers    []domain.AnswerRecord
	Delta      domain.StatsDelta
}

// SessionStore persists sessions, answer records, and section statistics.
type SessionStore interface {
	Create(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, id int64) (domain.Session, error)
	// Pin records the question set and deadline if the session has none yet.
	// It reports false when another request pinned first.
	Pin(ctx context.Context, id int64, questionIDs []int64, deadline time.Time) (bool, error)
	// Finalize applies fin in one transaction, guarded by the session not
	// having a result yet. It reports false when a result already exists,
	// in which case nothing is written.
	Finalize(ctx context.Context, fin Finalization) (bool, error)
	Answers(ctx context.Context, sessionID int64) ([]domain.AnswerRecord, error)
	Stats(ctx context.Context, userID int64, section domain.Section) (domain.SectionStats, error)
}

// Notifier receives the user's updated cumulative section score after a
// session is scored. Best-effort: errors are logged and swallowed.
type Notifier interface {
	Notify(ctx context.Context, userID int64, section domain.Section, cumulativeScore int64) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, userID int64, section domain.Section, cumulativeScore int64) error

func (f NotifierFunc) Notify(ctx context.Context, userID int64, section domain.Section, cumulativeScore int64) error {
	return f(ctx, userID, section, cumulativeScore)
}

// SessionView is the payload of the questions read.
type SessionView struct {
	ID        int64
	Questions []domain.Question
	StartTime time.Time
	EndTime   time.Time
	Section   domain.Section
	Topics    []string
	CreatedAt time.Time
	Result    domain.Result
	State     domain.SessionState
}

// SessionService owns the test session lifecycle: creation, idempotent
// question pinning, expiry, grading, scoring, and the fire-and-forget
// achievement notification.
type SessionService struct {
	sessions SessionStore
	bank     QuestionBank
	topics   TopicResolver
	sampler  *Sampler
	notifier Notifier
	hub      *EventHub
	clock    func() time.Time
}

func NewSessionService(sessions SessionStore, bank QuestionBank, topics TopicResolver, sampler *Sampler, notifier Notifier, hub *EventHub) *SessionService {
	return NewSessionServiceWithClock(sessions, bank, topics, sampler, notifier, hub, time.Now)
}

// NewSessionServiceWithClock is for tests that need deterministic time.
func NewSessionServiceWithClock(sessions SessionStore, bank QuestionBank, topics TopicResolver, sampler *Sampler, notifier Notifier, hub *EventHub, clock func() time.Time) *SessionService {
	return &SessionService{
		sessions: sessions,
		bank:     bank,
		topics:   topics,
		sampler:  sampler,
		notifier: notifier,
		hub:      hub,
		clock:    clock,
	}
}

// Start creates a session for the user. Questions are not selected yet;
// the first questions read pins them.
func (s *SessionService) Start(ctx context.Context, userID int64, section string, topicLabels []string) (int64, error) {
	sec, err := domain.ParseSection(section)
	if err != nil {
		return 0, err
	}

	var topicIDs []int64
	if len(topicLabels) > 0 {
		topicIDs, err = s.topics.LabelsToIDs(ctx, topicLabels)
		if err != nil {
			return 0, fmt.Errorf("resolve topic labels: %w", err)
		}
		if len(topicIDs) == 0 {
			return 0, domain.ErrNoTopicsFound
		}
	}

	session := domain.Session{
		UserID:    userID,
		Section:   sec,
		TopicIDs:  topicIDs,
		CreatedAt: s.clock(),
		State:     domain.StateCreated,
	}
	if err := s.sessions.Create(ctx, &session); err != nil {
		return 0, fmt.Errorf("create session: %w", err)
	}
	return session.ID, nil
}

// Questions returns the session's question set, pinning it on first read.
//
// The pinned set and the deadline are immutable afterwards, so clients
// re-fetching the session (page reloads, retries) always see the same
// questions and the same end time.
func (s *SessionService) Questions(ctx context.Context, userID, sessionID int64) (SessionView, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	if session.UserID != userID {
		return SessionView{}, domain.ErrSessionNotFound
	}

	if len(session.QuestionIDs) > 0 {
		return s.buildView(ctx, session)
	}

	ids, err := s.sampler.Select(ctx, session.TopicIDs, DefaultQuestionCount)
	if err != nil {
		return SessionView{}, err
	}

	questions, err := s.bank.ByIDs(ctx, ids)
	if err != nil {
		return SessionView{}, fmt.Errorf("load questions: %w", err)
	}
	var budget time.Duration
	for _, q := range questions {
		budget += q.Difficulty.TimeBudget()
	}
	deadline := s.clock().In(deadlineZone).Add(budget)

	applied, err := s.sessions.Pin(ctx, session.ID, ids, deadline)
	if err != nil {
		return SessionView{}, fmt.Errorf("pin questions: %w", err)
	}
	if !applied {
		// Lost the race against a concurrent first read; serve the set that
		// actually got pinned.
		session, err = s.sessions.Get(ctx, sessionID)
		if err != nil {
			return SessionView{}, err
		}
		return s.buildView(ctx, session)
	}

	session.QuestionIDs = ids
	session.Deadline = &deadline
	session.State = domain.StateActive
	return s.buildView(ctx, session)
}

// Submit grades the answers and records the result exactly once.
//
// A session that already carries a result returns it unchanged: duplicate
// client retries must never re-grade or double-count statistics. A submit
// past the deadline freezes the session with a zero result instead of
// grading the late answers.
func (s *SessionService) Submit(ctx context.Context, userID, sessionID int64, answers []domain.SubmittedAnswer) (domain.Result, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return domain.Result{}, err
	}
	if session.UserID != userID {
		return domain.Result{}, domain.ErrForbidden
	}
	if session.FinishedAt != nil {
		return session.Result, nil
	}

	now := s.clock()
	if session.Deadline != nil && now.After(*session.Deadline) {
		return s.freezeExpired(ctx, session, now)
	}

	if len(answers) == 0 {
		return domain.Result{}, domain.ErrNoAnswers
	}
	answers = collapseByQuestion(answers)

	ids := make([]int64, 0, len(answers))
	for _, a := range answers {
		ids = append(ids, a.QuestionID)
	}
	questions, err := s.bank.ByIDs(ctx, ids)
	if err != nil {
		return domain.Result{}, fmt.Errorf("load questions: %w", err)
	}
	byID := make(map[int64]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	for _, a := range answers {
		qtype := domain.SingleChoice
		if q, ok := byID[a.QuestionID]; ok {
			qtype = q.Type
		}
		if err := ValidateAnswer(qtype, a.Items); err != nil {
			return domain.Result{}, err
		}
	}

	graded := make([]GradedAnswer, 0, len(answers))
	records := make([]domain.AnswerRecord, 0, len(answers))
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			// Unknown ids still count toward the total, as incorrect.
			graded = append(graded, GradedAnswer{QuestionID: a.QuestionID})
			continue
		}
		correct := Grade(q, a.Items)
		graded = append(graded, GradedAnswer{QuestionID: q.ID, Difficulty: q.Difficulty, Correct: correct})
		points := 0
		if correct {
			points = q.Difficulty.Weight()
		}
		records = append(records, domain.AnswerRecord{
			SessionID:     session.ID,
			QuestionID:    q.ID,
			Type:          q.Type,
			Difficulty:    q.Difficulty,
			UserAnswer:    a.Items,
			CorrectAnswer: q.CorrectAnswer,
			Correct:       correct,
			PointsAwarded: points,
			ResponseTime:  a.ResponseTime,
		})
	}

	result := Score(graded)
	applied, err := s.sessions.Finalize(ctx, Finalization{
		SessionID:  session.ID,
		UserID:     session.UserID,
		Section:    session.Section,
		State:      domain.StateCompleted,
		Result:     result,
		FinishedAt: now,
		Answers:    records,
		Delta: domain.StatsDelta{
			Score:       result.WeightedScore,
			TestsPassed: result.Passed,
			TotalTests:  result.Total,
		},
	})
	if err != nil {
		return domain.Result{}, fmt.Errorf("finalize session: %w", err)
	}
	if !applied {
		// A concurrent duplicate submit won the conditional update.
		stored, err := s.sessions.Get(ctx, sessionID)
		if err != nil {
			return domain.Result{}, err
		}
		return stored.Result, nil
	}

	go s.notifyScore(session.UserID, session.Section)
	if s.hub != nil {
		s.hub.Publish(SessionEvent{SessionID: session.ID, State: domain.StateCompleted, Result: result})
	}
	return result, nil
}

// Answers returns the graded per-question detail of a finalized session.
func (s *SessionService) Answers(ctx context.Context, userID, sessionID int64) ([]domain.AnswerRecord, error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, domain.ErrForbidden
	}
	return s.sessions.Answers(ctx, sessionID)
}

// Watch subscribes to terminal-state events for a session.
func (s *SessionService) Watch(ctx context.Context, userID, sessionID int64) (<-chan SessionEvent, func(), error) {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session.UserID != userID {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := s.hub.Subscribe(sessionID)
	return ch, cancel, nil
}

// collapseByQuestion keeps one answer per question id, the last occurrence
// winning. A question is graded and counted at most once no matter how many
// times a request repeats it.
func collapseByQuestion(answers []domain.SubmittedAnswer) []domain.SubmittedAnswer {
	out := make([]domain.SubmittedAnswer, 0, len(answers))
	index := make(map[int64]int, len(answers))
	for _, a := range answers {
		if i, ok := index[a.QuestionID]; ok {
			out[i] = a
			continue
		}
		index[a.QuestionID] = len(out)
		out = append(out, a)
	}
	return out
}

func (s *SessionService) freezeExpired(ctx context.Context, session domain.Session, now time.Time) (domain.Result, error) {
	applied, err := s.sessions.Finalize(ctx, Finalization{
		SessionID:  session.ID,
		UserID:     session.UserID,
		Section:    session.Section,
		State:      domain.StateExpired,
		FinishedAt: now,
	})
	if err != nil {
		return domain.Result{}, fmt.Errorf("freeze expired session: %w", err)
	}
	if !applied {
		stored, err := s.sessions.Get(ctx, session.ID)
		if err != nil {
			return domain.Result{}, err
		}
		return stored.Result, nil
	}
	if s.hub != nil {
		s.hub.Publish(SessionEvent{SessionID: session.ID, State: domain.StateExpired})
	}
	return domain.Result{}, nil
}

// notifyScore runs detached from the request: it must never block or fail
// the scoring response.
func (s *SessionService) notifyScore(userID int64, section domain.Section) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stats, err := s.sessions.Stats(ctx, userID, section)
	if err != nil {
		log.Printf("achievement notify: load stats for user %d: %v", userID, err)
		return
	}
	if err := s.notifier.Notify(ctx, userID, section, stats.Score); err != nil {
		log.Printf("achievement notify: user %d: %v", userID, err)
	}
}

func (s *SessionService) buildView(ctx context.Context, session domain.Session) (SessionView, error) {
	questions, err := s.bank.ByIDs(ctx, session.QuestionIDs)
	if err != nil {
		return SessionView{}, fmt.Errorf("load questions: %w", err)
	}
	// ByIDs does not promise order; restore the pinned one.
	byID := make(map[int64]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	ordered := make([]domain.Question, 0, len(session.QuestionIDs))
	for _, id := range session.QuestionIDs {
		if q, ok := byID[id]; ok {
			ordered = append(ordered, q)
		}
	}

	var topics []string
	if len(session.TopicIDs) > 0 {
		topics, err = s.topics.IDsToLabels(ctx, session.TopicIDs)
		if err != nil {
			return SessionView{}, fmt.Errorf("resolve topic labels: %w", err)
		}
	}

	endTime := session.CreatedAt
	if session.Deadline != nil {
		endTime = *session.Deadline
	}
	return SessionView{
		ID:        session.ID,
		Questions: ordered,
		StartTime: session.CreatedAt,
		EndTime:   endTime,
		Section:   session.Section,
		Topics:    topics,
		CreatedAt: session.CreatedAt,
		Result:    session.Result,
		State:     session.DeriveState(s.clock()),
	}, nil
}
