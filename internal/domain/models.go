package domain

import "time"

// QuestionType enumerates the supported answer formats.
type QuestionType string

const (
	SingleChoice   QuestionType = "single-choice"
	MultipleChoice QuestionType = "multiple-choice"
	OpenEnded      QuestionType = "open-ended"
	Ordering       QuestionType = "ordering"
)

// Difficulty drives both scoring weight and the per-question time budget.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// Weight returns the points a correct answer of this difficulty earns.
func (d Difficulty) Weight() int {
	switch d {
	case Medium:
		return 2
	case Hard:
		return 5
	}
	return 1
}

// TimeBudget returns how much of the session deadline this question buys.
func (d Difficulty) TimeBudget() time.Duration {
	return time.Duration(d.Weight()) * time.Minute
}

// Section identifies the statistics bucket a test counts toward.
type Section string

const (
	Fundamentals Section = "fundamentals"
	Algorithms   Section = "algorithms"
)

// ParseSection canonicalizes a client-provided section. The web client
// historically sends the short codes "FI" and "AS".
func ParseSection(raw string) (Section, error) {
	switch raw {
	case "FI", string(Fundamentals):
		return Fundamentals, nil
	case "AS", string(Algorithms):
		return Algorithms, nil
	}
	return "", ErrInvalidSection
}

// Question is a read-only item from the question bank. CorrectAnswer holds
// exactly one element for single-choice and open-ended questions; for
// multiple-choice and ordering it may hold several, and order matters for
// ordering questions.
type Question struct {
	ID            int64        `json:"id"`
	Title         string       `json:"title"`
	Text          string       `json:"question_text"`
	Type          QuestionType `json:"question_type"`
	Difficulty    Difficulty   `json:"difficulty"`
	Options       []string     `json:"options"`
	CorrectAnswer []string     `json:"-"`
	TopicCode     string       `json:"-"`
}

// SessionState is the explicit lifecycle state of a test session.
type SessionState string

const (
	StateCreated   SessionState = "created"
	StateActive    SessionState = "active"
	StateExpired   SessionState = "expired"
	StateCompleted SessionState = "completed"
)

// Result is the aggregate outcome of one graded session.
type Result struct {
	Passed        int     `json:"passed"`
	Total         int     `json:"total"`
	Accuracy      float64 `json:"average"`
	WeightedScore int     `json:"earned_score"`
}

// Session is a single timed attempt at a set of questions.
//
// QuestionIDs stays empty until the first questions read pins the set, and
// Deadline is set at the same moment. FinishedAt is the terminal marker: a
// session with FinishedAt set carries its recorded Result and is never
// graded again.
type Session struct {
	ID          int64
	UserID      int64
	Section     Section
	TopicIDs    []int64
	QuestionIDs []int64
	CreatedAt   time.Time
	Deadline    *time.Time
	FinishedAt  *time.Time
	State       SessionState
	Result      Result
}

// DeriveState recomputes the state from the nullable fields, which guards
// against a stale stored state column.
func (s *Session) DeriveState(now time.Time) SessionState {
	switch {
	case s.FinishedAt != nil:
		if s.State == StateExpired {
			return StateExpired
		}
		return StateCompleted
	case s.Deadline == nil:
		return StateCreated
	case now.After(*s.Deadline):
		return StateExpired
	}
	return StateActive
}

// SubmittedAnswer is one client answer for one question. ResponseTime is
// recorded as metadata only and never feeds into scoring.
type SubmittedAnswer struct {
	QuestionID   int64    `json:"question_id"`
	Items        []string `json:"answer"`
	ResponseTime float64  `json:"response_time"`
}

// AnswerRecord snapshots the graded outcome for one (session, question)
// pair. It is written once during scoring and never mutated.
type AnswerRecord struct {
	SessionID     int64
	QuestionID    int64
	Type          QuestionType
	Difficulty    Difficulty
	UserAnswer    []string
	CorrectAnswer []string
	Correct       bool
	PointsAwarded int
	ResponseTime  float64
}

// SectionStats are a user's running totals for one section. They only ever
// grow; this engine increments them and never resets them.
type SectionStats struct {
	UserID       int64
	Section      Section
	Score        int64
	TestsPassed  int64
	TotalTests   int64
	LastActivity time.Time
}

// StatsDelta is the increment applied to SectionStats by one scored session.
type StatsDelta struct {
	Score       int
	TestsPassed int
	TotalTests  int
}
