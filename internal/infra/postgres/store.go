package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quizdrill-service/internal/app"
	"quizdrill-service/internal/domain"
)

type sessionRow struct {
	bun.BaseModel `bun:"table:tests,alias:t"`

	ID          int64      `bun:"id,pk,autoincrement"`
	UserID      int64      `bun:"user_id,notnull"`
	Section     string     `bun:"section,notnull"`
	TopicIDs    []byte     `bun:"topics,type:jsonb"`
	QuestionIDs []byte     `bun:"questions,type:jsonb"`
	CreatedAt   time.Time  `bun:"created_at,notnull"`
	Deadline    *time.Time `bun:"deadline"`
	FinishedAt  *time.Time `bun:"finished_at"`
	State       string     `bun:"state,notnull"`
	Passed      int        `bun:"passed,notnull"`
	Total       int        `bun:"total,notnull"`
	Average     float64    `bun:"average,notnull"`
	EarnedScore int        `bun:"earned_score,notnull"`
}

type answerRow struct {
	bun.BaseModel `bun:"table:test_answers,alias:a"`

	ID            int64   `bun:"id,pk,autoincrement"`
	SessionID     int64   `bun:"test_id,notnull"`
	QuestionID    int64   `bun:"question_id,notnull"`
	QuestionType  string  `bun:"question_type,notnull"`
	Difficulty    string  `bun:"difficulty,notnull"`
	UserAnswer    []byte  `bun:"user_answer,type:jsonb"`
	CorrectAnswer []byte  `bun:"correct_answer,type:jsonb"`
	Correct       bool    `bun:"is_correct,notnull"`
	PointsAwarded int     `bun:"points_awarded,notnull"`
	ResponseTime  float64 `bun:"response_time,notnull"`
}

type statsRow struct {
	bun.BaseModel `bun:"table:section_stats,alias:s"`

	UserID       int64     `bun:"user_id,pk"`
	Section      string    `bun:"section,pk"`
	Score        int64     `bun:"score,notnull"`
	TestsPassed  int64     `bun:"tests_passed,notnull"`
	TotalTests   int64     `bun:"total_tests,notnull"`
	LastActivity time.Time `bun:"last_activity,notnull"`
}

// SessionStore is the bun-backed database of record for sessions, answer
// records, and section statistics.
type SessionStore struct {
	db *bun.DB
}

func NewSessionStore(db *bun.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	topics, err := json.Marshal(session.TopicIDs)
	if err != nil {
		return fmt.Errorf("marshal topics: %w", err)
	}
	row := sessionRow{
		UserID:    session.UserID,
		Section:   string(session.Section),
		TopicIDs:  topics,
		CreatedAt: session.CreatedAt,
		State:     string(domain.StateCreated),
	}
	if _, err := s.db.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	session.ID = row.ID
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id int64) (domain.Session, error) {
	row := sessionRow{}
	err := s.db.NewSelect().Model(&row).Where("t.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("select session: %w", err)
	}
	return rowToSession(row)
}

// Pin records the question set and deadline once. The IS NULL guard makes
// a duplicate first read lose cleanly instead of re-sampling.
func (s *SessionStore) Pin(ctx context.Context, id int64, questionIDs []int64, deadline time.Time) (bool, error) {
	questions, err := json.Marshal(questionIDs)
	if err != nil {
		return false, fmt.Errorf("marshal questions: %w", err)
	}
	res, err := s.db.NewUpdate().Model((*sessionRow)(nil)).
		Set("questions = ?", questions).
		Set("deadline = ?", deadline).
		Set("state = ?", string(domain.StateActive)).
		Where("t.id = ?", id).
		Where("t.questions IS NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("pin questions: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// Finalize applies the result, answer records, and additive statistics
// increment in one transaction. The finished_at IS NULL guard is the
// idempotence boundary: a session is scored at most once, and a losing
// duplicate submit writes nothing.
func (s *SessionStore) Finalize(ctx context.Context, fin app.Finalization) (bool, error) {
	applied := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*sessionRow)(nil)).
			Set("state = ?", string(fin.State)).
			Set("passed = ?", fin.Result.Passed).
			Set("total = ?", fin.Result.Total).
			Set("average = ?", fin.Result.Accuracy).
			Set("earned_score = ?", fin.Result.WeightedScore).
			Set("finished_at = ?", fin.FinishedAt).
			Where("t.id = ?", fin.SessionID).
			Where("t.finished_at IS NULL").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("finalize session: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return nil
		}
		applied = true

		if len(fin.Answers) > 0 {
			answerRows := make([]answerRow, 0, len(fin.Answers))
			for _, a := range fin.Answers {
				userAnswer, err := json.Marshal(a.UserAnswer)
				if err != nil {
					return fmt.Errorf("marshal user answer: %w", err)
				}
				correctAnswer, err := json.Marshal(a.CorrectAnswer)
				if err != nil {
					return fmt.Errorf("marshal correct answer: %w", err)
				}
				answerRows = append(answerRows, answerRow{
					SessionID:     a.SessionID,
					QuestionID:    a.QuestionID,
					QuestionType:  string(a.Type),
					Difficulty:    string(a.Difficulty),
					UserAnswer:    userAnswer,
					CorrectAnswer: correctAnswer,
					Correct:       a.Correct,
					PointsAwarded: a.PointsAwarded,
					ResponseTime:  a.ResponseTime,
				})
			}
			if _, err := tx.NewInsert().Model(&answerRows).Exec(ctx); err != nil {
				return fmt.Errorf("insert answers: %w", err)
			}
		}

		// Additive upsert: concurrent sessions for the same user must never
		// lose an increment to a last-write-wins overwrite.
		stats := statsRow{
			UserID:       fin.UserID,
			Section:      string(fin.Section),
			Score:        int64(fin.Delta.Score),
			TestsPassed:  int64(fin.Delta.TestsPassed),
			TotalTests:   int64(fin.Delta.TotalTests),
			LastActivity: fin.FinishedAt,
		}
		_, err = tx.NewInsert().Model(&stats).
			On("CONFLICT (user_id, section) DO UPDATE").
			Set("score = s.score + EXCLUDED.score").
			Set("tests_passed = s.tests_passed + EXCLUDED.tests_passed").
			Set("total_tests = s.total_tests + EXCLUDED.total_tests").
			Set("last_activity = EXCLUDED.last_activity").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("increment stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *SessionStore) Answers(ctx context.Context, sessionID int64) ([]domain.AnswerRecord, error) {
	var rows []answerRow
	err := s.db.NewSelect().Model(&rows).
		Where("a.test_id = ?", sessionID).
		Order("a.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select answers: %w", err)
	}

	out := make([]domain.AnswerRecord, 0, len(rows))
	for _, r := range rows {
		var userAnswer, correctAnswer []string
		if len(r.UserAnswer) > 0 {
			if err := json.Unmarshal(r.UserAnswer, &userAnswer); err != nil {
				return nil, fmt.Errorf("unmarshal user answer: %w", err)
			}
		}
		if len(r.CorrectAnswer) > 0 {
			if err := json.Unmarshal(r.CorrectAnswer, &correctAnswer); err != nil {
				return nil, fmt.Errorf("unmarshal correct answer: %w", err)
			}
		}
		out = append(out, domain.AnswerRecord{
			SessionID:     r.SessionID,
			QuestionID:    r.QuestionID,
			Type:          domain.QuestionType(r.QuestionType),
			Difficulty:    domain.Difficulty(r.Difficulty),
			UserAnswer:    userAnswer,
			CorrectAnswer: correctAnswer,
			Correct:       r.Correct,
			PointsAwarded: r.PointsAwarded,
			ResponseTime:  r.ResponseTime,
		})
	}
	return out, nil
}

func (s *SessionStore) Stats(ctx context.Context, userID int64, section domain.Section) (domain.SectionStats, error) {
	row := statsRow{}
	err := s.db.NewSelect().Model(&row).
		Where("s.user_id = ?", userID).
		Where("s.section = ?", string(section)).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SectionStats{UserID: userID, Section: section}, nil
	}
	if err != nil {
		return domain.SectionStats{}, fmt.Errorf("select stats: %w", err)
	}
	return domain.SectionStats{
		UserID:       row.UserID,
		Section:      domain.Section(row.Section),
		Score:        row.Score,
		TestsPassed:  row.TestsPassed,
		TotalTests:   row.TotalTests,
		LastActivity: row.LastActivity,
	}, nil
}

func rowToSession(row sessionRow) (domain.Session, error) {
	var topicIDs, questionIDs []int64
	if len(row.TopicIDs) > 0 {
		if err := json.Unmarshal(row.TopicIDs, &topicIDs); err != nil {
			return domain.Session{}, fmt.Errorf("unmarshal topics: %w", err)
		}
	}
	if len(row.QuestionIDs) > 0 {
		if err := json.Unmarshal(row.QuestionIDs, &questionIDs); err != nil {
			return domain.Session{}, fmt.Errorf("unmarshal questions: %w", err)
		}
	}
	return domain.Session{
		ID:          row.ID,
		UserID:      row.UserID,
		Section:     domain.Section(row.Section),
		TopicIDs:    topicIDs,
		QuestionIDs: questionIDs,
		CreatedAt:   row.CreatedAt,
		Deadline:    row.Deadline,
		FinishedAt:  row.FinishedAt,
		State:       domain.SessionState(row.State),
		Result: domain.Result{
			Passed:        row.Passed,
			Total:         row.Total,
			Accuracy:      row.Average,
			WeightedScore: row.EarnedScore,
		},
	}, nil
}
