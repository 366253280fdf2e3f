package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizdrill-service/internal/domain"
)

// QuestionLoader reads the immutable question bank through pgx. The engine
// only ever reads questions; writes go through the moderation workflow of
// another service.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

const questionColumns = `id, title, question_text, question_type, difficulty, options, correct_answer, topic_code`

func (l *QuestionLoader) ByTopicLabels(ctx context.Context, labels []string) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM current_questions WHERE topic_code = ANY($1)`, labels)
	if err != nil {
		return nil, fmt.Errorf("query questions by topic: %w", err)
	}
	return scanQuestions(rows)
}

func (l *QuestionLoader) ByIDs(ctx context.Context, ids []int64) ([]domain.Question, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM current_questions WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query questions by id: %w", err)
	}
	return scanQuestions(rows)
}

func (l *QuestionLoader) IDs(ctx context.Context, exclude []int64) ([]int64, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(exclude) == 0 {
		rows, err = l.pool.Query(ctx, `SELECT id FROM current_questions`)
	} else {
		rows, err = l.pool.Query(ctx,
			`SELECT id FROM current_questions WHERE NOT (id = ANY($1))`, exclude)
	}
	if err != nil {
		return nil, fmt.Errorf("query question ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan question id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanQuestions(rows pgx.Rows) ([]domain.Question, error) {
	defer rows.Close()

	var out []domain.Question
	for rows.Next() {
		var (
			q           domain.Question
			rawOptions  []byte
			rawCorrect  []byte
			qtype, diff string
		)
		if err := rows.Scan(&q.ID, &q.Title, &q.Text, &qtype, &diff, &rawOptions, &rawCorrect, &q.TopicCode); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Type = domain.QuestionType(qtype)
		q.Difficulty = domain.Difficulty(diff)
		if len(rawOptions) > 0 {
			if err := json.Unmarshal(rawOptions, &q.Options); err != nil {
				return nil, fmt.Errorf("unmarshal options: %w", err)
			}
		}
		if len(rawCorrect) > 0 {
			if err := json.Unmarshal(rawCorrect, &q.CorrectAnswer); err != nil {
				return nil, fmt.Errorf("unmarshal correct answer: %w", err)
			}
		}
		out = append(out, q)
	}
	return out, rows.Err()
}
