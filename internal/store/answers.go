package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/promnight/prom-match/internal/models"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// queryAnswers returns the answers of the given users keyed by user id.
func queryAnswers(ctx context.Context, q queryer, userIDs []int) (map[int][]models.Answer, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT user_id, question_number, answer
		FROM answers
		WHERE user_id = ANY($1)
		ORDER BY user_id, question_number
	`, pq.Array(userIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byUser := make(map[int][]models.Answer, len(userIDs))
	for rows.Next() {
		var a models.Answer
		if err := rows.Scan(&a.UserID, &a.QuestionNumber, &a.Value); err != nil {
			return nil, err
		}
		byUser[a.UserID] = append(byUser[a.UserID], a)
	}
	return byUser, rows.Err()
}

const upsertAnswer = `
	INSERT INTO answers (user_id, question_number, answer)
	VALUES ($1, $2, $3)
	ON CONFLICT (user_id, question_number) DO UPDATE SET answer = EXCLUDED.answer
`

// SaveAnswer stores one answer. A second answer to the same question replaces the first.
func (s *Postgres) SaveAnswer(ctx context.Context, a models.Answer) error {
	_, err := s.db.ExecContext(ctx, upsertAnswer, a.UserID, a.QuestionNumber, a.Value)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("saving answer %d of user %d: %w", a.QuestionNumber, a.UserID, err)
	}
	return nil
}

// MarkQuestionsAnswered flips questions_answered for the user.
func (s *Postgres) MarkQuestionsAnswered(ctx context.Context, userID int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET questions_answered = TRUE WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("marking questions answered: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SubmitAnswers saves a full answer set and marks the questionnaire answered in one
// transaction. It fails with ErrAlreadyAnswered once the flag is set.
func (s *Postgres) SubmitAnswers(ctx context.Context, userID int, answers []models.Answer) error {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var answered bool
		err := tx.QueryRowContext(ctx,
			`SELECT questions_answered FROM profiles WHERE user_id = $1 FOR UPDATE`, userID,
		).Scan(&answered)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("locking profile: %w", err)
		}
		if answered {
			return ErrAlreadyAnswered
		}

		for _, a := range answers {
			if _, err := tx.ExecContext(ctx, upsertAnswer, userID, a.QuestionNumber, a.Value); err != nil {
				return fmt.Errorf("saving answer %d: %w", a.QuestionNumber, err)
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE profiles SET questions_answered = TRUE WHERE user_id = $1`, userID)
		return err
	})
	if err != nil {
		return err
	}
	s.logger.Debug("answers submitted", zap.Int("user_id", userID), zap.Int("count", len(answers)))
	return nil
}
