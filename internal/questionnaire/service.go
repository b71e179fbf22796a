package questionnaire

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/promnight/prom-match/internal/models"
	"github.com/promnight/prom-match/internal/store"
)

var (
	ErrInvalidQuestion = errors.New("unknown question number")
	ErrInvalidOption   = errors.New("answer is not one of the question's options")
	ErrDuplicateAnswer = errors.New("question answered more than once")
	ErrIncomplete      = errors.New("not every question was answered")
	ErrAlreadyAnswered = store.ErrAlreadyAnswered
)

// Store is the persistence the questionnaire flow needs.
type Store interface {
	GetUser(ctx context.Context, id int) (*models.User, error)
	SaveAnswer(ctx context.Context, a models.Answer) error
	MarkQuestionsAnswered(ctx context.Context, userID int) error
	SubmitAnswers(ctx context.Context, userID int, answers []models.Answer) error
}

type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService wraps a Store with catalog validation.
func NewService(s Store, logger *zap.Logger) *Service {
	return &Service{store: s, logger: logger.Named("questionnaire")}
}

// Validate checks one answer against the catalog.
func Validate(questionNumber int, value string) error {
	q, ok := Lookup(questionNumber)
	if !ok {
		return fmt.Errorf("%w: %d", ErrInvalidQuestion, questionNumber)
	}
	if !q.HasOption(value) {
		return fmt.Errorf("%w: question %d, answer %q", ErrInvalidOption, questionNumber, value)
	}
	return nil
}

// SaveAnswer stores a single answer. Re-answering a question replaces the stored value.
func (s *Service) SaveAnswer(ctx context.Context, userID, questionNumber int, value string) error {
	if err := Validate(questionNumber, value); err != nil {
		return err
	}
	return s.store.SaveAnswer(ctx, models.Answer{UserID: userID, QuestionNumber: questionNumber, Value: value})
}

// MarkQuestionsAnswered flips the user's questionsAnswered flag.
func (s *Service) MarkQuestionsAnswered(ctx context.Context, userID int) error {
	return s.store.MarkQuestionsAnswered(ctx, userID)
}

// Submit saves a complete answer set and marks the questionnaire answered atomically.
func (s *Service) Submit(ctx context.Context, userID int, answers []models.Answer) error {
	for _, a := range answers {
		if err := Validate(a.QuestionNumber, a.Value); err != nil {
			return err
		}
	}

	dups := lo.FindDuplicatesBy(answers, func(a models.Answer) int { return a.QuestionNumber })
	if len(dups) > 0 {
		return fmt.Errorf("%w: question %d", ErrDuplicateAnswer, dups[0].QuestionNumber)
	}
	if len(answers) != len(Catalog) {
		return fmt.Errorf("%w: got %d of %d", ErrIncomplete, len(answers), len(Catalog))
	}

	ordered := make([]models.Answer, len(answers))
	copy(ordered, answers)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].QuestionNumber < ordered[j].QuestionNumber })
	for i := range ordered {
		ordered[i].UserID = userID
	}

	if err := s.store.SubmitAnswers(ctx, userID, ordered); err != nil {
		return err
	}
	s.logger.Info("questionnaire submitted", zap.Int("user_id", userID))
	return nil
}

// HasAnswered reports whether the user completed the questionnaire. Unknown users have not.
func (s *Service) HasAnswered(ctx context.Context, userID int) (bool, error) {
	u, err := s.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.QuestionsAnswered, nil
}
